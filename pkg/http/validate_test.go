package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pageRequest struct {
	Limit int    `query:"limit" default:"10" validate:"gte=1,lte=100"`
	Order string `query:"order" default:"desc" validate:"oneof=asc desc"`
}

func bindQuery(t *testing.T, query string, req interface{}) interface{} {
	t.Helper()
	e := echo.New()
	r := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return ReadAndValidateRequest(e.NewContext(r, httptest.NewRecorder()), req)
}

func TestReadAndValidateRequestDefaults(t *testing.T) {
	req := &pageRequest{}
	require.Nil(t, bindQuery(t, "", req))
	assert.Equal(t, 10, req.Limit)
	assert.Equal(t, "desc", req.Order)
}

func TestReadAndValidateRequestReportsQueryNames(t *testing.T) {
	req := &pageRequest{}
	verr := bindQuery(t, "limit=500&order=sideways", req)

	errs, ok := verr.([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 2)
	assert.Equal(t, "ERR_LTE", errs[0].Code)
	assert.Equal(t, "limit", errs[0].Field)
	assert.Equal(t, "100", errs[0].Params["max"])
	assert.Equal(t, "ERR_ONEOF", errs[1].Code)
	assert.Equal(t, "order", errs[1].Field)
}

func TestReadAndValidateRequestBindError(t *testing.T) {
	verr := bindQuery(t, "limit=many", &pageRequest{})

	errs, ok := verr.([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_BIND", errs[0].Code)
}
