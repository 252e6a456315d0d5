package polymarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/ratelimit"
	"MarketPulse/pkg/cache"
	xhttp "MarketPulse/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const slug = "bitcoin-up-or-down-october-18-3pm-et"

const eventJSON = `[{
  "slug": "bitcoin-up-or-down-october-18-3pm-et",
  "closed": true,
  "markets": [{
    "conditionId": "0xabc",
    "closed": true,
    "outcomes": "[\"Up\", \"Down\"]",
    "outcomePrices": "[\"0.9995\", \"0.0005\"]"
  }]
}]`

const tradesJSON = `[
  {"proxyWallet": "0xAAA", "side": "BUY", "size": 120.5, "price": 0.61, "outcome": "Up", "outcomeIndex": 0, "name": "alpha"},
  {"proxyWallet": "0xbbb", "side": "SELL", "size": "40", "price": 0.39, "outcome": "Down", "outcomeIndex": 1, "pseudonym": "Bold-Heron"},
  {"proxyWallet": "0xccc", "side": "BUY", "size": 5, "price": 0.5, "outcome": "Maybe"}
]`

type fixture struct {
	srv         *httptest.Server
	eventCalls  int32
	mu          sync.Mutex
	lastQueries map[string]map[string]string
}

func (f *fixture) query(path string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQueries[path]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{lastQueries: map[string]map[string]string{}}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		f.mu.Lock()
		f.lastQueries[r.URL.Path] = q
		f.mu.Unlock()

		switch r.URL.Path {
		case "/events":
			atomic.AddInt32(&f.eventCalls, 1)
			if q["slug"] != slug {
				_, _ = w.Write([]byte(`[]`))
				return
			}
			_, _ = w.Write([]byte(eventJSON))
		case "/trades":
			_, _ = w.Write([]byte(tradesJSON))
		case "/positions":
			_, _ = w.Write([]byte(`[{"proxyWallet": "0xaaa", "size": 75, "outcome": "Down", "outcomeIndex": 1}]`))
		case "/activity":
			_, _ = w.Write([]byte(`[{"proxyWallet": "0xaaa", "side": "SELL", "size": 30, "outcome": "Up", "type": "TRADE"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) client(t *testing.T) *Client {
	store := cache.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	return New(
		Config{GammaURL: f.srv.URL, DataURL: f.srv.URL, TradeLimit: 100},
		xhttp.NewClient(xhttp.WithTimeout(time.Second)),
		ratelimit.New(100, 100),
		store,
	)
}

func TestResolution(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)

	res, err := c.Resolution(context.Background(), slug)
	require.NoError(t, err)

	assert.True(t, res.Closed)
	assert.InDelta(t, 0.9995, res.Settlement[models.OutcomeYes], 1e-9)
	assert.InDelta(t, 0.0005, res.Settlement[models.OutcomeNo], 1e-9)

	winner, ok := res.Winner(0.95)
	require.True(t, ok)
	assert.Equal(t, models.OutcomeYes, winner)

	require.Len(t, res.Participants, 2)
	assert.Equal(t, models.Position{TraderID: "0xaaa", DisplayName: "alpha", Side: models.SideBuy, Outcome: models.OutcomeYes, Size: 120.5}, res.Participants[0])
	assert.Equal(t, "Bold-Heron", res.Participants[1].DisplayName)
	assert.Equal(t, models.OutcomeYes, res.Participants[1].Lean())
	assert.Equal(t, "0xabc", f.query("/trades")["market"])
	assert.Equal(t, "100", f.query("/trades")["limit"])
}

func TestResolutionUnknownMarket(t *testing.T) {
	f := newFixture(t)
	_, err := f.client(t).Resolution(context.Background(), "bitcoin-up-or-down-never")
	assert.ErrorIs(t, err, ErrMarketNotFound)
}

func TestPositionSources(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)

	held, err := NewPositionsSource(c).Positions(context.Background(), "0xaaa", slug)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, models.OutcomeNo, held[0].Lean())
	assert.Equal(t, 75.0, held[0].Size)

	traded, err := NewActivitySource(c).Positions(context.Background(), "0xaaa", slug)
	require.NoError(t, err)
	require.Len(t, traded, 1)
	assert.Equal(t, models.OutcomeNo, traded[0].Lean())
	assert.Equal(t, "TRADE", f.query("/activity")["type"])
	assert.Equal(t, "0xabc", f.query("/activity")["market"])

	// condition id is memoized across sources
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.eventCalls))
}

func TestSettlementWithoutLabels(t *testing.T) {
	s, err := settlement(gammaMarket{OutcomePrices: `["0","1"]`})
	require.NoError(t, err)
	assert.Equal(t, 0.0, s[models.OutcomeYes])
	assert.Equal(t, 1.0, s[models.OutcomeNo])
}
