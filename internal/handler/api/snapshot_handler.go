package api

import (
	"context"
	"net/http"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/service/ratelimit"
	xhttp "MarketPulse/pkg/http"
	xlogger "MarketPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

type PredictionReader interface {
	Snapshot() models.PredictionSnapshot
}

type ConsensusReader interface {
	Vote(ctx context.Context) models.ConsensusVote
}

type RankingReader interface {
	Snapshot() models.RankingSnapshot
}

// SnapshotHandler serves read-only views of the engine state.
type SnapshotHandler struct {
	logger     *xlogger.Logger
	prediction PredictionReader
	consensus  ConsensusReader
	ranking    RankingReader
	history    domrepo.HistoryStore
	metrics    domrepo.Metrics
	limiter    *ratelimit.Limiter
}

func NewSnapshotHandler(
	logger *xlogger.Logger,
	prediction PredictionReader,
	consensus ConsensusReader,
	ranking RankingReader,
	history domrepo.HistoryStore,
	metrics domrepo.Metrics,
	limiter *ratelimit.Limiter,
) *SnapshotHandler {
	return &SnapshotHandler{
		logger:     logger,
		prediction: prediction,
		consensus:  consensus,
		ranking:    ranking,
		history:    history,
		metrics:    metrics,
		limiter:    limiter,
	}
}

func (h *SnapshotHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api", h.observe, h.rateLimit)
	g.GET("/prediction", h.Prediction)
	g.GET("/consensus", h.Consensus)
	g.GET("/traders", h.Traders)
	g.GET("/history", h.History)
}

func (h *SnapshotHandler) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		h.metrics.RecordRequest(c.Path(), time.Since(start).Seconds(), err != nil || c.Response().Status >= http.StatusInternalServerError)
		return err
	}
}

func (h *SnapshotHandler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
			h.logger.Warn("api rate limited", xlogger.String("remote", c.RealIP()))
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
		}
		return next(c)
	}
}

func (h *SnapshotHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Prediction returns the active window's committed or pending prediction.
func (h *SnapshotHandler) Prediction(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, h.prediction.Snapshot())
}

func (h *SnapshotHandler) Consensus(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, h.consensus.Vote(c.Request().Context()))
}

func (h *SnapshotHandler) Traders(c echo.Context) error {
	req := &models.TradersRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	snap := h.ranking.Snapshot()
	if len(snap.Traders) > req.Limit {
		snap.Traders = snap.Traders[:req.Limit]
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *SnapshotHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	records, err := h.history.Recent(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("history query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("history unavailable").WithError(err))
	}
	if records == nil {
		records = []models.PredictionRecord{}
	}
	return xhttp.SuccessResponse(c, models.HistoryResponse{
		Summary: models.Summarize(records),
		Records: records,
	})
}
