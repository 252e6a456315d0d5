package repository

import (
	"context"
	"time"

	"MarketPulse/internal/domain/models"
)

// PriceSource serves one-minute closes for the tracked symbol.
type PriceSource interface {
	// Closes returns closing prices of candles opened in [from, to), oldest first.
	Closes(ctx context.Context, from, to time.Time) ([]float64, error)
	// OpenPrice returns the open of the candle starting exactly at start.
	OpenPrice(ctx context.Context, start time.Time) (float64, error)
}

// ResolutionSource reports how a past window settled and who took part.
type ResolutionSource interface {
	Resolution(ctx context.Context, windowID string) (*models.WindowResolution, error)
}

// PositionSource reports a trader's exposure in one window.
type PositionSource interface {
	Name() string
	Positions(ctx context.Context, traderID, windowID string) ([]models.Position, error)
}

// LockStore shares window commitments between replicas. Commit succeeds
// only for the first writer of a window. Windows are keyed by slug and start.
type LockStore interface {
	Commit(ctx context.Context, lock *models.WindowLock) (bool, error)
	Get(ctx context.Context, windowID string, start time.Time) (*models.WindowLock, error)
}

type HistoryStore interface {
	SavePrediction(ctx context.Context, rec models.PredictionRecord) error
	SaveOutcome(ctx context.Context, windowID string, outcome models.Direction) error
	Recent(ctx context.Context, limit int) ([]models.PredictionRecord, error)
	Close() error
}

type Publisher interface {
	Publish(ctx context.Context, eventType, key string, payload interface{}) error
	Close() error
}

type Metrics interface {
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordTick(outcome string)
	RecordCommit(direction string, confidence int)
	RecordCacheResult(cache, status string)
	RecordRankingSize(n int)
	RecordConsensus(yes, no float64)
	RecordRequest(endpoint string, seconds float64, failed bool)
}
