package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
)

// HistorySchema returns idempotent DDL for the ClickHouse history tables.
func HistorySchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.predictions (
	window_id String,
	window_start DateTime,
	direction LowCardinality(String),
	confidence UInt8,
	reference_price Float64,
	committed_at DateTime
) ENGINE = ReplacingMergeTree(committed_at) ORDER BY window_id`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.outcomes (
	window_id String,
	outcome LowCardinality(String),
	recorded_at DateTime
) ENGINE = ReplacingMergeTree(recorded_at) ORDER BY window_id`, database),
	}
}

// ClickHouseHistoryStore keeps committed predictions and settled outcomes.
type ClickHouseHistoryStore struct {
	db       *sql.DB
	database string
	now      func() time.Time
}

var _ drepo.HistoryStore = (*ClickHouseHistoryStore)(nil)

func NewClickHouseHistoryStore(db *sql.DB, database string) *ClickHouseHistoryStore {
	return &ClickHouseHistoryStore{db: db, database: database, now: time.Now}
}

func (s *ClickHouseHistoryStore) SavePrediction(ctx context.Context, rec models.PredictionRecord) error {
	q := fmt.Sprintf("INSERT INTO %s.predictions (window_id, window_start, direction, confidence, reference_price, committed_at) VALUES (?, ?, ?, ?, ?, ?)", s.database)
	_, err := s.db.ExecContext(ctx, q,
		rec.WindowID,
		rec.WindowStart.UTC(),
		string(rec.Direction),
		uint8(rec.Confidence),
		rec.ReferencePrice,
		rec.CommittedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert prediction %s: %w", rec.WindowID, err)
	}
	return nil
}

func (s *ClickHouseHistoryStore) SaveOutcome(ctx context.Context, windowID string, outcome models.Direction) error {
	q := fmt.Sprintf("INSERT INTO %s.outcomes (window_id, outcome, recorded_at) VALUES (?, ?, ?)", s.database)
	if _, err := s.db.ExecContext(ctx, q, windowID, string(outcome), s.now().UTC()); err != nil {
		return fmt.Errorf("insert outcome %s: %w", windowID, err)
	}
	return nil
}

func (s *ClickHouseHistoryStore) Recent(ctx context.Context, limit int) ([]models.PredictionRecord, error) {
	q := fmt.Sprintf(`SELECT p.window_id, p.window_start, p.direction, p.confidence, p.reference_price, p.committed_at, o.outcome
FROM %[1]s.predictions AS p FINAL
LEFT JOIN (SELECT window_id, argMax(outcome, recorded_at) AS outcome FROM %[1]s.outcomes GROUP BY window_id) AS o
ON p.window_id = o.window_id
ORDER BY p.window_start DESC
LIMIT ?`, s.database)

	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []models.PredictionRecord
	for rows.Next() {
		var (
			r          models.PredictionRecord
			dir, oc    string
			confidence uint8
		)
		if err := rows.Scan(&r.WindowID, &r.WindowStart, &dir, &confidence, &r.ReferencePrice, &r.CommittedAt, &oc); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.Direction = models.Direction(dir)
		r.Confidence = int(confidence)
		r.Outcome = models.Direction(oc)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close is a no-op; the connection pool is owned by pkg/clickhouse.
func (s *ClickHouseHistoryStore) Close() error { return nil }

// MemoryHistoryStore is the in-process HistoryStore used when ClickHouse is disabled.
type MemoryHistoryStore struct {
	mu       sync.RWMutex
	records  map[string]*models.PredictionRecord
	outcomes map[string]models.Direction
	max      int
}

var _ drepo.HistoryStore = (*MemoryHistoryStore)(nil)

// NewMemoryHistoryStore keeps at most max predictions, dropping the oldest windows.
func NewMemoryHistoryStore(max int) *MemoryHistoryStore {
	if max <= 0 {
		max = 500
	}
	return &MemoryHistoryStore{
		records:  make(map[string]*models.PredictionRecord),
		outcomes: make(map[string]models.Direction),
		max:      max,
	}
}

func (s *MemoryHistoryStore) SavePrediction(_ context.Context, rec models.PredictionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := rec
	s.records[rec.WindowID] = &r
	if len(s.records) > s.max {
		var oldest *models.PredictionRecord
		for _, v := range s.records {
			if oldest == nil || v.WindowStart.Before(oldest.WindowStart) {
				oldest = v
			}
		}
		delete(s.records, oldest.WindowID)
	}
	return nil
}

func (s *MemoryHistoryStore) SaveOutcome(_ context.Context, windowID string, outcome models.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[windowID] = outcome
	return nil
}

func (s *MemoryHistoryStore) Recent(_ context.Context, limit int) ([]models.PredictionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PredictionRecord, 0, len(s.records))
	for id, r := range s.records {
		rec := *r
		rec.Outcome = s.outcomes[id]
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WindowStart.After(out[j].WindowStart) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryHistoryStore) Close() error { return nil }
