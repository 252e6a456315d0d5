package usecase

import (
	"context"
	"math"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/services/indicators"
	"MarketPulse/internal/services/scoring"
	"MarketPulse/pkg/cache"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/util"
)

// TickOutcome describes what one scheduler tick did.
type TickOutcome string

const (
	TickCommitted        TickOutcome = "committed"
	TickAlreadyCommitted TickOutcome = "already_committed"
	TickInsufficientData TickOutcome = "insufficient_data"
	TickUnavailable      TickOutcome = "unavailable"
	TickWaiting          TickOutcome = "waiting"
	TickRejected         TickOutcome = "rejected"
)

// EventPredictionCommitted is published once per window.
const EventPredictionCommitted = "prediction.committed"

// SchedulerConfig holds window timing and commit policy.
type SchedulerConfig struct {
	WindowLength time.Duration
	PollInterval time.Duration
	MinPoints    int
	MinWait      time.Duration
	MaxWait      time.Duration
	ClearGap     float64
	CloseGap     float64
	MarginPull   time.Duration
	SlugPrefix   string
	Location     *time.Location
}

// CommitThreshold returns how long after window start a prediction may be
// committed. A price far from the reference commits at MinWait, one close to
// it at MaxWait, with linear interpolation between. A margin above 0.5 pulls
// the threshold earlier by margin*MarginPull, never below MinWait.
func CommitThreshold(cfg SchedulerConfig, gap, margin float64) time.Duration {
	gap = math.Abs(gap)

	var threshold time.Duration
	switch {
	case gap >= cfg.ClearGap:
		threshold = cfg.MinWait
	case gap <= cfg.CloseGap:
		threshold = cfg.MaxWait
	default:
		frac := (gap - cfg.CloseGap) / (cfg.ClearGap - cfg.CloseGap)
		threshold = cfg.MaxWait - time.Duration(frac*float64(cfg.MaxWait-cfg.MinWait))
	}

	if margin > 0.5 {
		threshold -= time.Duration(margin * float64(cfg.MarginPull))
		if threshold < cfg.MinWait {
			threshold = cfg.MinWait
		}
	}
	return threshold
}

// WindowLockScheduler commits at most one prediction per window.
type WindowLockScheduler struct {
	cfg       SchedulerConfig
	prices    drepo.PriceSource
	locks     drepo.LockStore
	history   drepo.HistoryStore
	publisher drepo.Publisher
	metrics   drepo.Metrics
	log       *applogger.Logger
	closes    *cache.MarketDataCache[[]float64]
	opens     *cache.MarketDataCache[float64]
	now       func() time.Time

	tickMu sync.Mutex // serializes Tick

	mu         sync.RWMutex // guards the fields below
	lock       *models.WindowLock
	series     models.PriceSeries
	indicators *models.IndicatorSet
	unsynced   bool // committed locally while the lock store was failing
}

func NewWindowLockScheduler(
	cfg SchedulerConfig,
	prices drepo.PriceSource,
	locks drepo.LockStore,
	history drepo.HistoryStore,
	publisher drepo.Publisher,
	metrics drepo.Metrics,
	log *applogger.Logger,
	closes *cache.MarketDataCache[[]float64],
	opens *cache.MarketDataCache[float64],
) *WindowLockScheduler {
	if cfg.MinPoints < scoring.MinPoints {
		cfg.MinPoints = scoring.MinPoints
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &WindowLockScheduler{
		cfg:       cfg,
		prices:    prices,
		locks:     locks,
		history:   history,
		publisher: publisher,
		metrics:   metrics,
		log:       log.With(applogger.String("component", "scheduler")),
		closes:    closes,
		opens:     opens,
		now:       time.Now,
	}
}

// Run ticks immediately and then every PollInterval until ctx ends.
func (s *WindowLockScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one polling step. It never returns an error: failures are
// logged and the next tick retries.
func (s *WindowLockScheduler) Tick(ctx context.Context) TickOutcome {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := time.Now()
	outcome := s.tick(ctx)
	s.metrics.RecordTick(string(outcome))
	s.metrics.RecordLatency("scheduler_tick", time.Since(start).Seconds())
	return outcome
}

func (s *WindowLockScheduler) tick(ctx context.Context) TickOutcome {
	now := s.now()
	lock := s.rollover(now)
	if lock.IsCommitted() {
		s.sync(ctx)
		return TickAlreadyCommitted
	}
	if stored := s.adopt(ctx, lock); stored != nil {
		return TickAlreadyCommitted
	}

	res := s.closes.Fetch(ctx, cache.Key("closes", lock.WindowID, lock.Start.Unix()), func(ctx context.Context) ([]float64, error) {
		return s.prices.Closes(ctx, lock.Start, now)
	})
	if !res.OK() {
		return TickUnavailable
	}

	s.mu.Lock()
	s.series.Merge(res.Value)
	points := s.series.Points()
	s.mu.Unlock()

	if len(points) < s.cfg.MinPoints {
		s.log.Debug("not enough points yet",
			applogger.String("window", lock.WindowID),
			applogger.Int("points", len(points)),
		)
		return TickInsufficientData
	}

	reference := s.reference(ctx, lock, points[0])

	set := indicators.Compute(points)
	prediction := scoring.FromIndicators(set, reference)

	s.mu.Lock()
	s.indicators = &set
	s.mu.Unlock()

	if prediction == nil {
		return TickInsufficientData
	}

	var gap float64
	if reference > 0 {
		gap = set.Price - reference
	}
	elapsed := now.Sub(lock.Start)
	threshold := CommitThreshold(s.cfg, gap, prediction.Margin)
	if elapsed < threshold {
		s.log.Debug("holding prediction",
			applogger.String("window", lock.WindowID),
			applogger.String("direction", string(prediction.Direction)),
			applogger.Int("confidence", prediction.Confidence),
			applogger.Duration("elapsed", elapsed),
			applogger.Duration("threshold", threshold),
		)
		return TickWaiting
	}

	return s.commit(ctx, lock, prediction, elapsed, now)
}

// rollover returns the lock for the window containing now, replacing the
// previous window's record at a boundary.
func (s *WindowLockScheduler) rollover(now time.Time) models.WindowLock {
	start := util.WindowStart(now, s.cfg.WindowLength, s.cfg.Location)
	id := util.WindowID(s.cfg.SlugPrefix, start, s.cfg.Location)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock == nil || s.lock.WindowID != id || !s.lock.Start.Equal(start) {
		if s.lock != nil {
			s.log.Info("window rollover",
				applogger.String("from", s.lock.WindowID),
				applogger.String("to", id),
			)
			if s.unsynced {
				s.log.Warn("window closed without reaching the lock store",
					applogger.String("window", s.lock.WindowID),
				)
			}
		}
		s.lock = models.NewWindowLock(id, start)
		s.series.Reset(id)
		s.indicators = nil
		s.unsynced = false
	}
	return *s.lock
}

// adopt takes over a commitment another replica already stored.
func (s *WindowLockScheduler) adopt(ctx context.Context, lock models.WindowLock) *models.WindowLock {
	windowID := lock.WindowID
	stored, err := s.locks.Get(ctx, windowID, lock.Start)
	if err != nil {
		s.metrics.RecordError("lock_store")
		s.log.Warn("lock store read failed", applogger.String("window", windowID), applogger.Error(err))
		return nil
	}
	if stored == nil || !stored.IsCommitted() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock != nil && s.lock.WindowID == windowID && s.lock.Start.Equal(lock.Start) && !s.lock.IsCommitted() {
		s.lock.ReferencePrice = stored.ReferencePrice
		_ = s.lock.Commit(stored.Committed, stored.CommittedAtOffset)
	}
	return stored
}

// reference resolves the price-to-beat. The opening candle is tried once per
// window; without it the first observed close stands in.
func (s *WindowLockScheduler) reference(ctx context.Context, lock models.WindowLock, first float64) float64 {
	if lock.ReferencePrice > 0 {
		return lock.ReferencePrice
	}

	s.mu.Lock()
	attempt := s.lock.WindowID == lock.WindowID && s.lock.MarkReferenceAttempted()
	s.mu.Unlock()
	if !attempt {
		return first
	}

	ref := first
	res := s.opens.Fetch(ctx, cache.Key("open", lock.WindowID, lock.Start.Unix()), func(ctx context.Context) (float64, error) {
		return s.prices.OpenPrice(ctx, lock.Start)
	})
	if res.OK() && res.Value > 0 {
		ref = res.Value
	} else {
		s.log.Info("window open unavailable, using first close",
			applogger.String("window", lock.WindowID),
			applogger.Float64("reference", first),
		)
	}

	s.mu.Lock()
	if s.lock.WindowID == lock.WindowID {
		s.lock.ReferencePrice = ref
	}
	s.mu.Unlock()
	return ref
}

func (s *WindowLockScheduler) commit(ctx context.Context, lock models.WindowLock, p *models.PredictionResult, elapsed time.Duration, now time.Time) TickOutcome {
	s.mu.RLock()
	candidate := *s.lock
	s.mu.RUnlock()
	if candidate.WindowID != lock.WindowID || !candidate.Start.Equal(lock.Start) {
		return TickRejected
	}
	if err := candidate.Commit(p, elapsed); err != nil {
		s.log.Error("refusing commit", applogger.String("window", lock.WindowID), applogger.Error(err))
		return TickRejected
	}

	won, err := s.locks.Commit(ctx, &candidate)
	if err != nil {
		// the local lock still refuses a second commit; the store is retried on later ticks
		s.metrics.RecordError("lock_store")
		s.log.Warn("lock store commit failed, committing locally",
			applogger.String("window", lock.WindowID),
			applogger.Error(err),
		)
	} else if !won {
		s.adopt(ctx, lock)
		return TickAlreadyCommitted
	}

	s.mu.Lock()
	if s.lock.WindowID != candidate.WindowID || !s.lock.Start.Equal(candidate.Start) || s.lock.IsCommitted() {
		s.mu.Unlock()
		return TickAlreadyCommitted
	}
	s.lock = &candidate
	s.unsynced = err != nil
	s.mu.Unlock()

	s.metrics.RecordCommit(string(p.Direction), p.Confidence)
	s.log.Info("prediction committed",
		applogger.String("window", candidate.WindowID),
		applogger.String("direction", string(p.Direction)),
		applogger.Int("confidence", p.Confidence),
		applogger.Float64("margin", p.Margin),
		applogger.Float64("reference", candidate.ReferencePrice),
		applogger.Duration("elapsed", elapsed),
	)

	rec := models.PredictionRecord{
		WindowID:       candidate.WindowID,
		WindowStart:    candidate.Start,
		Direction:      p.Direction,
		Confidence:     p.Confidence,
		ReferencePrice: candidate.ReferencePrice,
		CommittedAt:    now,
	}
	if err := s.history.SavePrediction(ctx, rec); err != nil {
		s.metrics.RecordError("history")
		s.log.Warn("save prediction failed", applogger.String("window", rec.WindowID), applogger.Error(err))
	}
	if err := s.publisher.Publish(ctx, EventPredictionCommitted, rec.WindowID, rec); err != nil {
		s.metrics.RecordError("publish")
		s.log.Warn("publish prediction failed", applogger.String("window", rec.WindowID), applogger.Error(err))
	}
	return TickCommitted
}

// sync retries writing a locally committed lock to the store. A different
// commitment found there is logged but never replaces the local one.
func (s *WindowLockScheduler) sync(ctx context.Context) {
	s.mu.RLock()
	if !s.unsynced {
		s.mu.RUnlock()
		return
	}
	local := *s.lock
	s.mu.RUnlock()

	won, err := s.locks.Commit(ctx, &local)
	if err != nil {
		s.metrics.RecordError("lock_store")
		s.log.Debug("lock store still failing", applogger.String("window", local.WindowID), applogger.Error(err))
		return
	}
	if !won {
		s.log.Warn("lock store holds another replica's commitment",
			applogger.String("window", local.WindowID),
			applogger.String("direction", string(local.Committed.Direction)),
		)
	} else {
		s.log.Info("lock store caught up", applogger.String("window", local.WindowID))
	}

	s.mu.Lock()
	if s.lock.WindowID == local.WindowID && s.lock.Start.Equal(local.Start) {
		s.unsynced = false
	}
	s.mu.Unlock()
}

// Snapshot returns the state of the active window.
func (s *WindowLockScheduler) Snapshot() models.PredictionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lock == nil {
		start := util.WindowStart(s.now(), s.cfg.WindowLength, s.cfg.Location)
		return models.PredictionSnapshot{
			WindowID:    util.WindowID(s.cfg.SlugPrefix, start, s.cfg.Location),
			WindowStart: start,
		}
	}

	snap := models.PredictionSnapshot{
		WindowID:       s.lock.WindowID,
		WindowStart:    s.lock.Start,
		ReferencePrice: s.lock.ReferencePrice,
		Points:         s.series.Len(),
	}
	if last, ok := s.series.Last(); ok {
		snap.LastPrice = last
	}
	if s.indicators != nil {
		set := *s.indicators
		snap.Indicators = &set
	}
	if c := s.lock.Committed; c != nil {
		snap.Committed = true
		snap.Direction = c.Direction
		snap.Confidence = c.Confidence
		snap.CommittedAfterSec = int64(s.lock.CommittedAtOffset / time.Second)
	}
	return snap
}
