package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/cache"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/util"

	"golang.org/x/sync/errgroup"
)

// EventRankingUpdated is published after every rediscovery.
const EventRankingUpdated = "ranking.updated"

var errNotResolved = errors.New("window not resolved yet")

// DiscoveryConfig holds the ranking policy and lookback.
type DiscoveryConfig struct {
	LookbackWindows int
	WinThreshold    float64
	MinPositionSize float64
	MinWindows      int
	TopN            int
	Interval        time.Duration
	Concurrency     int
	WindowLength    time.Duration
	SlugPrefix      string
	Location        *time.Location
}

// RankTraders scores every participant of the given resolutions and returns
// the top performers. A participant's records in one window are netted per
// outcome; the heavier side is their pick and the total is their volume.
// Windows without a clear winner, positions below MinPositionSize and
// participants seen in fewer than MinWindows windows are ignored.
func RankTraders(resolutions []models.WindowResolution, cfg DiscoveryConfig) []models.TraderProfile {
	profiles := make(map[string]*models.TraderProfile)

	for _, res := range resolutions {
		winner, ok := res.Winner(cfg.WinThreshold)
		if !ok {
			continue
		}

		type exposure struct {
			size map[models.Outcome]float64
			name string
		}
		byTrader := make(map[string]*exposure)
		for _, p := range res.Participants {
			if p.TraderID == "" || p.Size <= 0 {
				continue
			}
			e, ok := byTrader[p.TraderID]
			if !ok {
				e = &exposure{size: make(map[models.Outcome]float64, 2)}
				byTrader[p.TraderID] = e
			}
			e.size[p.Lean()] += p.Size
			if p.DisplayName != "" {
				e.name = p.DisplayName
			}
		}

		for id, e := range byTrader {
			yes, no := e.size[models.OutcomeYes], e.size[models.OutcomeNo]
			total := yes + no
			if total < cfg.MinPositionSize || yes == no {
				continue
			}
			pick := models.OutcomeYes
			if no > yes {
				pick = models.OutcomeNo
			}

			prof, ok := profiles[id]
			if !ok {
				prof = &models.TraderProfile{ID: id}
				profiles[id] = prof
			}
			if e.name != "" {
				prof.DisplayName = e.name
			}
			if pick == winner {
				prof.Wins++
			} else {
				prof.Losses++
			}
			prof.TotalVolume += total
		}
	}

	ranked := make([]models.TraderProfile, 0, len(profiles))
	for _, p := range profiles {
		if p.Windows() >= cfg.MinWindows {
			ranked = append(ranked, *p)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.WinRate() != b.WinRate() {
			return a.WinRate() > b.WinRate()
		}
		if a.TotalVolume != b.TotalVolume {
			return a.TotalVolume > b.TotalVolume
		}
		return a.ID < b.ID
	})
	if cfg.TopN > 0 && len(ranked) > cfg.TopN {
		ranked = ranked[:cfg.TopN]
	}
	return ranked
}

// TraderDiscovery keeps the current ranking, rebuilt at most once per Interval.
type TraderDiscovery struct {
	cfg         DiscoveryConfig
	source      drepo.ResolutionSource
	history     drepo.HistoryStore
	publisher   drepo.Publisher
	metrics     drepo.Metrics
	log         *applogger.Logger
	resolutions *cache.MarketDataCache[models.WindowResolution]
	now         func() time.Time

	runMu    sync.Mutex
	snapshot atomic.Pointer[models.RankingSnapshot]
}

func NewTraderDiscovery(
	cfg DiscoveryConfig,
	source drepo.ResolutionSource,
	history drepo.HistoryStore,
	publisher drepo.Publisher,
	metrics drepo.Metrics,
	log *applogger.Logger,
	resolutions *cache.MarketDataCache[models.WindowResolution],
) *TraderDiscovery {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &TraderDiscovery{
		cfg:         cfg,
		source:      source,
		history:     history,
		publisher:   publisher,
		metrics:     metrics,
		log:         log.With(applogger.String("component", "discovery")),
		resolutions: resolutions,
		now:         time.Now,
	}
}

// Run rediscovers immediately and then every Interval until ctx ends.
func (d *TraderDiscovery) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.Discover(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Discover(ctx)
		}
	}
}

// Discover returns the current ranking, rebuilding it first when the last
// discovery is older than Interval. An empty ranking means there is not
// enough resolved history yet.
func (d *TraderDiscovery) Discover(ctx context.Context) []models.TraderProfile {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	now := d.now()
	if snap := d.snapshot.Load(); snap != nil && now.Sub(time.Unix(snap.DiscoveredAt, 0)) < d.cfg.Interval {
		return snap.Traders
	}

	start := time.Now()
	resolved := d.fetchResolutions(ctx, now)
	ranked := RankTraders(resolved, d.cfg)

	snap := &models.RankingSnapshot{
		Traders:      ranked,
		DiscoveredAt: now.Unix(),
		Windows:      len(resolved),
	}
	d.snapshot.Store(snap)

	d.metrics.RecordRankingSize(len(ranked))
	d.metrics.RecordLatency("discovery", time.Since(start).Seconds())
	d.log.Info("ranking rebuilt",
		applogger.Int("windows", len(resolved)),
		applogger.Int("traders", len(ranked)),
	)

	if err := d.publisher.Publish(ctx, EventRankingUpdated, "ranking", snap); err != nil {
		d.metrics.RecordError("publish")
		d.log.Warn("publish ranking failed", applogger.Error(err))
	}
	return ranked
}

// fetchResolutions loads the lookback windows concurrently and records each
// settled outcome in history.
func (d *TraderDiscovery) fetchResolutions(ctx context.Context, now time.Time) []models.WindowResolution {
	current := util.WindowStart(now, d.cfg.WindowLength, d.cfg.Location)
	starts := util.PreviousWindows(current, d.cfg.WindowLength, d.cfg.LookbackWindows)
	results := make([]*models.WindowResolution, len(starts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for i, st := range starts {
		i, id := i, util.WindowID(d.cfg.SlugPrefix, st, d.cfg.Location)
		g.Go(func() error {
			res := d.resolutions.Fetch(gctx, cache.Key("resolution", id), func(ctx context.Context) (models.WindowResolution, error) {
				r, err := d.source.Resolution(ctx, id)
				if err != nil {
					return models.WindowResolution{}, err
				}
				// open windows are not cached; they are retried next cycle
				if !r.Closed {
					return models.WindowResolution{}, errNotResolved
				}
				return *r, nil
			})
			if res.OK() {
				results[i] = &res.Value
			}
			return nil
		})
	}
	_ = g.Wait()

	resolved := make([]models.WindowResolution, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		resolved = append(resolved, *r)
		if winner, ok := r.Winner(d.cfg.WinThreshold); ok {
			if err := d.history.SaveOutcome(ctx, r.WindowID, winner.Direction()); err != nil {
				d.metrics.RecordError("history")
				d.log.Warn("save outcome failed", applogger.String("window", r.WindowID), applogger.Error(err))
			}
		}
	}
	return resolved
}

// Ranking returns the latest ranking without rebuilding it.
func (d *TraderDiscovery) Ranking() []models.TraderProfile {
	if snap := d.snapshot.Load(); snap != nil {
		return snap.Traders
	}
	return nil
}

// Snapshot returns the latest ranking with its metadata.
func (d *TraderDiscovery) Snapshot() models.RankingSnapshot {
	if snap := d.snapshot.Load(); snap != nil {
		return *snap
	}
	return models.RankingSnapshot{Traders: []models.TraderProfile{}}
}
