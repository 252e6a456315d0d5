package usecase

import (
	"context"
	"math"
	"sort"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/cache"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/util"

	"golang.org/x/sync/errgroup"
)

// RankingProvider supplies the ranked traders whose positions are polled.
type RankingProvider interface {
	Discover(ctx context.Context) []models.TraderProfile
}

// ConsensusConfig holds the vote cache policy and window derivation.
type ConsensusConfig struct {
	Concurrency  int
	WindowLength time.Duration
	SlugPrefix   string
	Location     *time.Location
}

// Tally weighs each ranked trader's records by win rate times size. Sources
// are consulted in order and the first one with records for a trader is the
// only one counted for that trader.
func Tally(ranking []models.TraderProfile, observed map[string][]models.SourceRecords) models.ConsensusVote {
	vote := models.ConsensusVote{Contributors: []models.Contribution{}}

	for _, trader := range ranking {
		var attributed *models.SourceRecords
		for i := range observed[trader.ID] {
			if len(observed[trader.ID][i].Positions) > 0 {
				attributed = &observed[trader.ID][i]
				break
			}
		}
		if attributed == nil {
			continue
		}

		rate := trader.WinRate()
		size := make(map[models.Outcome]float64, 2)
		for _, p := range attributed.Positions {
			if p.Size > 0 {
				size[p.Lean()] += p.Size
			}
		}
		for _, o := range []models.Outcome{models.OutcomeYes, models.OutcomeNo} {
			if size[o] == 0 {
				continue
			}
			w := rate * size[o]
			if o == models.OutcomeYes {
				vote.YesWeight += w
			} else {
				vote.NoWeight += w
			}
			vote.Contributors = append(vote.Contributors, models.Contribution{
				TraderID:    trader.ID,
				DisplayName: trader.DisplayName,
				Source:      attributed.Source,
				WinRate:     rate,
				Outcome:     o,
				Weight:      w,
			})
		}
	}

	var dir models.Outcome
	switch {
	case vote.YesWeight > vote.NoWeight:
		dir = models.OutcomeYes
	case vote.NoWeight > vote.YesWeight:
		dir = models.OutcomeNo
	}
	if dir != "" {
		vote.Direction = &dir
	}
	if total := vote.YesWeight + vote.NoWeight; total > 0 {
		vote.Confidence = math.Abs(vote.YesWeight-vote.NoWeight) / total
	}

	sort.SliceStable(vote.Contributors, func(i, j int) bool {
		return vote.Contributors[i].Weight > vote.Contributors[j].Weight
	})
	return vote
}

// ConsensusAggregator turns ranked traders' live positions into a vote.
type ConsensusAggregator struct {
	cfg       ConsensusConfig
	ranking   RankingProvider
	sources   []drepo.PositionSource
	metrics   drepo.Metrics
	log       *applogger.Logger
	votes     *cache.MarketDataCache[models.ConsensusVote]
	positions *cache.MarketDataCache[[]models.Position]
	now       func() time.Time
}

// NewConsensusAggregator creates an aggregator. sources are ranked by
// priority; votes caches the computed vote per window.
func NewConsensusAggregator(
	cfg ConsensusConfig,
	ranking RankingProvider,
	sources []drepo.PositionSource,
	metrics drepo.Metrics,
	log *applogger.Logger,
	votes *cache.MarketDataCache[models.ConsensusVote],
	positions *cache.MarketDataCache[[]models.Position],
) *ConsensusAggregator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ConsensusAggregator{
		cfg:       cfg,
		ranking:   ranking,
		sources:   sources,
		metrics:   metrics,
		log:       log.With(applogger.String("component", "consensus")),
		votes:     votes,
		positions: positions,
		now:       time.Now,
	}
}

// Vote returns the consensus for the current window, recomputed at most once per cache TTL.
func (a *ConsensusAggregator) Vote(ctx context.Context) models.ConsensusVote {
	now := a.now()
	id := util.WindowID(a.cfg.SlugPrefix, util.WindowStart(now, a.cfg.WindowLength, a.cfg.Location), a.cfg.Location)

	res := a.votes.Fetch(ctx, cache.Key("vote", id), func(ctx context.Context) (models.ConsensusVote, error) {
		return a.compute(ctx, id, now), nil
	})
	return res.Value
}

func (a *ConsensusAggregator) compute(ctx context.Context, windowID string, now time.Time) models.ConsensusVote {
	start := time.Now()
	ranking := a.ranking.Discover(ctx)
	observed := make(map[string][]models.SourceRecords, len(ranking))
	records := make([][]models.SourceRecords, len(ranking))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for i, trader := range ranking {
		i, traderID := i, trader.ID
		g.Go(func() error {
			records[i] = a.traderRecords(gctx, traderID, windowID)
			return nil
		})
	}
	_ = g.Wait()
	for i, trader := range ranking {
		observed[trader.ID] = records[i]
	}

	vote := Tally(ranking, observed)
	vote.WindowID = windowID
	vote.ComputedAt = now

	a.metrics.RecordConsensus(vote.YesWeight, vote.NoWeight)
	a.metrics.RecordLatency("consensus", time.Since(start).Seconds())
	a.log.Debug("consensus computed",
		applogger.String("window", windowID),
		applogger.Int("traders", len(ranking)),
		applogger.Int("contributors", len(vote.Contributors)),
		applogger.Float64("confidence", vote.Confidence),
	)
	return vote
}

// traderRecords polls sources in priority order and stops at the first one
// that has records, so later sources never fetch what would be ignored.
func (a *ConsensusAggregator) traderRecords(ctx context.Context, traderID, windowID string) []models.SourceRecords {
	var out []models.SourceRecords
	for _, src := range a.sources {
		src := src
		key := cache.Key("positions", src.Name(), traderID, windowID)
		res := a.positions.Fetch(ctx, key, func(ctx context.Context) ([]models.Position, error) {
			return src.Positions(ctx, traderID, windowID)
		})
		if !res.OK() {
			continue
		}
		out = append(out, models.SourceRecords{Source: src.Name(), Positions: res.Value})
		if len(res.Value) > 0 {
			break
		}
	}
	return out
}
