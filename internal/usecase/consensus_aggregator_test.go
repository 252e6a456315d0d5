package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/cache"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profile(id string, wins, losses int) models.TraderProfile {
	return models.TraderProfile{ID: id, Wins: wins, Losses: losses}
}

func TestTallyWeighsByWinRate(t *testing.T) {
	ranking := []models.TraderProfile{profile("a", 9, 1), profile("b", 3, 1)}
	observed := map[string][]models.SourceRecords{
		"a": {{Source: "positions", Positions: []models.Position{buy("a", models.OutcomeYes, 100)}}},
		"b": {{Source: "positions", Positions: []models.Position{buy("b", models.OutcomeNo, 200)}}},
	}

	vote := Tally(ranking, observed)

	require.NotNil(t, vote.Direction)
	assert.Equal(t, models.OutcomeNo, *vote.Direction)
	assert.InDelta(t, 90, vote.YesWeight, 1e-9)
	assert.InDelta(t, 150, vote.NoWeight, 1e-9)
	assert.InDelta(t, 60.0/240.0, vote.Confidence, 1e-9)
	require.Len(t, vote.Contributors, 2)
	assert.Equal(t, "b", vote.Contributors[0].TraderID)
}

func TestTallyNeverDoubleCounts(t *testing.T) {
	ranking := []models.TraderProfile{profile("a", 1, 0)}
	observed := map[string][]models.SourceRecords{
		"a": {
			{Source: "positions", Positions: []models.Position{buy("a", models.OutcomeYes, 50)}},
			{Source: "activity", Positions: []models.Position{buy("a", models.OutcomeYes, 50), buy("a", models.OutcomeNo, 500)}},
		},
	}

	vote := Tally(ranking, observed)

	assert.Equal(t, 50.0, vote.YesWeight)
	assert.Zero(t, vote.NoWeight)
	require.Len(t, vote.Contributors, 1)
	assert.Equal(t, "positions", vote.Contributors[0].Source)
}

func TestTallyFallsThroughEmptySource(t *testing.T) {
	ranking := []models.TraderProfile{profile("a", 1, 1)}
	observed := map[string][]models.SourceRecords{
		"a": {
			{Source: "positions"},
			{Source: "activity", Positions: []models.Position{{TraderID: "a", Side: models.SideSell, Outcome: models.OutcomeNo, Size: 40}}},
		},
	}

	vote := Tally(ranking, observed)

	require.NotNil(t, vote.Direction)
	assert.Equal(t, models.OutcomeYes, *vote.Direction)
	assert.Equal(t, 20.0, vote.YesWeight)
	assert.Equal(t, 1.0, vote.Confidence)
	assert.Equal(t, "activity", vote.Contributors[0].Source)
}

func TestTallyWithoutData(t *testing.T) {
	vote := Tally([]models.TraderProfile{profile("a", 1, 0)}, nil)
	assert.Nil(t, vote.Direction)
	assert.Zero(t, vote.Confidence)
	assert.NotNil(t, vote.Contributors)

	even := Tally([]models.TraderProfile{profile("a", 1, 0), profile("b", 1, 0)}, map[string][]models.SourceRecords{
		"a": {{Source: "positions", Positions: []models.Position{buy("a", models.OutcomeYes, 10)}}},
		"b": {{Source: "positions", Positions: []models.Position{buy("b", models.OutcomeNo, 10)}}},
	})
	assert.Nil(t, even.Direction)
	assert.Zero(t, even.Confidence)
}

type staticRanking []models.TraderProfile

func (s staticRanking) Discover(context.Context) []models.TraderProfile { return s }

type fakePositions struct {
	name  string
	mu    sync.Mutex
	calls map[string]int
	data  map[string][]models.Position
}

func (f *fakePositions) Name() string { return f.name }

func (f *fakePositions) Positions(_ context.Context, traderID, windowID string) ([]models.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[traderID]++
	if traderID == "broken" {
		return nil, errDown
	}
	return f.data[traderID], nil
}

func TestVoteUsesSourcesInOrderAndCaches(t *testing.T) {
	now := windowStart.Add(20 * time.Minute)
	clock := func() time.Time { return now }

	primary := &fakePositions{name: "positions", calls: map[string]int{}, data: map[string][]models.Position{
		"a": {buy("a", models.OutcomeYes, 100)},
	}}
	secondary := &fakePositions{name: "activity", calls: map[string]int{}, data: map[string][]models.Position{
		"a": {buy("a", models.OutcomeNo, 1000)},
		"b": {buy("b", models.OutcomeNo, 10)},
	}}

	agg := NewConsensusAggregator(
		ConsensusConfig{Concurrency: 2, WindowLength: time.Hour, SlugPrefix: "bitcoin"},
		staticRanking{profile("a", 4, 0), profile("b", 1, 1), profile("broken", 5, 0)},
		[]drepo.PositionSource{primary, secondary},
		metrics.Nop{},
		applogger.NewNop(),
		cache.NewMarketData[models.ConsensusVote]("votes", cache.WithTTL(2*time.Minute), cache.WithClock(clock)),
		cache.NewMarketData[[]models.Position]("positions", cache.WithTTL(time.Minute), cache.WithClock(clock)),
	)
	agg.now = clock

	vote := agg.Vote(context.Background())

	require.NotNil(t, vote.Direction)
	assert.Equal(t, models.OutcomeYes, *vote.Direction)
	assert.Equal(t, 100.0, vote.YesWeight)
	assert.Equal(t, 5.0, vote.NoWeight)
	assert.Equal(t, now, vote.ComputedAt)
	assert.NotEmpty(t, vote.WindowID)
	assert.Equal(t, 0, secondary.calls["a"], "activity is not polled once positions has records")
	assert.Equal(t, 1, secondary.calls["b"])

	// cached within the TTL
	now = now.Add(time.Minute)
	agg.Vote(context.Background())
	assert.Equal(t, 1, primary.calls["a"])

	now = now.Add(2 * time.Minute)
	agg.Vote(context.Background())
	assert.Equal(t, 2, primary.calls["a"])
}
