package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/pkg/cache"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"
	"MarketPulse/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buy(trader string, o models.Outcome, size float64) models.Position {
	return models.Position{TraderID: trader, Side: models.SideBuy, Outcome: o, Size: size}
}

func resolved(id string, winner models.Outcome, ps ...models.Position) models.WindowResolution {
	settle := map[models.Outcome]float64{winner: 1, winner.Opposite(): 0}
	return models.WindowResolution{WindowID: id, Closed: true, Settlement: settle, Participants: ps}
}

var rankCfg = DiscoveryConfig{WinThreshold: 0.95, MinPositionSize: 10, MinWindows: 3, TopN: 10}

func TestRankTradersRequiresMinimumWindows(t *testing.T) {
	res := []models.WindowResolution{
		resolved("w1", models.OutcomeYes, buy("lucky", models.OutcomeYes, 100), buy("steady", models.OutcomeYes, 50)),
		resolved("w2", models.OutcomeNo, buy("lucky", models.OutcomeNo, 100), buy("steady", models.OutcomeNo, 50)),
		resolved("w3", models.OutcomeYes, buy("steady", models.OutcomeNo, 50)),
	}

	ranked := RankTraders(res, rankCfg)

	require.Len(t, ranked, 1)
	assert.Equal(t, "steady", ranked[0].ID)
	assert.Equal(t, 2, ranked[0].Wins)
	assert.Equal(t, 1, ranked[0].Losses)
	assert.Equal(t, 150.0, ranked[0].TotalVolume)
}

func TestRankTradersOrdering(t *testing.T) {
	var res []models.WindowResolution
	for i := 0; i < 4; i++ {
		ps := []models.Position{
			buy("big", models.OutcomeYes, 500),
			buy("small", models.OutcomeYes, 20),
			buy("mixed", models.OutcomeYes, 40),
		}
		if i == 0 {
			ps[2] = buy("mixed", models.OutcomeNo, 40)
		}
		res = append(res, resolved(fmt.Sprintf("w%d", i), models.OutcomeYes, ps...))
	}

	ranked := RankTraders(res, rankCfg)
	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"big", "small", "mixed"}, []string{ranked[0].ID, ranked[1].ID, ranked[2].ID})
	assert.Equal(t, 1.0, ranked[0].WinRate())
	assert.Equal(t, 0.75, ranked[2].WinRate())

	cfg := rankCfg
	cfg.TopN = 2
	assert.Len(t, RankTraders(res, cfg), 2)
}

func TestRankTradersNetsPositions(t *testing.T) {
	sell := models.Position{TraderID: "hedger", Side: models.SideSell, Outcome: models.OutcomeYes, Size: 30}
	var res []models.WindowResolution
	for i := 0; i < 3; i++ {
		res = append(res, resolved(fmt.Sprintf("w%d", i), models.OutcomeNo,
			buy("hedger", models.OutcomeYes, 10), sell, // leans NO overall
			buy("dust", models.OutcomeNo, 3), // below minimum size
			buy("flat", models.OutcomeYes, 20), buy("flat", models.OutcomeNo, 20), // no pick
		))
	}
	res = append(res, models.WindowResolution{WindowID: "open", Closed: false, Participants: []models.Position{buy("hedger", models.OutcomeYes, 99)}})
	res = append(res, models.WindowResolution{WindowID: "unclear", Closed: true,
		Settlement:   map[models.Outcome]float64{models.OutcomeYes: 0.5, models.OutcomeNo: 0.5},
		Participants: []models.Position{buy("hedger", models.OutcomeYes, 99)}})

	ranked := RankTraders(res, rankCfg)
	require.Len(t, ranked, 1)
	assert.Equal(t, "hedger", ranked[0].ID)
	assert.Equal(t, 3, ranked[0].Wins)
	assert.Equal(t, 0, ranked[0].Losses)
	assert.Equal(t, 120.0, ranked[0].TotalVolume)
}

func TestRankTradersEmpty(t *testing.T) {
	ranked := RankTraders(nil, rankCfg)
	assert.NotNil(t, ranked)
	assert.Empty(t, ranked)
}

type fakeResolutions struct {
	mu    sync.Mutex
	byID  map[string]models.WindowResolution
	calls int
}

func (f *fakeResolutions) Resolution(_ context.Context, id string) (*models.WindowResolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	r, ok := f.byID[id]
	if !ok {
		return nil, errDown
	}
	return &r, nil
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes map[string]models.Direction
}

func (o *outcomeRecorder) SavePrediction(context.Context, models.PredictionRecord) error { return nil }

func (o *outcomeRecorder) SaveOutcome(_ context.Context, id string, d models.Direction) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes[id] = d
	return nil
}

func (o *outcomeRecorder) Recent(context.Context, int) ([]models.PredictionRecord, error) {
	return nil, nil
}

func (o *outcomeRecorder) Close() error { return nil }

func TestDiscoverRebuildsOnInterval(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := windowStart.Add(10 * time.Minute)
	cfg := rankCfg
	cfg.LookbackWindows = 4
	cfg.Interval = 30 * time.Minute
	cfg.Concurrency = 2
	cfg.WindowLength = time.Hour
	cfg.SlugPrefix = "bitcoin"
	cfg.Location = loc

	src := &fakeResolutions{byID: map[string]models.WindowResolution{}}
	ids := make([]string, 0, 4)
	for _, st := range util.PreviousWindows(windowStart, time.Hour, 4) {
		id := util.WindowID("bitcoin", st, loc)
		ids = append(ids, id)
		src.byID[id] = resolved(id, models.OutcomeYes, buy("0xaaa", models.OutcomeYes, 50))
	}
	// the most recent window has not settled yet
	src.byID[ids[0]] = models.WindowResolution{WindowID: ids[0], Closed: false}

	history := &outcomeRecorder{outcomes: map[string]models.Direction{}}
	pub := &capturePublisher{}
	d := NewTraderDiscovery(cfg, src, history, pub, metrics.Nop{}, applogger.NewNop(),
		cache.NewMarketData[models.WindowResolution]("resolutions", cache.WithTTL(6*time.Hour), cache.WithClock(func() time.Time { return now })))
	d.now = func() time.Time { return now }

	ranked := d.Discover(context.Background())
	require.Len(t, ranked, 1)
	assert.Equal(t, 3, ranked[0].Wins)
	assert.Equal(t, 3, d.Snapshot().Windows)
	assert.Equal(t, 4, src.calls)
	assert.Len(t, history.outcomes, 3)
	assert.Equal(t, models.DirectionUp, history.outcomes[ids[1]])
	assert.Equal(t, []string{EventRankingUpdated + ":ranking"}, pub.events)

	// within the interval nothing is fetched
	now = now.Add(10 * time.Minute)
	d.Discover(context.Background())
	assert.Equal(t, 4, src.calls)

	// after it only the unsettled window is fetched again
	src.byID[ids[0]] = resolved(ids[0], models.OutcomeYes, buy("0xaaa", models.OutcomeYes, 50))
	now = now.Add(30 * time.Minute)
	ranked = d.Discover(context.Background())
	assert.Equal(t, 5, src.calls)
	assert.Equal(t, 4, ranked[0].Wins)
	assert.Equal(t, ranked, d.Ranking())
}

func TestDiscoverWithoutHistoryIsEmpty(t *testing.T) {
	cfg := rankCfg
	cfg.LookbackWindows = 3
	cfg.Interval = time.Hour
	cfg.WindowLength = time.Hour
	cfg.SlugPrefix = "bitcoin"

	d := NewTraderDiscovery(cfg, &fakeResolutions{byID: map[string]models.WindowResolution{}},
		&outcomeRecorder{outcomes: map[string]models.Direction{}}, &capturePublisher{}, metrics.Nop{}, applogger.NewNop(),
		cache.NewMarketData[models.WindowResolution]("resolutions"))

	assert.Empty(t, d.Ranking())
	assert.Empty(t, d.Discover(context.Background()))
	assert.NotNil(t, d.Snapshot().Traders)
}
