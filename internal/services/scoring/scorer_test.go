package scoring

import (
	"math"
	"testing"

	"MarketPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(start float64, n int, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestScoreNeedsMinimumHistory(t *testing.T) {
	for n := 0; n < MinPoints; n++ {
		assert.Nil(t, Score(ramp(100, n, 1), 100), "n=%d", n)
	}
	assert.NotNil(t, Score(ramp(100, MinPoints, 1), 100))
}

func TestScoreMonotonicRiseIsUp(t *testing.T) {
	res := Score(ramp(100, 30, 1), 100)
	require.NotNil(t, res)

	assert.Equal(t, models.DirectionUp, res.Direction)
	assert.Greater(t, res.Confidence, 50)

	// velocity accelerating up + EMA bullish state + MACD positive
	assert.InDelta(t, 6.0, res.BullScore, 1e-9)
	// RSI overbought + price in the top of the band
	assert.InDelta(t, 4.5, res.BearScore, 1e-9)
	assert.Equal(t, 57, res.Confidence)
}

func TestScoreIsDeterministic(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 60000 + 150*math.Sin(float64(i)/4) + float64(i)
	}
	first := Score(prices, 60010)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Score(prices, 60010))
	}
}

func TestReferenceGapSignal(t *testing.T) {
	prices := ramp(60000, 30, 1)
	without := Score(prices, 0)
	above := Score(prices, 60029-201)
	below := Score(prices, 60029+201)
	require.NotNil(t, without)

	assert.InDelta(t, without.BullScore+WeightReferenceGap, above.BullScore, 1e-9)
	assert.InDelta(t, without.BearScore+WeightReferenceGap, below.BearScore, 1e-9)

	near := Score(prices, 60029-200)
	assert.Equal(t, without.BullScore, near.BullScore)
}

func TestResolveConfidenceBand(t *testing.T) {
	cases := []struct {
		tally Tally
		dir   models.Direction
		conf  int
	}{
		{Tally{Bull: 10, Bear: 0}, models.DirectionUp, 88},
		{Tally{Bull: 0, Bear: 10}, models.DirectionDown, 88},
		{Tally{Bull: 5, Bear: 5}, models.DirectionDown, 52},
		{Tally{Bull: 3, Bear: 1}, models.DirectionUp, 70},
		{Tally{}, models.DirectionDown, 52},
	}
	for _, tc := range cases {
		res := Resolve(tc.tally)
		assert.Equal(t, tc.dir, res.Direction)
		assert.Equal(t, tc.conf, res.Confidence)
		assert.GreaterOrEqual(t, res.Confidence, 50)
		assert.LessOrEqual(t, res.Confidence, 88)
	}
}

func TestResolveEmptyTally(t *testing.T) {
	res := Resolve(Tally{})
	assert.Equal(t, models.DirectionDown, res.Direction)
	assert.Zero(t, res.Margin)
	assert.Equal(t, 52, res.Confidence)
}

func TestResolveFloorsSmallDenominator(t *testing.T) {
	// total 0.5 floors to 1: fraction 0.5, margin 0
	res := Resolve(Tally{Bull: 0.5})
	assert.Equal(t, models.DirectionUp, res.Direction)
	assert.InDelta(t, 0.0, res.Margin, 1e-12)
	assert.Equal(t, 52, res.Confidence)
}

func TestWeighRSIBands(t *testing.T) {
	rsi := func(v float64) models.IndicatorSet { return models.IndicatorSet{Points: MinPoints, RSI: &v} }

	assert.Equal(t, Tally{Bull: WeightRSIExtreme}, Weigh(rsi(25), 0))
	assert.Equal(t, Tally{Bull: WeightRSILean}, Weigh(rsi(40), 0))
	assert.Equal(t, Tally{}, Weigh(rsi(50), 0))
	assert.Equal(t, Tally{Bear: WeightRSILean}, Weigh(rsi(60), 0))
	assert.Equal(t, Tally{Bear: WeightRSIExtreme}, Weigh(rsi(75), 0))
}

func TestWeighCrossoverPrefersCross(t *testing.T) {
	set := models.IndicatorSet{Points: MinPoints, Crossover: &models.Crossover{Fast: 2, Slow: 1, CrossUp: true, Bullish: true}}
	assert.Equal(t, Tally{Bull: WeightEMACross}, Weigh(set, 0))

	set.Crossover = &models.Crossover{Fast: 1, Slow: 2}
	assert.Equal(t, Tally{Bear: WeightEMAState}, Weigh(set, 0))
}

func TestWeighBollingerEdges(t *testing.T) {
	bands := &models.Bands{Upper: 110, Middle: 100, Lower: 90}
	low := models.IndicatorSet{Points: MinPoints, Price: 92, Bollinger: bands}
	high := models.IndicatorSet{Points: MinPoints, Price: 108, Bollinger: bands}
	mid := models.IndicatorSet{Points: MinPoints, Price: 100, Bollinger: bands}

	assert.Equal(t, Tally{Bull: WeightBollinger}, Weigh(low, 0))
	assert.Equal(t, Tally{Bear: WeightBollinger}, Weigh(high, 0))
	assert.Equal(t, Tally{}, Weigh(mid, 0))
}
