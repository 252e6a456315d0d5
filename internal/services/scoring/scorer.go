// Package scoring turns an indicator snapshot into a directional call.
package scoring

import (
	"math"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/services/indicators"
)

// MinPoints is the shortest series Score accepts (the EMA-26 floor).
const MinPoints = 26

// Signal weights. A signal contributes its full weight when its condition
// holds and nothing otherwise.
const (
	WeightVelocityAccel = 3.0
	WeightVelocityDecel = 1.0
	WeightRSIExtreme    = 2.5
	WeightRSILean       = 1.0
	WeightEMACross      = 3.0
	WeightEMAState      = 1.5
	WeightMACD          = 1.5
	WeightBollinger     = 2.0
	WeightStochRSI      = 2.0
	WeightReferenceGap  = 0.5
)

const (
	rsiOversold    = 30
	rsiBullLean    = 45
	rsiBearLean    = 55
	rsiOverbought  = 70
	bandEdge       = 0.15
	referenceGap   = 200
	confidenceBase = 52
	confidenceSpan = 36
	confidenceMin  = 50
	confidenceMax  = 88
)

// Tally is the bull/bear breakdown behind a prediction.
type Tally struct {
	Bull float64
	Bear float64
}

func (t *Tally) add(bull, bear bool, weight float64) {
	if bull {
		t.Bull += weight
	} else if bear {
		t.Bear += weight
	}
}

// Score computes a prediction from prices and the window's reference price.
// It returns nil below MinPoints. A non-positive reference skips the gap signal.
func Score(prices []float64, reference float64) *models.PredictionResult {
	if len(prices) < MinPoints {
		return nil
	}
	set := indicators.Compute(prices)
	return FromIndicators(set, reference)
}

// FromIndicators scores an already computed snapshot.
func FromIndicators(set models.IndicatorSet, reference float64) *models.PredictionResult {
	if set.Points < MinPoints {
		return nil
	}
	t := Weigh(set, reference)
	return Resolve(t)
}

// Weigh applies the signal table to set.
func Weigh(set models.IndicatorSet, reference float64) Tally {
	var t Tally

	if v := set.Velocity; v != nil {
		t.add(v.Signal == models.VelocityAccelUp, v.Signal == models.VelocityAccelDown, WeightVelocityAccel)
		t.add(v.Signal == models.VelocityDecelUp, v.Signal == models.VelocityDecelDown, WeightVelocityDecel)
	}

	if r := set.RSI; r != nil {
		switch {
		case *r < rsiOversold:
			t.Bull += WeightRSIExtreme
		case *r < rsiBullLean:
			t.Bull += WeightRSILean
		}
		switch {
		case *r > rsiOverbought:
			t.Bear += WeightRSIExtreme
		case *r > rsiBearLean:
			t.Bear += WeightRSILean
		}
	}

	if c := set.Crossover; c != nil {
		switch {
		case c.CrossUp || c.CrossDown:
			t.add(c.CrossUp, c.CrossDown, WeightEMACross)
		default:
			t.add(c.Bullish, c.Fast < c.Slow, WeightEMAState)
		}
	}

	if m := set.MACD; m != nil {
		t.add(m.Value > 0, m.Value < 0, WeightMACD)
	}

	if b := set.Bollinger; b != nil {
		pos := b.Position(set.Price)
		t.add(pos < bandEdge, pos > 1-bandEdge, WeightBollinger)
	}

	if s := set.StochRSI; s != nil {
		t.add(s.Signal == models.StochOversold, s.Signal == models.StochOverbought, WeightStochRSI)
	}

	if reference > 0 {
		gap := set.Price - reference
		t.add(gap > referenceGap, gap < -referenceGap, WeightReferenceGap)
	}

	return t
}

// Resolve converts a tally into direction, margin and confidence.
// Ties resolve DOWN. An empty tally is treated as perfectly even.
func Resolve(t Tally) *models.PredictionResult {
	dir := models.DirectionDown
	if t.Bull > t.Bear {
		dir = models.DirectionUp
	}

	total := t.Bull + t.Bear
	if total < 1 {
		total = 1
	}
	// An empty tally keeps margin 0 (confidence 52). Applying the floored
	// denominator to it would give bullFraction 0, margin 1 and confidence 88.
	margin := 0.0
	if t.Bull+t.Bear > 0 {
		bullFraction := t.Bull / total
		margin = math.Abs(bullFraction-0.5) * 2
	}

	conf := confidenceBase + margin*confidenceSpan
	conf = math.Max(confidenceMin, math.Min(confidenceMax, conf))

	return &models.PredictionResult{
		Direction:  dir,
		Confidence: int(math.Round(conf)),
		BullScore:  t.Bull,
		BearScore:  t.Bear,
		Margin:     margin,
	}
}
