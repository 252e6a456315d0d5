// Package indicators computes momentum, trend and volatility signals over a
// series of closing prices ordered oldest to newest. Every function is pure;
// a nil result means the series is too short.
package indicators

import (
	"math"

	"MarketPulse/internal/domain/models"
)

const (
	DefaultRSIPeriod       = 14
	DefaultBollingerPeriod = 20
	DefaultStochSmooth     = 14

	macdFast = 12
	macdSlow = 26

	crossFast      = 9
	crossSlow      = 21
	crossMinPoints = 25

	velocityMinPoints = 10
	velocitySteps     = 3
)

// SMA is the arithmetic mean of the last period values.
func SMA(prices []float64, period int) *float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}
	sum := 0.0
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	v := sum / float64(period)
	return &v
}

// EMA seeds with the SMA of the first period values and runs the
// recurrence e = price*k + e*(1-k), k = 2/(period+1), over the rest.
func EMA(prices []float64, period int) *float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}
	seed := SMA(prices[:period], period)
	e := *seed
	k := 2.0 / float64(period+1)
	for _, p := range prices[period:] {
		e = p*k + e*(1-k)
	}
	return &e
}

// RSI over the last period deltas. 100 when the average loss is zero.
func RSI(prices []float64, period int) *float64 {
	if period <= 0 || len(prices) < period+1 {
		return nil
	}
	window := prices[len(prices)-period-1:]
	gains, losses := 0.0, 0.0
	for i := 1; i < len(window); i++ {
		d := window[i] - window[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	v := 100.0
	if avgLoss != 0 {
		v = 100 - 100/(1+avgGain/avgLoss)
	}
	return &v
}

// MACDLine is EMA-12 minus EMA-26.
func MACDLine(prices []float64) *models.MACD {
	fast := EMA(prices, macdFast)
	slow := EMA(prices, macdSlow)
	if fast == nil || slow == nil {
		return nil
	}
	v := *fast - *slow
	return &models.MACD{Value: v, Bullish: v > 0}
}

// BollingerBands is the mean of the last period values plus and minus two
// population standard deviations.
func BollingerBands(prices []float64, period int) *models.Bands {
	mean := SMA(prices, period)
	if mean == nil {
		return nil
	}
	ss := 0.0
	for _, p := range prices[len(prices)-period:] {
		d := p - *mean
		ss += d * d
	}
	sd := math.Sqrt(ss / float64(period))
	return &models.Bands{
		Upper:  *mean + 2*sd,
		Middle: *mean,
		Lower:  *mean - 2*sd,
	}
}

// EMACrossover compares EMA-9 and EMA-21 at the latest point and at the
// point before it.
func EMACrossover(prices []float64) *models.Crossover {
	if len(prices) < crossMinPoints {
		return nil
	}
	fast, slow := EMA(prices, crossFast), EMA(prices, crossSlow)
	prev := prices[:len(prices)-1]
	prevFast, prevSlow := EMA(prev, crossFast), EMA(prev, crossSlow)

	return &models.Crossover{
		Fast:      *fast,
		Slow:      *slow,
		CrossUp:   *prevFast <= *prevSlow && *fast > *slow,
		CrossDown: *prevFast >= *prevSlow && *fast < *slow,
		Bullish:   *fast > *slow,
	}
}

// StochasticRSI min-max normalises the most recent smoothPeriod values of a
// rolling RSI series into a 0-100 oscillator. A flat RSI range reads as 50.
func StochasticRSI(prices []float64, rsiPeriod, smoothPeriod int) *models.StochRSI {
	if rsiPeriod <= 0 || smoothPeriod <= 0 || len(prices) < rsiPeriod+smoothPeriod {
		return nil
	}
	series := make([]float64, 0, smoothPeriod)
	for end := len(prices) - smoothPeriod + 1; end <= len(prices); end++ {
		series = append(series, *RSI(prices[:end], rsiPeriod))
	}

	lo, hi := series[0], series[0]
	for _, v := range series[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	cur := series[len(series)-1]

	value := 50.0
	if hi > lo {
		value = (cur - lo) / (hi - lo) * 100
	}
	return &models.StochRSI{Value: value, Signal: classifyStoch(value)}
}

func classifyStoch(v float64) models.StochSignal {
	switch {
	case v > 80:
		return models.StochOverbought
	case v < 20:
		return models.StochOversold
	case v >= 50:
		return models.StochBullish
	default:
		return models.StochBearish
	}
}

// PriceVelocity compares the average per-step change over the last three
// steps with the three steps before them (points 4 and 8 back).
func PriceVelocity(prices []float64) *models.Velocity {
	n := len(prices)
	if n < velocityMinPoints {
		return nil
	}
	recent := (prices[n-1] - prices[n-1-velocitySteps]) / velocitySteps
	prior := (prices[n-5] - prices[n-5-velocitySteps]) / velocitySteps
	accel := recent - prior

	return &models.Velocity{
		Recent:       recent,
		Prior:        prior,
		Acceleration: accel,
		Signal:       classifyVelocity(recent, accel),
	}
}

func classifyVelocity(recent, accel float64) models.VelocitySignal {
	switch {
	case recent > 0 && accel >= 0:
		return models.VelocityAccelUp
	case recent > 0:
		return models.VelocityDecelUp
	case recent < 0 && accel <= 0:
		return models.VelocityAccelDown
	case recent < 0:
		return models.VelocityDecelDown
	default:
		return models.VelocityNeutral
	}
}

// Compute evaluates every indicator against prices.
func Compute(prices []float64) models.IndicatorSet {
	set := models.IndicatorSet{
		Points:    len(prices),
		RSI:       RSI(prices, DefaultRSIPeriod),
		MACD:      MACDLine(prices),
		Bollinger: BollingerBands(prices, DefaultBollingerPeriod),
		Crossover: EMACrossover(prices),
		StochRSI:  StochasticRSI(prices, DefaultRSIPeriod, DefaultStochSmooth),
		Velocity:  PriceVelocity(prices),
	}
	if len(prices) > 0 {
		set.Price = prices[len(prices)-1]
	}
	return set
}
