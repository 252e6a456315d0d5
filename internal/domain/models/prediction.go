package models

import "errors"

var (
	ErrNilPrediction    = errors.New("prediction is nil")
	ErrAlreadyCommitted = errors.New("window already committed")
)

type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// PredictionResult is one scored call for a window. Immutable once produced.
type PredictionResult struct {
	Direction  Direction `json:"direction"`
	Confidence int       `json:"confidence"`
	BullScore  float64   `json:"bull_score"`
	BearScore  float64   `json:"bear_score"`
	Margin     float64   `json:"margin"`
}

// Crossover describes the EMA-9 / EMA-21 relationship at the latest point.
type Crossover struct {
	Fast      float64 `json:"fast"`
	Slow      float64 `json:"slow"`
	CrossUp   bool    `json:"cross_up"`
	CrossDown bool    `json:"cross_down"`
	Bullish   bool    `json:"bullish"`
}

type Bands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// Position returns where price sits inside the band, 0 at the lower edge and 1 at the upper.
func (b Bands) Position(price float64) float64 {
	width := b.Upper - b.Lower
	if width <= 0 {
		return 0.5
	}
	return (price - b.Lower) / width
}

type MACD struct {
	Value   float64 `json:"value"`
	Bullish bool    `json:"bullish"`
}

type StochSignal string

const (
	StochOverbought StochSignal = "OVERBOUGHT"
	StochOversold   StochSignal = "OVERSOLD"
	StochBullish    StochSignal = "BULLISH"
	StochBearish    StochSignal = "BEARISH"
)

type StochRSI struct {
	Value  float64     `json:"value"`
	Signal StochSignal `json:"signal"`
}

type VelocitySignal string

const (
	VelocityAccelUp   VelocitySignal = "ACCELERATING UP"
	VelocityAccelDown VelocitySignal = "ACCELERATING DOWN"
	VelocityDecelUp   VelocitySignal = "DECELERATING UP"
	VelocityDecelDown VelocitySignal = "DECELERATING DOWN"
	VelocityNeutral   VelocitySignal = "NEUTRAL"
)

type Velocity struct {
	Recent       float64        `json:"recent"`
	Prior        float64        `json:"prior"`
	Acceleration float64        `json:"acceleration"`
	Signal       VelocitySignal `json:"signal"`
}

// IndicatorSet is a snapshot of indicator outputs at one instant.
// A nil field means there was not enough history to compute it.
type IndicatorSet struct {
	Price     float64    `json:"price"`
	Points    int        `json:"points"`
	RSI       *float64   `json:"rsi"`
	MACD      *MACD      `json:"macd"`
	Bollinger *Bands     `json:"bollinger"`
	Crossover *Crossover `json:"crossover"`
	StochRSI  *StochRSI  `json:"stoch_rsi"`
	Velocity  *Velocity  `json:"velocity"`
}
