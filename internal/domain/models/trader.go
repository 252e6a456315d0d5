package models

// Outcome labels one side of a two-outcome window market.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Opposite returns the other side.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// Direction maps the market outcome onto the price direction it stands for.
func (o Outcome) Direction() Direction {
	if o == OutcomeYes {
		return DirectionUp
	}
	return DirectionDown
}

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Position is one trade or holding record of a participant in a window.
type Position struct {
	TraderID    string  `json:"trader_id"`
	DisplayName string  `json:"display_name,omitempty"`
	Side        Side    `json:"side"`
	Outcome     Outcome `json:"outcome"`
	Size        float64 `json:"size"`
}

// Lean is the outcome this record argues for: buying an outcome backs it,
// selling it backs the other side.
func (p Position) Lean() Outcome {
	if p.Side == SideSell {
		return p.Outcome.Opposite()
	}
	return p.Outcome
}

// WindowResolution is what the resolution source knows about one window.
type WindowResolution struct {
	WindowID     string              `json:"window_id"`
	Closed       bool                `json:"closed"`
	Settlement   map[Outcome]float64 `json:"settlement"`
	Participants []Position          `json:"participants"`
}

// Winner returns the outcome whose settlement value exceeds threshold.
func (r WindowResolution) Winner(threshold float64) (Outcome, bool) {
	if !r.Closed {
		return "", false
	}
	for _, o := range []Outcome{OutcomeYes, OutcomeNo} {
		if r.Settlement[o] > threshold {
			return o, true
		}
	}
	return "", false
}

// TraderProfile aggregates a participant's record over the lookback.
type TraderProfile struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	TotalVolume float64 `json:"total_volume"`
}

func (p TraderProfile) Windows() int { return p.Wins + p.Losses }

// WinRate is wins / (wins + losses), 0 when nothing was observed.
func (p TraderProfile) WinRate() float64 {
	n := p.Windows()
	if n == 0 {
		return 0
	}
	return float64(p.Wins) / float64(n)
}

// RankingSnapshot is the read-only view of the latest discovery cycle.
type RankingSnapshot struct {
	Traders      []TraderProfile `json:"traders"`
	DiscoveredAt int64           `json:"discovered_at"`
	Windows      int             `json:"windows"`
}
