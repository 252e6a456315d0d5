package models

import "time"

// Contribution is one trader's share of a consensus vote.
type Contribution struct {
	TraderID    string  `json:"trader_id"`
	DisplayName string  `json:"display_name,omitempty"`
	Source      string  `json:"source"`
	WinRate     float64 `json:"win_rate"`
	Outcome     Outcome `json:"outcome"`
	Weight      float64 `json:"weight"`
}

// ConsensusVote is the weighted lean of ranked traders for the current window.
type ConsensusVote struct {
	WindowID     string         `json:"window_id"`
	Direction    *Outcome       `json:"direction"`
	YesWeight    float64        `json:"yes_weight"`
	NoWeight     float64        `json:"no_weight"`
	Confidence   float64        `json:"confidence"`
	Contributors []Contribution `json:"contributors"`
	ComputedAt   time.Time      `json:"computed_at"`
}

// SourceRecords are the records one position source returned for a trader.
type SourceRecords struct {
	Source    string
	Positions []Position
}
