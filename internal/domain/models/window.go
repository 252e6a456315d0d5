package models

import "time"

// PriceSeries holds the closing prices observed for one window, oldest first.
type PriceSeries struct {
	WindowID string
	points   []float64
}

// Reset starts an empty series for a new window.
func (s *PriceSeries) Reset(windowID string) {
	s.WindowID = windowID
	s.points = s.points[:0]
}

// Merge takes a freshly fetched series for the same window. A shorter fetch
// than what is already held is ignored so the series never shrinks; the
// overlapping tail is refreshed because the newest candle may still be open.
func (s *PriceSeries) Merge(closes []float64) {
	if len(closes) < len(s.points) {
		return
	}
	s.points = append(s.points[:0], closes...)
}

func (s *PriceSeries) Len() int { return len(s.points) }

// Points returns a copy of the held closes.
func (s *PriceSeries) Points() []float64 {
	out := make([]float64, len(s.points))
	copy(out, s.points)
	return out
}

func (s *PriceSeries) First() (float64, bool) {
	if len(s.points) == 0 {
		return 0, false
	}
	return s.points[0], true
}

func (s *PriceSeries) Last() (float64, bool) {
	if len(s.points) == 0 {
		return 0, false
	}
	return s.points[len(s.points)-1], true
}

// WindowLock is the single commit record for one window.
type WindowLock struct {
	WindowID          string            `json:"window_id"`
	Start             time.Time         `json:"start"`
	ReferencePrice    float64           `json:"reference_price"`
	Committed         *PredictionResult `json:"committed,omitempty"`
	CommittedAtOffset time.Duration     `json:"committed_at_offset"`

	referenceAttempted bool
}

func NewWindowLock(windowID string, start time.Time) *WindowLock {
	return &WindowLock{WindowID: windowID, Start: start}
}

func (w *WindowLock) IsCommitted() bool { return w.Committed != nil }

// Commit transitions OPEN -> COMMITTED. It never overwrites an existing commit.
func (w *WindowLock) Commit(p *PredictionResult, offset time.Duration) error {
	if p == nil {
		return ErrNilPrediction
	}
	if w.Committed != nil {
		return ErrAlreadyCommitted
	}
	c := *p
	w.Committed = &c
	w.CommittedAtOffset = offset
	return nil
}

// MarkReferenceAttempted reports whether this is the first attempt to resolve the reference.
func (w *WindowLock) MarkReferenceAttempted() bool {
	if w.referenceAttempted {
		return false
	}
	w.referenceAttempted = true
	return true
}

// PredictionSnapshot is the read-only view of the active window.
type PredictionSnapshot struct {
	WindowID          string        `json:"window_id"`
	WindowStart       time.Time     `json:"window_start"`
	Committed         bool          `json:"committed"`
	Direction         Direction     `json:"direction,omitempty"`
	Confidence        int           `json:"confidence,omitempty"`
	CommittedAfterSec int64         `json:"committed_after_sec,omitempty"`
	ReferencePrice    float64       `json:"reference_price,omitempty"`
	LastPrice         float64       `json:"last_price,omitempty"`
	Points            int           `json:"points"`
	Indicators        *IndicatorSet `json:"indicators,omitempty"`
}

// PredictionRecord is a committed prediction with its eventual outcome.
type PredictionRecord struct {
	WindowID       string    `json:"window_id"`
	WindowStart    time.Time `json:"window_start"`
	Direction      Direction `json:"direction"`
	Confidence     int       `json:"confidence"`
	ReferencePrice float64   `json:"reference_price"`
	CommittedAt    time.Time `json:"committed_at"`
	Outcome        Direction `json:"outcome,omitempty"`
}

// Correct reports whether the outcome is known and matched the prediction.
func (r PredictionRecord) Correct() (bool, bool) {
	if r.Outcome == "" {
		return false, false
	}
	return r.Outcome == r.Direction, true
}
