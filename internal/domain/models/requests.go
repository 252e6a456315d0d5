package models

// Query parameters for the snapshot endpoints.

type TradersRequest struct {
	Limit int `query:"limit" json:"limit" default:"10" validate:"gte=1,lte=100"`
}

type HistoryRequest struct {
	Limit int `query:"limit" json:"limit" default:"24" validate:"gte=1,lte=500"`
}

// HistorySummary scores committed predictions whose outcome is known.
type HistorySummary struct {
	Total    int     `json:"total"`
	Resolved int     `json:"resolved"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// Summarize counts resolved and correct records.
func Summarize(records []PredictionRecord) HistorySummary {
	s := HistorySummary{Total: len(records)}
	for _, r := range records {
		if ok, known := r.Correct(); known {
			s.Resolved++
			if ok {
				s.Correct++
			}
		}
	}
	if s.Resolved > 0 {
		s.Accuracy = float64(s.Correct) / float64(s.Resolved)
	}
	return s
}

type HistoryResponse struct {
	Summary HistorySummary     `json:"summary"`
	Records []PredictionRecord `json:"records"`
}
