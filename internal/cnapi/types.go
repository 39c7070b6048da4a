package cnapi

import (
	"limitboard/internal/domain"
	"limitboard/internal/limitup"
)

// DatesResponse lists the selectable trading dates.
type DatesResponse struct {
	Dates  []domain.TradingDate `json:"dates"`
	Latest domain.TradingDate   `json:"latest,omitempty"`
}

// LimitUpResponse is the full classification API response.
type LimitUpResponse struct {
	RunID       string                     `json:"runId"`
	Date        domain.TradingDate         `json:"date"`
	Mode        limitup.StreakMode         `json:"mode"`
	Counts      domain.BucketCounts        `json:"counts"`
	Rows        []domain.BucketRow         `json:"rows"`
	Qualifying  int                        `json:"qualifying"`
	Classified  int                        `json:"classified"`
	Instruments []limitup.Instrument       `json:"instruments"`
	Skipped     []limitup.Skipped          `json:"skipped"`
	Failures    map[domain.FailureKind]int `json:"failures"`
	ElapsedMs   int64                      `json:"elapsedMs"`
}

func newLimitUpResponse(runID string, res *limitup.Result) LimitUpResponse {
	insts := res.Instruments
	if insts == nil {
		insts = []limitup.Instrument{}
	}
	skipped := res.Skipped
	if skipped == nil {
		skipped = []limitup.Skipped{}
	}
	failures := res.Failures
	if failures == nil {
		failures = map[domain.FailureKind]int{}
	}
	return LimitUpResponse{
		RunID:       runID,
		Date:        res.Date,
		Mode:        res.Mode,
		Counts:      res.Counts,
		Rows:        res.Counts.Rows(),
		Qualifying:  res.Qualifying,
		Classified:  res.Classified(),
		Instruments: insts,
		Skipped:     skipped,
		Failures:    failures,
		ElapsedMs:   res.Elapsed.Milliseconds(),
	}
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Event types sent on the progress stream.
const (
	EventProgress = "progress"
	EventResult   = "result"
	EventError    = "error"
)

// ProgressEvent is one message on the WebSocket progress stream.
type ProgressEvent struct {
	Type   string           `json:"type"`
	Done   int              `json:"done,omitempty"`
	Total  int              `json:"total,omitempty"`
	Symbol string           `json:"symbol,omitempty"`
	Failed bool             `json:"failed,omitempty"`
	Result *LimitUpResponse `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
	Status int              `json:"status,omitempty"`
}
