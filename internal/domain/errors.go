package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCalendarUnavailable aborts a run before any classification starts.
	ErrCalendarUnavailable = errors.New("trading calendar unavailable")
	// ErrSnapshotUnavailable aborts a run before any history is fetched.
	ErrSnapshotUnavailable = errors.New("market snapshot unavailable")
	ErrInvalidDate         = errors.New("invalid date")
	ErrNotTradingDate      = errors.New("not a trading date")
)

// FailureKind classifies a per-symbol history failure.
type FailureKind string

const (
	FailureNetwork   FailureKind = "network"
	FailureNotFound  FailureKind = "not_found"
	FailureMalformed FailureKind = "malformed"
)

// HistoryError reports a failed history fetch for one symbol. It never aborts
// a run; the symbol is skipped and counted.
type HistoryError struct {
	Symbol string
	Kind   FailureKind
	Err    error
}

func (e *HistoryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("history %s: %s", e.Symbol, e.Kind)
	}
	return fmt.Sprintf("history %s: %s: %v", e.Symbol, e.Kind, e.Err)
}

func (e *HistoryError) Unwrap() error { return e.Err }

// KindOf extracts the FailureKind of err, defaulting to FailureNetwork for
// errors that are not a *HistoryError.
func KindOf(err error) FailureKind {
	var he *HistoryError
	if errors.As(err, &he) {
		return he.Kind
	}
	return FailureNetwork
}
