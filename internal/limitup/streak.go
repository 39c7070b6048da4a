// Package limitup classifies stocks sitting at their daily price limit into
// consecutive-board streak buckets.
package limitup

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"limitboard/internal/domain"
)

var one = decimal.NewFromInt(1)

// StreakMode selects how limit-up days are counted.
type StreakMode string

const (
	// ModeCumulative counts every limit-up day on or before the selected
	// date across the whole available history.
	ModeCumulative StreakMode = "cumulative"
	// ModeTrailing counts only the unbroken run of limit-up days ending at
	// the last bar on or before the selected date.
	ModeTrailing StreakMode = "trailing"
)

// ParseStreakMode accepts "" as ModeCumulative.
func ParseStreakMode(s string) (StreakMode, error) {
	switch StreakMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeCumulative:
		return ModeCumulative, nil
	case ModeTrailing:
		return ModeTrailing, nil
	default:
		return "", fmt.Errorf("unknown streak mode %q", s)
	}
}

// LimitFlag reports whether close/previousClose - 1 >= ratio. The ratio is
// computed in decimal so that prices quoted to the cent compare exactly.
func LimitFlag(r domain.HistoryRecord, ratio decimal.Decimal) bool {
	if r.PreviousClose <= 0 {
		return false
	}
	c := decimal.NewFromFloat(r.Close)
	p := decimal.NewFromFloat(r.PreviousClose)
	return c.Div(p).Sub(one).GreaterThanOrEqual(ratio)
}

// StreakCount counts limit-up records dated on or before selected. The
// records need not be contiguous.
func StreakCount(history []domain.HistoryRecord, selected domain.TradingDate, ratio decimal.Decimal) int {
	n := 0
	for _, r := range history {
		if r.Date.After(selected) {
			continue
		}
		if LimitFlag(r, ratio) {
			n++
		}
	}
	return n
}

// TrailingStreak counts the run of consecutive limit-up records that ends at
// the most recent record on or before selected.
func TrailingStreak(history []domain.HistoryRecord, selected domain.TradingDate, ratio decimal.Decimal) int {
	upto := make([]domain.HistoryRecord, 0, len(history))
	for _, r := range history {
		if !r.Date.After(selected) {
			upto = append(upto, r)
		}
	}
	slices.SortFunc(upto, func(a, b domain.HistoryRecord) int {
		return strings.Compare(string(a.Date), string(b.Date))
	})

	n := 0
	for i := len(upto) - 1; i >= 0; i-- {
		if !LimitFlag(upto[i], ratio) {
			break
		}
		n++
	}
	return n
}

// Count applies the mode's counting rule.
func (m StreakMode) Count(history []domain.HistoryRecord, selected domain.TradingDate, ratio decimal.Decimal) int {
	if m == ModeTrailing {
		return TrailingStreak(history, selected, ratio)
	}
	return StreakCount(history, selected, ratio)
}
