package limitup

import (
	"strings"

	"limitboard/internal/domain"
)

// Filter selects the instruments that closed at or above the limit-up change
// threshold and carry no risk marker in their name.
type Filter struct {
	// MinChangePercent is compared against SnapshotRecord.ChangePercent.
	MinChangePercent float64
	// ExcludeMarkers are case-sensitive substrings of the display name.
	ExcludeMarkers []string
}

// DefaultFilter returns the 9.9% threshold with "ST" excluded.
func DefaultFilter() Filter {
	return Filter{MinChangePercent: 9.9, ExcludeMarkers: []string{"ST"}}
}

// Match reports whether r qualifies.
func (f Filter) Match(r domain.SnapshotRecord) bool {
	if r.ChangePercent < f.MinChangePercent {
		return false
	}
	for _, m := range f.ExcludeMarkers {
		if m != "" && strings.Contains(r.Name, m) {
			return false
		}
	}
	return true
}

// Qualify returns the qualifying subset of snapshot in input order.
func (f Filter) Qualify(snapshot []domain.SnapshotRecord) []domain.SnapshotRecord {
	var out []domain.SnapshotRecord
	for _, r := range snapshot {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}
