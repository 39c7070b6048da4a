// Package domain holds the types shared by the limit-up classifier, its data
// providers and every presentation layer.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical textual form of a TradingDate.
const DateLayout = "2006-01-02"

// TradingDate is a calendar date on which the exchange was open, kept in
// YYYY-MM-DD form so that lexical order equals chronological order.
type TradingDate string

// ParseTradingDate validates s as a YYYY-MM-DD date.
func ParseTradingDate(s string) (TradingDate, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return TradingDate(t.Format(DateLayout)), nil
}

// MarketLocation is China Standard Time, the exchange's clock.
var MarketLocation = time.FixedZone("CST", 8*60*60)

// Today returns the current date on the exchange's clock.
func Today(now time.Time) TradingDate {
	return DateOf(now.In(MarketLocation))
}

// DateOf formats t as a TradingDate in t's location.
func DateOf(t time.Time) TradingDate {
	return TradingDate(t.Format(DateLayout))
}

func (d TradingDate) String() string { return string(d) }

// Time returns the date at midnight UTC.
func (d TradingDate) Time() (time.Time, error) {
	return time.Parse(DateLayout, string(d))
}

// Compact returns the date as YYYYMMDD.
func (d TradingDate) Compact() string {
	return strings.ReplaceAll(string(d), "-", "")
}

// After reports whether d is strictly later than o.
func (d TradingDate) After(o TradingDate) bool { return d > o }

// SnapshotRecord is one row of the current-day market snapshot.
type SnapshotRecord struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"changePercent"`
}

// HistoryRecord is one daily bar of a single instrument.
type HistoryRecord struct {
	Date          TradingDate `json:"date"`
	Close         float64     `json:"close"`
	PreviousClose float64     `json:"previousClose"`
}

// Period selects the bar size of a history request.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Bucket is a streak category.
type Bucket int

const (
	BucketFourPlus Bucket = iota
	BucketThree
	BucketTwo
	BucketFirst
)

// Buckets lists every bucket in presentation order.
var Buckets = [...]Bucket{BucketFourPlus, BucketThree, BucketTwo, BucketFirst}

var bucketLabels = [...]string{"四板+", "三板", "二板", "首板"}

// Label returns the display label of b.
func (b Bucket) Label() string {
	if b < 0 || int(b) >= len(bucketLabels) {
		return fmt.Sprintf("Bucket(%d)", int(b))
	}
	return bucketLabels[b]
}

func (b Bucket) String() string { return b.Label() }

// BucketFor maps a streak count to its bucket. Counts of 0 and 1 both land
// in 首板.
func BucketFor(streak int) Bucket {
	switch {
	case streak >= 4:
		return BucketFourPlus
	case streak == 3:
		return BucketThree
	case streak == 2:
		return BucketTwo
	default:
		return BucketFirst
	}
}

// BucketCounts holds the number of instruments per bucket, indexed by Bucket.
type BucketCounts [len(bucketLabels)]int

// Add increments the count of b.
func (c *BucketCounts) Add(b Bucket) { c[b]++ }

// Get returns the count of b.
func (c BucketCounts) Get(b Bucket) int { return c[b] }

// Total returns the sum over all buckets.
func (c BucketCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// Max returns the largest single bucket count.
func (c BucketCounts) Max() int {
	m := 0
	for _, v := range c {
		if v > m {
			m = v
		}
	}
	return m
}

// BucketRow is one row of the tabular view.
type BucketRow struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Rows returns the counts in presentation order.
func (c BucketCounts) Rows() []BucketRow {
	rows := make([]BucketRow, 0, len(Buckets))
	for _, b := range Buckets {
		rows = append(rows, BucketRow{Category: b.Label(), Count: c[b]})
	}
	return rows
}

// MarshalJSON encodes the counts as an object whose keys keep presentation
// order.
func (c BucketCounts) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, b := range Buckets {
		if i > 0 {
			sb.WriteByte(',')
		}
		key, _ := json.Marshal(b.Label())
		sb.Write(key)
		fmt.Fprintf(&sb, ":%d", c[b])
	}
	sb.WriteByte('}')
	return []byte(sb.String()), nil
}

// UnmarshalJSON decodes an object keyed by bucket label. Unknown keys are
// rejected.
func (c *BucketCounts) UnmarshalJSON(data []byte) error {
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var out BucketCounts
	for k, v := range m {
		b, ok := BucketByLabel(k)
		if !ok {
			return fmt.Errorf("unknown bucket %q", k)
		}
		out[b] = v
	}
	*c = out
	return nil
}

// BucketByLabel is the inverse of Bucket.Label.
func BucketByLabel(label string) (Bucket, bool) {
	for _, b := range Buckets {
		if b.Label() == label {
			return b, true
		}
	}
	return 0, false
}
