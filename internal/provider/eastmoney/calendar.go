package eastmoney

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"limitboard/internal/domain"
)

// TradingDates returns the exchange's trading dates from CalendarStart
// through today, derived from the daily bars of IndexSecID. Any failure
// wraps domain.ErrCalendarUnavailable.
func (c *Client) TradingDates(ctx context.Context) ([]domain.TradingDate, error) {
	start := c.cfg.CalendarStart
	today := domain.Today(c.now())

	q := url.Values{}
	q.Set("secid", c.cfg.IndexSecID)
	q.Set("fields1", "f1")
	q.Set("fields2", "f51")
	q.Set("klt", "101")
	q.Set("fqt", "0")
	q.Set("beg", start.Compact())
	q.Set("end", today.Compact())

	body, err := c.get(ctx, c.cfg.KlineURL, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCalendarUnavailable, err)
	}
	dates, err := parseCalendar(body, start, today)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCalendarUnavailable, err)
	}
	c.log.Info("trading calendar fetched", "dates", len(dates), "start", start, "end", today)
	return dates, nil
}

// parseCalendar extracts the date column of data.klines, keeping dates in
// [start, end] in ascending order without duplicates.
func parseCalendar(body []byte, start, end domain.TradingDate) ([]domain.TradingDate, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("malformed calendar response")
	}
	klines := gjson.GetBytes(body, "data.klines")
	if !klines.IsArray() {
		return nil, fmt.Errorf("no klines in calendar response")
	}

	seen := make(map[domain.TradingDate]bool)
	var dates []domain.TradingDate
	for _, v := range klines.Array() {
		field, _, _ := strings.Cut(v.String(), ",")
		d, err := domain.ParseTradingDate(field)
		if err != nil {
			return nil, err
		}
		if d < start || d.After(end) || seen[d] {
			continue
		}
		seen[d] = true
		dates = append(dates, d)
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("no trading dates between %s and %s", start, end)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })
	return dates, nil
}
