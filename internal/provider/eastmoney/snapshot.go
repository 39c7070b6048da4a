package eastmoney

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"limitboard/internal/domain"
)

// snapshot fields: f2 price, f3 change %, f12 code, f14 name.
const snapshotFields = "f2,f3,f12,f14"

// Snapshot returns the current quote of every A-share instrument. Any
// failure wraps domain.ErrSnapshotUnavailable.
func (c *Client) Snapshot(ctx context.Context) ([]domain.SnapshotRecord, error) {
	var all []domain.SnapshotRecord
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("pn", strconv.Itoa(page))
		q.Set("pz", strconv.Itoa(c.cfg.PageSize))
		q.Set("po", "1")
		q.Set("np", "1")
		q.Set("fltt", "2")
		q.Set("invt", "2")
		q.Set("fid", "f3")
		q.Set("fs", snapshotBoards)
		q.Set("fields", snapshotFields)

		body, err := c.get(ctx, c.cfg.SnapshotURL, q)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", domain.ErrSnapshotUnavailable, page, err)
		}
		total, rows, err := parseSnapshotPage(body)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", domain.ErrSnapshotUnavailable, page, err)
		}
		if page == 1 && total == 0 {
			return nil, fmt.Errorf("%w: empty snapshot", domain.ErrSnapshotUnavailable)
		}
		all = append(all, rows...)

		c.log.Debug("snapshot page", "page", page, "rows", len(rows), "total", total)
		if len(rows) == 0 || len(all) >= total {
			break
		}
	}
	c.log.Info("snapshot fetched", "instruments", len(all))
	return all, nil
}

// parseSnapshotPage decodes data.total and data.diff. diff is an array when
// np=1 and an object keyed "0","1",... otherwise; both are accepted.
// Non-numeric change values (suspended instruments report "-") decode as 0.
func parseSnapshotPage(body []byte) (int, []domain.SnapshotRecord, error) {
	if !gjson.ValidBytes(body) {
		return 0, nil, fmt.Errorf("malformed snapshot response")
	}
	data := gjson.GetBytes(body, "data")
	if !data.Exists() || data.Type == gjson.Null {
		return 0, nil, nil
	}
	total := int(data.Get("total").Int())

	var rows []domain.SnapshotRecord
	data.Get("diff").ForEach(func(_, v gjson.Result) bool {
		code := strings.TrimSpace(v.Get("f12").String())
		if code == "" {
			return true
		}
		rows = append(rows, domain.SnapshotRecord{
			Symbol:        code,
			Name:          strings.TrimSpace(v.Get("f14").String()),
			Price:         number(v.Get("f2")),
			ChangePercent: number(v.Get("f3")),
		})
		return true
	})
	return total, rows, nil
}

func number(r gjson.Result) float64 {
	if r.Type != gjson.Number {
		return 0
	}
	return r.Float()
}
