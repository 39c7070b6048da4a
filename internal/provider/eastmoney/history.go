package eastmoney

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"limitboard/internal/domain"
)

// kline fields2: f51 date, f52 open, f53 close, f54 high, f55 low,
// f56 volume, f57 amount, f58 amplitude, f59 change %, f60 change,
// f61 turnover.
const (
	klineFields1 = "f1,f2,f3,f4,f5,f6"
	klineFields2 = "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61"
	klineEnd     = "20500101"
)

const (
	colDate   = 0
	colClose  = 2
	colChange = 9
)

// SecID maps an A-share code to EastMoney's market-prefixed id: "1." for
// Shanghai (codes starting 5, 6 or 9), "0." for Shenzhen and Beijing.
func SecID(symbol string) string {
	symbol = strings.TrimSpace(symbol)
	if symbol != "" && strings.ContainsRune("569", rune(symbol[0])) {
		return "1." + symbol
	}
	return "0." + symbol
}

func klt(period domain.Period) (string, error) {
	switch period {
	case "", domain.PeriodDaily:
		return "101", nil
	case domain.PeriodWeekly:
		return "102", nil
	case domain.PeriodMonthly:
		return "103", nil
	default:
		return "", fmt.Errorf("unsupported period %q", period)
	}
}

// History returns the unadjusted bars of symbol in ascending date order.
// Failures are *domain.HistoryError; context cancellation is returned as is.
func (c *Client) History(ctx context.Context, symbol string, period domain.Period) ([]domain.HistoryRecord, error) {
	k, err := klt(period)
	if err != nil {
		return nil, &domain.HistoryError{Symbol: symbol, Kind: domain.FailureMalformed, Err: err}
	}
	q := url.Values{}
	q.Set("secid", SecID(symbol))
	q.Set("fields1", klineFields1)
	q.Set("fields2", klineFields2)
	q.Set("klt", k)
	q.Set("fqt", "0")
	q.Set("beg", c.cfg.HistoryBegin)
	q.Set("end", klineEnd)

	body, err := c.get(ctx, c.cfg.KlineURL, q)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		kind := domain.FailureNetwork
		var serr *StatusError
		if errors.As(err, &serr) && serr.Code == 404 {
			kind = domain.FailureNotFound
		}
		return nil, &domain.HistoryError{Symbol: symbol, Kind: kind, Err: err}
	}

	records, err := parseKlines(body)
	if err != nil {
		var he *domain.HistoryError
		if errors.As(err, &he) {
			he.Symbol = symbol
			return nil, he
		}
		return nil, &domain.HistoryError{Symbol: symbol, Kind: domain.FailureMalformed, Err: err}
	}
	return records, nil
}

// parseKlines decodes data.klines. Each kline is a comma-separated string;
// the previous close is derived as close - change.
func parseKlines(body []byte) ([]domain.HistoryRecord, error) {
	if !gjson.ValidBytes(body) {
		return nil, &domain.HistoryError{Kind: domain.FailureMalformed, Err: errors.New("invalid JSON")}
	}
	klines := gjson.GetBytes(body, "data.klines")
	if !klines.Exists() || !klines.IsArray() || len(klines.Array()) == 0 {
		return nil, &domain.HistoryError{Kind: domain.FailureNotFound, Err: errors.New("no klines")}
	}

	arr := klines.Array()
	out := make([]domain.HistoryRecord, 0, len(arr))
	for _, v := range arr {
		parts := strings.Split(strings.TrimSpace(v.String()), ",")
		if len(parts) <= colChange {
			return nil, &domain.HistoryError{Kind: domain.FailureMalformed, Err: fmt.Errorf("short kline %q", v.String())}
		}
		date, err := domain.ParseTradingDate(parts[colDate])
		if err != nil {
			return nil, &domain.HistoryError{Kind: domain.FailureMalformed, Err: err}
		}
		closePx, err := decimal.NewFromString(parts[colClose])
		if err != nil {
			return nil, &domain.HistoryError{Kind: domain.FailureMalformed, Err: fmt.Errorf("close %q: %w", parts[colClose], err)}
		}
		change, err := decimal.NewFromString(parts[colChange])
		if err != nil {
			return nil, &domain.HistoryError{Kind: domain.FailureMalformed, Err: fmt.Errorf("change %q: %w", parts[colChange], err)}
		}
		out = append(out, domain.HistoryRecord{
			Date:          date,
			Close:         closePx.InexactFloat64(),
			PreviousClose: closePx.Sub(change).InexactFloat64(),
		})
	}
	return out, nil
}
