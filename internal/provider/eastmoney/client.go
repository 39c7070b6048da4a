// Package eastmoney fetches the A-share market snapshot, daily klines and the
// trading calendar from EastMoney's public push2 endpoints.
package eastmoney

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"limitboard/internal/domain"
	"limitboard/internal/util"
)

// Endpoints.
const (
	DefaultSnapshotURL = "https://82.push2.eastmoney.com/api/qt/clist/get"
	DefaultKlineURL    = "https://push2his.eastmoney.com/api/qt/stock/kline/get"
)

// All A-share boards: SZ main, SZ ChiNext, SH main, SH STAR, BJ. Spaces
// encode as '+' on the wire.
const snapshotBoards = "m:0 t:6,m:0 t:80,m:1 t:2,m:1 t:23,m:0 t:81 s:2048"

// MaxPageSize is the most rows clist returns per page; larger pz values are
// silently capped by the server.
const MaxPageSize = 100

// Request headers (browser-like; the endpoints reject bare clients).
const (
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	referer        = "https://quote.eastmoney.com/"
	acceptLanguage = "zh-CN,zh;q=0.9,en;q=0.8"
)

// Config holds endpoint and pacing parameters.
type Config struct {
	SnapshotURL string
	KlineURL    string
	Timeout     time.Duration
	PageSize    int
	// RateLimitPerMin paces every request; 0 disables pacing.
	RateLimitPerMin int
	// MaxAttempts is the number of tries per request; 1 disables retry.
	MaxAttempts int
	RetryDelay  time.Duration
	// IndexSecID is the index whose daily bars define the trading calendar.
	IndexSecID    string
	CalendarStart domain.TradingDate
	// HistoryBegin is the first kline date requested (YYYYMMDD), "0" for all.
	HistoryBegin string
}

// DefaultConfig returns production endpoints with conservative pacing.
func DefaultConfig() Config {
	return Config{
		SnapshotURL:     DefaultSnapshotURL,
		KlineURL:        DefaultKlineURL,
		Timeout:         10 * time.Second,
		PageSize:        100,
		RateLimitPerMin: 600,
		MaxAttempts:     1,
		RetryDelay:      500 * time.Millisecond,
		IndexSecID:      "1.000001",
		CalendarStart:   "2025-01-01",
		HistoryBegin:    "0",
	}
}

// Client talks to EastMoney. It is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *util.RateLimiter
	log     *slog.Logger
	now     func() time.Time
}

// NewClient creates a Client. Zero-valued config fields fall back to
// DefaultConfig.
func NewClient(cfg Config, log *slog.Logger) *Client {
	def := DefaultConfig()
	if cfg.SnapshotURL == "" {
		cfg.SnapshotURL = def.SnapshotURL
	}
	if cfg.KlineURL == "" {
		cfg.KlineURL = def.KlineURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.PageSize <= 0 || cfg.PageSize > MaxPageSize {
		cfg.PageSize = def.PageSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.IndexSecID == "" {
		cfg.IndexSecID = def.IndexSecID
	}
	if cfg.CalendarStart == "" {
		cfg.CalendarStart = def.CalendarStart
	}
	if cfg.HistoryBegin == "" {
		cfg.HistoryBegin = def.HistoryBegin
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: util.NewRateLimiter(cfg.RateLimitPerMin),
		log:     log.With("component", "eastmoney"),
		now:     time.Now,
	}
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("eastmoney: http %d for %s", e.Code, e.URL)
}

// get performs a paced GET and returns the body. 4xx responses other than 429
// are not retried.
func (c *Client) get(ctx context.Context, base string, q url.Values) ([]byte, error) {
	u := base + "?" + q.Encode()
	var body []byte

	err := util.Retry(ctx, c.cfg.MaxAttempts, c.cfg.RetryDelay, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return util.Permanent(err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Referer", referer)
		req.Header.Set("Accept", "application/json, text/plain, */*")
		req.Header.Set("Accept-Language", acceptLanguage)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return util.Permanent(ctx.Err())
			}
			c.log.Debug("request failed", "url", u, "error", err)
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			serr := &StatusError{Code: resp.StatusCode, URL: base}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return util.Permanent(serr)
			}
			return serr
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
