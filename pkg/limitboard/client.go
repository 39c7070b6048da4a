// Package limitboard is a Go client for the limitboard-server HTTP API.
package limitboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Row is one bucket of the classification table.
type Row struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Instrument is a classified limit-up instrument.
type Instrument struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	ChangePercent float64 `json:"changePercent"`
	Streak        int     `json:"streak"`
	Category      string  `json:"category"`
}

// Skipped is an instrument whose history could not be fetched.
type Skipped struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// LimitUp is the result of one classification run.
type LimitUp struct {
	RunID       string         `json:"runId"`
	Date        string         `json:"date"`
	Mode        string         `json:"mode"`
	Rows        []Row          `json:"rows"`
	Counts      map[string]int `json:"counts"`
	Qualifying  int            `json:"qualifying"`
	Classified  int            `json:"classified"`
	Instruments []Instrument   `json:"instruments"`
	Skipped     []Skipped      `json:"skipped"`
	Failures    map[string]int `json:"failures"`
	ElapsedMs   int64          `json:"elapsedMs"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("limitboard: HTTP %d: %s", e.StatusCode, e.Message)
}

// Client provides a Go SDK for interacting with the limitboard-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new limitboard API client. A classification fetches
// history for every limit-up instrument, so the timeout is generous.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Dates returns the selectable trading dates, oldest first.
func (c *Client) Dates(ctx context.Context) ([]string, error) {
	var resp struct {
		Dates []string `json:"dates"`
	}
	if err := c.getJSON(ctx, "/api/cn/dates", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Dates, nil
}

// LimitUp runs the analysis for date. An empty date selects the latest
// trading date.
func (c *Client) LimitUp(ctx context.Context, date string) (*LimitUp, error) {
	var resp LimitUp
	if err := c.getJSON(ctx, "/api/cn/limitup", dateQuery(date, ""), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExportCSV downloads the bucket table as CSV. When runID names a finished
// run for date the server reuses it instead of recomputing.
func (c *Client) ExportCSV(ctx context.Context, date, runID string) ([]byte, error) {
	return c.get(ctx, "/api/cn/limitup/export.csv", dateQuery(date, runID))
}

// ExportXLSX downloads the workbook export.
func (c *Client) ExportXLSX(ctx context.Context, date, runID string) ([]byte, error) {
	return c.get(ctx, "/api/cn/limitup/export.xlsx", dateQuery(date, runID))
}

func dateQuery(date, runID string) url.Values {
	q := url.Values{}
	if date != "" {
		q.Set("date", date)
	}
	if runID != "" {
		q.Set("run", runID)
	}
	return q
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, v any) error {
	body, err := c.get(ctx, path, q)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("limitboard: decoding %s: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("limitboard: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("limitboard: reading %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
		}
		return nil, apiErr
	}
	return body, nil
}
