package cnapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"limitboard/internal/domain"
	"limitboard/internal/limitup"
)

type fakeAnalyzer struct {
	dates    []domain.TradingDate
	datesErr error
	runErr   error
	runs     atomic.Int32
}

func (f *fakeAnalyzer) Mode() limitup.StreakMode { return limitup.ModeCumulative }

func (f *fakeAnalyzer) Dates(ctx context.Context) ([]domain.TradingDate, error) {
	if f.datesErr != nil {
		return nil, f.datesErr
	}
	return f.dates, nil
}

func (f *fakeAnalyzer) LatestDate(ctx context.Context) (domain.TradingDate, error) {
	dates, err := f.Dates(ctx)
	if err != nil {
		return "", err
	}
	return dates[len(dates)-1], nil
}

func (f *fakeAnalyzer) Run(ctx context.Context, date string, onProgress func(limitup.Progress)) (*limitup.Result, error) {
	f.runs.Add(1)
	if f.runErr != nil {
		return nil, f.runErr
	}
	d, err := domain.ParseTradingDate(date)
	if err != nil {
		return nil, err
	}
	if onProgress != nil {
		onProgress(limitup.Progress{Done: 1, Total: 2, Symbol: "600001"})
		onProgress(limitup.Progress{Done: 2, Total: 2, Symbol: "000002", Failed: true})
	}
	return &limitup.Result{
		Date:       d,
		Mode:       limitup.ModeCumulative,
		Counts:     domain.BucketCounts{1, 0, 0, 0},
		Qualifying: 2,
		Instruments: []limitup.Instrument{
			{Symbol: "600001", Name: "甲", ChangePercent: 10, Streak: 5, Category: "四板+"},
		},
		Skipped:  []limitup.Skipped{{Symbol: "000002", Kind: domain.FailureNetwork}},
		Failures: map[domain.FailureKind]int{domain.FailureNetwork: 1},
		Elapsed:  1500 * time.Millisecond,
	}, nil
}

func newTestServer(t *testing.T, a *fakeAnalyzer) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(a, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func defaultAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{dates: []domain.TradingDate{"2025-03-07", "2025-03-10"}}
}

func get(t *testing.T, rawURL string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(rawURL)
	if err != nil {
		t.Fatalf("GET %s: %v", rawURL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return resp, body
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, defaultAnalyzer())
	resp, body := get(t, srv.URL+"/healthz")
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}
}

func TestDates(t *testing.T) {
	srv := newTestServer(t, defaultAnalyzer())
	resp, body := get(t, srv.URL+"/api/cn/dates")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got DatesResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decoding dates: %v", err)
	}
	if len(got.Dates) != 2 || got.Latest != "2025-03-10" {
		t.Errorf("dates = %+v", got)
	}

	down := newTestServer(t, &fakeAnalyzer{datesErr: fmt.Errorf("%w: timeout", domain.ErrCalendarUnavailable)})
	if resp, _ := get(t, down.URL+"/api/cn/dates"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("calendar failure status = %d, want 503", resp.StatusCode)
	}
}

func TestLimitUp(t *testing.T) {
	srv := newTestServer(t, defaultAnalyzer())
	resp, body := get(t, srv.URL+"/api/cn/limitup?date=2025-03-07")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", resp.StatusCode, body)
	}
	var got LimitUpResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.RunID == "" {
		t.Error("response missing runId")
	}
	if got.Date != "2025-03-07" || got.Qualifying != 2 || got.Classified != 1 || got.ElapsedMs != 1500 {
		t.Errorf("response = %+v", got)
	}
	if len(got.Rows) != 4 || got.Rows[0].Category != "四板+" || got.Rows[0].Count != 1 {
		t.Errorf("rows = %+v", got.Rows)
	}
	if got.Failures[domain.FailureNetwork] != 1 {
		t.Errorf("failures = %v", got.Failures)
	}
	if !strings.Contains(string(body), `"counts":{"四板+":1,"三板":0,"二板":0,"首板":0}`) {
		t.Errorf("counts not in presentation order: %s", body)
	}
}

func TestLimitUpDefaultsToLatest(t *testing.T) {
	srv := newTestServer(t, defaultAnalyzer())
	_, body := get(t, srv.URL+"/api/cn/limitup")
	var got LimitUpResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.Date != "2025-03-10" {
		t.Errorf("date = %q, want latest 2025-03-10", got.Date)
	}
}

func TestLimitUpErrors(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		runErr error
		want   int
	}{
		{"invalid date", "?date=2025-13-01", nil, http.StatusBadRequest},
		{"not trading", "?date=2025-03-08", fmt.Errorf("%w: 2025-03-08", domain.ErrNotTradingDate), http.StatusBadRequest},
		{"snapshot down", "?date=2025-03-10", fmt.Errorf("%w: 502", domain.ErrSnapshotUnavailable), http.StatusServiceUnavailable},
		{"other", "?date=2025-03-10", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := defaultAnalyzer()
			a.runErr = tt.runErr
			srv := newTestServer(t, a)
			resp, body := get(t, srv.URL+"/api/cn/limitup"+tt.query)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			var e ErrorResponse
			if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
				t.Errorf("error body = %s", body)
			}
		})
	}
}

func TestExportCSVReusesRun(t *testing.T) {
	a := defaultAnalyzer()
	srv := newTestServer(t, a)
	_, body := get(t, srv.URL+"/api/cn/limitup?date=2025-03-10")
	var run LimitUpResponse
	if err := json.Unmarshal(body, &run); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	resp, csvBody := get(t, srv.URL+"/api/cn/limitup/export.csv?date=2025-03-10&run="+run.RunID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if a.runs.Load() != 1 {
		t.Errorf("analysis ran %d times, want 1", a.runs.Load())
	}
	want := "类别,数量\n四板+,1\n三板,0\n二板,0\n首板,0\n"
	if string(csvBody) != want {
		t.Errorf("csv = %q, want %q", csvBody, want)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	cd := resp.Header.Get("Content-Disposition")
	if !strings.Contains(cd, "filename*=UTF-8''"+url.PathEscape("涨停统计_2025-03-10.csv")) {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestExportRecomputes(t *testing.T) {
	a := defaultAnalyzer()
	srv := newTestServer(t, a)

	resp, _ := get(t, srv.URL+"/api/cn/limitup/export.csv?date=2025-03-07&run=unknown")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if a.runs.Load() != 1 {
		t.Errorf("analysis ran %d times, want 1", a.runs.Load())
	}

	// A run id for a different date is not reused.
	_, body := get(t, srv.URL+"/api/cn/limitup?date=2025-03-07")
	var run LimitUpResponse
	json.Unmarshal(body, &run)
	get(t, srv.URL+"/api/cn/limitup/export.csv?date=2025-03-10&run="+run.RunID)
	if a.runs.Load() != 3 {
		t.Errorf("analysis ran %d times, want 3", a.runs.Load())
	}
}

func TestExportXLSX(t *testing.T) {
	srv := newTestServer(t, defaultAnalyzer())
	resp, body := get(t, srv.URL+"/api/cn/limitup/export.xlsx?date=2025-03-10")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.HasPrefix(string(body), "PK") {
		t.Error("xlsx body is not a zip archive")
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "limitup_20250310.xlsx") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestIndexPage(t *testing.T) {
	srv := newTestServer(t, defaultAnalyzer())
	resp, body := get(t, srv.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	page := string(body)
	for _, want := range []string{"开始分析", `<option value="2025-03-10" selected>`, `<option value="2025-03-07">`} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Index(page, "2025-03-10") > strings.Index(page, "2025-03-07") {
		t.Error("dates not listed newest first")
	}

	down := newTestServer(t, &fakeAnalyzer{datesErr: domain.ErrCalendarUnavailable})
	resp, body = get(t, down.URL+"/")
	if resp.StatusCode != http.StatusServiceUnavailable || !strings.Contains(string(body), "无法获取交易日历") {
		t.Errorf("calendar failure page = %d", resp.StatusCode)
	}

	if resp, _ := get(t, srv.URL+"/nope"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", resp.StatusCode)
	}
}

func TestStream(t *testing.T) {
	srv := newTestServer(t, defaultAnalyzer())
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/cn/limitup?date=2025-03-10"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing stream: %v", err)
	}
	defer conn.Close()

	var events []ProgressEvent
	for {
		var ev ProgressEvent
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
		events = append(events, ev)
	}
	if len(events) != 3 {
		t.Fatalf("received %d events, want 3: %+v", len(events), events)
	}
	if events[0].Type != EventProgress || events[0].Done != 1 || events[0].Total != 2 {
		t.Errorf("events[0] = %+v", events[0])
	}
	if !events[1].Failed {
		t.Errorf("events[1] = %+v, want failed", events[1])
	}
	last := events[2]
	if last.Type != EventResult || last.Result == nil || last.Result.RunID == "" || last.Result.Date != "2025-03-10" {
		t.Errorf("last event = %+v", last)
	}
}

func TestStreamError(t *testing.T) {
	a := defaultAnalyzer()
	a.runErr = fmt.Errorf("%w: down", domain.ErrSnapshotUnavailable)
	srv := newTestServer(t, a)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/cn/limitup?date=2025-03-10"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing stream: %v", err)
	}
	defer conn.Close()

	var ev ProgressEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	if ev.Type != EventError || ev.Status != http.StatusServiceUnavailable {
		t.Errorf("event = %+v, want 503 error", ev)
	}
}

func TestRunRegistryEviction(t *testing.T) {
	r := newRunRegistry(2)
	first := r.add(&limitup.Result{Date: "2025-03-05"})
	second := r.add(&limitup.Result{Date: "2025-03-06"})
	third := r.add(&limitup.Result{Date: "2025-03-07"})

	if _, ok := r.get(first); ok {
		t.Error("oldest run was not evicted")
	}
	for _, id := range []string{second, third} {
		if _, ok := r.get(id); !ok {
			t.Errorf("run %s missing", id)
		}
	}
	if r.len() != 2 {
		t.Errorf("registry holds %d runs, want 2", r.len())
	}
}
