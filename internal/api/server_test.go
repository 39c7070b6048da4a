package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"limitboard/internal/config"
	"limitboard/internal/domain"
	"limitboard/internal/limitup"
)

type fakeAnalyzer struct {
	dates  []domain.TradingDate
	err    error
	runErr error
	last   string
}

func (f *fakeAnalyzer) Dates(ctx context.Context) ([]domain.TradingDate, error) {
	return f.dates, f.err
}

func (f *fakeAnalyzer) LatestDate(ctx context.Context) (domain.TradingDate, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.dates[len(f.dates)-1], nil
}

func (f *fakeAnalyzer) Run(ctx context.Context, date string, _ func(limitup.Progress)) (*limitup.Result, error) {
	f.last = date
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &limitup.Result{
		Date:       domain.TradingDate(date),
		Mode:       limitup.ModeCumulative,
		Counts:     domain.BucketCounts{1, 2, 3, 4},
		Qualifying: 11,
		Skipped:    []limitup.Skipped{{Symbol: "000001", Kind: domain.FailureNotFound, Reason: "no klines"}},
		Failures:   map[domain.FailureKind]int{domain.FailureNotFound: 1},
		Elapsed:    2 * time.Second,
	}, nil
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newBufClient(t *testing.T, a Analyzer) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(testLogger())))
	NewService(a, testLogger()).RegisterGRPC(gs)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	c, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestListDates(t *testing.T) {
	c := newBufClient(t, &fakeAnalyzer{dates: []domain.TradingDate{"2025-03-07", "2025-03-10"}})
	dates, err := c.Dates(context.Background())
	if err != nil {
		t.Fatalf("Dates: %v", err)
	}
	if len(dates) != 2 || dates[0] != "2025-03-07" || dates[1] != "2025-03-10" {
		t.Errorf("Dates = %v", dates)
	}
}

func TestListDatesUnavailable(t *testing.T) {
	c := newBufClient(t, &fakeAnalyzer{err: fmt.Errorf("%w: down", domain.ErrCalendarUnavailable)})
	_, err := c.Dates(context.Background())
	if status.Code(err) != codes.Unavailable {
		t.Errorf("Dates error = %v, want Unavailable", err)
	}
}

func TestClassify(t *testing.T) {
	a := &fakeAnalyzer{dates: []domain.TradingDate{"2025-03-07", "2025-03-10"}}
	c := newBufClient(t, a)

	got, err := c.Classify(context.Background(), "2025-03-07")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if a.last != "2025-03-07" {
		t.Errorf("analyzer ran for %q, want 2025-03-07", a.last)
	}
	if got.Date != "2025-03-07" || got.Qualifying != 11 || got.Classified != 10 || got.ElapsedMs != 2000 {
		t.Errorf("Classify = %+v", got)
	}
	if got.Counts != (domain.BucketCounts{1, 2, 3, 4}) {
		t.Errorf("Counts = %v, want [1 2 3 4]", got.Counts)
	}
	if got.Failures[domain.FailureNotFound] != 1 {
		t.Errorf("Failures = %v", got.Failures)
	}

	if _, err := c.Classify(context.Background(), ""); err != nil {
		t.Fatalf("Classify latest: %v", err)
	}
	if a.last != "2025-03-10" {
		t.Errorf("empty date ran for %q, want latest 2025-03-10", a.last)
	}
}

func TestClassifyErrors(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("%w: x", domain.ErrInvalidDate), codes.InvalidArgument},
		{fmt.Errorf("%w: x", domain.ErrNotTradingDate), codes.InvalidArgument},
		{fmt.Errorf("%w: x", domain.ErrSnapshotUnavailable), codes.Unavailable},
		{fmt.Errorf("boom"), codes.Internal},
	}
	for _, tt := range tests {
		c := newBufClient(t, &fakeAnalyzer{dates: []domain.TradingDate{"2025-03-10"}, runErr: tt.err})
		_, err := c.Classify(context.Background(), "2025-03-10")
		if status.Code(err) != tt.want {
			t.Errorf("Classify(%v) code = %v, want %v", tt.err, status.Code(err), tt.want)
		}
	}
}

func TestServerLifecycle(t *testing.T) {
	cfg := config.Server{Host: "127.0.0.1", Port: 0, ShutdownTimeout: time.Second}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	s := NewServer(cfg, handler, nil, testLogger())
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.ListenAndServe(ctx) }()

	resp, err := http.Get("http://" + s.HTTPAddr() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q, want ok", body)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("ListenAndServe returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
