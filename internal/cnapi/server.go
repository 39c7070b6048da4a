// Package cnapi serves the A-share limit-up dashboard over HTTP: the HTML
// page, the JSON API, CSV/XLSX downloads and the WebSocket progress stream.
package cnapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"limitboard/internal/domain"
	"limitboard/internal/limitup"
	"limitboard/internal/report"
)

// Analyzer runs classifications and exposes the trading calendar.
type Analyzer interface {
	Mode() limitup.StreakMode
	Dates(ctx context.Context) ([]domain.TradingDate, error)
	LatestDate(ctx context.Context) (domain.TradingDate, error)
	Run(ctx context.Context, date string, onProgress func(limitup.Progress)) (*limitup.Result, error)
}

// Server serves the limit-up dashboard.
type Server struct {
	analyzer Analyzer
	runs     *runRegistry
	log      *slog.Logger
}

// NewServer creates a server backed by analyzer.
func NewServer(analyzer Analyzer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{
		analyzer: analyzer,
		runs:     newRunRegistry(DefaultRunHistory),
		log:      log,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/cn/dates", s.handleDates)
	mux.HandleFunc("GET /api/cn/limitup", s.handleLimitUp)
	mux.HandleFunc("GET /api/cn/limitup/export.csv", s.handleExportCSV)
	mux.HandleFunc("GET /api/cn/limitup/export.xlsx", s.handleExportXLSX)
	mux.HandleFunc("GET /ws/cn/limitup", s.handleStream)
	return corsMiddleware(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "ok")
}

func (s *Server) handleDates(w http.ResponseWriter, r *http.Request) {
	dates, err := s.analyzer.Dates(r.Context())
	if err != nil {
		s.log.Error("listing trading dates", "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	resp := DatesResponse{Dates: dates}
	if len(dates) > 0 {
		resp.Latest = dates[len(dates)-1]
	}
	writeJSON(w, resp)
}

func (s *Server) handleLimitUp(w http.ResponseWriter, r *http.Request) {
	date, err := s.dateParam(r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	res, err := s.analyzer.Run(r.Context(), date, nil)
	if err != nil {
		s.log.Error("running limit-up analysis", "date", date, "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	id := s.runs.add(res)
	writeJSON(w, newLimitUpResponse(id, res))
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	res, ok := s.exportResult(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, res.Counts); err != nil {
		s.log.Error("writing CSV export", "date", res.Date, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	setAttachment(w, report.CSVContentType, report.CSVFilename(res.Date), "limitup_"+res.Date.Compact()+".csv")
	w.Write(buf.Bytes())
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	res, ok := s.exportResult(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, res); err != nil {
		s.log.Error("writing XLSX export", "date", res.Date, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	setAttachment(w, report.XLSXContentType, report.XLSXFilename(res.Date), "limitup_"+res.Date.Compact()+".xlsx")
	w.Write(buf.Bytes())
}

// exportResult returns the finished run named by ?run= when it matches
// ?date=, and otherwise recomputes. Errors are written to w.
func (s *Server) exportResult(w http.ResponseWriter, r *http.Request) (*limitup.Result, bool) {
	date, err := s.dateParam(r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}
	if id := r.URL.Query().Get("run"); id != "" {
		if res, ok := s.runs.get(id); ok && string(res.Date) == date {
			return res, true
		}
		s.log.Debug("export run not found, recomputing", "run", id, "date", date)
	}
	res, err := s.analyzer.Run(r.Context(), date, nil)
	if err != nil {
		s.log.Error("running limit-up analysis for export", "date", date, "error", err)
		writeError(w, statusFor(err), err)
		return nil, false
	}
	s.runs.add(res)
	return res, true
}

// dateParam returns ?date=, defaulting to the latest trading date.
func (s *Server) dateParam(r *http.Request) (string, error) {
	if date := r.URL.Query().Get("date"); date != "" {
		return date, nil
	}
	latest, err := s.analyzer.LatestDate(r.Context())
	if err != nil {
		return "", err
	}
	return string(latest), nil
}

// statusFor maps run errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidDate), errors.Is(err, domain.ErrNotTradingDate):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCalendarUnavailable), errors.Is(err, domain.ErrSnapshotUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// setAttachment sets download headers. filename may be non-ASCII; fallback
// is sent for clients that ignore filename*.
func setAttachment(w http.ResponseWriter, contentType, filename, fallback string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, fallback, url.PathEscape(filename)))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writing JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()}); err != nil {
		slog.Error("writing JSON error", "error", err)
	}
}
