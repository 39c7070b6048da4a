package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"

	"limitboard/internal/domain"
)

// Compile-time interface check.
var _ HistoryStore = (*ParquetStore)(nil)

// ParquetStore implements HistoryStore using one Parquet file per symbol.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// HistoryBarRecord is the Parquet schema for a daily history bar.
type HistoryBarRecord struct {
	Symbol        string  `parquet:"symbol"`
	Date          string  `parquet:"date"` // YYYY-MM-DD
	Close         float64 `parquet:"close"`
	PreviousClose float64 `parquet:"previous_close"`
}

// WriteHistory merges records into the file for symbol, preferring incoming
// bars over stored bars of the same date.
// Layout: <DataDir>/cn/history/<period>/<SYMBOL>.parquet
func (s *ParquetStore) WriteHistory(_ context.Context, symbol string, period domain.Period, records []domain.HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}

	incoming := make([]HistoryBarRecord, len(records))
	for i, r := range records {
		incoming[i] = HistoryBarRecord{
			Symbol:        symbol,
			Date:          string(r.Date),
			Close:         r.Close,
			PreviousClose: r.PreviousClose,
		}
	}

	path := s.historyPath(symbol, period)
	existing, _ := readParquetFile[HistoryBarRecord](path)
	merged := mergeHistoryRecords(existing, incoming)

	if err := writeParquetFile(path, merged); err != nil {
		return fmt.Errorf("writing history for %s: %w", symbol, err)
	}
	return nil
}

// ReadHistory reads the stored history of symbol.
func (s *ParquetStore) ReadHistory(_ context.Context, symbol string, period domain.Period) ([]domain.HistoryRecord, error) {
	path := s.historyPath(symbol, period)
	records, err := readParquetFile[HistoryBarRecord](path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading history for %s: %w", symbol, err)
	}

	out := make([]domain.HistoryRecord, len(records))
	for i, r := range records {
		out[i] = domain.HistoryRecord{
			Date:          domain.TradingDate(r.Date),
			Close:         r.Close,
			PreviousClose: r.PreviousClose,
		}
	}
	return out, nil
}

// historyPath returns the filesystem path for a symbol's history file.
func (s *ParquetStore) historyPath(symbol string, period domain.Period) string {
	if period == "" {
		period = domain.PeriodDaily
	}
	return filepath.Join(s.DataDir, "cn", "history", string(period), strings.ToUpper(symbol)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeHistoryRecords deduplicates records by date, preferring incoming
// records over existing ones. Results are sorted by date.
func mergeHistoryRecords(existing, incoming []HistoryBarRecord) []HistoryBarRecord {
	seen := make(map[string]HistoryBarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Date] = r
	}
	for _, r := range incoming {
		seen[r.Date] = r
	}

	merged := make([]HistoryBarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date < merged[j].Date
	})
	return merged
}
