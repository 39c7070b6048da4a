// Package report encodes classification results as downloadable files.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"limitboard/internal/domain"
)

// Download content types.
const (
	CSVContentType  = "text/csv; charset=utf-8"
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// csvHeader is the header row of the bucket table.
var csvHeader = []string{"类别", "数量"}

// CSVFilename returns the download name for date.
func CSVFilename(date domain.TradingDate) string {
	return fmt.Sprintf("涨停统计_%s.csv", date)
}

// XLSXFilename returns the workbook download name for date.
func XLSXFilename(date domain.TradingDate) string {
	return fmt.Sprintf("涨停统计_%s.xlsx", date)
}

// WriteCSV writes the header and the four bucket rows as UTF-8 CSV.
func WriteCSV(w io.Writer, counts domain.BucketCounts) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range counts.Rows() {
		if err := cw.Write([]string{row.Category, strconv.Itoa(row.Count)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
