package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"limitboard/internal/limitup"
)

const (
	summarySheet = "连板统计"
	detailSheet  = "明细"
	skippedSheet = "跳过"
)

// WriteXLSX writes a workbook with the bucket table and a column chart, the
// per-instrument streaks and the skipped instruments.
func WriteXLSX(w io.Writer, res *limitup.Result) error {
	wb, err := buildWorkbook(res)
	if err != nil {
		return err
	}
	defer wb.Close()
	return wb.Write(w)
}

func buildWorkbook(res *limitup.Result) (*excelize.File, error) {
	wb := excelize.NewFile()
	if err := wb.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}

	summary := [][]any{{"类别", "数量"}}
	for _, row := range res.Counts.Rows() {
		summary = append(summary, []any{row.Category, row.Count})
	}
	summary = append(summary,
		[]any{},
		[]any{"日期", string(res.Date)},
		[]any{"统计口径", string(res.Mode)},
		[]any{"涨停标的", res.Qualifying},
		[]any{"跳过", len(res.Skipped)},
	)
	if err := writeRows(wb, summarySheet, summary); err != nil {
		return nil, err
	}
	_ = wb.SetColWidth(summarySheet, "A", "B", 12)

	ref := fmt.Sprintf("'%s'!", summarySheet)
	if err := wb.AddChart(summarySheet, "D2", &excelize.Chart{
		Type: excelize.Col,
		Series: []excelize.ChartSeries{{
			Name:       ref + "$B$1",
			Categories: ref + "$A$2:$A$5",
			Values:     ref + "$B$2:$B$5",
		}},
		Title:  []excelize.RichTextRun{{Text: fmt.Sprintf("连板分布 %s", res.Date)}},
		Legend: excelize.ChartLegend{Position: "none"},
	}); err != nil {
		return nil, fmt.Errorf("adding chart: %w", err)
	}

	detail := [][]any{{"代码", "名称", "涨跌幅", "涨停次数", "类别"}}
	for _, inst := range res.Instruments {
		detail = append(detail, []any{inst.Symbol, inst.Name, inst.ChangePercent, inst.Streak, inst.Category})
	}
	if _, err := wb.NewSheet(detailSheet); err != nil {
		return nil, err
	}
	if err := writeRows(wb, detailSheet, detail); err != nil {
		return nil, err
	}

	skipped := [][]any{{"代码", "名称", "原因"}}
	for _, s := range res.Skipped {
		skipped = append(skipped, []any{s.Symbol, s.Name, string(s.Kind)})
	}
	if _, err := wb.NewSheet(skippedSheet); err != nil {
		return nil, err
	}
	if err := writeRows(wb, skippedSheet, skipped); err != nil {
		return nil, err
	}

	if idx, err := wb.GetSheetIndex(summarySheet); err == nil {
		wb.SetActiveSheet(idx)
	}
	return wb, nil
}

func writeRows(wb *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return err
			}
			if err := wb.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}
