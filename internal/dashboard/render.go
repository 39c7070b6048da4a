package dashboard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"limitboard/internal/domain"
	"limitboard/internal/limitup"
)

// Styles.
var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	colHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	categoryStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	countStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	barStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	boxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)

const (
	categoryWidth = 6
	countWidth    = 6
)

// Table renders the four bucket rows under a header.
func Table(counts domain.BucketCounts) string {
	var b strings.Builder
	b.WriteString(colHeaderStyle.Render(padRight("类别", categoryWidth) + padLeft("数量", countWidth)))
	for _, row := range counts.Rows() {
		b.WriteByte('\n')
		b.WriteString(categoryStyle.Render(padRight(row.Category, categoryWidth)))
		b.WriteString(countStyle.Render(padLeft(FormatInt(row.Count), countWidth)))
	}
	return b.String()
}

// BarChart renders one horizontal bar per bucket, scaled so the largest
// bucket spans width cells.
func BarChart(counts domain.BucketCounts, width int) string {
	if width < 1 {
		width = 1
	}
	max := counts.Max()
	var lines []string
	for _, row := range counts.Rows() {
		n := 0
		if max > 0 {
			n = row.Count * width / max
			if n == 0 && row.Count > 0 {
				n = 1
			}
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			categoryStyle.Render(padRight(row.Category, categoryWidth)),
			barStyle.Render(strings.Repeat("█", n))+strings.Repeat(" ", width-n),
			countStyle.Render(FormatInt(row.Count)),
		))
	}
	return strings.Join(lines, "\n")
}

// Summary renders the run header line: date, mode, totals and failures.
func Summary(res *limitup.Result) string {
	line := fmt.Sprintf("%s  涨停 %d  已分类 %d  跳过 %d  耗时 %s",
		titleStyle.Render(string(res.Date)), res.Qualifying, res.Classified(), len(res.Skipped), FormatElapsed(res.Elapsed))
	if res.Mode == limitup.ModeTrailing {
		line += dimStyle.Render("  (连续计数)")
	}
	if len(res.Failures) == 0 {
		return line
	}
	kinds := make([]string, 0, len(res.Failures))
	for k, n := range res.Failures {
		kinds = append(kinds, fmt.Sprintf("%s=%d", k, n))
	}
	sort.Strings(kinds)
	return line + "\n" + warnStyle.Render("失败: "+strings.Join(kinds, " "))
}

// Instruments renders up to limit classified instruments, highest streak
// first. limit <= 0 renders all.
func Instruments(res *limitup.Result, limit int) string {
	insts := res.Instruments
	if limit > 0 && len(insts) > limit {
		insts = insts[:limit]
	}
	var b strings.Builder
	b.WriteString(colHeaderStyle.Render(padRight("代码", 8) + padRight("名称", 12) + padLeft("涨幅", 9) + padLeft("次数", 6) + "  类别"))
	for _, in := range insts {
		b.WriteByte('\n')
		fmt.Fprintf(&b, "%s%s%s%s  %s",
			padRight(in.Symbol, 8), padRight(in.Name, 12), padLeft(FormatChange(in.ChangePercent), 9),
			padLeft(fmt.Sprint(in.Streak), 6), categoryStyle.Render(in.Category))
	}
	if rest := len(res.Instruments) - len(insts); rest > 0 {
		b.WriteString("\n" + dimStyle.Render(fmt.Sprintf("… %d more", rest)))
	}
	return b.String()
}

// Report renders summary, table and chart side by side in a box.
func Report(res *limitup.Result, chartWidth int) string {
	body := lipgloss.JoinHorizontal(lipgloss.Top, Table(res.Counts), "    ", BarChart(res.Counts, chartWidth))
	return boxStyle.Render(Summary(res) + "\n\n" + body)
}
