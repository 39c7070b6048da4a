// Package tui is the interactive terminal dashboard: pick a trading date,
// run the analysis and save the result.
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"limitboard/internal/dashboard"
	"limitboard/internal/domain"
	"limitboard/internal/limitup"
	"limitboard/internal/report"
)

// Styles.
var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("1"))
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("8"))
	dateStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	dateSelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
	busyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

const (
	dateListWidth = 14
	chartWidth    = 30
)

// Runner runs classifications and lists the selectable dates.
type Runner interface {
	Dates(ctx context.Context) ([]domain.TradingDate, error)
	Run(ctx context.Context, date string, onProgress func(limitup.Progress)) (*limitup.Result, error)
}

type datesMsg struct {
	dates []domain.TradingDate
	err   error
}

type progressMsg limitup.Progress

type resultMsg struct {
	res *limitup.Result
	err error
}

type savedMsg struct {
	path string
	err  error
}

// Model is the bubbletea model of the dashboard.
type Model struct {
	runner Runner
	outDir string

	dates  []domain.TradingDate // newest first
	cursor int

	running  bool
	cancel   context.CancelFunc
	events   chan tea.Msg
	progress limitup.Progress
	spinner  spinner.Model

	result *limitup.Result
	err    error
	status string

	viewport viewport.Model
	ready    bool
	width    int
	height   int
}

// New creates the model. Saved files are written to outDir.
func New(runner Runner, outDir string) Model {
	return Model{
		runner:  runner,
		outDir:  outDir,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(busyStyle)),
	}
}

// Init loads the trading calendar.
func (m Model) Init() tea.Cmd {
	runner := m.runner
	return func() tea.Msg {
		dates, err := runner.Dates(context.Background())
		return datesMsg{dates: dates, err: err}
	}
}

// Selected returns the date under the cursor, or "" before dates load.
func (m Model) Selected() domain.TradingDate {
	if m.cursor < 0 || m.cursor >= len(m.dates) {
		return ""
	}
	return m.dates[m.cursor]
}

// Result returns the last finished run, if any.
func (m Model) Result() *limitup.Result { return m.result }

// Update handles a message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case "up", "k":
			if !m.running && m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down", "j":
			if !m.running && m.cursor < len(m.dates)-1 {
				m.cursor++
			}
			return m, nil
		case "enter":
			return m.start()
		case "s":
			return m, m.save(false)
		case "x":
			return m, m.save(true)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpWidth := m.width - dateListWidth - 2
		vpHeight := m.height - 2
		if vpWidth < 1 {
			vpWidth = 1
		}
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(vpWidth, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
		} else {
			m.viewport.Width = vpWidth
			m.viewport.Height = vpHeight
		}
		m.viewport.SetContent(m.renderResult())
		return m, nil

	case datesMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.dates = make([]domain.TradingDate, len(msg.dates))
		for i, d := range msg.dates {
			m.dates[len(msg.dates)-1-i] = d
		}
		m.cursor = 0
		return m, nil

	case progressMsg:
		m.progress = limitup.Progress(msg)
		return m, waitForEvent(m.events)

	case resultMsg:
		m.running = false
		if m.cancel != nil {
			m.cancel()
		}
		m.cancel = nil
		m.events = nil
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.result = msg.res
		m.status = ""
		if m.ready {
			m.viewport.SetContent(m.renderResult())
			m.viewport.GotoTop()
		}
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.status = "已保存 " + msg.path
		}
		return m, nil

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

// start launches a run for the selected date. Progress and the final result
// arrive as messages read from m.events.
func (m Model) start() (tea.Model, tea.Cmd) {
	date := m.Selected()
	if m.running || date == "" {
		return m, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan tea.Msg, 16)
	m.running = true
	m.cancel = cancel
	m.events = events
	m.progress = limitup.Progress{}
	m.err = nil
	m.status = ""

	runner := m.runner
	go func() {
		send := func(msg tea.Msg) {
			select {
			case events <- msg:
			case <-ctx.Done():
			}
		}
		res, err := runner.Run(ctx, string(date), func(p limitup.Progress) { send(progressMsg(p)) })
		send(resultMsg{res: res, err: err})
	}()
	return m, tea.Batch(waitForEvent(events), m.spinner.Tick)
}

func waitForEvent(events chan tea.Msg) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg { return <-events }
}

// save writes the last result as CSV, or as XLSX when xlsx is set.
func (m Model) save(xlsx bool) tea.Cmd {
	res := m.result
	if res == nil || m.running {
		return nil
	}
	dir := m.outDir
	return func() tea.Msg {
		name := report.CSVFilename(res.Date)
		if xlsx {
			name = report.XLSXFilename(res.Date)
		}
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			return savedMsg{err: fmt.Errorf("creating %s: %w", path, err)}
		}
		if xlsx {
			err = report.WriteXLSX(f, res)
		} else {
			err = report.WriteCSV(f, res.Counts)
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return savedMsg{err: fmt.Errorf("writing %s: %w", path, err)}
		}
		return savedMsg{path: path}
	}
}

// View renders the model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := " 涨停板连板统计"
	if d := m.Selected(); d != "" {
		title += "    " + string(d)
	}
	header := headerStyle.Render(padOrTrunc(title, m.width))

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.renderDates(), "  ", m.renderMain())

	footerText := " ↑/↓ 选择日期  enter 开始分析  s 保存CSV  x 保存Excel  q 退出"
	footer := footerStyle.Render(padOrTrunc(footerText, m.width))

	return header + "\n" + body + "\n" + footer
}

func (m Model) renderDates() string {
	height := m.height - 2
	if height < 1 {
		height = 1
	}
	// Keep the cursor visible.
	start := 0
	if m.cursor >= height {
		start = m.cursor - height + 1
	}
	var lines []string
	for i := start; i < len(m.dates) && len(lines) < height; i++ {
		label := padOrTrunc(" "+string(m.dates[i]), dateListWidth)
		if i == m.cursor {
			lines = append(lines, dateSelStyle.Render(label))
		} else {
			lines = append(lines, dateStyle.Render(label))
		}
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", dateListWidth))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderMain() string {
	var top string
	switch {
	case m.running:
		p := m.progress
		top = fmt.Sprintf("%s 正在获取数据并分析... %d/%d %s", m.spinner.View(), p.Done, p.Total, p.Symbol)
	case m.err != nil:
		top = errorStyle.Render("错误: " + m.err.Error())
	case m.status != "":
		top = statusStyle.Render(m.status)
	case len(m.dates) == 0:
		top = "加载交易日历..."
	case m.result == nil:
		top = "按 enter 开始分析"
	}
	if m.result == nil || m.running {
		return top
	}
	if top == "" {
		return m.viewport.View()
	}
	return top + "\n" + m.viewport.View()
}

func (m Model) renderResult() string {
	if m.result == nil {
		return ""
	}
	return dashboard.Report(m.result, chartWidth) + "\n\n" + dashboard.Instruments(m.result, 0)
}

func padOrTrunc(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}
