// Package browseui provides the Bubble Tea browser over the catalog and
// the chart kinds built from it.
package browseui

import (
	"bytes"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/sparcsviz/internal/aggregate"
	"github.com/verte-zerg/sparcsviz/internal/charts"
	"github.com/verte-zerg/sparcsviz/internal/chartspec"
	apperrors "github.com/verte-zerg/sparcsviz/internal/errors"
	"github.com/verte-zerg/sparcsviz/internal/model"
	"github.com/verte-zerg/sparcsviz/internal/preview"
)

const (
	tabTables = iota
	tabCharts
	tabJSON
)

const fallbackWidth = 80

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	kindStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Model implements the Bubble Tea browser.
type Model struct {
	catalog *aggregate.Catalog

	tables   []string
	tableIdx int
	kinds    []charts.Kind
	kindIdx  int
	params   map[string]charts.Params

	tabs      []string
	activeTab int
	viewports []viewport.Model
	dataTable table.Model

	width  int
	height int

	errMsg string

	paramMode  bool
	paramInput textinput.Model
	paramError string
}

// NewModel constructs a browser over cat.
func NewModel(cat *aggregate.Catalog) *Model {
	m := &Model{
		catalog: cat,
		tables:  cat.Names(),
		kinds:   charts.Describe(),
		params:  map[string]charts.Params{},
		tabs:    []string{"Tables", "Charts", "JSON"},
	}
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
	m.paramInput = textinput.New()
	m.paramInput.Prompt = "Params: "
	m.paramInput.Placeholder = "highlight=2020&limit=10"
	m.paramInput.Cursor.SetMode(cursor.CursorBlink)
	m.dataTable = table.New(table.WithStyles(dataTableStyles()), table.WithFocused(true))
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.paramMode {
			return m.updateParams(msg)
		}
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "[":
			m.step(-1)
			return m, nil
		case "]":
			m.step(1)
			return m, nil
		case "/":
			if m.activeTab == tabTables {
				return m, nil
			}
			m.paramMode = true
			m.paramError = ""
			m.paramInput.SetValue(encodeParams(m.params[m.kindName()]))
			return m, m.paramInput.Focus()
		case "g", "home":
			if m.activeTab == tabTables {
				m.dataTable.GotoTop()
			} else {
				m.viewports[m.activeTab].GotoTop()
			}
			return m, nil
		case "G", "end":
			if m.activeTab == tabTables {
				m.dataTable.GotoBottom()
			} else {
				m.viewports[m.activeTab].GotoBottom()
			}
			return m, nil
		}
		if m.activeTab == tabTables {
			var cmd tea.Cmd
			m.dataTable, cmd = m.dataTable.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := max(lipgloss.Height(activeNavStyle.Render("X")), 1)
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if m.paramMode || m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = max(m.height-headerHeight-footerHeight, 1)
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = bodyHeight
	}
	m.dataTable.SetWidth(m.width)
	m.dataTable.SetHeight(max(bodyHeight-1, 1))
	m.paramInput.Width = max(10, m.width-lipgloss.Width(m.paramInput.Prompt)-2)
}

func (m *Model) moveTab(delta int) {
	m.activeTab = (m.activeTab + delta + len(m.tabs)) % len(m.tabs)
	if m.activeTab == tabTables {
		m.dataTable.Focus()
	} else {
		m.dataTable.Blur()
	}
	m.refresh()
}

// step moves to the previous or next table or kind, wrapping around.
func (m *Model) step(delta int) {
	if m.activeTab == tabTables {
		if len(m.tables) > 0 {
			m.tableIdx = (m.tableIdx + delta + len(m.tables)) % len(m.tables)
		}
	} else if len(m.kinds) > 0 {
		m.kindIdx = (m.kindIdx + delta + len(m.kinds)) % len(m.kinds)
	}
	m.refresh()
}

func (m *Model) kindName() string {
	if len(m.kinds) == 0 {
		return ""
	}
	return m.kinds[m.kindIdx].Name
}

func (m *Model) viewWidth() int {
	if m.width <= 0 {
		return fallbackWidth
	}
	return m.width
}

// refresh rebuilds the content of every tab for the current selection.
func (m *Model) refresh() {
	m.errMsg = ""
	m.refreshTable()
	doc, err := m.build()
	if err != nil {
		m.errMsg = describeError(err)
		m.viewports[tabCharts].SetContent(m.renderKinds() + "\n\n" + errorStyle.Render(m.errMsg))
		m.viewports[tabJSON].SetContent(errorStyle.Render(m.errMsg))
		return
	}
	m.viewports[tabCharts].SetContent(m.renderKinds() + "\n\n" + renderChartPreview(doc, m.viewWidth()))
	pretty, err := doc.Pretty()
	if err != nil {
		m.errMsg = describeError(err)
		m.viewports[tabJSON].SetContent(errorStyle.Render(m.errMsg))
		return
	}
	m.viewports[tabJSON].SetContent(string(pretty))
}

func (m *Model) build() (*chartspec.Document, error) {
	name := m.kindName()
	if name == "" {
		return nil, fmt.Errorf("no chart kinds registered")
	}
	return charts.Build(m.catalog, name, m.params[name])
}

func (m *Model) refreshTable() {
	if len(m.tables) == 0 {
		m.dataTable.SetRows(nil)
		m.dataTable.SetColumns(nil)
		return
	}
	tbl, ok := m.catalog.Table(m.tables[m.tableIdx])
	if !ok {
		return
	}
	cols, rows := tableData(tbl)
	// Rows must shrink before columns do, or the table indexes past the
	// end of a shorter row while rendering.
	m.dataTable.SetRows(nil)
	m.dataTable.SetColumns(cols)
	m.dataTable.SetRows(rows)
	m.dataTable.GotoTop()
}

func tableData(tbl *model.ResultTable) ([]table.Column, []table.Row) {
	cols := tbl.Columns()
	columns := make([]table.Column, len(cols))
	for i, c := range cols {
		columns[i] = table.Column{Title: c.Name, Width: runewidth.StringWidth(c.Name)}
	}
	rows := make([]table.Row, tbl.Len())
	for i := range rows {
		row := make(table.Row, len(cols))
		for j, c := range cols {
			row[j] = preview.FormatValue(tbl.Value(i, c.Name))
			columns[j].Width = max(columns[j].Width, runewidth.StringWidth(row[j]))
		}
		rows[i] = row
	}
	return columns, rows
}

func (m *Model) renderKinds() string {
	lines := make([]string, 0, len(m.kinds))
	for i, k := range m.kinds {
		line := fmt.Sprintf("  %-20s %s", k.Name, k.Description)
		if i == m.kindIdx {
			line = kindStyle.Render("> " + line[2:])
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// renderChartPreview draws the first bar chart of doc. Documents without
// one get a structural summary.
func renderChartPreview(doc *chartspec.Document, width int) string {
	for _, ch := range doc.Charts() {
		if ch.MarkType() != chartspec.MarkBar {
			continue
		}
		var buf bytes.Buffer
		if err := preview.RenderChart(&buf, ch, chartspec.State{}, width); err != nil {
			continue
		}
		return strings.TrimRight(buf.String(), "\n")
	}
	marks := map[string]int{}
	for _, ch := range doc.Charts() {
		marks[string(ch.MarkType())]++
	}
	names := make([]string, 0, len(marks))
	for mark, n := range marks {
		names = append(names, fmt.Sprintf("%s×%d", mark, n))
	}
	sort.Strings(names)
	out := []string{fmt.Sprintf("%d views: %s", len(doc.Charts()), strings.Join(names, ", "))}
	if all := doc.Charts(); len(all) > 0 {
		data := all[0].Data()
		for _, c := range data.Columns() {
			if c.Type == model.Quantitative {
				out = append(out, fmt.Sprintf("%-12s %s", c.Name, preview.Sparkline(preview.Values(data, c.Name))))
			}
		}
	}
	return strings.Join(out, "\n")
}

func (m *Model) updateParams(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.paramMode = false
		m.paramError = ""
		m.paramInput.Blur()
		return m, nil
	case tea.KeyEnter:
		p, err := parseParams(m.paramInput.Value())
		if err != nil {
			m.paramError = err.Error()
			return m, nil
		}
		m.params[m.kindName()] = p
		m.paramMode = false
		m.paramError = ""
		m.paramInput.Blur()
		m.refresh()
		return m, nil
	}
	var cmd tea.Cmd
	m.paramInput, cmd = m.paramInput.Update(msg)
	return m, cmd
}

func parseParams(s string) (charts.Params, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	values, err := url.ParseQuery(s)
	if err != nil {
		return nil, fmt.Errorf("invalid params (use key=value&key=value)")
	}
	p := charts.Params{}
	for k, v := range values {
		if len(v) > 0 {
			p[k] = v[len(v)-1]
		}
	}
	return p, nil
}

func encodeParams(p charts.Params) string {
	values := url.Values{}
	for k, v := range p {
		values.Set(k, v)
	}
	return values.Encode()
}

func describeError(err error) string {
	if e, ok := apperrors.As(err); ok && len(e.Metadata) > 0 {
		keys := make([]string, 0, len(e.Metadata))
		for k := range e.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + e.Metadata[k]
		}
		return fmt.Sprintf("%s (%s)", err.Error(), strings.Join(parts, " "))
	}
	return err.Error()
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	var summary string
	if m.activeTab == tabTables {
		name := "none"
		rows := 0
		if len(m.tables) > 0 {
			name = m.tables[m.tableIdx]
			if tbl, ok := m.catalog.Table(name); ok {
				rows = tbl.Len()
			}
		}
		summary = fmt.Sprintf("Table: %s  rows=%s  (%d/%d)", name, preview.FormatValue(rows), m.tableIdx+1, len(m.tables))
	} else {
		summary = fmt.Sprintf("Kind: %s  params=%s", m.kindName(), encodeParams(m.params[m.kindName()]))
	}
	return padLines(m.renderTabs(), m.width) + "\n" + headerStyle.Render(truncateLine(summary, m.width))
}

func (m *Model) renderBody() string {
	if m.activeTab == tabTables {
		if len(m.tables) == 0 {
			return "No tables loaded."
		}
		return tableMutedStyle.Render(m.dataTable.View())
	}
	return m.viewports[m.activeTab].View()
}

func (m *Model) renderFooter() string {
	help := "Nav: left/right  Select: [ ]  Scroll: up/down/pgup/pgdn  Params: /  Quit: q"
	if m.activeTab == tabTables {
		help = "Nav: left/right  Table: [ ]  Scroll: up/down/pgup/pgdn  Quit: q"
	}
	if m.paramMode {
		line := m.paramInput.View()
		if m.paramError != "" {
			line += "  " + errorStyle.Render(m.paramError)
		}
		return headerStyle.Render("enter: apply  esc: cancel") + "\n" + line
	}
	if m.errMsg != "" {
		return headerStyle.Render(help) + "\n" + errorStyle.Render(truncateLine(m.errMsg, m.width))
	}
	return headerStyle.Render(help)
}

func dataTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}
