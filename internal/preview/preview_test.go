package preview

import (
	"bytes"
	"strings"
	"testing"

	"github.com/verte-zerg/sparcsviz/internal/charts"
	"github.com/verte-zerg/sparcsviz/internal/chartspec"
	"github.com/verte-zerg/sparcsviz/internal/model"
)

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"Name", "Count"}
	rows := [][]string{
		{"Medicaid", "1,200"},
		{"Private", "35"},
	}
	lines := formatTable(headers, rows, map[int]bool{1: true})
	want := []string{
		"Name     Count",
		"──────── ─────",
		"Medicaid 1,200",
		"Private     35",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d: expected %q, got %q", i, want[i], lines[i])
		}
	}
}

func TestFormatTableWideRunes(t *testing.T) {
	lines := formatTable([]string{"X", "N"}, [][]string{{"日本", "1"}}, map[int]bool{1: true})
	if lines[0] != "X    N" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if lines[2] != "日本 1" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{int64(56600), "56,600"},
		{6.55, "6.55"},
		{1234.5, "1,234.50"},
		{"Medicare", "Medicare"},
		{nil, "-"},
	}
	for _, tc := range cases {
		if got := FormatValue(tc.in); got != tc.want {
			t.Fatalf("FormatValue(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderTableLimit(t *testing.T) {
	tbl := model.MustResultTable("by_year", []model.Column{
		{Name: "year", Type: model.Quantitative},
		{Name: "discharges", Type: model.Quantitative},
	}, []model.Row{
		{"year": 2018, "discharges": 58200},
		{"year": 2019, "discharges": 57100},
		{"year": 2020, "discharges": 56600},
	})
	var buf bytes.Buffer
	if err := RenderTable(&buf, tbl, 2); err != nil {
		t.Fatalf("RenderTable failed: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "by_year\n") {
		t.Fatalf("expected table name first, got %q", out)
	}
	if !strings.Contains(out, "58,200") || strings.Contains(out, "56,600") {
		t.Fatalf("expected only the first two rows, got %q", out)
	}
	if !strings.Contains(out, "(2 of 3 rows)") {
		t.Fatalf("expected truncation note, got %q", out)
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline([]float64{1, 2, 3}); got != " +@" {
		t.Fatalf("unexpected sparkline %q", got)
	}
	if got := Sparkline([]float64{2, 2}); got != "++" {
		t.Fatalf("unexpected flat sparkline %q", got)
	}
	if got := Sparkline(nil); got != "" {
		t.Fatalf("expected empty sparkline, got %q", got)
	}
}

func TestBarWidthFor(t *testing.T) {
	if got := BarWidthFor(80, 4, 6); got != 68 {
		t.Fatalf("expected 68, got %d", got)
	}
	if got := BarWidthFor(0, 4, 6); got != minBarWidth {
		t.Fatalf("expected min width %d, got %d", minBarWidth, got)
	}
	if got := BarWidthFor(20, 10, 10); got != minBarWidth {
		t.Fatalf("expected min width %d, got %d", minBarWidth, got)
	}
}

func TestRenderBars(t *testing.T) {
	var buf bytes.Buffer
	err := RenderBars(&buf, []Bar{
		{Label: "a", Value: 10, Highlight: true},
		{Label: "bb", Value: 5},
	}, 16)
	if err != nil {
		t.Fatalf("RenderBars failed: %v", err)
	}
	want := "a  10 ██████████\nbb  5 ░░░░░\n"
	if buf.String() != want {
		t.Fatalf("expected %q, got %q", want, buf.String())
	}
}

func TestRenderChartHighlightsOneYear(t *testing.T) {
	doc, err := charts.DemoHighlightBar(nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	var buf bytes.Buffer
	if err := RenderChart(&buf, doc.Charts()[0], chartspec.State{}, 80); err != nil {
		t.Fatalf("RenderChart failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 10 {
		t.Fatalf("expected 10 bars, got %d", len(lines))
	}
	solid := 0
	for _, line := range lines {
		if strings.Contains(line, barFull) {
			solid++
			if !strings.HasPrefix(line, "2020 ") {
				t.Fatalf("unexpected highlighted line %q", line)
			}
		}
	}
	if solid != 1 {
		t.Fatalf("expected one highlighted bar, got %d", solid)
	}
}

func TestRenderChartRejectsOtherMarks(t *testing.T) {
	tbl := model.MustResultTable("t", []model.Column{{Name: "x", Type: model.Quantitative}}, []model.Row{{"x": 1}})
	ch := chartspec.NewChart(tbl, chartspec.MarkLine)
	if err := RenderChart(&bytes.Buffer{}, ch, chartspec.State{}, 80); err == nil {
		t.Fatalf("expected error for line mark")
	}
}
