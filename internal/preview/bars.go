package preview

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/verte-zerg/sparcsviz/internal/chartspec"
	"github.com/verte-zerg/sparcsviz/internal/model"
)

const (
	sparkChars          = " .:-=+*#%@"
	terminalWidthBackup = 80
	minBarWidth         = 10

	barFull  = "█"
	barMuted = "░"
)

// Values returns the numeric values of column name. Non-numeric cells are
// skipped.
func Values(tbl *model.ResultTable, name string) []float64 {
	out := make([]float64, 0, tbl.Len())
	for i := 0; i < tbl.Len(); i++ {
		if f, ok := model.ToFloat(tbl.Value(i, name)); ok {
			out = append(out, f)
		}
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := values[0], values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// Bar is one labelled bar of a horizontal bar preview.
type Bar struct {
	Label     string
	Value     float64
	Highlight bool
}

// RenderBars draws bars scaled to the largest value. A non-positive width
// uses the terminal width.
func RenderBars(w io.Writer, bars []Bar, width int) error {
	if width <= 0 {
		width = terminalWidth()
	}
	labelWidth, valueWidth := 0, 0
	maxVal := 0.0
	for _, b := range bars {
		labelWidth = max(labelWidth, runewidth.StringWidth(b.Label))
		valueWidth = max(valueWidth, runewidth.StringWidth(barValue(b.Value)))
		maxVal = math.Max(maxVal, b.Value)
	}
	barWidth := BarWidthFor(width, labelWidth, valueWidth)
	for _, b := range bars {
		n := 0
		if maxVal > 0 && b.Value > 0 {
			n = int(math.Round(b.Value / maxVal * float64(barWidth)))
		}
		glyph := barMuted
		if b.Highlight {
			glyph = barFull
		}
		line := fmt.Sprintf("%s %s %s",
			runewidth.FillRight(b.Label, labelWidth),
			runewidth.FillLeft(barValue(b.Value), valueWidth),
			strings.Repeat(glyph, n))
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	return nil
}

// BarWidthFor computes the room left for bars on a line of totalWidth.
func BarWidthFor(totalWidth, labelWidth, valueWidth int) int {
	if totalWidth <= 0 {
		return minBarWidth
	}
	return max(totalWidth-labelWidth-valueWidth-2, minBarWidth)
}

// RenderChart previews a unit bar chart row by row. The color channel is
// evaluated against st and rows whose color condition holds are drawn
// solid. Aggregated or non-bar charts are rejected.
func RenderChart(w io.Writer, ch *chartspec.Chart, st chartspec.State, width int) error {
	if ch.MarkType() != chartspec.MarkBar {
		return fmt.Errorf("preview supports bar marks, got %s", ch.MarkType())
	}
	label, value, err := barAxes(ch)
	if err != nil {
		return err
	}
	color, hasColor := ch.Channel(chartspec.Color)
	tbl := ch.Data()
	bars := make([]Bar, 0, tbl.Len())
	for _, row := range tbl.Rows() {
		v, _ := model.ToFloat(row[value])
		bar := Bar{Label: labelValue(row[label]), Value: v, Highlight: true}
		if hasColor {
			if pred, _, _, ok := color.Condition(); ok {
				holds, err := pred.Holds(row, st)
				if err != nil {
					return err
				}
				bar.Highlight = holds
			}
		}
		bars = append(bars, bar)
	}
	return RenderBars(w, bars, width)
}

func barAxes(ch *chartspec.Chart) (label, value string, err error) {
	var defs []chartspec.FieldDef
	for _, name := range []chartspec.ChannelName{chartspec.X, chartspec.Y} {
		c, ok := ch.Channel(name)
		if !ok {
			return "", "", fmt.Errorf("bar preview needs x and y")
		}
		def, ok := c.FieldDef()
		if !ok || def.Aggregate != "" {
			return "", "", fmt.Errorf("channel %s is not a plain field", name)
		}
		defs = append(defs, def)
	}
	x, y := defs[0], defs[1]
	if x.Type == model.Quantitative && y.Type != model.Quantitative {
		return y.Field, x.Field, nil
	}
	return x.Field, y.Field, nil
}

func barValue(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return FormatValue(int64(v))
	}
	return FormatValue(v)
}

// labelValue renders a category without grouping separators, so years
// read as years.
func labelValue(v any) string {
	if v == nil {
		return nullCell
	}
	return fmt.Sprint(v)
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}
