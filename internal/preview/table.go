// Package preview renders result tables and charts as plain text for the
// terminal.
package preview

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/verte-zerg/sparcsviz/internal/model"
)

const nullCell = "-"

var printer = message.NewPrinter(language.English)

// FormatValue renders a cell value. Integers get thousands separators and
// floats two decimals.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return nullCell
	case int64:
		return printer.Sprintf("%d", x)
	case int:
		return printer.Sprintf("%d", x)
	case float64:
		return printer.Sprintf("%.2f", x)
	case string:
		return x
	}
	return fmt.Sprint(v)
}

// RenderTable writes tbl as an aligned text table. Quantitative columns are
// right aligned. A positive limit caps the number of rows shown.
func RenderTable(w io.Writer, tbl *model.ResultTable, limit int) error {
	cols := tbl.Columns()
	headers := make([]string, len(cols))
	rightAlign := map[int]bool{}
	for i, c := range cols {
		headers[i] = c.Name
		if c.Type == model.Quantitative {
			rightAlign[i] = true
		}
	}
	n := tbl.Len()
	if limit > 0 && limit < n {
		n = limit
	}
	rows := make([][]string, n)
	for i := 0; i < n; i++ {
		row := make([]string, len(cols))
		for j, c := range cols {
			row[j] = FormatValue(tbl.Value(i, c.Name))
		}
		rows[i] = row
	}

	if _, err := fmt.Fprintf(w, "%s\n", tbl.Name()); err != nil {
		return err
	}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if n < tbl.Len() {
		if _, err := printer.Fprintf(w, "(%d of %d rows)\n", n, tbl.Len()); err != nil {
			return err
		}
	}
	return nil
}

func formatTable(headers []string, rows [][]string, rightAlignCols map[int]bool) []string {
	colCount := len(headers)
	for _, row := range rows {
		if len(row) > colCount {
			colCount = len(row)
		}
	}
	if colCount == 0 {
		return nil
	}

	widths := make([]int, colCount)
	for i, header := range headers {
		widths[i] = runewidth.StringWidth(header)
	}
	for _, row := range rows {
		for i := 0; i < colCount && i < len(row); i++ {
			if w := runewidth.StringWidth(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	lines := make([]string, 0, len(rows)+2)
	lines = append(lines, formatRow(headers, widths, rightAlignCols))
	rule := make([]string, colCount)
	for i, w := range widths {
		rule[i] = strings.Repeat("─", w)
	}
	lines = append(lines, strings.Join(rule, " "))
	for _, row := range rows {
		lines = append(lines, formatRow(row, widths, rightAlignCols))
	}
	return lines
}

func formatRow(cells []string, widths []int, rightAlignCols map[int]bool) string {
	parts := make([]string, len(widths))
	for i, width := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		parts[i] = padCell(cell, width, rightAlignCols[i])
	}
	return strings.TrimRight(strings.Join(parts, " "), " ")
}

func padCell(cell string, width int, rightAlign bool) string {
	if rightAlign {
		return runewidth.FillLeft(cell, width)
	}
	return runewidth.FillRight(cell, width)
}
