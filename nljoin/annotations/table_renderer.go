package annotations

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// TableRenderer provides pretty-printing for join operands
type TableRenderer struct {
	useColor bool
}

// NewTableRenderer creates a new table renderer
func NewTableRenderer(useColor bool) *TableRenderer {
	return &TableRenderer{useColor: useColor}
}

// RenderTable renders column names and a row count, e.g. Table([id name], 4 Rows)
func (r *TableRenderer) RenderTable(columns []string, rowCount int) string {
	colList := strings.Join(columns, " ")

	if r.useColor {
		return fmt.Sprintf("%s%s%s%s%s",
			color.BlueString("Table(["),
			color.CyanString(colList),
			color.BlueString("], "),
			r.colorizeCount("Rows", rowCount),
			color.BlueString(")"))
	}

	return fmt.Sprintf("Table([%s], %d Rows)", colList, rowCount)
}

// colorizeCount formats a count with color based on size
func (r *TableRenderer) colorizeCount(label string, count int) string {
	if !r.useColor {
		return fmt.Sprintf("%d %s", count, label)
	}

	countStr := fmt.Sprintf("%d", count)

	switch {
	case count == 0:
		countStr = color.RedString(countStr)
	case count < 100:
		countStr = color.GreenString(countStr)
	case count < 10000:
		countStr = color.YellowString(countStr)
	default:
		countStr = color.RedString(countStr)
	}

	return fmt.Sprintf("%s %s", countStr, label)
}
