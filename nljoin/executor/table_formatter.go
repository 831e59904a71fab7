package executor

import (
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/wbrown/janus-nljoin/nljoin"
	"github.com/wbrown/janus-nljoin/nljoin/table"
)

// TableFormatter renders tables and join results as markdown tables
type TableFormatter struct {
	// MaxWidth is the maximum width for a cell, 0 means unlimited
	MaxWidth int
	// TruncateString is appended to truncated cells
	TruncateString string
	// NullString is shown for NULL cells and unmatched indices
	NullString string
}

// NewTableFormatter creates a new table formatter with default settings
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{
		MaxWidth:       50,
		TruncateString: "...",
		NullString:     "null",
	}
}

// FormatTable formats a table as a markdown table
func (tf *TableFormatter) FormatTable(t table.View) string {
	if t == nil || t.NumColumns() == 0 {
		return "_Empty table_"
	}

	headers := columnNames(t)
	rows := make([][]string, t.NumRows())
	for r := range rows {
		row := make([]string, t.NumColumns())
		for c := range row {
			col := t.Column(c)
			if col.IsNull(r) {
				row[c] = tf.NullString
			} else {
				row[c] = tf.formatValue(col.Value(r))
			}
		}
		rows[r] = row
	}
	return tf.render(headers, rows)
}

// FormatPairs formats raw index pairs, one row per pair
func (tf *TableFormatter) FormatPairs(pairs nljoin.IndexPairs) string {
	rows := make([][]string, pairs.Len())
	for i := range rows {
		rows[i] = []string{tf.formatIndex(pairs.Left[i]), tf.formatIndex(pairs.Right[i])}
	}
	return tf.render([]string{"left", "right"}, rows)
}

func (tf *TableFormatter) render(headers []string, rows [][]string) string {
	if len(rows) == 0 {
		return fmt.Sprintf("_Columns: %v_\n\n_No rows_", headers)
	}

	tableString := &strings.Builder{}

	alignment := make([]tw.Align, len(headers))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	tbl := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	tbl.Header(headers)
	for _, row := range rows {
		tbl.Append(row)
	}
	tbl.Render()

	tableString.WriteString(fmt.Sprintf("\n_%d rows_\n", len(rows)))
	return tableString.String()
}

func (tf *TableFormatter) formatIndex(i int32) string {
	if i == nljoin.NoMatch {
		return tf.NullString
	}
	return fmt.Sprintf("%d", i)
}

// formatValue converts a value to a string representation
func (tf *TableFormatter) formatValue(val nljoin.Value) string {
	var s string
	switch v := val.(type) {
	case nil:
		return tf.NullString
	case string:
		s = v
	case int64:
		s = fmt.Sprintf("%d", v)
	case float64:
		s = fmt.Sprintf("%.2f", v)
	case bool:
		s = fmt.Sprintf("%t", v)
	case time.Time:
		s = v.Format("2006-01-02 15:04:05")
	case []byte:
		s = fmt.Sprintf("%x", v)
	default:
		s = fmt.Sprintf("%v", v)
	}
	if tf.MaxWidth > 0 && len(s) > tf.MaxWidth {
		s = s[:tf.MaxWidth] + tf.TruncateString
	}
	return s
}

// PrintTable prints a table to stdout
func PrintTable(t table.View) {
	fmt.Println(NewTableFormatter().FormatTable(t))
}

// TableString returns a markdown rendering of a table
func TableString(t table.View) string {
	return NewTableFormatter().FormatTable(t)
}
