package table

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-nljoin/nljoin"
)

// View is the read-only table interface consumed by matchers and kernels.
// Implementations must be safe for concurrent reads.
type View interface {
	NumRows() int
	NumColumns() int
	Column(i int) ColumnView
}

// Table is an ordered set of equal-length columns. It is never mutated after
// construction.
type Table struct {
	columns []*Column
	rows    int
	byName  map[string]int
}

var _ View = (*Table)(nil)

// New builds a table. All columns must have the same length and distinct names.
func New(columns ...*Column) (*Table, error) {
	t := &Table{
		columns: columns,
		byName:  make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if c == nil {
			return nil, fmt.Errorf("column %d is nil", i)
		}
		if i == 0 {
			t.rows = c.Len()
		} else if c.Len() != t.rows {
			return nil, fmt.Errorf("column %s has %d rows, expected %d", c.Name(), c.Len(), t.rows)
		}
		if _, dup := t.byName[c.Name()]; dup {
			return nil, fmt.Errorf("duplicate column name %s", c.Name())
		}
		t.byName[c.Name()] = i
	}
	if t.rows > nljoin.MaxRows {
		return nil, fmt.Errorf("table has %d rows, limit is %d", t.rows, nljoin.MaxRows)
	}
	return t, nil
}

// MustNew is New for tests and fixtures; it panics on error.
func MustNew(columns ...*Column) *Table {
	t, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// Empty returns a table with the given columns and zero rows.
func Empty(schema Schema) *Table {
	cols := make([]*Column, len(schema))
	for i, f := range schema {
		cols[i], _ = NewColumn(f.Name, f.Type, nil)
	}
	return MustNew(cols...)
}

func (t *Table) NumRows() int    { return t.rows }
func (t *Table) NumColumns() int { return len(t.columns) }

// Column returns column i.
func (t *Table) Column(i int) ColumnView {
	return t.columns[i]
}

// Columns returns the concrete columns in order.
func (t *Table) Columns() []*Column {
	out := make([]*Column, len(t.columns))
	copy(out, t.columns)
	return out
}

// ColumnIndex returns the position of the named column or -1.
func (t *Table) ColumnIndex(name string) int {
	if i, ok := t.byName[name]; ok {
		return i
	}
	return -1
}

// ColumnByName returns the named column or nil.
func (t *Table) ColumnByName(name string) *Column {
	if i, ok := t.byName[name]; ok {
		return t.columns[i]
	}
	return nil
}

// Field describes one column of a schema.
type Field struct {
	Name string
	Type nljoin.ValueType
}

// Schema is the ordered list of column descriptions.
type Schema []Field

func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = f.Name + ":" + f.Type.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Schema returns the table's column names and types.
func (t *Table) Schema() Schema {
	s := make(Schema, len(t.columns))
	for i, c := range t.columns {
		s[i] = Field{Name: c.Name(), Type: c.Type()}
	}
	return s
}

// SchemaOf extracts the schema of any view.
func SchemaOf(v View) Schema {
	if t, ok := v.(*Table); ok {
		return t.Schema()
	}
	s := make(Schema, v.NumColumns())
	for i := range s {
		c := v.Column(i)
		s[i] = Field{Name: c.Name(), Type: c.Type()}
	}
	return s
}
