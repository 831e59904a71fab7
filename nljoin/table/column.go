// Package table provides the read-only columnar tables joined by the
// nested-loop executor.
package table

import (
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/wbrown/janus-nljoin/nljoin"
)

// ColumnView is read access to one column.
type ColumnView interface {
	Name() string
	Type() nljoin.ValueType
	Len() int
	IsNull(row int) bool
	Value(row int) nljoin.Value
}

// Column is an ordered sequence of typed values. NULL rows are tracked in a
// roaring bitmap; a column without NULLs carries an empty bitmap.
type Column struct {
	name   string
	typ    nljoin.ValueType
	values []nljoin.Value
	nulls  *roaring.Bitmap
}

var _ ColumnView = (*Column)(nil)

// NewColumn builds a column of type typ. A nil entry in values is NULL; every
// other entry must have type typ (int is widened to int64).
func NewColumn(name string, typ nljoin.ValueType, values []nljoin.Value) (*Column, error) {
	c := &Column{
		name:   name,
		typ:    typ,
		values: make([]nljoin.Value, len(values)),
		nulls:  roaring.New(),
	}
	for i, v := range values {
		if v == nil {
			c.nulls.Add(uint32(i))
			continue
		}
		vt, err := nljoin.TypeOf(v)
		if err != nil {
			return nil, fmt.Errorf("column %s row %d: %w", name, i, err)
		}
		if vt != typ {
			return nil, fmt.Errorf("column %s row %d: expected %s value, got %s", name, i, typ, vt)
		}
		if iv, ok := v.(int); ok {
			v = int64(iv)
		}
		c.values[i] = v
	}
	return c, nil
}

// NewColumnWithNulls builds a column whose NULL rows are given by nulls.
// Values at NULL positions are ignored.
func NewColumnWithNulls(name string, typ nljoin.ValueType, values []nljoin.Value, nulls *roaring.Bitmap) (*Column, error) {
	if nulls == nil {
		nulls = roaring.New()
	}
	if !nulls.IsEmpty() && int(nulls.Maximum()) >= len(values) {
		return nil, fmt.Errorf("column %s: null bitmap references row %d of %d", name, nulls.Maximum(), len(values))
	}
	cleaned := make([]nljoin.Value, len(values))
	for i, v := range values {
		if nulls.Contains(uint32(i)) {
			continue
		}
		cleaned[i] = v
	}
	c, err := NewColumn(name, typ, cleaned)
	if err != nil {
		return nil, err
	}
	c.nulls.Or(nulls)
	return c, nil
}

// NewInt64Column builds a non-nullable int column.
func NewInt64Column(name string, values []int64) *Column {
	c := &Column{name: name, typ: nljoin.TypeInt, values: make([]nljoin.Value, len(values)), nulls: roaring.New()}
	for i, v := range values {
		c.values[i] = v
	}
	return c
}

// NewFloat64Column builds a non-nullable float column.
func NewFloat64Column(name string, values []float64) *Column {
	c := &Column{name: name, typ: nljoin.TypeFloat, values: make([]nljoin.Value, len(values)), nulls: roaring.New()}
	for i, v := range values {
		c.values[i] = v
	}
	return c
}

// NewStringColumn builds a non-nullable string column.
func NewStringColumn(name string, values []string) *Column {
	c := &Column{name: name, typ: nljoin.TypeString, values: make([]nljoin.Value, len(values)), nulls: roaring.New()}
	for i, v := range values {
		c.values[i] = v
	}
	return c
}

// NewBoolColumn builds a non-nullable bool column.
func NewBoolColumn(name string, values []bool) *Column {
	c := &Column{name: name, typ: nljoin.TypeBool, values: make([]nljoin.Value, len(values)), nulls: roaring.New()}
	for i, v := range values {
		c.values[i] = v
	}
	return c
}

// NewTimeColumn builds a non-nullable time column.
func NewTimeColumn(name string, values []time.Time) *Column {
	c := &Column{name: name, typ: nljoin.TypeTime, values: make([]nljoin.Value, len(values)), nulls: roaring.New()}
	for i, v := range values {
		c.values[i] = v
	}
	return c
}

func (c *Column) Name() string           { return c.name }
func (c *Column) Type() nljoin.ValueType { return c.typ }
func (c *Column) Len() int               { return len(c.values) }

// IsNull reports whether row holds NULL.
func (c *Column) IsNull(row int) bool {
	return c.nulls.Contains(uint32(row))
}

// Value returns the value at row, nil for NULL.
func (c *Column) Value(row int) nljoin.Value {
	return c.values[row]
}

// NullCount returns the number of NULL rows.
func (c *Column) NullCount() int {
	return int(c.nulls.GetCardinality())
}

// Nulls returns a copy of the NULL bitmap.
func (c *Column) Nulls() *roaring.Bitmap {
	return c.nulls.Clone()
}
