package table

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"
	"github.com/wbrown/janus-nljoin/nljoin"
)

// Gather builds a new table holding the rows of v selected by indices, in
// order. nljoin.NoMatch selects a row of NULLs. prefix is prepended to every
// column name so that both sides of a join can be gathered into one table.
func Gather(v View, indices []int32, prefix string) ([]*Column, error) {
	rows := v.NumRows()
	out := make([]*Column, v.NumColumns())
	for ci := range out {
		src := v.Column(ci)
		values := make([]nljoin.Value, len(indices))
		nulls := roaring.New()
		for i, idx := range indices {
			if idx == nljoin.NoMatch {
				nulls.Add(uint32(i))
				continue
			}
			if idx < 0 || int(idx) >= rows {
				return nil, fmt.Errorf("gather: index %d out of range for %d rows", idx, rows)
			}
			if src.IsNull(int(idx)) {
				nulls.Add(uint32(i))
				continue
			}
			values[i] = src.Value(int(idx))
		}
		col, err := NewColumnWithNulls(prefix+src.Name(), src.Type(), values, nulls)
		if err != nil {
			return nil, err
		}
		out[ci] = col
	}
	return out, nil
}

// GatherJoin materializes the rows described by a join result. Left columns
// are prefixed with leftPrefix, right columns with rightPrefix.
func GatherJoin(left, right View, pairs nljoin.IndexPairs, leftPrefix, rightPrefix string) (*Table, error) {
	if len(pairs.Left) != len(pairs.Right) {
		return nil, fmt.Errorf("gather: %d left indices but %d right indices", len(pairs.Left), len(pairs.Right))
	}
	lcols, err := Gather(left, pairs.Left, leftPrefix)
	if err != nil {
		return nil, err
	}
	rcols, err := Gather(right, pairs.Right, rightPrefix)
	if err != nil {
		return nil, err
	}
	return New(append(lcols, rcols...)...)
}
