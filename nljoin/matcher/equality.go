package matcher

import (
	"fmt"

	"github.com/wbrown/janus-nljoin/nljoin"
	"github.com/wbrown/janus-nljoin/nljoin/table"
)

// NullEquality controls whether two NULL keys are considered equal.
type NullEquality uint8

const (
	NullsUnequal NullEquality = iota // NULL never matches, the SQL default
	NullsEqual
)

// Equality matches rows whose key columns are pairwise equal.
// LeftKeys[i] of the left table is compared with RightKeys[i] of the right.
type Equality struct {
	LeftKeys  []int
	RightKeys []int
	Nulls     NullEquality
}

var (
	_ RowMatcher = Equality{}
	_ Validator  = Equality{}
)

// On builds an equality matcher from column names.
func On(left, right *table.Table, leftCols, rightCols []string) (Equality, error) {
	if len(leftCols) != len(rightCols) {
		return Equality{}, fmt.Errorf("join keys: %d left columns but %d right columns", len(leftCols), len(rightCols))
	}
	eq := Equality{
		LeftKeys:  make([]int, len(leftCols)),
		RightKeys: make([]int, len(rightCols)),
	}
	for i := range leftCols {
		eq.LeftKeys[i] = left.ColumnIndex(leftCols[i])
		if eq.LeftKeys[i] < 0 {
			return Equality{}, fmt.Errorf("join keys: left table has no column %s", leftCols[i])
		}
		eq.RightKeys[i] = right.ColumnIndex(rightCols[i])
		if eq.RightKeys[i] < 0 {
			return Equality{}, fmt.Errorf("join keys: right table has no column %s", rightCols[i])
		}
	}
	if err := eq.Validate(left, right); err != nil {
		return Equality{}, err
	}
	return eq, nil
}

func (e Equality) Matches(left, right table.View, l, r int) bool {
	for i, lk := range e.LeftKeys {
		lc := left.Column(lk)
		rc := right.Column(e.RightKeys[i])
		lnull, rnull := lc.IsNull(l), rc.IsNull(r)
		if lnull || rnull {
			if lnull && rnull && e.Nulls == NullsEqual {
				continue
			}
			return false
		}
		if !nljoin.ValuesEqual(lc.Value(l), rc.Value(r)) {
			return false
		}
	}
	return true
}

// Validate checks key arity, column bounds and key type compatibility.
func (e Equality) Validate(left, right table.View) error {
	if len(e.LeftKeys) == 0 {
		return fmt.Errorf("equality matcher has no key columns")
	}
	if len(e.LeftKeys) != len(e.RightKeys) {
		return fmt.Errorf("equality matcher has %d left keys but %d right keys", len(e.LeftKeys), len(e.RightKeys))
	}
	for i, lk := range e.LeftKeys {
		rk := e.RightKeys[i]
		if lk < 0 || lk >= left.NumColumns() {
			return fmt.Errorf("left key %d out of range for %d columns", lk, left.NumColumns())
		}
		if rk < 0 || rk >= right.NumColumns() {
			return fmt.Errorf("right key %d out of range for %d columns", rk, right.NumColumns())
		}
		lt, rt := left.Column(lk).Type(), right.Column(rk).Type()
		if !nljoin.Comparable(lt, rt) {
			return fmt.Errorf("key %d: cannot compare %s column %s with %s column %s",
				i, lt, left.Column(lk).Name(), rt, right.Column(rk).Name())
		}
	}
	return nil
}
