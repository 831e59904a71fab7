package matcher

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-nljoin/nljoin"
	"github.com/wbrown/janus-nljoin/nljoin/table"
)

// Condition compares column Left of the left table with column Right of the
// right table, e.g. left.start <= right.ts.
type Condition struct {
	Left  int
	Op    nljoin.CompareOp
	Right int
}

// Conditional matches rows satisfying every condition. A NULL operand never
// satisfies a condition.
type Conditional struct {
	Conditions []Condition
}

var (
	_ RowMatcher = Conditional{}
	_ Validator  = Conditional{}
)

// Where builds a conditional matcher.
func Where(conds ...Condition) Conditional {
	return Conditional{Conditions: conds}
}

func (c Conditional) Matches(left, right table.View, l, r int) bool {
	for _, cond := range c.Conditions {
		lc := left.Column(cond.Left)
		rc := right.Column(cond.Right)
		if lc.IsNull(l) || rc.IsNull(r) {
			return false
		}
		if !cond.Op.Holds(nljoin.CompareValues(lc.Value(l), rc.Value(r))) {
			return false
		}
	}
	return true
}

func (c Conditional) Validate(left, right table.View) error {
	if len(c.Conditions) == 0 {
		return fmt.Errorf("conditional matcher has no conditions")
	}
	for i, cond := range c.Conditions {
		if !cond.Op.Valid() {
			return fmt.Errorf("condition %d: unknown comparison operator: %s", i, cond.Op)
		}
		if cond.Left < 0 || cond.Left >= left.NumColumns() {
			return fmt.Errorf("condition %d: left column %d out of range for %d columns", i, cond.Left, left.NumColumns())
		}
		if cond.Right < 0 || cond.Right >= right.NumColumns() {
			return fmt.Errorf("condition %d: right column %d out of range for %d columns", i, cond.Right, right.NumColumns())
		}
		lt, rt := left.Column(cond.Left).Type(), right.Column(cond.Right).Type()
		if !nljoin.Comparable(lt, rt) {
			return fmt.Errorf("condition %d: cannot compare %s with %s", i, lt, rt)
		}
	}
	return nil
}

func (c Conditional) String() string {
	parts := make([]string, len(c.Conditions))
	for i, cond := range c.Conditions {
		parts[i] = fmt.Sprintf("(%s left.%d right.%d)", cond.Op, cond.Left, cond.Right)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// parseOrder lists two-character operators first so "<=" is not read as "<".
var parseOrder = []nljoin.CompareOp{nljoin.OpLTE, nljoin.OpGTE, nljoin.OpNE, nljoin.OpEQ, nljoin.OpLT, nljoin.OpGT}

// ParseCondition reads an expression like "start<=ts", where the left
// operand names a column of left and the right operand a column of right.
func ParseCondition(left, right *table.Table, expr string) (Condition, error) {
	for _, op := range parseOrder {
		i := strings.Index(expr, string(op))
		if i < 0 {
			continue
		}
		lname := strings.TrimSpace(expr[:i])
		rname := strings.TrimSpace(expr[i+len(op):])
		cond := Condition{Left: left.ColumnIndex(lname), Op: op, Right: right.ColumnIndex(rname)}
		if cond.Left < 0 {
			return Condition{}, fmt.Errorf("condition %q: left table has no column %s", expr, lname)
		}
		if cond.Right < 0 {
			return Condition{}, fmt.Errorf("condition %q: right table has no column %s", expr, rname)
		}
		return cond, nil
	}
	return Condition{}, fmt.Errorf("condition %q: no comparison operator", expr)
}
