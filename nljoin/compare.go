package nljoin

import (
	"bytes"
	"strings"
	"time"
)

// CompareValues compares two values and returns:
//
//	-1 if left < right
//	 0 if left == right
//	 1 if left > right
//
// nil sorts before any non-nil value. int64 and float64 compare numerically;
// any other type mismatch orders the left value first.
func CompareValues(left, right Value) int {
	if left == nil && right == nil {
		return 0
	}
	if left == nil {
		return -1
	}
	if right == nil {
		return 1
	}

	switch l := left.(type) {
	case int:
		return compareNumeric(int64(l), right)
	case int64:
		return compareNumeric(l, right)
	case float64:
		return compareFloat(l, right)
	case string:
		if r, ok := right.(string); ok {
			return strings.Compare(l, r)
		}
	case bool:
		if r, ok := right.(bool); ok {
			switch {
			case !l && r:
				return -1
			case l && !r:
				return 1
			}
			return 0
		}
	case time.Time:
		if r, ok := right.(time.Time); ok {
			switch {
			case l.Before(r):
				return -1
			case l.After(r):
				return 1
			}
			return 0
		}
	case []byte:
		if r, ok := right.([]byte); ok {
			return bytes.Compare(l, r)
		}
	}
	return -1
}

// compareNumeric compares an int64 with another numeric value
func compareNumeric(left int64, right Value) int {
	switch r := right.(type) {
	case int:
		return compareInt64s(left, int64(r))
	case int64:
		return compareInt64s(left, r)
	case float64:
		return compareFloats(float64(left), r)
	}
	return -1
}

// compareFloat compares a float64 with another numeric value
func compareFloat(left float64, right Value) int {
	switch r := right.(type) {
	case int:
		return compareFloats(left, float64(r))
	case int64:
		return compareFloats(left, float64(r))
	case float64:
		return compareFloats(left, r)
	}
	return -1
}

func compareInt64s(a, b int64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

func compareFloats(a, b float64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

// ValuesEqual checks if two non-nil values are equal. Mixed int64/float64
// operands compare numerically.
func ValuesEqual(a, b Value) bool {
	switch av := a.(type) {
	case int64:
		switch bv := b.(type) {
		case int64:
			return av == bv
		case int:
			return av == int64(bv)
		case float64:
			return float64(av) == bv
		}
		return false
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case int, float64:
		return a != nil && b != nil && CompareValues(a, b) == 0 && isNumeric(b)
	}
	return false
}

func isNumeric(v Value) bool {
	switch v.(type) {
	case int, int64, float64:
		return true
	}
	return false
}

// CompareOp represents comparison operators
type CompareOp string

const (
	OpEQ  CompareOp = "="
	OpNE  CompareOp = "!="
	OpLT  CompareOp = "<"
	OpLTE CompareOp = "<="
	OpGT  CompareOp = ">"
	OpGTE CompareOp = ">="
)

// Valid reports whether op is one of the known operators.
func (op CompareOp) Valid() bool {
	switch op {
	case OpEQ, OpNE, OpLT, OpLTE, OpGT, OpGTE:
		return true
	}
	return false
}

// Holds reports whether a CompareValues result satisfies op.
func (op CompareOp) Holds(cmp int) bool {
	switch op {
	case OpEQ:
		return cmp == 0
	case OpNE:
		return cmp != 0
	case OpLT:
		return cmp < 0
	case OpLTE:
		return cmp <= 0
	case OpGT:
		return cmp > 0
	case OpGTE:
		return cmp >= 0
	}
	return false
}

// Flip returns the operator that holds for (b, a) whenever op holds for (a, b).
func (op CompareOp) Flip() CompareOp {
	switch op {
	case OpLT:
		return OpGT
	case OpLTE:
		return OpGTE
	case OpGT:
		return OpLT
	case OpGTE:
		return OpLTE
	}
	return op
}
