package nljoin

import (
	"fmt"
	"math"
	"strings"
)

// JoinKind selects which rows a join emits.
type JoinKind uint8

const (
	InnerJoin JoinKind = iota // only matching pairs
	LeftJoin                  // every left row, unmatched ones paired with NoMatch
	FullJoin                  // expressible, but rejected by the nested-loop path
)

// NoMatch is the right index reported for a left row without any match.
const NoMatch int32 = math.MinInt32

// MaxRows is the largest row count a table may have; row indices are int32.
const MaxRows = math.MaxInt32

func (k JoinKind) String() string {
	switch k {
	case InnerJoin:
		return "inner"
	case LeftJoin:
		return "left"
	case FullJoin:
		return "full"
	default:
		return fmt.Sprintf("JoinKind(%d)", uint8(k))
	}
}

// Supported reports whether the nested-loop join can execute this kind.
func (k JoinKind) Supported() bool {
	return k == InnerJoin || k == LeftJoin
}

// ParseJoinKind converts a user-supplied name like "inner" or "LEFT".
func ParseJoinKind(s string) (JoinKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inner", "":
		return InnerJoin, nil
	case "left", "left outer":
		return LeftJoin, nil
	case "full", "full outer", "outer":
		return FullJoin, nil
	default:
		return 0, fmt.Errorf("unknown join kind %q", s)
	}
}

// IndexPairs holds the result of a join: Left[i] matched Right[i].
// Both slices always have the same length and are owned by the caller.
type IndexPairs struct {
	Left  []int32
	Right []int32
}

// Len returns the number of matched pairs.
func (p IndexPairs) Len() int {
	return len(p.Left)
}

// Swap returns the pairs with the roles of the two sides exchanged.
func (p IndexPairs) Swap() IndexPairs {
	return IndexPairs{Left: p.Right, Right: p.Left}
}

// EmptyPairs returns a zero-length, non-nil result.
func EmptyPairs() IndexPairs {
	return IndexPairs{Left: []int32{}, Right: []int32{}}
}
