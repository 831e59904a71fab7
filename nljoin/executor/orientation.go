package executor

import (
	"time"

	"github.com/wbrown/janus-nljoin/nljoin"
	"github.com/wbrown/janus-nljoin/nljoin/annotations"
	"github.com/wbrown/janus-nljoin/nljoin/matcher"
	"github.com/wbrown/janus-nljoin/nljoin/table"
	"go.uber.org/zap"
)

// orientation is the operand assignment actually executed. The outer table
// is partitioned across the grid; the inner table is scanned in full for
// every outer row.
type orientation struct {
	outer   table.View
	inner   table.View
	matcher matcher.RowMatcher
	// flip means outer is the caller's right table; the materializer then
	// writes into swapped buffer roles so results stay in caller orientation.
	flip bool
}

// orient picks the inner-loop table. For an inner join the smaller table
// goes inside, which minimizes total inner-loop iterations. A left join
// never swaps: its unmatched-row semantics belong to the literal left table.
// Swapping happens at most once.
func (r *joinRun) orient(left, right table.View, m matcher.RowMatcher) orientation {
	o := orientation{outer: left, inner: right, matcher: m}
	if r.kind == nljoin.InnerJoin && right.NumRows() > left.NumRows() {
		o = orientation{outer: right, inner: left, matcher: matcher.Flip(m), flip: true}
	}

	r.logger.Debug("orientation", zap.Bool("flipped", o.flip),
		zap.Int("outer.rows", o.outer.NumRows()), zap.Int("inner.rows", o.inner.NumRows()))
	r.collector.AddTiming(annotations.JoinOrientation, time.Now(), map[string]interface{}{
		"flipped":    o.flip,
		"outer.rows": o.outer.NumRows(),
		"inner.rows": o.inner.NumRows(),
	})
	return o
}

// degenerate answers joins whose inner table is empty without any launch.
// ok reports whether the result is final.
func (r *joinRun) degenerate(o orientation) (pairs nljoin.IndexPairs, ok bool, err error) {
	if o.inner.NumRows() != 0 {
		return nljoin.IndexPairs{}, false, nil
	}

	switch r.kind {
	case nljoin.InnerJoin:
		pairs = nljoin.EmptyPairs()
	case nljoin.LeftJoin:
		pairs = trivialLeftJoin(o.outer.NumRows())
	default:
		return nljoin.IndexPairs{}, false, r.unsupported()
	}

	r.collector.AddTiming(annotations.JoinDegenerate, time.Now(), map[string]interface{}{
		"kind":        r.kind.String(),
		"result.size": pairs.Len(),
	})
	return pairs, true, nil
}

// trivialLeftJoin pairs every left row with NoMatch.
func trivialLeftJoin(rows int) nljoin.IndexPairs {
	pairs := nljoin.IndexPairs{
		Left:  make([]int32, rows),
		Right: make([]int32, rows),
	}
	for i := 0; i < rows; i++ {
		pairs.Left[i] = int32(i)
		pairs.Right[i] = nljoin.NoMatch
	}
	return pairs
}
