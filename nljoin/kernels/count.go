// Package kernels holds the device code of the nested-loop join: a counting
// pass that sizes the output and a materializing pass that writes it.
//
// Both kernels partition the outer (left) table across the grid with a
// grid-stride loop and scan the whole inner (right) table for every outer
// row they own.
package kernels

import (
	"github.com/wbrown/janus-nljoin/nljoin"
	"github.com/wbrown/janus-nljoin/nljoin/device"
	"github.com/wbrown/janus-nljoin/nljoin/matcher"
	"github.com/wbrown/janus-nljoin/nljoin/table"
)

// CountKernelName identifies the counting kernel in launch plans and events.
const CountKernelName = "nested_loop_join_count"

// CountKernel counts the rows a join will emit without writing any index.
// Each block reduces its threads' counts locally and adds the block total to
// Count with a single atomic operation.
type CountKernel struct {
	Outer   table.View
	Inner   table.View
	Matcher matcher.RowMatcher
	Kind    nljoin.JoinKind
	Count   *device.Counter
}

var _ device.Kernel = (*CountKernel)(nil)

// NewCountKernel validates kind and builds the kernel.
func NewCountKernel(outer, inner table.View, m matcher.RowMatcher, kind nljoin.JoinKind, count *device.Counter) (*CountKernel, error) {
	if !kind.Supported() {
		return nil, nljoin.UnsupportedJoinKind(kind)
	}
	return &CountKernel{Outer: outer, Inner: inner, Matcher: m, Kind: kind, Count: count}, nil
}

func (k *CountKernel) Name() string {
	return CountKernelName
}

// Resources: one int64 of shared memory for the block reduction.
func (k *CountKernel) Resources() device.Resources {
	return device.Resources{SharedMemBytes: 8, RegistersPerThread: 32}
}

func (k *CountKernel) Run(b device.Block) error {
	outerRows := k.Outer.NumRows()
	innerRows := k.Inner.NumRows()

	var blockCount int64
	b.EachRow(outerRows, func(_, row int) bool {
		var matches int64
		for inner := 0; inner < innerRows; inner++ {
			if k.Matcher.Matches(k.Outer, k.Inner, row, inner) {
				matches++
			}
		}
		// An unmatched left row still produces one (row, NoMatch) pair.
		if matches == 0 && k.Kind == nljoin.LeftJoin {
			matches = 1
		}
		blockCount += matches
		return true
	})

	if blockCount > 0 {
		k.Count.FetchAdd(blockCount)
	}
	return nil
}
