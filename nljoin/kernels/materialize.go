package kernels

import (
	"fmt"

	"github.com/wbrown/janus-nljoin/nljoin"
	"github.com/wbrown/janus-nljoin/nljoin/device"
	"github.com/wbrown/janus-nljoin/nljoin/matcher"
	"github.com/wbrown/janus-nljoin/nljoin/table"
)

// MaterializeKernelName identifies the materializing kernel.
const MaterializeKernelName = "nested_loop_join_materialize"

// DefaultCacheSize is the number of pairs a block buffers before flushing.
const DefaultCacheSize = 64

// MaterializeKernel writes every matching (outer, inner) pair into
// OutLeft/OutRight.
//
// Each block collects pairs in a local cache of CacheSize entries and
// reserves output slots for a full cache with one fetch-and-add on Cursor.
// Slots at or past the buffer capacity are not written, but Cursor still
// counts them, so after the launch Cursor holds the true number of output
// rows and a value above capacity means the buffers were too small.
//
// With Flip set, outer indices go to OutRight and inner indices to OutLeft;
// a caller that swapped its operands gets pairs in its original orientation.
type MaterializeKernel struct {
	Outer     table.View
	Inner     table.View
	Matcher   matcher.RowMatcher
	Kind      nljoin.JoinKind
	OutLeft   *device.IndexBuffer
	OutRight  *device.IndexBuffer
	Cursor    *device.Counter
	Flip      bool
	CacheSize int
}

var _ device.Kernel = (*MaterializeKernel)(nil)

// NewMaterializeKernel validates its arguments and builds the kernel.
func NewMaterializeKernel(
	outer, inner table.View,
	m matcher.RowMatcher,
	kind nljoin.JoinKind,
	outLeft, outRight *device.IndexBuffer,
	cursor *device.Counter,
	flip bool,
	cacheSize int,
) (*MaterializeKernel, error) {
	if !kind.Supported() {
		return nil, nljoin.UnsupportedJoinKind(kind)
	}
	if outLeft == nil || outRight == nil {
		return nil, fmt.Errorf("materialize: output buffers are required")
	}
	if outLeft.Cap() != outRight.Cap() {
		return nil, fmt.Errorf("materialize: output buffers differ in capacity: %d vs %d", outLeft.Cap(), outRight.Cap())
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return &MaterializeKernel{
		Outer:     outer,
		Inner:     inner,
		Matcher:   m,
		Kind:      kind,
		OutLeft:   outLeft,
		OutRight:  outRight,
		Cursor:    cursor,
		Flip:      flip,
		CacheSize: cacheSize,
	}, nil
}

func (k *MaterializeKernel) Name() string {
	return MaterializeKernelName
}

// Resources: the pair cache plus its fill counter live in shared memory.
func (k *MaterializeKernel) Resources() device.Resources {
	return device.Resources{SharedMemBytes: k.CacheSize*8 + 8, RegistersPerThread: 40}
}

func (k *MaterializeKernel) Run(b device.Block) error {
	outerRows := k.Outer.NumRows()
	innerRows := k.Inner.NumRows()
	cache := newPairCache(k.CacheSize)

	b.EachRow(outerRows, func(_, row int) bool {
		found := false
		for inner := 0; inner < innerRows; inner++ {
			if !k.Matcher.Matches(k.Outer, k.Inner, row, inner) {
				continue
			}
			found = true
			if cache.push(int32(row), int32(inner)) {
				k.flush(cache)
			}
		}
		if !found && k.Kind == nljoin.LeftJoin {
			if cache.push(int32(row), nljoin.NoMatch) {
				k.flush(cache)
			}
		}
		return true
	})

	if cache.n > 0 {
		k.flush(cache)
	}
	return nil
}

// flush reserves len(cache) slots and copies the cached pairs into the
// output buffers, dropping pairs that fall past capacity.
func (k *MaterializeKernel) flush(c *pairCache) {
	capacity := int64(k.OutLeft.Cap())
	offset := k.Cursor.FetchAdd(int64(c.n))

	outer, inner := k.OutLeft, k.OutRight
	if k.Flip {
		outer, inner = k.OutRight, k.OutLeft
	}
	for i := 0; i < c.n; i++ {
		slot := offset + int64(i)
		if slot >= capacity {
			break
		}
		outer.Store(int(slot), c.outer[i])
		inner.Store(int(slot), c.inner[i])
	}
	c.n = 0
}

// pairCache is the block-local output cache.
type pairCache struct {
	outer []int32
	inner []int32
	n     int
}

func newPairCache(size int) *pairCache {
	return &pairCache{
		outer: make([]int32, size),
		inner: make([]int32, size),
	}
}

// push appends a pair and reports whether the cache is now full.
func (c *pairCache) push(outer, inner int32) bool {
	c.outer[c.n] = outer
	c.inner[c.n] = inner
	c.n++
	return c.n == len(c.outer)
}
