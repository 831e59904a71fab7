package executor

import (
	"context"
	"math/rand"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-nljoin/nljoin"
	"github.com/wbrown/janus-nljoin/nljoin/annotations"
	"github.com/wbrown/janus-nljoin/nljoin/device"
	"github.com/wbrown/janus-nljoin/nljoin/matcher"
	"github.com/wbrown/janus-nljoin/nljoin/table"
)

type pair struct{ l, r int32 }

func sortedPairs(p nljoin.IndexPairs) []pair {
	out := make([]pair, p.Len())
	for i := range out {
		out[i] = pair{p.Left[i], p.Right[i]}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].l != out[j].l {
			return out[i].l < out[j].l
		}
		return out[i].r < out[j].r
	})
	return out
}

// bruteForce is the reference nested loop.
func bruteForce(left, right table.View, m matcher.RowMatcher, kind nljoin.JoinKind) []pair {
	out := []pair{}
	for l := 0; l < left.NumRows(); l++ {
		found := false
		for r := 0; r < right.NumRows(); r++ {
			if m.Matches(left, right, l, r) {
				out = append(out, pair{int32(l), int32(r)})
				found = true
			}
		}
		if !found && kind == nljoin.LeftJoin {
			out = append(out, pair{int32(l), nljoin.NoMatch})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].l != out[j].l {
			return out[i].l < out[j].l
		}
		return out[i].r < out[j].r
	})
	return out
}

func newTestDevice(t *testing.T) *device.SimDevice {
	t.Helper()
	p := device.DefaultProfile()
	p.Multiprocessors = 4
	dev, err := device.NewSimDevice(p)
	require.NoError(t, err)
	t.Cleanup(dev.Close)
	return dev
}

func newTestExecutor(t *testing.T, dev device.Device, opts Options) *Executor {
	t.Helper()
	if opts.BlockSize == 0 {
		opts.BlockSize = 32
	}
	e, err := New(dev, opts)
	require.NoError(t, err)
	return e
}

func keyTable(name string, keys ...int64) *table.Table {
	return table.MustNew(table.NewInt64Column(name, keys))
}

var keyMatcher = matcher.Equality{LeftKeys: []int{0}, RightKeys: []int{0}}

func eventNames(events []annotations.Event) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return names
}

func TestJoin(t *testing.T) {
	dev := newTestDevice(t)
	e := newTestExecutor(t, dev, Options{})
	ctx := context.Background()

	left := keyTable("k", 1, 2, 2, 3)
	right := keyTable("k", 2, 2, 4)

	t.Run("Inner", func(t *testing.T) {
		pairs, err := e.InnerJoin(ctx, left, right, keyMatcher)
		require.NoError(t, err)
		assert.Equal(t, []pair{{1, 0}, {1, 1}, {2, 0}, {2, 1}}, sortedPairs(pairs))
	})

	t.Run("Left", func(t *testing.T) {
		pairs, err := e.LeftJoin(ctx, left, right, keyMatcher)
		require.NoError(t, err)
		assert.Equal(t, []pair{{0, nljoin.NoMatch}, {1, 0}, {1, 1}, {2, 0}, {2, 1}, {3, nljoin.NoMatch}}, sortedPairs(pairs))
	})

	t.Run("NoMatches", func(t *testing.T) {
		pairs, err := e.InnerJoin(ctx, keyTable("k", 1, 3), keyTable("k", 2, 4), keyMatcher)
		require.NoError(t, err)
		assert.NotNil(t, pairs.Left)
		assert.Zero(t, pairs.Len())
	})

	t.Run("JoinSize", func(t *testing.T) {
		n, err := e.JoinSize(ctx, left, right, keyMatcher, nljoin.InnerJoin)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		n, err = e.JoinSize(ctx, left, right, keyMatcher, nljoin.LeftJoin)
		require.NoError(t, err)
		assert.Equal(t, 6, n)
		n, err = e.JoinSize(ctx, left, keyTable("k"), keyMatcher, nljoin.LeftJoin)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		_, err = e.JoinSize(ctx, left, right, keyMatcher, nljoin.FullJoin)
		assert.ErrorIs(t, err, nljoin.ErrUnsupportedJoinKind)
	})

	assert.Zero(t, dev.Allocated(), "every buffer is released")
}

func TestJoinEmptyInner(t *testing.T) {
	dev := newTestDevice(t)
	e := newTestExecutor(t, dev, Options{})
	ctx := context.Background()
	left := keyTable("k", 5, 6, 7, 8, 9)
	empty := keyTable("k")

	t.Run("Inner", func(t *testing.T) {
		pairs, err := e.InnerJoin(ctx, left, empty, keyMatcher)
		require.NoError(t, err)
		assert.Zero(t, pairs.Len())
		assert.NotNil(t, pairs.Left)

		pairs, err = e.InnerJoin(ctx, empty, left, keyMatcher)
		require.NoError(t, err)
		assert.Zero(t, pairs.Len())
	})

	t.Run("Left", func(t *testing.T) {
		before := dev.Launches()
		pairs, err := e.LeftJoin(ctx, left, empty, keyMatcher)
		require.NoError(t, err)
		assert.Equal(t, []int32{0, 1, 2, 3, 4}, pairs.Left)
		assert.Equal(t, []int32{nljoin.NoMatch, nljoin.NoMatch, nljoin.NoMatch, nljoin.NoMatch, nljoin.NoMatch}, pairs.Right)
		assert.Equal(t, before, dev.Launches(), "no kernel runs")
	})

	t.Run("LeftWithEmptyLeft", func(t *testing.T) {
		pairs, err := e.LeftJoin(ctx, empty, left, keyMatcher)
		require.NoError(t, err)
		assert.Zero(t, pairs.Len())
	})

	t.Run("Full", func(t *testing.T) {
		_, err := e.Join(ctx, left, empty, keyMatcher, nljoin.FullJoin)
		assert.ErrorIs(t, err, nljoin.ErrUnsupportedJoinKind)
	})
}

func TestJoinUnsupportedKind(t *testing.T) {
	dev := newTestDevice(t)
	handler, events := annotations.Recorder()
	e := newTestExecutor(t, dev, Options{Handler: handler})

	_, err := e.Join(context.Background(), keyTable("k", 1), keyTable("k", 1), keyMatcher, nljoin.FullJoin)
	require.Error(t, err)
	assert.ErrorIs(t, err, nljoin.ErrUnsupportedJoinKind)
	assert.False(t, nljoin.IsDeviceFault(err))
	assert.Zero(t, dev.Launches())
	assert.Contains(t, eventNames(*events), annotations.ErrorJoinKind)
}

func TestJoinInvalidMatcher(t *testing.T) {
	e := newTestExecutor(t, newTestDevice(t), Options{})
	bad := matcher.Equality{LeftKeys: []int{3}, RightKeys: []int{0}}
	_, err := e.InnerJoin(context.Background(), keyTable("k", 1), keyTable("k", 1), bad)
	assert.Error(t, err)
}

func TestJoinOrientation(t *testing.T) {
	dev := newTestDevice(t)
	handler, events := annotations.Recorder()
	e := newTestExecutor(t, dev, Options{Handler: handler})
	ctx := context.Background()

	small := table.MustNew(
		table.NewInt64Column("k", []int64{1, 2}),
		table.NewInt64Column("lo", []int64{0, 10}),
	)
	big := keyTable("v", 0, 1, 2, 3, 5, 8, 11, 13)
	// Asymmetric matcher: equal keys, or the right value at or above lo.
	m := matcher.Func(func(left, right table.View, l, r int) bool {
		k := left.Column(0).Value(l).(int64)
		lo := left.Column(1).Value(l).(int64)
		v := right.Column(0).Value(r).(int64)
		return k == v || v >= lo+5
	})

	pairs, err := e.InnerJoin(ctx, small, big, m)
	require.NoError(t, err)
	assert.Equal(t, bruteForce(small, big, m, nljoin.InnerJoin), sortedPairs(pairs))

	var orientation annotations.Event
	for _, ev := range *events {
		if ev.Name == annotations.JoinOrientation {
			orientation = ev
		}
	}
	assert.Equal(t, true, orientation.Data["flipped"])
	assert.Equal(t, big.NumRows(), orientation.Data["outer.rows"])

	t.Run("LeftNeverSwaps", func(t *testing.T) {
		*events = nil
		pairs, err := e.LeftJoin(ctx, small, big, m)
		require.NoError(t, err)
		assert.Equal(t, bruteForce(small, big, m, nljoin.LeftJoin), sortedPairs(pairs))
		for _, ev := range *events {
			if ev.Name == annotations.JoinOrientation {
				assert.Equal(t, false, ev.Data["flipped"])
			}
		}
	})

	t.Run("OperandOrderDoesNotMatter", func(t *testing.T) {
		ab, err := e.InnerJoin(ctx, small, big, m)
		require.NoError(t, err)
		ba, err := e.InnerJoin(ctx, big, small, matcher.Flip(m))
		require.NoError(t, err)
		assert.Equal(t, sortedPairs(ab), sortedPairs(ba.Swap()))
	})
}

func TestJoinRetry(t *testing.T) {
	dev := newTestDevice(t)
	handler, events := annotations.Recorder()
	e := newTestExecutor(t, dev, Options{InitialCapacity: 1, Handler: handler})

	left := keyTable("k", 1, 2, 2, 3)
	right := keyTable("k", 2, 2, 4)
	pairs, err := e.InnerJoin(context.Background(), left, right, keyMatcher)
	require.NoError(t, err)
	assert.Equal(t, []pair{{1, 0}, {1, 1}, {2, 0}, {2, 1}}, sortedPairs(pairs))
	assert.Zero(t, dev.Allocated())

	var retries []annotations.Event
	var complete annotations.Event
	for _, ev := range *events {
		switch ev.Name {
		case annotations.JoinRetry:
			retries = append(retries, ev)
		case annotations.JoinComplete:
			complete = ev
		}
	}
	require.Len(t, retries, 1)
	assert.Equal(t, 1, retries[0].Data["capacity.old"])
	assert.Equal(t, 4, retries[0].Data["capacity.new"])
	assert.Equal(t, 2, complete.Data["attempts"])
	assert.Equal(t, true, complete.Data["success"])
}

func TestJoinNondeterministicMatcher(t *testing.T) {
	dev := newTestDevice(t)
	e := newTestExecutor(t, dev, Options{})

	const n = 10
	keys := make([]int64, n)
	for i := range keys {
		keys[i] = int64(i)
	}
	left, right := keyTable("k", keys...), keyTable("k", keys...)

	// The counting pass sees only the diagonal; afterwards every pair matches.
	var calls atomic.Int64
	m := matcher.Func(func(_, _ table.View, l, r int) bool {
		return calls.Add(1) > n*n || l == r
	})

	pairs, err := e.InnerJoin(context.Background(), left, right, m)
	require.NoError(t, err)
	assert.Equal(t, n*n, pairs.Len())

	seen := make(map[pair]bool)
	for _, p := range sortedPairs(pairs) {
		assert.False(t, seen[p], "duplicate pair %v", p)
		seen[p] = true
	}
	assert.Zero(t, dev.Allocated())
}

// faultyDevice injects failures into a working device.
type faultyDevice struct {
	*device.SimDevice
	failKernel string
	failAlloc  int // fail the n-th allocation, 0 never
	allocs     int
	noSMs      bool
}

func (d *faultyDevice) Launch(k device.Kernel, grid, block int) error {
	if k.Name() == d.failKernel {
		return errors.New("injected launch failure")
	}
	return d.SimDevice.Launch(k, grid, block)
}

func (d *faultyDevice) AllocIndices(n int) (*device.IndexBuffer, error) {
	d.allocs++
	if d.allocs == d.failAlloc {
		return nil, errors.New("injected allocation failure")
	}
	return d.SimDevice.AllocIndices(n)
}

func (d *faultyDevice) MultiprocessorCount() int {
	if d.noSMs {
		return 0
	}
	return d.SimDevice.MultiprocessorCount()
}

func TestJoinDeviceFaults(t *testing.T) {
	left := keyTable("k", 1, 2, 2, 3)
	right := keyTable("k", 2, 2, 4)
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(d *faultyDevice)
		phase string
	}{
		{"Count", func(d *faultyDevice) { d.failKernel = "nested_loop_join_count" }, "nested_loop_join_count"},
		{"Materialize", func(d *faultyDevice) { d.failKernel = "nested_loop_join_materialize" }, "nested_loop_join_materialize"},
		{"FirstAlloc", func(d *faultyDevice) { d.failAlloc = 1 }, "allocate"},
		{"SecondAlloc", func(d *faultyDevice) { d.failAlloc = 2 }, "allocate"},
		{"NoMultiprocessors", func(d *faultyDevice) { d.noSMs = true }, "plan"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &faultyDevice{SimDevice: newTestDevice(t)}
			tt.setup(dev)
			handler, events := annotations.Recorder()
			e := newTestExecutor(t, dev, Options{Handler: handler})

			_, err := e.LeftJoin(ctx, left, right, keyMatcher)
			require.Error(t, err)
			assert.ErrorIs(t, err, nljoin.ErrDeviceExecution)
			assert.True(t, nljoin.IsDeviceFault(err))
			assert.Zero(t, dev.Allocated(), "buffers are released on failure")

			var phase string
			for _, ev := range *events {
				if ev.Name == annotations.ErrorDevice {
					phase, _ = ev.Data["phase"].(string)
				}
			}
			assert.Equal(t, tt.phase, phase)
		})
	}

	t.Run("OutOfMemory", func(t *testing.T) {
		p := device.DefaultProfile()
		p.Multiprocessors = 2
		p.MemoryBytes = 8
		sim, err := device.NewSimDevice(p)
		require.NoError(t, err)
		defer sim.Close()

		e := newTestExecutor(t, sim, Options{})
		_, err = e.InnerJoin(ctx, left, right, keyMatcher)
		assert.ErrorIs(t, err, nljoin.ErrDeviceExecution)
		assert.Contains(t, err.Error(), "out of memory")
		assert.Zero(t, sim.Allocated())
	})
}

func TestJoinContextCanceled(t *testing.T) {
	dev := newTestDevice(t)
	e := newTestExecutor(t, dev, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.InnerJoin(ctx, keyTable("k", 1, 2), keyTable("k", 2), keyMatcher)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, nljoin.IsDeviceFault(err))
	assert.Zero(t, dev.Launches())
}

func TestJoinMatchesBruteForce(t *testing.T) {
	dev := newTestDevice(t)
	rng := rand.New(rand.NewSource(42))

	randomTable := func(rows int) *table.Table {
		values := make([]nljoin.Value, rows)
		for i := range values {
			if rng.Intn(10) == 0 {
				continue
			}
			values[i] = int64(rng.Intn(6))
		}
		c, err := table.NewColumn("k", nljoin.TypeInt, values)
		require.NoError(t, err)
		return table.MustNew(c)
	}

	matchers := map[string]matcher.RowMatcher{
		"equal":       keyMatcher,
		"nulls-equal": matcher.Equality{LeftKeys: []int{0}, RightKeys: []int{0}, Nulls: matcher.NullsEqual},
		"less":        matcher.Where(matcher.Condition{Left: 0, Op: nljoin.OpLT, Right: 0}),
	}
	optionSets := []Options{
		{BlockSize: 32},
		{BlockSize: 64, CacheSize: 1},
		{BlockSize: 33, CacheSize: 5, InitialCapacity: 1},
		{BlockSize: 128, InitialCapacity: 3},
	}

	for i := 0; i < 20; i++ {
		left, right := randomTable(rng.Intn(40)), randomTable(rng.Intn(40))
		opts := optionSets[i%len(optionSets)]
		e := newTestExecutor(t, dev, opts)
		for name, m := range matchers {
			for _, kind := range []nljoin.JoinKind{nljoin.InnerJoin, nljoin.LeftJoin} {
				pairs, err := e.Join(context.Background(), left, right, m, kind)
				require.NoError(t, err)
				require.Equal(t, bruteForce(left, right, m, kind), sortedPairs(pairs),
					"case %d %s %s join, %d x %d rows", i, name, kind, left.NumRows(), right.NumRows())
			}
		}
	}
	assert.Zero(t, dev.Allocated())
}

func TestNewExecutor(t *testing.T) {
	dev := newTestDevice(t)

	_, err := New(nil, Options{})
	assert.Error(t, err)
	_, err = New(dev, Options{BlockSize: -1})
	assert.Error(t, err)
	_, err = New(dev, Options{InitialCapacity: -1})
	assert.Error(t, err)

	t.Run("DoesNotFitDevice", func(t *testing.T) {
		limits := dev.Profile()
		for name, opts := range map[string]Options{
			"block size": {BlockSize: limits.MaxThreadsPerBlock + 1},
			"cache size": {CacheSize: limits.SharedMemPerBlock / 8},
		} {
			_, err := New(dev, opts)
			require.Error(t, err, name)
			assert.False(t, nljoin.IsDeviceFault(err), "%s: %v", name, err)
		}
	})

	e, err := New(dev, Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultBlockSize, e.opts.BlockSize)
	assert.NotNil(t, e.opts.Logger)
	assert.Equal(t, device.Device(dev), e.Device())
}

// oversizedView reports more rows than an int32 index can address.
type oversizedView struct{}

func (oversizedView) NumRows() int                  { return nljoin.MaxRows + 1 }
func (oversizedView) NumColumns() int               { return 0 }
func (oversizedView) Column(i int) table.ColumnView { return nil }

func TestJoinRejectsOversizedView(t *testing.T) {
	dev := newTestDevice(t)
	e := newTestExecutor(t, dev, Options{})
	small := keyTable("small", 1, 2)
	m := matcher.Func(func(left, right table.View, l, r int) bool { return true })
	ctx := context.Background()

	_, err := e.Join(ctx, oversizedView{}, small, m, nljoin.InnerJoin)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "left table")
	assert.False(t, nljoin.IsDeviceFault(err))

	_, err = e.Join(ctx, small, oversizedView{}, m, nljoin.LeftJoin)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "right table")

	_, err = e.JoinSize(ctx, small, oversizedView{}, m, nljoin.InnerJoin)
	require.Error(t, err)
	assert.Zero(t, dev.Launches())
}
