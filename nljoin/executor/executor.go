// Package executor runs nested-loop joins on a device.
//
// A join goes through a fixed pipeline:
//
//	orientation → degenerate check → estimate → (allocate → materialize → check)* → done
//
// The output size is unknown until the kernels have run and kernels cannot
// grow their output, so the executor counts first, allocates, materializes,
// and retries with a larger buffer whenever the write cursor reports more
// pairs than the buffer could hold.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/wbrown/janus-nljoin/nljoin"
	"github.com/wbrown/janus-nljoin/nljoin/annotations"
	"github.com/wbrown/janus-nljoin/nljoin/device"
	"github.com/wbrown/janus-nljoin/nljoin/kernels"
	"github.com/wbrown/janus-nljoin/nljoin/matcher"
	"github.com/wbrown/janus-nljoin/nljoin/table"
	"go.uber.org/zap"
)

// Executor joins tables on one device. It is safe for concurrent use; each
// join allocates its own buffers and counters.
type Executor struct {
	dev     device.Device
	opts    Options
	planner *LaunchPlanner
	logger  *zap.Logger
}

// New creates an executor for dev.
func New(dev device.Device, opts Options) (*Executor, error) {
	if dev == nil {
		return nil, fmt.Errorf("executor requires a device")
	}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid executor options: %w", err)
	}
	opts = opts.withDefaults()
	if err := opts.fitsDevice(dev); err != nil {
		return nil, fmt.Errorf("invalid executor options: %w", err)
	}
	return &Executor{
		dev:     dev,
		opts:    opts,
		planner: NewLaunchPlanner(),
		logger:  opts.Logger.Named("nljoin"),
	}, nil
}

// Device returns the device joins run on.
func (e *Executor) Device() device.Device {
	return e.dev
}

// Planner returns the executor's launch planner.
func (e *Executor) Planner() *LaunchPlanner {
	return e.planner
}

// InnerJoin is Join with nljoin.InnerJoin.
func (e *Executor) InnerJoin(ctx context.Context, left, right table.View, m matcher.RowMatcher) (nljoin.IndexPairs, error) {
	return e.Join(ctx, left, right, m, nljoin.InnerJoin)
}

// LeftJoin is Join with nljoin.LeftJoin.
func (e *Executor) LeftJoin(ctx context.Context, left, right table.View, m matcher.RowMatcher) (nljoin.IndexPairs, error) {
	return e.Join(ctx, left, right, m, nljoin.LeftJoin)
}

// Join returns the index pairs (l, r) of left and right rows accepted by m.
// For LeftJoin, every left row without a match appears once as
// (l, nljoin.NoMatch). Pairs come back in no particular order.
//
// Join fails with nljoin.ErrUnsupportedJoinKind for any kind other than
// InnerJoin or LeftJoin, and with an error marked nljoin.ErrDeviceExecution
// when the device faults. ctx is checked before every launch; a launch in
// progress always runs to completion.
func (e *Executor) Join(ctx context.Context, left, right table.View, m matcher.RowMatcher, kind nljoin.JoinKind) (nljoin.IndexPairs, error) {
	run := e.newRun(ctx, kind)
	run.begin(left, right)

	if !kind.Supported() {
		return nljoin.IndexPairs{}, run.finish(nljoin.IndexPairs{}, run.unsupported())
	}
	if err := checkRows(left, right); err != nil {
		return nljoin.IndexPairs{}, run.finish(nljoin.IndexPairs{}, err)
	}
	if err := matcher.Validate(m, left, right); err != nil {
		return nljoin.IndexPairs{}, run.finish(nljoin.IndexPairs{}, fmt.Errorf("invalid matcher: %w", err))
	}

	o := run.orient(left, right, m)
	if pairs, ok, err := run.degenerate(o); ok || err != nil {
		return pairs, run.finish(pairs, err)
	}

	g := &growthController{run: run, o: o}
	pairs, err := g.execute()
	return pairs, run.finish(pairs, err)
}

// JoinSize returns the exact number of pairs Join would produce for a
// deterministic matcher, without materializing any index.
func (e *Executor) JoinSize(ctx context.Context, left, right table.View, m matcher.RowMatcher, kind nljoin.JoinKind) (int, error) {
	run := e.newRun(ctx, kind)
	if !kind.Supported() {
		return 0, run.unsupported()
	}
	if err := checkRows(left, right); err != nil {
		return 0, err
	}
	if err := matcher.Validate(m, left, right); err != nil {
		return 0, fmt.Errorf("invalid matcher: %w", err)
	}
	o := run.orient(left, right, m)
	if pairs, ok, err := run.degenerate(o); ok || err != nil {
		return pairs.Len(), err
	}
	return run.estimate(o)
}

// checkRows rejects views whose row indices do not fit in int32.
func checkRows(left, right table.View) error {
	for _, side := range []struct {
		name string
		v    table.View
	}{{"left", left}, {"right", right}} {
		if n := side.v.NumRows(); n > nljoin.MaxRows {
			return fmt.Errorf("%s table has %d rows, limit is %d", side.name, n, nljoin.MaxRows)
		}
	}
	return nil
}

// joinRun carries the per-call state of one join.
type joinRun struct {
	e         *Executor
	ctx       context.Context
	kind      nljoin.JoinKind
	collector *annotations.Collector
	logger    *zap.Logger
	start     time.Time
	attempts  int
}

func (e *Executor) newRun(ctx context.Context, kind nljoin.JoinKind) *joinRun {
	if ctx == nil {
		ctx = context.Background()
	}
	return &joinRun{
		e:         e,
		ctx:       ctx,
		kind:      kind,
		collector: annotations.NewCollector(e.opts.Handler),
		logger:    e.logger.With(zap.Stringer("kind", kind)),
		start:     time.Now(),
	}
}

func (r *joinRun) begin(left, right table.View) {
	r.logger.Debug("join begin", zap.Int("left.rows", left.NumRows()), zap.Int("right.rows", right.NumRows()))
	if !r.collector.Enabled() {
		return
	}
	r.collector.AddTiming(annotations.JoinBegin, r.start, map[string]interface{}{
		"kind":          r.kind.String(),
		"left.rows":     left.NumRows(),
		"right.rows":    right.NumRows(),
		"left.columns":  columnNames(left),
		"right.columns": columnNames(right),
	})
}

func (r *joinRun) unsupported() error {
	r.collector.AddTiming(annotations.ErrorJoinKind, time.Now(), map[string]interface{}{
		"kind": r.kind.String(),
	})
	return nljoin.UnsupportedJoinKind(r.kind)
}

func (r *joinRun) finish(pairs nljoin.IndexPairs, err error) error {
	data := map[string]interface{}{
		"success":     err == nil,
		"result.size": pairs.Len(),
		"attempts":    r.attempts,
	}
	if err != nil {
		data["error"] = err.Error()
		r.logger.Debug("join failed", zap.Error(err))
	} else {
		r.logger.Debug("join done", zap.Int("pairs", pairs.Len()), zap.Int("attempts", r.attempts))
	}
	r.collector.AddTiming(annotations.JoinComplete, r.start, data)
	return err
}

// checkContext returns the context error, if any, before a launch.
func (r *joinRun) checkContext() error {
	if err := r.ctx.Err(); err != nil {
		return fmt.Errorf("join canceled: %w", err)
	}
	return nil
}

// launch plans and runs k, reporting the geometry.
func (r *joinRun) launch(k device.Kernel) (LaunchConfig, error) {
	if err := r.checkContext(); err != nil {
		return LaunchConfig{}, err
	}
	start := time.Now()
	cfg, cached, err := r.e.planner.Plan(r.e.dev, k, r.e.opts.BlockSize)
	if err != nil {
		return LaunchConfig{}, r.deviceError("plan", err)
	}
	r.collector.AddTiming(annotations.LaunchPlanned, start, map[string]interface{}{
		"kernel":          cfg.Kernel,
		"grid.size":       cfg.GridSize,
		"block.size":      cfg.BlockSize,
		"resident.blocks": cfg.ResidentBlocks,
		"multiprocessors": cfg.Multiprocessors,
		"cached":          cached,
	})
	if err := r.e.dev.Launch(k, cfg.GridSize, cfg.BlockSize); err != nil {
		return cfg, r.deviceError(k.Name(), err)
	}
	return cfg, nil
}

// deviceError reports a device fault and makes sure it carries the
// ErrDeviceExecution mark.
func (r *joinRun) deviceError(phase string, err error) error {
	err = nljoin.DeviceFault(err, phase)
	r.collector.AddTiming(annotations.ErrorDevice, time.Now(), map[string]interface{}{
		"phase": phase,
		"error": err.Error(),
	})
	return err
}

// estimate runs the counting kernel (Output Size Estimator).
func (r *joinRun) estimate(o orientation) (int, error) {
	start := time.Now()
	counter := r.e.dev.NewCounter()
	k, err := kernels.NewCountKernel(o.outer, o.inner, o.matcher, r.kind, counter)
	if err != nil {
		return 0, err
	}
	cfg, err := r.launch(k)
	if err != nil {
		return 0, err
	}
	size := int(counter.Load())

	r.logger.Debug("estimated output size", zap.Int("estimate", size), zap.Int("grid", cfg.GridSize))
	r.collector.AddTiming(annotations.JoinEstimate, start, map[string]interface{}{
		"estimate":  size,
		"grid.size": cfg.GridSize,
	})
	return size, nil
}

func columnNames(v table.View) []string {
	names := make([]string, v.NumColumns())
	for i := range names {
		names[i] = v.Column(i).Name()
	}
	return names
}
