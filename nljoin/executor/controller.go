package executor

import (
	"fmt"
	"time"

	"github.com/wbrown/janus-nljoin/nljoin"
	"github.com/wbrown/janus-nljoin/nljoin/annotations"
	"github.com/wbrown/janus-nljoin/nljoin/device"
	"github.com/wbrown/janus-nljoin/nljoin/kernels"
	"go.uber.org/zap"
)

// phase is a state of the growth/retry controller.
type phase uint8

const (
	phaseEstimate phase = iota
	phaseAllocate
	phaseMaterialize
	phaseCheck
	phaseDone
	phaseFailed
)

func (p phase) String() string {
	switch p {
	case phaseEstimate:
		return "estimate"
	case phaseAllocate:
		return "allocate"
	case phaseMaterialize:
		return "materialize"
	case phaseCheck:
		return "check"
	case phaseDone:
		return "done"
	case phaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// growthController drives estimate → allocate → materialize → check until a
// materialization fits its buffers.
//
// Capacity strictly grows on every retry (max(2×capacity, written), capped by
// the largest possible output), so the loop terminates.
type growthController struct {
	run *joinRun
	o   orientation

	capacity int
	written  int
	maxPairs int

	left, right *device.IndexBuffer
	cursor      *device.Counter

	result nljoin.IndexPairs
	err    error
	trace  []phase
}

func (g *growthController) execute() (nljoin.IndexPairs, error) {
	g.maxPairs = maxOutputPairs(g.o, g.run.kind)
	state := phaseEstimate
	for {
		g.trace = append(g.trace, state)
		switch state {
		case phaseEstimate:
			state = g.estimate()
		case phaseAllocate:
			state = g.allocate()
		case phaseMaterialize:
			state = g.materialize()
		case phaseCheck:
			state = g.check()
		case phaseDone:
			g.release()
			return g.result, nil
		case phaseFailed:
			g.release()
			return nljoin.IndexPairs{}, g.err
		}
	}
}

func (g *growthController) fail(err error) phase {
	g.err = err
	return phaseFailed
}

func (g *growthController) estimate() phase {
	size, err := g.run.estimate(g.o)
	if err != nil {
		return g.fail(err)
	}
	if size == 0 {
		g.result = nljoin.EmptyPairs()
		return phaseDone
	}
	g.capacity = size
	if initial := g.run.e.opts.InitialCapacity; initial > 0 {
		g.capacity = initial
	}
	g.cursor = g.run.e.dev.NewCounter()
	return phaseAllocate
}

// allocate replaces both output buffers with buffers of the current capacity.
func (g *growthController) allocate() phase {
	start := time.Now()
	g.release()
	g.run.attempts++

	var err error
	if g.left, err = g.run.e.dev.AllocIndices(g.capacity); err != nil {
		return g.fail(g.run.deviceError("allocate", err))
	}
	if g.right, err = g.run.e.dev.AllocIndices(g.capacity); err != nil {
		return g.fail(g.run.deviceError("allocate", err))
	}

	g.run.collector.AddTiming(annotations.JoinAllocate, start, map[string]interface{}{
		"attempt":  g.run.attempts,
		"capacity": g.capacity,
	})
	return phaseMaterialize
}

func (g *growthController) materialize() phase {
	start := time.Now()
	g.cursor.Reset()

	k, err := kernels.NewMaterializeKernel(
		g.o.outer, g.o.inner, g.o.matcher, g.run.kind,
		g.left, g.right, g.cursor, g.o.flip, g.run.e.opts.CacheSize,
	)
	if err != nil {
		return g.fail(err)
	}
	if _, err := g.run.launch(k); err != nil {
		return g.fail(err)
	}
	g.written = int(g.cursor.Load())

	g.run.logger.Debug("materialized",
		zap.Int("attempt", g.run.attempts), zap.Int("capacity", g.capacity), zap.Int("written", g.written))
	g.run.collector.AddTiming(annotations.JoinMaterialize, start, map[string]interface{}{
		"attempt":  g.run.attempts,
		"capacity": g.capacity,
		"written":  g.written,
	})
	return phaseCheck
}

// check accepts the attempt if every pair fit, otherwise grows the capacity.
func (g *growthController) check() phase {
	if g.written <= g.capacity {
		g.result = nljoin.IndexPairs{
			Left:  g.left.CopyToHost(g.written),
			Right: g.right.CopyToHost(g.written),
		}
		return phaseDone
	}

	next := max(g.capacity*2, g.written)
	if g.maxPairs > 0 && next > g.maxPairs {
		next = max(g.maxPairs, g.written)
	}

	g.run.logger.Debug("output overflow, retrying",
		zap.Int("capacity", g.capacity), zap.Int("written", g.written), zap.Int("next", next))
	g.run.collector.AddTiming(annotations.JoinRetry, time.Now(), map[string]interface{}{
		"attempt":      g.run.attempts,
		"capacity.old": g.capacity,
		"capacity.new": next,
		"written":      g.written,
	})
	g.capacity = next
	return phaseAllocate
}

// release frees whatever buffers are held.
func (g *growthController) release() {
	if g.left != nil {
		g.run.e.dev.Free(g.left)
		g.left = nil
	}
	if g.right != nil {
		g.run.e.dev.Free(g.right)
		g.right = nil
	}
}

// maxOutputPairs bounds the output of a join: every outer row pairs with at
// most every inner row, and a left join adds one row per unmatched outer row.
func maxOutputPairs(o orientation, kind nljoin.JoinKind) int {
	outer, inner := o.outer.NumRows(), o.inner.NumRows()
	if kind == nljoin.LeftJoin && inner == 0 {
		return outer
	}
	return outer * inner
}
