package executor

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-nljoin/nljoin"
	"github.com/wbrown/janus-nljoin/nljoin/device"
)

// LaunchConfig is the geometry of one kernel launch.
type LaunchConfig struct {
	Kernel          string
	GridSize        int
	BlockSize       int
	ResidentBlocks  int // blocks per multiprocessor
	Multiprocessors int
}

// LaunchPlanner sizes the grid to saturate the device: resident blocks per
// multiprocessor times multiprocessor count, independent of the row count.
// Rows are spread over the grid by the kernels' grid-stride loops.
//
// Capability queries are cached per kernel signature; a planner must only be
// used with a single device.
type LaunchPlanner struct {
	mu    sync.RWMutex
	cache map[planKey]LaunchConfig

	hits   int64
	misses int64
}

type planKey struct {
	kernel    string
	resources device.Resources
	blockSize int
}

// NewLaunchPlanner creates an empty planner.
func NewLaunchPlanner() *LaunchPlanner {
	return &LaunchPlanner{cache: make(map[planKey]LaunchConfig)}
}

// Plan returns the launch geometry for k at blockSize and whether it came
// from the cache.
func (p *LaunchPlanner) Plan(dev device.Device, k device.Kernel, blockSize int) (LaunchConfig, bool, error) {
	key := planKey{kernel: k.Name(), resources: k.Resources(), blockSize: blockSize}

	p.mu.RLock()
	cfg, ok := p.cache[key]
	p.mu.RUnlock()
	if ok {
		atomic.AddInt64(&p.hits, 1)
		return cfg, true, nil
	}
	atomic.AddInt64(&p.misses, 1)

	resident, err := dev.MaxResidentBlocks(k, blockSize)
	if err != nil {
		return LaunchConfig{}, false, err
	}
	if resident <= 0 {
		return LaunchConfig{}, false, nljoin.DeviceFault(
			errors.Newf("kernel %s cannot be resident at block size %d", k.Name(), blockSize), "plan launch")
	}
	sms := dev.MultiprocessorCount()
	if sms <= 0 {
		return LaunchConfig{}, false, nljoin.DeviceFault(
			errors.Newf("device reports %d multiprocessors", sms), "plan launch")
	}

	cfg = LaunchConfig{
		Kernel:          k.Name(),
		GridSize:        resident * sms,
		BlockSize:       blockSize,
		ResidentBlocks:  resident,
		Multiprocessors: sms,
	}

	p.mu.Lock()
	p.cache[key] = cfg
	p.mu.Unlock()
	return cfg, false, nil
}

// Stats returns cache hits and misses.
func (p *LaunchPlanner) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&p.hits), atomic.LoadInt64(&p.misses)
}
