package device

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
	"github.com/wbrown/janus-nljoin/nljoin"
)

// SimDevice executes kernels on goroutines. Each multiprocessor is one
// worker of an ants pool, so at most Multiprocessors blocks run at once;
// the rest queue until a worker frees up.
type SimDevice struct {
	profile Profile
	pool    *ants.Pool

	allocated atomic.Int64 // bytes of live IndexBuffers
	launches  atomic.Int64
}

var _ Device = (*SimDevice)(nil)

// NewSimDevice creates a device with the given profile.
func NewSimDevice(p Profile) (*SimDevice, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid device profile: %w", err)
	}
	pool, err := ants.NewPool(p.Multiprocessors)
	if err != nil {
		return nil, fmt.Errorf("failed to create multiprocessor pool: %w", err)
	}
	return &SimDevice{profile: p, pool: pool}, nil
}

// NewDefaultSimDevice creates a device with DefaultProfile.
func NewDefaultSimDevice() (*SimDevice, error) {
	return NewSimDevice(DefaultProfile())
}

// Close releases the worker pool. The device is unusable afterwards.
func (d *SimDevice) Close() {
	d.pool.Release()
}

func (d *SimDevice) Name() string {
	return d.profile.Name
}

// Profile returns the limits the device was created with.
func (d *SimDevice) Profile() Profile {
	return d.profile
}

// MultiprocessorCount returns the number of blocks that execute at once.
func (d *SimDevice) MultiprocessorCount() int {
	return d.profile.Multiprocessors
}

// Launches returns the number of kernel launches issued so far.
func (d *SimDevice) Launches() int64 {
	return d.launches.Load()
}

// Allocated returns the bytes held by live index buffers.
func (d *SimDevice) Allocated() int64 {
	return d.allocated.Load()
}

// MaxResidentBlocks returns the occupancy of k at blockSize on one
// multiprocessor.
func (d *SimDevice) MaxResidentBlocks(k Kernel, blockSize int) (int, error) {
	n, err := d.profile.Occupancy(k.Resources(), blockSize)
	if err != nil {
		return 0, nljoin.DeviceFault(err, fmt.Sprintf("occupancy of %s", k.Name()))
	}
	return n, nil
}

// Launch runs gridSize blocks of k and waits for all of them. The first
// block fault stops blocks that have not started yet and is returned
// marked as nljoin.ErrDeviceExecution.
func (d *SimDevice) Launch(k Kernel, gridSize, blockSize int) error {
	d.launches.Add(1)
	op := fmt.Sprintf("launch %s<<<%d, %d>>>", k.Name(), gridSize, blockSize)

	if gridSize <= 0 {
		return nljoin.DeviceFault(errors.Newf("invalid grid size %d", gridSize), op)
	}
	occupancy, err := d.profile.Occupancy(k.Resources(), blockSize)
	if err != nil {
		return nljoin.DeviceFault(err, op)
	}
	if occupancy == 0 {
		return nljoin.DeviceFault(errors.New("too many resources requested for launch"), op)
	}

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
		aborted  atomic.Bool
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			aborted.Store(true)
		})
	}

	for b := 0; b < gridSize && !aborted.Load(); b++ {
		blk := Block{Index: b, Dim: blockSize, GridDim: gridSize}
		wg.Add(1)
		err := d.pool.Submit(func() {
			defer wg.Done()
			if aborted.Load() {
				return
			}
			if err := runBlock(k, blk); err != nil {
				fail(err)
			}
		})
		if err != nil {
			wg.Done()
			fail(errors.Wrap(err, "submit block"))
		}
	}
	wg.Wait()

	return nljoin.DeviceFault(firstErr, op)
}

// runBlock executes one block, converting a panic into a fault.
func runBlock(k Kernel, b Block) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("block %d panicked: %v", b.Index, r)
		}
	}()
	if err := k.Run(b); err != nil {
		return errors.Wrapf(err, "block %d", b.Index)
	}
	return nil
}

// AllocIndices allocates a buffer of n indices, failing when the profile's
// memory limit would be exceeded.
func (d *SimDevice) AllocIndices(n int) (*IndexBuffer, error) {
	if n < 0 {
		return nil, nljoin.DeviceFault(errors.Newf("negative allocation of %d indices", n), "alloc")
	}
	size := int64(n) * 4
	if limit := d.profile.MemoryBytes; limit > 0 {
		for {
			cur := d.allocated.Load()
			if cur+size > limit {
				return nil, nljoin.DeviceFault(
					errors.Newf("out of memory: %d bytes requested, %d of %d in use", size, cur, limit), "alloc")
			}
			if d.allocated.CompareAndSwap(cur, cur+size) {
				break
			}
		}
	} else {
		d.allocated.Add(size)
	}
	return newIndexBuffer(n), nil
}

// Free releases buf. Freeing nil or an already freed buffer is a no-op.
func (d *SimDevice) Free(buf *IndexBuffer) {
	if buf == nil || !buf.freed.CompareAndSwap(false, true) {
		return
	}
	d.allocated.Add(-buf.bytes())
}

// NewCounter allocates a zeroed device counter.
func (d *SimDevice) NewCounter() *Counter {
	return &Counter{}
}
