package executor

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-nljoin/nljoin/annotations"
	"github.com/wbrown/janus-nljoin/nljoin/device"
	"github.com/wbrown/janus-nljoin/nljoin/kernels"
	"go.uber.org/zap"
)

// DefaultBlockSize is the number of threads per block for both kernels.
const DefaultBlockSize = 256

// Options configures an Executor. The zero value selects every default.
type Options struct {
	// Launch geometry
	BlockSize int // threads per block; 0 = DefaultBlockSize
	CacheSize int // pairs buffered per block before a flush; 0 = kernels.DefaultCacheSize

	// InitialCapacity replaces a non-zero size estimate as the first buffer
	// capacity. Used to exercise the growth path; 0 keeps the estimate.
	InitialCapacity int

	// Observability
	Handler annotations.Handler // receives join events; nil disables them
	Logger  *zap.Logger         // debug logging; nil = zap.NewNop()
}

// withDefaults fills unset fields.
func (o Options) withDefaults() Options {
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.CacheSize == 0 {
		o.CacheSize = kernels.DefaultCacheSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (o Options) validate() error {
	if o.BlockSize < 0 {
		return fmt.Errorf("block size must not be negative, got %d", o.BlockSize)
	}
	if o.CacheSize < 0 {
		return fmt.Errorf("cache size must not be negative, got %d", o.CacheSize)
	}
	if o.InitialCapacity < 0 {
		return fmt.Errorf("initial capacity must not be negative, got %d", o.InitialCapacity)
	}
	return nil
}

// fitsDevice checks that both kernels can be resident on dev at the
// configured block and cache sizes. Occupancy failures are returned as
// configuration errors, without the device execution mark.
func (o Options) fitsDevice(dev device.Device) error {
	probes := []device.Kernel{
		&kernels.CountKernel{},
		&kernels.MaterializeKernel{CacheSize: o.CacheSize},
	}
	for _, k := range probes {
		resident, err := dev.MaxResidentBlocks(k, o.BlockSize)
		if err != nil {
			return fmt.Errorf("block size %d, cache size %d: %v", o.BlockSize, o.CacheSize, errors.UnwrapAll(err))
		}
		if resident <= 0 {
			return fmt.Errorf("block size %d, cache size %d: %s kernel cannot be resident on the device",
				o.BlockSize, o.CacheSize, k.Name())
		}
	}
	return nil
}
