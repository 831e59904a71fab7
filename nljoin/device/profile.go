package device

import (
	"fmt"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Profile describes the physical limits of a device.
type Profile struct {
	Name                        string `toml:"name"`
	Multiprocessors             int    `toml:"multiprocessors"`
	WarpSize                    int    `toml:"warp_size"`
	MaxThreadsPerBlock          int    `toml:"max_threads_per_block"`
	MaxThreadsPerMultiprocessor int    `toml:"max_threads_per_multiprocessor"`
	MaxBlocksPerMultiprocessor  int    `toml:"max_blocks_per_multiprocessor"`
	SharedMemPerBlock           int    `toml:"shared_mem_per_block"`
	SharedMemPerMultiprocessor  int    `toml:"shared_mem_per_multiprocessor"`
	RegistersPerMultiprocessor  int    `toml:"registers_per_multiprocessor"`
	// MemoryBytes caps device allocations; 0 means unlimited.
	MemoryBytes int64 `toml:"memory_bytes"`
}

// DefaultProfile returns a device with one multiprocessor per CPU and
// per-multiprocessor limits of a common discrete accelerator.
func DefaultProfile() Profile {
	return Profile{
		Name:                        "sim",
		Multiprocessors:             runtime.NumCPU(),
		WarpSize:                    32,
		MaxThreadsPerBlock:          1024,
		MaxThreadsPerMultiprocessor: 2048,
		MaxBlocksPerMultiprocessor:  32,
		SharedMemPerBlock:           48 << 10,
		SharedMemPerMultiprocessor:  100 << 10,
		RegistersPerMultiprocessor:  64 << 10,
	}
}

// LoadProfile reads a TOML device description. Keys absent from the file
// keep their DefaultProfile values.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return Profile{}, fmt.Errorf("failed to load device profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, fmt.Errorf("device profile %s: %w", path, err)
	}
	return p, nil
}

// Validate checks that every limit is positive and self-consistent.
func (p Profile) Validate() error {
	switch {
	case p.Multiprocessors <= 0:
		return fmt.Errorf("multiprocessors must be positive, got %d", p.Multiprocessors)
	case p.WarpSize <= 0:
		return fmt.Errorf("warp_size must be positive, got %d", p.WarpSize)
	case p.MaxThreadsPerBlock <= 0:
		return fmt.Errorf("max_threads_per_block must be positive, got %d", p.MaxThreadsPerBlock)
	case p.MaxThreadsPerMultiprocessor < p.MaxThreadsPerBlock:
		return fmt.Errorf("max_threads_per_multiprocessor (%d) is below max_threads_per_block (%d)",
			p.MaxThreadsPerMultiprocessor, p.MaxThreadsPerBlock)
	case p.MaxBlocksPerMultiprocessor <= 0:
		return fmt.Errorf("max_blocks_per_multiprocessor must be positive, got %d", p.MaxBlocksPerMultiprocessor)
	case p.SharedMemPerBlock < 0 || p.SharedMemPerMultiprocessor < p.SharedMemPerBlock:
		return fmt.Errorf("shared memory limits are inconsistent: %d per block, %d per multiprocessor",
			p.SharedMemPerBlock, p.SharedMemPerMultiprocessor)
	case p.RegistersPerMultiprocessor <= 0:
		return fmt.Errorf("registers_per_multiprocessor must be positive, got %d", p.RegistersPerMultiprocessor)
	case p.MemoryBytes < 0:
		return fmt.Errorf("memory_bytes must not be negative, got %d", p.MemoryBytes)
	}
	return nil
}

// Occupancy returns how many blocks of a kernel with the given resources can
// be resident on one multiprocessor. Zero means the kernel cannot launch at
// this block size.
func (p Profile) Occupancy(res Resources, blockSize int) (int, error) {
	if blockSize <= 0 || blockSize > p.MaxThreadsPerBlock {
		return 0, fmt.Errorf("block size %d outside [1, %d]", blockSize, p.MaxThreadsPerBlock)
	}
	if res.SharedMemBytes > p.SharedMemPerBlock {
		return 0, fmt.Errorf("kernel needs %d bytes of shared memory per block, limit is %d",
			res.SharedMemBytes, p.SharedMemPerBlock)
	}

	// Threads are allocated in whole warps.
	threads := (blockSize + p.WarpSize - 1) / p.WarpSize * p.WarpSize

	blocks := p.MaxBlocksPerMultiprocessor
	blocks = min(blocks, p.MaxThreadsPerMultiprocessor/threads)
	if res.SharedMemBytes > 0 {
		blocks = min(blocks, p.SharedMemPerMultiprocessor/res.SharedMemBytes)
	}
	if res.RegistersPerThread > 0 {
		blocks = min(blocks, p.RegistersPerMultiprocessor/(res.RegistersPerThread*threads))
	}
	return blocks, nil
}
