// Package device models the data-parallel accelerator the join kernels run
// on: a grid of independent blocks, device-resident buffers, and a single
// hardware atomic (Counter) for cooperation between blocks.
package device

// Resources are the per-launch costs a kernel declares; they bound how many
// of its blocks fit on one multiprocessor at a time.
type Resources struct {
	SharedMemBytes     int // shared memory per block
	RegistersPerThread int
}

// Kernel is device code. Run executes one block; a returned error (or a
// panic) is a device fault that aborts the launch.
//
// Blocks of one launch run concurrently and in no particular order. They may
// only communicate through Counter.
type Kernel interface {
	Name() string
	Resources() Resources
	Run(b Block) error
}

// Block identifies one block of a launch.
type Block struct {
	Index   int // block index within the grid
	Dim     int // threads per block
	GridDim int // blocks in the grid
}

// Stride is the grid-stride step: total threads in the launch.
func (b Block) Stride() int {
	return b.Dim * b.GridDim
}

// FirstRow is the first row handled by thread t of this block.
func (b Block) FirstRow(t int) int {
	return b.Index*b.Dim + t
}

// EachRow calls fn for every row in [0, n) assigned to this block, thread by
// thread, in grid-stride order. fn returning false stops the walk.
func (b Block) EachRow(n int, fn func(thread, row int) bool) {
	stride := b.Stride()
	for t := 0; t < b.Dim; t++ {
		for row := b.FirstRow(t); row < n; row += stride {
			if !fn(t, row) {
				return
			}
		}
	}
}

// Device is the accelerator interface the executor drives.
//
// Launch is synchronous: it returns after every block has finished, which is
// the only barrier between blocks. Counter.Load after Launch is the host
// read-back point.
type Device interface {
	Name() string
	MultiprocessorCount() int
	MaxResidentBlocks(k Kernel, blockSize int) (int, error)
	Launch(k Kernel, gridSize, blockSize int) error
	AllocIndices(n int) (*IndexBuffer, error)
	Free(buf *IndexBuffer)
	NewCounter() *Counter
}
