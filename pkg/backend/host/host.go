// Package host implements the mandatory CPU fallback backend. Every
// runtime has exactly one host backend and it always registers first, so
// device_id 0 always denotes host.
//
// There is no driver underneath the host backend: allocation is a plain
// aligned Go allocation, copies are memmove, and "kernel launch" dispatches
// a registered Go function over the configured grid×block work items
// across a fixed pool of worker goroutines (capped at the work-item
// count), emulating the parallel execution a real accelerator would
// perform.
package host

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/anydsl-go/runtime/pkg/backend"
	"golang.org/x/sync/errgroup"
)

// KernelFunc is the host-side equivalent of a compiled kernel entry point.
// Generated code (or a test) registers one under a (modulePath, entryName)
// pair before LoadKernel can find it. idx is the flattened global work-item
// index in [0, gx*gy*gz*bx*by*bz).
type KernelFunc func(idx uint64, args []backend.Arg)

var (
	// ErrKernelNotRegistered is returned by LoadKernel when no KernelFunc
	// was registered for the given (modulePath, entryName) pair.
	ErrKernelNotRegistered = errors.New("host: no kernel registered for module/entry pair")
	// ErrNoKernelLoaded mirrors the dispatch state machine's fatal
	// condition: LaunchKernel with kernel == nil.
	ErrNoKernelLoaded = errors.New("host: launch attempted with no kernel loaded")
	// ErrMissingArgument mirrors the dispatch state machine's fatal
	// condition for unfilled argument slots.
	ErrMissingArgument = errors.New("host: kernel argument slot unset at launch")
)

// registry is the process-wide table of named host kernels. Generated code
// populates it via Register before the runtime's LoadKernel can resolve an
// entry point; this is the host analogue of a compiled .nvvm/.cl module on
// disk.
var (
	registryMu sync.RWMutex
	registry   = map[string]KernelFunc{}
)

func kernelKey(modulePath, entryName string) string {
	return modulePath + "::" + entryName
}

// Register associates a KernelFunc with a (modulePath, entryName) pair so
// the host backend's LoadKernel can find it. Call during program init or
// test setup, before the runtime issues load_kernel for that pair.
func Register(modulePath, entryName string, fn KernelFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kernelKey(modulePath, entryName)] = fn
}

func lookup(modulePath, entryName string) (KernelFunc, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[kernelKey(modulePath, entryName)]
	return fn, ok
}

type launchState struct {
	mu    sync.Mutex
	grid  [3]uint32
	block [3]uint32
	args  []*backend.Arg
	fn    KernelFunc
}

func newLaunchState() *launchState {
	return &launchState{grid: [3]uint32{1, 1, 1}, block: [3]uint32{1, 1, 1}}
}

// Backend is the host CPU fallback implementation of backend.Backend.
type Backend struct {
	workers int

	mu     sync.Mutex
	states []*launchState
}

// New creates a host backend exposing a single logical device, emulating
// parallel kernel launches across workers goroutines (default
// runtime.NumCPU()).
func New(workers int) *Backend {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	b := &Backend{workers: workers}
	b.states = []*launchState{newLaunchState()}
	return b
}

func (b *Backend) Name() string    { return "host" }
func (b *Backend) DeviceCount() int { return len(b.states) }

func (b *Backend) state(local int) (*launchState, error) {
	if local < 0 || local >= len(b.states) {
		return nil, fmt.Errorf("host: local device %d out of range", local)
	}
	return b.states[local], nil
}

// Alloc performs an aligned host allocation. Go's allocator already
// guarantees allocations are suitably aligned for any built-in type, so
// this is a plain make([]byte, size) pinned via unsafe.Pointer.
func (b *Backend) Alloc(local int, size int64) (unsafe.Pointer, error) {
	if _, err := b.state(local); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("host: alloc size must be > 0, got %d", size)
	}
	buf := make([]byte, size)
	return unsafe.Pointer(&buf[0]), nil
}

// Release is a no-op: host allocations are ordinary Go memory collected by
// the garbage collector once the allocation table drops its last reference.
func (b *Backend) Release(ptr unsafe.Pointer) error {
	return nil
}

// Copy performs a host-to-host memmove.
func (b *Backend) Copy(src, dst unsafe.Pointer, size int64) error {
	if size <= 0 {
		return nil
	}
	srcSlice := unsafe.Slice((*byte)(src), size)
	dstSlice := unsafe.Slice((*byte)(dst), size)
	copy(dstSlice, srcSlice)
	return nil
}

// CopyFromHost is identical to Copy on the host backend: both endpoints are
// already host memory.
func (b *Backend) CopyFromHost(hostSrc, devDst unsafe.Pointer, size int64) error {
	return b.Copy(hostSrc, devDst, size)
}

// CopyToHost is identical to Copy on the host backend.
func (b *Backend) CopyToHost(devSrc, hostDst unsafe.Pointer, size int64) error {
	return b.Copy(devSrc, hostDst, size)
}

func (b *Backend) SetBlockSize(local int, x, y, z uint32) error {
	st, err := b.state(local)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.block = [3]uint32{x, y, z}
	return nil
}

func (b *Backend) SetGridSize(local int, x, y, z uint32) error {
	st, err := b.state(local)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.grid = [3]uint32{x, y, z}
	return nil
}

func (b *Backend) SetArg(local int, index uint32, arg backend.Arg) error {
	st, err := b.state(local)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	for uint32(len(st.args)) <= index {
		st.args = append(st.args, nil)
	}
	a := arg
	st.args[index] = &a
	return nil
}

func (b *Backend) LoadKernel(local int, modulePath, entryName string) error {
	st, err := b.state(local)
	if err != nil {
		return err
	}
	fn, ok := lookup(modulePath, entryName)
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrKernelNotRegistered, modulePath, entryName)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.fn = fn
	return nil
}

// LaunchKernel fans the registered KernelFunc out across b.workers
// goroutines, each covering a contiguous slice of the flattened
// grid*block work-item space. This mirrors the bounded-concurrency fan-out
// idiom used elsewhere in the corpus for CPU-bound batch work, applied here
// to emulate a GPU-style SIMT launch on the CPU.
func (b *Backend) LaunchKernel(local int) error {
	st, err := b.state(local)
	if err != nil {
		return err
	}

	st.mu.Lock()
	fn := st.fn
	grid, block := st.grid, st.block
	args := make([]backend.Arg, len(st.args))
	for i, a := range st.args {
		if a == nil {
			st.mu.Unlock()
			return fmt.Errorf("%w: slot %d", ErrMissingArgument, i)
		}
		args[i] = *a
	}
	st.mu.Unlock()

	if fn == nil {
		return ErrNoKernelLoaded
	}

	total := uint64(grid[0]) * uint64(grid[1]) * uint64(grid[2]) *
		uint64(block[0]) * uint64(block[1]) * uint64(block[2])
	if total == 0 {
		return nil
	}

	workers := b.workers
	if uint64(workers) > total {
		workers = int(total)
	}

	var g errgroup.Group
	chunk := (total + uint64(workers) - 1) / uint64(workers)
	for w := 0; w < workers; w++ {
		start := uint64(w) * chunk
		if start >= total {
			break
		}
		end := start + chunk
		if end > total {
			end = total
		}
		g.Go(func() error {
			for idx := start; idx < end; idx++ {
				fn(idx, args)
			}
			return nil
		})
	}
	return g.Wait()
}

// Synchronize is a no-op: LaunchKernel already blocks until its workers
// drain, so there is no outstanding work to wait for.
func (b *Backend) Synchronize(local int) error {
	_, err := b.state(local)
	return err
}

var _ backend.Backend = (*Backend)(nil)
