package runtime

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anydsl-go/runtime/pkg/backend"
	"github.com/anydsl-go/runtime/pkg/modulecache"
)

// Runtime is the platform-agnostic façade generated host code drives: it
// owns the device registry, the allocation table, the copy router, and one
// dispatch state machine per device_id. New and NewFromConfig build
// independent instances; Default/Teardown in singleton.go manage the
// process-wide one that cmd/libruntime uses.
type Runtime struct {
	reg    *registry
	allocs *allocTable
	copier *copyRouter
	cache  *moduleCache

	// persistCache is non-nil when config.Config.PersistentModuleCache
	// gated EnablePersistentModuleCache on; nil means no on-disk module
	// cache is consulted, only the in-memory moduleCache above.
	persistCache *modulecache.Cache

	statesMu sync.Mutex
	states   map[DeviceID]*dispatchState

	debug bool

	kernelMicros int64 // atomic: process-wide accumulated kernel time
}

// New constructs a Runtime and registers backends in the order given; it
// does not add a host backend itself, so callers pass the host backend
// first to make it device_id 0 (NewFromConfig does). debug gates the
// verbose "Runtime message: " trace that logDebug emits for non-fatal
// diagnostics, mirroring the original's NDEBUG-gated path.
func New(debug bool, backends ...backend.Backend) *Runtime {
	rt := &Runtime{
		reg:    newRegistry(),
		allocs: newAllocTable(),
		cache:  newModuleCache(),
		states: make(map[DeviceID]*dispatchState),
		debug:  debug,
	}
	rt.copier = newCopyRouter(rt.reg, rt.allocs)
	for _, b := range backends {
		rt.registerBackend(b)
	}
	return rt
}

func (rt *Runtime) registerBackend(b backend.Backend) []DeviceID {
	ids := rt.reg.register(b)
	rt.statesMu.Lock()
	defer rt.statesMu.Unlock()
	for _, id := range ids {
		rt.states[id] = newDispatchState()
	}
	return ids
}

// RegisterBackend adds an additional backend (e.g. a second GPU vendor's
// implementation) after construction, returning the device_ids assigned to
// its devices. It is safe to call before any allocation is made; it is not
// safe to call concurrently with operations against already-registered
// devices on a platform whose DeviceCount can change at runtime (none of
// the shipped backends do).
func (rt *Runtime) RegisterBackend(b backend.Backend) []DeviceID {
	return rt.registerBackend(b)
}

func (rt *Runtime) state(id DeviceID) (*dispatchState, error) {
	rt.statesMu.Lock()
	st, ok := rt.states[id]
	rt.statesMu.Unlock()
	if !ok {
		return nil, newErr(KindUnknownDevice, "device_id %d is not registered", id)
	}
	return st, nil
}

func (rt *Runtime) logDebug(format string, args ...any) {
	if rt.debug {
		fmt.Printf("Runtime message: "+format+"\n", args...)
	}
}

// DeviceCount returns the number of registered devices, including host.
func (rt *Runtime) DeviceCount() int { return rt.reg.count() }

// Alloc requests size bytes on device_id and records the resulting pointer
// in the allocation table.
func (rt *Runtime) Alloc(id DeviceID, size int64) (Ptr, error) {
	be, local, err := rt.reg.lookup(id)
	if err != nil {
		return nil, err
	}
	ptr, err := be.Alloc(local, size)
	if err != nil {
		return nil, wrapErr(KindOutOfMemory, err, "alloc %d bytes on device %d (local %d)", size, id, local)
	}
	rt.allocs.put(ptr, Allocation{Device: id, Size: size})
	rt.logDebug("alloc %d bytes on device %d -> %p", size, id, ptr)
	return ptr, nil
}

// AllocHost is the host-only convenience form generated code uses for
// staging buffers: identical to Alloc(0, size).
func (rt *Runtime) AllocHost(size int64) (Ptr, error) {
	return rt.Alloc(hostDeviceID, size)
}

// AllocUnified has no backing support in any shipped backend: none of
// host, CUDA, or OpenCL here implement a unified/managed memory path, so
// this always fails rather than silently degrading to a device allocation
// a caller might assume is host-accessible.
func (rt *Runtime) AllocUnified(id DeviceID, size int64) (Ptr, error) {
	return nil, newErr(KindBackendFailure, "unified memory is not supported by any registered backend")
}

// GetDevicePtr returns ptr unchanged when id is host (host pointers are
// already ordinary process memory) and fails otherwise: none of the
// shipped backends expose a host-mapped alias for device memory.
func (rt *Runtime) GetDevicePtr(id DeviceID, ptr Ptr) (Ptr, error) {
	if id == hostDeviceID {
		return ptr, nil
	}
	return nil, newErr(KindBackendFailure, "device %d does not expose a host-mapped pointer", id)
}

// Release frees ptr and removes it from the allocation table.
func (rt *Runtime) Release(ptr Ptr) error {
	a, err := rt.allocs.remove(ptr)
	if err != nil {
		return err
	}
	be, local, err := rt.reg.lookup(a.Device)
	if err != nil {
		return err
	}
	if err := be.Release(ptr); err != nil {
		return wrapErr(KindBackendFailure, err, "release on device %d (local %d)", a.Device, local)
	}
	rt.logDebug("release %p (device %d, %d bytes)", ptr, a.Device, a.Size)
	return nil
}

// Copy routes src -> dst through the copy router.
func (rt *Runtime) Copy(src, dst Ptr, size int64) error {
	return rt.copier.copy(src, dst, size)
}

// SetGridSize sets the grid extent for device_id's next launch.
func (rt *Runtime) SetGridSize(id DeviceID, x, y, z uint32) error {
	st, err := rt.state(id)
	if err != nil {
		return err
	}
	be, local, err := rt.reg.lookup(id)
	if err != nil {
		return err
	}
	if err := be.SetGridSize(local, x, y, z); err != nil {
		return wrapErr(KindBackendFailure, err, "set_grid_size on device %d", id)
	}
	st.mu.Lock()
	st.grid = [3]uint32{x, y, z}
	st.mu.Unlock()
	return nil
}

// SetBlockSize sets the block extent for device_id's next launch.
func (rt *Runtime) SetBlockSize(id DeviceID, x, y, z uint32) error {
	st, err := rt.state(id)
	if err != nil {
		return err
	}
	be, local, err := rt.reg.lookup(id)
	if err != nil {
		return err
	}
	if err := be.SetBlockSize(local, x, y, z); err != nil {
		return wrapErr(KindBackendFailure, err, "set_block_size on device %d", id)
	}
	st.mu.Lock()
	st.block = [3]uint32{x, y, z}
	st.mu.Unlock()
	return nil
}

// SetArg sets the argument at index for device_id's next launch. Slots may
// be filled out of order; gaps are allowed until LaunchKernel, which fails
// with MissingArgument if any remain unset.
func (rt *Runtime) SetArg(id DeviceID, index uint32, arg backend.Arg) error {
	st, err := rt.state(id)
	if err != nil {
		return err
	}
	be, local, err := rt.reg.lookup(id)
	if err != nil {
		return err
	}
	if err := be.SetArg(local, index, arg); err != nil {
		return wrapErr(KindBackendFailure, err, "set_arg %d on device %d", index, id)
	}
	st.mu.Lock()
	for uint32(len(st.args)) <= index {
		st.args = append(st.args, nil)
	}
	a := arg
	st.args[index] = &a
	st.mu.Unlock()
	return nil
}

// LoadKernel loads modulePath's entryName on device_id, skipping the
// backend call if the in-memory cache already recorded this exact
// (device, path, entry) as loaded and it is still the device's current
// kernel.
func (rt *Runtime) LoadKernel(id DeviceID, modulePath, entryName string) error {
	st, err := rt.state(id)
	if err != nil {
		return err
	}
	be, local, err := rt.reg.lookup(id)
	if err != nil {
		return err
	}

	st.mu.Lock()
	current := st.loaded && st.modulePath == modulePath && st.entryName == entryName
	st.mu.Unlock()

	key := moduleKey{device: id, path: modulePath, entry: entryName}
	if !rt.cache.seen(key) || !current {
		if rt.persistCache != nil {
			rt.recordPersistent(modulePath, entryName)
		}
		if err := be.LoadKernel(local, modulePath, entryName); err != nil {
			rt.cache.invalidate(id)
			return wrapErr(KindBackendFailure, err, "load_kernel %s/%s on device %d", modulePath, entryName, id)
		}
		rt.cache.record(key)
	}

	st.mu.Lock()
	st.modulePath = modulePath
	st.entryName = entryName
	st.loaded = true
	st.mu.Unlock()
	return nil
}

// EnablePersistentModuleCache opens dir as a content-addressed on-disk
// cache for kernel module bytes. Once enabled, LoadKernel stores each
// module it passes to a backend under the digest of its bytes (see
// recordPersistent). The store is only written: LoadKernel never reads it
// back, so the module file is still read and the backend still loads it.
// Gated by config.Config.PersistentModuleCache.
func (rt *Runtime) EnablePersistentModuleCache(dir string) error {
	c, err := modulecache.Open(dir)
	if err != nil {
		return err
	}
	rt.persistCache = c
	return nil
}

// recordPersistent mirrors modulePath's bytes into the persistent cache if
// not already present under their content digest. Read or store failures
// here are non-fatal: the backend's own LoadKernel call below is the
// authority on whether the module is usable, this is only a warm-cache
// optimization.
func (rt *Runtime) recordPersistent(modulePath, entryName string) {
	data, err := os.ReadFile(modulePath)
	if err != nil {
		rt.logDebug("persistent module cache: reading %s: %v", modulePath, err)
		return
	}
	digest := modulecache.Digest(data)
	if rt.persistCache.Has(digest) {
		return
	}
	if _, err := rt.persistCache.Put(data, entryName, modulePath); err != nil {
		rt.logDebug("persistent module cache: storing %s: %v", modulePath, err)
	}
}

// LaunchKernel dispatches the currently loaded kernel with the currently
// configured grid/block/args on device_id, failing fast with NoKernelLoaded
// or MissingArgument before ever calling into the backend.
func (rt *Runtime) LaunchKernel(id DeviceID) error {
	st, err := rt.state(id)
	if err != nil {
		return err
	}
	be, local, err := rt.reg.lookup(id)
	if err != nil {
		return err
	}

	st.mu.Lock()
	if !st.loaded {
		st.mu.Unlock()
		return newErr(KindNoKernelLoaded, "launch_kernel on device %d with no kernel loaded", id)
	}
	for i, a := range st.args {
		if a == nil {
			st.mu.Unlock()
			return newErr(KindMissingArgument, "launch_kernel on device %d with argument slot %d unset", id, i)
		}
	}
	st.mu.Unlock()

	start := time.Now()
	if err := be.LaunchKernel(local); err != nil {
		return wrapErr(KindBackendFailure, err, "launch_kernel on device %d (local %d)", id, local)
	}
	if err := be.Synchronize(local); err != nil {
		return wrapErr(KindBackendFailure, err, "synchronize after launch on device %d (local %d)", id, local)
	}
	atomic.AddInt64(&rt.kernelMicros, time.Since(start).Microseconds())
	return nil
}

// Synchronize blocks until device_id's outstanding work completes.
func (rt *Runtime) Synchronize(id DeviceID) error {
	be, local, err := rt.reg.lookup(id)
	if err != nil {
		return err
	}
	if err := be.Synchronize(local); err != nil {
		return wrapErr(KindBackendFailure, err, "synchronize on device %d (local %d)", id, local)
	}
	return nil
}

// GetKernelTime returns the process-wide accumulated kernel execution time
// in microseconds, mirroring the original runtime's single atomic
// accumulator rather than a per-device breakdown.
func (rt *Runtime) GetKernelTime() int64 {
	return atomic.LoadInt64(&rt.kernelMicros)
}

// GetMicroTime returns a monotonic wall-clock reading in microseconds,
// suitable for callers to diff across two calls; it carries no epoch
// meaning on its own.
func (rt *Runtime) GetMicroTime() int64 {
	return time.Since(microTimeBase).Microseconds()
}

// microTimeBase is the fixed reference GetMicroTime measures from; time.Since
// uses its monotonic clock reading.
var microTimeBase = time.Now()

// Info returns a snapshot of device_id's current dispatch configuration,
// for diagnostics (cmd/accelctl info).
func (rt *Runtime) Info(id DeviceID) (LaunchConfig, error) {
	st, err := rt.state(id)
	if err != nil {
		return LaunchConfig{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return LaunchConfig{
		Grid:       st.grid,
		Block:      st.block,
		ModulePath: st.modulePath,
		EntryName:  st.entryName,
		ArgCount:   len(st.args),
	}, nil
}

// ResolveByKind maps a C ABI packed device id's (platform kind, local
// index) pair to this runtime's dense DeviceID. See backend.DecodeDeviceID
// for unpacking the wire encoding itself.
func (rt *Runtime) ResolveByKind(kind backend.Kind, local int) (DeviceID, error) {
	return rt.reg.resolveByKind(kind, local)
}

// BackendName returns the name of the backend owning device_id.
func (rt *Runtime) BackendName(id DeviceID) (string, error) {
	be, _, err := rt.reg.lookup(id)
	if err != nil {
		return "", err
	}
	return be.Name(), nil
}

// liveAllocations reports the number of allocations not yet released;
// Teardown uses this to refuse tearing down a runtime with outstanding
// device memory.
func (rt *Runtime) liveAllocations() int {
	return rt.allocs.len()
}
