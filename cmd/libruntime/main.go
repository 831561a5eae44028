// Command libruntime is the accelerator runtime's stable C ABI, built as a
// c-shared library (go build -buildmode=c-shared) that generated host
// code links against directly, mirroring the symbol surface of an
// AnyDSL-style runtime.
package main

/*
#include <stdint.h>

typedef void (*body_fn)(int64_t);
static inline void call_body(body_fn fn, int64_t i) { fn(i); }

typedef void (*thread_fn)(void*);
static inline void call_thread(thread_fn fn, void *data) { fn(data); }
*/
import "C"

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	goruntime "runtime"
	"strconv"
	"sync"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"github.com/anydsl-go/runtime/pkg/backend"
	"github.com/anydsl-go/runtime/pkg/runtime"
)

// fatal reports err in the "Runtime error: " style every exported symbol
// here must use on failure, then aborts the process. err is already a
// *runtime.Error whose Error() carries that prefix; for a non-nil err this
// never returns, and a nil err is a no-op.
func fatal(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

// fatalf reports a condition local to this ABI boundary (not already a
// *runtime.Error) in the same style, then aborts the process.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Runtime error: "+format+"\n", args...)
	os.Exit(1)
}

// device id bit-packing: platform_kind | (local_index << 4), matching
// the original's ANYDSL_DEVICE macro. The runtime's own
// DeviceID is a dense registry index, not this packed form; decode maps
// from the ABI's packed id to the runtime's registry by platform kind and
// local index.
func decodeDeviceID(packed int32) backend.Kind {
	return backend.Kind(packed & 0xF)
}

func localIndex(packed int32) int {
	return int(packed >> 4)
}

// resolveDeviceID maps a packed ABI device id to the runtime's registry
// DeviceID by scanning for the matching backend kind and local index.
// The symbol surface is the only ABI boundary that needs this translation;
// internal Go callers use runtime.DeviceID directly.
func resolveDeviceID(packed int32) (runtime.DeviceID, error) {
	kind := decodeDeviceID(packed)
	local := localIndex(packed)
	return runtime.Default().ResolveByKind(kind, local)
}

//export anydsl_info
func anydsl_info() {
	rt := runtime.Default()
	for id := 0; id < rt.DeviceCount(); id++ {
		name, err := rt.BackendName(runtime.DeviceID(id))
		if err != nil {
			fatal(err)
		}
		os.Stdout.WriteString(name + "\n")
	}
}

//export anydsl_alloc
func anydsl_alloc(device int32, size int64) unsafe.Pointer {
	id, err := resolveDeviceID(device)
	if err != nil {
		fatal(err)
	}
	ptr, err := runtime.Default().Alloc(id, size)
	if err != nil {
		fatal(err)
	}
	return ptr
}

//export anydsl_alloc_host
func anydsl_alloc_host(device int32, size int64) unsafe.Pointer {
	ptr, err := runtime.Default().AllocHost(size)
	if err != nil {
		fatal(err)
	}
	return ptr
}

//export anydsl_alloc_unified
func anydsl_alloc_unified(device int32, size int64) unsafe.Pointer {
	id, err := resolveDeviceID(device)
	if err != nil {
		fatal(err)
	}
	ptr, err := runtime.Default().AllocUnified(id, size)
	if err != nil {
		fatal(err)
	}
	return ptr
}

//export anydsl_get_device_ptr
func anydsl_get_device_ptr(device int32, ptr unsafe.Pointer) unsafe.Pointer {
	id, err := resolveDeviceID(device)
	if err != nil {
		fatal(err)
	}
	out, err := runtime.Default().GetDevicePtr(id, ptr)
	if err != nil {
		fatal(err)
	}
	return out
}

//export anydsl_release
func anydsl_release(device int32, ptr unsafe.Pointer) {
	if err := runtime.Default().Release(ptr); err != nil {
		fatal(err)
	}
}

//export anydsl_release_host
func anydsl_release_host(device int32, ptr unsafe.Pointer) {
	if err := runtime.Default().Release(ptr); err != nil {
		fatal(err)
	}
}

//export anydsl_copy
func anydsl_copy(srcDevice int32, src unsafe.Pointer, srcOffset int64, dstDevice int32, dst unsafe.Pointer, dstOffset int64, size int64) {
	srcPtr := unsafe.Add(src, srcOffset)
	dstPtr := unsafe.Add(dst, dstOffset)
	if err := runtime.Default().Copy(srcPtr, dstPtr, size); err != nil {
		fatal(err)
	}
}

//export anydsl_launch_kernel
func anydsl_launch_kernel(device int32, file *C.char, kernel *C.char, grid *C.uint32_t, block *C.uint32_t, args unsafe.Pointer, argSizes *C.uint32_t, argAligns *C.uint8_t, numArgs C.uint32_t) {
	id, err := resolveDeviceID(device)
	if err != nil {
		fatal(err)
	}
	rt := runtime.Default()

	gridSlice := unsafe.Slice((*uint32)(unsafe.Pointer(grid)), 3)
	blockSlice := unsafe.Slice((*uint32)(unsafe.Pointer(block)), 3)
	if err := rt.SetGridSize(id, gridSlice[0], gridSlice[1], gridSlice[2]); err != nil {
		fatal(err)
	}
	if err := rt.SetBlockSize(id, blockSlice[0], blockSlice[1], blockSlice[2]); err != nil {
		fatal(err)
	}

	goFile := C.GoString(file)
	goKernel := C.GoString(kernel)
	if err := rt.LoadKernel(id, goFile, goKernel); err != nil {
		fatal(err)
	}

	n := uint32(numArgs)
	if n > 0 {
		argPtrs := unsafe.Slice((*unsafe.Pointer)(args), n)
		argSizeSlice := unsafe.Slice((*uint32)(unsafe.Pointer(argSizes)), n)
		for i := uint32(0); i < n; i++ {
			arg := backend.Arg{Value: argPtrs[i], Size: argSizeSlice[i]}
			if err := rt.SetArg(id, i, arg); err != nil {
				fatal(err)
			}
		}
	}

	if err := rt.LaunchKernel(id); err != nil {
		fatal(err)
	}
}

//export anydsl_synchronize
func anydsl_synchronize(device int32) {
	id, err := resolveDeviceID(device)
	if err != nil {
		fatal(err)
	}
	if err := runtime.Default().Synchronize(id); err != nil {
		fatal(err)
	}
}

var (
	randMu  sync.Mutex
	randSrc = rand.New(rand.NewSource(1))
)

//export anydsl_random_val
func anydsl_random_val() C.float {
	randMu.Lock()
	defer randMu.Unlock()
	return C.float(randSrc.Float32())
}

//export anydsl_random_seed
func anydsl_random_seed(seed C.uint32_t) {
	randMu.Lock()
	defer randMu.Unlock()
	randSrc = rand.New(rand.NewSource(int64(seed)))
}

//export anydsl_get_micro_time
func anydsl_get_micro_time() C.uint64_t {
	return C.uint64_t(runtime.Default().GetMicroTime())
}

//export anydsl_get_kernel_time
func anydsl_get_kernel_time() C.uint64_t {
	return C.uint64_t(runtime.Default().GetKernelTime())
}

//export anydsl_isinff
func anydsl_isinff(v C.float) C.int32_t {
	if math.IsInf(float64(v), 0) {
		return 1
	}
	return 0
}

//export anydsl_isnanf
func anydsl_isnanf(v C.float) C.int32_t {
	if math.IsNaN(float64(v)) {
		return 1
	}
	return 0
}

//export anydsl_isfinitef
func anydsl_isfinitef(v C.float) C.int32_t {
	f := float64(v)
	if !math.IsInf(f, 0) && !math.IsNaN(f) {
		return 1
	}
	return 0
}

//export anydsl_isinf
func anydsl_isinf(v C.double) C.int32_t {
	if math.IsInf(float64(v), 0) {
		return 1
	}
	return 0
}

//export anydsl_isnan
func anydsl_isnan(v C.double) C.int32_t {
	if math.IsNaN(float64(v)) {
		return 1
	}
	return 0
}

//export anydsl_isfinite
func anydsl_isfinite(v C.double) C.int32_t {
	f := float64(v)
	if !math.IsInf(f, 0) && !math.IsNaN(f) {
		return 1
	}
	return 0
}

//export anydsl_print_char
func anydsl_print_char(v C.char) { os.Stdout.Write([]byte{byte(v)}) }

//export anydsl_print_short
func anydsl_print_short(v C.int16_t) { printValue(int64(v)) }

//export anydsl_print_int
func anydsl_print_int(v C.int32_t) { printValue(int64(v)) }

//export anydsl_print_long
func anydsl_print_long(v C.int64_t) { printValue(int64(v)) }

//export anydsl_print_float
func anydsl_print_float(v C.float) { printValue(float64(v)) }

//export anydsl_print_double
func anydsl_print_double(v C.double) { printValue(float64(v)) }

//export anydsl_print_string
func anydsl_print_string(v *C.char) {
	os.Stdout.WriteString(C.GoString(v))
}

func printValue(v any) {
	switch t := v.(type) {
	case int64:
		os.Stdout.WriteString(strconv.FormatInt(t, 10))
	case float64:
		os.Stdout.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	}
}

var (
	alignedMu     sync.Mutex
	alignedAllocs = map[unsafe.Pointer][]byte{}
)

//export anydsl_aligned_malloc
func anydsl_aligned_malloc(size, align C.int64_t) unsafe.Pointer {
	if align <= 0 {
		align = 1
	}
	buf := make([]byte, int64(size)+int64(align))
	base := uintptr(unsafe.Pointer(&buf[0]))
	mask := uintptr(align) - 1
	aligned := (base + mask) &^ mask
	ptr := unsafe.Pointer(aligned)

	alignedMu.Lock()
	alignedAllocs[ptr] = buf
	alignedMu.Unlock()
	return ptr
}

//export anydsl_aligned_free
func anydsl_aligned_free(ptr unsafe.Pointer) {
	alignedMu.Lock()
	_, ok := alignedAllocs[ptr]
	delete(alignedAllocs, ptr)
	alignedMu.Unlock()
	if !ok {
		fatalf("aligned_free on pointer %p never returned by aligned_malloc", ptr)
	}
}

// parallel_for/spawn_thread/sync_thread share the same bounded-fan-out
// idiom as pkg/backend/host's kernel emulation, applied to generated code's
// host-side parallelism rather than a simulated kernel launch.

//export anydsl_parallel_for
func anydsl_parallel_for(numThreads int32, lower, upper int64, body C.body_fn) {
	if upper <= lower {
		return
	}
	workers := int(numThreads)
	if workers <= 0 {
		workers = goruntime.NumCPU()
	}
	total := upper - lower
	if int64(workers) > total {
		workers = int(total)
	}
	chunk := (total + int64(workers) - 1) / int64(workers)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		start := lower + int64(w)*chunk
		if start >= upper {
			break
		}
		end := start + chunk
		if end > upper {
			end = upper
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				C.call_body(body, C.int64_t(i))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fatalf("parallel_for: %v", err)
	}
}

var (
	threadMu      sync.Mutex
	threadHandles = map[uint64]chan struct{}{}
	nextThreadID  uint64
)

//export anydsl_spawn_thread
func anydsl_spawn_thread(fn C.thread_fn, data unsafe.Pointer) C.uint64_t {
	done := make(chan struct{})

	threadMu.Lock()
	nextThreadID++
	id := nextThreadID
	threadHandles[id] = done
	threadMu.Unlock()

	go func() {
		C.call_thread(fn, data)
		close(done)
	}()
	return C.uint64_t(id)
}

//export anydsl_sync_thread
func anydsl_sync_thread(handle C.uint64_t) {
	threadMu.Lock()
	done, ok := threadHandles[uint64(handle)]
	if ok {
		delete(threadHandles, uint64(handle))
	}
	threadMu.Unlock()

	if !ok {
		fatalf("sync_thread on unknown thread handle %d", uint64(handle))
	}
	<-done
}

func main() {} // required by -buildmode=c-shared, never runs
