package runtime

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"unsafe"

	"github.com/anydsl-go/runtime/pkg/backend"
	"github.com/anydsl-go/runtime/pkg/backend/host"
	"github.com/anydsl-go/runtime/pkg/modulecache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	return New(false, host.New(2))
}

func TestHostAlwaysDeviceZero(t *testing.T) {
	rt := newTestRuntime(t)
	name, err := rt.BackendName(0)
	require.NoError(t, err)
	assert.Equal(t, "host", name)
}

func TestAllocCopyReleaseRoundTrip(t *testing.T) {
	rt := newTestRuntime(t)

	const n = 64
	src, err := rt.Alloc(0, n*4)
	require.NoError(t, err)
	dst, err := rt.Alloc(0, n*4)
	require.NoError(t, err)

	srcSlice := unsafe.Slice((*int32)(src), n)
	for i := range srcSlice {
		srcSlice[i] = int32(i * 2)
	}

	require.NoError(t, rt.Copy(src, dst, n*4))

	dstSlice := unsafe.Slice((*int32)(dst), n)
	for i := range dstSlice {
		assert.Equal(t, int32(i*2), dstSlice[i])
	}

	require.NoError(t, rt.Release(src))
	require.NoError(t, rt.Release(dst))
	assert.Equal(t, 0, rt.liveAllocations())
}

func TestReleaseUnknownPointerFails(t *testing.T) {
	rt := newTestRuntime(t)
	err := rt.Release(unsafe.Pointer(&struct{}{}))
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, KindUnknownPointer, rerr.Kind)
}

func TestAllocUnknownDeviceFails(t *testing.T) {
	rt := newTestRuntime(t)
	_, err := rt.Alloc(99, 16)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, KindUnknownDevice, rerr.Kind)
}

// fakeBackend is a minimal non-host backend used to exercise the
// cross-platform copy rejection without needing real GPU hardware.
type fakeBackend struct {
	name string
	mem  map[unsafe.Pointer][]byte
	mu   sync.Mutex
}

func newFakeBackend(name string) *fakeBackend {
	return &fakeBackend{name: name, mem: map[unsafe.Pointer][]byte{}}
}

func (f *fakeBackend) Name() string     { return f.name }
func (f *fakeBackend) DeviceCount() int { return 1 }

func (f *fakeBackend) Alloc(local int, size int64) (unsafe.Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, size)
	ptr := unsafe.Pointer(&buf[0])
	f.mem[ptr] = buf
	return ptr, nil
}
func (f *fakeBackend) Release(ptr unsafe.Pointer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.mem, ptr)
	return nil
}
func (f *fakeBackend) Copy(src, dst unsafe.Pointer, size int64) error { return nil }
func (f *fakeBackend) CopyFromHost(hostSrc, devDst unsafe.Pointer, size int64) error {
	return nil
}
func (f *fakeBackend) CopyToHost(devSrc, hostDst unsafe.Pointer, size int64) error {
	return nil
}
func (f *fakeBackend) SetBlockSize(local int, x, y, z uint32) error { return nil }
func (f *fakeBackend) SetGridSize(local int, x, y, z uint32) error  { return nil }
func (f *fakeBackend) SetArg(local int, index uint32, arg backend.Arg) error {
	return nil
}
func (f *fakeBackend) LoadKernel(local int, modulePath, entryName string) error { return nil }
func (f *fakeBackend) LaunchKernel(local int) error                            { return nil }
func (f *fakeBackend) Synchronize(local int) error                            { return nil }

var _ backend.Backend = (*fakeBackend)(nil)

func TestCrossPlatformCopyUnsupported(t *testing.T) {
	rt := newTestRuntime(t)
	idsA := rt.RegisterBackend(newFakeBackend("fakeA"))
	idsB := rt.RegisterBackend(newFakeBackend("fakeB"))
	require.Len(t, idsA, 1)
	require.Len(t, idsB, 1)

	srcPtr, err := rt.Alloc(idsA[0], 16)
	require.NoError(t, err)
	dstPtr, err := rt.Alloc(idsB[0], 16)
	require.NoError(t, err)

	err = rt.Copy(srcPtr, dstPtr, 16)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, KindCrossPlatformCopyUnsupported, rerr.Kind)
}

func TestLaunchKernelNoKernelLoadedFails(t *testing.T) {
	rt := newTestRuntime(t)
	err := rt.LaunchKernel(0)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, KindNoKernelLoaded, rerr.Kind)
}

func TestLaunchKernelMissingArgumentFails(t *testing.T) {
	rt := newTestRuntime(t)
	host.Register("missing-arg.mod", "entry", func(idx uint64, args []backend.Arg) {})
	require.NoError(t, rt.LoadKernel(0, "missing-arg.mod", "entry"))
	require.NoError(t, rt.SetArg(0, 1, backend.Arg{}))

	err := rt.LaunchKernel(0)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, KindMissingArgument, rerr.Kind)
}

func TestLaunchKernelWritesOutputAndAccumulatesKernelTime(t *testing.T) {
	const n = 256
	rt := newTestRuntime(t)

	out, err := rt.Alloc(0, n*4)
	require.NoError(t, err)
	outSlice := unsafe.Slice((*int32)(out), n)

	host.Register("fill.mod", "fill", func(idx uint64, args []backend.Arg) {
		elems := unsafe.Slice((*int32)(args[0].Value), n)
		elems[idx] = int32(idx * 3)
	})

	require.NoError(t, rt.LoadKernel(0, "fill.mod", "fill"))
	require.NoError(t, rt.SetGridSize(0, n, 1, 1))
	require.NoError(t, rt.SetBlockSize(0, 1, 1, 1))
	require.NoError(t, rt.SetArg(0, 0, backend.Arg{Value: out, Size: 8}))

	before := rt.GetKernelTime()
	require.NoError(t, rt.LaunchKernel(0))
	after := rt.GetKernelTime()
	assert.GreaterOrEqual(t, after, before)

	for i := 0; i < n; i++ {
		assert.Equal(t, int32(i*3), outSlice[i])
	}
}

func TestAllocUnifiedUnsupported(t *testing.T) {
	rt := newTestRuntime(t)
	_, err := rt.AllocUnified(0, 16)
	assert.Error(t, err)
}

func TestGetDevicePtrHostIsIdentity(t *testing.T) {
	rt := newTestRuntime(t)
	ptr, err := rt.Alloc(0, 16)
	require.NoError(t, err)
	got, err := rt.GetDevicePtr(0, ptr)
	require.NoError(t, err)
	assert.Equal(t, ptr, got)
}

func TestLoadKernelRecordsPersistentModuleCache(t *testing.T) {
	rt := newTestRuntime(t)

	modulePath := filepath.Join(t.TempDir(), "scale.mod")
	require.NoError(t, os.WriteFile(modulePath, []byte("fake kernel module bytes"), 0o644))
	host.Register(modulePath, "scale", func(idx uint64, args []backend.Arg) {})

	require.NoError(t, rt.EnablePersistentModuleCache(t.TempDir()))
	require.NoError(t, rt.LoadKernel(0, modulePath, "scale"))

	data, err := os.ReadFile(modulePath)
	require.NoError(t, err)
	digest := modulecache.Digest(data)
	assert.True(t, rt.persistCache.Has(digest))
}

func TestConcurrentAllocRelease(t *testing.T) {
	rt := newTestRuntime(t)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 32; i++ {
				ptr, err := rt.Alloc(0, 32)
				require.NoError(t, err)
				require.NoError(t, rt.Release(ptr))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, rt.liveAllocations())
}
