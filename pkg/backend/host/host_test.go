package host

import (
	"testing"
	"unsafe"

	"github.com/anydsl-go/runtime/pkg/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendAllocCopyRoundTrip(t *testing.T) {
	b := New(2)
	require.Equal(t, "host", b.Name())
	require.Equal(t, 1, b.DeviceCount())

	const n = 16
	src, err := b.Alloc(0, n*4)
	require.NoError(t, err)
	dst, err := b.Alloc(0, n*4)
	require.NoError(t, err)

	srcSlice := unsafe.Slice((*int32)(src), n)
	for i := range srcSlice {
		srcSlice[i] = int32(i)
	}

	require.NoError(t, b.Copy(src, dst, n*4))

	dstSlice := unsafe.Slice((*int32)(dst), n)
	for i := range dstSlice {
		assert.Equal(t, int32(i), dstSlice[i])
	}
}

func TestBackendLaunchKernelNoKernelLoaded(t *testing.T) {
	b := New(1)
	err := b.LaunchKernel(0)
	assert.ErrorIs(t, err, ErrNoKernelLoaded)
}

func TestBackendLaunchKernelMissingArgument(t *testing.T) {
	b := New(1)
	Register("test-missing-arg.mod", "entry", func(idx uint64, args []backend.Arg) {})
	require.NoError(t, b.LoadKernel(0, "test-missing-arg.mod", "entry"))
	require.NoError(t, b.SetArg(0, 1, backend.Arg{})) // leaves slot 0 unset
	err := b.LaunchKernel(0)
	assert.ErrorIs(t, err, ErrMissingArgument)
}

func TestBackendLaunchKernelWritesOutput(t *testing.T) {
	const n = 1024
	b := New(4)

	out, err := b.Alloc(0, n*4)
	require.NoError(t, err)
	outSlice := unsafe.Slice((*int32)(out), n)

	Register("simple.mod", "simple", func(idx uint64, args []backend.Arg) {
		outPtr := (*int32)(args[0].Value)
		base := unsafe.Pointer(outPtr)
		elems := unsafe.Slice((*int32)(base), n)
		elems[idx] = int32(idx)
	})

	require.NoError(t, b.LoadKernel(0, "simple.mod", "simple"))
	require.NoError(t, b.SetGridSize(0, n, 1, 1))
	require.NoError(t, b.SetBlockSize(0, 1, 1, 1))
	require.NoError(t, b.SetArg(0, 0, backend.Arg{Value: out, Size: 8}))
	require.NoError(t, b.LaunchKernel(0))

	for i := 0; i < n; i++ {
		assert.Equal(t, int32(i), outSlice[i])
	}
}

func TestBackendUnknownDevice(t *testing.T) {
	b := New(1)
	_, err := b.Alloc(1, 16)
	assert.Error(t, err)
}
