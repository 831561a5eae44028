//go:build !opencl
// +build !opencl

package opencl

import (
	"testing"
	"unsafe"

	"github.com/anydsl-go/runtime/pkg/backend"
	"github.com/stretchr/testify/assert"
)

func TestStubIsAvailable(t *testing.T) {
	assert.False(t, IsAvailable())
}

func TestStubDeviceCount(t *testing.T) {
	b := New()
	assert.Equal(t, 0, b.DeviceCount())
	assert.Equal(t, "opencl", b.Name())
}

func TestStubOperationsFail(t *testing.T) {
	b := New()

	_, err := b.Alloc(0, 16)
	assert.ErrorIs(t, err, ErrOpenCLNotAvailable)

	assert.ErrorIs(t, b.Release(nil), ErrOpenCLNotAvailable)
	assert.ErrorIs(t, b.Copy(nil, nil, 16), ErrOpenCLNotAvailable)
	assert.ErrorIs(t, b.CopyFromHost(nil, nil, 16), ErrOpenCLNotAvailable)
	assert.ErrorIs(t, b.CopyToHost(nil, nil, 16), ErrOpenCLNotAvailable)
	assert.ErrorIs(t, b.SetBlockSize(0, 1, 1, 1), ErrOpenCLNotAvailable)
	assert.ErrorIs(t, b.SetGridSize(0, 1, 1, 1), ErrOpenCLNotAvailable)
	assert.ErrorIs(t, b.SetArg(0, 0, backend.Arg{Value: unsafe.Pointer(nil)}), ErrOpenCLNotAvailable)
	assert.ErrorIs(t, b.LoadKernel(0, "kernel.cl", "entry"), ErrOpenCLNotAvailable)
	assert.ErrorIs(t, b.LaunchKernel(0), ErrOpenCLNotAvailable)
	assert.ErrorIs(t, b.Synchronize(0), ErrOpenCLNotAvailable)
}
