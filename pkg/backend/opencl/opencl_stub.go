//go:build !opencl
// +build !opencl

package opencl

import (
	"errors"
	"unsafe"

	"github.com/anydsl-go/runtime/pkg/backend"
)

// Errors returned by the stub build (no OpenCL toolchain linked in).
var (
	ErrOpenCLNotAvailable = errors.New("opencl: OpenCL is not available (build without opencl tag)")
	ErrDeviceCreation     = errors.New("opencl: failed to create OpenCL device")
)

// Backend is the stub OpenCL backend used when the binary is built without
// the "opencl" tag. It reports zero devices and fails every operation with
// ErrOpenCLNotAvailable.
type Backend struct{}

// IsAvailable returns false on systems without OpenCL.
func IsAvailable() bool { return false }

// New returns an empty stub backend; DeviceCount() is always 0.
func New() *Backend { return &Backend{} }

func (b *Backend) Name() string     { return "opencl" }
func (b *Backend) DeviceCount() int { return 0 }

func (b *Backend) Alloc(local int, size int64) (unsafe.Pointer, error) {
	return nil, ErrOpenCLNotAvailable
}
func (b *Backend) Release(ptr unsafe.Pointer) error { return ErrOpenCLNotAvailable }
func (b *Backend) Copy(src, dst unsafe.Pointer, size int64) error {
	return ErrOpenCLNotAvailable
}
func (b *Backend) CopyFromHost(hostSrc, devDst unsafe.Pointer, size int64) error {
	return ErrOpenCLNotAvailable
}
func (b *Backend) CopyToHost(devSrc, hostDst unsafe.Pointer, size int64) error {
	return ErrOpenCLNotAvailable
}
func (b *Backend) SetBlockSize(local int, x, y, z uint32) error { return ErrOpenCLNotAvailable }
func (b *Backend) SetGridSize(local int, x, y, z uint32) error  { return ErrOpenCLNotAvailable }
func (b *Backend) SetArg(local int, index uint32, arg backend.Arg) error {
	return ErrOpenCLNotAvailable
}
func (b *Backend) LoadKernel(local int, modulePath, entryName string) error {
	return ErrOpenCLNotAvailable
}
func (b *Backend) LaunchKernel(local int) error { return ErrOpenCLNotAvailable }
func (b *Backend) Synchronize(local int) error  { return ErrOpenCLNotAvailable }

var _ backend.Backend = (*Backend)(nil)
