//go:build !cuda || !(linux || windows)
// +build !cuda !linux,!windows

package cuda

import (
	"errors"
	"unsafe"

	"github.com/anydsl-go/runtime/pkg/backend"
)

// Errors returned by the stub build (no CUDA toolchain linked in, or an
// unsupported OS).
var (
	ErrCUDANotAvailable = errors.New("cuda: CUDA is not available (build without cuda tag or unsupported platform)")
	ErrDeviceCreation   = errors.New("cuda: failed to create CUDA device")
)

// Backend is the stub CUDA backend used when the binary is built without
// the "cuda" tag, or on a platform where the CUDA Driver API does not
// exist (darwin). It reports zero devices and fails every operation with
// ErrCUDANotAvailable.
type Backend struct{}

// IsAvailable returns false on systems without CUDA.
func IsAvailable() bool { return false }

// New returns an empty stub backend; DeviceCount() is always 0.
func New() *Backend { return &Backend{} }

func (b *Backend) Name() string     { return "cuda" }
func (b *Backend) DeviceCount() int { return 0 }

func (b *Backend) Alloc(local int, size int64) (unsafe.Pointer, error) {
	return nil, ErrCUDANotAvailable
}
func (b *Backend) Release(ptr unsafe.Pointer) error { return ErrCUDANotAvailable }
func (b *Backend) Copy(src, dst unsafe.Pointer, size int64) error {
	return ErrCUDANotAvailable
}
func (b *Backend) CopyFromHost(hostSrc, devDst unsafe.Pointer, size int64) error {
	return ErrCUDANotAvailable
}
func (b *Backend) CopyToHost(devSrc, hostDst unsafe.Pointer, size int64) error {
	return ErrCUDANotAvailable
}
func (b *Backend) SetBlockSize(local int, x, y, z uint32) error { return ErrCUDANotAvailable }
func (b *Backend) SetGridSize(local int, x, y, z uint32) error  { return ErrCUDANotAvailable }
func (b *Backend) SetArg(local int, index uint32, arg backend.Arg) error {
	return ErrCUDANotAvailable
}
func (b *Backend) LoadKernel(local int, modulePath, entryName string) error {
	return ErrCUDANotAvailable
}
func (b *Backend) LaunchKernel(local int) error { return ErrCUDANotAvailable }
func (b *Backend) Synchronize(local int) error  { return ErrCUDANotAvailable }

var _ backend.Backend = (*Backend)(nil)
