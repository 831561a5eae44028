// Package backend defines the capability surface every accelerator platform
// must implement, and the small set of shared types (kernel arguments,
// device-id encoding) that the runtime and the platform implementations
// agree on.
package backend

import "unsafe"

// Kind identifies a platform family. It is the low nibble of the public
// device-id encoding used by the C ABI: platform_kind | (local_index << 4).
type Kind uint32

const (
	KindHost Kind = iota
	KindCUDA
	KindOpenCL
)

func (k Kind) String() string {
	switch k {
	case KindHost:
		return "host"
	case KindCUDA:
		return "cuda"
	case KindOpenCL:
		return "opencl"
	default:
		return "unknown"
	}
}

// EncodeDeviceID packs a platform kind and a local device index into the
// wire encoding generated code relies on.
func EncodeDeviceID(kind Kind, local int) uint32 {
	return uint32(kind) | (uint32(local) << 4)
}

// DecodeDeviceID splits a wire device id back into platform kind and local
// index.
func DecodeDeviceID(id uint32) (Kind, int) {
	return Kind(id & 0xf), int(id >> 4)
}

// Arg is a single positional kernel argument: a pointer to a value (scalar
// or buffer address) plus the byte size of the pointed-to value. Size is
// not part of the original set_arg signature, but every backend
// (OpenCL's clSetKernelArg, CUDA's argument table, the host's byte-copy
// emulation) needs it to forward the value correctly, and the C ABI's
// launch_kernel symbol already carries arg_sizes alongside arg pointers.
type Arg struct {
	Value unsafe.Pointer
	Size  uint32
}

// Backend is the capability surface a platform exposes to the runtime.
// Every method operates on a local device index (0..DeviceCount()-1) within
// that backend, not a runtime-wide DeviceID — translation between the two
// is the registry's job.
type Backend interface {
	// Name returns a human-readable platform name (e.g. "host", "OpenCL").
	Name() string

	// DeviceCount returns the number of local devices this backend exposes.
	DeviceCount() int

	// Alloc allocates size bytes on the given local device and returns an
	// opaque pointer. Fails with an OutOfMemory-class error if the driver
	// denies the request.
	Alloc(local int, size int64) (unsafe.Pointer, error)

	// Release frees a pointer previously returned by Alloc on this backend.
	// Behavior on foreign pointers is undefined; the runtime guarantees it
	// never passes one.
	Release(ptr unsafe.Pointer) error

	// Copy performs an intra-platform copy between two pointers owned by
	// this backend. size is the number of bytes to transfer.
	Copy(src, dst unsafe.Pointer, size int64) error

	// CopyFromHost copies size bytes from host memory into a device
	// allocation owned by this backend.
	CopyFromHost(hostSrc, devDst unsafe.Pointer, size int64) error

	// CopyToHost copies size bytes from a device allocation owned by this
	// backend into host memory.
	CopyToHost(devSrc, hostDst unsafe.Pointer, size int64) error

	// SetBlockSize configures the next launch's block (work-group) size for
	// a local device.
	SetBlockSize(local int, x, y, z uint32) error

	// SetGridSize configures the next launch's grid size for a local
	// device.
	SetGridSize(local int, x, y, z uint32) error

	// SetArg binds a positional kernel argument for the next launch on a
	// local device. Slot semantics are last-write-wins; gaps are permitted
	// until LaunchKernel.
	SetArg(local int, index uint32, arg Arg) error

	// LoadKernel loads (or returns the cached handle for) the entry point
	// named by modulePath/entryName on a local device. Idempotent.
	LoadKernel(local int, modulePath, entryName string) error

	// LaunchKernel dispatches the currently loaded kernel on the currently
	// configured grid/block with the currently bound arguments. Fails with
	// a NoKernelLoaded/MissingArgument-class error if configuration is
	// incomplete.
	LaunchKernel(local int) error

	// Synchronize blocks until all prior work on a local device completes.
	Synchronize(local int) error
}
