// Package runtime implements the accelerator runtime's platform-agnostic
// core: the device registry, the process-wide allocation table, the
// cross-platform copy router, and the per-device kernel dispatch state
// machine that mediate between generated host code and whatever backend
// (host, CUDA, OpenCL) a given device_id names.
package runtime

import (
	"unsafe"

	"github.com/anydsl-go/runtime/pkg/backend"
)

// DeviceID is the dense, process-wide identifier the registry hands out
// for each (backend, local index) pair. device_id 0 always denotes the
// host backend's single logical device.
type DeviceID uint32

// Allocation records which device owns a pointer handed out by Alloc, and
// how large it is, so Release and Copy can validate and route without the
// caller repeating that bookkeeping.
type Allocation struct {
	Device DeviceID
	Size   int64
}

// LaunchConfig mirrors the per-device kernel dispatch state machine's
// configuration: grid/block extents and positional arguments,
// exposed read-only for diagnostics via Info.
type LaunchConfig struct {
	Grid       [3]uint32
	Block      [3]uint32
	ModulePath string
	EntryName  string
	ArgCount   int
}

// deviceEntry pairs a registered backend with the local index the registry
// assigned it.
type deviceEntry struct {
	backend backend.Backend
	local   int
}

// Ptr is an opaque device-memory handle. It is nothing more than the
// unsafe.Pointer a backend returned from Alloc; the runtime never
// dereferences it directly, only looks it up in the allocation table and
// forwards it to a backend's Copy/Release/SetArg.
type Ptr = unsafe.Pointer
