// Package cuda implements the accelerator runtime's CUDA backend for NVIDIA
// GPUs.
//
// # Requirements
//
//   - NVIDIA driver with a CUDA Driver API (libcuda) installed
//   - An NVVM/PTX kernel module produced by the same toolchain that emitted
//     the generated host code driving this runtime
//
// # Build Tags
//
// This package's cgo implementation is only compiled with the "cuda" build
// tag, and only on linux or windows:
//
//	go build -tags cuda
//
// Without the tag (or on darwin, where the CUDA Driver API does not ship),
// DeviceCount() reports 0 and every operation returns ErrCUDANotAvailable,
// so a binary built without the NVIDIA toolchain still links and falls back
// to the host backend.
//
// # Architecture
//
// LoadKernel loads a compiled .ptx or .cubin module from the path given by
// the runtime's kernel dispatch state machine and resolves entryName as a
// CUfunction; SetArg stages positional arguments as the array of argument
// pointers cuLaunchKernel takes, alongside the grid/block configuration set
// by SetGridSize/SetBlockSize.
package cuda
