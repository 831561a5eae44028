// Package opencl implements the accelerator runtime's OpenCL backend: the
// cross-platform option for AMD, Intel, and third-party GPUs.
//
// # Requirements
//
// For AMD GPUs on Linux:
//   - ROCm (Radeon Open Compute): https://rocm.docs.amd.com/
//   - Or AMD GPU drivers with OpenCL support
//
// For Intel GPUs:
//   - Intel oneAPI or Intel OpenCL runtime
//
// For NVIDIA GPUs (alternative to the CUDA backend):
//   - NVIDIA drivers with OpenCL support
//
// # Build Tags
//
// This package's cgo implementation is only compiled with the "opencl"
// build tag:
//
//	go build -tags opencl
//
// Without the tag, New returns a stub backend that reports
// DeviceCount() == 0 and fails every operation with ErrOpenCLNotAvailable,
// so a binary built without an OpenCL-capable toolchain still links and
// runs in host-only mode.
//
// # Architecture
//
// Unlike a fixed-kernel vector-search accelerator, this backend loads
// arbitrary OpenCL C source from the path passed to LoadKernel and exposes
// the runtime's generic positional argument binding via clSetKernelArg, so
// it can host whatever kernel generated code compiles, not a hand-picked
// set of similarity kernels.
package opencl
