//go:build cuda && (linux || windows)
// +build cuda
// +build linux windows

package cuda

/*
#cgo linux CFLAGS: -I/usr/local/cuda/include
#cgo linux LDFLAGS: -L/usr/local/cuda/lib64 -lcuda
#cgo windows CFLAGS: -IC:/cuda/include
#cgo windows LDFLAGS: -LC:/cuda/lib/x64 -lcuda

#include <cuda.h>
#include <stdlib.h>
#include <string.h>

static char cuda_last_error[256] = {0};

static void cuda_set_error(const char* msg) {
    strncpy(cuda_last_error, msg, sizeof(cuda_last_error) - 1);
}

const char* cuda_get_last_error() {
    return cuda_last_error;
}

static void cuda_set_error_code(CUresult res) {
    const char* name = NULL;
    cuGetErrorString(res, &name);
    cuda_set_error(name ? name : "unknown CUDA error");
}

static int cuda_driver_init_done = 0;

int cuda_get_device_count() {
    if (!cuda_driver_init_done) {
        if (cuInit(0) != CUDA_SUCCESS) {
            return 0;
        }
        cuda_driver_init_done = 1;
    }
    int count = 0;
    cuDeviceGetCount(&count);
    return count;
}

typedef struct {
    CUdevice device;
    CUcontext context;
    CUmodule module;
    CUfunction function;
    char loaded_path[512];
    char loaded_entry[256];
} CUDADevice;

CUDADevice* cuda_create_device(int device_id) {
    if (!cuda_driver_init_done) {
        if (cuInit(0) != CUDA_SUCCESS) {
            cuda_set_error("cuInit failed");
            return NULL;
        }
        cuda_driver_init_done = 1;
    }
    CUDADevice* dev = (CUDADevice*)calloc(1, sizeof(CUDADevice));
    if (!dev) {
        cuda_set_error("failed to allocate device struct");
        return NULL;
    }
    CUresult res = cuDeviceGet(&dev->device, device_id);
    if (res != CUDA_SUCCESS) {
        cuda_set_error_code(res);
        free(dev);
        return NULL;
    }
    res = cuCtxCreate(&dev->context, 0, dev->device);
    if (res != CUDA_SUCCESS) {
        cuda_set_error_code(res);
        free(dev);
        return NULL;
    }
    return dev;
}

void cuda_release_device(CUDADevice* dev) {
    if (!dev) return;
    if (dev->module) cuModuleUnload(dev->module);
    if (dev->context) cuCtxDestroy(dev->context);
    free(dev);
}

const char* cuda_device_name(CUDADevice* dev) {
    static char name[256];
    if (cuDeviceGetName(name, sizeof(name), dev->device) != CUDA_SUCCESS) {
        return "Unknown";
    }
    return name;
}

size_t cuda_device_memory(CUDADevice* dev) {
    size_t bytes = 0;
    cuDeviceTotalMem(&bytes, dev->device);
    return bytes;
}

void cuda_compute_capability(CUDADevice* dev, int* major, int* minor) {
    cuDeviceGetAttribute(major, CU_DEVICE_ATTRIBUTE_COMPUTE_CAPABILITY_MAJOR, dev->device);
    cuDeviceGetAttribute(minor, CU_DEVICE_ATTRIBUTE_COMPUTE_CAPABILITY_MINOR, dev->device);
}

int cuda_load_kernel(CUDADevice* dev, const char* path, const char* entry) {
    if (dev->function && strcmp(dev->loaded_path, path) == 0 && strcmp(dev->loaded_entry, entry) == 0) {
        return 0;
    }
    if (dev->module) {
        cuModuleUnload(dev->module);
        dev->module = NULL;
        dev->function = NULL;
    }
    cuCtxSetCurrent(dev->context);
    CUresult res = cuModuleLoad(&dev->module, path);
    if (res != CUDA_SUCCESS) {
        cuda_set_error_code(res);
        return -1;
    }
    res = cuModuleGetFunction(&dev->function, dev->module, entry);
    if (res != CUDA_SUCCESS) {
        cuda_set_error_code(res);
        return -1;
    }
    strncpy(dev->loaded_path, path, sizeof(dev->loaded_path) - 1);
    strncpy(dev->loaded_entry, entry, sizeof(dev->loaded_entry) - 1);
    return 0;
}

int cuda_launch(CUDADevice* dev, unsigned int gx, unsigned int gy, unsigned int gz,
                 unsigned int bx, unsigned int by, unsigned int bz,
                 void** params) {
    cuCtxSetCurrent(dev->context);
    CUresult res = cuLaunchKernel(dev->function, gx, gy, gz, bx, by, bz, 0, NULL, params, NULL);
    if (res != CUDA_SUCCESS) {
        cuda_set_error_code(res);
        return -1;
    }
    return 0;
}

int cuda_synchronize(CUDADevice* dev) {
    cuCtxSetCurrent(dev->context);
    CUresult res = cuCtxSynchronize();
    if (res != CUDA_SUCCESS) {
        cuda_set_error_code(res);
        return -1;
    }
    return 0;
}

void* cuda_alloc(CUDADevice* dev, size_t size) {
    cuCtxSetCurrent(dev->context);
    CUdeviceptr ptr;
    CUresult res = cuMemAlloc(&ptr, size);
    if (res != CUDA_SUCCESS) {
        cuda_set_error_code(res);
        return NULL;
    }
    return (void*)(uintptr_t)ptr;
}

void cuda_free(CUDADevice* dev, void* ptr) {
    if (!ptr) return;
    cuCtxSetCurrent(dev->context);
    cuMemFree((CUdeviceptr)(uintptr_t)ptr);
}

int cuda_copy_to_host(CUDADevice* dev, void* devSrc, void* hostDst, size_t size) {
    cuCtxSetCurrent(dev->context);
    CUresult res = cuMemcpyDtoH(hostDst, (CUdeviceptr)(uintptr_t)devSrc, size);
    if (res != CUDA_SUCCESS) {
        cuda_set_error_code(res);
        return -1;
    }
    return 0;
}

int cuda_copy_from_host(CUDADevice* dev, void* hostSrc, void* devDst, size_t size) {
    cuCtxSetCurrent(dev->context);
    CUresult res = cuMemcpyHtoD((CUdeviceptr)(uintptr_t)devDst, hostSrc, size);
    if (res != CUDA_SUCCESS) {
        cuda_set_error_code(res);
        return -1;
    }
    return 0;
}

int cuda_copy_device(CUDADevice* dev, void* src, void* dst, size_t size) {
    cuCtxSetCurrent(dev->context);
    CUresult res = cuMemcpyDtoD((CUdeviceptr)(uintptr_t)dst, (CUdeviceptr)(uintptr_t)src, size);
    if (res != CUDA_SUCCESS) {
        cuda_set_error_code(res);
        return -1;
    }
    return 0;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/anydsl-go/runtime/pkg/backend"
)

// Errors returned by the real cgo-backed implementation.
var (
	ErrCUDANotAvailable = fmt.Errorf("cuda: no CUDA device found")
	ErrDeviceCreation   = fmt.Errorf("cuda: failed to create CUDA device")
)

type deviceHandle struct {
	ptr *C.CUDADevice
	mu  sync.Mutex
}

// Backend is the real cgo-backed CUDA Driver API implementation.
type Backend struct {
	devices []*deviceHandle
}

// IsAvailable reports whether at least one CUDA device is present.
func IsAvailable() bool { return int(C.cuda_get_device_count()) > 0 }

// New opens a context for every CUDA device found on the system.
func New() *Backend {
	count := int(C.cuda_get_device_count())
	b := &Backend{devices: make([]*deviceHandle, 0, count)}
	for i := 0; i < count; i++ {
		ptr := C.cuda_create_device(C.int(i))
		if ptr == nil {
			continue
		}
		b.devices = append(b.devices, &deviceHandle{ptr: ptr})
	}
	return b
}

func (b *Backend) Name() string     { return "CUDA" }
func (b *Backend) DeviceCount() int { return len(b.devices) }

func (b *Backend) dev(local int) (*deviceHandle, error) {
	if local < 0 || local >= len(b.devices) {
		return nil, fmt.Errorf("cuda: local device %d out of range", local)
	}
	return b.devices[local], nil
}

func lastErr() error {
	return fmt.Errorf("cuda: %s", C.GoString(C.cuda_get_last_error()))
}

func (b *Backend) Alloc(local int, size int64) (unsafe.Pointer, error) {
	d, err := b.dev(local)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	ptr := C.cuda_alloc(d.ptr, C.size_t(size))
	if ptr == nil {
		return nil, lastErr()
	}
	return unsafe.Pointer(ptr), nil
}

func (b *Backend) Release(ptr unsafe.Pointer) error {
	for _, d := range b.devices {
		d.mu.Lock()
		C.cuda_free(d.ptr, ptr)
		d.mu.Unlock()
	}
	return nil
}

func (b *Backend) Copy(src, dst unsafe.Pointer, size int64) error {
	for _, d := range b.devices {
		d.mu.Lock()
		ret := C.cuda_copy_device(d.ptr, src, dst, C.size_t(size))
		d.mu.Unlock()
		if ret == 0 {
			return nil
		}
	}
	return lastErr()
}

func (b *Backend) CopyFromHost(hostSrc, devDst unsafe.Pointer, size int64) error {
	for _, d := range b.devices {
		d.mu.Lock()
		ret := C.cuda_copy_from_host(d.ptr, hostSrc, devDst, C.size_t(size))
		d.mu.Unlock()
		if ret == 0 {
			return nil
		}
	}
	return lastErr()
}

func (b *Backend) CopyToHost(devSrc, hostDst unsafe.Pointer, size int64) error {
	for _, d := range b.devices {
		d.mu.Lock()
		ret := C.cuda_copy_to_host(d.ptr, devSrc, hostDst, C.size_t(size))
		d.mu.Unlock()
		if ret == 0 {
			return nil
		}
	}
	return lastErr()
}

type launchConfig struct {
	grid  [3]uint32
	block [3]uint32
	args  []unsafe.Pointer
}

var configMu sync.Mutex
var configs = map[int]*launchConfig{}

func configFor(local int) *launchConfig {
	configMu.Lock()
	defer configMu.Unlock()
	cfg, ok := configs[local]
	if !ok {
		cfg = &launchConfig{grid: [3]uint32{1, 1, 1}, block: [3]uint32{1, 1, 1}}
		configs[local] = cfg
	}
	return cfg
}

func (b *Backend) SetBlockSize(local int, x, y, z uint32) error {
	if _, err := b.dev(local); err != nil {
		return err
	}
	configFor(local).block = [3]uint32{x, y, z}
	return nil
}

func (b *Backend) SetGridSize(local int, x, y, z uint32) error {
	if _, err := b.dev(local); err != nil {
		return err
	}
	configFor(local).grid = [3]uint32{x, y, z}
	return nil
}

// SetArg stages a positional kernel parameter as a raw pointer into the
// params array that cuLaunchKernel expects: CUDA's Driver API takes
// pointers-to-arguments, not the arguments themselves, so arg.Value (itself
// already a pointer to the argument's storage) is recorded directly.
func (b *Backend) SetArg(local int, index uint32, arg backend.Arg) error {
	if _, err := b.dev(local); err != nil {
		return err
	}
	cfg := configFor(local)
	for uint32(len(cfg.args)) <= index {
		cfg.args = append(cfg.args, nil)
	}
	cfg.args[index] = arg.Value
	return nil
}

// LoadKernel loads modulePath as a compiled PTX/cubin module and resolves
// entryName as the CUfunction to launch.
func (b *Backend) LoadKernel(local int, modulePath, entryName string) error {
	d, err := b.dev(local)
	if err != nil {
		return err
	}
	cPath := C.CString(modulePath)
	defer C.free(unsafe.Pointer(cPath))
	cEntry := C.CString(entryName)
	defer C.free(unsafe.Pointer(cEntry))

	d.mu.Lock()
	defer d.mu.Unlock()
	if C.cuda_load_kernel(d.ptr, cPath, cEntry) != 0 {
		return lastErr()
	}
	return nil
}

func (b *Backend) LaunchKernel(local int) error {
	d, err := b.dev(local)
	if err != nil {
		return err
	}
	cfg := configFor(local)
	for _, a := range cfg.args {
		if a == nil {
			return fmt.Errorf("cuda: kernel argument slot unset at launch")
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ptr.function == nil {
		return fmt.Errorf("cuda: no kernel loaded on device %d", local)
	}

	var paramsPtr *unsafe.Pointer
	params := make([]unsafe.Pointer, len(cfg.args))
	if len(params) > 0 {
		copy(params, cfg.args)
		paramsPtr = &params[0]
	}

	ret := C.cuda_launch(d.ptr,
		C.uint(cfg.grid[0]), C.uint(cfg.grid[1]), C.uint(cfg.grid[2]),
		C.uint(cfg.block[0]), C.uint(cfg.block[1]), C.uint(cfg.block[2]),
		paramsPtr)
	if ret != 0 {
		return lastErr()
	}
	return nil
}

func (b *Backend) Synchronize(local int) error {
	d, err := b.dev(local)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if C.cuda_synchronize(d.ptr) != 0 {
		return lastErr()
	}
	return nil
}

var _ backend.Backend = (*Backend)(nil)
