package cmd

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/spf13/cobra"

	"github.com/anydsl-go/runtime/pkg/backend"
	"github.com/anydsl-go/runtime/pkg/backend/host"
	"github.com/anydsl-go/runtime/pkg/runtime"
)

func asFloat32Slice(ptr unsafe.Pointer, minLen uint64) []float32 {
	return unsafe.Slice((*float32)(ptr), int(minLen))
}

const benchModule = "accelctl-bench.mod"
const benchEntry = "scale"

func init() {
	host.Register(benchModule, benchEntry, func(idx uint64, args []backend.Arg) {
		buf := args[0].Value
		elems := asFloat32Slice(buf, idx+1)
		elems[idx] *= 2
	})
}

func benchCmd() *cobra.Command {
	var device int
	var n int

	c := &cobra.Command{
		Use:   "bench",
		Short: "Run a microbenchmark kernel against a device and report elapsed time",
		RunE: func(cmd *cobra.Command, args []string) error {
			if device != 0 {
				return fmt.Errorf("bench currently only supports device 0 (host); got %d", device)
			}

			rt, _, err := buildRuntime()
			if err != nil {
				return err
			}

			id := runtime.DeviceID(device)
			buf, err := rt.Alloc(id, int64(n)*4)
			if err != nil {
				return fmt.Errorf("alloc failed: %w", err)
			}
			defer rt.Release(buf)

			if err := rt.LoadKernel(id, benchModule, benchEntry); err != nil {
				return fmt.Errorf("load_kernel failed: %w", err)
			}
			if err := rt.SetGridSize(id, uint32(n), 1, 1); err != nil {
				return err
			}
			if err := rt.SetBlockSize(id, 1, 1, 1); err != nil {
				return err
			}
			if err := rt.SetArg(id, 0, backend.Arg{Value: buf, Size: uint32(n) * 4}); err != nil {
				return err
			}

			start := time.Now()
			if err := rt.LaunchKernel(id); err != nil {
				return fmt.Errorf("launch_kernel failed: %w", err)
			}
			elapsed := time.Since(start)

			fmt.Printf("launched %d work items on device %d in %s\n", n, device, elapsed)
			fmt.Printf("accumulated kernel time: %d us\n", rt.GetKernelTime())
			return nil
		},
	}
	c.Flags().IntVar(&device, "device", 0, "device_id to benchmark")
	c.Flags().IntVar(&n, "n", 1_000_000, "number of work items")
	return c
}
