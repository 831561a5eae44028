package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anydsl-go/runtime/pkg/runtime"
)

func allocCmd() *cobra.Command {
	var device int
	var bytes int64

	c := &cobra.Command{
		Use:   "alloc",
		Short: "Allocate and immediately release a buffer on a device, to sanity-check a backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, err := buildRuntime()
			if err != nil {
				return err
			}

			id := runtime.DeviceID(device)
			ptr, err := rt.Alloc(id, bytes)
			if err != nil {
				return fmt.Errorf("alloc failed: %w", err)
			}
			fmt.Printf("allocated %d bytes on device %d -> %p\n", bytes, device, ptr)

			if err := rt.Release(ptr); err != nil {
				return fmt.Errorf("release failed: %w", err)
			}
			fmt.Println("released")
			return nil
		},
	}
	c.Flags().IntVar(&device, "device", 0, "device_id to allocate on")
	c.Flags().Int64Var(&bytes, "bytes", 4096, "number of bytes to allocate")
	return c
}
