package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anydsl-go/runtime/pkg/runtime"
)

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "List registered devices and their current dispatch state",
		RunE: func(c *cobra.Command, args []string) error {
			rt, _, err := buildRuntime()
			if err != nil {
				return err
			}

			fmt.Printf("registered devices: %d\n\n", rt.DeviceCount())
			for id := 0; id < rt.DeviceCount(); id++ {
				name, err := rt.BackendName(runtime.DeviceID(id))
				if err != nil {
					return err
				}
				launch, err := rt.Info(runtime.DeviceID(id))
				if err != nil {
					return err
				}
				fmt.Printf("device %d: %s\n", id, name)
				fmt.Printf("  grid:  %v\n", launch.Grid)
				fmt.Printf("  block: %v\n", launch.Block)
				if launch.ModulePath != "" {
					fmt.Printf("  kernel: %s::%s (%d args)\n", launch.ModulePath, launch.EntryName, launch.ArgCount)
				}
			}
			fmt.Printf("\nkernel time so far: %d us\n", rt.GetKernelTime())
			return nil
		},
	}
}
