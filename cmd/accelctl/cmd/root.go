// Package cmd implements accelctl's command tree.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/anydsl-go/runtime/pkg/config"
	"github.com/anydsl-go/runtime/pkg/runtime"
)

var configPath string

// Root builds accelctl's command tree.
func Root() *cobra.Command {
	root := &cobra.Command{
		Use:   "accelctl",
		Short: "Inspect and exercise the accelerator runtime",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "accelrt.yaml", "path to runtime configuration")

	root.AddCommand(infoCmd())
	root.AddCommand(allocCmd())
	root.AddCommand(benchCmd())
	return root
}

// buildRuntime loads configuration from configPath and constructs a
// Runtime with host always first, followed by CUDA/OpenCL when compiled
// in and present on the system, per cfg.PlatformOrder.
func buildRuntime() (*runtime.Runtime, config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, config.Config{}, err
	}

	rt, err := runtime.NewFromConfig(cfg)
	if err != nil {
		return nil, config.Config{}, err
	}
	return rt, cfg, nil
}
