// Command accelctl is an operator CLI for inspecting and exercising the
// accelerator runtime outside of generated host code: list registered
// devices, allocate and release a test buffer, or run a microbenchmark
// kernel against a chosen device.
//
// Usage:
//
//	accelctl info
//	accelctl alloc --device 0 --bytes 4096
//	accelctl bench --device 0 --n 1000000
package main

import (
	"fmt"
	"os"

	"github.com/anydsl-go/runtime/cmd/accelctl/cmd"
)

func main() {
	if err := cmd.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
