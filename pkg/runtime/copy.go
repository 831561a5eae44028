package runtime

// copyRouter implements the routing rule from the original C++ Runtime's
// copy(): same backend instance on both ends is an
// intra-platform copy; either end is device_id 0 (host) is an asymmetric
// host copy; two distinct non-host backends is unsupported — the runtime
// never auto-stages a copy through host memory.
type copyRouter struct {
	reg    *registry
	allocs *allocTable
}

func newCopyRouter(reg *registry, allocs *allocTable) *copyRouter {
	return &copyRouter{reg: reg, allocs: allocs}
}

const hostDeviceID DeviceID = 0

func (c *copyRouter) copy(src, dst Ptr, size int64) error {
	srcAlloc, err := c.allocs.get(src)
	if err != nil {
		return err
	}
	dstAlloc, err := c.allocs.get(dst)
	if err != nil {
		return err
	}

	srcIsHost := srcAlloc.Device == hostDeviceID
	dstIsHost := dstAlloc.Device == hostDeviceID

	switch {
	case srcIsHost && dstIsHost:
		return c.intraPlatform(hostDeviceID, src, dst, size)

	case srcIsHost && !dstIsHost:
		be, local, err := c.reg.lookup(dstAlloc.Device)
		if err != nil {
			return err
		}
		if err := be.CopyFromHost(src, dst, size); err != nil {
			return wrapErr(KindBackendFailure, err, "copy_from_host to device %d (local %d)", dstAlloc.Device, local)
		}
		return nil

	case !srcIsHost && dstIsHost:
		be, local, err := c.reg.lookup(srcAlloc.Device)
		if err != nil {
			return err
		}
		if err := be.CopyToHost(src, dst, size); err != nil {
			return wrapErr(KindBackendFailure, err, "copy_to_host from device %d (local %d)", srcAlloc.Device, local)
		}
		return nil

	default:
		same, err := c.reg.sameBackend(srcAlloc.Device, dstAlloc.Device)
		if err != nil {
			return err
		}
		if same {
			return c.intraPlatform(srcAlloc.Device, src, dst, size)
		}
		return newErr(KindCrossPlatformCopyUnsupported,
			"copy between device %d and device %d crosses platforms; no auto-staging through host",
			srcAlloc.Device, dstAlloc.Device)
	}
}

func (c *copyRouter) intraPlatform(id DeviceID, src, dst Ptr, size int64) error {
	be, local, err := c.reg.lookup(id)
	if err != nil {
		return err
	}
	if err := be.Copy(src, dst, size); err != nil {
		return wrapErr(KindBackendFailure, err, "copy on device %d (local %d)", id, local)
	}
	return nil
}
