package runtime

import (
	"strings"
	"sync"

	"github.com/anydsl-go/runtime/pkg/backend"
)

// registry holds the dense device_id -> (backend, local index) mapping.
// The host backend always registers first, guaranteeing device_id 0 is
// always host. Registration order otherwise follows the order
// platforms are registered by the runtime façade's init sequence.
type registry struct {
	mu      sync.RWMutex
	entries []deviceEntry
}

func newRegistry() *registry {
	return &registry{}
}

// register appends every local device a backend reports, in order, and
// returns the device_ids assigned to them.
func (r *registry) register(b backend.Backend) []DeviceID {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := b.DeviceCount()
	ids := make([]DeviceID, 0, count)
	for local := 0; local < count; local++ {
		id := DeviceID(len(r.entries))
		r.entries = append(r.entries, deviceEntry{backend: b, local: local})
		ids = append(ids, id)
	}
	return ids
}

func (r *registry) lookup(id DeviceID) (backend.Backend, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) < 0 || int(id) >= len(r.entries) {
		return nil, 0, wrapErr(KindUnknownDevice, nil, "device_id %d is not registered", id)
	}
	e := r.entries[id]
	return e.backend, e.local, nil
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// sameBackend reports whether two device ids resolve to the same backend
// instance, the condition the copy router uses to pick an intra-platform
// copy over an asymmetric host copy or a cross-platform failure.
func (r *registry) sameBackend(a, b DeviceID) (bool, error) {
	ba, _, err := r.lookup(a)
	if err != nil {
		return false, err
	}
	bb, _, err := r.lookup(b)
	if err != nil {
		return false, err
	}
	return ba == bb, nil
}

// resolveByKind finds the device_id whose backend matches kind (by name,
// case-insensitively) and whose local index equals local. This is only
// needed at the C ABI boundary (cmd/libruntime), which receives the
// packed platform_kind|local_index encoding instead of a dense DeviceID.
func (r *registry) resolveByKind(kind backend.Kind, local int) (DeviceID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, e := range r.entries {
		if e.local == local && strings.EqualFold(e.backend.Name(), kind.String()) {
			return DeviceID(i), nil
		}
	}
	return 0, newErr(KindUnknownDevice, "no device matches platform kind %s local index %d", kind, local)
}
