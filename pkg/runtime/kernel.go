package runtime

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/anydsl-go/runtime/pkg/backend"
)

// moduleCacheSize bounds the in-memory LRU of (modulePath, entryName) pairs
// the runtime has already told a backend to load, so repeated launches of
// the same kernel on the same device skip a redundant LoadKernel call.
// Backends themselves may also cache (the cgo bridges skip rebuilding when
// the module path and entry point already match), this just avoids the
// call entirely.
const moduleCacheSize = 256

type moduleKey struct {
	device DeviceID
	path   string
	entry  string
}

type moduleCache struct {
	mu    sync.Mutex
	list  *list.List
	items map[moduleKey]*list.Element

	hits   uint64
	misses uint64
}

func newModuleCache() *moduleCache {
	return &moduleCache{
		list:  list.New(),
		items: make(map[moduleKey]*list.Element),
	}
}

func (c *moduleCache) seen(key moduleKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		atomic.AddUint64(&c.misses, 1)
		return false
	}
	atomic.AddUint64(&c.hits, 1)
	c.list.MoveToFront(el)
	return true
}

func (c *moduleCache) record(key moduleKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.list.MoveToFront(el)
		return
	}
	el := c.list.PushFront(key)
	c.items[key] = el
	if c.list.Len() > moduleCacheSize {
		oldest := c.list.Back()
		if oldest != nil {
			c.list.Remove(oldest)
			delete(c.items, oldest.Value.(moduleKey))
		}
	}
}

// invalidate drops every cached entry for device, used when a fresh
// LoadKernel call for that device reports an error: the backend's own
// loaded-module state is now unknown, so the next attempt must not skip
// the call based on stale cache state.
func (c *moduleCache) invalidate(device DeviceID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, el := range c.items {
		if key.device == device {
			c.list.Remove(el)
			delete(c.items, key)
		}
	}
}

// dispatchState is the per-device kernel dispatch state machine (spec
// §4.5): grid/block extents and positional argument slots, filled
// independently and in any order via SetGridSize/SetBlockSize/SetArg,
// consumed together at LaunchKernel.
type dispatchState struct {
	mu         sync.Mutex
	grid       [3]uint32
	block      [3]uint32
	args       []*backend.Arg
	modulePath string
	entryName  string
	loaded     bool
}

func newDispatchState() *dispatchState {
	return &dispatchState{grid: [3]uint32{1, 1, 1}, block: [3]uint32{1, 1, 1}}
}
