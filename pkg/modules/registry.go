package modules

import (
	"sort"
	"sync"
)

// registry implements Registry with an optional size cap; the oldest
// load is evicted first.
type registry struct {
	modules map[string]*ResolvedModule
	mutex   sync.RWMutex
	stats   RegistryStats
	limit   int
}

// NewRegistry creates a registry holding at most limit sources
// (0 = unlimited).
func NewRegistry(limit int) Registry {
	return &registry{modules: make(map[string]*ResolvedModule), limit: limit}
}

func (r *registry) Get(path string) *ResolvedModule {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	m := r.modules[path]
	if m != nil {
		r.stats.CacheHits++
	} else {
		r.stats.CacheMisses++
	}
	return m
}

func (r *registry) Set(m *ResolvedModule) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if old, ok := r.modules[m.Path]; ok {
		r.stats.Bytes -= int64(len(old.Source))
	} else if r.limit > 0 && len(r.modules) >= r.limit {
		r.evictOldest()
	}
	r.modules[m.Path] = m
	r.stats.Bytes += int64(len(m.Source))
}

func (r *registry) Remove(path string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if m, ok := r.modules[path]; ok {
		r.stats.Bytes -= int64(len(m.Source))
		delete(r.modules, path)
	}
}

func (r *registry) Clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.modules = make(map[string]*ResolvedModule)
	r.stats.Bytes = 0
}

// List returns the cached canonical paths, sorted.
func (r *registry) List() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]string, 0, len(r.modules))
	for p := range r.modules {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (r *registry) Size() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.modules)
}

func (r *registry) Stats() RegistryStats {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	s := r.stats
	s.Modules = len(r.modules)
	return s
}

// evictOldest removes the oldest module from the cache (called with lock held)
func (r *registry) evictOldest() {
	var oldest *ResolvedModule
	for _, m := range r.modules {
		if oldest == nil || m.LoadTime.Before(oldest.LoadTime) {
			oldest = m
		}
	}
	if oldest != nil {
		delete(r.modules, oldest.Path)
		r.stats.Bytes -= int64(len(oldest.Source))
		r.stats.Evictions++
	}
}
