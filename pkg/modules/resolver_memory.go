package modules

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryResolver resolves modules from an in-memory store
type MemoryResolver struct {
	name     string                   // Human-readable name
	modules  map[string]*MemoryModule // Map of module path -> module
	mutex    sync.RWMutex             // Protects concurrent access
	priority int                      // Resolution priority
	paths    pathRules
}

// MemoryModule represents a module stored in memory
type MemoryModule struct {
	Path     string
	Content  string
	Created  time.Time
	Modified time.Time
}

// NewMemoryResolver creates a new memory-based module resolver
func NewMemoryResolver(name string) *MemoryResolver {
	if name == "" {
		name = "Memory"
	}
	cfg := DefaultLoaderConfig()
	return &MemoryResolver{
		name:     name,
		modules:  make(map[string]*MemoryModule),
		priority: 50, // ahead of the file system
		paths:    pathRules{extensions: cfg.Extensions, indexFiles: cfg.IndexFiles},
	}
}

func (r *MemoryResolver) Name() string { return r.name }

func (r *MemoryResolver) Priority() int { return r.priority }

// CanResolve accepts every specifier form; bare names are looked up as
// store keys.
func (r *MemoryResolver) CanResolve(specifier string) bool {
	_, err := r.target(specifier, "")
	return err == nil
}

func (r *MemoryResolver) target(specifier, referrer string) (string, error) {
	if !isPathSpecifier(specifier) {
		return cleanKey(specifier), nil
	}
	return r.paths.target(specifier, referrer)
}

func (r *MemoryResolver) Resolve(specifier string, referrer string) (*ResolvedModule, error) {
	target, err := r.target(specifier, referrer)
	if err != nil {
		return nil, err
	}
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	for _, candidate := range r.paths.candidates(target) {
		if m, ok := r.modules[candidate]; ok {
			return newResolved(specifier, candidate, m.Content, r.name), nil
		}
	}
	return nil, fmt.Errorf("%s: %w", specifier, ErrNotFound)
}

// AddModule stores content under path, replacing any previous module.
func (r *MemoryResolver) AddModule(path string, content string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := cleanKey(path)
	now := time.Now()
	if m, ok := r.modules[key]; ok {
		m.Content = content
		m.Modified = now
		return
	}
	r.modules[key] = &MemoryModule{Path: key, Content: content, Created: now, Modified: now}
}

// RemoveModule removes a module from the memory store
func (r *MemoryResolver) RemoveModule(path string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.modules, cleanKey(path))
}

// ListModules returns all module paths in the store, sorted.
func (r *MemoryResolver) ListModules() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	paths := make([]string, 0, len(r.modules))
	for path := range r.modules {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// GetModule returns a module by path (for testing/debugging)
func (r *MemoryResolver) GetModule(path string) *MemoryModule {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.modules[cleanKey(path)]
}

func (r *MemoryResolver) SetPriority(priority int) {
	r.priority = priority
}
