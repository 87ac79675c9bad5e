package modules

import (
	"io/fs"
)

// ModuleFS is the file system a resolver reads sources from.
type ModuleFS interface {
	fs.FS
	fs.ReadFileFS
}

// Resolver maps a require specifier to a module source.
type Resolver interface {
	// Name returns a human-readable name for this resolver
	Name() string

	// CanResolve returns true if this resolver handles the specifier's form
	CanResolve(specifier string) bool

	// Resolve finds the module for specifier; referrer is the canonical path
	// of the requiring module, empty at top level. A missing module is
	// reported with an error wrapping ErrNotFound.
	Resolve(specifier string, referrer string) (*ResolvedModule, error)

	// Priority orders resolvers (lower = tried first)
	Priority() int
}

// Registry caches resolved sources by canonical path.
type Registry interface {
	Get(path string) *ResolvedModule
	Set(m *ResolvedModule)
	Remove(path string)
	Clear()
	List() []string
	Size() int
	Stats() RegistryStats
}
