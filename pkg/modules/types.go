package modules

import (
	"errors"
	"runtime"
	"time"

	"github.com/zeebo/xxh3"
)

// ErrNotFound is wrapped by resolvers when no module matches a specifier.
var ErrNotFound = errors.New("module not found")

// ResolvedModule is a module source located by a resolver.
type ResolvedModule struct {
	Specifier string // Original specifier
	Path      string // Canonical path, the module's identity
	Source    string
	Hash      uint64 // xxh3 of Source
	Resolver  string // Name of the resolver that found it
	LoadTime  time.Time
}

func newResolved(specifier, path, src, resolver string) *ResolvedModule {
	return &ResolvedModule{
		Specifier: specifier,
		Path:      path,
		Source:    src,
		Hash:      xxh3.HashString(src),
		Resolver:  resolver,
		LoadTime:  time.Now(),
	}
}

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	Extensions []string // Suffixes tried after the exact path
	IndexFiles []string // Names tried when the specifier is a directory
	CacheSize  int      // Maximum cached sources (0 = unlimited)
	Workers    int      // Prefetch concurrency
	MaxDepth   int      // Maximum prefetch depth (0 = unlimited)
}

// DefaultLoaderConfig returns the configuration used when none is given.
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		Extensions: []string{".js", ".cjs", ".mjs", ".json"},
		IndexFiles: []string{"index.js", "index.cjs"},
		Workers:    runtime.NumCPU(),
		MaxDepth:   100,
	}
}

// RegistryStats contains statistics about the module registry.
type RegistryStats struct {
	Modules     int // Sources currently cached
	CacheHits   int
	CacheMisses int
	Evictions   int
	Bytes       int64 // Total cached source size
}

// LoaderStats contains overall statistics about module loading.
type LoaderStats struct {
	Registry   RegistryStats
	Resolved   int // Successful resolutions
	Failed     int
	Prefetched int
	TotalTime  time.Duration // Time spent resolving and reading sources
}
