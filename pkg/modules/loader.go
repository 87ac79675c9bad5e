package modules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"cinder/pkg/compiler"
	"cinder/pkg/source"
)

var log = commonlog.GetLogger("cinder.modules")

type resolveKey struct {
	specifier, referrer string
}

// Loader chains resolvers, caches their sources and records the require
// graph. It is safe for concurrent use; Prefetch relies on that.
type Loader struct {
	resolvers []Resolver
	registry  Registry
	graph     *DependencyGraph
	config    *LoaderConfig

	mutex    sync.Mutex
	resolved map[resolveKey]string
	stats    LoaderStats
}

// NewLoader creates a loader trying resolvers in priority order.
func NewLoader(config *LoaderConfig, resolvers ...Resolver) *Loader {
	if config == nil {
		config = DefaultLoaderConfig()
	}
	l := &Loader{
		registry: NewRegistry(config.CacheSize),
		graph:    NewDependencyGraph(),
		config:   config,
		resolved: map[resolveKey]string{},
	}
	for _, r := range resolvers {
		l.AddResolver(r)
	}
	return l
}

// AddResolver adds a resolver to the chain.
func (l *Loader) AddResolver(r Resolver) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	switch fr := r.(type) {
	case *FileSystemResolver:
		fr.SetExtensions(l.config.Extensions)
		fr.SetIndexFiles(l.config.IndexFiles)
	case *MemoryResolver:
		fr.paths = pathRules{extensions: l.config.Extensions, indexFiles: l.config.IndexFiles}
	}
	l.resolvers = append(l.resolvers, r)
	sort.SliceStable(l.resolvers, func(i, j int) bool {
		return l.resolvers[i].Priority() < l.resolvers[j].Priority()
	})
}

// Resolve finds the module specifier names from referrer. The first
// resolver that can handle the specifier and does not report ErrNotFound
// wins; other errors stop the search.
func (l *Loader) Resolve(specifier, referrer string) (*ResolvedModule, error) {
	start := time.Now()
	key := resolveKey{specifier, referrer}

	l.mutex.Lock()
	path, known := l.resolved[key]
	resolvers := l.resolvers
	l.mutex.Unlock()
	if known {
		if m := l.registry.Get(path); m != nil {
			return m, nil
		}
	}

	m, err := l.resolve(resolvers, specifier, referrer)

	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.stats.TotalTime += time.Since(start)
	if err != nil {
		l.stats.Failed++
		return nil, err
	}
	l.stats.Resolved++
	l.resolved[key] = m.Path
	l.registry.Set(m)
	if referrer != "" {
		l.graph.AddDependency(referrer, m.Path)
	} else {
		l.graph.AddModule(m.Path)
	}
	log.Debugf("resolved %s from %q to %s via %s (%016x)", specifier, referrer, m.Path, m.Resolver, m.Hash)
	return m, nil
}

func (l *Loader) resolve(resolvers []Resolver, specifier, referrer string) (*ResolvedModule, error) {
	tried := false
	for _, r := range resolvers {
		if !r.CanResolve(specifier) {
			continue
		}
		tried = true
		m, err := r.Resolve(specifier, referrer)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("resolver %s: %w", r.Name(), err)
		}
	}
	if !tried {
		return nil, fmt.Errorf("%s: no resolver accepts this specifier: %w", specifier, ErrNotFound)
	}
	return nil, fmt.Errorf("%s: %w", specifier, ErrNotFound)
}

// Hook adapts Resolve to the realm's module resolution hook.
func (l *Loader) Hook(specifier, referrer string) (string, string, error) {
	m, err := l.Resolve(specifier, referrer)
	if err != nil {
		return "", "", err
	}
	return m.Path, m.Source, nil
}

// Prefetch resolves specifiers and, transitively, every string-literal
// require they contain, reading sources concurrently so evaluation later
// finds them cached. Sources that fail to parse are cached but not
// scanned; evaluation reports their errors.
func (l *Loader) Prefetch(ctx context.Context, referrer string, specifiers ...string) error {
	type job struct{ specifier, referrer string }
	level := make([]job, 0, len(specifiers))
	for _, s := range specifiers {
		level = append(level, job{s, referrer})
	}
	seen := map[string]bool{}
	var seenMu sync.Mutex

	for depth := 0; len(level) > 0; depth++ {
		if l.config.MaxDepth > 0 && depth >= l.config.MaxDepth {
			return fmt.Errorf("prefetch: require depth exceeds %d", l.config.MaxDepth)
		}
		g, ctx := errgroup.WithContext(ctx)
		if l.config.Workers > 0 {
			g.SetLimit(l.config.Workers)
		}
		var next []job
		var nextMu sync.Mutex
		for _, j := range level {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				m, err := l.Resolve(j.specifier, j.referrer)
				if err != nil {
					return err
				}
				seenMu.Lock()
				dup := seen[m.Path]
				seen[m.Path] = true
				seenMu.Unlock()
				if dup {
					return nil
				}
				l.mutex.Lock()
				l.stats.Prefetched++
				l.mutex.Unlock()

				prog, errs := compiler.Parse(source.NewSourceFile(m.Path, m.Path, m.Source))
				if len(errs) > 0 {
					log.Debugf("prefetch: %s does not parse: %s", m.Path, errs[0].Message())
					return nil
				}
				reqs := compiler.Requires(prog)
				nextMu.Lock()
				for _, s := range reqs {
					next = append(next, job{s, m.Path})
				}
				nextMu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("prefetch: %w", err)
		}
		level = next
	}
	return nil
}

// Graph returns the require graph recorded so far.
func (l *Loader) Graph() *DependencyGraph { return l.graph }

func (l *Loader) Registry() Registry { return l.registry }

func (l *Loader) Stats() LoaderStats {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	s := l.stats
	s.Registry = l.registry.Stats()
	return s
}

// ClearCache drops cached sources and resolutions.
func (l *Loader) ClearCache() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.registry.Clear()
	l.graph.Clear()
	l.resolved = map[resolveKey]string{}
}
