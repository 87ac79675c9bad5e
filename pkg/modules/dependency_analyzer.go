package modules

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DependencyGraph records which module requires which, by canonical path.
type DependencyGraph struct {
	mutex sync.RWMutex
	deps  map[string][]string
	nodes map[string]bool
}

func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{deps: map[string][]string{}, nodes: map[string]bool{}}
}

// AddModule marks path as discovered even if it has no edges.
func (g *DependencyGraph) AddModule(path string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.nodes[path] = true
}

// AddDependency records that from requires to.
func (g *DependencyGraph) AddDependency(from, to string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.nodes[from], g.nodes[to] = true, true
	for _, d := range g.deps[from] {
		if d == to {
			return
		}
	}
	g.deps[from] = append(g.deps[from], to)
}

// Dependencies returns the direct dependencies of path in discovery order.
func (g *DependencyGraph) Dependencies(path string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return append([]string(nil), g.deps[path]...)
}

func (g *DependencyGraph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// TopologicalOrder lists modules dependencies first. Require cycles are
// legal at run time but have no such order; they are reported as an
// error naming the modules involved, with the acyclic prefix returned.
func (g *DependencyGraph) TopologicalOrder() ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// Kahn's algorithm over reversed edges: a module is ready once all of
	// its dependencies are placed.
	pending := map[string]int{}
	dependents := map[string][]string{}
	for n := range g.nodes {
		pending[n] = len(g.deps[n])
		for _, d := range g.deps[n] {
			dependents[d] = append(dependents[d], n)
		}
	}
	var queue, order []string
	for n, c := range pending {
		if c == 0 {
			queue = append(queue, n)
		}
	}
	sort.Strings(queue)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		next := dependents[cur]
		sort.Strings(next)
		for _, d := range next {
			pending[d]--
			if pending[d] == 0 {
				queue = append(queue, d)
			}
		}
	}
	if len(order) != len(g.nodes) {
		var cyclic []string
		for n, c := range pending {
			if c > 0 {
				cyclic = append(cyclic, n)
			}
		}
		sort.Strings(cyclic)
		return order, fmt.Errorf("circular dependencies among: %s", strings.Join(cyclic, ", "))
	}
	return order, nil
}

func (g *DependencyGraph) Clear() {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.deps = map[string][]string{}
	g.nodes = map[string]bool{}
}
