package modules

import (
	"strings"
	"testing"
)

func TestDependencyGraphOrder(t *testing.T) {
	g := NewDependencyGraph()
	g.AddDependency("/main.js", "/lib.js")
	g.AddDependency("/main.js", "/util.js")
	g.AddDependency("/lib.js", "/util.js")
	g.AddDependency("/lib.js", "/util.js")
	g.AddModule("/lonely.js")

	if deps := g.Dependencies("/lib.js"); len(deps) != 1 {
		t.Errorf("duplicate edge recorded: %v", deps)
	}
	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatal(err)
	}
	pos := map[string]int{}
	for i, p := range order {
		pos[p] = i
	}
	if len(order) != 4 {
		t.Fatalf("order = %v", order)
	}
	if !(pos["/util.js"] < pos["/lib.js"] && pos["/lib.js"] < pos["/main.js"]) {
		t.Errorf("dependencies must come first: %v", order)
	}
}

func TestDependencyGraphCycle(t *testing.T) {
	g := NewDependencyGraph()
	g.AddDependency("/a.js", "/b.js")
	g.AddDependency("/b.js", "/a.js")
	g.AddDependency("/b.js", "/leaf.js")

	order, err := g.TopologicalOrder()
	if err == nil {
		t.Fatal("cycle not reported")
	}
	if !strings.Contains(err.Error(), "/a.js") || !strings.Contains(err.Error(), "/b.js") {
		t.Errorf("error = %v", err)
	}
	if len(order) != 1 || order[0] != "/leaf.js" {
		t.Errorf("acyclic prefix = %v", order)
	}
}
