package vm

import (
	"testing"

	"cinder/pkg/builtins"
	"cinder/pkg/compiler"
	"cinder/pkg/realm"
	"cinder/pkg/source"
)

func TestEvalCache(t *testing.T) {
	r := realm.New(realm.Options{})
	if err := builtins.Install(r, builtins.Options{}); err != nil {
		t.Fatal(err)
	}
	machine := New(r, DefaultConfig())
	m, errs := compiler.CompileSource(source.NewEvalSource(
		`var k = 0; for (var i = 0; i < 3; i++) eval("k += i"); k`), compiler.Options{Completion: true})
	if len(errs) > 0 {
		t.Fatal(errs[0])
	}
	v, _, err := machine.Interpret(m)
	if err != nil {
		t.Fatal(err)
	}
	if v.Inspect() != "3" {
		t.Errorf("got %s", v.Inspect())
	}
	if len(machine.evals) != 1 {
		t.Errorf("cached %d modules, want 1", len(machine.evals))
	}

	if _, err := machine.compileEval("k +", false); err == nil {
		t.Error("expected a syntax error")
	}
	if _, err := machine.compileEval("k", true); err != nil {
		t.Fatal(err)
	}
	if len(machine.evals) != 2 {
		t.Errorf("strict code shares a cache entry or errors were cached: %d", len(machine.evals))
	}
}
