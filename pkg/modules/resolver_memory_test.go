package modules

import (
	"errors"
	"testing"
)

func TestMemoryResolverBasic(t *testing.T) {
	resolver := NewMemoryResolver("TestMemory")

	if resolver.Name() != "TestMemory" {
		t.Errorf("Expected name 'TestMemory', got '%s'", resolver.Name())
	}
	if resolver.Priority() != 50 {
		t.Errorf("Expected priority 50, got %d", resolver.Priority())
	}
	if NewMemoryResolver("").Name() != "Memory" {
		t.Error("empty name should default to Memory")
	}
}

func TestMemoryResolverAddModule(t *testing.T) {
	resolver := NewMemoryResolver("TestMemory")
	content := `module.exports = function greet(name) { return "Hello, " + name }`

	resolver.AddModule("./greet.js", content)

	mods := resolver.ListModules()
	if len(mods) != 1 || mods[0] != "greet.js" {
		t.Fatalf("ListModules = %v", mods)
	}
	m := resolver.GetModule("greet.js")
	if m == nil || m.Content != content {
		t.Fatalf("GetModule = %+v", m)
	}

	resolver.AddModule("greet.js", "module.exports = 1")
	if got := resolver.GetModule("./greet.js"); got.Content != "module.exports = 1" || got.Modified.Before(got.Created) {
		t.Errorf("update lost: %+v", got)
	}
	resolver.RemoveModule("greet.js")
	if len(resolver.ListModules()) != 0 {
		t.Error("RemoveModule left the module behind")
	}
}

func TestMemoryResolverResolve(t *testing.T) {
	resolver := NewMemoryResolver("TestMemory")
	resolver.AddModule("test.js", "exports.test = true")
	resolver.AddModule("utils/index.js", "module.exports = require('./helper')")
	resolver.AddModule("utils/helper.js", "exports.help = 1")
	resolver.AddModule("data.json", `{"k": 1}`)

	tests := []struct {
		specifier string
		referrer  string
		want      string
	}{
		{"./test.js", "", "test.js"},
		{"./test", "", "test.js"},
		{"./utils", "", "utils/index.js"},
		{"./helper", "utils/index.js", "utils/helper.js"},
		{"../test", "utils/helper.js", "test.js"},
		{"/utils/helper", "test.js", "utils/helper.js"},
		{"./data", "", "data.json"},
		{"utils/helper", "", "utils/helper.js"},
	}
	for _, tt := range tests {
		t.Run(tt.specifier+"@"+tt.referrer, func(t *testing.T) {
			m, err := resolver.Resolve(tt.specifier, tt.referrer)
			if err != nil {
				t.Fatal(err)
			}
			if m.Path != tt.want {
				t.Errorf("Path = %s, want %s", m.Path, tt.want)
			}
			if m.Specifier != tt.specifier || m.Resolver != "TestMemory" {
				t.Errorf("metadata = %+v", m)
			}
			if m.Hash == 0 {
				t.Error("hash not computed")
			}
		})
	}
}

func TestMemoryResolverNotFound(t *testing.T) {
	resolver := NewMemoryResolver("")
	_, err := resolver.Resolve("./missing", "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
