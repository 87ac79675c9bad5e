package modules

import (
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"main.js":          {Data: []byte(`const lib = require("./lib"); lib.run()`)},
		"lib/index.js":     {Data: []byte(`module.exports = require("./impl.js")`)},
		"lib/impl.js":      {Data: []byte(`exports.run = () => 1`)},
		"config.json":      {Data: []byte(`{"debug": true}`)},
		"dir.js/readme.md": {Data: []byte(`not a module`)},
	}
}

func TestFileSystemResolverBasic(t *testing.T) {
	resolver := NewFileSystemResolver(testFS(), "")

	if resolver.Name() != "FileSystem" {
		t.Errorf("Expected name 'FileSystem', got '%s'", resolver.Name())
	}
	if resolver.Priority() != 100 {
		t.Errorf("Expected priority 100, got %d", resolver.Priority())
	}
}

func TestFileSystemResolverCanResolve(t *testing.T) {
	resolver := NewFileSystemResolver(fstest.MapFS{}, "")

	tests := []struct {
		specifier  string
		canResolve bool
	}{
		{"./relative.js", true},
		{"../parent.js", true},
		{"/absolute.js", true},
		{"bare-module", false},
		{"@scoped/module", false},
	}
	for _, test := range tests {
		if got := resolver.CanResolve(test.specifier); got != test.canResolve {
			t.Errorf("CanResolve('%s') = %v, expected %v", test.specifier, got, test.canResolve)
		}
	}
}

func TestFileSystemResolverResolve(t *testing.T) {
	resolver := NewFileSystemResolver(testFS(), "")
	tests := []struct {
		specifier, referrer, want string
	}{
		{"./main.js", "", "/main.js"},
		{"./main", "", "/main.js"},
		{"./lib", "/main.js", "/lib/index.js"},
		{"./impl.js", "/lib/index.js", "/lib/impl.js"},
		{"../config", "/lib/impl.js", "/config.json"},
		{"/lib/impl", "/main.js", "/lib/impl.js"},
	}
	for _, tt := range tests {
		m, err := resolver.Resolve(tt.specifier, tt.referrer)
		if err != nil {
			t.Errorf("Resolve(%s, %s): %v", tt.specifier, tt.referrer, err)
			continue
		}
		if m.Path != tt.want {
			t.Errorf("Resolve(%s, %s) = %s, want %s", tt.specifier, tt.referrer, m.Path, tt.want)
		}
		if m.Source != string(testFS()[m.Path[1:]].Data) {
			t.Errorf("%s: source mismatch", m.Path)
		}
	}
}

func TestFileSystemResolverSkipsDirectories(t *testing.T) {
	resolver := NewFileSystemResolver(testFS(), "")
	if _, err := resolver.Resolve("./dir.js", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("directory resolved as a module: %v", err)
	}
	if _, err := resolver.Resolve("lodash", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("bare specifier: %v", err)
	}
}

func TestFileSystemResolverExtensions(t *testing.T) {
	resolver := NewFileSystemResolver(fstest.MapFS{"a.mjs": {Data: []byte("1")}}, "")
	resolver.SetExtensions([]string{".js"})
	if _, err := resolver.Resolve("./a", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("restricted extensions still found a.mjs: %v", err)
	}
	resolver.SetExtensions([]string{".mjs"})
	if _, err := resolver.Resolve("./a", ""); err != nil {
		t.Error(err)
	}
}

func TestFileSystemResolverHostPath(t *testing.T) {
	base := filepath.Join("srv", "app")
	resolver := NewFileSystemResolver(fstest.MapFS{}, base)
	if got, want := resolver.HostPath("/lib/a.js"), filepath.Join(base, "lib", "a.js"); got != want {
		t.Errorf("HostPath = %s, want %s", got, want)
	}
}
