package modules

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
)

func TestLoaderResolverChain(t *testing.T) {
	mem := NewMemoryResolver("mem")
	mem.AddModule("shared.js", "module.exports = 'memory'")
	files := NewFileSystemResolver(fstest.MapFS{
		"shared.js": {Data: []byte("module.exports = 'disk'")},
		"only.js":   {Data: []byte("module.exports = 'disk only'")},
	}, "")
	l := NewLoader(nil, files, mem)

	m, err := l.Resolve("./shared", "")
	if err != nil {
		t.Fatal(err)
	}
	if m.Resolver != "mem" {
		t.Errorf("memory resolver should win: %s", m.Resolver)
	}
	m, err = l.Resolve("./only", "")
	if err != nil {
		t.Fatal(err)
	}
	if m.Path != "/only.js" || m.Resolver != "FileSystem" {
		t.Errorf("fallthrough = %+v", m)
	}
	if _, err := l.Resolve("./nope", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}

	st := l.Stats()
	if st.Resolved != 2 || st.Failed != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestLoaderCachesResolutions(t *testing.T) {
	mem := NewMemoryResolver("mem")
	mem.AddModule("a.js", "1")
	l := NewLoader(nil, mem)
	first, err := l.Resolve("./a", "")
	if err != nil {
		t.Fatal(err)
	}
	mem.AddModule("a.js", "2")
	second, err := l.Resolve("./a", "")
	if err != nil {
		t.Fatal(err)
	}
	if first != second || second.Source != "1" {
		t.Errorf("second resolution bypassed the cache: %q", second.Source)
	}
	l.ClearCache()
	third, err := l.Resolve("./a", "")
	if err != nil {
		t.Fatal(err)
	}
	if third.Source != "2" {
		t.Errorf("after ClearCache source = %q", third.Source)
	}
}

func TestLoaderHook(t *testing.T) {
	mem := NewMemoryResolver("mem")
	mem.AddModule("lib/a.js", "exports.x = 1")
	l := NewLoader(nil, mem)
	path, src, err := l.Hook("./a", "lib/main.js")
	if err != nil {
		t.Fatal(err)
	}
	if path != "lib/a.js" || src != "exports.x = 1" {
		t.Errorf("Hook = %s, %q", path, src)
	}
	if deps := l.Graph().Dependencies("lib/main.js"); len(deps) != 1 || deps[0] != "lib/a.js" {
		t.Errorf("graph edge missing: %v", deps)
	}
}

func TestLoaderPrefetch(t *testing.T) {
	files := fstest.MapFS{
		"main.js":      {Data: []byte(`require("./a"); require("./b")`)},
		"a.js":         {Data: []byte(`require("./lib/c")`)},
		"b.js":         {Data: []byte(`require("./a"); require("./lib/c")`)},
		"lib/c.js":     {Data: []byte(`module.exports = require("../main")`)},
		"broken.js":    {Data: []byte(`this is not javascript (`)},
		"unrelated.js": {Data: []byte(`1`)},
	}
	l := NewLoader(&LoaderConfig{Extensions: []string{".js"}, Workers: 2, MaxDepth: 10}, NewFileSystemResolver(files, ""))
	if err := l.Prefetch(context.Background(), "", "./main.js", "./broken"); err != nil {
		t.Fatal(err)
	}
	got := l.Registry().List()
	want := []string{"/a.js", "/b.js", "/broken.js", "/lib/c.js", "/main.js"}
	if len(got) != len(want) {
		t.Fatalf("cached = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("cached[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if _, err := l.Graph().TopologicalOrder(); err == nil {
		t.Error("main -> a -> c -> main cycle not detected")
	}
	if l.Stats().Prefetched != 5 {
		t.Errorf("prefetched = %d", l.Stats().Prefetched)
	}
}

func TestLoaderPrefetchMissing(t *testing.T) {
	l := NewLoader(nil, NewFileSystemResolver(fstest.MapFS{
		"main.js": {Data: []byte(`require("./gone")`)},
	}, ""))
	err := l.Prefetch(context.Background(), "", "./main.js")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestLoaderPrefetchCancelled(t *testing.T) {
	mem := NewMemoryResolver("mem")
	mem.AddModule("a.js", "")
	l := NewLoader(nil, mem)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Prefetch(ctx, "", "./a"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}
