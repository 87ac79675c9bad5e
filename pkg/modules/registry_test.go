package modules

import (
	"testing"
	"time"
)

func TestRegistryGetSet(t *testing.T) {
	r := NewRegistry(0)
	if r.Get("/a.js") != nil {
		t.Fatal("empty registry returned a module")
	}
	r.Set(newResolved("./a", "/a.js", "abc", "test"))
	m := r.Get("/a.js")
	if m == nil || m.Source != "abc" {
		t.Fatalf("Get = %+v", m)
	}
	st := r.Stats()
	if st.CacheHits != 1 || st.CacheMisses != 1 || st.Modules != 1 || st.Bytes != 3 {
		t.Errorf("stats = %+v", st)
	}
	r.Set(newResolved("./a", "/a.js", "abcdef", "test"))
	if st := r.Stats(); st.Bytes != 6 || st.Modules != 1 {
		t.Errorf("replacing a module: %+v", st)
	}
	r.Remove("/a.js")
	if r.Size() != 0 || r.Stats().Bytes != 0 {
		t.Error("Remove did not drop the module")
	}
}

func TestRegistryEvictsOldest(t *testing.T) {
	r := NewRegistry(2)
	base := time.Now()
	for i, p := range []string{"/old.js", "/mid.js", "/new.js"} {
		m := newResolved(p, p, "x", "test")
		m.LoadTime = base.Add(time.Duration(i) * time.Second)
		r.Set(m)
	}
	if got := r.List(); len(got) != 2 || got[0] != "/mid.js" || got[1] != "/new.js" {
		t.Errorf("List = %v", got)
	}
	if r.Stats().Evictions != 1 {
		t.Errorf("evictions = %d", r.Stats().Evictions)
	}
	r.Clear()
	if r.Size() != 0 {
		t.Error("Clear left modules")
	}
}
