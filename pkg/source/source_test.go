package source

import "testing"

func TestSourceFileLines(t *testing.T) {
	sf := FromFile("/tmp/app/main.js", "let a = 1;\nlet b = 2;")
	if sf.Name != "main.js" {
		t.Errorf("Name = %q, want main.js", sf.Name)
	}
	if got := sf.Line(2); got != "let b = 2;" {
		t.Errorf("Line(2) = %q", got)
	}
	if got := sf.Line(3); got != "" {
		t.Errorf("Line(3) = %q, want empty", got)
	}
	if !sf.IsFile() || sf.DisplayPath() != "/tmp/app/main.js" {
		t.Errorf("unexpected path metadata: %+v", sf)
	}
}

func TestSourceFileHash(t *testing.T) {
	a := NewEvalSource("1 + 1")
	b := NewStdinSource("1 + 1")
	c := NewEvalSource("1 + 2")
	if a.Hash() != b.Hash() {
		t.Errorf("hash should depend on content only")
	}
	if a.Hash() == c.Hash() {
		t.Errorf("different content produced the same hash")
	}
	if b.DisplayPath() != "<stdin>" {
		t.Errorf("DisplayPath() = %q", b.DisplayPath())
	}
}
