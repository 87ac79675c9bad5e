package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if c.Engine.MaxCallDepth <= 0 || !c.GC.AutoCollect || c.Output.Color != "auto" {
		t.Errorf("unexpected defaults: %+v", c)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	writeFile(t, path, `
[engine]
max_call_depth = 500
strict_default = true

[gc]
suspect_threshold = 64

[modules]
roots = ["lib", "/opt/shared"]
cache_size = 16

[output]
color = "never"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Engine.MaxCallDepth != 500 || !c.Engine.StrictDefault {
		t.Errorf("engine = %+v", c.Engine)
	}
	if c.GC.SuspectThreshold != 64 || !c.GC.AutoCollect {
		t.Errorf("gc = %+v (auto_collect should keep its default)", c.GC)
	}
	if c.Modules.Roots[0] != filepath.Join(dir, "lib") || c.Modules.Roots[1] != "/opt/shared" {
		t.Errorf("roots = %v", c.Modules.Roots)
	}
	if c.VMConfig().MaxCallDepth != 500 || c.HeapOptions().SuspectThreshold != 64 || c.LoaderConfig().CacheSize != 16 {
		t.Error("derived configs do not follow the file")
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name, content, want string
	}{
		{"syntax", "[engine\n", "parse error"},
		{"unknown key", "[engine]\nturbo = true\n", "unknown key"},
		{"bad color", "[output]\ncolor = \"purple\"\n", "output.color"},
		{"negative", "[engine]\nmax_call_depth = -1\n", "max_call_depth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".toml")
			writeFile(t, path, tt.content)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("missing file loaded")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(root, FileName), "[engine]\nmax_objects = 1000\n")
	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatal(err)
	}
	if c.Engine.MaxObjects != 1000 || c.Path != filepath.Join(root, FileName) {
		t.Errorf("found %s with %+v", c.Path, c.Engine)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CINDER_MAX_CALL_DEPTH": "42",
		"CINDER_AUTO_COLLECT":   "false",
		"CINDER_COLOR":          "Always",
		"CINDER_MODULE_ROOTS":   strings.Join([]string{"x", "y"}, string(os.PathListSeparator)),
	}
	c := Default()
	err := c.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.Engine.MaxCallDepth != 42 || c.GC.AutoCollect || c.Output.Color != "always" {
		t.Errorf("config = %+v", c)
	}
	if len(c.Modules.Roots) != 2 || c.Modules.Roots[1] != "y" {
		t.Errorf("roots = %v", c.Modules.Roots)
	}

	err = Default().ApplyEnv(func(k string) (string, bool) {
		if k == "CINDER_GC_THRESHOLD" {
			return "many", true
		}
		return "", false
	})
	if err == nil || !strings.Contains(err.Error(), "CINDER_GC_THRESHOLD") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := LoadDotEnv(dir); err != nil {
		t.Fatalf("missing .env: %v", err)
	}
	writeFile(t, filepath.Join(dir, ".env"), "CINDER_TEST_DOTENV=from-file\n")
	t.Setenv("CINDER_TEST_DOTENV", "")
	os.Unsetenv("CINDER_TEST_DOTENV")
	if err := LoadDotEnv(dir); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("CINDER_TEST_DOTENV"); got != "from-file" {
		t.Errorf("CINDER_TEST_DOTENV = %q", got)
	}
}
