// Package config handles cinder.toml engine configuration and its
// CINDER_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"cinder/pkg/heap"
	"cinder/pkg/modules"
	"cinder/pkg/vm"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "cinder.toml"

// Config is the full engine configuration.
type Config struct {
	Engine  Engine  `toml:"engine"`
	GC      GC      `toml:"gc"`
	Modules Modules `toml:"modules"`
	Output  Output  `toml:"output"`

	// Path is the file the configuration was loaded from (set at load time).
	Path string `toml:"-"`
}

type Engine struct {
	MaxCallDepth  int  `toml:"max_call_depth"`
	MaxObjects    int  `toml:"max_objects"`
	StrictDefault bool `toml:"strict_default"`
}

type GC struct {
	SuspectThreshold int  `toml:"suspect_threshold"`
	AutoCollect      bool `toml:"auto_collect"`
}

// Modules configures require resolution. Roots are searched in order;
// relative roots are taken from the configuration file's directory.
type Modules struct {
	Roots      []string `toml:"roots"`
	Extensions []string `toml:"extensions"`
	CacheSize  int      `toml:"cache_size"`
}

type Output struct {
	// Color is "auto", "always" or "never".
	Color   string `toml:"color"`
	GCStats bool   `toml:"gc_stats"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	h := heap.DefaultOptions()
	v := vm.DefaultConfig()
	return &Config{
		Engine: Engine{MaxCallDepth: v.MaxCallDepth, MaxObjects: h.MaxObjects},
		GC:     GC{SuspectThreshold: h.SuspectThreshold, AutoCollect: v.AutoCollect},
		Modules: Modules{
			Roots:      []string{"."},
			Extensions: modules.DefaultLoaderConfig().Extensions,
		},
		Output: Output{Color: "auto"},
	}
}

// Load reads path over the defaults. Keys absent from the file keep their
// default values.
func Load(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	if c.Path, err = filepath.Abs(path); err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	dir := filepath.Dir(c.Path)
	for i, root := range c.Modules.Roots {
		if !filepath.IsAbs(root) {
			c.Modules.Roots[i] = filepath.Join(dir, root)
		}
	}
	return c, c.Validate()
}

// FindAndLoad walks up from startDir to the first cinder.toml and loads
// it. With no file found it returns Default().
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// LoadDotEnv loads dir/.env into the process environment without
// overriding variables that are already set. A missing file is not an
// error.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from CINDER_* variables found through lookup
// (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	ints := []struct {
		name string
		dst  *int
	}{
		{"CINDER_MAX_CALL_DEPTH", &c.Engine.MaxCallDepth},
		{"CINDER_MAX_OBJECTS", &c.Engine.MaxObjects},
		{"CINDER_GC_THRESHOLD", &c.GC.SuspectThreshold},
		{"CINDER_MODULE_CACHE", &c.Modules.CacheSize},
	}
	for _, e := range ints {
		if s, ok := lookup(e.name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return fmt.Errorf("%s: %w", e.name, err)
			}
			*e.dst = n
		}
	}
	bools := []struct {
		name string
		dst  *bool
	}{
		{"CINDER_STRICT", &c.Engine.StrictDefault},
		{"CINDER_AUTO_COLLECT", &c.GC.AutoCollect},
		{"CINDER_GC_STATS", &c.Output.GCStats},
	}
	for _, e := range bools {
		if s, ok := lookup(e.name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(s))
			if err != nil {
				return fmt.Errorf("%s: %w", e.name, err)
			}
			*e.dst = b
		}
	}
	if s, ok := lookup("CINDER_MODULE_ROOTS"); ok {
		c.Modules.Roots = filepath.SplitList(s)
	}
	if s, ok := lookup("CINDER_COLOR"); ok {
		c.Output.Color = strings.ToLower(strings.TrimSpace(s))
	}
	return c.Validate()
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Engine.MaxCallDepth < 0:
		return fmt.Errorf("engine.max_call_depth must not be negative")
	case c.Engine.MaxObjects < 0:
		return fmt.Errorf("engine.max_objects must not be negative")
	case c.GC.SuspectThreshold < 0:
		return fmt.Errorf("gc.suspect_threshold must not be negative")
	case c.Modules.CacheSize < 0:
		return fmt.Errorf("modules.cache_size must not be negative")
	}
	switch c.Output.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("output.color must be auto, always or never, not %q", c.Output.Color)
	}
	return nil
}

func (c *Config) HeapOptions() heap.Options {
	return heap.Options{SuspectThreshold: c.GC.SuspectThreshold, MaxObjects: c.Engine.MaxObjects}
}

func (c *Config) VMConfig() vm.Config {
	return vm.Config{MaxCallDepth: c.Engine.MaxCallDepth, AutoCollect: c.GC.AutoCollect}
}

func (c *Config) LoaderConfig() *modules.LoaderConfig {
	lc := modules.DefaultLoaderConfig()
	lc.Extensions = c.Modules.Extensions
	lc.CacheSize = c.Modules.CacheSize
	return lc
}
