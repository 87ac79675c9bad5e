package driver

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

// standardNativeModules are registered in every session.
func standardNativeModules() []*NativeModule {
	return []*NativeModule{
		DefineNativeModule("path", pathModule),
		DefineNativeModule("cinder:heap", heapModule),
	}
}

// pathModule is a POSIX subset of Node's path module.
func pathModule(m *ModuleBuilder) {
	m.Const("sep", "/")
	m.Const("delimiter", ":")
	m.Function("join", func(parts ...string) string {
		joined := path.Join(parts...)
		if joined == "" {
			return "."
		}
		return joined
	})
	m.Function("normalize", func(p string) string {
		if p == "" {
			return "."
		}
		clean := path.Clean(p)
		if strings.HasSuffix(p, "/") && clean != "/" {
			clean += "/"
		}
		return clean
	})
	m.Function("dirname", path.Dir)
	m.Function("extname", path.Ext)
	m.Function("isAbsolute", path.IsAbs)
	m.Function("basename", func(p, ext string) string {
		base := path.Base(p)
		if ext != "" && ext != base {
			base = strings.TrimSuffix(base, ext)
		}
		return base
	})
	m.Function("resolve", func(parts ...string) (string, error) {
		resolved := ""
		for i := len(parts) - 1; i >= 0 && !path.IsAbs(resolved); i-- {
			if parts[i] != "" {
				resolved = path.Join(parts[i], resolved)
			}
		}
		if !path.IsAbs(resolved) {
			cwd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			resolved = path.Join(cwd, resolved)
		}
		return path.Clean(resolved), nil
	})
}

// HeapReport is the shape returned by require("cinder:heap").stats().
type HeapReport struct {
	Allocated   uint64  `json:"allocated"`
	Freed       uint64  `json:"freed"`
	CyclesFreed uint64  `json:"cyclesFreed"`
	Collections uint64  `json:"collections"`
	Live        int     `json:"live"`
	Suspects    int     `json:"suspects"`
	PauseMillis float64 `json:"pauseMillis"`
}

func heapReport(st heap.Stats) HeapReport {
	return HeapReport{
		Allocated:   st.Allocated,
		Freed:       st.Freed,
		CyclesFreed: st.CyclesFreed,
		Collections: st.Collections,
		Live:        st.Live,
		Suspects:    st.Suspects,
		PauseMillis: float64(st.TotalPause) / float64(time.Millisecond),
	}
}

// heapModule exposes the collector of the realm it is loaded into.
func heapModule(m *ModuleBuilder) {
	r := m.Realm()
	m.Function("stats", func() HeapReport {
		return heapReport(r.Heap.Stats())
	})
	m.Native("collect", 0, func(_ []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		st := r.Collect()
		out := r.NewObject()
		out.Put("freed", heap.IntValue(st.Freed()))
		out.Put("freedCycles", heap.IntValue(st.FreedCycles))
		out.Put("durationMillis", heap.NumberValue(float64(st.Duration)/float64(time.Millisecond)))
		return heap.ObjectValue(out), nil
	})
	m.Function("summary", func() string {
		return FormatHeapStats(r.Heap.Stats())
	})
}

// FormatHeapStats renders st for people, as printed by --gc-stats.
func FormatHeapStats(st heap.Stats) string {
	return fmt.Sprintf("%s objects allocated, %s freed (%s in cycles), %s live, %s collections, %s paused",
		humanize.Comma(int64(st.Allocated)),
		humanize.Comma(int64(st.Freed)),
		humanize.Comma(int64(st.CyclesFreed)),
		humanize.Comma(int64(st.Live)),
		humanize.Comma(int64(st.Collections)),
		st.TotalPause.Round(time.Microsecond))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
