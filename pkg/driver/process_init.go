package driver

import (
	"io"
	"os"
	"runtime"
	"sort"
	"strings"

	"cinder/pkg/builtins"
	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

// ProcessInitializer sets up a Node.js-style process global. It is not
// part of ECMAScript but scripts written for Node expect it.
type ProcessInitializer struct {
	argv   []string
	stdout io.Writer
	stderr io.Writer
}

// NewProcessInitializer creates a ProcessInitializer with the given argv
// and output streams.
func NewProcessInitializer(argv []string, stdout, stderr io.Writer) *ProcessInitializer {
	return &ProcessInitializer{argv: argv, stdout: stdout, stderr: stderr}
}

func (p *ProcessInitializer) Name() string { return "process" }

func (p *ProcessInitializer) Priority() int {
	return builtins.PriorityGlobals + 100
}

func (p *ProcessInitializer) InitRuntime(ctx *builtins.RuntimeContext) error {
	r := ctx.Realm

	argv := make([]heap.Value, len(p.argv))
	for i, a := range p.argv {
		argv[i] = heap.NewString(a)
	}

	env := r.NewObject()
	vars := os.Environ()
	sort.Strings(vars)
	for _, kv := range vars {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env.Put(k, heap.NewString(v))
		}
	}

	process := r.NewObject()
	process.Put("argv", heap.ObjectValue(r.NewArray(argv)))
	process.Put("execArgv", heap.ObjectValue(r.NewArray(nil)))
	process.Put("env", heap.ObjectValue(env))
	process.Put("platform", heap.NewString(runtime.GOOS))
	process.Put("arch", heap.NewString(runtime.GOARCH))
	process.Put("pid", heap.IntValue(os.Getpid()))
	process.Put("version", heap.NewString(runtime.Version()))
	process.Put("browser", heap.False)
	process.Put("stdout", heap.ObjectValue(p.stream(r, p.stdout)))
	process.Put("stderr", heap.ObjectValue(p.stream(r, p.stderr)))

	r.Method(process, "cwd", 0, func(_ []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		cwd, err := os.Getwd()
		if err != nil {
			return heap.NewString(""), nil
		}
		return heap.NewString(cwd), nil
	})

	// exit unwinds to the driver instead of terminating the host.
	r.Method(process, "exit", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		code := 0
		if len(args) > 0 && args[0].IsNumber() {
			code = int(args[0].AsNumber())
		}
		return heap.Undefined, &ExitError{Code: code}
	})

	r.Method(process, "nextTick", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		if len(args) == 0 || !args[0].IsCallable() {
			return heap.Undefined, r.NewTypeError("The \"callback\" argument must be of type function")
		}
		fn, rest := args[0], append([]heap.Value(nil), args[1:]...)
		r.EnqueueMicrotask(func() error {
			_, err := r.Call(fn, heap.Undefined, rest...)
			return err
		}, append([]heap.Value{fn}, rest...)...)
		return heap.Undefined, nil
	})

	r.Method(process, "memoryUsage", 0, func(_ []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		st := r.Heap.Stats()
		out := r.NewObject()
		out.Put("rss", heap.NumberValue(float64(m.Sys)))
		out.Put("heapTotal", heap.NumberValue(float64(m.HeapSys)))
		out.Put("heapUsed", heap.NumberValue(float64(m.HeapAlloc)))
		out.Put("objects", heap.IntValue(st.Live))
		return heap.ObjectValue(out), nil
	})

	return ctx.DefineGlobal("process", heap.ObjectValue(process))
}

func (p *ProcessInitializer) stream(r *realm.Realm, w io.Writer) *heap.Object {
	o := r.NewObject()
	r.Method(o, "write", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		if len(args) > 0 {
			s, err := r.Heap.ToString(args[0])
			if err != nil {
				return heap.Undefined, err
			}
			io.WriteString(w, s)
		}
		return heap.True, nil
	})
	o.Put("isTTY", heap.BooleanValue(isTerminal(w)))
	return o
}
