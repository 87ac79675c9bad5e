// Package driver ties the engine together. A Cinder session owns one realm,
// its VM and a module loader, and evaluates scripts and files against them.
package driver

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/tliron/commonlog"

	"cinder/pkg/builtins"
	"cinder/pkg/bytecode"
	"cinder/pkg/compiler"
	"cinder/pkg/config"
	"cinder/pkg/errors"
	"cinder/pkg/heap"
	"cinder/pkg/modules"
	"cinder/pkg/realm"
	"cinder/pkg/source"
	"cinder/pkg/vm"
)

var log = commonlog.GetLogger("cinder.driver")

// Options configure a session. Zero values fall back to config.Default and
// the process's standard streams.
type Options struct {
	Config *config.Config
	Stdout io.Writer
	Stderr io.Writer
	// Argv becomes process.argv.
	Argv []string
	// Native modules are registered before any script runs.
	Native []*NativeModule
}

// Cinder is a persistent interpreter session. Globals defined by one
// evaluation stay visible to the next.
type Cinder struct {
	config *config.Config
	realm  *realm.Realm
	vm     *vm.VM

	loader  *modules.Loader
	memory  *modules.MemoryResolver
	natives *NativeModuleResolver
	roots   []*modules.FileSystemResolver
	// hosts maps resolver names to file system resolvers and origins maps
	// canonical module paths to the resolver that produced them.
	hosts   map[string]*modules.FileSystemResolver
	origins map[string]string

	stdout io.Writer
	stderr io.Writer
}

// NewCinder creates a session with the default configuration, resolving
// modules from the current directory.
func NewCinder() *Cinder {
	return NewCinderWithBaseDir(".")
}

// NewCinderWithBaseDir creates a session whose only module root is baseDir.
func NewCinderWithBaseDir(baseDir string) *Cinder {
	cfg := config.Default()
	cfg.Modules.Roots = []string{baseDir}
	c, err := New(Options{Config: cfg})
	if err != nil {
		log.Errorf("builtin initialization failed: %s", err.Error())
	}
	return c
}

// New creates a session from opts.
func New(opts Options) (*Cinder, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	c := &Cinder{
		config:  cfg,
		hosts:   map[string]*modules.FileSystemResolver{},
		origins: map[string]string{},
		stdout:  opts.Stdout,
		stderr:  opts.Stderr,
	}
	if c.stdout == nil {
		c.stdout = os.Stdout
	}
	if c.stderr == nil {
		c.stderr = os.Stderr
	}

	c.memory = modules.NewMemoryResolver("Memory")
	c.natives = NewNativeModuleResolver()
	c.loader = modules.NewLoader(cfg.LoaderConfig(), c.memory, c.natives)
	for _, root := range cfg.Modules.Roots {
		c.addRoot(root, 100)
	}
	for _, m := range standardNativeModules() {
		c.natives.Register(m)
	}
	for _, m := range opts.Native {
		c.natives.Register(m)
	}

	c.realm = realm.New(realm.Options{Heap: cfg.HeapOptions()})
	c.realm.Hooks.ResolveModule = c.resolveModule
	c.realm.Hooks.EvaluateModule = c.evaluateModule
	c.vm = vm.New(c.realm, cfg.VMConfig())

	argv := opts.Argv
	if argv == nil {
		argv = []string{"cinder"}
	}
	err := builtins.Install(c.realm, builtins.Options{
		Stdout: c.stdout,
		Stderr: c.stderr,
		Extra:  []builtins.BuiltinInitializer{NewProcessInitializer(argv, c.stdout, c.stderr)},
	})
	if err != nil {
		return c, err
	}
	log.Debugf("session %s ready with %d module roots", c.realm.ID, len(c.roots))
	return c, nil
}

// addRoot adds a file system resolver for dir, reusing an existing one.
func (c *Cinder) addRoot(dir string, priority int) *modules.FileSystemResolver {
	fr := modules.NewOSFileSystemResolver(dir)
	name := "fs:" + fr.HostPath("/")
	if existing, ok := c.hosts[name]; ok {
		return existing
	}
	fr.SetName(name)
	fr.SetPriority(priority)
	c.hosts[name] = fr
	c.roots = append(c.roots, fr)
	c.loader.AddResolver(fr)
	return fr
}

func (c *Cinder) Realm() *realm.Realm            { return c.realm }
func (c *Cinder) VM() *vm.VM                     { return c.vm }
func (c *Cinder) Loader() *modules.Loader        { return c.loader }
func (c *Cinder) Config() *config.Config         { return c.config }
func (c *Cinder) Stdout() io.Writer              { return c.stdout }
func (c *Cinder) Natives() *NativeModuleResolver { return c.natives }

// AddModule makes source available to require under path without touching
// the file system.
func (c *Cinder) AddModule(path, source string) {
	c.memory.AddModule(path, source)
}

// RunOptions configures optional debugging output.
type RunOptions struct {
	ShowAST      bool
	ShowBytecode bool
	// Output receives the dumps; nil means the session's stderr.
	Output io.Writer
}

// RunString compiles and runs sourceCode as a script in the global scope
// and returns its completion value.
func (c *Cinder) RunString(sourceCode string) (heap.Value, []errors.CinderError) {
	return c.RunCode(source.NewEvalSource(sourceCode), RunOptions{})
}

// RunCode runs src as a global script with the given options.
func (c *Cinder) RunCode(src *source.SourceFile, options RunOptions) (heap.Value, []errors.CinderError) {
	prog, errs := compiler.Parse(src)
	if len(errs) > 0 {
		return heap.Undefined, errs
	}
	m, errs := c.compileProgram(prog, src, options)
	if len(errs) > 0 {
		return heap.Undefined, errs
	}
	v, _, err := c.vm.Interpret(m)
	return c.finish(v, err)
}

// RunBytecode runs a module produced by CompileFile or read from a .jsbc
// file.
func (c *Cinder) RunBytecode(m *bytecode.Module) (heap.Value, []errors.CinderError) {
	v, _, err := c.vm.Interpret(m)
	return c.finish(v, err)
}

// RunFile runs filename as the main module: it gets its own module scope
// with require, module and exports, and its completion value is returned.
func (c *Cinder) RunFile(filename string) (heap.Value, []errors.CinderError) {
	return c.RunFileWithOptions(filename, RunOptions{})
}

func (c *Cinder) RunFileWithOptions(filename string, options RunOptions) (heap.Value, []errors.CinderError) {
	abs, err := filepath.Abs(filename)
	if err != nil {
		return heap.Undefined, []errors.CinderError{readError(filename, err)}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return heap.Undefined, []errors.CinderError{readError(filename, err)}
	}
	src := source.FromFile(abs, string(data))
	prog, errs := compiler.Parse(src)
	if len(errs) > 0 {
		return heap.Undefined, errs
	}
	m, errs := c.compileProgram(prog, src, options)
	if len(errs) > 0 {
		return heap.Undefined, errs
	}

	canonical, resolver := c.mainPath(abs)
	c.origins[canonical] = resolver
	c.loader.Graph().AddModule(canonical)
	if reqs := compiler.Requires(prog); len(reqs) > 0 {
		if err := c.loader.Prefetch(context.Background(), canonical, reqs...); err != nil {
			// Missing modules are reported when require runs.
			log.Debugf("prefetch from %s: %s", canonical, err.Error())
		}
	}

	rec := c.realm.Module(canonical)
	if rec == nil {
		rec = c.realm.NewModuleRecord(canonical)
	}
	rec.State = realm.ModuleEvaluating
	v, err := c.runModuleBody(rec, m, abs)
	if err != nil {
		rec.State = realm.ModuleErrored
		rec.Err = err
	} else {
		rec.State = realm.ModuleEvaluated
	}
	return c.finish(v, err)
}

// mainPath places abs under the first module root containing it. Files
// outside every root get a root of their own directory, searched first.
func (c *Cinder) mainPath(abs string) (canonical, resolver string) {
	for _, fr := range c.roots {
		base := fr.HostPath("/")
		rel, err := filepath.Rel(base, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return "/" + filepath.ToSlash(rel), fr.Name()
	}
	fr := c.addRoot(filepath.Dir(abs), 90)
	return "/" + filepath.Base(abs), fr.Name()
}

func (c *Cinder) compileProgram(prog *ast.Program, src *source.SourceFile, options RunOptions) (*bytecode.Module, []errors.CinderError) {
	out := options.Output
	if out == nil {
		out = c.stderr
	}
	if options.ShowAST {
		fmt.Fprintf(out, "--- AST [%s] ---\n", src.DisplayPath())
		compiler.DumpAST(out, prog)
	}
	m, errs := compiler.Compile(prog, compiler.Options{
		Name:       src.DisplayPath(),
		Source:     src,
		Strict:     c.config.Engine.StrictDefault,
		Completion: true,
	})
	if len(errs) > 0 {
		return nil, errs
	}
	if options.ShowBytecode {
		fmt.Fprintf(out, "--- Bytecode [%s] ---\n", src.DisplayPath())
		bytecode.Disassemble(out, m)
	}
	return m, nil
}

// finish drains the microtask queue after a top-level run and converts the
// outcome into diagnostics.
func (c *Cinder) finish(v heap.Value, err error) (heap.Value, []errors.CinderError) {
	if err == nil {
		err = c.vm.RunMicrotasks()
	}
	if err == nil {
		if rejected := c.realm.TakeUnhandledRejections(); len(rejected) > 0 {
			re := vm.ToRuntimeError(c.realm, realm.NewException(rejected[0])).(*errors.RuntimeError)
			re.Msg = "Uncaught (in promise) " + strings.TrimPrefix(re.Msg, "Uncaught ")
			return v, []errors.CinderError{re}
		}
	}
	if err == nil {
		return v, nil
	}
	return v, []errors.CinderError{c.toCinderError(err)}
}

func (c *Cinder) toCinderError(err error) errors.CinderError {
	var exit *ExitError
	if stderrors.As(err, &exit) {
		return exit
	}
	err = vm.ToRuntimeError(c.realm, err)
	var ce errors.CinderError
	if stderrors.As(err, &ce) {
		return ce
	}
	return &errors.FatalError{Msg: err.Error(), Cause: err}
}

// DisplayResult prints errs, or value when it is not undefined. It reports
// whether the run succeeded.
func (c *Cinder) DisplayResult(w io.Writer, sourceCode string, value heap.Value, errs []errors.CinderError) bool {
	if len(errs) > 0 {
		errors.DisplayErrors(w, sourceCode, errs)
		return false
	}
	if !value.IsUndefined() {
		fmt.Fprintln(w, value.Inspect())
	}
	return true
}

// Collect runs the cycle collector now.
func (c *Cinder) Collect() heap.CollectStats {
	return c.realm.Collect()
}

// HeapStats reports cumulative heap counters.
func (c *Cinder) HeapStats() heap.Stats {
	return c.realm.Heap.Stats()
}

// CompileString compiles sourceCode outside any session.
func CompileString(sourceCode string) (*bytecode.Module, []errors.CinderError) {
	return compiler.CompileSource(source.NewEvalSource(sourceCode), compiler.Options{Completion: true})
}

// CompileFile reads and compiles filename outside any session.
func CompileFile(filename string, strict bool) (*bytecode.Module, []errors.CinderError) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, []errors.CinderError{readError(filename, err)}
	}
	return compiler.CompileSource(source.FromFile(filename, string(data)), compiler.Options{Strict: strict, Completion: true})
}

// RunString runs source in a fresh session, printing the result or the
// errors. It reports whether the run succeeded.
func RunString(sourceCode string) bool {
	c, err := New(Options{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return false
	}
	value, errs := c.RunString(sourceCode)
	return c.DisplayResult(os.Stdout, sourceCode, value, errs)
}

func readError(filename string, err error) *errors.CompileError {
	return &errors.CompileError{
		Msg:   fmt.Sprintf("Failed to read file '%s': %s", filename, err.Error()),
		Cause: err,
	}
}

// ExitError is returned when guest code calls process.exit.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string        { return fmt.Sprintf("process.exit(%d)", e.Code) }
func (e *ExitError) Pos() errors.Position { return errors.Position{} }
func (e *ExitError) Kind() string         { return "Exit" }
func (e *ExitError) Message() string      { return e.Error() }
func (e *ExitError) Unwrap() error        { return nil }
