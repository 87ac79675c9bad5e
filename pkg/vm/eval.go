package vm

import (
	"strings"

	"github.com/dop251/goja/ast"

	"cinder/pkg/bytecode"
	"cinder/pkg/compiler"
	"cinder/pkg/errors"
	"cinder/pkg/heap"
	"cinder/pkg/scope"
	"cinder/pkg/source"
)

// evalCacheSize bounds the compiled eval cache; it is emptied when full.
const evalCacheSize = 64

type evalKey struct {
	hash   uint64
	strict bool
}

type evalEntry struct {
	code string
	m    *bytecode.Module
}

// compileEval compiles eval code; diagnostics become a guest SyntaxError.
// Modules are cached by source hash, so loops calling eval on the same
// string compile once.
func (vm *VM) compileEval(code string, strict bool) (*bytecode.Module, error) {
	src := source.NewEvalSource(code)
	key := evalKey{src.Hash(), strict}
	if e, ok := vm.evals[key]; ok && e.code == code {
		return e.m, nil
	}
	m, errs := compiler.CompileSource(src, compiler.Options{Strict: strict, Completion: true, Eval: true})
	if len(errs) > 0 {
		return nil, vm.evalError(errs)
	}
	if len(vm.evals) >= evalCacheSize {
		clear(vm.evals)
	}
	vm.evals[key] = evalEntry{code, m}
	return m, nil
}

func (vm *VM) evalError(errs []errors.CinderError) error {
	e := errs[0]
	if e.Kind() == "Syntax" || e.Kind() == "Compile" {
		return vm.realm.NewSyntaxError("%s", e.Message())
	}
	return e
}

// indirectEval evaluates code in the global scope.
func (vm *VM) indirectEval(code string, strict bool) (heap.Value, error) {
	m, err := vm.compileEval(code, strict)
	if err != nil {
		return heap.Undefined, err
	}
	env := vm.realm.GlobalScope
	if m.Strict {
		env = scope.New(vm.h, env, scope.FlagFunction|scope.FlagEval)
	}
	f := newFrame(m, env)
	f.file = m.Name
	f.name = "eval"
	return vm.execute(f)
}

// directEval evaluates code in the scope of the calling frame.
func (vm *VM) directEval(caller *CallFrame, arg heap.Value) (heap.Value, error) {
	if !arg.IsString() {
		return arg, nil
	}
	m, err := vm.compileEval(arg.AsString(), caller.strict)
	if err != nil {
		return heap.Undefined, err
	}
	flags := scope.FlagEval | scope.FlagBlock
	if m.Strict {
		flags = scope.FlagEval | scope.FlagFunction
	}
	env := scope.New(vm.h, caller.scope, flags)
	f := newFrame(m, env)
	f.file = m.Name
	f.name = "eval"
	f.fn = caller.fn
	f.args = caller.args
	f.this = caller.this
	f.newTarget = caller.newTarget
	f.closure = caller.closure
	return vm.execute(f)
}

// dynamicFunction implements the Function family of constructors. kind is
// "function", "generator", "async" or "asyncGenerator".
func (vm *VM) dynamicFunction(kind string, params []string, body string) (heap.Value, error) {
	prefix := map[string]string{
		"function":       "function",
		"generator":      "function*",
		"async":          "async function",
		"asyncGenerator": "async function*",
	}[kind]
	if prefix == "" {
		prefix = "function"
	}
	text := "(" + prefix + " anonymous(" + strings.Join(params, ",") + "\n) {\n" + body + "\n})"
	src := source.NewSourceFile("anonymous", "", text)
	prog, errs := compiler.Parse(src)
	if len(errs) > 0 {
		return heap.Undefined, vm.evalError(errs)
	}
	lit := functionLiteral(prog)
	if lit == nil {
		return heap.Undefined, vm.realm.NewSyntaxError("Unexpected token in function body")
	}
	bp, errs := compiler.CompileFunction(lit, prog.File, compiler.Options{Name: "anonymous", Source: src})
	if len(errs) > 0 {
		return heap.Undefined, vm.evalError(errs)
	}
	bp.SourceText = text[1 : len(text)-1]
	return heap.ObjectValue(vm.makeClosure(bp, vm.realm.GlobalScope, "anonymous")), nil
}

func functionLiteral(prog *ast.Program) *ast.FunctionLiteral {
	if len(prog.Body) != 1 {
		return nil
	}
	st, ok := prog.Body[0].(*ast.ExpressionStatement)
	if !ok {
		return nil
	}
	lit, _ := st.Expression.(*ast.FunctionLiteral)
	return lit
}
