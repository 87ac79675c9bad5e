// Package compiler lowers a parsed JavaScript program to cinder bytecode.
//
// Names are never resolved statically: every identifier becomes a
// LoadEnv/StoreEnv against the runtime scope chain, and the compiler only
// decides where scopes are pushed and which bindings they declare. Registers
// hold temporaries; the accumulator carries the value of the expression
// being evaluated.
package compiler

import (
	"fmt"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/token"
	"github.com/tliron/commonlog"

	"cinder/pkg/bytecode"
	"cinder/pkg/errors"
	"cinder/pkg/scope"
	"cinder/pkg/source"
)

var log = commonlog.GetLogger("cinder.compiler")

// Options control how a program is compiled.
type Options struct {
	// Name labels the module in disassembly and stack traces.
	Name   string
	Source *source.SourceFile
	// Strict compiles the program as strict code even without a directive.
	Strict bool
	// Completion makes the module return the value of the last expression
	// statement, as scripts and eval code do.
	Completion bool
	// Eval compiles the body of a direct or indirect eval.
	Eval bool
}

// Compiler holds the state of one function body. Nested functions get their
// own Compiler with the parent link set.
type Compiler struct {
	b      *bytecode.Builder
	regs   *RegisterAllocator
	parent *Compiler

	file *file.File
	src  *source.SourceFile
	errs *[]errors.CinderError

	strict   bool
	flags    bytecode.FunctionFlags
	topLevel bool
	eval     bool

	completion    Register
	hasCompletion bool

	targets    []*jumpTarget
	labelCount int

	// chains collects the nullish short-circuit jumps of the optional
	// chains being compiled.
	chains [][]int

	fieldCount int
}

func newCompiler(name string, parent *Compiler, f *file.File, src *source.SourceFile, errs *[]errors.CinderError) *Compiler {
	return &Compiler{
		b:      bytecode.NewBuilder(name),
		regs:   NewRegisterAllocator(),
		parent: parent,
		file:   f,
		src:    src,
		errs:   errs,
	}
}

// Compile validates and compiles a script, module body or eval body.
func Compile(prog *ast.Program, opts Options) (*bytecode.Module, []errors.CinderError) {
	if ok, errs := Validate(prog, opts.Source); !ok {
		return nil, errs
	}
	var errs []errors.CinderError
	name := opts.Name
	if name == "" {
		name = "<script>"
	}
	c := newCompiler(name, nil, prog.File, opts.Source, &errs)
	c.strict = opts.Strict || hasUseStrict(prog.Body)
	c.topLevel = true
	c.eval = opts.Eval
	c.compileScript(prog.Body, opts.Completion)
	if len(errs) > 0 {
		return nil, errs
	}
	m := c.b.Module()
	m.Strict = c.strict
	log.Debugf("compiled %s: %d bytes of code, %d constants, %d registers", name, len(m.Code), len(m.Data.Constants), c.regs.MaxRegs())
	return m, nil
}

// CompileFunction compiles a function literal produced by the Function
// constructor. The result closes over the global scope.
func CompileFunction(lit *ast.FunctionLiteral, f *file.File, opts Options) (*bytecode.FunctionBlueprint, []errors.CinderError) {
	prog := &ast.Program{Body: []ast.Statement{&ast.ExpressionStatement{Expression: lit}}, File: f}
	if ok, errs := Validate(prog, opts.Source); !ok {
		return nil, errs
	}
	var errs []errors.CinderError
	c := newCompiler(opts.Name, nil, f, opts.Source, &errs)
	c.strict = opts.Strict
	c.topLevel = true
	name := "anonymous"
	if lit.Name != nil {
		name = lit.Name.Name.String()
	}
	bp := c.functionBlueprint(lit, name)
	if len(errs) > 0 {
		return nil, errs
	}
	return bp, nil
}

func (c *Compiler) compileScript(body []ast.Statement, completion bool) {
	if completion {
		c.completion = c.allocReg(nil)
		c.regs.Pin(c.completion)
		c.hasCompletion = true
		c.loadConst(bytecode.Undefined(), intoReg(c.completion))
	}
	c.hoistVars(body)
	c.hoistDeclarations(body, true)
	c.statements(body)
	if completion {
		c.emit(bytecode.OpLdar, int(c.completion))
		c.emit(bytecode.OpReturnAcc)
		return
	}
	c.emit(bytecode.OpReturnUndefined)
}

// hasUseStrict reports whether a directive prologue contains "use strict".
func hasUseStrict(body []ast.Statement) bool {
	for _, s := range body {
		es, ok := s.(*ast.ExpressionStatement)
		if !ok {
			return false
		}
		lit, ok := es.Expression.(*ast.StringLiteral)
		if !ok {
			return false
		}
		if lit.Literal == `"use strict"` || lit.Literal == `'use strict'` {
			return true
		}
	}
	return false
}

// --- errors and positions ---

func (c *Compiler) position(idx file.Idx) errors.Position {
	if c.file == nil || idx <= 0 {
		return errors.Position{Source: c.src}
	}
	off := int(idx) - c.file.Base()
	p := c.file.Position(off)
	return errors.Position{Line: p.Line, Column: p.Column, StartPos: off, EndPos: off, Source: c.src}
}

func (c *Compiler) nodePosition(node ast.Node) errors.Position {
	if isNilNode(node) {
		return errors.Position{Source: c.src}
	}
	return c.position(node.Idx0())
}

func (c *Compiler) errorf(node ast.Node, format string, args ...interface{}) {
	*c.errs = append(*c.errs, &errors.CompileError{
		Position: c.nodePosition(node),
		Msg:      fmt.Sprintf(format, args...),
	})
}

// at sets the source position recorded for the next instructions.
func (c *Compiler) at(node ast.Node) {
	if c.file == nil || isNilNode(node) {
		return
	}
	p := c.nodePosition(node)
	if p.Line > 0 {
		c.b.SetPosition(p.Line, p.Column)
	}
}

// --- pools and registers ---

func (c *Compiler) name(s string) int {
	v := c.b.Var(s)
	if v >= bytecode.NoVar {
		c.errorf(nil, "too many names in %s", c.b.Module().Name)
		return 0
	}
	return v
}

func (c *Compiler) constant(k bytecode.Constant) int {
	i := c.b.Const(k)
	if i > 0xFFFF {
		c.errorf(nil, "too many constants in %s", c.b.Module().Name)
		return 0
	}
	return i
}

// allocReg returns a free register or records a compile error.
func (c *Compiler) allocReg(node ast.Node) Register {
	r, ok := c.regs.Alloc()
	if !ok {
		c.errorf(node, "out of registers")
		return spillRegister
	}
	return r
}

func (c *Compiler) freeReg(r Register) {
	if r != spillRegister {
		c.regs.Free(r)
	}
}

// --- functions ---

type funcSpec struct {
	node   ast.Node
	name   string
	params *ast.ParameterList
	body   []ast.Statement
	expr   ast.Expression
	flags  bytecode.FunctionFlags
	source string
	// emit replaces the body for synthetic functions.
	emit func(fc *Compiler)
}

func (c *Compiler) functionBlueprint(lit *ast.FunctionLiteral, name string) *bytecode.FunctionBlueprint {
	var flags bytecode.FunctionFlags
	if lit.Async {
		flags |= bytecode.FuncAsync
	}
	if lit.Generator {
		flags |= bytecode.FuncGenerator
	}
	var body []ast.Statement
	if lit.Body != nil {
		body = lit.Body.List
	}
	return c.compileFunc(funcSpec{node: lit, name: name, params: lit.ParameterList, body: body, flags: flags, source: lit.Source})
}

func (c *Compiler) arrowBlueprint(lit *ast.ArrowFunctionLiteral, name string) *bytecode.FunctionBlueprint {
	flags := bytecode.FuncArrow
	if lit.Async {
		flags |= bytecode.FuncAsync
	}
	spec := funcSpec{node: lit, name: name, params: lit.ParameterList, flags: flags, source: lit.Source}
	switch body := lit.Body.(type) {
	case *ast.BlockStatement:
		spec.body = body.List
	case *ast.ExpressionBody:
		spec.expr = body.Expression
	}
	return c.compileFunc(spec)
}

func (c *Compiler) compileFunc(spec funcSpec) *bytecode.FunctionBlueprint {
	modName := spec.name
	if modName == "" {
		modName = "<anonymous>"
	}
	fc := newCompiler(modName, c, c.file, c.src, c.errs)
	fc.flags = spec.flags
	fc.strict = c.strict || spec.flags&bytecode.FuncStrict != 0 || hasUseStrict(spec.body)
	flags := spec.flags
	if fc.strict {
		flags |= bytecode.FuncStrict
	}

	simple := isSimpleParams(spec.params)
	if simple {
		flags |= bytecode.FuncSimpleParams
	}
	var params []string
	length := 0
	if spec.params != nil {
		counting := true
		for _, p := range spec.params.List {
			if p.Initializer != nil {
				counting = false
			}
			if counting {
				length++
			}
			if id, ok := p.Target.(*ast.Identifier); ok {
				params = append(params, id.Name.String())
			} else {
				params = append(params, "")
			}
		}
	}

	fc.at(spec.node)
	if spec.emit != nil {
		spec.emit(fc)
	} else {
		fc.prologue(spec, simple)
		if spec.expr != nil {
			fc.expr(spec.expr, intoAcc)
			fc.emit(bytecode.OpReturnAcc)
		} else {
			fc.statements(spec.body)
			fc.emit(bytecode.OpReturnUndefined)
		}
	}
	m := fc.b.Module()
	m.Strict = fc.strict
	return &bytecode.FunctionBlueprint{
		Name:       spec.name,
		Params:     params,
		Length:     length,
		Flags:      flags,
		Body:       m,
		SourceText: spec.source,
	}
}

func isSimpleParams(params *ast.ParameterList) bool {
	if params == nil {
		return true
	}
	if params.Rest != nil {
		return false
	}
	for _, p := range params.List {
		if _, ok := p.Target.(*ast.Identifier); !ok || p.Initializer != nil {
			return false
		}
	}
	return true
}

// prologue binds parameters, creates the arguments object and hoists the
// declarations of a function body.
func (c *Compiler) prologue(spec funcSpec, simple bool) {
	var bodyNode ast.Node
	if spec.expr != nil {
		bodyNode = spec.expr
	} else {
		bodyNode = &ast.BlockStatement{List: spec.body}
	}
	paramNames := map[string]bool{}
	var ordered []string
	if spec.params != nil {
		targets := make([]ast.Expression, 0, len(spec.params.List)+1)
		for _, p := range spec.params.List {
			targets = append(targets, p.Target)
		}
		if spec.params.Rest != nil {
			targets = append(targets, spec.params.Rest)
		}
		for _, t := range targets {
			for _, n := range boundNames(t) {
				if !paramNames[n] {
					paramNames[n] = true
					ordered = append(ordered, n)
				}
			}
		}
	}

	if !simple {
		for _, n := range ordered {
			c.emit(bytecode.OpDeclare, c.name(n), int(scope.Param))
		}
	}

	if spec.flags&bytecode.FuncArrow == 0 && !paramNames["arguments"] &&
		(usesArguments(spec.params, bodyNode) || containsDirectEval(bodyNode)) {
		v := c.name("arguments")
		c.emit(bytecode.OpDeclare, v, int(scope.Var))
		c.emit(bytecode.OpLdaArguments)
		c.emit(bytecode.OpInitEnvAcc, v)
	}

	if !simple {
		for i, p := range spec.params.List {
			c.at(p)
			c.emit(bytecode.OpLdaArg, i)
			if p.Initializer != nil {
				skip := c.emit(bytecode.OpJmpIfNotUndefinedAcc, bytecode.NoAddr)
				c.namedExpr(p.Initializer, targetName(p.Target), intoAcc)
				c.patchHere(skip, 0)
			}
			c.bindTarget(p.Target, bindInit)
		}
		if spec.params.Rest != nil {
			c.emit(bytecode.OpLdaRestArgs, len(spec.params.List))
			c.bindTarget(spec.params.Rest, bindInit)
		}
	}

	c.hoistVars(spec.body)
	c.hoistDeclarations(spec.body, true)

	if spec.flags&bytecode.FuncGenerator != 0 {
		c.emit(bytecode.OpYieldUndefined)
	}
}

// --- hoisting ---

func (c *Compiler) hoistVars(body []ast.Statement) {
	for _, n := range varNames(body) {
		c.emit(bytecode.OpDeclare, c.name(n), int(scope.Var))
	}
}

// hoistDeclarations declares the lexical bindings of a statement list and
// instantiates its function declarations.
func (c *Compiler) hoistDeclarations(list []ast.Statement, top bool) {
	for _, s := range list {
		switch d := s.(type) {
		case *ast.LexicalDeclaration:
			kind := scope.Let
			if d.Token == token.CONST {
				kind = scope.Const
			}
			for _, b := range d.List {
				for _, n := range boundNames(b.Target) {
					c.emit(bytecode.OpDeclare, c.name(n), int(kind))
				}
			}
		case *ast.ClassDeclaration:
			if d.Class.Name != nil {
				c.emit(bytecode.OpDeclare, c.name(d.Class.Name.Name.String()), int(scope.Class))
			}
		}
	}
	for _, s := range list {
		d, ok := s.(*ast.FunctionDeclaration)
		if !ok || d.Function.Name == nil {
			continue
		}
		name := d.Function.Name.Name.String()
		kind := scope.Function
		if top && c.eval && !c.strict {
			kind = scope.Var
		}
		v := c.name(name)
		c.at(d.Function)
		c.emit(bytecode.OpDeclare, v, int(kind))
		bp := c.functionBlueprint(d.Function, name)
		c.emit(bytecode.OpMakeClosure, c.constant(bytecode.Blueprint(bp)))
		c.emit(bytecode.OpInitEnvAcc, v)
	}
}

// hasBlockDeclarations reports whether a statement list needs its own
// scope.
func hasBlockDeclarations(list []ast.Statement) bool {
	for _, s := range list {
		switch s.(type) {
		case *ast.LexicalDeclaration, *ast.ClassDeclaration, *ast.FunctionDeclaration:
			return true
		}
	}
	return false
}

// targetName is the name given to anonymous functions bound to target.
func targetName(target ast.Expression) string {
	if id, ok := target.(*ast.Identifier); ok {
		return id.Name.String()
	}
	return ""
}
