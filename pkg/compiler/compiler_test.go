package compiler

import (
	"strings"
	"testing"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
	"github.com/dop251/goja/token"

	"cinder/pkg/bytecode"
	"cinder/pkg/errors"
)

func parse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := parser.ParseFile(nil, "test.js", src, 0)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return prog
}

func compile(t *testing.T, src string) *bytecode.Module {
	t.Helper()
	m, errs := Compile(parse(t, src), Options{Name: "test", Completion: true})
	if len(errs) > 0 {
		t.Fatalf("compile %q: %v", src, errs)
	}
	return m
}

func opcodes(t *testing.T, m *bytecode.Module) []bytecode.Instruction {
	t.Helper()
	var out []bytecode.Instruction
	for pc := 0; pc < len(m.Code); {
		in, next, err := bytecode.Decode(m.Code, pc)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		out = append(out, in)
		pc = next
	}
	return out
}

func countOp(t *testing.T, m *bytecode.Module, op bytecode.OpCode) int {
	t.Helper()
	n := 0
	for _, in := range opcodes(t, m) {
		if in.Op == op {
			n++
		}
	}
	return n
}

func findBlueprint(m *bytecode.Module, name string) *bytecode.FunctionBlueprint {
	for _, bp := range m.Blueprints() {
		if bp.Name == name {
			return bp
		}
		if found := findBlueprint(bp.Body, name); found != nil {
			return found
		}
	}
	return nil
}

func hasMessage(errs []errors.CinderError, sub string) bool {
	for _, e := range errs {
		if strings.Contains(e.Message(), sub) {
			return true
		}
	}
	return false
}

func TestConstantFolding(t *testing.T) {
	m := compile(t, "1 + 2 * 3")
	if countOp(t, m, bytecode.OpAddRegAcc)+countOp(t, m, bytecode.OpMulRegAcc) != 0 {
		t.Errorf("arithmetic on literals should fold:\n%s", bytecode.DisassembleString(m))
	}
	found := false
	for _, k := range m.Data.Constants {
		if k.Kind == bytecode.ConstNumber && k.Number == 7 {
			found = true
		}
	}
	if !found {
		t.Errorf("folded constant 7 missing from pool %v", m.Data.Constants)
	}
}

func TestStringConcatFolding(t *testing.T) {
	m := compile(t, `"a" + "b"`)
	if countOp(t, m, bytecode.OpAddRegAcc) != 0 {
		t.Errorf("string concatenation should fold")
	}
}

func TestVarVarOperands(t *testing.T) {
	m := compile(t, "var a = 1, b = 2; a + b")
	if countOp(t, m, bytecode.OpAddVarVar) != 1 {
		t.Errorf("expected one AddVarVar:\n%s", bytecode.DisassembleString(m))
	}
	if !strings.Contains(bytecode.DisassembleString(m), "AddVarVar") {
		t.Errorf("disassembly should name AddVarVar")
	}
}

func TestCompletionValue(t *testing.T) {
	ins := opcodes(t, compile(t, "40 + 2"))
	if n := len(ins); n < 2 || ins[n-2].Op != bytecode.OpLdar || ins[n-1].Op != bytecode.OpReturnAcc {
		t.Errorf("script should end with Ldar, ReturnAcc; got %v", ins)
	}

	m, errs := Compile(parse(t, "1"), Options{Name: "noc"})
	if len(errs) > 0 {
		t.Fatal(errs)
	}
	ins = opcodes(t, m)
	if ins[len(ins)-1].Op != bytecode.OpReturnUndefined {
		t.Errorf("module without completion should end with ReturnUndefined")
	}
}

func TestLetLoopRenewsScope(t *testing.T) {
	m := compile(t, "for (let i = 0; i < 3; i++) { (() => i); }")
	if countOp(t, m, bytecode.OpRenewScope) == 0 {
		t.Errorf("let loop needs a per-iteration scope:\n%s", bytecode.DisassembleString(m))
	}
	if countOp(t, m, bytecode.OpPushScope) != countOp(t, m, bytecode.OpPopScope) {
		t.Errorf("PushScope and PopScope should balance")
	}

	m = compile(t, "for (var i = 0; i < 3; i++) {}")
	if countOp(t, m, bytecode.OpRenewScope) != 0 {
		t.Errorf("var loop should not renew its scope")
	}
}

func TestTryFinallyLayout(t *testing.T) {
	m := compile(t, "try { f() } finally { g() }")
	var enter *bytecode.Instruction
	for _, in := range opcodes(t, m) {
		if in.Op == bytecode.OpEnterTry {
			in := in
			enter = &in
		}
	}
	if enter == nil {
		t.Fatalf("no EnterTry emitted")
	}
	if enter.Args[0] != bytecode.NoAddr {
		t.Errorf("try without catch should have no catch address, got %d", enter.Args[0])
	}
	if enter.Args[1] == bytecode.NoAddr {
		t.Errorf("finally address missing")
	}
	if countOp(t, m, bytecode.OpEndFinally) != 1 {
		t.Errorf("expected one EndFinally")
	}
}

func TestFunctionBlueprint(t *testing.T) {
	m := compile(t, "function f(a, b = 1, ...c) { return a }")
	bp := findBlueprint(m, "f")
	if bp == nil {
		t.Fatal("blueprint f not found")
	}
	if bp.Length != 1 {
		t.Errorf("length = %d, want 1", bp.Length)
	}
	if bp.Has(bytecode.FuncSimpleParams) {
		t.Errorf("defaults and rest make parameters non-simple")
	}
	if len(bp.Params) != 2 || bp.Params[0] != "a" || bp.Params[1] != "b" {
		t.Errorf("params = %v", bp.Params)
	}
	if !strings.Contains(bp.SourceText, "return a") {
		t.Errorf("source text not recorded: %q", bp.SourceText)
	}
}

func TestArrowNaming(t *testing.T) {
	m := compile(t, "const g = async (x) => x")
	bp := findBlueprint(m, "g")
	if bp == nil {
		t.Fatal("arrow should take its binding name")
	}
	if !bp.Has(bytecode.FuncArrow) || !bp.Has(bytecode.FuncAsync) {
		t.Errorf("flags = %b", bp.Flags)
	}
	if !bp.Has(bytecode.FuncSimpleParams) {
		t.Errorf("(x) is a simple parameter list")
	}
}

func TestStrictInheritance(t *testing.T) {
	m := compile(t, `"use strict"; function f() { return function g() {} }`)
	if !m.Strict {
		t.Errorf("script should be strict")
	}
	if bp := findBlueprint(m, "g"); bp == nil || !bp.Has(bytecode.FuncStrict) {
		t.Errorf("nested function should inherit strictness")
	}
}

func TestClassLayout(t *testing.T) {
	m := compile(t, `
class A extends Object {
  #x = 1;
  m() { return this.#x }
  static s = 2;
  static { this.t = 3 }
}`)
	if countOp(t, m, bytecode.OpMakeClass) != 1 {
		t.Errorf("expected one MakeClass")
	}
	if countOp(t, m, bytecode.OpSetClassFields) != 1 {
		t.Errorf("instance fields need SetClassFields")
	}
	if countOp(t, m, bytecode.OpCallMember) != 2 {
		t.Errorf("each static element runs once; got %d calls", countOp(t, m, bytecode.OpCallMember))
	}
	ctor := findBlueprint(m, "A")
	if ctor == nil || !ctor.Has(bytecode.FuncClassConstructor) || !ctor.Has(bytecode.FuncDerived) {
		t.Fatalf("derived constructor blueprint missing or wrong: %+v", ctor)
	}
	if countOp(t, ctor.Body, bytecode.OpSuperCall) != 1 {
		t.Errorf("implicit derived constructor should forward to super")
	}
	init := findBlueprint(m, "<instance_members_initializer>")
	if init == nil {
		t.Fatal("instance initializer missing")
	}
	if countOp(t, init.Body, bytecode.OpDefinePrivate) != 1 {
		t.Errorf("#x should be defined by the initializer")
	}
	if findBlueprint(m, "<static_initializer>") == nil || findBlueprint(m, "<static_block>") == nil {
		t.Errorf("static initializers missing")
	}
	if mb := findBlueprint(m, "m"); mb == nil || !mb.Has(bytecode.FuncMethod) || !mb.Has(bytecode.FuncStrict) {
		t.Errorf("class methods are strict methods")
	}
}

func TestObjectLiteralMethods(t *testing.T) {
	m := compile(t, "({ a: 1, get b() { return 2 }, [k]: 3, ...rest, c() {} })")
	if countOp(t, m, bytecode.OpDefineField) != 1 {
		t.Errorf("expected one DefineField")
	}
	if countOp(t, m, bytecode.OpDefineMethod) != 2 {
		t.Errorf("expected getter and method definitions")
	}
	if countOp(t, m, bytecode.OpCopyDataProps) != 1 {
		t.Errorf("spread should copy data properties")
	}
	if bp := findBlueprint(m, "b"); bp == nil || !bp.Has(bytecode.FuncGetter) {
		t.Errorf("getter flag missing")
	}
}

func TestDestructuring(t *testing.T) {
	m := compile(t, "let [a, , b = 2, ...c] = xs; let {d, e: {f}, ...g} = o;")
	if countOp(t, m, bytecode.OpGetIterator) != 1 {
		t.Errorf("array pattern uses the iterator protocol")
	}
	if countOp(t, m, bytecode.OpIteratorClose) != 1 {
		t.Errorf("array pattern closes its iterator")
	}
	if countOp(t, m, bytecode.OpCopyRest) != 1 {
		t.Errorf("object rest uses CopyRest")
	}
}

func TestLabelledContinue(t *testing.T) {
	m := compile(t, "outer: for (;;) { for (;;) { continue outer; } }")
	if countOp(t, m, bytecode.OpContinueLabel) != 1 {
		t.Errorf("expected ContinueLabel:\n%s", bytecode.DisassembleString(m))
	}
}

func TestBranchErrors(t *testing.T) {
	tests := []struct {
		name string
		body []ast.Statement
		want string
	}{
		{"break", []ast.Statement{&ast.BranchStatement{Token: token.BREAK}}, "Illegal break statement"},
		{"continue", []ast.Statement{&ast.BranchStatement{Token: token.CONTINUE}}, "no surrounding iteration statement"},
		{"label", []ast.Statement{&ast.WhileStatement{
			Test: &ast.BooleanLiteral{Value: true},
			Body: &ast.BranchStatement{Token: token.BREAK, Label: &ast.Identifier{Name: "nope"}},
		}}, "Undefined label 'nope'"},
		{"return", []ast.Statement{&ast.ReturnStatement{}}, "Illegal return statement"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := Compile(&ast.Program{Body: tt.body}, Options{Name: tt.name})
			if !hasMessage(errs, tt.want) {
				t.Errorf("errors %v do not mention %q", errs, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		src  string
		want string // empty when the program is valid
	}{
		{"let a; let a;", "has already been declared"},
		{"let a; var a;", "has already been declared"},
		{"const a = 1; function a() {}", "has already been declared"},
		{"class C { m() { return this.#y } }", "Private field '#y'"},
		{`"use strict"; var x; delete x;`, "Delete of an unqualified identifier"},
		{`function f(a, a) { "use strict" }`, "Duplicate parameter"},
		{"function f(a, a) {}", ""},
		{"let a; { let a; }", ""},
		{"var f; function f() {}", ""},
		{"class C { #y; m() { return #y in this } }", ""},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			ok, errs := Validate(parse(t, tt.src), nil)
			if tt.want == "" {
				if !ok {
					t.Errorf("unexpected errors: %v", errs)
				}
				return
			}
			if ok || !hasMessage(errs, tt.want) {
				t.Errorf("errors %v do not mention %q", errs, tt.want)
			}
		})
	}
}

func TestPositionsRecorded(t *testing.T) {
	m := compile(t, "var a = 1;\n\nthrow a;")
	found := false
	for _, e := range m.Lines {
		if e.Line == 3 {
			found = true
		}
	}
	if !found {
		t.Errorf("line table %v has no entry for line 3", m.Lines)
	}
}

func TestRequires(t *testing.T) {
	prog := parse(t, `
		const a = require("./a");
		function lazy() { return require("../b.js") }
		require("./a");
		require(name);
		other("./c");
	`)
	got := strings.Join(Requires(prog), " ")
	if got != "./a ../b.js" {
		t.Errorf("Requires = %q", got)
	}
}

func TestDumpAST(t *testing.T) {
	prog := parse(t, "let x = 1;\nfunction f(a) { return a + x }")
	var sb strings.Builder
	DumpAST(&sb, prog)
	out := sb.String()
	for _, want := range []string{
		"  LexicalDeclaration let @1:1\n",
		"NumberLiteral 1 @1:9\n",
		"FunctionLiteral f @2:1\n",
		"BinaryExpression + @2:24\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump lacks %q:\n%s", want, out)
		}
	}
	if !strings.HasPrefix(out, "Program") {
		t.Errorf("dump does not start at the program:\n%s", out)
	}
	if strings.Index(out, "ReturnStatement") > strings.Index(out, "BinaryExpression") {
		t.Errorf("children printed before parents:\n%s", out)
	}
}
