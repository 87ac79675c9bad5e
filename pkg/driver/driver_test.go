package driver

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cinder/pkg/bytecode"
	"cinder/pkg/config"
	"cinder/pkg/errors"
	"cinder/pkg/source"
)

func newTestCinder(t *testing.T, dir string, out io.Writer, native ...*NativeModule) *Cinder {
	t.Helper()
	cfg := config.Default()
	if dir != "" {
		cfg.Modules.Roots = []string{dir}
	}
	c, err := New(Options{Config: cfg, Stdout: out, Stderr: out, Argv: []string{"cinder", "main.js", "--flag"}, Native: native})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func mustRun(t *testing.T, c *Cinder, src string) string {
	t.Helper()
	v, errs := c.RunString(src)
	if len(errs) > 0 {
		t.Fatalf("%s: %v", src, errs[0])
	}
	return v.Inspect()
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestCinder_PersistentGlobals(t *testing.T) {
	c := newTestCinder(t, "", nil)
	mustRun(t, c, `var a = 20; let b = 1; function twice(x) { return x * 2 }`)
	if got := mustRun(t, c, `twice(a) + b + 1`); got != "42" {
		t.Errorf("got %s", got)
	}
}

func TestCinder_Errors(t *testing.T) {
	c := newTestCinder(t, "", nil)

	_, errs := c.RunString(`let = ;`)
	if len(errs) == 0 || errs[0].Kind() != "Syntax" {
		t.Fatalf("syntax error expected, got %v", errs)
	}

	_, errs = c.RunString("const o = null;\no.x")
	if len(errs) != 1 {
		t.Fatalf("errors = %v", errs)
	}
	re, ok := errs[0].(*errors.RuntimeError)
	if !ok {
		t.Fatalf("%T: %v", errs[0], errs[0])
	}
	if !strings.HasPrefix(re.Msg, "Uncaught TypeError") {
		t.Errorf("got %q", re.Msg)
	}

	_, errs = c.RunString(`Promise.reject(new RangeError("nope")); 1`)
	if len(errs) != 1 || errs[0].Message() != "Uncaught (in promise) RangeError: nope" {
		t.Errorf("unhandled rejection: %v", errs)
	}

	// The session stays usable after errors.
	if got := mustRun(t, c, `"still " + "here"`); got != "still here" {
		t.Errorf("got %s", got)
	}
}

func TestCinder_ProcessExit(t *testing.T) {
	c := newTestCinder(t, "", nil)
	_, errs := c.RunString(`process.exit(3); "unreachable"`)
	if len(errs) != 1 {
		t.Fatalf("errors = %v", errs)
	}
	exit, ok := errs[0].(*ExitError)
	if !ok || exit.Code != 3 {
		t.Errorf("got %#v", errs[0])
	}
}

func TestCinder_ProcessGlobal(t *testing.T) {
	var out bytes.Buffer
	c := newTestCinder(t, "", &out)
	tests := []struct {
		src  string
		want string
	}{
		{`process.argv.slice(1).join(" ")`, "main.js --flag"},
		{`typeof process.env`, "object"},
		{`typeof process.cwd()`, "string"},
		{`process.memoryUsage().objects > 0`, "true"},
	}
	for _, tc := range tests {
		if got := mustRun(t, c, tc.src); got != tc.want {
			t.Errorf("%s = %s, want %s", tc.src, got, tc.want)
		}
	}

	out.Reset()
	mustRun(t, c, `process.nextTick((x) => console.log("tick", x), 1); process.stdout.write("sync\n")`)
	if out.String() != "sync\ntick 1\n" {
		t.Errorf("output %q", out.String())
	}
}

func TestCinder_RunFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"main.js": `const util = require("./lib/util");
const data = require("./data.json");
const same = require("./lib/util.js") === util;
util.greet(data.name) + ":" + same + ":" + module.id + ":" + require("path").basename(__filename)`,
		"lib/util.js": `exports.greet = (n) => "hello " + n;`,
		"data.json":   `{"name": "cinder"}`,
	})
	c := newTestCinder(t, dir, nil)
	v, errs := c.RunFile(filepath.Join(dir, "main.js"))
	if len(errs) > 0 {
		t.Fatal(errs[0])
	}
	if got := v.Inspect(); got != "hello cinder:true:/main.js:main.js" {
		t.Errorf("got %s", got)
	}

	if order, err := c.Loader().Graph().TopologicalOrder(); err != nil || len(order) < 3 {
		t.Errorf("graph order %v, %v", order, err)
	}
}

func TestCinder_RunFileOutsideRoots(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"app/main.js": `require("./dep").value * 2`,
		"app/dep.js":  `module.exports = { value: 21 };`,
	})
	c := newTestCinder(t, t.TempDir(), nil)
	v, errs := c.RunFile(filepath.Join(dir, "app", "main.js"))
	if len(errs) > 0 {
		t.Fatal(errs[0])
	}
	if v.Inspect() != "42" {
		t.Errorf("got %s", v.Inspect())
	}
}

func TestCinder_RequireSemantics(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.js":      `exports.early = 1; const b = require("./b"); exports.fromB = b.seen;`,
		"b.js":      `const a = require("./a"); exports.seen = a.early;`,
		"fn.js":     `module.exports = function () { return this === undefined ? "strict" : "sloppy" };`,
		"this.js":   `this.viaThis = true;`,
		"count.js":  `globalThis.loads = (globalThis.loads || 0) + 1; exports.n = globalThis.loads;`,
		"bad.js":    `throw new TypeError("broken module");`,
		"syntax.js": `let = ;`,
	})
	c := newTestCinder(t, dir, nil)
	tests := []struct {
		src  string
		want string
	}{
		{`require("./a").fromB`, "1"},
		{`require("./fn")()`, "sloppy"},
		{`require("./this").viaThis`, "true"},
		{`require("./count"); require("./count.js"); require("/count").n + ":" + loads`, "1:1"},
		{`var m; try { require("./bad") } catch (e) { m = e.name + " " + e.message } m`, "TypeError broken module"},
		{`var m; try { require("./bad") } catch (e) { m = e.message } m`, "broken module"},
		{`var m; try { require("./syntax") } catch (e) { m = e.name } m`, "SyntaxError"},
		{`var m; try { require("./missing") } catch (e) { m = e.message } m.startsWith("Cannot find module './missing'")`, "true"},
		{`var m; try { require(42) } catch (e) { m = e.name } m`, "TypeError"},
		{`var m; try { require("") } catch (e) { m = e.message } m`, "The argument 'id' must be a non-empty string"},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			if got := mustRun(t, c, tc.src); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestCinder_MemoryModules(t *testing.T) {
	c := newTestCinder(t, "", nil)
	c.AddModule("lib/math.js", `exports.sq = (x) => x * x; exports.other = require("./other").v;`)
	c.AddModule("lib/other.js", `exports.v = 5;`)
	if got := mustRun(t, c, `var m = require("/lib/math"); m.sq(4) + m.other`); got != "21" {
		t.Errorf("got %s", got)
	}
	if got := mustRun(t, c, `require("/lib/other") === require("/lib/other.js")`); got != "true" {
		t.Errorf("module not cached: %s", got)
	}
}

type counter struct {
	N      int `json:"count"`
	hidden int
}

func (c *counter) Add(d int) int {
	c.N += d
	return c.N
}

func TestCinder_NativeModules(t *testing.T) {
	kit := DefineNativeModule("test:kit", func(m *ModuleBuilder) {
		m.Const("VERSION", "1.2")
		m.Var("mutable", 1)
		m.Function("sum", func(xs []float64) float64 {
			total := 0.0
			for _, x := range xs {
				total += x
			}
			return total
		})
		m.Function("fail", func() error { return os.ErrNotExist })
		m.Function("apply", func(f func(int) int, x int) int { return f(x) })
		m.Function("keys", func(o map[string]interface{}) int { return len(o) })
		m.Function("point", func() struct {
			X int `json:"x"`
			Y int
		} {
			return struct {
				X int `json:"x"`
				Y int
			}{1, 2}
		})
		m.Class("Counter", func(start int) *counter { return &counter{N: start} })
		m.Namespace("util", func(ns *ModuleBuilder) {
			ns.Function("upper", strings.ToUpper)
		})
	})
	c := newTestCinder(t, "", nil, kit)

	tests := []struct {
		src  string
		want string
	}{
		{`require("test:kit").VERSION`, "1.2"},
		{`var k = require("test:kit"); k.VERSION = "x"; k.mutable = 2; k.VERSION + k.mutable`, "1.22"},
		{`require("test:kit").sum([1, 2, 3.5])`, "6.5"},
		{`var m; try { require("test:kit").fail() } catch (e) { m = e.message } m`, "file does not exist"},
		{`require("test:kit").apply((x) => x * 3, 5)`, "15"},
		{`require("test:kit").keys({a: 1, b: 2})`, "2"},
		{`var p = require("test:kit").point(); p.x + ":" + p.Y`, "1:2"},
		{`var {Counter} = require("test:kit"); var n = new Counter(2); n.add(3); n.count`, "5"},
		{`var {Counter} = require("test:kit"); var n = new Counter(0); n.count = 9; n.add(1)`, "10"},
		{`var {Counter} = require("test:kit"); var m; try { Counter(1) } catch (e) { m = e.name } m`, "TypeError"},
		{`require("test:kit").util.upper("abc")`, "ABC"},
		{`require("native:test:kit") === require("test:kit")`, "true"},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			if got := mustRun(t, c, tc.src); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
	if names := c.Natives().List(); strings.Join(names, ",") != "cinder:heap,path,test:kit" {
		t.Errorf("registered modules %v", names)
	}
}

func TestCinder_StandardNativeModules(t *testing.T) {
	c := newTestCinder(t, "", nil)
	tests := []struct {
		src  string
		want string
	}{
		{`require("path").join("a", "b/../c")`, "a/c"},
		{`require("path").basename("/x/y.js", ".js")`, "y"},
		{`require("path").dirname("/x/y.js")`, "/x"},
		{`require("path").extname("y.tar.gz")`, ".gz"},
		{`require("path").normalize("a//b/")`, "a/b/"},
		{`require("path").resolve("/a", "b", "../c")`, "/a/c"},
		{`typeof require("cinder:heap").stats().live`, "number"},
		{`require("cinder:heap").collect().freed >= 0`, "true"},
		{`require("cinder:heap").summary().includes("objects allocated")`, "true"},
	}
	for _, tc := range tests {
		if got := mustRun(t, c, tc.src); got != tc.want {
			t.Errorf("%s = %s, want %s", tc.src, got, tc.want)
		}
	}
}

func TestCompileString_RunBytecode(t *testing.T) {
	m, errs := CompileString(`const xs = [1, 2, 3]; xs.map((x) => x * 2).join("-")`)
	if len(errs) > 0 {
		t.Fatal(errs[0])
	}
	data, err := bytecode.MarshalModule(m, bytecode.FormTight)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := bytecode.UnmarshalModule(data)
	if err != nil {
		t.Fatal(err)
	}
	for _, mod := range []*bytecode.Module{m, decoded} {
		c := newTestCinder(t, "", nil)
		v, errs := c.RunBytecode(mod)
		if len(errs) > 0 {
			t.Fatal(errs[0])
		}
		if v.Inspect() != "2-4-6" {
			t.Errorf("got %s", v.Inspect())
		}
	}

	if _, errs := CompileFile(filepath.Join(t.TempDir(), "missing.js"), false); len(errs) != 1 || errs[0].Kind() != "Compile" {
		t.Errorf("missing file: %v", errs)
	}
}

func TestCinder_RunOptionsDumps(t *testing.T) {
	c := newTestCinder(t, "", nil)
	var dump bytes.Buffer
	v, errs := c.RunCode(source.NewEvalSource("1 + 2"), RunOptions{ShowAST: true, ShowBytecode: true, Output: &dump})
	if len(errs) > 0 {
		t.Fatal(errs[0])
	}
	if v.Inspect() != "3" {
		t.Errorf("got %s", v.Inspect())
	}
	for _, want := range []string{"--- AST", "BinaryExpression +", "NumberLiteral 2", "--- Bytecode"} {
		if !strings.Contains(dump.String(), want) {
			t.Errorf("dump lacks %q:\n%s", want, dump.String())
		}
	}

	var shown bytes.Buffer
	if !c.DisplayResult(&shown, "1 + 2", v, nil) || shown.String() != "3\n" {
		t.Errorf("DisplayResult wrote %q", shown.String())
	}
}

func TestNewCinderWithBaseDir(t *testing.T) {
	dir := writeFiles(t, map[string]string{"dep.js": `exports.v = 7;`})
	c := NewCinderWithBaseDir(dir)
	if c.Stdout() == nil || c.VM() == nil || c.Config().Modules.Roots[0] != dir {
		t.Fatal("session not initialized")
	}
	if got := mustRun(t, c, `require("./dep").v * 6`); got != "42" {
		t.Errorf("got %s", got)
	}
	before := c.HeapStats().Collections
	c.Collect()
	if c.HeapStats().Collections != before+1 {
		t.Errorf("collections %d -> %d", before, c.HeapStats().Collections)
	}
}
