package vm_test

import (
	"bytes"
	"strings"
	"testing"

	"cinder/pkg/builtins"
	"cinder/pkg/bytecode"
	"cinder/pkg/compiler"
	"cinder/pkg/errors"
	"cinder/pkg/heap"
	"cinder/pkg/realm"
	"cinder/pkg/source"
	"cinder/pkg/vm"
)

func newVM(t *testing.T, out *bytes.Buffer, cfg vm.Config) (*realm.Realm, *vm.VM) {
	t.Helper()
	r := realm.New(realm.Options{})
	if err := builtins.Install(r, builtins.Options{Stdout: out, Stderr: out}); err != nil {
		t.Fatal(err)
	}
	return r, vm.New(r, cfg)
}

func interpret(t *testing.T, src string) (heap.Value, vm.InterpretResult, error, string) {
	t.Helper()
	var out bytes.Buffer
	r, machine := newVM(t, &out, vm.DefaultConfig())
	m, errs := compiler.CompileSource(source.NewSourceFile("test", "test.js", src), compiler.Options{Completion: true})
	if len(errs) > 0 {
		t.Fatalf("compile: %v", errs[0])
	}
	v, res, err := machine.Interpret(m)
	if err == nil {
		err = machine.RunMicrotasks()
	}
	if err != nil {
		err = vm.ToRuntimeError(r, err)
	}
	return v, res, err, out.String()
}

func TestVM_Completion(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"arithmetic", `1 + 2 * 3`, "7"},
		{"string concat", `"a" + 1 + 2`, "a12"},
		{"closure counter", `
			function counter() { let n = 0; return () => ++n; }
			const c = counter(); c(); c(); c()`, "3"},
		{"loop closures capture per iteration", `
			const fs = [];
			for (let i = 0; i < 3; i++) fs.push(() => i);
			fs.map(f => f()).join()`, "0,1,2"},
		{"class with super and getter", `
			class A { constructor(x) { this.x = x } get double() { return this.x * 2 } }
			class B extends A { constructor() { super(21) } }
			new B().double`, "42"},
		{"static and private members", `
			class K { static #count = 0; #v; constructor(v) { this.#v = v; K.#count++ } get v() { return this.#v } static get count() { return K.#count } }
			new K(1); new K(2).v + K.count`, "4"},
		{"destructuring defaults and rest", `
			const {a = 5, b: [, second], ...rest} = {b: [1, 2], c: 3, d: 4};
			a + second + Object.keys(rest).join("")`, "7cd"},
		{"spread call", `Math.max(...[1, 9, 3], 4)`, "9"},
		{"optional chaining", `const o = {a: null}; String(o.a?.b?.c) + (o.f?.() ?? "none")`, "undefinednone"},
		{"template literal", "const n = 3; `n=${n * 2}!`", "n=6!"},
		{"tagged template", "function tag(s, v) { return s.raw.join('|') + v } tag`a${1}b`", "a|b1"},
		{"labeled continue", `
			let s = "";
			outer: for (let i = 0; i < 3; i++) { for (let j = 0; j < 3; j++) { if (j === 1) continue outer; s += i + "" + j } }
			s`, "001020"},
		{"switch fallthrough", `
			function f(x) { let r = ""; switch (x) { case 1: r += "a"; case 2: r += "b"; break; default: r += "d" } return r }
			f(1) + f(2) + f(3)`, "abbd"},
		{"try finally overrides", `function f() { try { return 1 } finally { return 2 } } f()`, "2"},
		{"catch binding", `let n; try { null.x } catch ({name}) { n = name } n`, "TypeError"},
		{"generator", `
			function* g() { const x = yield 1; yield x * 2; return 5 }
			const it = g(); it.next(); it.next(4).value`, "8"},
		{"generator return runs finally", `
			let log = "";
			function* g() { try { yield 1; yield 2 } finally { log += "closed" } }
			for (const v of g()) { log += v; break }
			log`, "1closed"},
		{"yield star", `function* a() { yield 1; yield 2 } function* b() { yield* a(); yield 3 } [...b()].join()`, "1,2,3"},
		{"typeof undeclared", `typeof nope`, "undefined"},
		{"direct eval sees locals", `function f() { let secret = 41; return eval("secret + 1") } f()`, "42"},
		{"indirect eval is global", `var x = "global"; function f() { let x = "local"; return (0, eval)("x") } f()`, "global"},
		{"new Function", `new Function("a", "b", "return a * b")(6, 7)`, "42"},
		{"arguments object", `function f() { return arguments.length + arguments[1] } f(1, 10, 100)`, "13"},
		{"default params see earlier params", `function f(a, b = a + 1) { return b } f(1)`, "2"},
		{"instanceof and prototype chain", `class A {} class B extends A {} (new B() instanceof A) + ":" + (Object.getPrototypeOf(B.prototype) === A.prototype)`, "true:true"},
		{"getter on object literal", `const o = {_v: 2, get v() { return this._v * 10 }, set v(x) { this._v = x }}; o.v = 5; o.v`, "50"},
		{"symbol iterator protocol", `
			const it = {from: 1, to: 3, [Symbol.iterator]() { let c = this.from, t = this.to; return {next: () => c <= t ? {value: c++, done: false} : {value: undefined, done: true}} }};
			[...it].join()`, "1,2,3"},
		{"comma and void", `(1, 2, void 0) === undefined`, "true"},
		{"exponent and bigint", `(2n ** 64n).toString()`, "18446744073709551616"},
		{"nullish assignment", `let a = null; a ??= 3; a ||= 4; a &&= a + 1; a`, "4"},
		{"delete and in", `const o = {k: 1}; delete o.k; "k" in o`, "false"},
		{"strict this in function", `"use strict"; function f() { return this } f() === undefined`, "true"},
		{"sloppy this is global", `function f() { return this } f() === globalThis`, "true"},
		{"tdz", `let r; try { x; let x = 1 } catch (e) { r = e.name } r`, "ReferenceError"},
		{"const assignment", `const c = 1; let n; try { c = 2 } catch (e) { n = e.name } n`, "TypeError"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, res, err, _ := interpret(t, tc.src)
			if err != nil || res != vm.InterpretOK {
				t.Fatalf("result %v: %v", res, err)
			}
			if got := v.Inspect(); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestVM_Async(t *testing.T) {
	_, _, err, out := interpret(t, `
		const order = [];
		async function work(n) { order.push("start" + n); await null; order.push("end" + n); return n * 10 }
		(async () => {
			const vals = await Promise.all([work(1), work(2)]);
			try { await Promise.reject(new Error("boom")) } catch (e) { order.push(e.message) }
			console.log(order.join(), vals.join());
		})();
		order.push("sync");
	`)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(out); got != "start1,start2,sync,end1,end2,boom 10,20" {
		t.Errorf("got %q", got)
	}
}

func TestVM_AsyncGenerator(t *testing.T) {
	_, _, err, out := interpret(t, `
		async function* ticks() { for (let i = 0; i < 3; i++) { await null; yield i } }
		(async () => {
			const it = ticks();
			let s = "";
			for (let r = await it.next(); !r.done; r = await it.next()) s += r.value;
			console.log(s);
		})();
	`)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(out); got != "012" {
		t.Errorf("got %q", got)
	}
}

func TestVM_UncaughtException(t *testing.T) {
	_, res, err, _ := interpret(t, "function f() {\n  throw new TypeError(\"bad thing\")\n}\nf()")
	if res != vm.InterpretRuntimeError {
		t.Fatalf("result = %v", res)
	}
	re, ok := err.(*errors.RuntimeError)
	if !ok {
		t.Fatalf("error %T: %v", err, err)
	}
	if re.Msg != "Uncaught TypeError: bad thing" {
		t.Errorf("message = %q", re.Msg)
	}
	if re.Line != 2 {
		t.Errorf("line = %d", re.Line)
	}
	if !strings.Contains(re.Stack, "f (") {
		t.Errorf("stack lacks frame for f: %q", re.Stack)
	}
}

func TestVM_ThrowPrimitive(t *testing.T) {
	_, res, err, _ := interpret(t, `throw 42`)
	if res != vm.InterpretRuntimeError || err == nil {
		t.Fatalf("result = %v, %v", res, err)
	}
	if !strings.Contains(err.Error(), "42") {
		t.Errorf("error = %v", err)
	}
}

func TestVM_CallDepthLimit(t *testing.T) {
	var out bytes.Buffer
	r, machine := newVM(t, &out, vm.Config{MaxCallDepth: 100})
	m, errs := compiler.CompileSource(source.NewEvalSource(`
		function down(n) { return down(n + 1) }
		let name;
		try { down(0) } catch (e) { name = e.name }
		name
	`), compiler.Options{Completion: true})
	if len(errs) > 0 {
		t.Fatal(errs[0])
	}
	v, err := machine.RunModule(m, nil, heap.Undefined)
	if err != nil {
		t.Fatal(vm.ToRuntimeError(r, err))
	}
	if v.Inspect() != "RangeError" {
		t.Errorf("got %s", v.Inspect())
	}
	if machine.Depth() != 0 {
		t.Errorf("frames left on the stack: %d", machine.Depth())
	}
}

func TestVM_CollectsCycles(t *testing.T) {
	v, _, err, _ := interpret(t, `
		function makeCycle() { const a = {}; const b = {a}; a.b = b }
		for (let i = 0; i < 10; i++) makeCycle();
		gc()
	`)
	if err != nil {
		t.Fatal(err)
	}
	if n := v.AsNumber(); n < 20 {
		t.Errorf("freed %v objects, want at least 20", n)
	}
}

func TestVM_CollectDuringNativeCallback(t *testing.T) {
	v, _, err, _ := interpret(t, `
		const a = [1, 2].map(function (v) { gc(); return {v: v} });
		const e = Object.entries({x: 1, y: 2}).map(function (p) { gc(); return p[0] + p[1] }).join();
		const j = JSON.parse('{"k": [1, 2]}', function (k, v) { gc(); return v });
		[typeof a.map, Object.getPrototypeOf(a) === Array.prototype, a[1].v, e, j.k.length].join()
	`)
	if err != nil {
		t.Fatal(err)
	}
	if got := v.Inspect(); got != "function,true,2,x1,y2,2" {
		t.Errorf("got %s", got)
	}
}

func TestVM_AutoCollectInsideCallbacks(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"forEach", `
			const xs = [];
			for (let i = 0; i < 20000; i++) xs.push(i);
			xs.forEach(function () { cycle() });`},
		{"generator for-of", `
			function* upto(n) { for (let i = 0; i < n; i++) yield i }
			for (const i of upto(20000)) cycle();`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			r, machine := newVM(t, &out, vm.DefaultConfig())
			m, errs := compiler.CompileSource(source.NewEvalSource(
				"function cycle() { const a = {}; a.self = a }\n"+tc.src), compiler.Options{})
			if len(errs) > 0 {
				t.Fatal(errs[0])
			}
			if _, err := machine.RunModule(m, nil, heap.Undefined); err != nil {
				t.Fatal(vm.ToRuntimeError(r, err))
			}
			s := r.Heap.Stats()
			if s.Collections == 0 || s.Live >= 20000 {
				t.Errorf("collections=%d live=%d", s.Collections, s.Live)
			}
		})
	}
}

func TestVM_HostCallsGuest(t *testing.T) {
	var out bytes.Buffer
	r, machine := newVM(t, &out, vm.DefaultConfig())
	m, errs := compiler.CompileSource(source.NewEvalSource(`(function add(a, b) { return a + b })`), compiler.Options{Completion: true})
	if len(errs) > 0 {
		t.Fatal(errs[0])
	}
	fn, err := machine.RunModule(m, nil, heap.Undefined)
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Call(fn, heap.Undefined, heap.IntValue(2), heap.IntValue(40))
	if err != nil {
		t.Fatal(err)
	}
	if got.AsNumber() != 42 {
		t.Errorf("add(2, 40) = %s", got.Inspect())
	}
}

func TestVM_SyntaxErrorFromEval(t *testing.T) {
	v, _, err, _ := interpret(t, `let n; try { eval("let = ;") } catch (e) { n = e.name } n`)
	if err != nil {
		t.Fatal(err)
	}
	if v.Inspect() != "SyntaxError" {
		t.Errorf("got %s", v.Inspect())
	}
}

func TestVM_UnverifiedModuleFailsFatally(t *testing.T) {
	var out bytes.Buffer
	_, machine := newVM(t, &out, vm.DefaultConfig())
	b := bytecode.NewBuilder("bad")
	b.SetPosition(3, 7)
	b.Emit(bytecode.OpLdaConstReg, 200, b.Const(bytecode.Number(1)))
	_, err := machine.RunModule(b.Module(), nil, heap.Undefined)
	fe, ok := err.(*errors.FatalError)
	if !ok {
		t.Fatalf("error %T: %v", err, err)
	}
	if fe.Line != 3 || machine.Depth() != 0 {
		t.Errorf("line %d, depth %d", fe.Line, machine.Depth())
	}
	v, _, err2 := machine.Interpret(mustCompile(t, "1 + 1"))
	if err2 != nil || v.Inspect() != "2" {
		t.Errorf("machine unusable after a fatal error: %v %v", v.Inspect(), err2)
	}
}

func mustCompile(t *testing.T, src string) *bytecode.Module {
	t.Helper()
	m, errs := compiler.CompileSource(source.NewEvalSource(src), compiler.Options{Completion: true})
	if len(errs) > 0 {
		t.Fatal(errs[0])
	}
	return m
}
