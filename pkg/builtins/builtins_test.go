package builtins_test

import (
	"strings"
	"testing"
)

func TestJSON(t *testing.T) {
	runCases(t, []evalCase{
		{`JSON.stringify({a: 1, b: [true, null, "x"]})`, `{"a":1,"b":[true,null,"x"]}`},
		{`JSON.stringify({a: [1]}, null, 2)`, "{\n  \"a\": [\n    1\n  ]\n}"},
		{`JSON.stringify({a: 1, b: 2, c: 3}, ["c", "a"])`, `{"c":3,"a":1}`},
		{`JSON.stringify({a: 1, b: "s"}, (k, v) => typeof v === "number" ? v * 10 : v)`, `{"a":10,"b":"s"}`},
		{`JSON.stringify({toJSON() { return "custom" }})`, `"custom"`},
		{`JSON.stringify({f() {}, u: undefined, n: NaN})`, `{"n":null}`},
		{`JSON.stringify("< >\n")`, `"< >\n"`},
		{`String(JSON.stringify(undefined))`, `undefined`},
		{`JSON.parse('{"a": [1, 2.5, "x"], "b": {"c": null}}').a[1]`, `2.5`},
		{`JSON.parse("1e400")`, `Infinity`},
		{`JSON.parse('{"a": 1, "b": 2}', (k, v) => k === "a" ? undefined : v).a === undefined`, `true`},
		{`Object.keys(JSON.parse('{"z": 1, "a": 2}')).join()`, `z,a`},
		{`JSON.stringify({v: JSON.rawJSON("1e1000")})`, `{"v":1e1000}`},
		{`JSON.isRawJSON(JSON.rawJSON("true"))`, `true`},
	})
}

func TestJSON_Errors(t *testing.T) {
	for _, src := range []string{
		`JSON.parse("{")`,
		`JSON.parse("[1] 2")`,
		`JSON.parse("")`,
	} {
		if got := throws(t, src); got != "SyntaxError" {
			t.Errorf("%s threw %s", src, got)
		}
	}
	for _, src := range []string{
		`const o = {}; o.self = o; JSON.stringify(o)`,
		`JSON.stringify({n: 1n})`,
	} {
		if got := throws(t, src); got != "TypeError" {
			t.Errorf("%s threw %s", src, got)
		}
	}
}

func TestMap(t *testing.T) {
	runCases(t, []evalCase{
		{`const m = new Map([[1, "a"], [2, "b"]]); m.set(3, "c"); [...m.keys()].join()`, `1,2,3`},
		{`const m = new Map(); m.set(NaN, 1); m.get(NaN)`, `1`},
		{`const m = new Map(); m.set(-0, "z"); m.get(0)`, `z`},
		{`const m = new Map([["a", 1], ["b", 2]]); m.delete("a"); m.set("a", 3); [...m].join(";")`, `b,2;a,3`},
		{`const m = new Map([[1, 1]]); m.size`, `1`},
		{`const m = new Map([[1, 1], [2, 2]]); m.clear(); m.size + ":" + m.has(1)`, `0:false`},
		{`let out = []; new Map([["x", 1]]).forEach((v, k) => out.push(k + v)); out.join()`, `x1`},
		{`const g = Map.groupBy([1, 2, 3, 4], n => n % 2 ? "odd" : "even"); g.get("odd").join()`, `1,3`},
		{`Object.prototype.toString.call(new Map())`, `[object Map]`},
	})
}

func TestMap_IterationSeesLiveChanges(t *testing.T) {
	got := run(t, `
		const m = new Map([[1, 1], [2, 2]]);
		const seen = [];
		for (const [k] of m) {
			seen.push(k);
			if (k === 1) { m.delete(2); m.set(3, 3); }
		}
		seen.join()
	`)
	if got != "1,3" {
		t.Errorf("got %q", got)
	}
}

func TestSet(t *testing.T) {
	runCases(t, []evalCase{
		{`[...new Set([1, 2, 2, 3, 1])].join()`, `1,2,3`},
		{`new Set("hello").size`, `4`},
		{`const s = new Set([1]); s.add(1).add(2); s.has(2)`, `true`},
		{`[...new Set([1, 2, 3]).union(new Set([3, 4]))].join()`, `1,2,3,4`},
		{`[...new Set([1, 2, 3]).intersection(new Set([2, 3, 4]))].join()`, `2,3`},
		{`[...new Set([1, 2, 3]).difference(new Set([2]))].join()`, `1,3`},
		{`[...new Set([1, 2]).symmetricDifference(new Set([2, 3]))].join()`, `1,3`},
		{`new Set([1]).isSubsetOf(new Set([1, 2]))`, `true`},
		{`new Set([1, 2]).isSupersetOf(new Set([3]))`, `false`},
		{`new Set([1]).isDisjointFrom(new Set([2]))`, `true`},
		{`[...new Set([1, 2]).union(new Map([[9, 0]]))].join()`, `1,2,9`},
		{`[...new Set(["a"]).entries()][0].join()`, `a,a`},
	})
}

func TestWeakRef(t *testing.T) {
	runCases(t, []evalCase{
		{`const o = {v: 7}; new WeakRef(o).deref().v`, `7`},
		{`typeof gc()`, `number`},
	})
	if got := throws(t, `new WeakRef(1)`); got != "TypeError" {
		t.Errorf("WeakRef(1) threw %s", got)
	}
}

func TestWeakCollections(t *testing.T) {
	runCases(t, []evalCase{
		{`const k = {}; const w = new WeakMap([[k, 1]]); w.get(k)`, `1`},
		{`const k = {}; const w = new WeakMap(); w.set(k, 2).set(k, 3); w.get(k)`, `3`},
		{`const k = {}; const w = new WeakMap(); w.set(k, 1); [w.delete(k), w.has(k), w.delete(k)].join()`, `true,false,false`},
		{`new WeakMap().get({})`, `undefined`},
		{`const s = Symbol("s"); new WeakMap().set(s, 1).get(s)`, `1`},
		{`const a = {}, b = {}; const ws = new WeakSet([a]); [ws.has(a), ws.has(b), ws.add(b) === ws, ws.has(b)].join()`, `true,false,true,true`},
		{`Object.prototype.toString.call(new WeakSet())`, `[object WeakSet]`},
		{`const w = new WeakMap(); for (let i = 0; i < 50; i++) w.set({i}, i); gc(); w.has({})`, `false`},
	})
	for _, src := range []string{
		`new WeakMap().set(1, 1)`,
		`new WeakMap().set(Symbol.for("r"), 1)`,
		`new WeakSet().add("s")`,
		`WeakMap.prototype.get.call(new Map(), {})`,
		`new WeakMap([1])`,
	} {
		if got := throws(t, src); got != "TypeError" {
			t.Errorf("%s threw %s", src, got)
		}
	}
}

func TestMath(t *testing.T) {
	runCases(t, []evalCase{
		{`Math.round(2.5)`, `3`},
		{`Math.round(-2.5)`, `-2`},
		{`Object.is(Math.round(-0.4), -0)`, `true`},
		{`Math.max()`, `-Infinity`},
		{`Object.is(Math.max(-0, 0), 0)`, `true`},
		{`Object.is(Math.min(0, -0), -0)`, `true`},
		{`Math.max(1, NaN, 3)`, `NaN`},
		{`Math.pow(1, Infinity)`, `NaN`},
		{`Math.hypot(3, 4)`, `5`},
		{`Math.sign(-3)`, `-1`},
		{`Math.clz32(1)`, `31`},
		{`Math.imul(0xffffffff, 5)`, `-5`},
		{`Math.fround(5.5)`, `5.5`},
		{`Math.trunc(-4.7)`, `-4`},
		{`Math.cbrt(27)`, `3`},
		{`Math.sumPrecise([1e20, 0.1, -1e20])`, `0.1`},
		{`Math.sumPrecise([1, 1e100, 1, -1e100])`, `2`},
		{`Math.sumPrecise([1e308, 1e308, -1e308])`, `1e+308`},
		{`Math.sumPrecise([0.1, 0.2, 0.3])`, `0.6`},
		{`Math.sumPrecise([5e-324, 5e-324, -5e-324])`, `5e-324`},
		{`Object.is(Math.sumPrecise([]), -0)`, `true`},
		{`Object.is(Math.sumPrecise([-0, -0]), -0)`, `true`},
		{`Object.is(Math.sumPrecise([1, -1]), 0)`, `true`},
		{`Math.sumPrecise([Infinity, -Infinity])`, `NaN`},
		{`Math.sumPrecise([1e308, 1e308])`, `Infinity`},
		{`const x = Math.random(); x >= 0 && x < 1`, `true`},
		{`Math.PI.toFixed(4)`, `3.1416`},
	})
}

func TestReflect(t *testing.T) {
	runCases(t, []evalCase{
		{`Reflect.ownKeys({b: 1, a: 2, 1: 0}).join()`, `1,b,a`},
		{`Reflect.has({x: 1}, "x")`, `true`},
		{`Reflect.apply(Math.max, null, [1, 5, 2])`, `5`},
		{`class P { constructor(x) { this.x = x } }; Reflect.construct(P, [4]).x`, `4`},
		{`const o = {}; Reflect.defineProperty(o, "k", {value: 1}) && Object.getOwnPropertyDescriptor(o, "k").writable`, `false`},
		{`const o = Object.freeze({a: 1}); Reflect.set(o, "a", 2)`, `false`},
		{`const o = {}; Reflect.preventExtensions(o); Reflect.isExtensible(o)`, `false`},
		{`Reflect.getPrototypeOf([]) === Array.prototype`, `true`},
		{`const o = {get v() { return this.w }}; Reflect.get(o, "v", {w: 9})`, `9`},
	})
	if got := throws(t, `Reflect.ownKeys(1)`); got != "TypeError" {
		t.Errorf("Reflect.ownKeys(1) threw %s", got)
	}
}

func TestStringMethods(t *testing.T) {
	runCases(t, []evalCase{
		{`"abc".padStart(6, "12")`, `121abc`},
		{`"a-b-c".replaceAll("-", "+")`, `a+b+c`},
		{`"a1b22c".replace(/\d+/g, n => "[" + n + "]")`, `a[1]b[22]c`},
		{`"x".repeat(3)`, `xxx`},
		{`"Hello".at(-1)`, `o`},
		{`"a,b,,c".split(",").length`, `4`},
		{`"  pad ".trim() + "|"`, `pad|`},
		{`"straße".toUpperCase()`, `STRASSE`},
		{`"Å".normalize("NFC").length`, `1`},
		{`"2024-05-06".match(/(\d+)-(\d+)/)[2]`, `05`},
		{`[..."a1b2".matchAll(/\d/g)].map(m => m[0] + m.index).join()`, `11,23`},
		{`"abc".localeCompare("abd")`, `-1`},
		{`String.raw` + "`a\\n${1}`", `a\n1`},
		{`"😀".codePointAt(0)`, `128512`},
	})
}

func TestStringSurrogates(t *testing.T) {
	runCases(t, []evalCase{
		{`"\uD83D".charCodeAt(0)`, `55357`},
		{`"\uD83D".length`, `1`},
		{`"😀".split("").join("") === "😀"`, `true`},
		{`"😀"[0] + "😀"[1] === "😀"`, `true`},
		{`"😀".charCodeAt(1).toString(16)`, `de00`},
		{`String.fromCharCode(0xD83D, 0xDE00) === "😀"`, `true`},
		{`"\uD83D" + "\uDE00" === "\uD83D\uDE00"`, `true`},
		{`"a\uD83D".slice(1) === "\uD83D"`, `true`},
		{`"\uDE00\uD83D".length + ":" + "x\uD83D".isWellFormed() + ":" + "😀".isWellFormed()`, `2:false:true`},
		{`"\uD83D".toWellFormed().charCodeAt(0)`, `65533`},
		{`String.fromCodePoint(0xDC00).charCodeAt(0)`, `56320`},
		{`JSON.stringify("\uD83D")`, `"\ud83d"`},
		{`[..."a😀"].length`, `2`},
		{`Object.keys({..."😀"}).length`, `2`},
		{`"x\uD83Dy".match(/x(.)y/)[1] === "\uD83D"`, `true`},
		{"`\\uD83D${\"\\uDE00\"}` === \"😀\"", `true`},
	})
}

func TestArrayMethods(t *testing.T) {
	runCases(t, []evalCase{
		{`[3, 1, 10, 2].sort().join()`, `1,10,2,3`},
		{`[3, 1, 10, 2].toSorted((a, b) => a - b).join()`, `1,2,3,10`},
		{`[1, [2, [3, [4]]]].flat(Infinity).join()`, `1,2,3,4`},
		{`[1, 2, 3].reduce((a, b) => a + b)`, `6`},
		{`[1, 2, 3, 4].findLast(n => n % 2)`, `3`},
		{`[NaN].includes(NaN) + ":" + [NaN].indexOf(NaN)`, `true:-1`},
		{`const a = [1, 2, 3]; a.splice(1, 1, "x", "y"); a.join()`, `1,x,y,3`},
		{`[1, 2, 3].with(-1, 9).join()`, `1,2,9`},
		{`Array.from({length: 3}, (_, i) => i * i).join()`, `0,1,4`},
		{`Array.from(new Set([1, 1, 2])).length`, `2`},
		{`[1, 2, 3].at(-1)`, `3`},
		{`[0, 0, 0].fill(7, 1).join()`, `0,7,7`},
		{`[..."ab"].entries().next().value.join()`, `0,a`},
		{`Object.groupBy([1, 2, 3], n => n > 1 ? "big" : "small").big.join()`, `2,3`},
	})
}

func TestNumberFormatting(t *testing.T) {
	runCases(t, []evalCase{
		{`(1.005).toFixed(2)`, `1.00`},
		{`(123.456).toExponential(2)`, `1.23e+2`},
		{`(0.000123).toPrecision(2)`, `0.00012`},
		{`(255).toString(16)`, `ff`},
		{`(0.5).toString(2)`, `0.1`},
		{`Number.parseFloat("3.5abc")`, `3.5`},
		{`parseInt("0x1f")`, `31`},
		{`Number.isSafeInteger(2 ** 53)`, `false`},
		{`(1234567.891).toLocaleString()`, `1,234,567.891`},
		{`BigInt.asUintN(8, 257n)`, `1n`},
	})
}

func TestRegExp(t *testing.T) {
	runCases(t, []evalCase{
		{`/a(?<rest>b+)/.exec("xabbb").groups.rest`, `bbb`},
		{`const re = /o/g; re.test("foo"); re.lastIndex`, `2`},
		{`/A/i.test("a")`, `true`},
		{`String(/x+/gi)`, `/x+/gi`},
		{`new RegExp("a.c", "s").test("a\nc")`, `true`},
		{`"aBc".search(/[A-Z]/)`, `1`},
	})
	if got := throws(t, `new RegExp("(")`); got != "SyntaxError" {
		t.Errorf("bad pattern threw %s", got)
	}
}

func TestGlobals(t *testing.T) {
	runCases(t, []evalCase{
		{`encodeURIComponent("a b&c/é")`, `a%20b%26c%2F%C3%A9`},
		{`encodeURI("http://x.test/a b?q=1#f")`, `http://x.test/a%20b?q=1#f`},
		{`decodeURIComponent("%E2%82%AC%20")`, `€ `},
		{`decodeURI("%2F%20")`, `%2F `},
		{`isNaN("abc") + ":" + isFinite("12")`, `true:true`},
		{`eval("1 + 2")`, `3`},
		{`var g = 1; (0, eval)("g + 1")`, `2`},
		{`typeof globalThis.Infinity + ":" + (undefined === void 0)`, `number:true`},
		{`const c = structuredClone({a: [1, {b: 2}], m: new Map([[1, 2]])}); c.a[1].b + c.m.get(1)`, `4`},
		{`const o = {}; o.o = o; const c = structuredClone(o); c.o === c && c !== o`, `true`},
		{`/^[0-9a-f-]{36}$/.test(crypto.randomUUID())`, `true`},
		{`typeof clock()`, `number`},
		{`let seen = []; queueMicrotask(() => seen.push("late")); seen.push("now"); seen.length`, `1`},
	})
	if got := throws(t, `decodeURIComponent("%E2%82")`); got != "URIError" {
		t.Errorf("truncated escape threw %s", got)
	}
	if got := throws(t, `structuredClone(() => 1)`); got != "TypeError" {
		t.Errorf("cloning a function threw %s", got)
	}
}

func TestGlobalRequire_ValidatesId(t *testing.T) {
	runCases(t, []evalCase{
		{`var m; try { require(42) } catch (e) { m = e.name + ": " + e.message } m`, `TypeError: The "id" argument must be of type string`},
		{`var m; try { require() } catch (e) { m = e.message } m`, `The "id" argument must be of type string`},
		{`var m; try { require("") } catch (e) { m = e.message } m`, `The argument 'id' must be a non-empty string`},
		{`var m; try { require({toString() { return "./x" }}) } catch (e) { m = e.name } m`, `TypeError`},
	})
}

func TestQueueMicrotask_RunsAfterScript(t *testing.T) {
	s := newSession(t)
	if _, err := s.eval(`queueMicrotask(() => console.log("second")); console.log("first")`); err != nil {
		t.Fatal(err)
	}
	if got := s.stdout.String(); got != "first\nsecond\n" {
		t.Errorf("stdout = %q", got)
	}
}

func TestConsole(t *testing.T) {
	s := newSession(t)
	_, err := s.eval(`
		console.log("hello", 1, "x");
		console.log("%s is %d years", "Bob", 42.7);
		console.log("%i|%j|%%", 3.9, {a: 1});
		console.group("g");
		console.info("inside");
		console.groupEnd();
		console.count();
		console.count();
		console.count("x");
		console.warn("careful");
		console.error("bad");
		console.assert(true, "never");
		console.assert(false, "shown");
	`)
	if err != nil {
		t.Fatal(err)
	}
	wantOut := []string{
		"hello 1 x",
		"Bob is 42.7 years",
		`3|{"a":1}|%`,
		"g",
		"  inside",
		"default: 1",
		"default: 2",
		"x: 1",
	}
	gotOut := strings.Split(strings.TrimSuffix(s.stdout.String(), "\n"), "\n")
	if len(gotOut) != len(wantOut) {
		t.Fatalf("stdout lines = %q", gotOut)
	}
	for i := range wantOut {
		if gotOut[i] != wantOut[i] {
			t.Errorf("stdout line %d = %q, want %q", i, gotOut[i], wantOut[i])
		}
	}
	if got := s.stderr.String(); got != "careful\nbad\nAssertion failed: shown\n" {
		t.Errorf("stderr = %q", got)
	}
}

func TestConsole_Table(t *testing.T) {
	s := newSession(t)
	if _, err := s.eval(`console.table([{a: 1, b: 2}, {a: 3}])`); err != nil {
		t.Fatal(err)
	}
	out := s.stdout.String()
	for _, want := range []string{"(index)", "a", "b", "0", "1", "3"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output %q lacks %q", out, want)
		}
	}
}

func TestIntl(t *testing.T) {
	runCases(t, []evalCase{
		{`Intl.getCanonicalLocales("EN-us").join()`, `en-US`},
		{`["b", "a", "C"].sort(new Intl.Collator("en").compare).join()`, `a,b,C`},
		{`["a10", "a2"].sort(new Intl.Collator("en", {numeric: true}).compare).join()`, `a2,a10`},
		{`new Intl.Collator("en", {sensitivity: "base"}).compare("a", "A")`, `0`},
		{`new Intl.NumberFormat("en-US").format(1234567.5)`, `1,234,567.5`},
		{`new Intl.NumberFormat("en-US", {maximumFractionDigits: 0}).format(2.6)`, `3`},
		{`new Intl.NumberFormat("en", {style: "percent"}).format(0.25)`, `25%`},
	})
	if got := throws(t, `Intl.getCanonicalLocales("not a tag!")`); got != "RangeError" {
		t.Errorf("invalid tag threw %s", got)
	}
}

func TestTemporalInstant(t *testing.T) {
	runCases(t, []evalCase{
		{`Temporal.Instant.fromEpochMilliseconds(0).toString()`, `1970-01-01T00:00:00Z`},
		{`Temporal.Instant.from("2020-01-01T00:00:00.5Z").epochMilliseconds`, `1577836800500`},
		{`Temporal.Instant.fromEpochNanoseconds(1500n).epochNanoseconds`, `1500n`},
		{`Temporal.Instant.fromEpochMilliseconds(-1).epochMilliseconds`, `-1`},
		{`Temporal.Instant.fromEpochMilliseconds(0).add({hours: 1, seconds: 1}).toString()`, `1970-01-01T01:00:01Z`},
		{`const a = Temporal.Instant.fromEpochMilliseconds(5); Temporal.Instant.compare(a, a.subtract({milliseconds: 1}))`, `1`},
		{`typeof Temporal.Now.instant().epochNanoseconds`, `bigint`},
	})
	if got := throws(t, `+Temporal.Now.instant()`); got != "TypeError" {
		t.Errorf("valueOf threw %s", got)
	}
	if got := throws(t, `Temporal.Instant.fromEpochMilliseconds(8.64e15 + 1)`); got != "RangeError" {
		t.Errorf("out of range threw %s", got)
	}
}

func TestPromiseOrdering(t *testing.T) {
	s := newSession(t)
	_, err := s.eval(`
		const log = [];
		Promise.resolve(1).then(v => log.push("then" + v));
		(async () => { log.push("async"); await null; log.push("resumed"); })();
		log.push("sync");
		Promise.all([1, Promise.resolve(2)]).then(v => console.log(log.join() + "|" + v.join()));
	`)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(s.stdout.String()); got != "async,sync,then1,resumed|1,2" {
		t.Errorf("got %q", got)
	}
}
