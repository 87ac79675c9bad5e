package builtins

import (
	"math"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

type StringInitializer struct{}

func (s *StringInitializer) Name() string { return "String" }

func (s *StringInitializer) Priority() int { return PriorityString }

// thisString is RequireObjectCoercible(this) followed by ToString.
func thisString(r *realm.Realm, this heap.Value, method string) (string, error) {
	if this.IsNullish() {
		return "", r.NewTypeError("String.prototype.%s called on null or undefined", method)
	}
	return toStr(r, this)
}

// stringMethod adapts a method body that works on the receiver string.
func stringMethod(name string, fn func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error)) realm.NativeFunc {
	return func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := thisString(r, this, name)
		if err != nil {
			return heap.Undefined, err
		}
		return fn(r, s, args)
	}
}

func thisStringValue(r *realm.Realm, this heap.Value) (heap.Value, error) {
	if this.IsString() {
		return this, nil
	}
	if o := this.AsObject(); o != nil {
		if v, ok := o.PrimitiveValue(); ok && v.IsString() {
			return v, nil
		}
	}
	return heap.Undefined, r.NewTypeError("String.prototype.valueOf requires that 'this' be a String")
}

// localeTag parses a BCP 47 locale argument, defaulting to und.
func localeTag(r *realm.Realm, v heap.Value) (language.Tag, error) {
	if v.IsUndefined() {
		return language.Und, nil
	}
	if o := v.AsObject(); o != nil && o.IsArray() {
		if o.Len() == 0 {
			return language.Und, nil
		}
		v = o.ElementAt(0)
	}
	s, err := toStr(r, v)
	if err != nil {
		return language.Und, err
	}
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und, r.NewRangeError("Incorrect locale information provided")
	}
	return tag, nil
}

func (s *StringInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	proto := r.Heap.NewObjectOf("String", r.Intrinsic(realm.ObjectPrototype), &heap.PrimitiveBox{Value: heap.EmptyString})
	if err := ctx.Intrinsic(realm.StringPrototype, proto); err != nil {
		return err
	}

	ctor := r.NewNativeConstructor("String", 1,
		func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
			if len(args) == 0 {
				return heap.EmptyString, nil
			}
			if sym := args[0].AsSymbol(); sym != nil {
				return str(sym.String()), nil
			}
			s, err := toStr(r, args[0])
			return str(s), err
		},
		func(args []heap.Value, newTarget *heap.Object, r *realm.Realm) (heap.Value, error) {
			s := ""
			if len(args) > 0 {
				var err error
				if s, err = toStr(r, args[0]); err != nil {
					return heap.Undefined, err
				}
			}
			p, err := protoFromCtor(r, newTarget, realm.StringPrototype)
			if err != nil {
				return heap.Undefined, err
			}
			return heap.ObjectValue(r.Heap.NewObjectOf("String", p, &heap.PrimitiveBox{Value: str(s)})), nil
		}, proto)

	r.Method(ctor, "fromCharCode", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		units := make([]uint16, len(args))
		for i, a := range args {
			f, err := toNum(r, a)
			if err != nil {
				return heap.Undefined, err
			}
			units[i] = uint16(heap.ToUint32(f))
		}
		return str(heap.FromUTF16(units)), nil
	})
	r.Method(ctor, "fromCodePoint", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		var b []byte
		for _, a := range args {
			f, err := toNum(r, a)
			if err != nil {
				return heap.Undefined, err
			}
			if f != math.Trunc(f) || f < 0 || f > 0x10FFFF {
				return heap.Undefined, r.NewRangeError("Invalid code point %s", heap.NumberToString(f))
			}
			b = heap.AppendRune(b, rune(f))
		}
		return str(string(b)), nil
	})
	r.Method(ctor, "raw", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		cooked, err := r.ToObject(arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		rawV, err := r.Get(heap.ObjectValue(cooked), "raw")
		if err != nil {
			return heap.Undefined, err
		}
		raw, err := createListFromArrayLike(r, rawV)
		if err != nil {
			return heap.Undefined, err
		}
		var b strings.Builder
		for i, seg := range raw {
			s, err := toStr(r, seg)
			if err != nil {
				return heap.Undefined, err
			}
			b.WriteString(s)
			if i+1 < len(raw) && i+1 < len(args) {
				sub, err := toStr(r, args[i+1])
				if err != nil {
					return heap.Undefined, err
				}
				b.WriteString(sub)
			}
		}
		return str(b.String()), nil
	})

	m := func(name string, arity int, fn func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error)) {
		r.Method(proto, name, arity, stringMethod(name, fn))
	}
	r.Method(proto, "toString", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		return thisStringValue(r, this)
	})
	r.Method(proto, "valueOf", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		return thisStringValue(r, this)
	})
	m("at", 1, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		n := heap.UTF16Len(s)
		i, err := toInteger(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		if i < 0 {
			i += float64(n)
		}
		if i < 0 || i >= float64(n) {
			return heap.Undefined, nil
		}
		ch, _ := heap.CharAt(s, int(i))
		return str(ch), nil
	})
	m("charAt", 1, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		i, err := toInteger(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		if i < 0 || i >= float64(heap.UTF16Len(s)) {
			return heap.EmptyString, nil
		}
		ch, _ := heap.CharAt(s, int(i))
		return str(ch), nil
	})
	m("charCodeAt", 1, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		i, err := toInteger(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		if i < 0 || i >= float64(heap.UTF16Len(s)) {
			return heap.NaN, nil
		}
		u, _ := heap.CodeUnitAt(s, int(i))
		return heap.IntValue(int(u)), nil
	})
	m("codePointAt", 1, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		i, err := toInteger(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		if i < 0 || i >= float64(heap.UTF16Len(s)) {
			return heap.Undefined, nil
		}
		hi, _ := heap.CodeUnitAt(s, int(i))
		if utf16.IsSurrogate(rune(hi)) {
			if lo, ok := heap.CodeUnitAt(s, int(i)+1); ok {
				if cp := utf16.DecodeRune(rune(hi), rune(lo)); cp != utf8.RuneError {
					return heap.IntValue(int(cp)), nil
				}
			}
		}
		return heap.IntValue(int(hi)), nil
	})
	m("concat", 1, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		var b strings.Builder
		b.WriteString(s)
		for _, a := range args {
			x, err := toStr(r, a)
			if err != nil {
				return heap.Undefined, err
			}
			b.WriteString(x)
		}
		return str(b.String()), nil
	})
	m("endsWith", 1, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		search, err := searchString(r, arg(args, 0), "endsWith")
		if err != nil {
			return heap.Undefined, err
		}
		n := heap.UTF16Len(s)
		end, err := clampPosition(r, arg(args, 1), n, n)
		if err != nil {
			return heap.Undefined, err
		}
		return heap.BooleanValue(strings.HasSuffix(heap.Substring(s, 0, end), search)), nil
	})
	m("startsWith", 1, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		search, err := searchString(r, arg(args, 0), "startsWith")
		if err != nil {
			return heap.Undefined, err
		}
		n := heap.UTF16Len(s)
		start, err := clampPosition(r, arg(args, 1), n, 0)
		if err != nil {
			return heap.Undefined, err
		}
		return heap.BooleanValue(strings.HasPrefix(heap.Substring(s, start, n), search)), nil
	})
	m("includes", 1, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		search, err := searchString(r, arg(args, 0), "includes")
		if err != nil {
			return heap.Undefined, err
		}
		start, err := clampPosition(r, arg(args, 1), heap.UTF16Len(s), 0)
		if err != nil {
			return heap.Undefined, err
		}
		return heap.BooleanValue(heap.IndexOf(s, search, start) >= 0), nil
	})
	m("indexOf", 1, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		search, err := toStr(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		start, err := clampPosition(r, arg(args, 1), heap.UTF16Len(s), 0)
		if err != nil {
			return heap.Undefined, err
		}
		return heap.IntValue(heap.IndexOf(s, search, start)), nil
	})
	m("lastIndexOf", 1, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		search, err := toStr(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		n := heap.UTF16Len(s)
		from := n
		if !arg(args, 1).IsUndefined() {
			f, err := toNum(r, arg(args, 1))
			if err != nil {
				return heap.Undefined, err
			}
			if !math.IsNaN(f) {
				from = int(math.Max(0, math.Min(heap.ToIntegerOrInfinity(f), float64(n))))
			}
		}
		return heap.IntValue(heap.LastIndexOf(s, search, from)), nil
	})
	m("localeCompare", 1, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		that, err := toStr(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		tag, err := localeTag(r, arg(args, 1))
		if err != nil {
			return heap.Undefined, err
		}
		return heap.IntValue(collate.New(tag).CompareString(s, that)), nil
	})
	m("normalize", 0, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		form := "NFC"
		if !arg(args, 0).IsUndefined() {
			var err error
			if form, err = toStr(r, arg(args, 0)); err != nil {
				return heap.Undefined, err
			}
		}
		f, ok := map[string]norm.Form{"NFC": norm.NFC, "NFD": norm.NFD, "NFKC": norm.NFKC, "NFKD": norm.NFKD}[form]
		if !ok {
			return heap.Undefined, r.NewRangeError("The normalization form should be one of NFC, NFD, NFKC, NFKD.")
		}
		return str(f.String(s)), nil
	})
	m("isWellFormed", 0, func(_ *realm.Realm, s string, _ []heap.Value) (heap.Value, error) {
		return heap.BooleanValue(heap.IsWellFormed(s)), nil
	})
	m("toWellFormed", 0, func(_ *realm.Realm, s string, _ []heap.Value) (heap.Value, error) {
		return str(heap.ToWellFormed(s)), nil
	})
	m("padEnd", 1, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		return pad(r, s, args, false)
	})
	m("padStart", 1, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		return pad(r, s, args, true)
	})
	m("repeat", 1, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		n, err := toInteger(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		if n < 0 || math.IsInf(n, 1) {
			return heap.Undefined, r.NewRangeError("Invalid count value: %s", heap.NumberToString(n))
		}
		if s == "" || n == 0 {
			return heap.EmptyString, nil
		}
		if float64(len(s))*n > 1<<29 {
			return heap.Undefined, r.NewRangeError("Invalid string length")
		}
		return str(strings.Repeat(s, int(n))), nil
	})
	m("slice", 2, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		n := heap.UTF16Len(s)
		start, err := relativeIndex(r, arg(args, 0), n, 0)
		if err != nil {
			return heap.Undefined, err
		}
		end, err := relativeIndex(r, arg(args, 1), n, n)
		if err != nil {
			return heap.Undefined, err
		}
		if start >= end {
			return heap.EmptyString, nil
		}
		return str(heap.Substring(s, start, end)), nil
	})
	m("substring", 2, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		n := heap.UTF16Len(s)
		start, err := clampPosition(r, arg(args, 0), n, 0)
		if err != nil {
			return heap.Undefined, err
		}
		end, err := clampPosition(r, arg(args, 1), n, n)
		if err != nil {
			return heap.Undefined, err
		}
		if start > end {
			start, end = end, start
		}
		return str(heap.Substring(s, start, end)), nil
	})
	m("substr", 2, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		n := heap.UTF16Len(s)
		start, err := relativeIndex(r, arg(args, 0), n, 0)
		if err != nil {
			return heap.Undefined, err
		}
		length := float64(n - start)
		if !arg(args, 1).IsUndefined() {
			if length, err = toInteger(r, arg(args, 1)); err != nil {
				return heap.Undefined, err
			}
		}
		end := int(math.Min(float64(start)+math.Max(length, 0), float64(n)))
		if end <= start {
			return heap.EmptyString, nil
		}
		return str(heap.Substring(s, start, end)), nil
	})
	m("toLowerCase", 0, func(_ *realm.Realm, s string, _ []heap.Value) (heap.Value, error) {
		return str(cases.Lower(language.Und).String(s)), nil
	})
	m("toUpperCase", 0, func(_ *realm.Realm, s string, _ []heap.Value) (heap.Value, error) {
		return str(cases.Upper(language.Und).String(s)), nil
	})
	m("toLocaleLowerCase", 0, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		tag, err := localeTag(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		return str(cases.Lower(tag).String(s)), nil
	})
	m("toLocaleUpperCase", 0, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		tag, err := localeTag(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		return str(cases.Upper(tag).String(s)), nil
	})
	m("trim", 0, func(_ *realm.Realm, s string, _ []heap.Value) (heap.Value, error) {
		return str(heap.TrimSpace(s)), nil
	})
	m("trimStart", 0, func(_ *realm.Realm, s string, _ []heap.Value) (heap.Value, error) {
		return str(heap.TrimLeft(s)), nil
	})
	m("trimEnd", 0, func(_ *realm.Realm, s string, _ []heap.Value) (heap.Value, error) {
		return str(heap.TrimRight(s)), nil
	})
	m("split", 2, stringSplit)
	m("match", 1, stringMatch)
	m("matchAll", 1, stringMatchAll)
	m("replace", 2, stringReplace(false))
	m("replaceAll", 2, stringReplace(true))
	m("search", 1, func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		re, _, err := regexpArg(r, arg(args, 0), "")
		if err != nil {
			return heap.Undefined, err
		}
		found, err := re.find(r, heap.Runes(s), 0)
		if err != nil || found == nil {
			return heap.IntValue(-1), err
		}
		return heap.IntValue(found.start), nil
	})
	r.SymbolMethod(proto, heap.SymIterator, "[Symbol.iterator]", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		s, err := thisString(r, this, "[Symbol.iterator]")
		if err != nil {
			return heap.Undefined, err
		}
		pos := 0
		return newIterator(r, "StringIteratorPrototype", str(s), func(_ *realm.Realm, src heap.Value) (heap.Value, bool, error) {
			rest := src.AsString()[pos:]
			if rest == "" {
				return heap.Undefined, true, nil
			}
			_, size := heap.DecodeRune(rest)
			pos += size
			return str(rest[:size]), false, nil
		}), nil
	})

	return ctx.DefineGlobal("String", heap.ObjectValue(ctor))
}

// searchString rejects regexps where the method requires a plain string.
func searchString(r *realm.Realm, v heap.Value, method string) (string, error) {
	if regExpOf(v) != nil {
		return "", r.NewTypeError("First argument to String.prototype.%s must not be a regular expression", method)
	}
	return toStr(r, v)
}

// clampPosition converts a position argument and clamps it to [0, n].
func clampPosition(r *realm.Realm, v heap.Value, n, def int) (int, error) {
	if v.IsUndefined() {
		return def, nil
	}
	f, err := toInteger(r, v)
	if err != nil {
		return 0, err
	}
	return int(math.Max(0, math.Min(f, float64(n)))), nil
}

func pad(r *realm.Realm, s string, args []heap.Value, start bool) (heap.Value, error) {
	target, err := toInteger(r, arg(args, 0))
	if err != nil {
		return heap.Undefined, err
	}
	n := heap.UTF16Len(s)
	if target <= float64(n) {
		return str(s), nil
	}
	filler := " "
	if !arg(args, 1).IsUndefined() {
		if filler, err = toStr(r, arg(args, 1)); err != nil {
			return heap.Undefined, err
		}
	}
	if filler == "" {
		return str(s), nil
	}
	need := int(target) - n
	fl := heap.UTF16Len(filler)
	fill := strings.Repeat(filler, need/fl+1)
	fill = heap.Substring(fill, 0, need)
	if start {
		return str(fill + s), nil
	}
	return str(s + fill), nil
}

// regexpArg returns the regexp of v, or compiles v as a pattern with flags.
func regexpArg(r *realm.Realm, v heap.Value, flags string) (*regExp, *heap.Object, error) {
	if re := regExpOf(v); re != nil {
		return re, v.AsObject(), nil
	}
	pattern := ""
	if !v.IsUndefined() {
		var err error
		if pattern, err = toStr(r, v); err != nil {
			return nil, nil, err
		}
	}
	re, err := compileRegExp(r, pattern, flags)
	if err != nil {
		return nil, nil, err
	}
	return re, newRegExpObject(r, re, nil), nil
}

func stringSplit(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
	sep, limitV := arg(args, 0), arg(args, 1)
	limit := uint32(math.MaxUint32)
	if !limitV.IsUndefined() {
		f, err := toNum(r, limitV)
		if err != nil {
			return heap.Undefined, err
		}
		limit = heap.ToUint32(f)
	}
	if re := regExpOf(sep); re != nil {
		return regexpSplit(r, re, s, limit)
	}
	if sep.IsUndefined() {
		if limit == 0 {
			return newArray(r, nil), nil
		}
		return newArray(r, []heap.Value{str(s)}), nil
	}
	sepStr, err := toStr(r, sep)
	if err != nil {
		return heap.Undefined, err
	}
	out := r.NewArray(nil)
	if limit == 0 {
		return heap.ObjectValue(out), nil
	}
	if sepStr == "" {
		units := heap.ToUTF16(s)
		for i := 0; i < len(units) && out.Len() < limit; i++ {
			out.Append(str(heap.FromUTF16(units[i : i+1])))
		}
		return heap.ObjectValue(out), nil
	}
	for _, part := range strings.Split(s, sepStr) {
		if out.Len() == limit {
			break
		}
		out.Append(str(part))
	}
	return heap.ObjectValue(out), nil
}

func stringMatch(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
	re, o, err := regexpArg(r, arg(args, 0), "")
	if err != nil {
		return heap.Undefined, err
	}
	if !re.global {
		return re.exec(r, o, s)
	}
	matches, err := re.allMatches(r, o, s)
	if err != nil {
		return heap.Undefined, err
	}
	if len(matches) == 0 {
		return heap.Null, nil
	}
	vals := make([]heap.Value, len(matches))
	for i, m := range matches {
		vals[i] = str(m.text)
	}
	return newArray(r, vals), nil
}

func stringMatchAll(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
	re, _, err := regexpArg(r, arg(args, 0), "g")
	if err != nil {
		return heap.Undefined, err
	}
	if regExpOf(arg(args, 0)) != nil && !re.global {
		return heap.Undefined, r.NewTypeError("String.prototype.matchAll called with a non-global RegExp argument")
	}
	runes := heap.Runes(s)
	pos, n := 0, heap.UTF16Len(s)
	done := false
	return newIterator(r, "RegExpStringIteratorPrototype", str(s), func(r *realm.Realm, _ heap.Value) (heap.Value, bool, error) {
		if done || pos > n {
			return heap.Undefined, true, nil
		}
		m, err := re.find(r, runes, pos)
		if err != nil {
			return heap.Undefined, false, err
		}
		if m == nil {
			done = true
			return heap.Undefined, true, nil
		}
		pos = m.end
		if m.end == m.start {
			pos++
		}
		return re.matchArray(r, m, s), false, nil
	}), nil
}

func stringReplace(all bool) func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
	return func(r *realm.Realm, s string, args []heap.Value) (heap.Value, error) {
		pattern, replacement := arg(args, 0), arg(args, 1)
		tmpl := ""
		if !replacement.IsCallable() {
			var err error
			if tmpl, err = toStr(r, replacement); err != nil {
				return heap.Undefined, err
			}
		}
		var matches []*regexpMatch
		if re := regExpOf(pattern); re != nil {
			o := pattern.AsObject()
			if all && !re.global {
				return heap.Undefined, r.NewTypeError("replaceAll must be called with a global RegExp")
			}
			if re.global {
				found, err := re.allMatches(r, o, s)
				if err != nil {
					return heap.Undefined, err
				}
				matches = found
			} else {
				m, err := re.match(r, o, s)
				if err != nil {
					return heap.Undefined, err
				}
				if m != nil {
					matches = append(matches, m)
				}
			}
		} else {
			search, err := toStr(r, pattern)
			if err != nil {
				return heap.Undefined, err
			}
			sl := heap.UTF16Len(search)
			for pos := 0; pos <= heap.UTF16Len(s); {
				i := heap.IndexOf(s, search, pos)
				if i < 0 {
					break
				}
				matches = append(matches, &regexpMatch{start: i, end: i + sl, text: search})
				if !all {
					break
				}
				pos = i + max(sl, 1)
			}
		}
		out, err := replaceMatches(r, s, matches, replacement, tmpl)
		if err != nil {
			return heap.Undefined, err
		}
		return str(out), nil
	}
}
