package builtins

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

type RegExpInitializer struct{}

func (re *RegExpInitializer) Name() string { return "RegExp" }

func (re *RegExpInitializer) Priority() int { return PriorityRegExp }

// matchTimeout bounds a single match so catastrophic patterns surface as
// errors instead of hanging the engine.
const matchTimeout = 5 * time.Second

// regExp is the internal slot of RegExp objects.
type regExp struct {
	source string
	flags  string
	re     *regexp2.Regexp

	global, ignoreCase, multiline, dotAll, unicode, sticky, hasIndices bool
}

func (*regExp) EachRef(func(heap.Node)) {}

func regExpOf(v heap.Value) *regExp {
	if o := v.AsObject(); o != nil {
		re, _ := o.Internal.(*regExp)
		return re
	}
	return nil
}

// compileRegExp validates flags and compiles pattern with ECMAScript
// semantics.
func compileRegExp(r *realm.Realm, pattern, flags string) (*regExp, error) {
	re := &regExp{source: pattern, flags: flags}
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	for _, f := range flags {
		var dup bool
		switch f {
		case 'g':
			dup, re.global = re.global, true
		case 'i':
			dup, re.ignoreCase = re.ignoreCase, true
			opts |= regexp2.IgnoreCase
		case 'm':
			dup, re.multiline = re.multiline, true
			opts |= regexp2.Multiline
		case 's':
			dup, re.dotAll = re.dotAll, true
			opts |= regexp2.Singleline
		case 'u', 'v':
			dup, re.unicode = re.unicode, true
		case 'y':
			dup, re.sticky = re.sticky, true
		case 'd':
			dup, re.hasIndices = re.hasIndices, true
		default:
			dup = true
		}
		if dup {
			return nil, r.NewSyntaxError("Invalid regular expression flags '%s'", flags)
		}
	}
	compiled, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return nil, r.NewSyntaxError("Invalid regular expression: /%s/%s: %v", pattern, flags, err)
	}
	compiled.MatchTimeout = matchTimeout
	re.re = compiled
	return re, nil
}

func newRegExpObject(r *realm.Realm, re *regExp, proto *heap.Object) *heap.Object {
	if proto == nil {
		proto = r.Intrinsic(realm.RegExpPrototype)
	}
	o := r.Heap.NewObjectOf("RegExp", proto, re)
	o.DefineOwnProperty(heap.StringKey("lastIndex"), heap.DataDesc(heap.IntValue(0), heap.Writable))
	return o
}

func (re *RegExpInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	proto := r.Heap.NewObject(r.Intrinsic(realm.ObjectPrototype))
	if err := ctx.Intrinsic(realm.RegExpPrototype, proto); err != nil {
		return err
	}

	build := func(args []heap.Value, newTarget *heap.Object, r *realm.Realm) (heap.Value, error) {
		pattern, flags := arg(args, 0), arg(args, 1)
		var src, fl string
		var err error
		if existing := regExpOf(pattern); existing != nil {
			src, fl = existing.source, existing.flags
		} else if !pattern.IsUndefined() {
			if src, err = toStr(r, pattern); err != nil {
				return heap.Undefined, err
			}
		}
		if !flags.IsUndefined() {
			if fl, err = toStr(r, flags); err != nil {
				return heap.Undefined, err
			}
		}
		compiled, err := compileRegExp(r, src, fl)
		if err != nil {
			return heap.Undefined, err
		}
		p, err := protoFromCtor(r, newTarget, realm.RegExpPrototype)
		if err != nil {
			return heap.Undefined, err
		}
		return heap.ObjectValue(newRegExpObject(r, compiled, p)), nil
	}
	ctor := r.NewNativeConstructor("RegExp", 2,
		func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
			if regExpOf(arg(args, 0)) != nil && arg(args, 1).IsUndefined() {
				return arg(args, 0), nil
			}
			return build(args, nil, r)
		}, build, proto)
	r.Method(ctor, "escape", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		s := arg(args, 0)
		if !s.IsString() {
			return heap.Undefined, r.NewTypeError("RegExp.escape requires a string")
		}
		return str(regexp2.Escape(s.AsString())), nil
	})

	thisRegExp := func(r *realm.Realm, this heap.Value, method string) (*heap.Object, *regExp, error) {
		re := regExpOf(this)
		if re == nil {
			return nil, nil, r.NewTypeError("RegExp.prototype.%s called on incompatible receiver %s", method, this.Inspect())
		}
		return this.AsObject(), re, nil
	}

	r.Method(proto, "exec", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		o, re, err := thisRegExp(r, this, "exec")
		if err != nil {
			return heap.Undefined, err
		}
		s, err := toStr(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		return re.exec(r, o, s)
	})
	r.Method(proto, "test", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		o, re, err := thisRegExp(r, this, "test")
		if err != nil {
			return heap.Undefined, err
		}
		s, err := toStr(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		m, err := re.exec(r, o, s)
		if err != nil {
			return heap.Undefined, err
		}
		return heap.BooleanValue(!m.IsNull()), nil
	})
	r.Method(proto, "toString", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		if !this.IsObject() {
			return heap.Undefined, r.NewTypeError("RegExp.prototype.toString called on non-object")
		}
		src, err := r.Get(this, "source")
		if err != nil {
			return heap.Undefined, err
		}
		flags, err := r.Get(this, "flags")
		if err != nil {
			return heap.Undefined, err
		}
		s, err := toStr(r, src)
		if err != nil {
			return heap.Undefined, err
		}
		f, err := toStr(r, flags)
		if err != nil {
			return heap.Undefined, err
		}
		return str("/" + s + "/" + f), nil
	})
	r.Method(proto, "compile", 2, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		o, _, err := thisRegExp(r, this, "compile")
		if err != nil {
			return heap.Undefined, err
		}
		src, fl := "", ""
		if !arg(args, 0).IsUndefined() {
			if src, err = toStr(r, arg(args, 0)); err != nil {
				return heap.Undefined, err
			}
		}
		if !arg(args, 1).IsUndefined() {
			if fl, err = toStr(r, arg(args, 1)); err != nil {
				return heap.Undefined, err
			}
		}
		compiled, err := compileRegExp(r, src, fl)
		if err != nil {
			return heap.Undefined, err
		}
		o.Internal = compiled
		return this, r.Set(this, heap.StringKey("lastIndex"), heap.IntValue(0), true)
	})

	r.Getter(proto, heap.StringKey("source"), func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		re := regExpOf(this)
		if re == nil {
			if this.AsObject() == proto {
				return str("(?:)"), nil
			}
			return heap.Undefined, r.NewTypeError("RegExp.prototype.source getter called on non-RegExp")
		}
		if re.source == "" {
			return str("(?:)"), nil
		}
		return str(escapeSource(re.source)), nil
	})
	r.Getter(proto, heap.StringKey("flags"), func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		if !this.IsObject() {
			return heap.Undefined, r.NewTypeError("RegExp.prototype.flags getter called on non-object")
		}
		var b strings.Builder
		for _, f := range []struct {
			name string
			c    byte
		}{{"hasIndices", 'd'}, {"global", 'g'}, {"ignoreCase", 'i'}, {"multiline", 'm'}, {"dotAll", 's'}, {"unicode", 'u'}, {"sticky", 'y'}} {
			v, err := r.Get(this, f.name)
			if err != nil {
				return heap.Undefined, err
			}
			if heap.ToBoolean(v) {
				b.WriteByte(f.c)
			}
		}
		return str(b.String()), nil
	})
	flagGetters := map[string]func(*regExp) bool{
		"global":     func(re *regExp) bool { return re.global },
		"ignoreCase": func(re *regExp) bool { return re.ignoreCase },
		"multiline":  func(re *regExp) bool { return re.multiline },
		"dotAll":     func(re *regExp) bool { return re.dotAll },
		"unicode":    func(re *regExp) bool { return re.unicode },
		"sticky":     func(re *regExp) bool { return re.sticky },
		"hasIndices": func(re *regExp) bool { return re.hasIndices },
	}
	for name, get := range flagGetters {
		get := get
		r.Getter(proto, heap.StringKey(name), func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
			re := regExpOf(this)
			if re == nil {
				return heap.Undefined, nil
			}
			return heap.BooleanValue(get(re)), nil
		})
	}

	if err := ctx.Intrinsic("RegExp", ctor); err != nil {
		return err
	}
	return ctx.DefineGlobal("RegExp", heap.ObjectValue(ctor))
}

// escapeSource escapes slashes that are not already escaped or inside a
// character class.
func escapeSource(src string) string {
	var b strings.Builder
	inClass := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\\' && i+1 < len(src):
			b.WriteByte(c)
			i++
			b.WriteByte(src[i])
			continue
		case c == '[':
			inClass = true
		case c == ']':
			inClass = false
		case c == '/' && !inClass:
			b.WriteByte('\\')
		case c == '\n':
			b.WriteString(`\n`)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// runeToUTF16 converts a rune offset into runes to a UTF-16 offset.
func runeToUTF16(runes []rune, ri int) int {
	n := 0
	for _, c := range runes[:ri] {
		if c >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// utf16ToRune converts a UTF-16 offset to a rune offset, rounding down
// inside a surrogate pair.
func utf16ToRune(runes []rune, ui int) int {
	n := 0
	for i, c := range runes {
		w := 1
		if c >= 0x10000 {
			w = 2
		}
		if n+w > ui {
			return i
		}
		n += w
	}
	return len(runes)
}

// regexpMatch is one match in UTF-16 coordinates.
type regexpMatch struct {
	start, end int
	text       string
	captures   []heap.Value
	names      []string
	spans      [][2]int
	hasNames   bool
}

// find searches s from the UTF-16 offset from. Sticky patterns only match
// exactly at from.
func (re *regExp) find(r *realm.Realm, runes []rune, from int) (*regexpMatch, error) {
	start := utf16ToRune(runes, from)
	m, err := re.re.FindRunesMatchStartingAt(runes, start)
	if err != nil {
		return nil, r.NewError("%v", err)
	}
	if m == nil || (re.sticky && m.Index != start) {
		return nil, nil
	}
	out := &regexpMatch{
		start: runeToUTF16(runes, m.Index),
		end:   runeToUTF16(runes, m.Index+m.Length),
		text:  heap.FromRunes(runes[m.Index : m.Index+m.Length]),
	}
	for i, g := range m.Groups() {
		if i == 0 {
			continue
		}
		named := !isDigits(g.Name)
		out.hasNames = out.hasNames || named
		if named {
			out.names = append(out.names, g.Name)
		} else {
			out.names = append(out.names, "")
		}
		if len(g.Captures) == 0 {
			out.captures = append(out.captures, heap.Undefined)
			out.spans = append(out.spans, [2]int{-1, -1})
			continue
		}
		out.captures = append(out.captures, str(heap.FromRunes(runes[g.Index:g.Index+g.Length])))
		out.spans = append(out.spans, [2]int{runeToUTF16(runes, g.Index), runeToUTF16(runes, g.Index+g.Length)})
	}
	return out, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

// groups builds the groups object of a match, or undefined without named
// groups.
func (m *regexpMatch) groups(r *realm.Realm) heap.Value {
	if !m.hasNames {
		return heap.Undefined
	}
	g := r.Heap.NewObject(nil)
	for i, name := range m.names {
		if name != "" {
			g.Put(name, m.captures[i])
		}
	}
	return heap.ObjectValue(g)
}

func readLastIndex(r *realm.Realm, o *heap.Object) (int, error) {
	v, err := r.Heap.Get(o, heap.StringKey("lastIndex"), heap.ObjectValue(o))
	if err != nil {
		return 0, err
	}
	f, err := toInteger(r, v)
	if err != nil || f < 0 {
		return 0, err
	}
	if f > 1<<31 {
		f = 1 << 31
	}
	return int(f), nil
}

func writeLastIndex(r *realm.Realm, o *heap.Object, i int) error {
	return r.Set(heap.ObjectValue(o), heap.StringKey("lastIndex"), heap.IntValue(i), true)
}

// match runs the regexp against s honoring lastIndex for global and sticky
// patterns.
func (re *regExp) match(r *realm.Realm, o *heap.Object, s string) (*regexpMatch, error) {
	last := 0
	tracking := re.global || re.sticky
	if tracking {
		var err error
		if last, err = readLastIndex(r, o); err != nil {
			return nil, err
		}
	}
	if last > heap.UTF16Len(s) {
		return nil, writeLastIndex(r, o, 0)
	}
	m, err := re.find(r, heap.Runes(s), last)
	if err != nil {
		return nil, err
	}
	if m == nil {
		if tracking {
			return nil, writeLastIndex(r, o, 0)
		}
		return nil, nil
	}
	if tracking {
		if err := writeLastIndex(r, o, m.end); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// exec implements RegExpBuiltinExec.
func (re *regExp) exec(r *realm.Realm, o *heap.Object, s string) (heap.Value, error) {
	m, err := re.match(r, o, s)
	if err != nil || m == nil {
		return heap.Null, err
	}
	return re.matchArray(r, m, s), nil
}

func (re *regExp) matchArray(r *realm.Realm, m *regexpMatch, s string) heap.Value {
	a := r.NewArray(append([]heap.Value{str(m.text)}, m.captures...))
	a.Put("index", heap.IntValue(m.start))
	a.Put("input", str(s))
	a.Put("groups", m.groups(r))
	if re.hasIndices {
		spans := []heap.Value{newArray(r, []heap.Value{heap.IntValue(m.start), heap.IntValue(m.end)})}
		for _, sp := range m.spans {
			if sp[0] < 0 {
				spans = append(spans, heap.Undefined)
				continue
			}
			spans = append(spans, newArray(r, []heap.Value{heap.IntValue(sp[0]), heap.IntValue(sp[1])}))
		}
		a.Put("indices", newArray(r, spans))
	}
	return heap.ObjectValue(a)
}

// allMatches returns every match of a global regexp, resetting lastIndex.
func (re *regExp) allMatches(r *realm.Realm, o *heap.Object, s string) ([]*regexpMatch, error) {
	if err := writeLastIndex(r, o, 0); err != nil {
		return nil, err
	}
	runes := heap.Runes(s)
	var out []*regexpMatch
	pos := 0
	n := heap.UTF16Len(s)
	for pos <= n {
		m, err := re.find(r, runes, pos)
		if err != nil {
			return nil, err
		}
		if m == nil {
			break
		}
		out = append(out, m)
		if m.end == m.start {
			pos = m.end + 1
		} else {
			pos = m.end
		}
		if re.sticky && m.end == m.start {
			break
		}
	}
	return out, nil
}

// expandReplacement substitutes $-patterns in a replacement template.
func expandReplacement(tmpl string, m *regexpMatch, s string) string {
	if !strings.Contains(tmpl, "$") {
		return tmpl
	}
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c != '$' || i+1 == len(tmpl) {
			b.WriteByte(c)
			continue
		}
		next := tmpl[i+1]
		switch {
		case next == '$':
			b.WriteByte('$')
			i++
		case next == '&':
			b.WriteString(m.text)
			i++
		case next == '`':
			b.WriteString(heap.Substring(s, 0, m.start))
			i++
		case next == '\'':
			b.WriteString(heap.Substring(s, m.end, heap.UTF16Len(s)))
			i++
		case next >= '0' && next <= '9':
			n := int(next - '0')
			width := 1
			if i+2 < len(tmpl) && tmpl[i+2] >= '0' && tmpl[i+2] <= '9' {
				if nn := n*10 + int(tmpl[i+2]-'0'); nn >= 1 && nn <= len(m.captures) {
					n, width = nn, 2
				}
			}
			if n < 1 || n > len(m.captures) {
				b.WriteByte('$')
				continue
			}
			if v := m.captures[n-1]; v.IsString() {
				b.WriteString(v.AsString())
			}
			i += width
		case next == '<' && m.hasNames:
			end := strings.IndexByte(tmpl[i+2:], '>')
			if end < 0 {
				b.WriteByte('$')
				continue
			}
			name := tmpl[i+2 : i+2+end]
			for k, n := range m.names {
				if n == name && m.captures[k].IsString() {
					b.WriteString(m.captures[k].AsString())
				}
			}
			i += 2 + end
		default:
			b.WriteByte('$')
		}
	}
	return b.String()
}

// replaceMatches builds the result of String.prototype.replace for the
// given matches, calling fn or expanding tmpl for each.
func replaceMatches(r *realm.Realm, s string, matches []*regexpMatch, fn heap.Value, tmpl string) (string, error) {
	var b strings.Builder
	pos := 0
	for _, m := range matches {
		b.WriteString(heap.Substring(s, pos, m.start))
		if fn.IsCallable() {
			args := append([]heap.Value{str(m.text)}, m.captures...)
			args = append(args, heap.IntValue(m.start), str(s))
			if g := m.groups(r); !g.IsUndefined() {
				args = append(args, g)
			}
			res, err := r.Call(fn, heap.Undefined, args...)
			if err != nil {
				return "", err
			}
			rs, err := toStr(r, res)
			if err != nil {
				return "", err
			}
			b.WriteString(rs)
		} else {
			b.WriteString(expandReplacement(tmpl, m, s))
		}
		pos = m.end
	}
	b.WriteString(heap.Substring(s, pos, heap.UTF16Len(s)))
	return b.String(), nil
}

// regexpSplit implements String.prototype.split with a regexp separator.
func regexpSplit(r *realm.Realm, re *regExp, s string, limit uint32) (heap.Value, error) {
	out := r.NewArray(nil)
	if limit == 0 {
		return heap.ObjectValue(out), nil
	}
	runes := heap.Runes(s)
	n := heap.UTF16Len(s)
	if n == 0 {
		m, err := re.find(r, runes, 0)
		if err != nil {
			return heap.Undefined, err
		}
		if m == nil {
			out.Append(str(s))
		}
		return heap.ObjectValue(out), nil
	}
	p, q := 0, 0
	for q < n {
		m, err := re.find(r, runes, q)
		if err != nil {
			return heap.Undefined, err
		}
		if m == nil {
			break
		}
		if m.start >= n {
			break
		}
		if m.end == p {
			q = m.start + 1
			continue
		}
		out.Append(str(heap.Substring(s, p, m.start)))
		if out.Len() == limit {
			return heap.ObjectValue(out), nil
		}
		for _, c := range m.captures {
			out.Append(c)
			if out.Len() == limit {
				return heap.ObjectValue(out), nil
			}
		}
		p = m.end
		q = p
	}
	out.Append(str(heap.Substring(s, p, n)))
	return heap.ObjectValue(out), nil
}
