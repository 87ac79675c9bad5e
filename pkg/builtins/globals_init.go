package builtins

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

type GlobalsInitializer struct{}

func (g *GlobalsInitializer) Name() string { return "Globals" }

func (g *GlobalsInitializer) Priority() int { return PriorityGlobals }

var startTime = time.Now()

func (g *GlobalsInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	global := r.GlobalObject
	for name, v := range map[string]heap.Value{
		"Infinity":  num(math.Inf(1)),
		"NaN":       heap.NaN,
		"undefined": heap.Undefined,
	} {
		global.DefineOwnProperty(heap.StringKey(name), heap.DataDesc(v, 0))
	}

	for _, name := range []string{"parseInt", "parseFloat"} {
		if err := ctx.DefineGlobal(name, heap.ObjectValue(r.Intrinsic(name))); err != nil {
			return err
		}
	}
	numeric := func(name string, test func(float64) bool) error {
		fn := r.NewNativeFunction(name, 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
			f, err := toNum(r, arg(args, 0))
			if err != nil {
				return heap.Undefined, err
			}
			return heap.BooleanValue(test(f)), nil
		})
		return ctx.DefineGlobal(name, heap.ObjectValue(fn))
	}
	if err := numeric("isNaN", math.IsNaN); err != nil {
		return err
	}
	if err := numeric("isFinite", func(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }); err != nil {
		return err
	}

	eval := r.NewNativeFunction("eval", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		code := arg(args, 0)
		if !code.IsString() {
			return code, nil
		}
		if r.Hooks.Eval == nil {
			return heap.Undefined, r.NewError("eval is not available")
		}
		return r.Hooks.Eval(code.AsString(), false)
	})
	if err := ctx.Intrinsic("eval", eval); err != nil {
		return err
	}
	if err := ctx.DefineGlobal("eval", heap.ObjectValue(eval)); err != nil {
		return err
	}

	for _, u := range []struct {
		name     string
		encode   bool
		reserved string
	}{
		{"encodeURIComponent", true, ""},
		{"encodeURI", true, ";/?:@&=+$,#"},
		{"decodeURIComponent", false, ""},
		{"decodeURI", false, ";/?:@&=+$,#"},
	} {
		fn := r.NewNativeFunction(u.name, 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
			s, err := toStr(r, arg(args, 0))
			if err != nil {
				return heap.Undefined, err
			}
			var out string
			var ok bool
			if u.encode {
				out, ok = uriEncode(s, u.reserved)
			} else {
				out, ok = uriDecode(s, u.reserved)
			}
			if !ok {
				return heap.Undefined, realm.NewException(heap.ObjectValue(r.NewErrorObject("URIError", "URI malformed")))
			}
			return str(out), nil
		})
		if err := ctx.DefineGlobal(u.name, heap.ObjectValue(fn)); err != nil {
			return err
		}
	}

	require := r.NewNativeFunction("require", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		spec, err := r.SpecifierArg(args)
		if err != nil {
			return heap.Undefined, err
		}
		return r.Require(spec, "")
	})
	if err := ctx.DefineGlobal("require", heap.ObjectValue(require)); err != nil {
		return err
	}

	gc := r.NewNativeFunction("gc", 0, func(_ []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		return heap.IntValue(r.Collect().Freed()), nil
	})
	if err := ctx.DefineGlobal("gc", heap.ObjectValue(gc)); err != nil {
		return err
	}
	clock := r.NewNativeFunction("clock", 0, func([]heap.Value, heap.Value, *realm.Realm) (heap.Value, error) {
		return num(float64(time.Since(startTime).Microseconds()) / 1000), nil
	})
	if err := ctx.DefineGlobal("clock", heap.ObjectValue(clock)); err != nil {
		return err
	}

	queue := r.NewNativeFunction("queueMicrotask", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		fn, err := requireCallable(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		r.EnqueueMicrotask(func() error {
			_, err := r.Call(heap.ObjectValue(fn), heap.Undefined)
			return err
		}, heap.ObjectValue(fn))
		return heap.Undefined, nil
	})
	if err := ctx.DefineGlobal("queueMicrotask", heap.ObjectValue(queue)); err != nil {
		return err
	}

	clone := r.NewNativeFunction("structuredClone", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		return structuredClone(r, arg(args, 0), map[*heap.Object]*heap.Object{})
	})
	if err := ctx.DefineGlobal("structuredClone", heap.ObjectValue(clone)); err != nil {
		return err
	}

	crypto := r.NewObject()
	r.Method(crypto, "randomUUID", 0, func([]heap.Value, heap.Value, *realm.Realm) (heap.Value, error) {
		return str(uuid.NewString()), nil
	})
	return ctx.DefineGlobal("crypto", heap.ObjectValue(crypto))
}

const uriUnreserved = "-_.!~*'()"

func isURIUnreserved(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || strings.IndexByte(uriUnreserved, c) >= 0
}

// uriEncode percent-encodes s as UTF-8. A lone surrogate is not valid
// UTF-8 and fails.
func uriEncode(s, reserved string) (string, bool) {
	var sb strings.Builder
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf && (isURIUnreserved(c) || strings.IndexByte(reserved, c) >= 0) {
			sb.WriteByte(c)
			i++
			continue
		}
		rn, size := utf8.DecodeRuneInString(s[i:])
		if rn == utf8.RuneError && size == 1 {
			return "", false
		}
		if rn >= 0xD800 && rn <= 0xDFFF {
			return "", false
		}
		for j := 0; j < size; j++ {
			b := s[i+j]
			sb.WriteByte('%')
			sb.WriteByte("0123456789ABCDEF"[b>>4])
			sb.WriteByte("0123456789ABCDEF"[b&0xf])
		}
		i += size
	}
	return sb.String(), true
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// uriDecode reverses uriEncode; escapes that decode to a character in
// reserved are kept as written.
func uriDecode(s, reserved string) (string, bool) {
	var sb strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '%' {
			sb.WriteByte(s[i])
			i++
			continue
		}
		start := i
		var buf []byte
		for {
			if i+2 >= len(s) {
				return "", false
			}
			hi, ok1 := unhex(s[i+1])
			lo, ok2 := unhex(s[i+2])
			if !ok1 || !ok2 {
				return "", false
			}
			buf = append(buf, hi<<4|lo)
			i += 3
			if utf8.FullRune(buf) || buf[0] < utf8.RuneSelf {
				break
			}
			if i >= len(s) || s[i] != '%' {
				return "", false
			}
		}
		if buf[0] < utf8.RuneSelf {
			if strings.IndexByte(reserved, buf[0]) >= 0 {
				sb.WriteString(s[start:i])
			} else {
				sb.WriteByte(buf[0])
			}
			continue
		}
		if !utf8.Valid(buf) {
			return "", false
		}
		sb.Write(buf)
	}
	return sb.String(), true
}

// structuredClone deep-copies plain data: primitives, arrays, plain objects,
// Map, Set, primitive wrappers and errors. Functions and symbols throw.
func structuredClone(r *realm.Realm, v heap.Value, memo map[*heap.Object]*heap.Object) (heap.Value, error) {
	switch {
	case v.IsSymbol():
		return heap.Undefined, r.NewTypeError("%s could not be cloned", v.Inspect())
	case !v.IsObject():
		return v, nil
	}
	o := v.AsObject()
	if c, ok := memo[o]; ok {
		return heap.ObjectValue(c), nil
	}
	if o.IsCallable() {
		return heap.Undefined, r.NewTypeError("%s could not be cloned", v.Inspect())
	}
	if pv, ok := o.PrimitiveValue(); ok {
		if pv.IsSymbol() {
			return heap.Undefined, r.NewTypeError("%s could not be cloned", v.Inspect())
		}
		c, err := r.ToObject(pv)
		if err != nil {
			return heap.Undefined, err
		}
		memo[o] = c
		return heap.ObjectValue(c), nil
	}
	if s, ok := o.Internal.(*orderedStore); ok {
		cs := newOrderedStore(r.Heap)
		c := r.Heap.NewObjectOf(o.Class(), r.Intrinsic(o.Class()+"Prototype"), cs)
		memo[o] = c
		cur := &cursor{epoch: s.epoch}
		for e, ok := cur.next(s); ok; e, ok = cur.next(s) {
			k, err := structuredClone(r, e.key, memo)
			if err != nil {
				return heap.Undefined, err
			}
			val, err := structuredClone(r, e.value, memo)
			if err != nil {
				return heap.Undefined, err
			}
			cs.set(k, val)
		}
		return heap.ObjectValue(c), nil
	}
	var c *heap.Object
	switch {
	case o.IsArray():
		c = r.NewArray(nil)
		c.SetLength(o.Len())
	case o.Class() == "Error":
		name, msg := realm.ErrorParts(v)
		c = r.NewErrorObject(name, msg)
		if st, ok := o.FindData("stack"); ok {
			c.DefineHidden("stack", st)
		}
		memo[o] = c
		return heap.ObjectValue(c), nil
	case o.Internal != nil:
		return heap.Undefined, r.NewTypeError("%s could not be cloned", v.Inspect())
	default:
		c = r.NewObject()
	}
	memo[o] = c
	for _, k := range o.OwnKeys() {
		if k.IsSymbol() {
			continue
		}
		d, ok := o.GetOwnProperty(k)
		if !ok || !d.Enumerable() {
			continue
		}
		pv, err := r.Heap.Get(o, k, v)
		if err != nil {
			return heap.Undefined, err
		}
		cv, err := structuredClone(r, pv, memo)
		if err != nil {
			return heap.Undefined, err
		}
		c.DefineOwnProperty(k, heap.DataDesc(cv, heap.DefaultFlags))
	}
	return heap.ObjectValue(c), nil
}
