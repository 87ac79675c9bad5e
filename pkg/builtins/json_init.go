package builtins

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

type JSONInitializer struct{}

func (j *JSONInitializer) Name() string { return "JSON" }

func (j *JSONInitializer) Priority() int { return PriorityJSON }

func (j *JSONInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	jo := r.NewObject()
	jo.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str("JSON"), heap.Configurable))

	r.Method(jo, "parse", 2, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		text, err := toStr(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		v, err := parseJSON(r, text)
		if err != nil {
			return heap.Undefined, err
		}
		reviver := arg(args, 1)
		if !reviver.IsCallable() {
			return v, nil
		}
		root := r.NewObject()
		root.Put("", v)
		return internalize(r, root, heap.StringKey(""), reviver)
	})
	r.Method(jo, "stringify", 3, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		s, ok, err := stringifyJSON(r, arg(args, 0), arg(args, 1), arg(args, 2))
		if err != nil || !ok {
			return heap.Undefined, err
		}
		return str(s), nil
	})
	r.Method(jo, "rawJSON", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		text, err := toStr(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		v, err := parseJSON(r, text)
		if err != nil {
			return heap.Undefined, err
		}
		if v.IsObject() {
			return heap.Undefined, r.NewSyntaxError("JSON.rawJSON cannot create an object or array")
		}
		o := r.Heap.NewObjectOf("RawJSON", nil, nil)
		o.Put("rawJSON", str(text))
		o.Freeze()
		return heap.ObjectValue(o), nil
	})
	r.Method(jo, "isRawJSON", 1, func(args []heap.Value, _ heap.Value, _ *realm.Realm) (heap.Value, error) {
		o := arg(args, 0).AsObject()
		return heap.BooleanValue(o != nil && o.Class() == "RawJSON"), nil
	})
	return ctx.DefineGlobal("JSON", heap.ObjectValue(jo))
}

// parseJSON reads text with a streaming decoder so object keys keep their
// source order.
func parseJSON(r *realm.Realm, text string) (heap.Value, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	v, err := parseJSONValue(r, dec)
	if err != nil {
		return heap.Undefined, jsonSyntaxError(r, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = errors.New("unexpected non-whitespace character after JSON data")
		}
		return heap.Undefined, jsonSyntaxError(r, err)
	}
	return v, nil
}

func jsonSyntaxError(r *realm.Realm, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return r.NewSyntaxError("Unexpected end of JSON input")
	}
	return r.NewSyntaxError("%s in JSON", strings.TrimPrefix(err.Error(), "json: "))
}

func parseJSONValue(r *realm.Realm, dec *json.Decoder) (heap.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return heap.Undefined, err
	}
	switch t := tok.(type) {
	case nil:
		return heap.Null, nil
	case bool:
		return heap.BooleanValue(t), nil
	case string:
		return str(t), nil
	case json.Number:
		f, err := strconv.ParseFloat(string(t), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return heap.Undefined, err
		}
		return num(f), nil
	case json.Delim:
		switch t {
		case '{':
			o := r.NewObject()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return heap.Undefined, err
				}
				key, ok := kt.(string)
				if !ok {
					return heap.Undefined, errors.New("expected property name")
				}
				v, err := parseJSONValue(r, dec)
				if err != nil {
					return heap.Undefined, err
				}
				o.DefineOwnProperty(heap.StringKey(key), heap.DataDesc(v, heap.DefaultFlags))
			}
			if _, err := dec.Token(); err != nil {
				return heap.Undefined, err
			}
			return heap.ObjectValue(o), nil
		case '[':
			a := r.NewArray(nil)
			for dec.More() {
				v, err := parseJSONValue(r, dec)
				if err != nil {
					return heap.Undefined, err
				}
				a.Append(v)
			}
			if _, err := dec.Token(); err != nil {
				return heap.Undefined, err
			}
			return heap.ObjectValue(a), nil
		}
	}
	return heap.Undefined, errors.New("unexpected token")
}

// internalize applies a JSON.parse reviver bottom-up.
func internalize(r *realm.Realm, holder *heap.Object, k heap.PropertyKey, reviver heap.Value) (heap.Value, error) {
	val, err := r.Heap.Get(holder, k, heap.ObjectValue(holder))
	if err != nil {
		return heap.Undefined, err
	}
	if o := val.AsObject(); o != nil {
		var keys []heap.PropertyKey
		if o.IsArray() {
			n, err := lengthOf(r, o)
			if err != nil {
				return heap.Undefined, err
			}
			for i := 0; i < n; i++ {
				keys = append(keys, index(i))
			}
		} else {
			for _, key := range o.OwnKeys() {
				if d, ok := o.GetOwnProperty(key); ok && d.Enumerable() && !key.IsSymbol() {
					keys = append(keys, key)
				}
			}
		}
		for _, key := range keys {
			nv, err := internalize(r, o, key, reviver)
			if err != nil {
				return heap.Undefined, err
			}
			if nv.IsUndefined() {
				o.Delete(key)
			} else {
				o.DefineOwnProperty(key, heap.DataDesc(nv, heap.DefaultFlags))
			}
		}
	}
	return r.Call(reviver, heap.ObjectValue(holder), k.Value(), val)
}

type jsonWriter struct {
	r        *realm.Realm
	replacer heap.Value
	allow    []heap.PropertyKey
	hasAllow bool
	gap      string
	stack    []*heap.Object
	sb       strings.Builder
}

// stringifyJSON returns ok=false when the result is undefined.
func stringifyJSON(r *realm.Realm, value, replacer, space heap.Value) (string, bool, error) {
	w := &jsonWriter{r: r}
	if ro := replacer.AsObject(); ro != nil {
		if ro.IsCallable() {
			w.replacer = replacer
		} else if ro.IsArray() {
			w.hasAllow = true
			seen := map[string]bool{}
			n, err := lengthOf(r, ro)
			if err != nil {
				return "", false, err
			}
			for i := 0; i < n; i++ {
				v, err := getIndex(r, ro, i)
				if err != nil {
					return "", false, err
				}
				if o := v.AsObject(); o != nil {
					if pv, ok := o.PrimitiveValue(); ok && (pv.IsString() || pv.IsNumber()) {
						v = pv
					}
				}
				if !v.IsString() && !v.IsNumber() {
					continue
				}
				s, _ := toStr(r, v)
				if !seen[s] {
					seen[s] = true
					w.allow = append(w.allow, heap.StringKey(s))
				}
			}
		}
	}
	if o := space.AsObject(); o != nil {
		if pv, ok := o.PrimitiveValue(); ok && (pv.IsString() || pv.IsNumber()) {
			space = pv
		}
	}
	switch {
	case space.IsNumber():
		n := math.Min(10, heap.ToIntegerOrInfinity(space.AsNumber()))
		if n >= 1 {
			w.gap = strings.Repeat(" ", int(n))
		}
	case space.IsString():
		w.gap = space.AsString()
		if heap.UTF16Len(w.gap) > 10 {
			w.gap = heap.Substring(w.gap, 0, 10)
		}
	}
	wrapper := r.NewObject()
	wrapper.Put("", value)
	ok, err := w.property(wrapper, heap.StringKey(""), "")
	if err != nil || !ok {
		return "", false, err
	}
	return w.sb.String(), true, nil
}

// property serializes holder[k]; it writes nothing and returns false for
// values JSON cannot represent.
func (w *jsonWriter) property(holder *heap.Object, k heap.PropertyKey, indent string) (bool, error) {
	r := w.r
	v, err := r.Heap.Get(holder, k, heap.ObjectValue(holder))
	if err != nil {
		return false, err
	}
	return w.value(holder, k, v, indent)
}

func (w *jsonWriter) value(holder *heap.Object, k heap.PropertyKey, v heap.Value, indent string) (bool, error) {
	r := w.r
	if v.IsObject() || v.IsBigInt() {
		toJSON, err := r.GetKey(v, heap.StringKey("toJSON"))
		if err != nil {
			return false, err
		}
		if toJSON.IsCallable() {
			if v, err = r.Call(toJSON, v, k.Value()); err != nil {
				return false, err
			}
		}
	}
	if w.replacer.IsCallable() {
		var err error
		if v, err = r.Call(w.replacer, heap.ObjectValue(holder), k.Value(), v); err != nil {
			return false, err
		}
	}
	if o := v.AsObject(); o != nil {
		if o.Class() == "RawJSON" {
			raw, _ := o.FindData("rawJSON")
			w.sb.WriteString(raw.AsString())
			return true, nil
		}
		if pv, ok := o.PrimitiveValue(); ok {
			switch {
			case pv.IsNumber():
				f, err := toNum(r, v)
				if err != nil {
					return false, err
				}
				v = num(f)
			case pv.IsString():
				s, err := toStr(r, v)
				if err != nil {
					return false, err
				}
				v = str(s)
			case pv.IsBoolean(), pv.IsBigInt():
				v = pv
			}
		}
	}
	switch v.Kind() {
	case heap.KindNull:
		w.sb.WriteString("null")
	case heap.KindBoolean:
		w.sb.WriteString(strconv.FormatBool(v.AsBoolean()))
	case heap.KindString:
		quoteJSON(&w.sb, v.AsString())
	case heap.KindNumber:
		if f := v.AsNumber(); math.IsNaN(f) || math.IsInf(f, 0) {
			w.sb.WriteString("null")
		} else {
			w.sb.WriteString(heap.NumberToString(f))
		}
	case heap.KindBigInt:
		return false, r.NewTypeError("Do not know how to serialize a BigInt")
	case heap.KindObject:
		o := v.AsObject()
		if o.IsCallable() {
			return false, nil
		}
		for _, s := range w.stack {
			if s == o {
				return false, r.NewTypeError("Converting circular structure to JSON")
			}
		}
		w.stack = append(w.stack, o)
		defer func() { w.stack = w.stack[:len(w.stack)-1] }()
		if o.IsArray() {
			return true, w.array(o, indent)
		}
		return true, w.object(o, indent)
	default:
		return false, nil
	}
	return true, nil
}

func (w *jsonWriter) object(o *heap.Object, indent string) error {
	inner := indent + w.gap
	keys := w.allow
	if !w.hasAllow {
		keys = nil
		for _, k := range o.OwnKeys() {
			if d, ok := o.GetOwnProperty(k); ok && d.Enumerable() && !k.IsSymbol() {
				keys = append(keys, k)
			}
		}
	}
	w.sb.WriteByte('{')
	first := true
	for _, k := range keys {
		mark := w.sb.Len()
		if !first {
			w.sb.WriteByte(',')
		}
		if w.gap != "" {
			w.sb.WriteByte('\n')
			w.sb.WriteString(inner)
		}
		quoteJSON(&w.sb, k.Name())
		w.sb.WriteByte(':')
		if w.gap != "" {
			w.sb.WriteByte(' ')
		}
		ok, err := w.property(o, k, inner)
		if err != nil {
			return err
		}
		if !ok {
			truncate(&w.sb, mark)
			continue
		}
		first = false
	}
	if !first && w.gap != "" {
		w.sb.WriteByte('\n')
		w.sb.WriteString(indent)
	}
	w.sb.WriteByte('}')
	return nil
}

func (w *jsonWriter) array(o *heap.Object, indent string) error {
	r := w.r
	inner := indent + w.gap
	n, err := lengthOf(r, o)
	if err != nil {
		return err
	}
	w.sb.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			w.sb.WriteByte(',')
		}
		if w.gap != "" {
			w.sb.WriteByte('\n')
			w.sb.WriteString(inner)
		}
		ok, err := w.property(o, index(i), inner)
		if err != nil {
			return err
		}
		if !ok {
			w.sb.WriteString("null")
		}
	}
	if n > 0 && w.gap != "" {
		w.sb.WriteByte('\n')
		w.sb.WriteString(indent)
	}
	w.sb.WriteByte(']')
	return nil
}

func truncate(sb *strings.Builder, n int) {
	s := sb.String()[:n]
	sb.Reset()
	sb.WriteString(s)
}

// quoteJSON writes s as a JSON string literal. Unlike encoding/json it
// leaves <, > and & alone.
func quoteJSON(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch c {
			case '"':
				sb.WriteString(`\"`)
			case '\\':
				sb.WriteString(`\\`)
			case '\b':
				sb.WriteString(`\b`)
			case '\f':
				sb.WriteString(`\f`)
			case '\n':
				sb.WriteString(`\n`)
			case '\r':
				sb.WriteString(`\r`)
			case '\t':
				sb.WriteString(`\t`)
			default:
				if c < 0x20 {
					sb.WriteString(`\u00`)
					sb.WriteByte("0123456789abcdef"[c>>4])
					sb.WriteByte("0123456789abcdef"[c&0xf])
				} else {
					sb.WriteByte(c)
				}
			}
			i++
			continue
		}
		rn, size := heap.DecodeRune(s[i:])
		switch {
		case rn >= 0xD800 && rn <= 0xDFFF:
			sb.WriteString(`\u`)
			sb.WriteString(strconv.FormatInt(int64(rn), 16))
		case rn == utf8.RuneError && size == 1:
			sb.WriteString(`\ufffd`)
		default:
			sb.WriteString(s[i : i+size])
		}
		i += size
	}
	sb.WriteByte('"')
}
