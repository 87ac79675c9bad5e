package driver

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"cinder/pkg/heap"
	"cinder/pkg/modules"
	"cinder/pkg/realm"
)

// NativePrefix marks canonical paths of modules implemented in Go.
const NativePrefix = "native:"

// ModuleBuilder provides the declarative API for building native modules.
// Each call defines one export on the module's exports object.
type ModuleBuilder struct {
	realm  *realm.Realm
	target *heap.Object
	conv   *ValueConverter
	err    error
}

// NativeModule is a module declared in Go code. Its builder runs once per
// realm, the first time the module is required.
type NativeModule struct {
	name    string
	builder func(*ModuleBuilder)
}

// DefineNativeModule declares a module importable as require(name).
func DefineNativeModule(name string, builder func(*ModuleBuilder)) *NativeModule {
	return &NativeModule{name: name, builder: builder}
}

func (n *NativeModule) Name() string { return n.name }

// Realm returns the realm the module is being built in.
func (m *ModuleBuilder) Realm() *realm.Realm { return m.realm }

func (m *ModuleBuilder) fail(name string, err error) {
	if m.err == nil {
		m.err = fmt.Errorf("export %s: %w", name, err)
	}
}

func (m *ModuleBuilder) define(name string, v heap.Value, flags heap.PropFlags) {
	if !m.target.DefineOwnProperty(heap.StringKey(name), heap.DataDesc(v, flags)) {
		m.fail(name, fmt.Errorf("already defined"))
	}
}

// Const adds a read-only export converted from a Go value.
func (m *ModuleBuilder) Const(name string, value interface{}) *ModuleBuilder {
	v, err := m.conv.ToValue(reflect.ValueOf(value))
	if err != nil {
		m.fail(name, err)
		return m
	}
	m.define(name, v, heap.Enumerable)
	return m
}

// Var adds a writable export.
func (m *ModuleBuilder) Var(name string, value interface{}) *ModuleBuilder {
	v, err := m.conv.ToValue(reflect.ValueOf(value))
	if err != nil {
		m.fail(name, err)
		return m
	}
	m.define(name, v, heap.DefaultFlags)
	return m
}

// Function adds a Go function. Arguments are converted to the parameter
// types; a trailing error result becomes a thrown Error.
func (m *ModuleBuilder) Function(name string, fn interface{}) *ModuleBuilder {
	f, err := m.conv.function(name, reflect.ValueOf(fn))
	if err != nil {
		m.fail(name, err)
		return m
	}
	m.define(name, heap.ObjectValue(f), heap.DefaultFlags)
	return m
}

// Native adds a function using the builtin calling convention directly.
func (m *ModuleBuilder) Native(name string, arity int, fn realm.NativeFunc) *ModuleBuilder {
	m.define(name, heap.ObjectValue(m.realm.NewNativeFunction(name, arity, fn)), heap.DefaultFlags)
	return m
}

// Namespace adds a nested plain object export built by build.
func (m *ModuleBuilder) Namespace(name string, build func(ns *ModuleBuilder)) *ModuleBuilder {
	ns := &ModuleBuilder{realm: m.realm, target: m.realm.NewObject(), conv: m.conv}
	build(ns)
	if ns.err != nil {
		m.fail(name, ns.err)
		return m
	}
	m.define(name, heap.ObjectValue(ns.target), heap.DefaultFlags)
	return m
}

// Class adds a constructor backed by a Go constructor function returning a
// struct pointer. Exported methods of the struct become prototype methods
// and exported fields become accessors, named after their json tags.
//
// Usage: m.Class("Point", func(x, y float64) *Point { return &Point{X: x, Y: y} })
func (m *ModuleBuilder) Class(name string, constructor interface{}) *ModuleBuilder {
	ctor := reflect.ValueOf(constructor)
	if ctor.Kind() != reflect.Func || ctor.Type().NumOut() == 0 || ctor.Type().Out(0).Kind() != reflect.Ptr {
		m.fail(name, fmt.Errorf("constructor must be a function returning a pointer"))
		return m
	}
	class, err := m.conv.class(name, ctor)
	if err != nil {
		m.fail(name, err)
		return m
	}
	m.define(name, heap.ObjectValue(class), heap.DefaultFlags)
	return m
}

// NativeModuleResolver resolves the bare names of registered native
// modules to NativePrefix paths.
type NativeModuleResolver struct {
	mutex    sync.RWMutex
	modules  map[string]*NativeModule
	priority int
}

func NewNativeModuleResolver() *NativeModuleResolver {
	return &NativeModuleResolver{modules: map[string]*NativeModule{}, priority: 10}
}

// Register adds m, replacing any module of the same name.
func (r *NativeModuleResolver) Register(m *NativeModule) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.modules[m.name] = m
}

// List returns the registered module names in order.
func (r *NativeModuleResolver) List() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *NativeModuleResolver) Name() string  { return "Native" }
func (r *NativeModuleResolver) Priority() int { return r.priority }

func (r *NativeModuleResolver) lookup(specifier string) *NativeModule {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.modules[strings.TrimPrefix(specifier, NativePrefix)]
}

func (r *NativeModuleResolver) CanResolve(specifier string) bool {
	return r.lookup(specifier) != nil
}

func (r *NativeModuleResolver) Resolve(specifier, referrer string) (*modules.ResolvedModule, error) {
	m := r.lookup(specifier)
	if m == nil {
		return nil, fmt.Errorf("%s: %w", specifier, modules.ErrNotFound)
	}
	return &modules.ResolvedModule{
		Specifier: specifier,
		Path:      NativePrefix + m.name,
		Resolver:  r.Name(),
		LoadTime:  time.Now(),
	}, nil
}

// Instantiate runs the builder of module name against rec's exports.
func (r *NativeModuleResolver) Instantiate(rlm *realm.Realm, name string, rec *realm.ModuleRecord) error {
	m := r.lookup(name)
	if m == nil {
		return rlm.NewError("Cannot find module '%s'", name)
	}
	exports := rec.Exports().AsObject()
	if exports == nil {
		exports = rlm.NewObject()
		rec.Module.Put("exports", heap.ObjectValue(exports))
	}
	b := &ModuleBuilder{realm: rlm, target: exports, conv: NewValueConverter(rlm)}
	m.builder(b)
	if b.err != nil {
		return rlm.NewError("native module %s: %v", name, b.err)
	}
	log.Debugf("instantiated native module %s", name)
	return nil
}

// ValueConverter handles conversion between Go values and heap values.
type ValueConverter struct {
	realm   *realm.Realm
	classes map[reflect.Type]*heap.Object
}

func NewValueConverter(r *realm.Realm) *ValueConverter {
	return &ValueConverter{realm: r, classes: map[reflect.Type]*heap.Object{}}
}

var (
	valueType = reflect.TypeOf(heap.Value{})
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// hostObject is the internal slot of objects wrapping a Go struct pointer.
type hostObject struct {
	v reflect.Value
}

func (*hostObject) EachRef(func(heap.Node)) {}

// ToValue converts a Go value. Structs without a registered class become
// plain objects of their exported fields.
func (c *ValueConverter) ToValue(v reflect.Value) (heap.Value, error) {
	r := c.realm
	if !v.IsValid() {
		return heap.Null, nil
	}
	if v.Type() == valueType {
		return v.Interface().(heap.Value), nil
	}
	switch v.Kind() {
	case reflect.Bool:
		return heap.BooleanValue(v.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return heap.NumberValue(float64(v.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return heap.NumberValue(float64(v.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return heap.NumberValue(v.Float()), nil
	case reflect.String:
		return heap.NewString(v.String()), nil
	case reflect.Interface:
		if v.IsNil() {
			return heap.Null, nil
		}
		return c.ToValue(v.Elem())
	case reflect.Ptr:
		if v.IsNil() {
			return heap.Null, nil
		}
		if class, ok := c.classes[v.Type()]; ok {
			proto, _ := class.FindData("prototype")
			o := r.Heap.NewObjectOf("Object", proto.AsObject(), &hostObject{v: v})
			return heap.ObjectValue(o), nil
		}
		return c.ToValue(v.Elem())
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return heap.Null, nil
		}
		elems := make([]heap.Value, v.Len())
		for i := range elems {
			e, err := c.ToValue(v.Index(i))
			if err != nil {
				return heap.Undefined, err
			}
			elems[i] = e
		}
		return heap.ObjectValue(r.NewArray(elems)), nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return heap.Undefined, fmt.Errorf("unsupported map key type %s", v.Type().Key())
		}
		if v.IsNil() {
			return heap.Null, nil
		}
		o := r.NewObject()
		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		for _, k := range keys {
			e, err := c.ToValue(v.MapIndex(k))
			if err != nil {
				return heap.Undefined, err
			}
			o.Put(k.String(), e)
		}
		return heap.ObjectValue(o), nil
	case reflect.Struct:
		o := r.NewObject()
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			name, ok := propertyName(t.Field(i))
			if !ok {
				continue
			}
			e, err := c.ToValue(v.Field(i))
			if err != nil {
				return heap.Undefined, err
			}
			o.Put(name, e)
		}
		return heap.ObjectValue(o), nil
	case reflect.Func:
		if v.IsNil() {
			return heap.Null, nil
		}
		f, err := c.function("", v)
		if err != nil {
			return heap.Undefined, err
		}
		return heap.ObjectValue(f), nil
	}
	return heap.Undefined, fmt.Errorf("unsupported Go type %s", v.Type())
}

// FromValue converts v to Go type t. Guest functions become Go functions
// that call back into the realm.
func (c *ValueConverter) FromValue(v heap.Value, t reflect.Type) (reflect.Value, error) {
	r := c.realm
	if t == valueType {
		return reflect.ValueOf(v), nil
	}
	switch t.Kind() {
	case reflect.Bool:
		return reflect.ValueOf(heap.ToBoolean(v)).Convert(t), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f, err := r.Heap.ToNumber(v)
		if err != nil {
			return reflect.Value{}, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			f = 0
		}
		out := reflect.New(t).Elem()
		if t.Kind() >= reflect.Uint && t.Kind() <= reflect.Uint64 {
			out.SetUint(uint64(math.Trunc(f)))
		} else {
			out.SetInt(int64(math.Trunc(f)))
		}
		return out, nil
	case reflect.Float32, reflect.Float64:
		f, err := r.Heap.ToNumber(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(f).Convert(t), nil
	case reflect.String:
		s, err := r.Heap.ToString(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(s).Convert(t), nil
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return c.export(v)
		}
	case reflect.Ptr:
		if v.IsNullish() {
			return reflect.Zero(t), nil
		}
		if o := v.AsObject(); o != nil {
			if h, ok := o.Internal.(*hostObject); ok && h.v.Type() == t {
				return h.v, nil
			}
		}
	case reflect.Slice:
		if v.IsNullish() {
			return reflect.Zero(t), nil
		}
		o := v.AsObject()
		if o == nil || !o.IsArray() {
			return reflect.Value{}, r.NewTypeError("%s is not an array", v.Inspect())
		}
		out := reflect.MakeSlice(t, int(o.Len()), int(o.Len()))
		for i := 0; i < out.Len(); i++ {
			e, err := c.FromValue(o.ElementAt(uint32(i)), t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(e)
		}
		return out, nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			break
		}
		if v.IsNullish() {
			return reflect.Zero(t), nil
		}
		o := v.AsObject()
		if o == nil {
			return reflect.Value{}, r.NewTypeError("%s is not an object", v.Inspect())
		}
		out := reflect.MakeMap(t)
		for _, k := range o.OwnKeys() {
			if k.IsSymbol() {
				continue
			}
			d, ok := o.GetOwnProperty(k)
			if !ok || !d.Enumerable() {
				continue
			}
			pv, err := r.GetKey(v, k)
			if err != nil {
				return reflect.Value{}, err
			}
			e, err := c.FromValue(pv, t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(reflect.ValueOf(k.Name()).Convert(t.Key()), e)
		}
		return out, nil
	case reflect.Func:
		if v.IsNullish() {
			return reflect.Zero(t), nil
		}
		if !v.IsCallable() {
			return reflect.Value{}, r.NewTypeError("%s is not a function", v.Inspect())
		}
		return c.guestFunction(v, t), nil
	}
	return reflect.Value{}, r.NewTypeError("cannot convert %s to %s", v.Inspect(), t)
}

// export converts v to its natural Go representation for interface{}
// parameters.
func (c *ValueConverter) export(v heap.Value) (reflect.Value, error) {
	anyType := reflect.TypeOf((*interface{})(nil)).Elem()
	var out interface{}
	switch {
	case v.IsNullish():
		return reflect.Zero(anyType), nil
	case v.IsBoolean():
		out = v.AsBoolean()
	case v.IsNumber():
		out = v.AsNumber()
	case v.IsString():
		out = v.AsString()
	case v.IsObject() && v.AsObject().IsArray():
		s, err := c.FromValue(v, reflect.TypeOf([]interface{}{}))
		if err != nil {
			return reflect.Value{}, err
		}
		out = s.Interface()
	case v.IsObject() && !v.IsCallable():
		m, err := c.FromValue(v, reflect.TypeOf(map[string]interface{}{}))
		if err != nil {
			return reflect.Value{}, err
		}
		out = m.Interface()
	default:
		out = v
	}
	r := reflect.New(anyType).Elem()
	r.Set(reflect.ValueOf(out))
	return r, nil
}

// guestFunction wraps a callable guest value as a Go function of type t.
// A guest exception surfaces as a panic unless t returns an error.
func (c *ValueConverter) guestFunction(fn heap.Value, t reflect.Type) reflect.Value {
	return reflect.MakeFunc(t, func(in []reflect.Value) []reflect.Value {
		args := make([]heap.Value, len(in))
		for i, a := range in {
			v, err := c.ToValue(a)
			if err != nil {
				return c.results(t, heap.Undefined, err)
			}
			args[i] = v
		}
		v, err := c.realm.Call(fn, heap.Undefined, args...)
		return c.results(t, v, err)
	})
}

func (c *ValueConverter) results(t reflect.Type, v heap.Value, err error) []reflect.Value {
	out := make([]reflect.Value, t.NumOut())
	for i := range out {
		out[i] = reflect.Zero(t.Out(i))
	}
	last := t.NumOut() - 1
	if last >= 0 && t.Out(last) == errorType {
		if err != nil {
			out[last] = reflect.ValueOf(&err).Elem()
			return out
		}
		last--
	} else if err != nil {
		panic(err)
	}
	if last >= 0 {
		rv, cerr := c.FromValue(v, t.Out(0))
		if cerr == nil {
			out[0] = rv
		}
	}
	return out
}

// function wraps a Go function as a builtin.
func (c *ValueConverter) function(name string, fn reflect.Value) (*heap.Object, error) {
	if fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", fn.Type())
	}
	t := fn.Type()
	arity := t.NumIn()
	if t.IsVariadic() {
		arity--
	}
	return c.realm.NewNativeFunction(name, arity, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		return c.invoke(fn, nil, args)
	}), nil
}

// invoke converts args, calls fn with recv prepended when set, and converts
// the results. A guest exception raised inside a callback without an error
// result is recovered here.
func (c *ValueConverter) invoke(fn reflect.Value, recv *reflect.Value, args []heap.Value) (result heap.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			perr, ok := p.(error)
			if !ok {
				panic(p)
			}
			if _, guest := c.realm.ToException(perr); !guest {
				panic(p)
			}
			result, err = heap.Undefined, perr
		}
	}()
	t := fn.Type()
	var in []reflect.Value
	first := 0
	if recv != nil {
		in = append(in, *recv)
		first = 1
	}
	fixed := t.NumIn() - first
	if t.IsVariadic() {
		fixed--
	}
	for i := 0; i < fixed; i++ {
		pt := t.In(first + i)
		if i >= len(args) {
			in = append(in, reflect.Zero(pt))
			continue
		}
		v, err := c.FromValue(args[i], pt)
		if err != nil {
			return heap.Undefined, err
		}
		in = append(in, v)
	}
	if t.IsVariadic() {
		et := t.In(t.NumIn() - 1).Elem()
		for i := fixed; i < len(args); i++ {
			v, err := c.FromValue(args[i], et)
			if err != nil {
				return heap.Undefined, err
			}
			in = append(in, v)
		}
	}
	out := fn.Call(in)
	if n := len(out); n > 0 && t.Out(n-1) == errorType {
		if err, _ := out[n-1].Interface().(error); err != nil {
			if _, ok := c.realm.ToException(err); ok {
				return heap.Undefined, err
			}
			return heap.Undefined, c.realm.NewError("%s", err.Error())
		}
		out = out[:n-1]
	}
	if len(out) == 0 {
		return heap.Undefined, nil
	}
	return c.ToValue(out[0])
}

// class builds a constructor for the struct pointer type ctor returns.
func (c *ValueConverter) class(name string, ctor reflect.Value) (*heap.Object, error) {
	r := c.realm
	ptr := ctor.Type().Out(0)
	proto := r.NewObject()
	class := r.NewNativeConstructor(name, ctor.Type().NumIn(), nil, func(args []heap.Value, _ *heap.Object, r *realm.Realm) (heap.Value, error) {
		return c.invoke(ctor, nil, args)
	}, proto)
	c.classes[ptr] = class

	this := func(v heap.Value) (reflect.Value, error) {
		if o := v.AsObject(); o != nil {
			if h, ok := o.Internal.(*hostObject); ok && h.v.Type() == ptr {
				return h.v, nil
			}
		}
		return reflect.Value{}, r.NewTypeError("%s is not a %s", v.Inspect(), name)
	}

	for i := 0; i < ptr.NumMethod(); i++ {
		method := ptr.Method(i)
		jsName := lowerFirst(method.Name)
		r.Method(proto, jsName, method.Type.NumIn()-1, func(args []heap.Value, thisv heap.Value, r *realm.Realm) (heap.Value, error) {
			recv, err := this(thisv)
			if err != nil {
				return heap.Undefined, err
			}
			return c.invoke(method.Func, &recv, args)
		})
	}

	st := ptr.Elem()
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		prop, ok := propertyName(field)
		if !ok {
			continue
		}
		index := field.Index
		get := r.NewNativeFunction("get "+prop, 0, func(_ []heap.Value, thisv heap.Value, r *realm.Realm) (heap.Value, error) {
			recv, err := this(thisv)
			if err != nil {
				return heap.Undefined, err
			}
			return c.ToValue(recv.Elem().FieldByIndex(index))
		})
		set := r.NewNativeFunction("set "+prop, 1, func(args []heap.Value, thisv heap.Value, r *realm.Realm) (heap.Value, error) {
			recv, err := this(thisv)
			if err != nil {
				return heap.Undefined, err
			}
			v := heap.Undefined
			if len(args) > 0 {
				v = args[0]
			}
			fv, err := c.FromValue(v, field.Type)
			if err != nil {
				return heap.Undefined, err
			}
			recv.Elem().FieldByIndex(index).Set(fv)
			return heap.Undefined, nil
		})
		proto.DefineAccessor(heap.StringKey(prop), get, set)
	}
	return class, nil
}

// propertyName extracts the property name from a json tag or uses the
// field name. Unexported and "-" fields are skipped.
func propertyName(field reflect.StructField) (string, bool) {
	if !field.IsExported() {
		return "", false
	}
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name, true
	}
	return field.Name, true
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
