package heap

import (
	"sort"
)

// Internal is the kind-specific state of an object: a closure, a generator
// frame, promise state, a map's entries. Implementations retain what they
// hold through the heap and report it from EachRef.
type Internal interface {
	EachRef(visit func(Node))
}

// Callable is the internal slot of function objects.
type Callable interface {
	Internal
	FunctionName() string
	IsConstructor() bool
}

// PrimitiveBox is the internal slot of String, Number, Boolean, Symbol and
// BigInt wrapper objects.
type PrimitiveBox struct {
	Value Value
}

func (*PrimitiveBox) EachRef(func(Node)) {}

// maxDenseGap bounds how far past the end an index write may grow the dense
// element segment; farther writes become ordinary properties.
const maxDenseGap = 1 << 16

// Object is a heap-allocated JS object.
type Object struct {
	Header
	h          *Heap
	proto      *Object
	class      string
	props      []property
	index      map[PropertyKey]int
	privates   []privateSlot
	elements   []Value
	isArray    bool
	length     uint32
	lengthRO   bool
	extensible bool
	sealed     bool
	frozen     bool

	Internal Internal
}

// NewObject allocates an ordinary object.
func (h *Heap) NewObject(proto *Object) *Object {
	return h.NewObjectOf("Object", proto, nil)
}

// NewObjectOf allocates an object of the given class with an internal slot.
func (h *Heap) NewObjectOf(class string, proto *Object, internal Internal) *Object {
	o := &Object{h: h, class: class, extensible: true, Internal: internal}
	if proto != nil {
		o.proto = proto
		h.RetainNode(proto)
	}
	h.Track(o)
	return o
}

// NewArray allocates an array holding elems.
func (h *Heap) NewArray(proto *Object, elems []Value) *Object {
	o := h.NewObjectOf("Array", proto, nil)
	o.isArray = true
	o.elements = make([]Value, len(elems))
	for i, v := range elems {
		o.elements[i] = v
		h.Retain(v)
	}
	o.length = uint32(len(elems))
	return o
}

func (o *Object) Heap() *Heap        { return o.h }
func (o *Object) Class() string      { return o.class }
func (o *Object) SetClass(c string)  { o.class = c }
func (o *Object) Prototype() *Object { return o.proto }
func (o *Object) IsArray() bool      { return o.isArray }
func (o *Object) Extensible() bool   { return o.extensible }
func (o *Object) IsFrozen() bool     { return o.frozen }
func (o *Object) IsSealed() bool     { return o.sealed }
func (o *Object) Value() Value       { return ObjectValue(o) }

// IsCallable reports whether the object has call behavior.
func (o *Object) IsCallable() bool {
	_, ok := o.Internal.(Callable)
	return ok
}

// Callable returns the call behavior, or nil.
func (o *Object) Callable() Callable {
	c, _ := o.Internal.(Callable)
	return c
}

// IsConstructor reports whether the object can be used with new.
func (o *Object) IsConstructor() bool {
	c, ok := o.Internal.(Callable)
	return ok && c.IsConstructor()
}

// PrimitiveValue returns the boxed primitive of a wrapper object.
func (o *Object) PrimitiveValue() (Value, bool) {
	if b, ok := o.Internal.(*PrimitiveBox); ok {
		return b.Value, true
	}
	return Undefined, false
}

func (o *Object) stringData() (string, bool) {
	if b, ok := o.Internal.(*PrimitiveBox); ok && b.Value.kind == KindString {
		return b.Value.str, true
	}
	return "", false
}

// EnumerateOutgoingRefs implements Node.
func (o *Object) EnumerateOutgoingRefs(visit func(Node)) {
	if o.proto != nil {
		visit(o.proto)
	}
	for i := range o.props {
		p := &o.props[i]
		if n := p.value.Node(); n != nil {
			visit(n)
		}
		if p.getter != nil {
			visit(p.getter)
		}
		if p.setter != nil {
			visit(p.setter)
		}
	}
	for i := range o.privates {
		p := &o.privates[i]
		if n := p.value.Node(); n != nil {
			visit(n)
		}
		if p.getter != nil {
			visit(p.getter)
		}
		if p.setter != nil {
			visit(p.setter)
		}
	}
	for _, e := range o.elements {
		if n := e.Node(); n != nil {
			visit(n)
		}
	}
	if o.Internal != nil {
		o.Internal.EachRef(visit)
	}
}

// ClearRefs implements Node.
func (o *Object) ClearRefs() {
	o.proto = nil
	o.props = nil
	o.index = nil
	o.privates = nil
	o.elements = nil
	o.length = 0
	o.Internal = nil
}

// --- Own properties ---

func (o *Object) findProp(key PropertyKey) int {
	if o.index == nil {
		return -1
	}
	if i, ok := o.index[key]; ok {
		return i
	}
	return -1
}

func (o *Object) addProp(p property) {
	if o.index == nil {
		o.index = make(map[PropertyKey]int)
	}
	o.index[p.key] = len(o.props)
	o.props = append(o.props, p)
	o.h.Retain(p.value)
	o.h.retainObj(p.getter)
	o.h.retainObj(p.setter)
}

func (o *Object) removeProp(i int) {
	p := o.props[i]
	delete(o.index, p.key)
	copy(o.props[i:], o.props[i+1:])
	o.props[len(o.props)-1] = property{}
	o.props = o.props[:len(o.props)-1]
	for j := i; j < len(o.props); j++ {
		o.index[o.props[j].key] = j
	}
	o.h.Release(p.value)
	o.h.releaseObj(p.getter)
	o.h.releaseObj(p.setter)
}

func (o *Object) elementFlags() PropFlags {
	switch {
	case o.frozen:
		return Enumerable
	case o.sealed:
		return Writable | Enumerable
	default:
		return DefaultFlags
	}
}

// lookupOwn is the allocation-free form of GetOwnProperty.
func (o *Object) lookupOwn(k PropertyKey) (v Value, getter, setter *Object, flags PropFlags, accessor, found bool) {
	if o.isArray || o.class == "String" {
		if idx, ok := k.ArrayIndex(); ok {
			if o.isArray && idx < uint32(len(o.elements)) && o.elements[idx].kind != kindHole {
				return o.elements[idx], nil, nil, o.elementFlags(), false, true
			}
			if s, ok := o.stringData(); ok {
				if ch, ok := CharAt(s, int(idx)); ok {
					return NewString(ch), nil, nil, Enumerable, false, true
				}
			}
		} else if !k.IsSymbol() && k.name == "length" {
			if o.isArray {
				f := Writable
				if o.frozen || o.lengthRO {
					f = 0
				}
				return NumberValue(float64(o.length)), nil, nil, f, false, true
			}
			if s, ok := o.stringData(); ok {
				return IntValue(UTF16Len(s)), nil, nil, 0, false, true
			}
		}
	}
	i := o.findProp(k)
	if i < 0 {
		return Undefined, nil, nil, 0, false, false
	}
	p := &o.props[i]
	return p.value, p.getter, p.setter, p.flags, p.accessor, true
}

// GetOwnProperty returns the own descriptor for k.
func (o *Object) GetOwnProperty(k PropertyKey) (Descriptor, bool) {
	v, g, s, flags, accessor, found := o.lookupOwn(k)
	if !found {
		return Descriptor{}, false
	}
	if accessor {
		return AccessorDesc(g, s, flags), true
	}
	return DataDesc(v, flags), true
}

func (o *Object) HasOwnProperty(k PropertyKey) bool {
	_, _, _, _, _, found := o.lookupOwn(k)
	return found
}

// DefineOwnProperty validates and applies desc; it reports false when the
// definition is not allowed (non-extensible target, non-configurable
// existing property).
func (o *Object) DefineOwnProperty(k PropertyKey, desc Descriptor) bool {
	if o.isArray {
		if idx, ok := k.ArrayIndex(); ok {
			return o.defineElement(idx, k, desc)
		}
		if !k.IsSymbol() && k.name == "length" {
			return o.defineLength(desc)
		}
	}
	if o.class == "String" {
		if _, _, _, _, _, found := o.lookupOwn(k); found && o.findProp(k) < 0 {
			// string indices and length are immutable
			return !desc.IsAccessor() && (desc.Has&HasValue == 0 || SameValue(desc.Value, o.mustOwn(k)))
		}
	}

	i := o.findProp(k)
	if i < 0 {
		if !o.extensible {
			return false
		}
		p := property{key: k}
		o.applyDescriptor(&p, desc, true)
		o.addProp(p)
		return true
	}
	p := &o.props[i]
	if !o.compatible(p, desc) {
		return false
	}
	old := *p
	o.applyDescriptor(p, desc, false)
	o.h.Retain(p.value)
	o.h.retainObj(p.getter)
	o.h.retainObj(p.setter)
	o.h.Release(old.value)
	o.h.releaseObj(old.getter)
	o.h.releaseObj(old.setter)
	return true
}

func (o *Object) mustOwn(k PropertyKey) Value {
	v, _, _, _, _, _ := o.lookupOwn(k)
	return v
}

// compatible implements the non-configurable checks of
// ValidateAndApplyPropertyDescriptor.
func (o *Object) compatible(p *property, d Descriptor) bool {
	if p.flags&Configurable != 0 {
		return true
	}
	if d.Has&HasConfigurable != 0 && d.Flags&Configurable != 0 {
		return false
	}
	if d.Has&HasEnumerable != 0 && (d.Flags&Enumerable != 0) != (p.flags&Enumerable != 0) {
		return false
	}
	if d.IsAccessor() {
		if !p.accessor {
			return false
		}
		if d.Has&HasGet != 0 && d.Getter != p.getter {
			return false
		}
		if d.Has&HasSet != 0 && d.Setter != p.setter {
			return false
		}
		return true
	}
	if d.IsData() {
		if p.accessor {
			return false
		}
		if p.flags&Writable == 0 {
			if d.Has&HasWritable != 0 && d.Flags&Writable != 0 {
				return false
			}
			if d.Has&HasValue != 0 && !SameValue(d.Value, p.value) {
				return false
			}
		}
	}
	return true
}

func (o *Object) applyDescriptor(p *property, d Descriptor, fresh bool) {
	if d.IsAccessor() {
		if !p.accessor {
			p.value = Undefined
			p.accessor = true
			p.flags &^= Writable
		}
		if d.Has&HasGet != 0 {
			p.getter = d.Getter
		}
		if d.Has&HasSet != 0 {
			p.setter = d.Setter
		}
	} else if d.IsData() || fresh {
		if p.accessor {
			p.accessor = false
			p.getter, p.setter = nil, nil
		}
		if d.Has&HasValue != 0 {
			p.value = d.Value
		} else if fresh {
			p.value = Undefined
		}
		if d.Has&HasWritable != 0 {
			p.flags = p.flags&^Writable | d.Flags&Writable
		}
	}
	if d.Has&HasEnumerable != 0 {
		p.flags = p.flags&^Enumerable | d.Flags&Enumerable
	}
	if d.Has&HasConfigurable != 0 {
		p.flags = p.flags&^Configurable | d.Flags&Configurable
	}
}

func (o *Object) defineElement(idx uint32, k PropertyKey, desc Descriptor) bool {
	plain := !desc.IsAccessor() && desc.Has&HasValue != 0 &&
		(desc.Has&HasWritable == 0 || desc.Flags&Writable != 0) &&
		(desc.Has&HasEnumerable == 0 || desc.Flags&Enumerable != 0) &&
		(desc.Has&HasConfigurable == 0 || desc.Flags&Configurable != 0)
	exists := idx < uint32(len(o.elements)) && o.elements[idx].kind != kindHole
	if exists {
		if o.frozen {
			return !desc.IsAccessor() && (desc.Has&HasValue == 0 || SameValue(desc.Value, o.elements[idx]))
		}
		if plain {
			o.h.swap(o.elements[idx], desc.Value)
			o.elements[idx] = desc.Value
			return true
		}
		// attributes change: move the element into the property store
		v := o.elements[idx]
		o.elements[idx] = Hole
		p := property{key: k, value: v, flags: DefaultFlags}
		o.applyDescriptor(&p, desc, false)
		o.addProp(p)
		o.h.Release(v)
		return true
	}
	if i := o.findProp(k); i >= 0 {
		p := &o.props[i]
		if !o.compatible(p, desc) {
			return false
		}
		old := *p
		o.applyDescriptor(p, desc, false)
		o.h.Retain(p.value)
		o.h.retainObj(p.getter)
		o.h.retainObj(p.setter)
		o.h.Release(old.value)
		o.h.releaseObj(old.getter)
		o.h.releaseObj(old.setter)
		return true
	}
	if !o.extensible {
		return false
	}
	if idx >= o.length && (o.lengthRO || o.frozen) {
		return false
	}
	if plain && idx < uint32(len(o.elements))+maxDenseGap {
		for uint32(len(o.elements)) < idx {
			o.elements = append(o.elements, Hole)
		}
		if idx == uint32(len(o.elements)) {
			o.elements = append(o.elements, desc.Value)
		} else {
			o.elements[idx] = desc.Value
		}
		o.h.Retain(desc.Value)
	} else {
		p := property{key: k}
		o.applyDescriptor(&p, desc, true)
		o.addProp(p)
	}
	if idx >= o.length {
		o.length = idx + 1
	}
	return true
}

func (o *Object) defineLength(desc Descriptor) bool {
	if desc.IsAccessor() {
		return false
	}
	if desc.Has&HasValue != 0 {
		n := desc.Value.num
		if desc.Value.kind != KindNumber || n < 0 || n != float64(uint32(n)) {
			return false
		}
		if !o.SetLength(uint32(n)) {
			return false
		}
	}
	if desc.Has&HasWritable != 0 && desc.Flags&Writable == 0 {
		o.lengthRO = true
	}
	return true
}

// SetLength truncates or extends an array.
func (o *Object) SetLength(n uint32) bool {
	if !o.isArray {
		return false
	}
	if n == o.length {
		return true
	}
	if o.frozen || o.lengthRO {
		return false
	}
	if n < uint32(len(o.elements)) {
		for _, v := range o.elements[n:] {
			o.h.Release(v)
		}
		for i := range o.elements[n:] {
			o.elements[int(n)+i] = Value{}
		}
		o.elements = o.elements[:n]
	}
	if n < o.length {
		for i := len(o.props) - 1; i >= 0; i-- {
			if idx, ok := o.props[i].key.ArrayIndex(); ok && idx >= n {
				o.removeProp(i)
			}
		}
	}
	o.length = n
	return true
}

// Delete removes an own property; it reports false for non-configurable ones.
func (o *Object) Delete(k PropertyKey) bool {
	if o.isArray {
		if idx, ok := k.ArrayIndex(); ok && idx < uint32(len(o.elements)) && o.elements[idx].kind != kindHole {
			if o.sealed || o.frozen {
				return false
			}
			o.h.Release(o.elements[idx])
			o.elements[idx] = Hole
			return true
		}
		if !k.IsSymbol() && k.name == "length" {
			return false
		}
	}
	if s, ok := o.stringData(); ok {
		if idx, isIdx := k.ArrayIndex(); isIdx && int(idx) < UTF16Len(s) {
			return false
		}
		if !k.IsSymbol() && k.name == "length" {
			return false
		}
	}
	i := o.findProp(k)
	if i < 0 {
		return true
	}
	if o.props[i].flags&Configurable == 0 {
		return false
	}
	o.removeProp(i)
	return true
}

// OwnKeys returns own keys in ECMAScript order: integer indices ascending,
// then strings in insertion order, then symbols in insertion order.
func (o *Object) OwnKeys() []PropertyKey {
	var indices []uint32
	for i, v := range o.elements {
		if v.kind != kindHole {
			indices = append(indices, uint32(i))
		}
	}
	if s, ok := o.stringData(); ok {
		for i, n := 0, UTF16Len(s); i < n; i++ {
			indices = append(indices, uint32(i))
		}
	}
	var strs, syms []PropertyKey
	for _, p := range o.props {
		if p.key.IsSymbol() {
			if !p.key.sym.Private {
				syms = append(syms, p.key)
			}
			continue
		}
		if idx, ok := p.key.ArrayIndex(); ok {
			indices = append(indices, idx)
			continue
		}
		strs = append(strs, p.key)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	keys := make([]PropertyKey, 0, len(indices)+len(strs)+len(syms)+1)
	for _, idx := range indices {
		keys = append(keys, IndexKey(idx))
	}
	if o.isArray {
		keys = append(keys, StringKey("length"))
	} else if _, ok := o.stringData(); ok {
		keys = append(keys, StringKey("length"))
	}
	keys = append(keys, strs...)
	return append(keys, syms...)
}

// SetPrototypeOf changes the prototype; it reports false for
// non-extensible objects and for changes that would create a cycle.
func (o *Object) SetPrototypeOf(proto *Object) bool {
	if proto == o.proto {
		return true
	}
	if !o.extensible {
		return false
	}
	for p := proto; p != nil; p = p.proto {
		if p == o {
			return false
		}
	}
	o.h.retainObj(proto)
	o.h.releaseObj(o.proto)
	o.proto = proto
	return true
}

func (o *Object) PreventExtensions() { o.extensible = false }

func (o *Object) Seal() {
	o.extensible = false
	o.sealed = true
	for i := range o.props {
		o.props[i].flags &^= Configurable
	}
}

func (o *Object) Freeze() {
	o.Seal()
	o.frozen = true
	o.lengthRO = true
	for i := range o.props {
		if !o.props[i].accessor {
			o.props[i].flags &^= Writable
		}
	}
}

// TestIntegrity implements Object.isFrozen / Object.isSealed for objects
// whose attributes were changed property by property.
func (o *Object) TestIntegrity(frozen bool) bool {
	if o.extensible {
		return false
	}
	if frozen && o.frozen || !frozen && o.sealed {
		return true
	}
	for _, v := range o.elements {
		if v.kind != kindHole {
			return false
		}
	}
	for _, p := range o.props {
		if p.flags&Configurable != 0 {
			return false
		}
		if frozen && !p.accessor && p.flags&Writable != 0 {
			return false
		}
	}
	return true
}

// --- Convenience setters used by builtins and the VM ---

// SetOwn creates or overwrites an own data property without consulting the
// prototype chain. Existing attributes are preserved.
func (o *Object) SetOwn(k PropertyKey, v Value) bool {
	if i := o.findProp(k); i >= 0 {
		p := &o.props[i]
		if p.accessor || p.flags&Writable == 0 {
			return false
		}
		o.h.swap(p.value, v)
		p.value = v
		return true
	}
	return o.DefineOwnProperty(k, DataDesc(v, DefaultFlags))
}

// Put is SetOwn with a string key.
func (o *Object) Put(name string, v Value) bool {
	return o.SetOwn(StringKey(name), v)
}

// DefineHidden defines a writable, configurable, non-enumerable property.
func (o *Object) DefineHidden(name string, v Value) {
	o.DefineOwnProperty(StringKey(name), DataDesc(v, HiddenFlags))
}

// DefineHiddenKey is DefineHidden for arbitrary keys.
func (o *Object) DefineHiddenKey(k PropertyKey, v Value) {
	o.DefineOwnProperty(k, DataDesc(v, HiddenFlags))
}

// DefineReadOnly defines a non-writable, non-enumerable, non-configurable
// property.
func (o *Object) DefineReadOnly(name string, v Value) {
	o.DefineOwnProperty(StringKey(name), DataDesc(v, 0))
}

// DefineAccessor defines a non-enumerable accessor pair.
func (o *Object) DefineAccessor(k PropertyKey, get, set *Object) {
	o.DefineOwnProperty(k, AccessorDesc(get, set, Configurable))
}

// --- Arrays ---

// Len returns the array length.
func (o *Object) Len() uint32 { return o.length }

// ElementAt returns the element at i, Undefined for holes and out of range.
// Non-dense indices are looked up in the property store.
func (o *Object) ElementAt(i uint32) Value {
	if i < uint32(len(o.elements)) && o.elements[i].kind != kindHole {
		return o.elements[i]
	}
	if j := o.findProp(IndexKey(i)); j >= 0 && !o.props[j].accessor {
		return o.props[j].value
	}
	return Undefined
}

// IsDense reports whether every index below the length is a plain element,
// which lets callers skip accessor checks.
func (o *Object) IsDense() bool {
	if !o.isArray || uint32(len(o.elements)) != o.length {
		return false
	}
	for _, v := range o.elements {
		if v.kind == kindHole {
			return false
		}
	}
	return true
}

// Append pushes v onto an array.
func (o *Object) Append(v Value) bool {
	if o.frozen || o.lengthRO || !o.extensible {
		return false
	}
	if uint32(len(o.elements)) != o.length {
		return o.defineElement(o.length, IndexKey(o.length), DataDesc(v, DefaultFlags))
	}
	o.elements = append(o.elements, v)
	o.length++
	o.h.Retain(v)
	return true
}

// AppendHole grows an array by one hole.
func (o *Object) AppendHole() {
	if uint32(len(o.elements)) == o.length {
		o.elements = append(o.elements, Hole)
	}
	o.length++
}

// Values copies the elements of an array, holes read as undefined.
func (o *Object) Values() []Value {
	out := make([]Value, o.length)
	for i := uint32(0); i < o.length; i++ {
		out[i] = o.ElementAt(i)
	}
	return out
}

// --- Private elements ---

func (o *Object) findPrivate(name *Symbol) int {
	for i := range o.privates {
		if o.privates[i].name == name {
			return i
		}
	}
	return -1
}

// HasPrivate reports whether the private name is installed on o.
func (o *Object) HasPrivate(name *Symbol) bool { return o.findPrivate(name) >= 0 }

// DefinePrivate installs a private field or method. It reports false when
// the name is already present.
func (o *Object) DefinePrivate(name *Symbol, v Value, method bool) bool {
	if o.findPrivate(name) >= 0 {
		return false
	}
	o.privates = append(o.privates, privateSlot{name: name, value: v, method: method})
	o.h.Retain(v)
	return true
}

// DefinePrivateAccessor installs or completes a private accessor pair.
func (o *Object) DefinePrivateAccessor(name *Symbol, get, set *Object) {
	if i := o.findPrivate(name); i >= 0 {
		p := &o.privates[i]
		if get != nil {
			o.h.retainObj(get)
			o.h.releaseObj(p.getter)
			p.getter = get
		}
		if set != nil {
			o.h.retainObj(set)
			o.h.releaseObj(p.setter)
			p.setter = set
		}
		return
	}
	o.privates = append(o.privates, privateSlot{name: name, getter: get, setter: set, accessor: true})
	o.h.retainObj(get)
	o.h.retainObj(set)
}

// GetPrivate reads a private element. ok is false when the name is absent.
func (o *Object) GetPrivate(name *Symbol) (v Value, getter *Object, accessor, ok bool) {
	i := o.findPrivate(name)
	if i < 0 {
		return Undefined, nil, false, false
	}
	p := &o.privates[i]
	return p.value, p.getter, p.accessor, true
}

// SetPrivate writes a private field. It returns the setter for accessors;
// writable is false for methods and getter-only accessors.
func (o *Object) SetPrivate(name *Symbol, v Value) (setter *Object, writable, ok bool) {
	i := o.findPrivate(name)
	if i < 0 {
		return nil, false, false
	}
	p := &o.privates[i]
	if p.accessor {
		return p.setter, p.setter != nil, true
	}
	if p.method {
		return nil, false, true
	}
	o.h.swap(p.value, v)
	p.value = v
	return nil, true, true
}
