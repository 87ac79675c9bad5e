package heap

import (
	"fmt"
	"math"
	"math/big"
)

// Kind is the type tag of a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBoolean
	KindNumber
	KindBigInt
	KindString
	KindSymbol
	KindObject

	// Internal markers, never observable by guest code.
	kindHole
	kindUninitialized
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindBigInt:
		return "bigint"
	case KindString:
		return "string"
	case KindSymbol:
		return "symbol"
	case KindObject:
		return "object"
	case kindHole:
		return "<hole>"
	case kindUninitialized:
		return "<uninitialized>"
	default:
		return fmt.Sprintf("<kind %d>", uint8(k))
	}
}

// Value is a JS value. Values are passed by value; object references share
// the underlying *Object whose lifetime is tracked by the Heap.
type Value struct {
	kind Kind
	num  float64
	str  string
	ref  interface{} // *Object, *Symbol or *big.Int
}

// Symbol is a unique symbol identity.
type Symbol struct {
	Description    string
	HasDescription bool
	Registered     bool // created through Symbol.for
	Private        bool // class private name
}

func (s *Symbol) String() string {
	return "Symbol(" + s.Description + ")"
}

// NewSymbolIdentity creates a fresh symbol.
func NewSymbolIdentity(description string) *Symbol {
	return &Symbol{Description: description, HasDescription: true}
}

// Well-known symbols are shared by every realm.
var (
	SymIterator      = &Symbol{Description: "Symbol.iterator", HasDescription: true}
	SymAsyncIterator = &Symbol{Description: "Symbol.asyncIterator", HasDescription: true}
	SymHasInstance   = &Symbol{Description: "Symbol.hasInstance", HasDescription: true}
	SymToPrimitive   = &Symbol{Description: "Symbol.toPrimitive", HasDescription: true}
	SymToStringTag   = &Symbol{Description: "Symbol.toStringTag", HasDescription: true}
	SymSpecies       = &Symbol{Description: "Symbol.species", HasDescription: true}
)

var (
	Undefined     = Value{kind: KindUndefined}
	Null          = Value{kind: KindNull}
	True          = Value{kind: KindBoolean, num: 1}
	False         = Value{kind: KindBoolean, num: 0}
	NaN           = Value{kind: KindNumber, num: math.NaN()}
	Hole          = Value{kind: kindHole}
	Uninitialized = Value{kind: kindUninitialized}
	EmptyString   = Value{kind: KindString}
)

func NumberValue(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

func IntValue(i int) Value {
	return Value{kind: KindNumber, num: float64(i)}
}

func BooleanValue(b bool) Value {
	if b {
		return True
	}
	return False
}

// NewString wraps a WTF-8 string, joining surrogate halves that meet at a
// concatenation boundary.
func NewString(s string) Value {
	return Value{kind: KindString, str: canonical(s)}
}

func NewBigInt(b *big.Int) Value {
	return Value{kind: KindBigInt, ref: b}
}

func NewSymbol(description string) Value {
	return Value{kind: KindSymbol, ref: NewSymbolIdentity(description)}
}

func SymbolValue(s *Symbol) Value {
	return Value{kind: KindSymbol, ref: s}
}

// ObjectValue wraps o; a nil object yields null.
func ObjectValue(o *Object) Value {
	if o == nil {
		return Null
	}
	return Value{kind: KindObject, ref: o}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsUndefined() bool     { return v.kind == KindUndefined }
func (v Value) IsNull() bool          { return v.kind == KindNull }
func (v Value) IsNullish() bool       { return v.kind == KindUndefined || v.kind == KindNull }
func (v Value) IsBoolean() bool       { return v.kind == KindBoolean }
func (v Value) IsNumber() bool        { return v.kind == KindNumber }
func (v Value) IsBigInt() bool        { return v.kind == KindBigInt }
func (v Value) IsString() bool        { return v.kind == KindString }
func (v Value) IsSymbol() bool        { return v.kind == KindSymbol }
func (v Value) IsObject() bool        { return v.kind == KindObject }
func (v Value) IsHole() bool          { return v.kind == kindHole }
func (v Value) IsUninitialized() bool { return v.kind == kindUninitialized }

// IsCallable reports whether v is a function object.
func (v Value) IsCallable() bool {
	if v.kind != KindObject {
		return false
	}
	return v.ref.(*Object).IsCallable()
}

func (v Value) AsNumber() float64 { return v.num }
func (v Value) AsBoolean() bool   { return v.num != 0 }
func (v Value) AsString() string  { return v.str }

func (v Value) AsBigInt() *big.Int {
	if v.kind != KindBigInt {
		return nil
	}
	return v.ref.(*big.Int)
}

func (v Value) AsSymbol() *Symbol {
	if v.kind != KindSymbol {
		return nil
	}
	return v.ref.(*Symbol)
}

// AsObject returns the referenced object, or nil for non-objects.
func (v Value) AsObject() *Object {
	if v.kind != KindObject {
		return nil
	}
	return v.ref.(*Object)
}

// Node returns the heap node referenced by v, if any.
func (v Value) Node() Node {
	if v.kind != KindObject {
		return nil
	}
	return v.ref.(*Object)
}

// TypeName is the result of the typeof operator.
func (v Value) TypeName() string {
	switch v.kind {
	case KindUndefined, kindHole, kindUninitialized:
		return "undefined"
	case KindNull:
		return "object"
	case KindObject:
		if v.ref.(*Object).IsCallable() {
			return "function"
		}
		return "object"
	default:
		return v.kind.String()
	}
}

// Inspect renders v for diagnostics and the CLI; it never calls guest code.
func (v Value) Inspect() string {
	return inspect(v, 0, map[*Object]bool{})
}

func (v Value) String() string { return v.Inspect() }
