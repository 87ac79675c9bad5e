// Package bytecode defines the instruction set, compiled modules, function
// blueprints and their on-disk encodings.
package bytecode

import (
	"math"
	"sort"
)

// ConstKind tags a constant pool entry.
type ConstKind uint8

const (
	ConstUndefined ConstKind = iota
	ConstNull
	ConstBool
	ConstNumber
	ConstBigInt
	ConstString
	ConstRegex
	ConstBlueprint
	ConstTemplate
)

func (k ConstKind) String() string {
	switch k {
	case ConstUndefined:
		return "undefined"
	case ConstNull:
		return "null"
	case ConstBool:
		return "boolean"
	case ConstNumber:
		return "number"
	case ConstBigInt:
		return "bigint"
	case ConstString:
		return "string"
	case ConstRegex:
		return "regex"
	case ConstBlueprint:
		return "blueprint"
	case ConstTemplate:
		return "template"
	}
	return "unknown"
}

// TemplatePart is one cooked/raw string pair of a template literal. Cooked
// is absent for invalid escapes in tagged templates.
type TemplatePart struct {
	Cooked      string
	CookedValid bool
	Raw         string
}

// Constant is one entry of the constant pool.
type Constant struct {
	Kind      ConstKind
	Bool      bool
	Number    float64
	Str       string // string value, bigint digits or regex pattern
	Flags     string // regex flags
	Parts     []TemplatePart
	Blueprint *FunctionBlueprint
}

func Undefined() Constant            { return Constant{Kind: ConstUndefined} }
func Null() Constant                 { return Constant{Kind: ConstNull} }
func Bool(b bool) Constant           { return Constant{Kind: ConstBool, Bool: b} }
func Number(f float64) Constant      { return Constant{Kind: ConstNumber, Number: f} }
func String(s string) Constant       { return Constant{Kind: ConstString, Str: s} }
func BigInt(digits string) Constant  { return Constant{Kind: ConstBigInt, Str: digits} }
func Regex(p, flags string) Constant { return Constant{Kind: ConstRegex, Str: p, Flags: flags} }

func Template(parts []TemplatePart) Constant {
	return Constant{Kind: ConstTemplate, Parts: parts}
}

func Blueprint(bp *FunctionBlueprint) Constant {
	return Constant{Kind: ConstBlueprint, Blueprint: bp}
}

// dedupable constants share a pool slot with equal entries.
func (c Constant) dedupable() bool {
	switch c.Kind {
	case ConstBlueprint, ConstTemplate, ConstRegex:
		return false
	case ConstNumber:
		return !(c.Number == 0 && math.Signbit(c.Number)) && !math.IsNaN(c.Number)
	}
	return true
}

type constKey struct {
	kind ConstKind
	b    bool
	n    float64
	s    string
}

// DataSection holds the name table and constant pool of a module.
type DataSection struct {
	VarNames  []string
	Constants []Constant
}

// LineEntry maps the instruction at PC to a source position.
type LineEntry struct {
	PC     int
	Line   int
	Column int
}

// Module is a compiled unit: the top-level script, a function body or a
// module body.
type Module struct {
	Name   string
	Strict bool
	Code   []byte
	Data   *DataSection
	Lines  []LineEntry
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name, Data: &DataSection{}}
}

// Position returns the source line and column of the instruction at pc.
func (m *Module) Position(pc int) (line, column int) {
	i := sort.Search(len(m.Lines), func(i int) bool { return m.Lines[i].PC > pc })
	if i == 0 {
		return 0, 0
	}
	e := m.Lines[i-1]
	return e.Line, e.Column
}

// VarName returns the name at index v.
func (m *Module) VarName(v int) string {
	if v < 0 || v >= len(m.Data.VarNames) {
		return ""
	}
	return m.Data.VarNames[v]
}

// Blueprints lists the function blueprints in the constant pool.
func (m *Module) Blueprints() []*FunctionBlueprint {
	var out []*FunctionBlueprint
	for _, c := range m.Data.Constants {
		if c.Kind == ConstBlueprint {
			out = append(out, c.Blueprint)
		}
	}
	return out
}

// FunctionFlags describe how a blueprint is invoked.
type FunctionFlags uint16

const (
	FuncArrow FunctionFlags = 1 << iota
	FuncGenerator
	FuncAsync
	FuncMethod
	FuncClassConstructor
	FuncDerived
	FuncStrict
	FuncSimpleParams // parameters bound directly from the argument list
	FuncGetter
	FuncSetter
	FuncFieldInit // class field initialiser
)

// FunctionBlueprint is the compiled, environment-independent form of a
// function literal. MakeClosure pairs it with a scope.
type FunctionBlueprint struct {
	Name       string
	Params     []string
	Length     int
	Flags      FunctionFlags
	Body       *Module
	SourceText string
}

func (bp *FunctionBlueprint) Has(f FunctionFlags) bool { return bp.Flags&f != 0 }

// Builder assembles a module.
type Builder struct {
	m          *Module
	varIndex   map[string]int
	constIndex map[constKey]int
	line, col  int
	lastLine   int
	lastCol    int
}

// NewBuilder starts a module called name.
func NewBuilder(name string) *Builder {
	return &Builder{
		m:          NewModule(name),
		varIndex:   map[string]int{},
		constIndex: map[constKey]int{},
		lastLine:   -1,
	}
}

// Module returns the module under construction.
func (b *Builder) Module() *Module { return b.m }

// PC is the address of the next instruction.
func (b *Builder) PC() int { return len(b.m.Code) }

// SetPosition sets the source position of subsequently emitted
// instructions.
func (b *Builder) SetPosition(line, column int) {
	b.line, b.col = line, column
}

// Emit appends an instruction and returns its address.
func (b *Builder) Emit(op OpCode, args ...int) int {
	pc := b.PC()
	if b.line != b.lastLine || b.col != b.lastCol {
		b.m.Lines = append(b.m.Lines, LineEntry{PC: pc, Line: b.line, Column: b.col})
		b.lastLine, b.lastCol = b.line, b.col
	}
	in := Instruction{Op: op, Args: make([]int64, len(args))}
	for i, a := range args {
		in.Args[i] = int64(a)
	}
	b.m.Code = Encode(b.m.Code, in)
	return pc
}

// PatchAddr rewrites address operand i of the instruction at pc.
func (b *Builder) PatchAddr(pc, i, target int) {
	op := OpCode(b.m.Code[pc])
	off := pc + op.OperandOffset(i)
	appendOperand(b.m.Code[:off], op.Operands()[i], int64(target))
}

// PatchRel rewrites the relative immediate operand i of the instruction at
// pc to reach target.
func (b *Builder) PatchRel(pc, i, target int) {
	op := OpCode(b.m.Code[pc])
	next := pc + op.Size()
	off := pc + op.OperandOffset(i)
	appendOperand(b.m.Code[:off], OperandImm, int64(target-next))
}

// Var interns a name.
func (b *Builder) Var(name string) int {
	if i, ok := b.varIndex[name]; ok {
		return i
	}
	i := len(b.m.Data.VarNames)
	b.m.Data.VarNames = append(b.m.Data.VarNames, name)
	b.varIndex[name] = i
	return i
}

// Const adds a constant, sharing slots between equal primitives.
func (b *Builder) Const(c Constant) int {
	var key constKey
	if c.dedupable() {
		key = constKey{kind: c.Kind, b: c.Bool, n: c.Number, s: c.Str}
		if i, ok := b.constIndex[key]; ok {
			return i
		}
	}
	i := len(b.m.Data.Constants)
	b.m.Data.Constants = append(b.m.Data.Constants, c)
	if c.dedupable() {
		b.constIndex[key] = i
	}
	return i
}
