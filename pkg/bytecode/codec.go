package bytecode

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/xxh3"
)

// Form selects the instruction-stream encoding of a bytecode file.
type Form uint8

const (
	// FormNormal stores each operand as a type tag and a fixed-width value.
	FormNormal Form = iota
	// FormTight stores operands as LEB128 varints.
	FormTight
)

func (f Form) String() string {
	if f == FormTight {
		return "tight"
	}
	return "normal"
}

// Magic numbers open every bytecode file.
var (
	MagicNormal = [8]byte{'a', 'd', 'c', '2', '2', '4', '3', 'd'}
	MagicTight  = [8]byte{'9', '9', '6', '1', 'c', '4', '9', 'c'}
)

var (
	ErrBadMagic = errors.New("bytecode: bad magic")
	ErrCorrupt  = errors.New("bytecode: corrupt module")
)

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
	// String constants are WTF-8 and may hold lone surrogates.
	dm, err := cbor.DecOptions{UTF8: cbor.UTF8DecodeInvalid}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

type wireData struct {
	Name      string      `cbor:"1,keyasint"`
	VarNames  []string    `cbor:"2,keyasint"`
	Constants []wireConst `cbor:"3,keyasint"`
	Lines     []wireLine  `cbor:"4,keyasint,omitempty"`
	Strict    bool        `cbor:"5,keyasint,omitempty"`
}

type wireLine struct {
	_      struct{} `cbor:",toarray"`
	PC     int
	Line   int
	Column int
}

type wireConst struct {
	Kind   uint8          `cbor:"1,keyasint"`
	Bool   bool           `cbor:"2,keyasint,omitempty"`
	Number float64        `cbor:"3,keyasint"`
	Str    string         `cbor:"4,keyasint,omitempty"`
	Flags  string         `cbor:"5,keyasint,omitempty"`
	Parts  []wirePart     `cbor:"6,keyasint,omitempty"`
	Fn     *wireBlueprint `cbor:"7,keyasint,omitempty"`
}

type wirePart struct {
	_           struct{} `cbor:",toarray"`
	Cooked      string
	CookedValid bool
	Raw         string
}

type wireBlueprint struct {
	Name   string   `cbor:"1,keyasint"`
	Params []string `cbor:"2,keyasint,omitempty"`
	Length int      `cbor:"3,keyasint"`
	Flags  uint16   `cbor:"4,keyasint"`
	Source string   `cbor:"5,keyasint,omitempty"`
	Body   []byte   `cbor:"6,keyasint"`
}

// WriteModule encodes m in the given form.
func WriteModule(w io.Writer, m *Module, form Form) error {
	data, err := encodeData(m, form)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	magic := MagicNormal
	if form == FormTight {
		magic = MagicTight
	}
	bw.Write(magic[:])
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(len(data)))
	bw.Write(u32[:])
	bw.Write(data)

	var stream []byte
	count := 0
	for pc := 0; pc < len(m.Code); {
		in, next, err := Decode(m.Code, pc)
		if err != nil {
			return err
		}
		stream = appendRecord(stream, in, form)
		count++
		pc = next
	}
	binary.LittleEndian.PutUint32(u32[:], uint32(count))
	bw.Write(u32[:])
	bw.Write(stream)
	return bw.Flush()
}

// MarshalModule is WriteModule into a byte slice.
func MarshalModule(m *Module, form Form) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteModule(&buf, m, form); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Fingerprint hashes the normal-form encoding of m.
func Fingerprint(m *Module) (uint64, error) {
	b, err := MarshalModule(m, FormNormal)
	if err != nil {
		return 0, err
	}
	return xxh3.Hash(b), nil
}

func encodeData(m *Module, form Form) ([]byte, error) {
	wd := wireData{Name: m.Name, VarNames: m.Data.VarNames, Strict: m.Strict}
	if wd.VarNames == nil {
		wd.VarNames = []string{}
	}
	wd.Constants = make([]wireConst, len(m.Data.Constants))
	for i, c := range m.Data.Constants {
		wc := wireConst{Kind: uint8(c.Kind), Bool: c.Bool, Number: c.Number, Str: c.Str, Flags: c.Flags}
		for _, p := range c.Parts {
			wc.Parts = append(wc.Parts, wirePart{Cooked: p.Cooked, CookedValid: p.CookedValid, Raw: p.Raw})
		}
		if c.Kind == ConstBlueprint {
			body, err := MarshalModule(c.Blueprint.Body, form)
			if err != nil {
				return nil, fmt.Errorf("blueprint %q: %w", c.Blueprint.Name, err)
			}
			wc.Fn = &wireBlueprint{
				Name:   c.Blueprint.Name,
				Params: c.Blueprint.Params,
				Length: c.Blueprint.Length,
				Flags:  uint16(c.Blueprint.Flags),
				Source: c.Blueprint.SourceText,
				Body:   body,
			}
		}
		wd.Constants[i] = wc
	}
	for _, l := range m.Lines {
		wd.Lines = append(wd.Lines, wireLine{PC: l.PC, Line: l.Line, Column: l.Column})
	}
	return cborEncMode.Marshal(wd)
}

func appendRecord(out []byte, in Instruction, form Form) []byte {
	out = append(out, byte(in.Op))
	shape := in.Op.Operands()
	if form == FormTight {
		for i, k := range shape {
			if k == OperandImm {
				out = binary.AppendVarint(out, in.Args[i])
			} else {
				out = binary.AppendUvarint(out, uint64(in.Args[i]))
			}
		}
		return out
	}
	out = append(out, byte(len(shape)))
	for i, k := range shape {
		out = append(out, byte(k))
		out = appendOperand(out, k, in.Args[i])
	}
	return out
}

// Bounds on the untrusted length fields of a bytecode file.
const (
	MaxDataSection  = 64 << 20
	MaxInstructions = 16 << 20
)

// ReadModule decodes a module written by WriteModule in either form and
// verifies it, so a corrupt file fails with ErrCorrupt before any of it
// runs.
func ReadModule(r io.Reader) (*Module, error) {
	m, err := readModule(r)
	if err != nil {
		return nil, err
	}
	if err := Verify(m); err != nil {
		return nil, err
	}
	return m, nil
}

func readModule(r io.Reader) (*Module, error) {
	br := bufio.NewReader(r)
	var magic [8]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	var form Form
	switch magic {
	case MagicNormal:
		form = FormNormal
	case MagicTight:
		form = FormTight
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadMagic, magic[:])
	}
	var u32 [4]byte
	if _, err := io.ReadFull(br, u32[:]); err != nil {
		return nil, fmt.Errorf("%w: data length: %v", ErrCorrupt, err)
	}
	size := binary.LittleEndian.Uint32(u32[:])
	if size > MaxDataSection {
		return nil, fmt.Errorf("%w: data section of %d bytes", ErrCorrupt, size)
	}
	data, err := io.ReadAll(io.LimitReader(br, int64(size)))
	if err != nil {
		return nil, fmt.Errorf("%w: data section: %v", ErrCorrupt, err)
	}
	if len(data) != int(size) {
		return nil, fmt.Errorf("%w: data section: %d of %d bytes", ErrCorrupt, len(data), size)
	}
	m, err := decodeData(data)
	if err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(br, u32[:]); err != nil {
		return nil, fmt.Errorf("%w: instruction count: %v", ErrCorrupt, err)
	}
	count := binary.LittleEndian.Uint32(u32[:])
	if count > MaxInstructions {
		return nil, fmt.Errorf("%w: %d instructions", ErrCorrupt, count)
	}
	for i := uint32(0); i < count; i++ {
		in, err := readRecord(br, form)
		if err != nil {
			return nil, fmt.Errorf("%w: instruction %d: %v", ErrCorrupt, i, err)
		}
		m.Code = Encode(m.Code, in)
	}
	return m, nil
}

// UnmarshalModule is ReadModule over a byte slice.
func UnmarshalModule(b []byte) (*Module, error) {
	return ReadModule(bytes.NewReader(b))
}

func decodeData(data []byte) (*Module, error) {
	var wd wireData
	if err := cborDecMode.Unmarshal(data, &wd); err != nil {
		return nil, fmt.Errorf("%w: data section: %v", ErrCorrupt, err)
	}
	m := NewModule(wd.Name)
	m.Strict = wd.Strict
	m.Data.VarNames = wd.VarNames
	for _, wc := range wd.Constants {
		c := Constant{Kind: ConstKind(wc.Kind), Bool: wc.Bool, Number: wc.Number, Str: wc.Str, Flags: wc.Flags}
		if c.Kind > ConstTemplate {
			return nil, fmt.Errorf("%w: constant kind %d", ErrCorrupt, wc.Kind)
		}
		for _, p := range wc.Parts {
			c.Parts = append(c.Parts, TemplatePart{Cooked: p.Cooked, CookedValid: p.CookedValid, Raw: p.Raw})
		}
		if c.Kind == ConstBlueprint {
			if wc.Fn == nil {
				return nil, fmt.Errorf("%w: blueprint constant without body", ErrCorrupt)
			}
			body, err := readModule(bytes.NewReader(wc.Fn.Body))
			if err != nil {
				return nil, err
			}
			c.Blueprint = &FunctionBlueprint{
				Name:       wc.Fn.Name,
				Params:     wc.Fn.Params,
				Length:     wc.Fn.Length,
				Flags:      FunctionFlags(wc.Fn.Flags),
				SourceText: wc.Fn.Source,
				Body:       body,
			}
		}
		m.Data.Constants = append(m.Data.Constants, c)
	}
	for _, l := range wd.Lines {
		m.Lines = append(m.Lines, LineEntry{PC: l.PC, Line: l.Line, Column: l.Column})
	}
	return m, nil
}

func readRecord(br *bufio.Reader, form Form) (Instruction, error) {
	b, err := br.ReadByte()
	if err != nil {
		return Instruction{}, err
	}
	op := OpCode(b)
	if !op.Valid() {
		return Instruction{}, fmt.Errorf("unknown opcode %d", b)
	}
	shape := op.Operands()
	in := Instruction{Op: op, Args: make([]int64, len(shape))}
	if form == FormTight {
		for i, k := range shape {
			if k == OperandImm {
				in.Args[i], err = binary.ReadVarint(br)
			} else {
				var u uint64
				u, err = binary.ReadUvarint(br)
				in.Args[i] = int64(u)
			}
			if err != nil {
				return in, err
			}
		}
		return in, nil
	}
	n, err := br.ReadByte()
	if err != nil {
		return in, err
	}
	if int(n) != len(shape) {
		return in, fmt.Errorf("%s: operand count %d, want %d", op, n, len(shape))
	}
	var buf [4]byte
	for i, k := range shape {
		tag, err := br.ReadByte()
		if err != nil {
			return in, err
		}
		if OperandKind(tag) != k {
			return in, fmt.Errorf("%s: operand %d has tag %d, want %s", op, i, tag, k)
		}
		if _, err := io.ReadFull(br, buf[:k.Width()]); err != nil {
			return in, err
		}
		in.Args[i] = readOperand(buf[:], k)
	}
	return in, nil
}
