package bytecode

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// NumRegisters is the register file size of a frame.
const NumRegisters = 32

// SpillRegister is reserved for PushAcc/PopReg sequences emitted when the
// allocator runs out of registers.
const SpillRegister = NumRegisters - 1

// NoAddr marks an absent catch or finally target.
const NoAddr = 0xFFFFFFFF

// NoVar marks an absent name operand.
const NoVar = 0xFFFF

// OperandKind is the format of one operand.
type OperandKind uint8

const (
	OperandReg OperandKind = iota + 1
	OperandVar
	OperandConst
	OperandImm
	OperandAddr
)

func (k OperandKind) String() string {
	switch k {
	case OperandReg:
		return "reg"
	case OperandVar:
		return "var"
	case OperandConst:
		return "const"
	case OperandImm:
		return "imm"
	case OperandAddr:
		return "addr"
	}
	return fmt.Sprintf("operand(%d)", uint8(k))
}

// Width is the in-memory size of the operand in bytes.
func (k OperandKind) Width() int {
	switch k {
	case OperandReg:
		return 1
	case OperandVar, OperandConst:
		return 2
	case OperandImm, OperandAddr:
		return 4
	}
	return 0
}

func (op OpCode) String() string {
	if op < numOpcodes {
		return opNames[op]
	}
	return fmt.Sprintf("UnknownOpcode(%d)", uint8(op))
}

// Valid reports whether op is a known opcode.
func (op OpCode) Valid() bool { return op < numOpcodes }

// Operands returns the operand shape of op.
func (op OpCode) Operands() []OperandKind {
	if op >= numOpcodes {
		return nil
	}
	return opShapes[op]
}

// Size is the in-memory length of an instruction including the opcode.
func (op OpCode) Size() int {
	n := 1
	for _, k := range op.Operands() {
		n += k.Width()
	}
	return n
}

// OperandOffset is the byte offset of operand i from the opcode byte.
func (op OpCode) OperandOffset(i int) int {
	off := 1
	for j, k := range op.Operands() {
		if j == i {
			return off
		}
		off += k.Width()
	}
	return -1
}

// OpcodeByName looks up an opcode by mnemonic.
func OpcodeByName(name string) (OpCode, bool) {
	for i, n := range opNames {
		if n == name {
			return OpCode(i), true
		}
	}
	return 0, false
}

// Instruction is a decoded instruction.
type Instruction struct {
	Op   OpCode
	Args []int64
}

func (in Instruction) String() string {
	var b strings.Builder
	b.WriteString(in.Op.String())
	for i, k := range in.Op.Operands() {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString(", ")
		}
		b.WriteString(formatOperand(k, in.Args[i]))
	}
	return b.String()
}

func formatOperand(k OperandKind, v int64) string {
	switch k {
	case OperandReg:
		return fmt.Sprintf("R%d", v)
	case OperandVar:
		return fmt.Sprintf("V%d", v)
	case OperandConst:
		return fmt.Sprintf("K%d", v)
	case OperandAddr:
		if v == NoAddr {
			return "-"
		}
		return fmt.Sprintf("@%04d", v)
	default:
		return fmt.Sprintf("%d", v)
	}
}

// Decode reads the instruction at pc.
func Decode(code []byte, pc int) (Instruction, int, error) {
	if pc < 0 || pc >= len(code) {
		return Instruction{}, pc, fmt.Errorf("%w: pc %d outside code of length %d", ErrCorrupt, pc, len(code))
	}
	op := OpCode(code[pc])
	if !op.Valid() {
		return Instruction{}, pc, fmt.Errorf("%w: unknown opcode %d at %d", ErrCorrupt, code[pc], pc)
	}
	if pc+op.Size() > len(code) {
		return Instruction{}, pc, fmt.Errorf("%w: truncated %s at %d", ErrCorrupt, op, pc)
	}
	shape := op.Operands()
	in := Instruction{Op: op, Args: make([]int64, len(shape))}
	off := pc + 1
	for i, k := range shape {
		in.Args[i] = readOperand(code[off:], k)
		off += k.Width()
	}
	return in, off, nil
}

func readOperand(b []byte, k OperandKind) int64 {
	switch k {
	case OperandReg:
		return int64(b[0])
	case OperandVar, OperandConst:
		return int64(binary.LittleEndian.Uint16(b))
	case OperandImm:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	case OperandAddr:
		return int64(binary.LittleEndian.Uint32(b))
	}
	return 0
}

func appendOperand(code []byte, k OperandKind, v int64) []byte {
	switch k {
	case OperandReg:
		return append(code, byte(v))
	case OperandVar, OperandConst:
		return binary.LittleEndian.AppendUint16(code, uint16(v))
	case OperandImm:
		return binary.LittleEndian.AppendUint32(code, uint32(int32(v)))
	case OperandAddr:
		return binary.LittleEndian.AppendUint32(code, uint32(v))
	}
	return code
}

// Encode appends the in-memory form of in to code.
func Encode(code []byte, in Instruction) []byte {
	code = append(code, byte(in.Op))
	for i, k := range in.Op.Operands() {
		var v int64
		if i < len(in.Args) {
			v = in.Args[i]
		}
		code = appendOperand(code, k, v)
	}
	return code
}

// Operand readers used by the interpreter loop; pc points at the operand.

func ReadU8(code []byte, pc int) int { return int(code[pc]) }

func ReadU16(code []byte, pc int) int { return int(binary.LittleEndian.Uint16(code[pc:])) }

func ReadI32(code []byte, pc int) int { return int(int32(binary.LittleEndian.Uint32(code[pc:]))) }

func ReadU32(code []byte, pc int) int { return int(binary.LittleEndian.Uint32(code[pc:])) }
