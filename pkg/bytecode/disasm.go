package bytecode

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Disassemble writes a human-readable listing of m and, recursively, of
// every function blueprint in its constant pool.
func Disassemble(w io.Writer, m *Module) error {
	var builder strings.Builder
	disassembleModule(&builder, m)
	_, err := io.WriteString(w, builder.String())
	return err
}

// DisassembleString is Disassemble into a string.
func DisassembleString(m *Module) string {
	var builder strings.Builder
	disassembleModule(&builder, m)
	return builder.String()
}

func disassembleModule(builder *strings.Builder, m *Module) {
	builder.WriteString(fmt.Sprintf("== %s ==\n", m.Name))
	pc := 0
	lastLine := -1
	for pc < len(m.Code) {
		in, next, err := Decode(m.Code, pc)
		if err != nil {
			builder.WriteString(fmt.Sprintf("%04d      %v\n", pc, err))
			break
		}
		line, _ := m.Position(pc)
		if line != lastLine {
			builder.WriteString(fmt.Sprintf("%04d %4d ", pc, line))
			lastLine = line
		} else {
			builder.WriteString(fmt.Sprintf("%04d    | ", pc))
		}
		disassembleInstruction(builder, m, in, next)
		pc = next
	}

	if len(m.Data.Constants) > 0 {
		builder.WriteString("\n=== Constants ===\n")
		for i, c := range m.Data.Constants {
			builder.WriteString(fmt.Sprintf("K%-4d %-9s %s\n", i, c.Kind, describeConst(c)))
		}
	}
	for _, bp := range m.Blueprints() {
		builder.WriteString("\n")
		disassembleModule(builder, bp.Body)
	}
}

func disassembleInstruction(builder *strings.Builder, m *Module, in Instruction, next int) {
	shape := in.Op.Operands()
	if len(shape) == 0 {
		builder.WriteString(fmt.Sprintf("%s\n", in.Op))
		return
	}
	parts := make([]string, len(shape))
	for i, k := range shape {
		v := in.Args[i]
		switch k {
		case OperandVar:
			if v == NoVar {
				parts[i] = "-"
			} else {
				parts[i] = fmt.Sprintf("V%d('%s')", v, m.VarName(int(v)))
			}
		case OperandConst:
			if int(v) < len(m.Data.Constants) {
				parts[i] = fmt.Sprintf("K%d(%s)", v, describeConst(m.Data.Constants[v]))
			} else {
				parts[i] = fmt.Sprintf("K%d(?)", v)
			}
		case OperandImm:
			if isRelativeJump(in.Op) {
				parts[i] = fmt.Sprintf("%d (to %04d)", v, next+int(v))
			} else {
				parts[i] = formatOperand(k, v)
			}
		default:
			parts[i] = formatOperand(k, v)
		}
	}
	builder.WriteString(fmt.Sprintf("%-20s %s\n", in.Op, strings.Join(parts, ", ")))
}

func isRelativeJump(op OpCode) bool {
	return op == OpJmpRel || op == OpJmpIfAccRel || op == OpJmpIfNotAccRel
}

func describeConst(c Constant) string {
	switch c.Kind {
	case ConstUndefined, ConstNull:
		return c.Kind.String()
	case ConstBool:
		return strconv.FormatBool(c.Bool)
	case ConstNumber:
		return strconv.FormatFloat(c.Number, 'g', -1, 64)
	case ConstBigInt:
		return c.Str + "n"
	case ConstString:
		s := c.Str
		if len(s) > 40 {
			s = s[:37] + "..."
		}
		return strconv.Quote(s)
	case ConstRegex:
		return "/" + c.Str + "/" + c.Flags
	case ConstBlueprint:
		name := c.Blueprint.Name
		if name == "" {
			name = "<anonymous>"
		}
		return fmt.Sprintf("<fn %s/%d>", name, c.Blueprint.Length)
	case ConstTemplate:
		raws := make([]string, len(c.Parts))
		for i, p := range c.Parts {
			raws[i] = strconv.Quote(p.Raw)
		}
		return "`" + strings.Join(raws, ",") + "`"
	}
	return "?"
}
