package bytecode

import (
	"fmt"
)

// Verify checks that every instruction of m decodes and that its operands
// stay inside the frame and the module: registers below NumRegisters, name
// and constant indices inside the data section, jump targets on
// instruction boundaries. Blueprint bodies are checked recursively.
func Verify(m *Module) error {
	starts := map[int]bool{len(m.Code): true}
	var code []Instruction
	var pcs []int
	for pc := 0; pc < len(m.Code); {
		in, next, err := Decode(m.Code, pc)
		if err != nil {
			return err
		}
		starts[pc] = true
		code = append(code, in)
		pcs = append(pcs, pc)
		pc = next
	}
	for i, in := range code {
		next := pcs[i] + in.Op.Size()
		for j, k := range in.Op.Operands() {
			if err := m.verifyOperand(in, j, k, next, starts); err != nil {
				return fmt.Errorf("%w: %s at %d: %v", ErrCorrupt, in.Op, pcs[i], err)
			}
		}
	}
	for i, c := range m.Data.Constants {
		if c.Kind != ConstBlueprint {
			continue
		}
		if c.Blueprint == nil || c.Blueprint.Body == nil {
			return fmt.Errorf("%w: constant %d: blueprint without body", ErrCorrupt, i)
		}
		if err := Verify(c.Blueprint.Body); err != nil {
			return fmt.Errorf("function %q: %w", c.Blueprint.Name, err)
		}
	}
	return nil
}

func (m *Module) verifyOperand(in Instruction, i int, k OperandKind, next int, starts map[int]bool) error {
	v := in.Args[i]
	switch k {
	case OperandReg:
		if v >= NumRegisters {
			return fmt.Errorf("register r%d out of range", v)
		}
	case OperandVar:
		if v == NoVar && in.Op == OpEnterTry {
			return nil
		}
		if v >= int64(len(m.Data.VarNames)) {
			return fmt.Errorf("name index %d out of range", v)
		}
	case OperandConst:
		if v >= int64(len(m.Data.Constants)) {
			return fmt.Errorf("constant index %d out of range", v)
		}
	case OperandAddr:
		if v != NoAddr && !starts[int(v)] {
			return fmt.Errorf("jump target %d is not an instruction", v)
		}
	case OperandImm:
		switch in.Op {
		case OpJmpRel, OpJmpIfAccRel, OpJmpIfNotAccRel:
			if !starts[next+int(v)] {
				return fmt.Errorf("relative jump %+d lands outside the code", v)
			}
		}
	}
	return nil
}
