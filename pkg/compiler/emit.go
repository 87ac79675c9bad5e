package compiler

import (
	"math"
	"math/big"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"

	"cinder/pkg/bytecode"
)

type destKind uint8

const (
	destAcc destKind = iota
	destReg
	destVar
	destNone
)

// dest is where an expression leaves its value.
type dest struct {
	kind destKind
	reg  Register
	name int
}

var (
	intoAcc = dest{kind: destAcc}
	discard = dest{kind: destNone}
)

func intoReg(r Register) dest { return dest{kind: destReg, reg: r} }
func intoVar(v int) dest      { return dest{kind: destVar, name: v} }

func (c *Compiler) emit(op bytecode.OpCode, args ...int) int {
	return c.b.Emit(op, args...)
}

// settle moves a value computed into the accumulator to d.
func (c *Compiler) settle(d dest) {
	switch d.kind {
	case destReg:
		c.emit(bytecode.OpStar, int(d.reg))
	case destVar:
		c.emit(bytecode.OpStoreEnvAcc, d.name)
	}
}

// patchHere points address operand i of the jump at pc to the next
// instruction.
func (c *Compiler) patchHere(pc, i int) {
	c.b.PatchAddr(pc, i, c.b.PC())
}

func (c *Compiler) patchAllHere(pcs []int, i int) {
	for _, pc := range pcs {
		c.patchHere(pc, i)
	}
}

func (c *Compiler) patchRelHere(pc int) {
	c.b.PatchRel(pc, 0, c.b.PC())
}

// loadConst materialises a constant into d.
func (c *Compiler) loadConst(k bytecode.Constant, d dest) {
	if d.kind == destNone {
		return
	}
	if d.kind == destAcc {
		switch k.Kind {
		case bytecode.ConstUndefined:
			c.emit(bytecode.OpLdaUndefined)
			return
		case bytecode.ConstNull:
			c.emit(bytecode.OpLdaNull)
			return
		case bytecode.ConstBool:
			if k.Bool {
				c.emit(bytecode.OpLdaTrue)
			} else {
				c.emit(bytecode.OpLdaFalse)
			}
			return
		}
	}
	idx := c.constant(k)
	switch d.kind {
	case destReg:
		c.emit(bytecode.OpLdaConstReg, int(d.reg), idx)
	case destVar:
		c.emit(bytecode.OpLdaConstVar, d.name, idx)
	default:
		c.emit(bytecode.OpLdaConstAcc, idx)
	}
}

// literalConstant returns the constant a literal expression denotes.
func literalConstant(e ast.Expression) (bytecode.Constant, bool) {
	switch e := e.(type) {
	case *ast.NumberLiteral:
		switch v := e.Value.(type) {
		case int64:
			return bytecode.Number(float64(v)), true
		case float64:
			return bytecode.Number(v), true
		case *big.Int:
			return bytecode.BigInt(v.String()), true
		}
	case *ast.StringLiteral:
		return bytecode.String(jsString(e.Value)), true
	case *ast.BooleanLiteral:
		return bytecode.Bool(e.Value), true
	case *ast.NullLiteral:
		return bytecode.Null(), true
	case *ast.UnaryExpression:
		if e.Operator == token.MINUS {
			if k, ok := literalConstant(e.Operand); ok && k.Kind == bytecode.ConstNumber {
				return bytecode.Number(-k.Number), true
			}
		}
	}
	return bytecode.Constant{}, false
}

// testResult is the outcome of lowering a condition.
type testResult uint8

const (
	testCond testResult = iota // value in acc
	testAlways
	testNever
)

// test evaluates a condition, folding constant ones.
func (c *Compiler) test(e ast.Expression) testResult {
	if k, ok := literalConstant(e); ok {
		if constTruthy(k) {
			return testAlways
		}
		return testNever
	}
	if u, ok := e.(*ast.UnaryExpression); ok && u.Operator == token.NOT {
		switch c.testConstOnly(u.Operand) {
		case testAlways:
			return testNever
		case testNever:
			return testAlways
		}
	}
	c.expr(e, intoAcc)
	return testCond
}

func (c *Compiler) testConstOnly(e ast.Expression) testResult {
	if k, ok := literalConstant(e); ok {
		if constTruthy(k) {
			return testAlways
		}
		return testNever
	}
	return testCond
}

func constTruthy(k bytecode.Constant) bool {
	switch k.Kind {
	case bytecode.ConstBool:
		return k.Bool
	case bytecode.ConstNumber:
		return k.Number != 0 && !math.IsNaN(k.Number)
	case bytecode.ConstString:
		return k.Str != ""
	case bytecode.ConstBigInt:
		return k.Str != "0"
	case bytecode.ConstUndefined, bytecode.ConstNull:
		return false
	}
	return true
}

// --- break and continue targets ---

type targetKind uint8

const (
	targetLoop targetKind = iota
	targetSwitch
	targetBlock
)

// jumpTarget is a statement that break or continue can leave.
type jumpTarget struct {
	kind   targetKind
	labels []string
	index  int
}

func (c *Compiler) pushTarget(kind targetKind, labels []string, index int) {
	c.targets = append(c.targets, &jumpTarget{kind: kind, labels: labels, index: index})
}

func (c *Compiler) popTarget() {
	c.targets = c.targets[:len(c.targets)-1]
}

func (c *Compiler) findLabel(name string) *jumpTarget {
	for i := len(c.targets) - 1; i >= 0; i-- {
		for _, l := range c.targets[i].labels {
			if l == name {
				return c.targets[i]
			}
		}
	}
	return nil
}

func (c *Compiler) nextLabelIndex() int {
	idx := c.labelCount
	c.labelCount++
	return idx
}

// pushScope emits a PushScope whose break and continue addresses are
// patched by the caller.
func (c *Compiler) pushScope(flags int, label int) int {
	return c.emit(bytecode.OpPushScope, flags, label, bytecode.NoAddr, bytecode.NoAddr)
}
