package compiler

import (
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"

	"cinder/pkg/bytecode"
	"cinder/pkg/scope"
)

// binOps are the three forms of a binary operator.
type binOps struct {
	varVar, regAcc, regReg bytecode.OpCode
}

var binaryOps = map[token.Token]binOps{
	token.PLUS:                 {bytecode.OpAddVarVar, bytecode.OpAddRegAcc, bytecode.OpAddRegReg},
	token.MINUS:                {bytecode.OpSubVarVar, bytecode.OpSubRegAcc, bytecode.OpSubRegReg},
	token.MULTIPLY:             {bytecode.OpMulVarVar, bytecode.OpMulRegAcc, bytecode.OpMulRegReg},
	token.SLASH:                {bytecode.OpDivVarVar, bytecode.OpDivRegAcc, bytecode.OpDivRegReg},
	token.REMAINDER:            {bytecode.OpModVarVar, bytecode.OpModRegAcc, bytecode.OpModRegReg},
	token.EXPONENT:             {bytecode.OpExpVarVar, bytecode.OpExpRegAcc, bytecode.OpExpRegReg},
	token.AND:                  {bytecode.OpBitAndVarVar, bytecode.OpBitAndRegAcc, bytecode.OpBitAndRegReg},
	token.OR:                   {bytecode.OpBitOrVarVar, bytecode.OpBitOrRegAcc, bytecode.OpBitOrRegReg},
	token.EXCLUSIVE_OR:         {bytecode.OpBitXorVarVar, bytecode.OpBitXorRegAcc, bytecode.OpBitXorRegReg},
	token.SHIFT_LEFT:           {bytecode.OpShlVarVar, bytecode.OpShlRegAcc, bytecode.OpShlRegReg},
	token.SHIFT_RIGHT:          {bytecode.OpShrVarVar, bytecode.OpShrRegAcc, bytecode.OpShrRegReg},
	token.UNSIGNED_SHIFT_RIGHT: {bytecode.OpUshrVarVar, bytecode.OpUshrRegAcc, bytecode.OpUshrRegReg},
	token.EQUAL:                {bytecode.OpEqVarVar, bytecode.OpEqRegAcc, bytecode.OpEqRegReg},
	token.NOT_EQUAL:            {bytecode.OpNeqVarVar, bytecode.OpNeqRegAcc, bytecode.OpNeqRegReg},
	token.STRICT_EQUAL:         {bytecode.OpStrictEqVarVar, bytecode.OpStrictEqRegAcc, bytecode.OpStrictEqRegReg},
	token.STRICT_NOT_EQUAL:     {bytecode.OpStrictNeqVarVar, bytecode.OpStrictNeqRegAcc, bytecode.OpStrictNeqRegReg},
	token.LESS:                 {bytecode.OpLtVarVar, bytecode.OpLtRegAcc, bytecode.OpLtRegReg},
	token.LESS_OR_EQUAL:        {bytecode.OpLteVarVar, bytecode.OpLteRegAcc, bytecode.OpLteRegReg},
	token.GREATER:              {bytecode.OpGtVarVar, bytecode.OpGtRegAcc, bytecode.OpGtRegReg},
	token.GREATER_OR_EQUAL:     {bytecode.OpGteVarVar, bytecode.OpGteRegAcc, bytecode.OpGteRegReg},
	token.IN:                   {bytecode.OpInVarVar, bytecode.OpInRegAcc, bytecode.OpInRegReg},
	token.INSTANCEOF:           {bytecode.OpInstanceOfVarVar, bytecode.OpInstanceOfRegAcc, bytecode.OpInstanceOfRegReg},
}

// expr compiles e and leaves its value in d.
func (c *Compiler) expr(e ast.Expression, d dest) {
	if k, ok := literalConstant(e); ok {
		c.loadConst(k, d)
		return
	}
	switch e := e.(type) {
	case *ast.Identifier:
		v := c.name(e.Name.String())
		if d.kind == destReg {
			c.emit(bytecode.OpLoadEnvReg, int(d.reg), v)
			return
		}
		c.emit(bytecode.OpLoadEnvAcc, v)
		c.settle(d)
	case *ast.ThisExpression:
		c.emit(bytecode.OpLdaThis)
		c.settle(d)
	case *ast.RegExpLiteral:
		c.emit(bytecode.OpLdaConstAcc, c.constant(bytecode.Regex(e.Pattern, e.Flags)))
		c.settle(d)
	case *ast.TemplateLiteral:
		if e.Tag != nil {
			c.taggedTemplate(e, d)
		} else {
			c.template(e, d)
		}
	case *ast.ArrayLiteral:
		c.arrayLiteral(e, d)
	case *ast.ObjectLiteral:
		c.objectLiteral(e, d)
	case *ast.FunctionLiteral:
		c.functionExpr(e, "", d)
	case *ast.ArrowFunctionLiteral:
		c.emit(bytecode.OpMakeClosure, c.constant(bytecode.Blueprint(c.arrowBlueprint(e, ""))))
		c.settle(d)
	case *ast.ClassLiteral:
		name := ""
		if e.Name != nil {
			name = e.Name.Name.String()
		}
		c.class(e, name, d)
	case *ast.DotExpression, *ast.BracketExpression, *ast.PrivateDotExpression:
		c.member(e, d)
	case *ast.CallExpression:
		c.call(e, d)
	case *ast.NewExpression:
		c.newExpr(e, d)
	case *ast.UnaryExpression:
		c.unary(e, d)
	case *ast.BinaryExpression:
		c.binary(e, d)
	case *ast.AssignExpression:
		c.assign(e, d)
	case *ast.ConditionalExpression:
		c.conditional(e, d)
	case *ast.SequenceExpression:
		for i, x := range e.Sequence {
			if i == len(e.Sequence)-1 {
				c.expr(x, d)
			} else {
				c.expr(x, discard)
			}
		}
	case *ast.OptionalChain:
		c.optionalChain(e, d)
	case *ast.Optional:
		c.expr(e.Expression, intoAcc)
		c.nullishJump()
		c.settle(d)
	case *ast.YieldExpression:
		c.yield(e, d)
	case *ast.AwaitExpression:
		c.expr(e.Argument, intoAcc)
		c.at(e)
		c.emit(bytecode.OpAwait)
		c.settle(d)
	case *ast.MetaProperty:
		if e.Meta != nil && e.Meta.Name == "new" {
			c.emit(bytecode.OpGetNewTarget)
		} else {
			c.emit(bytecode.OpGetImportMeta)
		}
		c.settle(d)
	case *ast.SuperExpression:
		c.errorf(e, "'super' keyword unexpected here")
	case *ast.SpreadElement:
		c.errorf(e, "unexpected spread element")
	case *ast.BadExpression:
		c.errorf(e, "invalid expression")
	default:
		c.errorf(e, "unsupported expression %T", e)
	}
}

// namedExpr compiles e, naming it after name when it is an anonymous
// function or class.
func (c *Compiler) namedExpr(e ast.Expression, name string, d dest) {
	switch fn := e.(type) {
	case *ast.FunctionLiteral:
		if fn.Name == nil {
			c.functionExpr(fn, name, d)
			return
		}
	case *ast.ArrowFunctionLiteral:
		c.emit(bytecode.OpMakeClosure, c.constant(bytecode.Blueprint(c.arrowBlueprint(fn, name))))
		c.settle(d)
		return
	case *ast.ClassLiteral:
		if fn.Name == nil {
			c.class(fn, name, d)
			return
		}
	}
	c.expr(e, d)
}

// functionExpr creates a closure. A named function expression sees its own
// name through a scope of its own.
func (c *Compiler) functionExpr(lit *ast.FunctionLiteral, inferred string, d dest) {
	name := inferred
	if lit.Name != nil {
		name = lit.Name.Name.String()
	}
	k := c.constant(bytecode.Blueprint(c.functionBlueprint(lit, name)))
	if lit.Name == nil {
		c.emit(bytecode.OpMakeClosure, k)
		c.settle(d)
		return
	}
	c.pushScope(blockFlags, scope.NoLabel)
	v := c.name(name)
	c.emit(bytecode.OpDeclare, v, int(scope.Const))
	c.emit(bytecode.OpMakeClosure, k)
	c.emit(bytecode.OpInitEnvAcc, v)
	c.emit(bytecode.OpPopScope)
	c.settle(d)
}

func (c *Compiler) conditional(e *ast.ConditionalExpression, d dest) {
	switch c.test(e.Test) {
	case testAlways:
		c.expr(e.Consequent, d)
		return
	case testNever:
		c.expr(e.Alternate, d)
		return
	}
	skip := c.emit(bytecode.OpJmpIfNotAccRel, 0)
	c.expr(e.Consequent, d)
	end := c.emit(bytecode.OpJmpRel, 0)
	c.patchRelHere(skip)
	c.expr(e.Alternate, d)
	c.patchRelHere(end)
}

// --- optional chains ---

func (c *Compiler) optionalChain(e *ast.OptionalChain, d dest) {
	c.chains = append(c.chains, nil)
	c.expr(e.Expression, intoAcc)
	jumps := c.chains[len(c.chains)-1]
	c.chains = c.chains[:len(c.chains)-1]
	if len(jumps) == 0 {
		c.settle(d)
		return
	}
	end := c.emit(bytecode.OpJmpRel, 0)
	c.patchAllHere(jumps, 0)
	c.emit(bytecode.OpLdaUndefined)
	c.patchRelHere(end)
	c.settle(d)
}

// nullishJump short-circuits the innermost optional chain when acc is null
// or undefined.
func (c *Compiler) nullishJump() {
	if len(c.chains) == 0 {
		c.errorf(nil, "optional expression outside of an optional chain")
		return
	}
	pc := c.emit(bytecode.OpJmpIfNullishAcc, bytecode.NoAddr)
	c.chains[len(c.chains)-1] = append(c.chains[len(c.chains)-1], pc)
}

// --- members ---

func (c *Compiler) member(e ast.Expression, d dest) {
	c.at(e)
	switch m := e.(type) {
	case *ast.DotExpression:
		v := c.name(m.Identifier.Name.String())
		if _, ok := m.Left.(*ast.SuperExpression); ok {
			c.emit(bytecode.OpLoadSuper, v)
			c.settle(d)
			return
		}
		c.expr(m.Left, intoAcc)
		c.emit(bytecode.OpLoadMemberAcc, v)
		c.settle(d)
	case *ast.BracketExpression:
		if _, ok := m.Left.(*ast.SuperExpression); ok {
			k := c.allocReg(m)
			c.expr(m.Member, intoAcc)
			c.emit(bytecode.OpToPropertyKeyAcc)
			c.emit(bytecode.OpStar, int(k))
			c.emit(bytecode.OpLoadSuperComputed, int(k))
			c.freeReg(k)
			c.settle(d)
			return
		}
		obj := c.allocReg(m)
		c.expr(m.Left, intoReg(obj))
		c.expr(m.Member, intoAcc)
		c.emit(bytecode.OpLoadMemberComputed, int(obj))
		c.freeReg(obj)
		c.settle(d)
	case *ast.PrivateDotExpression:
		obj := c.allocReg(m)
		c.expr(m.Left, intoReg(obj))
		key := c.privateName(m.Identifier.Name.String())
		c.emit(bytecode.OpGetPrivate, int(obj), int(key))
		c.freeReg(key)
		c.freeReg(obj)
		c.settle(d)
	}
}

// privateName loads the symbol of #name into a fresh register.
func (c *Compiler) privateName(name string) Register {
	r := c.allocReg(nil)
	c.emit(bytecode.OpLoadEnvReg, int(r), c.name("#"+name))
	return r
}

// --- calls ---

func (c *Compiler) call(e *ast.CallExpression, d dest) {
	c.callWith(e.Callee, func() { c.arguments(e.ArgumentList) }, e, d)
}

// callWith compiles a call of callee; pushArgs stages the arguments after
// ArgsBegin.
func (c *Compiler) callWith(callee ast.Expression, pushArgs func(), node ast.Node, d dest) {
	optional := false
	if o, ok := callee.(*ast.Optional); ok {
		callee = o.Expression
		optional = true
	}
	switch fn := callee.(type) {
	case *ast.SuperExpression:
		c.emit(bytecode.OpArgsBegin)
		pushArgs()
		c.at(node)
		c.emit(bytecode.OpSuperCall)
		c.settle(d)
		return
	case *ast.DotExpression, *ast.BracketExpression, *ast.PrivateDotExpression:
		this := c.allocReg(node)
		c.memberForCall(fn, this)
		if optional {
			c.nullishJump()
		}
		f := c.allocReg(node)
		c.emit(bytecode.OpStar, int(f))
		c.emit(bytecode.OpArgsBegin)
		pushArgs()
		c.at(node)
		c.emit(bytecode.OpCallMember, int(this), int(f))
		c.freeReg(f)
		c.freeReg(this)
		c.settle(d)
		return
	case *ast.Identifier:
		if fn.Name == "eval" {
			f := c.allocReg(node)
			c.emit(bytecode.OpLoadEnvReg, int(f), c.name("eval"))
			if optional {
				c.emit(bytecode.OpLdar, int(f))
				c.nullishJump()
			}
			c.emit(bytecode.OpArgsBegin)
			pushArgs()
			c.emit(bytecode.OpLdar, int(f))
			c.at(node)
			c.emit(bytecode.OpCallEval)
			c.freeReg(f)
			c.settle(d)
			return
		}
	}
	c.expr(callee, intoAcc)
	if optional {
		c.nullishJump()
	}
	f := c.allocReg(node)
	c.emit(bytecode.OpStar, int(f))
	c.emit(bytecode.OpArgsBegin)
	pushArgs()
	c.at(node)
	c.emit(bytecode.OpCall, int(f))
	c.freeReg(f)
	c.settle(d)
}

// memberForCall evaluates the receiver into this and leaves the method in
// acc.
func (c *Compiler) memberForCall(e ast.Expression, this Register) {
	switch m := e.(type) {
	case *ast.DotExpression:
		v := c.name(m.Identifier.Name.String())
		if _, ok := m.Left.(*ast.SuperExpression); ok {
			c.emit(bytecode.OpLdaThis)
			c.emit(bytecode.OpStar, int(this))
			c.emit(bytecode.OpLoadSuper, v)
			return
		}
		c.expr(m.Left, intoReg(this))
		c.emit(bytecode.OpLoadMemberReg, int(this), v)
	case *ast.BracketExpression:
		if _, ok := m.Left.(*ast.SuperExpression); ok {
			c.emit(bytecode.OpLdaThis)
			c.emit(bytecode.OpStar, int(this))
			k := c.allocReg(m)
			c.expr(m.Member, intoAcc)
			c.emit(bytecode.OpToPropertyKeyAcc)
			c.emit(bytecode.OpStar, int(k))
			c.emit(bytecode.OpLoadSuperComputed, int(k))
			c.freeReg(k)
			return
		}
		c.expr(m.Left, intoReg(this))
		c.expr(m.Member, intoAcc)
		c.emit(bytecode.OpLoadMemberComputed, int(this))
	case *ast.PrivateDotExpression:
		c.expr(m.Left, intoReg(this))
		key := c.privateName(m.Identifier.Name.String())
		c.emit(bytecode.OpGetPrivate, int(this), int(key))
		c.freeReg(key)
	}
}

func (c *Compiler) arguments(list []ast.Expression) {
	for _, a := range list {
		if s, ok := a.(*ast.SpreadElement); ok {
			c.expr(s.Expression, intoAcc)
			c.emit(bytecode.OpPushSpreadAcc)
			continue
		}
		c.expr(a, intoAcc)
		c.emit(bytecode.OpPushArgAcc)
	}
}

func (c *Compiler) newExpr(e *ast.NewExpression, d dest) {
	f := c.allocReg(e)
	c.expr(e.Callee, intoReg(f))
	c.emit(bytecode.OpArgsBegin)
	c.arguments(e.ArgumentList)
	c.at(e)
	c.emit(bytecode.OpConstruct, int(f))
	c.freeReg(f)
	c.settle(d)
}

// --- operators ---

func (c *Compiler) unary(e *ast.UnaryExpression, d dest) {
	switch e.Operator {
	case token.INCREMENT, token.DECREMENT:
		c.update(e, d)
		return
	case token.TYPEOF:
		if id, ok := e.Operand.(*ast.Identifier); ok {
			c.emit(bytecode.OpTypeOfVar, c.name(id.Name.String()))
		} else {
			c.expr(e.Operand, intoAcc)
			c.emit(bytecode.OpTypeOfAcc)
		}
	case token.VOID:
		c.expr(e.Operand, discard)
		if d.kind == destNone {
			return
		}
		c.emit(bytecode.OpLdaUndefined)
	case token.DELETE:
		c.deleteExpr(e.Operand)
	case token.NOT:
		c.expr(e.Operand, intoAcc)
		c.emit(bytecode.OpLNotAcc)
	case token.BITWISE_NOT:
		c.expr(e.Operand, intoAcc)
		c.emit(bytecode.OpBitNotAcc)
	case token.MINUS:
		c.expr(e.Operand, intoAcc)
		c.emit(bytecode.OpNegateAcc)
	case token.PLUS:
		c.expr(e.Operand, intoAcc)
		c.emit(bytecode.OpPlusAcc)
	default:
		c.errorf(e, "unsupported unary operator %s", e.Operator)
		return
	}
	c.settle(d)
}

func (c *Compiler) deleteExpr(operand ast.Expression) {
	switch t := operand.(type) {
	case *ast.Identifier:
		c.emit(bytecode.OpDeleteEnv, c.name(t.Name.String()))
	case *ast.DotExpression:
		if _, ok := t.Left.(*ast.SuperExpression); ok {
			c.superDelete(t)
			return
		}
		obj := c.allocReg(t)
		c.expr(t.Left, intoReg(obj))
		c.emit(bytecode.OpDeleteMember, int(obj), c.name(t.Identifier.Name.String()))
		c.freeReg(obj)
	case *ast.BracketExpression:
		if _, ok := t.Left.(*ast.SuperExpression); ok {
			c.superDelete(t)
			return
		}
		obj := c.allocReg(t)
		c.expr(t.Left, intoReg(obj))
		c.expr(t.Member, intoAcc)
		c.emit(bytecode.OpDeleteComputed, int(obj))
		c.freeReg(obj)
	case *ast.OptionalChain:
		c.chains = append(c.chains, nil)
		c.deleteExpr(t.Expression)
		jumps := c.chains[len(c.chains)-1]
		c.chains = c.chains[:len(c.chains)-1]
		if len(jumps) > 0 {
			end := c.emit(bytecode.OpJmpRel, 0)
			c.patchAllHere(jumps, 0)
			c.emit(bytecode.OpLdaTrue)
			c.patchRelHere(end)
		}
	default:
		c.expr(operand, discard)
		c.emit(bytecode.OpLdaTrue)
	}
}

func (c *Compiler) superDelete(e ast.Expression) {
	c.errorf(e, "Unsupported reference to 'super'")
}

func (c *Compiler) binary(e *ast.BinaryExpression, d dest) {
	if priv, ok := e.Left.(*ast.PrivateIdentifier); ok {
		key := c.privateName(priv.Name.String())
		c.expr(e.Right, intoAcc)
		c.emit(bytecode.OpHasPrivate, int(key))
		c.freeReg(key)
		c.settle(d)
		return
	}
	switch e.Operator {
	case token.LOGICAL_AND, token.LOGICAL_OR, token.COALESCE:
		c.logical(e, d)
		return
	}
	ops, ok := binaryOps[e.Operator]
	if !ok {
		c.errorf(e, "unsupported binary operator %s", e.Operator)
		return
	}
	if k, ok := c.foldBinary(e); ok {
		c.loadConst(k, d)
		return
	}
	lid, lok := e.Left.(*ast.Identifier)
	rid, rok := e.Right.(*ast.Identifier)
	if lok && rok {
		c.at(e)
		c.emit(ops.varVar, c.name(lid.Name.String()), c.name(rid.Name.String()))
		c.settle(d)
		return
	}
	left, ok := c.regs.Alloc()
	if !ok {
		c.expr(e.Left, intoAcc)
		c.emit(bytecode.OpPushAcc)
		c.expr(e.Right, intoAcc)
		c.emit(bytecode.OpPopReg, int(spillRegister))
		c.at(e)
		c.emit(ops.regAcc, int(spillRegister))
		c.settle(d)
		return
	}
	c.expr(e.Left, intoReg(left))
	if rok {
		right := c.allocReg(e)
		c.emit(bytecode.OpLoadEnvReg, int(right), c.name(rid.Name.String()))
		c.at(e)
		c.emit(ops.regReg, int(left), int(right))
		c.freeReg(right)
	} else {
		c.expr(e.Right, intoAcc)
		c.at(e)
		c.emit(ops.regAcc, int(left))
	}
	c.freeReg(left)
	c.settle(d)
}

// foldBinary evaluates arithmetic on number literals and concatenation
// of string literals, through nested binary expressions.
func (c *Compiler) foldBinary(e *ast.BinaryExpression) (bytecode.Constant, bool) {
	l, lok := c.foldOperand(e.Left)
	r, rok := c.foldOperand(e.Right)
	if !lok || !rok {
		return bytecode.Constant{}, false
	}
	if l.Kind == bytecode.ConstString && r.Kind == bytecode.ConstString && e.Operator == token.PLUS {
		return bytecode.String(l.Str + r.Str), true
	}
	if l.Kind != bytecode.ConstNumber || r.Kind != bytecode.ConstNumber {
		return bytecode.Constant{}, false
	}
	switch e.Operator {
	case token.PLUS:
		return bytecode.Number(l.Number + r.Number), true
	case token.MINUS:
		return bytecode.Number(l.Number - r.Number), true
	case token.MULTIPLY:
		return bytecode.Number(l.Number * r.Number), true
	case token.SLASH:
		return bytecode.Number(l.Number / r.Number), true
	}
	return bytecode.Constant{}, false
}

func (c *Compiler) foldOperand(e ast.Expression) (bytecode.Constant, bool) {
	if b, ok := e.(*ast.BinaryExpression); ok {
		return c.foldBinary(b)
	}
	return literalConstant(e)
}

func (c *Compiler) logical(e *ast.BinaryExpression, d dest) {
	if e.Operator != token.COALESCE && isTrivial(e.Right) {
		left := c.allocReg(e)
		c.expr(e.Left, intoReg(left))
		c.expr(e.Right, intoAcc)
		if e.Operator == token.LOGICAL_AND {
			c.emit(bytecode.OpLAndRegAcc, int(left))
		} else {
			c.emit(bytecode.OpLOrRegAcc, int(left))
		}
		c.freeReg(left)
		c.settle(d)
		return
	}
	c.expr(e.Left, intoAcc)
	end := c.shortCircuit(e.Operator)
	c.expr(e.Right, intoAcc)
	c.patchAllHere(end, 0)
	c.settle(d)
}

// shortCircuit emits the jumps that skip the right operand of a logical
// operator whose left value is in acc.
func (c *Compiler) shortCircuit(op token.Token) []int {
	switch op {
	case token.LOGICAL_AND, token.LOGICAL_AND_ASSIGN:
		return []int{c.emit(bytecode.OpJmpIfNotAcc, bytecode.NoAddr)}
	case token.LOGICAL_OR, token.LOGICAL_OR_ASSIGN:
		return []int{c.emit(bytecode.OpJmpIfAcc, bytecode.NoAddr)}
	}
	rhs := c.emit(bytecode.OpJmpIfNullishAcc, bytecode.NoAddr)
	end := c.emit(bytecode.OpJmp, bytecode.NoAddr)
	c.patchHere(rhs, 0)
	return []int{end}
}

// isTrivial reports whether evaluating e has no effects and cannot throw.
func isTrivial(e ast.Expression) bool {
	if _, ok := literalConstant(e); ok {
		return true
	}
	_, ok := e.(*ast.ThisExpression)
	return ok
}

// --- templates ---

func (c *Compiler) template(e *ast.TemplateLiteral, d dest) {
	if len(e.Expressions) == 0 {
		c.loadConst(bytecode.String(cooked(e.Elements, 0)), d)
		return
	}
	acc := c.allocReg(e)
	started := false
	appendAcc := func() {
		if started {
			c.emit(bytecode.OpAddRegAcc, int(acc))
		}
		c.emit(bytecode.OpStar, int(acc))
		started = true
	}
	for i, x := range e.Expressions {
		if s := cooked(e.Elements, i); s != "" {
			c.emit(bytecode.OpLdaConstAcc, c.constant(bytecode.String(s)))
			appendAcc()
		}
		c.expr(x, intoAcc)
		c.emit(bytecode.OpToStringAcc)
		appendAcc()
	}
	if s := cooked(e.Elements, len(e.Expressions)); s != "" {
		c.emit(bytecode.OpLdaConstAcc, c.constant(bytecode.String(s)))
		appendAcc()
	}
	c.emit(bytecode.OpLdar, int(acc))
	c.freeReg(acc)
	c.settle(d)
}

func cooked(elems []*ast.TemplateElement, i int) string {
	if i >= len(elems) || elems[i] == nil {
		return ""
	}
	return jsString(elems[i].Parsed)
}

func (c *Compiler) taggedTemplate(e *ast.TemplateLiteral, d dest) {
	parts := make([]bytecode.TemplatePart, len(e.Elements))
	for i, el := range e.Elements {
		parts[i] = bytecode.TemplatePart{Cooked: jsString(el.Parsed), CookedValid: el.Valid, Raw: el.Literal}
	}
	k := c.constant(bytecode.Template(parts))
	c.callWith(e.Tag, func() {
		c.emit(bytecode.OpTemplateObject, k)
		c.emit(bytecode.OpPushArgAcc)
		for _, x := range e.Expressions {
			c.expr(x, intoAcc)
			c.emit(bytecode.OpPushArgAcc)
		}
	}, e, d)
}

// --- generators ---

func (c *Compiler) yield(e *ast.YieldExpression, d dest) {
	async := c.flags&bytecode.FuncAsync != 0
	if e.Delegate {
		c.expr(e.Argument, intoAcc)
		mode := iterSyncDetached
		if async {
			mode = iterAsyncDetached
		}
		c.emit(bytecode.OpGetIterator, mode)
		it := c.allocReg(e)
		c.emit(bytecode.OpStar, int(it))
		c.at(e)
		c.emit(bytecode.OpYieldDelegate, int(it))
		c.freeReg(it)
		c.settle(d)
		return
	}
	if e.Argument == nil {
		c.at(e)
		c.emit(bytecode.OpYieldUndefined)
		c.settle(d)
		return
	}
	c.expr(e.Argument, intoAcc)
	if async {
		c.emit(bytecode.OpAwait)
	}
	c.at(e)
	c.emit(bytecode.OpYield)
	c.settle(d)
}
