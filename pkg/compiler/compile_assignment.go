package compiler

import (
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"

	"cinder/pkg/bytecode"
)

type refKind uint8

const (
	refName refKind = iota
	refMember
	refComputed
	refPrivate
	refSuper
	refSuperComputed
)

// reference is an evaluated assignment target: its object and key are held
// in registers until the store.
type reference struct {
	kind refKind
	name int
	obj  Register
	key  Register
}

// prepareRef evaluates the object and key parts of target.
func (c *Compiler) prepareRef(target ast.Expression) (reference, bool) {
	switch t := target.(type) {
	case *ast.Identifier:
		return reference{kind: refName, name: c.name(t.Name.String())}, true
	case *ast.DotExpression:
		v := c.name(t.Identifier.Name.String())
		if _, ok := t.Left.(*ast.SuperExpression); ok {
			return reference{kind: refSuper, name: v}, true
		}
		obj := c.allocReg(t)
		c.expr(t.Left, intoReg(obj))
		return reference{kind: refMember, name: v, obj: obj}, true
	case *ast.BracketExpression:
		key := c.allocReg(t)
		if _, ok := t.Left.(*ast.SuperExpression); ok {
			c.expr(t.Member, intoAcc)
			c.emit(bytecode.OpToPropertyKeyAcc)
			c.emit(bytecode.OpStar, int(key))
			return reference{kind: refSuperComputed, key: key}, true
		}
		obj := c.allocReg(t)
		c.expr(t.Left, intoReg(obj))
		c.expr(t.Member, intoAcc)
		c.emit(bytecode.OpToPropertyKeyAcc)
		c.emit(bytecode.OpStar, int(key))
		return reference{kind: refComputed, obj: obj, key: key}, true
	case *ast.PrivateDotExpression:
		obj := c.allocReg(t)
		c.expr(t.Left, intoReg(obj))
		key := c.privateName(t.Identifier.Name.String())
		return reference{kind: refPrivate, obj: obj, key: key}, true
	}
	c.errorf(target, "Invalid left-hand side in assignment")
	return reference{}, false
}

// loadRef reads the current value of ref into acc.
func (c *Compiler) loadRef(ref reference) {
	switch ref.kind {
	case refName:
		c.emit(bytecode.OpLoadEnvAcc, ref.name)
	case refMember:
		c.emit(bytecode.OpLoadMemberReg, int(ref.obj), ref.name)
	case refComputed:
		c.emit(bytecode.OpLdar, int(ref.key))
		c.emit(bytecode.OpLoadMemberComputed, int(ref.obj))
	case refPrivate:
		c.emit(bytecode.OpGetPrivate, int(ref.obj), int(ref.key))
	case refSuper:
		c.emit(bytecode.OpLoadSuper, ref.name)
	case refSuperComputed:
		c.emit(bytecode.OpLoadSuperComputed, int(ref.key))
	}
}

// storeRef writes acc to ref; acc keeps the value.
func (c *Compiler) storeRef(ref reference) {
	switch ref.kind {
	case refName:
		c.emit(bytecode.OpStoreEnvAcc, ref.name)
	case refMember:
		c.emit(bytecode.OpStoreMemberReg, int(ref.obj), ref.name)
	case refComputed:
		c.emit(bytecode.OpStoreMemberComputed, int(ref.obj), int(ref.key))
	case refPrivate:
		c.emit(bytecode.OpSetPrivate, int(ref.obj), int(ref.key))
	case refSuper:
		tmp := c.allocReg(nil)
		c.emit(bytecode.OpStar, int(tmp))
		c.emit(bytecode.OpStoreSuper, ref.name, int(tmp))
		c.freeReg(tmp)
	case refSuperComputed:
		c.emit(bytecode.OpStoreSuperComputed, int(ref.key))
	}
}

func (c *Compiler) releaseRef(ref reference) {
	switch ref.kind {
	case refMember:
		c.freeReg(ref.obj)
	case refComputed, refPrivate:
		c.freeReg(ref.key)
		c.freeReg(ref.obj)
	case refSuperComputed:
		c.freeReg(ref.key)
	}
}

// compoundOps maps compound assignment operators to their binary
// operator.
var compoundOps = map[token.Token]token.Token{
	token.ADD_ASSIGN:                  token.PLUS,
	token.SUBTRACT_ASSIGN:             token.MINUS,
	token.MULTIPLY_ASSIGN:             token.MULTIPLY,
	token.EXPONENT_ASSIGN:             token.EXPONENT,
	token.QUOTIENT_ASSIGN:             token.SLASH,
	token.REMAINDER_ASSIGN:            token.REMAINDER,
	token.AND_ASSIGN:                  token.AND,
	token.OR_ASSIGN:                   token.OR,
	token.EXCLUSIVE_OR_ASSIGN:         token.EXCLUSIVE_OR,
	token.SHIFT_LEFT_ASSIGN:           token.SHIFT_LEFT,
	token.SHIFT_RIGHT_ASSIGN:          token.SHIFT_RIGHT,
	token.UNSIGNED_SHIFT_RIGHT_ASSIGN: token.UNSIGNED_SHIFT_RIGHT,
}

func (c *Compiler) assign(e *ast.AssignExpression, d dest) {
	c.at(e)
	op := e.Operator
	if base, ok := compoundOps[op]; ok {
		op = base
	}
	switch op {
	case token.ASSIGN:
		c.plainAssign(e, d)
	case token.LOGICAL_AND, token.LOGICAL_OR, token.COALESCE,
		token.LOGICAL_AND_ASSIGN, token.LOGICAL_OR_ASSIGN, token.COALESCE_ASSIGN:
		ref, ok := c.prepareRef(e.Left)
		if !ok {
			return
		}
		c.loadRef(ref)
		end := c.shortCircuit(op)
		c.namedExpr(e.Right, targetName(e.Left), intoAcc)
		c.storeRef(ref)
		c.patchAllHere(end, 0)
		c.releaseRef(ref)
		c.settle(d)
	default:
		ops, ok := binaryOps[op]
		if !ok {
			c.errorf(e, "unsupported assignment operator %s", e.Operator)
			return
		}
		lid, lok := e.Left.(*ast.Identifier)
		rid, rok := e.Right.(*ast.Identifier)
		if lok && rok {
			v := c.name(lid.Name.String())
			c.emit(ops.varVar, v, c.name(rid.Name.String()))
			c.emit(bytecode.OpStoreEnvAcc, v)
			c.settle(d)
			return
		}
		ref, ok := c.prepareRef(e.Left)
		if !ok {
			return
		}
		c.loadRef(ref)
		old := c.allocReg(e)
		c.emit(bytecode.OpStar, int(old))
		c.expr(e.Right, intoAcc)
		c.emit(ops.regAcc, int(old))
		c.freeReg(old)
		c.storeRef(ref)
		c.releaseRef(ref)
		c.settle(d)
	}
}

func (c *Compiler) plainAssign(e *ast.AssignExpression, d dest) {
	switch left := e.Left.(type) {
	case *ast.ArrayPattern, *ast.ObjectPattern:
		c.expr(e.Right, intoAcc)
		src := c.allocReg(e)
		c.emit(bytecode.OpStar, int(src))
		c.bindTarget(left, bindAssign)
		if d.kind != destNone {
			c.emit(bytecode.OpLdar, int(src))
			c.settle(d)
		}
		c.freeReg(src)
	case *ast.Identifier:
		v := c.name(left.Name.String())
		if d.kind == destNone {
			c.namedExpr(e.Right, left.Name.String(), intoVar(v))
			return
		}
		c.namedExpr(e.Right, left.Name.String(), intoAcc)
		c.emit(bytecode.OpStoreEnvAcc, v)
		c.settle(d)
	default:
		ref, ok := c.prepareRef(e.Left)
		if !ok {
			return
		}
		c.expr(e.Right, intoAcc)
		c.at(e)
		c.storeRef(ref)
		c.releaseRef(ref)
		c.settle(d)
	}
}

// update compiles ++ and --.
func (c *Compiler) update(e *ast.UnaryExpression, d dest) {
	inc := e.Operator == token.INCREMENT
	if id, ok := e.Operand.(*ast.Identifier); ok && (!e.Postfix || d.kind == destNone) {
		op := bytecode.OpDecVar
		if inc {
			op = bytecode.OpIncVar
		}
		c.emit(op, c.name(id.Name.String()))
		c.settle(d)
		return
	}
	ref, ok := c.prepareRef(e.Operand)
	if !ok {
		return
	}
	c.loadRef(ref)
	c.emit(bytecode.OpToNumericAcc)
	old := spillRegister
	keepOld := e.Postfix && d.kind != destNone
	if keepOld {
		old = c.allocReg(e)
		c.emit(bytecode.OpStar, int(old))
	}
	if inc {
		c.emit(bytecode.OpIncAcc)
	} else {
		c.emit(bytecode.OpDecAcc)
	}
	c.storeRef(ref)
	c.releaseRef(ref)
	if keepOld {
		c.emit(bytecode.OpLdar, int(old))
		c.freeReg(old)
	}
	c.settle(d)
}

// --- binding patterns ---

type bindMode uint8

const (
	bindAssign bindMode = iota // plain assignment
	bindInit                   // let, const, parameters and catch
	bindVar                    // var declarations
)

// bindTarget stores acc into a binding target or pattern.
func (c *Compiler) bindTarget(target ast.Expression, mode bindMode) {
	switch t := target.(type) {
	case *ast.Identifier:
		v := c.name(t.Name.String())
		if mode == bindInit {
			c.emit(bytecode.OpInitEnvAcc, v)
		} else {
			c.emit(bytecode.OpStoreEnvAcc, v)
		}
	case *ast.ArrayPattern:
		c.arrayPattern(t, mode)
	case *ast.ObjectPattern:
		src := c.allocReg(t)
		c.emit(bytecode.OpStar, int(src))
		c.objectPattern(t, src, mode)
		c.freeReg(src)
	case *ast.AssignExpression:
		c.withDefault(t.Right, t.Left)
		c.bindTarget(t.Left, mode)
	case *ast.DotExpression, *ast.BracketExpression, *ast.PrivateDotExpression:
		if mode != bindAssign {
			c.errorf(t, "Invalid destructuring target")
			return
		}
		val := c.allocReg(t)
		c.emit(bytecode.OpStar, int(val))
		ref, ok := c.prepareRef(t)
		if !ok {
			c.freeReg(val)
			return
		}
		c.emit(bytecode.OpLdar, int(val))
		c.storeRef(ref)
		c.releaseRef(ref)
		c.freeReg(val)
	default:
		c.errorf(target, "Invalid destructuring target")
	}
}

// withDefault replaces an undefined acc with the value of def.
func (c *Compiler) withDefault(def ast.Expression, target ast.Expression) {
	skip := c.emit(bytecode.OpJmpIfNotUndefinedAcc, bytecode.NoAddr)
	c.namedExpr(def, targetName(target), intoAcc)
	c.patchHere(skip, 0)
}

func (c *Compiler) arrayPattern(p *ast.ArrayPattern, mode bindMode) {
	c.at(p)
	c.emit(bytecode.OpGetIterator, iterSyncDetached)
	it := c.allocReg(p)
	c.emit(bytecode.OpStar, int(it))
	for _, el := range p.Elements {
		c.emit(bytecode.OpIteratorNext, int(it), bytecode.NoAddr)
		if el == nil {
			continue
		}
		c.bindTarget(el, mode)
	}
	if p.Rest != nil {
		arr := c.allocReg(p.Rest)
		c.emit(bytecode.OpNewArray)
		c.emit(bytecode.OpStar, int(arr))
		top := c.b.PC()
		done := c.emit(bytecode.OpIteratorNext, int(it), bytecode.NoAddr)
		c.emit(bytecode.OpArrayPush, int(arr))
		c.emit(bytecode.OpJmp, top)
		c.patchHere(done, 1)
		c.emit(bytecode.OpLdar, int(arr))
		c.freeReg(arr)
		c.bindTarget(p.Rest, mode)
	}
	c.emit(bytecode.OpIteratorClose, int(it))
	c.freeReg(it)
}

func (c *Compiler) objectPattern(p *ast.ObjectPattern, src Register, mode bindMode) {
	c.at(p)
	excluded := spillRegister
	if p.Rest != nil {
		excluded = c.allocReg(p)
		c.emit(bytecode.OpNewArray)
		c.emit(bytecode.OpStar, int(excluded))
	}
	for _, prop := range p.Properties {
		switch prop := prop.(type) {
		case *ast.PropertyShort:
			name := prop.Name.Name.String()
			v := c.name(name)
			if p.Rest != nil {
				c.emit(bytecode.OpLdaConstAcc, c.constant(bytecode.String(name)))
				c.emit(bytecode.OpArrayPush, int(excluded))
			}
			c.emit(bytecode.OpLoadMemberReg, int(src), v)
			if prop.Initializer != nil {
				c.withDefault(prop.Initializer, &prop.Name)
			}
			c.bindTarget(&prop.Name, mode)
		case *ast.PropertyKeyed:
			if name, ok := staticKey(prop.Key, prop.Computed); ok {
				if p.Rest != nil {
					c.emit(bytecode.OpLdaConstAcc, c.constant(bytecode.String(name)))
					c.emit(bytecode.OpArrayPush, int(excluded))
				}
				c.emit(bytecode.OpLoadMemberReg, int(src), c.name(name))
			} else {
				key := c.allocReg(prop.Key)
				c.expr(prop.Key, intoAcc)
				c.emit(bytecode.OpToPropertyKeyAcc)
				c.emit(bytecode.OpStar, int(key))
				if p.Rest != nil {
					c.emit(bytecode.OpArrayPush, int(excluded))
					c.emit(bytecode.OpLdar, int(key))
				}
				c.emit(bytecode.OpLoadMemberComputed, int(src))
				c.freeReg(key)
			}
			c.bindTarget(prop.Value, mode)
		default:
			c.errorf(p, "Invalid destructuring target")
		}
	}
	if p.Rest != nil {
		c.emit(bytecode.OpCopyRest, int(src), int(excluded))
		c.freeReg(excluded)
		c.bindTarget(p.Rest, mode)
	}
}
