package compiler

import (
	"math/big"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/unistring"

	"cinder/pkg/bytecode"
	"cinder/pkg/heap"
)

// Method kinds of DefineMethod. methodEnumerable is or-ed in for object
// literal members.
const (
	methodPlain      = 0
	methodGetter     = 1
	methodSetter     = 2
	methodEnumerable = 4
)

func (c *Compiler) arrayLiteral(e *ast.ArrayLiteral, d dest) {
	arr := c.allocReg(e)
	c.emit(bytecode.OpNewArray)
	c.emit(bytecode.OpStar, int(arr))
	for _, el := range e.Value {
		switch el := el.(type) {
		case nil:
			c.emit(bytecode.OpArrayHole, int(arr))
		case *ast.SpreadElement:
			c.expr(el.Expression, intoAcc)
			c.emit(bytecode.OpArraySpread, int(arr))
		default:
			c.expr(el, intoAcc)
			c.emit(bytecode.OpArrayPush, int(arr))
		}
	}
	c.emit(bytecode.OpLdar, int(arr))
	c.freeReg(arr)
	c.settle(d)
}

// jsString converts parsed text to the heap's string form. The parser
// keeps non-ASCII text as UTF-16, which may hold lone surrogates that
// unistring's own String method would replace.
func jsString(s unistring.String) string {
	if u := s.AsUtf16(); u != nil {
		return heap.FromUTF16(u[1:])
	}
	return string(s)
}

// staticKey returns the property name of a non-computed key.
func staticKey(key ast.Expression, computed bool) (string, bool) {
	if computed {
		return "", false
	}
	switch k := key.(type) {
	case *ast.StringLiteral:
		return jsString(k.Value), true
	case *ast.Identifier:
		return k.Name.String(), true
	case *ast.NumberLiteral:
		switch v := k.Value.(type) {
		case int64:
			return heap.NumberToString(float64(v)), true
		case float64:
			return heap.NumberToString(v), true
		case *big.Int:
			return v.String(), true
		}
	}
	return "", false
}

func (c *Compiler) objectLiteral(e *ast.ObjectLiteral, d dest) {
	obj := c.allocReg(e)
	c.emit(bytecode.OpNewObject)
	c.emit(bytecode.OpStar, int(obj))
	for _, prop := range e.Value {
		switch p := prop.(type) {
		case *ast.PropertyShort:
			name := p.Name.Name.String()
			v := c.name(name)
			c.emit(bytecode.OpLoadEnvAcc, v)
			c.emit(bytecode.OpDefineField, int(obj), v)
		case *ast.PropertyKeyed:
			c.objectProperty(p, obj)
		case *ast.SpreadElement:
			c.expr(p.Expression, intoAcc)
			c.emit(bytecode.OpCopyDataProps, int(obj))
		default:
			c.errorf(e, "unsupported property %T", prop)
		}
	}
	c.emit(bytecode.OpLdar, int(obj))
	c.freeReg(obj)
	c.settle(d)
}

func (c *Compiler) objectProperty(p *ast.PropertyKeyed, obj Register) {
	name, static := staticKey(p.Key, p.Computed)
	if p.Kind == ast.PropertyKindValue {
		if static && name == "__proto__" {
			c.expr(p.Value, intoAcc)
			c.emit(bytecode.OpSetProtoOf, int(obj))
			return
		}
		if static {
			c.namedExpr(p.Value, name, intoAcc)
			c.emit(bytecode.OpDefineField, int(obj), c.name(name))
			return
		}
		key := c.allocReg(p.Key)
		c.expr(p.Key, intoAcc)
		c.emit(bytecode.OpToPropertyKeyAcc)
		c.emit(bytecode.OpStar, int(key))
		c.expr(p.Value, intoAcc)
		c.emit(bytecode.OpDefineComputed, int(obj), int(key))
		c.freeReg(key)
		return
	}

	lit, ok := p.Value.(*ast.FunctionLiteral)
	if !ok {
		c.errorf(p.Value, "method body expected")
		return
	}
	key := c.allocReg(p.Key)
	if static {
		c.emit(bytecode.OpLdaConstReg, int(key), c.constant(bytecode.String(name)))
	} else {
		c.expr(p.Key, intoAcc)
		c.emit(bytecode.OpToPropertyKeyAcc)
		c.emit(bytecode.OpStar, int(key))
	}
	kind := methodKind(p.Kind)
	bp := c.methodBlueprint(lit, name, kind, 0)
	c.emit(bytecode.OpMakeClosure, c.constant(bytecode.Blueprint(bp)))
	c.emit(bytecode.OpInitHomeObject, int(obj))
	c.emit(bytecode.OpDefineMethod, int(obj), int(key), kind|methodEnumerable)
	c.freeReg(key)
}

func methodKind(k ast.PropertyKind) int {
	switch k {
	case ast.PropertyKindGet:
		return methodGetter
	case ast.PropertyKindSet:
		return methodSetter
	}
	return methodPlain
}

// methodBlueprint compiles an object or class method.
func (c *Compiler) methodBlueprint(lit *ast.FunctionLiteral, name string, kind int, extra bytecode.FunctionFlags) *bytecode.FunctionBlueprint {
	flags := bytecode.FuncMethod | extra
	if lit.Async {
		flags |= bytecode.FuncAsync
	}
	if lit.Generator {
		flags |= bytecode.FuncGenerator
	}
	switch kind {
	case methodGetter:
		flags |= bytecode.FuncGetter
	case methodSetter:
		flags |= bytecode.FuncSetter
	}
	var body []ast.Statement
	if lit.Body != nil {
		body = lit.Body.List
	}
	return c.compileFunc(funcSpec{node: lit, name: name, params: lit.ParameterList, body: body, flags: flags, source: lit.Source})
}
