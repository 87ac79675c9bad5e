package compiler

import (
	"strconv"

	"github.com/dop251/goja/ast"

	"cinder/pkg/bytecode"
	"cinder/pkg/scope"
)

// classField is an instance or static field, or a private method that is
// installed on every instance.
type classField struct {
	node     ast.Node
	name     string // static key or private name
	hidden   string // binding holding a computed key or a private method closure
	private  bool
	method   int // DefineMethod kind for private methods, -1 for fields
	init     ast.Expression
	computed bool
}

// class compiles a class literal. The constructor comes from MakeClass;
// methods are defined on the prototype and the constructor; field
// initialisers run from a synthetic function installed with
// SetClassFields; static fields and blocks run once, in order, when the
// class is defined.
func (c *Compiler) class(lit *ast.ClassLiteral, name string, d dest) {
	c.at(lit)
	saved := c.strict
	c.strict = true
	defer func() { c.strict = saved }()

	c.pushScope(blockFlags, scope.NoLabel)
	if lit.Name != nil {
		c.emit(bytecode.OpDeclare, c.name(lit.Name.Name.String()), int(scope.Const))
	}
	declared := map[string]bool{}
	for _, el := range lit.Body {
		if key := privateKey(el); key != "" && !declared[key] {
			declared[key] = true
			c.emit(bytecode.OpDeclare, c.name("#"+key), int(scope.PrivateName))
		}
	}

	super := c.allocReg(lit)
	c.regs.Pin(super)
	hasSuper := 0
	if lit.SuperClass != nil {
		c.expr(lit.SuperClass, intoReg(super))
		hasSuper = 1
	}

	ctor := c.constructorBlueprint(lit, name, hasSuper == 1)
	c.emit(bytecode.OpMakeClass, int(super), c.constant(bytecode.Blueprint(ctor)), hasSuper)
	c.regs.Unpin(super)
	c.freeReg(super)
	cls := c.allocReg(lit)
	c.regs.Pin(cls)
	c.emit(bytecode.OpStar, int(cls))
	proto := c.allocReg(lit)
	c.regs.Pin(proto)
	c.emit(bytecode.OpLoadMemberReg, int(cls), c.name("prototype"))
	c.emit(bytecode.OpStar, int(proto))

	var instance []classField
	var statics []ast.ClassElement
	for _, el := range lit.Body {
		switch el := el.(type) {
		case *ast.MethodDefinition:
			if isConstructor(el) {
				continue
			}
			home := proto
			if el.Static {
				home = cls
			}
			if f, ok := c.classMethod(el, home); ok {
				instance = append(instance, f)
			}
		case *ast.FieldDefinition:
			f := classField{node: el, method: -1, init: el.Initializer}
			if priv, ok := el.Key.(*ast.PrivateIdentifier); ok {
				f.name = priv.Name.String()
				f.private = true
			} else if key, ok := staticKey(el.Key, el.Computed); ok {
				f.name = key
			} else {
				f.computed = true
				f.hidden = c.hiddenBinding("%field")
				c.expr(el.Key, intoAcc)
				c.emit(bytecode.OpToPropertyKeyAcc)
				c.emit(bytecode.OpInitEnvAcc, c.name(f.hidden))
			}
			if el.Static {
				statics = append(statics, &staticField{FieldDefinition: el, field: f})
			} else {
				instance = append(instance, f)
			}
		case *ast.ClassStaticBlock:
			statics = append(statics, el)
		}
	}

	if len(instance) > 0 {
		bp := c.compileFunc(funcSpec{
			node:  lit,
			name:  "<instance_members_initializer>",
			flags: bytecode.FuncFieldInit | bytecode.FuncMethod | bytecode.FuncStrict,
			emit:  func(fc *Compiler) { fc.fieldInitializer(instance) },
		})
		c.emit(bytecode.OpMakeClosure, c.constant(bytecode.Blueprint(bp)))
		c.emit(bytecode.OpInitHomeObject, int(proto))
		c.emit(bytecode.OpSetClassFields, int(cls))
	}

	for _, el := range statics {
		var bp *bytecode.FunctionBlueprint
		switch el := el.(type) {
		case *staticField:
			fields := []classField{el.field}
			bp = c.compileFunc(funcSpec{
				node:  el.FieldDefinition,
				name:  "<static_initializer>",
				flags: bytecode.FuncFieldInit | bytecode.FuncMethod | bytecode.FuncStrict,
				emit:  func(fc *Compiler) { fc.fieldInitializer(fields) },
			})
		case *ast.ClassStaticBlock:
			var body []ast.Statement
			if el.Block != nil {
				body = el.Block.List
			}
			bp = c.compileFunc(funcSpec{
				node:   el,
				name:   "<static_block>",
				body:   body,
				flags:  bytecode.FuncMethod | bytecode.FuncStrict,
				source: el.Source,
			})
		}
		fn := c.allocReg(lit)
		c.emit(bytecode.OpMakeClosure, c.constant(bytecode.Blueprint(bp)))
		c.emit(bytecode.OpInitHomeObject, int(cls))
		c.emit(bytecode.OpStar, int(fn))
		c.emit(bytecode.OpArgsBegin)
		c.emit(bytecode.OpCallMember, int(cls), int(fn))
		c.freeReg(fn)
	}

	c.emit(bytecode.OpLdar, int(cls))
	if lit.Name != nil {
		c.emit(bytecode.OpInitEnvAcc, c.name(lit.Name.Name.String()))
	}
	c.emit(bytecode.OpPopScope)
	c.regs.Unpin(proto)
	c.freeReg(proto)
	c.regs.Unpin(cls)
	c.freeReg(cls)
	c.settle(d)
}

// staticField wraps a static field so that it can sit in the ordered list
// of static elements next to static blocks.
type staticField struct {
	*ast.FieldDefinition
	field classField
}

func (c *Compiler) hiddenBinding(prefix string) string {
	name := prefix + strconv.Itoa(c.fieldCount)
	c.fieldCount++
	c.emit(bytecode.OpDeclare, c.name(name), int(scope.Const))
	return name
}

func privateKey(el ast.ClassElement) string {
	switch el := el.(type) {
	case *ast.MethodDefinition:
		if p, ok := el.Key.(*ast.PrivateIdentifier); ok {
			return p.Name.String()
		}
	case *ast.FieldDefinition:
		if p, ok := el.Key.(*ast.PrivateIdentifier); ok {
			return p.Name.String()
		}
	}
	return ""
}

func isConstructor(m *ast.MethodDefinition) bool {
	if m.Static || m.Computed {
		return false
	}
	key, ok := m.Key.(*ast.StringLiteral)
	return ok && key.Value == "constructor"
}

func (c *Compiler) constructorBlueprint(lit *ast.ClassLiteral, name string, derived bool) *bytecode.FunctionBlueprint {
	flags := bytecode.FuncClassConstructor | bytecode.FuncStrict
	if derived {
		flags |= bytecode.FuncDerived
	}
	for _, el := range lit.Body {
		if m, ok := el.(*ast.MethodDefinition); ok && isConstructor(m) {
			var body []ast.Statement
			if m.Body.Body != nil {
				body = m.Body.Body.List
			}
			return c.compileFunc(funcSpec{node: m, name: name, params: m.Body.ParameterList, body: body, flags: flags, source: lit.Source})
		}
	}
	return c.compileFunc(funcSpec{node: lit, name: name, flags: flags, source: lit.Source, emit: func(fc *Compiler) {
		if derived {
			fc.emit(bytecode.OpArgsBegin)
			fc.emit(bytecode.OpLdaRestArgs, 0)
			fc.emit(bytecode.OpPushSpreadAcc)
			fc.emit(bytecode.OpSuperCall)
		}
		fc.emit(bytecode.OpReturnUndefined)
	}})
}

// classMethod defines a method on home. Private instance methods are
// only compiled here; the instance initializer installs them.
func (c *Compiler) classMethod(m *ast.MethodDefinition, home Register) (classField, bool) {
	c.at(m)
	kind := methodKind(m.Kind)
	if priv, ok := m.Key.(*ast.PrivateIdentifier); ok {
		name := priv.Name.String()
		bp := c.methodBlueprint(m.Body, "#"+name, kind, bytecode.FuncStrict)
		k := c.constant(bytecode.Blueprint(bp))
		if m.Static {
			key := c.privateName(name)
			c.emit(bytecode.OpMakeClosure, k)
			c.emit(bytecode.OpInitHomeObject, int(home))
			c.emit(bytecode.OpDefineMethod, int(home), int(key), kind)
			c.freeReg(key)
			return classField{}, false
		}
		hidden := c.hiddenBinding("#" + name + ":")
		c.emit(bytecode.OpMakeClosure, k)
		c.emit(bytecode.OpInitHomeObject, int(home))
		c.emit(bytecode.OpInitEnvAcc, c.name(hidden))
		return classField{node: m, name: name, hidden: hidden, private: true, method: kind}, true
	}

	key := c.allocReg(m)
	name, static := staticKey(m.Key, m.Computed)
	if static {
		c.emit(bytecode.OpLdaConstReg, int(key), c.constant(bytecode.String(name)))
	} else {
		c.expr(m.Key, intoAcc)
		c.emit(bytecode.OpToPropertyKeyAcc)
		c.emit(bytecode.OpStar, int(key))
	}
	bp := c.methodBlueprint(m.Body, name, kind, bytecode.FuncStrict)
	c.emit(bytecode.OpMakeClosure, c.constant(bytecode.Blueprint(bp)))
	c.emit(bytecode.OpInitHomeObject, int(home))
	c.emit(bytecode.OpDefineMethod, int(home), int(key), kind)
	c.freeReg(key)
	return classField{}, false
}

// fieldInitializer is the body of an instance or static initializer: this
// is the object being initialised.
func (c *Compiler) fieldInitializer(fields []classField) {
	this := c.allocReg(nil)
	c.emit(bytecode.OpLdaThis)
	c.emit(bytecode.OpStar, int(this))
	for _, f := range fields {
		c.at(f.node)
		key := c.allocReg(f.node)
		switch {
		case f.private:
			c.emit(bytecode.OpLoadEnvReg, int(key), c.name("#"+f.name))
		case f.computed:
			c.emit(bytecode.OpLoadEnvReg, int(key), c.name(f.hidden))
		default:
			c.emit(bytecode.OpLdaConstReg, int(key), c.constant(bytecode.String(f.name)))
		}
		if f.method >= 0 {
			c.emit(bytecode.OpLoadEnvAcc, c.name(f.hidden))
			c.emit(bytecode.OpDefineMethod, int(this), int(key), f.method)
			c.freeReg(key)
			continue
		}
		if f.init != nil {
			name := f.name
			if f.private {
				name = "#" + name
			}
			c.namedExpr(f.init, name, intoAcc)
		} else {
			c.emit(bytecode.OpLdaUndefined)
		}
		if f.private {
			c.emit(bytecode.OpDefinePrivate, int(this), int(key))
		} else {
			c.emit(bytecode.OpDefineComputed, int(this), int(key))
		}
		c.freeReg(key)
	}
	c.freeReg(this)
	c.emit(bytecode.OpReturnUndefined)
}
