package compiler

import (
	"fmt"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/token"

	"cinder/pkg/errors"
	"cinder/pkg/source"
)

// Validate applies the early-error rules that the parser leaves to the
// compiler. A program that fails validation is never compiled.
func Validate(prog *ast.Program, src *source.SourceFile) (bool, []errors.CinderError) {
	v := &validator{file: prog.File, src: src}
	top := &funcContext{strict: hasUseStrict(prog.Body)}
	v.statementList(prog.Body, top, true)
	for _, s := range prog.Body {
		v.walk(s, top)
	}
	return len(v.errs) == 0, v.errs
}

type validator struct {
	file *file.File
	src  *source.SourceFile
	errs []errors.CinderError
	// privates holds the private names declared by each enclosing class.
	privates []map[string]bool
}

// funcContext describes the innermost non-arrow function around a node.
type funcContext struct {
	strict    bool
	superProp bool // super.x allowed
	superCall bool // super() allowed
	labels    []string
}

func (v *validator) errorf(node ast.Node, format string, args ...interface{}) {
	pos := errors.Position{Source: v.src}
	if v.file != nil && !isNilNode(node) {
		off := int(node.Idx0()) - v.file.Base()
		p := v.file.Position(off)
		pos.Line, pos.Column, pos.StartPos, pos.EndPos = p.Line, p.Column, off, off
	}
	v.errs = append(v.errs, &errors.SyntaxError{Position: pos, Msg: fmt.Sprintf(format, args...)})
}

// statementList checks the declarations of one statement list. Function
// declarations are lexical except at the top of a function or script.
func (v *validator) statementList(list []ast.Statement, ctx *funcContext, top bool) {
	lexical := map[string]bool{}
	declare := func(node ast.Node, name string) {
		if lexical[name] {
			v.errorf(node, "Identifier '%s' has already been declared", name)
		}
		lexical[name] = true
	}
	for _, s := range list {
		switch d := s.(type) {
		case *ast.LexicalDeclaration:
			for _, b := range d.List {
				for _, n := range boundNames(b.Target) {
					declare(b, n)
				}
			}
		case *ast.ClassDeclaration:
			if d.Class.Name != nil {
				declare(d, d.Class.Name.Name.String())
			}
		case *ast.FunctionDeclaration:
			if !top && d.Function.Name != nil {
				declare(d, d.Function.Name.Name.String())
			}
		}
	}
	if top {
		for _, s := range list {
			if d, ok := s.(*ast.FunctionDeclaration); ok && d.Function.Name != nil {
				if name := d.Function.Name.Name.String(); lexical[name] {
					v.errorf(d, "Identifier '%s' has already been declared", name)
				}
			}
		}
	}
	for _, n := range varNames(list) {
		if lexical[n] {
			v.errorf(firstNode(list), "Identifier '%s' has already been declared", n)
		}
	}
}

func firstNode(list []ast.Statement) ast.Node {
	if len(list) == 0 {
		return nil
	}
	return list[0]
}

func (v *validator) params(params *ast.ParameterList, body []ast.Statement, strict, arrow bool) {
	if params == nil {
		return
	}
	strictParams := strict || arrow || !isSimpleParams(params)
	seen := map[string]bool{}
	var targets []ast.Expression
	for _, b := range params.List {
		targets = append(targets, b.Target)
	}
	if params.Rest != nil {
		targets = append(targets, params.Rest)
	}
	for _, t := range targets {
		for _, n := range boundNames(t) {
			if seen[n] && strictParams {
				v.errorf(t, "Duplicate parameter name not allowed in this context")
			}
			seen[n] = true
		}
	}
	for _, s := range body {
		if d, ok := s.(*ast.LexicalDeclaration); ok {
			for _, b := range d.List {
				for _, n := range boundNames(b.Target) {
					if seen[n] {
						v.errorf(b, "Identifier '%s' has already been declared", n)
					}
				}
			}
		}
	}
}

func (v *validator) function(lit *ast.FunctionLiteral, outer *funcContext, superProp, superCall bool) {
	var body []ast.Statement
	if lit.Body != nil {
		body = lit.Body.List
	}
	ctx := &funcContext{
		strict:    outer.strict || hasUseStrict(body),
		superProp: superProp,
		superCall: superCall,
	}
	v.params(lit.ParameterList, body, ctx.strict, false)
	v.statementList(body, ctx, true)
	v.walk(lit.ParameterList, ctx)
	for _, s := range body {
		v.walk(s, ctx)
	}
}

func (v *validator) class(lit *ast.ClassLiteral, outer *funcContext) {
	ctx := &funcContext{strict: true, superProp: outer.superProp, superCall: outer.superCall}
	v.walk(lit.SuperClass, ctx)

	names := map[string]bool{}
	for _, el := range lit.Body {
		if key := privateKey(el); key != "" {
			names[key] = true
		}
	}
	v.privates = append(v.privates, names)
	defer func() { v.privates = v.privates[:len(v.privates)-1] }()

	derived := lit.SuperClass != nil
	for _, el := range lit.Body {
		switch el := el.(type) {
		case *ast.MethodDefinition:
			if el.Computed {
				v.walk(el.Key, ctx)
			}
			v.function(el.Body, ctx, true, derived && isConstructor(el))
		case *ast.FieldDefinition:
			if el.Computed {
				v.walk(el.Key, ctx)
			}
			v.walk(el.Initializer, &funcContext{strict: true, superProp: true})
		case *ast.ClassStaticBlock:
			inner := &funcContext{strict: true, superProp: true}
			if el.Block != nil {
				v.statementList(el.Block.List, inner, true)
				for _, s := range el.Block.List {
					v.walk(s, inner)
				}
			}
		}
	}
}

func (v *validator) privateDeclared(name string) bool {
	for i := len(v.privates) - 1; i >= 0; i-- {
		if v.privates[i][name] {
			return true
		}
	}
	return false
}

// walk checks node and its children under ctx.
func (v *validator) walk(node ast.Node, ctx *funcContext) {
	inspect(node, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.BadStatement, *ast.BadExpression:
			v.errorf(n, "Unexpected token")
			return false
		case *ast.FunctionLiteral:
			v.function(n, ctx, false, false)
			return false
		case *ast.ArrowFunctionLiteral:
			inner := &funcContext{strict: ctx.strict, superProp: ctx.superProp, superCall: ctx.superCall}
			var body []ast.Statement
			if b, ok := n.Body.(*ast.BlockStatement); ok {
				body = b.List
				inner.strict = inner.strict || hasUseStrict(body)
				v.statementList(body, inner, true)
			}
			v.params(n.ParameterList, body, inner.strict, true)
			v.walk(n.ParameterList, inner)
			if e, ok := n.Body.(*ast.ExpressionBody); ok {
				v.walk(e.Expression, inner)
			}
			for _, s := range body {
				v.walk(s, inner)
			}
			return false
		case *ast.ClassLiteral:
			v.class(n, ctx)
			return false
		case *ast.PropertyKeyed:
			if n.Kind != ast.PropertyKindValue {
				if n.Computed {
					v.walk(n.Key, ctx)
				}
				if lit, ok := n.Value.(*ast.FunctionLiteral); ok {
					v.function(lit, ctx, true, false)
					return false
				}
			}
		case *ast.BlockStatement:
			v.statementList(n.List, ctx, false)
		case *ast.SwitchStatement:
			var all []ast.Statement
			for _, c := range n.Body {
				all = append(all, c.Consequent...)
			}
			v.statementList(all, ctx, false)
		case *ast.LabelledStatement:
			name := n.Label.Name.String()
			for _, l := range ctx.labels {
				if l == name {
					v.errorf(n, "Label '%s' has already been declared", name)
				}
			}
			ctx.labels = append(ctx.labels, name)
			v.walk(n.Statement, ctx)
			ctx.labels = ctx.labels[:len(ctx.labels)-1]
			return false
		case *ast.WithStatement:
			if ctx.strict {
				v.errorf(n, "Strict mode code may not include a with statement")
			}
		case *ast.UnaryExpression:
			if n.Operator == token.DELETE && ctx.strict {
				if _, ok := n.Operand.(*ast.Identifier); ok {
					v.errorf(n, "Delete of an unqualified identifier in strict mode.")
				}
			}
		case *ast.CallExpression:
			if _, ok := n.Callee.(*ast.SuperExpression); ok {
				if !ctx.superCall {
					v.errorf(n, "'super' keyword unexpected here")
				}
				for _, a := range n.ArgumentList {
					v.walk(a, ctx)
				}
				return false
			}
		case *ast.SuperExpression:
			if !ctx.superProp {
				v.errorf(n, "'super' keyword unexpected here")
			}
		case *ast.PrivateDotExpression:
			if name := n.Identifier.Name.String(); !v.privateDeclared(name) {
				v.errorf(n, "Private field '#%s' must be declared in an enclosing class", name)
			}
		case *ast.BinaryExpression:
			if p, ok := n.Left.(*ast.PrivateIdentifier); ok {
				if name := p.Name.String(); !v.privateDeclared(name) {
					v.errorf(n, "Private field '#%s' must be declared in an enclosing class", name)
				}
				v.walk(n.Right, ctx)
				return false
			}
		}
		return true
	})
}
