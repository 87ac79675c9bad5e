package compiler

import (
	"github.com/dop251/goja/ast"
)

// inspect traverses node depth-first in source order, like go/ast.Inspect:
// visit is called for each node and its children are skipped when it
// returns false. Nil nodes are not visited.
func inspect(node ast.Node, visit func(ast.Node) bool) {
	if isNilNode(node) || !visit(node) {
		return
	}
	switch n := node.(type) {
	case *ast.Program:
		for _, s := range n.Body {
			inspect(s, visit)
		}

	// statements
	case *ast.BlockStatement:
		for _, s := range n.List {
			inspect(s, visit)
		}
	case *ast.ExpressionStatement:
		inspect(n.Expression, visit)
	case *ast.VariableStatement:
		for _, b := range n.List {
			inspect(b, visit)
		}
	case *ast.LexicalDeclaration:
		for _, b := range n.List {
			inspect(b, visit)
		}
	case *ast.FunctionDeclaration:
		inspect(n.Function, visit)
	case *ast.ClassDeclaration:
		inspect(n.Class, visit)
	case *ast.IfStatement:
		inspect(n.Test, visit)
		inspect(n.Consequent, visit)
		inspect(n.Alternate, visit)
	case *ast.WhileStatement:
		inspect(n.Test, visit)
		inspect(n.Body, visit)
	case *ast.DoWhileStatement:
		inspect(n.Body, visit)
		inspect(n.Test, visit)
	case *ast.ForStatement:
		inspect(n.Initializer, visit)
		inspect(n.Test, visit)
		inspect(n.Update, visit)
		inspect(n.Body, visit)
	case *ast.ForInStatement:
		inspect(n.Into, visit)
		inspect(n.Source, visit)
		inspect(n.Body, visit)
	case *ast.ForOfStatement:
		inspect(n.Into, visit)
		inspect(n.Source, visit)
		inspect(n.Body, visit)
	case *ast.LabelledStatement:
		inspect(n.Statement, visit)
	case *ast.ReturnStatement:
		inspect(n.Argument, visit)
	case *ast.ThrowStatement:
		inspect(n.Argument, visit)
	case *ast.SwitchStatement:
		inspect(n.Discriminant, visit)
		for _, c := range n.Body {
			inspect(c, visit)
		}
	case *ast.CaseStatement:
		inspect(n.Test, visit)
		for _, s := range n.Consequent {
			inspect(s, visit)
		}
	case *ast.TryStatement:
		inspect(n.Body, visit)
		inspect(n.Catch, visit)
		inspect(n.Finally, visit)
	case *ast.CatchStatement:
		inspect(n.Parameter, visit)
		inspect(n.Body, visit)
	case *ast.WithStatement:
		inspect(n.Object, visit)
		inspect(n.Body, visit)

	// loop heads
	case *ast.ForLoopInitializerExpression:
		inspect(n.Expression, visit)
	case *ast.ForLoopInitializerVarDeclList:
		for _, b := range n.List {
			inspect(b, visit)
		}
	case *ast.ForLoopInitializerLexicalDecl:
		inspect(&n.LexicalDeclaration, visit)
	case *ast.ForIntoVar:
		inspect(n.Binding, visit)
	case *ast.ForDeclaration:
		inspect(n.Target, visit)
	case *ast.ForIntoExpression:
		inspect(n.Expression, visit)

	// expressions
	case *ast.Binding:
		inspect(n.Target, visit)
		inspect(n.Initializer, visit)
	case *ast.ArrayLiteral:
		for _, e := range n.Value {
			inspect(e, visit)
		}
	case *ast.ArrayPattern:
		for _, e := range n.Elements {
			inspect(e, visit)
		}
		inspect(n.Rest, visit)
	case *ast.ObjectLiteral:
		for _, p := range n.Value {
			inspect(p, visit)
		}
	case *ast.ObjectPattern:
		for _, p := range n.Properties {
			inspect(p, visit)
		}
		inspect(n.Rest, visit)
	case *ast.PropertyShort:
		inspect(&n.Name, visit)
		inspect(n.Initializer, visit)
	case *ast.PropertyKeyed:
		inspect(n.Key, visit)
		inspect(n.Value, visit)
	case *ast.SpreadElement:
		inspect(n.Expression, visit)
	case *ast.AssignExpression:
		inspect(n.Left, visit)
		inspect(n.Right, visit)
	case *ast.BinaryExpression:
		inspect(n.Left, visit)
		inspect(n.Right, visit)
	case *ast.UnaryExpression:
		inspect(n.Operand, visit)
	case *ast.ConditionalExpression:
		inspect(n.Test, visit)
		inspect(n.Consequent, visit)
		inspect(n.Alternate, visit)
	case *ast.SequenceExpression:
		for _, e := range n.Sequence {
			inspect(e, visit)
		}
	case *ast.CallExpression:
		inspect(n.Callee, visit)
		for _, a := range n.ArgumentList {
			inspect(a, visit)
		}
	case *ast.NewExpression:
		inspect(n.Callee, visit)
		for _, a := range n.ArgumentList {
			inspect(a, visit)
		}
	case *ast.DotExpression:
		inspect(n.Left, visit)
	case *ast.PrivateDotExpression:
		inspect(n.Left, visit)
	case *ast.BracketExpression:
		inspect(n.Left, visit)
		inspect(n.Member, visit)
	case *ast.OptionalChain:
		inspect(n.Expression, visit)
	case *ast.Optional:
		inspect(n.Expression, visit)
	case *ast.TemplateLiteral:
		inspect(n.Tag, visit)
		for _, e := range n.Expressions {
			inspect(e, visit)
		}
	case *ast.YieldExpression:
		inspect(n.Argument, visit)
	case *ast.AwaitExpression:
		inspect(n.Argument, visit)
	case *ast.FunctionLiteral:
		inspect(n.ParameterList, visit)
		inspect(n.Body, visit)
	case *ast.ArrowFunctionLiteral:
		inspect(n.ParameterList, visit)
		inspect(n.Body, visit)
	case *ast.ExpressionBody:
		inspect(n.Expression, visit)
	case *ast.ParameterList:
		for _, b := range n.List {
			inspect(b, visit)
		}
		inspect(n.Rest, visit)
	case *ast.ClassLiteral:
		inspect(n.SuperClass, visit)
		for _, el := range n.Body {
			inspect(el, visit)
		}
	case *ast.FieldDefinition:
		inspect(n.Key, visit)
		inspect(n.Initializer, visit)
	case *ast.MethodDefinition:
		inspect(n.Key, visit)
		inspect(n.Body, visit)
	case *ast.ClassStaticBlock:
		inspect(n.Block, visit)
	}
}

// isNilNode catches typed nil pointers stored in interfaces.
func isNilNode(n ast.Node) bool {
	if n == nil {
		return true
	}
	switch v := n.(type) {
	case *ast.BlockStatement:
		return v == nil
	case *ast.CatchStatement:
		return v == nil
	case *ast.Identifier:
		return v == nil
	case *ast.FunctionLiteral:
		return v == nil
	case *ast.ClassLiteral:
		return v == nil
	case *ast.ParameterList:
		return v == nil
	case *ast.Binding:
		return v == nil
	}
	return false
}

// inspectFunctionBody walks a function body without descending into
// nested non-arrow functions, classes' methods, or field initialisers.
// Arrow functions share their parent's arguments, this and super.
func inspectFunctionBody(node ast.Node, visit func(ast.Node) bool) {
	inspect(node, func(n ast.Node) bool {
		switch n.(type) {
		case *ast.FunctionLiteral, *ast.MethodDefinition, *ast.FieldDefinition, *ast.ClassStaticBlock:
			return false
		}
		return visit(n)
	})
}

// boundNames lists the identifiers a binding target declares.
func boundNames(target ast.Expression) []string {
	var names []string
	var collect func(e ast.Expression)
	collect = func(e ast.Expression) {
		switch t := e.(type) {
		case *ast.Identifier:
			names = append(names, t.Name.String())
		case *ast.ArrayPattern:
			for _, el := range t.Elements {
				if el != nil {
					collect(el)
				}
			}
			if t.Rest != nil {
				collect(t.Rest)
			}
		case *ast.ObjectPattern:
			for _, p := range t.Properties {
				switch p := p.(type) {
				case *ast.PropertyShort:
					names = append(names, p.Name.Name.String())
				case *ast.PropertyKeyed:
					collect(p.Value)
				case *ast.SpreadElement:
					collect(p.Expression)
				}
			}
			if t.Rest != nil {
				collect(t.Rest)
			}
		case *ast.AssignExpression:
			collect(t.Left)
		case *ast.Binding:
			collect(t.Target)
		}
	}
	collect(target)
	return names
}

// varNames collects var-declared names of a function or script body, in
// first-declaration order, without entering nested functions.
func varNames(body []ast.Statement) []string {
	seen := map[string]bool{}
	var out []string
	add := func(names []string) {
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	for _, s := range body {
		inspect(s, func(n ast.Node) bool {
			switch n := n.(type) {
			case *ast.FunctionLiteral, *ast.ArrowFunctionLiteral, *ast.ClassLiteral:
				return false
			case *ast.VariableStatement:
				for _, b := range n.List {
					add(boundNames(b.Target))
				}
			case *ast.ForLoopInitializerVarDeclList:
				for _, b := range n.List {
					add(boundNames(b.Target))
				}
			case *ast.ForIntoVar:
				add(boundNames(n.Binding.Target))
			}
			return true
		})
	}
	return out
}

// usesArguments reports whether a function body refers to the arguments
// object, directly or from a nested arrow function.
func usesArguments(params *ast.ParameterList, body ast.Node) bool {
	found := false
	check := func(n ast.Node) bool {
		if id, ok := n.(*ast.Identifier); ok && id.Name == "arguments" {
			found = true
		}
		return !found
	}
	if params != nil {
		inspectFunctionBody(params, check)
	}
	inspectFunctionBody(body, check)
	return found
}

// containsDirectEval reports whether body calls eval directly.
func containsDirectEval(body ast.Node) bool {
	found := false
	inspect(body, func(n ast.Node) bool {
		if call, ok := n.(*ast.CallExpression); ok {
			if id, ok := call.Callee.(*ast.Identifier); ok && id.Name == "eval" {
				found = true
			}
		}
		return !found
	})
	return found
}

// Requires lists the string-literal specifiers passed to require in prog,
// in source order and without duplicates.
func Requires(prog *ast.Program) []string {
	var specs []string
	seen := map[string]bool{}
	inspect(prog, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpression)
		if !ok || len(call.ArgumentList) != 1 {
			return true
		}
		if id, ok := call.Callee.(*ast.Identifier); !ok || id.Name != "require" {
			return true
		}
		if lit, ok := call.ArgumentList[0].(*ast.StringLiteral); ok {
			s := lit.Value.String()
			if !seen[s] {
				seen[s] = true
				specs = append(specs, s)
			}
		}
		return true
	})
	return specs
}
