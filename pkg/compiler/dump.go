package compiler

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
)

// DumpAST writes an indented outline of prog to w, one node per line with
// its source position.
func DumpAST(w io.Writer, prog *ast.Program) {
	dumpNode(w, prog.File, prog, 0)
}

func dumpNode(w io.Writer, f *file.File, node ast.Node, depth int) {
	fmt.Fprintf(w, "%s%s", strings.Repeat("  ", depth), strings.TrimPrefix(fmt.Sprintf("%T", node), "*ast."))
	if detail := nodeDetail(node); detail != "" {
		fmt.Fprintf(w, " %s", detail)
	}
	if f != nil && node.Idx0() > 0 {
		p := f.Position(int(node.Idx0()) - f.Base())
		fmt.Fprintf(w, " @%d:%d", p.Line, p.Column)
	}
	fmt.Fprintln(w)
	inspect(node, func(child ast.Node) bool {
		if child == node {
			return true
		}
		dumpNode(w, f, child, depth+1)
		return false
	})
}

func nodeDetail(node ast.Node) string {
	switch n := node.(type) {
	case *ast.Identifier:
		return n.Name.String()
	case *ast.PrivateIdentifier:
		return "#" + n.Name.String()
	case *ast.StringLiteral:
		return strconv.Quote(n.Value.String())
	case *ast.NumberLiteral:
		return n.Literal
	case *ast.BooleanLiteral:
		return strconv.FormatBool(n.Value)
	case *ast.RegExpLiteral:
		return n.Literal
	case *ast.BinaryExpression:
		return n.Operator.String()
	case *ast.AssignExpression:
		return n.Operator.String()
	case *ast.UnaryExpression:
		return n.Operator.String()
	case *ast.LexicalDeclaration:
		return n.Token.String()
	case *ast.FunctionLiteral:
		if n.Name != nil {
			return n.Name.Name.String()
		}
	case *ast.ClassLiteral:
		if n.Name != nil {
			return n.Name.Name.String()
		}
	}
	return ""
}
