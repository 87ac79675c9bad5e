package compiler

import (
	stderrors "errors"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"

	"cinder/pkg/bytecode"
	"cinder/pkg/errors"
	"cinder/pkg/source"
)

// Parse parses src into a program. Parser diagnostics are returned as
// syntax errors carrying the source position.
func Parse(src *source.SourceFile) (*ast.Program, []errors.CinderError) {
	prog, err := parser.ParseFile(nil, src.DisplayPath(), src.Content, 0, parser.WithDisableSourceMaps)
	if err == nil {
		return prog, nil
	}
	return nil, parseErrors(err, src)
}

func parseErrors(err error, src *source.SourceFile) []errors.CinderError {
	var list parser.ErrorList
	if !stderrors.As(err, &list) {
		var one *parser.Error
		if stderrors.As(err, &one) {
			list = parser.ErrorList{one}
		}
	}
	if len(list) == 0 {
		return []errors.CinderError{&errors.SyntaxError{Position: errors.Position{Source: src}, Msg: err.Error(), Cause: err}}
	}
	out := make([]errors.CinderError, 0, len(list))
	for _, e := range list {
		out = append(out, &errors.SyntaxError{
			Position: errors.Position{Line: e.Position.Line, Column: e.Position.Column, Source: src},
			Msg:      e.Message,
			Cause:    e,
		})
	}
	return out
}

// CompileSource parses and compiles src in one step.
func CompileSource(src *source.SourceFile, opts Options) (*bytecode.Module, []errors.CinderError) {
	prog, errs := Parse(src)
	if len(errs) > 0 {
		return nil, errs
	}
	if opts.Source == nil {
		opts.Source = src
	}
	if opts.Name == "" {
		opts.Name = src.DisplayPath()
	}
	return Compile(prog, opts)
}
