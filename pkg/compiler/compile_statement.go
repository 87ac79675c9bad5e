package compiler

import (
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"

	"cinder/pkg/bytecode"
	"cinder/pkg/scope"
)

const (
	loopFlags   = int(scope.FlagLoop | scope.FlagBreakable | scope.FlagContinuable | scope.FlagBlock)
	switchFlags = int(scope.FlagBreakable | scope.FlagBlock)
	blockFlags  = int(scope.FlagBlock)
)

func (c *Compiler) statements(list []ast.Statement) {
	for _, s := range list {
		c.statement(s)
	}
}

func (c *Compiler) statement(s ast.Statement) {
	c.at(s)
	switch s := s.(type) {
	case *ast.ExpressionStatement:
		if c.hasCompletion {
			c.expr(s.Expression, intoReg(c.completion))
		} else {
			c.expr(s.Expression, discard)
		}
	case *ast.VariableStatement:
		c.bindings(s.List, bindVar)
	case *ast.LexicalDeclaration:
		c.lexicalDeclaration(s)
	case *ast.FunctionDeclaration:
		// instantiated when the enclosing scope was entered
	case *ast.ClassDeclaration:
		name := ""
		if s.Class.Name != nil {
			name = s.Class.Name.Name.String()
		}
		c.class(s.Class, name, intoAcc)
		if name != "" {
			c.emit(bytecode.OpInitEnvAcc, c.name(name))
		}
	case *ast.BlockStatement:
		c.block(s.List)
	case *ast.EmptyStatement:
	case *ast.IfStatement:
		c.ifStatement(s)
	case *ast.WhileStatement:
		c.whileStatement(s, nil, scope.NoLabel)
	case *ast.DoWhileStatement:
		c.doWhileStatement(s, nil, scope.NoLabel)
	case *ast.ForStatement:
		c.forStatement(s, nil, scope.NoLabel)
	case *ast.ForInStatement:
		c.forInOf(s.Into, s.Source, s.Body, iterForIn, nil, scope.NoLabel)
	case *ast.ForOfStatement:
		c.forOfStatement(s, nil, scope.NoLabel)
	case *ast.LabelledStatement:
		c.labelled(s)
	case *ast.BranchStatement:
		c.branch(s)
	case *ast.ReturnStatement:
		c.returnStatement(s)
	case *ast.ThrowStatement:
		c.expr(s.Argument, intoAcc)
		c.at(s)
		c.emit(bytecode.OpThrowAcc)
	case *ast.TryStatement:
		c.tryStatement(s)
	case *ast.SwitchStatement:
		c.switchStatement(s, nil, scope.NoLabel)
	case *ast.WithStatement:
		c.expr(s.Object, intoAcc)
		c.emit(bytecode.OpPushWith)
		c.statement(s.Body)
		c.emit(bytecode.OpPopScope)
	case *ast.DebuggerStatement:
		c.emit(bytecode.OpDebugger)
	case *ast.BadStatement:
		c.errorf(s, "invalid statement")
	default:
		c.errorf(s, "unsupported statement %T", s)
	}
}

// block compiles a statement list in its own scope when it declares
// anything block-scoped.
func (c *Compiler) block(list []ast.Statement) {
	scoped := hasBlockDeclarations(list)
	if scoped {
		c.pushScope(blockFlags, scope.NoLabel)
		c.hoistDeclarations(list, false)
	}
	c.statements(list)
	if scoped {
		c.emit(bytecode.OpPopScope)
	}
}

func (c *Compiler) lexicalDeclaration(d *ast.LexicalDeclaration) {
	c.bindings(d.List, bindInit)
}

// bindings compiles the declarators of a var, let or const declaration.
func (c *Compiler) bindings(list []*ast.Binding, mode bindMode) {
	for _, b := range list {
		c.at(b)
		id, isName := b.Target.(*ast.Identifier)
		if b.Initializer == nil {
			if mode == bindInit && isName {
				c.emit(bytecode.OpLdaUndefined)
				c.emit(bytecode.OpInitEnvAcc, c.name(id.Name.String()))
			}
			continue
		}
		if isName {
			v := c.name(id.Name.String())
			if mode == bindVar {
				c.namedExpr(b.Initializer, id.Name.String(), intoVar(v))
				continue
			}
			c.namedExpr(b.Initializer, id.Name.String(), intoAcc)
			c.emit(bytecode.OpInitEnvAcc, v)
			continue
		}
		c.expr(b.Initializer, intoAcc)
		c.bindTarget(b.Target, mode)
	}
}

func (c *Compiler) ifStatement(s *ast.IfStatement) {
	switch c.test(s.Test) {
	case testAlways:
		c.statement(s.Consequent)
	case testNever:
		if s.Alternate != nil {
			c.statement(s.Alternate)
		}
	default:
		skip := c.emit(bytecode.OpJmpIfNotAccRel, 0)
		c.statement(s.Consequent)
		if s.Alternate == nil {
			c.patchRelHere(skip)
			return
		}
		end := c.emit(bytecode.OpJmpRel, 0)
		c.patchRelHere(skip)
		c.statement(s.Alternate)
		c.patchRelHere(end)
	}
}

// Loops push a scope carrying their break and continue addresses. A normal
// exit pops it; break and continue unwind to it at run time.

func (c *Compiler) whileStatement(s *ast.WhileStatement, labels []string, idx int) {
	push := c.pushScope(loopFlags, idx)
	top := c.b.PC()
	exit := -1
	switch c.test(s.Test) {
	case testNever:
		c.emit(bytecode.OpPopScope)
		c.finishLoop(push, top)
		return
	case testCond:
		exit = c.emit(bytecode.OpJmpIfNotAcc, bytecode.NoAddr)
	}
	c.loopBody(s.Body, labels, idx)
	c.emit(bytecode.OpJmp, top)
	if exit >= 0 {
		c.patchHere(exit, 0)
	}
	c.emit(bytecode.OpPopScope)
	c.finishLoop(push, top)
}

func (c *Compiler) doWhileStatement(s *ast.DoWhileStatement, labels []string, idx int) {
	push := c.pushScope(loopFlags, idx)
	top := c.b.PC()
	c.loopBody(s.Body, labels, idx)
	cont := c.b.PC()
	switch c.test(s.Test) {
	case testAlways:
		c.emit(bytecode.OpJmp, top)
	case testCond:
		c.emit(bytecode.OpJmpIfAcc, top)
	}
	c.emit(bytecode.OpPopScope)
	c.finishLoop(push, cont)
}

func (c *Compiler) forStatement(s *ast.ForStatement, labels []string, idx int) {
	push := c.pushScope(loopFlags, idx)
	perIteration := false
	switch init := s.Initializer.(type) {
	case *ast.ForLoopInitializerLexicalDecl:
		d := &init.LexicalDeclaration
		kind := scope.Let
		if d.Token == token.CONST {
			kind = scope.Const
		} else {
			perIteration = true
		}
		for _, b := range d.List {
			for _, n := range boundNames(b.Target) {
				c.emit(bytecode.OpDeclare, c.name(n), int(kind))
			}
		}
		c.bindings(d.List, bindInit)
	case *ast.ForLoopInitializerVarDeclList:
		c.bindings(init.List, bindVar)
	case *ast.ForLoopInitializerExpression:
		c.expr(init.Expression, discard)
	}
	if perIteration {
		c.emit(bytecode.OpRenewScope)
	}
	top := c.b.PC()
	exit := -1
	if s.Test != nil {
		switch c.test(s.Test) {
		case testNever:
			c.emit(bytecode.OpPopScope)
			c.finishLoop(push, top)
			return
		case testCond:
			exit = c.emit(bytecode.OpJmpIfNotAcc, bytecode.NoAddr)
		}
	}
	c.loopBody(s.Body, labels, idx)
	cont := c.b.PC()
	if perIteration {
		c.emit(bytecode.OpRenewScope)
	}
	if s.Update != nil {
		c.expr(s.Update, discard)
	}
	c.emit(bytecode.OpJmp, top)
	if exit >= 0 {
		c.patchHere(exit, 0)
	}
	c.emit(bytecode.OpPopScope)
	c.finishLoop(push, cont)
}

// finishLoop patches the break address of the loop scope to the next
// instruction and its continue address to cont.
func (c *Compiler) finishLoop(push, cont int) {
	c.patchHere(push, 2)
	c.b.PatchAddr(push, 3, cont)
}

func (c *Compiler) loopBody(body ast.Statement, labels []string, idx int) {
	c.pushTarget(targetLoop, labels, idx)
	c.statement(body)
	c.popTarget()
}

// Iteration modes of GetIterator.
const (
	iterSync          = 0
	iterSyncDetached  = 1
	iterAsync         = 2
	iterForIn         = 3
	iterAsyncDetached = 4
)

func (c *Compiler) forOfStatement(s *ast.ForOfStatement, labels []string, idx int) {
	c.forInOf(s.Into, s.Source, s.Body, iterSync, labels, idx)
}

func (c *Compiler) forInOf(into ast.ForInto, source ast.Expression, body ast.Statement, mode int, labels []string, idx int) {
	c.expr(source, intoAcc)
	push := c.pushScope(loopFlags, idx)
	c.emit(bytecode.OpGetIterator, mode)
	it := c.allocReg(source)
	c.regs.Pin(it)
	c.emit(bytecode.OpStar, int(it))

	cont := c.b.PC()
	done := c.emit(bytecode.OpIteratorNext, int(it), bytecode.NoAddr)

	switch into := into.(type) {
	case *ast.ForDeclaration:
		kind := scope.Let
		if into.IsConst {
			kind = scope.Const
		}
		c.pushScope(blockFlags, scope.NoLabel)
		for _, n := range boundNames(into.Target) {
			c.emit(bytecode.OpDeclare, c.name(n), int(kind))
		}
		c.bindTarget(into.Target, bindInit)
		c.loopBody(body, labels, idx)
		c.emit(bytecode.OpPopScope)
	case *ast.ForIntoVar:
		c.bindTarget(into.Binding.Target, bindVar)
		c.loopBody(body, labels, idx)
	case *ast.ForIntoExpression:
		c.bindTarget(into.Expression, bindAssign)
		c.loopBody(body, labels, idx)
	default:
		c.errorf(source, "unsupported loop binding %T", into)
	}
	c.emit(bytecode.OpJmp, cont)
	c.patchHere(done, 1)
	c.emit(bytecode.OpPopScope)
	c.finishLoop(push, cont)
	c.regs.Unpin(it)
	c.freeReg(it)
}

func (c *Compiler) labelled(s *ast.LabelledStatement) {
	labels := []string{s.Label.Name.String()}
	stmt := s.Statement
	for {
		inner, ok := stmt.(*ast.LabelledStatement)
		if !ok {
			break
		}
		labels = append(labels, inner.Label.Name.String())
		stmt = inner.Statement
	}
	idx := c.nextLabelIndex()
	c.at(stmt)
	switch st := stmt.(type) {
	case *ast.WhileStatement:
		c.whileStatement(st, labels, idx)
	case *ast.DoWhileStatement:
		c.doWhileStatement(st, labels, idx)
	case *ast.ForStatement:
		c.forStatement(st, labels, idx)
	case *ast.ForInStatement:
		c.forInOf(st.Into, st.Source, st.Body, iterForIn, labels, idx)
	case *ast.ForOfStatement:
		c.forOfStatement(st, labels, idx)
	case *ast.SwitchStatement:
		c.switchStatement(st, labels, idx)
	default:
		push := c.pushScope(blockFlags, idx)
		c.pushTarget(targetBlock, labels, idx)
		c.statement(stmt)
		c.popTarget()
		c.emit(bytecode.OpPopScope)
		c.patchHere(push, 2)
	}
}

func (c *Compiler) branch(s *ast.BranchStatement) {
	isBreak := s.Token == token.BREAK
	if s.Label == nil {
		for i := len(c.targets) - 1; i >= 0; i-- {
			t := c.targets[i]
			if t.kind == targetLoop || (isBreak && t.kind == targetSwitch) {
				if isBreak {
					c.emit(bytecode.OpBreak)
				} else {
					c.emit(bytecode.OpContinue)
				}
				return
			}
		}
		if isBreak {
			c.errorf(s, "Illegal break statement")
		} else {
			c.errorf(s, "Illegal continue statement: no surrounding iteration statement")
		}
		return
	}
	name := s.Label.Name.String()
	t := c.findLabel(name)
	if t == nil {
		c.errorf(s, "Undefined label '%s'", name)
		return
	}
	if isBreak {
		c.emit(bytecode.OpBreakLabel, t.index)
		return
	}
	if t.kind != targetLoop {
		c.errorf(s, "Illegal continue statement: '%s' does not denote an iteration statement", name)
		return
	}
	c.emit(bytecode.OpContinueLabel, t.index)
}

func (c *Compiler) returnStatement(s *ast.ReturnStatement) {
	if c.topLevel {
		c.errorf(s, "Illegal return statement")
		return
	}
	if s.Argument == nil {
		c.emit(bytecode.OpReturnUndefined)
		return
	}
	c.expr(s.Argument, intoAcc)
	if c.flags&bytecode.FuncAsync != 0 && c.flags&bytecode.FuncGenerator != 0 {
		c.emit(bytecode.OpAwait)
	}
	c.at(s)
	c.emit(bytecode.OpReturnAcc)
}

// Try regions: EnterTry records the catch and finally addresses. Leaving
// the protected part runs ExitTry, which either pops the region or parks a
// normal completion and enters the finally block.
func (c *Compiler) tryStatement(s *ast.TryStatement) {
	binding := bytecode.NoVar
	var pattern ast.BindingTarget
	if s.Catch != nil && s.Catch.Parameter != nil {
		if id, ok := s.Catch.Parameter.(*ast.Identifier); ok {
			binding = c.name(id.Name.String())
		} else {
			pattern = s.Catch.Parameter
		}
	}
	enter := c.emit(bytecode.OpEnterTry, bytecode.NoAddr, bytecode.NoAddr, binding)
	c.block(s.Body.List)
	c.emit(bytecode.OpExitTry)
	var exits []int
	if s.Finally == nil {
		exits = append(exits, c.emit(bytecode.OpJmp, bytecode.NoAddr))
	}
	if s.Catch != nil {
		c.patchHere(enter, 0)
		if pattern != nil {
			for _, n := range boundNames(pattern) {
				c.emit(bytecode.OpDeclare, c.name(n), int(scope.CatchParam))
			}
			c.bindTarget(pattern, bindInit)
		}
		c.block(s.Catch.Body.List)
		c.emit(bytecode.OpPopScope)
		c.emit(bytecode.OpExitTry)
		if s.Finally == nil {
			exits = append(exits, c.emit(bytecode.OpJmp, bytecode.NoAddr))
		}
	}
	if s.Finally != nil {
		c.patchHere(enter, 1)
		c.block(s.Finally.List)
		c.emit(bytecode.OpEndFinally)
	}
	c.patchAllHere(exits, 0)
}

func (c *Compiler) switchStatement(s *ast.SwitchStatement, labels []string, idx int) {
	c.expr(s.Discriminant, intoAcc)
	disc := c.allocReg(s.Discriminant)
	c.regs.Pin(disc)
	c.emit(bytecode.OpStar, int(disc))
	push := c.pushScope(switchFlags, idx)

	var consequents []ast.Statement
	for _, cs := range s.Body {
		consequents = append(consequents, cs.Consequent...)
	}
	c.hoistDeclarations(consequents, false)

	jumps := make([]int, len(s.Body))
	for i, cs := range s.Body {
		if cs.Test == nil {
			continue
		}
		c.expr(cs.Test, intoAcc)
		c.emit(bytecode.OpStrictEqRegAcc, int(disc))
		jumps[i] = c.emit(bytecode.OpJmpIfAcc, bytecode.NoAddr)
	}
	noMatch := c.emit(bytecode.OpJmp, bytecode.NoAddr)

	c.pushTarget(targetSwitch, labels, idx)
	defaultAt := -1
	for i, cs := range s.Body {
		if cs.Test == nil {
			defaultAt = c.b.PC()
		} else {
			c.patchHere(jumps[i], 0)
		}
		c.statements(cs.Consequent)
	}
	c.popTarget()
	if defaultAt >= 0 {
		c.b.PatchAddr(noMatch, 0, defaultAt)
	} else {
		c.patchHere(noMatch, 0)
	}
	c.emit(bytecode.OpPopScope)
	c.patchHere(push, 2)
	c.regs.Unpin(disc)
	c.freeReg(disc)
}
