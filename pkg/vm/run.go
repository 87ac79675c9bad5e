package vm

import (
	"cinder/pkg/bytecode"
	"cinder/pkg/heap"
	"cinder/pkg/realm"
	"cinder/pkg/scope"
)

// run executes f from f.ip until it returns, suspends or throws an error
// it cannot handle.
func (vm *VM) run(f *CallFrame) (heap.Value, error) {
	r := vm.realm
	h := vm.h
	code := f.code

	if inj := f.inject; inj != nil {
		f.inject = nil
		switch inj.kind {
		case compThrow:
			if err := vm.unwind(f, realm.NewException(inj.value)); err != nil {
				f.state = frameDone
				return heap.Undefined, err
			}
		case compReturn:
			done, err := vm.doReturn(f, inj.value)
			if err != nil {
				if err = vm.unwind(f, err); err != nil {
					f.state = frameDone
					return heap.Undefined, err
				}
			} else if done {
				f.state = frameDone
				return f.acc, nil
			}
		}
	}

	u8 := func() int {
		v := int(code[f.ip])
		f.ip++
		return v
	}
	u16 := func() int {
		v := bytecode.ReadU16(code, f.ip)
		f.ip += 2
		return v
	}
	i32 := func() int {
		v := bytecode.ReadI32(code, f.ip)
		f.ip += 4
		return v
	}
	u32 := func() int {
		v := bytecode.ReadU32(code, f.ip)
		f.ip += 4
		return v
	}
	name := func(v int) string { return f.module.VarName(v) }

	for {
		if f.ip >= len(code) {
			// Falling off the end returns undefined.
			done, err := vm.doReturn(f, heap.Undefined)
			if err == nil && done {
				f.state = frameDone
				return heap.Undefined, nil
			}
			if err != nil {
				if err = vm.unwind(f, err); err != nil {
					f.state = frameDone
					return heap.Undefined, err
				}
			}
			continue
		}
		f.pc = f.ip
		op := bytecode.OpCode(code[f.ip])
		f.ip++
		if vm.cfg.Trace {
			log.Debugf("%s %04d %s", f.name, f.pc, op)
		}

		var err error
		switch op {
		case bytecode.OpNop:

		// --- loads ---
		case bytecode.OpLdaConstAcc:
			f.acc, err = vm.constant(f, u16())
		case bytecode.OpLdaConstReg:
			x := u8()
			f.regs[x], err = vm.constant(f, u16())
		case bytecode.OpLdaConstVar:
			v := u16()
			var c heap.Value
			if c, err = vm.constant(f, u16()); err == nil {
				err = f.scope.Set(name(v), c, f.strict)
			}
		case bytecode.OpLdaUndefined:
			f.acc = heap.Undefined
		case bytecode.OpLdaNull:
			f.acc = heap.Null
		case bytecode.OpLdaTrue:
			f.acc = heap.True
		case bytecode.OpLdaFalse:
			f.acc = heap.False
		case bytecode.OpLdaThis:
			f.acc, err = f.scope.This()
		case bytecode.OpLdaArg:
			i := i32()
			f.acc = heap.Undefined
			if i < len(f.args) {
				f.acc = f.args[i]
			}
		case bytecode.OpLdaRestArgs:
			f.acc = heap.ObjectValue(vm.restArgs(f, i32()))
		case bytecode.OpLdaArguments:
			f.acc = heap.ObjectValue(vm.argumentsObject(f))
		case bytecode.OpStar:
			f.regs[u8()] = f.acc
		case bytecode.OpLdar:
			f.acc = f.regs[u8()]
		case bytecode.OpMov:
			x, y := u8(), u8()
			f.regs[x] = f.regs[y]
		case bytecode.OpPushAcc:
			f.push(f.acc)
		case bytecode.OpPopReg:
			f.regs[u8()] = f.pop()

		// --- environment ---
		case bytecode.OpLoadEnvAcc:
			f.acc, err = f.scope.Get(name(u16()))
		case bytecode.OpLoadEnvReg:
			x := u8()
			f.regs[x], err = f.scope.Get(name(u16()))
		case bytecode.OpStoreEnvAcc:
			err = f.scope.Set(name(u16()), f.acc, f.strict)
		case bytecode.OpStoreEnvReg:
			v, x := u16(), u8()
			err = f.scope.Set(name(v), f.regs[x], f.strict)
		case bytecode.OpInitEnvAcc:
			err = f.scope.Initialize(name(u16()), f.acc)
		case bytecode.OpDeclare:
			v, kind := u16(), i32()
			err = vm.declare(f, name(v), scope.Kind(kind))
		case bytecode.OpDeleteEnv:
			f.acc = heap.BooleanValue(f.scope.Delete(name(u16())))
		case bytecode.OpTypeOfVar:
			v, found, lerr := f.scope.Lookup(name(u16()))
			switch {
			case lerr != nil:
				err = lerr
			case !found:
				f.acc = heap.NewString("undefined")
			default:
				f.acc = vm.typeOf(v)
			}
		case bytecode.OpTypeOfAcc:
			f.acc = vm.typeOf(f.acc)

		// --- members ---
		case bytecode.OpLoadMemberAcc:
			f.acc, err = vm.getMember(f.acc, heap.StringKey(name(u16())))
		case bytecode.OpLoadMemberReg:
			x := u8()
			f.acc, err = vm.getMember(f.regs[x], heap.StringKey(name(u16())))
		case bytecode.OpLoadMemberComputed:
			x := u8()
			f.acc, err = vm.getComputed(f.regs[x], f.acc)
		case bytecode.OpStoreMemberReg:
			x, v := u8(), u16()
			err = r.Set(f.regs[x], heap.StringKey(name(v)), f.acc, f.strict)
		case bytecode.OpStoreMemberComputed:
			x, y := u8(), u8()
			err = vm.setComputed(f, f.regs[x], f.regs[y], f.acc)
		case bytecode.OpDeleteMember:
			x, v := u8(), u16()
			f.acc, err = vm.deleteMember(f, f.regs[x], heap.NewString(name(v)))
		case bytecode.OpDeleteComputed:
			f.acc, err = vm.deleteMember(f, f.regs[u8()], f.acc)
		case bytecode.OpLoadSuper:
			f.acc, err = vm.loadSuper(f, heap.NewString(name(u16())))
		case bytecode.OpLoadSuperComputed:
			f.acc, err = vm.loadSuper(f, f.regs[u8()])
		case bytecode.OpStoreSuper:
			v, x := u16(), u8()
			err = vm.storeSuper(f, heap.NewString(name(v)), f.regs[x])
		case bytecode.OpStoreSuperComputed:
			err = vm.storeSuper(f, f.regs[u8()], f.acc)
		case bytecode.OpGetPrivate:
			x, y := u8(), u8()
			f.acc, err = vm.getPrivate(f.regs[x], f.regs[y])
		case bytecode.OpSetPrivate:
			x, y := u8(), u8()
			err = vm.setPrivate(f.regs[x], f.regs[y], f.acc)
		case bytecode.OpDefinePrivate:
			x, y := u8(), u8()
			err = vm.definePrivate(f.regs[x], f.regs[y], f.acc)
		case bytecode.OpHasPrivate:
			f.acc, err = vm.hasPrivate(f.regs[u8()], f.acc)

		// --- unary ---
		case bytecode.OpBitNotAcc:
			f.acc, err = vm.bitNot(f.acc)
		case bytecode.OpNegateAcc:
			f.acc, err = vm.negate(f.acc)
		case bytecode.OpPlusAcc:
			var n float64
			n, err = h.ToNumber(f.acc)
			f.acc = heap.NumberValue(n)
		case bytecode.OpToNumericAcc:
			f.acc, err = h.ToNumeric(f.acc)
		case bytecode.OpToStringAcc:
			var s string
			if s, err = h.ToString(f.acc); err == nil {
				f.acc = heap.NewString(s)
			}
		case bytecode.OpToPropertyKeyAcc:
			var k heap.PropertyKey
			if k, err = h.ToPropertyKey(f.acc); err == nil {
				f.acc = k.Value()
			}
		case bytecode.OpLNotAcc:
			f.acc = heap.BooleanValue(!heap.ToBoolean(f.acc))
		case bytecode.OpLAndRegAcc:
			if x := f.regs[u8()]; !heap.ToBoolean(x) {
				f.acc = x
			}
		case bytecode.OpLOrRegAcc:
			if x := f.regs[u8()]; heap.ToBoolean(x) {
				f.acc = x
			}
		case bytecode.OpIncVar, bytecode.OpDecVar:
			delta := 1
			if op == bytecode.OpDecVar {
				delta = -1
			}
			n := name(u16())
			var v heap.Value
			if v, err = f.scope.Get(n); err == nil {
				if v, err = vm.increment(v, delta); err == nil {
					f.acc = v
					err = f.scope.Set(n, v, f.strict)
				}
			}
		case bytecode.OpIncReg, bytecode.OpDecReg:
			delta := 1
			if op == bytecode.OpDecReg {
				delta = -1
			}
			x := u8()
			f.regs[x], err = vm.increment(f.regs[x], delta)
		case bytecode.OpIncAcc:
			f.acc, err = vm.increment(f.acc, 1)
		case bytecode.OpDecAcc:
			f.acc, err = vm.increment(f.acc, -1)

		// --- calls ---
		case bytecode.OpArgsBegin:
			f.staged = append(f.staged, []heap.Value{})
		case bytecode.OpPushArgAcc:
			f.stage(f.acc)
		case bytecode.OpPushArgReg:
			f.stage(f.regs[u8()])
		case bytecode.OpPushSpreadAcc:
			err = vm.iterate(f.acc, f.stage)
		case bytecode.OpCall:
			callee := f.regs[u8()]
			args := f.takeArgs()
			f.acc, err = vm.callValue(callee, heap.Undefined, args)
		case bytecode.OpCallMember:
			x, y := u8(), u8()
			args := f.takeArgs()
			f.acc, err = vm.callValue(f.regs[y], f.regs[x], args)
		case bytecode.OpConstruct:
			callee := f.regs[u8()]
			args := f.takeArgs()
			o := callee.AsObject()
			if o == nil || !o.IsConstructor() {
				err = r.NewTypeError("%s is not a constructor", describe(callee))
				break
			}
			f.acc, err = vm.construct(o, args, o)
		case bytecode.OpSuperCall:
			f.acc, err = vm.superCall(f, f.takeArgs())
		case bytecode.OpCallEval:
			args := f.takeArgs()
			if o := f.acc.AsObject(); o != nil && o == r.Intrinsic("eval") {
				f.acc, err = vm.directEval(f, realm.Arg(args, 0))
				break
			}
			f.acc, err = vm.callValue(f.acc, heap.Undefined, args)
		case bytecode.OpReturnUndefined, bytecode.OpReturnAcc:
			v := f.acc
			if op == bytecode.OpReturnUndefined {
				v = heap.Undefined
			}
			var done bool
			if done, err = vm.doReturn(f, v); err == nil && done {
				f.state = frameDone
				return f.acc, nil
			}
		case bytecode.OpThrowAcc:
			err = realm.NewException(f.acc)
		case bytecode.OpThrowReg:
			err = realm.NewException(f.regs[u8()])

		// --- control flow ---
		case bytecode.OpJmp:
			f.ip = u32()
		case bytecode.OpJmpRel:
			off := i32()
			f.ip += off
		case bytecode.OpJmpIfAcc:
			if a := u32(); heap.ToBoolean(f.acc) {
				f.ip = a
			}
		case bytecode.OpJmpIfNotAcc:
			if a := u32(); !heap.ToBoolean(f.acc) {
				f.ip = a
			}
		case bytecode.OpJmpIfAccRel:
			if off := i32(); heap.ToBoolean(f.acc) {
				f.ip += off
			}
		case bytecode.OpJmpIfNotAccRel:
			if off := i32(); !heap.ToBoolean(f.acc) {
				f.ip += off
			}
		case bytecode.OpJmpIfNullishAcc:
			if a := u32(); f.acc.IsNullish() {
				f.ip = a
			}
		case bytecode.OpJmpIfNotUndefinedAcc:
			if a := u32(); !f.acc.IsUndefined() {
				f.ip = a
			}

		// --- scopes and regions ---
		case bytecode.OpPushScope:
			flags, label, brk, cont := i32(), i32(), u32(), u32()
			s := scope.New(h, f.scope, scope.Flags(flags))
			s.SetBreakable(label, brk, cont)
			f.scope = s
		case bytecode.OpPopScope:
			s := f.scope
			if s == f.base {
				err = vm.fatalf(f, "scope underflow")
				break
			}
			if s.HasIterator() {
				s.DetachIterator()
			}
			f.scope = s.Parent()
		case bytecode.OpRenewScope:
			f.scope = f.scope.Renew()
		case bytecode.OpPushWith:
			var o *heap.Object
			if o, err = r.ToObject(f.acc); err == nil {
				f.scope = f.scope.PushWith(o)
			}
		case bytecode.OpEnterTry:
			catch, finally, binding := u32(), u32(), u16()
			f.tries = append(f.tries, tryRegion{
				catchAddr:   catch,
				finallyAddr: finally,
				binding:     binding,
				scope:       f.scope,
				stack:       len(f.stack),
				staged:      len(f.staged),
			})
		case bytecode.OpExitTry:
			if len(f.tries) == 0 {
				err = vm.fatalf(f, "ExitTry without a try region")
				break
			}
			vm.exitTry(f)
		case bytecode.OpEndFinally:
			if len(f.tries) == 0 {
				err = vm.fatalf(f, "EndFinally without a try region")
				break
			}
			var done bool
			if done, err = vm.endFinally(f); err == nil && done {
				f.state = frameDone
				return f.acc, nil
			}
		case bytecode.OpBreak, bytecode.OpContinue, bytecode.OpBreakLabel, bytecode.OpContinueLabel:
			kind, label := compBreak, scope.NoLabel
			if op == bytecode.OpContinue || op == bytecode.OpContinueLabel {
				kind = compContinue
			}
			if op == bytecode.OpBreakLabel || op == bytecode.OpContinueLabel {
				label = i32()
			}
			var target *scope.Scope
			if target, err = vm.breakTarget(f, kind, label); err == nil {
				err = vm.jump(f, kind, target)
			}

		// --- generators and async ---
		case bytecode.OpYield, bytecode.OpYieldUndefined:
			if f.co == nil {
				err = vm.fatalf(f, "yield outside of a generator")
				break
			}
			if op == bytecode.OpYieldUndefined {
				f.acc = heap.Undefined
			}
			f.state = frameYielded
			return f.acc, nil
		case bytecode.OpYieldDelegate:
			var suspend, done bool
			suspend, done, err = vm.yieldDelegate(f, f.regs[u8()])
			if err == nil && done {
				f.state = frameDone
				return f.acc, nil
			}
			if err == nil && suspend {
				return f.acc, nil
			}
		case bytecode.OpAwait:
			if err = vm.await(f, f.acc); err == nil {
				return heap.Undefined, nil
			}
		case bytecode.OpGetNewTarget:
			f.acc = f.scope.NewTarget()
		case bytecode.OpGetImportMeta:
			f.acc, err = f.scope.Get("import.meta")

		// --- iteration ---
		case bytecode.OpGetIterator:
			err = vm.opGetIterator(f, i32())
		case bytecode.OpIteratorNext:
			x, a := u8(), u32()
			rec := iterRecordOf(f.regs[x])
			if rec == nil {
				err = vm.fatalf(f, "IteratorNext on a non-iterator register")
				break
			}
			var v heap.Value
			var ok bool
			if v, ok, err = vm.step(rec); err == nil {
				f.acc = v
				if !ok && a != bytecode.NoAddr {
					f.ip = a
				}
			}
		case bytecode.OpIteratorNextRaw:
			rec := iterRecordOf(f.regs[u8()])
			if rec == nil {
				err = vm.fatalf(f, "IteratorNextRaw on a non-iterator register")
				break
			}
			f.acc, err = vm.nextResult(rec, nil)
		case bytecode.OpIteratorStep:
			x, a := u8(), u32()
			rec := iterRecordOf(f.regs[x])
			if rec == nil {
				err = vm.fatalf(f, "IteratorStep on a non-iterator register")
				break
			}
			var v heap.Value
			var ok bool
			if v, ok, err = vm.unwrapResult(rec, f.acc); err == nil {
				f.acc = v
				if !ok && a != bytecode.NoAddr {
					f.ip = a
				}
			}
		case bytecode.OpIteratorClose:
			if rec := iterRecordOf(f.regs[u8()]); rec != nil {
				err = vm.closeIterator(rec)
			}

		// --- literals ---
		case bytecode.OpNewObject:
			f.acc = heap.ObjectValue(r.NewObject())
		case bytecode.OpNewArray:
			f.acc = heap.ObjectValue(r.NewArray(nil))
		case bytecode.OpArrayPush:
			f.regs[u8()].AsObject().Append(f.acc)
		case bytecode.OpArraySpread:
			arr := f.regs[u8()].AsObject()
			err = vm.iterate(f.acc, func(v heap.Value) { arr.Append(v) })
		case bytecode.OpArrayHole:
			f.regs[u8()].AsObject().AppendHole()
		case bytecode.OpDefineField:
			x, v := u8(), u16()
			err = vm.defineField(f.regs[x], heap.NewString(name(v)), f.acc)
		case bytecode.OpDefineComputed:
			x, y := u8(), u8()
			err = vm.defineField(f.regs[x], f.regs[y], f.acc)
		case bytecode.OpDefineMethod:
			x, y, kind := u8(), u8(), i32()
			target, fn := f.regs[x].AsObject(), f.acc.AsObject()
			if target == nil || fn == nil {
				err = vm.fatalf(f, "DefineMethod on a non-object")
				break
			}
			err = vm.defineMethod(target, f.regs[y], fn, kind)
		case bytecode.OpCopyDataProps:
			err = vm.copyDataProps(f.regs[u8()].AsObject(), f.acc, nil)
		case bytecode.OpCopyRest:
			x, y := u8(), u8()
			f.acc, err = vm.copyRest(f.regs[x], f.regs[y])
		case bytecode.OpSetProtoOf:
			o := f.regs[u8()].AsObject()
			if f.acc.IsObject() || f.acc.IsNull() {
				o.SetPrototypeOf(f.acc.AsObject())
			}
		case bytecode.OpMakeClosure:
			bp, berr := vm.blueprint(f, u16())
			if berr != nil {
				err = berr
				break
			}
			f.acc = heap.ObjectValue(vm.makeClosure(bp, f.scope, f.file))
		case bytecode.OpMakeClass:
			x, k, hasSuper := u8(), u16(), i32()
			bp, berr := vm.blueprint(f, k)
			if berr != nil {
				err = berr
				break
			}
			var ctor *heap.Object
			if ctor, err = vm.makeClass(f, bp, f.regs[x], hasSuper != 0); err == nil {
				f.acc = heap.ObjectValue(ctor)
			}
		case bytecode.OpSetClassFields:
			ctor := closureOf(f.regs[u8()].AsObject())
			init := f.acc.AsObject()
			if ctor == nil || init == nil {
				err = vm.fatalf(f, "SetClassFields on a non-class")
				break
			}
			h.RetainNode(init)
			if ctor.Fields != nil {
				h.ReleaseNode(ctor.Fields)
			}
			ctor.Fields = init
		case bytecode.OpTemplateObject:
			f.acc, err = vm.templateObject(f, u16())
		case bytecode.OpInitHomeObject:
			home := f.regs[u8()].AsObject()
			if fn := f.acc.AsObject(); fn != nil && home != nil {
				vm.setHome(fn, home)
			}
		case bytecode.OpDebugger:
			line, col := f.position()
			log.Debugf("debugger statement at %s:%d:%d", f.file, line, col)

		default:
			if op >= bytecode.OpAddVarVar && op <= bytecode.OpInstanceOfRegReg {
				idx := int(op - bytecode.OpAddVarVar)
				bop := binOp(idx / 3)
				var a, b heap.Value
				switch idx % 3 {
				case 0:
					va, vb := u16(), u16()
					if a, err = f.scope.Get(name(va)); err != nil {
						break
					}
					b, err = f.scope.Get(name(vb))
				case 1:
					a, b = f.regs[u8()], f.acc
				case 2:
					x, y := u8(), u8()
					a, b = f.regs[x], f.regs[y]
				}
				if err == nil {
					f.acc, err = vm.binary(bop, a, b)
				}
				break
			}
			err = vm.fatalf(f, "unknown opcode %d", op)
		}

		if err != nil {
			if err = vm.unwind(f, err); err != nil {
				f.state = frameDone
				return heap.Undefined, err
			}
		}
	}
}
