package bytecode

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
)

func sampleModule() *Module {
	fb := NewBuilder("add")
	fb.SetPosition(2, 3)
	fb.Emit(OpAddVarVar, fb.Var("a"), fb.Var("b"))
	fb.Emit(OpReturnAcc)
	fb.Module().Strict = true
	fn := &FunctionBlueprint{
		Name:       "add",
		Params:     []string{"a", "b"},
		Length:     2,
		Flags:      FuncStrict | FuncSimpleParams,
		Body:       fb.Module(),
		SourceText: "function add(a, b) { return a + b }",
	}

	b := NewBuilder("main")
	b.SetPosition(1, 1)
	b.Emit(OpMakeClosure, b.Const(Blueprint(fn)))
	b.Emit(OpStoreEnvAcc, b.Var("add"))
	b.Emit(OpLdaConstAcc, b.Const(Number(math.Copysign(0, -1))))
	b.Emit(OpLdaConstAcc, b.Const(Number(-1.5)))
	b.Emit(OpLdaConstReg, 3, b.Const(String("héllo")))
	b.Emit(OpLdaConstAcc, b.Const(BigInt("123456789012345678901234567890")))
	b.Emit(OpLdaConstAcc, b.Const(Regex("a+b", "gi")))
	b.Emit(OpTemplateObject, b.Const(Template([]TemplatePart{
		{Cooked: "x", CookedValid: true, Raw: "x"},
		{Raw: `\unicode`},
	})))
	b.SetPosition(4, 1)
	j := b.Emit(OpJmpIfNotAccRel, 0)
	b.Emit(OpLdaTrue)
	b.PatchRel(j, 0, b.PC())
	b.Emit(OpPushScope, 3, -1, NoAddr, NoAddr)
	b.Emit(OpPopScope)
	b.Emit(OpReturnUndefined)
	return b.Module()
}

func TestBuilderDedupesConstants(t *testing.T) {
	b := NewBuilder("m")
	if b.Const(Number(1)) != b.Const(Number(1)) {
		t.Error("equal numbers should share a slot")
	}
	if b.Const(String("a")) != b.Const(String("a")) {
		t.Error("equal strings should share a slot")
	}
	negZero := math.Copysign(0, -1)
	if b.Const(Number(0)) == b.Const(Number(negZero)) {
		t.Error("-0 must not share a slot with +0")
	}
	if b.Const(Number(math.NaN())) == b.Const(Number(math.NaN())) {
		t.Error("NaN constants are not deduplicated")
	}
	if b.Var("x") != b.Var("x") || b.Var("x") == b.Var("y") {
		t.Error("names should be interned")
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	b := NewBuilder("m")
	b.Emit(OpMakeClass, 4, 7, 1)
	b.Emit(OpJmpRel, -12)
	b.Emit(OpEnterTry, 100, NoAddr, NoVar)
	code := b.Module().Code

	want := []string{"MakeClass R4, K7, 1", "JmpRel -12", "EnterTry @0100, -, V65535"}
	pc := 0
	for i, w := range want {
		in, next, err := Decode(code, pc)
		if err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		if got := in.String(); got != w {
			t.Errorf("instruction %d = %q, want %q", i, got, w)
		}
		pc = next
	}
	if pc != len(code) {
		t.Errorf("decoded %d bytes of %d", pc, len(code))
	}
	if _, _, err := Decode(code[:3], 0); !errors.Is(err, ErrCorrupt) {
		t.Errorf("truncated decode error = %v, want ErrCorrupt", err)
	}
}

func TestPatchRelative(t *testing.T) {
	m := sampleModule()
	pc := 0
	for pc < len(m.Code) {
		in, next, err := Decode(m.Code, pc)
		if err != nil {
			t.Fatal(err)
		}
		if in.Op == OpJmpIfNotAccRel {
			target := next + int(in.Args[0])
			tin, _, err := Decode(m.Code, target)
			if err != nil {
				t.Fatal(err)
			}
			if tin.Op != OpPushScope {
				t.Errorf("jump lands on %s, want PushScope", tin.Op)
			}
			return
		}
		pc = next
	}
	t.Fatal("no relative jump found")
}

func TestCodecRoundTrip(t *testing.T) {
	for _, form := range []Form{FormNormal, FormTight} {
		t.Run(form.String(), func(t *testing.T) {
			m := sampleModule()
			var buf bytes.Buffer
			if err := WriteModule(&buf, m, form); err != nil {
				t.Fatalf("write: %v", err)
			}
			got, err := ReadModule(&buf)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !bytes.Equal(got.Code, m.Code) {
				t.Errorf("code differs after round trip")
			}
			if got.Name != m.Name || len(got.Data.VarNames) != len(m.Data.VarNames) {
				t.Errorf("data section differs: %+v", got.Data.VarNames)
			}
			if len(got.Data.Constants) != len(m.Data.Constants) {
				t.Fatalf("got %d constants, want %d", len(got.Data.Constants), len(m.Data.Constants))
			}
			for i, c := range got.Data.Constants {
				want := m.Data.Constants[i]
				if c.Kind != want.Kind {
					t.Errorf("K%d kind = %s, want %s", i, c.Kind, want.Kind)
					continue
				}
				switch c.Kind {
				case ConstNumber:
					if math.Float64bits(c.Number) != math.Float64bits(want.Number) {
						t.Errorf("K%d = %v, want %v", i, c.Number, want.Number)
					}
				case ConstTemplate:
					if len(c.Parts) != 2 || c.Parts[1].CookedValid || c.Parts[1].Raw != `\unicode` {
						t.Errorf("template parts = %+v", c.Parts)
					}
				case ConstBlueprint:
					bp := c.Blueprint
					if bp.Name != "add" || bp.Length != 2 || !bp.Has(FuncStrict) || len(bp.Params) != 2 {
						t.Errorf("blueprint = %+v", bp)
					}
					if !bp.Body.Strict {
						t.Errorf("blueprint body lost strictness")
					}
					if !bytes.Equal(bp.Body.Code, want.Blueprint.Body.Code) {
						t.Errorf("blueprint body differs")
					}
				default:
					if c.Str != want.Str || c.Flags != want.Flags {
						t.Errorf("K%d = %+v, want %+v", i, c, want)
					}
				}
			}
			if line, col := got.Position(0); line != 1 || col != 1 {
				t.Errorf("position(0) = %d:%d", line, col)
			}
		})
	}
}

func TestTightFormIsSmaller(t *testing.T) {
	m := sampleModule()
	normal, err := MarshalModule(m, FormNormal)
	if err != nil {
		t.Fatal(err)
	}
	tight, err := MarshalModule(m, FormTight)
	if err != nil {
		t.Fatal(err)
	}
	if len(tight) >= len(normal) {
		t.Errorf("tight form %d bytes, normal %d", len(tight), len(normal))
	}
	if !bytes.HasPrefix(normal, MagicNormal[:]) || !bytes.HasPrefix(tight, MagicTight[:]) {
		t.Error("missing magic")
	}
}

func TestReadModuleErrors(t *testing.T) {
	if _, err := UnmarshalModule([]byte("notmagic....")); !errors.Is(err, ErrBadMagic) {
		t.Errorf("bad magic error = %v", err)
	}
	data, err := MarshalModule(sampleModule(), FormNormal)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := UnmarshalModule(data[:len(data)-3]); !errors.Is(err, ErrCorrupt) {
		t.Errorf("truncated error = %v", err)
	}
}

func TestFingerprintStable(t *testing.T) {
	a, err := Fingerprint(sampleModule())
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Fingerprint(sampleModule())
	if a != b {
		t.Error("fingerprint differs for identical modules")
	}
	m := sampleModule()
	m.Code[len(m.Code)-1] = byte(OpReturnAcc)
	c, _ := Fingerprint(m)
	if c == a {
		t.Error("fingerprint should change with code")
	}
}

func TestDisassemble(t *testing.T) {
	out := DisassembleString(sampleModule())
	for _, want := range []string{
		"== main ==",
		"MakeClosure",
		"<fn add/2>",
		"V0('add')",
		"(to ",
		"=== Constants ===",
		"== add ==",
		"AddVarVar",
		"V0('a'), V1('b')",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

func TestOpcodeNames(t *testing.T) {
	for op := OpCode(0); op < numOpcodes; op++ {
		name := op.String()
		if name == "" {
			t.Fatalf("opcode %d has no name", op)
		}
		got, ok := OpcodeByName(name)
		if !ok || got != op {
			t.Errorf("OpcodeByName(%q) = %v, %v", name, got, ok)
		}
	}
	if OpCode(255).Valid() {
		t.Error("255 should be invalid")
	}
}

func TestVerify(t *testing.T) {
	if err := Verify(sampleModule()); err != nil {
		t.Fatalf("sample module rejected: %v", err)
	}
	tests := []struct {
		name  string
		build func(b *Builder)
		want  string
	}{
		{"register out of range", func(b *Builder) {
			b.Emit(OpLdaConstReg, 200, b.Const(Number(1)))
		}, "register r200"},
		{"name out of range", func(b *Builder) {
			b.Emit(OpLoadEnvAcc, 999)
		}, "name index 999"},
		{"constant out of range", func(b *Builder) {
			b.Emit(OpLdaConstAcc, 7)
		}, "constant index 7"},
		{"jump outside the code", func(b *Builder) {
			b.Emit(OpJmp, 1<<20)
		}, "jump target"},
		{"jump into an operand", func(b *Builder) {
			b.Emit(OpLdaConstReg, 1, b.Const(Number(1)))
			b.Emit(OpJmp, 1)
		}, "jump target 1"},
		{"relative jump outside the code", func(b *Builder) {
			b.Emit(OpJmpRel, -100)
		}, "relative jump"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBuilder("bad")
			tc.build(b)
			b.Emit(OpReturnUndefined)
			err := Verify(b.Module())
			if !errors.Is(err, ErrCorrupt) || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Verify = %v, want ErrCorrupt mentioning %q", err, tc.want)
			}
			data, err := MarshalModule(b.Module(), FormTight)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := UnmarshalModule(data); !errors.Is(err, ErrCorrupt) {
				t.Errorf("UnmarshalModule = %v", err)
			}
		})
	}
}

func TestReadModuleRejectsHugeSections(t *testing.T) {
	data := append(MagicNormal[:], 0xff, 0xff, 0xff, 0xff)
	if _, err := UnmarshalModule(data); !errors.Is(err, ErrCorrupt) {
		t.Errorf("oversized data section: %v", err)
	}
}
