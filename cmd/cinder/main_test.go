package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cinder/pkg/bytecode"
	"cinder/pkg/errors"
)

func TestExpandVerbosity(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"cinder", "run", "a.js"}, "cinder run a.js"},
		{[]string{"cinder", "-v", "run", "a.js"}, "cinder --verbose=1 run a.js"},
		{[]string{"cinder", "-vv", "--verbose", "run", "a.js"}, "cinder --verbose=3 run a.js"},
		{[]string{"cinder", "run", "a.js", "--", "-v"}, "cinder run a.js -- -v"},
	}
	for _, tc := range tests {
		if got := strings.Join(expandVerbosity(tc.args), " "); got != tc.want {
			t.Errorf("expandVerbosity(%v) = %q, want %q", tc.args, got, tc.want)
		}
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  errors.CinderError
		want int
	}{
		{&errors.SyntaxError{Msg: "x"}, exitSyntax},
		{&errors.CompileError{Msg: "x"}, exitSyntax},
		{&errors.RuntimeError{Msg: "x"}, exitRuntime},
		{&errors.FatalError{Msg: "x"}, exitFatal},
	}
	for _, tc := range tests {
		if got := exitCode([]errors.CinderError{tc.err}); got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.err.Kind(), got, tc.want)
		}
	}
	if exitCode(nil) != exitOK {
		t.Error("no errors should exit cleanly")
	}
}

// project writes files into a temporary directory along with a
// configuration that disables color.
func project(t *testing.T, files map[string]string) (dir, cfg string) {
	t.Helper()
	dir = t.TempDir()
	files["cinder.toml"] = "[output]\ncolor = \"never\"\n"
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir, filepath.Join(dir, "cinder.toml")
}

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(append([]string{"cinder"}, args...), &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRunPipelines(t *testing.T) {
	dir, cfg := project(t, map[string]string{
		"hello.js":  `console.log("hello", require("./lib").name, process.argv.length);`,
		"lib.js":    `exports.name = "lib";`,
		"boom.js":   "const x = 1;\nnull.prop;",
		"bad.js":    "let = ;",
		"exit.js":   `process.exit(4);`,
		"exit0.js":  `process.exit(0);`,
		"global.js": `var answer = 42; console.log(answer)`,
	})
	file := func(name string) string { return filepath.Join(dir, name) }

	tests := []struct {
		name   string
		args   []string
		code   int
		stdout string
		stderr string
	}{
		{"run", []string{"--config", cfg, "run", file("hello.js"), "x"}, exitOK, "hello lib 3\n", ""},
		{"default command", []string{"--config", cfg, file("hello.js")}, exitOK, "hello lib 2\n", ""},
		{"interpreter notice", []string{"--config", cfg, "--pipeline", "interpreter", "run", file("global.js")}, exitOK, "42\n", "no AST interpreter"},
		{"legacy round trip", []string{"--config", cfg, "--pipeline", "legacy-bytecode-vm", "run", file("global.js")}, exitOK, "42\n", ""},
		{"runtime error", []string{"--config", cfg, "run", file("boom.js")}, exitRuntime, "", "Uncaught TypeError"},
		{"syntax error", []string{"--config", cfg, "run", file("bad.js")}, exitSyntax, "", "Syntax Error"},
		{"process exit", []string{"--config", cfg, "run", file("exit.js")}, 4, "", ""},
		{"process exit zero", []string{"--config", cfg, "run", file("exit0.js")}, exitOK, "", ""},
		{"missing file", []string{"--config", cfg, "run", file("nope.js")}, exitUsage, "", "Failed to read file"},
		{"missing argument", []string{"--config", cfg, "run"}, exitUsage, "", "missing FILE"},
		{"unknown pipeline", []string{"--pipeline", "jit", "run", file("hello.js")}, exitUsage, "", "unknown pipeline"},
		{"gc stats", []string{"--config", cfg, "--gc-stats", "run", file("global.js")}, exitOK, "42\n", "objects allocated"},
		{"dump-ast", []string{"--config", cfg, "dump-ast", file("global.js")}, exitOK, "VariableStatement", ""},
		{"dump", []string{"--config", cfg, "dump", file("global.js")}, exitOK, "Call", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, stdout, stderr := runCLI(t, tc.args...)
			if code != tc.code {
				t.Fatalf("exit code %d, want %d\nstdout: %s\nstderr: %s", code, tc.code, stdout, stderr)
			}
			if tc.stdout != "" && !strings.Contains(stdout, tc.stdout) {
				t.Errorf("stdout %q lacks %q", stdout, tc.stdout)
			}
			if tc.stderr != "" && !strings.Contains(stderr, tc.stderr) {
				t.Errorf("stderr %q lacks %q", stderr, tc.stderr)
			}
		})
	}
}

func TestCompileAndExec(t *testing.T) {
	dir, cfg := project(t, map[string]string{
		"prog.js": `const xs = [3, 1, 2].sort(); console.log(xs.join(","));`,
	})
	src := filepath.Join(dir, "prog.js")

	for _, tight := range []bool{false, true} {
		out := filepath.Join(dir, "prog.jsbc")
		args := []string{"--config", cfg, "compile", "-o", out, src}
		if tight {
			args = []string{"--config", cfg, "compile", "--tight", "-o", out, src}
		}
		if code, _, stderr := runCLI(t, args...); code != exitOK {
			t.Fatalf("compile: exit %d: %s", code, stderr)
		}
		code, stdout, stderr := runCLI(t, "--config", cfg, "exec", out)
		if code != exitOK || stdout != "1,2,3\n" {
			t.Errorf("exec tight=%v: exit %d, stdout %q, stderr %q", tight, code, stdout, stderr)
		}
	}

	// Without -o the output lands next to the source.
	if code, _, stderr := runCLI(t, "--config", cfg, "compile", src); code != exitOK {
		t.Fatalf("compile: exit %d: %s", code, stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, "prog.jsbc")); err != nil {
		t.Error(err)
	}

	garbage := filepath.Join(dir, "garbage.jsbc")
	if err := os.WriteFile(garbage, []byte("not bytecode"), 0o644); err != nil {
		t.Fatal(err)
	}
	if code, _, stderr := runCLI(t, "--config", cfg, "exec", garbage); code != exitFatal {
		t.Errorf("exec garbage: exit %d, stderr %q", code, stderr)
	}
}

func TestExecRejectsCorruptOperands(t *testing.T) {
	dir, cfg := project(t, map[string]string{})
	b := bytecode.NewBuilder("bad")
	b.Emit(bytecode.OpLdaConstReg, 200, b.Const(bytecode.Number(1)))
	b.Emit(bytecode.OpReturnUndefined)
	data, err := bytecode.MarshalModule(b.Module(), bytecode.FormNormal)
	if err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(dir, "bad.jsbc")
	if err := os.WriteFile(file, data, 0o644); err != nil {
		t.Fatal(err)
	}
	code, _, stderr := runCLI(t, "--config", cfg, "exec", file)
	if code != exitFatal || !strings.Contains(stderr, "register r200") {
		t.Errorf("exit %d, stderr %q", code, stderr)
	}
}
