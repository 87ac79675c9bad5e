package builtins_test

import (
	"bytes"
	"testing"

	"cinder/pkg/builtins"
	"cinder/pkg/compiler"
	"cinder/pkg/heap"
	"cinder/pkg/realm"
	"cinder/pkg/source"
	"cinder/pkg/vm"
)

type session struct {
	r      *realm.Realm
	vm     *vm.VM
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newSession(t *testing.T) *session {
	t.Helper()
	s := &session{r: realm.New(realm.Options{})}
	if err := builtins.Install(s.r, builtins.Options{Stdout: &s.stdout, Stderr: &s.stderr}); err != nil {
		t.Fatalf("install: %v", err)
	}
	s.vm = vm.New(s.r, vm.DefaultConfig())
	return s
}

func (s *session) eval(src string) (heap.Value, error) {
	m, errs := compiler.CompileSource(source.NewEvalSource(src), compiler.Options{Name: "test", Completion: true})
	if len(errs) > 0 {
		return heap.Undefined, errs[0]
	}
	v, err := s.vm.RunModule(m, nil, heap.Undefined)
	if err != nil {
		return v, err
	}
	return v, s.vm.RunMicrotasks()
}

// run evaluates src in a fresh realm and renders the completion value.
func run(t *testing.T, src string) string {
	t.Helper()
	s := newSession(t)
	v, err := s.eval(src)
	if err != nil {
		t.Fatalf("%s: %v", src, vm.ToRuntimeError(s.r, err))
	}
	return v.Inspect()
}

// throws evaluates src and returns the name of the thrown error.
func throws(t *testing.T, src string) string {
	t.Helper()
	s := newSession(t)
	_, err := s.eval(src)
	if err == nil {
		t.Fatalf("%s: expected an exception", src)
	}
	ex, ok := s.r.ToException(err)
	if !ok {
		t.Fatalf("%s: host error %v", src, err)
	}
	name, _ := realm.ErrorParts(ex.Value)
	return name
}

type evalCase struct {
	src  string
	want string
}

func runCases(t *testing.T, cases []evalCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			if got := run(t, tc.src); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
