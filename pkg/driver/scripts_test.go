package driver

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"cinder/pkg/config"
	"cinder/pkg/errors"
)

// Expectation is the outcome a script declares in its comments.
type Expectation struct {
	ResultType string // "value", "runtime_error", "compile_error"
	Value      string // expected value or error message substring
}

var expectRegex = regexp.MustCompile(`^//\s*(expect(?:_runtime_error|_compile_error)?):\s*(.*)`)

// parseExpectation finds the first line of the form
//
//	// expect: value
//	// expect_runtime_error: message
//	// expect_compile_error: message
func parseExpectation(script string) (*Expectation, error) {
	scanner := bufio.NewScanner(strings.NewReader(script))
	for scanner.Scan() {
		matches := expectRegex.FindStringSubmatch(scanner.Text())
		if len(matches) != 3 {
			continue
		}
		value := strings.TrimSpace(matches[2])
		switch matches[1] {
		case "expect":
			return &Expectation{ResultType: "value", Value: value}, nil
		case "expect_runtime_error":
			return &Expectation{ResultType: "runtime_error", Value: value}, nil
		case "expect_compile_error":
			return &Expectation{ResultType: "compile_error", Value: value}, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading script content: %w", err)
	}
	return nil, fmt.Errorf("no expectation comment found (e.g., // expect: value)")
}

func isCompileError(err errors.CinderError) bool {
	return err.Kind() == "Syntax" || err.Kind() == "Compile"
}

func TestScripts(t *testing.T) {
	root, err := filepath.Abs("testdata")
	if err != nil {
		t.Fatal(err)
	}
	files, err := filepath.Glob(filepath.Join(root, "scripts", "*.js"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no scripts found")
	}

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			content, err := os.ReadFile(file)
			if err != nil {
				t.Fatal(err)
			}
			expectation, err := parseExpectation(string(content))
			if err != nil {
				t.Skipf("%s: %v", file, err)
			}

			cfg := config.Default()
			cfg.Modules.Roots = []string{root}
			var out bytes.Buffer
			c, err := New(Options{Config: cfg, Stdout: &out, Stderr: &out})
			if err != nil {
				t.Fatal(err)
			}
			value, errs := c.RunFile(file)

			var all strings.Builder
			found := false
			for _, e := range errs {
				all.WriteString(e.Error() + "\n")
				if strings.Contains(e.Error(), expectation.Value) {
					found = true
				}
			}

			switch expectation.ResultType {
			case "value":
				if len(errs) > 0 {
					t.Fatalf("Expected value %q, but got errors:\n%s", expectation.Value, all.String())
				}
				if got := value.Inspect(); got != expectation.Value {
					t.Errorf("Expected output %q, but got %q\nconsole:\n%s", expectation.Value, got, out.String())
				}
			case "compile_error":
				if len(errs) == 0 || !isCompileError(errs[0]) {
					t.Fatalf("Expected compile error containing %q, got:\n%s", expectation.Value, all.String())
				}
				if !found {
					t.Errorf("Expected compile error containing %q, but got errors:\n%s", expectation.Value, all.String())
				}
			case "runtime_error":
				if len(errs) == 0 {
					t.Fatalf("Expected runtime error containing %q, but the script returned %s", expectation.Value, value.Inspect())
				}
				if isCompileError(errs[0]) {
					t.Fatalf("Expected runtime error containing %q, but compilation failed:\n%s", expectation.Value, all.String())
				}
				if !found {
					t.Errorf("Expected runtime error containing %q, but got errors:\n%s", expectation.Value, all.String())
				}
			}
		})
	}
}
