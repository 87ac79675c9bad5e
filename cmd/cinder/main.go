// Command cinder runs, compiles and inspects JavaScript programs.
package main

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"github.com/urfave/cli"

	"cinder/pkg/bytecode"
	"cinder/pkg/compiler"
	"cinder/pkg/config"
	"cinder/pkg/driver"
	"cinder/pkg/errors"
	"cinder/pkg/source"
)

// Exit codes, after sysexits.h.
const (
	exitOK      = 0
	exitUsage   = 64
	exitSyntax  = 65
	exitRuntime = 70
	exitFatal   = 71
)

var pipelines = []string{"ast-dump", "interpreter", "bytecode-vm", "legacy-bytecode-vm", "instruction-dump"}

// status carries a process exit code out of a command action. It does not
// implement cli.ExitCoder so the app returns it instead of exiting.
type status int

func (s status) Error() string { return "exit status " + strconv.Itoa(int(s)) }

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// run executes the command line args and returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	app := newApp(stdout, stderr)
	err := app.Run(expandVerbosity(args))
	var s status
	switch {
	case err == nil:
		return exitOK
	case stderrors.As(err, &s):
		return int(s)
	default:
		fmt.Fprintf(stderr, "cinder: %s\n", err)
		return exitUsage
	}
}

// expandVerbosity folds repeated -v, -vv and --verbose switches into a single
// --verbose=N, since the flag package has no counting flags.
func expandVerbosity(args []string) []string {
	if len(args) == 0 {
		return args
	}
	out := []string{args[0]}
	level := 0
	for i, a := range args[1:] {
		if a == "--" {
			out = append(out, args[1+i:]...)
			break
		}
		switch {
		case a == "--verbose":
			level++
		case verboseShort.MatchString(a):
			level += len(a) - 1
		default:
			out = append(out, a)
		}
	}
	if level > 0 {
		out = append([]string{out[0], "--verbose=" + strconv.Itoa(level)}, out[1:]...)
	}
	return out
}

var verboseShort = regexp.MustCompile(`^-v+$`)

type cliState struct {
	stdout, stderr io.Writer
	pipeline       string
	configPath     string
	verbosity      int
	noColor        bool
	gcStats        bool
}

func newApp(stdout, stderr io.Writer) *cli.App {
	st := &cliState{stdout: stdout, stderr: stderr}

	app := cli.NewApp()
	app.Name = "cinder"
	app.Usage = "a JavaScript engine with a reference counting heap"
	app.Writer = stdout
	app.ErrWriter = stderr
	app.HideVersion = true
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:        "pipeline",
			Value:       "bytecode-vm",
			Usage:       "execution pipeline: " + strings.Join(pipelines, ", "),
			Destination: &st.pipeline,
		},
		cli.StringFlag{
			Name:        "config",
			Usage:       "load configuration from `FILE` instead of searching for " + config.FileName,
			Destination: &st.configPath,
		},
		cli.IntFlag{
			Name:        "verbose",
			Usage:       "log verbosity; -v and -vv are accepted",
			Destination: &st.verbosity,
		},
		cli.BoolFlag{
			Name:        "no-color",
			Usage:       "disable colors in diagnostics",
			Destination: &st.noColor,
		},
		cli.BoolFlag{
			Name:        "gc-stats",
			Usage:       "print heap statistics on exit",
			Destination: &st.gcStats,
		},
	}
	app.Before = func(c *cli.Context) error {
		commonlog.Configure(st.verbosity, nil)
		for _, p := range pipelines {
			if p == st.pipeline {
				return nil
			}
		}
		return fmt.Errorf("unknown pipeline %q", st.pipeline)
	}

	app.Commands = []cli.Command{
		{
			Name:      "run",
			Aliases:   []string{"r"},
			Usage:     "run a script through the selected pipeline",
			ArgsUsage: "FILE [ARGS...]",
			Action: func(c *cli.Context) error {
				file, err := fileArg(c)
				if err != nil {
					return err
				}
				return st.runPipeline(st.pipeline, file, c.Args())
			},
		},
		{
			Name:      "dump-ast",
			Usage:     "print the syntax tree of a script",
			ArgsUsage: "FILE",
			Action: func(c *cli.Context) error {
				file, err := fileArg(c)
				if err != nil {
					return err
				}
				return st.runPipeline("ast-dump", file, c.Args())
			},
		},
		{
			Name:      "dump",
			Usage:     "print the bytecode of a script",
			ArgsUsage: "FILE",
			Action: func(c *cli.Context) error {
				file, err := fileArg(c)
				if err != nil {
					return err
				}
				return st.runPipeline("instruction-dump", file, c.Args())
			},
		},
		{
			Name:      "compile",
			Usage:     "compile a script to a .jsbc file",
			ArgsUsage: "FILE",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "output, o", Usage: "write to `FILE` (default: FILE with a .jsbc extension)"},
				cli.BoolFlag{Name: "tight", Usage: "use the compact operand encoding"},
			},
			Action: func(c *cli.Context) error {
				file, err := fileArg(c)
				if err != nil {
					return err
				}
				return st.compile(file, c.String("output"), c.Bool("tight"))
			},
		},
		{
			Name:      "exec",
			Usage:     "run a compiled .jsbc file",
			ArgsUsage: "FILE [ARGS...]",
			Action: func(c *cli.Context) error {
				file, err := fileArg(c)
				if err != nil {
					return err
				}
				return st.exec(file, c.Args())
			},
		},
		{
			Name:  "repl",
			Usage: "start an interactive session",
			Action: func(c *cli.Context) error {
				return st.repl(os.Stdin)
			},
		},
	}

	// "cinder FILE" runs the file; no arguments at all starts the REPL.
	app.Action = func(c *cli.Context) error {
		if c.NArg() == 0 {
			return st.repl(os.Stdin)
		}
		return st.runPipeline(st.pipeline, c.Args().First(), c.Args())
	}
	return app
}

func fileArg(c *cli.Context) (string, error) {
	if c.NArg() == 0 {
		return "", fmt.Errorf("%s: missing FILE argument", c.Command.Name)
	}
	return c.Args().First(), nil
}

func (st *cliState) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if st.configPath != "" {
		cfg, err = config.Load(st.configPath)
	} else {
		cfg, err = config.FindAndLoad(".")
	}
	if err != nil {
		return nil, err
	}
	dir := "."
	if cfg.Path != "" {
		dir = filepath.Dir(cfg.Path)
	}
	if err := config.LoadDotEnv(dir); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if st.gcStats {
		cfg.Output.GCStats = true
	}
	st.configureColor(cfg)
	return cfg, nil
}

func (st *cliState) configureColor(cfg *config.Config) {
	switch {
	case st.noColor || cfg.Output.Color == "never":
		color.NoColor = true
	case cfg.Output.Color == "always":
		color.NoColor = false
	default:
		f, ok := st.stderr.(*os.File)
		color.NoColor = !ok || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
	}
}

func (st *cliState) session(cfg *config.Config, argv []string) (*driver.Cinder, error) {
	return driver.New(driver.Options{
		Config: cfg,
		Stdout: st.stdout,
		Stderr: st.stderr,
		Argv:   append([]string{"cinder"}, argv...),
	})
}

func (st *cliState) runPipeline(pipeline, file string, argv []string) error {
	cfg, err := st.loadConfig()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(st.stderr, "Failed to read file '%s': %s\n", file, err)
		return status(exitUsage)
	}
	src := string(data)

	switch pipeline {
	case "ast-dump":
		prog, errs := compiler.Parse(source.FromFile(file, src))
		if len(errs) > 0 {
			return st.report(src, errs)
		}
		compiler.DumpAST(st.stdout, prog)
		return nil

	case "instruction-dump":
		m, errs := driver.CompileFile(file, cfg.Engine.StrictDefault)
		if len(errs) > 0 {
			return st.report(src, errs)
		}
		return bytecode.Disassemble(st.stdout, m)

	case "legacy-bytecode-vm":
		m, errs := driver.CompileFile(file, cfg.Engine.StrictDefault)
		if len(errs) > 0 {
			return st.report(src, errs)
		}
		data, err := bytecode.MarshalModule(m, bytecode.FormTight)
		if err != nil {
			return st.fatal(err)
		}
		if m, err = bytecode.UnmarshalModule(data); err != nil {
			return st.fatal(err)
		}
		c, err := st.session(cfg, argv)
		if err != nil {
			return st.fatal(err)
		}
		_, errs = c.RunBytecode(m)
		return st.finish(c, src, errs)

	case "interpreter":
		fmt.Fprintln(st.stderr, "cinder: no AST interpreter is built in; running on the bytecode VM")
	}

	c, err := st.session(cfg, argv)
	if err != nil {
		return st.fatal(err)
	}
	_, errs := c.RunFile(file)
	return st.finish(c, src, errs)
}

func (st *cliState) compile(file, output string, tight bool) error {
	cfg, err := st.loadConfig()
	if err != nil {
		return err
	}
	m, errs := driver.CompileFile(file, cfg.Engine.StrictDefault)
	if len(errs) > 0 {
		src, _ := os.ReadFile(file)
		return st.report(string(src), errs)
	}
	if output == "" {
		output = strings.TrimSuffix(file, filepath.Ext(file)) + ".jsbc"
	}
	form := bytecode.FormNormal
	if tight {
		form = bytecode.FormTight
	}
	f, err := os.Create(output)
	if err != nil {
		return st.fatal(err)
	}
	if err := bytecode.WriteModule(f, m, form); err != nil {
		f.Close()
		return st.fatal(err)
	}
	if err := f.Close(); err != nil {
		return st.fatal(err)
	}
	if sum, err := bytecode.Fingerprint(m); err == nil {
		commonlog.GetLogger("cinder").Infof("wrote %s (fingerprint %016x)", output, sum)
	}
	return nil
}

func (st *cliState) exec(file string, argv []string) error {
	cfg, err := st.loadConfig()
	if err != nil {
		return err
	}
	f, err := os.Open(file)
	if err != nil {
		fmt.Fprintf(st.stderr, "Failed to read file '%s': %s\n", file, err)
		return status(exitUsage)
	}
	m, err := bytecode.ReadModule(f)
	f.Close()
	if err != nil {
		return st.fatal(fmt.Errorf("%s: %w", file, err))
	}
	c, err := st.session(cfg, argv)
	if err != nil {
		return st.fatal(err)
	}
	_, errs := c.RunBytecode(m)
	return st.finish(c, "", errs)
}

func (st *cliState) repl(in io.Reader) error {
	cfg, err := st.loadConfig()
	if err != nil {
		return err
	}
	c, err := st.session(cfg, nil)
	if err != nil {
		return st.fatal(err)
	}
	fmt.Fprintln(st.stdout, "cinder (Ctrl+D to exit)")
	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(st.stdout, "> ")
		line, err := reader.ReadString('\n')
		if strings.TrimSpace(line) != "" {
			value, errs := c.RunCode(source.NewStdinSource(line), driver.RunOptions{})
			var exit *driver.ExitError
			if len(errs) > 0 && stderrors.As(errs[0], &exit) {
				return st.finish(c, line, errs)
			}
			c.DisplayResult(st.stdout, line, value, errs)
		}
		if err == io.EOF {
			fmt.Fprintln(st.stdout)
			return st.finish(c, "", nil)
		}
		if err != nil {
			return st.fatal(err)
		}
	}
}

// finish reports errs and maps them to an exit status.
func (st *cliState) finish(c *driver.Cinder, src string, errs []errors.CinderError) error {
	if c.Config().Output.GCStats {
		fmt.Fprintln(st.stderr, driver.FormatHeapStats(c.HeapStats()))
	}
	if len(errs) == 0 {
		return nil
	}
	var exit *driver.ExitError
	if stderrors.As(errs[0], &exit) {
		if exit.Code == 0 {
			return nil
		}
		return status(exit.Code)
	}
	return st.report(src, errs)
}

func (st *cliState) report(src string, errs []errors.CinderError) error {
	errors.DisplayErrors(st.stderr, src, errs)
	return status(exitCode(errs))
}

func (st *cliState) fatal(err error) error {
	fmt.Fprintf(st.stderr, "Fatal Error: %s\n", err)
	return status(exitFatal)
}

func exitCode(errs []errors.CinderError) int {
	if len(errs) == 0 {
		return exitOK
	}
	switch errs[0].Kind() {
	case "Syntax", "Compile":
		return exitSyntax
	case "Runtime":
		return exitRuntime
	default:
		return exitFatal
	}
}
