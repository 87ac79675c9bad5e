package builtins

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

type ConsoleInitializer struct{}

func (c *ConsoleInitializer) Name() string { return "console" }

func (c *ConsoleInitializer) Priority() int { return PriorityConsole }

// console is the host side of the console object.
type console struct {
	stdout, stderr io.Writer
	group          int
	counts         map[string]int
	timers         map[string]time.Time
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func (c *console) write(w io.Writer, paint *color.Color, msg string) {
	prefix := strings.Repeat("  ", c.group)
	if prefix != "" {
		msg = prefix + strings.ReplaceAll(msg, "\n", "\n"+prefix)
	}
	if paint != nil && isTerminal(w) {
		paint.Fprintln(w, msg)
		return
	}
	fmt.Fprintln(w, msg)
}

// formatConsole renders console arguments: a leading string may carry
// %s %d %i %f %o %O %j %c directives, and strings print without quotes.
func formatConsole(r *realm.Realm, args []heap.Value) string {
	if len(args) == 0 {
		return ""
	}
	var sb strings.Builder
	rest := args
	if args[0].IsString() {
		f := args[0].AsString()
		rest = args[1:]
		for i := 0; i < len(f); i++ {
			if f[i] != '%' || i+1 >= len(f) {
				sb.WriteByte(f[i])
				continue
			}
			d := f[i+1]
			if d == '%' {
				sb.WriteByte('%')
				i++
				continue
			}
			if !strings.ContainsRune("sdifoOjc", rune(d)) || len(rest) == 0 {
				sb.WriteByte(f[i])
				continue
			}
			v := rest[0]
			rest = rest[1:]
			i++
			switch d {
			case 's':
				if v.IsString() {
					sb.WriteString(v.AsString())
				} else {
					sb.WriteString(v.Inspect())
				}
			case 'd', 'i':
				n, err := toNum(r, v)
				if err != nil {
					sb.WriteString("NaN")
					break
				}
				if d == 'i' {
					n = heap.ToIntegerOrInfinity(n)
				}
				sb.WriteString(heap.NumberToString(n))
			case 'f':
				n, err := toNum(r, v)
				if err != nil {
					sb.WriteString("NaN")
					break
				}
				sb.WriteString(heap.NumberToString(n))
			case 'j':
				if s, ok, err := stringifyJSON(r, v, heap.Undefined, heap.Undefined); err == nil && ok {
					sb.WriteString(s)
				} else {
					sb.WriteString("undefined")
				}
			case 'c':
			default:
				sb.WriteString(v.Inspect())
			}
		}
	}
	for i, v := range rest {
		if i > 0 || sb.Len() > 0 || len(rest) < len(args) {
			sb.WriteByte(' ')
		}
		if v.IsString() {
			sb.WriteString(v.AsString())
		} else {
			sb.WriteString(v.Inspect())
		}
	}
	return sb.String()
}

func consoleLabel(r *realm.Realm, args []heap.Value) string {
	if v := arg(args, 0); !v.IsUndefined() {
		if s, err := toStr(r, v); err == nil {
			return s
		}
	}
	return "default"
}

// table renders rows of an object or array as aligned columns.
func (c *console) table(r *realm.Realm, data heap.Value) error {
	o := data.AsObject()
	if o == nil {
		c.write(c.stdout, nil, formatConsole(r, []heap.Value{data}))
		return nil
	}
	var cols []string
	seen := map[string]bool{}
	type row struct {
		key    string
		cells  map[string]string
		scalar string
	}
	var rows []row
	for _, k := range o.OwnKeys() {
		if k.IsSymbol() {
			continue
		}
		v, err := r.Heap.Get(o, k, data)
		if err != nil {
			return err
		}
		rw := row{key: k.Name(), cells: map[string]string{}}
		if vo := v.AsObject(); vo != nil && !vo.IsCallable() {
			for _, ck := range vo.OwnKeys() {
				if ck.IsSymbol() {
					continue
				}
				cv, err := r.Heap.Get(vo, ck, v)
				if err != nil {
					return err
				}
				if !seen[ck.Name()] {
					seen[ck.Name()] = true
					cols = append(cols, ck.Name())
				}
				rw.cells[ck.Name()] = cv.Inspect()
			}
		} else {
			rw.scalar = v.Inspect()
		}
		rows = append(rows, rw)
	}
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 2, 1, ' ', tabwriter.Debug)
	fmt.Fprintf(tw, "(index)\t%s\tValues\n", strings.Join(cols, "\t"))
	for _, rw := range rows {
		cells := make([]string, len(cols))
		for i, col := range cols {
			cells[i] = rw.cells[col]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", rw.key, strings.Join(cells, "\t"), rw.scalar)
	}
	tw.Flush()
	c.write(c.stdout, nil, strings.TrimRight(sb.String(), "\n"))
	return nil
}

func (ci *ConsoleInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	c := &console{
		stdout: ctx.Stdout,
		stderr: ctx.Stderr,
		counts: map[string]int{},
		timers: map[string]time.Time{},
	}
	co := r.NewObject()

	levels := []struct {
		name  string
		err   bool
		paint *color.Color
	}{
		{"log", false, nil},
		{"info", false, color.New(color.FgCyan)},
		{"debug", false, color.New(color.Faint)},
		{"warn", true, color.New(color.FgYellow)},
		{"error", true, color.New(color.FgRed)},
	}
	for _, l := range levels {
		r.Method(co, l.name, 0, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
			w := c.stdout
			if l.err {
				w = c.stderr
			}
			c.write(w, l.paint, formatConsole(r, args))
			return heap.Undefined, nil
		})
	}
	r.Method(co, "trace", 0, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		msg := "Trace"
		if len(args) > 0 {
			msg += ": " + formatConsole(r, args)
		}
		if r.Hooks.StackTrace != nil {
			for _, f := range r.Hooks.StackTrace() {
				msg += "\n    at " + f
			}
		}
		c.write(c.stderr, nil, msg)
		return heap.Undefined, nil
	})
	r.Method(co, "assert", 0, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		if heap.ToBoolean(arg(args, 0)) {
			return heap.Undefined, nil
		}
		msg := "Assertion failed"
		if len(args) > 1 {
			msg += ": " + formatConsole(r, args[1:])
		}
		c.write(c.stderr, color.New(color.FgRed), msg)
		return heap.Undefined, nil
	})
	r.Method(co, "count", 0, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		l := consoleLabel(r, args)
		c.counts[l]++
		c.write(c.stdout, nil, fmt.Sprintf("%s: %d", l, c.counts[l]))
		return heap.Undefined, nil
	})
	r.Method(co, "countReset", 0, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		delete(c.counts, consoleLabel(r, args))
		return heap.Undefined, nil
	})
	r.Method(co, "time", 0, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		c.timers[consoleLabel(r, args)] = time.Now()
		return heap.Undefined, nil
	})
	elapsed := func(end bool) realm.NativeFunc {
		return func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
			l := consoleLabel(r, args)
			start, ok := c.timers[l]
			if !ok {
				c.write(c.stderr, color.New(color.FgYellow), fmt.Sprintf("Timer '%s' does not exist", l))
				return heap.Undefined, nil
			}
			msg := fmt.Sprintf("%s: %.3fms", l, float64(time.Since(start).Microseconds())/1000)
			if !end && len(args) > 1 {
				msg += " " + formatConsole(r, args[1:])
			}
			if end {
				delete(c.timers, l)
			}
			c.write(c.stdout, nil, msg)
			return heap.Undefined, nil
		}
	}
	r.Method(co, "timeLog", 0, elapsed(false))
	r.Method(co, "timeEnd", 0, elapsed(true))
	group := func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		if len(args) > 0 {
			c.write(c.stdout, color.New(color.Bold), formatConsole(r, args))
		}
		c.group++
		return heap.Undefined, nil
	}
	r.Method(co, "group", 0, group)
	r.Method(co, "groupCollapsed", 0, group)
	r.Method(co, "groupEnd", 0, func([]heap.Value, heap.Value, *realm.Realm) (heap.Value, error) {
		if c.group > 0 {
			c.group--
		}
		return heap.Undefined, nil
	})
	r.Method(co, "table", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		return heap.Undefined, c.table(r, arg(args, 0))
	})
	r.Method(co, "dir", 0, func(args []heap.Value, _ heap.Value, _ *realm.Realm) (heap.Value, error) {
		c.write(c.stdout, nil, arg(args, 0).Inspect())
		return heap.Undefined, nil
	})
	r.Method(co, "clear", 0, func([]heap.Value, heap.Value, *realm.Realm) (heap.Value, error) {
		if isTerminal(c.stdout) {
			fmt.Fprint(c.stdout, "\033[2J\033[H")
		}
		c.group = 0
		return heap.Undefined, nil
	})
	return ctx.DefineGlobal("console", heap.ObjectValue(co))
}
