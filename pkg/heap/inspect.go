package heap

import (
	"math"
	"strconv"
	"strings"
)

const inspectDepth = 4

func inspect(v Value, depth int, seen map[*Object]bool) string {
	switch v.kind {
	case KindBoolean:
		if v.num != 0 {
			return "true"
		}
		return "false"
	case KindString:
		if depth == 0 {
			return ToWellFormed(v.str)
		}
		return QuoteString(v.str)
	case KindNumber:
		if v.num == 0 && math.Signbit(v.num) {
			return "-0"
		}
		return NumberToString(v.num)
	case KindBigInt:
		return v.AsBigInt().String() + "n"
	case KindSymbol:
		return v.AsSymbol().String()
	case KindObject:
		return inspectObject(v.AsObject(), depth, seen)
	default:
		return v.kind.String()
	}
}

func inspectObject(o *Object, depth int, seen map[*Object]bool) string {
	if o.freed {
		return "[freed object]"
	}
	if c := o.Callable(); c != nil {
		if name := c.FunctionName(); name != "" {
			return "[Function: " + name + "]"
		}
		return "[Function (anonymous)]"
	}
	switch o.class {
	case "Error":
		name, _ := o.FindData("name")
		msg, _ := o.FindData("message")
		n := "Error"
		if name.kind == KindString {
			n = name.str
		}
		if msg.kind == KindString && msg.str != "" {
			return n + ": " + msg.str
		}
		return n
	case "global":
		return "[object global]"
	case "String", "Number", "Boolean", "BigInt", "Symbol":
		if p, ok := o.PrimitiveValue(); ok {
			return "[" + o.class + ": " + inspect(p, depth+1, seen) + "]"
		}
	}
	if seen[o] {
		return "[Circular]"
	}
	if depth >= inspectDepth {
		if o.isArray {
			return "[Array]"
		}
		return "[Object]"
	}
	seen[o] = true
	defer delete(seen, o)

	var parts []string
	if o.isArray {
		holes := 0
		flush := func() {
			if holes > 0 {
				parts = append(parts, "<"+strconv.Itoa(holes)+" empty items>")
				holes = 0
			}
		}
		for i := uint32(0); i < o.length; i++ {
			if !o.HasOwnProperty(IndexKey(i)) {
				holes++
				continue
			}
			flush()
			parts = append(parts, inspect(o.ElementAt(i), depth+1, seen))
		}
		flush()
		for _, p := range o.props {
			if _, ok := p.key.ArrayIndex(); ok || p.flags&Enumerable == 0 {
				continue
			}
			parts = append(parts, inspectProp(p, depth, seen))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	for _, k := range o.OwnKeys() {
		i := o.findProp(k)
		if i < 0 {
			continue
		}
		p := o.props[i]
		if p.flags&Enumerable == 0 {
			continue
		}
		parts = append(parts, inspectProp(p, depth, seen))
	}
	prefix := ""
	if o.class != "Object" && o.class != "Arguments" {
		prefix = o.class + " "
	}
	if len(parts) == 0 {
		return prefix + "{}"
	}
	return prefix + "{ " + strings.Join(parts, ", ") + " }"
}

func inspectProp(p property, depth int, seen map[*Object]bool) string {
	name := p.key.String()
	if !p.key.IsSymbol() && !isIdentifierName(name) {
		name = strconv.Quote(name)
	}
	if p.accessor {
		switch {
		case p.getter != nil && p.setter != nil:
			return name + ": [Getter/Setter]"
		case p.getter != nil:
			return name + ": [Getter]"
		default:
			return name + ": [Setter]"
		}
	}
	return name + ": " + inspect(p.value, depth+1, seen)
}

func isIdentifierName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
