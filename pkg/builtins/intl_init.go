package builtins

import (
	"math"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

// IntlInitializer installs a small Intl: locale canonicalization, Collator
// and NumberFormat. Everything else in ECMA-402 is absent.
type IntlInitializer struct{}

func (i *IntlInitializer) Name() string { return "Intl" }

func (i *IntlInitializer) Priority() int { return PriorityIntl }

// canonicalLocales implements CanonicalizeLocaleList.
func canonicalLocales(r *realm.Realm, v heap.Value) ([]language.Tag, error) {
	if v.IsUndefined() {
		return nil, nil
	}
	var items []heap.Value
	if v.IsString() {
		items = []heap.Value{v}
	} else {
		var err error
		if items, err = createListFromArrayLike(r, v); err != nil {
			return nil, err
		}
	}
	var out []language.Tag
	seen := map[string]bool{}
	for _, item := range items {
		if !item.IsString() && !item.IsObject() {
			return nil, r.NewTypeError("Language ID should be string or object.")
		}
		s, err := toStr(r, item)
		if err != nil {
			return nil, err
		}
		tag, err := language.Parse(s)
		if err != nil {
			return nil, r.NewRangeError("Incorrect locale information provided")
		}
		if !seen[tag.String()] {
			seen[tag.String()] = true
			out = append(out, tag)
		}
	}
	return out, nil
}

func firstLocale(r *realm.Realm, v heap.Value) (language.Tag, error) {
	tags, err := canonicalLocales(r, v)
	if err != nil || len(tags) == 0 {
		return language.English, err
	}
	return tags[0], nil
}

// option reads a string option, returning def when absent.
func option(r *realm.Realm, opts heap.Value, name string, allowed []string, def string) (string, error) {
	if opts.IsUndefined() {
		return def, nil
	}
	v, err := r.Get(opts, name)
	if err != nil || v.IsUndefined() {
		return def, err
	}
	s, err := toStr(r, v)
	if err != nil {
		return "", err
	}
	if allowed == nil {
		return s, nil
	}
	for _, a := range allowed {
		if a == s {
			return s, nil
		}
	}
	return "", r.NewRangeError("Value %s out of range for Intl options property %s", s, name)
}

func boolOption(r *realm.Realm, opts heap.Value, name string, def bool) (bool, error) {
	if opts.IsUndefined() {
		return def, nil
	}
	v, err := r.Get(opts, name)
	if err != nil || v.IsUndefined() {
		return def, err
	}
	return heap.ToBoolean(v), nil
}

func intOption(r *realm.Realm, opts heap.Value, name string, lo, hi, def int) (int, error) {
	if opts.IsUndefined() {
		return def, nil
	}
	v, err := r.Get(opts, name)
	if err != nil || v.IsUndefined() {
		return def, err
	}
	f, err := toNum(r, v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || f < float64(lo) || f > float64(hi) {
		return 0, r.NewRangeError("%s value is out of range.", name)
	}
	return int(math.Floor(f)), nil
}

type collator struct {
	tag         language.Tag
	usage       string
	sensitivity string
	numeric     bool
	c           *collate.Collator
	compare     *heap.Object
}

func (c *collator) EachRef(visit func(heap.Node)) {
	if c.compare != nil {
		visit(c.compare)
	}
}

type numberFormat struct {
	tag        language.Tag
	style      string
	minFrac    int
	maxFrac    int
	useGroup   bool
	printer    *message.Printer
	formatFunc *heap.Object
}

func (n *numberFormat) EachRef(visit func(heap.Node)) {
	if n.formatFunc != nil {
		visit(n.formatFunc)
	}
}

func (n *numberFormat) format(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "∞"
	case math.IsInf(f, -1):
		return "-∞"
	}
	opts := []number.Option{number.MinFractionDigits(n.minFrac), number.MaxFractionDigits(n.maxFrac)}
	if !n.useGroup {
		opts = append(opts, number.NoSeparator())
	}
	if n.style == "percent" {
		return n.printer.Sprint(number.Percent(f, opts...))
	}
	return n.printer.Sprint(number.Decimal(f, opts...))
}

func (i *IntlInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	intl := r.NewObject()
	intl.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str("Intl"), heap.Configurable))

	r.Method(intl, "getCanonicalLocales", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		tags, err := canonicalLocales(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		out := make([]heap.Value, len(tags))
		for i, t := range tags {
			out[i] = str(t.String())
		}
		return newArray(r, out), nil
	})
	supportedLocalesOf := func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		tags, err := canonicalLocales(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		var out []heap.Value
		for _, t := range tags {
			if _, _, conf := collateMatcher.Match(t); conf != language.No {
				out = append(out, str(t.String()))
			}
		}
		return newArray(r, out), nil
	}

	// Collator
	collProto := r.Heap.NewObject(r.Intrinsic(realm.ObjectPrototype))
	collProto.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str("Intl.Collator"), heap.Configurable))
	newCollator := func(args []heap.Value, newTarget *heap.Object, r *realm.Realm) (heap.Value, error) {
		tag, err := firstLocale(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		opts := arg(args, 1)
		c := &collator{tag: tag}
		if c.usage, err = option(r, opts, "usage", []string{"sort", "search"}, "sort"); err != nil {
			return heap.Undefined, err
		}
		if c.sensitivity, err = option(r, opts, "sensitivity", []string{"base", "accent", "case", "variant"}, "variant"); err != nil {
			return heap.Undefined, err
		}
		if c.numeric, err = boolOption(r, opts, "numeric", false); err != nil {
			return heap.Undefined, err
		}
		var co []collate.Option
		switch c.sensitivity {
		case "base":
			co = append(co, collate.IgnoreCase, collate.IgnoreDiacritics)
		case "accent":
			co = append(co, collate.IgnoreCase)
		case "case":
			co = append(co, collate.IgnoreDiacritics)
		}
		if c.numeric {
			co = append(co, collate.Numeric)
		}
		c.c = collate.New(tag, co...)
		proto, err := protoFromCtor(r, newTarget, "CollatorPrototype")
		if err != nil {
			return heap.Undefined, err
		}
		return heap.ObjectValue(r.Heap.NewObjectOf("Intl.Collator", proto, c)), nil
	}
	collCtor := r.NewNativeConstructor("Collator", 0, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		return newCollator(args, nil, r)
	}, newCollator, collProto)
	if err := ctx.Intrinsic("CollatorPrototype", collProto); err != nil {
		return err
	}
	r.Method(collCtor, "supportedLocalesOf", 1, supportedLocalesOf)
	thisCollator := func(r *realm.Realm, this heap.Value) (*collator, error) {
		if o := this.AsObject(); o != nil {
			if c, ok := o.Internal.(*collator); ok {
				return c, nil
			}
		}
		return nil, r.NewTypeError("Method Intl.Collator.prototype.compare called on incompatible receiver %s", this.Inspect())
	}
	r.Getter(collProto, heap.StringKey("compare"), func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		c, err := thisCollator(r, this)
		if err != nil {
			return heap.Undefined, err
		}
		if c.compare == nil {
			c.compare = r.NewNativeFunction("", 2, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
				a, err := toStr(r, arg(args, 0))
				if err != nil {
					return heap.Undefined, err
				}
				b, err := toStr(r, arg(args, 1))
				if err != nil {
					return heap.Undefined, err
				}
				return heap.IntValue(c.c.CompareString(a, b)), nil
			})
			r.Heap.RetainNode(c.compare)
		}
		return heap.ObjectValue(c.compare), nil
	})
	r.Method(collProto, "resolvedOptions", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		c, err := thisCollator(r, this)
		if err != nil {
			return heap.Undefined, err
		}
		o := r.NewObject()
		o.Put("locale", str(c.tag.String()))
		o.Put("usage", str(c.usage))
		o.Put("sensitivity", str(c.sensitivity))
		o.Put("ignorePunctuation", heap.False)
		o.Put("collation", str("default"))
		o.Put("numeric", heap.BooleanValue(c.numeric))
		o.Put("caseFirst", str("false"))
		return heap.ObjectValue(o), nil
	})
	intl.DefineHidden("Collator", heap.ObjectValue(collCtor))

	// NumberFormat
	nfProto := r.Heap.NewObject(r.Intrinsic(realm.ObjectPrototype))
	nfProto.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str("Intl.NumberFormat"), heap.Configurable))
	newNumberFormat := func(args []heap.Value, newTarget *heap.Object, r *realm.Realm) (heap.Value, error) {
		tag, err := firstLocale(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		opts := arg(args, 1)
		nf := &numberFormat{tag: tag, printer: message.NewPrinter(tag)}
		if nf.style, err = option(r, opts, "style", []string{"decimal", "percent"}, "decimal"); err != nil {
			return heap.Undefined, err
		}
		if nf.minFrac, err = intOption(r, opts, "minimumFractionDigits", 0, 100, 0); err != nil {
			return heap.Undefined, err
		}
		defMax := 3
		if nf.style == "percent" {
			defMax = 0
		}
		if defMax < nf.minFrac {
			defMax = nf.minFrac
		}
		if nf.maxFrac, err = intOption(r, opts, "maximumFractionDigits", nf.minFrac, 100, defMax); err != nil {
			return heap.Undefined, err
		}
		if nf.useGroup, err = boolOption(r, opts, "useGrouping", true); err != nil {
			return heap.Undefined, err
		}
		proto, err := protoFromCtor(r, newTarget, "NumberFormatPrototype")
		if err != nil {
			return heap.Undefined, err
		}
		return heap.ObjectValue(r.Heap.NewObjectOf("Intl.NumberFormat", proto, nf)), nil
	}
	nfCtor := r.NewNativeConstructor("NumberFormat", 0, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		return newNumberFormat(args, nil, r)
	}, newNumberFormat, nfProto)
	if err := ctx.Intrinsic("NumberFormatPrototype", nfProto); err != nil {
		return err
	}
	r.Method(nfCtor, "supportedLocalesOf", 1, supportedLocalesOf)
	thisNumberFormat := func(r *realm.Realm, this heap.Value) (*numberFormat, error) {
		if o := this.AsObject(); o != nil {
			if nf, ok := o.Internal.(*numberFormat); ok {
				return nf, nil
			}
		}
		return nil, r.NewTypeError("Method Intl.NumberFormat.prototype.format called on incompatible receiver %s", this.Inspect())
	}
	r.Getter(nfProto, heap.StringKey("format"), func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		nf, err := thisNumberFormat(r, this)
		if err != nil {
			return heap.Undefined, err
		}
		if nf.formatFunc == nil {
			nf.formatFunc = r.NewNativeFunction("", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
				f, err := toNum(r, arg(args, 0))
				if err != nil {
					return heap.Undefined, err
				}
				return str(nf.format(f)), nil
			})
			r.Heap.RetainNode(nf.formatFunc)
		}
		return heap.ObjectValue(nf.formatFunc), nil
	})
	r.Method(nfProto, "resolvedOptions", 0, func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		nf, err := thisNumberFormat(r, this)
		if err != nil {
			return heap.Undefined, err
		}
		o := r.NewObject()
		o.Put("locale", str(nf.tag.String()))
		o.Put("numberingSystem", str("latn"))
		o.Put("style", str(nf.style))
		o.Put("minimumFractionDigits", heap.IntValue(nf.minFrac))
		o.Put("maximumFractionDigits", heap.IntValue(nf.maxFrac))
		o.Put("useGrouping", heap.BooleanValue(nf.useGroup))
		return heap.ObjectValue(o), nil
	})
	intl.DefineHidden("NumberFormat", heap.ObjectValue(nfCtor))

	return ctx.DefineGlobal("Intl", heap.ObjectValue(intl))
}

var collateMatcher = language.NewMatcher(collate.Supported())
