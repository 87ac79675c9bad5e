package builtins

import (
	"math"
	"math/big"
	"time"

	"cinder/pkg/heap"
	"cinder/pkg/realm"
)

// TemporalInitializer installs Temporal.Now and Temporal.Instant.
type TemporalInitializer struct{}

func (t *TemporalInitializer) Name() string { return "Temporal" }

func (t *TemporalInitializer) Priority() int { return PriorityTemporal }

var (
	nsPerMs   = big.NewInt(1_000_000)
	nsPerSec  = big.NewInt(1_000_000_000)
	maxInstNs = new(big.Int).Mul(big.NewInt(8_640_000_000_000_000), nsPerMs)
)

// instant is the internal slot of Temporal.Instant objects.
type instant struct {
	ns *big.Int
}

func (*instant) EachRef(func(heap.Node)) {}

func (i *instant) utc() time.Time {
	sec, rem := new(big.Int).QuoRem(i.ns, nsPerSec, new(big.Int))
	return time.Unix(sec.Int64(), rem.Int64()).UTC()
}

func (i *instant) String() string {
	return i.utc().Format("2006-01-02T15:04:05.999999999Z")
}

func thisInstant(r *realm.Realm, v heap.Value) (*instant, error) {
	if o := v.AsObject(); o != nil {
		if in, ok := o.Internal.(*instant); ok {
			return in, nil
		}
	}
	return nil, r.NewTypeError("%s is not a Temporal.Instant", v.Inspect())
}

func newInstant(r *realm.Realm, ns *big.Int) (heap.Value, error) {
	if new(big.Int).Abs(ns).Cmp(maxInstNs) > 0 {
		return heap.Undefined, r.NewRangeError("Instant is out of range")
	}
	o := r.Heap.NewObjectOf("Temporal.Instant", r.Intrinsic("InstantPrototype"), &instant{ns: ns})
	return heap.ObjectValue(o), nil
}

// toInstant accepts an Instant or an RFC 3339 string.
func toInstant(r *realm.Realm, v heap.Value) (*instant, error) {
	if in, err := thisInstant(r, v); err == nil {
		return in, nil
	}
	s, err := toStr(r, v)
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, r.NewRangeError("Invalid instant string %s", s)
	}
	ns := new(big.Int).Mul(big.NewInt(t.Unix()), nsPerSec)
	return &instant{ns: ns.Add(ns, big.NewInt(int64(t.Nanosecond())))}, nil
}

func (ti *TemporalInitializer) InitRuntime(ctx *RuntimeContext) error {
	r := ctx.Realm
	temporal := r.NewObject()
	temporal.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str("Temporal"), heap.Configurable))

	proto := r.Heap.NewObject(r.Intrinsic(realm.ObjectPrototype))
	proto.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str("Temporal.Instant"), heap.Configurable))
	if err := ctx.Intrinsic("InstantPrototype", proto); err != nil {
		return err
	}
	ctor := r.NewNativeConstructor("Instant", 1, nil, func(args []heap.Value, _ *heap.Object, r *realm.Realm) (heap.Value, error) {
		ns, err := toBigInt(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		return newInstant(r, ns)
	}, proto)
	r.Method(ctor, "from", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		in, err := toInstant(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		return newInstant(r, in.ns)
	})
	r.Method(ctor, "fromEpochMilliseconds", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		f, err := toNum(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return heap.Undefined, r.NewRangeError("Invalid epoch milliseconds %s", heap.NumberToString(f))
		}
		ms, _ := big.NewFloat(f).Int(nil)
		return newInstant(r, ms.Mul(ms, nsPerMs))
	})
	r.Method(ctor, "fromEpochNanoseconds", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		v := arg(args, 0)
		if !v.IsBigInt() {
			return heap.Undefined, r.NewTypeError("Epoch nanoseconds must be a BigInt")
		}
		return newInstant(r, new(big.Int).Set(v.AsBigInt()))
	})
	r.Method(ctor, "compare", 2, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		a, err := toInstant(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		b, err := toInstant(r, arg(args, 1))
		if err != nil {
			return heap.Undefined, err
		}
		return heap.IntValue(a.ns.Cmp(b.ns)), nil
	})

	r.Getter(proto, heap.StringKey("epochMilliseconds"), func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		in, err := thisInstant(r, this)
		if err != nil {
			return heap.Undefined, err
		}
		// Euclidean division floors for a positive divisor
		q := new(big.Int).Div(in.ns, nsPerMs)
		f, _ := new(big.Float).SetInt(q).Float64()
		return num(f), nil
	})
	r.Getter(proto, heap.StringKey("epochNanoseconds"), func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		in, err := thisInstant(r, this)
		if err != nil {
			return heap.Undefined, err
		}
		return heap.NewBigInt(new(big.Int).Set(in.ns)), nil
	})
	r.Method(proto, "equals", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		in, err := thisInstant(r, this)
		if err != nil {
			return heap.Undefined, err
		}
		other, err := toInstant(r, arg(args, 0))
		if err != nil {
			return heap.Undefined, err
		}
		return heap.BooleanValue(in.ns.Cmp(other.ns) == 0), nil
	})
	r.Method(proto, "add", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		return shiftInstant(r, this, arg(args, 0), 1)
	})
	r.Method(proto, "subtract", 1, func(args []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		return shiftInstant(r, this, arg(args, 0), -1)
	})
	toString := func(_ []heap.Value, this heap.Value, r *realm.Realm) (heap.Value, error) {
		in, err := thisInstant(r, this)
		if err != nil {
			return heap.Undefined, err
		}
		return str(in.String()), nil
	}
	r.Method(proto, "toString", 0, toString)
	r.Method(proto, "toJSON", 0, toString)
	r.Method(proto, "valueOf", 0, func(_ []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		return heap.Undefined, r.NewTypeError("Do not use Temporal.Instant.prototype.valueOf; use Temporal.Instant.compare for comparison.")
	})
	temporal.DefineHidden("Instant", heap.ObjectValue(ctor))

	now := r.NewObject()
	now.DefineOwnProperty(heap.SymbolKey(heap.SymToStringTag), heap.DataDesc(str("Temporal.Now"), heap.Configurable))
	r.Method(now, "instant", 0, func(_ []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		return newInstant(r, big.NewInt(time.Now().UnixNano()))
	})
	r.Method(now, "timeZoneId", 0, func([]heap.Value, heap.Value, *realm.Realm) (heap.Value, error) {
		return str(time.Local.String()), nil
	})
	temporal.DefineHidden("Now", heap.ObjectValue(now))
	return ctx.DefineGlobal("Temporal", heap.ObjectValue(temporal))
}

// durationUnits maps the duration fields Instant arithmetic accepts to
// nanoseconds.
var durationUnits = []struct {
	name string
	ns   int64
}{
	{"hours", int64(time.Hour)},
	{"minutes", int64(time.Minute)},
	{"seconds", int64(time.Second)},
	{"milliseconds", int64(time.Millisecond)},
	{"microseconds", int64(time.Microsecond)},
	{"nanoseconds", 1},
}

func shiftInstant(r *realm.Realm, this, dur heap.Value, sign int64) (heap.Value, error) {
	in, err := thisInstant(r, this)
	if err != nil {
		return heap.Undefined, err
	}
	if !dur.IsObject() {
		return heap.Undefined, r.NewTypeError("Duration must be an object")
	}
	total := new(big.Int).Set(in.ns)
	for _, u := range durationUnits {
		v, err := r.Get(dur, u.name)
		if err != nil {
			return heap.Undefined, err
		}
		if v.IsUndefined() {
			continue
		}
		f, err := toNum(r, v)
		if err != nil {
			return heap.Undefined, err
		}
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return heap.Undefined, r.NewRangeError("Duration field %s must be an integer", u.name)
		}
		n, _ := big.NewFloat(f).Int(nil)
		total.Add(total, n.Mul(n, big.NewInt(u.ns*sign)))
	}
	return newInstant(r, total)
}
