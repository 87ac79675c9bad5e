package heap

// PropFlags are the attribute bits of a property.
type PropFlags uint8

const (
	Writable PropFlags = 1 << iota
	Enumerable
	Configurable
)

const (
	// DefaultFlags are the attributes of properties created by assignment.
	DefaultFlags = Writable | Enumerable | Configurable
	// HiddenFlags are used for builtin methods and class members.
	HiddenFlags = Writable | Configurable
)

// DescField records which fields a (possibly partial) descriptor carries.
type DescField uint8

const (
	HasValue DescField = 1 << iota
	HasWritable
	HasGet
	HasSet
	HasEnumerable
	HasConfigurable
)

// Descriptor is a property descriptor as used by define/getOwnProperty.
// Getter/Setter are nil when absent or undefined.
type Descriptor struct {
	Value  Value
	Getter *Object
	Setter *Object
	Flags  PropFlags
	Has    DescField
}

// DataDesc builds a complete data descriptor.
func DataDesc(v Value, flags PropFlags) Descriptor {
	return Descriptor{Value: v, Flags: flags, Has: HasValue | HasWritable | HasEnumerable | HasConfigurable}
}

// AccessorDesc builds a complete accessor descriptor.
func AccessorDesc(get, set *Object, flags PropFlags) Descriptor {
	return Descriptor{Getter: get, Setter: set, Flags: flags &^ Writable, Has: HasGet | HasSet | HasEnumerable | HasConfigurable}
}

func (d Descriptor) IsAccessor() bool { return d.Has&(HasGet|HasSet) != 0 }
func (d Descriptor) IsData() bool     { return d.Has&(HasValue|HasWritable) != 0 }

func (d Descriptor) Writable() bool     { return d.Flags&Writable != 0 }
func (d Descriptor) Enumerable() bool   { return d.Flags&Enumerable != 0 }
func (d Descriptor) Configurable() bool { return d.Flags&Configurable != 0 }

type property struct {
	key      PropertyKey
	value    Value
	getter   *Object
	setter   *Object
	flags    PropFlags
	accessor bool
}

func (p *property) descriptor() Descriptor {
	if p.accessor {
		return AccessorDesc(p.getter, p.setter, p.flags)
	}
	return DataDesc(p.value, p.flags)
}

type privateSlot struct {
	name     *Symbol
	value    Value
	getter   *Object
	setter   *Object
	accessor bool
	method   bool
}
