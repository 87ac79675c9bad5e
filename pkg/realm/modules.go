package realm

import (
	"errors"
	"path"

	"cinder/pkg/heap"
)

// ModuleState tracks evaluation progress of a module record.
type ModuleState uint8

const (
	ModuleLinking ModuleState = iota
	ModuleEvaluating
	ModuleEvaluated
	ModuleErrored
)

func (s ModuleState) String() string {
	switch s {
	case ModuleLinking:
		return "linking"
	case ModuleEvaluating:
		return "evaluating"
	case ModuleEvaluated:
		return "evaluated"
	case ModuleErrored:
		return "errored"
	}
	return "unknown"
}

// ErrNoResolver is returned by Require when the host installed no resolver.
var ErrNoResolver = errors.New("module loading is not available")

// ModuleRecord is one loaded module, keyed by canonical path.
type ModuleRecord struct {
	Path  string
	State ModuleState
	// Module is the CommonJS module object; its exports property is the
	// module's public value.
	Module *heap.Object
	Meta   *heap.Object
	Err    error
}

// Exports reads module.exports.
func (m *ModuleRecord) Exports() heap.Value {
	v, _ := m.Module.FindData("exports")
	return v
}

// Module returns the record registered for path.
func (r *Realm) Module(path string) *ModuleRecord { return r.modules[path] }

// NewModuleRecord registers a record for path with fresh module, exports
// and meta objects.
func (r *Realm) NewModuleRecord(p string) *ModuleRecord {
	h := r.Heap
	rec := &ModuleRecord{Path: p}
	rec.Module = r.NewObject()
	h.RetainNode(rec.Module)
	rec.Module.Put("exports", heap.ObjectValue(r.NewObject()))
	rec.Module.Put("id", heap.NewString(p))
	rec.Meta = h.NewObject(nil)
	h.RetainNode(rec.Meta)
	rec.Meta.Put("url", heap.NewString("file://"+p))
	rec.Meta.Put("filename", heap.NewString(p))
	rec.Meta.Put("dirname", heap.NewString(path.Dir(p)))
	r.modules[p] = rec
	return rec
}

// SpecifierArg validates the id argument of require and require.resolve.
func (r *Realm) SpecifierArg(args []heap.Value) (string, error) {
	if len(args) == 0 || !args[0].IsString() {
		return "", r.NewTypeError("The \"id\" argument must be of type string")
	}
	if args[0].AsString() == "" {
		return "", r.NewTypeError("The argument 'id' must be a non-empty string")
	}
	return args[0].AsString(), nil
}

// Require loads specifier relative to referrer. Each canonical path is
// evaluated once; a module required while it is still evaluating yields
// its partially populated exports.
func (r *Realm) Require(specifier, referrer string) (heap.Value, error) {
	if r.Hooks.ResolveModule == nil || r.Hooks.EvaluateModule == nil {
		return heap.Undefined, r.NewError("Cannot find module '%s': %v", specifier, ErrNoResolver)
	}
	p, src, err := r.Hooks.ResolveModule(specifier, referrer)
	if err != nil {
		return heap.Undefined, r.NewError("Cannot find module '%s': %v", specifier, err)
	}
	if rec, ok := r.modules[p]; ok {
		switch rec.State {
		case ModuleErrored:
			return heap.Undefined, rec.Err
		default:
			return rec.Exports(), nil
		}
	}
	rec := r.NewModuleRecord(p)
	rec.State = ModuleEvaluating
	log.Debugf("evaluating module %s", p)
	if err := r.Hooks.EvaluateModule(rec, src); err != nil {
		rec.State = ModuleErrored
		rec.Err = err
		return heap.Undefined, err
	}
	rec.State = ModuleEvaluated
	return rec.Exports(), nil
}

// ModuleMeta returns the meta object of the module at path, or nil.
func (r *Realm) ModuleMeta(p string) *heap.Object {
	if rec, ok := r.modules[p]; ok {
		return rec.Meta
	}
	return nil
}
