package driver

import (
	"path"
	"path/filepath"
	"strings"

	"cinder/pkg/bytecode"
	"cinder/pkg/compiler"
	"cinder/pkg/heap"
	"cinder/pkg/realm"
	"cinder/pkg/scope"
	"cinder/pkg/source"
)

// resolveModule is the realm's ResolveModule hook.
func (c *Cinder) resolveModule(specifier, referrer string) (string, string, error) {
	m, err := c.loader.Resolve(specifier, referrer)
	if err != nil {
		return "", "", err
	}
	c.origins[m.Path] = m.Resolver
	return m.Path, m.Source, nil
}

// evaluateModule is the realm's EvaluateModule hook. Native modules are
// built in Go, .json files are parsed, everything else runs as CommonJS.
func (c *Cinder) evaluateModule(rec *realm.ModuleRecord, src string) error {
	if name, ok := strings.CutPrefix(rec.Path, NativePrefix); ok {
		return c.natives.Instantiate(c.realm, name, rec)
	}
	if strings.HasSuffix(rec.Path, ".json") {
		return c.evaluateJSON(rec, src)
	}
	filename := c.hostPath(rec.Path)
	sf := source.NewSourceFile(path.Base(rec.Path), filename, src)
	m, errs := compiler.CompileSource(sf, compiler.Options{
		Name:   filename,
		Source: sf,
		Strict: c.config.Engine.StrictDefault,
	})
	if len(errs) > 0 {
		e := errs[0]
		return c.realm.NewSyntaxError("%s (%s:%d:%d)", e.Message(), filename, e.Pos().Line, e.Pos().Column)
	}
	_, err := c.runModuleBody(rec, m, filename)
	return err
}

// runModuleBody runs m in a fresh module scope below the global scope, with
// the CommonJS bindings declared and this bound to module.exports.
func (c *Cinder) runModuleBody(rec *realm.ModuleRecord, m *bytecode.Module, filename string) (heap.Value, error) {
	r := c.realm
	env := scope.New(r.Heap, r.GlobalScope, scope.FlagFunction|scope.FlagModule)
	exports := rec.Exports()
	bindings := []struct {
		name  string
		value heap.Value
	}{
		{"exports", exports},
		{"require", heap.ObjectValue(c.requireFunction(rec.Path))},
		{"module", heap.ObjectValue(rec.Module)},
		{"__filename", heap.NewString(filename)},
		{"__dirname", heap.NewString(filepath.Dir(filename))},
	}
	for _, b := range bindings {
		if err := env.Declare(b.name, scope.Var); err != nil {
			return heap.Undefined, err
		}
		if err := env.Initialize(b.name, b.value); err != nil {
			return heap.Undefined, err
		}
	}
	log.Debugf("running module %s", rec.Path)
	return c.vm.RunModule(m, env, exports)
}

// requireFunction builds the require binding of the module at referrer.
func (c *Cinder) requireFunction(referrer string) *heap.Object {
	r := c.realm
	req := r.NewNativeFunction("require", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		spec, err := r.SpecifierArg(args)
		if err != nil {
			return heap.Undefined, err
		}
		return r.Require(spec, referrer)
	})
	r.Method(req, "resolve", 1, func(args []heap.Value, _ heap.Value, r *realm.Realm) (heap.Value, error) {
		spec, err := r.SpecifierArg(args)
		if err != nil {
			return heap.Undefined, err
		}
		p, _, err := c.resolveModule(spec, referrer)
		if err != nil {
			return heap.Undefined, r.NewError("Cannot find module '%s'", spec)
		}
		return heap.NewString(c.hostPath(p)), nil
	})
	return req
}

// evaluateJSON sets module.exports to the parsed document.
func (c *Cinder) evaluateJSON(rec *realm.ModuleRecord, src string) error {
	r := c.realm
	json, err := r.Get(heap.ObjectValue(r.GlobalObject), "JSON")
	if err != nil {
		return err
	}
	parse, err := r.Get(json, "parse")
	if err != nil {
		return err
	}
	v, err := r.Call(parse, json, heap.NewString(src))
	if err != nil {
		return err
	}
	rec.Module.Put("exports", v)
	return nil
}

// hostPath maps a canonical module path to the file it was read from.
// Modules that did not come from a file keep their canonical path.
func (c *Cinder) hostPath(canonical string) string {
	if fr, ok := c.hosts[c.origins[canonical]]; ok {
		return fr.HostPath(canonical)
	}
	return canonical
}
