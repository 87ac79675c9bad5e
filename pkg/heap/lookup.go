package heap

// Get reads key from o, walking the prototype chain. Accessors run with
// receiver as this.
func (h *Heap) Get(o *Object, k PropertyKey, receiver Value) (Value, error) {
	for cur := o; cur != nil; cur = cur.proto {
		v, getter, _, _, accessor, found := cur.lookupOwn(k)
		if !found {
			continue
		}
		if accessor {
			if getter == nil {
				return Undefined, nil
			}
			return h.Call(getter, receiver)
		}
		return v, nil
	}
	return Undefined, nil
}

// GetV reads a property of any value; primitives use proto as their
// wrapper prototype.
func (h *Heap) GetV(v Value, k PropertyKey, proto *Object) (Value, error) {
	if o := v.AsObject(); o != nil {
		return h.Get(o, k, v)
	}
	if v.kind == KindString && !k.IsSymbol() {
		if k.name == "length" {
			return IntValue(UTF16Len(v.str)), nil
		}
		if idx, ok := k.ArrayIndex(); ok {
			if ch, ok := CharAt(v.str, int(idx)); ok {
				return NewString(ch), nil
			}
			return Undefined, nil
		}
	}
	if proto == nil {
		return Undefined, nil
	}
	return h.Get(proto, k, v)
}

// Set writes key on o following OrdinarySet: inherited setters run,
// inherited read-only data properties reject the write, otherwise an own
// data property is created or updated on the receiver. It reports false
// when the write was rejected.
func (h *Heap) Set(o *Object, k PropertyKey, v Value, receiver Value) (bool, error) {
	recv := receiver.AsObject()
	if recv == o && o != nil && !o.isArray {
		if i := o.findProp(k); i >= 0 {
			p := &o.props[i]
			if !p.accessor {
				if p.flags&Writable == 0 {
					return false, nil
				}
				h.swap(p.value, v)
				p.value = v
				return true, nil
			}
		}
	}
	for cur := o; cur != nil; cur = cur.proto {
		_, _, setter, flags, accessor, found := cur.lookupOwn(k)
		if !found {
			continue
		}
		if accessor {
			if setter == nil {
				return false, nil
			}
			_, err := h.Call(setter, receiver, v)
			return err == nil, err
		}
		if flags&Writable == 0 {
			return false, nil
		}
		break
	}
	if recv == nil {
		return false, nil
	}
	if recv.isArray {
		if idx, ok := k.ArrayIndex(); ok {
			if idx < uint32(len(recv.elements)) && recv.elements[idx].kind != kindHole {
				if recv.frozen {
					return false, nil
				}
				h.swap(recv.elements[idx], v)
				recv.elements[idx] = v
				return true, nil
			}
			return recv.DefineOwnProperty(k, DataDesc(v, DefaultFlags)), nil
		}
		if !k.IsSymbol() && k.name == "length" {
			n, err := h.ToNumber(v)
			if err != nil {
				return false, err
			}
			if n < 0 || n != float64(uint32(n)) {
				return false, RangeErrorf("Invalid array length")
			}
			return recv.SetLength(uint32(n)), nil
		}
	}
	if i := recv.findProp(k); i >= 0 {
		p := &recv.props[i]
		if p.accessor || p.flags&Writable == 0 {
			return false, nil
		}
		h.swap(p.value, v)
		p.value = v
		return true, nil
	}
	if recv.HasOwnProperty(k) {
		// exotic own property (string index, array length)
		return false, nil
	}
	return recv.DefineOwnProperty(k, DataDesc(v, DefaultFlags)), nil
}

// HasProperty reports whether key is present on o or its prototypes.
func (h *Heap) HasProperty(o *Object, k PropertyKey) bool {
	for cur := o; cur != nil; cur = cur.proto {
		if cur.HasOwnProperty(k) {
			return true
		}
	}
	return false
}

// GetMethod returns the callable at key, nil if undefined or null, and a
// TypeError if the value is present but not callable.
func (h *Heap) GetMethod(v Value, k PropertyKey, proto *Object) (*Object, error) {
	fn, err := h.GetV(v, k, proto)
	if err != nil {
		return nil, err
	}
	if fn.IsNullish() {
		return nil, nil
	}
	if !fn.IsCallable() {
		return nil, TypeErrorf("%s is not a function", k.String())
	}
	return fn.AsObject(), nil
}

// CollectEnumerableKeys returns the string keys visited by for-in: own and
// inherited enumerable string keys, shadowed keys reported once.
func (h *Heap) CollectEnumerableKeys(o *Object) []PropertyKey {
	seen := map[PropertyKey]bool{}
	var keys []PropertyKey
	for cur := o; cur != nil; cur = cur.proto {
		for _, k := range cur.OwnKeys() {
			if k.IsSymbol() || seen[k] {
				continue
			}
			seen[k] = true
			_, _, _, flags, _, found := cur.lookupOwn(k)
			if found && flags&Enumerable != 0 {
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// FindData reads a data property along the chain without running getters;
// used for diagnostics.
func (o *Object) FindData(name string) (Value, bool) {
	k := StringKey(name)
	for cur := o; cur != nil; cur = cur.proto {
		v, _, _, _, accessor, found := cur.lookupOwn(k)
		if found {
			if accessor {
				return Undefined, false
			}
			return v, true
		}
	}
	return Undefined, false
}
