package attr

import (
	"reflect"
)

// Map is the generic attribute mapping carried by insert and retain ops.
// A key present with a nil value is a tombstone: "remove this attribute".
type Map map[string]any

// Clone returns a shallow copy; nil and empty maps both clone to nil.
func (m Map) Clone() Map {
	if len(m) == 0 {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Equal reports whether two maps hold the same keys and values.
// nil and empty maps are equal.
func Equal(a, b Map) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !ValueEqual(av, bv) {
			return false
		}
	}
	return true
}

// ValueEqual compares two attribute values. Numbers compare by value
// regardless of their Go type, since JSON decoding yields float64.
func ValueEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Compose applies b on top of a. Keys of b win; a nil value in b removes the
// key unless keepNull is set, in which case the tombstone is kept so that it
// can still remove the attribute from content further down the chain.
func Compose(a, b Map, keepNull bool) Map {
	out := make(Map, len(a)+len(b))
	for k, v := range b {
		if v == nil && !keepNull {
			continue
		}
		out[k] = v
	}
	for k, v := range a {
		if _, ok := b[k]; !ok {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Diff returns the attribute change that turns a into b. Keys missing from b
// become tombstones.
func Diff(a, b Map) Map {
	out := Map{}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			out[k] = nil
			continue
		}
		if !ValueEqual(av, bv) {
			out[k] = bv
		}
	}
	for k, bv := range b {
		if _, ok := a[k]; !ok {
			out[k] = bv
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Invert returns the attribute change undoing change when applied over base.
func Invert(change, base Map) Map {
	out := Map{}
	for k, bv := range base {
		cv, ok := change[k]
		if ok && !ValueEqual(bv, cv) {
			out[k] = bv
		}
	}
	for k := range change {
		if _, ok := base[k]; !ok {
			out[k] = nil
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Transform rewrites b so that it applies after a. With priority, a already
// owns the keys it sets and those are dropped from b.
func Transform(a, b Map, priority bool) Map {
	if a == nil {
		return b.Clone()
	}
	if b == nil {
		return nil
	}
	if !priority {
		return b.Clone()
	}
	out := Map{}
	for k, v := range b {
		if _, ok := a[k]; !ok {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
