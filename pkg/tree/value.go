// Package tree implements the tagged value tree used to mirror controller state
// and configuration, and the merge that applies partial updates onto it.
//
// A Value is exactly one of Scalar, Map or *List. Merge dispatches on that tag
// only; decoded JSON or CBOR documents are converted with FromAny first.
package tree

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindScalar Kind = iota
	KindMap
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "scalar"
	}
}

// Value is a node of the tree. The set of implementations is closed.
type Value interface {
	Kind() Kind
	node()
}

// Scalar holds a leaf: nil, bool, float64 or string.
type Scalar struct {
	V interface{}
}

// Map is a keyed node. Maps are mutated in place by Merge so references held
// by other components stay valid.
type Map map[string]Value

// List is an indexed node. It is always used by pointer so merges can resize
// it in place.
type List struct {
	Items []Value
}

func (Scalar) Kind() Kind { return KindScalar }
func (Map) Kind() Kind    { return KindMap }
func (*List) Kind() Kind  { return KindList }

func (Scalar) node() {}
func (Map) node()    {}
func (*List) node()  {}

// Null reports whether the scalar carries no value.
func (s Scalar) Null() bool { return s.V == nil }

// S wraps a Go value as a Scalar, normalising numbers to float64.
func S(v interface{}) Scalar {
	return Scalar{V: normalizeScalar(v)}
}

// FromAny converts a decoded document into a Value. Maps with non-string keys
// (as produced by CBOR decoders) are converted with fmt.Sprint on each key.
func FromAny(v interface{}) Value {
	switch t := v.(type) {
	case Value:
		return t
	case map[string]interface{}:
		m := make(Map, len(t))
		for k, item := range t {
			m[k] = FromAny(item)
		}
		return m
	case map[interface{}]interface{}:
		m := make(Map, len(t))
		for k, item := range t {
			m[fmt.Sprint(k)] = FromAny(item)
		}
		return m
	case []interface{}:
		l := &List{Items: make([]Value, len(t))}
		for i, item := range t {
			l.Items[i] = FromAny(item)
		}
		return l
	default:
		return S(t)
	}
}

// MapFromAny converts a decoded document that must be an object.
// The second result is false when v is not an object.
func MapFromAny(v interface{}) (Map, bool) {
	m, ok := FromAny(v).(Map)
	return m, ok
}

// FromJSON decodes a JSON document into a Value.
func FromJSON(data []byte) (Value, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return FromAny(raw), nil
}

// ToAny converts a Value back into plain Go values suitable for encoding.
func ToAny(v Value) interface{} {
	switch t := v.(type) {
	case Map:
		return t.ToAny()
	case *List:
		out := make([]interface{}, len(t.Items))
		for i, item := range t.Items {
			out[i] = ToAny(item)
		}
		return out
	case Scalar:
		return t.V
	default:
		return nil
	}
}

// ToAny converts the map into a plain map[string]interface{}.
func (m Map) ToAny() map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = ToAny(v)
	}
	return out
}

// MarshalJSON encodes the map as a plain JSON object.
func (m Map) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToAny())
}

// UnmarshalJSON decodes a JSON object into the map, replacing its contents.
func (m *Map) UnmarshalJSON(data []byte) error {
	v, err := FromJSON(data)
	if err != nil {
		return err
	}
	decoded, ok := v.(Map)
	if !ok {
		return fmt.Errorf("expected JSON object, got %s", v.Kind())
	}
	*m = decoded
	return nil
}

// Keys returns the map keys in sorted order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of v.
func Clone(v Value) Value {
	switch t := v.(type) {
	case Map:
		return t.Clone()
	case *List:
		l := &List{Items: make([]Value, len(t.Items))}
		for i, item := range t.Items {
			l.Items[i] = Clone(item)
		}
		return l
	default:
		return v
	}
}

// Clone returns a deep copy of the map.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = Clone(v)
	}
	return out
}

// Equal reports whether two values hold the same tree.
func Equal(a, b Value) bool {
	return reflect.DeepEqual(ToAny(a), ToAny(b))
}

func normalizeScalar(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	default:
		return v
	}
}
