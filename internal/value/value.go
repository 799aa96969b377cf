// Package value defines the canonical tagged-variant value used for task
// arguments, cache payloads, and cross-worker transport.
package value

import (
	"fmt"
	"sort"
)

// Kind discriminates the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindSeq
	KindMap
)

// Value is the tagged variant `{null, bool, int, float, string, seq<Value>,
// map<string, Value>}` used for task arguments, cache payloads, and
// results crossing a process boundary.
//
// Exactly one of the typed fields is meaningful, selected by Kind. Int and
// Float are kept distinct so that canonicalization can tell `1` from `1.0`.
type Value struct {
	Kind Kind

	Bool   bool
	Int    int64
	Float  float64
	String string
	Seq    []Value
	Map    map[string]Value
}

func Null() Value                  { return Value{Kind: KindNull} }
func Bool(b bool) Value            { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value            { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value        { return Value{Kind: KindFloat, Float: f} }
func String(s string) Value        { return Value{Kind: KindString, String: s} }
func Seq(vs []Value) Value         { return Value{Kind: KindSeq, Seq: vs} }
func Map(m map[string]Value) Value { return Value{Kind: KindMap, Map: m} }

// FromAny converts an `any` decoded from JSON (as produced by
// encoding/json.Unmarshal into an `interface{}`) into a Value.
//
// encoding/json decodes all JSON numbers as float64; FromAny recovers the
// int/float distinction by checking whether the float64 has an exact integer
// representation. Callers that need to force a value to stay a float (e.g.
// "1.0" explicitly) should construct it directly with Float.
func FromAny(in any) (Value, error) {
	switch v := in.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(v), nil
	case string:
		return String(v), nil
	case float64:
		if isExactInt(v) {
			return Int(int64(v)), nil
		}
		return Float(v), nil
	case int:
		return Int(int64(v)), nil
	case int64:
		return Int(v), nil
	case []any:
		out := make([]Value, len(v))
		for i, e := range v {
			cv, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			out[i] = cv
		}
		return Seq(out), nil
	case map[string]any:
		out := make(map[string]Value, len(v))
		for k, e := range v {
			cv, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			out[k] = cv
		}
		return Map(out), nil
	default:
		return Value{}, fmt.Errorf("value: unsupported type %T", in)
	}
}

func isExactInt(f float64) bool {
	return f == float64(int64(f))
}

// ToAny converts a Value back into a plain `any` tree, suitable for
// encoding/json.Marshal or for handing to a registered function.
func (v Value) ToAny() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindString:
		return v.String
	case KindSeq:
		out := make([]any, len(v.Seq))
		for i, e := range v.Seq {
			out[i] = e.ToAny()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.Map))
		for k, e := range v.Map {
			out[k] = e.ToAny()
		}
		return out
	default:
		return nil
	}
}

// Equal reports whether two values are semantically equal, per the
// canonical form (distinct int/float, sorted map keys are implicit since
// Go map equality here is by key/value pairs, not order).
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindInt:
		return a.Int == b.Int
	case KindFloat:
		return a.Float == b.Float
	case KindString:
		return a.String == b.String
	case KindSeq:
		if len(a.Seq) != len(b.Seq) {
			return false
		}
		for i := range a.Seq {
			if !Equal(a.Seq[i], b.Seq[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.Map) != len(b.Map) {
			return false
		}
		for k, av := range a.Map {
			bv, ok := b.Map[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// sortedKeys returns a map's keys in lexicographic order, the canonical
// iteration order required by Fingerprint and cache serialization.
func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
