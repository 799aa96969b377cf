package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// MarshalJSON encodes v as a plain JSON value (null/bool/number/string/
// array/object), with one twist: a KindFloat value that happens to hold an
// integral number (e.g. 3.0) is still written with a decimal point, so
// UnmarshalJSON can recover the int/float distinction on the way back in.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.Bool)
	case KindInt:
		return json.Marshal(v.Int)
	case KindFloat:
		if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			return nil, fmt.Errorf("value: json: unsupported float value %v", v.Float)
		}
		return marshalFloat(v.Float), nil
	case KindString:
		return json.Marshal(v.String)
	case KindSeq:
		if v.Seq == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Seq)
	case KindMap:
		if v.Map == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.Map)
	default:
		return nil, fmt.Errorf("value: cannot marshal unknown kind %d", v.Kind)
	}
}

func marshalFloat(f float64) []byte {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !bytes.ContainsAny([]byte(s), ".eEnN") { // not already float-shaped, and not Inf/NaN
		s += ".0"
	}
	return []byte(s)
}

// UnmarshalJSON decodes a plain JSON value into v, recovering the int/float
// distinction from the literal token rather than going through float64: a
// number with no '.' or exponent is an int, everything else is a float.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("value: empty JSON payload")
	}

	switch data[0] {
	case 'n':
		*v = Null()
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		seq := make([]Value, len(raw))
		for i, r := range raw {
			if err := seq[i].UnmarshalJSON(r); err != nil {
				return err
			}
		}
		*v = Seq(seq)
		return nil
	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		m := make(map[string]Value, len(raw))
		for k, r := range raw {
			var e Value
			if err := e.UnmarshalJSON(r); err != nil {
				return err
			}
			m[k] = e
		}
		*v = Map(m)
		return nil
	default:
		return v.unmarshalNumber(data)
	}
}

func (v *Value) unmarshalNumber(data []byte) error {
	if bytes.ContainsAny(data, ".eE") {
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("value: invalid number %q: %w", data, err)
		}
		*v = Float(f)
		return nil
	}
	i, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		// Falls outside int64 range; keep it as a float rather than failing.
		f, ferr := strconv.ParseFloat(string(data), 64)
		if ferr != nil {
			return fmt.Errorf("value: invalid number %q: %w", data, err)
		}
		*v = Float(f)
		return nil
	}
	*v = Int(i)
	return nil
}
