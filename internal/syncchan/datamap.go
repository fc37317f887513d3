package syncchan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// DataMap is a typed key/value payload attached to a data item.
// Values are restricted to int64 (long), int, float64 (double) and string so
// that field types survive any transport unchanged.
type DataMap map[string]any

// Type names used by the wire encoding.
const (
	TypeLong   = "long"
	TypeInt    = "int"
	TypeDouble = "double"
	TypeString = "string"
)

var errUnsupportedType = errors.New("unsupported data map value type")

func (m DataMap) PutLong(key string, v int64)     { m[key] = v }
func (m DataMap) PutInt(key string, v int)        { m[key] = v }
func (m DataMap) PutDouble(key string, v float64) { m[key] = v }
func (m DataMap) PutString(key string, v string)  { m[key] = v }

// GetLong returns the value stored under key if it is a long.
func (m DataMap) GetLong(key string) (int64, bool) {
	v, ok := m[key].(int64)
	return v, ok
}

// GetInt returns the value stored under key if it is an int.
func (m DataMap) GetInt(key string) (int, bool) {
	v, ok := m[key].(int)
	return v, ok
}

// GetDouble returns the value stored under key if it is a double.
func (m DataMap) GetDouble(key string) (float64, bool) {
	v, ok := m[key].(float64)
	return v, ok
}

// GetString returns the value stored under key if it is a string.
func (m DataMap) GetString(key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

// Has reports whether key is present, whatever its type.
func (m DataMap) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Clone returns a shallow copy; values are immutable scalars so this is a full copy.
func (m DataMap) Clone() DataMap {
	if m == nil {
		return nil
	}
	out := make(DataMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Equal reports whether both maps hold the same keys with identically typed values.
func (m DataMap) Equal(other DataMap) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		ov, ok := other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

type wireValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes each entry together with its type name.
func (m DataMap) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]wireValue, len(m))
	for _, k := range keys {
		var typ string
		switch m[k].(type) {
		case int64:
			typ = TypeLong
		case int:
			typ = TypeInt
		case float64:
			typ = TypeDouble
		case string:
			typ = TypeString
		default:
			return nil, fmt.Errorf("%w: key %q has %T", errUnsupportedType, k, m[k])
		}
		raw, err := json.Marshal(m[k])
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", k, err)
		}
		out[k] = wireValue{Type: typ, Value: raw}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes entries produced by MarshalJSON, restoring Go types.
func (m *DataMap) UnmarshalJSON(data []byte) error {
	var in map[string]wireValue
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	out := make(DataMap, len(in))
	for k, wv := range in {
		dec := json.NewDecoder(bytes.NewReader(wv.Value))
		dec.UseNumber()

		switch wv.Type {
		case TypeString:
			var s string
			if err := dec.Decode(&s); err != nil {
				return fmt.Errorf("decode %q: %w", k, err)
			}
			out[k] = s
		case TypeLong, TypeInt, TypeDouble:
			var n json.Number
			if err := dec.Decode(&n); err != nil {
				return fmt.Errorf("decode %q: %w", k, err)
			}
			switch wv.Type {
			case TypeLong:
				v, err := n.Int64()
				if err != nil {
					return fmt.Errorf("decode %q: %w", k, err)
				}
				out[k] = v
			case TypeInt:
				v, err := n.Int64()
				if err != nil {
					return fmt.Errorf("decode %q: %w", k, err)
				}
				out[k] = int(v)
			default:
				v, err := n.Float64()
				if err != nil {
					return fmt.Errorf("decode %q: %w", k, err)
				}
				out[k] = v
			}
		default:
			return fmt.Errorf("%w: key %q has type %q", errUnsupportedType, k, wv.Type)
		}
	}

	*m = out
	return nil
}
