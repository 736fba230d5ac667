package domain

import (
	"encoding/json"
	"math"
)

// Fields is the open extension map carried by documents and statuses.
// Values must be JSON serializable; numbers read back from storage are json.Number.
type Fields map[string]any

func (f Fields) Has(key string) bool {
	_, ok := f[key]
	return ok
}

func (f Fields) Int64(key string) (int64, bool) {
	v, ok := f[key]
	if !ok {
		return 0, false
	}
	return AsInt64(v)
}

func (f Fields) String(key string) (string, bool) {
	s, ok := f[key].(string)
	return s, ok
}

func (f Fields) Bool(key string) (bool, bool) {
	b, ok := f[key].(bool)
	return b, ok
}

func (f Fields) Slice(key string) []any {
	s, _ := f[key].([]any)
	return s
}

func (f Fields) Map(key string) Fields {
	switch m := f[key].(type) {
	case map[string]any:
		return Fields(m)
	case Fields:
		return m
	default:
		return nil
	}
}

func (f Fields) Identifier(key string) Identifier {
	return Convert(f[key])
}

// Project keeps only the given keys. An empty key list returns a full copy.
func (f Fields) Project(keys ...string) Fields {
	if len(keys) == 0 {
		return f.Clone()
	}
	out := make(Fields, len(keys))
	for _, k := range keys {
		if v, ok := f[k]; ok {
			out[k] = cloneValue(v)
		}
	}
	return out
}

func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Fields(t).Clone())
	case Fields:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// AsInt64 reads an integral number out of any of the shapes a JSON decode can produce.
// Strings are not numbers, even when they parse as one.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float64:
		return floatInt64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatInt64(f)
	default:
		return 0, false
	}
}

// SameValue compares two field values the way a document database would:
// numbers by value, identifiers by their stored form, everything else by JSON encoding.
func SameValue(a, b any) bool {
	a, b = normalize(a), normalize(b)
	// integers compare exactly; float64 loses precision above 2^53
	if ai, ok := AsInt64(a); ok {
		if bi, ok := AsInt64(b); ok {
			return ai == bi
		}
	}
	if af, ok := numeric(a); ok {
		bf, ok := numeric(b)
		return ok && af == bf
	}
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}

// floatInt64 accepts integral floats inside the int64 range.
func floatInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func normalize(v any) any {
	if id, ok := v.(Identifier); ok {
		return id.JSONValue()
	}
	return v
}
