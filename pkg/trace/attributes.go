// Ordered span and resource attribute lists with JSON decoding that keeps document order
// Values are coerced to strings once, at the normalisation boundary
package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Attribute is a single key/value pair from a span or resource attribute map.
// Value holds a string, bool, json.Number or Go numeric type.
type Attribute struct {
	Key   string
	Value any
}

// Attributes is an attribute map that remembers insertion order.
type Attributes []Attribute

// Get returns the value stored under key.
func (a Attributes) Get(key string) (any, bool) {
	for _, attr := range a {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return nil, false
}

// UnmarshalJSON decodes a JSON object, keeping keys in document order.
// A repeated key overwrites the earlier value in place, as a JSON object would.
// Any other JSON value decodes to nil so one malformed row cannot fail a
// whole response.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		*a = nil
		return nil
	}

	attrs := Attributes{}
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("attributes: expected string key, got %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("attributes: value for %q: %w", key, err)
		}
		if i, seen := index[key]; seen {
			attrs[i].Value = value
			continue
		}
		index[key] = len(attrs)
		attrs = append(attrs, Attribute{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*a = attrs
	return nil
}

// MarshalJSON encodes the attributes as a JSON object in insertion order.
func (a Attributes) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, attr := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(attr.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(attr.Value)
		if err != nil {
			return nil, fmt.Errorf("attributes: value for %q: %w", attr.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// KeyValues converts attributes to display pairs, preserving order.
func (a Attributes) KeyValues() []KeyValue {
	out := make([]KeyValue, 0, len(a))
	for _, attr := range a {
		out = append(out, KeyValue{Key: attr.Key, Value: Stringify(attr.Value)})
	}
	return out
}

// Stringify renders an attribute value the way it is displayed in tags:
// strings unchanged, booleans as "true"/"false", numbers in plain decimal.
// Nested objects and arrays are rendered as compact JSON.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	case int:
		return strconv.Itoa(x)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

// formatFloat prints integral values without a fraction and everything else
// in the shortest form that round-trips.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	abs := math.Abs(f)
	if abs == 0 || (abs >= 1e-6 && abs < 1e21) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
