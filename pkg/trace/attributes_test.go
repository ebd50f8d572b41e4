// Unit tests for ordered attribute decoding and value coercion
package trace

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributes_UnmarshalKeepsOrder(t *testing.T) {
	var attrs Attributes
	require.NoError(t, json.Unmarshal([]byte(`{"z":"last-letter","a":1,"m":true,"n":{"x":1}}`), &attrs))

	require.Len(t, attrs, 4)
	assert.Equal(t, "z", attrs[0].Key)
	assert.Equal(t, "a", attrs[1].Key)
	assert.Equal(t, "m", attrs[2].Key)
	assert.Equal(t, "n", attrs[3].Key)
	assert.Equal(t, json.Number("1"), attrs[1].Value)
	assert.Equal(t, true, attrs[2].Value)
}

func TestAttributes_DuplicateKeyOverwritesInPlace(t *testing.T) {
	var attrs Attributes
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1","b":"2","a":"3"}`), &attrs))

	assert.Equal(t, Attributes{{Key: "a", Value: "3"}, {Key: "b", Value: "2"}}, attrs)
}

func TestAttributes_Null(t *testing.T) {
	var attrs Attributes
	require.NoError(t, json.Unmarshal([]byte(`null`), &attrs))
	assert.Nil(t, attrs)
}

func TestAttributes_NotAnObjectDecodesToNil(t *testing.T) {
	for _, in := range []string{`["a","b"]`, `[]`, `"text"`, `42`, `true`} {
		attrs := Attributes{{Key: "stale", Value: "x"}}
		require.NoError(t, json.Unmarshal([]byte(in), &attrs), in)
		assert.Nil(t, attrs, in)
	}
}

func TestAttributes_MalformedRowKeepsBatch(t *testing.T) {
	rows := `[
		{"span_id":"a","span_attributes":[],"resource_attributes":"host","duration":"x"},
		{"span_id":"b","span_attributes":{"k":"v"}}
	]`
	var spans []RawSpan
	require.NoError(t, json.Unmarshal([]byte(rows), &spans))
	require.Len(t, spans, 2)
	assert.Equal(t, "a", spans[0].SpanID)
	assert.Nil(t, spans[0].SpanAttributes)
	assert.Nil(t, spans[0].ResourceAttributes)
	assert.Equal(t, Nanoseconds(0), spans[0].Duration)
	assert.Equal(t, Attributes{{Key: "k", Value: "v"}}, spans[1].SpanAttributes)
}

func TestAttributes_MarshalRoundTrip(t *testing.T) {
	attrs := Attributes{{Key: "b", Value: "x"}, {Key: "a", Value: 2}}
	data, err := json.Marshal(attrs)
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":"x","a":2}`, string(data))
	assert.Equal(t, `{"b":"x","a":2}`, string(data), "insertion order is kept on output")

	var back Attributes
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "b", back[0].Key)
}

func TestAttributes_Get(t *testing.T) {
	attrs := Attributes{{Key: "a", Value: "1"}}
	v, ok := attrs.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = attrs.Get("missing")
	assert.False(t, ok)
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"text", "text"},
		{true, "true"},
		{false, "false"},
		{42, "42"},
		{int64(-7), "-7"},
		{uint32(9), "9"},
		{3.0, "3"},
		{1.5, "1.5"},
		{0.1, "0.1"},
		{float32(2.5), "2.5"},
		{1e21, "1e+21"},
		{json.Number("12.50"), "12.50"},
		{math.Inf(1), "Infinity"},
		{[]any{"a", json.Number("1")}, `["a",1]`},
		{map[string]any{"k": "v"}, `{"k":"v"}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Stringify(tt.in), "%#v", tt.in)
	}
}
