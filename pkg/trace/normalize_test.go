// Unit tests for raw span normalisation
// Covers unit conversion, attribute coercion, error detection and malformed input
package trace

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okSpan() RawSpan {
	return RawSpan{
		Timestamp:     "2024-01-01T00:00:00Z",
		TraceID:       "t1",
		SpanID:        "s1",
		SpanName:      "GET /users",
		ServiceName:   "gateway",
		Duration:      1_000_000,
		StatusCode:    "STATUS_CODE_OK",
		StatusMessage: "",
	}
}

func TestNormalize_UnitConversion(t *testing.T) {
	raw := okSpan()
	raw.Duration = 2_500_000
	assert.Equal(t, int64(2500), Normalize(raw).Duration)

	raw.Duration = 1999
	assert.Equal(t, int64(1), Normalize(raw).Duration, "nanoseconds truncate, never round up")

	raw.Duration = 999
	assert.Equal(t, int64(0), Normalize(raw).Duration)

	raw.Duration = -5000
	assert.Equal(t, int64(0), Normalize(raw).Duration, "negative durations clamp to zero")
}

func TestNormalize_StartTime(t *testing.T) {
	raw := okSpan()
	raw.Timestamp = "2024-01-01T00:00:00.123456789Z"
	assert.Equal(t, int64(1704067200123000), Normalize(raw).StartTime, "sub-millisecond digits are dropped")

	raw.Timestamp = "2024-01-01 00:00:01.5"
	assert.Equal(t, int64(1704067201500000), Normalize(raw).StartTime, "zone-less timestamps are UTC")

	raw.Timestamp = "2024-01-01T02:00:00+02:00"
	assert.Equal(t, int64(1704067200000000), Normalize(raw).StartTime)

	raw.Timestamp = "yesterday"
	assert.Equal(t, int64(0), Normalize(raw).StartTime)

	raw.Timestamp = ""
	assert.Equal(t, int64(0), Normalize(raw).StartTime)
}

func TestNormalize_ParentAndFields(t *testing.T) {
	raw := okSpan()
	raw.SpanKind = "Server"
	raw.ScopeName = "otelhttp"
	raw.ScopeVersion = "0.59.0"

	s := Normalize(raw)
	assert.False(t, s.HasParent())
	assert.Empty(t, s.ParentSpanID)
	assert.Equal(t, "t1", s.TraceID)
	assert.Equal(t, "s1", s.SpanID)
	assert.Equal(t, "GET /users", s.OperationName)
	assert.Equal(t, "gateway", s.ServiceName)
	assert.Equal(t, "Server", s.SpanKind)
	assert.Equal(t, "otelhttp", s.ScopeName)
	assert.Equal(t, "0.59.0", s.ScopeVersion)
	assert.Equal(t, "STATUS_CODE_OK", s.StatusCode)

	raw.ParentSpanID = "p1"
	assert.True(t, Normalize(raw).HasParent())
}

func TestNormalize_TagsAndProcess(t *testing.T) {
	raw := okSpan()
	raw.SpanAttributes = Attributes{
		{Key: "http.method", Value: "GET"},
		{Key: "retry", Value: true},
		{Key: "attempt", Value: 3},
		{Key: "ratio", Value: 1.5},
		{Key: "code", Value: json.Number("200")},
	}
	raw.ResourceAttributes = Attributes{
		{Key: "service.name", Value: "gateway"},
		{Key: "host.name", Value: "node-1"},
	}

	s := Normalize(raw)
	assert.Equal(t, []KeyValue{
		{Key: "http.method", Value: "GET"},
		{Key: "retry", Value: "true"},
		{Key: "attempt", Value: "3"},
		{Key: "ratio", Value: "1.5"},
		{Key: "code", Value: "200"},
	}, s.Tags)
	assert.Equal(t, []KeyValue{
		{Key: "service.name", Value: "gateway"},
		{Key: "host.name", Value: "node-1"},
	}, s.Process)
}

func TestNormalize_Logs(t *testing.T) {
	raw := okSpan()
	raw.Events = []RawEvent{{
		Timestamp:  "2024-01-01T00:00:00.010Z",
		Name:       "retry",
		Attributes: Attributes{{Key: "attempt", Value: 2}},
	}}

	s := Normalize(raw)
	require.Len(t, s.Logs, 1)
	assert.Equal(t, int64(1704067200010000), s.Logs[0].Timestamp)
	assert.Equal(t, []KeyValue{{Key: "event", Value: "retry"}, {Key: "attempt", Value: "2"}}, s.Logs[0].Fields)
	assert.False(t, s.HasError)
}

func TestHasError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*RawSpan)
		want   bool
	}{
		{"ok span", func(*RawSpan) {}, false},
		{"status ERROR", func(r *RawSpan) { r.StatusCode = "ERROR" }, true},
		{"status STATUS_CODE_ERROR", func(r *RawSpan) { r.StatusCode = "STATUS_CODE_ERROR" }, true},
		{"status lower case", func(r *RawSpan) { r.StatusCode = "status_code_error" }, true},
		{"status unset", func(r *RawSpan) { r.StatusCode = "STATUS_CODE_UNSET" }, false},
		{"http 503 number", func(r *RawSpan) {
			r.SpanAttributes = Attributes{{Key: "http.status_code", Value: 503}}
		}, true},
		{"http 404 string", func(r *RawSpan) {
			r.SpanAttributes = Attributes{{Key: "http.status_code", Value: "404"}}
		}, true},
		{"http 200", func(r *RawSpan) {
			r.SpanAttributes = Attributes{{Key: "http.status_code", Value: 200}}
		}, false},
		{"http leading integer prefix", func(r *RawSpan) {
			r.SpanAttributes = Attributes{{Key: "http.status_code", Value: " 500 Internal"}}
		}, true},
		{"http non-numeric", func(r *RawSpan) {
			r.SpanAttributes = Attributes{{Key: "http.status_code", Value: "teapot"}}
		}, false},
		{"http response fallback", func(r *RawSpan) {
			r.SpanAttributes = Attributes{{Key: "http.response.status_code", Value: json.Number("502")}}
		}, true},
		{"old key wins over new key", func(r *RawSpan) {
			r.SpanAttributes = Attributes{
				{Key: "http.status_code", Value: 200},
				{Key: "http.response.status_code", Value: 500},
			}
		}, false},
		{"null old key falls back", func(r *RawSpan) {
			r.SpanAttributes = Attributes{
				{Key: "http.status_code", Value: nil},
				{Key: "http.response.status_code", Value: 500},
			}
		}, true},
		{"exception event", func(r *RawSpan) {
			r.Events = []RawEvent{{Name: "log"}, {Name: "exception"}}
		}, true},
		{"exception name is exact", func(r *RawSpan) {
			r.Events = []RawEvent{{Name: "Exception"}}
		}, false},
		{"status message", func(r *RawSpan) { r.StatusMessage = "connection reset" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw := okSpan()
			tt.mutate(&raw)
			assert.Equal(t, tt.want, HasError(raw))
			assert.Equal(t, tt.want, Normalize(raw).HasError)
		})
	}
}

func TestLeadingInt(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"503", 503, true},
		{"  404", 404, true},
		{"4.5e2", 4, true},
		{"-1", -1, true},
		{"+7x", 7, true},
		{"", 0, false},
		{"x500", 0, false},
		{"-", 0, false},
	}
	for _, tt := range tests {
		got, ok := leadingInt(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	big, ok := leadingInt("99999999999999999999999")
	assert.True(t, ok)
	assert.Greater(t, big, int64(400), "huge codes saturate rather than wrap")
}

func TestNormalizeTrace(t *testing.T) {
	raw := RawTrace{
		TraceID: "t1",
		Spans: []RawSpan{
			{SpanID: "a", ServiceName: "gateway"},
			{SpanID: "b", ServiceName: "users", ParentSpanID: "a"},
			{SpanID: "c", ServiceName: "gateway", ParentSpanID: "a"},
		},
	}

	tr := NormalizeTrace(raw)
	assert.Equal(t, "t1", tr.TraceID)
	assert.Equal(t, []string{"gateway", "users"}, tr.Services)
	assert.Len(t, tr.Spans, 3)
}

func TestNormalizeTrace_Empty(t *testing.T) {
	tr := NormalizeTrace(RawTrace{TraceID: "t1"})
	assert.Empty(t, tr.Spans)
	assert.Empty(t, tr.Services)
}

func TestRawSpan_DecodeBackendRow(t *testing.T) {
	row := `{
		"timestamp": "2024-01-01T00:00:00.5Z",
		"trace_id": "t1",
		"span_id": "s2",
		"parent_span_id": "s1",
		"span_name": "SELECT users",
		"service_name": "postgres",
		"resource_attributes": {"service.name": "postgres", "host.name": "db-1"},
		"span_attributes": {"db.system": "postgresql", "http.status_code": 500, "cached": false},
		"duration": "1999",
		"status_code": "STATUS_CODE_UNSET",
		"status_message": "",
		"events": null,
		"links": null
	}`

	var raw RawSpan
	require.NoError(t, json.Unmarshal([]byte(row), &raw))

	s := Normalize(raw)
	assert.Equal(t, "s1", s.ParentSpanID)
	assert.Equal(t, int64(1), s.Duration)
	assert.Equal(t, int64(1704067200500000), s.StartTime)
	assert.True(t, s.HasError)
	assert.Equal(t, []KeyValue{
		{Key: "db.system", Value: "postgresql"},
		{Key: "http.status_code", Value: "500"},
		{Key: "cached", Value: "false"},
	}, s.Tags)
	assert.Equal(t, "db-1", s.Process[1].Value)
}

func TestNanoseconds_Malformed(t *testing.T) {
	tests := map[string]Nanoseconds{
		`1500`:        1500,
		`"1500"`:      1500,
		`1500.9`:      1500,
		`"soon"`:      0,
		`null`:        0,
		`true`:        0,
		`1e30`:        Nanoseconds(int64(^uint64(0) >> 1)),
		`"  42  "`:    42,
		`-3`:          -3,
		`{"a":1}`:     0,
		`[1,2]`:       0,
		`2.5e3`:       2500,
		`"2.5e3"`:     2500,
		`0`:           0,
		`"-12.2"`:     -13,
		`9007199254`:  9007199254,
		`"Infinity"`:  Nanoseconds(int64(^uint64(0) >> 1)),
		`"-Infinity"`: Nanoseconds(-int64(^uint64(0)>>1) - 1),
	}
	for in, want := range tests {
		var row struct {
			D Nanoseconds `json:"d"`
		}
		err := json.Unmarshal([]byte(`{"d":`+in+`}`), &row)
		require.NoError(t, err, in)
		assert.Equal(t, want, row.D, in)
	}
}
