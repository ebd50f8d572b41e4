// Raw and canonical span types for trace visualisation
// Raw types mirror the backend's JSON rows; canonical types use microsecond time units
package trace

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// RawSpan is one span row as returned by the trace backend.
type RawSpan struct {
	Timestamp          string      `json:"timestamp"`
	TraceID            string      `json:"trace_id"`
	TraceState         string      `json:"trace_state"`
	SpanID             string      `json:"span_id"`
	ParentSpanID       string      `json:"parent_span_id"` // empty for root spans
	SpanName           string      `json:"span_name"`
	SpanKind           string      `json:"span_kind"`
	ServiceName        string      `json:"service_name"`
	ResourceAttributes Attributes  `json:"resource_attributes"`
	ScopeName          string      `json:"scope_name"`
	ScopeVersion       string      `json:"scope_version"`
	SpanAttributes     Attributes  `json:"span_attributes"`
	Duration           Nanoseconds `json:"duration"`
	StatusCode         string      `json:"status_code"`
	StatusMessage      string      `json:"status_message"`
	Events             []RawEvent  `json:"events"`
	Links              []RawLink   `json:"links"`
}

// RawEvent is a timestamped event recorded on a span.
type RawEvent struct {
	Timestamp  string     `json:"timestamp"`
	Name       string     `json:"name"`
	Attributes Attributes `json:"attributes"`
}

// RawLink references a span in this or another trace.
type RawLink struct {
	TraceID    string     `json:"trace_id"`
	SpanID     string     `json:"span_id"`
	TraceState string     `json:"trace_state"`
	Attributes Attributes `json:"attributes"`
}

// RawTrace groups the raw spans that share a trace ID.
type RawTrace struct {
	TraceID string    `json:"trace_id"`
	Spans   []RawSpan `json:"spans"`
}

// Nanoseconds is a span duration as stored by the backend.
// Decoding accepts JSON numbers and numeric strings; anything else decodes to zero
// so that one malformed row cannot fail a whole response.
type Nanoseconds int64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Nanoseconds) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*n = 0
			return nil //nolint:nilerr // malformed durations degrade to zero
		}
		data = []byte(strings.TrimSpace(s))
	}
	*n = parseNanos(string(data))
	return nil
}

func parseNanos(s string) Nanoseconds {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Nanoseconds(v)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0
	}
	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return Nanoseconds(math.Floor(f))
}

// KeyValue is a display pair for tags and process entries.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// LogEntry is a span event in display form.
type LogEntry struct {
	Timestamp int64      `json:"timestamp"` // microseconds since epoch
	Fields    []KeyValue `json:"fields"`
}

// Span is the canonical span used by tree building and rendering.
// Times are microseconds since the Unix epoch.
type Span struct {
	TraceID       string     `json:"traceId"`
	SpanID        string     `json:"spanId"`
	ParentSpanID  string     `json:"parentSpanId,omitempty"` // empty when the span has no parent
	OperationName string     `json:"operationName"`
	ServiceName   string     `json:"serviceName"`
	StartTime     int64      `json:"startTime"`
	Duration      int64      `json:"duration"`
	Tags          []KeyValue `json:"tags"`
	Process       []KeyValue `json:"process"`
	Logs          []LogEntry `json:"logs,omitempty"`
	HasError      bool       `json:"hasError"`
	SpanKind      string     `json:"spanKind,omitempty"`
	ScopeName     string     `json:"scopeName,omitempty"`
	ScopeVersion  string     `json:"scopeVersion,omitempty"`
	StatusCode    string     `json:"statusCode,omitempty"`
	StatusMessage string     `json:"statusMessage,omitempty"`
}

// HasParent reports whether the span names a parent.
func (s Span) HasParent() bool { return s.ParentSpanID != "" }

// End returns StartTime + Duration.
func (s Span) End() int64 { return s.StartTime + s.Duration }

// Tag returns the value of the first tag with the given key.
func (s Span) Tag(key string) (string, bool) {
	for _, t := range s.Tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// Trace is a normalised trace: every span sharing one trace ID.
type Trace struct {
	TraceID  string   `json:"traceId"`
	Services []string `json:"services"`
	Spans    []Span   `json:"spans"`
}

// TraceSummary is the list-view projection of a trace.
type TraceSummary struct {
	TraceID           string              `json:"traceId"`
	Name              string              `json:"name"`
	Timestamp         int64               `json:"timestamp"` // earliest span start, microseconds
	Duration          int64               `json:"duration"`  // microseconds
	SpanCount         int                 `json:"spanCount"`
	Services          []string            `json:"services"`
	Operations        []string            `json:"operations"`
	ServiceOperations map[string][]string `json:"serviceOperations"`
	HasError          bool                `json:"hasError"`
	Tags              []KeyValue          `json:"tags"`
}
