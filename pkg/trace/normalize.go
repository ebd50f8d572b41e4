// Conversion of raw backend span rows into canonical spans
// Derives microsecond times, display tags, logs, and a definite error flag
package trace

import (
	"strings"
	"time"
	"unicode"
)

// exceptionEvent is the semantic-convention name for recorded exceptions.
const exceptionEvent = "exception"

// timestampLayouts are tried in order when parsing span and event timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Normalize converts a raw span into its canonical form. It never fails:
// malformed fields degrade to zero values and absent error signals.
func Normalize(raw RawSpan) Span {
	return Span{
		TraceID:       raw.TraceID,
		SpanID:        raw.SpanID,
		ParentSpanID:  raw.ParentSpanID,
		OperationName: raw.SpanName,
		ServiceName:   raw.ServiceName,
		StartTime:     TimestampMicros(raw.Timestamp),
		Duration:      nanosToMicros(raw.Duration),
		Tags:          raw.SpanAttributes.KeyValues(),
		Process:       raw.ResourceAttributes.KeyValues(),
		Logs:          eventLogs(raw.Events),
		HasError:      HasError(raw),
		SpanKind:      raw.SpanKind,
		ScopeName:     raw.ScopeName,
		ScopeVersion:  raw.ScopeVersion,
		StatusCode:    raw.StatusCode,
		StatusMessage: raw.StatusMessage,
	}
}

// NormalizeTrace normalises every span of a raw trace and collects its services.
func NormalizeTrace(raw RawTrace) Trace {
	spans := make([]Span, 0, len(raw.Spans))
	for _, rs := range raw.Spans {
		spans = append(spans, Normalize(rs))
	}
	return Trace{
		TraceID:  raw.TraceID,
		Services: distinctServices(spans),
		Spans:    spans,
	}
}

// HasError reports whether any error signal is present on the span: an error
// status code, an HTTP status of 400 or above, an exception event, or a
// non-empty status message.
func HasError(raw RawSpan) bool {
	return statusCodeError(raw.StatusCode) ||
		httpStatusError(raw.SpanAttributes) ||
		hasExceptionEvent(raw.Events) ||
		raw.StatusMessage != ""
}

func statusCodeError(code string) bool {
	return strings.EqualFold(code, "STATUS_CODE_ERROR") || strings.EqualFold(code, "ERROR")
}

// httpStatusError checks http.status_code, falling back to the newer
// http.response.status_code only when the former is absent.
func httpStatusError(attrs Attributes) bool {
	v, ok := attrs.Get("http.status_code")
	if !ok || v == nil {
		v, ok = attrs.Get("http.response.status_code")
	}
	if !ok || v == nil {
		return false
	}
	code, ok := leadingInt(Stringify(v))
	return ok && code >= 400
}

func hasExceptionEvent(events []RawEvent) bool {
	for _, e := range events {
		if e.Name == exceptionEvent {
			return true
		}
	}
	return false
}

// leadingInt parses the base-10 integer prefix of s, skipping leading
// whitespace. "503 Service Unavailable" yields 503; "abc" yields false.
// Values too large for int64 saturate.
func leadingInt(s string) (int64, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	var n int64
	digits := 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		if n < (1<<62)/10 {
			n = n*10 + int64(s[digits]-'0')
		}
		digits++
	}
	if digits == 0 {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}

// ParseTimestamp parses an ISO-8601 timestamp. Timestamps without a zone are UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// TimestampMicros converts an ISO-8601 timestamp to microseconds since the
// epoch at millisecond precision. Unparseable input yields 0.
func TimestampMicros(s string) int64 {
	t, ok := ParseTimestamp(s)
	if !ok {
		return 0
	}
	return t.UnixMilli() * 1000
}

// nanosToMicros truncates to whole microseconds; negative durations clamp to zero.
func nanosToMicros(ns Nanoseconds) int64 {
	if ns <= 0 {
		return 0
	}
	return int64(ns) / 1000
}

func eventLogs(events []RawEvent) []LogEntry {
	if len(events) == 0 {
		return nil
	}
	logs := make([]LogEntry, 0, len(events))
	for _, e := range events {
		fields := make([]KeyValue, 0, len(e.Attributes)+1)
		fields = append(fields, KeyValue{Key: "event", Value: e.Name})
		fields = append(fields, e.Attributes.KeyValues()...)
		logs = append(logs, LogEntry{
			Timestamp: TimestampMicros(e.Timestamp),
			Fields:    fields,
		})
	}
	return logs
}

func distinctServices(spans []Span) []string {
	seen := make(map[string]bool, len(spans))
	services := make([]string, 0)
	for _, s := range spans {
		if seen[s.ServiceName] {
			continue
		}
		seen[s.ServiceName] = true
		services = append(services, s.ServiceName)
	}
	return services
}
