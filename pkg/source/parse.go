// Readers for trace export files
// Accepts backend JSON, OpenTelemetry SDK stdouttrace output and OTLP protobuf JSON
package source

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/andrewh/clicktrace/pkg/trace"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
)

// Format identifies the input trace format.
type Format string

const (
	FormatAuto        Format = "auto"
	FormatBackend     Format = "backend"
	FormatStdouttrace Format = "stdouttrace"
	FormatOTLP        Format = "otlp"
)

// maxInputSize is the maximum input size to prevent OOM on large trace exports.
const maxInputSize = 256 * 1024 * 1024 // 256 MB

const noSpansHint = "no spans found in input\n\nProvide a file or pipe stdin:\n  clicktrace --file traces.json traces\n  cat traces.json | clicktrace --file - traces"

// Parse reads traces from r. FormatAuto inspects the input to pick a parser.
// Spans are grouped by trace ID; traces and their spans keep input order.
func Parse(r io.Reader, format Format) ([]trace.RawTrace, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxInputSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if len(data) > maxInputSize {
		return nil, fmt.Errorf("input exceeds maximum size of %d MB", maxInputSize/(1024*1024))
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New(noSpansHint)
	}

	if format == FormatAuto || format == "" {
		format, err = detectFormat(data)
		if err != nil {
			return nil, err
		}
	}

	var spans []trace.RawSpan
	switch format {
	case FormatBackend:
		spans, err = parseBackend(data)
	case FormatStdouttrace:
		spans, err = parseStdouttrace(data)
	case FormatOTLP:
		spans, err = parseOTLP(data)
	default:
		return nil, fmt.Errorf("unknown format %q, valid formats: auto, backend, stdouttrace, otlp", format)
	}
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return nil, errors.New(noSpansHint)
	}
	return GroupSpans(spans), nil
}

// GroupSpans groups spans by trace ID in first-seen order.
func GroupSpans(spans []trace.RawSpan) []trace.RawTrace {
	index := make(map[string]int)
	var traces []trace.RawTrace
	for _, s := range spans {
		i, ok := index[s.TraceID]
		if !ok {
			i = len(traces)
			index[s.TraceID] = i
			traces = append(traces, trace.RawTrace{TraceID: s.TraceID})
		}
		traces[i].Spans = append(traces[i].Spans, s)
	}
	return traces
}

// detectFormat examines the input to determine the format.
// Tries the first line (for line-delimited stdouttrace), then the full data
// (for pretty-printed documents).
func detectFormat(data []byte) (Format, error) {
	if data[0] == '[' {
		return FormatBackend, nil
	}

	firstLine, _, hasMore := bytes.Cut(data, []byte{'\n'})
	firstLine = bytes.TrimSpace(firstLine)

	if format, ok := sniffFormat(firstLine); ok {
		return format, nil
	}
	// First line wasn't a complete JSON object (e.g. pretty-printed OTLP).
	if hasMore {
		if format, ok := sniffFormat(data); ok {
			return format, nil
		}
	}

	return "", fmt.Errorf("cannot detect format: input has neither span rows (backend), SpanContext (stdouttrace) nor resourceSpans (OTLP)")
}

func sniffFormat(doc []byte) (Format, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return "", false
	}
	if _, ok := fields["SpanContext"]; ok {
		return FormatStdouttrace, true
	}
	if _, ok := fields["resourceSpans"]; ok {
		return FormatOTLP, true
	}
	for _, key := range []string{"span_id", "spans", "status"} {
		if _, ok := fields[key]; ok {
			return FormatBackend, true
		}
	}
	return "", false
}

// parseBackend accepts what the trace API returns: a response envelope, an
// array of traces, an array of span rows, a single trace, or one span per line.
func parseBackend(data []byte) ([]trace.RawSpan, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Status != "" {
		if env.Status != statusSuccess {
			return nil, fmt.Errorf("export holds an error response: %s", env.errorMessage())
		}
		data = bytes.TrimSpace(env.Data)
	}
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("parsing backend JSON: %w", err)
		}
		var spans []trace.RawSpan
		for i, item := range items {
			got, err := parseBackendItem(item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			spans = append(spans, got...)
		}
		return spans, nil
	}

	var spans []trace.RawSpan
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		got, err := parseBackendItem(line)
		if err != nil {
			// A pretty-printed single document spans many lines.
			if lineNum == 1 {
				return parseBackendItem(data)
			}
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		spans = append(spans, got...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return spans, nil
}

// parseBackendItem decodes either a trace ({trace_id, spans}) or a span row.
func parseBackendItem(item json.RawMessage) ([]trace.RawSpan, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil {
		return nil, err
	}
	if _, ok := fields["spans"]; ok {
		var rt trace.RawTrace
		if err := json.Unmarshal(item, &rt); err != nil {
			return nil, err
		}
		for i := range rt.Spans {
			if rt.Spans[i].TraceID == "" {
				rt.Spans[i].TraceID = rt.TraceID
			}
		}
		return rt.Spans, nil
	}
	var span trace.RawSpan
	if err := json.Unmarshal(item, &span); err != nil {
		return nil, err
	}
	return []trace.RawSpan{span}, nil
}

// stdouttraceEvent mirrors the Go SDK's stdouttrace JSON output.
type stdouttraceEvent struct {
	Name        string `json:"Name"`
	SpanContext struct {
		TraceID    string `json:"TraceID"`
		SpanID     string `json:"SpanID"`
		TraceState string `json:"TraceState"`
	} `json:"SpanContext"`
	Parent struct {
		TraceID string `json:"TraceID"`
		SpanID  string `json:"SpanID"`
	} `json:"Parent"`
	SpanKind   int       `json:"SpanKind"`
	StartTime  time.Time `json:"StartTime"`
	EndTime    time.Time `json:"EndTime"`
	Attributes []sdkAttr `json:"Attributes"`
	Events     []struct {
		Name       string    `json:"Name"`
		Attributes []sdkAttr `json:"Attributes"`
		Time       time.Time `json:"Time"`
	} `json:"Events"`
	Links []struct {
		SpanContext struct {
			TraceID    string `json:"TraceID"`
			SpanID     string `json:"SpanID"`
			TraceState string `json:"TraceState"`
		} `json:"SpanContext"`
		Attributes []sdkAttr `json:"Attributes"`
	} `json:"Links"`
	Status               sdkStatus `json:"Status"`
	Resource             []sdkAttr `json:"Resource"`
	InstrumentationScope struct {
		Name    string `json:"Name"`
		Version string `json:"Version"`
	} `json:"InstrumentationScope"`
}

type sdkAttr struct {
	Key   string `json:"Key"`
	Value struct {
		Type  string `json:"Type"`
		Value any    `json:"Value"`
	} `json:"Value"`
}

type sdkStatus struct {
	Code        string `json:"Code"`
	Description string `json:"Description"`
}

// sdkSpanKinds maps the SDK's numeric span kind to the backend's names.
var sdkSpanKinds = map[int]string{
	1: "Internal",
	2: "Server",
	3: "Client",
	4: "Producer",
	5: "Consumer",
}

func sdkAttributes(attrs []sdkAttr) trace.Attributes {
	if len(attrs) == 0 {
		return nil
	}
	out := make(trace.Attributes, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, trace.Attribute{Key: a.Key, Value: a.Value.Value})
	}
	return out
}

func sdkStatusCode(code string) string {
	switch strings.ToLower(code) {
	case "error":
		return "STATUS_CODE_ERROR"
	case "ok":
		return "STATUS_CODE_OK"
	default:
		return "STATUS_CODE_UNSET"
	}
}

func parseStdouttrace(data []byte) ([]trace.RawSpan, error) {
	var spans []trace.RawSpan
	dec := json.NewDecoder(bytes.NewReader(data))
	for n := 1; ; n++ {
		var evt stdouttraceEvent
		err := dec.Decode(&evt)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("span %d: %w", n, err)
		}

		resource := sdkAttributes(evt.Resource)
		service := ""
		if v, ok := resource.Get("service.name"); ok {
			service = trace.Stringify(v)
		}
		if service == "" {
			service = evt.InstrumentationScope.Name
		}

		// Determine parent ID, treating all-zeros as empty (root span)
		parentID := evt.Parent.SpanID
		if isZeroID(parentID) {
			parentID = ""
		}

		span := trace.RawSpan{
			Timestamp:          evt.StartTime.UTC().Format(time.RFC3339Nano),
			TraceID:            evt.SpanContext.TraceID,
			TraceState:         evt.SpanContext.TraceState,
			SpanID:             evt.SpanContext.SpanID,
			ParentSpanID:       parentID,
			SpanName:           evt.Name,
			SpanKind:           sdkSpanKinds[evt.SpanKind],
			ServiceName:        service,
			ResourceAttributes: resource,
			ScopeName:          evt.InstrumentationScope.Name,
			ScopeVersion:       evt.InstrumentationScope.Version,
			SpanAttributes:     sdkAttributes(evt.Attributes),
			Duration:           trace.Nanoseconds(evt.EndTime.Sub(evt.StartTime)),
			StatusCode:         sdkStatusCode(evt.Status.Code),
			StatusMessage:      evt.Status.Description,
		}
		for _, e := range evt.Events {
			span.Events = append(span.Events, trace.RawEvent{
				Timestamp:  e.Time.UTC().Format(time.RFC3339Nano),
				Name:       e.Name,
				Attributes: sdkAttributes(e.Attributes),
			})
		}
		for _, l := range evt.Links {
			span.Links = append(span.Links, trace.RawLink{
				TraceID:    l.SpanContext.TraceID,
				SpanID:     l.SpanContext.SpanID,
				TraceState: l.SpanContext.TraceState,
				Attributes: sdkAttributes(l.Attributes),
			})
		}
		spans = append(spans, span)
	}
	return spans, nil
}

func parseOTLP(data []byte) ([]trace.RawSpan, error) {
	var req coltracepb.ExportTraceServiceRequest
	opts := protojson.UnmarshalOptions{DiscardUnknown: true}
	if err := opts.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parsing OTLP: %w", err)
	}

	var spans []trace.RawSpan
	for _, rs := range req.ResourceSpans {
		resource := otlpAttributes(rs.Resource.GetAttributes())
		serviceName := ""
		if v, ok := resource.Get("service.name"); ok {
			serviceName = trace.Stringify(v)
		}

		for _, ss := range rs.ScopeSpans {
			scopeName := ss.Scope.GetName()

			for _, span := range ss.Spans {
				svc := serviceName
				if svc == "" {
					svc = scopeName
				}

				parentID := hex.EncodeToString(span.ParentSpanId)
				if isZeroID(parentID) {
					parentID = ""
				}

				raw := trace.RawSpan{
					Timestamp:          unixNanoTimestamp(span.StartTimeUnixNano),
					TraceID:            hex.EncodeToString(span.TraceId),
					TraceState:         span.TraceState,
					SpanID:             hex.EncodeToString(span.SpanId),
					ParentSpanID:       parentID,
					SpanName:           span.Name,
					SpanKind:           otlpSpanKind(span.Kind),
					ServiceName:        svc,
					ResourceAttributes: resource,
					ScopeName:          scopeName,
					ScopeVersion:       ss.Scope.GetVersion(),
					SpanAttributes:     otlpAttributes(span.Attributes),
					Duration:           otlpDuration(span.StartTimeUnixNano, span.EndTimeUnixNano),
					StatusCode:         span.GetStatus().GetCode().String(),
					StatusMessage:      span.GetStatus().GetMessage(),
				}
				for _, e := range span.Events {
					raw.Events = append(raw.Events, trace.RawEvent{
						Timestamp:  unixNanoTimestamp(e.TimeUnixNano),
						Name:       e.Name,
						Attributes: otlpAttributes(e.Attributes),
					})
				}
				for _, l := range span.Links {
					raw.Links = append(raw.Links, trace.RawLink{
						TraceID:    hex.EncodeToString(l.TraceId),
						SpanID:     hex.EncodeToString(l.SpanId),
						TraceState: l.TraceState,
						Attributes: otlpAttributes(l.Attributes),
					})
				}
				spans = append(spans, raw)
			}
		}
	}
	return spans, nil
}

func unixNanoTimestamp(ns uint64) string {
	return time.Unix(0, int64(ns)).UTC().Format(time.RFC3339Nano) //nolint:gosec // nanosecond timestamps fit in int64 until 2262
}

func otlpDuration(start, end uint64) trace.Nanoseconds {
	if end < start {
		return 0
	}
	return trace.Nanoseconds(end - start) //nolint:gosec // span durations fit in int64
}

// otlpSpanKind renders SPAN_KIND_SERVER as Server.
func otlpSpanKind(kind tracepb.Span_SpanKind) string {
	name := strings.TrimPrefix(kind.String(), "SPAN_KIND_")
	if name == "" {
		return ""
	}
	return name[:1] + strings.ToLower(name[1:])
}

func otlpAttributes(kvs []*commonpb.KeyValue) trace.Attributes {
	if len(kvs) == 0 {
		return nil
	}
	out := make(trace.Attributes, 0, len(kvs))
	for _, kv := range kvs {
		out = append(out, trace.Attribute{Key: kv.Key, Value: anyValue(kv.Value)})
	}
	return out
}

// anyValue unwraps an OTLP AnyValue into plain Go values.
func anyValue(v *commonpb.AnyValue) any {
	switch x := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return x.StringValue
	case *commonpb.AnyValue_BoolValue:
		return x.BoolValue
	case *commonpb.AnyValue_IntValue:
		return x.IntValue
	case *commonpb.AnyValue_DoubleValue:
		return x.DoubleValue
	case *commonpb.AnyValue_BytesValue:
		return hex.EncodeToString(x.BytesValue)
	case *commonpb.AnyValue_ArrayValue:
		values := x.ArrayValue.GetValues()
		out := make([]any, 0, len(values))
		for _, item := range values {
			out = append(out, anyValue(item))
		}
		return out
	case *commonpb.AnyValue_KvlistValue:
		out := make(map[string]any)
		for _, kv := range x.KvlistValue.GetValues() {
			out[kv.Key] = anyValue(kv.Value)
		}
		return out
	}
	return nil
}

// isZeroID checks if a hex-encoded ID is all zeros.
func isZeroID(id string) bool {
	for _, c := range id {
		if c != '0' {
			return false
		}
	}
	return len(id) > 0
}
