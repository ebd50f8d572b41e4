// HTTP client for the trace query API
// Unwraps the {status, data, message} response envelope and traces each request
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andrewh/clicktrace/pkg/filter"
	"github.com/andrewh/clicktrace/pkg/trace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	statusSuccess     = "success"
	instrumentationID = "github.com/andrewh/clicktrace/pkg/source"
)

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 64 * 1024 * 1024

// envelope is the response wrapper used by every API endpoint.
type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// errorMessage prefers Message and falls back to a string carried in Data.
func (e envelope) errorMessage() string {
	if e.Message != "" {
		return e.Message
	}
	var s string
	if len(e.Data) > 0 && json.Unmarshal(e.Data, &s) == nil && s != "" {
		return s
	}
	return ""
}

// StatusError is returned for non-2xx API responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("API request failed with status %d: %s", e.Code, http.StatusText(e.Code))
}

// HTTPSource queries a trace API over HTTP.
type HTTPSource struct {
	base     *url.URL
	client   *http.Client
	logger   *zap.Logger
	tracer   oteltrace.Tracer
	meter    metric.Meter
	duration metric.Float64Histogram
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) { s.client = c }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *zap.Logger) HTTPOption {
	return func(s *HTTPSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracerProvider sets where request spans are recorded.
func WithTracerProvider(tp oteltrace.TracerProvider) HTTPOption {
	return func(s *HTTPSource) {
		if tp != nil {
			s.tracer = tp.Tracer(instrumentationID)
		}
	}
}

// WithMeterProvider sets where request durations are recorded.
func WithMeterProvider(mp metric.MeterProvider) HTTPOption {
	return func(s *HTTPSource) {
		if mp != nil {
			s.meter = mp.Meter(instrumentationID)
		}
	}
}

// NewHTTPSource returns a source for the API rooted at endpoint,
// e.g. http://localhost:8080.
func NewHTTPSource(endpoint string, opts ...HTTPOption) (*HTTPSource, error) {
	base, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be http or https", endpoint)
	}
	s := &HTTPSource{
		base:   base,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: zap.NewNop(),
		tracer: otel.Tracer(instrumentationID),
		meter:  otel.Meter(instrumentationID),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.duration, err = s.meter.Float64Histogram("clicktrace.api.request.duration",
		metric.WithDescription("Duration of trace API requests"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("creating request duration histogram: %w", err)
	}
	return s, nil
}

func (s *HTTPSource) Services(ctx context.Context) ([]string, error) {
	var out []string
	if err := s.get(ctx, "/api/services", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *HTTPSource) Operations(ctx context.Context, service string) ([]string, error) {
	var out []string
	if err := s.get(ctx, "/api/operations", url.Values{"service": {service}}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *HTTPSource) Traces(ctx context.Context, q Query) ([]trace.RawTrace, error) {
	var out []trace.RawTrace
	if err := s.get(ctx, "/api/traces", EncodeQuery(q), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *HTTPSource) Trace(ctx context.Context, traceID string) (trace.RawTrace, error) {
	var out trace.RawTrace
	if err := s.get(ctx, "/api/trace/"+url.PathEscape(traceID), nil, &out); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return trace.RawTrace{}, fmt.Errorf("trace %s: %w", traceID, ErrNotFound)
		}
		return trace.RawTrace{}, err
	}
	if len(out.Spans) == 0 {
		return trace.RawTrace{}, fmt.Errorf("trace %s: %w", traceID, ErrNotFound)
	}
	if out.TraceID == "" {
		out.TraceID = traceID
	}
	return out, nil
}

// EncodeQuery renders q as API query parameters.
func EncodeQuery(q Query) url.Values {
	v := url.Values{}
	if q.Service != "" {
		v.Set("service", q.Service)
	}
	if q.Operation != "" {
		v.Set("operation", q.Operation)
	}
	if len(q.Tags) > 0 {
		v.Set("tags", filter.FormatConditions(q.Tags))
	}
	if q.Bounded() {
		v.Set("startTime", q.Start.UTC().Format(time.RFC3339Nano))
		v.Set("endTime", q.End.UTC().Format(time.RFC3339Nano))
	}
	if q.HasError {
		v.Set("hasError", "true")
	}
	v.Set("limit", strconv.Itoa(q.EffectiveLimit()))
	return v
}

// DecodeQuery parses API query parameters into a Query.
func DecodeQuery(v url.Values) (Query, error) {
	q := Query{
		Service:   v.Get("service"),
		Operation: v.Get("operation"),
		Tags:      filter.ParseConditions(v.Get("tags")),
		HasError:  v.Get("hasError") == "true",
	}
	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Query{}, fmt.Errorf("invalid limit %q", raw)
		}
		q.Limit = n
	}
	for name, dst := range map[string]*time.Time{"startTime": &q.Start, "endTime": &q.End} {
		raw := v.Get(name)
		if raw == "" {
			continue
		}
		t, ok := trace.ParseTimestamp(raw)
		if !ok {
			return Query{}, fmt.Errorf("invalid %s %q", name, raw)
		}
		*dst = t
	}
	return q, nil
}

// get fetches path, which must already be escaped, and decodes the
// envelope's data into out.
func (s *HTTPSource) get(ctx context.Context, path string, params url.Values, out any) error {
	u := *s.base
	u.RawPath = strings.TrimRight(s.base.EscapedPath(), "/") + path
	u.Path, _ = url.PathUnescape(u.RawPath)
	u.RawQuery = params.Encode()

	ctx, span := s.tracer.Start(ctx, "GET "+path, oteltrace.WithSpanKind(oteltrace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", http.MethodGet),
		attribute.String("url.full", u.String()),
	)

	start := time.Now()
	err := s.do(ctx, span, u.String(), out)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Debug("api request failed", zap.String("url", u.String()), zap.Error(err))
	}
	s.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("http.route", routeOf(path)),
		attribute.String("outcome", outcome),
	))
	return err
}

// routeOf collapses trace IDs out of path so metric attributes stay bounded.
func routeOf(path string) string {
	if strings.HasPrefix(path, "/api/trace/") {
		return "/api/trace/{id}"
	}
	return path
}

func (s *HTTPSource) do(ctx context.Context, span oteltrace.Span, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", target, err)
	}
	s.logger.Debug("api response",
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)))

	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Code: resp.StatusCode}
		if decodeErr == nil {
			statusErr.Message = env.errorMessage()
		}
		return statusErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decoding response from %s: %w", target, decodeErr)
	}
	if env.Status != statusSuccess || len(env.Data) == 0 {
		if msg := env.errorMessage(); msg != "" {
			return errors.New(msg)
		}
		return fmt.Errorf("API responded with an error for endpoint: %s", target)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding response data from %s: %w", target, err)
	}
	return nil
}
