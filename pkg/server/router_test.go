// Tests for the replay API, both raw and through the HTTP source client
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andrewh/clicktrace/pkg/filter"
	"github.com/andrewh/clicktrace/pkg/source"
	"github.com/andrewh/clicktrace/pkg/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestServer(t *testing.T, src source.Source) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(src, nil))
	t.Cleanup(srv.Close)
	return srv
}

func replaySource(t *testing.T) *source.FileSource {
	t.Helper()
	src, err := source.OpenFile("../source/testdata/backend.json", source.FormatAuto, nil)
	require.NoError(t, err)
	return src
}

func getEnvelope(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test helper
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestRouter_RoundTripThroughHTTPSource(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t, replaySource(t))
	client, err := source.NewHTTPSource(srv.URL)
	require.NoError(t, err)

	services, err := client.Services(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"catalog-db", "frontend", "payments"}, services)

	ops, err := client.Operations(ctx, "frontend")
	require.NoError(t, err)
	assert.Equal(t, []string{"GET /products", "POST /checkout"}, ops)

	traces, err := client.Traces(ctx, source.Query{
		Tags:     filter.ParseConditions("payment.provider=~str"),
		HasError: true,
	})
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(t, "t-checkout", traces[0].TraceID)

	tr, err := client.Trace(ctx, "t-browse")
	require.NoError(t, err)
	require.Len(t, tr.Spans, 2)
	assert.Equal(t, int64(15000), trace.Normalize(tr.Spans[0]).Duration)
	assert.Equal(t, "postgresql", trace.Normalize(tr.Spans[1]).Tags[0].Value)

	_, err = client.Trace(ctx, "missing")
	assert.ErrorIs(t, err, source.ErrNotFound)
}

func TestRouter_EscapedTraceID(t *testing.T) {
	src := source.NewFileSource([]trace.RawTrace{{TraceID: "a/b", Spans: []trace.RawSpan{{SpanID: "1"}}}})
	client, err := source.NewHTTPSource(newTestServer(t, src).URL)
	require.NoError(t, err)

	tr, err := client.Trace(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "a/b", tr.TraceID)
}

func TestRouter_Envelope(t *testing.T) {
	srv := newTestServer(t, replaySource(t))

	code, body := getEnvelope(t, srv.URL+"/api/services")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", body["status"])
	assert.NotContains(t, body, "message")

	code, body = getEnvelope(t, srv.URL+"/api/trace/nope")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, body["message"], body["data"])
}

func TestRouter_BadRequests(t *testing.T) {
	srv := newTestServer(t, replaySource(t))

	tests := []struct {
		path string
		code int
		want string
	}{
		{"/api/operations", http.StatusBadRequest, "missing service parameter"},
		{"/api/traces?limit=lots", http.StatusBadRequest, `invalid limit "lots"`},
		{"/api/traces?startTime=whenever", http.StatusBadRequest, "invalid startTime"},
		{"/api/traces?tags=k%3D~(", http.StatusBadRequest, "invalid tag filter"},
		{"/api/nothing", http.StatusNotFound, "no route for /api/nothing"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			code, body := getEnvelope(t, srv.URL+tt.path)
			assert.Equal(t, tt.code, code)
			assert.Contains(t, body["message"], tt.want)
		})
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, replaySource(t))
	resp, err := http.Post(srv.URL+"/api/services", "application/json", nil) //nolint:noctx // test
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

type failingSource struct{ source.Source }

func (failingSource) Services(context.Context) ([]string, error) {
	return nil, errors.New("disk on fire")
}

func TestRouter_SourceErrorsAreLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	srv := httptest.NewServer(NewRouter(failingSource{}, zap.New(core)))
	t.Cleanup(srv.Close)

	code, body := getEnvelope(t, srv.URL+"/api/services")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "disk on fire", body["message"])

	assert.Equal(t, 1, logs.FilterMessage("Error encountered when listing services").Len())
	access := logs.FilterMessage("api request").All()
	require.Len(t, access, 1)
	assert.Equal(t, int64(http.StatusInternalServerError), access[0].ContextMap()["status"])
}
