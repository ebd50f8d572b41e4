// Unit tests for list-view trace summaries
package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_Aggregation(t *testing.T) {
	tr := Trace{
		TraceID: "T",
		Spans: []Span{
			{SpanID: "a", ServiceName: "gateway", OperationName: "GET /users", StartTime: 100, Duration: 50},
			{SpanID: "b", ParentSpanID: "a", ServiceName: "users", OperationName: "list", StartTime: 110, Duration: 60, HasError: true},
			{SpanID: "c", ParentSpanID: "a", ServiceName: "gateway", OperationName: "auth", StartTime: 90, Duration: 5},
		},
	}

	sum := Summarize(tr)
	assert.Equal(t, "T", sum.TraceID)
	assert.True(t, sum.HasError)
	assert.Equal(t, 3, sum.SpanCount)
	assert.Equal(t, []string{"gateway", "users"}, sum.Services)
	assert.Equal(t, []string{"GET /users", "list", "auth"}, sum.Operations)
	assert.Equal(t, map[string][]string{
		"gateway": {"GET /users", "auth"},
		"users":   {"list"},
	}, sum.ServiceOperations)
	assert.Equal(t, int64(90), sum.Timestamp)
	assert.Equal(t, int64(170-90), sum.Duration)
	assert.Equal(t, "GET /users", sum.Name)
}

func TestSummarize_NoErrors(t *testing.T) {
	tr := Trace{Spans: []Span{{SpanID: "a"}, {SpanID: "b"}}}
	assert.False(t, Summarize(tr).HasError)
}

func TestSummarize_NameFallbacks(t *testing.T) {
	t.Run("root span preferred", func(t *testing.T) {
		tr := Trace{Spans: []Span{
			{SpanID: "b", ParentSpanID: "a", OperationName: "child"},
			{SpanID: "a", OperationName: "root"},
		}}
		assert.Equal(t, "root", Summarize(tr).Name)
	})

	t.Run("first span when no root", func(t *testing.T) {
		tr := Trace{Spans: []Span{
			{SpanID: "b", ParentSpanID: "x", OperationName: "orphan"},
			{SpanID: "c", ParentSpanID: "x", OperationName: "other"},
		}}
		assert.Equal(t, "orphan", Summarize(tr).Name)
	})

	t.Run("unknown when unnamed", func(t *testing.T) {
		assert.Equal(t, "Unknown", Summarize(Trace{}).Name)
		assert.Equal(t, "Unknown", Summarize(Trace{Spans: []Span{{SpanID: "a"}}}).Name)
	})
}

func TestSummarize_CommonTagsFromFirstSpanOnly(t *testing.T) {
	tr := Trace{Spans: []Span{
		{SpanID: "a", Tags: []KeyValue{
			{Key: "url.full", Value: "https://example.com/users"},
			{Key: "http.request.method", Value: "GET"},
			{Key: "other", Value: "x"},
		}},
		{SpanID: "b", Tags: []KeyValue{{Key: "http.request.method", Value: "POST"}}},
	}}

	assert.Equal(t, []KeyValue{
		{Key: "http.request.method", Value: "GET"},
		{Key: "url.full", Value: "https://example.com/users"},
	}, Summarize(tr).Tags)
}

func TestSummarize_Empty(t *testing.T) {
	sum := Summarize(Trace{TraceID: "empty"})
	assert.Equal(t, 0, sum.SpanCount)
	assert.Equal(t, int64(0), sum.Duration)
	assert.Equal(t, int64(0), sum.Timestamp)
	assert.False(t, sum.HasError)
	assert.Empty(t, sum.Services)
	assert.Empty(t, sum.Tags)
}

func TestSummarizeRaw(t *testing.T) {
	raw := RawTrace{TraceID: "r", Spans: []RawSpan{
		{SpanID: "a", SpanName: "op", ServiceName: "svc", StatusCode: "STATUS_CODE_ERROR", Duration: 5000},
	}}
	sum := SummarizeRaw(raw)
	assert.True(t, sum.HasError)
	assert.Equal(t, int64(5), sum.Duration)
	assert.Equal(t, "op", sum.Name)
}
