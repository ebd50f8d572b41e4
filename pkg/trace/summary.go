// Trace summaries for list views
// Aggregates timing, services, operations and error state across a trace's spans
package trace

// unknownName labels traces with no usable operation name.
const unknownName = "Unknown"

// commonTagKeys are copied from the first span into the summary, in this order.
var commonTagKeys = []string{"http.request.method", "url.full"}

// Summarize projects a trace into its list-view summary.
func Summarize(t Trace) TraceSummary {
	sum := TraceSummary{
		TraceID:           t.TraceID,
		Name:              summaryName(t.Spans),
		SpanCount:         len(t.Spans),
		Services:          make([]string, 0),
		Operations:        make([]string, 0),
		ServiceOperations: make(map[string][]string),
		Tags:              make([]KeyValue, 0),
	}
	if len(t.Spans) == 0 {
		return sum
	}

	start, end := t.Spans[0].StartTime, t.Spans[0].End()
	seenSvc := make(map[string]bool)
	seenOp := make(map[string]bool)
	seenSvcOp := make(map[[2]string]bool)
	for _, s := range t.Spans {
		start = min(start, s.StartTime)
		end = max(end, s.End())
		sum.HasError = sum.HasError || s.HasError

		if !seenSvc[s.ServiceName] {
			seenSvc[s.ServiceName] = true
			sum.Services = append(sum.Services, s.ServiceName)
		}
		if !seenOp[s.OperationName] {
			seenOp[s.OperationName] = true
			sum.Operations = append(sum.Operations, s.OperationName)
		}
		key := [2]string{s.ServiceName, s.OperationName}
		if !seenSvcOp[key] {
			seenSvcOp[key] = true
			sum.ServiceOperations[s.ServiceName] = append(sum.ServiceOperations[s.ServiceName], s.OperationName)
		}
	}
	sum.Timestamp = start
	sum.Duration = end - start

	first := t.Spans[0]
	for _, key := range commonTagKeys {
		if v, ok := first.Tag(key); ok {
			sum.Tags = append(sum.Tags, KeyValue{Key: key, Value: v})
		}
	}
	return sum
}

// SummarizeRaw normalises and summarises a raw trace.
func SummarizeRaw(raw RawTrace) TraceSummary {
	return Summarize(NormalizeTrace(raw))
}

// summaryName prefers the first parentless span, then the first span.
func summaryName(spans []Span) string {
	for _, s := range spans {
		if !s.HasParent() {
			if s.OperationName != "" {
				return s.OperationName
			}
			break
		}
	}
	if len(spans) > 0 && spans[0].OperationName != "" {
		return spans[0].OperationName
	}
	return unknownName
}
