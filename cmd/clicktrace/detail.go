package main

import (
	"fmt"
	"io"
	"time"

	"github.com/andrewh/clicktrace/pkg/trace"
	"github.com/jedib0t/go-pretty/v6/table"
)

// renderSpanDetail prints the overview, tags, process and logs of the
// first span in tr with spanID.
func renderSpanDetail(w io.Writer, tr trace.Trace, spanID string, loc *time.Location) error {
	var span *trace.Span
	for i := range tr.Spans {
		if tr.Spans[i].SpanID == spanID {
			span = &tr.Spans[i]
			break
		}
	}
	if span == nil {
		return fmt.Errorf("span %s not found in trace %s", spanID, tr.TraceID)
	}

	overview := newTable(w)
	overview.SetTitle("Overview")
	parent := span.ParentSpanID
	if parent == "" {
		parent = "(root)"
	}
	errText := "no"
	if span.HasError {
		errText = "yes"
	}
	overview.AppendRows([]table.Row{
		{"Operation", span.OperationName},
		{"Service", span.ServiceName},
		{"Span ID", span.SpanID},
		{"Parent", parent},
		{"Kind", span.SpanKind},
		{"Start", trace.FormatTimestamp(span.StartTime, loc)},
		{"Duration", trace.FormatDuration(span.Duration)},
		{"Status", span.StatusCode},
		{"Error", errText},
	})
	if span.StatusMessage != "" {
		overview.AppendRow(table.Row{"Status message", span.StatusMessage})
	}
	if span.ScopeName != "" {
		overview.AppendRow(table.Row{"Scope", scopeLabel(span.ScopeName, span.ScopeVersion)})
	}
	overview.Render()

	renderKeyValues(w, "Tags", span.Tags)
	renderKeyValues(w, "Process", span.Process)

	if len(span.Logs) == 0 {
		return nil
	}
	logs := newTable(w)
	logs.SetTitle("Logs")
	logs.AppendHeader(table.Row{"TIME", "FIELD", "VALUE"})
	for _, entry := range span.Logs {
		ts := trace.FormatTimestamp(entry.Timestamp, loc)
		for i, kv := range entry.Fields {
			if i > 0 {
				ts = ""
			}
			logs.AppendRow(table.Row{ts, kv.Key, kv.Value})
		}
		logs.AppendSeparator()
	}
	logs.Render()
	return nil
}

func renderKeyValues(w io.Writer, title string, kvs []trace.KeyValue) {
	if len(kvs) == 0 {
		return
	}
	tw := newTable(w)
	tw.SetTitle(title)
	tw.AppendHeader(table.Row{"KEY", "VALUE"})
	for _, kv := range kvs {
		tw.AppendRow(table.Row{kv.Key, kv.Value})
	}
	tw.Render()
}

func scopeLabel(name, version string) string {
	if version == "" {
		return name
	}
	return name + "@" + version
}
