package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/andrewh/clicktrace/pkg/source"
	"github.com/andrewh/clicktrace/pkg/trace"
	"github.com/andrewh/clicktrace/pkg/trace/view"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultBarWidth = 40

type showOptions struct {
	services   []string
	operations []string
	tags       []string
	errorsOnly bool
	limit      int
	start      string
	end        string
	expandAll  bool
	expand     []string
	spanID     string
	svgPath    string
	asJSON     bool
	barWidth   int
}

func showCmd(a *app) *cobra.Command {
	var opts showOptions

	cmd := &cobra.Command{
		Use:   "show <trace-id>",
		Short: "Show a trace as a call tree with a timeline",
		Long: "Show a trace as a call tree with a timeline.\n\n" +
			"Filters hide spans without breaking the tree: a span whose parent is\n" +
			"filtered out is shown as a root. Bar positions are always relative to\n" +
			"the whole trace.\n\n" +
			"Only root spans start expanded; use --expand to open more spans or\n" +
			"--expand-all to show the whole tree.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("missing trace ID\n\nUsage: clicktrace show <trace-id>")
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, a, args[0], opts)
		}),
	}

	cmd.Flags().StringSliceVar(&opts.services, "service", nil, "only spans from these services")
	cmd.Flags().StringSliceVar(&opts.operations, "operation", nil, "only spans for these operations")
	cmd.Flags().StringArrayVar(&opts.tags, "tag", nil, "only spans with a tag key=value (value matches as a substring; repeatable)")
	cmd.Flags().BoolVar(&opts.errorsOnly, "errors", false, "only spans with an error")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "show at most this many matching spans (0 for all)")
	cmd.Flags().StringVar(&opts.start, "start", "", "only spans overlapping a window from this time (RFC 3339, with --end)")
	cmd.Flags().StringVar(&opts.end, "end", "", "only spans overlapping a window up to this time (RFC 3339, with --start)")
	cmd.Flags().BoolVar(&opts.expandAll, "expand-all", false, "expand every span instead of only the roots")
	cmd.Flags().StringSliceVar(&opts.expand, "expand", nil, "also expand these span IDs")
	cmd.Flags().StringVar(&opts.spanID, "span", "", "print the details of one span instead of the tree")
	cmd.Flags().StringVar(&opts.svgPath, "svg", "", "write the timeline as SVG to this file (- for stdout)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the visible rows as JSON")
	cmd.Flags().IntVar(&opts.barWidth, "width", defaultBarWidth, "timeline bar width in characters")

	return cmd
}

func (o showOptions) filter() (view.Filter, error) {
	f := view.Filter{
		Services:   o.services,
		Operations: o.operations,
		ErrorsOnly: o.errorsOnly,
		Limit:      o.limit,
	}
	for _, raw := range o.tags {
		key, value, ok := strings.Cut(raw, "=")
		if !ok || key == "" {
			return view.Filter{}, fmt.Errorf("invalid --tag %q: want key=value", raw)
		}
		f.Tags = append(f.Tags, view.TagMatch{Key: key, Value: value})
	}
	if f.Limit < 0 {
		return view.Filter{}, errors.New("--limit must not be negative")
	}
	if o.start != "" || o.end != "" {
		start, end, err := parseBounds(o.start, o.end)
		if err != nil {
			return view.Filter{}, err
		}
		f.Window = view.Window{Start: start.UnixMicro(), End: end.UnixMicro()}
	}
	return f, nil
}

// expansion starts from the roots, the same default an interactive viewer
// uses when it has no saved state.
func (o showOptions) expansion(tree *view.Tree) *view.Expansion {
	e := view.NewExpansion()
	if o.expandAll {
		e.ExpandAll(tree)
		return e
	}
	e.EnsureDefault(tree)
	for _, id := range o.expand {
		e.Expand(id)
	}
	return e
}

func runShow(cmd *cobra.Command, a *app, traceID string, opts showOptions) error {
	f, err := opts.filter()
	if err != nil {
		return err
	}

	src, err := a.openSource(cmd)
	if err != nil {
		return err
	}
	raw, err := src.Trace(cmd.Context(), traceID)
	if errors.Is(err, source.ErrNotFound) {
		return fmt.Errorf("trace %s not found\n\nList recent traces with:\n  clicktrace traces", traceID)
	}
	if err != nil {
		return fmt.Errorf("fetching trace: %w", err)
	}

	tr := trace.NormalizeTrace(raw)
	loc := a.location()
	w := cmd.OutOrStdout()

	if opts.spanID != "" {
		return renderSpanDetail(w, tr, opts.spanID, loc)
	}

	tree := view.Build(tr.Spans, f)
	if tree.Promoted > 0 {
		a.logger.Warn("parent cycle broken by promoting spans to roots",
			zap.String("trace_id", traceID), zap.Int("promoted", tree.Promoted))
	}
	rows := view.Rows(tree, opts.expansion(tree))
	tl := view.NewTimeline(tr.Spans)

	switch {
	case opts.svgPath == "-":
		return renderTraceSVG(w, tr, rows, tl)
	case opts.svgPath != "":
		out, err := os.Create(opts.svgPath) //nolint:gosec // user-supplied output path is expected
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer out.Close() //nolint:errcheck // best-effort close on write
		return renderTraceSVG(out, tr, rows, tl)
	case opts.asJSON:
		return renderRowsJSON(w, tr, tree, rows, tl)
	default:
		if !f.Empty() {
			_, _ = fmt.Fprintf(w, "Showing %d of %d spans matching the filter\n", tree.Len(), len(tr.Spans))
		}
		return renderTimeline(w, tr, rows, tl, loc, opts.barWidth)
	}
}

func renderTimeline(w io.Writer, tr trace.Trace, rows []view.Row, tl view.Timeline, loc *time.Location, barWidth int) error {
	sum := trace.Summarize(tr)
	_, err := fmt.Fprintf(w, "Trace %s  %s\nStarted %s  Duration %s  Spans %d  Services %s\n\n",
		tr.TraceID, sum.Name,
		trace.FormatTimestamp(sum.Timestamp, loc), trace.FormatDuration(sum.Duration),
		sum.SpanCount, strings.Join(sum.Services, ", "))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No spans match the filter")
		return err
	}

	tw := newTable(w)
	tw.Style().Options.DrawBorder = false
	tw.Style().Options.SeparateColumns = false
	tw.AppendHeader(table.Row{"SPAN", "SERVICE", "DURATION", "TIMELINE"})
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 3, Align: text.AlignRight}})
	for _, r := range rows {
		label := strings.Repeat("  ", r.Depth) + rowMarker(r) + " " + r.Span.OperationName
		if r.Span.HasError {
			label += " !"
		}
		tw.AppendRow(table.Row{
			label,
			r.Span.ServiceName,
			trace.FormatDuration(r.Span.Duration),
			timelineBar(tl.Geometry(r.Span), barWidth),
		})
	}
	tw.Render()
	return nil
}

func rowMarker(r view.Row) string {
	switch {
	case r.Expanded:
		return "▾"
	case r.HasChildren:
		return "▸"
	default:
		return "•"
	}
}

// timelineBar draws g on a track width characters wide. Every span gets at
// least one cell.
func timelineBar(g view.Geometry, width int) string {
	if width < 1 {
		width = 1
	}
	left := int(math.Round(g.LeftPercent / 100 * float64(width)))
	size := int(math.Round(g.WidthPercent / 100 * float64(width)))
	left = min(max(left, 0), width-1)
	size = min(max(size, 1), width-left)
	return "|" + strings.Repeat(" ", left) + strings.Repeat("█", size) + strings.Repeat(" ", width-left-size) + "|"
}

type rowJSON struct {
	SpanID       string  `json:"span_id"`
	ParentSpanID string  `json:"parent_span_id,omitempty"`
	Operation    string  `json:"operation"`
	Service      string  `json:"service"`
	Depth        int     `json:"depth"`
	StartTime    int64   `json:"start_time_us"`
	Duration     int64   `json:"duration_us"`
	HasError     bool    `json:"has_error"`
	HasChildren  bool    `json:"has_children"`
	Expanded     bool    `json:"expanded"`
	LeftPercent  float64 `json:"left_percent"`
	WidthPercent float64 `json:"width_percent"`
	Color        string  `json:"color"`
}

type treeJSON struct {
	TraceID  string    `json:"trace_id"`
	Roots    int       `json:"roots"`
	Matched  int       `json:"matched"`
	Total    int       `json:"total"`
	Promoted int       `json:"promoted"`
	Rows     []rowJSON `json:"rows"`
}

func renderRowsJSON(w io.Writer, tr trace.Trace, tree *view.Tree, rows []view.Row, tl view.Timeline) error {
	out := treeJSON{
		TraceID:  tr.TraceID,
		Roots:    len(tree.Roots),
		Matched:  tree.Len(),
		Total:    len(tr.Spans),
		Promoted: tree.Promoted,
		Rows:     make([]rowJSON, 0, len(rows)),
	}
	for _, r := range rows {
		g := tl.Geometry(r.Span)
		out.Rows = append(out.Rows, rowJSON{
			SpanID:       r.Span.SpanID,
			ParentSpanID: r.Span.ParentSpanID,
			Operation:    r.Span.OperationName,
			Service:      r.Span.ServiceName,
			Depth:        r.Depth,
			StartTime:    r.Span.StartTime,
			Duration:     r.Span.Duration,
			HasError:     r.Span.HasError,
			HasChildren:  r.HasChildren,
			Expanded:     r.Expanded,
			LeftPercent:  g.LeftPercent,
			WidthPercent: g.WidthPercent,
			Color:        trace.SpanColor(r.Span),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
