package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/andrewh/clicktrace/pkg/filter"
	"github.com/andrewh/clicktrace/pkg/source"
	"github.com/andrewh/clicktrace/pkg/trace"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func servicesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List services that reported spans",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			src, err := a.openSource(cmd)
			if err != nil {
				return err
			}
			services, err := src.Services(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing services: %w", err)
			}
			return renderNames(cmd.OutOrStdout(), "SERVICE", "services", services)
		}),
	}
}

func operationsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "operations <service>",
		Short: "List operations recorded by a service",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("missing service name\n\nUsage: clicktrace operations <service>")
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			src, err := a.openSource(cmd)
			if err != nil {
				return err
			}
			ops, err := src.Operations(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("listing operations for %s: %w", args[0], err)
			}
			return renderNames(cmd.OutOrStdout(), "OPERATION", "operations", ops)
		}),
	}
}

type tracesOptions struct {
	service    string
	operation  string
	tags       []string
	clearTags  bool
	timeRange  string
	start      string
	end        string
	limit      int
	errorsOnly bool
	noSave     bool
}

func tracesCmd(a *app) *cobra.Command {
	var opts tracesOptions

	cmd := &cobra.Command{
		Use:   "traces",
		Short: "List recent traces matching the saved filters",
		Long: "List recent traces matching the saved filters.\n\n" +
			"Filter flags update the criteria saved for the current session, so the\n" +
			"next run without flags repeats the same query. Use --no-save to query\n" +
			"without changing them. --range custom without --start/--end queries all time.",
		Args: cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			return runTraces(cmd, a, opts)
		}),
	}

	cmd.Flags().StringVar(&opts.service, "service", "", "only traces with a span from this service (empty for any)")
	cmd.Flags().StringVar(&opts.operation, "operation", "", "only traces with a span for this operation (empty for any)")
	cmd.Flags().StringArrayVar(&opts.tags, "tag", nil, "tag condition key==v, key!=v, key=~regex or key!~regex (repeatable)")
	cmd.Flags().BoolVar(&opts.clearTags, "clear-tags", false, "drop saved tag conditions before applying --tag")
	cmd.Flags().StringVar(&opts.timeRange, "range", "", "time range preset: 5m, 10m, 30m, 1h, 6h, 12h, 24h or custom")
	cmd.Flags().StringVar(&opts.start, "start", "", "custom range start (RFC 3339)")
	cmd.Flags().StringVar(&opts.end, "end", "", "custom range end (RFC 3339)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "maximum traces to list (default 20)")
	cmd.Flags().BoolVar(&opts.errorsOnly, "errors", false, "only traces containing an error")
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "do not save the resulting filters")

	return cmd
}

func runTraces(cmd *cobra.Command, a *app, opts tracesOptions) error {
	ctx := cmd.Context()
	now := a.now()

	src, err := a.openSource(cmd)
	if err != nil {
		return err
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	criteria := filter.LoadOrDefault(ctx, store, now, a.logger)
	criteria, err = applyTraceFlags(ctx, cmd, src, criteria, opts, now)
	if err != nil {
		return err
	}
	if !opts.noSave {
		if err := store.Save(ctx, criteria); err != nil {
			return fmt.Errorf("saving filter criteria: %w", err)
		}
	}

	traces, err := src.Traces(ctx, source.QueryFromCriteria(criteria, now))
	if err != nil {
		return fmt.Errorf("querying traces: %w", err)
	}
	return renderTraceList(cmd.OutOrStdout(), criteria, traces, a.location())
}

// applyTraceFlags overlays the flags the user set on the saved criteria.
func applyTraceFlags(ctx context.Context, cmd *cobra.Command, src source.Source, c filter.Criteria, opts tracesOptions, now time.Time) (filter.Criteria, error) {
	flags := cmd.Flags()

	if flags.Changed("service") {
		var ops []string
		if opts.service != "" {
			var err error
			ops, err = src.Operations(ctx, opts.service)
			if err != nil {
				return c, fmt.Errorf("listing operations for %s: %w", opts.service, err)
			}
		}
		c = c.WithService(opts.service, ops)
	}
	if flags.Changed("operation") {
		c.Operation = opts.operation
	}
	if opts.clearTags {
		c.Tags = []filter.Condition{}
	}
	for _, raw := range opts.tags {
		cond, err := filter.ParseCondition(raw)
		if err != nil {
			return c, fmt.Errorf("invalid --tag %q: %w", raw, err)
		}
		if _, err := cond.Compile(); err != nil {
			return c, fmt.Errorf("invalid --tag %q: %w", raw, err)
		}
		c = c.WithTag(cond)
	}
	if flags.Changed("range") {
		p, err := filter.ParsePreset(opts.timeRange)
		if err != nil {
			return c, err
		}
		c.TimeRange = filter.RangeFromPreset(p, now)
	}
	if flags.Changed("start") || flags.Changed("end") {
		start, end, err := parseBounds(opts.start, opts.end)
		if err != nil {
			return c, err
		}
		c.TimeRange = filter.CustomRange(start, end)
	}
	if flags.Changed("limit") {
		c.Limit = opts.limit
	}
	if flags.Changed("errors") {
		c.HasError = opts.errorsOnly
	}
	return c.Sanitize(now), nil
}

func parseBounds(rawStart, rawEnd string) (time.Time, time.Time, error) {
	if rawStart == "" || rawEnd == "" {
		return time.Time{}, time.Time{}, errors.New("--start and --end must be given together")
	}
	start, ok := trace.ParseTimestamp(rawStart)
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --start %q: want an RFC 3339 timestamp", rawStart)
	}
	end, ok := trace.ParseTimestamp(rawEnd)
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --end %q: want an RFC 3339 timestamp", rawEnd)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("--end is before --start")
	}
	return start, end, nil
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	return tw
}

func renderNames(w io.Writer, header, plural string, names []string) error {
	if len(names) == 0 {
		_, err := fmt.Fprintf(w, "No %s found\n", plural)
		return err
	}
	tw := newTable(w)
	tw.AppendHeader(table.Row{header})
	for _, n := range names {
		tw.AppendRow(table.Row{n})
	}
	tw.Render()
	return nil
}

func renderTraceList(w io.Writer, c filter.Criteria, traces []trace.RawTrace, loc *time.Location) error {
	p := message.NewPrinter(language.English)

	if _, err := fmt.Fprintln(w, describeCriteria(c, loc)); err != nil {
		return err
	}
	if len(traces) == 0 {
		_, err := fmt.Fprintln(w, "No traces found")
		return err
	}

	tw := newTable(w)
	tw.AppendHeader(table.Row{"TRACE ID", "NAME", "START", "DURATION", "SPANS", "SERVICES", "ERROR"})
	spans := 0
	for _, raw := range traces {
		sum := trace.SummarizeRaw(raw)
		spans += sum.SpanCount
		errMark := ""
		if sum.HasError {
			errMark = "yes"
		}
		tw.AppendRow(table.Row{
			sum.TraceID,
			sum.Name,
			trace.FormatTimestamp(sum.Timestamp, loc),
			trace.FormatDuration(sum.Duration),
			p.Sprintf("%d", sum.SpanCount),
			strings.Join(sum.Services, ", "),
			errMark,
		})
	}
	tw.Render()

	_, err := p.Fprintf(w, "%d traces, %d spans\n", len(traces), spans)
	return err
}

// describeCriteria summarises criteria on one line.
func describeCriteria(c filter.Criteria, loc *time.Location) string {
	parts := []string{c.TimeRange.Describe(loc)}
	if c.Service != "" {
		parts = append(parts, "service "+c.Service)
	}
	if c.Operation != "" {
		parts = append(parts, "operation "+c.Operation)
	}
	if len(c.Tags) > 0 {
		parts = append(parts, "tags "+filter.FormatConditions(c.Tags))
	}
	if c.HasError {
		parts = append(parts, "errors only")
	}
	parts = append(parts, fmt.Sprintf("limit %d", c.Limit))
	return strings.Join(parts, " | ")
}
