// Span filter clauses applied before tree construction
// Clauses are ANDed; multi-valued clauses match any of their values
package view

import (
	"slices"
	"strings"

	"github.com/andrewh/clicktrace/pkg/trace"
)

// TagMatch selects spans carrying tag Key whose value contains Value.
type TagMatch struct {
	Key   string
	Value string
}

// Window is a closed time range in microseconds since the epoch.
// It only constrains spans when both bounds are non-zero.
type Window struct {
	Start int64
	End   int64
}

// Bounded reports whether both bounds are set.
func (w Window) Bounded() bool {
	return w.Start != 0 && w.End != 0
}

// Overlaps reports whether [start, end] intersects the window.
func (w Window) Overlaps(start, end int64) bool {
	return start <= w.End && end >= w.Start
}

// Filter is the predicate used to choose which spans are displayed.
// The zero Filter passes every span.
type Filter struct {
	Services   []string
	Operations []string
	Tags       []TagMatch
	ErrorsOnly bool
	Window     Window
	// Limit caps the number of spans kept after every other clause; 0 is unlimited.
	Limit int
}

// Match reports whether s passes every clause except Limit.
func (f Filter) Match(s trace.Span) bool {
	if len(f.Services) > 0 && !slices.Contains(f.Services, s.ServiceName) {
		return false
	}
	if len(f.Operations) > 0 && !slices.Contains(f.Operations, s.OperationName) {
		return false
	}
	if len(f.Tags) > 0 && !f.matchTags(s.Tags) {
		return false
	}
	if f.ErrorsOnly && !s.HasError {
		return false
	}
	if f.Window.Bounded() && !f.Window.Overlaps(s.StartTime, s.End()) {
		return false
	}
	return true
}

// matchTags passes when any span tag satisfies any filter tag.
func (f Filter) matchTags(tags []trace.KeyValue) bool {
	for _, want := range f.Tags {
		for _, tag := range tags {
			if tag.Key == want.Key && strings.Contains(tag.Value, want.Value) {
				return true
			}
		}
	}
	return false
}

// Apply returns the spans passing the filter, in input order, truncated to Limit.
func (f Filter) Apply(spans []trace.Span) []trace.Span {
	out := make([]trace.Span, 0, len(spans))
	for _, s := range spans {
		if f.Match(s) {
			out = append(out, s)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Empty reports whether the filter passes every span.
func (f Filter) Empty() bool {
	return len(f.Services) == 0 && len(f.Operations) == 0 && len(f.Tags) == 0 &&
		!f.ErrorsOnly && !f.Window.Bounded() && f.Limit <= 0
}
