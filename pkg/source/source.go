// Trace data sources for the viewer
// Defines the query contract shared by the HTTP backend, file replay and cache
package source

import (
	"context"
	"errors"
	"time"

	"github.com/andrewh/clicktrace/pkg/filter"
	"github.com/andrewh/clicktrace/pkg/trace"
)

// DefaultLimit is the number of traces returned when a query sets none.
const DefaultLimit = 10

// ErrNotFound is returned by Trace when no spans carry the requested ID.
var ErrNotFound = errors.New("trace not found")

// Query selects traces for the list view.
type Query struct {
	Service   string
	Operation string
	Tags      []filter.Condition
	// Start and End bound span timestamps when both are set.
	Start    time.Time
	End      time.Time
	Limit    int
	HasError bool
}

// Bounded reports whether the query constrains span timestamps.
func (q Query) Bounded() bool {
	return !q.Start.IsZero() && !q.End.IsZero()
}

// EffectiveLimit returns Limit, or DefaultLimit when Limit is not positive.
func (q Query) EffectiveLimit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}

// QueryFromCriteria converts saved filter criteria into a query at now.
func QueryFromCriteria(c filter.Criteria, now time.Time) Query {
	q := Query{
		Service:   c.Service,
		Operation: c.Operation,
		Tags:      c.Tags,
		Limit:     c.Limit,
		HasError:  c.HasError,
	}
	if start, end, ok := c.TimeRange.Resolve(now); ok {
		q.Start, q.End = start, end
	}
	return q
}

// Source yields raw spans for the viewer.
type Source interface {
	// Services lists distinct service names.
	Services(ctx context.Context) ([]string, error)
	// Operations lists distinct operation names recorded by service.
	Operations(ctx context.Context, service string) ([]string, error)
	// Traces returns traces with at least one span matching q.
	Traces(ctx context.Context, q Query) ([]trace.RawTrace, error)
	// Trace returns every span of one trace, or ErrNotFound.
	Trace(ctx context.Context, traceID string) (trace.RawTrace, error)
}
