// In-memory source replaying traces loaded from an export file
package source

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/andrewh/clicktrace/pkg/filter"
	"github.com/andrewh/clicktrace/pkg/trace"
)

// FileSource answers queries from traces held in memory.
type FileSource struct {
	mu     sync.RWMutex
	traces []trace.RawTrace
	byID   map[string]int
}

// NewFileSource serves the given traces. Traces sharing an ID are merged.
func NewFileSource(traces []trace.RawTrace) *FileSource {
	s := &FileSource{byID: make(map[string]int)}
	s.Add(traces...)
	return s
}

// OpenFile loads a trace export from path ("-" reads r instead).
func OpenFile(path string, format Format, stdin io.Reader) (*FileSource, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path) //nolint:gosec // user-supplied input file
		if err != nil {
			return nil, fmt.Errorf("opening trace file: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	traces, err := Parse(r, format)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return NewFileSource(traces), nil
}

// Add merges traces into the source.
func (s *FileSource) Add(traces ...trace.RawTrace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range traces {
		if i, ok := s.byID[t.TraceID]; ok {
			s.traces[i].Spans = append(s.traces[i].Spans, t.Spans...)
			continue
		}
		s.byID[t.TraceID] = len(s.traces)
		s.traces = append(s.traces, trace.RawTrace{
			TraceID: t.TraceID,
			Spans:   slices.Clone(t.Spans),
		})
	}
}

// Len returns the number of traces held.
func (s *FileSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.traces)
}

func (s *FileSource) Services(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	out := []string{}
	for _, t := range s.traces {
		for _, sp := range t.Spans {
			if !seen[sp.ServiceName] {
				seen[sp.ServiceName] = true
				out = append(out, sp.ServiceName)
			}
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *FileSource) Operations(_ context.Context, service string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	out := []string{}
	for _, t := range s.traces {
		for _, sp := range t.Spans {
			if sp.ServiceName == service && !seen[sp.SpanName] {
				seen[sp.SpanName] = true
				out = append(out, sp.SpanName)
			}
		}
	}
	slices.Sort(out)
	return out, nil
}

// Traces returns whole traces having a span that matches the service,
// operation, tag and time clauses of q, newest matching span first.
func (s *FileSource) Traces(ctx context.Context, q Query) ([]trace.RawTrace, error) {
	matchers, err := filter.CompileAll(q.Tags)
	if err != nil {
		return nil, fmt.Errorf("invalid tag filter: %w", err)
	}

	type hit struct {
		index  int
		newest int64
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []hit
	for i, t := range s.traces {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		newest, ok := int64(0), false
		for _, sp := range t.Spans {
			if !spanMatches(sp, q, matchers) {
				continue
			}
			ts := trace.TimestampMicros(sp.Timestamp)
			if !ok || ts > newest {
				newest = ts
			}
			ok = true
		}
		if !ok {
			continue
		}
		if q.HasError && !trace.SummarizeRaw(t).HasError {
			continue
		}
		hits = append(hits, hit{index: i, newest: newest})
	}

	slices.SortStableFunc(hits, func(a, b hit) int {
		return cmp.Compare(b.newest, a.newest)
	})
	if limit := q.EffectiveLimit(); len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]trace.RawTrace, 0, len(hits))
	for _, h := range hits {
		t := s.traces[h.index]
		out = append(out, trace.RawTrace{TraceID: t.TraceID, Spans: slices.Clone(t.Spans)})
	}
	return out, nil
}

func spanMatches(sp trace.RawSpan, q Query, matchers []filter.Matcher) bool {
	if q.Service != "" && sp.ServiceName != q.Service {
		return false
	}
	if q.Operation != "" && sp.SpanName != q.Operation {
		return false
	}
	if len(matchers) > 0 && !filter.MatchAll(matchers, sp.SpanAttributes.KeyValues()) {
		return false
	}
	if q.Bounded() {
		ts, ok := trace.ParseTimestamp(sp.Timestamp)
		if !ok || ts.Before(q.Start) || ts.After(q.End) {
			return false
		}
	}
	return true
}

func (s *FileSource) Trace(_ context.Context, traceID string) (trace.RawTrace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[traceID]
	if !ok || len(s.traces[i].Spans) == 0 {
		return trace.RawTrace{}, fmt.Errorf("trace %s: %w", traceID, ErrNotFound)
	}
	t := s.traces[i]
	return trace.RawTrace{TraceID: t.TraceID, Spans: slices.Clone(t.Spans)}, nil
}
