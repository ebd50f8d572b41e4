// Unit tests for display tree reconstruction
// Covers root promotion, ordering, cycles and duplicate span IDs
package view

import (
	"testing"

	"github.com/andrewh/clicktrace/pkg/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func span(id, parent string, start, dur int64) trace.Span {
	return trace.Span{
		TraceID:       "t1",
		SpanID:        id,
		ParentSpanID:  parent,
		OperationName: "op-" + id,
		ServiceName:   "svc",
		StartTime:     start,
		Duration:      dur,
	}
}

func ids(spans []trace.Span) []string {
	out := make([]string, 0, len(spans))
	for _, s := range spans {
		out = append(out, s.SpanID)
	}
	return out
}

func TestBuild_TwoSpanScenario(t *testing.T) {
	spans := []trace.Span{span("a", "", 0, 100), span("b", "a", 10, 50)}

	tree := Build(spans, Filter{})
	assert.Equal(t, []string{"a"}, ids(tree.Roots))
	assert.Equal(t, []string{"b"}, ids(tree.ChildrenOf["a"]))
	assert.Equal(t, 2, tree.Len())
	assert.Zero(t, tree.Promoted)

	tl := NewTimeline(spans)
	assert.InDelta(t, 100.0, tl.Geometry(spans[0]).WidthPercent, 1e-9)
	assert.InDelta(t, 0.0, tl.Geometry(spans[0]).LeftPercent, 1e-9)
	assert.InDelta(t, 10.0, tl.Geometry(spans[1]).LeftPercent, 1e-9)
	assert.InDelta(t, 50.0, tl.Geometry(spans[1]).WidthPercent, 1e-9)
}

func TestBuild_Empty(t *testing.T) {
	tree := Build(nil, Filter{})
	require.NotNil(t, tree)
	assert.Empty(t, tree.Roots)
	assert.Zero(t, tree.Len())
	assert.Empty(t, Rows(tree, nil))
}

func TestBuild_OrphanPromotedWhenParentFiltered(t *testing.T) {
	spans := []trace.Span{
		span("A", "", 0, 100),
		span("B", "A", 10, 80),
		span("C", "B", 20, 10),
	}
	spans[1].ServiceName = "hidden"

	tree := Build(spans, Filter{Services: []string{"svc"}})
	assert.Equal(t, []string{"A", "C"}, ids(tree.Roots))
	assert.Empty(t, tree.ChildrenOf["A"], "B was filtered out so A has no children")
	assert.NotContains(t, tree.ChildrenOf, "B")
}

func TestBuild_MissingParentIsRoot(t *testing.T) {
	spans := []trace.Span{
		span("a", "", 50, 10),
		span("orphan", "gone", 5, 10),
	}

	tree := Build(spans, Filter{})
	assert.Equal(t, []string{"orphan", "a"}, ids(tree.Roots), "roots are ordered by start time")
}

func TestBuild_RootsStableOnEqualStart(t *testing.T) {
	spans := []trace.Span{
		span("r3", "", 10, 1),
		span("r1", "", 5, 1),
		span("r2", "", 10, 1),
		span("r0", "", 10, 1),
	}

	tree := Build(spans, Filter{})
	assert.Equal(t, []string{"r1", "r3", "r2", "r0"}, ids(tree.Roots))
	assert.Equal(t, ids(tree.Roots), ids(tree.ChildrenOf[RootBucket]))
}

func TestBuild_ChildrenKeepFilterOrder(t *testing.T) {
	spans := []trace.Span{
		span("root", "", 0, 100),
		span("late", "root", 90, 5),
		span("early", "root", 1, 5),
	}

	tree := Build(spans, Filter{})
	assert.Equal(t, []string{"late", "early"}, ids(tree.Children("root")))
}

func TestBuild_SpanNamedRootDoesNotCollide(t *testing.T) {
	spans := []trace.Span{
		span("root", "", 0, 10),
		span("x", "root", 1, 1),
		span("y", "", 2, 1),
	}

	tree := Build(spans, Filter{})
	assert.Equal(t, []string{"root", "y"}, ids(tree.Roots))
	assert.Equal(t, []string{"x"}, ids(tree.Children("root")))
}

func TestBuild_LimitAppliesAfterFiltering(t *testing.T) {
	spans := []trace.Span{
		span("a", "", 0, 1),
		span("b", "", 1, 1),
		span("c", "", 2, 1),
		span("d", "", 3, 1),
	}
	spans[0].HasError = false
	spans[1].HasError = true
	spans[2].HasError = false
	spans[3].HasError = true

	tree := Build(spans, Filter{ErrorsOnly: true, Limit: 1})
	assert.Equal(t, []string{"b"}, ids(tree.Roots))
}

func TestBuild_SelfParentCycle(t *testing.T) {
	spans := []trace.Span{span("a", "a", 0, 10)}

	tree := Build(spans, Filter{})
	assert.Equal(t, []string{"a"}, ids(tree.Roots))
	assert.Equal(t, 1, tree.Promoted)
	assert.Empty(t, tree.Children("a"))
}

func TestBuild_TwoSpanCycleWithDescendant(t *testing.T) {
	spans := []trace.Span{
		span("leaf", "b", 30, 1),
		span("a", "b", 10, 5),
		span("b", "a", 20, 5),
	}

	tree := Build(spans, Filter{})
	require.Equal(t, 1, tree.Promoted)
	assert.Equal(t, []string{"a"}, ids(tree.Roots), "first cycle member in filter order is promoted")
	assert.Equal(t, []string{"b"}, ids(tree.Children("a")))
	assert.Equal(t, []string{"leaf"}, ids(tree.Children("b")))
	assert.Len(t, Rows(tree, nil), 3)
}

func TestBuild_DuplicateSpanIDsKept(t *testing.T) {
	spans := []trace.Span{
		span("root", "", 0, 100),
		span("dup", "root", 10, 5),
		span("dup", "root", 20, 5),
		span("child", "dup", 12, 1),
	}

	tree := Build(spans, Filter{})
	assert.Equal(t, 4, tree.Len())
	assert.Equal(t, []string{"dup", "dup"}, ids(tree.Children("root")))

	rows := Rows(tree, nil)
	var got []string
	for _, r := range rows {
		got = append(got, r.Span.SpanID)
	}
	assert.Equal(t, []string{"root", "dup", "child", "dup"}, got, "children render under the first occurrence only")
	assert.False(t, rows[3].HasChildren)
}

func TestBuild_Idempotent(t *testing.T) {
	spans := []trace.Span{
		span("a", "", 5, 10),
		span("b", "a", 6, 1),
		span("c", "missing", 1, 1),
		span("d", "b", 7, 1),
	}
	f := Filter{Services: []string{"svc"}}
	assert.Equal(t, Build(spans, f), Build(spans, f))
}

func TestBuild_DoesNotReorderInput(t *testing.T) {
	spans := []trace.Span{span("b", "", 10, 1), span("a", "", 5, 1)}
	_ = Build(spans, Filter{})
	assert.Equal(t, []string{"b", "a"}, ids(spans))
}
