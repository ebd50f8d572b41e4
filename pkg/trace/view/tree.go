// Display tree reconstruction from filtered span lists
// Spans whose parent did not survive filtering are promoted to roots
package view

import (
	"slices"

	"github.com/andrewh/clicktrace/pkg/trace"
)

// RootBucket is the ChildrenOf key holding the root spans. An empty parent
// ID always means "no parent", so no real span can be filed under it.
const RootBucket = ""

// Tree is the displayed span forest for one filter pass.
// It is rebuilt on every filter change and never mutated afterwards.
type Tree struct {
	// Roots are sorted by start time; ties keep filter order.
	Roots []trace.Span
	// ChildrenOf maps a parent span ID to its children in filter order.
	// ChildrenOf[RootBucket] holds the same slice as Roots.
	ChildrenOf map[string][]trace.Span
	// Promoted counts spans lifted to the root bucket to break parent cycles.
	Promoted int
}

// Children returns the displayed children of the span with the given ID.
func (t *Tree) Children(spanID string) []trace.Span {
	if t == nil || spanID == RootBucket {
		return nil
	}
	return t.ChildrenOf[spanID]
}

// Len returns the number of spans in the tree.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, children := range t.ChildrenOf {
		n += len(children)
	}
	return n
}

// Build filters spans and arranges the survivors into a forest. Every span
// that passes f appears exactly once in ChildrenOf: under its parent when the
// parent also passed, under RootBucket otherwise.
func Build(spans []trace.Span, f Filter) *Tree {
	kept := f.Apply(spans)

	ids := make(map[string]bool, len(kept))
	for _, s := range kept {
		ids[s.SpanID] = true
	}

	buckets := make([]string, len(kept))
	for i, s := range kept {
		if s.HasParent() && ids[s.ParentSpanID] {
			buckets[i] = s.ParentSpanID
		} else {
			buckets[i] = RootBucket
		}
	}

	promoted := breakCycles(kept, buckets)

	childrenOf := make(map[string][]trace.Span)
	for i, s := range kept {
		childrenOf[buckets[i]] = append(childrenOf[buckets[i]], s)
	}

	roots := childrenOf[RootBucket]
	slices.SortStableFunc(roots, func(a, b trace.Span) int {
		switch {
		case a.StartTime < b.StartTime:
			return -1
		case a.StartTime > b.StartTime:
			return 1
		}
		return 0
	})
	if roots == nil {
		roots = []trace.Span{}
	}

	return &Tree{
		Roots:      roots,
		ChildrenOf: childrenOf,
		Promoted:   promoted,
	}
}

// breakCycles rewrites buckets so that every span is reachable from the
// root bucket. Spans caught in a parent cycle (A→B→A, or a span naming
// itself) can never be reached; for each such cycle the member that came
// first in filter order is moved to the root bucket.
func breakCycles(spans []trace.Span, buckets []string) int {
	byParent := make(map[string][]int)
	firstWithID := make(map[string]int, len(spans))
	for i, s := range spans {
		byParent[buckets[i]] = append(byParent[buckets[i]], i)
		if _, ok := firstWithID[s.SpanID]; !ok {
			firstWithID[s.SpanID] = i
		}
	}

	reached := make([]bool, len(spans))
	opened := make(map[string]bool)
	var stack []int
	visit := func(from []int) {
		stack = append(stack, from...)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if reached[i] {
				continue
			}
			reached[i] = true
			id := spans[i].SpanID
			if id == RootBucket || opened[id] {
				continue
			}
			opened[id] = true
			stack = append(stack, byParent[id]...)
		}
	}
	visit(byParent[RootBucket])

	promoted := 0
	for start := range spans {
		if reached[start] {
			continue
		}
		// Walk up from an unreached span until a span repeats; the repeat
		// closes the cycle that starves this subtree.
		onPath := make(map[int]int)
		path := []int{}
		i := start
		for {
			if _, seen := onPath[i]; seen {
				break
			}
			onPath[i] = len(path)
			path = append(path, i)
			i = firstWithID[buckets[i]]
		}
		cycle := path[onPath[i]:]
		pick := slices.Min(cycle)

		buckets[pick] = RootBucket
		promoted++
		visit([]int{pick})
	}
	return promoted
}
