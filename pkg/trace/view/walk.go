// Depth-first traversal of the displayed tree in row order
package view

import "github.com/andrewh/clicktrace/pkg/trace"

// Row is one visible line of the tree.
type Row struct {
	Span        trace.Span
	Depth       int
	HasChildren bool
	Expanded    bool
}

// Walk calls fn for each visible row of t in display order: a span, then its
// children when expanded. A nil expansion shows everything. Returning false
// from fn stops the walk. A span ID's children are listed once, under its
// first visible occurrence, so duplicate IDs cannot repeat or loop.
func Walk(t *Tree, e *Expansion, fn func(Row) bool) {
	if t == nil {
		return
	}

	type frame struct {
		span  trace.Span
		depth int
	}
	stack := make([]frame, 0, len(t.Roots))
	for i := len(t.Roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{span: t.Roots[i]})
	}

	opened := make(map[string]bool)
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		id := f.span.SpanID
		children := t.Children(id)
		if opened[id] {
			children = nil
		}
		expanded := e == nil || e.IsExpanded(id)
		row := Row{
			Span:        f.span,
			Depth:       f.depth,
			HasChildren: len(children) > 0,
			Expanded:    expanded && len(children) > 0,
		}
		if !fn(row) {
			return
		}
		if !row.Expanded {
			continue
		}
		opened[id] = true
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{span: children[i], depth: f.depth + 1})
		}
	}
}

// Rows collects the visible rows of t.
func Rows(t *Tree, e *Expansion) []Row {
	var rows []Row
	Walk(t, e, func(r Row) bool {
		rows = append(rows, r)
		return true
	})
	return rows
}
