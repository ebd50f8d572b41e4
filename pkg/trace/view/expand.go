// Expand/collapse state for the displayed tree
package view

// Expansion is the set of span IDs whose children are shown.
// It belongs to the presenter and survives tree rebuilds.
type Expansion struct {
	ids map[string]struct{}
}

// NewExpansion returns an expansion with the given spans expanded.
func NewExpansion(spanIDs ...string) *Expansion {
	e := &Expansion{ids: make(map[string]struct{}, len(spanIDs))}
	for _, id := range spanIDs {
		e.ids[id] = struct{}{}
	}
	return e
}

// EnsureDefault expands exactly the roots of t when nothing is expanded yet.
// It reports whether it changed the state.
func (e *Expansion) EnsureDefault(t *Tree) bool {
	if e == nil || e.Len() > 0 || t == nil || len(t.Roots) == 0 {
		return false
	}
	for _, s := range t.Roots {
		e.Expand(s.SpanID)
	}
	return true
}

// IsExpanded reports whether spanID is expanded.
func (e *Expansion) IsExpanded(spanID string) bool {
	if e == nil {
		return false
	}
	_, ok := e.ids[spanID]
	return ok
}

// Expand marks spanID as expanded. It is a no-op on a nil Expansion.
func (e *Expansion) Expand(spanID string) {
	if e == nil {
		return
	}
	if e.ids == nil {
		e.ids = make(map[string]struct{})
	}
	e.ids[spanID] = struct{}{}
}

// Collapse marks spanID as collapsed.
func (e *Expansion) Collapse(spanID string) {
	if e == nil {
		return
	}
	delete(e.ids, spanID)
}

// Toggle flips spanID and returns its new state. A nil Expansion stays
// empty and reports false.
func (e *Expansion) Toggle(spanID string) bool {
	if e == nil {
		return false
	}
	if e.IsExpanded(spanID) {
		e.Collapse(spanID)
		return false
	}
	e.Expand(spanID)
	return true
}

// ExpandAll expands every span in t that has children.
func (e *Expansion) ExpandAll(t *Tree) {
	if e == nil || t == nil {
		return
	}
	for id, children := range t.ChildrenOf {
		if id != RootBucket && len(children) > 0 {
			e.Expand(id)
		}
	}
}

// Len returns the number of expanded spans.
func (e *Expansion) Len() int {
	if e == nil {
		return 0
	}
	return len(e.ids)
}
