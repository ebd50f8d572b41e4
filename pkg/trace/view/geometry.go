// Timeline geometry for proportional span bars
package view

import "github.com/andrewh/clicktrace/pkg/trace"

// MinWidthPercent keeps zero-length spans visible.
const MinWidthPercent = 0.5

// Timeline is a trace's overall time window in microseconds. It is computed
// from the unfiltered span set so the axis does not move when filters change.
type Timeline struct {
	Start int64
	End   int64
}

// Geometry positions one span bar as percentages of the timeline width.
type Geometry struct {
	LeftPercent  float64
	WidthPercent float64
}

// NewTimeline spans the earliest start to the latest end of spans.
func NewTimeline(spans []trace.Span) Timeline {
	if len(spans) == 0 {
		return Timeline{}
	}
	tl := Timeline{Start: spans[0].StartTime, End: spans[0].End()}
	for _, s := range spans[1:] {
		tl.Start = min(tl.Start, s.StartTime)
		tl.End = max(tl.End, s.End())
	}
	return tl
}

// Duration returns the window length in microseconds.
func (tl Timeline) Duration() int64 {
	return tl.End - tl.Start
}

// Degenerate reports whether the window has no width.
func (tl Timeline) Degenerate() bool {
	return tl.End <= tl.Start
}

// Geometry places s on the timeline. A degenerate window places every span
// at offset 0 with full width.
func (tl Timeline) Geometry(s trace.Span) Geometry {
	if tl.Degenerate() {
		return Geometry{LeftPercent: 0, WidthPercent: 100}
	}
	total := float64(tl.Duration())
	return Geometry{
		LeftPercent:  float64(s.StartTime-tl.Start) / total * 100,
		WidthPercent: max(float64(s.Duration)/total*100, MinWidthPercent),
	}
}
