package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/andrewh/clicktrace/pkg/trace"
	"github.com/andrewh/clicktrace/pkg/trace/view"
)

// SVG timeline dimensions
const (
	svgWidth     = 1000
	rowHeight    = 22
	barHeight    = 16
	marginTop    = 56
	marginBottom = 16
	marginLeft   = 10
	marginRight  = 20
	labelWidth   = 320
	indentWidth  = 14
	plotLeft     = labelWidth
	plotWidth    = svgWidth - labelWidth - marginRight
	tickCount    = 4
)

func renderTraceSVG(w io.Writer, tr trace.Trace, rows []view.Row, tl view.Timeline) error {
	sum := trace.Summarize(tr)
	height := marginTop + max(len(rows), 1)*rowHeight + marginBottom

	var b strings.Builder
	b.WriteString(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" width="%d" height="%d">`, svgWidth, height, svgWidth, height))
	b.WriteString("\n<style>\n")
	b.WriteString("  text { font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; fill: #333; }\n")
	b.WriteString("  .title { font-size: 14px; font-weight: 600; }\n")
	b.WriteString("  .label { font-size: 11px; }\n")
	b.WriteString("  .service { font-size: 10px; fill: #666; }\n")
	b.WriteString("  .tick-label { font-size: 10px; fill: #666; }\n")
	b.WriteString("  .grid { stroke: #e0e0e0; stroke-width: 1; }\n")
	b.WriteString("  .duration { font-size: 10px; }\n")
	b.WriteString("</style>\n")

	b.WriteString(fmt.Sprintf(`<rect width="%d" height="%d" fill="white"/>`, svgWidth, height))
	b.WriteString("\n")

	title := fmt.Sprintf("%s (%s, %s)", sum.Name, tr.TraceID, trace.FormatDuration(sum.Duration))
	b.WriteString(fmt.Sprintf(`<text x="%d" y="22" class="title">%s</text>`, marginLeft, xmlEscape(title)))
	b.WriteString("\n")

	// Grid lines and elapsed-time ticks
	for i := 0; i <= tickCount; i++ {
		x := plotLeft + i*plotWidth/tickCount
		b.WriteString(fmt.Sprintf(`<line x1="%d" y1="%d" x2="%d" y2="%d" class="grid"/>`, x, marginTop-8, x, height-marginBottom))
		b.WriteString("\n")
		elapsed := tl.Duration() * int64(i) / tickCount
		b.WriteString(fmt.Sprintf(`<text x="%d" y="%d" text-anchor="middle" class="tick-label">%s</text>`, x, marginTop-12, trace.FormatDuration(elapsed)))
		b.WriteString("\n")
	}

	if len(rows) == 0 {
		b.WriteString(fmt.Sprintf(`<text x="%d" y="%d" class="label">No spans match the filter</text>`, marginLeft, marginTop+14))
		b.WriteString("\n")
	}

	for i, r := range rows {
		y := marginTop + i*rowHeight
		g := tl.Geometry(r.Span)

		labelX := marginLeft + r.Depth*indentWidth
		b.WriteString(fmt.Sprintf(`<text x="%d" y="%d" class="label">%s <tspan class="service">%s</tspan></text>`,
			labelX, y+14, xmlEscape(r.Span.OperationName), xmlEscape(r.Span.ServiceName)))
		b.WriteString("\n")

		barX := float64(plotLeft) + float64(plotWidth)*g.LeftPercent/100
		barW := max(float64(plotWidth)*g.WidthPercent/100, 1)
		fill := trace.SpanColor(r.Span)
		b.WriteString(fmt.Sprintf(`<rect x="%.1f" y="%d" width="%.1f" height="%d" rx="2" fill="%s"><title>%s</title></rect>`,
			barX, y+3, barW, barHeight, fill, xmlEscape(r.Span.SpanID)))
		b.WriteString("\n")

		// Label inside the bar when it fits, otherwise after it
		duration := trace.FormatDuration(r.Span.Duration)
		textX, textFill := barX+barW+4, "#333"
		if barW > float64(len(duration)*7+8) {
			textX, textFill = barX+4, trace.ContrastColor(fill)
		}
		b.WriteString(fmt.Sprintf(`<text x="%.1f" y="%d" class="duration" fill="%s" style="fill:%s">%s</text>`,
			textX, y+15, textFill, textFill, duration))
		b.WriteString("\n")
	}

	b.WriteString("</svg>\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func xmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}
