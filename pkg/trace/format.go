// Display helpers for durations, timestamps and per-service colours
package trace

import (
	"fmt"
	"math"
	"strconv"
	"time"
	"unicode/utf16"
)

// ErrorColor is used for any span with an error signal.
const ErrorColor = "#f87171"

// FormatDuration renders a microsecond duration as μs, ms or s.
func FormatDuration(micros int64) string {
	switch {
	case micros < 1000:
		return fmt.Sprintf("%dμs", micros)
	case micros < 1_000_000:
		return fmt.Sprintf("%.2fms", float64(micros)/1000)
	default:
		return fmt.Sprintf("%.2fs", float64(micros)/1_000_000)
	}
}

// FormatTimestamp renders microseconds since the epoch in loc as
// 2006-01-02.15:04:05:000 (millisecond precision). A nil loc means local time.
func FormatTimestamp(micros int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	t := time.UnixMicro(micros).In(loc)
	return fmt.Sprintf("%s:%03d", t.Format("2006-01-02.15:04:05"), t.Nanosecond()/int(time.Millisecond))
}

// SpanColor returns ErrorColor for failed spans and the service colour otherwise.
func SpanColor(s Span) string {
	if s.HasError {
		return ErrorColor
	}
	return ServiceColor(s.ServiceName)
}

// ServiceColor derives a stable #rrggbb colour from a service name.
func ServiceColor(service string) string {
	var hash int32
	for _, c := range utf16.Encode([]rune(service)) {
		hash = (hash << 5) - hash + int32(c)
	}
	h := int64(hash)
	if h < 0 {
		h = -h
	}
	hue := float64(h % 360)
	saturation := float64(65 + h%20)
	lightness := float64(50 + h%15)
	return hslToHex(hue, saturation, lightness)
}

func hslToHex(h, s, l float64) string {
	s /= 100
	l /= 100
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	channel := func(v float64) int { return int(math.Floor((v+m)*255 + 0.5)) }
	return fmt.Sprintf("#%02x%02x%02x", channel(r), channel(g), channel(b))
}

// ContrastColor picks dark or white text for a #rrggbb background.
func ContrastColor(hex string) string {
	if len(hex) == 7 && hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 {
		return "#111827"
	}
	r, errR := strconv.ParseUint(hex[0:2], 16, 8)
	g, errG := strconv.ParseUint(hex[2:4], 16, 8)
	b, errB := strconv.ParseUint(hex[4:6], 16, 8)
	if errR != nil || errG != nil || errB != nil {
		return "#111827"
	}
	brightness := float64(r*299+g*587+b*114) / 1000
	if brightness > 160 {
		return "#111827"
	}
	return "#ffffff"
}
