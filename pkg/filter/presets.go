// Relative time range presets for trace list queries
package filter

import (
	"fmt"
	"time"
)

// Preset names a relative time range ending now.
type Preset string

const (
	Preset5m     Preset = "5m"
	Preset10m    Preset = "10m"
	Preset30m    Preset = "30m"
	Preset1h     Preset = "1h"
	Preset6h     Preset = "6h"
	Preset12h    Preset = "12h"
	Preset24h    Preset = "24h"
	PresetCustom Preset = "custom"
)

// FallbackPreset replaces unknown preset names.
const FallbackPreset = Preset5m

type presetInfo struct {
	preset Preset
	label  string
	span   time.Duration
}

var presets = []presetInfo{
	{Preset5m, "Last 5 minutes", 5 * time.Minute},
	{Preset10m, "Last 10 minutes", 10 * time.Minute},
	{Preset30m, "Last 30 minutes", 30 * time.Minute},
	{Preset1h, "Last 1 hour", time.Hour},
	{Preset6h, "Last 6 hours", 6 * time.Hour},
	{Preset12h, "Last 12 hours", 12 * time.Hour},
	{Preset24h, "Last 24 hours", 24 * time.Hour},
	{PresetCustom, "Custom range", 0},
}

// Presets lists the known presets in display order.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p.preset)
	}
	return out
}

func lookupPreset(p Preset) (presetInfo, bool) {
	for _, info := range presets {
		if info.preset == p {
			return info, true
		}
	}
	return presetInfo{}, false
}

// ParsePreset validates a preset name.
func ParsePreset(s string) (Preset, error) {
	if _, ok := lookupPreset(Preset(s)); !ok {
		return "", fmt.Errorf("unknown time range %q (want one of %v)", s, Presets())
	}
	return Preset(s), nil
}

// TimeRange is a preset plus optional absolute bounds in Unix milliseconds.
// Preset ranges carry the bounds they were resolved with; custom ranges
// carry the user's bounds.
type TimeRange struct {
	Preset Preset `json:"preset" yaml:"preset"`
	Start  int64  `json:"startTime,omitempty" yaml:"start,omitempty"`
	End    int64  `json:"endTime,omitempty" yaml:"end,omitempty"`
}

// RangeFromPreset resolves p against now. Custom ranges come back without
// bounds; unknown presets come back as the fallback preset without bounds.
func RangeFromPreset(p Preset, now time.Time) TimeRange {
	if p == PresetCustom {
		return TimeRange{Preset: PresetCustom}
	}
	info, ok := lookupPreset(p)
	if !ok {
		return TimeRange{Preset: FallbackPreset}
	}
	return TimeRange{
		Preset: p,
		Start:  now.Add(-info.span).UnixMilli(),
		End:    now.UnixMilli(),
	}
}

// CustomRange returns a custom range between start and end.
func CustomRange(start, end time.Time) TimeRange {
	return TimeRange{Preset: PresetCustom, Start: start.UnixMilli(), End: end.UnixMilli()}
}

// Resolve returns the absolute bounds of the range at now. Presets always
// end at now; a custom range without both bounds is unbounded (ok is false).
func (r TimeRange) Resolve(now time.Time) (start, end time.Time, ok bool) {
	if r.Preset == PresetCustom {
		if r.Start == 0 || r.End == 0 {
			return time.Time{}, time.Time{}, false
		}
		return time.UnixMilli(r.Start), time.UnixMilli(r.End), true
	}
	info, known := lookupPreset(r.Preset)
	if !known {
		info, _ = lookupPreset(FallbackPreset)
	}
	return now.Add(-info.span), now, true
}

// Contains reports whether a timestamp in microseconds falls in the range at now.
func (r TimeRange) Contains(micros int64, now time.Time) bool {
	start, end, ok := r.Resolve(now)
	if !ok {
		return true
	}
	ms := micros / 1000
	return ms >= start.UnixMilli() && ms <= end.UnixMilli()
}

// Describe returns the human-readable label for the range.
func (r TimeRange) Describe(loc *time.Location) string {
	if r.Preset == PresetCustom {
		if r.Start == 0 || r.End == 0 {
			return "Custom range (not set)"
		}
		if loc == nil {
			loc = time.Local
		}
		layout := "2006-01-02 15:04:05"
		return fmt.Sprintf("%s - %s",
			time.UnixMilli(r.Start).In(loc).Format(layout),
			time.UnixMilli(r.End).In(loc).Format(layout))
	}
	if info, ok := lookupPreset(r.Preset); ok {
		return info.label
	}
	return "Unknown range"
}
