// Saved trace list filter criteria and their defaults
package filter

import (
	"slices"
	"time"
)

// DefaultLimit is the number of traces requested when no limit is saved.
const DefaultLimit = 20

// DefaultPreset is the time range used when none is saved.
const DefaultPreset = Preset24h

// Criteria is the trace list filter persisted per session.
type Criteria struct {
	Service   string      `json:"service" yaml:"service"`
	Operation string      `json:"operation" yaml:"operation"`
	Tags      []Condition `json:"tags" yaml:"tags"`
	TimeRange TimeRange   `json:"timeRange" yaml:"time_range"`
	Limit     int         `json:"limit" yaml:"limit"`
	HasError  bool        `json:"hasError" yaml:"has_error"`
}

// Default returns the criteria used when nothing valid is saved: any service
// and operation, no tags, the last 24 hours, 20 results, errors included.
func Default(now time.Time) Criteria {
	return Criteria{
		Tags:      []Condition{},
		TimeRange: RangeFromPreset(DefaultPreset, now),
		Limit:     DefaultLimit,
	}
}

// Sanitize repairs partially saved criteria: a missing time range becomes
// the default preset, nil tags become empty and a non-positive limit
// becomes DefaultLimit.
func (c Criteria) Sanitize(now time.Time) Criteria {
	if c.TimeRange.Preset == "" {
		c.TimeRange = RangeFromPreset(DefaultPreset, now)
	}
	if c.Tags == nil {
		c.Tags = []Condition{}
	}
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	return c
}

// WithService switches to service, clearing the operation when it is not
// among the new service's operations.
func (c Criteria) WithService(service string, operations []string) Criteria {
	if c.Operation != "" && (service == "" || !slices.Contains(operations, c.Operation)) {
		c.Operation = ""
	}
	c.Service = service
	return c
}

// WithTag appends a tag condition, ignoring blank keys or values.
func (c Criteria) WithTag(cond Condition) Criteria {
	if cond.Key == "" || cond.Value == "" {
		return c
	}
	c.Tags = append(slices.Clone(c.Tags), cond)
	return c
}

// WithoutTag removes the tag condition at index i.
func (c Criteria) WithoutTag(i int) Criteria {
	if i < 0 || i >= len(c.Tags) {
		return c
	}
	c.Tags = slices.Delete(slices.Clone(c.Tags), i, i+1)
	return c
}

// Active reports whether any filter differs from the defaults.
func (c Criteria) Active() bool {
	return c.Service != "" ||
		c.Operation != "" ||
		len(c.Tags) > 0 ||
		c.TimeRange.Preset != DefaultPreset ||
		c.HasError
}
