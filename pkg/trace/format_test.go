// Unit tests for display formatting helpers
package trace

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0μs", FormatDuration(0))
	assert.Equal(t, "850μs", FormatDuration(850))
	assert.Equal(t, "1.50ms", FormatDuration(1500))
	assert.Equal(t, "999.99ms", FormatDuration(999_990))
	assert.Equal(t, "2.00s", FormatDuration(2_000_000))
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 678_901_000, time.UTC)
	assert.Equal(t, "2024-01-02.03:04:05:678", FormatTimestamp(ts.UnixMicro(), time.UTC))
}

func TestServiceColor(t *testing.T) {
	hex := regexp.MustCompile(`^#[0-9a-f]{6}$`)

	assert.Equal(t, "#d22d2d", ServiceColor(""), "empty name hashes to hue 0")
	for _, name := range []string{"gateway", "user-service", "postgres", "サービス"} {
		c := ServiceColor(name)
		assert.Regexp(t, hex, c)
		assert.Equal(t, c, ServiceColor(name), "colour must be stable")
	}
	assert.NotEqual(t, ServiceColor("gateway"), ServiceColor("postgres"))
}

func TestSpanColor(t *testing.T) {
	s := Span{ServiceName: "gateway"}
	assert.Equal(t, ServiceColor("gateway"), SpanColor(s))
	s.HasError = true
	assert.Equal(t, ErrorColor, SpanColor(s))
}

func TestContrastColor(t *testing.T) {
	assert.Equal(t, "#111827", ContrastColor("#ffffff"))
	assert.Equal(t, "#ffffff", ContrastColor("#000000"))
	assert.Equal(t, "#ffffff", ContrastColor("#f87171"))
	assert.Equal(t, "#111827", ContrastColor("not-a-colour"))
}
