// Tag conditions for trace queries
// Parses key==value style expressions and evaluates them against span tags
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/andrewh/clicktrace/pkg/trace"
)

// Operator compares a tag value with a condition value.
type Operator string

const (
	OpEqual    Operator = "=="
	OpNotEqual Operator = "!="
	OpMatch    Operator = "=~"
	OpNotMatch Operator = "!~"
)

// parseOrder is the order operators are looked for in a token, so that
// "a=~b" is never read as an equality on "a=" or similar.
var parseOrder = []Operator{OpMatch, OpEqual, OpNotEqual, OpNotMatch}

// Condition is a single tag predicate such as http.method==GET.
type Condition struct {
	Key      string   `json:"key" yaml:"key"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    string   `json:"value" yaml:"value"`
}

// String renders the condition in its query syntax.
func (c Condition) String() string {
	return c.Key + string(c.Operator) + c.Value
}

// ParseCondition parses one key<op>value token.
func ParseCondition(token string) (Condition, error) {
	for _, op := range parseOrder {
		key, value, found := strings.Cut(token, string(op))
		if found {
			if key == "" {
				return Condition{}, fmt.Errorf("condition %q: missing key", token)
			}
			return Condition{Key: key, Operator: op, Value: value}, nil
		}
	}
	return Condition{}, fmt.Errorf("condition %q: expected one of ==, !=, =~, !~", token)
}

// ParseConditions splits a space-separated condition string. Tokens without
// an operator are skipped.
func ParseConditions(s string) []Condition {
	var out []Condition
	for _, token := range strings.Fields(s) {
		c, err := ParseCondition(token)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out
}

// FormatConditions renders conditions back into the space-separated syntax.
func FormatConditions(conds []Condition) string {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, " ")
}

// Matcher evaluates a compiled condition. A missing tag reads as the empty string.
type Matcher struct {
	cond Condition
	re   *regexp.Regexp
}

// Compile validates c and prepares its regular expression, if any.
func (c Condition) Compile() (Matcher, error) {
	m := Matcher{cond: c}
	switch c.Operator {
	case OpEqual, OpNotEqual:
	case OpMatch, OpNotMatch:
		re, err := regexp.Compile(c.Value)
		if err != nil {
			return Matcher{}, fmt.Errorf("condition %q: %w", c.String(), err)
		}
		m.re = re
	default:
		return Matcher{}, fmt.Errorf("condition %q: unsupported operator %q", c.String(), c.Operator)
	}
	return m, nil
}

// CompileAll compiles every condition, stopping at the first error.
func CompileAll(conds []Condition) ([]Matcher, error) {
	out := make([]Matcher, 0, len(conds))
	for _, c := range conds {
		m, err := c.Compile()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Match evaluates the condition against a span's tags.
func (m Matcher) Match(tags []trace.KeyValue) bool {
	value := ""
	for _, kv := range tags {
		if kv.Key == m.cond.Key {
			value = kv.Value
			break
		}
	}
	switch m.cond.Operator {
	case OpEqual:
		return value == m.cond.Value
	case OpNotEqual:
		return value != m.cond.Value
	case OpMatch:
		return m.re.MatchString(value)
	case OpNotMatch:
		return !m.re.MatchString(value)
	}
	return false
}

// MatchAll reports whether every matcher accepts tags.
func MatchAll(matchers []Matcher, tags []trace.KeyValue) bool {
	for _, m := range matchers {
		if !m.Match(tags) {
			return false
		}
	}
	return true
}
