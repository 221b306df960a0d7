package engine

import (
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-version"

	"toggle-client/pkg/toggle"
)

// constraintsMatch ANDs every constraint. An empty list matches.
func constraintsMatch(cs []toggle.Constraint, ctx *toggle.Context) bool {
	for i := range cs {
		if !constraintMatches(&cs[i], ctx) {
			return false
		}
	}
	return true
}

// constraintMatches evaluates one constraint. A missing context field
// fails the constraint regardless of Inverted.
func constraintMatches(c *toggle.Constraint, ctx *toggle.Context) bool {
	v, ok := ctx.Field(c.ContextName)
	if !ok {
		return false
	}
	return apply(c, v) != c.Inverted
}

func apply(c *toggle.Constraint, v string) bool {
	switch c.Operator {
	case toggle.OpIn:
		return contains(c.Values, v)
	case toggle.OpNotIn:
		return !contains(c.Values, v)
	case toggle.OpStrContains:
		return anyString(c, v, strings.Contains)
	case toggle.OpStrStartsWith:
		return anyString(c, v, strings.HasPrefix)
	case toggle.OpStrEndsWith:
		return anyString(c, v, strings.HasSuffix)
	case toggle.OpNumEq, toggle.OpNumGt, toggle.OpNumGte, toggle.OpNumLt, toggle.OpNumLte:
		return compareNumbers(c.Operator, v, single(c))
	case toggle.OpDateAfter, toggle.OpDateBefore:
		return compareDates(c.Operator, v, single(c))
	case toggle.OpSemverEq, toggle.OpSemverGt, toggle.OpSemverLt:
		return compareVersions(c.Operator, v, single(c))
	}
	return false
}

// single returns the operand of a single-value operator. Older servers
// send it as the only entry of Values.
func single(c *toggle.Constraint) string {
	if c.Value != "" || len(c.Values) == 0 {
		return c.Value
	}
	return c.Values[0]
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func anyString(c *toggle.Constraint, v string, match func(s, substr string) bool) bool {
	if c.CaseInsensitive {
		v = strings.ToLower(v)
	}
	for _, s := range c.Values {
		if c.CaseInsensitive {
			s = strings.ToLower(s)
		}
		if match(v, s) {
			return true
		}
	}
	return false
}

func compareNumbers(op toggle.Operator, raw, operand string) bool {
	a, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return false
	}
	b, err := strconv.ParseFloat(strings.TrimSpace(operand), 64)
	if err != nil {
		return false
	}
	switch op {
	case toggle.OpNumEq:
		return a == b
	case toggle.OpNumGt:
		return a > b
	case toggle.OpNumGte:
		return a >= b
	case toggle.OpNumLt:
		return a < b
	case toggle.OpNumLte:
		return a <= b
	}
	return false
}

func compareDates(op toggle.Operator, raw, operand string) bool {
	a, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return false
	}
	b, err := time.Parse(time.RFC3339Nano, operand)
	if err != nil {
		return false
	}
	if op == toggle.OpDateAfter {
		return a.After(b)
	}
	return a.Before(b)
}

func compareVersions(op toggle.Operator, raw, operand string) bool {
	a, err := version.NewSemver(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	b, err := version.NewSemver(strings.TrimSpace(operand))
	if err != nil {
		return false
	}
	switch op {
	case toggle.OpSemverEq:
		return a.Equal(b)
	case toggle.OpSemverGt:
		return a.GreaterThan(b)
	case toggle.OpSemverLt:
		return a.LessThan(b)
	}
	return false
}
