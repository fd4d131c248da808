// Package rules implements the per-MatchingRule comparator semantics of
// spec.md §4.2: equality, regex, type, min/max-type, inclusion, numeric
// kind checks, and timestamp/date/time format checks.
package rules

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/pact-foundation/pact-go/internal/model"
)

// Kind classifies a JSON-ish value the way spec.md §4.2 talks about "JSON
// primitive kind".
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
	KindUnknown
)

// KindOf classifies a decoded JSON value (nil, bool, float64, string,
// map[string]interface{}, []interface{}).
func KindOf(v interface{}) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case float64, int, int64:
		return KindNumber
	case string:
		return KindString
	case map[string]interface{}:
		return KindObject
	case []interface{}:
		return KindArray
	default:
		return KindUnknown
	}
}

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Length reports the codepoint length of a string or the element count of
// an array/object, for MinType/MaxType.
func Length(v interface{}) (int, bool) {
	switch t := v.(type) {
	case string:
		return utf8.RuneCountInString(t), true
	case []interface{}:
		return len(t), true
	case map[string]interface{}:
		return len(t), true
	default:
		return 0, false
	}
}

// Stringify renders a value for regex/Include comparison. Non-strings are
// rendered with fmt, matching how the teacher's term matcher treated
// generated values as strings for regex purposes.
func Stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Check applies a single MatchingRule to (expected, actual) and reports
// whether it is satisfied, plus a human mismatch description when not.
func Check(rule model.MatchingRule, expected, actual interface{}) (bool, string) {
	switch rule.Kind {
	case model.RuleEquality:
		return checkEquality(expected, actual)
	case model.RuleRegex:
		return checkRegex(rule.Pattern, actual)
	case model.RuleType:
		return checkType(expected, actual)
	case model.RuleMinType:
		return checkMinMaxType(expected, actual, rule.Min, -1)
	case model.RuleMaxType:
		return checkMinMaxType(expected, actual, -1, rule.Max)
	case model.RuleInclude:
		return checkInclude(rule.Include, actual)
	case model.RuleInteger:
		return checkKind(actual, isIntegerValue, "integer")
	case model.RuleDecimal:
		return checkKind(actual, isDecimalValue, "decimal")
	case model.RuleNumber:
		return checkKind(actual, func(v interface{}) bool { return KindOf(v) == KindNumber }, "number")
	case model.RuleNull:
		return checkKind(actual, func(v interface{}) bool { return KindOf(v) == KindNull }, "null")
	case model.RuleDate:
		return checkTemporal(rule.Format, actual, "2006-01-02")
	case model.RuleTime:
		return checkTemporal(rule.Format, actual, "15:04:05")
	case model.RuleTimestamp:
		return checkTemporal(rule.Format, actual, time.RFC3339)
	default:
		return checkEquality(expected, actual)
	}
}

func checkEquality(expected, actual interface{}) (bool, string) {
	if deepEqual(expected, actual) {
		return true, ""
	}
	return false, fmt.Sprintf("Expected %v to equal %v", actual, expected)
}

func deepEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !deepEqual(v, bvv) {
				return false
			}
		}
		return true
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// checkRegex applies spec.md §4.2's mandated full-match semantics: the
// pattern is anchored to match the entire stringified value, never a
// substring, regardless of whether the author's pattern itself has anchors.
func checkRegex(pattern string, actual interface{}) (bool, string) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return false, fmt.Sprintf("invalid regex %q: %v", pattern, err)
	}
	s := Stringify(actual)
	if re.MatchString(s) {
		return true, ""
	}
	return false, fmt.Sprintf("Expected %q to match %q", s, pattern)
}

func checkType(expected, actual interface{}) (bool, string) {
	ek, ak := KindOf(expected), KindOf(actual)
	if ek == ak {
		return true, ""
	}
	return false, fmt.Sprintf("Expected %s but got %s", ek, ak)
}

func checkMinMaxType(expected, actual interface{}, min, max int) (bool, string) {
	if ok, msg := checkType(expected, actual); !ok {
		return false, msg
	}
	n, ok := Length(actual)
	if !ok {
		// scalars (numbers/bools) have no length constraint to enforce.
		return true, ""
	}
	if min >= 0 && n < min {
		return false, fmt.Sprintf("Expected length %d to be at least %d", n, min)
	}
	if max >= 0 && n > max {
		return false, fmt.Sprintf("Expected length %d to be at most %d", n, max)
	}
	return true, ""
}

func checkInclude(substr string, actual interface{}) (bool, string) {
	s := Stringify(actual)
	if contains(s, substr) {
		return true, ""
	}
	return false, fmt.Sprintf("Expected %q to include %q", s, substr)
}

func contains(s, substr string) bool {
	if len(substr) == 0 {
		return true
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func checkKind(actual interface{}, pred func(interface{}) bool, want string) (bool, string) {
	if pred(actual) {
		return true, ""
	}
	return false, fmt.Sprintf("Expected a %s value but got %v", want, actual)
}

func isIntegerValue(v interface{}) bool {
	f, ok := v.(float64)
	if !ok {
		return false
	}
	return f == float64(int64(f))
}

func isDecimalValue(v interface{}) bool {
	f, ok := v.(float64)
	if !ok {
		return false
	}
	return f != float64(int64(f))
}

func checkTemporal(format string, actual interface{}, fallback string) (bool, string) {
	s, ok := actual.(string)
	if !ok {
		return false, fmt.Sprintf("Expected a string but got %v", actual)
	}
	layout := format
	if layout == "" {
		layout = fallback
	}
	if _, err := time.Parse(layout, s); err != nil {
		return false, fmt.Sprintf("Expected %q to match format %q: %v", s, layout, err)
	}
	return true, ""
}

// Resolve picks the rule set whose expression has the highest weight for
// concretePath among catalog's entries in cat, per spec.md §4.1: ties break
// by lexical order of the expression string. It returns nil if no rule
// addresses the node (callers fall back to Equality per spec.md §4.3).
func Resolve(catalog model.RuleCatalog, cat model.Category, weightOf func(expr string) int) (model.RuleSet, string) {
	exprs := catalog[cat]
	bestExpr := ""
	bestWeight := -1
	for expr := range exprs {
		w := weightOf(expr)
		if w < 0 {
			continue
		}
		if w > bestWeight || (w == bestWeight && expr < bestExpr) {
			bestWeight = w
			bestExpr = expr
		}
	}
	if bestWeight < 0 {
		return nil, ""
	}
	return exprs[bestExpr], bestExpr
}
