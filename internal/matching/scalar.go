// Package matching implements the scalar matchers of spec.md §4.5 (method,
// path, status, headers, query) and the top-level interaction selector of
// §4.7 (MatchRequest/MatchResponse), the two entry points external
// collaborators call.
package matching

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pact-foundation/pact-go/internal/model"
	"github.com/pact-foundation/pact-go/internal/rules"
)

// ruleFor resolves the single highest-weight rule set for a root-level
// scalar path (e.g. "$.path", "$.status"): such paths have no concrete
// segments beyond root, so any catalog entry under that category addresses
// them equally; the first rule list found wins (there is normally at most
// one entry per category for these roots).
func ruleFor(catalog model.RuleCatalog, cat model.Category) model.RuleSet {
	exprs := catalog[cat]
	for _, rs := range exprs {
		if len(rs) > 0 {
			return rs
		}
	}
	return nil
}

// matchMethod compares methods uppercased (spec.md §4.5).
func matchMethod(expected, actual string) bool {
	return strings.EqualFold(expected, actual)
}

// matchPath applies a "$.path" rule when present, otherwise byte equality.
func matchPath(catalog model.RuleCatalog, expected, actual string) (bool, model.Mismatch) {
	ruleSet := ruleFor(catalog, model.CategoryPath)
	if len(ruleSet) == 0 {
		if expected == actual {
			return true, model.Mismatch{}
		}
		return false, model.Mismatch{
			Location: model.MismatchPath,
			Expected: expected,
			Actual:   actual,
			Message:  "Expected path " + actual + " to equal " + expected,
		}
	}
	for _, r := range ruleSet {
		if ok, msg := rules.Check(r, expected, actual); !ok {
			return false, model.Mismatch{
				Location: model.MismatchPath,
				Expected: expected,
				Actual:   actual,
				Message:  msg,
			}
		}
	}
	return true, model.Mismatch{}
}

// matchStatus is integer equality unless a rule targets "$.status".
func matchStatus(catalog model.RuleCatalog, expected, actual int) (bool, model.Mismatch) {
	ruleSet := ruleFor(catalog, model.CategoryStatus)
	if len(ruleSet) == 0 {
		if expected == actual {
			return true, model.Mismatch{}
		}
		return false, model.Mismatch{
			Location: model.MismatchStatus,
			Expected: itoa(expected),
			Actual:   itoa(actual),
			Message:  "Expected status " + itoa(actual) + " to equal " + itoa(expected),
		}
	}
	for _, r := range ruleSet {
		if ok, msg := rules.Check(r, float64(expected), float64(actual)); !ok {
			return false, model.Mismatch{
				Location: model.MismatchStatus,
				Expected: itoa(expected),
				Actual:   itoa(actual),
				Message:  msg,
			}
		}
	}
	return true, model.Mismatch{}
}

// matchHeaders compares headers case-insensitively; multi-value headers
// have surrounding comma whitespace normalized. Content-Type equality
// compares media type and parameters per spec.md §4.5 and §9.
func matchHeaders(catalog model.RuleCatalog, expected, actual model.Headers) []model.Mismatch {
	var out []model.Mismatch
	for _, key := range expected.Keys() {
		expVal, _ := expected.Get(key)
		actVal, present := actual.Get(key)
		if !present {
			out = append(out, model.Mismatch{
				Location: model.MismatchHeader,
				Key:      key,
				Expected: expVal,
				Message:  "Expected header '" + key + "' but was missing",
			})
			continue
		}
		if ok, msg := matchHeaderValue(catalog, key, expVal, actVal); !ok {
			out = append(out, model.Mismatch{
				Location: model.MismatchHeader,
				Key:      key,
				Expected: expVal,
				Actual:   actVal,
				Message:  msg,
			})
		}
	}
	return out
}

func matchHeaderValue(catalog model.RuleCatalog, key, expected, actual string) (bool, string) {
	if strings.EqualFold(key, "content-type") {
		return matchContentType(expected, actual)
	}
	exprs := catalog[model.CategoryHeader]
	if rs, ok := exprs["$.headers."+key]; ok && len(rs) > 0 {
		for _, r := range rs {
			if ok, msg := rules.Check(r, expected, actual); !ok {
				return false, msg
			}
		}
		return true, ""
	}
	return normalizeMultiValue(expected) == normalizeMultiValue(actual), "Expected header " + key + "=" + actual + " to equal " + expected
}

func normalizeMultiValue(v string) string {
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, ", ")
}

// matchContentType parses media type and parameters separately per spec.md
// §9's recommendation: parameter-insensitive on the media type, equality
// on the parameter bag.
func matchContentType(expected, actual string) (bool, string) {
	eMedia, eParams := parseMediaType(expected)
	aMedia, aParams := parseMediaType(actual)
	if !strings.EqualFold(eMedia, aMedia) {
		return false, "Expected content type " + actual + " to equal " + expected
	}
	if len(eParams) != len(aParams) {
		return false, "Expected content type parameters " + actual + " to equal " + expected
	}
	for k, v := range eParams {
		if aParams[k] != v {
			return false, "Expected content type parameters " + actual + " to equal " + expected
		}
	}
	return true, ""
}

func parseMediaType(v string) (string, map[string]string) {
	parts := strings.Split(v, ";")
	media := strings.TrimSpace(parts[0])
	params := map[string]string{}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		params[strings.ToLower(strings.TrimSpace(kv[0]))] = strings.Trim(strings.TrimSpace(kv[1]), `"`)
	}
	return media, params
}

// matchQuery compares a query multi-map; default is order-sensitive within
// a name, overridable per-value by a "$.query.<name>" rule.
func matchQuery(catalog model.RuleCatalog, expected, actual model.Query) []model.Mismatch {
	names := make([]string, 0, len(expected))
	for name := range expected {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []model.Mismatch
	for _, name := range names {
		expVals := expected[name]
		actVals, present := actual[name]
		if !present {
			out = append(out, model.Mismatch{
				Location: model.MismatchQuery,
				Key:      name,
				Expected: strings.Join(expVals, ","),
				Message:  "Expected query parameter '" + name + "' but was missing",
			})
			continue
		}
		ruleSet := catalog[model.CategoryQuery]["$.query."+name]
		if len(ruleSet) == 0 {
			if !equalStrings(expVals, actVals) {
				out = append(out, model.Mismatch{
					Location: model.MismatchQuery,
					Key:      name,
					Expected: strings.Join(expVals, ","),
					Actual:   strings.Join(actVals, ","),
					Message:  "Expected query parameter '" + name + "' to equal " + strings.Join(expVals, ","),
				})
			}
			continue
		}
		n := len(expVals)
		if len(actVals) < n {
			n = len(actVals)
		}
		for i := 0; i < n; i++ {
			for _, r := range ruleSet {
				if ok, msg := rules.Check(r, expVals[i], actVals[i]); !ok {
					out = append(out, model.Mismatch{
						Location: model.MismatchQuery,
						Key:      name,
						Expected: expVals[i],
						Actual:   actVals[i],
						Message:  msg,
					})
				}
			}
		}
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
