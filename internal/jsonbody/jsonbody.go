// Package jsonbody implements the JSON body matcher of spec.md §4.3: a
// recursive comparison of expected and actual JSON trees, directed by a
// RuleCatalog, that emits one BodyMismatch per leaf disagreement.
package jsonbody

import (
	"encoding/json"
	"strconv"

	"github.com/pact-foundation/pact-go/internal/model"
	"github.com/pact-foundation/pact-go/internal/pathexpr"
	"github.com/pact-foundation/pact-go/internal/rules"
)

// Match compares expected against actual under catalog's "body" category.
// A single MismatchBodyType entry is returned when actual fails to parse as
// JSON at all; callers are expected to have already checked
// DetectedContentType before calling this.
func Match(catalog model.RuleCatalog, expected, actual model.OptionalBody) []model.Mismatch {
	if !expected.IsPresent() {
		// Nothing templated: any actual body (or lack of one) is fine.
		return nil
	}
	if !actual.IsPresent() {
		return []model.Mismatch{{
			Location: model.MismatchBody,
			Path:     "/",
			Expected: string(expected.Value),
			Message:  "Expected body '" + string(expected.Value) + "' but was missing",
		}}
	}

	var expVal, actVal interface{}
	if err := json.Unmarshal(expected.Value, &expVal); err != nil {
		return nil // malformed expected body cannot drive matching; treated as no constraint
	}
	if err := json.Unmarshal(actual.Value, &actVal); err != nil {
		return []model.Mismatch{{
			Location: model.MismatchBodyType,
			Expected: string(expected.Value),
			Actual:   string(actual.Value),
			Message:  "actual body is not valid JSON",
		}}
	}

	m := &matcher{catalog: catalog}
	var mismatches []model.Mismatch
	m.compare(nil, expVal, actVal, &mismatches)
	return mismatches
}

type matcher struct {
	catalog model.RuleCatalog
}

func (m *matcher) weightOf(expr string, concretePath []pathexpr.Segment) int {
	return pathexpr.Weight(pathexpr.Compile(expr), concretePath)
}

func (m *matcher) ruleSetFor(path []pathexpr.Segment) (model.RuleSet, string) {
	return rules.Resolve(m.catalog, model.CategoryBody, func(expr string) int {
		return m.weightOf(expr, path)
	})
}

func (m *matcher) compare(path []pathexpr.Segment, expected, actual interface{}, out *[]model.Mismatch) {
	ruleSet, _ := m.ruleSetFor(path)

	if expObj, ok := expected.(map[string]interface{}); ok {
		m.compareObject(path, expObj, actual, ruleSet, out)
		return
	}
	if expArr, ok := expected.([]interface{}); ok {
		m.compareArray(path, expArr, actual, ruleSet, out)
		return
	}
	m.compareScalar(path, expected, actual, ruleSet, out)
}

// appliesArrayStyleKindCheck reports whether ruleSet contains a rule whose
// kind switches array/object policy to "kind-check only" (Type/MinType/
// MaxType), per spec.md §4.3.
func appliesArrayStyleKindCheck(ruleSet model.RuleSet) bool {
	for _, r := range ruleSet {
		if r.Kind == model.RuleType || r.Kind == model.RuleMinType || r.Kind == model.RuleMaxType {
			return true
		}
	}
	return false
}

func (m *matcher) compareObject(path []pathexpr.Segment, expected map[string]interface{}, actual interface{}, ruleSet model.RuleSet, out *[]model.Mismatch) {
	actObj, ok := actual.(map[string]interface{})
	if !ok {
		*out = append(*out, model.Mismatch{
			Location: model.MismatchBody,
			Path:     pathexpr.CanonicalPath(path),
			Expected: "Object",
			Actual:   rules.Stringify(actual),
			Message:  "Type mismatch: Expected Object but got " + rules.KindOf(actual).String(),
		})
		return
	}

	requireEquality := false
	for _, r := range ruleSet {
		if r.Kind == model.RuleEquality {
			requireEquality = true
		}
	}

	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sortStrings(keys)

	for _, key := range keys {
		expVal := expected[key]
		childPath := append(append([]pathexpr.Segment{}, path...), pathexpr.Segment{Kind: pathexpr.SegName, Name: key})
		actVal, present := actObj[key]
		if !present {
			*out = append(*out, model.Mismatch{
				Location: model.MismatchBody,
				Path:     pathexpr.CanonicalPath(childPath),
				Expected: rules.Stringify(expVal),
				Message:  "Expected key '" + key + "' but was missing",
			})
			continue
		}
		m.compare(childPath, expVal, actVal, out)
	}

	if requireEquality {
		actKeys := make([]string, 0, len(actObj))
		for k := range actObj {
			actKeys = append(actKeys, k)
		}
		for _, k := range actKeys {
			if _, ok := expected[k]; !ok {
				*out = append(*out, model.Mismatch{
					Location: model.MismatchBody,
					Path:     pathexpr.CanonicalPath(path),
					Message:  "Unexpected key '" + k + "' found, expected an empty Map",
				})
			}
		}
	}
}

func (m *matcher) compareArray(path []pathexpr.Segment, expected []interface{}, actual interface{}, ruleSet model.RuleSet, out *[]model.Mismatch) {
	actArr, ok := actual.([]interface{})
	if !ok {
		*out = append(*out, model.Mismatch{
			Location: model.MismatchBody,
			Path:     pathexpr.CanonicalPath(path),
			Expected: "Array",
			Actual:   rules.Stringify(actual),
			Message:  "Type mismatch: Expected Array but got " + rules.KindOf(actual).String(),
		})
		return
	}

	if appliesArrayStyleKindCheck(ruleSet) && len(expected) > 0 {
		// §4.3: the rule constrains the array itself (kind and length);
		// each actual element is then compared against the *first*
		// expected element's shape.
		for _, r := range ruleSet {
			if r.Kind != model.RuleType && r.Kind != model.RuleMinType && r.Kind != model.RuleMaxType {
				continue
			}
			if ok, msg := rules.Check(r, expected, actArr); !ok {
				*out = append(*out, model.Mismatch{
					Location: model.MismatchBody,
					Path:     pathexpr.CanonicalPath(path),
					Expected: rules.Stringify(expected),
					Actual:   rules.Stringify(actArr),
					Message:  msg,
				})
				return
			}
		}
		for i := range actArr {
			childPath := append(append([]pathexpr.Segment{}, path...), pathexpr.Segment{Kind: pathexpr.SegIndex, Index: i})
			m.compare(childPath, expected[0], actArr[i], out)
		}
		return
	}

	// Default policy: element-wise compare up to expected length, requiring
	// equal length.
	if len(expected) != len(actArr) {
		*out = append(*out, model.Mismatch{
			Location: model.MismatchBody,
			Path:     pathexpr.CanonicalPath(path),
			Expected: itoa(len(expected)),
			Actual:   itoa(len(actArr)),
			Message:  "Expected array with " + itoa(len(expected)) + " elements but got " + itoa(len(actArr)),
		})
	}
	n := len(expected)
	if len(actArr) < n {
		n = len(actArr)
	}
	for i := 0; i < n; i++ {
		childPath := append(append([]pathexpr.Segment{}, path...), pathexpr.Segment{Kind: pathexpr.SegIndex, Index: i})
		m.compare(childPath, expected[i], actArr[i], out)
	}
}

func (m *matcher) compareScalar(path []pathexpr.Segment, expected, actual interface{}, ruleSet model.RuleSet, out *[]model.Mismatch) {
	if len(ruleSet) == 0 {
		ok, msg := rules.Check(model.MatchingRule{Kind: model.RuleEquality}, expected, actual)
		if !ok {
			*out = append(*out, model.Mismatch{
				Location: model.MismatchBody,
				Path:     pathexpr.CanonicalPath(path),
				Expected: rules.Stringify(expected),
				Actual:   rules.Stringify(actual),
				Message:  msg,
			})
		}
		return
	}
	for _, r := range ruleSet {
		if ok, msg := rules.Check(r, expected, actual); !ok {
			*out = append(*out, model.Mismatch{
				Location: model.MismatchBody,
				Path:     pathexpr.CanonicalPath(path),
				Expected: rules.Stringify(expected),
				Actual:   rules.Stringify(actual),
				Message:  msg,
			})
		}
	}
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
