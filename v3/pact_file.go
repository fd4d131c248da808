package v3

import (
	"encoding/json"
	"sort"

	"github.com/pact-foundation/pact-go/internal/model"
)

// ruleValue is the wire-shaped rendering of a single MatchingRule, as
// produced by Matcher.MatchingRule() (e.g. {"match": "type", "min": 3}).
type ruleValue map[string]interface{}

// matchingRule is the flattened "$.body.x" -> rule map a pact file's
// matchingRules.body section serializes to.
type matchingRule map[string]map[string]interface{}

// generatorMap is the flattened "$.body.x" -> generator map a pact file's
// generators.body section serializes to.
type generatorMap map[string]map[string]interface{}

// pactBody is the result of walking a DSL body: the resolved example
// value ready for JSON marshalling, the matching rules it accumulated, and
// any generators declared alongside them.
type pactBody struct {
	Body          interface{}
	MatchingRules matchingRule
	Generators    generatorMap
}

// pactBodyBuilder walks matcher, resolving every Matcher it finds into a
// concrete example value while recording a matching rule (and, where
// present, a generator) at that value's "$.body..." path. It is the
// production code the teacher's pact_file_test.go exercised without ever
// shipping.
func pactBodyBuilder(matcher map[string]interface{}) pactBody {
	rules := matchingRule{}
	gens := generatorMap{}
	body := buildValue(matcher, "$.body", rules, gens)
	return pactBody{Body: body, MatchingRules: rules, Generators: gens}
}

// generatePactFile is the entry point a full Interaction build goes
// through; for a body-only map (as opposed to a full request/response) it
// behaves identically to pactBodyBuilder.
func generatePactFile(matcher map[string]interface{}) pactBody {
	return pactBodyBuilder(matcher)
}

func buildValue(v interface{}, path string, rules matchingRule, gens generatorMap) interface{} {
	switch t := v.(type) {
	case Matcher:
		return buildMatcher(t, path, rules, gens)
	case map[string]interface{}:
		return buildMap(t, path, rules, gens)
	case MapMatcher:
		out := map[string]interface{}{}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = buildValue(t[k], childPath(path, k), rules, gens)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = buildValue(e, indexPath(path, i), rules, gens)
		}
		return out
	default:
		return t
	}
}

func buildMap(m map[string]interface{}, path string, rules matchingRule, gens generatorMap) interface{} {
	out := map[string]interface{}{}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out[k] = buildValue(m[k], childPath(path, k), rules, gens)
	}
	return out
}

func buildMatcher(m Matcher, path string, rules matchingRule, gens generatorMap) interface{} {
	rules[path] = map[string]interface{}(m.MatchingRule())
	if g, ok := m.(generator); ok {
		gens[path] = map[string]interface{}(g.GeneratorRule())
	}

	switch e := m.(type) {
	case eachLike:
		n := e.Min
		if e.Max != 0 {
			n = e.Max
		}
		content := buildValue(e.Contents, wildcardPath(path), rules, gens)
		out := make([]interface{}, n)
		for i := range out {
			out[i] = content
		}
		return out
	default:
		return buildValue(m.GetValue(), path, rules, gens)
	}
}

func childPath(parent, key string) string {
	if isSimpleIdent(key) {
		return parent + "." + key
	}
	return parent + "['" + key + "']"
}

func indexPath(parent string, i int) string {
	return parent + "[" + itoa(i) + "]"
}

func wildcardPath(parent string) string {
	return parent + "[*]"
}

func isSimpleIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}

// formatJSON canonicalizes a raw JSON source string (ignoring
// whitespace/indentation) for comparison in tests.
func formatJSON(s string) string {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// formatJSONObject canonicalizes a Go value the same way, so it can be
// compared against formatJSON's output regardless of map key iteration
// order.
func formatJSONObject(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return formatJSON(string(b))
}

// ruleCatalogFromBody converts a flattened "$.body.x" matchingRule map
// into the category-keyed model.RuleCatalog the matching/generator engines
// use, so DSL-authored bodies can drive internal/matching directly.
func ruleCatalogFromBody(rules matchingRule) model.RuleCatalog {
	catalog := model.NewRuleCatalog()
	for path, wire := range rules {
		expr := bodyExprFromWirePath(path)
		rule, ok := ruleFromWire(wire)
		if !ok {
			continue
		}
		catalog.Add(model.CategoryBody, expr, rule)
	}
	return catalog
}

func bodyExprFromWirePath(path string) string {
	const prefix = "$.body"
	if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
		rest := path[len(prefix):]
		if rest == "" {
			return "$"
		}
		return "$" + rest
	}
	return path
}

func ruleFromWire(wire map[string]interface{}) (model.MatchingRule, bool) {
	kind, _ := wire["match"].(string)
	switch kind {
	case "type":
		if v, ok := wire["min"]; ok {
			return model.MatchingRule{Kind: model.RuleMinType, Min: toInt(v)}, true
		}
		if v, ok := wire["max"]; ok {
			return model.MatchingRule{Kind: model.RuleMaxType, Max: toInt(v)}, true
		}
		return model.MatchingRule{Kind: model.RuleType}, true
	case "regex":
		pattern, _ := wire["regex"].(string)
		return model.MatchingRule{Kind: model.RuleRegex, Pattern: pattern}, true
	default:
		return model.MatchingRule{}, false
	}
}

// generatorCatalogFromBody converts a flattened "$.body.x" generatorMap
// into the category-keyed model.GeneratorCatalog internal/generate expects,
// so a DSL-authored body can drive generation the same way a pact file
// loaded off a broker does.
func generatorCatalogFromBody(gens generatorMap) model.GeneratorCatalog {
	catalog := model.NewGeneratorCatalog()
	for path, wire := range gens {
		expr := bodyExprFromWirePath(path)
		gen, ok := generatorFromWire(wire)
		if !ok {
			continue
		}
		catalog.Add(model.CategoryBody, expr, gen)
	}
	return catalog
}

func generatorFromWire(wire map[string]interface{}) (model.Generator, bool) {
	kind, _ := wire["type"].(string)
	switch kind {
	case "RandomInt":
		return model.Generator{Kind: model.GenRandomInt, Min: toInt(wire["min"]), Max: toInt(wire["max"])}, true
	case "Uuid":
		return model.Generator{Kind: model.GenUUID}, true
	case "RandomDecimal":
		return model.Generator{Kind: model.GenRandomDecimal, Digits: toInt(wire["digits"])}, true
	case "RandomHexadecimal":
		return model.Generator{Kind: model.GenRandomHex, Length: toInt(wire["digits"])}, true
	case "RandomString":
		return model.Generator{Kind: model.GenRandomString, Length: toInt(wire["size"])}, true
	case "Regex":
		pattern, _ := wire["regex"].(string)
		return model.Generator{Kind: model.GenRegex, Pattern: pattern}, true
	case "RandomBoolean":
		return model.Generator{Kind: model.GenRandomBoolean}, true
	case "ProviderState":
		expr, _ := wire["expression"].(string)
		return model.Generator{Kind: model.GenProviderState, Expression: expr}, true
	default:
		return model.Generator{}, false
	}
}

func toInt(v interface{}) int {
	switch t := v.(type) {
	case int:
		return t
	case float64:
		return int(t)
	default:
		return 0
	}
}
