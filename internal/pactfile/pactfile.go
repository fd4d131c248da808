// Package pactfile (de)serializes the pact file JSON format of spec.md §6:
// interactions with nested matchingRules/generators objects keyed by
// category then path expression.
package pactfile

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pact-foundation/pact-go/internal/model"
)

// Pacticipant names one side of a pact.
type Pacticipant struct {
	Name string `json:"name"`
}

// Document is the top-level pact file of spec.md §6.
type Document struct {
	Consumer     Pacticipant            `json:"consumer"`
	Provider     Pacticipant            `json:"provider"`
	Interactions []wireInteraction      `json:"interactions"`
	Metadata     map[string]interface{} `json:"metadata"`
}

type wireInteraction struct {
	Description    string        `json:"description"`
	ProviderStates []wireState   `json:"providerStates,omitempty"`
	Request        wireRequest   `json:"request"`
	Response       wireResponse  `json:"response"`
}

type wireState struct {
	Name string `json:"name"`
}

type wireRequest struct {
	Method        string                 `json:"method"`
	Path          string                 `json:"path"`
	Query         map[string][]string    `json:"query,omitempty"`
	Headers       map[string]string      `json:"headers,omitempty"`
	Body          json.RawMessage        `json:"body,omitempty"`
	MatchingRules wireCatalog            `json:"matchingRules,omitempty"`
	Generators    wireCatalog            `json:"generators,omitempty"`
}

type wireResponse struct {
	Status        int                 `json:"status"`
	Headers       map[string]string   `json:"headers,omitempty"`
	Body          json.RawMessage     `json:"body,omitempty"`
	MatchingRules wireCatalog         `json:"matchingRules,omitempty"`
	Generators    wireCatalog         `json:"generators,omitempty"`
}

// wireCatalog is category -> expression -> rule/generator object, i.e.
// `{"body": {"$.x": {"match": "regex", "regex": "..."}}}`.
type wireCatalog map[string]map[string]map[string]interface{}

// UnmarshalJSON decodes the nested shape above, skipping any category whose
// value does not have that shape (such as the flat "$.body..." keys of older
// pact files) instead of failing the whole document.
func (c *wireCatalog) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := wireCatalog{}
	for cat, v := range raw {
		var bucket map[string]map[string]interface{}
		if json.Unmarshal(v, &bucket) != nil {
			continue
		}
		out[cat] = bucket
	}
	*c = out
	return nil
}

// Encode builds a Document from consumer/provider names and interactions.
func Encode(consumer, provider string, interactions []model.Interaction) Document {
	doc := Document{
		Consumer: Pacticipant{Name: consumer},
		Provider: Pacticipant{Name: provider},
		Metadata: map[string]interface{}{"pactSpecificationVersion": "3.0.0"},
	}
	for _, in := range interactions {
		doc.Interactions = append(doc.Interactions, encodeInteraction(in))
	}
	return doc
}

func encodeInteraction(in model.Interaction) wireInteraction {
	states := make([]wireState, 0, len(in.ProviderStates))
	for _, s := range in.ProviderStates {
		states = append(states, wireState{Name: s})
	}
	return wireInteraction{
		Description:    in.Description,
		ProviderStates: states,
		Request:        encodeRequest(in.Request),
		Response:       encodeResponse(in.Response),
	}
}

func encodeRequest(r model.Request) wireRequest {
	return wireRequest{
		Method:        r.Method,
		Path:          r.Path,
		Query:         map[string][]string(r.Query),
		Headers:       headerMap(r.Headers),
		Body:          bodyToRaw(r.Body),
		MatchingRules: encodeCatalog(r.Matching),
		Generators:    encodeGeneratorCatalog(r.Generators),
	}
}

func encodeResponse(r model.Response) wireResponse {
	return wireResponse{
		Status:        r.Status,
		Headers:       headerMap(r.Headers),
		Body:          bodyToRaw(r.Body),
		MatchingRules: encodeCatalog(r.Matching),
		Generators:    encodeGeneratorCatalog(r.Generators),
	}
}

func headerMap(h model.Headers) map[string]string {
	if h.Len() == 0 {
		return nil
	}
	out := map[string]string{}
	for _, k := range h.Keys() {
		v, _ := h.Get(k)
		out[k] = v
	}
	return out
}

func bodyToRaw(b model.OptionalBody) json.RawMessage {
	if !b.IsPresent() {
		return nil
	}
	return json.RawMessage(b.Value)
}

func encodeCatalog(c model.RuleCatalog) wireCatalog {
	if c.IsEmpty() {
		return nil
	}
	out := wireCatalog{}
	for cat, exprs := range c {
		bucket := map[string]map[string]interface{}{}
		for expr, rs := range exprs {
			for _, r := range rs {
				bucket[qualify(cat, expr)] = ruleToWire(r)
			}
		}
		out[string(cat)] = bucket
	}
	return out
}

// qualify renders the expression the way real pact files do: body rule
// keys are expressed relative to "$.body", everything else relative to
// "$".
func qualify(cat model.Category, expr string) string {
	if cat == model.CategoryBody {
		if expr == "$" {
			return "$.body"
		}
		return "$.body" + expr[1:]
	}
	return expr
}

func ruleToWire(r model.MatchingRule) map[string]interface{} {
	switch r.Kind {
	case model.RuleEquality:
		return map[string]interface{}{"match": "equality"}
	case model.RuleRegex:
		return map[string]interface{}{"match": "regex", "regex": r.Pattern}
	case model.RuleType:
		return map[string]interface{}{"match": "type"}
	case model.RuleMinType:
		return map[string]interface{}{"match": "type", "min": r.Min}
	case model.RuleMaxType:
		return map[string]interface{}{"match": "type", "max": r.Max}
	case model.RuleInclude:
		return map[string]interface{}{"match": "include", "value": r.Include}
	case model.RuleInteger:
		return map[string]interface{}{"match": "integer"}
	case model.RuleDecimal:
		return map[string]interface{}{"match": "decimal"}
	case model.RuleNumber:
		return map[string]interface{}{"match": "number"}
	case model.RuleNull:
		return map[string]interface{}{"match": "null"}
	case model.RuleDate:
		return map[string]interface{}{"match": "date", "format": r.Format}
	case model.RuleTime:
		return map[string]interface{}{"match": "time", "format": r.Format}
	case model.RuleTimestamp:
		return map[string]interface{}{"match": "timestamp", "format": r.Format}
	default:
		return map[string]interface{}{"match": "equality"}
	}
}

func encodeGeneratorCatalog(c model.GeneratorCatalog) wireCatalog {
	if c.IsEmpty() {
		return nil
	}
	out := wireCatalog{}
	for cat, exprs := range c {
		bucket := map[string]map[string]interface{}{}
		for expr, gs := range exprs {
			if len(gs) == 0 {
				continue
			}
			bucket[qualify(cat, expr)] = generatorToWire(gs[0])
		}
		out[string(cat)] = bucket
	}
	return out
}

func generatorToWire(g model.Generator) map[string]interface{} {
	switch g.Kind {
	case model.GenRandomInt:
		return map[string]interface{}{"type": "RandomInt", "min": g.Min, "max": g.Max}
	case model.GenUUID:
		return map[string]interface{}{"type": "Uuid"}
	case model.GenRandomDecimal:
		return map[string]interface{}{"type": "RandomDecimal", "digits": g.Digits}
	case model.GenRandomHex:
		return map[string]interface{}{"type": "RandomHexadecimal", "digits": g.Length}
	case model.GenRandomString:
		return map[string]interface{}{"type": "RandomString", "size": g.Length}
	case model.GenRegex:
		return map[string]interface{}{"type": "Regex", "regex": g.Pattern}
	case model.GenDate:
		return map[string]interface{}{"type": "Date", "format": g.Format}
	case model.GenTime:
		return map[string]interface{}{"type": "Time", "format": g.Format}
	case model.GenDateTime:
		return map[string]interface{}{"type": "DateTime", "format": g.Format}
	case model.GenRandomBoolean:
		return map[string]interface{}{"type": "RandomBoolean"}
	case model.GenProviderState:
		return map[string]interface{}{"type": "ProviderState", "expression": g.Expression}
	default:
		return map[string]interface{}{"type": "Uuid"}
	}
}

// Decode parses a pact file document into its interactions.
func Decode(data []byte) ([]model.Interaction, string, string, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, "", "", fmt.Errorf("pactfile: decode: %w", err)
	}
	out := make([]model.Interaction, 0, len(doc.Interactions))
	for _, wi := range doc.Interactions {
		out = append(out, decodeInteraction(wi))
	}
	return out, doc.Consumer.Name, doc.Provider.Name, nil
}

func decodeInteraction(wi wireInteraction) model.Interaction {
	states := make([]string, 0, len(wi.ProviderStates))
	for _, s := range wi.ProviderStates {
		states = append(states, s.Name)
	}
	return model.Interaction{
		Description:    wi.Description,
		ProviderStates: states,
		Request:        decodeRequest(wi.Request),
		Response:       decodeResponse(wi.Response),
	}
}

func decodeRequest(wr wireRequest) model.Request {
	method := wr.Method
	if method == "" {
		method = "GET"
	}
	path := wr.Path
	if path == "" {
		path = "/"
	}
	return model.Request{
		Method:     method,
		Path:       path,
		Query:      model.Query(wr.Query),
		Headers:    model.NewHeaders(wr.Headers),
		Body:       rawToBody(wr.Body),
		Matching:   decodeCatalog(wr.MatchingRules),
		Generators: decodeGeneratorCatalog(wr.Generators),
	}
}

func decodeResponse(wr wireResponse) model.Response {
	status := wr.Status
	if status == 0 {
		status = 200
	}
	return model.Response{
		Status:     status,
		Headers:    model.NewHeaders(wr.Headers),
		Body:       rawToBody(wr.Body),
		Matching:   decodeCatalog(wr.MatchingRules),
		Generators: decodeGeneratorCatalog(wr.Generators),
	}
}

func rawToBody(raw json.RawMessage) model.OptionalBody {
	if raw == nil {
		return model.MissingBody()
	}
	if string(raw) == "null" {
		return model.NullBody()
	}
	if len(raw) == 0 {
		return model.EmptyBody()
	}
	// Compacted, so the indentation Marshal writes does not end up in the body.
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err == nil {
		return model.PresentBody(compact.Bytes())
	}
	return model.PresentBody([]byte(raw))
}

func decodeCatalog(w wireCatalog) model.RuleCatalog {
	catalog := model.NewRuleCatalog()
	for cat, bucket := range w {
		for qualifiedExpr, ruleObj := range bucket {
			expr := unqualify(model.Category(cat), qualifiedExpr)
			rule, ok := wireToRule(ruleObj)
			if !ok {
				continue // unknown matching-rule kind on load: ignored, per spec.md §7
			}
			catalog.Add(model.Category(cat), expr, rule)
		}
	}
	return catalog
}

func unqualify(cat model.Category, expr string) string {
	if cat == model.CategoryBody && len(expr) >= len("$.body") && expr[:len("$.body")] == "$.body" {
		rest := expr[len("$.body"):]
		if rest == "" {
			return "$"
		}
		return "$" + rest
	}
	return expr
}

func wireToRule(obj map[string]interface{}) (model.MatchingRule, bool) {
	kind, _ := obj["match"].(string)
	switch kind {
	case "equality", "":
		return model.MatchingRule{Kind: model.RuleEquality}, true
	case "regex":
		pattern, _ := obj["regex"].(string)
		return model.MatchingRule{Kind: model.RuleRegex, Pattern: pattern}, true
	case "type":
		if v, ok := obj["min"]; ok {
			return model.MatchingRule{Kind: model.RuleMinType, Min: toInt(v)}, true
		}
		if v, ok := obj["max"]; ok {
			return model.MatchingRule{Kind: model.RuleMaxType, Max: toInt(v)}, true
		}
		return model.MatchingRule{Kind: model.RuleType}, true
	case "include":
		v, _ := obj["value"].(string)
		return model.MatchingRule{Kind: model.RuleInclude, Include: v}, true
	case "integer":
		return model.MatchingRule{Kind: model.RuleInteger}, true
	case "decimal":
		return model.MatchingRule{Kind: model.RuleDecimal}, true
	case "number":
		return model.MatchingRule{Kind: model.RuleNumber}, true
	case "null":
		return model.MatchingRule{Kind: model.RuleNull}, true
	case "date":
		f, _ := obj["format"].(string)
		return model.MatchingRule{Kind: model.RuleDate, Format: f}, true
	case "time":
		f, _ := obj["format"].(string)
		return model.MatchingRule{Kind: model.RuleTime, Format: f}, true
	case "timestamp":
		f, _ := obj["format"].(string)
		return model.MatchingRule{Kind: model.RuleTimestamp, Format: f}, true
	default:
		return model.MatchingRule{}, false
	}
}

func decodeGeneratorCatalog(w wireCatalog) model.GeneratorCatalog {
	catalog := model.NewGeneratorCatalog()
	for cat, bucket := range w {
		for qualifiedExpr, genObj := range bucket {
			expr := unqualify(model.Category(cat), qualifiedExpr)
			gen, ok := wireToGenerator(genObj)
			if !ok {
				continue
			}
			catalog.Add(model.Category(cat), expr, gen)
		}
	}
	return catalog
}

func wireToGenerator(obj map[string]interface{}) (model.Generator, bool) {
	kind, _ := obj["type"].(string)
	switch kind {
	case "RandomInt":
		return model.Generator{Kind: model.GenRandomInt, Min: toInt(obj["min"]), Max: toInt(obj["max"])}, true
	case "Uuid":
		return model.Generator{Kind: model.GenUUID}, true
	case "RandomDecimal":
		return model.Generator{Kind: model.GenRandomDecimal, Digits: toInt(obj["digits"])}, true
	case "RandomHexadecimal":
		return model.Generator{Kind: model.GenRandomHex, Length: toInt(obj["digits"])}, true
	case "RandomString":
		return model.Generator{Kind: model.GenRandomString, Length: toInt(obj["size"])}, true
	case "Regex":
		p, _ := obj["regex"].(string)
		return model.Generator{Kind: model.GenRegex, Pattern: p}, true
	case "Date":
		f, _ := obj["format"].(string)
		return model.Generator{Kind: model.GenDate, Format: f}, true
	case "Time":
		f, _ := obj["format"].(string)
		return model.Generator{Kind: model.GenTime, Format: f}, true
	case "DateTime":
		f, _ := obj["format"].(string)
		return model.Generator{Kind: model.GenDateTime, Format: f}, true
	case "RandomBoolean":
		return model.Generator{Kind: model.GenRandomBoolean}, true
	case "ProviderState":
		e, _ := obj["expression"].(string)
		return model.Generator{Kind: model.GenProviderState, Expression: e}, true
	default:
		return model.Generator{}, false
	}
}

func toInt(v interface{}) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	default:
		return 0
	}
}

// Marshal renders a Document as indented JSON for writing to disk.
func Marshal(doc Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}
