package pactfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pact-foundation/pact-go/internal/model"
)

func TestEncodeDecode_roundTripsRequestAndResponse(t *testing.T) {
	req := model.Request{
		Method:  "POST",
		Path:    "/orders",
		Query:   model.Query{"page": {"1"}},
		Headers: model.NewHeaders(map[string]string{"Content-Type": "application/json"}),
		Body:    model.PresentBody([]byte(`{"id":1}`)),
	}
	req.Matching = model.NewRuleCatalog()
	req.Matching.Add(model.CategoryBody, "$.id", model.MatchingRule{Kind: model.RuleType})
	req.Generators = model.NewGeneratorCatalog()
	req.Generators.Add(model.CategoryBody, "$.id", model.Generator{Kind: model.GenRandomInt, Min: 1, Max: 100})

	resp := model.Response{
		Status:     200,
		Headers:    model.NewHeaders(map[string]string{"Content-Type": "application/json"}),
		Body:       model.PresentBody([]byte(`{"ok":true}`)),
		Matching:   model.NewRuleCatalog(),
		Generators: model.NewGeneratorCatalog(),
	}

	in := []model.Interaction{{
		Description:    "create an order",
		ProviderStates: []string{"an order can be created"},
		Request:        req,
		Response:       resp,
	}}

	doc := Encode("consumer-a", "provider-b", in)
	data, err := Marshal(doc)
	require.NoError(t, err)

	out, consumer, provider, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "consumer-a", consumer)
	assert.Equal(t, "provider-b", provider)
	require.Len(t, out, 1)

	got := out[0]
	assert.Equal(t, "create an order", got.Description)
	assert.Equal(t, []string{"an order can be created"}, got.ProviderStates)
	assert.Equal(t, "POST", got.Request.Method)
	assert.Equal(t, "/orders", got.Request.Path)
	assert.Equal(t, `{"id":1}`, string(got.Request.Body.Value))

	rule := got.Request.Matching[model.CategoryBody]["$.id"]
	require.Len(t, rule, 1)
	assert.Equal(t, model.RuleType, rule[0].Kind)

	gen := got.Request.Generators[model.CategoryBody]["$.id"]
	require.Len(t, gen, 1)
	assert.Equal(t, model.GenRandomInt, gen[0].Kind)
	assert.Equal(t, 1, gen[0].Min)
	assert.Equal(t, 100, gen[0].Max)
}

func TestDecode_defaultsMethodAndPath(t *testing.T) {
	out, _, _, err := Decode([]byte(`{
		"consumer":{"name":"c"},
		"provider":{"name":"p"},
		"interactions":[{"description":"bare","request":{},"response":{}}]
	}`))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "GET", out[0].Request.Method)
	assert.Equal(t, "/", out[0].Request.Path)
	assert.Equal(t, 200, out[0].Response.Status)
}

func TestDecode_bodyStates(t *testing.T) {
	out, _, _, err := Decode([]byte(`{
		"consumer":{"name":"c"},
		"provider":{"name":"p"},
		"interactions":[
			{"description":"missing","request":{},"response":{}},
			{"description":"null","request":{"body":null},"response":{}}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, model.BodyMissing, out[0].Request.Body.State)
	assert.Equal(t, model.BodyNull, out[1].Request.Body.State)
}

func TestDecode_invalidJSONReturnsError(t *testing.T) {
	_, _, _, err := Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecode_unknownMatchingRuleKindIsIgnored(t *testing.T) {
	out, _, _, err := Decode([]byte(`{
		"consumer":{"name":"c"},
		"provider":{"name":"p"},
		"interactions":[{
			"description":"x",
			"request":{
				"matchingRules":{"body":{"$.body.id":{"match":"some-future-kind"}}}
			},
			"response":{}
		}]
	}`))
	require.NoError(t, err)
	assert.True(t, out[0].Request.Matching.IsEmpty())
}

func TestQualify_bodyExpressionsAreRootedAtDollarBody(t *testing.T) {
	assert.Equal(t, "$.body", qualify(model.CategoryBody, "$"))
	assert.Equal(t, "$.body.id", qualify(model.CategoryBody, "$.id"))
	assert.Equal(t, "$.headers.accept", qualify(model.CategoryHeader, "$.headers.accept"))
}

func TestUnqualify_reversesQualify(t *testing.T) {
	assert.Equal(t, "$", unqualify(model.CategoryBody, "$.body"))
	assert.Equal(t, "$.id", unqualify(model.CategoryBody, "$.body.id"))
}
