package generate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pact-foundation/pact-go/internal/model"
)

func TestRequest_emptyCatalogIsIdentity(t *testing.T) {
	e := NewEngine(NewSource(1), nil)
	tmpl := model.Request{
		Method:     "GET",
		Path:       "/orders/1",
		Headers:    model.NewHeaders(map[string]string{"Accept": "application/json"}),
		Body:       model.PresentBody([]byte(`{"id":1}`)),
		Generators: model.NewGeneratorCatalog(),
	}
	out := e.Request(Context{}, tmpl)
	assert.Equal(t, tmpl.Path, out.Path)
	assert.Equal(t, string(tmpl.Body.Value), string(out.Body.Value))
}

func TestRequest_pathGenerator(t *testing.T) {
	e := NewEngine(NewSource(1), nil)
	cat := model.NewGeneratorCatalog()
	cat.Add(model.CategoryPath, "$.path", model.Generator{Kind: model.GenRandomInt, Min: 1, Max: 1})

	tmpl := model.Request{Method: "GET", Path: "/orders/{id}", Generators: cat, Body: model.MissingBody()}
	out := e.Request(Context{}, tmpl)
	assert.Equal(t, "1", out.Path)
}

func TestResponse_statusGeneratorClampsToValidRange(t *testing.T) {
	e := NewEngine(NewSource(1), nil)
	cat := model.NewGeneratorCatalog()
	cat.Add(model.CategoryStatus, "$.status", model.Generator{Kind: model.GenRandomInt, Min: 900, Max: 900})

	tmpl := model.Response{Status: 200, Generators: cat, Body: model.MissingBody()}
	out := e.Response(Context{}, tmpl)
	assert.Equal(t, 599, out.Status)
}

func TestApplyBody_jsonGeneratorReplacesNode(t *testing.T) {
	e := NewEngine(NewSource(1), nil)
	cat := model.NewGeneratorCatalog()
	cat.Add(model.CategoryBody, "$.id", model.Generator{Kind: model.GenUUID})

	tmpl := model.Response{Status: 200, Body: model.PresentBody([]byte(`{"id":"placeholder","name":"Alice"}`)), Generators: cat}
	out := e.Response(Context{}, tmpl)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Body.Value, &decoded))
	assert.NotEqual(t, "placeholder", decoded["id"])
	assert.Equal(t, "Alice", decoded["name"])
}

func TestApplyBody_missingBodyRoundTripsUnchanged(t *testing.T) {
	e := NewEngine(NewSource(1), nil)
	cat := model.NewGeneratorCatalog()
	cat.Add(model.CategoryBody, "$.id", model.Generator{Kind: model.GenUUID})

	tmpl := model.Response{Status: 200, Body: model.MissingBody(), Generators: cat}
	out := e.Response(Context{}, tmpl)
	assert.Equal(t, model.BodyMissing, out.Body.State)
}

func TestApplyBody_invalidJSONLeavesBodyUnchanged(t *testing.T) {
	e := NewEngine(NewSource(1), nil)
	cat := model.NewGeneratorCatalog()
	cat.Add(model.CategoryBody, "$.id", model.Generator{Kind: model.GenUUID})

	tmpl := model.Response{Status: 200, Body: model.PresentBody([]byte(`not json`)), Generators: cat}
	out := e.Response(Context{}, tmpl)
	assert.Equal(t, "not json", string(out.Body.Value))
}

func TestApplyBody_xmlGeneratorReplacesAttributeAndText(t *testing.T) {
	e := NewEngine(NewSource(1), nil)
	cat := model.NewGeneratorCatalog()
	cat.Add(model.CategoryBody, "$.root['@id']", model.Generator{Kind: model.GenUUID})
	cat.Add(model.CategoryBody, "$.root.name['#text']", model.Generator{Kind: model.GenRandomString, Length: 5})

	tmpl := model.Response{
		Status:     200,
		Body:       model.PresentBody([]byte(`<root id="placeholder"><name>Alice</name></root>`)),
		Generators: cat,
	}
	out := e.Response(Context{}, tmpl)

	body := string(out.Body.Value)
	assert.NotContains(t, body, `id="placeholder"`)
	assert.NotContains(t, body, "Alice")
	assert.Contains(t, body, "<root")
	assert.Contains(t, body, "<name>")
}

func TestApplyBody_xmlInvalidBodyLeftUnchanged(t *testing.T) {
	e := NewEngine(NewSource(1), nil)
	cat := model.NewGeneratorCatalog()
	cat.Add(model.CategoryBody, "$.root['@id']", model.Generator{Kind: model.GenUUID})

	tmpl := model.Response{Status: 200, Body: model.PresentBody([]byte(`<root id="x">`)), Generators: cat}
	out := e.Response(Context{}, tmpl)
	assert.Equal(t, `<root id="x">`, string(out.Body.Value))
}

func TestGenerate_providerStateGeneratorResolvesFromContext(t *testing.T) {
	e := NewEngine(NewSource(1), nil)
	cat := model.NewGeneratorCatalog()
	cat.Add(model.CategoryBody, "$.userId", model.Generator{Kind: model.GenProviderState, Expression: "userId"})

	tmpl := model.Response{Status: 200, Body: model.PresentBody([]byte(`{"userId":0}`)), Generators: cat}
	out := e.Response(Context{"userId": 42.0}, tmpl)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Body.Value, &decoded))
	assert.Equal(t, 42.0, decoded["userId"])
}

func TestGenerate_providerStateGeneratorWithoutContextLeavesFieldUnchanged(t *testing.T) {
	e := NewEngine(NewSource(1), nil)
	cat := model.NewGeneratorCatalog()
	cat.Add(model.CategoryBody, "$.userId", model.Generator{Kind: model.GenProviderState, Expression: "userId"})

	tmpl := model.Response{Status: 200, Body: model.PresentBody([]byte(`{"userId":7}`)), Generators: cat}
	out := e.Response(Context{}, tmpl)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Body.Value, &decoded))
	assert.Equal(t, 7.0, decoded["userId"])
}

func TestGenerate_randomIntRespectsBounds(t *testing.T) {
	e := NewEngine(NewSource(42), nil)
	for i := 0; i < 50; i++ {
		v, ok := e.generate(Context{}, model.Generator{Kind: model.GenRandomInt, Min: 5, Max: 9})
		require.True(t, ok)
		n := v.(int)
		assert.GreaterOrEqual(t, n, 5)
		assert.LessOrEqual(t, n, 9)
	}
}

func TestGenerate_randomHexAndStringLengths(t *testing.T) {
	e := NewEngine(NewSource(7), nil)

	hex, ok := e.generate(Context{}, model.Generator{Kind: model.GenRandomHex, Length: 10})
	require.True(t, ok)
	assert.Len(t, hex.(string), 10)

	str, ok := e.generate(Context{}, model.Generator{Kind: model.GenRandomString, Length: 15})
	require.True(t, ok)
	assert.Len(t, str.(string), 15)
}

func TestGenerate_regexLiteralPattern(t *testing.T) {
	e := NewEngine(NewSource(1), nil)
	v, ok := e.generate(Context{}, model.Generator{Kind: model.GenRegex, Pattern: "abc"})
	require.True(t, ok)
	assert.Equal(t, "abc", v)
}

func TestGenerate_regexUnsupportedPatternFails(t *testing.T) {
	e := NewEngine(NewSource(1), nil)
	// RE2 (regexp/syntax) has no lookahead support, so this fails to parse
	// at all rather than producing a usable syntax tree.
	_, ok := e.generate(Context{}, model.Generator{Kind: model.GenRegex, Pattern: `(?=abc)`})
	assert.False(t, ok)
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, model.ContentJSON, DetectContentType([]byte(`{"a":1}`)))
	assert.Equal(t, model.ContentXML, DetectContentType([]byte(`<root/>`)))
	assert.Equal(t, model.ContentText, DetectContentType([]byte(`plain text`)))
	assert.Equal(t, model.ContentText, DetectContentType([]byte(``)))
}

func TestHeaderContentType(t *testing.T) {
	assert.Equal(t, model.ContentJSON, HeaderContentType("application/json; charset=utf-8"))
	assert.Equal(t, model.ContentXML, HeaderContentType("application/xml"))
	assert.Equal(t, model.ContentText, HeaderContentType("text/plain"))
}
