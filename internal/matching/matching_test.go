package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pact-foundation/pact-go/internal/model"
)

func jsonReq(method, path string) model.Request {
	return model.Request{
		Method:     method,
		Path:       path,
		Query:      model.Query{},
		Headers:    model.Headers{},
		Body:       model.MissingBody(),
		Matching:   model.NewRuleCatalog(),
		Generators: model.NewGeneratorCatalog(),
	}
}

func TestMatchRequest_exactMatch(t *testing.T) {
	expected := jsonReq("GET", "/orders/1")
	candidate := model.Interaction{Description: "get order", Request: expected}
	actual := jsonReq("GET", "/orders/1")

	m := NewMatcher(nil)
	result := m.MatchRequest(actual, []model.Interaction{candidate})

	assert.Equal(t, model.ResultMatch, result.Kind)
	assert.Equal(t, "get order", result.Interaction.Description)
}

func TestMatchRequest_methodCaseInsensitive(t *testing.T) {
	expected := jsonReq("GET", "/orders/1")
	candidate := model.Interaction{Description: "get order", Request: expected}
	actual := jsonReq("get", "/orders/1")

	m := NewMatcher(nil)
	result := m.MatchRequest(actual, []model.Interaction{candidate})
	assert.Equal(t, model.ResultMatch, result.Kind)
}

func TestMatchRequest_noRoutedCandidateIsNotFound(t *testing.T) {
	candidate := model.Interaction{Description: "get order", Request: jsonReq("GET", "/orders/1")}
	actual := jsonReq("GET", "/totally/different")

	m := NewMatcher(nil)
	result := m.MatchRequest(actual, []model.Interaction{candidate})
	assert.Equal(t, model.ResultNotFound, result.Kind)
}

func TestMatchRequest_methodMismatchAloneIsStillNotFound(t *testing.T) {
	// Per spec.md §4.7 step 2: an unrouted candidate never becomes a
	// mismatch, even when it's the only candidate and differs only by
	// method.
	candidate := model.Interaction{Description: "get order", Request: jsonReq("POST", "/orders/1")}
	actual := jsonReq("GET", "/orders/1")

	m := NewMatcher(nil)
	result := m.MatchRequest(actual, []model.Interaction{candidate})
	assert.Equal(t, model.ResultNotFound, result.Kind)
}

func TestMatchRequest_routedButMismatchedReturnsDiagnostics(t *testing.T) {
	expected := jsonReq("GET", "/orders/1")
	expected.Headers.Set("X-Trace", "abc")
	candidate := model.Interaction{Description: "get order", Request: expected}
	actual := jsonReq("GET", "/orders/1")

	m := NewMatcher(nil)
	result := m.MatchRequest(actual, []model.Interaction{candidate})
	require.Equal(t, model.ResultMismatch, result.Kind)
	require.Len(t, result.Mismatches, 1)
	assert.Equal(t, model.MismatchHeader, result.Mismatches[0].Location)
}

func TestMatchRequest_fewestMismatchesWins(t *testing.T) {
	c1 := jsonReq("GET", "/orders/1")
	c1.Headers.Set("X-A", "1")
	c1.Headers.Set("X-B", "2")

	c2 := jsonReq("GET", "/orders/1")
	c2.Headers.Set("X-A", "1")

	actual := jsonReq("GET", "/orders/1")

	m := NewMatcher(nil)
	result := m.MatchRequest(actual, []model.Interaction{
		{Description: "two missing headers", Request: c1},
		{Description: "one missing header", Request: c2},
	})
	require.Equal(t, model.ResultMismatch, result.Kind)
	assert.Equal(t, "one missing header", result.Interaction.Description)
}

func TestMatchRequest_specificityBreaksSeverityTie(t *testing.T) {
	// Both candidates fail with exactly one query mismatch (equal count,
	// equal severity weight). C2 additionally specifies and satisfies a
	// header the sparser C1 doesn't mention at all, so C2 is the more
	// specific, and therefore preferred, candidate.
	c1 := jsonReq("GET", "/search")
	c1.Query = model.Query{"q": {"widgets"}}

	c2 := jsonReq("GET", "/search")
	c2.Query = model.Query{"q": {"widgets"}}
	c2.Headers.Set("Accept", "application/json")

	actual := jsonReq("GET", "/search")
	actual.Query = model.Query{"q": {"gadgets"}}
	actual.Headers.Set("Accept", "application/json")

	m := NewMatcher(nil)
	result := m.MatchRequest(actual, []model.Interaction{
		{Description: "sparse", Request: c1},
		{Description: "rich", Request: c2},
	})
	require.Equal(t, model.ResultMismatch, result.Kind)
	assert.Equal(t, "rich", result.Interaction.Description)
}

func TestMatchResponse_statusAndHeaderMismatches(t *testing.T) {
	expected := model.DefaultResponse()
	expected.Status = 200
	expected.Headers.Set("Content-Type", "application/json")

	actual := model.DefaultResponse()
	actual.Status = 404
	actual.Headers.Set("Content-Type", "application/json")

	mismatches := MatchResponse(expected, actual)
	require.Len(t, mismatches, 1)
	assert.Equal(t, model.MismatchStatus, mismatches[0].Location)
}

func TestMatchResponse_contentTypeParametersCompared(t *testing.T) {
	expected := model.DefaultResponse()
	expected.Headers.Set("Content-Type", "application/json; charset=utf-8")

	actual := model.DefaultResponse()
	actual.Headers.Set("Content-Type", "application/json;charset=utf-8")

	mismatches := MatchResponse(expected, actual)
	assert.Empty(t, mismatches)
}

func TestMatchResponse_bodyMismatchRoutedThroughJSON(t *testing.T) {
	expected := model.DefaultResponse()
	expected.Headers.Set("Content-Type", "application/json")
	expected.Body = model.PresentBody([]byte(`{"id":1}`))

	actual := model.DefaultResponse()
	actual.Headers.Set("Content-Type", "application/json")
	actual.Body = model.PresentBody([]byte(`{"id":2}`))

	mismatches := MatchResponse(expected, actual)
	require.Len(t, mismatches, 1)
	assert.Equal(t, model.MismatchBody, mismatches[0].Location)
}
