package jsonbody

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pact-foundation/pact-go/internal/model"
)

func body(s string) model.OptionalBody {
	return model.PresentBody([]byte(s))
}

func TestMatch_identicalObjectsMatch(t *testing.T) {
	catalog := model.NewRuleCatalog()
	mismatches := Match(catalog, body(`{"id":1,"name":"Alice"}`), body(`{"id":1,"name":"Alice"}`))
	assert.Empty(t, mismatches)
}

func TestMatch_extraKeyIsIgnoredByDefault(t *testing.T) {
	catalog := model.NewRuleCatalog()
	mismatches := Match(catalog, body(`{"id":1}`), body(`{"id":1,"extra":"ignored"}`))
	assert.Empty(t, mismatches)
}

func TestMatch_extraKeyFlaggedUnderEqualityRule(t *testing.T) {
	catalog := model.NewRuleCatalog()
	catalog.Add(model.CategoryBody, "$", model.MatchingRule{Kind: model.RuleEquality})
	mismatches := Match(catalog, body(`{"id":1}`), body(`{"id":1,"extra":"unexpected"}`))
	require.Len(t, mismatches, 1)
	assert.Contains(t, mismatches[0].Message, "extra")
}

func TestMatch_missingKeyIsReported(t *testing.T) {
	catalog := model.NewRuleCatalog()
	mismatches := Match(catalog, body(`{"id":1,"name":"Alice"}`), body(`{"id":1}`))
	require.Len(t, mismatches, 1)
	assert.Equal(t, "$.name", mismatches[0].Path)
}

func TestMatch_typeRuleAllowsDifferentValue(t *testing.T) {
	catalog := model.NewRuleCatalog()
	catalog.Add(model.CategoryBody, "$.id", model.MatchingRule{Kind: model.RuleType})
	mismatches := Match(catalog, body(`{"id":1}`), body(`{"id":999}`))
	assert.Empty(t, mismatches)
}

func TestMatch_typeRuleRejectsWrongKind(t *testing.T) {
	catalog := model.NewRuleCatalog()
	catalog.Add(model.CategoryBody, "$.id", model.MatchingRule{Kind: model.RuleType})
	mismatches := Match(catalog, body(`{"id":1}`), body(`{"id":"not-a-number"}`))
	require.Len(t, mismatches, 1)
}

func TestMatch_arrayMinTypeAppliesFirstElementShapeToAll(t *testing.T) {
	catalog := model.NewRuleCatalog()
	catalog.Add(model.CategoryBody, "$.users", model.MatchingRule{Kind: model.RuleMinType, Min: 1})
	catalog.Add(model.CategoryBody, "$.users[*].id", model.MatchingRule{Kind: model.RuleType})

	mismatches := Match(catalog, body(`{"users":[{"id":1}]}`), body(`{"users":[{"id":7},{"id":8},{"id":9}]}`))
	assert.Empty(t, mismatches)
}

func TestMatch_defaultArrayRequiresEqualLength(t *testing.T) {
	catalog := model.NewRuleCatalog()
	mismatches := Match(catalog, body(`{"tags":["a","b"]}`), body(`{"tags":["a"]}`))
	require.Len(t, mismatches, 1)
	assert.Equal(t, "$.tags", mismatches[0].Path)
}

func TestMatch_nestedRegexRuleOnArrayElement(t *testing.T) {
	catalog := model.NewRuleCatalog()
	catalog.Add(model.CategoryBody, "$.users", model.MatchingRule{Kind: model.RuleMinType, Min: 1})
	catalog.Add(model.CategoryBody, "$.users[*].colour", model.MatchingRule{Kind: model.RuleRegex, Pattern: "red|green|blue"})

	mismatches := Match(catalog, body(`{"users":[{"colour":"red"}]}`), body(`{"users":[{"colour":"green"},{"colour":"purple"}]}`))
	require.Len(t, mismatches, 1)
	assert.Equal(t, "$.users[1].colour", mismatches[0].Path)
}

func TestMatch_missingExpectedBodyAllowsAnyActual(t *testing.T) {
	catalog := model.NewRuleCatalog()
	mismatches := Match(catalog, model.MissingBody(), body(`{"anything":true}`))
	assert.Empty(t, mismatches)
}

func TestMatch_missingActualBodyIsReported(t *testing.T) {
	catalog := model.NewRuleCatalog()
	mismatches := Match(catalog, body(`{"id":1}`), model.MissingBody())
	require.Len(t, mismatches, 1)
	assert.Equal(t, model.MismatchBody, mismatches[0].Location)
}

func TestMatch_actualBodyNotJSON(t *testing.T) {
	catalog := model.NewRuleCatalog()
	mismatches := Match(catalog, body(`{"id":1}`), body(`not json`))
	require.Len(t, mismatches, 1)
	assert.Equal(t, model.MismatchBodyType, mismatches[0].Location)
}

func TestMatch_typeMismatchBetweenObjectAndScalar(t *testing.T) {
	catalog := model.NewRuleCatalog()
	mismatches := Match(catalog, body(`{"id":{"nested":true}}`), body(`{"id":5}`))
	require.Len(t, mismatches, 1)
	assert.Contains(t, mismatches[0].Message, "Object")
}
