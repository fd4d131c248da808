package xmlbody

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pact-foundation/pact-go/internal/model"
)

func xmlBody(s string) model.OptionalBody {
	return model.PresentBody([]byte(s))
}

func TestMatch_identicalDocumentsMatch(t *testing.T) {
	catalog := model.NewRuleCatalog()
	doc := `<root><id>1</id></root>`
	mismatches := Match(catalog, xmlBody(doc), xmlBody(doc))
	assert.Empty(t, mismatches)
}

func TestMatch_rootTagMismatch(t *testing.T) {
	catalog := model.NewRuleCatalog()
	mismatches := Match(catalog, xmlBody(`<foo/>`), xmlBody(`<bar/>`))
	require.Len(t, mismatches, 1)
	assert.Equal(t, "foo", mismatches[0].Expected)
	assert.Equal(t, "bar", mismatches[0].Actual)
}

func TestMatch_attributeMismatch(t *testing.T) {
	catalog := model.NewRuleCatalog()
	mismatches := Match(catalog, xmlBody(`<root id="1"/>`), xmlBody(`<root id="2"/>`))
	require.Len(t, mismatches, 1)
	assert.Equal(t, "$.root['@id']", mismatches[0].Path)
}

func TestMatch_attributeRegexRule(t *testing.T) {
	catalog := model.NewRuleCatalog()
	catalog.Add(model.CategoryBody, "$.root['@id']", model.MatchingRule{Kind: model.RuleRegex, Pattern: `\d+`})
	mismatches := Match(catalog, xmlBody(`<root id="1"/>`), xmlBody(`<root id="999"/>`))
	assert.Empty(t, mismatches)
}

func TestMatch_textContentMismatch(t *testing.T) {
	catalog := model.NewRuleCatalog()
	mismatches := Match(catalog, xmlBody(`<root>hello</root>`), xmlBody(`<root>goodbye</root>`))
	require.Len(t, mismatches, 1)
}

func TestMatch_missingChildElementReported(t *testing.T) {
	catalog := model.NewRuleCatalog()
	mismatches := Match(catalog, xmlBody(`<root><a/><a/></root>`), xmlBody(`<root><a/></root>`))
	require.Len(t, mismatches, 1)
	assert.Contains(t, mismatches[0].Message, "at least")
}

func TestMatch_missingActualBody(t *testing.T) {
	catalog := model.NewRuleCatalog()
	mismatches := Match(catalog, xmlBody(`<root/>`), model.MissingBody())
	require.Len(t, mismatches, 1)
	assert.Equal(t, model.MismatchBody, mismatches[0].Location)
}

func TestMatch_actualBodyNotXML(t *testing.T) {
	catalog := model.NewRuleCatalog()
	mismatches := Match(catalog, xmlBody(`<root/>`), xmlBody(`not xml at all`))
	require.Len(t, mismatches, 1)
	assert.Equal(t, model.MismatchBodyType, mismatches[0].Location)
}

func TestMatch_missingExpectedBodyAllowsAnyActual(t *testing.T) {
	catalog := model.NewRuleCatalog()
	mismatches := Match(catalog, model.MissingBody(), xmlBody(`<anything/>`))
	assert.Empty(t, mismatches)
}
