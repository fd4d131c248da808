package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionalBody_states(t *testing.T) {
	assert.Equal(t, BodyMissing, MissingBody().State)
	assert.Equal(t, BodyNull, NullBody().State)
	assert.Equal(t, BodyEmpty, EmptyBody().State)
	assert.True(t, PresentBody([]byte("x")).IsPresent())
	assert.False(t, MissingBody().IsPresent())
}

func TestOptionalBody_equal(t *testing.T) {
	assert.True(t, MissingBody().Equal(MissingBody()))
	assert.False(t, MissingBody().Equal(NullBody()))
	assert.False(t, NullBody().Equal(EmptyBody()))
	assert.True(t, PresentBody([]byte("x")).Equal(PresentBody([]byte("x"))))
	assert.False(t, PresentBody([]byte("x")).Equal(PresentBody([]byte("y"))))
}

func TestHeaders_caseInsensitive(t *testing.T) {
	h := Headers{}
	h.Set("Content-Type", "application/json")

	v, ok := h.Get("content-type")
	assert.True(t, ok)
	assert.Equal(t, "application/json", v)

	v, ok = h.Get("CONTENT-TYPE")
	assert.True(t, ok)
	assert.Equal(t, "application/json", v)
}

func TestHeaders_setOverwritesWithoutDuplicatingOrder(t *testing.T) {
	h := Headers{}
	h.Set("X-Foo", "1")
	h.Set("x-foo", "2")

	assert.Equal(t, []string{"x-foo"}, h.Keys())
	v, _ := h.Get("X-FOO")
	assert.Equal(t, "2", v)
}

func TestHeaders_equalIgnoresDeclarationOrder(t *testing.T) {
	a := Headers{}
	a.Set("A", "1")
	a.Set("B", "2")

	b := Headers{}
	b.Set("B", "2")
	b.Set("A", "1")

	assert.True(t, a.Equal(b))
}

func TestNewHeaders_deterministicFromMap(t *testing.T) {
	a := NewHeaders(map[string]string{"B": "2", "A": "1"})
	b := NewHeaders(map[string]string{"A": "1", "B": "2"})
	assert.Equal(t, a.Keys(), b.Keys())
}

func TestQuery_equal(t *testing.T) {
	a := Query{"q": {"1", "2"}}
	b := Query{"q": {"1", "2"}}
	c := Query{"q": {"2", "1"}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestRuleCatalog_addAndIsEmpty(t *testing.T) {
	c := NewRuleCatalog()
	assert.True(t, c.IsEmpty())

	c.Add(CategoryBody, "$.id", MatchingRule{Kind: RuleType})
	assert.False(t, c.IsEmpty())
	assert.Len(t, c[CategoryBody]["$.id"], 1)

	c.Add(CategoryBody, "$.id", MatchingRule{Kind: RuleInteger})
	assert.Len(t, c[CategoryBody]["$.id"], 2)
}

func TestGeneratorCatalog_addAndIsEmpty(t *testing.T) {
	c := NewGeneratorCatalog()
	assert.True(t, c.IsEmpty())

	c.Add(CategoryBody, "$.id", Generator{Kind: GenRandomInt, Min: 1, Max: 10})
	assert.False(t, c.IsEmpty())
}

func TestRequest_defaultIsGETSlash(t *testing.T) {
	r := DefaultRequest()
	assert.Equal(t, "GET", r.Method)
	assert.Equal(t, "/", r.Path)
	assert.True(t, r.Equal(DefaultRequest()))
}

func TestRequest_equalIsCaseInsensitiveOnMethod(t *testing.T) {
	a := DefaultRequest()
	a.Method = "get"
	b := DefaultRequest()
	b.Method = "GET"
	assert.True(t, a.Equal(b))
}

func TestResponse_defaultIs200(t *testing.T) {
	r := DefaultResponse()
	assert.Equal(t, 200, r.Status)
	assert.True(t, r.Equal(DefaultResponse()))
}

func TestMismatch_severityWeightOrdering(t *testing.T) {
	body := Mismatch{Location: MismatchBody}
	header := Mismatch{Location: MismatchHeader}
	query := Mismatch{Location: MismatchQuery}
	status := Mismatch{Location: MismatchStatus}

	assert.Less(t, body.SeverityWeight(), header.SeverityWeight())
	assert.Less(t, header.SeverityWeight(), query.SeverityWeight())
	assert.Less(t, query.SeverityWeight(), status.SeverityWeight())
}
