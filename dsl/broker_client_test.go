package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_latestPactsWithoutAuth(t *testing.T) {
	server := setupMockBroker(false)
	defer server.Close()

	broker := NewBroker(server.URL)
	links, err := broker.LatestPacts("bobby", "")
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "jessica", links[0].Name)
}

func TestBroker_latestPactsWithTag(t *testing.T) {
	server := setupMockBroker(false)
	defer server.Close()

	broker := NewBroker(server.URL)
	links, err := broker.LatestPacts("bobby", "dev")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "billy", links[0].Name)
}

func TestBroker_requiresBasicAuthWhenEnabled(t *testing.T) {
	server := setupMockBroker(true)
	defer server.Close()

	broker := NewBroker(server.URL)
	_, err := broker.LatestPacts("bobby", "")
	assert.Error(t, err)

	broker.Username = "foo"
	broker.Password = "bar"
	_, err = broker.LatestPacts("bobby", "")
	assert.NoError(t, err)
}

func TestBroker_fetchPactDecodesInteractions(t *testing.T) {
	server := setupMockBroker(false)
	defer server.Close()

	broker := NewBroker(server.URL)
	interactions, consumer, provider, err := broker.FetchPact(server.URL + "/pacts/provider/loginprovider/consumer/jmarie/version/1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "billy", consumer)
	assert.Equal(t, "bobby", provider)
	require.Len(t, interactions, 2)
	assert.Equal(t, "/foobar", interactions[0].Request.Path)
}

func TestBroker_fetchAllLatestAggregatesEveryConsumer(t *testing.T) {
	server := setupMockBroker(false)
	defer server.Close()

	broker := NewBroker(server.URL)
	all, err := broker.FetchAllLatest("bobby", "dev")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Len(t, all[0], 2)
}

func TestBroker_brokenResponseBodyReturnsError(t *testing.T) {
	server := setupMockBroker(false)
	defer server.Close()

	broker := NewBroker(server.URL)
	_, err := broker.LatestPacts("bobby", "broken")
	assert.Error(t, err)
}

func TestBroker_serverErrorReturnsError(t *testing.T) {
	server := setupMockBroker(false)
	defer server.Close()

	broker := NewBroker(server.URL)
	_, err := broker.LatestPacts("broken", "dev")
	assert.Error(t, err)
}
