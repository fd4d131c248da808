package dsl

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pact-foundation/pact-go/internal/model"
	"github.com/pact-foundation/pact-go/internal/pactfile"
)

// checkAuth is the foo/bar basic authentication guard the mock broker in
// broker_test.go gates its fixture responses behind.
func checkAuth(w http.ResponseWriter, r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte("foo")) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte("bar")) == 1
	return userOK && passOK
}

// halLink is a single entry of a HAL _links map.
type halLink struct {
	Href  string `json:"href"`
	Title string `json:"title"`
	Name  string `json:"name"`
}

// halPacts is the subset of a broker's "latest pacts for provider" HAL
// response this client understands. Brokers emit the canonical list under
// both "_links.pb:pacts" and a flattened "pacts" convenience key; either is
// accepted.
type halPacts struct {
	Links struct {
		Pacts []halLink `json:"pb:pacts"`
	} `json:"_links"`
	Pacts []halLink `json:"pacts"`
}

// Broker fetches pact documents from a Pact Broker over HTTP: the
// "consumer, provider, [tag]" selection surface spec.md's external
// interfaces describe for the verifier's --broker-url flag.
type Broker struct {
	BaseURL  string
	Username string
	Password string
	Client   *http.Client
	Log      *zap.Logger
}

// NewBroker builds a Broker pointed at baseURL; Client defaults to
// http.DefaultClient.
func NewBroker(baseURL string) *Broker {
	return &Broker{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  http.DefaultClient,
	}
}

func (b *Broker) logger() *zap.Logger {
	if b.Log == nil {
		return zap.NewNop()
	}
	return b.Log
}

func (b *Broker) get(path string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, b.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/hal+json")
	if b.Username != "" {
		req.SetBasicAuth(b.Username, b.Password)
	}
	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("broker returned %d for %s: %s", resp.StatusCode, path, string(body))
	}
	return body, nil
}

// LatestPacts lists every consumer pact the broker holds for provider,
// optionally filtered to a single tag (pass "" for the untagged latest
// set).
func (b *Broker) LatestPacts(provider, tag string) ([]halLink, error) {
	path := "/pacts/provider/" + provider + "/latest"
	if tag != "" {
		path += "/" + tag
	}
	body, err := b.get(path)
	if err != nil {
		return nil, err
	}
	var doc halPacts
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("broker: decoding pact list for %s: %w", provider, err)
	}
	if len(doc.Links.Pacts) > 0 {
		return doc.Links.Pacts, nil
	}
	return doc.Pacts, nil
}

// FetchPact downloads and decodes a single pact document by its broker
// href, returning its interactions alongside the consumer/provider names
// recorded in the file.
func (b *Broker) FetchPact(href string) ([]model.Interaction, string, string, error) {
	path := href
	if strings.HasPrefix(href, b.BaseURL) {
		path = strings.TrimPrefix(href, b.BaseURL)
	}
	body, err := b.get(path)
	if err != nil {
		return nil, "", "", err
	}
	interactions, consumer, provider, err := pactfile.Decode(body)
	if err != nil {
		return nil, "", "", fmt.Errorf("broker: decoding pact at %s: %w", href, err)
	}
	b.logger().Debug("broker: fetched pact",
		zap.String("href", href),
		zap.String("consumer", consumer),
		zap.String("provider", provider),
		zap.Int("interactions", len(interactions)),
	)
	return interactions, consumer, provider, nil
}

// FetchAllLatest fetches and decodes every consumer pact currently latest
// for provider, optionally filtered to tag.
func (b *Broker) FetchAllLatest(provider, tag string) ([][]model.Interaction, error) {
	links, err := b.LatestPacts(provider, tag)
	if err != nil {
		return nil, err
	}
	out := make([][]model.Interaction, 0, len(links))
	for _, link := range links {
		interactions, _, _, err := b.FetchPact(link.Href)
		if err != nil {
			return nil, err
		}
		out = append(out, interactions)
	}
	return out, nil
}
