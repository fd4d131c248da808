// Command pact-mock-server loads a pact file (or a provider's latest pacts
// from a broker) and serves its interactions over HTTP, matching every inbound request against the
// loaded candidates and replying with the matched response (or a
// diagnostic mismatch payload). It is a thin collaborator per spec.md §1 —
// not a reimplementation of the mock-server product, just enough surface
// to drive match_request end to end over a socket.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pact-foundation/pact-go/dsl"
	"github.com/pact-foundation/pact-go/internal/generate"
	"github.com/pact-foundation/pact-go/internal/matching"
	"github.com/pact-foundation/pact-go/internal/model"
	"github.com/pact-foundation/pact-go/internal/pactfile"
)

func main() {
	pactFile := flag.String("file", "", "path to the pact JSON file to serve")
	brokerURL := flag.String("broker-url", "", "pact broker base URL (alternative to -file)")
	brokerConsumer := flag.String("consumer", "", "consumer name to fetch from the broker")
	brokerProvider := flag.String("provider", "", "provider name to fetch from the broker")
	hostname := flag.String("hostname", "localhost", "interface to bind")
	port := flag.Int("port", 8080, "port to listen on")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "pact-mock-server: building logger:", err)
		os.Exit(2)
	}
	defer log.Sync()

	if *pactFile == "" && *brokerURL == "" {
		log.Fatal("pact-mock-server: one of -file or -broker-url is required")
	}

	var interactions []model.Interaction
	var consumer, provider string

	if *brokerURL != "" {
		if *brokerProvider == "" {
			log.Fatal("pact-mock-server: -provider is required with -broker-url")
		}
		broker := dsl.NewBroker(*brokerURL)
		broker.Log = log
		links, err := broker.LatestPacts(*brokerProvider, "")
		if err != nil {
			log.Fatal("pact-mock-server: listing broker pacts", zap.Error(err))
		}
		for _, link := range links {
			if *brokerConsumer != "" && link.Name != *brokerConsumer {
				continue
			}
			fetched, c, p, err := broker.FetchPact(link.Href)
			if err != nil {
				log.Fatal("pact-mock-server: fetching pact from broker", zap.Error(err))
			}
			interactions = append(interactions, fetched...)
			consumer, provider = c, p
		}
		if len(interactions) == 0 {
			log.Fatal("pact-mock-server: no matching pacts found on broker")
		}
	} else {
		data, err := os.ReadFile(*pactFile)
		if err != nil {
			log.Fatal("pact-mock-server: reading pact file", zap.Error(err))
		}
		interactions, consumer, provider, err = pactfile.Decode(data)
		if err != nil {
			log.Fatal("pact-mock-server: decoding pact file", zap.Error(err))
		}
	}
	log.Info("loaded pact",
		zap.String("consumer", consumer),
		zap.String("provider", provider),
		zap.Int("interactions", len(interactions)),
	)

	session := newSession(interactions, log)

	addr := fmt.Sprintf("%s:%d", *hostname, *port)
	server := &http.Server{Addr: addr, Handler: session}

	go func() {
		log.Info("pact-mock-server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down pact-mock-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	if session.verified() {
		if err := session.persist(consumer, provider); err != nil {
			log.Error("failed to persist verified pact", zap.Error(err))
		} else {
			log.Info("persisted verified pact", zap.String("consumer", consumer), zap.String("provider", provider))
		}
	} else {
		log.Warn("session had mismatches; pact not persisted", zap.Int64("mismatch_count", session.mismatchCount()))
	}
}

// session tracks a mock server run: the candidate interactions, a
// mismatch-count-driven "verified" boolean (spec.md §5's supplement — at
// least one request served and every request matched some candidate; a
// candidate that was never requested does not affect it), and the
// generator engine that shapes each response.
type session struct {
	matcher      *matching.Matcher
	generator    *generate.Engine
	interactions []model.Interaction
	log          *zap.Logger

	mu        sync.Mutex
	mismatchN int64
	requestN  int64
}

func newSession(interactions []model.Interaction, log *zap.Logger) *session {
	return &session{
		matcher:      matching.NewMatcher(log),
		generator:    generate.NewEngine(nil, log),
		interactions: interactions,
		log:          log,
	}
}

func (s *session) verified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestN > 0 && s.mismatchN == 0
}

func (s *session) mismatchCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mismatchN
}

func (s *session) persist(consumer, provider string) error {
	doc := pactfile.Encode(consumer, provider, s.interactions)
	body, err := pactfile.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling pact document: %w", err)
	}
	dir := os.Getenv("PACT_OUTPUT_DIR")
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.json", consumer, provider))
	return os.WriteFile(path, body, 0o644)
}

func (s *session) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actual, err := requestFromHTTP(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := s.matcher.MatchRequest(actual, s.interactions)

	s.mu.Lock()
	s.requestN++
	if result.Kind != model.ResultMatch {
		s.mismatchN++
	}
	s.mu.Unlock()

	switch result.Kind {
	case model.ResultMatch:
		response := s.generator.Response(generate.Context{}, result.Interaction.Response)
		writeResponse(w, response)
	case model.ResultNotFound:
		s.log.Warn("no routed interaction for request", zap.String("method", actual.Method), zap.String("path", actual.Path))
		writeMismatch(w, http.StatusBadRequest, "no interaction matched the request's method and path", nil)
	default:
		s.log.Warn("request matched no candidate",
			zap.String("method", actual.Method),
			zap.String("path", actual.Path),
			zap.Int("mismatches", len(result.Mismatches)),
		)
		writeMismatch(w, http.StatusBadRequest, "request did not match any known interaction", result.Mismatches)
	}
}

func requestFromHTTP(r *http.Request) (model.Request, error) {
	headers := model.Headers{}
	for k, vs := range r.Header {
		if len(vs) > 0 {
			headers.Set(k, strings.Join(vs, ", "))
		}
	}

	query := model.Query{}
	for k, vs := range r.URL.Query() {
		query[k] = vs
	}

	body := model.MissingBody()
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return model.Request{}, fmt.Errorf("reading request body: %w", err)
		}
		if len(b) > 0 {
			body = model.PresentBody(b)
		}
	}

	return model.Request{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   query,
		Headers: headers,
		Body:    body,
	}, nil
}

func writeResponse(w http.ResponseWriter, resp model.Response) {
	for _, k := range resp.Headers.Keys() {
		v, _ := resp.Headers.Get(k)
		w.Header().Set(k, v)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body.IsPresent() {
		w.Write(resp.Body.Value) // nolint:errcheck
	}
}

type mismatchPayload struct {
	Message    string           `json:"message"`
	Mismatches []model.Mismatch `json:"mismatches,omitempty"`
}

func writeMismatch(w http.ResponseWriter, status int, message string, mismatches []model.Mismatch) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(mismatchPayload{Message: message, Mismatches: mismatches})
}
