// Command pact-verifier replays a set of pact interactions against a live
// provider and reports how many failed to match. It is the CLI
// collaborator of spec.md §6: flags select where the pacts come from and
// how the provider is reached; match_response does the actual comparison.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pact-foundation/pact-go/dsl"
	"github.com/pact-foundation/pact-go/internal/matching"
	"github.com/pact-foundation/pact-go/internal/model"
	"github.com/pact-foundation/pact-go/internal/pactfile"
)

// Exit codes: 0 every verified interaction matched, 1 a setup/usage error
// prevented verification from running at all, 2 at least one mismatch was
// reported.
const (
	exitOK = iota
	exitUsage
	exitMismatch
)

// stringList accumulates a repeatable flag, e.g. -filter-consumer, into an
// ordered slice.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

type config struct {
	File              string
	Dir               string
	URL               string
	BrokerURL         string
	ProviderName      string
	Hostname          string
	Port              int
	StateChangeURL    string
	StateChangeAsQuery bool
	StateChangeTeardown bool
	FilterDescription string
	FilterState       string
	FilterNoState     bool
	FilterConsumer    stringList
	LogLevel          string
	ConfigFile        string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var cfg config
	fs := flag.NewFlagSet("pact-verifier", flag.ContinueOnError)

	fs.StringVar(&cfg.File, "file", "", "path to a single pact JSON file")
	fs.StringVar(&cfg.File, "f", "", "shorthand for -file")
	fs.StringVar(&cfg.Dir, "dir", "", "directory of pact JSON files")
	fs.StringVar(&cfg.Dir, "d", "", "shorthand for -dir")
	fs.StringVar(&cfg.URL, "url", "", "URL of a single pact JSON document")
	fs.StringVar(&cfg.URL, "u", "", "shorthand for -url")
	fs.StringVar(&cfg.BrokerURL, "broker-url", "", "pact broker base URL")
	fs.StringVar(&cfg.BrokerURL, "b", "", "shorthand for -broker-url")
	fs.StringVar(&cfg.ProviderName, "provider-name", "", "provider name to verify")
	fs.StringVar(&cfg.ProviderName, "n", "", "shorthand for -provider-name")
	fs.StringVar(&cfg.Hostname, "hostname", "localhost", "provider hostname")
	fs.StringVar(&cfg.Hostname, "h", "localhost", "shorthand for -hostname")
	fs.IntVar(&cfg.Port, "port", 8080, "provider port")
	fs.IntVar(&cfg.Port, "p", 8080, "shorthand for -port")
	fs.StringVar(&cfg.StateChangeURL, "state-change-url", "", "URL to POST provider state changes to")
	fs.StringVar(&cfg.StateChangeURL, "s", "", "shorthand for -state-change-url")
	fs.BoolVar(&cfg.StateChangeAsQuery, "state-change-as-query", false, "send state change params as a query string instead of a JSON body")
	fs.BoolVar(&cfg.StateChangeTeardown, "state-change-teardown", false, "call the state change URL again after each interaction to tear down state")
	fs.StringVar(&cfg.FilterDescription, "filter-description", "", "only verify interactions whose description matches this regular expression")
	fs.StringVar(&cfg.FilterState, "filter-state", "", "only verify interactions with this provider state")
	fs.BoolVar(&cfg.FilterNoState, "filter-no-state", false, "only verify interactions with no provider state")
	fs.Var(&cfg.FilterConsumer, "filter-consumer", "only verify pacts from this consumer (repeatable; applied to -broker-url pacts only)")
	fs.Var(&cfg.FilterConsumer, "c", "shorthand for -filter-consumer")
	fs.StringVar(&cfg.LogLevel, "loglevel", "info", "one of error, warn, info, debug, trace, none")
	fs.StringVar(&cfg.LogLevel, "l", "info", "shorthand for -loglevel")
	fs.StringVar(&cfg.ConfigFile, "config", "", "optional YAML file providing defaults for the pact source, provider-name, hostname, port and state-change-url flags")

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if cfg.FilterState != "" && cfg.FilterNoState {
		fmt.Fprintln(os.Stderr, "pact-verifier: -filter-state and -filter-no-state are mutually exclusive")
		return exitUsage
	}

	if cfg.ConfigFile != "" {
		if err := applyConfigFile(&cfg, cfg.ConfigFile); err != nil {
			fmt.Fprintln(os.Stderr, "pact-verifier:", err)
			return exitUsage
		}
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pact-verifier:", err)
		return exitUsage
	}
	defer log.Sync()

	interactions, err := loadInteractions(cfg, log)
	if err != nil {
		log.Error("failed to load pact interactions", zap.Error(err))
		return exitUsage
	}

	interactions = filterInteractions(cfg, interactions)
	if len(interactions) == 0 {
		log.Warn("no interactions selected for verification")
		return exitOK
	}

	v := &verifier{cfg: cfg, log: log, client: &http.Client{Timeout: 30 * time.Second}}
	failures := v.verifyAll(interactions)

	if failures > 0 {
		log.Error("verification failed", zap.Int("failures", failures), zap.Int("total", len(interactions)))
		return exitMismatch
	}
	log.Info("verification succeeded", zap.Int("total", len(interactions)))
	return exitOK
}

func newLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "none") {
		return zap.NewNop(), nil
	}
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "debug", "trace":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	default:
		return nil, fmt.Errorf("unknown -loglevel %q", level)
	}
	return cfg.Build()
}

// configFileShape mirrors config's flag-settable fields for YAML decoding;
// every field is optional and only overrides a value the flags left at its
// default (empty, or localhost/8080 for hostname/port).
type configFileShape struct {
	File           string `yaml:"file"`
	Dir            string `yaml:"dir"`
	URL            string `yaml:"url"`
	BrokerURL      string `yaml:"brokerUrl"`
	ProviderName   string `yaml:"providerName"`
	Hostname       string `yaml:"hostname"`
	Port           int    `yaml:"port"`
	StateChangeURL string `yaml:"stateChangeUrl"`
}

func applyConfigFile(cfg *config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	var fromFile configFileShape
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.File == "" {
		cfg.File = fromFile.File
	}
	if cfg.Dir == "" {
		cfg.Dir = fromFile.Dir
	}
	if cfg.URL == "" {
		cfg.URL = fromFile.URL
	}
	if cfg.BrokerURL == "" {
		cfg.BrokerURL = fromFile.BrokerURL
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = fromFile.ProviderName
	}
	if fromFile.Hostname != "" && cfg.Hostname == "localhost" {
		cfg.Hostname = fromFile.Hostname
	}
	if fromFile.Port != 0 && cfg.Port == 8080 {
		cfg.Port = fromFile.Port
	}
	if cfg.StateChangeURL == "" {
		cfg.StateChangeURL = fromFile.StateChangeURL
	}
	return nil
}

func loadInteractions(cfg config, log *zap.Logger) ([]model.Interaction, error) {
	switch {
	case cfg.File != "":
		data, err := os.ReadFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", cfg.File, err)
		}
		interactions, _, _, err := pactfile.Decode(data)
		return interactions, err

	case cfg.Dir != "":
		entries, err := os.ReadDir(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("reading dir %s: %w", cfg.Dir, err)
		}
		var all []model.Interaction
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			data, err := os.ReadFile(cfg.Dir + "/" + e.Name())
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
			}
			interactions, _, _, err := pactfile.Decode(data)
			if err != nil {
				return nil, fmt.Errorf("decoding %s: %w", e.Name(), err)
			}
			all = append(all, interactions...)
		}
		return all, nil

	case cfg.URL != "":
		resp, err := http.Get(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", cfg.URL, err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response from %s: %w", cfg.URL, err)
		}
		interactions, _, _, err := pactfile.Decode(data)
		return interactions, err

	case cfg.BrokerURL != "":
		if cfg.ProviderName == "" {
			return nil, fmt.Errorf("-provider-name is required with -broker-url")
		}
		broker := dsl.NewBroker(cfg.BrokerURL)
		broker.Log = log
		links, err := broker.LatestPacts(cfg.ProviderName, "")
		if err != nil {
			return nil, err
		}
		var all []model.Interaction
		for _, link := range links {
			if len(cfg.FilterConsumer) > 0 && !containsString([]string(cfg.FilterConsumer), link.Name) {
				continue
			}
			fetched, _, _, err := broker.FetchPact(link.Href)
			if err != nil {
				return nil, err
			}
			all = append(all, fetched...)
		}
		return all, nil

	default:
		return nil, fmt.Errorf("one of -file, -dir, -url, or -broker-url is required")
	}
}

func filterInteractions(cfg config, in []model.Interaction) []model.Interaction {
	var descRe *regexp.Regexp
	if cfg.FilterDescription != "" {
		descRe, _ = regexp.Compile(cfg.FilterDescription)
	}

	out := make([]model.Interaction, 0, len(in))
	for _, i := range in {
		if descRe != nil && !descRe.MatchString(i.Description) {
			continue
		}
		if cfg.FilterNoState && len(i.ProviderStates) > 0 {
			continue
		}
		if cfg.FilterState != "" && !containsString(i.ProviderStates, cfg.FilterState) {
			continue
		}
		out = append(out, i)
	}
	return out
}

func containsString(states []string, want string) bool {
	for _, s := range states {
		if s == want {
			return true
		}
	}
	return false
}

type verifier struct {
	cfg    config
	log    *zap.Logger
	client *http.Client
}

func (v *verifier) verifyAll(interactions []model.Interaction) int {
	failures := 0
	for _, interaction := range interactions {
		if err := v.setupState(interaction, false); err != nil {
			v.log.Error("state change failed", zap.String("description", interaction.Description), zap.Error(err))
			failures++
			continue
		}

		mismatches, err := v.verifyOne(interaction)
		if err != nil {
			v.log.Error("verification request failed", zap.String("description", interaction.Description), zap.Error(err))
			failures++
		} else if len(mismatches) > 0 {
			v.log.Error("interaction mismatched",
				zap.String("description", interaction.Description),
				zap.Int("mismatches", len(mismatches)),
			)
			for _, m := range mismatches {
				v.log.Info("mismatch detail", zap.String("message", m.Message))
			}
			failures++
		} else {
			v.log.Info("interaction verified", zap.String("description", interaction.Description))
		}

		if v.cfg.StateChangeTeardown {
			if err := v.setupState(interaction, true); err != nil {
				v.log.Warn("state change teardown failed", zap.String("description", interaction.Description), zap.Error(err))
			}
		}
	}
	return failures
}

func (v *verifier) setupState(interaction model.Interaction, teardown bool) error {
	if v.cfg.StateChangeURL == "" || len(interaction.ProviderStates) == 0 {
		return nil
	}
	state := interaction.ProviderStates[0]
	action := "setup"
	if teardown {
		action = "teardown"
	}

	if v.cfg.StateChangeAsQuery {
		u, err := url.Parse(v.cfg.StateChangeURL)
		if err != nil {
			return err
		}
		q := u.Query()
		q.Set("state", state)
		q.Set("action", action)
		u.RawQuery = q.Encode()
		resp, err := v.client.Get(u.String())
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return nil
	}

	payload, err := json.Marshal(map[string]string{"state": state, "action": action})
	if err != nil {
		return err
	}
	resp, err := v.client.Post(v.cfg.StateChangeURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func (v *verifier) verifyOne(interaction model.Interaction) ([]model.Mismatch, error) {
	req, err := v.buildRequest(interaction.Request)
	if err != nil {
		return nil, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling provider: %w", err)
	}
	defer resp.Body.Close()

	actual, err := responseFromHTTP(resp)
	if err != nil {
		return nil, err
	}
	return matching.MatchResponse(interaction.Response, actual), nil
}

func (v *verifier) buildRequest(r model.Request) (*http.Request, error) {
	u := fmt.Sprintf("http://%s:%d%s", v.cfg.Hostname, v.cfg.Port, r.Path)
	if len(r.Query) > 0 {
		q := url.Values{}
		for k, vs := range r.Query {
			for _, val := range vs {
				q.Add(k, val)
			}
		}
		u += "?" + q.Encode()
	}

	var body io.Reader
	if r.Body.IsPresent() {
		body = bytes.NewReader(r.Body.Value)
	}

	req, err := http.NewRequest(r.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for _, k := range r.Headers.Keys() {
		val, _ := r.Headers.Get(k)
		req.Header.Set(k, val)
	}
	return req, nil
}

func responseFromHTTP(resp *http.Response) (model.Response, error) {
	headers := model.Headers{}
	for k, vs := range resp.Header {
		if len(vs) > 0 {
			headers.Set(k, strings.Join(vs, ", "))
		}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Response{}, fmt.Errorf("reading provider response: %w", err)
	}
	body := model.MissingBody()
	if len(data) > 0 {
		body = model.PresentBody(data)
	}
	return model.Response{
		Status:  resp.StatusCode,
		Headers: headers,
		Body:    body,
	}, nil
}
