package matching

import (
	"go.uber.org/zap"

	"github.com/pact-foundation/pact-go/internal/generate"
	"github.com/pact-foundation/pact-go/internal/jsonbody"
	"github.com/pact-foundation/pact-go/internal/model"
	"github.com/pact-foundation/pact-go/internal/xmlbody"
)

// Matcher is the facade collaborators call. It holds only a logger, since
// the core is otherwise purely functional (spec.md §5): no internal
// mutation occurs during matching, so a single Matcher may be shared
// across goroutines.
type Matcher struct {
	Log *zap.Logger
}

// NewMatcher builds a Matcher; a nil logger becomes a no-op logger.
func NewMatcher(log *zap.Logger) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{Log: log}
}

func bodyContentType(headers model.Headers) model.ContentType {
	ct, ok := headers.Get("Content-Type")
	if !ok {
		return model.ContentText
	}
	return generate.HeaderContentType(ct)
}

func matchBody(catalog model.RuleCatalog, contentType model.ContentType, expected, actual model.OptionalBody) []model.Mismatch {
	switch contentType {
	case model.ContentJSON:
		return jsonbody.Match(catalog, expected, actual)
	case model.ContentXML:
		return xmlbody.Match(catalog, expected, actual)
	default:
		if !expected.IsPresent() {
			return nil
		}
		if !actual.IsPresent() {
			return []model.Mismatch{{
				Location: model.MismatchBody,
				Path:     "/",
				Expected: string(expected.Value),
				Message:  "Expected body '" + string(expected.Value) + "' but was missing",
			}}
		}
		if string(expected.Value) != string(actual.Value) {
			return []model.Mismatch{{
				Location: model.MismatchBody,
				Path:     "/",
				Expected: string(expected.Value),
				Actual:   string(actual.Value),
				Message:  "Expected body '" + string(expected.Value) + "' to equal '" + string(actual.Value) + "'",
			}}
		}
		return nil
	}
}

// routes reports whether actual's method and path agree with expected
// under expected's own matching rules (spec.md §4.7 step 1).
func routes(expected model.Request, actual model.Request) bool {
	if !matchMethod(expected.Method, actual.Method) {
		return false
	}
	ok, _ := matchPath(expected.Matching, expected.Path, actual.Path)
	return ok
}

// MatchResponse compares an actual response against an expected template
// and returns every mismatch found (spec.md §6's match_response).
func MatchResponse(expected, actual model.Response) []model.Mismatch {
	var out []model.Mismatch
	if ok, m := matchStatus(expected.Matching, expected.Status, actual.Status); !ok {
		out = append(out, m)
	}
	out = append(out, matchHeaders(expected.Matching, expected.Headers, actual.Headers)...)
	contentType := bodyContentType(expected.Headers)
	out = append(out, matchBody(expected.Matching, contentType, expected.Body, actual.Body)...)
	return out
}

// matchRequestMismatches collects every mismatch between an expected and actual
// request, excluding the routing fields (method/path), which the selector
// has already used to decide candidacy.
func matchRequestMismatches(expected, actual model.Request) []model.Mismatch {
	var out []model.Mismatch
	out = append(out, matchQuery(expected.Matching, expected.Query, actual.Query)...)
	out = append(out, matchHeaders(expected.Matching, expected.Headers, actual.Headers)...)
	contentType := bodyContentType(expected.Headers)
	out = append(out, matchBody(expected.Matching, contentType, expected.Body, actual.Body)...)
	return out
}

// MatchRequest is the primary interface of spec.md §6: given an actual
// request and a set of candidate interactions, pick the best match or
// produce the most diagnostic mismatch.
//
// Algorithm (spec.md §4.7):
//  1. Partition candidates into routed (method+path agree) and unrouted.
//  2. Empty routed set => RequestNotFound, even if unrouted is non-empty:
//     misrouted candidates never become mismatches.
//  3. Among routed candidates, an empty mismatch vector is an immediate
//     RequestMatch (first in declaration order among ties).
//  4. Otherwise the fewest-mismatches candidate wins; ties break by lowest
//     total severity weight, then by which candidate specified (and
//     satisfied) the most query/header/body criteria overall — a richer,
//     equally-wrong candidate is more likely the intended one than a
//     sparser candidate that happens to fail the same way — and finally by
//     declaration order.
func (m *Matcher) MatchRequest(actual model.Request, candidates []model.Interaction) model.MatchResult {
	var routed []model.Interaction
	for _, c := range candidates {
		if routes(c.Request, actual) {
			routed = append(routed, c)
		}
	}
	if len(routed) == 0 {
		return model.MatchResult{Kind: model.ResultNotFound, Request: actual}
	}

	type scored struct {
		interaction model.Interaction
		mismatches  []model.Mismatch
		severity    int
		specificity int
	}
	scoredCandidates := make([]scored, 0, len(routed))
	for _, c := range routed {
		mismatches := matchRequestMismatches(c.Request, actual)
		if len(mismatches) == 0 {
			return model.MatchResult{Kind: model.ResultMatch, Interaction: c}
		}
		severity := 0
		for _, mm := range mismatches {
			severity += mm.SeverityWeight()
		}
		criteria := len(c.Request.Query) + c.Request.Headers.Len()
		if c.Request.Body.IsPresent() {
			criteria++
		}
		scoredCandidates = append(scoredCandidates, scored{
			interaction: c,
			mismatches:  mismatches,
			severity:    severity,
			specificity: criteria - len(mismatches),
		})
	}

	best := scoredCandidates[0]
	for _, sc := range scoredCandidates[1:] {
		switch {
		case len(sc.mismatches) != len(best.mismatches):
			if len(sc.mismatches) < len(best.mismatches) {
				best = sc
			}
		case sc.severity != best.severity:
			if sc.severity < best.severity {
				best = sc
			}
		case sc.specificity > best.specificity:
			best = sc
		}
	}
	m.Log.Debug("match_request: no routed candidate matched", zap.Int("routed", len(routed)), zap.Int("mismatches", len(best.mismatches)))
	return model.MatchResult{Kind: model.ResultMismatch, Interaction: best.interaction, Mismatches: best.mismatches}
}
