// Package generate implements the generator engine of spec.md §4.6: given
// a request or response template annotated with a GeneratorCatalog, produce
// a concrete instance by replacing selected nodes with freshly generated
// values.
package generate

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"math/rand"
	"regexp/syntax"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pact-foundation/pact-go/internal/model"
	"github.com/pact-foundation/pact-go/internal/pathexpr"
)

// Source is the injected randomness source (spec.md §5: "the randomness
// source is injected or process-global; document which"). The zero value
// uses math/rand's global source, which is safe for concurrent use; callers
// that need determinism build a seeded Source with NewSource.
type Source struct {
	rng *rand.Rand
}

// NewSource builds a seeded Source for deterministic test suites.
func NewSource(seed int64) *Source {
	return &Source{rng: rand.New(rand.NewSource(seed))}
}

func (s *Source) intn(n int) int {
	if s == nil || s.rng == nil {
		return rand.Intn(n)
	}
	return s.rng.Intn(n)
}

func (s *Source) float64() float64 {
	if s == nil || s.rng == nil {
		return rand.Float64()
	}
	return s.rng.Float64()
}

// Engine applies generator catalogs to requests/responses.
type Engine struct {
	Source *Source
	Log    *zap.Logger
}

// NewEngine builds an Engine with a no-op logger if log is nil.
func NewEngine(source *Source, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{Source: source, Log: log}
}

// Context carries provider-state parameters for ProviderStateGenerator,
// per SPEC_FULL.md §5.
type Context map[string]interface{}

// Request produces a concrete Request from a template, applying the
// template's own GeneratorCatalog. With an empty catalog the result is
// identical to the input, per spec.md §8's identity invariant.
func (e *Engine) Request(ctx Context, tmpl model.Request) model.Request {
	out := tmpl
	out.Path = e.applyPath(ctx, tmpl.Generators, tmpl.Path)
	out.Headers = e.applyHeaders(ctx, tmpl.Generators, tmpl.Headers)
	out.Query = e.applyQuery(ctx, tmpl.Generators, tmpl.Query)
	out.Body = e.applyBody(ctx, tmpl.Generators, tmpl.Body)
	return out
}

// Response produces a concrete Response from a template.
func (e *Engine) Response(ctx Context, tmpl model.Response) model.Response {
	out := tmpl
	out.Status = e.applyStatus(ctx, tmpl.Generators, tmpl.Status)
	out.Headers = e.applyHeaders(ctx, tmpl.Generators, tmpl.Headers)
	out.Body = e.applyBody(ctx, tmpl.Generators, tmpl.Body)
	return out
}

func (e *Engine) applyPath(ctx Context, cat model.GeneratorCatalog, path string) string {
	for _, gens := range cat[model.CategoryPath] {
		if len(gens) == 0 {
			continue
		}
		if v, ok := e.generate(ctx, gens[0]); ok {
			return fmt.Sprintf("%v", v)
		}
	}
	return path
}

func (e *Engine) applyStatus(ctx Context, cat model.GeneratorCatalog, status int) int {
	for _, gens := range cat[model.CategoryStatus] {
		if len(gens) == 0 {
			continue
		}
		v, ok := e.generate(ctx, gens[0])
		if !ok {
			continue
		}
		n, ok := toInt(v)
		if !ok {
			continue
		}
		return clampStatus(n)
	}
	return status
}

func clampStatus(n int) int {
	if n < 100 {
		return 100
	}
	if n > 599 {
		return 599
	}
	return n
}

func (e *Engine) applyHeaders(ctx Context, cat model.GeneratorCatalog, headers model.Headers) model.Headers {
	exprs := cat[model.CategoryHeader]
	if len(exprs) == 0 {
		return headers
	}
	out := headers
	for name, gens := range exprs {
		if len(gens) == 0 {
			continue
		}
		v, ok := e.generate(ctx, gens[0])
		if !ok {
			continue
		}
		out.Set(name, fmt.Sprintf("%v", v))
	}
	return out
}

func (e *Engine) applyQuery(ctx Context, cat model.GeneratorCatalog, query model.Query) model.Query {
	exprs := cat[model.CategoryQuery]
	if len(exprs) == 0 {
		return query
	}
	out := model.Query{}
	for k, v := range query {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	for name, gens := range exprs {
		if len(gens) == 0 {
			continue
		}
		v, ok := e.generate(ctx, gens[0])
		if !ok {
			continue
		}
		vals, present := out[name]
		if !present || len(vals) == 0 {
			out[name] = []string{fmt.Sprintf("%v", v)}
			continue
		}
		vals[0] = fmt.Sprintf("%v", v)
	}
	return out
}

// applyBody is the content-type-aware dispatcher of spec.md §4.6.
func (e *Engine) applyBody(ctx Context, cat model.GeneratorCatalog, body model.OptionalBody) model.OptionalBody {
	if !body.IsPresent() {
		// Missing/Null/Empty round-trip unchanged regardless of content type.
		return body
	}
	exprs := cat[model.CategoryBody]
	if len(exprs) == 0 {
		return body
	}

	contentType := DetectContentType(body.Value)
	switch contentType {
	case model.ContentJSON:
		return e.applyJSONBody(ctx, exprs, body)
	case model.ContentXML:
		return e.applyXMLBody(ctx, exprs, body)
	default:
		// Text bodies are a no-op, per spec.md §4.6.
		return body
	}
}

// DetectContentType classifies a body the way spec.md §3 describes
// DetectedContentType: callers that have a Content-Type header should
// prefer HeaderContentType; this is a best-effort sniff for callers (like
// the generator engine) that only have bytes.
func DetectContentType(b []byte) model.ContentType {
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return model.ContentText
	}
	var v interface{}
	if json.Unmarshal([]byte(trimmed), &v) == nil {
		return model.ContentJSON
	}
	if strings.HasPrefix(trimmed, "<") {
		return model.ContentXML
	}
	return model.ContentText
}

// HeaderContentType resolves spec.md §3's DetectedContentType from a
// Content-Type header value, defaulting to Text.
func HeaderContentType(contentTypeHeader string) model.ContentType {
	media := strings.ToLower(strings.SplitN(contentTypeHeader, ";", 2)[0])
	media = strings.TrimSpace(media)
	switch {
	case strings.Contains(media, "json"):
		return model.ContentJSON
	case strings.Contains(media, "xml"):
		return model.ContentXML
	default:
		return model.ContentText
	}
}

func (e *Engine) applyJSONBody(ctx Context, exprs model.ExpressionGenerators, body model.OptionalBody) model.OptionalBody {
	var root interface{}
	if err := json.Unmarshal(body.Value, &root); err != nil {
		// Unparseable body: original preserved, per spec.md §7.
		e.Log.Warn("generator: body is not valid JSON, leaving unchanged")
		return body
	}

	for expr, gens := range exprs {
		if len(gens) == 0 {
			continue
		}
		gen := gens[0]
		compiled := pathexpr.Compile(expr)
		if compiled.Dead {
			e.Log.Warn("generator: dead path expression, skipping", zap.String("expr", expr))
			continue
		}
		refs := pathexpr.Apply(compiled, &root)
		for _, ref := range refs {
			if v, ok := e.generate(ctx, gen); ok {
				ref.Set(v)
			}
		}
	}

	out, err := json.Marshal(root)
	if err != nil {
		return body
	}
	return model.PresentBody(out)
}

// applyXMLBody mirrors applyJSONBody's path-compile -> walk -> generate ->
// set -> re-serialize shape, addressing nodes the same way
// internal/xmlbody's matcher does: the root segment is the root element's
// tag name, "@attr" segments address attributes, and "#text" addresses an
// element's direct text content.
func (e *Engine) applyXMLBody(ctx Context, exprs model.ExpressionGenerators, body model.OptionalBody) model.OptionalBody {
	root, err := parseXMLTree(body.Value)
	if err != nil {
		e.Log.Warn("generator: body is not valid XML, leaving unchanged")
		return body
	}

	changed := false
	for expr, gens := range exprs {
		if len(gens) == 0 {
			continue
		}
		gen := gens[0]
		compiled := pathexpr.Compile(expr)
		if compiled.Dead || len(compiled.Segments) == 0 {
			e.Log.Warn("generator: dead path expression, skipping", zap.String("expr", expr))
			continue
		}
		for _, set := range xmlTargets(root, compiled.Segments[1:]) {
			if v, ok := e.generate(ctx, gen); ok {
				set(fmt.Sprintf("%v", v))
				changed = true
			}
		}
	}

	if !changed {
		return body
	}
	var b strings.Builder
	writeXMLNode(&b, root)
	return model.PresentBody([]byte(b.String()))
}

// xmlNode is a minimal mutable element tree, parsed and re-serialized by
// applyXMLBody; internal/xmlbody's own element type is unexported there and
// built read-only for matching, so this package keeps its own writable copy.
type xmlNode struct {
	Tag      string
	Attrs    []xml.Attr
	Text     string
	Children []*xmlNode
}

func parseXMLTree(data []byte) (*xmlNode, error) {
	dec := xml.NewDecoder(strings.NewReader(string(data)))
	var stack []*xmlNode
	var root *xmlNode
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{Tag: t.Name.Local, Attrs: append([]xml.Attr{}, t.Attr...)}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		case xml.EndElement:
			if len(stack) > 0 {
				root = stack[len(stack)-1]
				stack = stack[:len(stack)-1]
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("generate: no root xml element")
	}
	return root, nil
}

func writeXMLNode(b *strings.Builder, n *xmlNode) {
	b.WriteByte('<')
	b.WriteString(n.Tag)
	for _, a := range n.Attrs {
		b.WriteByte(' ')
		b.WriteString(a.Name.Local)
		b.WriteString(`="`)
		xml.EscapeText(b, []byte(a.Value)) //nolint:errcheck
		b.WriteByte('"')
	}
	if len(n.Children) == 0 && n.Text == "" {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	if n.Text != "" {
		xml.EscapeText(b, []byte(n.Text)) //nolint:errcheck
	}
	for _, c := range n.Children {
		writeXMLNode(b, c)
	}
	b.WriteString("</")
	b.WriteString(n.Tag)
	b.WriteByte('>')
}

// xmlTargets resolves the setter closures segs addresses under n, matching
// internal/xmlbody's addressing convention (segs[0] names the current
// element, a following "@name" segment addresses an attribute, "#text"
// addresses direct text content, and any other name recurses into same-
// tagged children).
func xmlTargets(n *xmlNode, segs []pathexpr.Segment) []func(string) {
	if len(segs) == 0 || segs[0].Kind != pathexpr.SegName || segs[0].Name != n.Tag {
		return nil
	}
	if len(segs) == 1 {
		// Addresses the element itself; nothing scalar to replace.
		return nil
	}
	seg := segs[1]
	switch {
	case strings.HasPrefix(seg.Name, "@"):
		if len(segs) != 2 {
			return nil
		}
		return []func(string){setXMLAttr(n, strings.TrimPrefix(seg.Name, "@"))}
	case seg.Name == "#text":
		if len(segs) != 2 {
			return nil
		}
		return []func(string){setXMLText(n)}
	default:
		var out []func(string)
		for _, child := range n.Children {
			out = append(out, xmlTargets(child, segs[1:])...)
		}
		return out
	}
}

func setXMLAttr(n *xmlNode, attr string) func(string) {
	return func(v string) {
		for i := range n.Attrs {
			if n.Attrs[i].Name.Local == attr {
				n.Attrs[i].Value = v
				return
			}
		}
		n.Attrs = append(n.Attrs, xml.Attr{Name: xml.Name{Local: attr}, Value: v})
	}
}

func setXMLText(n *xmlNode) func(string) {
	return func(v string) { n.Text = v }
}

// generate produces one concrete value for gen. It returns ok=false when
// the generator cannot produce a value (e.g. a regex it cannot build a
// string for, or an unresolved provider-state expression), in which case spec.md §7
// requires the original field be preserved.
func (e *Engine) generate(ctx Context, gen model.Generator) (interface{}, bool) {
	switch gen.Kind {
	case model.GenRandomInt:
		lo, hi := gen.Min, gen.Max
		if lo > hi {
			lo, hi = hi, lo
		}
		return lo + e.Source.intn(hi-lo+1), true
	case model.GenUUID:
		return uuid.New().String(), true
	case model.GenRandomDecimal:
		digits := gen.Digits
		if digits <= 0 {
			digits = 6
		}
		scale := 1.0
		for i := 0; i < digits; i++ {
			scale *= 10
		}
		return float64(int64(e.Source.float64()*scale)) / scale, true
	case model.GenRandomHex:
		return randomHex(e, gen.Length), true
	case model.GenRandomString:
		return randomString(e, gen.Length), true
	case model.GenRegex:
		s, ok := reverseRegex(gen.Pattern)
		if !ok {
			e.Log.Warn("generator: could not build a value from regex, preserving original", zap.String("pattern", gen.Pattern))
			return nil, false
		}
		return s, true
	case model.GenDate:
		return formatNow(gen.Format, "2006-01-02"), true
	case model.GenTime:
		return formatNow(gen.Format, "15:04:05"), true
	case model.GenDateTime:
		return formatNow(gen.Format, time.RFC3339), true
	case model.GenRandomBoolean:
		return e.Source.intn(2) == 1, true
	case model.GenProviderState:
		v, ok := ctx[gen.Expression]
		if !ok {
			return nil, false
		}
		return v, true
	default:
		return nil, false
	}
}

func formatNow(format, fallback string) string {
	layout := format
	if layout == "" {
		layout = fallback
	}
	return time.Now().UTC().Format(layout)
}

const hexAlphabet = "0123456789abcdef"
const stringAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func randomHex(e *Engine, length int) string {
	if length <= 0 {
		length = 8
	}
	b := make([]byte, length)
	for i := range b {
		b[i] = hexAlphabet[e.Source.intn(len(hexAlphabet))]
	}
	return string(b)
}

func randomString(e *Engine, length int) string {
	if length <= 0 {
		length = 12
	}
	b := make([]byte, length)
	for i := range b {
		b[i] = stringAlphabet[e.Source.intn(len(stringAlphabet))]
	}
	return string(b)
}

// reverseRegex builds one string that satisfies pattern by walking its
// compiled regexp/syntax tree and picking a concrete value for each node;
// it handles the common pact-rule subset (literals, character classes,
// concatenation, bounded repetition) and gives up (ok=false) on anything
// requiring backtracking semantics this simple walk can't represent, per
// spec.md §4.6's "failure to construct yields original value".
func reverseRegex(pattern string) (string, bool) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return "", false
	}
	var b strings.Builder
	if !walkRegexNode(re, &b, 0) {
		return "", false
	}
	return b.String(), true
}

func walkRegexNode(n *syntax.Regexp, b *strings.Builder, depth int) bool {
	if depth > 64 {
		return false
	}
	switch n.Op {
	case syntax.OpLiteral:
		for _, r := range n.Rune {
			b.WriteRune(r)
		}
		return true
	case syntax.OpConcat:
		for _, sub := range n.Sub {
			if !walkRegexNode(sub, b, depth+1) {
				return false
			}
		}
		return true
	case syntax.OpCapture:
		if len(n.Sub) == 1 {
			return walkRegexNode(n.Sub[0], b, depth+1)
		}
		return false
	case syntax.OpAlternate:
		if len(n.Sub) == 0 {
			return false
		}
		return walkRegexNode(n.Sub[0], b, depth+1)
	case syntax.OpCharClass:
		if len(n.Rune) == 0 {
			return false
		}
		b.WriteRune(n.Rune[0])
		return true
	case syntax.OpAnyChar, syntax.OpAnyCharNotNL:
		b.WriteRune('x')
		return true
	case syntax.OpStar:
		return true // zero repetitions satisfies the pattern minimally
	case syntax.OpPlus:
		if len(n.Sub) != 1 {
			return false
		}
		return walkRegexNode(n.Sub[0], b, depth+1)
	case syntax.OpQuest:
		return true // the empty alternative is always valid
	case syntax.OpRepeat:
		if len(n.Sub) != 1 {
			return false
		}
		count := n.Min
		if count == 0 {
			return true
		}
		for i := 0; i < count; i++ {
			if !walkRegexNode(n.Sub[0], b, depth+1) {
				return false
			}
		}
		return true
	case syntax.OpBeginLine, syntax.OpEndLine, syntax.OpBeginText, syntax.OpEndText,
		syntax.OpWordBoundary, syntax.OpNoWordBoundary, syntax.OpEmptyMatch:
		return true
	default:
		return false
	}
}

func toInt(v interface{}) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
