// Package pathexpr compiles and evaluates the restricted JSONPath dialect
// shared by the matching and generator engines (spec.md §4.1): `$` anchors
// root, followed by `.name`, `['name']`, `[integer]`, `.*`, or `[*]`
// segments.
package pathexpr

import (
	"strconv"
	"strings"
)

// SegmentKind tags one token of a compiled path expression.
type SegmentKind int

const (
	SegRoot SegmentKind = iota
	SegName
	SegIndex
	SegWildcardName
	SegWildcardIndex
)

// Segment is one compiled token.
type Segment struct {
	Kind  SegmentKind
	Name  string
	Index int
}

// Expr is a compiled path expression. A dead expression (Dead == true)
// matches nothing and was produced from unparsable input; it never panics.
type Expr struct {
	Segments []Segment
	Dead     bool
	Source   string
}

// Compile parses expr into an Expr. Invalid input (unterminated brackets,
// stray symbols, empty strings) yields a dead Expr rather than an error,
// per spec.md §7: a typo in a rule expression must not fail the caller.
func Compile(expr string) Expr {
	out := Expr{Source: expr}
	if expr == "" {
		out.Dead = true
		return out
	}
	i := 0
	n := len(expr)
	if expr[i] != '$' {
		out.Dead = true
		return out
	}
	out.Segments = append(out.Segments, Segment{Kind: SegRoot})
	i++
	for i < n {
		switch expr[i] {
		case '.':
			i++
			if i < n && expr[i] == '*' {
				out.Segments = append(out.Segments, Segment{Kind: SegWildcardName})
				i++
				continue
			}
			start := i
			for i < n && expr[i] != '.' && expr[i] != '[' {
				i++
			}
			if i == start {
				out.Dead = true
				return Expr{Dead: true, Source: expr}
			}
			out.Segments = append(out.Segments, Segment{Kind: SegName, Name: expr[start:i]})
		case '[':
			i++
			if i >= n {
				return Expr{Dead: true, Source: expr}
			}
			if expr[i] == '*' {
				i++
				if i >= n || expr[i] != ']' {
					return Expr{Dead: true, Source: expr}
				}
				i++
				out.Segments = append(out.Segments, Segment{Kind: SegWildcardIndex})
				continue
			}
			if expr[i] == '\'' {
				end := strings.IndexByte(expr[i+1:], '\'')
				if end < 0 {
					return Expr{Dead: true, Source: expr}
				}
				name := expr[i+1 : i+1+end]
				i = i + 1 + end + 1
				if i >= n || expr[i] != ']' {
					return Expr{Dead: true, Source: expr}
				}
				i++
				out.Segments = append(out.Segments, Segment{Kind: SegName, Name: name})
				continue
			}
			start := i
			for i < n && expr[i] != ']' {
				i++
			}
			if i >= n {
				return Expr{Dead: true, Source: expr}
			}
			idxStr := expr[start:i]
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				return Expr{Dead: true, Source: expr}
			}
			i++
			out.Segments = append(out.Segments, Segment{Kind: SegIndex, Index: idx})
		default:
			return Expr{Dead: true, Source: expr}
		}
	}
	return out
}

// Node is a generic, mutable tree the path expression engine can walk: a
// JSON-like value that is one of nil, bool, float64, string,
// map[string]interface{}, or []interface{}.
type Node = interface{}

// NodeRef is an ownership-neutral locator permitting in-place replacement,
// per spec.md §4.1 (Apply returns these instead of copies).
type NodeRef struct {
	// Exactly one of Object/Array is non-nil.
	Object map[string]interface{}
	Key    string

	Array *[]interface{}
	Index int

	// Root is set when the ref addresses the whole tree via `$`; Get/Set
	// then operate on *RootValue instead of a container slot.
	Root      bool
	RootValue *interface{}
}

// Get returns the node's current value.
func (r NodeRef) Get() interface{} {
	if r.Root {
		return *r.RootValue
	}
	if r.Object != nil {
		return r.Object[r.Key]
	}
	return (*r.Array)[r.Index]
}

// Set replaces the node's value in place.
func (r NodeRef) Set(v interface{}) {
	if r.Root {
		*r.RootValue = v
		return
	}
	if r.Object != nil {
		r.Object[r.Key] = v
		return
	}
	(*r.Array)[r.Index] = v
}

// Apply walks root and yields one NodeRef per matched location. A dead
// expression yields nothing. Results are produced in a stable, deterministic
// order: a wildcard visits object keys in sorted order and array elements
// by index.
func Apply(e Expr, root *interface{}) []NodeRef {
	if e.Dead || len(e.Segments) == 0 {
		return nil
	}
	refs := []NodeRef{{Root: true, RootValue: root}}
	for _, seg := range e.Segments[1:] {
		var next []NodeRef
		for _, ref := range refs {
			next = append(next, stepSegment(seg, ref)...)
		}
		refs = next
		if len(refs) == 0 {
			return nil
		}
	}
	return refs
}

func stepSegment(seg Segment, ref NodeRef) []NodeRef {
	val := ref.Get()
	switch seg.Kind {
	case SegName:
		obj, ok := val.(map[string]interface{})
		if !ok {
			return nil
		}
		if _, present := obj[seg.Name]; !present {
			return nil
		}
		return []NodeRef{{Object: obj, Key: seg.Name}}
	case SegWildcardName:
		obj, ok := val.(map[string]interface{})
		if !ok {
			return nil
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sortStrings(keys)
		out := make([]NodeRef, 0, len(keys))
		for _, k := range keys {
			out = append(out, NodeRef{Object: obj, Key: k})
		}
		return out
	case SegIndex:
		arr, ok := val.([]interface{})
		if !ok || seg.Index < 0 || seg.Index >= len(arr) {
			return nil
		}
		return []NodeRef{{Array: &arr, Index: seg.Index}}
	case SegWildcardIndex:
		arr, ok := val.([]interface{})
		if !ok {
			return nil
		}
		out := make([]NodeRef, 0, len(arr))
		for i := range arr {
			out = append(out, NodeRef{Array: &arr, Index: i})
		}
		return out
	}
	return nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// CanonicalPath renders a concrete location (no wildcards) in the "$.a[1].b"
// form required by spec.md §4.3 for BodyMismatch.Path.
func CanonicalPath(parts []Segment) string {
	var b strings.Builder
	b.WriteByte('$')
	for _, p := range parts {
		switch p.Kind {
		case SegName:
			if isSimpleIdent(p.Name) {
				b.WriteByte('.')
				b.WriteString(p.Name)
			} else {
				b.WriteString("['")
				b.WriteString(p.Name)
				b.WriteString("']")
			}
		case SegIndex:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(p.Index))
			b.WriteByte(']')
		}
	}
	return b.String()
}

func isSimpleIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}

// Weight scores how specifically expr addresses concretePath, for the
// matcher's rule-conflict resolution (spec.md §4.1): a literal segment
// outweighs a wildcard at the same position, and a longer expression
// outweighs a shorter one. Expressions that cannot address concretePath at
// all score -1.
func Weight(expr Expr, concrete []Segment) int {
	if expr.Dead {
		return -1
	}
	exprBody := expr.Segments[1:]
	if len(exprBody) != len(concrete) {
		return -1
	}
	weight := 0
	for i, es := range exprBody {
		cs := concrete[i]
		switch es.Kind {
		case SegName:
			if cs.Kind != SegName || cs.Name != es.Name {
				return -1
			}
			weight += 2
		case SegIndex:
			if cs.Kind != SegIndex || cs.Index != es.Index {
				return -1
			}
			weight += 2
		case SegWildcardName:
			if cs.Kind != SegName {
				return -1
			}
			weight++
		case SegWildcardIndex:
			if cs.Kind != SegIndex {
				return -1
			}
			weight++
		}
	}
	// Longer paths outrank shorter ones regardless of per-segment score.
	return weight + len(exprBody)*100
}
