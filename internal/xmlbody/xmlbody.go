// Package xmlbody implements the XML body matcher of spec.md §4.4: an
// element tree with `['#text']` and `['@attr']` pseudo-children, matched
// positionally for same-named element children, with rule resolution
// mirroring the JSON body matcher.
package xmlbody

import (
	"encoding/xml"
	"sort"
	"strconv"
	"strings"

	"github.com/pact-foundation/pact-go/internal/model"
	"github.com/pact-foundation/pact-go/internal/pathexpr"
	"github.com/pact-foundation/pact-go/internal/rules"
)

// element is a parsed XML element: its attributes, its direct text content,
// and its child elements in document order (compareElement groups them by
// tag name).
type element struct {
	Tag      string
	Attrs    map[string]string
	Text     string
	Children []*element
}

func parse(data []byte) (*element, error) {
	dec := xml.NewDecoder(strings.NewReader(string(data)))
	var stack []*element
	var root *element
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			e := &element{Tag: t.Name.Local, Attrs: map[string]string{}}
			for _, a := range t.Attr {
				e.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, e)
			}
			stack = append(stack, e)
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
		return nil, errNoRoot
	}
	return root, nil
}

var errNoRoot = &noRootError{}

type noRootError struct{}

func (*noRootError) Error() string { return "xmlbody: no root element" }

// Match compares expected against actual XML per catalog's "body" category.
func Match(catalog model.RuleCatalog, expected, actual model.OptionalBody) []model.Mismatch {
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

	expEl, expErr := parse(expected.Value)
	actEl, actErr := parse(actual.Value)
	if expErr != nil {
		return nil
	}
	if actErr != nil {
		return []model.Mismatch{{
			Location: model.MismatchBodyType,
			Expected: string(expected.Value),
			Actual:   string(actual.Value),
			Message:  "actual body is not valid XML",
		}}
	}

	m := &matcher{catalog: catalog}
	var mismatches []model.Mismatch
	root := []pathexpr.Segment{{Kind: pathexpr.SegName, Name: expEl.Tag}}
	m.compareElement(root, expEl, actEl, &mismatches)
	return mismatches
}

type matcher struct {
	catalog model.RuleCatalog
}

func (m *matcher) ruleSetFor(path []pathexpr.Segment) model.RuleSet {
	rs, _ := rules.Resolve(m.catalog, model.CategoryBody, func(expr string) int {
		return pathexpr.Weight(pathexpr.Compile(expr), path)
	})
	return rs
}

func (m *matcher) compareElement(path []pathexpr.Segment, expected, actual *element, out *[]model.Mismatch) {
	if expected.Tag != actual.Tag {
		*out = append(*out, model.Mismatch{
			Location: model.MismatchBody,
			Path:     pathexpr.CanonicalPath(path),
			Expected: expected.Tag,
			Actual:   actual.Tag,
			Message:  "Expected element <" + expected.Tag + "> but got <" + actual.Tag + ">",
		})
		return
	}

	attrNames := make([]string, 0, len(expected.Attrs))
	for name := range expected.Attrs {
		attrNames = append(attrNames, name)
	}
	sort.Strings(attrNames)

	for _, name := range attrNames {
		expVal := expected.Attrs[name]
		attrPath := append(append([]pathexpr.Segment{}, path...), pathexpr.Segment{Kind: pathexpr.SegName, Name: "@" + name})
		actVal, present := actual.Attrs[name]
		if !present {
			*out = append(*out, model.Mismatch{
				Location: model.MismatchBody,
				Path:     pathexpr.CanonicalPath(attrPath),
				Expected: expVal,
				Message:  "Expected attribute '" + name + "' but was missing",
			})
			continue
		}
		m.compareLeaf(attrPath, expVal, actVal, out)
	}

	if strings.TrimSpace(expected.Text) != "" {
		textPath := append(append([]pathexpr.Segment{}, path...), pathexpr.Segment{Kind: pathexpr.SegName, Name: "#text"})
		m.compareLeaf(textPath, expected.Text, actual.Text, out)
	}

	expByTag := groupByTag(expected.Children)
	actByTag := groupByTag(actual.Children)

	tags := make([]string, 0, len(expByTag))
	for tag := range expByTag {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	for _, tag := range tags {
		expChildren := expByTag[tag]
		actChildren := actByTag[tag]
		n := len(expChildren)
		if len(actChildren) < n {
			*out = append(*out, model.Mismatch{
				Location: model.MismatchBody,
				Path:     pathexpr.CanonicalPath(path),
				Message:  "Expected " + tag + " to have at least " + itoa(n) + " elements",
			})
			n = len(actChildren)
		}
		for i := 0; i < n; i++ {
			childPath := append(append([]pathexpr.Segment{}, path...), pathexpr.Segment{Kind: pathexpr.SegName, Name: tag})
			m.compareElement(childPath, expChildren[i], actChildren[i], out)
		}
	}
}

func (m *matcher) compareLeaf(path []pathexpr.Segment, expected, actual string, out *[]model.Mismatch) {
	ruleSet := m.ruleSetFor(path)
	if len(ruleSet) == 0 {
		if expected != actual {
			*out = append(*out, model.Mismatch{
				Location: model.MismatchBody,
				Path:     pathexpr.CanonicalPath(path),
				Expected: expected,
				Actual:   actual,
				Message:  "Expected " + actual + " to equal " + expected,
			})
		}
		return
	}
	for _, r := range ruleSet {
		if ok, msg := rules.Check(r, expected, actual); !ok {
			*out = append(*out, model.Mismatch{
				Location: model.MismatchBody,
				Path:     pathexpr.CanonicalPath(path),
				Expected: expected,
				Actual:   actual,
				Message:  msg,
			})
		}
	}
}

func groupByTag(els []*element) map[string][]*element {
	out := map[string][]*element{}
	for _, e := range els {
		out[e.Tag] = append(out[e.Tag], e)
	}
	return out
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
