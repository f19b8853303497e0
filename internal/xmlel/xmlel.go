// Package xmlel provides a small namespace-aware XML element tree.
//
// OpenADR payloads are deeply namespaced and the 2.0a/2.0b profiles move
// elements between namespaces, so the protocol layer works against a generic
// tree with prefix-map path lookups instead of static struct tags. The tree
// supports parsing, path queries, in-place text mutation, and serialization
// with a caller-supplied prefix map.
package xmlel

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// MaxPayloadSize bounds a single parsed payload.
// OpenADR distribute payloads are small; anything near this limit is garbage.
const MaxPayloadSize = 4 * 1024 * 1024

// Element is one node in the tree. Name.Space holds the full namespace URI.
type Element struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Children []*Element
	Text     string
}

// New creates an element in the given namespace with optional children.
func New(space, local string, children ...*Element) *Element {
	return &Element{
		Name:     xml.Name{Space: space, Local: local},
		Children: children,
	}
}

// NewText creates a leaf element holding character data.
func NewText(space, local, text string) *Element {
	e := New(space, local)
	e.Text = text
	return e
}

// Append adds children and returns the element for chaining.
func (e *Element) Append(children ...*Element) *Element {
	e.Children = append(e.Children, children...)
	return e
}

// Parse reads a complete XML document and returns its root element.
//
// The decoder runs in strict mode with entity expansion disabled and input
// capped at MaxPayloadSize.
func Parse(r io.Reader) (*Element, error) {
	dec := xml.NewDecoder(io.LimitReader(r, MaxPayloadSize))
	dec.Strict = true
	dec.Entity = make(map[string]string)

	var root *Element
	var stack []*Element

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Name: t.Name}
			for _, a := range t.Attr {
				// Namespace declarations are re-derived at serialization
				// time from the profile prefix map.
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				el.Attrs = append(el.Attrs, a)
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("parse xml: multiple root elements")
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("parse xml: unbalanced end element %s", t.Name.Local)
			}
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("parse xml: empty document")
	}
	return root, nil
}

// ParseString is a convenience wrapper over Parse.
func ParseString(s string) (*Element, error) {
	return Parse(strings.NewReader(s))
}

// resolvePath expands "prefix:local" path segments into qualified names.
func resolvePath(ns map[string]string, path string) ([]xml.Name, error) {
	segs := strings.Split(path, "/")
	names := make([]xml.Name, 0, len(segs))
	for _, seg := range segs {
		prefix, local, ok := strings.Cut(seg, ":")
		if !ok {
			names = append(names, xml.Name{Local: seg})
			continue
		}
		uri, ok := ns[prefix]
		if !ok {
			return nil, fmt.Errorf("unknown namespace prefix %q in path %q", prefix, path)
		}
		names = append(names, xml.Name{Space: uri, Local: local})
	}
	return names, nil
}

// Find returns the first element matching the prefix-qualified path, or nil.
// Paths look like "ei:eventDescriptor/ei:eventID"; prefixes resolve through ns.
func (e *Element) Find(ns map[string]string, path string) *Element {
	names, err := resolvePath(ns, path)
	if err != nil {
		return nil
	}
	cur := e
	for _, name := range names {
		var next *Element
		for _, c := range cur.Children {
			if c.Name == name {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// FindAll returns every element matching the path, in document order.
func (e *Element) FindAll(ns map[string]string, path string) []*Element {
	names, err := resolvePath(ns, path)
	if err != nil {
		return nil
	}
	level := []*Element{e}
	for _, name := range names {
		var next []*Element
		for _, el := range level {
			for _, c := range el.Children {
				if c.Name == name {
					next = append(next, c)
				}
			}
		}
		if len(next) == 0 {
			return nil
		}
		level = next
	}
	return level
}

// FindText returns the trimmed text of the first match, or "" when absent.
func (e *Element) FindText(ns map[string]string, path string) string {
	el := e.Find(ns, path)
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text)
}

// SetText replaces the element's character data.
func (e *Element) SetText(text string) {
	e.Text = text
}

// Marshal serializes the tree with the given prefix map.
//
// Every namespace used anywhere in the tree is declared on the root element,
// the way lxml's ElementMaker emits payloads. Namespaces missing from the
// prefix map are an error rather than silently defaulted.
func Marshal(root *Element, prefixes map[string]string) ([]byte, error) {
	byURI := make(map[string]string, len(prefixes))
	for p, uri := range prefixes {
		byURI[uri] = p
	}

	used := make(map[string]bool)
	collectNamespaces(root, used)

	var declared []string
	for uri := range used {
		if uri == "" {
			continue
		}
		if _, ok := byURI[uri]; !ok {
			return nil, fmt.Errorf("no prefix bound for namespace %q", uri)
		}
		declared = append(declared, uri)
	}
	sort.Slice(declared, func(i, j int) bool {
		return byURI[declared[i]] < byURI[declared[j]]
	})

	var b strings.Builder
	b.WriteString(xml.Header)
	if err := writeElement(&b, root, byURI, declared); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func collectNamespaces(e *Element, used map[string]bool) {
	used[e.Name.Space] = true
	for _, c := range e.Children {
		collectNamespaces(c, used)
	}
}

func writeElement(b *strings.Builder, e *Element, byURI map[string]string, declare []string) error {
	tag := qualify(e.Name, byURI)
	b.WriteByte('<')
	b.WriteString(tag)

	for _, uri := range declare {
		fmt.Fprintf(b, " xmlns:%s=%q", byURI[uri], uri)
	}
	for _, a := range e.Attrs {
		val, err := escape(a.Value)
		if err != nil {
			return err
		}
		fmt.Fprintf(b, " %s=%q", qualify(a.Name, byURI), val)
	}

	if len(e.Children) == 0 && e.Text == "" {
		b.WriteString("/>")
		return nil
	}
	b.WriteByte('>')

	if e.Text != "" {
		text, err := escape(e.Text)
		if err != nil {
			return err
		}
		b.WriteString(text)
	}
	for _, c := range e.Children {
		if err := writeElement(b, c, byURI, nil); err != nil {
			return err
		}
	}

	b.WriteString("</")
	b.WriteString(tag)
	b.WriteByte('>')
	return nil
}

func qualify(name xml.Name, byURI map[string]string) string {
	if name.Space == "" {
		return name.Local
	}
	if prefix, ok := byURI[name.Space]; ok {
		return prefix + ":" + name.Local
	}
	return name.Local
}

func escape(s string) (string, error) {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return "", err
	}
	return b.String(), nil
}
