package selector

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// matcher tests a single node.
type matcher func(*html.Node) bool

func (m matcher) Match(n *html.Node) bool { return m(n) }

// compile parses a CSS selector group. Invalid selectors return an error that
// callers treat as "no match".
func compile(sel string) (cascadia.Matcher, error) {
	return cascadia.Compile(sel)
}

// query returns the first descendant of n (document order) matching m.
func query(n *html.Node, m cascadia.Matcher) *html.Node {
	return cascadia.Query(n, m)
}

// queryAll returns all descendants of n matching m in document order.
func queryAll(n *html.Node, m cascadia.Matcher) []*html.Node {
	return cascadia.QueryAll(n, m)
}

func isElement(n *html.Node, a atom.Atom) bool {
	return n.Type == html.ElementNode && n.DataAtom == a
}

func byTag(a atom.Atom) matcher {
	return func(n *html.Node) bool { return isElement(n, a) }
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// byID matches elements whose id attribute equals id.
func byID(id string) matcher {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		v, ok := attr(n, "id")
		return ok && v == id
	}
}

// byClass matches elements carrying class among their class tokens.
func byClass(class string) matcher {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode || class == "" {
			return false
		}
		v, ok := attr(n, "class")
		if !ok {
			return false
		}
		for _, c := range strings.Fields(v) {
			if c == class {
				return true
			}
		}
		return false
	}
}

// byDataField matches elements with data-field="name".
func byDataField(name string) matcher {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		v, ok := attr(n, "data-field")
		return ok && v == name
	}
}

// setText replaces all children of n with a single text node, like assigning
// textContent in a browser DOM.
func setText(n *html.Node, s string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	if s != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: s})
	}
}

// textContent concatenates the text of all descendant text nodes.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// clone returns a deep copy of n detached from any tree.
func clone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.AppendChild(clone(ch))
	}
	return c
}

// removeChildren detaches every child of n.
func removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

// childCells returns the direct <td> children of a row.
func childCells(row *html.Node) []*html.Node {
	var cells []*html.Node
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if isElement(c, atom.Td) {
			cells = append(cells, c)
		}
	}
	return cells
}
