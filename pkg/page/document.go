// Package page exposes the small slice of DOM navigation the restocker needs
// from a rendered game page: find by tag/attribute/text, parent and sibling
// lookups, and text extraction.
package page

import (
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Document is a parsed page.
type Document struct {
	Node
}

// Node is an element of a Document. The zero Node does not exist; every
// lookup on it returns another missing Node.
type Node struct {
	sel *goquery.Selection
}

// Parse reads an HTML page.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return &Document{Node: Node{sel: doc.Selection}}, nil
}

// ParseString parses an HTML string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

func wrap(sel *goquery.Selection) Node {
	if sel == nil || sel.Length() == 0 {
		return Node{}
	}
	return Node{sel: sel.First()}
}

// Exists reports whether the node was found.
func (n Node) Exists() bool {
	return n.sel != nil && n.sel.Length() > 0
}

// FindByText returns the first descendant <tag> whose trimmed text equals text.
func (n Node) FindByText(tag, text string) Node {
	if !n.Exists() {
		return Node{}
	}
	return wrap(n.sel.Find(tag).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.Text()) == text
	}))
}

// FindByAttr returns the first descendant <tag> with attr equal to value.
func (n Node) FindByAttr(tag, attr, value string) Node {
	if !n.Exists() {
		return Node{}
	}
	return wrap(n.sel.Find(tag).FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, ok := s.Attr(attr)
		return ok && v == value
	}))
}

// FindByAttrPrefix returns the first descendant <tag> whose attr starts with prefix.
func (n Node) FindByAttrPrefix(tag, attr, prefix string) Node {
	if !n.Exists() {
		return Node{}
	}
	return wrap(n.sel.Find(tag).FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, ok := s.Attr(attr)
		return ok && strings.HasPrefix(v, prefix)
	}))
}

// HasText reports whether any text node below n, trimmed, equals text.
func (n Node) HasText(text string) bool {
	found := false
	n.eachText(func(s string) bool {
		found = strings.TrimSpace(s) == text
		return !found
	})
	return found
}

// MatchText returns the first text node below n matching re.
func (n Node) MatchText(re *regexp.Regexp) (string, bool) {
	var match string
	n.eachText(func(s string) bool {
		if re.MatchString(s) {
			match = s
			return false
		}
		return true
	})
	return match, match != ""
}

func (n Node) eachText(fn func(string) bool) {
	if !n.Exists() {
		return
	}
	var walk func(*html.Node) bool
	walk = func(node *html.Node) bool {
		if node.Type == html.TextNode {
			return fn(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	for _, node := range n.sel.Nodes {
		if !walk(node) {
			return
		}
	}
}

// Parent returns the closest ancestor <tag>.
func (n Node) Parent(tag string) Node {
	if !n.Exists() {
		return Node{}
	}
	return wrap(n.sel.ParentsFiltered(tag))
}

// ParentWithClass returns the closest ancestor <tag> carrying class.
func (n Node) ParentWithClass(tag, class string) Node {
	if !n.Exists() {
		return Node{}
	}
	return wrap(n.sel.ParentsFiltered(tag).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.HasClass(class)
	}))
}

// NextSibling returns the next element sibling.
func (n Node) NextSibling() Node {
	if !n.Exists() {
		return Node{}
	}
	return wrap(n.sel.Next())
}

// Children returns the direct child elements matching tag.
func (n Node) Children(tag string) []Node {
	if !n.Exists() {
		return nil
	}
	var out []Node
	n.sel.ChildrenFiltered(tag).Each(func(_ int, s *goquery.Selection) {
		out = append(out, Node{sel: s})
	})
	return out
}

// Text is the concatenated, trimmed text of the node.
func (n Node) Text() string {
	if !n.Exists() {
		return ""
	}
	return strings.TrimSpace(n.sel.Text())
}

// Attr returns the attribute value.
func (n Node) Attr(name string) (string, bool) {
	if !n.Exists() {
		return "", false
	}
	return n.sel.Attr(name)
}

// HTML renders the node including its own tag.
func (n Node) HTML() string {
	if !n.Exists() {
		return ""
	}
	out, err := goquery.OuterHtml(n.sel)
	if err != nil {
		return ""
	}
	return out
}
