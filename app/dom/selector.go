package dom

import (
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Selector is a compiled CSS selector group usable as a per-node
// predicate. goquery only answers document-level queries, so ancestor
// walks (Closest, Ancestors) go through cascadia directly.
type Selector struct {
	expr  string
	group cascadia.SelectorGroup
}

// MustCompile parses a CSS selector group, panicking on invalid input.
// All selectors in this codebase are compile-time literals.
func MustCompile(expr string) Selector {
	group, err := cascadia.ParseGroup(expr)
	if err != nil {
		panic("dom: invalid selector " + expr + ": " + err.Error())
	}
	return Selector{expr: expr, group: group}
}

// Match reports whether the element node matches the selector.
func (s Selector) Match(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	return s.group.Match(n)
}

func (s Selector) String() string {
	return s.expr
}

// Closest returns n or its nearest ancestor matching sel, nil if none.
func Closest(n *html.Node, sel Selector) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if sel.Match(cur) {
			return cur
		}
	}
	return nil
}

// Ancestors returns n plus every ancestor matching sel, nearest first.
func Ancestors(n *html.Node, sel Selector) []*html.Node {
	var matched []*html.Node
	for cur := n; cur != nil; cur = cur.Parent {
		if sel.Match(cur) {
			matched = append(matched, cur)
		}
	}
	return matched
}
