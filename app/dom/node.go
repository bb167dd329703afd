package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Text returns the concatenated text content of n's subtree.
func Text(n *html.Node) string {
	var b strings.Builder
	writeText(n, &b)
	return b.String()
}

func writeText(n *html.Node, b *strings.Builder) {
	if n == nil {
		return
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(c, b)
	}
}

// TextSkipping works like Text but leaves out any subtree matching
// skip. The comment filter uses it to drop quoted author links from
// comment bodies.
func TextSkipping(n *html.Node, skip Selector) string {
	var b strings.Builder
	writeTextSkipping(n, skip, &b)
	return b.String()
}

func writeTextSkipping(n *html.Node, skip Selector, b *strings.Builder) {
	if n == nil || skip.Match(n) {
		return
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeTextSkipping(c, skip, b)
	}
}

// Attr returns the value of the named attribute, empty if absent.
func Attr(n *html.Node, name string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, name, value string) {
	for i := range n.Attr {
		if n.Attr[i].Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	for i := range n.Attr {
		if n.Attr[i].Key == name {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

const hiddenDecl = "display:none"

// SetHidden toggles an inline display:none declaration on the element.
// Any other inline style declarations are preserved. This mutates an
// attribute only and therefore never triggers mutation observers; the
// filter passes rely on that to avoid re-triggering themselves.
func SetHidden(n *html.Node, hidden bool) {
	if n == nil || n.Type != html.ElementNode {
		return
	}

	decls := splitStyle(Attr(n, "style"))
	kept := decls[:0]
	for _, d := range decls {
		if d != hiddenDecl {
			kept = append(kept, d)
		}
	}
	if hidden {
		kept = append(kept, hiddenDecl)
	}

	if len(kept) == 0 {
		removeAttr(n, "style")
		return
	}
	setAttr(n, "style", strings.Join(kept, ";"))
}

// Hidden reports whether the element carries an inline display:none.
func Hidden(n *html.Node) bool {
	for _, d := range splitStyle(Attr(n, "style")) {
		if d == hiddenDecl {
			return true
		}
	}
	return false
}

func splitStyle(style string) []string {
	if style == "" {
		return nil
	}
	parts := strings.Split(style, ";")
	decls := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ReplaceAll(strings.TrimSpace(p), " ", "")
		if p != "" {
			decls = append(decls, p)
		}
	}
	return decls
}

// Walk visits n's subtree depth-first, stopping early when fn returns
// false for a node's children.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, fn)
	}
}
