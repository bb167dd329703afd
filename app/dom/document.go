// Package dom maintains a live mirror of a page's DOM tree. The relay
// posts the initial document and subsequent fragments; the filter
// engine queries and mutates the mirror and observes additions the way
// a MutationObserver would.
package dom

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Observer receives the element nodes added by a single mutation.
// Attribute changes (visibility toggles included) are never reported.
type Observer func(added []*html.Node)

// Document is a mutable HTML tree with mutation observation. Tree
// reads and writes are serialized internally; observers are invoked
// outside the lock.
type Document struct {
	mu        sync.RWMutex
	root      *html.Node
	observers []Observer
}

// Parse builds a Document from a full HTML page.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString builds a Document from an HTML string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Reset replaces the whole tree, e.g. on page navigation. Observers
// stay registered; the caller is responsible for resetting any
// per-page tracking state.
func (d *Document) Reset(r io.Reader) error {
	root, err := html.Parse(r)
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}

	d.mu.Lock()
	d.root = root
	d.mu.Unlock()
	return nil
}

// Observe registers a mutation observer.
func (d *Document) Observe(fn Observer) {
	d.mu.Lock()
	d.observers = append(d.observers, fn)
	d.mu.Unlock()
}

// QueryAll returns all nodes matching the CSS selector expression.
func (d *Document) QueryAll(expr string) []*html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return goquery.NewDocumentFromNode(d.root).Find(expr).Nodes
}

// Query returns the first node matching expr, nil if none.
func (d *Document) Query(expr string) *html.Node {
	nodes := d.QueryAll(expr)
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

// Append parses fragment and appends its top-level nodes under the
// first node matching parentExpr. Added element nodes are reported to
// observers. This is the only mutation that notifies: removals and
// attribute changes are not qualifying mutations for the filter
// engine.
func (d *Document) Append(parentExpr, fragment string) ([]*html.Node, error) {
	d.mu.Lock()

	parents := goquery.NewDocumentFromNode(d.root).Find(parentExpr).Nodes
	if len(parents) == 0 {
		d.mu.Unlock()
		return nil, fmt.Errorf("no node matches parent selector %q", parentExpr)
	}
	parent := parents[0]

	children, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("failed to parse fragment: %w", err)
	}

	added := make([]*html.Node, 0, len(children))
	for _, c := range children {
		parent.AppendChild(c)
		if c.Type == html.ElementNode {
			added = append(added, c)
		}
	}

	observers := make([]Observer, len(d.observers))
	copy(observers, d.observers)
	d.mu.Unlock()

	// Notify outside the lock so observers can query the document.
	if len(added) > 0 {
		for _, fn := range observers {
			fn(added)
		}
	}

	return added, nil
}

// Remove detaches n from the tree. Node removal is not a qualifying
// mutation, so observers are not notified.
func (d *Document) Remove(n *html.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Render serializes the current tree, visibility state included.
func (d *Document) Render(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := html.Render(w, d.root); err != nil {
		return fmt.Errorf("failed to render document: %w", err)
	}
	return nil
}

// RenderString serializes the current tree to a string.
func (d *Document) RenderString() (string, error) {
	var b strings.Builder
	if err := d.Render(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}
