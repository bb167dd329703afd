package engine

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/net/html"

	"github.com/lmzhao/zhisieve/app/dom"
)

var (
	feedItemSel = dom.MustCompile(`.Feed, .HotItem, .List-item`)
	// Every enclosing structural wrapper gets hidden along with the
	// item: a Card left visible around a hidden Feed shows an empty
	// shell.
	structuralSel = dom.MustCompile(`.Card, .TopstoryItem, .Feed`)
)

// RunFeedPass enumerates feed items, applies the keyword rules in
// priority order (author, then title, then content) and toggles
// container visibility. Passes are idempotent: re-running against an
// unchanged document and configuration changes nothing.
func (e *Engine) RunFeedPass(ctx context.Context) error {
	blocked, err := e.feedPass(ctx)
	if err != nil {
		return err
	}

	// Stats and events go out without the engine lock held.
	for _, d := range blocked {
		slog.Info("Item blocked", "reason", d.Reason, "keyword", d.Keyword, "title", d.Title)
		e.record(ctx, d.Reason, d)
	}
	return nil
}

func (e *Engine) feedPass(ctx context.Context) (blocked []Decision, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer recoverPass("feed")

	if e.closed.Load() {
		return nil, ErrContextInvalidated
	}

	// Configuration is read fresh at the start of every pass.
	cfg, err := e.loadFilterConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("feed pass: %w", err)
	}

	if !cfg.BlockingEnabled {
		e.restoreFeedLocked()
		return nil, nil
	}

	for _, item := range e.doc.QueryAll(feedItemSel.String()) {
		if _, done := e.processed[item]; done {
			continue
		}

		title := extractTitle(item)
		if title == "" {
			// Cannot classify reliably; leave for a future pass once
			// the item finishes rendering.
			continue
		}
		if e.hasProcessedTitle(title) {
			// Duplicate render of a known-matched item under a new
			// node identity.
			continue
		}

		author := extractAuthor(item)
		content := extractContent(item)

		reason, matched := matchFeedRules(cfg, author, title, content)
		if reason == "" {
			e.showItemLocked(item, title)
			continue
		}

		e.hideItemLocked(item, title)
		blocked = append(blocked, Decision{
			Kind: "feed", Reason: reason, Keyword: matched, Title: title, Time: e.now(),
		})
	}

	// Bounded-memory policy: past the ceiling the set is cleared
	// wholesale; already-hidden items get reprocessed next pass.
	if len(e.processed) > maxProcessedEntries {
		e.processed = make(map[*html.Node]struct{})
	}

	return blocked, nil
}

// matchFeedRules applies the rule chain: author keywords against the
// author name, question keywords against the title (containment in
// either direction, since either may be a fragment of the other),
// answer keywords against the body. First match wins.
func matchFeedRules(cfg *FilterConfig, author, title, content string) (string, string) {
	if kw, ok := cfg.AuthorKeywords.Match(author); ok {
		return "author", kw
	}
	if kw, ok := cfg.QuestionKeywords.MatchEither(title); ok {
		return "title", kw
	}
	if kw, ok := cfg.AnswerKeywords.Match(content); ok {
		return "content", kw
	}
	return "", ""
}

func (e *Engine) hideItemLocked(item *html.Node, title string) {
	for _, n := range e.containers(item) {
		dom.SetHidden(n, true)
		e.processed[n] = struct{}{}
	}
	e.markTitle(title)
}

func (e *Engine) showItemLocked(item *html.Node, title string) {
	for _, n := range e.containers(item) {
		dom.SetHidden(n, false)
		delete(e.processed, n)
	}
	// Allow future re-evaluation if the item's content changes.
	e.unmarkTitle(title)
}

// containers returns the item plus every structural ancestor that is
// hidden or shown together with it.
func (e *Engine) containers(item *html.Node) []*html.Node {
	nodes := []*html.Node{item}
	for _, anc := range dom.Ancestors(item, structuralSel) {
		if anc != item {
			nodes = append(nodes, anc)
		}
	}
	return nodes
}

// restoreFeedLocked clears the hidden state of every tracked feed node
// (blocking was disabled).
func (e *Engine) restoreFeedLocked() {
	for n := range e.processed {
		dom.SetHidden(n, false)
	}
	e.processed = make(map[*html.Node]struct{})

	e.titleMu.Lock()
	e.processedTitles = make(map[string]struct{})
	e.titleMu.Unlock()
}
