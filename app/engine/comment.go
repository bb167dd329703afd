package engine

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/lmzhao/zhisieve/app/dom"
	"github.com/lmzhao/zhisieve/app/textnorm"
)

// Comments are identified by their data-id attribute, not node
// identity: the comment list DOM is replaced wholesale on pagination
// and expansion while the identifiers persist.
const (
	commentIDAttr = "data-id"
	// Text markers on the comment UI. commentCountMarker appears in
	// the "N 条评论" header, replyMarker in "回复 someone" links.
	commentCountMarker = "条评论"
	replyMarker        = "回复"
)

var (
	commentNodeSel   = dom.MustCompile(`div[data-id]`)
	commentAuthorSel = dom.MustCompile(`.UserLink-link`)
	commentBodySel   = dom.MustCompile(`.CommentContent`)
	commentMetaSel   = dom.MustCompile(`.CommentItemV2-meta, .CommentItem-meta`)

	// Emoji shortcodes like [捂脸] embedded in comment bodies.
	bracketTagRe = regexp.MustCompile(`\[[^\[\]]{1,16}\]`)
)

// RunCommentPass classifies every not-yet-seen comment in the
// document's comment lists and syncs visibility for comments whose
// identifier is already known. Hidden-state changes are the only DOM
// mutations; an unchanged outcome touches nothing.
func (e *Engine) RunCommentPass(ctx context.Context) error {
	blocked, err := e.commentPass(ctx)
	if err != nil {
		return err
	}

	for _, d := range blocked {
		slog.Info("Comment blocked", "reason", d.Reason, "keyword", d.Keyword, "comment_id", d.Title)
		e.record(ctx, d.Reason, d)
	}
	return nil
}

func (e *Engine) commentPass(ctx context.Context) (blocked []Decision, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer recoverPass("comment")

	if e.closed.Load() {
		return nil, ErrContextInvalidated
	}

	now := e.now()
	e.evictStaleLocked(now)

	cfg, err := e.loadFilterConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("comment pass: %w", err)
	}

	if !cfg.BlockingEnabled {
		e.restoreCommentsLocked()
		return nil, nil
	}

	for _, node := range e.commentNodes() {
		id := dom.Attr(node, commentIDAttr)
		if id == "" {
			continue
		}

		if _, seen := e.commentSeen[id]; seen {
			// Known identifier on a (possibly replaced) node: re-apply
			// the recorded state without re-logging or re-counting.
			if rec, ok := e.commentRecords[id]; ok {
				dom.SetHidden(node, rec.hidden)
				rec.updatedAt = now
				e.commentRecords[id] = rec
			}
			continue
		}
		e.commentSeen[id] = struct{}{}

		// Per-identifier latch. Under the engine lock it is set and
		// cleared in one critical section, so an entry only survives a
		// panicked classification; the TTL lets such ids recover.
		if started, inflight := e.inflight[id]; inflight && now.Sub(started) < inflightTTL {
			continue
		}
		e.inflight[id] = now

		decision := e.classifyComment(cfg, node, id, now)
		delete(e.inflight, id)

		if decision != nil {
			blocked = append(blocked, *decision)
		}
	}

	return blocked, nil
}

// classifyComment applies the comment rules and syncs visibility when
// the outcome differs from the recorded state. Returns a Decision when
// the comment transitioned to hidden.
func (e *Engine) classifyComment(cfg *FilterConfig, node *html.Node, id string, now time.Time) *Decision {
	author := extractCommentAuthor(node)
	body := extractCommentBody(node)

	var reason, matched string
	if kw, ok := cfg.AuthorKeywords.MatchEither(author); ok {
		reason, matched = "author", kw
	} else if kw, ok := cfg.CommentKeywords.Match(body); ok {
		reason, matched = "comment", kw
	}
	hidden := reason != ""

	rec, has := e.commentRecords[id]
	if has && rec.hidden == hidden {
		rec.updatedAt = now
		e.commentRecords[id] = rec
		return nil
	}

	dom.SetHidden(node, hidden)
	e.commentRecords[id] = commentRecord{hidden: hidden, updatedAt: now}

	if !hidden {
		return nil
	}
	return &Decision{
		Kind: "comment", Reason: reason, Keyword: matched, Title: id, Time: now,
	}
}

// commentNodes locates comment nodes inside comment list containers.
// Lists are found by their comment-count header text; when no list can
// be identified, every identifiable comment node document-wide is
// treated as one virtual list.
func (e *Engine) commentNodes() []*html.Node {
	var nodes []*html.Node
	seen := make(map[*html.Node]struct{})

	for _, marker := range e.doc.QueryAll("h2, h3, div, span") {
		if !nodeOwnTextContains(marker, commentCountMarker) {
			continue
		}
		list := listAncestorWithComments(marker)
		if list == nil {
			continue
		}
		dom.Walk(list, func(n *html.Node) bool {
			if commentNodeSel.Match(n) {
				if _, dup := seen[n]; !dup {
					seen[n] = struct{}{}
					nodes = append(nodes, n)
				}
				return false
			}
			return true
		})
	}

	if len(nodes) > 0 {
		return nodes
	}
	return e.doc.QueryAll(commentNodeSel.String())
}

// listAncestorWithComments walks upward from the marker to the nearest
// ancestor that actually holds identifiable comment nodes.
func listAncestorWithComments(marker *html.Node) *html.Node {
	for cur := marker.Parent; cur != nil; cur = cur.Parent {
		found := false
		dom.Walk(cur, func(n *html.Node) bool {
			if found {
				return false
			}
			if commentNodeSel.Match(n) {
				found = true
				return false
			}
			return true
		})
		if found {
			return cur
		}
	}
	return nil
}

// nodeOwnTextContains checks the node's direct text children only, so
// a page-level wrapper does not match through its descendants.
func nodeOwnTextContains(n *html.Node, marker string) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode && strings.Contains(c.Data, marker) {
			return true
		}
	}
	return false
}

// extractCommentAuthor scans the comment's author links, skipping
// reply-to links ("回复 someone"), and falls back to the meta header
// region when no link qualifies.
func extractCommentAuthor(node *html.Node) string {
	var author string
	dom.Walk(node, func(n *html.Node) bool {
		if author != "" {
			return false
		}
		if commentAuthorSel.Match(n) {
			text := dom.Text(n)
			if strings.Contains(text, replyMarker) {
				return false
			}
			if normalized := textnorm.Normalize(text); normalized != "" {
				author = normalized
			}
			return false
		}
		return true
	})
	if author != "" {
		return author
	}

	var meta *html.Node
	dom.Walk(node, func(n *html.Node) bool {
		if meta != nil {
			return false
		}
		if commentMetaSel.Match(n) {
			meta = n
			return false
		}
		return true
	})
	if meta == nil {
		return ""
	}
	return textnorm.Normalize(dom.Text(meta))
}

// extractCommentBody joins the comment body's text nodes, skipping
// embedded author-link subtrees so quoted names are not counted as
// comment content, and strips bracketed emoji shortcodes.
func extractCommentBody(node *html.Node) string {
	var body *html.Node
	dom.Walk(node, func(n *html.Node) bool {
		if body != nil {
			return false
		}
		if commentBodySel.Match(n) {
			body = n
			return false
		}
		return true
	})
	if body == nil {
		return ""
	}

	text := dom.TextSkipping(body, commentAuthorSel)
	text = bracketTagRe.ReplaceAllString(text, "")
	return textnorm.Normalize(text)
}

// restoreCommentsLocked re-shows every comment recorded hidden and
// drops all comment tracking (blocking was disabled), so re-enabling
// reclassifies every comment instead of trusting stale records.
func (e *Engine) restoreCommentsLocked() {
	if len(e.commentSeen) == 0 && len(e.commentRecords) == 0 {
		return
	}

	hidden := make(map[string]struct{})
	for id, rec := range e.commentRecords {
		if rec.hidden {
			hidden[id] = struct{}{}
		}
	}

	for _, node := range e.doc.QueryAll(commentNodeSel.String()) {
		id := dom.Attr(node, commentIDAttr)
		if _, ok := hidden[id]; ok {
			dom.SetHidden(node, false)
		}
	}

	e.resetCommentTrackingLocked()
}

// evictStaleLocked drops comment records past their TTL and forgets
// their identifiers, so a reappearing element gets reclassified.
func (e *Engine) evictStaleLocked(now time.Time) {
	for id, rec := range e.commentRecords {
		if now.Sub(rec.updatedAt) > commentRecordTTL {
			delete(e.commentRecords, id)
			delete(e.commentSeen, id)
		}
	}
}
