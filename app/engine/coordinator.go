package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/lmzhao/zhisieve/app/dom"
	"github.com/lmzhao/zhisieve/app/textnorm"
)

// Debounce windows. Comment lists render in bursts after expansion, so
// their lane waits longer before classifying.
const (
	feedDebounce    = 300 * time.Millisecond
	commentDebounce = 500 * time.Millisecond
)

// Clock abstracts timer creation so coordinator tests can drive a
// virtual clock instead of sleeping.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a stoppable pending callback.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// lane coalesces triggers into at most one pending execution: a new
// trigger replaces the pending timer, it never queues another run.
type lane struct {
	mu    sync.Mutex
	clock Clock
	delay time.Duration
	timer Timer
	run   func()
}

func (l *lane) schedule() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = l.clock.AfterFunc(l.delay, func() {
		l.mu.Lock()
		l.timer = nil
		l.mu.Unlock()
		l.run()
	})
}

func (l *lane) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

// Coordinator observes document mutations and decides whether added
// content warrants re-running the filter passes. Only added nodes
// qualify; attribute and style changes never do, which is what keeps
// the engine's own visibility toggles from feeding back into it.
type Coordinator struct {
	engine  *Engine
	feed    *lane
	comment *lane
}

var coordinatorTitleSel = dom.MustCompile(
	`h1, h2, h3, h4, h5, h6, .ContentItem-title, .QuestionItem-title, .HotItem-title`)

// NewCoordinator builds a coordinator over the engine's document.
func NewCoordinator(e *Engine, clock Clock) *Coordinator {
	c := &Coordinator{engine: e}

	c.feed = &lane{clock: clock, delay: feedDebounce, run: func() {
		c.runPass("feed", e.RunFeedPass)
	}}
	c.comment = &lane{clock: clock, delay: commentDebounce, run: func() {
		c.runPass("comment", e.RunCommentPass)
	}}

	return c
}

// Start attaches the coordinator to the document and runs the initial
// passes.
func (c *Coordinator) Start() {
	c.engine.Document().Observe(c.onMutation)
	c.runPass("feed", c.engine.RunFeedPass)
	c.runPass("comment", c.engine.RunCommentPass)
}

// Stop cancels any pending debounced passes.
func (c *Coordinator) Stop() {
	c.feed.stop()
	c.comment.stop()
}

func (c *Coordinator) onMutation(added []*html.Node) {
	if c.engine.Closed() {
		return
	}

	if c.feedWorthy(added) {
		c.feed.schedule()
	}
	if c.commentWorthy(added) {
		c.comment.schedule()
	}
}

// feedWorthy: some added subtree contains a title element whose
// normalized text is not already tracked as processed.
func (c *Coordinator) feedWorthy(added []*html.Node) bool {
	for _, root := range added {
		qualifying := false
		dom.Walk(root, func(n *html.Node) bool {
			if qualifying {
				return false
			}
			if coordinatorTitleSel.Match(n) {
				title := textnorm.Normalize(dom.Text(n))
				if title != "" && !c.engine.hasProcessedTitle(title) {
					qualifying = true
				}
				return false
			}
			return true
		})
		if qualifying {
			return true
		}
	}
	return false
}

// commentWorthy: an added subtree carries the comment-count marker or
// an identifiable comment node.
func (c *Coordinator) commentWorthy(added []*html.Node) bool {
	for _, root := range added {
		if strings.Contains(dom.Text(root), commentCountMarker) {
			return true
		}
		found := false
		dom.Walk(root, func(n *html.Node) bool {
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
			return true
		}
	}
	return false
}

// runPass executes a pass at the pass boundary: errors are logged and
// swallowed so a failing pass can never stop future scheduling.
func (c *Coordinator) runPass(name string, pass func(context.Context) error) {
	if err := pass(context.Background()); err != nil {
		if errors.Is(err, ErrContextInvalidated) {
			return
		}
		slog.Error("Filter pass failed", "pass", name, "error", err)
	}
}
