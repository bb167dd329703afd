// Package engine implements the incremental DOM classification and
// filtering core: it watches the mirrored document for additions,
// classifies feed items and comments against the current keyword
// configuration, and idempotently toggles their visibility.
package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/html"

	"github.com/lmzhao/zhisieve/app/classify"
	"github.com/lmzhao/zhisieve/app/dom"
	"github.com/lmzhao/zhisieve/app/stats"
	"github.com/lmzhao/zhisieve/app/store"
)

// ErrContextInvalidated is returned by every entry point once the
// engine has been closed (the extension shell reloaded while the page
// stayed open). Callers stop processing and leave the DOM as-is.
var ErrContextInvalidated = errors.New("execution context invalidated")

// maxProcessedEntries bounds the processed-node set; exceeding it
// clears the set wholesale, accepting redundant reprocessing next pass.
const maxProcessedEntries = 1000

const (
	commentRecordTTL = time.Hour
	inflightTTL      = 5 * time.Second
	maxDecisions     = 200
)

// Event is pushed to subscribed listeners (menu and stats surfaces).
type Event struct {
	Action string        `json:"action"` // "updateStats" or "updateContextMenu"
	Type   classify.Role `json:"type,omitempty"`
	Stats  *stats.Counts `json:"stats,omitempty"`
}

// Listener receives engine events.
type Listener func(Event)

// Decision is one diagnostic record for a blocked item.
type Decision struct {
	Kind    string    `json:"kind"`   // "feed" or "comment"
	Reason  string    `json:"reason"` // author, title, content, comment
	Keyword string    `json:"keyword"`
	Title   string    `json:"title"` // normalized title, or comment id
	Time    time.Time `json:"time"`
}

type commentRecord struct {
	hidden    bool
	updatedAt time.Time
}

// Engine owns all filter tracking state. All passes and commands are
// serialized on one mutex, preserving the single-logical-thread model
// the invariants assume, while the HTTP surface stays concurrent.
type Engine struct {
	doc   *dom.Document
	store store.Store
	stats *stats.Tracker

	mu sync.Mutex

	// closed is atomic so the mutation observer can consult it while
	// the mutating caller holds the engine lock.
	closed atomic.Bool

	// Feed tracking. Membership in processed implies the node is
	// currently display:none because of a keyword match.
	processed map[*html.Node]struct{}

	// processedTitles has its own lock because the mutation observer
	// consults it synchronously while the engine lock may be held by
	// the mutating caller. Lock order is always mu before titleMu.
	titleMu         sync.RWMutex
	processedTitles map[string]struct{}

	// Comment tracking, keyed by the stable data-id attribute because
	// comment nodes are replaced wholesale on pagination.
	commentSeen    map[string]struct{}
	commentRecords map[string]commentRecord
	inflight       map[string]time.Time

	listeners []Listener
	decisions []Decision

	now func() time.Time
}

// New creates an Engine over the given document mirror and stores.
func New(doc *dom.Document, st store.Store, tracker *stats.Tracker) *Engine {
	return &Engine{
		doc:             doc,
		store:           st,
		stats:           tracker,
		processed:       make(map[*html.Node]struct{}),
		processedTitles: make(map[string]struct{}),
		commentSeen:     make(map[string]struct{}),
		commentRecords:  make(map[string]commentRecord),
		inflight:        make(map[string]time.Time),
		now:             time.Now,
	}
}

// Document returns the mirrored document.
func (e *Engine) Document() *dom.Document {
	return e.doc
}

// Subscribe registers an event listener.
func (e *Engine) Subscribe(fn Listener) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// Close invalidates the engine. Held in-flight latches are released
// and further entry points fail with ErrContextInvalidated.
func (e *Engine) Close() {
	e.closed.Store(true)
	e.mu.Lock()
	e.inflight = make(map[string]time.Time)
	e.mu.Unlock()
}

// Closed reports whether the engine has been invalidated. Lock-free so
// the mutation observer can check it mid-mutation.
func (e *Engine) Closed() bool {
	return e.closed.Load()
}

// Decisions returns the recent block diagnostics, newest last.
func (e *Engine) Decisions() []Decision {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Decision, len(e.decisions))
	copy(out, e.decisions)
	return out
}

// HiddenComments returns the comment ids currently recorded hidden.
func (e *Engine) HiddenComments() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []string
	for id, rec := range e.commentRecords {
		if rec.hidden {
			ids = append(ids, id)
		}
	}
	return ids
}

// HiddenTitles returns the normalized titles currently tracked hidden.
func (e *Engine) HiddenTitles() []string {
	e.titleMu.RLock()
	defer e.titleMu.RUnlock()
	titles := make([]string, 0, len(e.processedTitles))
	for t := range e.processedTitles {
		titles = append(titles, t)
	}
	return titles
}

// hasProcessedTitle is used by the mutation coordinator's qualifying
// predicate without entering a full pass.
func (e *Engine) hasProcessedTitle(title string) bool {
	e.titleMu.RLock()
	defer e.titleMu.RUnlock()
	_, ok := e.processedTitles[title]
	return ok
}

func (e *Engine) markTitle(title string) {
	e.titleMu.Lock()
	e.processedTitles[title] = struct{}{}
	e.titleMu.Unlock()
}

func (e *Engine) unmarkTitle(title string) {
	e.titleMu.Lock()
	delete(e.processedTitles, title)
	e.titleMu.Unlock()
}

// ResetTracking drops all tracking state (keyword configuration
// changed; every item gets re-evaluated on the next pass).
func (e *Engine) ResetTracking() {
	e.mu.Lock()
	e.resetTrackingLocked()
	e.mu.Unlock()
}

func (e *Engine) resetTrackingLocked() {
	e.processed = make(map[*html.Node]struct{})
	e.resetCommentTrackingLocked()

	e.titleMu.Lock()
	e.processedTitles = make(map[string]struct{})
	e.titleMu.Unlock()
}

// resetCommentTrackingLocked forgets every comment identifier so the
// next pass reclassifies all of them against current configuration.
func (e *Engine) resetCommentTrackingLocked() {
	e.commentSeen = make(map[string]struct{})
	e.commentRecords = make(map[string]commentRecord)
	e.inflight = make(map[string]time.Time)
}

// AppendFragment appends an HTML fragment under the first node
// matching parentExpr, serialized with the filter passes so tree
// writes never race a pass walking the tree. Mutation observers fire
// synchronously (they only consult processedTitles and the debounce
// lanes, never the engine lock).
func (e *Engine) AppendFragment(parentExpr, fragment string) ([]*html.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return nil, ErrContextInvalidated
	}
	return e.doc.Append(parentExpr, fragment)
}

// ResetDocument replaces the mirrored document (page navigation) and
// drops all tracking state.
func (e *Engine) ResetDocument(r io.Reader) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return ErrContextInvalidated
	}
	if err := e.doc.Reset(r); err != nil {
		return err
	}
	e.resetTrackingLocked()
	return nil
}

// RemoveNode detaches a node from the mirror (relay observed a
// removal). Not a qualifying mutation; no passes are scheduled.
func (e *Engine) RemoveNode(n *html.Node) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return
	}
	e.doc.Remove(n)
	delete(e.processed, n)
}

func (e *Engine) emit(event Event) {
	e.mu.Lock()
	listeners := make([]Listener, len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(event)
	}
}

func (e *Engine) record(ctx context.Context, kind string, decision Decision) {
	counts := e.stats.Record(ctx, kind)

	e.mu.Lock()
	e.decisions = append(e.decisions, decision)
	if len(e.decisions) > maxDecisions {
		e.decisions = e.decisions[len(e.decisions)-maxDecisions:]
	}
	e.mu.Unlock()

	e.emit(Event{Action: "updateStats", Stats: &counts})
}

// recoverPass keeps unexpected panics inside a pass from taking down
// the mutation coordinator (they are logged and the pass aborts).
func recoverPass(pass string) {
	if r := recover(); r != nil {
		slog.Error("Filter pass panicked", "pass", pass, "panic", r,
			"stack", string(debug.Stack()))
	}
}
