// Package stats tracks how many items were blocked, by role, with a
// daily counter that resets on date change. Counts are persisted after
// every increment and broadcast to listeners so a UI can live-update.
package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/lmzhao/zhisieve/app/store"
)

const dateLayout = "2006-01-02"

// Counts is the persisted counter set.
type Counts struct {
	Total         int            `json:"total"`
	Today         int            `json:"today"`
	ByType        map[string]int `json:"byType"`
	LastResetDate string         `json:"lastResetDate"`
}

func newCounts(now time.Time) Counts {
	return Counts{
		ByType:        map[string]int{"author": 0, "title": 0, "content": 0, "comment": 0},
		LastResetDate: now.Format(dateLayout),
	}
}

func (c Counts) clone() Counts {
	byType := make(map[string]int, len(c.ByType))
	for k, v := range c.ByType {
		byType[k] = v
	}
	c.ByType = byType
	return c
}

// Listener receives a snapshot after every increment.
type Listener func(Counts)

// Tracker owns the counters.
type Tracker struct {
	mu        sync.Mutex
	store     store.Store
	counts    Counts
	listeners []Listener
	now       func() time.Time
}

func NewTracker(st store.Store) *Tracker {
	return &Tracker{
		store:  st,
		counts: newCounts(time.Now()),
		now:    time.Now,
	}
}

// Load restores persisted counters. Corrupt or missing data falls back
// to zeroed counters (recovered locally, never fatal).
func (t *Tracker) Load(ctx context.Context) error {
	raw, ok, err := t.store.Get(ctx, store.BucketLocal, store.KeyStats)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var counts Counts
	if err := json.Unmarshal([]byte(raw), &counts); err != nil {
		slog.Warn("Persisted stats are malformed, resetting", "error", err)
		return nil
	}
	if counts.ByType == nil {
		counts.ByType = newCounts(t.now()).ByType
	}

	t.mu.Lock()
	t.counts = counts
	t.resetIfNewDayLocked()
	t.mu.Unlock()
	return nil
}

// Record increments the counter for kind (author/title/content/
// comment), persists, and broadcasts the new snapshot.
func (t *Tracker) Record(ctx context.Context, kind string) Counts {
	t.mu.Lock()
	t.resetIfNewDayLocked()
	t.counts.Total++
	t.counts.Today++
	t.counts.ByType[kind]++
	snapshot := t.counts.clone()
	listeners := make([]Listener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	t.persist(ctx, snapshot)

	for _, fn := range listeners {
		fn(snapshot)
	}
	return snapshot
}

// Snapshot returns a copy of the current counters.
func (t *Tracker) Snapshot() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNewDayLocked()
	return t.counts.clone()
}

// Subscribe registers a listener for subsequent increments.
func (t *Tracker) Subscribe(fn Listener) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

func (t *Tracker) resetIfNewDayLocked() {
	today := t.now().Format(dateLayout)
	if today != t.counts.LastResetDate {
		t.counts.Today = 0
		t.counts.LastResetDate = today
	}
}

func (t *Tracker) persist(ctx context.Context, counts Counts) {
	raw, err := json.Marshal(counts)
	if err != nil {
		slog.Error("Failed to encode stats", "error", err)
		return
	}
	if err := t.store.Set(ctx, store.BucketLocal, store.KeyStats, string(raw)); err != nil {
		slog.Error("Failed to persist stats", "error", err)
	}
}
