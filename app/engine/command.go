package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lmzhao/zhisieve/app/classify"
	"github.com/lmzhao/zhisieve/app/keyword"
	"github.com/lmzhao/zhisieve/app/store"
	"github.com/lmzhao/zhisieve/app/textnorm"
)

// Command is one control-surface request against the engine.
type Command struct {
	Action  string `json:"action"`
	Text    string `json:"text,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// commandKeys maps the add actions onto their backing store keys.
var commandKeys = map[string]string{
	"addTitle":   store.KeyQuestionKeywords,
	"addContent": store.KeyAnswerKeywords,
	"addAuthor":  store.KeyAuthorKeywords,
	"addComment": store.KeyCommentKeywords,
}

// HandleCommand dispatches a control command. Keyword additions persist
// first and then re-run both passes immediately, without waiting for a
// mutation, so the user sees the effect on the current page.
func (e *Engine) HandleCommand(ctx context.Context, cmd Command) error {
	if e.Closed() {
		return ErrContextInvalidated
	}

	switch cmd.Action {
	case "addTitle", "addContent", "addAuthor", "addComment":
		key := commandKeys[cmd.Action]
		// Only the author list deduplicates; the others append verbatim.
		added, err := e.addKeyword(ctx, key, cmd.Text, key == store.KeyAuthorKeywords)
		if err != nil {
			return err
		}
		if !added {
			slog.Debug("Keyword already present", "action", cmd.Action, "text", cmd.Text)
			return nil
		}
		slog.Info("Keyword added", "action", cmd.Action, "text", cmd.Text)

		// Author and comment keywords affect comments, whose pass skips
		// already-seen identifiers; forget them so the immediate pass
		// can re-judge every comment on the page.
		if key == store.KeyAuthorKeywords || key == store.KeyCommentKeywords {
			e.mu.Lock()
			e.resetCommentTrackingLocked()
			e.mu.Unlock()
		}

	case "updateFilter":
		// Configuration changed out of band (keyword edited or removed).
		// All tracking is dropped so previously hidden items whose
		// keyword disappeared get re-shown by the next pass.
		e.mu.Lock()
		e.resetTrackingLocked()
		e.mu.Unlock()

	case "deleteKeyword":
		removed, err := e.deleteKeyword(ctx, cmd.Text)
		if err != nil {
			return err
		}
		if removed == 0 {
			slog.Debug("Keyword not found in any list", "text", cmd.Text)
			return nil
		}
		slog.Info("Keyword deleted", "text", cmd.Text, "lists", removed)
		e.mu.Lock()
		e.resetTrackingLocked()
		e.mu.Unlock()

	case "updateBlockingState":
		if cmd.Enabled == nil {
			return fmt.Errorf("updateBlockingState: missing enabled flag")
		}
		value := "false"
		if *cmd.Enabled {
			value = "true"
		}
		if err := e.store.Set(ctx, store.BucketSync, store.KeyBlockingEnabled, value); err != nil {
			return fmt.Errorf("persist blocking state: %w", err)
		}
		slog.Info("Blocking state updated", "enabled", *cmd.Enabled)

	default:
		return fmt.Errorf("unknown command action %q", cmd.Action)
	}

	if err := e.RunFeedPass(ctx); err != nil {
		return err
	}
	return e.RunCommentPass(ctx)
}

// addKeyword appends a normalized keyword to the named list. With
// dedup set, a list already holding an equivalent entry is left alone.
// Reports whether the list grew.
func (e *Engine) addKeyword(ctx context.Context, key, text string, dedup bool) (bool, error) {
	normalized := textnorm.Normalize(text)
	if normalized == "" {
		return false, fmt.Errorf("empty keyword")
	}

	raw, _, err := e.store.Get(ctx, store.BucketSync, key)
	if err != nil {
		return false, fmt.Errorf("read keyword list: %w", err)
	}

	if dedup && keyword.NewSet(raw).Contains(normalized) {
		return false, nil
	}

	updated := raw
	if strings.TrimSpace(updated) == "" {
		updated = normalized
	} else {
		updated = updated + "\n" + normalized
	}
	if err := e.store.Set(ctx, store.BucketSync, key, updated); err != nil {
		return false, fmt.Errorf("persist keyword list: %w", err)
	}
	return true, nil
}

// deleteKeyword removes the keyword from every list holding it and
// reports how many lists shrank.
func (e *Engine) deleteKeyword(ctx context.Context, text string) (int, error) {
	normalized := textnorm.Normalize(text)
	if normalized == "" {
		return 0, fmt.Errorf("empty keyword")
	}

	keys := []string{
		store.KeyAuthorKeywords,
		store.KeyQuestionKeywords,
		store.KeyAnswerKeywords,
		store.KeyCommentKeywords,
	}

	removed := 0
	for _, key := range keys {
		raw, _, err := e.store.Get(ctx, store.BucketSync, key)
		if err != nil {
			return removed, fmt.Errorf("read keyword list: %w", err)
		}

		set := keyword.NewSet(raw)
		if !set.Contains(normalized) {
			continue
		}

		kept := make(keyword.Set, 0, len(set))
		for _, kw := range set {
			if kw != normalized {
				kept = append(kept, kw)
			}
		}
		if err := e.store.Set(ctx, store.BucketSync, key, kept.Raw()); err != nil {
			return removed, fmt.Errorf("persist keyword list: %w", err)
		}
		removed++
	}

	return removed, nil
}

// ClassifySelection resolves the element the user right-clicked,
// classifies its role, persists the choice and notifies menu listeners
// so the context-menu label can follow the selection.
func (e *Engine) ClassifySelection(ctx context.Context, selector string) (classify.Role, error) {
	if e.Closed() {
		return "", ErrContextInvalidated
	}

	node := e.doc.Query(selector)
	if node == nil {
		return "", fmt.Errorf("no element matches %q", selector)
	}

	role := classify.Classify(node)
	if err := e.store.Set(ctx, store.BucketLocal, store.KeySelectedType, string(role)); err != nil {
		return "", fmt.Errorf("persist selection type: %w", err)
	}

	e.emit(Event{Action: "updateContextMenu", Type: role})
	return role, nil
}
