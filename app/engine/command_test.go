package engine

import (
	"context"
	"testing"

	"github.com/lmzhao/zhisieve/app/classify"
	"github.com/lmzhao/zhisieve/app/dom"
	"github.com/lmzhao/zhisieve/app/store"
)

func boolPtr(b bool) *bool { return &b }

func TestHandleCommandAddTitleFiltersImmediately(t *testing.T) {
	e, _ := newTestEngine(t, feedPage)
	ctx := context.Background()

	if err := e.RunFeedPass(ctx); err != nil {
		t.Fatalf("feed pass: %v", err)
	}
	if dom.Hidden(e.Document().QueryAll(".Feed")[0]) {
		t.Fatal("nothing should be hidden before the keyword is added")
	}

	if err := e.HandleCommand(ctx, Command{Action: "addTitle", Text: "八卦"}); err != nil {
		t.Fatalf("addTitle: %v", err)
	}

	if !dom.Hidden(e.Document().QueryAll(".Feed")[0]) {
		t.Error("matching item should be hidden right after the command")
	}

	raw, _, err := e.store.Get(ctx, store.BucketSync, store.KeyQuestionKeywords)
	if err != nil {
		t.Fatalf("get keywords: %v", err)
	}
	if raw != "八卦" {
		t.Errorf("stored keywords = %q, want 八卦", raw)
	}
}

func TestHandleCommandAddAuthorDeduplicates(t *testing.T) {
	e, _ := newTestEngine(t, feedPage)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := e.HandleCommand(ctx, Command{Action: "addAuthor", Text: "张三"}); err != nil {
			t.Fatalf("addAuthor %d: %v", i, err)
		}
	}

	raw, _, err := e.store.Get(ctx, store.BucketSync, store.KeyAuthorKeywords)
	if err != nil {
		t.Fatalf("get keywords: %v", err)
	}
	if raw != "张三" {
		t.Errorf("stored keywords = %q, repeated add must not duplicate", raw)
	}
}

func TestHandleCommandAddCommentFiltersExistingComment(t *testing.T) {
	e, _ := newTestEngine(t, commentPage)
	ctx := context.Background()

	// The page has already been through a pass; every identifier is
	// known and would normally be skipped.
	if err := e.RunCommentPass(ctx); err != nil {
		t.Fatalf("comment pass: %v", err)
	}
	if dom.Hidden(queryOne(t, e, `div[data-id="c1"]`)) {
		t.Fatal("nothing should be hidden before the keyword is added")
	}

	if err := e.HandleCommand(ctx, Command{Action: "addComment", Text: "道理"}); err != nil {
		t.Fatalf("addComment: %v", err)
	}

	if !dom.Hidden(queryOne(t, e, `div[data-id="c1"]`)) {
		t.Error("comment matching a freshly added keyword should be hidden by the immediate pass")
	}
	decisions := e.Decisions()
	if len(decisions) != 1 || decisions[0].Reason != "comment" {
		t.Errorf("decisions = %+v, want one with reason=comment", decisions)
	}
}

func TestHandleCommandAddAuthorFiltersExistingComment(t *testing.T) {
	e, _ := newTestEngine(t, commentPage)
	ctx := context.Background()

	if err := e.RunCommentPass(ctx); err != nil {
		t.Fatalf("comment pass: %v", err)
	}

	if err := e.HandleCommand(ctx, Command{Action: "addAuthor", Text: "张三"}); err != nil {
		t.Fatalf("addAuthor: %v", err)
	}

	if !dom.Hidden(queryOne(t, e, `div[data-id="c1"]`)) {
		t.Error("comment by a freshly blocked author should be hidden by the immediate pass")
	}
}

func TestHandleCommandAddTitleAppendsVerbatim(t *testing.T) {
	e, _ := newTestEngine(t, feedPage)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := e.HandleCommand(ctx, Command{Action: "addTitle", Text: "八卦"}); err != nil {
			t.Fatalf("addTitle %d: %v", i, err)
		}
	}

	raw, _, err := e.store.Get(ctx, store.BucketSync, store.KeyQuestionKeywords)
	if err != nil {
		t.Fatalf("get keywords: %v", err)
	}
	if raw != "八卦\n八卦" {
		t.Errorf("stored keywords = %q, non-author lists append verbatim", raw)
	}
}

func TestHandleCommandRejectsEmptyKeyword(t *testing.T) {
	e, _ := newTestEngine(t, feedPage)

	if err := e.HandleCommand(context.Background(), Command{Action: "addComment", Text: "  "}); err == nil {
		t.Error("expected an error for a blank keyword")
	}
}

func TestHandleCommandUpdateFilterReevaluates(t *testing.T) {
	e, st := newTestEngine(t, feedPage)
	ctx := context.Background()
	setKeywords(t, st, store.KeyQuestionKeywords, "八卦")

	if err := e.RunFeedPass(ctx); err != nil {
		t.Fatalf("feed pass: %v", err)
	}
	if !dom.Hidden(e.Document().QueryAll(".Feed")[0]) {
		t.Fatal("item should be hidden before the keyword is removed")
	}

	// Keyword removed out of band; updateFilter drops tracking and the
	// passes re-show the item.
	setKeywords(t, st, store.KeyQuestionKeywords, "")
	if err := e.HandleCommand(ctx, Command{Action: "updateFilter"}); err != nil {
		t.Fatalf("updateFilter: %v", err)
	}

	if dom.Hidden(e.Document().QueryAll(".Feed")[0]) {
		t.Error("item should be visible once its keyword is gone")
	}
}

func TestHandleCommandDeleteKeyword(t *testing.T) {
	e, st := newTestEngine(t, feedPage)
	ctx := context.Background()
	setKeywords(t, st, store.KeyQuestionKeywords, "八卦\n围棋")

	if err := e.RunFeedPass(ctx); err != nil {
		t.Fatalf("feed pass: %v", err)
	}
	if !dom.Hidden(e.Document().QueryAll(".Feed")[0]) {
		t.Fatal("item should be hidden before deletion")
	}

	if err := e.HandleCommand(ctx, Command{Action: "deleteKeyword", Text: "八卦"}); err != nil {
		t.Fatalf("deleteKeyword: %v", err)
	}

	if dom.Hidden(e.Document().QueryAll(".Feed")[0]) {
		t.Error("item should be visible once its keyword is deleted")
	}

	raw, _, err := e.store.Get(ctx, store.BucketSync, store.KeyQuestionKeywords)
	if err != nil {
		t.Fatalf("get keywords: %v", err)
	}
	if raw != "围棋" {
		t.Errorf("stored keywords = %q, want only 围棋 left", raw)
	}
}

func TestHandleCommandBlockingStateRoundTrip(t *testing.T) {
	e, st := newTestEngine(t, feedPage)
	ctx := context.Background()
	setKeywords(t, st, store.KeyQuestionKeywords, "八卦")

	if err := e.RunFeedPass(ctx); err != nil {
		t.Fatalf("feed pass: %v", err)
	}

	if err := e.HandleCommand(ctx, Command{Action: "updateBlockingState", Enabled: boolPtr(false)}); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if dom.Hidden(e.Document().QueryAll(".Feed")[0]) {
		t.Error("item should be restored while blocking is off")
	}

	if err := e.HandleCommand(ctx, Command{Action: "updateBlockingState", Enabled: boolPtr(true)}); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if !dom.Hidden(e.Document().QueryAll(".Feed")[0]) {
		t.Error("item should be hidden again once blocking is back on")
	}
}

func TestHandleCommandUnknownAction(t *testing.T) {
	e, _ := newTestEngine(t, feedPage)

	if err := e.HandleCommand(context.Background(), Command{Action: "selfDestruct"}); err == nil {
		t.Error("expected an error for an unknown action")
	}
}

func TestHandleCommandClosedEngine(t *testing.T) {
	e, _ := newTestEngine(t, feedPage)
	e.Close()

	err := e.HandleCommand(context.Background(), Command{Action: "addTitle", Text: "x"})
	if err != ErrContextInvalidated {
		t.Errorf("err = %v, want ErrContextInvalidated", err)
	}
}

func TestClassifySelection(t *testing.T) {
	e, _ := newTestEngine(t, feedPage)
	ctx := context.Background()

	var events []Event
	e.Subscribe(func(ev Event) { events = append(events, ev) })

	role, err := e.ClassifySelection(ctx, `.Feed .UserLink-link`)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if role != classify.RoleAuthor {
		t.Errorf("role = %q, want author", role)
	}

	stored, _, err := e.store.Get(ctx, store.BucketLocal, store.KeySelectedType)
	if err != nil {
		t.Fatalf("get selectedType: %v", err)
	}
	if stored != "author" {
		t.Errorf("selectedType = %q, want author", stored)
	}

	if len(events) != 1 || events[0].Action != "updateContextMenu" || events[0].Type != classify.RoleAuthor {
		t.Errorf("events = %+v, want one updateContextMenu/author", events)
	}
}

func TestClassifySelectionNoMatch(t *testing.T) {
	e, _ := newTestEngine(t, feedPage)

	if _, err := e.ClassifySelection(context.Background(), ".NoSuchThing"); err == nil {
		t.Error("expected an error when the selector matches nothing")
	}
}
