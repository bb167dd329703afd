package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/lmzhao/zhisieve/app/dom"
	"github.com/lmzhao/zhisieve/app/stats"
	"github.com/lmzhao/zhisieve/app/store"
)

const feedPage = `<html><body><div id="root">
<div class="Card"><div class="Feed">
  <div class="ContentItem">
    <h2 class="ContentItem-title">明星八卦大盘点</h2>
    <div class="AuthorInfo"><a class="UserLink-link" href="/people/zhangsan">张三</a></div>
    <div class="RichText ztext">今天的娱乐新闻正文。</div>
  </div>
</div></div>
<div class="Card"><div class="Feed">
  <div class="ContentItem">
    <h2 class="ContentItem-title">如何学习围棋</h2>
    <div class="AuthorInfo"><a class="UserLink-link" href="/people/lisi">李四</a></div>
    <div class="RichText ztext">从定式开始。</div>
  </div>
</div></div>
</div></body></html>`

func newTestEngine(t *testing.T, page string) (*Engine, *store.Memory) {
	t.Helper()

	doc, err := dom.ParseString(page)
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	st := store.NewMemory()
	return New(doc, st, stats.NewTracker(st)), st
}

func setKeywords(t *testing.T, st store.Store, key, value string) {
	t.Helper()
	if err := st.Set(context.Background(), store.BucketSync, key, value); err != nil {
		t.Fatalf("set %s: %v", key, err)
	}
}

func queryOne(t *testing.T, e *Engine, expr string) *html.Node {
	t.Helper()
	n := e.Document().Query(expr)
	if n == nil {
		t.Fatalf("no node matches %q", expr)
	}
	return n
}

func TestFeedPassHidesTitleMatch(t *testing.T) {
	e, st := newTestEngine(t, feedPage)
	setKeywords(t, st, store.KeyQuestionKeywords, "八卦")

	if err := e.RunFeedPass(context.Background()); err != nil {
		t.Fatalf("feed pass: %v", err)
	}

	items := e.Document().QueryAll(".Feed")
	if len(items) != 2 {
		t.Fatalf("expected 2 feed items, got %d", len(items))
	}
	if !dom.Hidden(items[0]) {
		t.Error("matching item should be hidden")
	}
	if dom.Hidden(items[1]) {
		t.Error("non-matching item should stay visible")
	}

	cards := e.Document().QueryAll(".Card")
	if !dom.Hidden(cards[0]) {
		t.Error("enclosing Card should be hidden with the item")
	}

	decisions := e.Decisions()
	if len(decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(decisions))
	}
	d := decisions[0]
	if d.Reason != "title" || d.Keyword != "八卦" {
		t.Errorf("decision = %+v, want reason=title keyword=八卦", d)
	}

	counts := e.stats.Snapshot()
	if counts.Total != 1 || counts.Today != 1 || counts.ByType["title"] != 1 {
		t.Errorf("counts = %+v, want total=1 today=1 byType.title=1", counts)
	}
}

func TestFeedPassAuthorTakesPriority(t *testing.T) {
	e, st := newTestEngine(t, feedPage)
	setKeywords(t, st, store.KeyAuthorKeywords, "张三")
	setKeywords(t, st, store.KeyQuestionKeywords, "八卦")

	if err := e.RunFeedPass(context.Background()); err != nil {
		t.Fatalf("feed pass: %v", err)
	}

	decisions := e.Decisions()
	if len(decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(decisions))
	}
	if decisions[0].Reason != "author" {
		t.Errorf("reason = %q, want author", decisions[0].Reason)
	}

	counts := e.stats.Snapshot()
	if counts.ByType["author"] != 1 || counts.ByType["title"] != 0 {
		t.Errorf("byType = %v, want author=1 title=0", counts.ByType)
	}
}

func TestFeedPassIsIdempotent(t *testing.T) {
	e, st := newTestEngine(t, feedPage)
	setKeywords(t, st, store.KeyQuestionKeywords, "八卦")

	for i := 0; i < 3; i++ {
		if err := e.RunFeedPass(context.Background()); err != nil {
			t.Fatalf("feed pass %d: %v", i, err)
		}
	}

	counts := e.stats.Snapshot()
	if counts.Total != 1 {
		t.Errorf("total = %d after repeated passes, want 1", counts.Total)
	}
	if len(e.Decisions()) != 1 {
		t.Errorf("decisions = %d, want 1", len(e.Decisions()))
	}
}

func TestFeedPassEmptyConfigHidesNothing(t *testing.T) {
	e, _ := newTestEngine(t, feedPage)

	if err := e.RunFeedPass(context.Background()); err != nil {
		t.Fatalf("feed pass: %v", err)
	}

	for i, item := range e.Document().QueryAll(".Feed") {
		if dom.Hidden(item) {
			t.Errorf("item %d hidden with empty configuration", i)
		}
	}
	if e.stats.Snapshot().Total != 0 {
		t.Errorf("total = %d, want 0", e.stats.Snapshot().Total)
	}
}

func TestFeedPassDisabledRestoresHidden(t *testing.T) {
	e, st := newTestEngine(t, feedPage)
	setKeywords(t, st, store.KeyQuestionKeywords, "八卦")

	if err := e.RunFeedPass(context.Background()); err != nil {
		t.Fatalf("feed pass: %v", err)
	}
	if !dom.Hidden(e.Document().QueryAll(".Feed")[0]) {
		t.Fatal("item should be hidden before disabling")
	}

	setKeywords(t, st, store.KeyBlockingEnabled, "false")
	if err := e.RunFeedPass(context.Background()); err != nil {
		t.Fatalf("feed pass: %v", err)
	}

	for i, item := range e.Document().QueryAll(".Feed") {
		if dom.Hidden(item) {
			t.Errorf("item %d still hidden after blocking disabled", i)
		}
	}
	if len(e.HiddenTitles()) != 0 {
		t.Errorf("hidden titles = %v, want none", e.HiddenTitles())
	}
}

func TestFeedPassSkipsDuplicateTitle(t *testing.T) {
	e, st := newTestEngine(t, feedPage)
	setKeywords(t, st, store.KeyQuestionKeywords, "八卦")

	if err := e.RunFeedPass(context.Background()); err != nil {
		t.Fatalf("feed pass: %v", err)
	}

	// Same item re-rendered under a fresh node identity.
	_, err := e.AppendFragment("#root", `<div class="Card"><div class="Feed">
		<h2 class="ContentItem-title">明星八卦大盘点</h2></div></div>`)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := e.RunFeedPass(context.Background()); err != nil {
		t.Fatalf("feed pass: %v", err)
	}

	if got := e.stats.Snapshot().Total; got != 1 {
		t.Errorf("total = %d, duplicate title should not be re-counted", got)
	}
}

func TestFeedPassProcessedCeiling(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<html><body><div id="root">`)
	for i := 0; i < maxProcessedEntries+1; i++ {
		fmt.Fprintf(&b, `<div class="Feed"><h2 class="ContentItem-title">八卦话题 %d</h2></div>`, i)
	}
	b.WriteString(`</div></body></html>`)

	e, st := newTestEngine(t, b.String())
	setKeywords(t, st, store.KeyQuestionKeywords, "八卦")

	if err := e.RunFeedPass(context.Background()); err != nil {
		t.Fatalf("feed pass: %v", err)
	}

	e.mu.Lock()
	size := len(e.processed)
	e.mu.Unlock()
	if size != 0 {
		t.Errorf("processed set = %d entries, want cleared past the ceiling", size)
	}

	// Hidden state itself survives the clear.
	if !dom.Hidden(e.Document().QueryAll(".Feed")[0]) {
		t.Error("items should remain hidden after the tracking clear")
	}
}

func TestFeedPassClosedEngine(t *testing.T) {
	e, _ := newTestEngine(t, feedPage)
	e.Close()

	if err := e.RunFeedPass(context.Background()); err != ErrContextInvalidated {
		t.Errorf("err = %v, want ErrContextInvalidated", err)
	}
}
