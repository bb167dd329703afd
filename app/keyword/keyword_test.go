package keyword

import "testing"

func TestNewSet_DropsEmptyLinesAndNormalizes(t *testing.T) {
	set := NewSet("  八卦 \n\nFoo Bar\n \n")

	if len(set) != 2 {
		t.Fatalf("Expected 2 keywords, got %d: %v", len(set), set)
	}
	if set[0] != "八卦" {
		t.Errorf("Expected first keyword '八卦', got %q", set[0])
	}
	if set[1] != "foo bar" {
		t.Errorf("Expected second keyword 'foo bar', got %q", set[1])
	}
}

func TestNewSet_Empty(t *testing.T) {
	if set := NewSet(""); len(set) != 0 {
		t.Errorf("Expected empty set, got %v", set)
	}
}

func TestMatch_FirstInOrderWins(t *testing.T) {
	set := NewSet("新闻\n八卦")

	kw, ok := set.Match("八卦新闻")
	if !ok {
		t.Fatal("Expected a match")
	}
	if kw != "新闻" {
		t.Errorf("Expected first keyword in set order '新闻', got %q", kw)
	}
}

func TestMatch_EmptyTextNeverMatches(t *testing.T) {
	set := NewSet("anything")
	if _, ok := set.Match(""); ok {
		t.Error("Empty text should never match")
	}
}

func TestMatch_EmptySetNeverMatches(t *testing.T) {
	var set Set
	if _, ok := set.Match("some text"); ok {
		t.Error("Empty set should never match")
	}
}

func TestMatchEither_BothDirections(t *testing.T) {
	set := NewSet("八卦新闻大全")

	// Text is a substring of the keyword.
	if _, ok := set.MatchEither("八卦新闻"); !ok {
		t.Error("Expected text-in-keyword match")
	}

	// Keyword is a substring of the text.
	set = NewSet("八卦")
	if _, ok := set.MatchEither("八卦新闻"); !ok {
		t.Error("Expected keyword-in-text match")
	}
}

func TestContains(t *testing.T) {
	set := NewSet("张三\n李四")

	if !set.Contains("张三") {
		t.Error("Expected set to contain 张三")
	}
	if !set.Contains(" 张三 ") {
		t.Error("Contains should normalize its argument")
	}
	if set.Contains("王五") {
		t.Error("Did not expect set to contain 王五")
	}
}
