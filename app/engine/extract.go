package engine

import (
	"strings"

	"codeberg.org/readeck/go-readability"
	"golang.org/x/net/html"

	"github.com/lmzhao/zhisieve/app/dom"
	"github.com/lmzhao/zhisieve/app/textnorm"
)

// Selector candidates for feed item text extraction. Each list is
// tried in order, first non-empty text wins; every extraction degrades
// to the empty string when nothing matches.
var (
	titleCandidates = []dom.Selector{
		dom.MustCompile(`.HotItem-title`),
		dom.MustCompile(`.ContentItem-title`),
		dom.MustCompile(`.QuestionItem-title`),
		dom.MustCompile(`h1, h2, h3, h4, h5, h6`),
	}

	authorCandidates = []dom.Selector{
		dom.MustCompile(`.AuthorInfo-name`),
		dom.MustCompile(`.UserLink-link`),
		dom.MustCompile(`.AuthorInfo a[href*="/people/"]`),
	}

	contentCandidates = []dom.Selector{
		dom.MustCompile(`.HotItem-excerpt`),
		dom.MustCompile(`.RichText.ztext`),
	}

	titleMetaSel = dom.MustCompile(`meta[itemprop="name"], meta[itemprop="title"]`)
)

// extractTitle returns the normalized title text of a feed item. After
// the selector candidates it falls back to a data-title attribute and
// finally to an itemprop meta tag, since server-rendered items carry
// their title in metadata before the heading hydrates.
func extractTitle(item *html.Node) string {
	if title := firstMatchText(item, titleCandidates); title != "" {
		return title
	}

	// Generic fallback: any element whose class mentions "title".
	var generic string
	dom.Walk(item, func(n *html.Node) bool {
		if generic != "" {
			return false
		}
		if n.Type == html.ElementNode &&
			strings.Contains(strings.ToLower(dom.Attr(n, "class")), "title") {
			if text := textnorm.Normalize(dom.Text(n)); text != "" {
				generic = text
				return false
			}
		}
		return true
	})
	if generic != "" {
		return generic
	}

	if title := textnorm.Normalize(dom.Attr(item, "data-title")); title != "" {
		return title
	}

	var meta string
	dom.Walk(item, func(n *html.Node) bool {
		if meta != "" {
			return false
		}
		if titleMetaSel.Match(n) {
			meta = textnorm.Normalize(dom.Attr(n, "content"))
		}
		return meta == ""
	})
	return meta
}

func extractAuthor(item *html.Node) string {
	return firstMatchText(item, authorCandidates)
}

// extractContent returns the normalized body text. When no rich-text
// selector matches, the item subtree is handed to readability, which
// copes with the lazily hydrated markup variants the class selectors
// do not cover.
func extractContent(item *html.Node) string {
	if text := firstMatchText(item, contentCandidates); text != "" {
		return text
	}
	return readableText(item)
}

func readableText(item *html.Node) string {
	var b strings.Builder
	if err := html.Render(&b, item); err != nil {
		return ""
	}

	article, err := readability.FromReader(strings.NewReader(b.String()), nil)
	if err != nil {
		return ""
	}
	return textnorm.Normalize(article.TextContent)
}

// firstMatchText walks the subtree once per candidate selector and
// returns the first non-empty normalized text.
func firstMatchText(root *html.Node, candidates []dom.Selector) string {
	for _, sel := range candidates {
		var found string
		dom.Walk(root, func(n *html.Node) bool {
			if found != "" {
				return false
			}
			if sel.Match(n) {
				if text := textnorm.Normalize(dom.Text(n)); text != "" {
					found = text
					return false
				}
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}
