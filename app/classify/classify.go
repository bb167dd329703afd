// Package classify maps a DOM node to the semantic role a user
// selection inside it belongs to. The filter engine and the context
// menu share this role table so "add to filter" always lands in the
// keyword list the selection came from.
package classify

import (
	"golang.org/x/net/html"

	"github.com/lmzhao/zhisieve/app/dom"
)

// Role is the semantic role of a selection.
type Role string

const (
	RoleAuthor  Role = "author"
	RoleComment Role = "comment"
	RoleTitle   Role = "title"
	RoleContent Role = "content"
)

var (
	authorArea = dom.MustCompile(
		`.UserLink-link, .AuthorInfo a[href*="/people/"], .AuthorInfo-name, .AuthorInfo`)
	// An author match only counts inside a recognizable item; a bare
	// profile link elsewhere on the page is not author context.
	itemArea    = dom.MustCompile(`.ContentItem, .Feed, .TopstoryItem, .Card, .CommentItemV2, .HotItem`)
	commentArea = dom.MustCompile(`.CommentContent`)
	titleArea   = dom.MustCompile(
		`h1, h2, h3, h4, h5, h6, .ContentItem-title, .QuestionItem-title, .HotItem-title`)
)

// rule pairs a role with its matcher predicate. Order is precedence:
// author > comment > title, because author names appear inside titles
// and comments and must be attributed to the author role.
type rule struct {
	role  Role
	match func(*html.Node) bool
}

var rules = []rule{
	{RoleAuthor, func(n *html.Node) bool {
		return dom.Closest(n, authorArea) != nil && dom.Closest(n, itemArea) != nil
	}},
	{RoleComment, func(n *html.Node) bool {
		return dom.Closest(n, commentArea) != nil
	}},
	{RoleTitle, func(n *html.Node) bool {
		return dom.Closest(n, titleArea) != nil
	}},
}

// Classify returns the role of the selection rooted at n. Text nodes
// are classified by their parent element. Defaults to RoleContent.
func Classify(n *html.Node) Role {
	if n != nil && n.Type == html.TextNode {
		n = n.Parent
	}

	for _, r := range rules {
		if r.match(n) {
			return r.role
		}
	}
	return RoleContent
}
