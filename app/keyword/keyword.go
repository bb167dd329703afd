// Package keyword parses newline-delimited keyword blobs and tests
// text against them by case-insensitive substring containment.
package keyword

import (
	"strings"

	"github.com/lmzhao/zhisieve/app/textnorm"
)

// Set is an ordered list of normalized, non-empty keywords. Order does
// not change the matching outcome but is preserved so the first
// matching keyword is reproducible.
type Set []string

// NewSet splits raw on newlines, normalizes each line and drops the
// empty ones.
func NewSet(raw string) Set {
	if raw == "" {
		return nil
	}

	lines := strings.Split(raw, "\n")
	set := make(Set, 0, len(lines))
	for _, line := range lines {
		normalized := textnorm.Normalize(line)
		if normalized == "" {
			continue
		}
		set = append(set, normalized)
	}

	return set
}

// Match returns the first keyword contained in text. The haystack is
// expected to be normalized already. Empty text or an empty set never
// matches.
func (s Set) Match(text string) (string, bool) {
	if text == "" {
		return "", false
	}

	for _, kw := range s {
		if strings.Contains(text, kw) {
			return kw, true
		}
	}

	return "", false
}

// MatchEither returns the first keyword for which either the keyword is
// contained in text or text is contained in the keyword. Used for
// titles and author names, where either side may be a fragment of the
// other.
func (s Set) MatchEither(text string) (string, bool) {
	if text == "" {
		return "", false
	}

	for _, kw := range s {
		if strings.Contains(text, kw) || strings.Contains(kw, text) {
			return kw, true
		}
	}

	return "", false
}

// Contains reports whether the set already holds the exact keyword.
func (s Set) Contains(kw string) bool {
	normalized := textnorm.Normalize(kw)
	for _, existing := range s {
		if existing == normalized {
			return true
		}
	}
	return false
}

// Raw joins the set back into a newline-delimited blob, the storage
// representation.
func (s Set) Raw() string {
	return strings.Join(s, "\n")
}
