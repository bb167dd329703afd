// Package textnorm normalizes DOM text before keyword matching.
//
// Zhihu text is full of zero-width joiners, emoji and mixed-width CJK
// punctuation; keyword lists are plain lowercase strings, so both sides
// have to be folded into the same shape before a containment check
// means anything.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// pictographs covers the emoji blocks we strip: symbol/dingbat ranges,
// variation selectors and the extended pictographic planes.
var pictographs = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x2600, Hi: 0x27BF, Stride: 1}, // misc symbols, dingbats
		{Lo: 0x2B00, Hi: 0x2BFF, Stride: 1}, // misc symbols and arrows
		{Lo: 0xFE00, Hi: 0xFE0F, Stride: 1}, // variation selectors
	},
	R32: []unicode.Range32{
		{Lo: 0x1F000, Hi: 0x1FAFF, Stride: 1}, // emoji planes
	},
}

var stripper = transform.Chain(
	runes.Remove(runes.In(unicode.Cf)), // zero-width and other format runes
	runes.Remove(runes.In(pictographs)),
)

// punctuation variants collapse to one canonical form each, so a keyword
// written with an ASCII comma still hits text typed with a CJK one.
var punctuation = map[rune]rune{
	'，': ',',
	'、': ',',
	'；': ',',
	'。': '.',
	'．': '.',
}

// Normalize trims, strips format/emoji runes, folds punctuation
// variants, collapses whitespace runs and lowercases. It is total:
// any input yields a string, empty input yields "".
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	stripped, _, err := transform.String(stripper, text)
	if err != nil {
		// The transform chain only removes runes and cannot fail on
		// valid UTF-8; on malformed input fall through with the
		// original text rather than dropping it.
		stripped = text
	}

	folded := strings.Map(func(r rune) rune {
		if canonical, ok := punctuation[r]; ok {
			return canonical
		}
		return r
	}, stripped)

	collapsed := strings.Join(strings.Fields(folded), " ")

	return strings.ToLower(collapsed)
}
