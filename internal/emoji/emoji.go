// Package emoji classifies strings as single emoji graphemes. Language models
// asked for "one relevant unicode emoji" routinely answer with descriptive
// text, several emoji, or plain symbols, so their output is re-validated here
// before it is trusted in the rendered changelog.
package emoji

import (
	"regexp"

	"github.com/rivo/uniseg"
)

// emojiChar covers the standalone emoji code points: dingbats, symbols,
// arrows, and the supplemental planes (faces, hands, objects, flags bases).
const emojiChar = `[\x{00A9}\x{00AE}\x{203C}\x{2049}\x{2122}\x{2139}` +
	`\x{2194}-\x{21AA}\x{231A}-\x{23FA}\x{24C2}\x{25AA}-\x{25FE}` +
	`\x{2600}-\x{27BF}\x{2934}\x{2935}\x{2B05}-\x{2BFF}\x{3030}\x{303D}` +
	`\x{3297}\x{3299}\x{1F000}-\x{1FAFF}]`

// element is one ZWJ-sequence element: an emoji char optionally followed by a
// variation selector or a skin-tone modifier.
const element = emojiChar + `(?:\x{FE0F}|[\x{1F3FB}-\x{1F3FF}])?`

// pattern enumerates the accepted shapes: regional-indicator flag pairs,
// keycap sequences, and ZWJ sequences (which degenerate to a single emoji
// when no joiner is present). Built once at init and read-only thereafter.
var pattern = regexp.MustCompile(`^(?:` +
	`[\x{1F1E6}-\x{1F1FF}]{2}` + // flag: two regional indicators
	`|[0-9#*]\x{FE0F}?\x{20E3}` + // keycap: digit/#/* + optional VS16 + combining keycap
	`|` + element + `(?:\x{200D}` + element + `)*` + // emoji, modifiers, ZWJ chains
	`)$`)

// IsValid reports whether input is exactly one user-perceived emoji.
// Multi-emoji strings fail on the grapheme count even when every piece would
// match the grammar; skin tones, gender joiners, variation selectors, flags,
// and keycaps all count as one grapheme and pass.
func IsValid(input string) bool {
	if input == "" {
		return false
	}
	if uniseg.GraphemeClusterCount(input) != 1 {
		return false
	}
	return pattern.MatchString(input)
}
