package verdict

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	spaceRuns   = regexp.MustCompile(` {2,}`)
	newlineRuns = regexp.MustCompile(`\n{2,}`)
	spaceAround = regexp.MustCompile(` *\n *`)
)

// Regularize normalizes text before diffing: tabs become single spaces,
// runs of spaces and blank lines collapse, spaces touching a newline are
// dropped, and letters are lower-cased.
func Regularize(text string) string {
	text = strings.ReplaceAll(text, "\t", " ")
	text = spaceRuns.ReplaceAllString(text, " ")
	text = newlineRuns.ReplaceAllString(text, "\n")
	text = spaceAround.ReplaceAllString(text, "\n")
	return strings.ToLower(text)
}

// StripWhitespace removes every whitespace rune.
func StripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
