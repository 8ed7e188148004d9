package pipeline

import (
	"strings"
	"unicode/utf8"
)

const maxFragmentRunes = 120

// splitSentences cuts text after sentence punctuation so transcript partials
// arrive in readable pieces. Joining the fragments yields text unchanged.
func splitSentences(text string) []string {
	var (
		out   []string
		start int
		runes int
	)
	for i, r := range text {
		runes++
		end := i + utf8.RuneLen(r)
		if isSentenceEnd(r) || (runes >= maxFragmentRunes && (r == ' ' || r == '，' || r == ',')) {
			out = append(out, text[start:end])
			start = end
			runes = 0
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '。', '！', '？', '.', '!', '?', '\n', '；', ';':
		return true
	}
	return false
}

// splitParagraphs keeps the blank-line separators attached so the pieces
// concatenate back to s.
func splitParagraphs(s string) []string {
	var out []string
	for s != "" {
		i := strings.Index(s, "\n\n")
		if i < 0 {
			out = append(out, s)
			break
		}
		out = append(out, s[:i+2])
		s = s[i+2:]
	}
	return out
}
