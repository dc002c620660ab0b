package vlm

import (
	"strings"
	"unicode/utf8"
)

var preambles = []string{
	"Okay, here's",
	"Here's",
	"Here is",
	"The answer is:",
	"Sure,",
}

var postambles = []string{
	"Let me know if",
	"I hope this helps",
	"Hope this helps",
	"Feel free to ask",
}

// preambleWindow is how far into the text the end of a preamble sentence
// (its colon) is searched for.
const preambleWindow = 100

// Clean strips known conversational boilerplate from model output. It is a
// best-effort pass over fixed phrase lists; anything else is left alone.
func Clean(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, p := range preambles {
		if !strings.HasPrefix(lower, strings.ToLower(p)) {
			continue
		}
		if idx := strings.Index(runePrefix(text, preambleWindow), ":"); idx >= 0 {
			text = text[idx+1:]
		}
		break
	}
	return stripPostamble(strings.TrimSpace(text))
}

// stripPostamble drops a trailing paragraph that opens with a known
// sign-off phrase.
func stripPostamble(text string) string {
	idx := strings.LastIndex(text, "\n\n")
	if idx < 0 {
		return text
	}
	last := strings.ToLower(strings.TrimSpace(text[idx:]))
	for _, p := range postambles {
		if strings.HasPrefix(last, strings.ToLower(p)) {
			return strings.TrimSpace(text[:idx])
		}
	}
	return text
}

func runePrefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
