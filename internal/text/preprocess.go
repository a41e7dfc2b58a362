// Package text holds the language table and the text clean-up passes applied
// around translation.
package text

import (
	"regexp"
	"strings"
)

var (
	fillerRegex       = regexp.MustCompile(`(?i)\b(uh|um|er|ah|hmm|erm)\b[,]?`)
	whitespaceRegex   = regexp.MustCompile(`\s+`)
	dotsRegex         = regexp.MustCompile(`\.{2,}`)
	exclamationsRegex = regexp.MustCompile(`!{2,}`)
	questionsRegex    = regexp.MustCompile(`\?{2,}`)
	commasRegex       = regexp.MustCompile(`,{2,}`)
)

// Preprocess cleans ASR output before it is sent for translation.
// It removes filler words, normalizes whitespace and collapses repeated
// punctuation. If nothing but filler remains the input is returned trimmed.
func Preprocess(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}

	text = fillerRegex.ReplaceAllString(trimmed, "")
	text = whitespaceRegex.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	text = dotsRegex.ReplaceAllString(text, ".")
	text = exclamationsRegex.ReplaceAllString(text, "!")
	text = questionsRegex.ReplaceAllString(text, "?")
	text = commasRegex.ReplaceAllString(text, ",")

	if strings.Trim(text, ".,!? ") == "" {
		return trimmed
	}
	return text
}
