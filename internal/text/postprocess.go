package text

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	spaceBeforePunctRegex = regexp.MustCompile(`\s+([,.;:!?])`)
	missingSpaceRegex     = regexp.MustCompile(`([,;:!?])(\pL)`)
	sentenceStartRegex    = regexp.MustCompile(`([.!?]\s+)(\pL)`)
)

// corrections lists known mistranslations and look-alike characters per
// provider language code. Replacements run in order after normalization.
var corrections = map[string][]struct{ from, to string }{
	"ak": {
		{"ε", "ɛ"}, // Greek epsilon for open e
		{"ͻ", "ɔ"}, // reversed lunate sigma for open o
		{"Ͻ", "Ɔ"},
	},
}

// Postprocess tidies translated text for the given target language. It
// NFC-normalizes, fixes spacing around punctuation, capitalizes the start
// of every sentence and applies the per-language corrections table.
func Postprocess(text, targetLang string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	text = norm.NFC.String(text)
	for _, c := range corrections[ProviderCode(targetLang)] {
		text = strings.ReplaceAll(text, c.from, c.to)
	}

	text = whitespaceRegex.ReplaceAllString(text, " ")
	text = spaceBeforePunctRegex.ReplaceAllString(text, "$1")
	text = missingSpaceRegex.ReplaceAllString(text, "$1 $2")

	text = capitalizeFirst(text)
	text = sentenceStartRegex.ReplaceAllStringFunc(text, func(m string) string {
		r, size := utf8.DecodeLastRuneInString(m)
		return m[:len(m)-size] + string(unicode.ToUpper(r))
	})
	return text
}

func capitalizeFirst(s string) string {
	for i, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		if unicode.IsLower(r) {
			return s[:i] + string(unicode.ToUpper(r)) + s[i+utf8.RuneLen(r):]
		}
		return s
	}
	return s
}
