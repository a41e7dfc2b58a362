package text

import (
	"strings"

	"golang.org/x/text/language"
)

type entry struct {
	code    string   // code sent to translation providers
	display string   // human-readable name
	words   []string // colloquial names accepted from callers
}

var languages = []entry{
	{"en", "English", []string{"english", "eng"}},
	{"ak", "Twi (Akan)", []string{"twi", "akan", "aka", "tw", "asante", "akuapem", "fante"}},
	{"ee", "Ewe", []string{"ewe"}},
	{"gaa", "Ga", []string{"ga"}},
	{"ha", "Hausa", []string{"hausa"}},
	{"yo", "Yoruba", []string{"yoruba"}},
	{"fr", "French", []string{"french"}},
	{"es", "Spanish", []string{"spanish"}},
	{"de", "German", []string{"german"}},
	{"pt", "Portuguese", []string{"portuguese"}},
}

var (
	byCode map[string]*entry
	byWord map[string]*entry
)

func init() {
	byCode = make(map[string]*entry, len(languages))
	byWord = make(map[string]*entry, len(languages)*2)
	for i := range languages {
		e := &languages[i]
		byCode[e.code] = e
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

func lookup(code string) *entry {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	if e, ok := byCode[code]; ok {
		return e
	}
	if e, ok := byWord[code]; ok {
		return e
	}
	// Region or script qualified tags such as "ak-GH" or "en_US".
	if tag, err := language.Parse(strings.ReplaceAll(code, "_", "-")); err == nil {
		base, _ := tag.Base()
		if e, ok := byCode[base.String()]; ok {
			return e
		}
	}
	return nil
}

// ProviderCode maps a language name or tag to the code translation
// providers expect ("twi" -> "ak"). Unknown values that still parse as a
// BCP 47 tag are reduced to their base language; anything else passes
// through lowercased.
func ProviderCode(code string) string {
	if e := lookup(code); e != nil {
		return e.code
	}
	code = strings.ToLower(strings.TrimSpace(code))
	if tag, err := language.Parse(code); err == nil {
		base, _ := tag.Base()
		return base.String()
	}
	return code
}

// DisplayName returns a human-readable name for a language code or word.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	if e := lookup(code); e != nil {
		return e.display
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsKnown reports whether the code or word is in the language table.
func IsKnown(code string) bool {
	return lookup(code) != nil
}

// IsValid reports whether code is a known language word or parses as a
// BCP 47 tag.
func IsValid(code string) bool {
	if IsKnown(code) {
		return true
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	_, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	return err == nil
}
