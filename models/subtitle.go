package models

import "strings"

// Word is one recognized token with its timing in seconds.
type Word struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	SpeakerTag int     `json:"speakerTag"`
}

// SentenceChunk is a contiguous run of words spoken by one speaker.
type SentenceChunk struct {
	SpeakerTag int     `json:"speakerTag"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
}

// WordCount returns the number of whitespace separated tokens in the chunk text.
func (c SentenceChunk) WordCount() int {
	return len(strings.Fields(c.Text))
}

// TranslatedLine is a chunk together with its translation.
type TranslatedLine struct {
	SentenceChunk
	TranslatedText string `json:"translated_text"`
}

// Subtitle is the externally exposed view of a translated line.
type Subtitle struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	SpeakerTag int     `json:"speakerTag"`
	OriginalEN string  `json:"original_en"`
	Twi        string  `json:"twi"`
}

// SubtitleList is an ordered list of subtitles.
type SubtitleList []Subtitle

// SubtitlesFromLines converts translated lines into subtitles, preserving order.
func SubtitlesFromLines(lines []TranslatedLine) SubtitleList {
	subs := make(SubtitleList, len(lines))
	for i, line := range lines {
		subs[i] = Subtitle{
			Start:      line.Start,
			End:        line.End,
			SpeakerTag: line.SpeakerTag,
			OriginalEN: line.Text,
			Twi:        line.TranslatedText,
		}
	}
	return subs
}

// TotalDuration returns the end time of the last subtitle in seconds.
func (s SubtitleList) TotalDuration() float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].End
}

// GetText returns all translated text joined with spaces.
func (s SubtitleList) GetText() string {
	parts := make([]string, 0, len(s))
	for _, sub := range s {
		if t := strings.TrimSpace(sub.Twi); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
