// Package segment groups word-level ASR output into speaker-coherent sentences.
//
// A sentence closes after any word whose text ends in '.', '?' or '!', and
// before any word spoken by a different speaker than the previous one. An
// unterminated run at the end of the stream is flushed as a final sentence,
// so every input word lands in exactly one chunk and chunk boundaries are
// always word boundaries.
package segment

import (
	"strings"

	"video-dubber/models"
)

// Sentences splits words into sentence chunks. It returns nil for empty input.
func Sentences(words []models.Word) []models.SentenceChunk {
	if len(words) == 0 {
		return nil
	}

	var chunks []models.SentenceChunk
	runStart := 0
	for i, w := range words {
		speakerChange := i+1 < len(words) && words[i+1].SpeakerTag != w.SpeakerTag
		if endsSentence(w.Text) || speakerChange {
			chunks = append(chunks, newChunk(words[runStart:i+1]))
			runStart = i + 1
		}
	}
	if runStart < len(words) {
		chunks = append(chunks, newChunk(words[runStart:]))
	}
	return chunks
}

// AlternateSpeakers rewrites speaker tags by chunk index (1, 2, 1, 2, ...)
// when multi-speaker handling was requested but the chunks carry a single
// distinct tag. It reports whether the rewrite happened. This is a
// best-effort stand-in for failed diarization, not a correctness guarantee.
func AlternateSpeakers(chunks []models.SentenceChunk, multiSpeaker bool) bool {
	if !multiSpeaker || len(chunks) == 0 || DistinctSpeakers(chunks) > 1 {
		return false
	}
	for i := range chunks {
		chunks[i].SpeakerTag = i%2 + 1
	}
	return true
}

// Segment runs Sentences followed by AlternateSpeakers.
func Segment(words []models.Word, multiSpeaker bool) ([]models.SentenceChunk, bool) {
	chunks := Sentences(words)
	fallback := AlternateSpeakers(chunks, multiSpeaker)
	return chunks, fallback
}

// DistinctSpeakers counts the distinct speaker tags across chunks.
func DistinctSpeakers(chunks []models.SentenceChunk) int {
	seen := make(map[int]struct{}, 2)
	for _, c := range chunks {
		seen[c.SpeakerTag] = struct{}{}
	}
	return len(seen)
}

func endsSentence(text string) bool {
	text = strings.TrimRight(text, " \t\r\n")
	if text == "" {
		return false
	}
	switch text[len(text)-1] {
	case '.', '?', '!':
		return true
	}
	return false
}

func newChunk(run []models.Word) models.SentenceChunk {
	texts := make([]string, len(run))
	for i, w := range run {
		texts[i] = w.Text
	}
	return models.SentenceChunk{
		SpeakerTag: run[0].SpeakerTag,
		Start:      run[0].Start,
		End:        run[len(run)-1].End,
		Text:       strings.Join(texts, " "),
	}
}
