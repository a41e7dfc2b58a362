package tts

import (
	"errors"
	"sort"

	"video-dubber/models"
)

// VoiceAssignment maps speaker tags to voice identifiers.
type VoiceAssignment map[int]string

// AssignVoices sorts the distinct tags ascending and hands out pool entries
// round-robin in that order, so the same speaker set always gets the same
// voices.
func AssignVoices(tags []int, pool []string) (VoiceAssignment, error) {
	if len(pool) == 0 {
		return nil, errors.New("voice pool is empty")
	}
	distinct := make(map[int]struct{}, len(tags))
	for _, t := range tags {
		distinct[t] = struct{}{}
	}
	sorted := make([]int, 0, len(distinct))
	for t := range distinct {
		sorted = append(sorted, t)
	}
	sort.Ints(sorted)

	out := make(VoiceAssignment, len(sorted))
	for i, t := range sorted {
		out[t] = pool[i%len(pool)]
	}
	return out, nil
}

// SpeakerTags returns the speaker tag of every line.
func SpeakerTags(lines []models.TranslatedLine) []int {
	tags := make([]int, len(lines))
	for i, l := range lines {
		tags[i] = l.SpeakerTag
	}
	return tags
}
