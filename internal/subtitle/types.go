// Package subtitle renders dubbed subtitles as SRT.
package subtitle

import (
	"fmt"
	"strings"
	"time"

	"video-dubber/models"
)

// Subtitle represents a single SRT entry with timing and text.
type Subtitle struct {
	Index     int
	StartTime time.Duration
	EndTime   time.Duration
	Text      string
}

// Duration returns the duration of this subtitle.
func (s Subtitle) Duration() time.Duration {
	return s.EndTime - s.StartTime
}

// IsEmpty returns true if the subtitle has no text.
func (s Subtitle) IsEmpty() bool {
	return strings.TrimSpace(s.Text) == ""
}

// List is a slice of subtitles with utility methods.
type List []Subtitle

// TotalDuration returns the end time of the last entry.
func (l List) TotalDuration() time.Duration {
	if len(l) == 0 {
		return 0
	}
	return l[len(l)-1].EndTime
}

// FromDubbed converts dubbed subtitles to SRT entries. Each entry carries the
// translated text prefixed with its speaker, e.g. "[S2] Ɛte sɛn?". Entries
// without a translation fall back to the original text.
func FromDubbed(subs models.SubtitleList) List {
	list := make(List, 0, len(subs))
	for _, sub := range subs {
		text := strings.TrimSpace(sub.Twi)
		if text == "" {
			text = strings.TrimSpace(sub.OriginalEN)
		}
		if text == "" {
			continue
		}
		list = append(list, Subtitle{
			Index:     len(list) + 1,
			StartTime: SecondsToDuration(sub.Start),
			EndTime:   SecondsToDuration(sub.End),
			Text:      fmt.Sprintf("[S%d] %s", sub.SpeakerTag, text),
		})
	}
	return list
}
