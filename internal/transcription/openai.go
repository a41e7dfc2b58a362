package transcription

import (
	"context"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/sashabaranov/go-openai"

	"video-dubber/internal/apperr"
	"video-dubber/internal/logger"
	"video-dubber/internal/text"
	"video-dubber/models"
)

// OpenAI transcribes with the Whisper API. Whisper does not diarize, so
// every word carries speaker tag 1 and multi-speaker jobs rely on the
// segmenter's alternation fallback.
type OpenAI struct {
	apiKey string
	client *openai.Client
}

// NewOpenAI creates a Whisper transcriber. An empty baseURL uses the
// public OpenAI endpoint.
func NewOpenAI(apiKey, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{apiKey: apiKey, client: openai.NewClientWithConfig(cfg)}
}

func (o *OpenAI) Transcribe(ctx context.Context, audioPath, language string, opts Options) (Result, error) {
	if o.apiKey == "" {
		return Result{}, apperr.Wrap(apperr.ErrTranscription, "transcribe", "openai", "API key not configured (set OPENAI_API_KEY)", nil)
	}
	if opts.EnableDiarization {
		logger.Debug("Whisper API has no diarization; speakers fall back to alternation")
	}
	logger.Info("Whisper API: model=%s lang=%s file=%s", openai.Whisper1, language, filepath.Base(audioPath))

	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: text.ProviderCode(language),
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
			openai.TranscriptionTimestampGranularitySegment,
		},
	})
	if err != nil {
		return Result{}, apperr.Wrap(apperr.ErrTranscription, "transcribe", "openai", "", err)
	}

	words := make([]models.Word, 0, len(resp.Words))
	for _, w := range resp.Words {
		if strings.TrimSpace(w.Word) == "" {
			continue
		}
		words = append(words, models.Word{Text: strings.TrimSpace(w.Word), Start: w.Start, End: w.End, SpeakerTag: 1})
	}
	if len(words) == 0 {
		return Result{}, noSpeech("openai")
	}
	restorePunctuation(words, resp.Text)
	return Result{Text: resp.Text, Words: words}, nil
}

// restorePunctuation copies punctuated tokens from the full transcript onto
// the word list. Whisper's word timestamps strip punctuation, which the
// segmenter needs to find sentence ends. Tokens are matched greedily by
// their letters and digits; a mismatch leaves the word unchanged.
func restorePunctuation(words []models.Word, transcript string) {
	tokens := strings.Fields(transcript)
	t := 0
	for i := range words {
		key := bareWord(words[i].Text)
		if key == "" {
			continue
		}
		for j := t; j < len(tokens) && j < t+3; j++ {
			if bareWord(tokens[j]) == key {
				words[i].Text = tokens[j]
				t = j + 1
				break
			}
		}
	}
}

func bareWord(s string) string {
	return strings.ToLower(strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s))
}
