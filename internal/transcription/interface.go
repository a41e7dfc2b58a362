// Package transcription provides interfaces and implementations for speech-to-text services.
package transcription

import (
	"context"
	"fmt"
	"time"

	"video-dubber/internal/apperr"
	"video-dubber/models"
)

// Options tunes a single transcription request.
type Options struct {
	// EnableDiarization asks the provider to label speakers.
	EnableDiarization bool
}

// Result is a transcript with word-level timing.
type Result struct {
	Text  string
	Words []models.Word
}

// Transcriber is the interface for all transcription services.
type Transcriber interface {
	// Transcribe returns the time-ordered words of the audio file. It fails
	// with apperr.ErrTranscription when no speech is recognized.
	Transcribe(ctx context.Context, audioPath, language string, opts Options) (Result, error)
}

// ProviderType identifies a transcription provider.
type ProviderType string

const (
	ProviderAssemblyAI ProviderType = "assemblyai"
	ProviderOpenAI     ProviderType = "openai"
)

// New builds the transcriber selected by cfg.
func New(cfg models.TranscriptionConfig) (Transcriber, error) {
	switch ProviderType(cfg.Provider) {
	case ProviderAssemblyAI:
		return NewAssemblyAI(cfg.APIKey, cfg.BaseURL, time.Duration(cfg.PollIntervalSec)*time.Second), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg.APIKey, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("%w: unknown transcription provider %q", apperr.ErrConfiguration, cfg.Provider)
	}
}

func noSpeech(provider string) error {
	return apperr.Wrap(apperr.ErrTranscription, "transcribe", provider, "no recognizable speech found", nil)
}
