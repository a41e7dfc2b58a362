// Package tts provides interfaces and implementations for text-to-speech services.
package tts

import (
	"context"
	"fmt"

	"video-dubber/internal/apperr"
	"video-dubber/models"
)

// Provider is a speech synthesis capability returning WAV audio bytes.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// ProviderType identifies a TTS provider.
type ProviderType string

const (
	ProviderUGTTS  ProviderType = "ugtts"
	ProviderOpenAI ProviderType = "openai"
)

// NewProvider builds the provider selected by cfg.
func NewProvider(cfg models.TTSConfig) (Provider, error) {
	switch ProviderType(cfg.Provider) {
	case ProviderUGTTS:
		return NewUGTTS(cfg.Endpoint, cfg.Model), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg.APIKey, cfg.Endpoint, cfg.Model), nil
	default:
		return nil, fmt.Errorf("%w: unknown tts provider %q", apperr.ErrConfiguration, cfg.Provider)
	}
}
