// Package translation provides interfaces and implementations for text translation services.
package translation

import (
	"context"
	"fmt"
	"time"

	"video-dubber/internal/apperr"
	"video-dubber/models"
)

// Provider is a translation capability. Translate returns exactly one
// output per input, in order, or an error (usually *apperr.TranslationError).
type Provider interface {
	Name() string
	Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error)
}

// ProviderType identifies a translation provider.
type ProviderType string

const (
	ProviderGoogle  ProviderType = "google"
	ProviderOffline ProviderType = "offline"
)

// NewProvider builds the provider selected by cfg.
func NewProvider(cfg models.TranslationConfig) (Provider, error) {
	switch ProviderType(cfg.Provider) {
	case ProviderGoogle:
		return NewGoogle(cfg.APIKey, cfg.BaseURL, time.Duration(cfg.TimeoutSec)*time.Second), nil
	case ProviderOffline:
		return NewOffline(), nil
	default:
		return nil, fmt.Errorf("%w: unknown translation provider %q", apperr.ErrConfiguration, cfg.Provider)
	}
}
