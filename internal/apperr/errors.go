// Package apperr defines the error markers shared by the pipeline stages and
// the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrExtraction    = errors.New("extraction error")
	ErrTranscription = errors.New("transcription error")
	ErrTranslation   = errors.New("translation error")
	ErrSynthesis     = errors.New("synthesis error")
	ErrMediaTool     = errors.New("media tool error")
	ErrNotFound      = errors.New("not found")
	ErrOverloaded    = errors.New("server overloaded")
	ErrConfiguration = errors.New("configuration error")

	// ErrTooLarge and ErrUnsupportedMedia refine ErrValidation for status mapping.
	ErrTooLarge         = fmt.Errorf("%w: upload too large", ErrValidation)
	ErrUnsupportedMedia = fmt.Errorf("%w: unsupported media type", ErrValidation)
)

// Wrap builds an error message that includes stage context while tagging it
// with marker for later classification.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrMediaTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// TranslationKind classifies provider failures.
type TranslationKind string

const (
	TranslationRateLimit  TranslationKind = "rate_limit"
	TranslationInvalidKey TranslationKind = "invalid_key"
	TranslationTimeout    TranslationKind = "timeout"
	TranslationUpstream   TranslationKind = "upstream"
)

// TranslationError is returned by translation providers.
type TranslationError struct {
	Kind       TranslationKind
	StatusCode int
	Err        error
}

func (e *TranslationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("translation %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("translation %s", e.Kind)
}

func (e *TranslationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTranslation}
	}
	return []error{ErrTranslation, e.Err}
}

// Retryable reports whether another attempt could succeed.
func (e *TranslationError) Retryable() bool {
	return e.Kind != TranslationInvalidKey
}

// HTTPStatus maps an error to the status code returned to API callers.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrOverloaded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message shown to API callers. Internal tool output
// (ffmpeg stderr and similar) after the first line is dropped.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	return strings.TrimSpace(msg)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
