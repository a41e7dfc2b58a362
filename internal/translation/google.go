package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"video-dubber/internal/apperr"
	"video-dubber/internal/config"
	internalhttp "video-dubber/internal/http"
)

// Google calls the Cloud Translation v2 REST API.
type Google struct {
	apiKey   string
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

// NewGoogle creates a Google Translate provider. Each call is bounded by
// timeout.
func NewGoogle(apiKey, endpoint string, timeout time.Duration) *Google {
	if endpoint == "" {
		endpoint = config.GoogleTranslateEndpoint
	}
	if timeout <= 0 {
		timeout = config.TranslateTimeout
	}
	return &Google{
		apiKey:   apiKey,
		endpoint: endpoint,
		timeout:  timeout,
		client:   internalhttp.NewClientWithTimeout(timeout),
	}
}

func (g *Google) Name() string { return string(ProviderGoogle) }

type googleRequest struct {
	Q      []string `json:"q"`
	Source string   `json:"source,omitempty"`
	Target string   `json:"target"`
	Format string   `json:"format"`
}

type googleResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (g *Google) Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if g.apiKey == "" {
		return nil, &apperr.TranslationError{Kind: apperr.TranslationInvalidKey, Err: errors.New("API key not configured (set GOOGLE_TRANSLATE_API_KEY)")}
	}

	body, err := json.Marshal(googleRequest{Q: texts, Source: sourceLang, Target: targetLang, Format: "text"})
	if err != nil {
		return nil, &apperr.TranslationError{Kind: apperr.TranslationUpstream, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	reqURL := g.endpoint + "?key=" + url.QueryEscape(g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, &apperr.TranslationError{Kind: apperr.TranslationUpstream, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &apperr.TranslationError{Kind: classifyTransportError(err), Err: redactKey(err, g.apiKey)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperr.TranslationError{Kind: classifyTransportError(err), Err: err}
	}

	var parsed googleResponse
	decodeErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return nil, &apperr.TranslationError{
			Kind:       classifyStatus(resp.StatusCode, msg),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("status %d: %s", resp.StatusCode, msg),
		}
	}
	if decodeErr != nil {
		return nil, &apperr.TranslationError{Kind: apperr.TranslationUpstream, StatusCode: resp.StatusCode, Err: fmt.Errorf("parse response: %w", decodeErr)}
	}
	if got := len(parsed.Data.Translations); got != len(texts) {
		return nil, &apperr.TranslationError{Kind: apperr.TranslationUpstream, StatusCode: resp.StatusCode, Err: fmt.Errorf("expected %d translations, got %d", len(texts), got)}
	}

	out := make([]string, len(texts))
	for i, t := range parsed.Data.Translations {
		out[i] = html.UnescapeString(t.TranslatedText)
	}
	return out, nil
}

func classifyStatus(status int, msg string) apperr.TranslationKind {
	switch {
	case status == http.StatusTooManyRequests:
		return apperr.TranslationRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if strings.Contains(strings.ToLower(msg), "rate") || strings.Contains(strings.ToLower(msg), "quota") {
			return apperr.TranslationRateLimit
		}
		return apperr.TranslationInvalidKey
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "api key"):
		return apperr.TranslationInvalidKey
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return apperr.TranslationTimeout
	default:
		return apperr.TranslationUpstream
	}
}

func classifyTransportError(err error) apperr.TranslationKind {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperr.TranslationTimeout
	}
	return apperr.TranslationUpstream
}

// redactKey strips the API key from URL errors.
func redactKey(err error, key string) error {
	msg := err.Error()
	escaped := url.QueryEscape(key)
	if key == "" || !strings.Contains(msg, escaped) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(msg, escaped, "REDACTED"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }
