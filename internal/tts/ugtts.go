package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"video-dubber/internal/apperr"
	"video-dubber/internal/config"
	internalhttp "video-dubber/internal/http"
	"video-dubber/internal/logger"
)

// UGTTS calls the Twi/Akan VITS multi-speaker endpoint.
type UGTTS struct {
	endpoint string
	modelID  string
	client   *http.Client
}

// NewUGTTS creates a UGTTS provider. Empty values use the public endpoint
// and the multi-speaker model.
func NewUGTTS(endpoint, modelID string) *UGTTS {
	if endpoint == "" {
		endpoint = config.UGTTSEndpoint
	}
	if modelID == "" {
		modelID = config.UGTTSModelID
	}
	return &UGTTS{endpoint: endpoint, modelID: modelID, client: internalhttp.NewDefaultClient()}
}

func (u *UGTTS) Name() string { return string(ProviderUGTTS) }

type ugttsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
	Speaker string `json:"speaker"`
}

func (u *UGTTS) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	body, err := json.Marshal(ugttsRequest{Text: text, ModelID: u.modelID, Speaker: voice})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrSynthesis, "synthesize", "ugtts", "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrSynthesis, "synthesize", "ugtts", "read response", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode != http.StatusOK || !strings.Contains(contentType, "audio") {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, apperr.Wrap(apperr.ErrSynthesis, "synthesize", "ugtts",
			fmt.Sprintf("unexpected response status=%d content-type=%q: %s", resp.StatusCode, contentType, snippet), nil)
	}
	logger.Debug("UGTTS: %d bytes for speaker %s", len(data), voice)
	return data, nil
}
