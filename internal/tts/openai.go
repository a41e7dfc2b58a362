package tts

import (
	"context"
	"io"

	"github.com/sashabaranov/go-openai"

	"video-dubber/internal/apperr"
	"video-dubber/internal/config"
)

// OpenAI synthesizes with the OpenAI speech endpoint and requests WAV output.
type OpenAI struct {
	apiKey string
	model  string
	client *openai.Client
}

// NewOpenAI creates an OpenAI TTS provider. An empty baseURL uses the
// public endpoint.
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = config.OpenAITTSModel
	}
	return &OpenAI{apiKey: apiKey, model: model, client: openai.NewClientWithConfig(cfg)}
}

func (o *OpenAI) Name() string { return string(ProviderOpenAI) }

func (o *OpenAI) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if o.apiKey == "" {
		return nil, apperr.Wrap(apperr.ErrSynthesis, "synthesize", "openai", "API key not configured (set OPENAI_API_KEY)", nil)
	}
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrSynthesis, "synthesize", "openai", "create speech", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrSynthesis, "synthesize", "openai", "read audio", err)
	}
	return data, nil
}
