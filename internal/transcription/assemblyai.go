package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"video-dubber/internal/apperr"
	"video-dubber/internal/config"
	internalhttp "video-dubber/internal/http"
	"video-dubber/internal/logger"
	"video-dubber/internal/text"
	"video-dubber/models"
)

// AssemblyAI uploads audio, creates a transcript job and polls it until it
// completes. Speaker labels "A", "B", ... become tags 1, 2, ...
type AssemblyAI struct {
	apiKey       string
	baseURL      string
	pollInterval time.Duration
	client       *http.Client
}

// NewAssemblyAI creates an AssemblyAI transcriber.
func NewAssemblyAI(apiKey, baseURL string, pollInterval time.Duration) *AssemblyAI {
	if baseURL == "" {
		baseURL = config.AssemblyAIEndpoint
	}
	if pollInterval <= 0 {
		pollInterval = config.AssemblyAIPollInterval
	}
	return &AssemblyAI{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		pollInterval: pollInterval,
		client:       internalhttp.NewDefaultClient(),
	}
}

type assemblyWord struct {
	Text    string  `json:"text"`
	Start   float64 `json:"start"` // milliseconds
	End     float64 `json:"end"`
	Speaker *string `json:"speaker"`
}

type assemblyTranscript struct {
	ID     string         `json:"id"`
	Status string         `json:"status"`
	Error  string         `json:"error"`
	Text   string         `json:"text"`
	Words  []assemblyWord `json:"words"`
}

func (a *AssemblyAI) Transcribe(ctx context.Context, audioPath, language string, opts Options) (Result, error) {
	if a.apiKey == "" {
		return Result{}, apperr.Wrap(apperr.ErrTranscription, "transcribe", "assemblyai", "API key not configured (set ASSEMBLY_AI_API_KEY)", nil)
	}
	logger.Info("AssemblyAI: uploading %s", filepath.Base(audioPath))

	uploadURL, err := a.upload(ctx, audioPath)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.ErrTranscription, "transcribe", "assemblyai upload", "", err)
	}

	id, err := a.createTranscript(ctx, uploadURL, text.ProviderCode(language), opts.EnableDiarization)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.ErrTranscription, "transcribe", "assemblyai create", "", err)
	}
	logger.Debug("AssemblyAI: polling transcript %s", id)

	transcript, err := a.poll(ctx, id)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.ErrTranscription, "transcribe", "assemblyai poll", "", err)
	}

	words := convertAssemblyWords(transcript.Words)
	if len(words) == 0 {
		return Result{}, noSpeech("assemblyai")
	}
	return Result{Text: transcript.Text, Words: words}, nil
}

func (a *AssemblyAI) upload(ctx context.Context, audioPath string) (string, error) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/upload", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	var out struct {
		UploadURL string `json:"upload_url"`
	}
	if err := a.do(req, &out); err != nil {
		return "", err
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("upload response has no upload_url")
	}
	return out.UploadURL, nil
}

func (a *AssemblyAI) createTranscript(ctx context.Context, audioURL, language string, diarize bool) (string, error) {
	body, err := json.Marshal(map[string]any{
		"audio_url":      audioURL,
		"language_code":  language,
		"speaker_labels": diarize,
		"punctuate":      true,
		"format_text":    true,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/transcript", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var out assemblyTranscript
	if err := a.do(req, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("transcript response has no id")
	}
	return out.ID, nil
}

func (a *AssemblyAI) poll(ctx context.Context, id string) (assemblyTranscript, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return assemblyTranscript{}, ctx.Err()
		case <-ticker.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/transcript/"+id, nil)
		if err != nil {
			return assemblyTranscript{}, err
		}
		var out assemblyTranscript
		if err := a.do(req, &out); err != nil {
			return assemblyTranscript{}, err
		}

		switch out.Status {
		case "completed":
			return out, nil
		case "error":
			return assemblyTranscript{}, fmt.Errorf("assemblyai error: %s", out.Error)
		default:
			logger.Debug("AssemblyAI: transcript %s status %s", id, out.Status)
		}
	}
}

func (a *AssemblyAI) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// convertAssemblyWords converts millisecond timings to seconds and speaker
// labels to integer tags. Single letters map alphabetically (A is 1); any
// other label gets the lowest tag no letter claims, in order of first
// appearance.
func convertAssemblyWords(in []assemblyWord) []models.Word {
	tags := make(map[string]int)
	used := make(map[int]bool)
	for _, w := range in {
		if label := speakerLabel(w); len(label) == 1 && label[0] >= 'A' && label[0] <= 'Z' {
			tag := int(label[0]-'A') + 1
			tags[label] = tag
			used[tag] = true
		}
	}
	next := 1
	for _, w := range in {
		label := speakerLabel(w)
		if label == "" {
			continue
		}
		if _, ok := tags[label]; ok {
			continue
		}
		for used[next] {
			next++
		}
		tags[label] = next
		used[next] = true
	}

	words := make([]models.Word, 0, len(in))
	for _, w := range in {
		if strings.TrimSpace(w.Text) == "" {
			continue
		}
		tag := 1
		if label := speakerLabel(w); label != "" {
			tag = tags[label]
		}
		start := w.Start / 1000
		end := w.End / 1000
		if end < start {
			end = start
		}
		words = append(words, models.Word{Text: w.Text, Start: start, End: end, SpeakerTag: tag})
	}
	return words
}

func speakerLabel(w assemblyWord) string {
	if w.Speaker == nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(*w.Speaker))
}
