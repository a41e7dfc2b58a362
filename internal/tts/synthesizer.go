package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"video-dubber/internal/apperr"
	"video-dubber/internal/config"
	"video-dubber/internal/logger"
	"video-dubber/internal/media"
	"video-dubber/internal/worker"
	"video-dubber/models"
)

// Options tunes a Synthesizer.
type Options struct {
	Mode              models.ResilienceMode
	Workers           int
	Voices            []string
	PlaceholderLength time.Duration
	SampleRate        int // placeholder rate when no real clip is available
	ClipDir           string
}

// Clip is one synthesized sentence on disk.
type Clip struct {
	Index       int
	Path        string
	Voice       string
	Placeholder bool
}

// ProgressCallback is called after each clip completes.
type ProgressCallback func(current, total int)

// Synthesizer renders translated lines to per-sentence WAV clips using a
// bounded number of concurrent provider calls.
type Synthesizer struct {
	provider Provider
	opts     Options
}

// NewSynthesizer creates a synthesizer for provider.
func NewSynthesizer(provider Provider, opts Options) *Synthesizer {
	if opts.Workers <= 0 {
		opts.Workers = config.SynthesisWorkers()
	}
	if len(opts.Voices) == 0 {
		opts.Voices = config.DefaultVoicePool
	}
	if opts.PlaceholderLength <= 0 {
		opts.PlaceholderLength = config.DefaultPlaceholderLength
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = config.DefaultClipSampleRate
	}
	if opts.Mode == "" {
		opts.Mode = models.ModeStrict
	}
	return &Synthesizer{provider: provider, opts: opts}
}

// ClipPath returns the clip location for a job and sentence index.
func ClipPath(dir string, jobStart int64, index int) string {
	return filepath.Join(dir, fmt.Sprintf("clip_%d_%04d.wav", jobStart, index))
}

// SynthesizeAll writes one clip per line and returns them in line order.
// Every call is started even when others fail. In best-effort mode a failed
// call is replaced by a silent placeholder; in strict mode any failure
// removes the clips already written and fails the whole stage.
func (s *Synthesizer) SynthesizeAll(ctx context.Context, jobStart int64, lines []models.TranslatedLine, onProgress ProgressCallback) ([]Clip, error) {
	if len(lines) == 0 {
		return nil, apperr.Wrap(apperr.ErrSynthesis, "synthesize", "", "no lines to synthesize", nil)
	}
	voices, err := AssignVoices(SpeakerTags(lines), s.opts.Voices)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrSynthesis, "synthesize", "assign voices", "", err)
	}
	if err := os.MkdirAll(s.opts.ClipDir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.ErrSynthesis, "synthesize", "prepare clip dir", "", err)
	}
	logger.Info("Synthesizing %d clips via %s with %d workers, voices %v", len(lines), s.provider.Name(), s.opts.Workers, voices)

	clips := make([]Clip, len(lines))
	for i, line := range lines {
		clips[i] = Clip{Index: i, Path: ClipPath(s.opts.ClipDir, jobStart, i), Voice: voices[line.SpeakerTag]}
	}

	process := func(ctx context.Context, job worker.Job[Clip]) (string, error) {
		return job.Data.Path, s.synthesizeOne(ctx, lines[job.Index].TranslatedText, job.Data)
	}
	_, errs := worker.ProcessWithErrors(ctx, clips, s.opts.Workers, process, worker.ProgressFunc(onProgress))

	var failed []int
	for i, e := range errs {
		if e != nil {
			failed = append(failed, i)
			logger.Warn("Synthesis of clip %d (voice %s) failed: %v", i, clips[i].Voice, e)
		}
	}
	if len(failed) == 0 {
		return clips, nil
	}

	if err := ctx.Err(); err != nil {
		removeClips(clips)
		return nil, apperr.Wrap(apperr.ErrSynthesis, "synthesize", "", "cancelled", err)
	}
	if s.opts.Mode != models.ModeBestEffort {
		removeClips(clips)
		return nil, apperr.Wrap(apperr.ErrSynthesis, "synthesize", "clip "+fmt.Sprint(failed[0]),
			fmt.Sprintf("%d of %d clips failed", len(failed), len(clips)), errs[failed[0]])
	}

	rate := s.placeholderRate(clips, errs)
	for _, i := range failed {
		if err := media.WriteSilentWAV(clips[i].Path, s.opts.PlaceholderLength, rate); err != nil {
			removeClips(clips)
			return nil, apperr.Wrap(apperr.ErrSynthesis, "synthesize", "placeholder", "", err)
		}
		clips[i].Placeholder = true
	}
	logger.Warn("Substituted %d silent placeholder clips of %s", len(failed), s.opts.PlaceholderLength)
	return clips, nil
}

func (s *Synthesizer) synthesizeOne(ctx context.Context, text string, clip Clip) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("empty text")
	}
	audio, err := s.provider.Synthesize(ctx, text, clip.Voice)
	if err != nil {
		return err
	}
	if !media.IsWAV(audio) {
		return fmt.Errorf("provider %s returned %d bytes that are not WAV audio", s.provider.Name(), len(audio))
	}
	if err := os.WriteFile(clip.Path, audio, 0o644); err != nil {
		return fmt.Errorf("write clip: %w", err)
	}
	return nil
}

// placeholderRate matches placeholders to a real clip's sample rate so the
// stitcher can concatenate without re-encoding.
func (s *Synthesizer) placeholderRate(clips []Clip, errs []error) int {
	for i, c := range clips {
		if errs[i] != nil {
			continue
		}
		if info, err := media.ReadWAVInfo(c.Path); err == nil && info.SampleRate > 0 {
			return info.SampleRate
		}
	}
	return s.opts.SampleRate
}

// ClipPaths returns the paths of clips in order.
func ClipPaths(clips []Clip) []string {
	paths := make([]string, len(clips))
	for i, c := range clips {
		paths[i] = c.Path
	}
	return paths
}

func removeClips(clips []Clip) {
	for _, c := range clips {
		if err := media.RemoveIfExists(c.Path); err != nil {
			logger.Warn("Failed to remove clip %s: %v", filepath.Base(c.Path), err)
		}
	}
}
