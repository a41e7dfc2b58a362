package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"video-dubber/internal/apperr"
	"video-dubber/internal/config"
	"video-dubber/internal/limiter"
	"video-dubber/internal/logger"
	"video-dubber/internal/media"
	"video-dubber/internal/segment"
	"video-dubber/internal/subtitle"
	"video-dubber/internal/transcription"
	"video-dubber/internal/translation"
	"video-dubber/internal/tts"
	"video-dubber/models"
)

// Extractor pulls an ASR-ready waveform out of a video container.
type Extractor interface {
	ExtractAudio(ctx context.Context, videoPath, outputPath string, channels int) error
}

// Translator turns sentence chunks into translated lines, one per chunk.
type Translator interface {
	TranslateBatch(ctx context.Context, chunks []models.SentenceChunk, targetLang string) ([]models.TranslatedLine, translation.Report, error)
}

// Synthesizer renders translated lines to ordered clips.
type Synthesizer interface {
	SynthesizeAll(ctx context.Context, jobStart int64, lines []models.TranslatedLine, onProgress tts.ProgressCallback) ([]tts.Clip, error)
}

// Stitcher merges ordered clips into one audio file.
type Stitcher interface {
	Stitch(ctx context.Context, clips []string, outputPath string) error
}

// JobRecorder persists job snapshots. Recording failures never fail a job.
type JobRecorder interface {
	Save(ctx context.Context, job *models.DubbingJob) error
}

// ProgressCallback reports stage changes and synthesis progress.
type ProgressCallback func(job *models.DubbingJob, message string)

// Options configures a Pipeline.
type Options struct {
	WorkDir         string // extracted audio and clips
	OutputDir       string // merged audio and subtitle files
	ExtractChannels int
	Mode            models.ResilienceMode
}

// Result is what a Ready job exposes to callers.
type Result struct {
	Job          *models.DubbingJob
	Subtitles    models.SubtitleList
	AudioPath    string
	SRTPath      string
	Speakers     int
	Alternated   bool
	Translation  translation.Report
	Placeholders int
}

// Pipeline runs one uploaded video through extraction, transcription,
// segmentation, translation, synthesis and stitching.
type Pipeline struct {
	extractor   Extractor
	transcriber transcription.Transcriber
	translator  Translator
	synthesizer Synthesizer
	stitcher    Stitcher
	recorder    JobRecorder
	media       *limiter.Semaphore

	opts       Options
	onProgress ProgressCallback
}

// NewPipeline wires the stage implementations together.
func NewPipeline(extractor Extractor, transcriber transcription.Transcriber, translator Translator, synthesizer Synthesizer, stitcher Stitcher, opts Options) *Pipeline {
	if opts.ExtractChannels <= 0 {
		opts.ExtractChannels = config.DefaultExtractChannels
	}
	if opts.Mode == "" {
		opts.Mode = models.ModeStrict
	}
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(os.TempDir(), "video-dubber")
	}
	if opts.OutputDir == "" {
		opts.OutputDir = opts.WorkDir
	}
	return &Pipeline{
		extractor:   extractor,
		transcriber: transcriber,
		translator:  translator,
		synthesizer: synthesizer,
		stitcher:    stitcher,
		opts:        opts,
	}
}

// SetRecorder attaches a job store.
func (p *Pipeline) SetRecorder(r JobRecorder) {
	p.recorder = r
}

// SetMediaLimiter bounds concurrent ffmpeg work across jobs.
func (p *Pipeline) SetMediaLimiter(s *limiter.Semaphore) {
	p.media = s
}

func (p *Pipeline) SetProgressCallback(cb ProgressCallback) {
	p.onProgress = cb
}

// AudioPath returns the merged audio location for a job.
func (p *Pipeline) AudioPath(job *models.DubbingJob) string {
	return filepath.Join(p.opts.OutputDir, fmt.Sprintf("dubbed_%d.wav", job.StartTime))
}

// SRTPath returns the subtitle file location for a job.
func (p *Pipeline) SRTPath(job *models.DubbingJob) string {
	return filepath.Join(p.opts.OutputDir, fmt.Sprintf("dubbed_%d.srt", job.StartTime))
}

func (p *Pipeline) extractedPath(job *models.DubbingJob) string {
	return filepath.Join(p.opts.WorkDir, fmt.Sprintf("extracted_%d.wav", job.StartTime))
}

// Process runs the job to Ready or Failed. On failure the returned error
// carries the stage marker and the job is left in the Failed state; no
// partial result is returned.
func (p *Pipeline) Process(ctx context.Context, job *models.DubbingJob) (*Result, error) {
	if job.SourceLang == "" {
		job.SourceLang = config.DefaultSourceLang
	}
	if job.TargetLang == "" {
		job.TargetLang = config.DefaultTargetLang
	}
	log := logger.With("job", job.StartTime, "request_id", job.RequestID)
	log.Info("pipeline started", "video", filepath.Base(job.VideoPath), "source", job.SourceLang,
		"target", job.TargetLang, "multi_speaker", job.MultiSpeaker, "mode", string(p.opts.Mode))
	p.record(ctx, job)

	result, err := p.run(ctx, job)
	if err != nil {
		job.Fail(err)
		p.record(ctx, job)
		log.Error("pipeline failed", "stage", stageOf(job), "error", err, "elapsed", job.Elapsed().String())
		return nil, err
	}

	p.record(ctx, job)
	log.Info("pipeline finished", "sentences", len(result.Subtitles), "speakers", result.Speakers,
		"placeholders", result.Placeholders, "elapsed", job.Elapsed().String(), "timings", formatTimings(job.Timings))
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, job *models.DubbingJob) (*Result, error) {
	result := &Result{Job: job}

	// Transcribing covers extraction and speech recognition.
	if err := p.advance(ctx, job, models.StateTranscribing); err != nil {
		return nil, err
	}
	extracted := p.extractedPath(job)
	defer func() {
		if err := media.RemoveIfExists(extracted); err != nil {
			logger.Warn("Failed to remove extracted audio %s: %v", filepath.Base(extracted), err)
		}
	}()
	if err := p.withMedia(ctx, func() error {
		return p.extractor.ExtractAudio(ctx, job.VideoPath, extracted, p.opts.ExtractChannels)
	}); err != nil {
		return nil, stageError(apperr.ErrExtraction, "extract", err)
	}

	transcript, err := p.transcriber.Transcribe(ctx, extracted, job.SourceLang, transcription.Options{EnableDiarization: job.MultiSpeaker})
	if err != nil {
		return nil, stageError(apperr.ErrTranscription, "transcribe", err)
	}
	if len(transcript.Words) == 0 {
		return nil, apperr.Wrap(apperr.ErrTranscription, "transcribe", "", "no recognizable speech found", nil)
	}
	logger.Info("Transcribed %d words", len(transcript.Words))

	if err := p.advance(ctx, job, models.StateSegmenting); err != nil {
		return nil, err
	}
	chunks, alternated := segment.Segment(transcript.Words, job.MultiSpeaker)
	if len(chunks) == 0 {
		return nil, apperr.Wrap(apperr.ErrTranscription, "segment", "", "transcript produced no sentences", nil)
	}
	job.Chunks = chunks
	result.Alternated = alternated
	result.Speakers = segment.DistinctSpeakers(chunks)
	if alternated {
		logger.Warn("Diarization returned a single speaker; alternating speakers 1/2 across %d sentences", len(chunks))
	}

	if err := p.advance(ctx, job, models.StateTranslating); err != nil {
		return nil, err
	}
	lines, report, err := p.translator.TranslateBatch(ctx, chunks, job.TargetLang)
	if err != nil {
		return nil, stageError(apperr.ErrTranslation, "translate", err)
	}
	if len(lines) != len(chunks) {
		return nil, apperr.Wrap(apperr.ErrTranslation, "translate", "",
			fmt.Sprintf("got %d lines for %d sentences", len(lines), len(chunks)), nil)
	}
	job.Lines = lines
	result.Translation = report

	if err := p.advance(ctx, job, models.StateSynthesizing); err != nil {
		return nil, err
	}
	clips, err := p.synthesizer.SynthesizeAll(ctx, job.StartTime, lines, func(current, total int) {
		p.progress(job, fmt.Sprintf("Generated %d/%d clips", current, total))
	})
	if err != nil {
		return nil, stageError(apperr.ErrSynthesis, "synthesize", err)
	}
	job.Clips = tts.ClipPaths(clips)
	for _, c := range clips {
		if c.Placeholder {
			result.Placeholders++
		}
	}

	if err := p.advance(ctx, job, models.StateStitching); err != nil {
		return nil, err
	}
	audioPath := p.AudioPath(job)
	if err := p.withMedia(ctx, func() error {
		return p.stitcher.Stitch(ctx, job.Clips, audioPath)
	}); err != nil {
		return nil, stageError(apperr.ErrMediaTool, "stitch", err)
	}

	subs := models.SubtitlesFromLines(lines)
	srtPath := p.SRTPath(job)
	if err := subtitle.WriteSRTFile(srtPath, subtitle.FromDubbed(subs)); err != nil {
		// The dub is usable without a subtitle file.
		logger.Warn("Failed to write subtitles %s: %v", filepath.Base(srtPath), err)
		srtPath = ""
	}
	job.SRTPath = srtPath

	if err := job.Complete(audioPath, subs); err != nil {
		return nil, err
	}
	p.progress(job, job.StatusText())

	result.Subtitles = subs
	result.AudioPath = audioPath
	result.SRTPath = srtPath
	return result, nil
}

func (p *Pipeline) advance(ctx context.Context, job *models.DubbingJob, next models.JobState) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pipeline cancelled before %s: %w", next, err)
	}
	if err := job.Advance(next); err != nil {
		return err
	}
	logger.Debug("Job %d: %s", job.StartTime, job.StatusText())
	p.progress(job, job.StatusText())
	p.record(ctx, job)
	return nil
}

func (p *Pipeline) withMedia(ctx context.Context, fn func() error) error {
	if p.media == nil {
		return fn()
	}
	if err := p.media.Acquire(ctx); err != nil {
		return err
	}
	defer p.media.Release()
	return fn()
}

func (p *Pipeline) progress(job *models.DubbingJob, message string) {
	if p.onProgress != nil {
		p.onProgress(job, message)
	}
}

func (p *Pipeline) record(ctx context.Context, job *models.DubbingJob) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.Save(context.WithoutCancel(ctx), job); err != nil {
		logger.Warn("Failed to record job %d (%s): %v", job.StartTime, job.State, err)
	}
}

// stageError tags err with marker unless it already carries a stage marker.
func stageError(marker error, stage string, err error) error {
	for _, m := range []error{apperr.ErrValidation, apperr.ErrExtraction, apperr.ErrTranscription,
		apperr.ErrTranslation, apperr.ErrSynthesis, apperr.ErrMediaTool, apperr.ErrNotFound} {
		if errors.Is(err, m) {
			return err
		}
	}
	return apperr.Wrap(marker, stage, "", "", err)
}

// stageOf returns the stage a failed job was in.
func stageOf(job *models.DubbingJob) string {
	if n := len(job.Timings); n > 0 {
		return string(job.Timings[n-1].Stage)
	}
	return string(models.StateUploaded)
}

func formatTimings(timings []models.StageTiming) string {
	out := ""
	for i, t := range timings {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%s", t.Stage, t.Elapsed.Round(time.Millisecond))
	}
	return out
}
