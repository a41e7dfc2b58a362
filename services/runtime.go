package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"video-dubber/internal/config"
	internalhttp "video-dubber/internal/http"
	"video-dubber/internal/limiter"
	"video-dubber/internal/media"
	"video-dubber/internal/transcription"
	"video-dubber/internal/translation"
	"video-dubber/internal/tts"
	"video-dubber/models"
)

// Runtime bundles the services built from one configuration.
type Runtime struct {
	Config   *models.Config
	FFmpeg   *media.FFmpegService
	Pipeline *Pipeline
	Muxer    *Muxer
	Media    *limiter.Semaphore

	closers []io.Closer
}

// NewRuntime builds providers, caches and the pipeline from cfg.
func NewRuntime(ctx context.Context, cfg *models.Config) (*Runtime, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	ff := media.NewFFmpegService(cfg.Paths.FFmpeg)
	mediaSlots := limiter.NewSemaphore(config.MaxConcurrentMediaOps)

	transcriber, err := transcription.New(cfg.Transcription)
	if err != nil {
		return nil, err
	}

	provider, err := translation.NewProvider(cfg.Translation)
	if err != nil {
		return nil, err
	}
	cache, err := translation.NewCache(ctx, cfg.Translation.CacheBackend, cfg.Translation.CacheCapacity, cfg.Translation.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("translation cache: %w", err)
	}
	rt := &Runtime{Config: cfg, FFmpeg: ff, Media: mediaSlots}
	if c, ok := cache.(io.Closer); ok {
		rt.closers = append(rt.closers, c)
	}
	translator := translation.NewTranslator(provider, cache, translation.Options{
		SourceLang: cfg.Pipeline.SourceLang,
		BatchSize:  cfg.Translation.BatchSize,
		Retry: internalhttp.RetryConfig{
			MaxAttempts:   cfg.Translation.MaxAttempts,
			InitialDelay:  cfg.RetryInitialDelay(),
			BackoffFactor: 2.0,
		},
	})

	speech, err := tts.NewProvider(cfg.TTS)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	synthesizer := tts.NewSynthesizer(speech, tts.Options{
		Mode:              cfg.Pipeline.Mode,
		Workers:           cfg.TTS.Concurrency,
		Voices:            cfg.TTS.Voices,
		PlaceholderLength: cfg.PlaceholderDuration(),
		SampleRate:        cfg.TTS.SampleRate,
		ClipDir:           cfg.Paths.WorkDir,
	})

	rt.Pipeline = NewPipeline(ff, transcriber, translator, synthesizer, media.NewStitcher(ff), Options{
		WorkDir:         cfg.Paths.WorkDir,
		OutputDir:       cfg.Paths.OutputDir,
		ExtractChannels: cfg.Pipeline.ExtractChannels,
		Mode:            cfg.Pipeline.Mode,
	})
	rt.Pipeline.SetMediaLimiter(mediaSlots)
	rt.Muxer = NewMuxer(ff, cfg.Paths.WorkDir, mediaSlots)
	return rt, nil
}

// Close releases cache connections.
func (r *Runtime) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
