// Package config provides centralized defaults and constants for the video-dubber service.
package config

import (
	"runtime"
	"time"
)

// Server settings
const (
	DefaultListenAddr       = ":5000"
	DefaultSocketTimeout    = 10 * time.Minute // long multi-stage jobs
	MaxUploadBytes          = 100 * 1024 * 1024
	MaxVideoDuration        = 60 * time.Second
	DefaultMaxConcurrentJob = 4
)

// Audio settings
const (
	ExtractSampleRate        = 16000 // ASR input
	DefaultExtractChannels   = 1
	DefaultClipSampleRate    = 16000 // UGTTS VITS output
	OpenAIClipSampleRate     = 24000
	DefaultPlaceholderLength = 10 * time.Second
)

// Transcription settings
const (
	AssemblyAIEndpoint     = "https://api.assemblyai.com/v2"
	AssemblyAIPollInterval = 3 * time.Second
)

// Translation settings
const (
	GoogleTranslateEndpoint = "https://translation.googleapis.com/language/translate/v2"
	TranslateBatchSize      = 100 // Google allows up to 128 segments per call
	TranslateTimeout        = 10 * time.Second
	DefaultCacheCapacity    = 10000
	RedisCacheTTL           = 7 * 24 * time.Hour
)

// Retry settings
const (
	DefaultMaxRetries     = 3
	DefaultRetryDelayBase = time.Second
)

// HTTP client settings
const (
	HTTPTimeout             = 2 * time.Minute
	HTTPMaxIdleConns        = 10
	HTTPMaxIdleConnsPerHost = 10
	HTTPIdleConnTimeout     = 90 * time.Second
)

// TTS settings
const (
	UGTTSEndpoint  = "https://hcidcsug--ugtts-vits-twi-akan-api.modal.run"
	UGTTSModelID   = "ms-3"
	OpenAITTSModel = "tts-1"
)

// DefaultVoicePool is the UGTTS multi-speaker voice list.
var DefaultVoicePool = []string{"IM", "PT"}

// OpenAIVoicePool lists the OpenAI TTS voices in assignment order.
var OpenAIVoicePool = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}

// Retention settings
const (
	DefaultRetention     = time.Hour
	DefaultSweepInterval = 15 * time.Minute
)

// Default languages
const (
	DefaultSourceLang = "en"
	DefaultTargetLang = "twi"
)

// Exec command timeouts (for os/exec calls)
const (
	ExecTimeoutFFmpeg  = 10 * time.Minute
	ExecTimeoutFFprobe = 30 * time.Second
)

// MaxConcurrentMediaOps caps ffmpeg processes across all jobs.
const MaxConcurrentMediaOps = 4

// SynthesisWorkers returns the default cap on concurrent synthesis calls.
func SynthesisWorkers() int {
	return minInt(runtime.NumCPU()*4, 16)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
