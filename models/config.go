package models

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"video-dubber/internal/config"
)

// ResilienceMode controls whether recoverable provider failures are
// substituted (best effort) or fail the job (strict).
type ResilienceMode string

const (
	ModeStrict     ResilienceMode = "strict"
	ModeBestEffort ResilienceMode = "best_effort"
)

type ServerConfig struct {
	Addr              string `toml:"addr"`
	SocketTimeoutSec  int    `toml:"socket_timeout_seconds"`
	MaxUploadMB       int    `toml:"max_upload_mb"`
	MaxVideoSeconds   int    `toml:"max_video_seconds"`
	MaxConcurrentJobs int    `toml:"max_concurrent_jobs"`
}

type PathsConfig struct {
	UploadsDir string `toml:"uploads_dir"`
	OutputDir  string `toml:"output_dir"`
	WorkDir    string `toml:"work_dir"` // extracted audio, clips, muxed downloads
	StateDB    string `toml:"state_db"`
	FFmpeg     string `toml:"ffmpeg"`
}

type PipelineConfig struct {
	Mode            ResilienceMode `toml:"mode"`
	SourceLang      string         `toml:"source_lang"`
	TargetLang      string         `toml:"target_lang"`
	ExtractChannels int            `toml:"extract_channels"`
}

type TranscriptionConfig struct {
	Provider        string `toml:"provider"` // assemblyai, openai
	APIKey          string `toml:"api_key"`
	BaseURL         string `toml:"base_url"`
	PollIntervalSec int    `toml:"poll_interval_seconds"`
}

type TranslationConfig struct {
	Provider       string `toml:"provider"` // google, offline
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	BatchSize      int    `toml:"batch_size"`
	MaxAttempts    int    `toml:"max_attempts"`
	InitialDelayMS int    `toml:"initial_delay_ms"`
	TimeoutSec     int    `toml:"timeout_seconds"`
	CacheBackend   string `toml:"cache_backend"` // memory, redis
	CacheCapacity  int    `toml:"cache_capacity"`
	RedisAddr      string `toml:"redis_addr"`
}

type TTSConfig struct {
	Provider           string   `toml:"provider"` // ugtts, openai
	Endpoint           string   `toml:"endpoint"`
	Model              string   `toml:"model"`
	APIKey             string   `toml:"api_key"`
	Voices             []string `toml:"voices"`
	Concurrency        int      `toml:"concurrency"`
	PlaceholderSeconds float64  `toml:"placeholder_seconds"`
	SampleRate         int      `toml:"sample_rate"`
}

type RetentionConfig struct {
	WindowMinutes        int `toml:"window_minutes"`
	SweepIntervalMinutes int `toml:"sweep_interval_minutes"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // auto, console, json
}

// Config holds all service settings.
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Paths         PathsConfig         `toml:"paths"`
	Pipeline      PipelineConfig      `toml:"pipeline"`
	Transcription TranscriptionConfig `toml:"transcription"`
	Translation   TranslationConfig   `toml:"translation"`
	TTS           TTSConfig           `toml:"tts"`
	Retention     RetentionConfig     `toml:"retention"`
	Logging       LoggingConfig       `toml:"logging"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              config.DefaultListenAddr,
			SocketTimeoutSec:  int(config.DefaultSocketTimeout.Seconds()),
			MaxUploadMB:       config.MaxUploadBytes / (1024 * 1024),
			MaxVideoSeconds:   int(config.MaxVideoDuration.Seconds()),
			MaxConcurrentJobs: config.DefaultMaxConcurrentJob,
		},
		Paths: PathsConfig{
			UploadsDir: "uploads",
			OutputDir:  "output",
			StateDB:    "dubber.db",
			FFmpeg:     "",
		},
		Pipeline: PipelineConfig{
			Mode:            ModeBestEffort,
			SourceLang:      config.DefaultSourceLang,
			TargetLang:      config.DefaultTargetLang,
			ExtractChannels: config.DefaultExtractChannels,
		},
		Transcription: TranscriptionConfig{
			Provider:        "assemblyai",
			BaseURL:         config.AssemblyAIEndpoint,
			PollIntervalSec: int(config.AssemblyAIPollInterval.Seconds()),
		},
		Translation: TranslationConfig{
			Provider:       "google",
			BaseURL:        config.GoogleTranslateEndpoint,
			BatchSize:      config.TranslateBatchSize,
			MaxAttempts:    config.DefaultMaxRetries,
			InitialDelayMS: int(config.DefaultRetryDelayBase.Milliseconds()),
			TimeoutSec:     int(config.TranslateTimeout.Seconds()),
			CacheBackend:   "memory",
			CacheCapacity:  config.DefaultCacheCapacity,
		},
		TTS: TTSConfig{
			Provider:           "ugtts",
			Endpoint:           config.UGTTSEndpoint,
			Model:              config.UGTTSModelID,
			Voices:             append([]string(nil), config.DefaultVoicePool...),
			Concurrency:        config.SynthesisWorkers(),
			PlaceholderSeconds: config.DefaultPlaceholderLength.Seconds(),
			SampleRate:         config.DefaultClipSampleRate,
		},
		Retention: RetentionConfig{
			WindowMinutes:        int(config.DefaultRetention.Minutes()),
			SweepIntervalMinutes: int(config.DefaultSweepInterval.Minutes()),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// DefaultConfigPath returns ~/.config/video-dubber/config.toml.
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "video-dubber", "config.toml")
}

// LoadConfig reads the TOML file at path (or the default locations when path
// is empty), loads .env, applies environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	// A missing .env is normal in production.
	_ = godotenv.Load()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}
	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := toml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	candidates := []string{path}
	if path == "" {
		candidates = []string{DefaultConfigPath(), "dubber.toml"}
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", false, fmt.Errorf("stat config: %w", err)
		}
	}
	if path != "" {
		return "", false, fmt.Errorf("config file %s not found", path)
	}
	return "", false, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ASSEMBLY_AI_API_KEY"); v != "" && c.Transcription.Provider == "assemblyai" {
		c.Transcription.APIKey = v
	}
	if v := os.Getenv("GOOGLE_TRANSLATE_API_KEY"); v != "" {
		c.Translation.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if c.Transcription.Provider == "openai" && c.Transcription.APIKey == "" {
			c.Transcription.APIKey = v
		}
		if c.TTS.Provider == "openai" && c.TTS.APIKey == "" {
			c.TTS.APIKey = v
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			c.Server.Addr = ":" + v
		}
	}
	if v := os.Getenv("DUBBER_MODE"); v != "" {
		c.Pipeline.Mode = ResilienceMode(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Translation.RedisAddr = v
	}
}

func (c *Config) normalize() {
	c.Pipeline.Mode = ResilienceMode(strings.ToLower(strings.TrimSpace(string(c.Pipeline.Mode))))
	c.Pipeline.SourceLang = strings.ToLower(strings.TrimSpace(c.Pipeline.SourceLang))
	c.Pipeline.TargetLang = strings.ToLower(strings.TrimSpace(c.Pipeline.TargetLang))
	c.Transcription.Provider = strings.ToLower(strings.TrimSpace(c.Transcription.Provider))
	c.Translation.Provider = strings.ToLower(strings.TrimSpace(c.Translation.Provider))
	c.Translation.CacheBackend = strings.ToLower(strings.TrimSpace(c.Translation.CacheBackend))
	c.TTS.Provider = strings.ToLower(strings.TrimSpace(c.TTS.Provider))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	if c.Pipeline.ExtractChannels <= 0 {
		c.Pipeline.ExtractChannels = config.DefaultExtractChannels
	}
	if c.Translation.BatchSize <= 0 {
		c.Translation.BatchSize = config.TranslateBatchSize
	}
	if c.Translation.MaxAttempts <= 0 {
		c.Translation.MaxAttempts = 1
	}
	if c.TTS.Concurrency <= 0 {
		c.TTS.Concurrency = config.SynthesisWorkers()
	}
	if c.TTS.SampleRate <= 0 {
		c.TTS.SampleRate = config.DefaultClipSampleRate
	}
	if c.TTS.Provider == "openai" {
		if len(c.TTS.Voices) == 0 || sameVoices(c.TTS.Voices, config.DefaultVoicePool) {
			c.TTS.Voices = append([]string(nil), config.OpenAIVoicePool...)
		}
		if c.TTS.Model == config.UGTTSModelID || c.TTS.Model == "" {
			c.TTS.Model = config.OpenAITTSModel
		}
		c.TTS.SampleRate = config.OpenAIClipSampleRate
		if c.TTS.Endpoint == config.UGTTSEndpoint {
			c.TTS.Endpoint = ""
		}
	}
	if c.Transcription.Provider == "openai" && c.Transcription.BaseURL == config.AssemblyAIEndpoint {
		c.Transcription.BaseURL = ""
	}
	if c.Transcription.PollIntervalSec <= 0 {
		c.Transcription.PollIntervalSec = int(config.AssemblyAIPollInterval.Seconds())
	}
	if len(c.TTS.Voices) == 0 {
		c.TTS.Voices = append([]string(nil), config.DefaultVoicePool...)
	}
	if c.Server.MaxConcurrentJobs <= 0 {
		c.Server.MaxConcurrentJobs = config.DefaultMaxConcurrentJob
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" && c.Paths.OutputDir != "" {
		c.Paths.WorkDir = filepath.Join(filepath.Dir(filepath.Clean(c.Paths.OutputDir)), "work")
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var problems []string

	switch c.Pipeline.Mode {
	case ModeStrict, ModeBestEffort:
	default:
		problems = append(problems, fmt.Sprintf("pipeline.mode: unsupported value %q", c.Pipeline.Mode))
	}
	switch c.Transcription.Provider {
	case "assemblyai", "openai":
	default:
		problems = append(problems, fmt.Sprintf("transcription.provider: unsupported value %q", c.Transcription.Provider))
	}
	switch c.Translation.Provider {
	case "google":
		if c.Translation.APIKey == "" && c.Pipeline.Mode == ModeStrict {
			problems = append(problems, "translation.api_key: required in strict mode")
		}
	case "offline":
		if c.Pipeline.Mode == ModeStrict {
			problems = append(problems, "translation.provider: offline provider is not allowed in strict mode")
		}
	default:
		problems = append(problems, fmt.Sprintf("translation.provider: unsupported value %q", c.Translation.Provider))
	}
	switch c.Translation.CacheBackend {
	case "memory":
	case "redis":
		if c.Translation.RedisAddr == "" {
			problems = append(problems, "translation.redis_addr: required for redis cache backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("translation.cache_backend: unsupported value %q", c.Translation.CacheBackend))
	}
	switch c.TTS.Provider {
	case "ugtts", "openai":
	default:
		problems = append(problems, fmt.Sprintf("tts.provider: unsupported value %q", c.TTS.Provider))
	}
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format: unsupported value %q", c.Logging.Format))
	}
	if c.Paths.UploadsDir == "" || c.Paths.OutputDir == "" {
		problems = append(problems, "paths: uploads_dir and output_dir are required")
	}
	if w := c.Paths.WorkDir; w != "" && (filepath.Clean(w) == filepath.Clean(c.Paths.OutputDir) || filepath.Clean(w) == filepath.Clean(c.Paths.UploadsDir)) {
		problems = append(problems, "paths.work_dir: must differ from uploads_dir and output_dir")
	}
	if c.Server.MaxVideoSeconds <= 0 {
		problems = append(problems, "server.max_video_seconds: must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// EnsureDirectories creates the uploads, output and work directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.UploadsDir, c.Paths.OutputDir, c.Paths.WorkDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) SocketTimeout() time.Duration {
	return time.Duration(c.Server.SocketTimeoutSec) * time.Second
}

func (c *Config) MaxVideoDuration() time.Duration {
	return time.Duration(c.Server.MaxVideoSeconds) * time.Second
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) * 1024 * 1024
}

func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.Retention.WindowMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Retention.SweepIntervalMinutes) * time.Minute
}

func (c *Config) RetryInitialDelay() time.Duration {
	return time.Duration(c.Translation.InitialDelayMS) * time.Millisecond
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Transcription.PollIntervalSec) * time.Second
}

func (c *Config) TranslateTimeout() time.Duration {
	return time.Duration(c.Translation.TimeoutSec) * time.Second
}

func (c *Config) PlaceholderDuration() time.Duration {
	return time.Duration(c.TTS.PlaceholderSeconds * float64(time.Second))
}

func sameVoices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
