package models

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Pipeline.Mode != ModeBestEffort {
		t.Errorf("Mode = %q, want best_effort", cfg.Pipeline.Mode)
	}
	if cfg.Pipeline.SourceLang != "en" {
		t.Errorf("SourceLang = %q, want 'en'", cfg.Pipeline.SourceLang)
	}
	if cfg.Pipeline.TargetLang != "twi" {
		t.Errorf("TargetLang = %q, want 'twi'", cfg.Pipeline.TargetLang)
	}
	if cfg.Server.MaxVideoSeconds != 60 {
		t.Errorf("MaxVideoSeconds = %d, want 60", cfg.Server.MaxVideoSeconds)
	}
	if len(cfg.TTS.Voices) != 2 || cfg.TTS.Voices[0] != "IM" {
		t.Errorf("Voices = %v, want [IM PT]", cfg.TTS.Voices)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dubber.toml")
	content := `
[pipeline]
mode = "Strict"
target_lang = "twi"

[translation]
provider = "google"
api_key = "k"
batch_size = 10

[tts]
provider = "openai"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Pipeline.Mode != ModeStrict {
		t.Errorf("Mode = %q, want strict", cfg.Pipeline.Mode)
	}
	if cfg.Translation.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", cfg.Translation.BatchSize)
	}
	if cfg.TTS.Voices[0] != "alloy" {
		t.Errorf("openai provider should switch to the OpenAI voice pool, got %v", cfg.TTS.Voices)
	}
	if cfg.TTS.SampleRate != 24000 {
		t.Errorf("SampleRate = %d, want 24000", cfg.TTS.SampleRate)
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestValidate_StrictRejectsOffline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.Mode = ModeStrict
	cfg.Translation.Provider = "offline"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "offline") {
		t.Errorf("expected offline provider rejection, got %v", err)
	}
}

func TestValidate_RedisNeedsAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Translation.CacheBackend = "redis"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for redis backend without address")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("GOOGLE_TRANSLATE_API_KEY", "gkey")
	t.Setenv("PORT", "8080")
	t.Setenv("DUBBER_MODE", "strict")

	cfg := DefaultConfig()
	cfg.applyEnv()

	if cfg.Translation.APIKey != "gkey" {
		t.Errorf("APIKey = %q", cfg.Translation.APIKey)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Pipeline.Mode != ModeStrict {
		t.Errorf("Mode = %q", cfg.Pipeline.Mode)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Paths.UploadsDir = filepath.Join(dir, "up")
	cfg.Paths.OutputDir = filepath.Join(dir, "out")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, d := range []string{cfg.Paths.UploadsDir, cfg.Paths.OutputDir} {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s", d)
		}
	}
}

func TestWorkDir_DerivedAndValidated(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Paths.UploadsDir = filepath.Join(dir, "up")
	cfg.Paths.OutputDir = filepath.Join(dir, "out")
	cfg.normalize()

	if want := filepath.Join(dir, "work"); cfg.Paths.WorkDir != want {
		t.Errorf("WorkDir = %q, want %q", cfg.Paths.WorkDir, want)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(cfg.Paths.WorkDir); err != nil || !info.IsDir() {
		t.Errorf("work dir not created: %v", err)
	}

	cfg.Paths.WorkDir = cfg.Paths.OutputDir + string(filepath.Separator)
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "paths.work_dir") {
		t.Errorf("Validate() = %v, want work_dir problem", err)
	}
}
