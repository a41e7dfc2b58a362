// Package media wraps ffmpeg and ffprobe for extraction, concatenation and
// muxing, and handles WAV clips directly.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"video-dubber/internal/apperr"
	"video-dubber/internal/config"
	"video-dubber/internal/logger"
)

// FFmpegService wraps FFmpeg commands for audio/video processing.
type FFmpegService struct {
	ffmpegPath  string
	ffprobePath string
	cache       *DurationCache
}

// NewFFmpegService creates a service for the given ffmpeg binary. An empty
// path auto-detects a common install location and falls back to PATH.
func NewFFmpegService(path string) *FFmpegService {
	if strings.TrimSpace(path) == "" {
		path = detectFFmpeg()
	}
	return &FFmpegService{
		ffmpegPath:  path,
		ffprobePath: probePathFor(path),
		cache:       NewDurationCache(),
	}
}

func detectFFmpeg() string {
	paths := []string{
		"/opt/homebrew/bin/ffmpeg",
		"/usr/local/bin/ffmpeg",
		"/usr/bin/ffmpeg",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return "ffmpeg"
}

func probePathFor(ffmpegPath string) string {
	dir, base := filepath.Split(ffmpegPath)
	return dir + strings.Replace(base, "ffmpeg", "ffprobe", 1)
}

// CheckInstalled verifies FFmpeg is available.
func (s *FFmpegService) CheckInstalled(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, config.ExecTimeoutFFprobe)
	defer cancel()
	if err := exec.CommandContext(ctx, s.ffmpegPath, "-version").Run(); err != nil {
		return apperr.Wrap(apperr.ErrMediaTool, "ffmpeg", "check", "ffmpeg not found at "+s.ffmpegPath, err)
	}
	return nil
}

// Path returns the FFmpeg executable path.
func (s *FFmpegService) Path() string {
	return s.ffmpegPath
}

// ExtractAudio pulls a 16 kHz PCM waveform with the requested channel count
// out of a video container.
func (s *FFmpegService) ExtractAudio(ctx context.Context, videoPath, outputPath string, channels int) error {
	if _, err := os.Stat(videoPath); err != nil {
		return apperr.Wrap(apperr.ErrExtraction, "extract", "open input", filepath.Base(videoPath), err)
	}
	if channels <= 0 {
		channels = config.DefaultExtractChannels
	}
	logger.Info("FFmpeg: extracting audio → %s", filepath.Base(outputPath))

	if err := ensureDir(outputPath); err != nil {
		return apperr.Wrap(apperr.ErrExtraction, "extract", "prepare output", "", err)
	}

	args := []string{
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(config.ExtractSampleRate),
		"-ac", strconv.Itoa(channels),
		"-y",
		outputPath,
	}
	if err := s.run(ctx, args, "audio extraction"); err != nil {
		return apperr.Wrap(apperr.ErrExtraction, "extract", "ffmpeg", "", err)
	}
	return nil
}

// Concat joins the files listed in a concat manifest without re-encoding.
func (s *FFmpegService) Concat(ctx context.Context, manifestPath, outputPath string) error {
	logger.Debug("FFmpeg: concatenating %s → %s", filepath.Base(manifestPath), filepath.Base(outputPath))

	if err := ensureDir(outputPath); err != nil {
		return apperr.Wrap(apperr.ErrMediaTool, "stitch", "prepare output", "", err)
	}
	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", manifestPath,
		"-c", "copy",
		"-y",
		outputPath,
	}
	if err := s.run(ctx, args, "concat"); err != nil {
		return apperr.Wrap(apperr.ErrMediaTool, "stitch", "ffmpeg concat", "", err)
	}
	return nil
}

// Mux combines the picture track of videoPath with the audio of audioPath.
// The video stream is copied and the output ends with the shorter input.
func (s *FFmpegService) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	for _, p := range []string{videoPath, audioPath} {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return apperr.Wrap(apperr.ErrNotFound, "mux", "open input", filepath.Base(p), err)
			}
			return apperr.Wrap(apperr.ErrMediaTool, "mux", "open input", filepath.Base(p), err)
		}
	}
	logger.Info("FFmpeg: muxing video + audio → %s", filepath.Base(outputPath))

	if err := ensureDir(outputPath); err != nil {
		return apperr.Wrap(apperr.ErrMediaTool, "mux", "prepare output", "", err)
	}
	args := []string{
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-map", "0:v",
		"-map", "1:a",
		"-shortest",
		"-y",
		outputPath,
	}
	if err := s.run(ctx, args, "muxing"); err != nil {
		return apperr.Wrap(apperr.ErrMediaTool, "mux", "ffmpeg", "", err)
	}
	return nil
}

// Duration returns the container duration of a media file.
// Results are cached per path and modification time.
func (s *FFmpegService) Duration(ctx context.Context, mediaPath string) (time.Duration, error) {
	info, err := os.Stat(mediaPath)
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrMediaTool, "probe", "stat", filepath.Base(mediaPath), err)
	}
	if d, ok := s.cache.Get(mediaPath, info.ModTime()); ok {
		return d, nil
	}

	ctx, cancel := context.WithTimeout(ctx, config.ExecTimeoutFFprobe)
	defer cancel()

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		mediaPath,
	}
	output, err := exec.CommandContext(ctx, s.ffprobePath, args...).Output()
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrMediaTool, "probe", "ffprobe", filepath.Base(mediaPath), err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrMediaTool, "probe", "parse duration", strings.TrimSpace(string(output)), err)
	}
	d := time.Duration(seconds * float64(time.Second))
	s.cache.Set(mediaPath, info.ModTime(), d)
	return d, nil
}

// run executes an FFmpeg command and returns any error.
func (s *FFmpegService) run(ctx context.Context, args []string, operation string) error {
	ctx, cancel := context.WithTimeout(ctx, config.ExecTimeoutFFmpeg)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.ffmpegPath, append([]string{"-hide_banner", "-nostdin"}, args...)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg %s failed: %w\nOutput: %s", operation, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// ensureDir creates the parent directory for a file path.
func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}
