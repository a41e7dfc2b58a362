package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"video-dubber/internal/apperr"
	"video-dubber/internal/limiter"
	"video-dubber/internal/media"
)

// MuxTool combines a video's picture track with a replacement audio track.
type MuxTool interface {
	Mux(ctx context.Context, videoPath, audioPath, outputPath string) error
}

// Muxer produces downloadable dubbed videos on demand. Every call writes a
// fresh file; results are not cached.
type Muxer struct {
	tool   MuxTool
	tmpDir string
	media  *limiter.Semaphore
}

// NewMuxer creates a muxer writing into tmpDir. media may be nil.
func NewMuxer(tool MuxTool, tmpDir string, media *limiter.Semaphore) *Muxer {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &Muxer{tool: tool, tmpDir: tmpDir, media: media}
}

// Mux writes a new muxed file and returns its path. The caller owns the file.
// Missing inputs fail with apperr.ErrNotFound.
func (m *Muxer) Mux(ctx context.Context, videoPath, audioPath string) (string, error) {
	for _, p := range []string{videoPath, audioPath} {
		if p == "" {
			return "", apperr.Wrap(apperr.ErrNotFound, "mux", "", "missing artifact path", nil)
		}
		if _, err := os.Stat(p); err != nil {
			return "", apperr.Wrap(apperr.ErrNotFound, "mux", "open input", filepath.Base(p), err)
		}
	}

	ext := strings.ToLower(filepath.Ext(videoPath))
	if ext == "" {
		ext = ".mp4"
	}
	out := filepath.Join(m.tmpDir, "muxed_"+uuid.NewString()+ext)

	if m.media != nil {
		if err := m.media.Acquire(ctx); err != nil {
			return "", apperr.Wrap(apperr.ErrMediaTool, "mux", "wait for media slot", "", err)
		}
		defer m.media.Release()
	}
	if err := m.tool.Mux(ctx, videoPath, audioPath, out); err != nil {
		_ = media.RemoveIfExists(out)
		return "", err
	}
	return out, nil
}

// DownloadName is the attachment name offered for a muxed video.
func DownloadName(videoPath string) string {
	base := filepath.Base(videoPath)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "_dubbed" + ext
}
