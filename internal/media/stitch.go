package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"video-dubber/internal/apperr"
	"video-dubber/internal/logger"
)

// Stitcher merges ordered per-sentence clips into one audio track.
//
// Clips are joined back to back in the order given. Inter-sentence gaps
// from the source timestamps are not reconstructed, so the merged length
// is the sum of the clip lengths.
type Stitcher struct {
	ffmpeg *FFmpegService
}

// NewStitcher creates a stitcher backed by ffmpeg.
func NewStitcher(ffmpeg *FFmpegService) *Stitcher {
	return &Stitcher{ffmpeg: ffmpeg}
}

// Stitch writes the merged track to outputPath. A single clip is renamed
// into place. Several clips are concatenated through a manifest next to the
// output; on success the clips and the manifest are removed, on failure
// they are left on disk for inspection.
func (s *Stitcher) Stitch(ctx context.Context, clips []string, outputPath string) error {
	if len(clips) == 0 {
		return apperr.Wrap(apperr.ErrMediaTool, "stitch", "", "no clips to stitch", nil)
	}
	if err := ensureDir(outputPath); err != nil {
		return apperr.Wrap(apperr.ErrMediaTool, "stitch", "prepare output", "", err)
	}

	if len(clips) == 1 {
		if err := moveFile(clips[0], outputPath); err != nil {
			return apperr.Wrap(apperr.ErrMediaTool, "stitch", "rename clip", filepath.Base(clips[0]), err)
		}
		return nil
	}

	manifest := ManifestPath(outputPath)
	if err := WriteManifest(manifest, clips); err != nil {
		return apperr.Wrap(apperr.ErrMediaTool, "stitch", "write manifest", "", err)
	}
	if err := s.ffmpeg.Concat(ctx, manifest, outputPath); err != nil {
		logger.Warn("Stitch failed, keeping %d clips and %s for inspection", len(clips), filepath.Base(manifest))
		return err
	}

	for _, p := range clips {
		removeQuietly(p)
	}
	removeQuietly(manifest)
	return nil
}

// ManifestPath returns the concat manifest location for an output file.
func ManifestPath(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".concat.txt"
}

// WriteManifest writes an ffmpeg concat list with one absolute path per
// line, in the given order.
func WriteManifest(path string, clips []string) error {
	var b strings.Builder
	for _, clip := range clips {
		abs, err := filepath.Abs(clip)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "file '%s'\n", quoteManifestPath(abs))
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// quoteManifestPath escapes single quotes for the concat demuxer.
func quoteManifestPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}

// RemoveIfExists deletes path, treating an already missing file as success.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func removeQuietly(path string) {
	if err := RemoveIfExists(path); err != nil {
		logger.Warn("Failed to remove %s: %v", filepath.Base(path), err)
	}
}

// moveFile renames src to dst, copying when the rename crosses devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
