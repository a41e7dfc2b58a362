// Package retention expires job artifacts once the retention window has passed.
package retention

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"video-dubber/internal/logger"
	"video-dubber/internal/media"
	"video-dubber/internal/store"
)

// ErrSweepInProgress is returned when another process holds the sweep lock.
var ErrSweepInProgress = errors.New("another retention sweep is in progress")

// LockFileName is created inside the output directory.
const LockFileName = ".retention.lock"

// JobStore is the subset of the job store the sweeper needs.
type JobStore interface {
	ExpiredBefore(ctx context.Context, cutoff time.Time) ([]store.Record, error)
	Delete(ctx context.Context, startTime int64) error
}

// Report summarizes one sweep.
type Report struct {
	Jobs  int // expired job records removed
	Files int // artifact and loose files removed
}

// Sweeper deletes artifacts older than the retention window. Jobs recorded
// in the store expire by completion time; loose files in the scanned
// directories expire by modification time.
type Sweeper struct {
	jobs     JobStore
	dirs     []string
	window   time.Duration
	lockPath string
	lock     *flock.Flock
	now      func() time.Time
}

// NewSweeper creates a sweeper. jobs may be nil to sweep by mtime only. The
// lock file lives in the first directory.
func NewSweeper(jobs JobStore, window time.Duration, dirs ...string) *Sweeper {
	lockDir := os.TempDir()
	if len(dirs) > 0 {
		lockDir = dirs[0]
	}
	lockPath := filepath.Join(lockDir, LockFileName)
	return &Sweeper{
		jobs:     jobs,
		dirs:     dirs,
		window:   window,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		now:      time.Now,
	}
}

// Sweep runs one retention pass.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	var report Report

	ok, err := s.lock.TryLock()
	if err != nil {
		return report, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		return report, ErrSweepInProgress
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			logger.Warn("Failed to release sweep lock %s: %v", s.lockPath, err)
		}
	}()

	cutoff := s.now().Add(-s.window)

	if s.jobs != nil {
		expired, err := s.jobs.ExpiredBefore(ctx, cutoff)
		if err != nil {
			return report, fmt.Errorf("list expired jobs: %w", err)
		}
		for _, rec := range expired {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			for _, path := range rec.Artifacts() {
				if removed, err := removeIfExists(path); err != nil {
					logger.Warn("Retention: failed to remove %s: %v", path, err)
				} else if removed {
					report.Files++
				}
			}
			if err := s.jobs.Delete(ctx, rec.StartTime); err != nil {
				logger.Warn("Retention: failed to delete job %d: %v", rec.StartTime, err)
				continue
			}
			report.Jobs++
		}
	}

	for _, dir := range s.dirs {
		n, err := s.sweepDir(ctx, dir, cutoff)
		report.Files += n
		if err != nil {
			return report, err
		}
	}

	if report.Jobs > 0 || report.Files > 0 {
		logger.Info("Retention sweep removed %d jobs and %d files older than %s", report.Jobs, report.Files, s.window)
	}
	return report, nil
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	s.runOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			logger.Debug("Retention sweep skipped: %v", err)
			return
		}
		if ctx.Err() == nil {
			logger.Warn("Retention sweep failed: %v", err)
		}
	}
}

func (s *Sweeper) sweepDir(ctx context.Context, dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if entry.IsDir() || skipFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed by a concurrent job cleanup.
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		ok, err := removeIfExists(path)
		if err != nil {
			logger.Warn("Retention: failed to remove %s: %v", path, err)
			continue
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func skipFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, suffix := range []string{".db", ".db-wal", ".db-shm"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// removeIfExists reports whether path was actually removed.
func removeIfExists(path string) (bool, error) {
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := media.RemoveIfExists(path); err != nil {
		return false, err
	}
	return true, nil
}
