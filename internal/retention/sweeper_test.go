package retention

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"video-dubber/internal/store"
)

type fakeStore struct {
	expired []store.Record
	deleted []int64
}

func (f *fakeStore) ExpiredBefore(ctx context.Context, cutoff time.Time) ([]store.Record, error) {
	var out []store.Record
	for _, r := range f.expired {
		if r.CompletedAt != nil && r.CompletedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) Delete(ctx context.Context, startTime int64) error {
	f.deleted = append(f.deleted, startTime)
	return nil
}

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestSweep_ExpiredJobsAndLooseFiles(t *testing.T) {
	uploads := t.TempDir()
	output := t.TempDir()
	now := time.Now()
	old := now.Add(-2 * time.Hour)

	video := filepath.Join(uploads, "1_in.mp4")
	audio := filepath.Join(output, "dubbed_1.wav")
	touch(t, video, now) // referenced by an expired job, fresh mtime
	touch(t, audio, now)

	loose := filepath.Join(output, "clip_9_0000.wav")
	touch(t, loose, old)
	fresh := filepath.Join(output, "dubbed_2.wav")
	touch(t, fresh, now)
	db := filepath.Join(output, "jobs.db")
	touch(t, db, old)

	done := old
	fs := &fakeStore{expired: []store.Record{{
		StartTime:   1,
		VideoPath:   video,
		AudioPath:   audio,
		SRTPath:     filepath.Join(output, "already_gone.srt"),
		CompletedAt: &done,
	}}}

	s := NewSweeper(fs, time.Hour, output, uploads)
	report, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if report.Jobs != 1 || len(fs.deleted) != 1 || fs.deleted[0] != 1 {
		t.Errorf("expected job 1 deleted, report=%+v deleted=%v", report, fs.deleted)
	}
	if report.Files != 3 {
		t.Errorf("files removed = %d, want 3", report.Files)
	}
	for _, p := range []string{video, audio, loose} {
		if exists(p) {
			t.Errorf("%s should have been removed", p)
		}
	}
	for _, p := range []string{fresh, db} {
		if !exists(p) {
			t.Errorf("%s should have been kept", p)
		}
	}
}

func TestSweep_MissingDirectory(t *testing.T) {
	s := NewSweeper(nil, time.Hour, t.TempDir(), filepath.Join(t.TempDir(), "missing"))
	if _, err := s.Sweep(context.Background()); err != nil {
		t.Errorf("missing directory should not fail the sweep: %v", err)
	}
}

func TestSweep_LockHeld(t *testing.T) {
	dir := t.TempDir()
	other := flock.New(filepath.Join(dir, LockFileName))
	ok, err := other.TryLock()
	if err != nil || !ok {
		t.Fatalf("could not take lock: %v", err)
	}
	defer other.Unlock()

	s := NewSweeper(nil, time.Hour, dir)
	if _, err := s.Sweep(context.Background()); !errors.Is(err, ErrSweepInProgress) {
		t.Errorf("expected ErrSweepInProgress, got %v", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "old.wav")
	touch(t, stale, time.Now().Add(-3*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(nil, time.Hour, dir).Run(ctx, time.Hour)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for exists(stale) {
		select {
		case <-deadline:
			t.Fatal("initial sweep did not run")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
