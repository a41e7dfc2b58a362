package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"video-dubber/internal/apperr"
)

func TestAdmission(t *testing.T) {
	a := NewAdmission(2)
	if err := a.TryAcquire(); err != nil {
		t.Fatal(err)
	}
	if err := a.TryAcquire(); err != nil {
		t.Fatal(err)
	}
	err := a.TryAcquire()
	if !errors.Is(err, apperr.ErrOverloaded) {
		t.Fatalf("expected ErrOverloaded, got %v", err)
	}
	if got := apperr.HTTPStatus(err); got != 503 {
		t.Errorf("status = %d, want 503", got)
	}
	a.Release()
	if a.InUse() != 1 {
		t.Errorf("InUse = %d, want 1", a.InUse())
	}
	if err := a.TryAcquire(); err != nil {
		t.Errorf("acquire after release: %v", err)
	}
}

func TestAdmission_ReleaseWithoutAcquire(t *testing.T) {
	a := NewAdmission(0)
	a.Release()
	if a.Capacity() != 1 || a.InUse() != 0 {
		t.Errorf("capacity=%d inUse=%d", a.Capacity(), a.InUse())
	}
}

func TestSemaphore_ContextCancel(t *testing.T) {
	s := NewSemaphore(1)
	if err := s.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	s.Release()
	if err := s.Acquire(context.Background()); err != nil {
		t.Errorf("acquire after release: %v", err)
	}
}
