// Package limiter bounds how many dubbing jobs and media-tool processes run at once.
package limiter

import (
	"context"
	"fmt"

	"video-dubber/internal/apperr"
)

// Admission caps concurrently running jobs. Requests beyond the cap are
// refused immediately instead of queueing behind long pipelines.
type Admission struct {
	slots chan struct{}
}

// NewAdmission returns a limiter admitting at most max jobs.
func NewAdmission(max int) *Admission {
	if max <= 0 {
		max = 1
	}
	return &Admission{slots: make(chan struct{}, max)}
}

// TryAcquire takes a slot without blocking. It returns an ErrOverloaded error
// when every slot is in use.
func (a *Admission) TryAcquire() error {
	select {
	case a.slots <- struct{}{}:
		return nil
	default:
		return fmt.Errorf("%w: %d jobs already running", apperr.ErrOverloaded, cap(a.slots))
	}
}

// Release frees a slot taken by TryAcquire.
func (a *Admission) Release() {
	select {
	case <-a.slots:
	default:
	}
}

// InUse reports the number of occupied slots.
func (a *Admission) InUse() int { return len(a.slots) }

// Capacity reports the configured maximum.
func (a *Admission) Capacity() int { return cap(a.slots) }

// Semaphore limits concurrent CPU-heavy operations (ffmpeg extraction,
// concatenation and muxing) across all jobs.
type Semaphore struct {
	slots chan struct{}
}

func NewSemaphore(n int) *Semaphore {
	if n <= 0 {
		n = 1
	}
	return &Semaphore{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Semaphore) Release() {
	<-s.slots
}
