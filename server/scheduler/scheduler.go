package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Job is one unit of fire-and-forget background work. Jobs must be
// idempotent: the scheduler guarantees at-least-once execution.
type Job func(ctx context.Context) error

// Scheduler runs detached jobs on a bounded worker pool. Callers never
// wait on a scheduled job; failures are logged, not propagated.
type Scheduler struct {
	sem *semaphore.Weighted

	mu      sync.Mutex
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
	closed  bool
}

// New creates a scheduler allowing at most maxConcurrent jobs at once.
func New(maxConcurrent int64) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sem:     semaphore.NewWeighted(maxConcurrent),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// ScheduleAfter queues a job to run after the given delay. The job runs on
// the scheduler's own context, decoupled from the request that queued it.
func (s *Scheduler) ScheduleAfter(delay time.Duration, name string, job Job) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		slog.Warn("scheduler closed, dropping job", "job", name)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-s.baseCtx.Done():
				slog.Warn("scheduler stopped before job ran", "job", name)
				return
			}
		}

		if err := s.sem.Acquire(s.baseCtx, 1); err != nil {
			slog.Warn("scheduler stopped before job ran", "job", name)
			return
		}
		defer s.sem.Release(1)

		start := time.Now()
		if err := s.run(name, job); err != nil {
			slog.Error("background job failed",
				"job", name,
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err)
			return
		}
		slog.Debug("background job completed",
			"job", name,
			"duration_ms", time.Since(start).Milliseconds())
	}()
}

// run executes the job with panic recovery so one bad job cannot take
// down unrelated jobs or the server.
func (s *Scheduler) run(name string, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", name, r)
		}
	}()
	return job(s.baseCtx)
}

// Shutdown stops accepting jobs and waits for in-flight ones until the
// context expires.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	s.cancel()
	return ctx.Err()
}
