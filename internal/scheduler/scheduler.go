// Package scheduler runs jobs in parallel up to a fixed concurrency limit.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultLimit is the number of jobs allowed to run at once when no limit is
// configured.
const DefaultLimit = 10

// ErrClosed is returned by Submit after Shutdown has been called.
var ErrClosed = errors.New("scheduler closed")

// Job describes one job currently holding a slot.
type Job struct {
	ID      string
	Started time.Time
}

// Scheduler bounds the number of concurrently running jobs. Submit blocks
// the caller until a slot frees up, so jobs run on the submitting goroutine.
type Scheduler struct {
	name   string
	limit  int
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu      sync.RWMutex
	running map[uint64]Job
	seq     uint64
	closed  bool

	// WaitGroup for all admitted jobs, waiting or running
	wg sync.WaitGroup

	// Counters
	submitted atomic.Int64
	completed atomic.Int64
	waiting   atomic.Int64
}

// New creates a Scheduler. A limit <= 0 uses DefaultLimit.
func New(name string, limit int, logger *slog.Logger) *Scheduler {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		name:    name,
		limit:   limit,
		sem:     semaphore.NewWeighted(int64(limit)),
		logger:  logger,
		running: make(map[uint64]Job),
	}
}

// Submit waits for a free slot, then runs fn on the calling goroutine and
// returns once fn does. If ctx is done before a slot is available, fn is
// never called and the context error is returned.
func (s *Scheduler) Submit(ctx context.Context, jobID string, fn func()) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.submitted.Add(1)
	s.waiting.Add(1)
	err := s.sem.Acquire(ctx, 1)
	s.waiting.Add(-1)
	if err != nil {
		s.logger.Debug("job_abandoned",
			"scheduler", s.name,
			"job_id", jobID,
			"error", err,
		)
		return fmt.Errorf("waiting for slot for %q: %w", jobID, err)
	}
	defer s.sem.Release(1)

	key := s.track(jobID)
	defer s.untrack(key)

	fn()
	s.completed.Add(1)
	return nil
}

func (s *Scheduler) track(jobID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.running[s.seq] = Job{ID: jobID, Started: time.Now()}
	return s.seq
}

func (s *Scheduler) untrack(key uint64) {
	s.mu.Lock()
	delete(s.running, key)
	s.mu.Unlock()
}

// Running returns the jobs currently holding a slot, oldest first.
func (s *Scheduler) Running() []Job {
	s.mu.RLock()
	keys := make([]uint64, 0, len(s.running))
	for k := range s.running {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	jobs := make([]Job, 0, len(keys))
	for _, k := range keys {
		jobs = append(jobs, s.running[k])
	}
	s.mu.RUnlock()
	return jobs
}

// Wait blocks until every admitted job has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Shutdown stops admitting new jobs and waits for admitted ones to finish.
// Jobs are not interrupted; callers cancel them through their own handles.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.logger.Info("scheduler_shutdown_initiated",
		"scheduler", s.name,
		"active_jobs", s.ActiveCount(),
		"waiting_jobs", s.WaitingCount(),
	)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler_stopped", "scheduler", s.name)
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler_shutdown_timeout", "scheduler", s.name)
		return ctx.Err()
	}
}

// Name returns the scheduler name.
func (s *Scheduler) Name() string { return s.name }

// Limit returns the concurrency limit.
func (s *Scheduler) Limit() int { return s.limit }

// ActiveCount returns the number of jobs holding a slot.
func (s *Scheduler) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.running)
}

// WaitingCount returns the number of jobs blocked waiting for a slot.
func (s *Scheduler) WaitingCount() int { return int(s.waiting.Load()) }

// SubmittedCount returns the total number of Submit calls admitted.
func (s *Scheduler) SubmittedCount() int { return int(s.submitted.Load()) }

// CompletedCount returns the number of jobs whose fn has returned.
func (s *Scheduler) CompletedCount() int { return int(s.completed.Load()) }
