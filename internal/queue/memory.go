package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Handler processes one job delivered by MemoryQueue.
type Handler func(ctx context.Context, job *Job) error

// MemoryQueue is an in-process JobQueue driven by an injected clock. It
// runs the same job state machine as the Redis-backed runtime and is used
// for local runs and tests.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs map[string]*Job
	now  func() time.Time
}

func NewMemoryQueue(now func() time.Time) *MemoryQueue {
	if now == nil {
		now = time.Now
	}
	return &MemoryQueue{jobs: map[string]*Job{}, now: now}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, kind string, payload any, opts Options) (string, error) {
	if _, err := TaskType(kind); err != nil {
		return "", err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	q.purge(now)

	id := opts.ID
	if id == "" {
		if id, err = gonanoid.New(); err != nil {
			return "", err
		}
	}
	if _, exists := q.jobs[id]; exists {
		return id, fmt.Errorf("%w: %s", ErrDuplicateJob, id)
	}

	policy := PolicyFor(kind)
	if opts.MaxAttempts > 0 {
		policy.MaxAttempts = opts.MaxAttempts
	}
	runAt := now.Add(opts.Delay)
	if !opts.RunAt.IsZero() {
		runAt = opts.RunAt
	}

	q.jobs[id] = NewJob(id, kind, data, policy, runAt)
	return id, nil
}

func (q *MemoryQueue) Status(ctx context.Context, kind, id string) (*JobStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.purge(q.now())

	job, ok := q.jobs[id]
	if !ok || job.Kind != kind {
		return nil, ErrJobNotFound
	}
	return &JobStatus{
		ID:          job.ID,
		Kind:        job.Kind,
		State:       job.State,
		Attempt:     job.Attempt,
		MaxAttempts: job.MaxAttempts,
		NextRunAt:   job.RunAt,
		LastError:   job.LastError,
	}, nil
}

func (q *MemoryQueue) Remove(ctx context.Context, kind, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.Kind != kind {
		return ErrJobNotFound
	}
	if job.State == JobRunning {
		return fmt.Errorf("remove %s: job is running", id)
	}
	delete(q.jobs, id)
	return nil
}

// Pending lists jobs of kind that have not finished, ordered by run time.
func (q *MemoryQueue) Pending(kind string) []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*Job
	for _, job := range q.jobs {
		if job.Kind == kind && !job.Finished() {
			cp := *job
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].RunAt.Before(out[k].RunAt) })
	return out
}

// RunDue delivers every due job of kind to h once and applies the retry
// policy to the outcome. It returns the number of attempts made.
func (q *MemoryQueue) RunDue(ctx context.Context, kind string, h Handler) int {
	due := q.claimDue(kind)
	for _, job := range due {
		err := h(WithAttempt(ctx, job.Attempt, job.MaxAttempts), job)
		q.finish(job.ID, err)
	}
	return len(due)
}

func (q *MemoryQueue) claimDue(kind string) []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()

	var due []*Job
	for _, job := range q.jobs {
		if job.Kind != kind || job.Finished() || job.State == JobRunning {
			continue
		}
		if err := job.Start(now); err != nil {
			continue
		}
		cp := *job
		due = append(due, &cp)
	}
	sort.Slice(due, func(i, k int) bool { return due[i].RunAt.Before(due[k].RunAt) })
	return due
}

func (q *MemoryQueue) finish(id string, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return
	}
	now := q.now()
	if err == nil {
		_ = job.Succeed(now)
		return
	}
	_ = job.Fail(now, err, errors.Is(err, asynq.SkipRetry))
}

// purge drops finished jobs whose retention has elapsed. Dead jobs are kept.
func (q *MemoryQueue) purge(now time.Time) {
	for id, job := range q.jobs {
		if job.State != JobDone {
			continue
		}
		if retention := PolicyFor(job.Kind).Retention; retention > 0 && now.Sub(job.FinishedAt) > retention {
			delete(q.jobs, id)
		}
	}
}

type attemptKey struct{}

type attemptInfo struct {
	attempt, maxAttempts int
}

// WithAttempt annotates ctx with the current delivery attempt (1-based).
func WithAttempt(ctx context.Context, attempt, maxAttempts int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attemptInfo{attempt: attempt, maxAttempts: maxAttempts})
}

// AttemptFrom reports the delivery attempt of the running job, reading
// either WithAttempt or asynq's task metadata.
func AttemptFrom(ctx context.Context) (attempt, maxAttempts int) {
	if info, ok := ctx.Value(attemptKey{}).(attemptInfo); ok {
		return info.attempt, info.maxAttempts
	}
	retried, ok := asynq.GetRetryCount(ctx)
	maxRetry, okMax := asynq.GetMaxRetry(ctx)
	if ok && okMax {
		return retried + 1, maxRetry + 1
	}
	return 1, 1
}
