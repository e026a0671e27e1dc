package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

type Options struct {
	// RunAt takes precedence over Delay when set.
	RunAt time.Time
	Delay time.Duration
	// MaxAttempts overrides the kind's policy when positive.
	MaxAttempts int
	// ID deduplicates jobs: enqueueing an ID that is still retained fails
	// with ErrDuplicateJob.
	ID string
}

type JobStatus struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	State       JobState  `json:"state"`
	Attempt     int       `json:"attempt"`
	MaxAttempts int       `json:"max_attempts"`
	NextRunAt   time.Time `json:"next_run_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// JobQueue is a durable, delayed, retryable work queue with one logical
// queue per job kind.
type JobQueue interface {
	Enqueue(ctx context.Context, kind string, payload any, opts Options) (string, error)
	Status(ctx context.Context, kind, id string) (*JobStatus, error)
	Remove(ctx context.Context, kind, id string) error
}

type asynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func NewAsynqQueue(client *asynq.Client, inspector *asynq.Inspector) JobQueue {
	return &asynqQueue{client: client, inspector: inspector}
}

func (q *asynqQueue) Enqueue(ctx context.Context, kind string, payload any, opts Options) (string, error) {
	taskType, err := TaskType(kind)
	if err != nil {
		return "", err
	}

	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	policy := PolicyFor(kind)
	maxAttempts := policy.MaxAttempts
	if opts.MaxAttempts > 0 {
		maxAttempts = opts.MaxAttempts
	}

	taskOpts := []asynq.Option{
		asynq.Queue(kind),
		asynq.MaxRetry(maxAttempts - 1),
		asynq.Retention(policy.Retention),
	}
	if opts.ID != "" {
		taskOpts = append(taskOpts, asynq.TaskID(opts.ID))
	}
	switch {
	case !opts.RunAt.IsZero():
		taskOpts = append(taskOpts, asynq.ProcessAt(opts.RunAt))
	case opts.Delay > 0:
		taskOpts = append(taskOpts, asynq.ProcessIn(opts.Delay))
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(taskType, taskPayload), taskOpts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return opts.ID, fmt.Errorf("%w: %s", ErrDuplicateJob, opts.ID)
	}
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return info.ID, nil
}

func (q *asynqQueue) Status(ctx context.Context, kind, id string) (*JobStatus, error) {
	info, err := q.inspector.GetTaskInfo(kind, id)
	if err != nil {
		return nil, mapInspectorErr(err)
	}
	return statusFromTaskInfo(kind, info), nil
}

// Remove deletes a job that is not currently running.
func (q *asynqQueue) Remove(ctx context.Context, kind, id string) error {
	if err := q.inspector.DeleteTask(kind, id); err != nil {
		return mapInspectorErr(err)
	}
	return nil
}

func mapInspectorErr(err error) error {
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return ErrJobNotFound
	}
	return err
}

func statusFromTaskInfo(kind string, info *asynq.TaskInfo) *JobStatus {
	status := &JobStatus{
		ID:          info.ID,
		Kind:        kind,
		Attempt:     info.Retried,
		MaxAttempts: info.MaxRetry + 1,
		NextRunAt:   info.NextProcessAt,
		LastError:   info.LastErr,
	}

	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateAggregating:
		status.State = JobQueued
	case asynq.TaskStateActive:
		status.State = JobRunning
		status.Attempt++
	case asynq.TaskStateRetry:
		status.State = JobRetryScheduled
	case asynq.TaskStateArchived:
		status.State = JobDead
		status.Attempt++
	case asynq.TaskStateCompleted:
		status.State = JobDone
		status.Attempt++
	}
	return status
}
