package queue

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrUnknownKind       = errors.New("unknown job kind")
	ErrJobNotFound       = errors.New("job not found")
	ErrDuplicateJob      = errors.New("job already exists")
	ErrInvalidTransition = errors.New("invalid job state transition")
	ErrNotDue            = errors.New("job is not due yet")
)

type JobState string

const (
	JobQueued         JobState = "QUEUED"
	JobRunning        JobState = "RUNNING"
	JobDone           JobState = "DONE"
	JobRetryScheduled JobState = "RETRY_SCHEDULED"
	JobDead           JobState = "DEAD"
)

// Backoff grows the retry delay geometrically from Initial, capped at Max.
type Backoff struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// Delay is the wait before the retry that follows the given failed attempt
// (1-based).
func (b Backoff) Delay(failedAttempt int) time.Duration {
	if failedAttempt < 1 {
		failedAttempt = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := time.Duration(float64(b.Initial) * math.Pow(mult, float64(failedAttempt-1)))
	if b.Max > 0 && (d > b.Max || d < 0) {
		return b.Max
	}
	return d
}

type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	// Retention is how long finished jobs stay inspectable.
	Retention time.Duration
}

// Job is the queue envelope and its lifecycle:
// QUEUED -> RUNNING -> {DONE, RETRY_SCHEDULED, DEAD}, RETRY_SCHEDULED -> RUNNING.
type Job struct {
	ID          string
	Kind        string
	Payload     []byte
	State       JobState
	Attempt     int
	MaxAttempts int
	Backoff     Backoff
	RunAt       time.Time
	LastError   string
	FinishedAt  time.Time
}

func NewJob(id, kind string, payload []byte, policy Policy, runAt time.Time) *Job {
	return &Job{
		ID:          id,
		Kind:        kind,
		Payload:     payload,
		State:       JobQueued,
		MaxAttempts: max(policy.MaxAttempts, 1),
		Backoff:     policy.Backoff,
		RunAt:       runAt,
	}
}

func (j *Job) transition(to JobState, allowed ...JobState) error {
	for _, from := range allowed {
		if j.State == from {
			j.State = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, to)
}

// Start begins the next attempt.
func (j *Job) Start(now time.Time) error {
	if now.Before(j.RunAt) {
		return ErrNotDue
	}
	if err := j.transition(JobRunning, JobQueued, JobRetryScheduled); err != nil {
		return err
	}
	j.Attempt++
	return nil
}

func (j *Job) Succeed(now time.Time) error {
	if err := j.transition(JobDone, JobRunning); err != nil {
		return err
	}
	j.LastError = ""
	j.FinishedAt = now
	return nil
}

// Fail records a failed attempt. The job is retried after the backoff delay
// unless the failure is permanent or the attempt budget is spent.
func (j *Job) Fail(now time.Time, cause error, permanent bool) error {
	if j.State != JobRunning {
		return fmt.Errorf("%w: %s -> failed", ErrInvalidTransition, j.State)
	}
	if cause != nil {
		j.LastError = cause.Error()
	}
	if permanent || j.Attempt >= j.MaxAttempts {
		j.State = JobDead
		j.FinishedAt = now
		return nil
	}
	j.State = JobRetryScheduled
	j.RunAt = now.Add(j.Backoff.Delay(j.Attempt))
	return nil
}

func (j *Job) Finished() bool {
	return j.State == JobDone || j.State == JobDead
}
