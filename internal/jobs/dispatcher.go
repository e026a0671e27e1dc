package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	config "github.com/maheshrc27/autopost/configs"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/queue"
	"github.com/maheshrc27/autopost/internal/repository"
	"github.com/robfig/cron"
	"go.uber.org/zap"
)

var (
	ErrScheduleNotFound      = errors.New("schedule not found")
	ErrScheduleNotExecutable = errors.New("schedule cannot be executed in its current status")
	ErrPostNotFound          = errors.New("post not found")
	ErrPostNotRetryable      = errors.New("post is not in a retryable status")
)

// Clock abstracts time so the loop can be driven from tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func RealClock() Clock { return realClock{} }

// Dispatcher turns due schedules into posts and publish jobs, and
// periodically enqueues insight collection for recently published posts.
type Dispatcher struct {
	sr repository.ScheduleRepository
	pr repository.PostRepository
	q  queue.JobQueue

	cfg      config.Dispatcher
	publish  cron.Schedule
	insights cron.Schedule
	clock    Clock
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDispatcher(
	sr repository.ScheduleRepository,
	pr repository.PostRepository,
	q queue.JobQueue,
	cfg config.Dispatcher,
	clock Clock,
	logger *zap.Logger) (*Dispatcher, error) {
	publish, err := cron.Parse(cfg.PublishSpec)
	if err != nil {
		return nil, fmt.Errorf("parse publish spec %q: %w", cfg.PublishSpec, err)
	}
	insights, err := cron.Parse(cfg.InsightsSpec)
	if err != nil {
		return nil, fmt.Errorf("parse insights spec %q: %w", cfg.InsightsSpec, err)
	}
	if clock == nil {
		clock = RealClock()
	}
	return &Dispatcher{
		sr:       sr,
		pr:       pr,
		q:        q,
		cfg:      cfg,
		publish:  publish,
		insights: insights,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Start runs the scan loop in the background until Stop is called or ctx
// is cancelled. The publish scan runs once immediately.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go d.loop(ctx, d.done)
}

// Stop cancels the loop and waits for the current scan to return.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *Dispatcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	now := d.clock.Now()
	d.RunPublishScan(ctx)
	nextPublish := d.publish.Next(now)
	nextInsights := d.insights.Next(now)

	for {
		next := nextPublish
		if nextInsights.Before(next) {
			next = nextInsights
		}

		select {
		case <-ctx.Done():
			return
		case <-d.clock.After(next.Sub(d.clock.Now())):
		}

		now = d.clock.Now()
		if !now.Before(nextPublish) {
			d.RunPublishScan(ctx)
			nextPublish = d.publish.Next(now)
		}
		if !now.Before(nextInsights) {
			d.RunInsightScan(ctx)
			nextInsights = d.insights.Next(now)
		}
	}
}

// RunPublishScan dispatches every PENDING schedule inside the due window.
// It returns the number of posts created.
func (d *Dispatcher) RunPublishScan(ctx context.Context) int {
	now := d.clock.Now()
	schedules, err := d.sr.ListDue(ctx, now.Add(-d.cfg.LookBack), now.Add(d.cfg.LookAhead))
	if err != nil {
		d.logger.Error("failed to list due schedules", zap.Error(err))
		return 0
	}

	created := 0
	for _, s := range schedules {
		if ctx.Err() != nil {
			break
		}
		created += d.dispatch(ctx, s, now)
	}
	if len(schedules) > 0 {
		d.logger.Info("publish scan finished", zap.Int("schedules", len(schedules)), zap.Int("posts", created))
	}
	return created
}

func (d *Dispatcher) dispatch(ctx context.Context, s *models.Schedule, now time.Time) int {
	log := d.logger.With(zap.Int64("schedule_id", s.ID))

	claimed, err := d.sr.Claim(ctx, s.ID)
	if err != nil {
		log.Error("failed to claim schedule", zap.Error(err))
		return 0
	}
	if !claimed {
		log.Debug("schedule already claimed")
		return 0
	}

	created := 0
	var problems []string
	for _, accountID := range s.TargetAccounts {
		post, err := d.pr.CreateWithClaimedAsset(ctx, &models.Post{
			ScheduleID:   s.ID,
			AccountID:    accountID,
			PostType:     s.PostType,
			Caption:      s.Caption,
			Hashtags:     s.Hashtags,
			Status:       models.PostStatusQueued,
			ScheduledFor: s.ScheduledTime,
		}, s.ThemeID)
		if errors.Is(err, repository.ErrNoUnusedMedia) {
			log.Warn("no unused media", zap.Int64("account_id", accountID), zap.Int64("theme_id", s.ThemeID))
			problems = append(problems, fmt.Sprintf("account %d: no unused media", accountID))
			continue
		}
		if err != nil {
			log.Error("failed to create post", zap.Int64("account_id", accountID), zap.Error(err))
			problems = append(problems, fmt.Sprintf("account %d: %v", accountID, err))
			continue
		}

		if err := d.enqueuePublish(ctx, post.ID, s.ScheduledTime); err != nil {
			log.Error("failed to enqueue publish job", zap.Int64("post_id", post.ID), zap.Error(err))
			problems = append(problems, fmt.Sprintf("post %d: %v", post.ID, err))
			// The post stays QUEUED without a job until RetryPost enqueues one.
			msg := "enqueue publish job: " + err.Error()
			if err := d.pr.RecordFailure(ctx, post.ID, models.PostStatusQueued, msg); err != nil {
				log.Error("failed to record enqueue failure", zap.Int64("post_id", post.ID), zap.Error(err))
			}
			continue
		}
		created++
	}

	lastError := joinProblems(problems)
	switch {
	case s.IsRecurring && s.RecurringPattern != "":
		d.reschedule(ctx, log, s, now, lastError)
	case created == 0:
		if _, err := d.sr.SetStatus(ctx, s.ID, []string{models.ScheduleStatusProcessing}, models.ScheduleStatusFailed, lastError); err != nil {
			log.Error("failed to mark schedule failed", zap.Error(err))
		}
	case lastError != "":
		if _, err := d.sr.SetStatus(ctx, s.ID, []string{models.ScheduleStatusProcessing}, models.ScheduleStatusProcessing, lastError); err != nil {
			log.Warn("failed to record schedule error", zap.Error(err))
		}
	}

	log.Info("schedule dispatched", zap.Int("posts", created), zap.Int("targets", len(s.TargetAccounts)))
	return created
}

// reschedule returns a recurring schedule to PENDING at its next occurrence
// after now.
func (d *Dispatcher) reschedule(ctx context.Context, log *zap.Logger, s *models.Schedule, now time.Time, lastError string) {
	sched, err := cron.ParseStandard(s.RecurringPattern)
	if err != nil {
		log.Error("invalid recurring pattern", zap.String("pattern", s.RecurringPattern), zap.Error(err))
		msg := fmt.Sprintf("invalid recurring pattern %q: %v", s.RecurringPattern, err)
		if _, err := d.sr.SetStatus(ctx, s.ID, []string{models.ScheduleStatusProcessing}, models.ScheduleStatusFailed, msg); err != nil {
			log.Error("failed to mark schedule failed", zap.Error(err))
		}
		return
	}

	next := sched.Next(s.ScheduledTime)
	for !next.IsZero() && !next.After(now) {
		next = sched.Next(next)
	}
	if next.IsZero() {
		return
	}
	if err := d.sr.Reschedule(ctx, s.ID, next, lastError); err != nil {
		log.Error("failed to reschedule", zap.Error(err))
		return
	}
	log.Info("recurring schedule rescheduled", zap.Time("next", next))
}

func (d *Dispatcher) enqueuePublish(ctx context.Context, postID int64, runAt time.Time) error {
	_, err := d.q.Enqueue(ctx, queue.KindPublish, queue.PublishPayload{PostID: postID}, queue.Options{
		ID:    queue.PublishJobID(postID),
		RunAt: runAt,
	})
	if errors.Is(err, queue.ErrDuplicateJob) {
		return nil
	}
	return err
}

// RunInsightScan enqueues one insights job per recently published post,
// spaced by the pacing interval. It returns the number of jobs enqueued.
func (d *Dispatcher) RunInsightScan(ctx context.Context) int {
	now := d.clock.Now()
	posts, err := d.pr.ListPublishedSince(ctx, now.Add(-d.cfg.InsightsWindow), d.cfg.InsightsBatch)
	if err != nil {
		d.logger.Error("failed to list published posts", zap.Error(err))
		return 0
	}

	enqueued := 0
	for _, p := range posts {
		if p.RemoteMediaID == "" {
			continue
		}
		payload := queue.InsightsPayload{
			AccountID: p.AccountID,
			Targets:   []queue.InsightTarget{{PostID: p.ID, RemoteMediaID: p.RemoteMediaID}},
		}
		delay := time.Duration(enqueued) * d.cfg.InsightsPacing
		if _, err := d.q.Enqueue(ctx, queue.KindInsights, payload, queue.Options{Delay: delay}); err != nil {
			d.logger.Error("failed to enqueue insights job", zap.Int64("post_id", p.ID), zap.Error(err))
			continue
		}
		enqueued++
	}

	d.logger.Info("insight scan finished", zap.Int("posts", len(posts)), zap.Int("jobs", enqueued))
	return enqueued
}

// ExecuteNow dispatches a schedule immediately, bypassing the due window.
func (d *Dispatcher) ExecuteNow(ctx context.Context, scheduleID int64) (int, error) {
	s, err := d.sr.GetByID(ctx, scheduleID)
	if err != nil {
		return 0, err
	}
	if s == nil {
		return 0, ErrScheduleNotFound
	}
	if s.Status == models.ScheduleStatusCompleted || s.Status == models.ScheduleStatusProcessing {
		return 0, fmt.Errorf("%w: %s", ErrScheduleNotExecutable, s.Status)
	}

	now := d.clock.Now()
	ok, err := d.sr.ForceDue(ctx, scheduleID, now)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrScheduleNotExecutable
	}
	s.ScheduledTime = now
	s.Status = models.ScheduleStatusPending

	return d.dispatch(ctx, s, now), nil
}

// RetryPost sends a failed post back to the queue. A post still QUEUED has
// its publish job re-created if it was lost.
func (d *Dispatcher) RetryPost(ctx context.Context, postID int64) error {
	post, err := d.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return ErrPostNotFound
	}

	switch post.Status {
	case models.PostStatusFailed:
		ok, err := d.pr.Requeue(ctx, postID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPostNotRetryable
		}
		// The dead job still holds the post's key.
		if err := d.q.Remove(ctx, queue.KindPublish, queue.PublishJobID(postID)); err != nil && !errors.Is(err, queue.ErrJobNotFound) {
			d.logger.Warn("failed to remove previous job", zap.Int64("post_id", postID), zap.Error(err))
		}
	case models.PostStatusQueued:
	default:
		return fmt.Errorf("%w: %s", ErrPostNotRetryable, post.Status)
	}

	return d.enqueuePublish(ctx, postID, d.clock.Now())
}

func joinProblems(problems []string) string {
	if len(problems) == 0 {
		return ""
	}
	msg := problems[0]
	for _, p := range problems[1:] {
		msg += "; " + p
	}
	return msg
}
