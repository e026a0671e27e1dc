package job

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/repository"
)

// store is an in-memory stand-in for the schedule, post and asset tables
// that honours the same conditional updates as the SQL repositories.
type store struct {
	mu        sync.Mutex
	schedules map[int64]*models.Schedule
	posts     map[int64]*models.Post
	assets    map[int64]*models.MediaAsset
	nextPost  int64
	listed    chan struct{}
}

func newStore() *store {
	return &store{
		schedules: map[int64]*models.Schedule{},
		posts:     map[int64]*models.Post{},
		assets:    map[int64]*models.MediaAsset{},
		listed:    make(chan struct{}, 16),
	}
}

type scheduleRepo struct{ *store }

func (r scheduleRepo) GetByID(ctx context.Context, id int64) (*models.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r scheduleRepo) ListDue(ctx context.Context, from, to time.Time) ([]*models.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Schedule
	for _, s := range r.schedules {
		if s.Status == models.ScheduleStatusPending && !s.ScheduledTime.Before(from) && !s.ScheduledTime.After(to) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	select {
	case r.listed <- struct{}{}:
	default:
	}
	return out, nil
}

func (r scheduleRepo) Claim(ctx context.Context, id int64) (bool, error) {
	return r.SetStatus(ctx, id, []string{models.ScheduleStatusPending}, models.ScheduleStatusProcessing, "")
}

func (r scheduleRepo) SetStatus(ctx context.Context, id int64, from []string, to, lastError string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if s.Status == f {
			s.Status = to
			s.LastError = lastError
			return true, nil
		}
	}
	return false, nil
}

func (r scheduleRepo) Reschedule(ctx context.Context, id int64, next time.Time, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.schedules[id]; s != nil && s.Status == models.ScheduleStatusProcessing {
		s.Status = models.ScheduleStatusPending
		s.ScheduledTime = next
		s.LastError = lastError
	}
	return nil
}

func (r scheduleRepo) ForceDue(ctx context.Context, id int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.schedules[id]
	switch s.Status {
	case models.ScheduleStatusPending, models.ScheduleStatusCancelled, models.ScheduleStatusFailed:
		s.Status = models.ScheduleStatusPending
		s.ScheduledTime = at
		return true, nil
	}
	return false, nil
}

func (r scheduleRepo) Toggle(ctx context.Context, id int64) (string, error) {
	return "", nil
}

func (r scheduleRepo) RefreshCompletion(ctx context.Context, id int64) error {
	return nil
}

type postRepo struct{ *store }

func (r postRepo) CreateWithClaimedAsset(ctx context.Context, post *models.Post, themeID int64) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int64, 0, len(r.assets))
	for id := range r.assets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, k int) bool { return ids[i] < ids[k] })

	for _, id := range ids {
		a := r.assets[id]
		if a.ThemeID != themeID || a.IsUsed {
			continue
		}
		a.IsUsed = true
		r.nextPost++
		cp := *post
		cp.ID = r.nextPost
		cp.MediaAssetID = a.ID
		r.posts[cp.ID] = &cp
		out := cp
		return &out, nil
	}
	return nil, repository.ErrNoUnusedMedia
}

func (r postRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r postRepo) Transition(ctx context.Context, id int64, to string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.posts[id]
	if p == nil || !models.CanTransitionPost(p.Status, to) {
		return false, nil
	}
	p.Status = to
	return true, nil
}

func (r postRepo) MarkPublished(ctx context.Context, id int64, remoteMediaID string, at time.Time) error {
	return nil
}

func (r postRepo) RecordFailure(ctx context.Context, id int64, to, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.posts[id]
	if p == nil {
		return nil
	}
	if models.CanTransitionPost(p.Status, to) {
		p.Status = to
	}
	p.ErrorMessage = message
	p.RetryCount++
	return nil
}

func (r postRepo) Requeue(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.posts[id]
	if p == nil || p.Status != models.PostStatusFailed {
		return false, nil
	}
	p.Status = models.PostStatusQueued
	return true, nil
}

func (r postRepo) ListPublishedSince(ctx context.Context, since time.Time, limit int) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Post
	for _, p := range r.posts {
		if p.Status == models.PostStatusPublished && p.PublishedAt != nil && p.PublishedAt.After(since) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r postRepo) LatestBySchedule(ctx context.Context, scheduleID int64) (*models.Post, error) {
	return nil, nil
}

func (s *store) schedule(id int64) models.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.schedules[id]
}

func (s *store) postCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts)
}

// manualClock hands every After channel to the test through waiters.
type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters chan chan time.Time
}

func newManualClock(now time.Time) *manualClock {
	return &manualClock{now: now, waiters: make(chan chan time.Time, 4)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.waiters <- ch
	return ch
}

func (c *manualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
