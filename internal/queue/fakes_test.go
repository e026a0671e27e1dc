package queue

import (
	"context"
	"sync"
	"time"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/repository"
	"github.com/maheshrc27/autopost/internal/service"
	"github.com/maheshrc27/autopost/internal/transfer"
)

type fakePostRepo struct {
	mu    sync.Mutex
	posts map[int64]*models.Post
}

func newFakePostRepo(posts ...*models.Post) *fakePostRepo {
	r := &fakePostRepo{posts: map[int64]*models.Post{}}
	for _, p := range posts {
		r.posts[p.ID] = p
	}
	return r
}

func (r *fakePostRepo) CreateWithClaimedAsset(ctx context.Context, post *models.Post, themeID int64) (*models.Post, error) {
	return nil, repository.ErrNoUnusedMedia
}

func (r *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakePostRepo) Transition(ctx context.Context, id int64, to string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok || !models.CanTransitionPost(p.Status, to) {
		return false, nil
	}
	p.Status = to
	return true, nil
}

func (r *fakePostRepo) MarkPublished(ctx context.Context, id int64, remoteMediaID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.posts[id]
	if models.CanTransitionPost(p.Status, models.PostStatusPublished) {
		p.Status = models.PostStatusPublished
		p.RemoteMediaID = remoteMediaID
		p.PublishedAt = &at
	}
	return nil
}

func (r *fakePostRepo) RecordFailure(ctx context.Context, id int64, to, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.posts[id]
	if models.CanTransitionPost(p.Status, to) {
		p.Status = to
	}
	p.ErrorMessage = message
	p.RetryCount++
	return nil
}

func (r *fakePostRepo) Requeue(ctx context.Context, id int64) (bool, error) {
	return r.Transition(ctx, id, models.PostStatusQueued)
}

func (r *fakePostRepo) ListPublishedSince(ctx context.Context, since time.Time, limit int) ([]*models.Post, error) {
	return nil, nil
}

func (r *fakePostRepo) LatestBySchedule(ctx context.Context, scheduleID int64) (*models.Post, error) {
	return nil, nil
}

func (r *fakePostRepo) get(id int64) models.Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.posts[id]
}

type fakeScheduleRepo struct {
	repository.ScheduleRepository
	mu        sync.Mutex
	refreshed []int64
}

func (r *fakeScheduleRepo) RefreshCompletion(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshed = append(r.refreshed, id)
	return nil
}

type fakeAssetRepo struct {
	mu     sync.Mutex
	assets map[int64]*models.MediaAsset
	used   []int64
}

func (r *fakeAssetRepo) GetByID(ctx context.Context, id int64) (*models.MediaAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assets[id], nil
}

func (r *fakeAssetRepo) MarkUsed(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.used = append(r.used, id)
	return nil
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[int64]*models.SocialAccount
	synced   []int64
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAccountRepo) ListActive(ctx context.Context) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (r *fakeAccountRepo) Deactivate(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.accounts[id]
	if !a.IsActive {
		return false, nil
	}
	a.IsActive = false
	return true, nil
}

func (r *fakeAccountRepo) TouchLastSync(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synced = append(r.synced, id)
	return nil
}

type fakeInsightRepo struct {
	mu       sync.Mutex
	insights []*models.Insight
}

func (r *fakeInsightRepo) Upsert(ctx context.Context, insight *models.Insight) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insights = append(r.insights, insight)
	return nil
}

type fakeSources struct{ data []byte }

func (s fakeSources) Fetch(ctx context.Context, asset *models.MediaAsset) ([]byte, error) {
	return s.data, nil
}

type fakeMedia struct {
	calls int
	err   error
}

func (m *fakeMedia) Prepare(ctx context.Context, src []byte, mimeType string) (*service.PreparedMedia, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &service.PreparedMedia{URL: "https://cdn.example.com/media/h.mp4", MimeType: mimeType, Hash: "h"}, nil
}

type fakeInstagram struct {
	mu          sync.Mutex
	statuses    []string
	statusCalls int
	insights    map[string]*transfer.MediaInsights
	insightErr  map[string]error
}

func (f *fakeInstagram) CreateContainer(ctx context.Context, req service.ContainerRequest) (string, error) {
	return "container-1", nil
}

func (f *fakeInstagram) ContainerStatus(ctx context.Context, containerID, accessToken string) (*transfer.ContainerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code := service.ContainerFinished
	if len(f.statuses) > 0 {
		code = f.statuses[min(f.statusCalls, len(f.statuses)-1)]
	}
	f.statusCalls++
	return &transfer.ContainerStatus{ID: containerID, StatusCode: code}, nil
}

func (f *fakeInstagram) PublishContainer(ctx context.Context, igUserID, containerID, accessToken string) (string, error) {
	return "remote-" + containerID, nil
}

func (f *fakeInstagram) MediaInsights(ctx context.Context, mediaID, accessToken string) (*transfer.MediaInsights, error) {
	if err := f.insightErr[mediaID]; err != nil {
		return nil, err
	}
	if m, ok := f.insights[mediaID]; ok {
		return m, nil
	}
	return &transfer.MediaInsights{}, nil
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }
