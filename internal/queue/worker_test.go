package queue

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	config "github.com/maheshrc27/autopost/configs"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/service"
	"github.com/maheshrc27/autopost/internal/transfer"
	"github.com/maheshrc27/autopost/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"
)

var validToken = strings.Repeat("t", 64)

type workerFixture struct {
	worker    *Worker
	posts     *fakePostRepo
	schedules *fakeScheduleRepo
	assets    *fakeAssetRepo
	accounts  *fakeAccountRepo
	insights  *fakeInsightRepo
	media     *fakeMedia
	ig        *fakeInstagram
}

func newWorkerFixture(t *testing.T, token string, mimeType string) *workerFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	f := &workerFixture{
		posts: newFakePostRepo(&models.Post{
			ID: 1, ScheduleID: 10, AccountID: 100, MediaAssetID: 1000,
			Caption: "launch day", Hashtags: []string{"go"}, Status: models.PostStatusQueued,
		}),
		schedules: &fakeScheduleRepo{},
		assets: &fakeAssetRepo{assets: map[int64]*models.MediaAsset{
			1000: {ID: 1000, SourceKind: models.SourceKindLocal, SourceRef: "a", MimeType: mimeType, IsUsed: true},
		}},
		accounts: &fakeAccountRepo{accounts: map[int64]*models.SocialAccount{
			100: {ID: 100, RemoteUserID: "17841", Username: "brand", AccessToken: token, IsActive: true},
		}},
		insights: &fakeInsightRepo{},
		media:    &fakeMedia{},
		ig:       &fakeInstagram{},
	}

	box, err := utils.NewSecretBox("test-secret")
	require.NoError(t, err)
	guard := service.NewTokenGuard(box, service.ShapeValidator{MinLength: 50, MockPrefix: "refreshed_"}, f.accounts, logger)
	publisher := service.NewPublisher(f.ig, service.DefaultPublisherConfig(), noSleep, logger)

	f.worker = NewWorker(WorkerDeps{
		Posts:     f.posts,
		Schedules: f.schedules,
		Assets:    f.assets,
		Accounts:  f.accounts,
		Insights:  f.insights,
		Guard:     guard,
		Sources:   fakeSources{data: []byte("bytes")},
		Media:     f.media,
		Publisher: publisher,
		Instagram: f.ig,
		Limiter:   rate.NewLimiter(rate.Inf, 1),
	}, logger)
	return f
}

func TestWorker_PublishesReelAfterEncoding(t *testing.T) {
	f := newWorkerFixture(t, validToken, "video/mp4")
	f.ig.statuses = []string{
		service.ContainerInProgress, service.ContainerInProgress, service.ContainerInProgress,
		service.ContainerInProgress, service.ContainerFinished,
	}

	err := f.worker.PublishPost(WithAttempt(context.Background(), 1, 3), 1)
	require.NoError(t, err)

	post := f.posts.get(1)
	assert.Equal(t, models.PostStatusPublished, post.Status)
	assert.Equal(t, "remote-container-1", post.RemoteMediaID)
	assert.NotNil(t, post.PublishedAt)
	assert.Equal(t, 5, f.ig.statusCalls)
	assert.Equal(t, []int64{1000}, f.assets.used)
	assert.Equal(t, []int64{10}, f.schedules.refreshed)
}

func TestWorker_RejectsMockToken(t *testing.T) {
	f := newWorkerFixture(t, "refreshed_abc", "image/jpeg")

	err := f.worker.PublishPost(WithAttempt(context.Background(), 1, 3), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	post := f.posts.get(1)
	assert.Equal(t, models.PostStatusFailed, post.Status)
	assert.Contains(t, post.ErrorMessage, "mock prefix")
	assert.False(t, f.accounts.accounts[100].IsActive)
	assert.Equal(t, 0, f.media.calls)
}

func TestWorker_RevokesTokenRefusedByPlatform(t *testing.T) {
	f := newWorkerFixture(t, validToken, "image/jpeg")
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Error validating access token: Session has expired","type":"OAuthException","code":190}}`))
	}))
	t.Cleanup(graph.Close)

	ig := service.NewInstagramService(config.Instagram{APIBase: graph.URL, APIVersion: "v18.0"}, graph.Client())
	f.worker.pub = service.NewPublisher(ig, service.DefaultPublisherConfig(), noSleep, zaptest.NewLogger(t))

	err := f.worker.PublishPost(WithAttempt(context.Background(), 1, 3), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, service.KindInvalidCredential, service.KindOf(err))

	post := f.posts.get(1)
	assert.Equal(t, models.PostStatusFailed, post.Status)
	assert.Contains(t, post.ErrorMessage, "Session has expired")
	assert.False(t, f.accounts.accounts[100].IsActive)
	assert.Equal(t, []int64{10}, f.schedules.refreshed)
}

func TestWorker_RejectedTokenIsNotRetriedByQueue(t *testing.T) {
	f := newWorkerFixture(t, "refreshed_abc", "image/jpeg")
	q := NewMemoryQueue(nil)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, KindPublish, PublishPayload{PostID: 1}, Options{ID: PublishJobID(1)})
	require.NoError(t, err)
	q.RunDue(ctx, KindPublish, func(ctx context.Context, job *Job) error {
		return f.worker.HandlePublishTask(ctx, asynq.NewTask(TaskTypePublishPost, job.Payload))
	})

	status, err := q.Status(ctx, KindPublish, id)
	require.NoError(t, err)
	assert.Equal(t, JobDead, status.State)
	assert.Equal(t, 1, status.Attempt)
}

func TestWorker_TransientFailureRequeuesUntilLastAttempt(t *testing.T) {
	f := newWorkerFixture(t, validToken, "image/jpeg")
	f.media.err = service.Transient("upload media", errors.New("connection reset"))

	err := f.worker.PublishPost(WithAttempt(context.Background(), 1, 3), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
	post := f.posts.get(1)
	assert.Equal(t, models.PostStatusQueued, post.Status)
	assert.Equal(t, 1, post.RetryCount)
	assert.Contains(t, post.ErrorMessage, "connection reset")
	assert.Empty(t, f.schedules.refreshed)

	err = f.worker.PublishPost(WithAttempt(context.Background(), 3, 3), 1)
	require.Error(t, err)
	post = f.posts.get(1)
	assert.Equal(t, models.PostStatusFailed, post.Status)
	assert.Equal(t, 2, post.RetryCount)
	assert.Contains(t, post.ErrorMessage, "connection reset")
	assert.Equal(t, []int64{10}, f.schedules.refreshed)
}

func TestWorker_EncodingFailureIsPermanent(t *testing.T) {
	f := newWorkerFixture(t, validToken, "video/mp4")
	f.ig.statuses = []string{service.ContainerError}

	err := f.worker.PublishPost(WithAttempt(context.Background(), 1, 3), 1)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, models.PostStatusFailed, f.posts.get(1).Status)
}

func TestWorker_RedeliveryOfPublishedPostIsNoop(t *testing.T) {
	f := newWorkerFixture(t, validToken, "image/jpeg")
	f.posts.posts[1].Status = models.PostStatusPublished

	require.NoError(t, f.worker.PublishPost(context.Background(), 1))
	assert.Equal(t, 0, f.media.calls)
}

func TestWorker_MissingPostIsDropped(t *testing.T) {
	f := newWorkerFixture(t, validToken, "image/jpeg")

	err := f.worker.PublishPost(context.Background(), 999)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestWorker_CollectInsightsContinuesPastFailures(t *testing.T) {
	f := newWorkerFixture(t, validToken, "image/jpeg")
	views := int64(40)
	f.ig.insights = map[string]*transfer.MediaInsights{
		"m-1": {Impressions: 10, Reach: 8, Likes: 3, Saved: 1, VideoViews: &views},
	}
	f.ig.insightErr = map[string]error{
		"m-2": service.Transient("media insights", errors.New("timeout")),
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)
	f.worker.now = func() time.Time { return now }

	err := f.worker.CollectInsights(context.Background(), InsightsPayload{
		AccountID: 100,
		Targets:   []InsightTarget{{PostID: 2, RemoteMediaID: "m-2"}, {PostID: 1, RemoteMediaID: "m-1"}},
	})
	require.NoError(t, err)

	require.Len(t, f.insights.insights, 1)
	got := f.insights.insights[0]
	assert.Equal(t, "m-1", got.RemoteMediaID)
	assert.Equal(t, int64(10), got.Impressions)
	assert.Equal(t, int64(1), got.Saves)
	assert.Equal(t, &views, got.VideoViews)
	assert.Equal(t, now.Truncate(time.Second), got.CollectedAt)
	assert.Equal(t, []int64{100}, f.accounts.synced)
}

func TestWorker_CollectInsightsRetriesWhenAllFail(t *testing.T) {
	f := newWorkerFixture(t, validToken, "image/jpeg")
	f.ig.insightErr = map[string]error{
		"m-1": service.RateLimited("media insights", errors.New("limit reached")),
	}

	err := f.worker.CollectInsights(context.Background(), InsightsPayload{
		AccountID: 100,
		Targets:   []InsightTarget{{PostID: 1, RemoteMediaID: "m-1"}},
	})
	require.Error(t, err)
	assert.Empty(t, f.insights.insights)
	assert.Equal(t, []int64{100}, f.accounts.synced)
}

func TestWorker_CollectInsightsRevokesRefusedToken(t *testing.T) {
	f := newWorkerFixture(t, validToken, "image/jpeg")
	f.ig.insightErr = map[string]error{
		"m-1": service.InvalidCredential("media insights", errors.New("code 190: token expired")),
	}

	err := f.worker.CollectInsights(context.Background(), InsightsPayload{
		AccountID: 100,
		Targets:   []InsightTarget{{PostID: 1, RemoteMediaID: "m-1"}, {PostID: 2, RemoteMediaID: "m-2"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.False(t, f.accounts.accounts[100].IsActive)
	assert.Empty(t, f.insights.insights)
}
