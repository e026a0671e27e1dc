package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/repository"
	"github.com/maheshrc27/autopost/internal/service"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Worker executes publish and insights jobs.
type Worker struct {
	pr  repository.PostRepository
	sr  repository.ScheduleRepository
	ma  repository.MediaAssetRepository
	sa  repository.SocialAccountRepository
	ir  repository.InsightRepository
	tg  service.TokenGuard
	src service.SourceStore
	mp  service.MediaPipeline
	pub service.Publisher
	ig  service.InstagramService

	limiter *rate.Limiter
	now     func() time.Time
	logger  *zap.Logger
}

type WorkerDeps struct {
	Posts     repository.PostRepository
	Schedules repository.ScheduleRepository
	Assets    repository.MediaAssetRepository
	Accounts  repository.SocialAccountRepository
	Insights  repository.InsightRepository
	Guard     service.TokenGuard
	Sources   service.SourceStore
	Media     service.MediaPipeline
	Publisher service.Publisher
	Instagram service.InstagramService
	// Limiter paces metric fetches across all insights workers.
	Limiter *rate.Limiter
	Now     func() time.Time
}

func NewWorker(deps WorkerDeps, logger *zap.Logger) *Worker {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Limiter == nil {
		deps.Limiter = rate.NewLimiter(rate.Every(time.Second), 1)
	}
	return &Worker{
		pr:      deps.Posts,
		sr:      deps.Schedules,
		ma:      deps.Assets,
		sa:      deps.Accounts,
		ir:      deps.Insights,
		tg:      deps.Guard,
		src:     deps.Sources,
		mp:      deps.Media,
		pub:     deps.Publisher,
		ig:      deps.Instagram,
		limiter: deps.Limiter,
		now:     deps.Now,
		logger:  logger,
	}
}

func (w *Worker) HandlePublishTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode publish payload: %v: %w", err, asynq.SkipRetry)
	}
	return w.PublishPost(ctx, payload.PostID)
}

func (w *Worker) HandleInsightsTask(ctx context.Context, task *asynq.Task) error {
	var payload InsightsPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode insights payload: %v: %w", err, asynq.SkipRetry)
	}
	return w.CollectInsights(ctx, payload)
}

// PublishPost drives one post from QUEUED to PUBLISHED. Failures are
// recorded on the post; permanent ones stop further delivery attempts.
func (w *Worker) PublishPost(ctx context.Context, postID int64) error {
	attempt, maxAttempts := AttemptFrom(ctx)
	log := w.logger.With(zap.Int64("post_id", postID), zap.Int("attempt", attempt))

	post, err := w.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		log.Warn("post not found, dropping job")
		return fmt.Errorf("post %d not found: %w", postID, asynq.SkipRetry)
	}

	ok, err := w.pr.Transition(ctx, postID, models.PostStatusProcessing)
	if err != nil {
		return err
	}
	if !ok {
		// Already published, failed or removed by an operator.
		log.Info("post is not publishable, skipping", zap.String("status", post.Status))
		return nil
	}

	remoteID, err := w.publish(ctx, log, post)
	if err != nil {
		return w.fail(ctx, log, post, err, attempt, maxAttempts)
	}

	now := w.now()
	if err := w.pr.MarkPublished(ctx, postID, remoteID, now); err != nil {
		return err
	}
	if err := w.ma.MarkUsed(ctx, post.MediaAssetID, now); err != nil {
		log.Warn("failed to stamp media asset", zap.Error(err))
	}
	w.refreshSchedule(ctx, log, post.ScheduleID)

	log.Info("post published", zap.String("remote_media_id", remoteID))
	return nil
}

func (w *Worker) publish(ctx context.Context, log *zap.Logger, post *models.Post) (string, error) {
	acc, err := w.sa.GetByID(ctx, post.AccountID)
	if err != nil {
		return "", service.Transient("load account", err)
	}
	if acc == nil {
		return "", service.InvalidCredential("load account", fmt.Errorf("account %d not found", post.AccountID))
	}

	token, err := w.tg.Resolve(ctx, acc)
	if err != nil {
		return "", err
	}

	asset, err := w.ma.GetByID(ctx, post.MediaAssetID)
	if err != nil {
		return "", service.Transient("load media asset", err)
	}
	if asset == nil {
		return "", service.MediaRejected("load media asset", fmt.Errorf("media asset %d not found", post.MediaAssetID))
	}

	src, err := w.src.Fetch(ctx, asset)
	if err != nil {
		return "", err
	}

	prepared, err := w.mp.Prepare(ctx, src, asset.MimeType)
	if err != nil {
		return "", err
	}
	log.Debug("media prepared", zap.String("url", prepared.URL), zap.Bool("reused", prepared.Reused))

	postType := post.PostType
	if postType == "" {
		postType = models.DetectPostType(prepared.MimeType)
	}

	res, err := w.pub.Publish(ctx, service.PublishRequest{
		IGUserID:    acc.RemoteUserID,
		AccessToken: token,
		MediaURL:    prepared.URL,
		PostType:    postType,
		Caption:     models.BuildCaption(post.Caption, post.Hashtags),
	})
	if err != nil {
		if service.KindOf(err) == service.KindInvalidCredential {
			// The platform refused a token that passed local checks.
			return "", w.tg.Revoke(ctx, acc, err)
		}
		return "", err
	}
	return res.RemoteMediaID, nil
}

func (w *Worker) fail(ctx context.Context, log *zap.Logger, post *models.Post, cause error, attempt, maxAttempts int) error {
	permanent := service.IsPermanent(cause)
	to := models.PostStatusQueued
	if permanent || attempt >= maxAttempts {
		to = models.PostStatusFailed
	}

	log.Warn("publish attempt failed",
		zap.String("kind", string(service.KindOf(cause))),
		zap.Bool("permanent", permanent),
		zap.String("next_status", to),
		zap.Error(cause),
	)

	if err := w.pr.RecordFailure(ctx, post.ID, to, cause.Error()); err != nil {
		return errors.Join(cause, fmt.Errorf("record failure: %w", err))
	}
	if to == models.PostStatusFailed {
		w.refreshSchedule(ctx, log, post.ScheduleID)
	}

	if permanent {
		return fmt.Errorf("%w: %w", cause, asynq.SkipRetry)
	}
	return cause
}

func (w *Worker) refreshSchedule(ctx context.Context, log *zap.Logger, scheduleID int64) {
	if err := w.sr.RefreshCompletion(ctx, scheduleID); err != nil {
		log.Warn("failed to refresh schedule status", zap.Int64("schedule_id", scheduleID), zap.Error(err))
	}
}

// CollectInsights fetches and stores metrics for every target. A failing
// target is logged and skipped; the job is only retried when every target
// failed for a retryable reason.
func (w *Worker) CollectInsights(ctx context.Context, payload InsightsPayload) error {
	log := w.logger.With(zap.Int64("account_id", payload.AccountID))

	acc, err := w.sa.GetByID(ctx, payload.AccountID)
	if err != nil {
		return err
	}
	if acc == nil {
		log.Warn("account not found, dropping insights job")
		return fmt.Errorf("account %d not found: %w", payload.AccountID, asynq.SkipRetry)
	}

	token, err := w.tg.Resolve(ctx, acc)
	if err != nil {
		log.Warn("cannot collect insights", zap.Error(err))
		if service.IsPermanent(err) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	collectedAt := w.now().UTC().Truncate(time.Second)
	var stored int
	var retryable []error
	for _, target := range payload.Targets {
		if err := w.limiter.Wait(ctx); err != nil {
			retryable = append(retryable, err)
			break
		}

		err := w.collectOne(ctx, acc, token, target, collectedAt)
		if service.KindOf(err) == service.KindInvalidCredential {
			// Every remaining target would be refused with the same token.
			err = w.tg.Revoke(ctx, acc, err)
			log.Warn("access token refused, stopping insights collection", zap.Error(err))
			if service.IsPermanent(err) {
				return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
			}
			return err
		}
		if err != nil {
			log.Warn("insight fetch failed",
				zap.Int64("post_id", target.PostID),
				zap.String("remote_media_id", target.RemoteMediaID),
				zap.Error(err),
			)
			if !service.IsPermanent(err) {
				retryable = append(retryable, err)
			}
			continue
		}
		stored++
	}

	if err := w.sa.TouchLastSync(ctx, acc.ID, w.now()); err != nil {
		log.Warn("failed to update last sync", zap.Error(err))
	}

	log.Info("insights collected", zap.Int("stored", stored), zap.Int("targets", len(payload.Targets)))
	if stored == 0 && len(retryable) > 0 {
		return errors.Join(retryable...)
	}
	return nil
}

func (w *Worker) collectOne(ctx context.Context, acc *models.SocialAccount, token string, target InsightTarget, at time.Time) error {
	m, err := w.ig.MediaInsights(ctx, target.RemoteMediaID, token)
	if err != nil {
		return err
	}
	return w.ir.Upsert(ctx, &models.Insight{
		AccountID:     acc.ID,
		RemoteMediaID: target.RemoteMediaID,
		Impressions:   m.Impressions,
		Reach:         m.Reach,
		Engagement:    m.Engagement,
		Likes:         m.Likes,
		Comments:      m.Comments,
		Saves:         m.Saved,
		Shares:        m.Shares,
		VideoViews:    m.VideoViews,
		RawData:       m.Raw,
		CollectedAt:   at,
	})
}
