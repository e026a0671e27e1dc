package queue

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// NewServer builds an asynq server that consumes only the queue of kind and
// retries with the kind's backoff.
func NewServer(redisOpt asynq.RedisConnOpt, kind string, concurrency int, logger *zap.Logger) *asynq.Server {
	policy := PolicyFor(kind)
	log := logger.With(zap.String("queue", kind))

	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{kind: 1},
		RetryDelayFunc: func(retried int, err error, task *asynq.Task) time.Duration {
			return policy.Backoff.Delay(retried + 1)
		},
		IsFailure: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.Warn("task failed",
				zap.String("type", task.Type()),
				zap.Int("attempt", retried+1),
				zap.Int("max_attempts", maxRetry+1),
				zap.Bool("skip_retry", errors.Is(err, asynq.SkipRetry)),
				zap.Error(err),
			)
		}),
		Logger:          log.Sugar(),
		ShutdownTimeout: 30 * time.Second,
	})
}

// NewServeMux routes both task types to w.
func NewServeMux(w *Worker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypePublishPost, w.HandlePublishTask)
	mux.HandleFunc(TaskTypeCollectInsights, w.HandleInsightsTask)
	return mux
}
