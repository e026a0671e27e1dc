package job

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/repository"
	"github.com/maheshrc27/autopost/internal/service"
	"go.uber.org/zap"
)

// TokenSweepJob walks the active accounts and deactivates the ones whose
// stored credential can no longer be used.
type TokenSweepJob struct {
	sa      repository.SocialAccountRepository
	guard   service.TokenGuard
	timeout time.Duration
	logger  *zap.Logger
}

func NewTokenSweepJob(
	sa repository.SocialAccountRepository,
	guard service.TokenGuard,
	logger *zap.Logger) *TokenSweepJob {
	return &TokenSweepJob{
		sa:      sa,
		guard:   guard,
		timeout: 5 * time.Minute,
		logger:  logger,
	}
}

// Run is the cron entry point.
func (c *TokenSweepJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	c.Sweep(ctx)
}

// Sweep returns the number of accounts deactivated.
func (c *TokenSweepJob) Sweep(ctx context.Context) int {
	accounts, err := c.sa.ListActive(ctx)
	if err != nil {
		c.logger.Error("failed to list active accounts", zap.Error(err))
		return 0
	}

	var wg sync.WaitGroup
	var deactivated atomic.Int64

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

dispatch:
	for _, acc := range accounts {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case semaphore <- struct{}{}:
		}
		wg.Add(1)

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			_, err := c.guard.Resolve(ctx, acc)
			if err == nil {
				return
			}
			if service.KindOf(err) == service.KindInvalidCredential {
				deactivated.Add(1)
				return
			}
			c.logger.Warn("token check failed", zap.Int64("account_id", acc.ID), zap.Error(err))
		}(acc)
	}
	wg.Wait()

	n := int(deactivated.Load())
	if err := ctx.Err(); err != nil {
		c.logger.Warn("token sweep interrupted", zap.Int("accounts", len(accounts)), zap.Int("deactivated", n), zap.Error(err))
		return n
	}
	c.logger.Info("token sweep finished", zap.Int("accounts", len(accounts)), zap.Int("deactivated", n))
	return n
}
