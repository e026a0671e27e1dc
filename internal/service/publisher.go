package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/autopost/internal/models"
	"go.uber.org/zap"
)

// PublishState is a step of the remote two-phase publish.
type PublishState string

const (
	StateCreated   PublishState = "CREATED"
	StateEncoding  PublishState = "ENCODING"
	StateReady     PublishState = "READY"
	StatePublished PublishState = "PUBLISHED"
	StateFailed    PublishState = "FAILED"
)

var (
	ErrEncodingTimeout = errors.New("container did not finish encoding")
	ErrEncodingError   = errors.New("container encoding failed")
)

type PublisherConfig struct {
	PollInterval time.Duration
	MaxPolls     int
	ImageSettle  time.Duration
}

func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		PollInterval: 10 * time.Second,
		MaxPolls:     30,
		ImageSettle:  5 * time.Second,
	}
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type PublishRequest struct {
	IGUserID    string
	AccessToken string
	MediaURL    string
	PostType    string
	Caption     string
}

type PublishResult struct {
	ContainerID   string
	RemoteMediaID string
	Polls         int
	State         PublishState
}

type Publisher interface {
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
}

type publisher struct {
	ig     InstagramService
	cfg    PublisherConfig
	sleep  Sleeper
	logger *zap.Logger
}

func NewPublisher(ig InstagramService, cfg PublisherConfig, sleep Sleeper, logger *zap.Logger) Publisher {
	if sleep == nil {
		sleep = ContextSleep
	}
	return &publisher{ig: ig, cfg: cfg, sleep: sleep, logger: logger}
}

func (p *publisher) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	result := &PublishResult{State: StateCreated}
	log := p.logger.With(zap.String("ig_user_id", req.IGUserID), zap.String("post_type", req.PostType))

	containerID, err := p.ig.CreateContainer(ctx, ContainerRequest{
		IGUserID:    req.IGUserID,
		AccessToken: req.AccessToken,
		MediaURL:    req.MediaURL,
		PostType:    req.PostType,
		Caption:     req.Caption,
	})
	if err != nil {
		result.State = StateFailed
		return result, err
	}
	result.ContainerID = containerID
	log = log.With(zap.String("container_id", containerID))

	for {
		switch result.State {
		case StateCreated:
			if models.IsVideoPostType(req.PostType) {
				p.advance(log, result, StateEncoding)
				continue
			}
			// Image containers are processed synchronously but are not
			// immediately publishable.
			if err := p.sleep(ctx, p.cfg.ImageSettle); err != nil {
				result.State = StateFailed
				return result, Transient("image settle", err)
			}
			p.advance(log, result, StateReady)

		case StateEncoding:
			if err := p.awaitEncoding(ctx, req.AccessToken, result); err != nil {
				result.State = StateFailed
				return result, err
			}
			p.advance(log, result, StateReady)

		case StateReady:
			mediaID, err := p.ig.PublishContainer(ctx, req.IGUserID, containerID, req.AccessToken)
			if err != nil {
				result.State = StateFailed
				return result, err
			}
			result.RemoteMediaID = mediaID
			p.advance(log, result, StatePublished)

		case StatePublished:
			return result, nil

		default:
			return result, fmt.Errorf("publish: unexpected state %s", result.State)
		}
	}
}

func (p *publisher) awaitEncoding(ctx context.Context, accessToken string, result *PublishResult) error {
	for attempt := 1; attempt <= p.cfg.MaxPolls; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, p.cfg.PollInterval); err != nil {
				return Transient("await encoding", err)
			}
		}

		status, err := p.ig.ContainerStatus(ctx, result.ContainerID, accessToken)
		result.Polls = attempt
		if err != nil {
			return err
		}

		switch status.StatusCode {
		case ContainerFinished, ContainerPublished:
			return nil
		case ContainerError, ContainerExpired:
			return EncodingFailed("await encoding",
				fmt.Errorf("%w: %s %s", ErrEncodingError, status.StatusCode, status.Status))
		}
	}

	return EncodingFailed("await encoding",
		fmt.Errorf("%w after %d polls", ErrEncodingTimeout, p.cfg.MaxPolls))
}

func (p *publisher) advance(log *zap.Logger, result *PublishResult, to PublishState) {
	log.Debug("publish state transition",
		zap.String("from", string(result.State)),
		zap.String("to", string(to)),
	)
	result.State = to
}
