package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	job "github.com/maheshrc27/autopost/internal/jobs"
	"github.com/maheshrc27/autopost/internal/queue"
	"go.uber.org/zap"
)

type PostRetrier interface {
	RetryPost(ctx context.Context, postID int64) error
}

type PostHandler struct {
	d      PostRetrier
	logger *zap.Logger
}

func NewPostHandler(d PostRetrier, logger *zap.Logger) *PostHandler {
	return &PostHandler{d: d, logger: logger}
}

func (h *PostHandler) RetryPost(c *fiber.Ctx) error {
	postID, ok := GetID(c)
	if !ok {
		return badID(c)
	}

	err := h.d.RetryPost(c.UserContext(), postID)
	switch {
	case errors.Is(err, job.ErrPostNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Post not found",
		})
	case errors.Is(err, job.ErrPostNotRetryable):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	case err != nil:
		h.logger.Error("manual retry failed", zap.Int64("post_id", postID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to retry post",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Post queued for publishing",
		"job_id":  queue.PublishJobID(postID),
	})
}
