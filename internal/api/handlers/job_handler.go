package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/autopost/internal/queue"
	"go.uber.org/zap"
)

type JobHandler struct {
	q      queue.JobQueue
	logger *zap.Logger
}

func NewJobHandler(q queue.JobQueue, logger *zap.Logger) *JobHandler {
	return &JobHandler{q: q, logger: logger}
}

func (h *JobHandler) Status(c *fiber.Ctx) error {
	kind, id := c.Params("kind"), c.Params("id")
	if _, err := queue.TaskType(kind); err != nil {
		return h.queueError(c, "job status", kind, id, err)
	}

	status, err := h.q.Status(c.UserContext(), kind, id)
	if err != nil {
		return h.queueError(c, "job status", kind, id, err)
	}
	return c.Status(fiber.StatusOK).JSON(status)
}

func (h *JobHandler) Remove(c *fiber.Ctx) error {
	kind, id := c.Params("kind"), c.Params("id")
	if _, err := queue.TaskType(kind); err != nil {
		return h.queueError(c, "remove job", kind, id, err)
	}

	if err := h.q.Remove(c.UserContext(), kind, id); err != nil {
		return h.queueError(c, "remove job", kind, id, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *JobHandler) queueError(c *fiber.Ctx, op, kind, id string, err error) error {
	switch {
	case errors.Is(err, queue.ErrUnknownKind):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, queue.ErrJobNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Job not found",
		})
	}
	h.logger.Error(op+" failed", zap.String("kind", kind), zap.String("job_id", id), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": err.Error(),
	})
}
