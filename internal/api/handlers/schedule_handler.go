package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	job "github.com/maheshrc27/autopost/internal/jobs"
	"github.com/maheshrc27/autopost/internal/repository"
	"go.uber.org/zap"
)

type ScheduleExecutor interface {
	ExecuteNow(ctx context.Context, scheduleID int64) (int, error)
}

type ScheduleHandler struct {
	d      ScheduleExecutor
	sr     repository.ScheduleRepository
	pr     repository.PostRepository
	logger *zap.Logger
}

func NewScheduleHandler(
	d ScheduleExecutor,
	sr repository.ScheduleRepository,
	pr repository.PostRepository,
	logger *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{d: d, sr: sr, pr: pr, logger: logger}
}

func (h *ScheduleHandler) ExecuteNow(c *fiber.Ctx) error {
	scheduleID, ok := GetID(c)
	if !ok {
		return badID(c)
	}

	posts, err := h.d.ExecuteNow(c.UserContext(), scheduleID)
	switch {
	case errors.Is(err, job.ErrScheduleNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Schedule not found",
		})
	case errors.Is(err, job.ErrScheduleNotExecutable):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	case err != nil:
		h.logger.Error("execute now failed", zap.Int64("schedule_id", scheduleID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to execute schedule",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Schedule dispatched",
		"posts":   posts,
	})
}

// Toggle pauses a pending schedule or resumes a cancelled one.
func (h *ScheduleHandler) Toggle(c *fiber.Ctx) error {
	scheduleID, ok := GetID(c)
	if !ok {
		return badID(c)
	}

	status, err := h.sr.Toggle(c.UserContext(), scheduleID)
	if err != nil {
		h.logger.Error("toggle schedule failed", zap.Int64("schedule_id", scheduleID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to toggle schedule",
		})
	}
	if status == "" {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Only pending or cancelled schedules can be toggled",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": status,
	})
}

// ExecutionStatus reports the schedule together with its most recent post.
func (h *ScheduleHandler) ExecutionStatus(c *fiber.Ctx) error {
	scheduleID, ok := GetID(c)
	if !ok {
		return badID(c)
	}

	ctx := c.UserContext()
	schedule, err := h.sr.GetByID(ctx, scheduleID)
	if err != nil {
		h.logger.Error("load schedule failed", zap.Int64("schedule_id", scheduleID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to load schedule",
		})
	}
	if schedule == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Schedule not found",
		})
	}

	latest, err := h.pr.LatestBySchedule(ctx, scheduleID)
	if err != nil {
		h.logger.Error("load latest post failed", zap.Int64("schedule_id", scheduleID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to load schedule status",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"schedule_id": schedule.ID,
		"status":      schedule.Status,
		"last_error":  schedule.LastError,
		"next_run":    schedule.ScheduledTime,
		"latest_post": latest,
	})
}
