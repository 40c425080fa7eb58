package handlers

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/bchapman/wednesday/internal/models"
	"github.com/bchapman/wednesday/internal/pulllist"
	"github.com/bchapman/wednesday/internal/repository"
)

type RunsAPIHandler struct {
	runs      *repository.RunRepository
	generator pullListRunner
	logger    *slog.Logger
}

func NewRunsAPIHandler(runs *repository.RunRepository, generator pullListRunner, logger *slog.Logger) *RunsAPIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunsAPIHandler{runs: runs, generator: generator, logger: logger}
}

// Trigger starts a manual run and blocks until it finishes. A concurrent
// run yields 409 rather than queueing a second one.
func (h *RunsAPIHandler) Trigger(c *fiber.Ctx) error {
	result, err := h.generator.Run(c.Context(), models.TriggerManual)
	if err != nil {
		if errors.Is(err, pulllist.ErrRunInProgress) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": "a run is already in progress"})
		}
		h.logger.Error("manual run failed to start", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "failed to start the run"})
	}
	return c.Status(fiber.StatusAccepted).JSON(result)
}

func (h *RunsAPIHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 10)

	runs, err := h.runs.ListRecent(limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "failed to list runs"})
	}
	return c.JSON(fiber.Map{"items": runs})
}

func (h *RunsAPIHandler) GetByID(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid run id"})
	}

	run, err := h.runs.GetByID(id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "failed to get run"})
	}
	if run == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "run not found"})
	}
	return c.JSON(run)
}

func (h *RunsAPIHandler) ListWeeks(c *fiber.Ctx) error {
	weeks, err := h.runs.ListAvailableWeeks()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "failed to list weeks"})
	}
	return c.JSON(fiber.Map{"items": weeks})
}

func (h *RunsAPIHandler) WeekBooks(c *fiber.Ctx) error {
	weekID := c.Params("weekId")
	if weekID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid week id"})
	}

	books, err := h.runs.ListWeekBooks(weekID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "failed to list week books"})
	}
	return c.JSON(fiber.Map{"week": weekID, "items": books})
}
