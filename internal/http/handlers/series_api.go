package handlers

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/bchapman/wednesday/internal/models"
	"github.com/bchapman/wednesday/internal/repository"
)

type createSeriesRequest struct {
	Name          string  `json:"name"`
	KomgaSeriesID string  `json:"komgaSeriesId"`
	Publisher     *string `json:"publisher"`
	MylarComicID  *string `json:"mylarComicId"`
}

type linkMylarRequest struct {
	MylarComicID *string `json:"mylarComicId"`
}

type SeriesAPIHandler struct {
	series  *repository.SeriesRepository
	library librarySeries
	logger  *slog.Logger
}

func NewSeriesAPIHandler(series *repository.SeriesRepository, library librarySeries, logger *slog.Logger) *SeriesAPIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SeriesAPIHandler{series: series, library: library, logger: logger}
}

func (h *SeriesAPIHandler) List(c *fiber.Ctx) error {
	activeOnly := c.QueryBool("active", false)

	items, err := h.series.List(activeOnly)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "failed to list series"})
	}
	return c.JSON(fiber.Map{"items": items})
}

func (h *SeriesAPIHandler) GetByID(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid series id"})
	}

	series, err := h.series.GetByID(id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "failed to get series"})
	}
	if series == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "series not found"})
	}
	return c.JSON(series)
}

// Create tracks a series. When the name is omitted it is looked up in the
// library so the API matches what the settings form does.
func (h *SeriesAPIHandler) Create(c *fiber.Ctx) error {
	var req createSeriesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid json body"})
	}

	komgaSeriesID := strings.TrimSpace(req.KomgaSeriesID)
	if komgaSeriesID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "komgaSeriesId is required"})
	}

	existing, err := h.series.GetByKomgaSeriesID(komgaSeriesID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "failed to check series"})
	}
	if existing != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": "series is already tracked"})
	}

	record := &models.TrackedSeries{
		Name:          strings.TrimSpace(req.Name),
		KomgaSeriesID: komgaSeriesID,
		Publisher:     req.Publisher,
		MylarComicID:  req.MylarComicID,
	}
	if record.Name == "" {
		series, err := h.library.GetSeries(c.Context(), komgaSeriesID)
		if err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"message": "library lookup failed"})
		}
		if series == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "no such series in the library"})
		}
		record.Name = series.Name
		if record.Publisher == nil && series.Publisher != "" {
			publisher := series.Publisher
			record.Publisher = &publisher
		}
	}

	created, err := h.series.Create(record)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "failed to create series"})
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *SeriesAPIHandler) Toggle(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid series id"})
	}

	updated, err := h.series.ToggleActive(id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "failed to update series"})
	}
	if updated == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "series not found"})
	}
	return c.JSON(updated)
}

func (h *SeriesAPIHandler) LinkMylar(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid series id"})
	}

	var req linkMylarRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid json body"})
	}

	updated, err := h.series.LinkMylarComic(id, req.MylarComicID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "failed to update link"})
	}
	if !updated {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "series not found"})
	}

	series, err := h.series.GetByID(id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "failed to get series"})
	}
	return c.JSON(series)
}

func (h *SeriesAPIHandler) Delete(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid series id"})
	}

	deleted, err := h.series.Delete(id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "failed to delete series"})
	}
	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "series not found"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
