package handlers

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/bchapman/wednesday/internal/komga"
	"github.com/bchapman/wednesday/internal/models"
	"github.com/bchapman/wednesday/internal/repository"
)

type librarySeries interface {
	ListSeries(ctx context.Context, search string) ([]komga.Series, error)
	GetSeries(ctx context.Context, seriesID string) (*komga.Series, error)
}

type SeriesHandler struct {
	series  *repository.SeriesRepository
	library librarySeries

	mylarConfigured bool
	logger          *slog.Logger
}

type settingsPageData struct {
	Username        string
	Series          []models.TrackedSeries
	MylarConfigured bool
	Error           string
}

type seriesListData struct {
	Series          []models.TrackedSeries
	MylarConfigured bool
	Error           string
}

type seriesSearchData struct {
	Query   string
	Results []seriesSearchResult
	Error   string
}

type seriesSearchResult struct {
	ID             string
	Name           string
	Publisher      string
	BooksCount     int
	AlreadyTracked bool
}

func NewSeriesHandler(series *repository.SeriesRepository, library librarySeries, mylarConfigured bool, logger *slog.Logger) *SeriesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SeriesHandler{
		series:          series,
		library:         library,
		mylarConfigured: mylarConfigured,
		logger:          logger,
	}
}

func (h *SeriesHandler) SettingsPage(c *fiber.Ctx) error {
	items, err := h.series.List(false)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to load tracked series")
	}

	data := settingsPageData{
		Series:          items,
		MylarConfigured: h.mylarConfigured,
	}
	if user := currentUser(c); user != nil {
		data.Username = user.Username
	}
	return render(c, "settings_page", data)
}

// Search queries the library so new series can be tracked straight from
// its catalog instead of typing ids by hand.
func (h *SeriesHandler) Search(c *fiber.Ctx) error {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		return render(c, "series_search_results", seriesSearchData{})
	}

	results, err := h.library.ListSeries(c.Context(), query)
	if err != nil {
		h.logger.Warn("library series search failed", "query", query, "error", err)
		return render(c, "series_search_results", seriesSearchData{
			Query: query,
			Error: "The library could not be reached",
		})
	}

	tracked, err := h.series.List(false)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to load tracked series")
	}
	trackedIDs := make(map[string]bool, len(tracked))
	for _, item := range tracked {
		trackedIDs[item.KomgaSeriesID] = true
	}

	data := seriesSearchData{Query: query}
	for _, result := range results {
		data.Results = append(data.Results, seriesSearchResult{
			ID:             result.ID,
			Name:           result.Name,
			Publisher:      result.Publisher,
			BooksCount:     result.BooksCount,
			AlreadyTracked: trackedIDs[result.ID],
		})
	}
	return render(c, "series_search_results", data)
}

func (h *SeriesHandler) AddFromForm(c *fiber.Ctx) error {
	komgaSeriesID := strings.TrimSpace(c.FormValue("komga_series_id"))
	if komgaSeriesID == "" {
		return h.renderList(c, "A library series id is required")
	}

	if existing, err := h.series.GetByKomgaSeriesID(komgaSeriesID); err != nil {
		return h.renderList(c, "Failed to check tracked series")
	} else if existing != nil {
		return h.renderList(c, "That series is already tracked")
	}

	series, err := h.library.GetSeries(c.Context(), komgaSeriesID)
	if err != nil {
		return h.renderList(c, "The library could not be reached")
	}
	if series == nil {
		return h.renderList(c, "No such series in the library")
	}

	record := &models.TrackedSeries{
		Name:          series.Name,
		KomgaSeriesID: series.ID,
	}
	if series.Publisher != "" {
		publisher := series.Publisher
		record.Publisher = &publisher
	}

	if _, err := h.series.Create(record); err != nil {
		return h.renderList(c, "Failed to track the series")
	}
	return h.renderList(c, "")
}

func (h *SeriesHandler) ToggleFromForm(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return h.renderList(c, "Invalid series id")
	}

	if _, err := h.series.ToggleActive(id); err != nil {
		return h.renderList(c, "Failed to update the series")
	}
	return h.renderList(c, "")
}

func (h *SeriesHandler) DeleteFromForm(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return h.renderList(c, "Invalid series id")
	}

	if _, err := h.series.Delete(id); err != nil {
		return h.renderList(c, "Failed to remove the series")
	}
	return h.renderList(c, "")
}

// LinkMylarFromForm stores the user-entered comic id; an empty value
// clears the link.
func (h *SeriesHandler) LinkMylarFromForm(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return h.renderList(c, "Invalid series id")
	}

	var comicID *string
	if value := strings.TrimSpace(c.FormValue("mylar_comic_id")); value != "" {
		comicID = &value
	}

	if _, err := h.series.LinkMylarComic(id, comicID); err != nil {
		return h.renderList(c, "Failed to update the link")
	}
	return h.renderList(c, "")
}

func (h *SeriesHandler) renderList(c *fiber.Ctx, errorMessage string) error {
	items, err := h.series.List(false)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to load tracked series")
	}
	return render(c, "series_list", seriesListData{
		Series:          items,
		MylarConfigured: h.mylarConfigured,
		Error:           errorMessage,
	})
}
