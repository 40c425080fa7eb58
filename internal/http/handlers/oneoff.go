package handlers

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bchapman/wednesday/internal/komga"
	"github.com/bchapman/wednesday/internal/models"
	"github.com/bchapman/wednesday/internal/pulllist"
	"github.com/bchapman/wednesday/internal/repository"
)

// browseFetchSize bounds how many recent library books the browse view
// scans for a week.
const browseFetchSize = 500

type libraryCatalog interface {
	LatestBooks(ctx context.Context, size int) ([]komga.Book, error)
	GetBook(ctx context.Context, bookID string) (*komga.Book, error)
	GetSeries(ctx context.Context, seriesID string) (*komga.Series, error)
}

// OneOffHandler covers books outside the tracked series: browsing what
// arrived in the library around a week, pinning a single book onto that
// week's pull list, and promoting a pinned book's series to tracked.
type OneOffHandler struct {
	runs     *repository.RunRepository
	series   *repository.SeriesRepository
	library  libraryCatalog
	location *time.Location
	logger   *slog.Logger
}

func NewOneOffHandler(runs *repository.RunRepository, series *repository.SeriesRepository, library libraryCatalog, location *time.Location, logger *slog.Logger) *OneOffHandler {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OneOffHandler{
		runs:     runs,
		series:   series,
		library:  library,
		location: location,
		logger:   logger,
	}
}

type browseData struct {
	Week      string
	WeekLabel string
	Books     []browseBookView
}

type browseBookView struct {
	BookID       string
	Name         string
	Number       string
	Title        string
	Created      string
	Added        bool
	ThumbnailURL string
}

// BrowsePartial lists recent library arrivals for a week so a book from an
// untracked series can be added by hand. The window starts a week before
// the comic week so late additions still show up.
func (h *OneOffHandler) BrowsePartial(c *fiber.Ctx) error {
	week := c.Query("week")
	if week == "" {
		week = pulllist.WeekID(time.Now(), h.location)
	}
	start, err := pulllist.WeekStart(week, h.location)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid week id")
	}
	cutoff := start.AddDate(0, 0, -7)

	books, err := h.library.LatestBooks(c.Context(), browseFetchSize)
	if err != nil {
		h.logger.Error("browse fetch failed", "week", week, "error", err)
		return c.Status(fiber.StatusBadGateway).SendString("Failed to fetch recent books from the library")
	}

	onList := make(map[string]bool)
	if existing, err := h.runs.ListWeekBooks(week); err == nil {
		for _, book := range existing {
			if book.KomgaBookID != nil {
				onList[*book.KomgaBookID] = true
			}
		}
	}

	data := browseData{
		Week:      week,
		WeekLabel: pulllist.FormatWeekRange(week, h.location),
	}
	for _, book := range books {
		if book.Created.Before(cutoff) {
			continue
		}
		data.Books = append(data.Books, browseBookView{
			BookID:       book.ID,
			Name:         book.Name,
			Number:       book.Number,
			Title:        book.Title,
			Created:      book.Created.In(h.location).Format("Jan 2"),
			Added:        onList[book.ID],
			ThumbnailURL: "/books/" + book.ID + "/thumbnail",
		})
	}

	return render(c, "browse_partial", data)
}

// Add pins a single library book onto a week's pull list without tracking
// its series. The row has no owning run, so regenerating the week keeps it.
func (h *OneOffHandler) Add(c *fiber.Ctx) error {
	bookID := c.Params("bookId")
	if bookID == "" {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid book id")
	}
	week := c.FormValue("week")
	if week == "" {
		week = pulllist.WeekID(time.Now(), h.location)
	}
	if _, err := pulllist.WeekStart(week, h.location); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid week id")
	}

	existing, err := h.runs.GetWeekBookByKomgaID(week, bookID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to check the pull list")
	}
	if existing != nil {
		return c.Status(fiber.StatusConflict).SendString("That book is already on the pull list")
	}

	book, err := h.library.GetBook(c.Context(), bookID)
	if err != nil {
		h.logger.Error("one-off book fetch failed", "bookId", bookID, "error", err)
		return c.Status(fiber.StatusBadGateway).SendString("Failed to fetch the book from the library")
	}
	series, err := h.library.GetSeries(c.Context(), book.SeriesID)
	if err != nil {
		h.logger.Error("one-off series fetch failed", "seriesId", book.SeriesID, "error", err)
		return c.Status(fiber.StatusBadGateway).SendString("Failed to fetch the series from the library")
	}

	row := models.WeeklyBook{
		WeekID:        week,
		KomgaBookID:   &book.ID,
		KomgaSeriesID: book.SeriesID,
		SeriesName:    series.Name,
		Provenance:    models.ProvenanceAvailable,
		IsRead:        book.ReadCompleted,
	}
	if book.Number != "" {
		row.BookNumber = &book.Number
	}
	if book.Title != "" {
		row.BookTitle = &book.Title
	}

	inserted, err := h.runs.InsertOneOffBook(row)
	if err != nil || inserted == nil {
		h.logger.Error("one-off insert failed", "week", week, "bookId", bookID, "error", err)
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to add the book")
	}

	h.logger.Info("one-off book added", "week", week, "bookId", bookID, "series", series.Name)
	return render(c, "book_card", newBookCardView(*inserted))
}

// Promote turns a one-off book's series into a tracked one and attaches the
// row to it, so the next run picks the series up on its own.
func (h *OneOffHandler) Promote(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid book id")
	}

	row, err := h.runs.GetWeeklyBook(id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to load book")
	}
	if row == nil {
		return c.Status(fiber.StatusNotFound).SendString("Book not found")
	}
	if row.TrackedSeriesID != nil {
		return c.Status(fiber.StatusConflict).SendString("That series is already tracked")
	}

	tracked, err := h.series.GetByKomgaSeriesID(row.KomgaSeriesID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to look up the series")
	}
	if tracked == nil {
		series, err := h.library.GetSeries(c.Context(), row.KomgaSeriesID)
		if err != nil {
			h.logger.Error("promote series fetch failed", "seriesId", row.KomgaSeriesID, "error", err)
			return c.Status(fiber.StatusBadGateway).SendString("Failed to fetch the series from the library")
		}

		create := &models.TrackedSeries{
			Name:          series.Name,
			KomgaSeriesID: series.ID,
		}
		if series.Publisher != "" {
			create.Publisher = &series.Publisher
		}
		tracked, err = h.series.Create(create)
		if err != nil {
			h.logger.Error("promote series create failed", "seriesId", row.KomgaSeriesID, "error", err)
			return c.Status(fiber.StatusInternalServerError).SendString("Failed to track the series")
		}
	}

	if _, err := h.runs.LinkBookToSeries(row.ID, tracked.ID); err != nil {
		h.logger.Error("promote link failed", "id", row.ID, "seriesId", tracked.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to link the book")
	}

	h.logger.Info("one-off promoted to tracked series", "id", row.ID, "series", tracked.Name)
	row.TrackedSeriesID = &tracked.ID
	return render(c, "book_card", newBookCardView(*row))
}
