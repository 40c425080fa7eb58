package handlers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bchapman/wednesday/internal/komga"
	"github.com/bchapman/wednesday/internal/models"
	"github.com/bchapman/wednesday/internal/pulllist"
	"github.com/bchapman/wednesday/internal/repository"
)

type pullListRunner interface {
	Run(ctx context.Context, trigger string) (*pulllist.RunResult, error)
}

type nextRunSource interface {
	Enabled() bool
	NextRun() time.Time
}

type readProgressSource interface {
	GetBook(ctx context.Context, bookID string) (*komga.Book, error)
}

type DashboardHandler struct {
	runs      *repository.RunRepository
	library   readProgressSource
	generator pullListRunner
	schedule  nextRunSource
	location  *time.Location
	logger    *slog.Logger
}

type dashboardPageData struct {
	Username      string
	Weeks         []string
	SelectedWeek  string
	CurrentWeek   string
	WeekLabel     string
	NextRun       string
	ScheduleState string
}

type weekBooksData struct {
	Week      string
	WeekLabel string
	Available []bookCardView
	Upcoming  []bookCardView
	LastRun   *models.PullListRun
}

type runsPartialData struct {
	Runs []models.PullListRun
}

type bookCardView struct {
	ID             int64
	SeriesName     string
	Number         string
	Title          string
	IsRead         bool
	ReadPercentage int
	OneOff         bool
	ReleaseDate    string
	ThumbnailURL   string
	ReadURL        string
	DownloadURL    string
}

func NewDashboardHandler(runs *repository.RunRepository, library readProgressSource, generator pullListRunner, schedule nextRunSource, location *time.Location, logger *slog.Logger) *DashboardHandler {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardHandler{
		runs:      runs,
		library:   library,
		generator: generator,
		schedule:  schedule,
		location:  location,
		logger:    logger,
	}
}

func (h *DashboardHandler) Page(c *fiber.Ctx) error {
	currentWeek := pulllist.WeekID(time.Now(), h.location)
	selected := c.Query("week", currentWeek)

	weeks, err := h.runs.ListAvailableWeeks()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to load weeks")
	}

	data := dashboardPageData{
		Weeks:        weeks,
		SelectedWeek: selected,
		CurrentWeek:  currentWeek,
		WeekLabel:    pulllist.FormatWeekRange(selected, h.location),
	}
	if user := currentUser(c); user != nil {
		data.Username = user.Username
	}
	if h.schedule != nil && h.schedule.Enabled() {
		data.ScheduleState = "enabled"
		if next := h.schedule.NextRun(); !next.IsZero() {
			data.NextRun = next.In(h.location).Format("Mon Jan 2 15:04")
		}
	} else {
		data.ScheduleState = "disabled"
	}

	c.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	return render(c, "dashboard_page", data)
}

func (h *DashboardHandler) BooksPartial(c *fiber.Ctx) error {
	week := c.Query("week")
	if week == "" {
		week = pulllist.WeekID(time.Now(), h.location)
	}
	return h.renderWeek(c, week)
}

func (h *DashboardHandler) RunsPartial(c *fiber.Ctx) error {
	runs, err := h.runs.ListRecent(10)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to load runs")
	}
	return render(c, "runs_partial", runsPartialData{Runs: runs})
}

// TriggerRun starts a manual generation and answers with the refreshed
// week. A run already in progress is a conflict, not an error page.
func (h *DashboardHandler) TriggerRun(c *fiber.Ctx) error {
	result, err := h.generator.Run(c.Context(), models.TriggerManual)
	if err != nil {
		if errors.Is(err, pulllist.ErrRunInProgress) {
			return c.Status(fiber.StatusConflict).SendString("A run is already in progress")
		}
		h.logger.Error("manual run failed to start", "error", err)
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to start the run")
	}

	if isHTMXRequest(c) {
		return h.renderWeek(c, result.WeekID)
	}
	return c.Redirect("/?week="+result.WeekID, fiber.StatusSeeOther)
}

func (h *DashboardHandler) renderWeek(c *fiber.Ctx, week string) error {
	books, err := h.runs.ListWeekBooks(week)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to load books")
	}

	data := weekBooksData{
		Week:      week,
		WeekLabel: pulllist.FormatWeekRange(week, h.location),
	}
	for _, book := range books {
		view := newBookCardView(book)
		if book.Provenance == models.ProvenanceUpcoming {
			data.Upcoming = append(data.Upcoming, view)
			continue
		}
		h.refreshProgress(c.Context(), book, &view)
		data.Available = append(data.Available, view)
	}

	runs, err := h.runs.ListRecent(1)
	if err == nil && len(runs) > 0 {
		data.LastRun = &runs[0]
	}

	return render(c, "pulllist_partial", data)
}

// refreshProgress replaces the stored read state with the library's current
// one, so reading inside the library shows up without waiting for the next
// run. When the library is unreachable the stored state stands.
func (h *DashboardHandler) refreshProgress(ctx context.Context, book models.WeeklyBook, view *bookCardView) {
	if h.library == nil || book.KomgaBookID == nil {
		return
	}

	current, err := h.library.GetBook(ctx, *book.KomgaBookID)
	if err != nil || current == nil {
		h.logger.Warn("read progress refresh failed, using stored state",
			"bookId", *book.KomgaBookID, "error", err)
		return
	}

	view.IsRead = current.ReadCompleted
	view.ReadPercentage = current.ReadPercentage()
}

func newBookCardView(book models.WeeklyBook) bookCardView {
	view := bookCardView{
		ID:         book.ID,
		SeriesName: book.SeriesName,
		IsRead:     book.IsRead,
		OneOff:     book.Provenance == models.ProvenanceAvailable && book.TrackedSeriesID == nil,
	}
	if book.IsRead {
		view.ReadPercentage = 100
	}
	if book.BookNumber != nil {
		view.Number = *book.BookNumber
	}
	if book.BookTitle != nil {
		view.Title = *book.BookTitle
	}
	if book.ReleaseDate != nil {
		view.ReleaseDate = *book.ReleaseDate
	}
	if book.KomgaBookID != nil {
		view.ThumbnailURL = "/books/" + *book.KomgaBookID + "/thumbnail"
		view.DownloadURL = "/books/" + *book.KomgaBookID + "/file"
		view.ReadURL = "/books/" + *book.KomgaBookID + "/read"
	}
	return view
}
