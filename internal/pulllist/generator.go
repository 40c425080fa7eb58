package pulllist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bchapman/wednesday/internal/komga"
	"github.com/bchapman/wednesday/internal/models"
	"github.com/bchapman/wednesday/internal/mylar"
	"github.com/bchapman/wednesday/internal/repository"
)

// ErrRunInProgress is returned when a run is requested while another one is
// still executing. At most one generation runs at a time.
var ErrRunInProgress = errors.New("a pull list run is already in progress")

const (
	defaultLookback = 7 * 24 * time.Hour
	readListPrefix  = "Pull List - "
)

type seriesStore interface {
	List(activeOnly bool) ([]models.TrackedSeries, error)
}

type runStore interface {
	CreateRunning(trigger string) (*models.PullListRun, error)
	Finalize(id int64, completion repository.RunCompletion) error
	InsertWeeklyBooks(runID int64, books []models.WeeklyBook) error
}

type notificationStore interface {
	WasSent(weekID string) (bool, error)
	Record(weekID string, itemsCount int) (bool, error)
}

type libraryClient interface {
	ListSeriesBooks(ctx context.Context, seriesID string) ([]komga.Book, error)
	FindReadListByName(ctx context.Context, name string) (*komga.ReadList, error)
	CreateReadList(ctx context.Context, name string, bookIDs []string) (*komga.ReadList, error)
	DeleteReadList(ctx context.Context, id string) error
}

type upcomingClient interface {
	GetUpcoming(ctx context.Context) ([]mylar.UpcomingIssue, error)
}

type summaryMailer interface {
	SendPullListSummary(ctx context.Context, weekID string, books []models.WeeklyBook) error
}

// Generator builds the weekly pull list: it collects recently added books
// for every tracked series, mirrors them into a library reading list, and
// records a snapshot of the week.
type Generator struct {
	series        seriesStore
	runs          runStore
	notifications notificationStore
	library       libraryClient
	upcoming      upcomingClient
	mailer        summaryMailer
	logger        *slog.Logger
	location      *time.Location

	lookback time.Duration
	now      func() time.Time

	mu sync.Mutex
}

func NewGenerator(
	series seriesStore,
	runs runStore,
	notifications notificationStore,
	library libraryClient,
	upcoming upcomingClient,
	mailer summaryMailer,
	logger *slog.Logger,
	location *time.Location,
) *Generator {
	if location == nil {
		location = time.UTC
	}
	return &Generator{
		series:        series,
		runs:          runs,
		notifications: notifications,
		library:       library,
		upcoming:      upcoming,
		mailer:        mailer,
		logger:        logger,
		location:      location,
		lookback:      defaultLookback,
		now:           time.Now,
	}
}

// RunResult summarizes a finished run. Status mirrors the persisted run
// record; Warnings carry non-fatal problems (upcoming feed, notification).
type RunResult struct {
	RunID            int64    `json:"runId"`
	WeekID           string   `json:"weekId"`
	Status           string   `json:"status"`
	BooksFound       int      `json:"booksFound"`
	UpcomingCount    int      `json:"upcomingCount"`
	ReadListID       *string  `json:"readlistId,omitempty"`
	ReadListName     *string  `json:"readlistName,omitempty"`
	NotificationSent bool     `json:"notificationSent"`
	ErrorMessage     *string  `json:"errorMessage,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
}

// Run executes one pull list generation. Failures that belong to the run
// itself (library unreachable, storage errors) are committed to the run
// record and reported through the result; the returned error covers only
// conditions where no run could be recorded at all.
func (g *Generator) Run(ctx context.Context, trigger string) (*RunResult, error) {
	if !g.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer g.mu.Unlock()

	run, err := g.runs.CreateRunning(trigger)
	if err != nil {
		return nil, fmt.Errorf("open run record: %w", err)
	}

	now := g.now().In(g.location)
	weekID := WeekID(now, g.location)
	cutoff := now.Add(-g.lookback)

	result := &RunResult{RunID: run.ID, WeekID: weekID}

	g.logger.Info("pull list run started", "runId", run.ID, "trigger", trigger, "weekId", weekID)

	tracked, err := g.series.List(true)
	if err != nil {
		return g.fail(result, fmt.Errorf("load tracked series: %w", err)), nil
	}

	available, err := g.collectAvailable(ctx, tracked, weekID, cutoff, now)
	if err != nil {
		return g.fail(result, err), nil
	}

	upcoming := g.collectUpcoming(ctx, tracked, available, weekID, result)

	status := models.RunStatusSuccess
	var errorMessage *string

	if len(available) > 0 {
		readList, rlErr := g.syncReadList(ctx, weekID, available)
		if rlErr != nil {
			// Books stay on the dashboard even when the reading list
			// could not be created.
			status = models.RunStatusPartial
			msg := fmt.Sprintf("reading list: %v", rlErr)
			errorMessage = &msg
			g.logger.Error("reading list sync failed", "runId", run.ID, "weekId", weekID, "error", rlErr)
		} else {
			result.ReadListID = &readList.ID
			result.ReadListName = &readList.Name
		}
	}

	rows := append(append([]models.WeeklyBook{}, available...), upcoming...)
	if err := g.runs.InsertWeeklyBooks(run.ID, rows); err != nil {
		return g.fail(result, fmt.Errorf("persist weekly books: %w", err)), nil
	}

	result.Status = status
	result.BooksFound = len(available)
	result.UpcomingCount = len(upcoming)
	result.ErrorMessage = errorMessage

	g.notify(ctx, weekID, available, result)

	if err := g.runs.Finalize(run.ID, repository.RunCompletion{
		Status:       status,
		BooksFound:   len(available),
		ReadListID:   result.ReadListID,
		ReadListName: result.ReadListName,
		ErrorMessage: errorMessage,
	}); err != nil {
		g.logger.Error("finalize run record failed", "runId", run.ID, "error", err)
	}

	g.logger.Info("pull list run finished", "runId", run.ID, "status", status, "booksFound", len(available), "upcoming", len(upcoming))

	return result, nil
}

// collectAvailable walks every active tracked series and keeps the books
// added within the lookback window, ends inclusive. Any library error aborts
// the collection: a half-fetched week must not look like a quiet one.
func (g *Generator) collectAvailable(ctx context.Context, tracked []models.TrackedSeries, weekID string, cutoff, now time.Time) ([]models.WeeklyBook, error) {
	books := make([]models.WeeklyBook, 0)
	seen := make(map[string]bool)

	for _, series := range tracked {
		items, err := g.library.ListSeriesBooks(ctx, series.KomgaSeriesID)
		if err != nil {
			return nil, fmt.Errorf("fetch books for %q: %w", series.Name, err)
		}

		for _, book := range items {
			if book.Created.Before(cutoff) || book.Created.After(now) {
				continue
			}
			if seen[book.ID] {
				continue
			}
			seen[book.ID] = true

			books = append(books, g.availableRow(series, book, weekID))
		}
	}

	return books, nil
}

func (g *Generator) availableRow(series models.TrackedSeries, book komga.Book, weekID string) models.WeeklyBook {
	bookID := book.ID
	row := models.WeeklyBook{
		WeekID:          weekID,
		KomgaBookID:     &bookID,
		KomgaSeriesID:   series.KomgaSeriesID,
		SeriesName:      series.Name,
		Provenance:      models.ProvenanceAvailable,
		IsRead:          book.ReadCompleted,
		TrackedSeriesID: &series.ID,
	}
	if book.Number != "" {
		number := book.Number
		row.BookNumber = &number
	}
	if book.Title != "" {
		title := book.Title
		row.BookTitle = &title
	}
	if !book.Created.IsZero() {
		date := book.Created.In(g.location).Format("2006-01-02")
		row.ReleaseDate = &date
	}
	return row
}

// collectUpcoming merges the download manager's upcoming feed for tracked
// series that carry a comic link. Upcoming entries are display only and
// never reach the reading list; a failing feed degrades to a warning.
func (g *Generator) collectUpcoming(ctx context.Context, tracked []models.TrackedSeries, available []models.WeeklyBook, weekID string, result *RunResult) []models.WeeklyBook {
	if g.upcoming == nil {
		return nil
	}

	issues, err := g.upcoming.GetUpcoming(ctx)
	if err != nil {
		g.logger.Warn("upcoming feed unavailable", "error", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("upcoming feed: %v", err))
		return nil
	}
	if len(issues) == 0 {
		return nil
	}

	byComicID := make(map[string]models.TrackedSeries)
	for _, series := range tracked {
		if series.MylarComicID != nil && *series.MylarComicID != "" {
			byComicID[*series.MylarComicID] = series
		}
	}

	// An issue that already arrived in the library shows up once, as
	// available.
	haveIssue := make(map[string]bool)
	for _, row := range available {
		if row.BookNumber != nil {
			haveIssue[issueKey(row.KomgaSeriesID, *row.BookNumber)] = true
		}
	}

	rows := make([]models.WeeklyBook, 0)
	for _, issue := range issues {
		series, ok := byComicID[issue.ComicID]
		if !ok {
			continue
		}
		if haveIssue[issueKey(series.KomgaSeriesID, issue.IssueNumber)] {
			continue
		}

		seriesID := series.ID
		row := models.WeeklyBook{
			WeekID:          weekID,
			KomgaSeriesID:   series.KomgaSeriesID,
			SeriesName:      series.Name,
			Provenance:      models.ProvenanceUpcoming,
			TrackedSeriesID: &seriesID,
		}
		if issue.IssueNumber != "" {
			number := issue.IssueNumber
			row.BookNumber = &number
		}
		if issue.IssueID != "" {
			issueID := issue.IssueID
			row.MylarIssueID = &issueID
		}
		if issue.ReleaseDate != "" {
			date := issue.ReleaseDate
			row.ReleaseDate = &date
		}
		rows = append(rows, row)
	}

	return rows
}

func issueKey(komgaSeriesID, number string) string {
	return komgaSeriesID + "#" + normalizeIssueNumber(number)
}

// normalizeIssueNumber makes "#005", "005" and "5" compare equal.
func normalizeIssueNumber(number string) string {
	number = strings.TrimSpace(number)
	number = strings.TrimPrefix(number, "#")
	trimmed := strings.TrimLeft(number, "0")
	if trimmed == "" && number != "" {
		return "0"
	}
	return trimmed
}

// syncReadList replaces the week's reading list with the current book set.
// Recreating instead of patching keeps reruns idempotent.
func (g *Generator) syncReadList(ctx context.Context, weekID string, available []models.WeeklyBook) (*komga.ReadList, error) {
	name := readListPrefix + weekID

	bookIDs := make([]string, 0, len(available))
	for _, row := range available {
		if row.KomgaBookID != nil {
			bookIDs = append(bookIDs, *row.KomgaBookID)
		}
	}

	existing, err := g.library.FindReadListByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := g.library.DeleteReadList(ctx, existing.ID); err != nil {
			return nil, err
		}
	}

	return g.library.CreateReadList(ctx, name, bookIDs)
}

// notify sends the weekly summary at most once per week. The send happens
// before the dedup row is written, so a crash between the two can repeat an
// email but never silently drop one.
func (g *Generator) notify(ctx context.Context, weekID string, available []models.WeeklyBook, result *RunResult) {
	if g.mailer == nil || len(available) == 0 {
		return
	}

	sent, err := g.notifications.WasSent(weekID)
	if err != nil {
		g.logger.Error("notification log check failed", "error", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("notification: %v", err))
		return
	}
	if sent {
		return
	}

	if err := g.mailer.SendPullListSummary(ctx, weekID, available); err != nil {
		g.logger.Error("weekly summary send failed", "weekId", weekID, "error", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("notification: %v", err))
		return
	}

	inserted, err := g.notifications.Record(weekID, len(available))
	if err != nil {
		g.logger.Error("notification log write failed", "error", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("notification log: %v", err))
		return
	}
	if !inserted {
		g.logger.Warn("notification already logged for week", "weekId", weekID)
	}

	result.NotificationSent = true
	g.logger.Info("weekly summary sent", "weekId", weekID, "items", len(available))
}

func (g *Generator) fail(result *RunResult, cause error) *RunResult {
	msg := cause.Error()
	result.Status = models.RunStatusFailed
	result.ErrorMessage = &msg

	g.logger.Error("pull list run failed", "runId", result.RunID, "weekId", result.WeekID, "error", msg)

	if err := g.runs.Finalize(result.RunID, repository.RunCompletion{
		Status:       models.RunStatusFailed,
		ErrorMessage: &msg,
	}); err != nil {
		g.logger.Error("finalize run record failed", "runId", result.RunID, "error", err)
	}

	return result
}
