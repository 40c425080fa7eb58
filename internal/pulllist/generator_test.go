package pulllist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bchapman/wednesday/internal/komga"
	"github.com/bchapman/wednesday/internal/models"
	"github.com/bchapman/wednesday/internal/mylar"
	"github.com/bchapman/wednesday/internal/repository"
)

// Wednesday 2024-11-27 noon, comic week 2024-W48.
var testNow = time.Date(2024, 11, 27, 12, 0, 0, 0, time.UTC)

const testWeek = "2024-W48"

type fakeSeriesStore struct {
	items []models.TrackedSeries
	err   error
}

func (f *fakeSeriesStore) List(activeOnly bool) ([]models.TrackedSeries, error) {
	return f.items, f.err
}

type fakeRunStore struct {
	nextID      int64
	createErr   error
	insertErr   error
	finalized   map[int64]repository.RunCompletion
	inserted    map[int64][]models.WeeklyBook
	insertCalls int
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{
		finalized: make(map[int64]repository.RunCompletion),
		inserted:  make(map[int64][]models.WeeklyBook),
	}
}

func (f *fakeRunStore) CreateRunning(trigger string) (*models.PullListRun, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	return &models.PullListRun{
		ID:        f.nextID,
		Trigger:   trigger,
		Status:    models.RunStatusRunning,
		StartedAt: testNow,
	}, nil
}

func (f *fakeRunStore) Finalize(id int64, completion repository.RunCompletion) error {
	f.finalized[id] = completion
	return nil
}

func (f *fakeRunStore) InsertWeeklyBooks(runID int64, books []models.WeeklyBook) error {
	f.insertCalls++
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted[runID] = books
	return nil
}

type fakeNotificationStore struct {
	alreadySent bool
	wasSentErr  error
	recorded    map[string]int
}

func newFakeNotificationStore() *fakeNotificationStore {
	return &fakeNotificationStore{recorded: make(map[string]int)}
}

func (f *fakeNotificationStore) WasSent(weekID string) (bool, error) {
	if f.wasSentErr != nil {
		return false, f.wasSentErr
	}
	_, recorded := f.recorded[weekID]
	return f.alreadySent || recorded, nil
}

func (f *fakeNotificationStore) Record(weekID string, itemsCount int) (bool, error) {
	if _, exists := f.recorded[weekID]; exists {
		return false, nil
	}
	f.recorded[weekID] = itemsCount
	return true, nil
}

type createdReadList struct {
	name    string
	bookIDs []string
}

type fakeLibrary struct {
	booksBySeries map[string][]komga.Book
	listErr       error

	existing  *komga.ReadList
	findErr   error
	createErr error
	deleteErr error

	deleted []string
	created []createdReadList
}

func (f *fakeLibrary) ListSeriesBooks(_ context.Context, seriesID string) ([]komga.Book, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.booksBySeries[seriesID], nil
}

func (f *fakeLibrary) FindReadListByName(_ context.Context, name string) (*komga.ReadList, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.existing != nil && f.existing.Name == name {
		return f.existing, nil
	}
	return nil, nil
}

func (f *fakeLibrary) CreateReadList(_ context.Context, name string, bookIDs []string) (*komga.ReadList, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, createdReadList{name: name, bookIDs: bookIDs})
	return &komga.ReadList{ID: fmt.Sprintf("rl-%d", len(f.created)), Name: name, BookIDs: bookIDs}, nil
}

func (f *fakeLibrary) DeleteReadList(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeUpcoming struct {
	issues []mylar.UpcomingIssue
	err    error
}

func (f *fakeUpcoming) GetUpcoming(_ context.Context) ([]mylar.UpcomingIssue, error) {
	return f.issues, f.err
}

type sentSummary struct {
	weekID string
	count  int
}

type fakeMailer struct {
	err  error
	sent []sentSummary
}

func (f *fakeMailer) SendPullListSummary(_ context.Context, weekID string, books []models.WeeklyBook) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentSummary{weekID: weekID, count: len(books)})
	return nil
}

type generatorFixture struct {
	generator     *Generator
	series        *fakeSeriesStore
	runs          *fakeRunStore
	notifications *fakeNotificationStore
	library       *fakeLibrary
	upcoming      *fakeUpcoming
	mailer        *fakeMailer
}

func newGeneratorFixture() *generatorFixture {
	fixture := &generatorFixture{
		series:        &fakeSeriesStore{},
		runs:          newFakeRunStore(),
		notifications: newFakeNotificationStore(),
		library:       &fakeLibrary{booksBySeries: make(map[string][]komga.Book)},
		upcoming:      &fakeUpcoming{},
		mailer:        &fakeMailer{},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fixture.generator = NewGenerator(
		fixture.series,
		fixture.runs,
		fixture.notifications,
		fixture.library,
		fixture.upcoming,
		fixture.mailer,
		logger,
		time.UTC,
	)
	fixture.generator.now = func() time.Time { return testNow }
	return fixture
}

func trackedSeries(id int64, name string, komgaID string) models.TrackedSeries {
	return models.TrackedSeries{ID: id, Name: name, KomgaSeriesID: komgaID, IsActive: true}
}

func libraryBook(id string, seriesID string, number string, age time.Duration) komga.Book {
	return komga.Book{
		ID:       id,
		SeriesID: seriesID,
		Number:   number,
		Created:  testNow.Add(-age),
	}
}

func TestRunCollectsRecentBooksAndCreatesReadList(t *testing.T) {
	fx := newGeneratorFixture()
	fx.series.items = []models.TrackedSeries{
		trackedSeries(1, "Saga", "s-1"),
		trackedSeries(2, "Monstress", "s-2"),
	}
	fx.library.booksBySeries["s-1"] = []komga.Book{
		libraryBook("b-1", "s-1", "72", 24*time.Hour),
		libraryBook("b-old", "s-1", "71", 10*24*time.Hour),
	}
	fx.library.booksBySeries["s-2"] = []komga.Book{
		libraryBook("b-2", "s-2", "51", 2*time.Hour),
	}

	result, err := fx.generator.Run(context.Background(), models.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Status != models.RunStatusSuccess {
		t.Fatalf("status = %q, want success", result.Status)
	}
	if result.WeekID != testWeek {
		t.Fatalf("week = %q, want %q", result.WeekID, testWeek)
	}
	if result.BooksFound != 2 {
		t.Fatalf("books found = %d, want 2", result.BooksFound)
	}

	rows := fx.runs.inserted[result.RunID]
	if len(rows) != 2 {
		t.Fatalf("inserted %d rows, want 2", len(rows))
	}
	for _, row := range rows {
		if row.WeekID != testWeek {
			t.Fatalf("row week = %q, want %q", row.WeekID, testWeek)
		}
		if row.Provenance != models.ProvenanceAvailable {
			t.Fatalf("row provenance = %q", row.Provenance)
		}
	}

	if len(fx.library.created) != 1 {
		t.Fatalf("created %d readlists, want 1", len(fx.library.created))
	}
	created := fx.library.created[0]
	if created.name != "Pull List - "+testWeek {
		t.Fatalf("readlist name = %q", created.name)
	}
	if len(created.bookIDs) != 2 {
		t.Fatalf("readlist has %d books, want 2", len(created.bookIDs))
	}

	completion, ok := fx.runs.finalized[result.RunID]
	if !ok {
		t.Fatal("run was not finalized")
	}
	if completion.Status != models.RunStatusSuccess || completion.BooksFound != 2 {
		t.Fatalf("finalized as %+v", completion)
	}
	if completion.ReadListName == nil || *completion.ReadListName != created.name {
		t.Fatalf("finalized readlist name = %v", completion.ReadListName)
	}
}

func TestRunLookbackWindowEndsAreInclusive(t *testing.T) {
	fx := newGeneratorFixture()
	fx.series.items = []models.TrackedSeries{trackedSeries(1, "Saga", "s-1")}
	fx.library.booksBySeries["s-1"] = []komga.Book{
		libraryBook("b-edge", "s-1", "1", 7*24*time.Hour),           // exactly the cutoff
		libraryBook("b-too-old", "s-1", "2", 7*24*time.Hour+time.Second),
		libraryBook("b-now", "s-1", "3", 0),
		libraryBook("b-future", "s-1", "4", -time.Minute),
	}

	result, err := fx.generator.Run(context.Background(), models.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	rows := fx.runs.inserted[result.RunID]
	got := make(map[string]bool, len(rows))
	for _, row := range rows {
		got[*row.KomgaBookID] = true
	}

	if !got["b-edge"] || !got["b-now"] {
		t.Fatalf("window edge books missing: %v", got)
	}
	if got["b-too-old"] || got["b-future"] {
		t.Fatalf("out-of-window books collected: %v", got)
	}
}

func TestRunDeduplicatesCrossoverIssues(t *testing.T) {
	fx := newGeneratorFixture()
	fx.series.items = []models.TrackedSeries{
		trackedSeries(1, "Batman", "s-1"),
		trackedSeries(2, "Detective Comics", "s-2"),
	}
	// The same crossover book shows up under both series.
	shared := libraryBook("b-shared", "s-1", "1", time.Hour)
	fx.library.booksBySeries["s-1"] = []komga.Book{shared}
	fx.library.booksBySeries["s-2"] = []komga.Book{shared}

	result, err := fx.generator.Run(context.Background(), models.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.BooksFound != 1 {
		t.Fatalf("books found = %d, want 1", result.BooksFound)
	}
	if len(fx.library.created[0].bookIDs) != 1 {
		t.Fatalf("readlist books = %v", fx.library.created[0].bookIDs)
	}
}

func TestRunLibraryFailureFailsTheWholeRun(t *testing.T) {
	fx := newGeneratorFixture()
	fx.series.items = []models.TrackedSeries{trackedSeries(1, "Saga", "s-1")}
	fx.library.listErr = errors.New("connection refused")

	result, err := fx.generator.Run(context.Background(), models.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Status != models.RunStatusFailed {
		t.Fatalf("status = %q, want failed", result.Status)
	}
	if result.ErrorMessage == nil || !strings.Contains(*result.ErrorMessage, "Saga") {
		t.Fatalf("error message = %v", result.ErrorMessage)
	}

	// A failed fetch must not leave a half-written week behind.
	if fx.runs.insertCalls != 0 {
		t.Fatalf("weekly books were inserted on a failed run")
	}
	if len(fx.library.created) != 0 {
		t.Fatal("readlist was created on a failed run")
	}
	if len(fx.mailer.sent) != 0 {
		t.Fatal("notification was sent on a failed run")
	}

	completion := fx.runs.finalized[result.RunID]
	if completion.Status != models.RunStatusFailed {
		t.Fatalf("finalized as %q", completion.Status)
	}
}

func TestRunReadListFailureIsPartialButKeepsBooks(t *testing.T) {
	fx := newGeneratorFixture()
	fx.series.items = []models.TrackedSeries{trackedSeries(1, "Saga", "s-1")}
	fx.library.booksBySeries["s-1"] = []komga.Book{libraryBook("b-1", "s-1", "72", time.Hour)}
	fx.library.createErr = errors.New("500 from the library")

	result, err := fx.generator.Run(context.Background(), models.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Status != models.RunStatusPartial {
		t.Fatalf("status = %q, want partial", result.Status)
	}
	if result.ErrorMessage == nil {
		t.Fatal("partial run carries no error message")
	}
	if len(fx.runs.inserted[result.RunID]) != 1 {
		t.Fatal("weekly books were lost with the readlist failure")
	}
	// The week's books still notify even when the readlist failed.
	if len(fx.mailer.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(fx.mailer.sent))
	}
}

func TestRunReplacesExistingReadList(t *testing.T) {
	fx := newGeneratorFixture()
	fx.series.items = []models.TrackedSeries{trackedSeries(1, "Saga", "s-1")}
	fx.library.booksBySeries["s-1"] = []komga.Book{libraryBook("b-1", "s-1", "72", time.Hour)}
	fx.library.existing = &komga.ReadList{ID: "rl-old", Name: "Pull List - " + testWeek}

	if _, err := fx.generator.Run(context.Background(), models.TriggerManual); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fx.library.deleted) != 1 || fx.library.deleted[0] != "rl-old" {
		t.Fatalf("deleted = %v, want [rl-old]", fx.library.deleted)
	}
	if len(fx.library.created) != 1 {
		t.Fatalf("created %d readlists, want 1", len(fx.library.created))
	}
}

func TestRunEmptyWeekSkipsReadListAndNotification(t *testing.T) {
	fx := newGeneratorFixture()
	fx.series.items = []models.TrackedSeries{trackedSeries(1, "Saga", "s-1")}
	fx.library.booksBySeries["s-1"] = []komga.Book{
		libraryBook("b-old", "s-1", "71", 30*24*time.Hour),
	}

	result, err := fx.generator.Run(context.Background(), models.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Status != models.RunStatusSuccess {
		t.Fatalf("status = %q, want success", result.Status)
	}
	if len(fx.library.created) != 0 {
		t.Fatal("readlist created for an empty week")
	}
	if len(fx.mailer.sent) != 0 {
		t.Fatal("notification sent for an empty week")
	}
}

func TestRunNotificationGoesOutOncePerWeek(t *testing.T) {
	fx := newGeneratorFixture()
	fx.series.items = []models.TrackedSeries{trackedSeries(1, "Saga", "s-1")}
	fx.library.booksBySeries["s-1"] = []komga.Book{libraryBook("b-1", "s-1", "72", time.Hour)}

	first, err := fx.generator.Run(context.Background(), models.TriggerManual)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if !first.NotificationSent {
		t.Fatal("first run did not notify")
	}

	second, err := fx.generator.Run(context.Background(), models.TriggerManual)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.NotificationSent {
		t.Fatal("second run notified again for the same week")
	}
	if len(fx.mailer.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(fx.mailer.sent))
	}
	if fx.notifications.recorded[testWeek] != 1 {
		t.Fatalf("recorded count = %d, want 1", fx.notifications.recorded[testWeek])
	}
}

func TestRunNotificationFailureDoesNotRecordOrFailTheRun(t *testing.T) {
	fx := newGeneratorFixture()
	fx.series.items = []models.TrackedSeries{trackedSeries(1, "Saga", "s-1")}
	fx.library.booksBySeries["s-1"] = []komga.Book{libraryBook("b-1", "s-1", "72", time.Hour)}
	fx.mailer.err = errors.New("smtp down")

	result, err := fx.generator.Run(context.Background(), models.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Status != models.RunStatusSuccess {
		t.Fatalf("status = %q, want success", result.Status)
	}
	if result.NotificationSent {
		t.Fatal("result claims a notification that failed")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("send failure left no warning")
	}
	// Send happens before the dedup row, so the next run retries.
	if _, recorded := fx.notifications.recorded[testWeek]; recorded {
		t.Fatal("failed send was recorded as sent")
	}

	fx.mailer.err = nil
	retry, err := fx.generator.Run(context.Background(), models.TriggerManual)
	if err != nil {
		t.Fatalf("retry Run: %v", err)
	}
	if !retry.NotificationSent {
		t.Fatal("retry did not send the notification")
	}
}

func TestRunUpcomingIssuesAreDisplayOnly(t *testing.T) {
	fx := newGeneratorFixture()
	comicID := "101"
	saga := trackedSeries(1, "Saga", "s-1")
	saga.MylarComicID = &comicID
	fx.series.items = []models.TrackedSeries{saga, trackedSeries(2, "Monstress", "s-2")}
	fx.library.booksBySeries["s-1"] = []komga.Book{libraryBook("b-1", "s-1", "72", time.Hour)}
	fx.upcoming.issues = []mylar.UpcomingIssue{
		{IssueID: "i-73", ComicID: "101", ComicName: "Saga", IssueNumber: "73", ReleaseDate: "2024-11-27"},
		{IssueID: "i-72", ComicID: "101", ComicName: "Saga", IssueNumber: "#072"}, // already in the library
		{IssueID: "i-x", ComicID: "999", ComicName: "Untracked"},
	}

	result, err := fx.generator.Run(context.Background(), models.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.UpcomingCount != 1 {
		t.Fatalf("upcoming = %d, want 1", result.UpcomingCount)
	}

	var upcomingRows []models.WeeklyBook
	for _, row := range fx.runs.inserted[result.RunID] {
		if row.Provenance == models.ProvenanceUpcoming {
			upcomingRows = append(upcomingRows, row)
		}
	}
	if len(upcomingRows) != 1 {
		t.Fatalf("persisted %d upcoming rows, want 1", len(upcomingRows))
	}
	if upcomingRows[0].MylarIssueID == nil || *upcomingRows[0].MylarIssueID != "i-73" {
		t.Fatalf("upcoming row = %+v", upcomingRows[0])
	}

	// Upcoming issues never reach the reading list.
	if len(fx.library.created[0].bookIDs) != 1 {
		t.Fatalf("readlist books = %v", fx.library.created[0].bookIDs)
	}
	// Or the notification count.
	if fx.mailer.sent[0].count != 1 {
		t.Fatalf("notified %d items, want 1", fx.mailer.sent[0].count)
	}
}

func TestRunUpcomingFeedFailureIsAWarning(t *testing.T) {
	fx := newGeneratorFixture()
	fx.series.items = []models.TrackedSeries{trackedSeries(1, "Saga", "s-1")}
	fx.library.booksBySeries["s-1"] = []komga.Book{libraryBook("b-1", "s-1", "72", time.Hour)}
	fx.upcoming.err = errors.New("mylar timeout")

	result, err := fx.generator.Run(context.Background(), models.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Status != models.RunStatusSuccess {
		t.Fatalf("status = %q, want success", result.Status)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("warnings = %v", result.Warnings)
	}
}

func TestRunRejectsConcurrentExecution(t *testing.T) {
	fx := newGeneratorFixture()

	if !fx.generator.mu.TryLock() {
		t.Fatal("could not take the run lock")
	}
	defer fx.generator.mu.Unlock()

	_, err := fx.generator.Run(context.Background(), models.TriggerManual)
	if !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("err = %v, want ErrRunInProgress", err)
	}
	if fx.runs.nextID != 0 {
		t.Fatal("a run record was opened while locked")
	}
}

func TestRunPersistFailureFinalizesAsFailed(t *testing.T) {
	fx := newGeneratorFixture()
	fx.series.items = []models.TrackedSeries{trackedSeries(1, "Saga", "s-1")}
	fx.library.booksBySeries["s-1"] = []komga.Book{libraryBook("b-1", "s-1", "72", time.Hour)}
	fx.runs.insertErr = errors.New("disk full")

	result, err := fx.generator.Run(context.Background(), models.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Status != models.RunStatusFailed {
		t.Fatalf("status = %q, want failed", result.Status)
	}
	if fx.runs.finalized[result.RunID].Status != models.RunStatusFailed {
		t.Fatalf("finalized as %q", fx.runs.finalized[result.RunID].Status)
	}
}

func TestNormalizeIssueNumber(t *testing.T) {
	cases := map[string]string{
		"5":     "5",
		"005":   "5",
		"#005":  "5",
		" #5 ":  "5",
		"0":     "0",
		"000":   "0",
		"12.1":  "12.1",
		"":      "",
	}
	for input, want := range cases {
		if got := normalizeIssueNumber(input); got != want {
			t.Fatalf("normalizeIssueNumber(%q) = %q, want %q", input, got, want)
		}
	}
}
