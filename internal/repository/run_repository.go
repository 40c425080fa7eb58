package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bchapman/wednesday/internal/models"
)

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRunning opens a run record in the running state. The record is
// finalized exactly once and never mutated afterwards.
func (r *RunRepository) CreateRunning(trigger string) (*models.PullListRun, error) {
	result, err := r.db.Exec(`
		INSERT INTO pull_list_runs (trigger_kind, status)
		VALUES (?, ?)
	`, trigger, models.RunStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("insert pull list run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get pull list run insert id: %w", err)
	}

	return r.GetByID(id)
}

type RunCompletion struct {
	Status       string
	BooksFound   int
	ReadListID   *string
	ReadListName *string
	ErrorMessage *string
}

func (r *RunRepository) Finalize(id int64, completion RunCompletion) error {
	_, err := r.db.Exec(`
		UPDATE pull_list_runs
		SET status = ?, books_found = ?, readlist_id = ?, readlist_name = ?, error_message = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, completion.Status, completion.BooksFound, completion.ReadListID, completion.ReadListName, completion.ErrorMessage, id, models.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("finalize pull list run: %w", err)
	}
	return nil
}

func (r *RunRepository) GetByID(id int64) (*models.PullListRun, error) {
	row := r.db.QueryRow(`
		SELECT id, trigger_kind, status, books_found, readlist_id, readlist_name, error_message, started_at, completed_at
		FROM pull_list_runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get pull list run by id: %w", err)
	}
	return run, nil
}

func (r *RunRepository) ListRecent(limit int) ([]models.PullListRun, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Query(`
		SELECT id, trigger_kind, status, books_found, readlist_id, readlist_name, error_message, started_at, completed_at
		FROM pull_list_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	defer rows.Close()

	runs := make([]models.PullListRun, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}

	return runs, nil
}

// InsertWeeklyBooks persists a run's snapshot in one transaction so a run
// either contributes all of its rows or none of them.
func (r *RunRepository) InsertWeeklyBooks(runID int64, books []models.WeeklyBook) error {
	if len(books) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin weekly books tx: %w", err)
	}

	for _, book := range books {
		if _, err := tx.Exec(`
			INSERT INTO weekly_books (
				run_id, week_id, komga_book_id, komga_series_id, series_name,
				book_number, book_title, provenance, is_read, tracked_series_id,
				mylar_issue_id, release_date
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, runID, book.WeekID, book.KomgaBookID, book.KomgaSeriesID, book.SeriesName,
			book.BookNumber, book.BookTitle, book.Provenance, book.IsRead, book.TrackedSeriesID,
			book.MylarIssueID, book.ReleaseDate); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert weekly book: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit weekly books tx: %w", err)
	}

	return nil
}

// ListWeekBooks returns the most recent run's snapshot for a week plus any
// one-off rows. Older runs' rows are superseded, not deleted, so the newest
// run wins; one-off rows have no run and outlive regenerations.
func (r *RunRepository) ListWeekBooks(weekID string) ([]models.WeeklyBook, error) {
	rows, err := r.db.Query(`
		SELECT id, run_id, week_id, komga_book_id, komga_series_id, series_name,
		       book_number, book_title, provenance, is_read, tracked_series_id,
		       mylar_issue_id, release_date, created_at
		FROM weekly_books
		WHERE week_id = ?
		  AND (run_id IS NULL
		       OR run_id = (SELECT MAX(run_id) FROM weekly_books WHERE week_id = ?))
		ORDER BY series_name ASC, book_number ASC, id ASC
	`, weekID, weekID)
	if err != nil {
		return nil, fmt.Errorf("list week books: %w", err)
	}
	defer rows.Close()

	books := make([]models.WeeklyBook, 0)
	for rows.Next() {
		book, err := scanWeeklyBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan weekly book row: %w", err)
		}
		books = append(books, *book)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate weekly book rows: %w", err)
	}

	return dedupeByKomgaBook(books), nil
}

// dedupeByKomgaBook drops a one-off row when a run row for the same library
// book exists, which happens once a one-off's series gets tracked and the
// next run picks the book up itself.
func dedupeByKomgaBook(books []models.WeeklyBook) []models.WeeklyBook {
	fromRun := make(map[string]bool, len(books))
	for _, book := range books {
		if book.RunID != nil && book.KomgaBookID != nil {
			fromRun[*book.KomgaBookID] = true
		}
	}

	result := books[:0]
	for _, book := range books {
		if book.RunID == nil && book.KomgaBookID != nil && fromRun[*book.KomgaBookID] {
			continue
		}
		result = append(result, book)
	}
	return result
}

// GetWeekBookByKomgaID finds a week's current row for a library book, run
// row or one-off alike. Used to reject duplicate one-off additions.
func (r *RunRepository) GetWeekBookByKomgaID(weekID string, komgaBookID string) (*models.WeeklyBook, error) {
	books, err := r.ListWeekBooks(weekID)
	if err != nil {
		return nil, err
	}
	for i := range books {
		if books[i].KomgaBookID != nil && *books[i].KomgaBookID == komgaBookID {
			return &books[i], nil
		}
	}
	return nil, nil
}

// InsertOneOffBook adds a hand-picked book to a week with no owning run.
func (r *RunRepository) InsertOneOffBook(book models.WeeklyBook) (*models.WeeklyBook, error) {
	result, err := r.db.Exec(`
		INSERT INTO weekly_books (
			run_id, week_id, komga_book_id, komga_series_id, series_name,
			book_number, book_title, provenance, is_read, tracked_series_id,
			mylar_issue_id, release_date
		)
		VALUES (NULL, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
	`, book.WeekID, book.KomgaBookID, book.KomgaSeriesID, book.SeriesName,
		book.BookNumber, book.BookTitle, book.Provenance, book.IsRead,
		book.MylarIssueID, book.ReleaseDate)
	if err != nil {
		return nil, fmt.Errorf("insert one-off book: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get one-off book insert id: %w", err)
	}
	return r.GetWeeklyBook(id)
}

// LinkBookToSeries attaches a one-off row to a tracked series. Rows that
// already belong to a series are left alone.
func (r *RunRepository) LinkBookToSeries(id int64, seriesID int64) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE weekly_books
		SET tracked_series_id = ?
		WHERE id = ? AND tracked_series_id IS NULL
	`, seriesID, id)
	if err != nil {
		return false, fmt.Errorf("link weekly book to series: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("weekly book link rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func (r *RunRepository) GetWeeklyBook(id int64) (*models.WeeklyBook, error) {
	row := r.db.QueryRow(`
		SELECT id, run_id, week_id, komga_book_id, komga_series_id, series_name,
		       book_number, book_title, provenance, is_read, tracked_series_id,
		       mylar_issue_id, release_date, created_at
		FROM weekly_books
		WHERE id = ?
	`, id)

	book, err := scanWeeklyBook(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get weekly book: %w", err)
	}
	return book, nil
}

// SetWeeklyBookRead mirrors the library's read state onto the snapshot row
// so the dashboard reflects a toggle without refetching.
func (r *RunRepository) SetWeeklyBookRead(id int64, read bool) (bool, error) {
	result, err := r.db.Exec(`UPDATE weekly_books SET is_read = ? WHERE id = ?`, read, id)
	if err != nil {
		return false, fmt.Errorf("set weekly book read: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("weekly book read rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func (r *RunRepository) CountRunBooks(runID int64) (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(1) FROM weekly_books WHERE run_id = ?`, runID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count run books: %w", err)
	}
	return count, nil
}

// ListAvailableWeeks lists week ids that have books, newest first.
func (r *RunRepository) ListAvailableWeeks() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT week_id FROM weekly_books ORDER BY week_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list available weeks: %w", err)
	}
	defer rows.Close()

	weeks := make([]string, 0)
	for rows.Next() {
		var week string
		if err := rows.Scan(&week); err != nil {
			return nil, fmt.Errorf("scan week id: %w", err)
		}
		weeks = append(weeks, week)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate week ids: %w", err)
	}

	return weeks, nil
}

func scanRun(scanner rowScanner) (*models.PullListRun, error) {
	var run models.PullListRun
	var readListID sql.NullString
	var readListName sql.NullString
	var errorMessage sql.NullString
	var completedAt sql.NullTime

	err := scanner.Scan(
		&run.ID,
		&run.Trigger,
		&run.Status,
		&run.BooksFound,
		&readListID,
		&readListName,
		&errorMessage,
		&run.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if readListID.Valid {
		run.ReadListID = &readListID.String
	}
	if readListName.Valid {
		run.ReadListName = &readListName.String
	}
	if errorMessage.Valid {
		run.ErrorMessage = &errorMessage.String
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}

	return &run, nil
}

func scanWeeklyBook(scanner rowScanner) (*models.WeeklyBook, error) {
	var book models.WeeklyBook
	var runID sql.NullInt64
	var komgaBookID sql.NullString
	var bookNumber sql.NullString
	var bookTitle sql.NullString
	var trackedSeriesID sql.NullInt64
	var mylarIssueID sql.NullString
	var releaseDate sql.NullString
	var createdAt time.Time

	err := scanner.Scan(
		&book.ID,
		&runID,
		&book.WeekID,
		&komgaBookID,
		&book.KomgaSeriesID,
		&book.SeriesName,
		&bookNumber,
		&bookTitle,
		&book.Provenance,
		&book.IsRead,
		&trackedSeriesID,
		&mylarIssueID,
		&releaseDate,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if runID.Valid {
		book.RunID = &runID.Int64
	}
	if komgaBookID.Valid {
		book.KomgaBookID = &komgaBookID.String
	}
	if bookNumber.Valid {
		book.BookNumber = &bookNumber.String
	}
	if bookTitle.Valid {
		book.BookTitle = &bookTitle.String
	}
	if trackedSeriesID.Valid {
		book.TrackedSeriesID = &trackedSeriesID.Int64
	}
	if mylarIssueID.Valid {
		book.MylarIssueID = &mylarIssueID.String
	}
	if releaseDate.Valid {
		book.ReleaseDate = &releaseDate.String
	}
	book.CreatedAt = createdAt

	return &book, nil
}
