package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/bchapman/wednesday/internal/models"
)

type SeriesRepository struct {
	db *sql.DB
}

func NewSeriesRepository(db *sql.DB) *SeriesRepository {
	return &SeriesRepository{db: db}
}

func (r *SeriesRepository) List(activeOnly bool) ([]models.TrackedSeries, error) {
	query := `
		SELECT id, name, publisher, komga_series_id, mylar_comic_id, is_active, created_at, updated_at
		FROM tracked_series
	`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list tracked series: %w", err)
	}
	defer rows.Close()

	items := make([]models.TrackedSeries, 0)
	for rows.Next() {
		series, err := scanSeries(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracked series row: %w", err)
		}
		items = append(items, *series)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracked series rows: %w", err)
	}

	return items, nil
}

func (r *SeriesRepository) GetByID(id int64) (*models.TrackedSeries, error) {
	row := r.db.QueryRow(`
		SELECT id, name, publisher, komga_series_id, mylar_comic_id, is_active, created_at, updated_at
		FROM tracked_series
		WHERE id = ?
	`, id)

	series, err := scanSeries(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get tracked series by id: %w", err)
	}
	return series, nil
}

func (r *SeriesRepository) GetByKomgaSeriesID(komgaSeriesID string) (*models.TrackedSeries, error) {
	row := r.db.QueryRow(`
		SELECT id, name, publisher, komga_series_id, mylar_comic_id, is_active, created_at, updated_at
		FROM tracked_series
		WHERE komga_series_id = ?
	`, komgaSeriesID)

	series, err := scanSeries(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get tracked series by komga id: %w", err)
	}
	return series, nil
}

func (r *SeriesRepository) Create(series *models.TrackedSeries) (*models.TrackedSeries, error) {
	name := strings.TrimSpace(series.Name)
	if name == "" {
		return nil, fmt.Errorf("series name is required")
	}
	if strings.TrimSpace(series.KomgaSeriesID) == "" {
		return nil, fmt.Errorf("komga series id is required")
	}

	result, err := r.db.Exec(`
		INSERT INTO tracked_series (name, publisher, komga_series_id, mylar_comic_id, is_active)
		VALUES (?, ?, ?, ?, 1)
	`, name, series.Publisher, strings.TrimSpace(series.KomgaSeriesID), series.MylarComicID)
	if err != nil {
		return nil, fmt.Errorf("insert tracked series: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get tracked series insert id: %w", err)
	}

	return r.GetByID(id)
}

func (r *SeriesRepository) Delete(id int64) (bool, error) {
	result, err := r.db.Exec(`DELETE FROM tracked_series WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete tracked series: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("tracked series delete rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ToggleActive flips the active flag and returns the updated row.
func (r *SeriesRepository) ToggleActive(id int64) (*models.TrackedSeries, error) {
	result, err := r.db.Exec(`
		UPDATE tracked_series
		SET is_active = CASE is_active WHEN 1 THEN 0 ELSE 1 END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("toggle tracked series: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("tracked series toggle rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, nil
	}

	return r.GetByID(id)
}

// LinkMylarComic records the user-supplied link between a tracked series and
// its Mylar comic id. Matching between the two systems is never inferred.
func (r *SeriesRepository) LinkMylarComic(id int64, mylarComicID *string) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE tracked_series
		SET mylar_comic_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, mylarComicID, id)
	if err != nil {
		return false, fmt.Errorf("link mylar comic: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mylar link rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func scanSeries(scanner rowScanner) (*models.TrackedSeries, error) {
	var series models.TrackedSeries
	var publisher sql.NullString
	var mylarComicID sql.NullString

	err := scanner.Scan(
		&series.ID,
		&series.Name,
		&publisher,
		&series.KomgaSeriesID,
		&mylarComicID,
		&series.IsActive,
		&series.CreatedAt,
		&series.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if publisher.Valid {
		series.Publisher = &publisher.String
	}
	if mylarComicID.Valid {
		series.MylarComicID = &mylarComicID.String
	}

	return &series, nil
}
