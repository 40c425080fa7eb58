package repository

import (
	"database/sql"
	"fmt"

	"github.com/bchapman/wednesday/internal/models"
)

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// WasSent reports whether a notification has already gone out for a week.
func (r *NotificationRepository) WasSent(weekID string) (bool, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(1) FROM notification_log WHERE week_id = ?`, weekID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check notification log: %w", err)
	}
	return count > 0, nil
}

// Record writes the dedup row for a week. The UNIQUE constraint on week_id
// makes the insert conditional: a concurrent run that lost the race gets
// inserted=false instead of a duplicate row.
func (r *NotificationRepository) Record(weekID string, itemsCount int) (bool, error) {
	result, err := r.db.Exec(`
		INSERT OR IGNORE INTO notification_log (week_id, items_count)
		VALUES (?, ?)
	`, weekID, itemsCount)
	if err != nil {
		return false, fmt.Errorf("record notification: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("notification record rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func (r *NotificationRepository) GetByWeek(weekID string) (*models.NotificationLog, error) {
	row := r.db.QueryRow(`
		SELECT id, week_id, items_count, sent_at
		FROM notification_log
		WHERE week_id = ?
	`, weekID)

	var entry models.NotificationLog
	if err := row.Scan(&entry.ID, &entry.WeekID, &entry.ItemsCount, &entry.SentAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get notification log: %w", err)
	}
	return &entry, nil
}
