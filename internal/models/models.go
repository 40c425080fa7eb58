package models

import "time"

const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"

	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"

	ProvenanceAvailable = "available"
	ProvenanceUpcoming  = "upcoming"
)

type TrackedSeries struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Publisher     *string   `json:"publisher,omitempty"`
	KomgaSeriesID string    `json:"komgaSeriesId"`
	MylarComicID  *string   `json:"mylarComicId,omitempty"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type PullListRun struct {
	ID           int64      `json:"id"`
	Trigger      string     `json:"trigger"`
	Status       string     `json:"status"`
	BooksFound   int        `json:"booksFound"`
	ReadListID   *string    `json:"readlistId,omitempty"`
	ReadListName *string    `json:"readlistName,omitempty"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// WeeklyBook is one row of a week's pull list. Rows written by a
// generation run carry that run's id; one-off books added by hand have no
// run and survive later regenerations of the same week.
type WeeklyBook struct {
	ID              int64     `json:"id"`
	RunID           *int64    `json:"runId,omitempty"`
	WeekID          string    `json:"weekId"`
	KomgaBookID     *string   `json:"komgaBookId,omitempty"`
	KomgaSeriesID   string    `json:"komgaSeriesId"`
	SeriesName      string    `json:"seriesName"`
	BookNumber      *string   `json:"bookNumber,omitempty"`
	BookTitle       *string   `json:"bookTitle,omitempty"`
	Provenance      string    `json:"provenance"`
	IsRead          bool      `json:"isRead"`
	TrackedSeriesID *int64    `json:"trackedSeriesId,omitempty"`
	MylarIssueID    *string   `json:"mylarIssueId,omitempty"`
	ReleaseDate     *string   `json:"releaseDate,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

type NotificationLog struct {
	ID         int64     `json:"id"`
	WeekID     string    `json:"weekId"`
	ItemsCount int       `json:"itemsCount"`
	SentAt     time.Time `json:"sentAt"`
}

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// OneTimeToken backs both magic-link and password-reset tokens. A token is
// valid until it expires or is marked used, whichever comes first.
type OneTimeToken struct {
	ID        int64      `json:"id"`
	Token     string     `json:"token"`
	UserID    int64      `json:"userId"`
	ExpiresAt time.Time  `json:"expiresAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
