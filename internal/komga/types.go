package komga

import "time"

type Series struct {
	ID               string
	Name             string
	LibraryID        string
	Publisher        string
	BooksCount       int
	BooksReadCount   int
	BooksUnreadCount int
}

// Complete reports whether every book in the series has been read.
func (s Series) Complete() bool {
	return s.BooksCount > 0 && s.BooksReadCount == s.BooksCount
}

type Book struct {
	ID         string
	SeriesID   string
	Name       string
	Number     string
	SortNumber float64
	Title      string
	SizeBytes  int64
	PagesCount int
	Created    time.Time
	Modified   time.Time

	// Read progress, absent when the book has never been opened.
	ReadCompleted bool
	PagesRead     int
}

// ReadPercentage derives a 0-100 progress value from the page counters.
func (b Book) ReadPercentage() int {
	if b.ReadCompleted {
		return 100
	}
	if b.PagesCount <= 0 || b.PagesRead <= 0 {
		return 0
	}
	pct := b.PagesRead * 100 / b.PagesCount
	if pct > 100 {
		pct = 100
	}
	return pct
}

type ReadList struct {
	ID      string
	Name    string
	BookIDs []string
}

type seriesResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	LibraryID        string `json:"libraryId"`
	BooksCount       int    `json:"booksCount"`
	BooksReadCount   int    `json:"booksReadCount"`
	BooksUnreadCount int    `json:"booksUnreadCount"`
	Metadata         struct {
		Publisher string `json:"publisher"`
	} `json:"metadata"`
}

type bookResponse struct {
	ID         string    `json:"id"`
	SeriesID   string    `json:"seriesId"`
	Name       string    `json:"name"`
	Number     string    `json:"number"`
	SortNumber float64   `json:"sortNumber"`
	SizeBytes  int64     `json:"sizeBytes"`
	Created    time.Time `json:"created"`
	Modified   time.Time `json:"lastModified"`
	Media      struct {
		PagesCount int `json:"pagesCount"`
	} `json:"media"`
	Metadata struct {
		Title  string `json:"title"`
		Number string `json:"number"`
	} `json:"metadata"`
	ReadProgress *struct {
		Page      int  `json:"page"`
		Completed bool `json:"completed"`
	} `json:"readProgress"`
}

type pageResponse[T any] struct {
	Content []T `json:"content"`
}

type readListResponse struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	BookIDs []string `json:"bookIds"`
}

func (r seriesResponse) toSeries() Series {
	return Series{
		ID:               r.ID,
		Name:             r.Name,
		LibraryID:        r.LibraryID,
		Publisher:        r.Metadata.Publisher,
		BooksCount:       r.BooksCount,
		BooksReadCount:   r.BooksReadCount,
		BooksUnreadCount: r.BooksUnreadCount,
	}
}

func (r bookResponse) toBook() Book {
	book := Book{
		ID:         r.ID,
		SeriesID:   r.SeriesID,
		Name:       r.Name,
		Number:     r.Number,
		SortNumber: r.SortNumber,
		Title:      r.Metadata.Title,
		SizeBytes:  r.SizeBytes,
		PagesCount: r.Media.PagesCount,
		Created:    r.Created,
		Modified:   r.Modified,
	}
	if book.Number == "" {
		book.Number = r.Metadata.Number
	}
	if r.ReadProgress != nil {
		book.ReadCompleted = r.ReadProgress.Completed
		book.PagesRead = r.ReadProgress.Page
	}
	return book
}
