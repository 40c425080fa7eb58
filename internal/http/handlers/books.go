package handlers

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/bchapman/wednesday/internal/repository"
)

type libraryBooks interface {
	MarkRead(ctx context.Context, bookID string) error
	MarkUnread(ctx context.Context, bookID string) error
	BookThumbnail(ctx context.Context, bookID string) ([]byte, string, error)
	BookFile(ctx context.Context, bookID string) ([]byte, string, error)
	BookReadURL(bookID string) string
}

type BooksHandler struct {
	runs    *repository.RunRepository
	library libraryBooks
	logger  *slog.Logger
}

func NewBooksHandler(runs *repository.RunRepository, library libraryBooks, logger *slog.Logger) *BooksHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BooksHandler{runs: runs, library: library, logger: logger}
}

// ToggleRead flips the read state in the library first, then mirrors it on
// the snapshot row. A library failure leaves both sides untouched.
func (h *BooksHandler) ToggleRead(markRead bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil || id <= 0 {
			return c.Status(fiber.StatusBadRequest).SendString("Invalid book id")
		}

		book, err := h.runs.GetWeeklyBook(id)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Failed to load book")
		}
		if book == nil || book.KomgaBookID == nil {
			return c.Status(fiber.StatusNotFound).SendString("Book not found in the library")
		}

		if markRead {
			err = h.library.MarkRead(c.Context(), *book.KomgaBookID)
		} else {
			err = h.library.MarkUnread(c.Context(), *book.KomgaBookID)
		}
		if err != nil {
			h.logger.Error("library read toggle failed", "bookId", *book.KomgaBookID, "error", err)
			return c.Status(fiber.StatusBadGateway).SendString("The library rejected the update")
		}

		if _, err := h.runs.SetWeeklyBookRead(id, markRead); err != nil {
			h.logger.Error("snapshot read toggle failed", "id", id, "error", err)
		}

		book.IsRead = markRead
		return render(c, "book_card", newBookCardView(*book))
	}
}

func (h *BooksHandler) Thumbnail(c *fiber.Ctx) error {
	bookID := c.Params("bookId")
	if bookID == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	data, contentType, err := h.library.BookThumbnail(c.Context(), bookID)
	if err != nil {
		return c.SendStatus(fiber.StatusNotFound)
	}

	c.Set("Content-Type", contentType)
	c.Set("Cache-Control", "public, max-age=86400")
	return c.Send(data)
}

func (h *BooksHandler) Download(c *fiber.Ctx) error {
	bookID := c.Params("bookId")
	if bookID == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	data, contentType, err := h.library.BookFile(c.Context(), bookID)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).SendString("Failed to fetch the file from the library")
	}

	c.Set("Content-Type", contentType)
	c.Set("Content-Disposition", `attachment; filename="`+bookID+`.cbz"`)
	return c.Send(data)
}

// Read hands the reader off to the library's web reader.
func (h *BooksHandler) Read(c *fiber.Ctx) error {
	bookID := c.Params("bookId")
	if bookID == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	return c.Redirect(h.library.BookReadURL(bookID), fiber.StatusSeeOther)
}
