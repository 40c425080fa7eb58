package handlers

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// optionalPinger is the shape of the download-manager client: it knows
// whether it was actually set up.
type optionalPinger interface {
	pinger
	Configured() bool
}

type HealthHandler struct {
	db      *sql.DB
	library pinger
	manager optionalPinger
}

func NewHealthHandler(db *sql.DB, library pinger, manager optionalPinger) *HealthHandler {
	return &HealthHandler{db: db, library: library, manager: manager}
}

// Check reports the state of the database and both upstream services. The
// endpoint degrades instead of failing so dashboards can show what broke.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	httpStatus := fiber.StatusOK

	dbState := "up"
	if err := h.db.Ping(); err != nil {
		dbState = "down"
		status = "degraded"
		httpStatus = fiber.StatusServiceUnavailable
	}

	libraryState := "up"
	if h.library != nil {
		if err := h.library.Ping(ctx); err != nil {
			libraryState = "down"
			status = "degraded"
		}
	} else {
		libraryState = "unconfigured"
	}

	managerState := "unconfigured"
	if h.manager != nil && h.manager.Configured() {
		managerState = "up"
		if err := h.manager.Ping(ctx); err != nil {
			managerState = "down"
			status = "degraded"
		}
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"db":     dbState,
		"komga":  libraryState,
		"mylar":  managerState,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
