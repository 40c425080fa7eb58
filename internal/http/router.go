package http

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/bchapman/wednesday/internal/auth"
	"github.com/bchapman/wednesday/internal/config"
	"github.com/bchapman/wednesday/internal/http/handlers"
	"github.com/bchapman/wednesday/internal/komga"
	"github.com/bchapman/wednesday/internal/mylar"
	"github.com/bchapman/wednesday/internal/notifications"
	"github.com/bchapman/wednesday/internal/pulllist"
	"github.com/bchapman/wednesday/internal/repository"
	"github.com/bchapman/wednesday/internal/scheduler"
)

// Dependencies carries the long-lived collaborators the handlers share.
type Dependencies struct {
	Komga     *komga.Client
	Mylar     *mylar.Client
	Generator *pulllist.Generator
	Scheduler *scheduler.Scheduler
	Mailer    notifications.Mailer
	Logger    *slog.Logger
}

func NewServer(cfg config.Config, db *sql.DB, deps Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: cfg.AppName,
	})

	app.Use(recover.New())

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mailer := deps.Mailer
	if mailer == nil {
		mailer = notifications.NoopMailer{}
	}

	seriesRepo := repository.NewSeriesRepository(db)
	runRepo := repository.NewRunRepository(db)
	userRepo := repository.NewUserRepository(db)

	sessions := handlers.NewSessionManager(auth.TokenService{
		Secret:   []byte(cfg.SecretKey),
		Duration: time.Duration(cfg.AccessTokenExpireMinutes) * time.Minute,
	}, userRepo)

	authHandler := handlers.NewAuthHandler(cfg, userRepo, sessions, mailer, logger)
	booksHandler := handlers.NewBooksHandler(runRepo, deps.Komga, logger)
	seriesHandler := handlers.NewSeriesHandler(seriesRepo, deps.Komga, cfg.Mylar.Configured(), logger)
	seriesAPI := handlers.NewSeriesAPIHandler(seriesRepo, deps.Komga, logger)
	runsAPI := handlers.NewRunsAPIHandler(runRepo, deps.Generator, logger)
	oneOff := handlers.NewOneOffHandler(runRepo, seriesRepo, deps.Komga, cfg.Schedule.Location(), logger)

	// Scheduler and Mylar tolerate nil receivers, so absent collaborators
	// need no special-casing here.
	dashboard := handlers.NewDashboardHandler(runRepo, deps.Komga, deps.Generator, deps.Scheduler, cfg.Schedule.Location(), logger)
	health := handlers.NewHealthHandler(db, deps.Komga, deps.Mylar)

	app.Static("/assets", "./web/assets")
	app.Get("/favicon.ico", func(c *fiber.Ctx) error {
		return c.SendFile("./web/assets/favicon.svg")
	})

	app.Get("/health", health.Check)
	app.Get("/v1/health", health.Check)

	app.Get("/setup", authHandler.SetupPage)
	app.Post("/setup", authHandler.Setup)
	app.Get("/login", authHandler.LoginPage)
	app.Post("/login", authHandler.Login)
	app.Post("/auth/magic-link", authHandler.RequestMagicLink)
	app.Get("/auth/magic", authHandler.MagicLink)
	app.Post("/auth/password-reset", authHandler.RequestPasswordReset)
	app.Get("/reset-password", authHandler.ResetPasswordPage)
	app.Post("/reset-password", authHandler.ResetPassword)

	// The API group goes on the stack before the catch-all page group so
	// /v1 requests hit the 401 guard, not the login redirect.
	v1 := app.Group("/v1", sessions.RequireAPI)
	v1.Get("/series", seriesAPI.List)
	v1.Post("/series", seriesAPI.Create)
	v1.Get("/series/:id", seriesAPI.GetByID)
	v1.Post("/series/:id/toggle", seriesAPI.Toggle)
	v1.Put("/series/:id/mylar", seriesAPI.LinkMylar)
	v1.Delete("/series/:id", seriesAPI.Delete)
	v1.Post("/pulllist/run", runsAPI.Trigger)
	v1.Get("/runs", runsAPI.List)
	v1.Get("/runs/:id", runsAPI.GetByID)
	v1.Get("/weeks", runsAPI.ListWeeks)
	v1.Get("/weeks/:weekId/books", runsAPI.WeekBooks)

	pages := app.Group("/", sessions.RequirePage)
	pages.Post("/logout", authHandler.Logout)
	pages.Get("/", dashboard.Page)
	pages.Get("/dashboard", dashboard.Page)
	pages.Get("/dashboard/books", dashboard.BooksPartial)
	pages.Get("/dashboard/runs", dashboard.RunsPartial)
	pages.Post("/dashboard/run", dashboard.TriggerRun)
	pages.Get("/dashboard/browse", oneOff.BrowsePartial)
	pages.Post("/dashboard/browse/:bookId/add", oneOff.Add)
	pages.Post("/dashboard/books/:id/read", booksHandler.ToggleRead(true))
	pages.Post("/dashboard/books/:id/unread", booksHandler.ToggleRead(false))
	pages.Post("/dashboard/books/:id/promote", oneOff.Promote)
	pages.Get("/books/:bookId/thumbnail", booksHandler.Thumbnail)
	pages.Get("/books/:bookId/file", booksHandler.Download)
	pages.Get("/books/:bookId/read", booksHandler.Read)
	pages.Get("/settings", seriesHandler.SettingsPage)
	pages.Get("/settings/series/search", seriesHandler.Search)
	pages.Post("/settings/series", seriesHandler.AddFromForm)
	pages.Post("/settings/series/:id/toggle", seriesHandler.ToggleFromForm)
	pages.Post("/settings/series/:id/delete", seriesHandler.DeleteFromForm)
	pages.Post("/settings/series/:id/mylar", seriesHandler.LinkMylarFromForm)

	return app
}
