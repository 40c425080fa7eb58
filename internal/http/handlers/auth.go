package handlers

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bchapman/wednesday/internal/auth"
	"github.com/bchapman/wednesday/internal/config"
	"github.com/bchapman/wednesday/internal/notifications"
	"github.com/bchapman/wednesday/internal/repository"
)

type AuthHandler struct {
	users    *repository.UserRepository
	sessions *SessionManager
	mailer   notifications.Mailer
	appURL   string

	magicLinkTTL time.Duration
	logger       *slog.Logger
}

type authPageData struct {
	Error   string
	Message string
	Token   string
}

func NewAuthHandler(cfg config.Config, users *repository.UserRepository, sessions *SessionManager, mailer notifications.Mailer, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		users:        users,
		sessions:     sessions,
		mailer:       mailer,
		appURL:       strings.TrimRight(cfg.AppURL, "/"),
		magicLinkTTL: time.Duration(cfg.MagicLinkExpireMinutes) * time.Minute,
		logger:       logger,
	}
}

func (h *AuthHandler) LoginPage(c *fiber.Ctx) error {
	count, err := h.users.Count()
	if err == nil && count == 0 {
		return c.Redirect("/setup", fiber.StatusSeeOther)
	}
	return render(c, "login_page", authPageData{})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	username := strings.TrimSpace(c.FormValue("username"))
	password := c.FormValue("password")

	user, err := h.users.GetByUsername(username)
	if err != nil {
		return render(c, "login_page", authPageData{Error: "Something went wrong, try again"})
	}
	if user == nil || !user.IsActive || !auth.VerifyPassword(user.PasswordHash, password) {
		return render(c, "login_page", authPageData{Error: "Invalid username or password"})
	}

	if err := h.sessions.signIn(c, user); err != nil {
		return render(c, "login_page", authPageData{Error: "Something went wrong, try again"})
	}
	return c.Redirect("/", fiber.StatusSeeOther)
}

// RequestMagicLink always answers with the same message so the form cannot
// be used to probe which emails exist.
func (h *AuthHandler) RequestMagicLink(c *fiber.Ctx) error {
	email := strings.TrimSpace(c.FormValue("email"))
	confirmation := authPageData{Message: "If that email is registered, a sign-in link is on its way"}

	user, err := h.users.GetByEmail(email)
	if err != nil || user == nil || !user.IsActive {
		return render(c, "login_page", confirmation)
	}

	if err := h.issueToken(c.Context(), repository.TokenKindMagicLink, user.ID, func(ctx context.Context, link string) error {
		return h.mailer.SendMagicLink(ctx, user.Email, link, h.magicLinkTTL)
	}, "/auth/magic"); err != nil {
		h.logger.Error("magic link send failed", "userId", user.ID, "error", err)
	}

	return render(c, "login_page", confirmation)
}

func (h *AuthHandler) MagicLink(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return render(c, "login_page", authPageData{Error: "That sign-in link is not valid"})
	}

	user, err := h.users.ConsumeToken(repository.TokenKindMagicLink, token, time.Now())
	if err != nil {
		return render(c, "login_page", authPageData{Error: "Something went wrong, try again"})
	}
	if user == nil {
		return render(c, "login_page", authPageData{Error: "That sign-in link has expired or was already used"})
	}

	if err := h.sessions.signIn(c, user); err != nil {
		return render(c, "login_page", authPageData{Error: "Something went wrong, try again"})
	}
	return c.Redirect("/", fiber.StatusSeeOther)
}

func (h *AuthHandler) RequestPasswordReset(c *fiber.Ctx) error {
	email := strings.TrimSpace(c.FormValue("email"))
	confirmation := authPageData{Message: "If that email is registered, a reset link is on its way"}

	user, err := h.users.GetByEmail(email)
	if err != nil || user == nil || !user.IsActive {
		return render(c, "login_page", confirmation)
	}

	if err := h.issueToken(c.Context(), repository.TokenKindPasswordReset, user.ID, func(ctx context.Context, link string) error {
		return h.mailer.SendPasswordReset(ctx, user.Email, link, h.magicLinkTTL)
	}, "/reset-password"); err != nil {
		h.logger.Error("password reset send failed", "userId", user.ID, "error", err)
	}

	return render(c, "login_page", confirmation)
}

func (h *AuthHandler) ResetPasswordPage(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}
	return render(c, "reset_password_page", authPageData{Token: token})
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	token := c.FormValue("token")
	password := c.FormValue("password")
	confirm := c.FormValue("confirm_password")

	if password != confirm {
		return render(c, "reset_password_page", authPageData{Token: token, Error: "Passwords do not match"})
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return render(c, "reset_password_page", authPageData{Token: token, Error: err.Error()})
	}

	user, err := h.users.ConsumeToken(repository.TokenKindPasswordReset, token, time.Now())
	if err != nil {
		return render(c, "reset_password_page", authPageData{Token: token, Error: "Something went wrong, try again"})
	}
	if user == nil {
		return render(c, "login_page", authPageData{Error: "That reset link has expired or was already used"})
	}

	if _, err := h.users.UpdatePassword(user.ID, hash); err != nil {
		return render(c, "reset_password_page", authPageData{Token: token, Error: "Something went wrong, try again"})
	}

	return render(c, "login_page", authPageData{Message: "Password updated, sign in with the new one"})
}

// SetupPage serves the first-run account form. Once a user exists the
// route stops answering.
func (h *AuthHandler) SetupPage(c *fiber.Ctx) error {
	count, err := h.users.Count()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to check setup state")
	}
	if count > 0 {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}
	return render(c, "setup_page", authPageData{})
}

func (h *AuthHandler) Setup(c *fiber.Ctx) error {
	count, err := h.users.Count()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to check setup state")
	}
	if count > 0 {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}

	username := strings.TrimSpace(c.FormValue("username"))
	email := strings.TrimSpace(c.FormValue("email"))
	password := c.FormValue("password")
	confirm := c.FormValue("confirm_password")

	if username == "" || email == "" {
		return render(c, "setup_page", authPageData{Error: "Username and email are required"})
	}
	if password != confirm {
		return render(c, "setup_page", authPageData{Error: "Passwords do not match"})
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return render(c, "setup_page", authPageData{Error: err.Error()})
	}

	user, err := h.users.Create(username, email, hash)
	if err != nil {
		return render(c, "setup_page", authPageData{Error: "Failed to create the account"})
	}

	if err := h.sessions.signIn(c, user); err != nil {
		return render(c, "login_page", authPageData{Message: "Account created, sign in"})
	}
	return c.Redirect("/", fiber.StatusSeeOther)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.sessions.signOut(c)
	return c.Redirect("/login", fiber.StatusSeeOther)
}

func (h *AuthHandler) issueToken(ctx context.Context, kind string, userID int64, send func(context.Context, string) error, path string) error {
	token, err := auth.NewOneTimeToken()
	if err != nil {
		return err
	}
	if err := h.users.CreateToken(kind, token, userID, time.Now().Add(h.magicLinkTTL)); err != nil {
		return err
	}

	link := h.appURL + path + "?token=" + url.QueryEscape(token)
	return send(ctx, link)
}
