package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bchapman/wednesday/internal/auth"
	"github.com/bchapman/wednesday/internal/models"
	"github.com/bchapman/wednesday/internal/repository"
)

const (
	sessionCookieName = "wednesday_session"
	localsUserKey     = "currentUser"
)

// SessionManager resolves the signed session cookie into a user and guards
// the authenticated routes.
type SessionManager struct {
	tokens auth.TokenService
	users  *repository.UserRepository
}

func NewSessionManager(tokens auth.TokenService, users *repository.UserRepository) *SessionManager {
	return &SessionManager{tokens: tokens, users: users}
}

func (s *SessionManager) resolve(c *fiber.Ctx) *models.User {
	cookie := c.Cookies(sessionCookieName)
	if cookie == "" {
		return nil
	}

	claims, err := s.tokens.Parse(cookie)
	if err != nil {
		return nil
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil
	}

	user, err := s.users.GetByID(userID)
	if err != nil || user == nil || !user.IsActive {
		return nil
	}
	return user
}

// RequirePage guards HTML routes; unauthenticated visitors land on the
// login form. A fresh instance with no users at all goes to first-run
// setup instead.
func (s *SessionManager) RequirePage(c *fiber.Ctx) error {
	if user := s.resolve(c); user != nil {
		c.Locals(localsUserKey, user)
		return c.Next()
	}

	count, err := s.users.Count()
	if err == nil && count == 0 {
		return c.Redirect("/setup", fiber.StatusSeeOther)
	}
	return c.Redirect("/login", fiber.StatusSeeOther)
}

// RequireAPI guards JSON routes with a plain 401.
func (s *SessionManager) RequireAPI(c *fiber.Ctx) error {
	user := s.resolve(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "authentication required"})
	}
	c.Locals(localsUserKey, user)
	return c.Next()
}

func (s *SessionManager) signIn(c *fiber.Ctx, user *models.User) error {
	token, expiresAt, err := s.tokens.Sign(user.ID, user.Username)
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Expires:  expiresAt,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
	return nil
}

func (s *SessionManager) signOut(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
}

func currentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(localsUserKey).(*models.User)
	return user
}

func isHTMXRequest(c *fiber.Ctx) bool {
	return strings.EqualFold(c.Get("HX-Request"), "true")
}
