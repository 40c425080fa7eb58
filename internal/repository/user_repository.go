package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bchapman/wednesday/internal/models"
)

const (
	TokenKindMagicLink     = "magic_link_tokens"
	TokenKindPasswordReset = "password_reset_tokens"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(1) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (r *UserRepository) Create(username string, email string, passwordHash string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" || email == "" {
		return nil, fmt.Errorf("username and email are required")
	}

	result, err := r.db.Exec(`
		INSERT INTO users (username, email, password_hash)
		VALUES (?, ?, ?)
	`, username, email, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get user insert id: %w", err)
	}

	return r.GetByID(id)
}

func (r *UserRepository) GetByID(id int64) (*models.User, error) {
	return r.getBy(`id = ?`, id)
}

func (r *UserRepository) GetByUsername(username string) (*models.User, error) {
	return r.getBy(`username = ?`, strings.TrimSpace(username))
}

func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	return r.getBy(`email = ?`, strings.TrimSpace(strings.ToLower(email)))
}

func (r *UserRepository) getBy(where string, arg any) (*models.User, error) {
	row := r.db.QueryRow(`
		SELECT id, username, email, password_hash, is_active, created_at, updated_at
		FROM users
		WHERE `+where, arg)

	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) UpdatePassword(id int64, passwordHash string) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE users
		SET password_hash = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, passwordHash, id)
	if err != nil {
		return false, fmt.Errorf("update user password: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("password update rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// CreateToken stores a one-time token in the given token table.
func (r *UserRepository) CreateToken(kind string, token string, userID int64, expiresAt time.Time) error {
	if err := validateTokenKind(kind); err != nil {
		return err
	}

	_, err := r.db.Exec(`
		INSERT INTO `+kind+` (token, user_id, expires_at)
		VALUES (?, ?, ?)
	`, token, userID, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert %s: %w", kind, err)
	}
	return nil
}

// ConsumeToken marks a token used and returns its owner. It returns nil when
// the token is unknown, expired, or already used.
func (r *UserRepository) ConsumeToken(kind string, token string, now time.Time) (*models.User, error) {
	if err := validateTokenKind(kind); err != nil {
		return nil, err
	}

	row := r.db.QueryRow(`
		SELECT id, user_id, expires_at, used_at
		FROM `+kind+`
		WHERE token = ?
	`, token)

	var id int64
	var userID int64
	var expiresAt time.Time
	var usedAt sql.NullTime
	if err := row.Scan(&id, &userID, &expiresAt, &usedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", kind, err)
	}

	if usedAt.Valid || now.UTC().After(expiresAt) {
		return nil, nil
	}

	result, err := r.db.Exec(`
		UPDATE `+kind+`
		SET used_at = CURRENT_TIMESTAMP
		WHERE id = ? AND used_at IS NULL
	`, id)
	if err != nil {
		return nil, fmt.Errorf("mark %s used: %w", kind, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%s consume rows affected: %w", kind, err)
	}
	if rowsAffected == 0 {
		// Lost a race against another consumer; token is single-use.
		return nil, nil
	}

	user, err := r.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, nil
	}
	return user, nil
}

// DeleteExpiredTokens prunes expired rows from a token table.
func (r *UserRepository) DeleteExpiredTokens(kind string, now time.Time) (int64, error) {
	if err := validateTokenKind(kind); err != nil {
		return 0, err
	}

	result, err := r.db.Exec(`DELETE FROM `+kind+` WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired %s: %w", kind, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired %s rows affected: %w", kind, err)
	}
	return deleted, nil
}

func validateTokenKind(kind string) error {
	if kind != TokenKindMagicLink && kind != TokenKindPasswordReset {
		return fmt.Errorf("unknown token kind %q", kind)
	}
	return nil
}
