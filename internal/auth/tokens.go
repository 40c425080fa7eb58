package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService signs and verifies the session tokens stored in the auth
// cookie.
type TokenService struct {
	Secret   []byte
	Duration time.Duration
}

type SessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func (s SessionClaims) UserID() (int64, error) {
	id, err := strconv.ParseInt(s.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid session subject %q", s.Subject)
	}
	return id, nil
}

func (ts TokenService) Sign(userID int64, username string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ts.Duration)

	claims := SessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, exp, nil
}

func (ts TokenService) Parse(tokenString string) (*SessionClaims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}

	claims, ok := tok.Claims.(*SessionClaims)
	if !ok || !tok.Valid {
		return nil, fmt.Errorf("invalid session claims")
	}
	return claims, nil
}

// NewOneTimeToken returns a random token for magic links and password
// resets.
func NewOneTimeToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate one-time token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
