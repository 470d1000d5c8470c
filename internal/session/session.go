// Package session owns the session and token lifecycle for signed-in users.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sign-in failures are distinguished so the UI can offer the right recovery
// action: "create account" for an unknown user, "resend verification" for an
// unverified one. They must never collapse into one generic message.
var (
	ErrUserNotFound       = errors.New("no account exists for this email")
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrAccountUnverified  = errors.New("account email is not verified")
	ErrAuthUnavailable    = errors.New("authentication service unavailable")

	// ErrNoSession is returned when a session ID resolves to nothing.
	ErrNoSession = errors.New("no active session")
)

// Session mirrors the backend-issued identity for one signed-in browser.
// It is the only state shared across requests; everything else is re-derived
// from the backend.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         string    `json:"role"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`

	// RefreshError is set when a silent token refresh has failed. A session
	// carrying it must be treated as "re-authenticate", never used for
	// backend calls.
	RefreshError string `json:"refresh_error,omitempty"`
}

// Expired reports whether the access token needs refreshing.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Degraded reports whether a failed refresh has invalidated the session.
func (s *Session) Degraded() bool {
	return s.RefreshError != ""
}

// IsAdmin reports whether the session belongs to an admin user.
func (s *Session) IsAdmin() bool {
	return s.Role == "admin"
}

// tokenExpiry reads the expiry from the access token's JWT exp claim. The
// backend owns signature verification; the BFF only needs the timestamp, so
// the token is parsed unverified. Tokens that are not JWTs fall back to
// issue-time plus the configured TTL.
func tokenExpiry(accessToken string, issuedAt time.Time, fallbackTTL time.Duration) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return issuedAt.Add(fallbackTTL)
}
