// Package middleware provides HTTP middleware for the BFF.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/jawad0110/taqa-bff/internal/errors"
	"github.com/jawad0110/taqa-bff/internal/logging"
	"github.com/jawad0110/taqa-bff/internal/session"
)

type contextKey string

const sessionKey contextKey = "session"

// SessionResolver resolves browser requests to sessions. The session ID is
// carried either in the session cookie or as a bearer token.
type SessionResolver struct {
	manager    *session.Manager
	cookieName string
	log        *logging.Logger
}

// NewSessionResolver creates the session resolution middleware.
func NewSessionResolver(manager *session.Manager, cookieName string, log *logging.Logger) *SessionResolver {
	if log == nil {
		log = logging.NewNop()
	}
	return &SessionResolver{manager: manager, cookieName: cookieName, log: log}
}

// Handler attaches the resolved session, if any, to the request context.
// Resolution is best-effort here; gating happens in RequireSession so public
// routes can share the middleware chain.
func (sr *SessionResolver) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := sr.sessionID(r)
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := sr.manager.Resolve(r.Context(), id)
		if err != nil {
			if err != session.ErrNoSession {
				sr.log.WithContext(r.Context()).WithError(err).Warn("session resolution failed")
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

func (sr *SessionResolver) sessionID(r *http.Request) string {
	if cookie, err := r.Cookie(sr.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return ""
}

// WithSession stores sess in ctx.
func WithSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFrom extracts the session from ctx, or nil.
func SessionFrom(ctx context.Context) *session.Session {
	if sess, ok := ctx.Value(sessionKey).(*session.Session); ok {
		return sess
	}
	return nil
}

// RequireSession rejects requests without a usable session before any
// backend call is attempted. A session degraded by a failed refresh is
// rejected the same way: its stale token must never reach the backend.
func RequireSession(ctx context.Context) (*session.Session, *errors.ServiceError) {
	sess := SessionFrom(ctx)
	if sess == nil || sess.AccessToken == "" {
		return nil, errors.Unauthorized("please sign in to continue")
	}
	if sess.Degraded() {
		return nil, errors.SessionExpired("your session has expired, please sign in again")
	}
	return sess, nil
}

// RequireAdmin additionally checks the admin role.
func RequireAdmin(ctx context.Context) (*session.Session, *errors.ServiceError) {
	sess, svcErr := RequireSession(ctx)
	if svcErr != nil {
		return nil, svcErr
	}
	if !sess.IsAdmin() {
		return nil, errors.Forbidden("admin access required")
	}
	return sess, nil
}
