package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jawad0110/taqa-bff/internal/backend"
	"github.com/jawad0110/taqa-bff/internal/logging"
)

// Manager drives the session lifecycle: credential exchange, silent access
// token refresh, and sign-out. It is the single owner of session state.
type Manager struct {
	store     Store
	client    *backend.Client
	accessTTL time.Duration
	log       *logging.Logger

	// refreshMu serializes refreshes per session so concurrent requests
	// under an expiring token cannot race each other.
	refreshMu sync.Map // session ID -> *sync.Mutex
}

// NewManager creates a session manager.
func NewManager(store Store, client *backend.Client, accessTTL time.Duration, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	return &Manager{
		store:     store,
		client:    client,
		accessTTL: accessTTL,
		log:       log,
	}
}

type signInResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID        string `json:"id"`
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Role      string `json:"role"`
	} `json:"user"`
}

// SignIn exchanges credentials with the backend and stores a new session.
// Backend failure reasons map to distinct sentinel errors so callers can
// offer the matching recovery action.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var resp signInResponse
	err := m.client.Post(ctx, nil, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, mapSignInError(err)
	}

	now := time.Now()
	sess := &Session{
		ID:           uuid.NewString(),
		UserID:       resp.User.ID,
		Email:        resp.User.Email,
		FirstName:    resp.User.FirstName,
		LastName:     resp.User.LastName,
		Role:         resp.User.Role,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    tokenExpiry(resp.AccessToken, now, m.accessTTL),
		CreatedAt:    now,
	}
	if err := m.store.Put(ctx, sess); err != nil {
		return nil, err
	}
	m.log.WithContext(ctx).WithField("user", sess.UserID).Info("session created")
	return sess, nil
}

// mapSignInError translates backend auth failures into the sign-in taxonomy.
func mapSignInError(err error) error {
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) {
		return ErrAuthUnavailable
	}

	code := strings.ToLower(apiErr.Code)
	switch {
	case strings.Contains(code, "not_found") || strings.Contains(code, "no_user"):
		return ErrUserNotFound
	case strings.Contains(code, "unverified") || strings.Contains(code, "not_verified"):
		return ErrAccountUnverified
	case strings.Contains(code, "invalid_credentials") || strings.Contains(code, "wrong_password"):
		return ErrInvalidCredentials
	}

	switch apiErr.Status {
	case 404:
		return ErrUserNotFound
	case 401, 400:
		return ErrInvalidCredentials
	case 403:
		return ErrAccountUnverified
	}
	return ErrAuthUnavailable
}

// Resolve loads the session for id and transparently refreshes an expired
// access token. A failed refresh never surfaces as an error here: the
// session is degraded in place (RefreshError set, persisted) and callers
// must check Degraded before using it for backend calls.
func (m *Manager) Resolve(ctx context.Context, id string) (*Session, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Degraded() || !sess.Expired(time.Now()) {
		return sess, nil
	}
	m.refresh(ctx, sess, false)
	return sess, nil
}

// refresh replaces the access token using the refresh token, serialized per
// session. force skips the local-expiry check, for the case where the
// backend rejected a token the BFF still believed valid. On failure the
// session is marked degraded and persisted; the caller decides how to
// surface that.
func (m *Manager) refresh(ctx context.Context, sess *Session, force bool) {
	muIface, _ := m.refreshMu.LoadOrStore(sess.ID, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	// Another request may have finished the refresh while we waited.
	previousToken := sess.AccessToken
	if current, err := m.store.Get(ctx, sess.ID); err == nil {
		*sess = *current
		if sess.Degraded() || sess.AccessToken != previousToken {
			return
		}
		if !force && !sess.Expired(time.Now()) {
			return
		}
	}

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	err := m.client.Post(ctx, nil, "/auth/refresh", map[string]string{
		"refresh_token": sess.RefreshToken,
	}, &resp)
	if err != nil || resp.AccessToken == "" {
		m.log.WithContext(ctx).WithError(err).WithField("user", sess.UserID).Warn("token refresh failed")
		sess.RefreshError = "refresh_failed"
	} else {
		now := time.Now()
		sess.AccessToken = resp.AccessToken
		sess.ExpiresAt = tokenExpiry(resp.AccessToken, now, m.accessTTL)
	}
	if err := m.store.Put(ctx, sess); err != nil {
		m.log.WithContext(ctx).WithError(err).Warn("persist refreshed session")
	}
}

// Persist writes the session back to the store.
func (m *Manager) Persist(ctx context.Context, sess *Session) error {
	return m.store.Put(ctx, sess)
}

// SignOut destroys the session.
func (m *Manager) SignOut(ctx context.Context, id string) error {
	m.refreshMu.Delete(id)
	return m.store.Delete(ctx, id)
}

// ResendVerification asks the backend to re-send the verification email.
func (m *Manager) ResendVerification(ctx context.Context, email string) error {
	return m.client.Post(ctx, nil, "/auth/resend-verification", map[string]string{"email": email}, nil)
}

// TokenSource binds sess to the manager's refresh logic so the backend
// client can retry a 401 once with a fresh token.
func (m *Manager) TokenSource(sess *Session) backend.TokenSource {
	return &tokenSource{m: m, sess: sess}
}

type tokenSource struct {
	m    *Manager
	sess *Session
}

func (ts *tokenSource) AccessToken() string {
	return ts.sess.AccessToken
}

func (ts *tokenSource) Refresh(ctx context.Context) (string, error) {
	ts.m.refresh(ctx, ts.sess, true)
	if ts.sess.Degraded() {
		return "", ErrNoSession
	}
	return ts.sess.AccessToken, nil
}
