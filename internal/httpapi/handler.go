// Package httpapi exposes the browser-facing REST surface of the BFF.
package httpapi

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jawad0110/taqa-bff/internal/backend"
	"github.com/jawad0110/taqa-bff/internal/cart"
	"github.com/jawad0110/taqa-bff/internal/errors"
	"github.com/jawad0110/taqa-bff/internal/logging"
	"github.com/jawad0110/taqa-bff/internal/metrics"
	"github.com/jawad0110/taqa-bff/internal/middleware"
	"github.com/jawad0110/taqa-bff/internal/session"
	"github.com/jawad0110/taqa-bff/internal/wishlist"
)

// Handler bundles the BFF's HTTP endpoints.
type Handler struct {
	backend   *backend.Client
	sessions  *session.Manager
	carts     *cart.Registry
	wishlists *wishlist.Registry
	metrics   *metrics.Metrics
	log       *logging.Logger

	cookieName      string
	sessionLifetime time.Duration
	startedAt       time.Time
}

// Config wires the handler's collaborators.
type Config struct {
	Backend         *backend.Client
	Sessions        *session.Manager
	Carts           *cart.Registry
	Wishlists       *wishlist.Registry
	Metrics         *metrics.Metrics
	Log             *logging.Logger
	CookieName      string
	SessionLifetime time.Duration
}

// New creates the handler.
func New(cfg Config) *Handler {
	log := cfg.Log
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{
		backend:         cfg.Backend,
		sessions:        cfg.Sessions,
		carts:           cfg.Carts,
		wishlists:       cfg.Wishlists,
		metrics:         cfg.Metrics,
		log:             log,
		cookieName:      cfg.CookieName,
		sessionLifetime: cfg.SessionLifetime,
		startedAt:       time.Now(),
	}
}

// Routes mounts every endpoint on a chi router with the standard middleware
// chain.
func (h *Handler) Routes(resolver *middleware.SessionResolver, cors *middleware.CORSMiddleware, limiter *middleware.RateLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogger(h.log))
	if h.metrics != nil {
		r.Use(middleware.Instrument(h.metrics))
	}
	if cors != nil {
		r.Use(cors.Handler)
	}
	if resolver != nil {
		r.Use(resolver.Handler)
	}
	if limiter != nil {
		r.Use(limiter.Handler)
	}

	r.Get("/healthz", h.health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signin", h.signIn)
			r.Post("/signout", h.signOut)
			r.Post("/resend-verification", h.resendVerification)
			r.Get("/session", h.sessionInfo)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.getCart)
			r.Post("/", h.addToCart)
			r.Delete("/", h.clearCart)
			r.Get("/totals", h.cartTotals)
			r.Patch("/items/{itemID}", h.updateCartItem)
			r.Delete("/items/{itemID}", h.removeCartItem)
		})

		r.Post("/checkout", h.checkout)
		r.Get("/shipping-rates", h.shippingRates)

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", h.getWishlist)
			r.Post("/check", h.checkWishlist)
			r.Put("/{productUID}", h.addToWishlist)
			r.Delete("/{productUID}", h.removeFromWishlist)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/status", h.adminStatus)

			r.Get("/products", h.adminForward("/admin/products"))
			r.Post("/products", h.adminForward("/admin/products"))
			r.Get("/products/{uid}", h.adminForwardUID("/admin/products"))
			r.Patch("/products/{uid}", h.adminForwardUID("/admin/products"))
			r.Delete("/products/{uid}", h.adminForwardUID("/admin/products"))

			r.Get("/orders", h.adminForward("/admin/orders"))
			r.Get("/orders/{uid}", h.adminForwardUID("/admin/orders"))
			r.Patch("/orders/{uid}", h.adminForwardUID("/admin/orders"))

			r.Get("/discounts", h.adminForward("/admin/discounts"))
			r.Post("/discounts", h.adminForward("/admin/discounts"))
			r.Delete("/discounts/{uid}", h.adminForwardUID("/admin/discounts"))

			r.Get("/shipping-rates", h.adminForward("/admin/shipping-rates"))
			r.Post("/shipping-rates", h.adminForward("/admin/shipping-rates"))
			r.Patch("/shipping-rates/{uid}", h.adminForwardUID("/admin/shipping-rates"))
			r.Delete("/shipping-rates/{uid}", h.adminForwardUID("/admin/shipping-rates"))
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

type profileResponse struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

func profileOf(sess *session.Session) profileResponse {
	return profileResponse{
		UserID:    sess.UserID,
		Email:     sess.Email,
		FirstName: sess.FirstName,
		LastName:  sess.LastName,
		Role:      sess.Role,
	}
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, errors.InvalidInput("invalid request body"))
		return
	}
	if payload.Email == "" || payload.Password == "" {
		var missing []string
		if payload.Email == "" {
			missing = append(missing, "email")
		}
		if payload.Password == "" {
			missing = append(missing, "password")
		}
		h.writeError(w, r, errors.InvalidInput("email and password are required", missing...))
		return
	}

	sess, err := h.sessions.SignIn(r.Context(), payload.Email, payload.Password)
	if err != nil {
		h.writeError(w, r, signInError(err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(h.sessionLifetime / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, profileOf(sess))
}

// signInError maps the session taxonomy onto distinct client-facing errors.
// The codes drive which recovery action the UI offers; unknown-user and
// unverified-account must stay distinguishable.
func signInError(err error) *errors.ServiceError {
	switch {
	case stderrors.Is(err, session.ErrUserNotFound):
		return &errors.ServiceError{
			Code:       "USER_NOT_FOUND",
			Message:    session.ErrUserNotFound.Error(),
			HTTPStatus: http.StatusNotFound,
		}
	case stderrors.Is(err, session.ErrAccountUnverified):
		return &errors.ServiceError{
			Code:       "ACCOUNT_UNVERIFIED",
			Message:    session.ErrAccountUnverified.Error(),
			HTTPStatus: http.StatusForbidden,
		}
	case stderrors.Is(err, session.ErrInvalidCredentials):
		return &errors.ServiceError{
			Code:       "INVALID_CREDENTIALS",
			Message:    session.ErrInvalidCredentials.Error(),
			HTTPStatus: http.StatusUnauthorized,
		}
	default:
		return &errors.ServiceError{
			Code:       "AUTH_UNAVAILABLE",
			Message:    session.ErrAuthUnavailable.Error(),
			HTTPStatus: http.StatusBadGateway,
		}
	}
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFrom(r.Context())
	if sess != nil {
		if err := h.sessions.SignOut(r.Context(), sess.ID); err != nil {
			h.log.WithContext(r.Context()).WithError(err).Warn("sign-out failed")
		}
		h.carts.Drop(sess.ID)
		h.wishlists.Drop(sess.ID)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

func (h *Handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil || payload.Email == "" {
		h.writeError(w, r, errors.InvalidInput("email is required", "email"))
		return
	}
	if err := h.sessions.ResendVerification(r.Context(), payload.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verification_sent"})
}

func (h *Handler) sessionInfo(w http.ResponseWriter, r *http.Request) {
	sess, svcErr := middleware.RequireSession(r.Context())
	if svcErr != nil {
		h.writeError(w, r, svcErr)
		return
	}
	writeJSON(w, http.StatusOK, profileOf(sess))
}

// ---------------------------------------------------------------------------
// Cart
// ---------------------------------------------------------------------------

type cartResponse struct {
	Items  []cart.Item `json:"items"`
	Totals cart.Totals `json:"totals"`
}

func (h *Handler) cartFor(r *http.Request) (*cart.Container, backend.TokenSource, *errors.ServiceError) {
	sess, svcErr := middleware.RequireSession(r.Context())
	if svcErr != nil {
		return nil, nil, svcErr
	}
	return h.carts.For(sess.ID), h.sessions.TokenSource(sess), nil
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	container, ts, svcErr := h.cartFor(r)
	if svcErr != nil {
		h.writeError(w, r, svcErr)
		return
	}
	if err := container.EnsureHydrated(r.Context(), ts); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Items: container.Items(), Totals: container.Totals()})
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	container, ts, svcErr := h.cartFor(r)
	if svcErr != nil {
		h.writeError(w, r, svcErr)
		return
	}

	var req cart.AddRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		h.writeError(w, r, errors.InvalidInput("invalid request body"))
		return
	}
	if req.ProductUID == "" {
		h.writeError(w, r, errors.InvalidInput("product_uid is required", "product_uid"))
		return
	}
	if req.Quantity < 1 {
		h.writeError(w, r, errors.InvalidInput("quantity must be at least 1", "quantity"))
		return
	}

	if err := container.Add(r.Context(), ts, req); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cartResponse{Items: container.Items(), Totals: container.Totals()})
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	container, ts, svcErr := h.cartFor(r)
	if svcErr != nil {
		h.writeError(w, r, svcErr)
		return
	}

	itemID := chi.URLParam(r, "itemID")
	var payload struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, errors.InvalidInput("invalid request body"))
		return
	}
	if payload.Quantity < 1 {
		h.writeError(w, r, errors.InvalidInput("quantity must be at least 1", "quantity"))
		return
	}

	if err := container.UpdateQuantity(r.Context(), ts, itemID, payload.Quantity); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Items: container.Items(), Totals: container.Totals()})
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	container, ts, svcErr := h.cartFor(r)
	if svcErr != nil {
		h.writeError(w, r, svcErr)
		return
	}
	if err := container.Remove(r.Context(), ts, chi.URLParam(r, "itemID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Items: container.Items(), Totals: container.Totals()})
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	container, ts, svcErr := h.cartFor(r)
	if svcErr != nil {
		h.writeError(w, r, svcErr)
		return
	}
	if err := container.Clear(r.Context(), ts); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Items: container.Items(), Totals: container.Totals()})
}

func (h *Handler) cartTotals(w http.ResponseWriter, r *http.Request) {
	container, ts, svcErr := h.cartFor(r)
	if svcErr != nil {
		h.writeError(w, r, svcErr)
		return
	}
	if err := container.EnsureHydrated(r.Context(), ts); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := container.RefreshTotals(r.Context(), ts); err != nil {
		// Totals are re-derivable; serve the local estimate instead of failing.
		h.log.WithContext(r.Context()).WithError(err).Warn("serving estimated cart totals")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"totals":    container.FallbackTotals(),
			"estimated": true,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"totals": container.Totals()})
}

// ---------------------------------------------------------------------------
// Wishlist
// ---------------------------------------------------------------------------

func (h *Handler) wishlistFor(r *http.Request) (*wishlist.Container, backend.TokenSource, *errors.ServiceError) {
	sess, svcErr := middleware.RequireSession(r.Context())
	if svcErr != nil {
		return nil, nil, svcErr
	}
	return h.wishlists.For(sess.ID), h.sessions.TokenSource(sess), nil
}

func (h *Handler) getWishlist(w http.ResponseWriter, r *http.Request) {
	container, ts, svcErr := h.wishlistFor(r)
	if svcErr != nil {
		h.writeError(w, r, svcErr)
		return
	}
	if err := container.Hydrate(r.Context(), ts); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"products": container.Products()})
}

func (h *Handler) checkWishlist(w http.ResponseWriter, r *http.Request) {
	container, ts, svcErr := h.wishlistFor(r)
	if svcErr != nil {
		h.writeError(w, r, svcErr)
		return
	}
	var payload struct {
		ProductUIDs []string `json:"product_uids"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil || len(payload.ProductUIDs) == 0 {
		h.writeError(w, r, errors.InvalidInput("product_uids is required", "product_uids"))
		return
	}
	result, err := container.BatchCheck(r.Context(), ts, payload.ProductUIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]map[string]bool{"wishlisted": result})
}

func (h *Handler) addToWishlist(w http.ResponseWriter, r *http.Request) {
	container, ts, svcErr := h.wishlistFor(r)
	if svcErr != nil {
		h.writeError(w, r, svcErr)
		return
	}
	productUID := chi.URLParam(r, "productUID")
	if err := container.Add(r.Context(), ts, productUID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"wishlisted": true})
}

func (h *Handler) removeFromWishlist(w http.ResponseWriter, r *http.Request) {
	container, ts, svcErr := h.wishlistFor(r)
	if svcErr != nil {
		h.writeError(w, r, svcErr)
		return
	}
	productUID := chi.URLParam(r, "productUID")
	if err := container.Remove(r.Context(), ts, productUID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"wishlisted": false})
}

// ---------------------------------------------------------------------------
// Shipping rates
// ---------------------------------------------------------------------------

func (h *Handler) shippingRates(w http.ResponseWriter, r *http.Request) {
	sess, svcErr := middleware.RequireSession(r.Context())
	if svcErr != nil {
		h.writeError(w, r, svcErr)
		return
	}
	var rates json.RawMessage
	if err := h.backend.Get(r.Context(), h.sessions.TokenSource(sess), "/shipping-rates", &rates); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, rates)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeRaw(w http.ResponseWriter, status int, data json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if len(data) > 0 {
		_, _ = w.Write(data)
	} else {
		_, _ = w.Write([]byte("null"))
	}
}

// writeError converts any error into the single client-facing envelope.
// Backend errors keep their upstream status; everything else is sanitized so
// no raw error text leaks.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *errors.ServiceError

	var apiErr *backend.APIError
	if stderrors.As(err, &apiErr) {
		if h.metrics != nil {
			h.metrics.RecordUpstreamError(strconv.Itoa(apiErr.Status))
		}
		svcErr = errors.Upstream(apiErr.Status, apiErr.Message)
	} else {
		svcErr = errors.AsService(err)
	}

	if svcErr.HTTPStatus >= 500 {
		h.log.WithContext(r.Context()).WithError(err).Error("request failed")
	}
	writeJSON(w, svcErr.HTTPStatus, map[string]*errors.ServiceError{"error": svcErr})
}
