// Package app ties the BFF's components together and manages their lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/jawad0110/taqa-bff/internal/backend"
	"github.com/jawad0110/taqa-bff/internal/cart"
	"github.com/jawad0110/taqa-bff/internal/config"
	"github.com/jawad0110/taqa-bff/internal/httpapi"
	"github.com/jawad0110/taqa-bff/internal/logging"
	"github.com/jawad0110/taqa-bff/internal/metrics"
	"github.com/jawad0110/taqa-bff/internal/middleware"
	"github.com/jawad0110/taqa-bff/internal/session"
	"github.com/jawad0110/taqa-bff/internal/wishlist"
)

// Application owns the BFF's long-lived components.
type Application struct {
	cfg *config.Config
	log *logging.Logger

	Backend   *backend.Client
	Sessions  *session.Manager
	Carts     *cart.Registry
	Wishlists *wishlist.Registry
	Metrics   *metrics.Metrics

	memStore   *session.MemoryStore
	redisStore *session.RedisStore
	server     *http.Server
}

// New builds a fully initialised application. An empty Redis address selects
// the in-memory session store.
func New(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.NewDefault("app")
	}

	client := backend.New(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout.Std(),
	}, log.WithComponent("backend"))

	a := &Application{
		cfg:     cfg,
		log:     log,
		Backend: client,
		Metrics: metrics.New(),
	}

	var store session.Store
	if cfg.Redis.Addr != "" {
		redisStore, err := session.NewRedisStore(ctx, &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Session.Lifetime.Std())
		if err != nil {
			return nil, fmt.Errorf("redis session store: %w", err)
		}
		a.redisStore = redisStore
		store = redisStore
	} else {
		a.memStore = session.NewMemoryStore(cfg.Session.Lifetime.Std())
		store = a.memStore
	}

	a.Sessions = session.NewManager(store, client, cfg.Session.AccessTokenTTL.Std(), log.WithComponent("session"))
	a.Carts = cart.NewRegistry(client, log.WithComponent("cart"))
	a.Wishlists = wishlist.NewRegistry(client)
	return a, nil
}

// Handler builds the full HTTP surface with the standard middleware chain.
func (a *Application) Handler() http.Handler {
	h := httpapi.New(httpapi.Config{
		Backend:         a.Backend,
		Sessions:        a.Sessions,
		Carts:           a.Carts,
		Wishlists:       a.Wishlists,
		Metrics:         a.Metrics,
		Log:             a.log.WithComponent("httpapi"),
		CookieName:      a.cfg.Session.CookieName,
		SessionLifetime: a.cfg.Session.Lifetime.Std(),
	})

	resolver := middleware.NewSessionResolver(a.Sessions, a.cfg.Session.CookieName, a.log.WithComponent("auth"))
	cors := middleware.NewCORSMiddleware(a.cfg.AllowedOrigins)
	limiter := middleware.NewRateLimiter(a.cfg.RateLimit.RequestsPerSecond, a.cfg.RateLimit.Burst, a.log.WithComponent("ratelimit"))

	return h.Routes(resolver, cors, limiter)
}

// Start begins serving; it blocks until the listener fails or Stop is called.
func (a *Application) Start() error {
	if a.memStore != nil {
		if err := a.memStore.StartSweeper(a.cfg.Session.SweepInterval.Std()); err != nil {
			return fmt.Errorf("start session sweeper: %w", err)
		}
	}

	a.server = &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.log.Infof("listening on %s", a.cfg.ListenAddr)
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the application down gracefully.
func (a *Application) Stop(ctx context.Context) error {
	var firstErr error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if a.memStore != nil {
		a.memStore.StopSweeper()
	}
	if a.redisStore != nil {
		if err := a.redisStore.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
