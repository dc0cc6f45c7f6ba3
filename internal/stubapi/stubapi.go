// Package stubapi assembles the reference storefront backend used for
// local development and integration tests.
package stubapi

import (
	"fmt"
	"log/slog"
	"net/http"

	"go-storefront-session/internal/clock"
	"go-storefront-session/internal/config"
	"go-storefront-session/internal/stubapi/handler"
	"go-storefront-session/internal/stubapi/middleware"
	"go-storefront-session/internal/stubapi/router"
	"go-storefront-session/internal/stubapi/service"
)

type Option func(*options)

type options struct {
	clock    clock.Clock
	hashCost int
	log      *slog.Logger
}

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithHashCost lowers the bcrypt cost, for tests.
func WithHashCost(cost int) Option {
	return func(o *options) { o.hashCost = cost }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

func New(cfg config.StubConfig, opts ...Option) (http.Handler, error) {
	o := options{clock: clock.Real(), hashCost: 12, log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	authService, err := service.NewAuthService(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL,
		service.WithClock(o.clock), service.WithHashCost(o.hashCost))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}

	catalog := service.DefaultCatalog()
	cartService := service.NewCartService(catalog, o.clock)

	return router.New(router.Options{
		CORSOrigins:      cfg.CORSOrigins,
		RateLimitRPM:     cfg.RateLimitRPM,
		AuthRateLimitRPM: cfg.AuthRateLimitRPM,
		RequestTimeout:   cfg.RequestTimeout,
		Logger:           o.log,
	}, middleware.NewAuthMiddleware(authService), router.Handlers{
		Auth: handler.NewAuthHandler(authService),
		Cart: handler.NewCartHandler(cartService, catalog),
	}), nil
}
