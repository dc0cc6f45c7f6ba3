// Package app wires the storefront client together: storage, tokens,
// refresh scheduling, the session and the cart.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go-storefront-session/internal/apiclient"
	"go-storefront-session/internal/cart"
	"go-storefront-session/internal/config"
	"go-storefront-session/internal/database"
	"go-storefront-session/internal/event"
	"go-storefront-session/internal/guestcart"
	"go-storefront-session/internal/notify"
	"go-storefront-session/internal/refresh"
	"go-storefront-session/internal/session"
	"go-storefront-session/internal/storage"
	"go-storefront-session/internal/token"
)

type App struct {
	Config  *config.Config
	Log     *slog.Logger
	Bus     *event.InMemoryBus
	Relay   *notify.Relay
	Client  *apiclient.Client
	Tokens  *token.Store
	Refresh *refresh.Scheduler
	Session *session.Session
	Guest   *guestcart.Store
	Cart    *cart.Service

	stopRelay    context.CancelFunc
	relayDone    chan struct{}
	cleanupFuncs []func()

	closeOnce sync.Once
	closeErr  error
}

type Option func(*options)

type options struct {
	storage storage.Storage
	client  []apiclient.Option
}

// WithStorage bypasses the configured driver.
func WithStorage(st storage.Storage) Option {
	return func(o *options) { o.storage = st }
}

func WithClientOptions(opts ...apiclient.Option) Option {
	return func(o *options) { o.client = append(o.client, opts...) }
}

func New(ctx context.Context, cfg *config.Config, log *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = slog.Default()
	}

	a := &App{Config: cfg, Log: log}

	st := o.storage
	if st == nil {
		opened, cleanup, err := openStorage(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		st = opened
		if cleanup != nil {
			a.cleanupFuncs = append(a.cleanupFuncs, cleanup)
		}
	}

	a.Bus = event.NewBus()
	a.Relay = notify.NewRelay(a.Bus, log)
	relayCtx, stopRelay := context.WithCancel(context.Background())
	a.stopRelay = stopRelay
	a.relayDone = make(chan struct{})
	go func() {
		defer close(a.relayDone)
		a.Relay.Run(relayCtx)
	}()

	clientOpts := []apiclient.Option{
		apiclient.WithTimeout(cfg.APITimeout),
		apiclient.WithRateLimit(cfg.APIRateLimitRPM),
		apiclient.WithLogger(log),
	}
	a.Client = apiclient.New(cfg.APIBaseURL, append(clientOpts, o.client...)...)

	a.Tokens = token.NewStore(ctx, st, cfg.TokenKeys, token.WithLogger(log))
	a.Refresh = refresh.New(a.Tokens, a.Client, event.NewBusNotifier(a.Bus),
		refresh.WithBuffer(cfg.TokenRefreshBuffer),
		refresh.WithLogger(log),
		refresh.WithBus(a.Bus),
	)
	a.Client.SetAuth(a.Tokens, a.Refresh)

	a.Session = session.New(ctx, a.Tokens, a.Client, a.Refresh, session.WithBus(a.Bus), session.WithLogger(log))
	a.Refresh.Start()

	a.Guest = guestcart.New(st, guestcart.WithTTL(cfg.CartTTL), guestcart.WithLogger(log))
	a.Cart = cart.New(ctx, a.Session, a.Client, a.Guest,
		cart.WithBus(a.Bus),
		cart.WithLogger(log),
		cart.WithBreakerTimeout(cfg.CartSyncBreakerTimeout),
		cart.WithJobTimeout(cfg.APITimeout*2),
	)

	return a, nil
}

// Close waits for background cart work, stops the timers and releases
// storage. Cart work still running when ctx ends is abandoned. Calls after
// the first return the first result.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() { a.closeErr = a.close(ctx) })
	return a.closeErr
}

func (a *App) close(ctx context.Context) error {
	var errs []error
	if err := a.Cart.Settle(ctx); err != nil {
		errs = append(errs, fmt.Errorf("settle cart: %w", err))
	}

	a.Cart.Close()
	a.Session.Close()
	a.Refresh.Stop()

	if err := a.Relay.Drain(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain events: %w", err))
	}
	a.stopRelay()
	<-a.relayDone

	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}

	return errors.Join(errs...)
}

func openStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Storage, func(), error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		return storage.NewMemory(), nil, nil

	case config.StorageFile:
		st, err := storage.NewFile(cfg.StorageFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open state file: %w", err)
		}
		return st, nil, nil

	case config.StorageRedis:
		client, err := storage.NewRedisClient(ctx, storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Timeout:  cfg.StorageTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Debug("redis storage ready", "addr", cfg.RedisAddr, "namespace", cfg.StorageNamespace)
		return storage.NewRedis(client, cfg.StorageNamespace), func() { _ = client.Close() }, nil

	case config.StoragePostgres:
		db, err := database.Open(ctx, database.ConfigFrom(cfg, log))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		log.Debug("postgres storage ready", "namespace", cfg.StorageNamespace)
		return storage.NewPostgres(db.Pool, cfg.StorageNamespace, cfg.StorageTimeout), db.Close, nil
	}

	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}
