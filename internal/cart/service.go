// Package cart serves one cart whether or not the visitor is signed in.
// Guests use the local cart; signed-in users get an in-memory copy of the
// server cart that is pushed back in the background after each change.
package cart

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"go-storefront-session/internal/clock"
	"go-storefront-session/internal/event"
	"go-storefront-session/internal/model"
)

const DefaultJobTimeout = 30 * time.Second

type Session interface {
	IsAuthenticated() bool
	CurrentUser() *model.User
	SubscribeUser(fn func(*model.User)) func()
}

type API interface {
	GetCart(ctx context.Context) (model.CartData, error)
	PutCart(ctx context.Context, lines []model.CartLine) error
}

// LocalStore is the guest cart plus the signed-in mirror.
type LocalStore interface {
	Cart(ctx context.Context) []model.LocalCartEntry
	Add(ctx context.Context, product model.Product, qty int) []model.LocalCartEntry
	UpdateQuantity(ctx context.Context, productID string, qty int) []model.LocalCartEntry
	Remove(ctx context.Context, productID string) []model.LocalCartEntry
	Clear(ctx context.Context)
	ItemCount(ctx context.Context) int
	Total(ctx context.Context) float64
	IsEmpty(ctx context.Context) bool
	IsExpired(ctx context.Context) bool
	ExpiryDate(ctx context.Context) (time.Time, bool)
	DaysUntilExpiry(ctx context.Context) int
	SaveMirror(ctx context.Context, userID string, items []model.CartItem)
	LoadMirror(ctx context.Context, userID string) ([]model.CartItem, bool)
	ClearMirror(ctx context.Context)
}

type Service struct {
	session Session
	api     API
	local   LocalStore
	bus     event.Bus
	clock   clock.Clock
	log     *slog.Logger
	breaker *gobreaker.CircuitBreaker

	breakerTimeout time.Duration
	jobTimeout     time.Duration

	// mu serializes read-modify-write of items and guards the fields below.
	mu    sync.Mutex
	items *event.Value[[]model.CartItem]
	// loadedFor is the user whose server cart items is based on, empty
	// until the first fetch for the current session succeeds.
	loadedFor string
	pending   []pendingChange

	worker      *worker
	unsubscribe func()
}

type Option func(*Service)

func WithBus(b event.Bus) Option {
	return func(s *Service) { s.bus = b }
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithBreakerTimeout sets how long the breaker stays open before probing
// the backend again.
func WithBreakerTimeout(d time.Duration) Option {
	return func(s *Service) { s.breakerTimeout = d }
}

func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) { s.jobTimeout = d }
}

// New loads the cart for the current session and starts following sign-in
// and sign-out.
func New(ctx context.Context, session Session, api API, local LocalStore, opts ...Option) *Service {
	s := &Service{
		session:        session,
		api:            api,
		local:          local,
		bus:            event.Discard{},
		clock:          clock.Real(),
		log:            slog.Default(),
		breakerTimeout: 30 * time.Second,
		jobTimeout:     DefaultJobTimeout,
		items:          event.NewValue([]model.CartItem{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "cart")
	s.breaker = s.newBreaker()
	s.worker = newWorker(s.jobTimeout, s.log)

	if user := session.CurrentUser(); user != nil && session.IsAuthenticated() {
		if mirror, ok := local.LoadMirror(ctx, user.ID); ok {
			s.items.Set(mirror)
		}
		userID := user.ID
		s.worker.enqueue(jobReload, func(ctx context.Context) { s.reload(ctx, userID) })
	} else {
		s.items.Set(model.CartItems(local.Cart(ctx)))
	}

	s.unsubscribe = session.SubscribeUser(s.onUserChange)
	return s
}

// onUserChange runs on the session's goroutine, so it only queues work.
func (s *Service) onUserChange(user *model.User) {
	if user == nil {
		s.worker.enqueue(jobLogout, s.logoutTransition)
		return
	}

	userID := user.ID
	s.worker.enqueue(jobLogin, func(ctx context.Context) { s.loginTransition(ctx, userID) })
}

// Close stops following the session and waits for queued work to finish.
func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.worker.close()
}

// Settle blocks until every job queued before the call has run.
func (s *Service) Settle(ctx context.Context) error {
	return s.worker.barrier(ctx)
}

// Reload queues a fetch of the authoritative cart for a signed-in user.
func (s *Service) Reload(ctx context.Context) {
	user := s.session.CurrentUser()
	if user == nil || !s.session.IsAuthenticated() {
		s.mu.Lock()
		s.items.Set(model.CartItems(s.local.Cart(ctx)))
		s.mu.Unlock()
		return
	}

	userID := user.ID
	s.worker.enqueue(jobReload, func(ctx context.Context) { s.reload(ctx, userID) })
}

// Subscribe calls fn with the item list after every change. fn runs while
// the cart is locked and must not mutate the cart itself.
func (s *Service) Subscribe(fn func([]model.CartItem)) func() {
	return s.items.Subscribe(fn)
}
