package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"go-storefront-session/internal/clock"
	"go-storefront-session/internal/event"
	"go-storefront-session/internal/model"
)

const (
	DefaultBuffer = 5 * time.Minute

	sessionExpiredTitle   = "Session Expired"
	sessionExpiredMessage = "Your session has expired. Please log in again."
)

type State int

const (
	Idle State = iota
	Armed
	Refreshing
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Refreshing:
		return "refreshing"
	default:
		return "idle"
	}
}

// TokenStore is the part of the token store the scheduler drives.
type TokenStore interface {
	Record() model.TokenRecord
	RefreshToken() string
	TokenExpiration(token string) (time.Time, bool)
	Rotate(ctx context.Context, previousRefresh string, next model.TokenRecord) bool
	Subscribe(fn func(model.TokenRecord)) func()
}

// Refresher exchanges a refresh token for a new token pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (model.AuthPayload, error)
}

// Scheduler keeps the access token fresh. It arms a one-shot timer ahead
// of expiry and funnels every refresh, timer driven or on demand, through
// one in-flight call.
type Scheduler struct {
	store    TokenStore
	api      Refresher
	notifier event.Notifier
	bus      event.Bus
	clock    clock.Clock
	buffer   time.Duration
	log      *slog.Logger

	flight singleflight.Group

	mu          sync.Mutex
	timer       clock.Timer
	deadline    time.Time
	generation  uint64
	refreshing  bool
	running     bool
	unsubscribe func()
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithBuffer(d time.Duration) Option {
	return func(s *Scheduler) { s.buffer = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

func WithBus(b event.Bus) Option {
	return func(s *Scheduler) { s.bus = b }
}

func New(store TokenStore, api Refresher, notifier event.Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		api:      api,
		notifier: notifier,
		bus:      event.Discard{},
		clock:    clock.Real(),
		buffer:   DefaultBuffer,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "token_refresh")

	return s
}

// Start follows token changes and arms the timer for the current session.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	unsubscribe := s.store.Subscribe(s.reschedule)

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	s.reschedule(s.store.Record())
}

// Stop cancels any pending timer and stops following token changes. A
// refresh already on the wire completes but nothing new is scheduled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.running = false
	s.cancelTimerLocked()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// reschedule runs on every token change. The generation bump invalidates a
// timer that has already fired but not yet taken the lock.
func (s *Scheduler) reschedule(record model.TokenRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelTimerLocked()
	if !s.running || record.Empty() {
		return
	}

	exp, ok := s.store.TokenExpiration(record.AccessToken)
	if !ok {
		s.log.Debug("token has no decodable expiry; not scheduling refresh")
		return
	}

	generation := s.generation
	delay := exp.Sub(s.clock.Now()) - s.buffer
	if delay <= 0 {
		s.log.Debug("token inside refresh window; refreshing now", "expires_at", exp)
		go s.fire(generation)
		return
	}

	s.deadline = s.clock.Now().Add(delay)
	s.timer = s.clock.AfterFunc(delay, func() { s.fire(generation) })
	s.log.Debug("token refresh armed", "delay", delay.Round(time.Second))
}

func (s *Scheduler) cancelTimerLocked() {
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.deadline = time.Time{}
}

func (s *Scheduler) fire(generation uint64) {
	s.mu.Lock()
	if generation != s.generation || !s.running {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.deadline = time.Time{}
	s.mu.Unlock()

	_, err := s.RefreshToken(context.Background())
	switch {
	case err == nil, errors.Is(err, model.ErrSessionChanged):
	case errors.Is(err, model.ErrNoRefreshToken):
		s.log.Warn("token expiring without a refresh token; ending session")
		s.expire(s.store.RefreshToken())
	default:
		s.log.Warn("scheduled token refresh failed", "error", err)
	}
}

// RefreshToken exchanges the refresh token for a new pair. Concurrent
// callers share one backend call and its outcome. A caller whose ctx ends
// stops waiting but the shared call carries on for the others.
//
// On failure the session is cleared and the user is told it expired.
func (s *Scheduler) RefreshToken(ctx context.Context) (model.TokenRecord, error) {
	refreshToken := s.store.RefreshToken()
	if refreshToken == "" && !s.InProgress() {
		return model.TokenRecord{}, model.ErrNoRefreshToken
	}

	ch := s.flight.DoChan("refresh", func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return model.TokenRecord{}, res.Err
		}
		return res.Val.(model.TokenRecord), nil
	case <-ctx.Done():
		return model.TokenRecord{}, ctx.Err()
	}
}

// ForceRefresh refreshes regardless of how long the token has left.
func (s *Scheduler) ForceRefresh(ctx context.Context) (model.TokenRecord, error) {
	return s.RefreshToken(ctx)
}

func (s *Scheduler) refresh(ctx context.Context) (model.TokenRecord, error) {
	used := s.store.RefreshToken()
	if used == "" {
		return model.TokenRecord{}, model.ErrNoRefreshToken
	}

	s.setRefreshing(true)
	defer s.setRefreshing(false)

	payload, err := s.api.Refresh(ctx, used)
	if err == nil && payload.Token == "" {
		err = model.ErrUnexpectedResult
	}
	if err != nil {
		if !s.expire(used) {
			s.log.Debug("discarding failed refresh for a replaced session")
			return model.TokenRecord{}, model.ErrSessionChanged
		}
		s.log.Warn("token refresh rejected; session cleared", "error", err)
		return model.TokenRecord{}, fmt.Errorf("%w: %w", model.ErrRefreshRejected, err)
	}

	current := s.store.Record()
	next := model.TokenRecord{
		AccessToken:  payload.Token,
		RefreshToken: used,
		User:         payload.User,
	}
	if payload.RefreshToken != "" {
		next.RefreshToken = payload.RefreshToken
	}
	if next.User == nil {
		next.User = current.User
	}

	if !s.store.Rotate(ctx, used, next) {
		s.log.Debug("discarding refresh result for a replaced session")
		return model.TokenRecord{}, model.ErrSessionChanged
	}

	record := s.store.Record()
	s.bus.Publish(event.Event{Type: event.TypeTokenRefreshed, UserID: userID(record.User)})
	s.log.Info("access token refreshed", "expires_at", record.ExpiresAt)

	return record, nil
}

// expire clears the session still tied to refreshToken and warns the user.
func (s *Scheduler) expire(refreshToken string) bool {
	if !s.store.Rotate(context.Background(), refreshToken, model.TokenRecord{}) {
		return false
	}

	if s.notifier != nil {
		s.notifier.Warning(sessionExpiredTitle, sessionExpiredMessage)
	}

	return true
}

func (s *Scheduler) setRefreshing(v bool) {
	s.mu.Lock()
	s.refreshing = v
	s.mu.Unlock()
}

func (s *Scheduler) InProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.refreshing
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.refreshing:
		return Refreshing
	case s.timer != nil:
		return Armed
	default:
		return Idle
	}
}

// TimeUntilNextRefresh is zero when no refresh is armed.
func (s *Scheduler) TimeUntilNextRefresh() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer == nil {
		return 0
	}

	remaining := s.deadline.Sub(s.clock.Now())
	if remaining < 0 {
		return 0
	}

	return remaining
}

func userID(u *model.User) string {
	if u == nil {
		return ""
	}

	return u.ID
}
