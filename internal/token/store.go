package token

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go-storefront-session/internal/clock"
	"go-storefront-session/internal/config"
	"go-storefront-session/internal/event"
	"go-storefront-session/internal/model"
	"go-storefront-session/internal/storage"
)

// DefaultTTL is assumed for access tokens whose expiry cannot be decoded.
const DefaultTTL = time.Hour

// Store is the only writer of the session keys in durable storage. It
// mirrors the persisted record in memory and notifies subscribers on
// every change.
type Store struct {
	storage    storage.Storage
	keys       config.TokenKeys
	clock      clock.Clock
	log        *slog.Logger
	defaultTTL time.Duration

	// mu orders writes so that storage, memory and notifications agree.
	mu    sync.Mutex
	state *event.Value[model.TokenRecord]
}

type Option func(*Store)

func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func WithDefaultTTL(d time.Duration) Option {
	return func(s *Store) { s.defaultTTL = d }
}

// NewStore loads the persisted session. A session whose access token is
// missing, undecodable or expired is cleared instead of being exposed.
func NewStore(ctx context.Context, st storage.Storage, keys config.TokenKeys, opts ...Option) *Store {
	s := &Store{
		storage:    st,
		keys:       keys,
		clock:      clock.Real(),
		log:        slog.Default(),
		defaultTTL: DefaultTTL,
		state:      event.NewValue(model.TokenRecord{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "token_store")

	s.load(ctx)
	return s
}

func (s *Store) load(ctx context.Context) {
	accessToken := s.read(ctx, s.keys.Token)
	if accessToken == "" {
		if s.read(ctx, s.keys.Refresh) != "" || s.read(ctx, s.keys.User) != "" {
			s.log.Debug("discarding partial session without access token")
			s.remove(ctx)
		}
		return
	}

	if s.IsTokenExpired(accessToken) {
		s.log.Info("persisted access token expired; clearing session")
		s.remove(ctx)
		return
	}

	record := model.TokenRecord{
		AccessToken:  accessToken,
		RefreshToken: s.read(ctx, s.keys.Refresh),
	}

	if raw := s.read(ctx, s.keys.Expiration); raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			record.ExpiresAt = time.UnixMilli(ms)
		}
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = s.expiryFor(accessToken)
	}

	if raw := s.read(ctx, s.keys.User); raw != "" {
		var user model.User
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			s.log.Warn("cached user snapshot is corrupted", "error", err)
		} else {
			record.User = &user
		}
	}

	s.state.Set(record)
}

// SetTokens persists the whole record in one write and publishes it. An
// empty access token clears the session. A zero ExpiresAt is derived from
// the token's exp claim, or from the default TTL when it has none.
func (s *Store) SetTokens(ctx context.Context, record model.TokenRecord) {
	if record.Empty() {
		s.ClearTokens(ctx)
		return
	}

	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = s.expiryFor(record.AccessToken)
	}
	if record.User != nil {
		user := *record.User
		record.User = &user
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.persist(ctx, record)
	s.state.Set(record)
}

// Rotate applies next only while the session still holds the refresh token
// previousRefresh, and reports whether it did. An empty next clears the
// session. A refresh that raced with a logout or a new login is dropped.
func (s *Store) Rotate(ctx context.Context, previousRefresh string, next model.TokenRecord) bool {
	if !next.Empty() && next.ExpiresAt.IsZero() {
		next.ExpiresAt = s.expiryFor(next.AccessToken)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Get().RefreshToken != previousRefresh {
		return false
	}

	if next.Empty() {
		s.remove(ctx)
		s.state.Set(model.TokenRecord{})
		return true
	}

	s.persist(ctx, next)
	s.state.Set(next)
	return true
}

// ClearTokens removes the session from storage and memory. Clearing an
// empty store only re-notifies subscribers.
func (s *Store) ClearTokens(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remove(ctx)
	s.state.Set(model.TokenRecord{})
}

// UpdateUser replaces the cached user snapshot of the current session.
func (s *Store) UpdateUser(ctx context.Context, user *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.state.Get()
	if record.Empty() {
		s.log.Debug("ignoring user update without a session")
		return
	}

	if user != nil {
		copied := *user
		user = &copied
	}
	record.User = user

	if err := s.storage.Set(ctx, s.keys.User, encodeUser(user)); err != nil {
		s.log.Error("failed to persist user snapshot", "error", err)
	}

	s.state.Set(record)
}

func (s *Store) Record() model.TokenRecord {
	return s.state.Get()
}

func (s *Store) Token() string {
	return s.state.Get().AccessToken
}

func (s *Store) RefreshToken() string {
	return s.state.Get().RefreshToken
}

func (s *Store) CurrentUser() *model.User {
	user := s.state.Get().User
	if user == nil {
		return nil
	}

	copied := *user
	return &copied
}

// IsAuthenticated reports whether a token is held and it has not expired.
func (s *Store) IsAuthenticated() bool {
	token := s.Token()
	return token != "" && !s.IsTokenExpired(token)
}

// Subscribe calls fn with every later record. Subscribers run while the
// store's write lock is held and must not write to the store themselves.
func (s *Store) Subscribe(fn func(model.TokenRecord)) func() {
	return s.state.Subscribe(fn)
}

func (s *Store) Now() time.Time {
	return s.clock.Now()
}

func (s *Store) expiryFor(token string) time.Time {
	if exp, ok := Expiration(token); ok {
		return exp
	}

	return s.clock.Now().Add(s.defaultTTL)
}

func (s *Store) read(ctx context.Context, key string) string {
	value, ok, err := s.storage.Get(ctx, key)
	if err != nil {
		s.log.Warn("failed to read session key", "key", key, "error", err)
		return ""
	}
	if !ok {
		return ""
	}

	return value
}

func (s *Store) persist(ctx context.Context, record model.TokenRecord) {
	values := map[string]string{
		s.keys.Token:      record.AccessToken,
		s.keys.Refresh:    record.RefreshToken,
		s.keys.Expiration: strconv.FormatInt(record.ExpiresAt.UnixMilli(), 10),
		s.keys.User:       encodeUser(record.User),
	}
	if err := s.storage.SetMany(ctx, values); err != nil {
		s.log.Error("failed to persist session", "error", err)
	}
}

func (s *Store) remove(ctx context.Context) {
	if err := s.storage.Remove(ctx, s.keys.All()...); err != nil {
		s.log.Error("failed to remove session", "error", err)
	}
}

func encodeUser(user *model.User) string {
	if user == nil {
		return ""
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return ""
	}

	return string(raw)
}
