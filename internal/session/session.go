package session

import (
	"context"
	"log/slog"
	"reflect"
	"slices"

	"go-storefront-session/internal/event"
	"go-storefront-session/internal/model"
)

// API is the slice of the backend client the session needs.
type API interface {
	Login(ctx context.Context, req model.LoginRequest) (model.AuthPayload, error)
	Register(ctx context.Context, req model.RegisterRequest) (model.AuthPayload, error)
	Logout(ctx context.Context, refreshToken string) error
	Profile(ctx context.Context) (model.User, error)
	UpdateProfile(ctx context.Context, update model.ProfileUpdate) (model.User, error)
	ChangePassword(ctx context.Context, req model.ChangePasswordRequest) error
}

type TokenStore interface {
	SetTokens(ctx context.Context, record model.TokenRecord)
	ClearTokens(ctx context.Context)
	UpdateUser(ctx context.Context, user *model.User)
	Record() model.TokenRecord
	RefreshToken() string
	CurrentUser() *model.User
	IsAuthenticated() bool
	Subscribe(fn func(model.TokenRecord)) func()
}

type Refresher interface {
	RefreshToken(ctx context.Context) (model.TokenRecord, error)
}

// Session presents login, logout and profile calls and publishes the
// current user. Tokens live in the token store; the session never writes
// storage itself.
type Session struct {
	tokens    TokenStore
	api       API
	refresher Refresher
	bus       event.Bus
	log       *slog.Logger

	user        *event.Value[*model.User]
	unsubscribe func()
}

type Option func(*Session)

func WithBus(b event.Bus) Option {
	return func(s *Session) { s.bus = b }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// New restores the user from the token store. Without a valid session the
// store is cleared locally so no half-authenticated state survives.
func New(ctx context.Context, tokens TokenStore, api API, refresher Refresher, opts ...Option) *Session {
	s := &Session{
		tokens:    tokens,
		api:       api,
		refresher: refresher,
		bus:       event.Discard{},
		log:       slog.Default(),
		user:      event.NewValue[*model.User](nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "session")

	if tokens.IsAuthenticated() && tokens.CurrentUser() != nil {
		s.user.Set(tokens.CurrentUser())
	} else if !tokens.Record().Empty() {
		s.log.Info("stored session is not usable; clearing it")
		tokens.ClearTokens(ctx)
	}

	s.unsubscribe = tokens.Subscribe(s.follow)
	return s
}

// follow republishes the user whenever the token store's snapshot changes.
func (s *Session) follow(record model.TokenRecord) {
	next := record.User
	if record.Empty() {
		next = nil
	}

	if reflect.DeepEqual(s.user.Get(), next) {
		return
	}

	if next != nil {
		copied := *next
		next = &copied
	}
	s.user.Set(next)
}

func (s *Session) Login(ctx context.Context, req model.LoginRequest) (*model.User, error) {
	payload, err := s.api.Login(ctx, req)
	if err != nil {
		return nil, err
	}

	return s.establish(ctx, payload)
}

func (s *Session) Register(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	payload, err := s.api.Register(ctx, req)
	if err != nil {
		return nil, err
	}

	return s.establish(ctx, payload)
}

func (s *Session) establish(ctx context.Context, payload model.AuthPayload) (*model.User, error) {
	if payload.Token == "" || payload.User == nil {
		return nil, model.ErrUnexpectedResult
	}

	refreshToken := payload.RefreshToken
	if refreshToken == "" {
		refreshToken = s.tokens.RefreshToken()
	}

	s.tokens.SetTokens(ctx, model.TokenRecord{
		AccessToken:  payload.Token,
		RefreshToken: refreshToken,
		User:         payload.User,
	})

	s.bus.Publish(event.Event{Type: event.TypeLoggedIn, UserID: payload.User.ID})
	s.log.Info("signed in", "user_id", payload.User.ID, "role", payload.User.Role)

	return s.CurrentUser(), nil
}

// Logout asks the backend to revoke the refresh token and always ends the
// local session, whatever the backend says.
func (s *Session) Logout(ctx context.Context) {
	userID := ""
	if u := s.CurrentUser(); u != nil {
		userID = u.ID
	}

	if refreshToken := s.tokens.RefreshToken(); refreshToken != "" {
		if err := s.api.Logout(ctx, refreshToken); err != nil {
			s.log.Warn("backend logout failed; clearing local session", "error", err)
		}
	}

	// follow publishes the signed-out user.
	s.tokens.ClearTokens(ctx)

	s.bus.Publish(event.Event{Type: event.TypeLoggedOut, UserID: userID})
}

func (s *Session) Profile(ctx context.Context) (*model.User, error) {
	user, err := s.api.Profile(ctx)
	if err != nil {
		return nil, err
	}

	s.tokens.UpdateUser(ctx, &user)
	return &user, nil
}

func (s *Session) UpdateProfile(ctx context.Context, update model.ProfileUpdate) (*model.User, error) {
	user, err := s.api.UpdateProfile(ctx, update)
	if err != nil {
		return nil, err
	}

	s.tokens.UpdateUser(ctx, &user)
	return &user, nil
}

func (s *Session) ChangePassword(ctx context.Context, req model.ChangePasswordRequest) error {
	return s.api.ChangePassword(ctx, req)
}

func (s *Session) RefreshToken(ctx context.Context) (model.TokenRecord, error) {
	return s.refresher.RefreshToken(ctx)
}

func (s *Session) CurrentUser() *model.User {
	user := s.user.Get()
	if user == nil {
		return nil
	}

	copied := *user
	return &copied
}

// IsAuthenticated needs both a live token and a known user.
func (s *Session) IsAuthenticated() bool {
	return s.tokens.IsAuthenticated() && s.user.Get() != nil
}

func (s *Session) IsAdmin() bool {
	return s.HasRole(model.RoleAdmin)
}

// HasRole reports whether the signed-in user has one of roles.
func (s *Session) HasRole(roles ...string) bool {
	if !s.IsAuthenticated() {
		return false
	}

	return slices.Contains(roles, s.user.Get().Role)
}

// SubscribeUser calls fn on every sign-in, sign-out and profile change.
func (s *Session) SubscribeUser(fn func(*model.User)) func() {
	return s.user.Subscribe(fn)
}

func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}
