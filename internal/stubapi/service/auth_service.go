package service

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"go-storefront-session/internal/clock"
	"go-storefront-session/internal/model"
	"go-storefront-session/pkg/apierror"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	DefaultAdminEmail    = "admin@example.com"
	DefaultAdminPassword = "admin123"

	minPasswordLength = 6
)

// Claims are the fields the backend reads back out of its own tokens.
type Claims struct {
	UserID  string
	Email   string
	Role    string
	Type    string
	TokenID string
}

type account struct {
	user         model.User
	passwordHash string
}

type AuthService struct {
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	hashCost   int
	clock      clock.Clock

	mu             sync.RWMutex
	accountsByMail map[string]*account
	accountsByID   map[string]*account
	refreshTokens  map[string]string
}

type AuthOption func(*AuthService)

func WithHashCost(cost int) AuthOption {
	return func(s *AuthService) { s.hashCost = cost }
}

func WithClock(c clock.Clock) AuthOption {
	return func(s *AuthService) { s.clock = c }
}

func NewAuthService(jwtSecret string, accessTTL time.Duration, refreshTTL time.Duration, opts ...AuthOption) (*AuthService, error) {
	service := &AuthService{
		jwtSecret:      []byte(jwtSecret),
		accessTTL:      accessTTL,
		refreshTTL:     refreshTTL,
		hashCost:       12,
		clock:          clock.Real(),
		accountsByMail: map[string]*account{},
		accountsByID:   map[string]*account{},
		refreshTokens:  map[string]string{},
	}
	for _, opt := range opts {
		opt(service)
	}

	if err := service.seedDefaultAdmin(); err != nil {
		return nil, err
	}

	return service, nil
}

func (s *AuthService) Login(email string, password string) (model.AuthPayload, error) {
	key := normalizeEmail(email)

	s.mu.RLock()
	acct, exists := s.accountsByMail[key]
	var hash string
	if exists {
		hash = acct.passwordHash
	}
	s.mu.RUnlock()
	if !exists {
		return model.AuthPayload{}, apierror.New("UNAUTHORIZED", "invalid credentials", "", http.StatusUnauthorized)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return model.AuthPayload{}, apierror.New("UNAUTHORIZED", "invalid credentials", "", http.StatusUnauthorized)
	}

	now := s.clock.Now().UTC()
	s.mu.Lock()
	if !acct.user.IsActive {
		s.mu.Unlock()
		return model.AuthPayload{}, apierror.New("FORBIDDEN", "account is disabled", "", http.StatusForbidden)
	}
	acct.user.LastLogin = &now
	user := acct.user
	s.mu.Unlock()

	return s.issueTokenPair(user)
}

func (s *AuthService) Register(req model.RegisterRequest) (model.AuthPayload, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	key := normalizeEmail(req.Email)

	if key == "" || !strings.Contains(key, "@") {
		return model.AuthPayload{}, apierror.New("BAD_REQUEST", "a valid email is required", "email", http.StatusBadRequest)
	}
	if req.FirstName == "" || req.LastName == "" {
		return model.AuthPayload{}, apierror.New("BAD_REQUEST", "first and last name are required", "", http.StatusBadRequest)
	}
	if len(req.Password) < minPasswordLength {
		return model.AuthPayload{}, apierror.New("BAD_REQUEST", "password is too short", "password", http.StatusBadRequest)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return model.AuthPayload{}, err
	}

	now := s.clock.Now().UTC()
	user := model.User{
		ID:        uuid.NewString(),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     key,
		Phone:     strings.TrimSpace(req.Phone),
		Role:      model.RoleUser,
		IsActive:  true,
		LastLogin: &now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	if _, exists := s.accountsByMail[key]; exists {
		s.mu.Unlock()
		return model.AuthPayload{}, apierror.New("ALREADY_EXISTS", "email already registered", key, http.StatusConflict)
	}
	acct := &account{user: user, passwordHash: string(hash)}
	s.accountsByMail[key] = acct
	s.accountsByID[user.ID] = acct
	s.mu.Unlock()

	return s.issueTokenPair(user)
}

// Refresh rotates the refresh token: the presented one is revoked and a new
// pair is issued.
func (s *AuthService) Refresh(refreshToken string) (model.AuthPayload, error) {
	claims, err := s.ValidateToken(refreshToken, TokenTypeRefresh)
	if err != nil {
		return model.AuthPayload{}, err
	}

	s.mu.Lock()
	ownerID, exists := s.refreshTokens[refreshToken]
	if !exists || ownerID != claims.UserID {
		s.mu.Unlock()
		return model.AuthPayload{}, apierror.New("UNAUTHORIZED", "refresh token is invalid", "", http.StatusUnauthorized)
	}
	delete(s.refreshTokens, refreshToken)
	acct, userExists := s.accountsByID[claims.UserID]
	var user model.User
	if userExists {
		user = acct.user
	}
	s.mu.Unlock()

	if !userExists || !user.IsActive {
		return model.AuthPayload{}, apierror.New("UNAUTHORIZED", "user not found", "", http.StatusUnauthorized)
	}

	return s.issueTokenPair(user)
}

func (s *AuthService) Logout(refreshToken string) {
	s.mu.Lock()
	delete(s.refreshTokens, refreshToken)
	s.mu.Unlock()
}

func (s *AuthService) ValidateToken(tokenString string, expectedType string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	)

	parsed, err := parser.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, apierror.New("UNAUTHORIZED", "invalid token", "", http.StatusUnauthorized)
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apierror.New("UNAUTHORIZED", "invalid token claims", "", http.StatusUnauthorized)
	}

	typ, _ := claimsMap["typ"].(string)
	if expectedType != "" && typ != expectedType {
		return nil, apierror.New("UNAUTHORIZED", "invalid token type", "", http.StatusUnauthorized)
	}

	claims := &Claims{Type: typ}
	claims.UserID, _ = claimsMap["sub"].(string)
	claims.Email, _ = claimsMap["email"].(string)
	claims.Role, _ = claimsMap["role"].(string)
	claims.TokenID, _ = claimsMap["jti"].(string)

	if claims.UserID == "" {
		return nil, apierror.New("UNAUTHORIZED", "invalid token subject", "", http.StatusUnauthorized)
	}

	return claims, nil
}

func (s *AuthService) Profile(userID string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, exists := s.accountsByID[userID]
	if !exists {
		return model.User{}, apierror.New("NOT_FOUND", "user not found", userID, http.StatusNotFound)
	}

	return acct.user, nil
}

// UpdateProfile applies the non-nil fields of update. Email and role are
// not editable here.
func (s *AuthService) UpdateProfile(userID string, update model.ProfileUpdate) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, exists := s.accountsByID[userID]
	if !exists {
		return model.User{}, apierror.New("NOT_FOUND", "user not found", userID, http.StatusNotFound)
	}

	user := acct.user
	if update.FirstName != nil {
		if strings.TrimSpace(*update.FirstName) == "" {
			return model.User{}, apierror.New("BAD_REQUEST", "first name cannot be empty", "firstName", http.StatusBadRequest)
		}
		user.FirstName = strings.TrimSpace(*update.FirstName)
	}
	if update.LastName != nil {
		if strings.TrimSpace(*update.LastName) == "" {
			return model.User{}, apierror.New("BAD_REQUEST", "last name cannot be empty", "lastName", http.StatusBadRequest)
		}
		user.LastName = strings.TrimSpace(*update.LastName)
	}
	if update.Phone != nil {
		user.Phone = strings.TrimSpace(*update.Phone)
	}
	if update.Avatar != nil {
		user.Avatar = strings.TrimSpace(*update.Avatar)
	}
	if update.Address != nil {
		address := *update.Address
		user.Address = &address
	}
	user.UpdatedAt = s.clock.Now().UTC()

	acct.user = user
	return user, nil
}

// ChangePassword also revokes every refresh token of the user.
func (s *AuthService) ChangePassword(userID string, req model.ChangePasswordRequest) error {
	if len(req.NewPassword) < minPasswordLength {
		return apierror.New("BAD_REQUEST", "new password is too short", "newPassword", http.StatusBadRequest)
	}

	s.mu.RLock()
	acct, exists := s.accountsByID[userID]
	var hash string
	if exists {
		hash = acct.passwordHash
	}
	s.mu.RUnlock()
	if !exists {
		return apierror.New("NOT_FOUND", "user not found", userID, http.StatusNotFound)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.CurrentPassword)); err != nil {
		return apierror.New("INVALID_PASSWORD", "current password is incorrect", "", http.StatusBadRequest)
	}

	next, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.hashCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct.passwordHash = string(next)
	acct.user.UpdatedAt = s.clock.Now().UTC()
	for token, owner := range s.refreshTokens {
		if owner == userID {
			delete(s.refreshTokens, token)
		}
	}

	return nil
}

func (s *AuthService) issueTokenPair(user model.User) (model.AuthPayload, error) {
	now := s.clock.Now().UTC()

	accessToken, err := s.signToken(jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  user.Role,
		"typ":   TokenTypeAccess,
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   now.Add(s.accessTTL).Unix(),
	})
	if err != nil {
		return model.AuthPayload{}, err
	}

	refreshToken, err := s.signToken(jwt.MapClaims{
		"sub":  user.ID,
		"role": user.Role,
		"typ":  TokenTypeRefresh,
		"jti":  uuid.NewString(),
		"iat":  now.Unix(),
		"exp":  now.Add(s.refreshTTL).Unix(),
	})
	if err != nil {
		return model.AuthPayload{}, err
	}

	s.mu.Lock()
	s.refreshTokens[refreshToken] = user.ID
	s.mu.Unlock()

	return model.AuthPayload{User: &user, Token: accessToken, RefreshToken: refreshToken}, nil
}

func (s *AuthService) signToken(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) seedDefaultAdmin() error {
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultAdminPassword), s.hashCost)
	if err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	admin := &account{
		user: model.User{
			ID:        uuid.NewString(),
			FirstName: "Store",
			LastName:  "Admin",
			Email:     DefaultAdminEmail,
			Role:      model.RoleAdmin,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		passwordHash: string(hash),
	}

	s.mu.Lock()
	s.accountsByMail[admin.user.Email] = admin
	s.accountsByID[admin.user.ID] = admin
	s.mu.Unlock()

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
