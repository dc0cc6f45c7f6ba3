package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var parser = jwt.NewParser()

// Payload decodes the claims of a JWT without checking its signature. The
// result is advisory and must never be used for authorization.
func Payload(token string) (jwt.MapClaims, bool) {
	if token == "" {
		return nil, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, false
	}

	return claims, true
}

// Expiration returns the exp claim of token.
func Expiration(token string) (time.Time, bool) {
	claims, ok := Payload(token)
	if !ok {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}

	return exp.Time, true
}

// IsTokenExpired reports whether token is expired relative to the store's
// clock. An empty token means the current one. Tokens without a decodable
// exp are expired.
func (s *Store) IsTokenExpired(token string) bool {
	if token == "" {
		token = s.Token()
	}

	exp, ok := Expiration(token)
	if !ok {
		return true
	}

	return exp.Before(s.clock.Now())
}

// IsTokenExpiringSoon reports whether token expires within the window.
func (s *Store) IsTokenExpiringSoon(token string, within time.Duration) bool {
	if token == "" {
		token = s.Token()
	}

	exp, ok := Expiration(token)
	if !ok {
		return true
	}

	return exp.Sub(s.clock.Now()) <= within
}

func (s *Store) TokenExpiration(token string) (time.Time, bool) {
	if token == "" {
		token = s.Token()
	}

	return Expiration(token)
}

// TimeUntilExpiration is zero for expired or undecodable tokens.
func (s *Store) TimeUntilExpiration(token string) time.Duration {
	exp, ok := s.TokenExpiration(token)
	if !ok {
		return 0
	}

	remaining := exp.Sub(s.clock.Now())
	if remaining < 0 {
		return 0
	}

	return remaining
}

func (s *Store) Payload(token string) (jwt.MapClaims, bool) {
	if token == "" {
		token = s.Token()
	}

	return Payload(token)
}
