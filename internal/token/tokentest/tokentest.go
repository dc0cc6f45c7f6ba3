// Package tokentest mints signed JWTs for tests.
package tokentest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var secret = []byte("tokentest-secret-not-for-production")

// Sign returns an HS256 token for userID expiring at exp.
func Sign(t testing.TB, userID string, exp time.Time) string {
	t.Helper()

	return SignClaims(t, jwt.MapClaims{
		"sub": userID,
		"exp": exp.Unix(),
		"iat": exp.Add(-15 * time.Minute).Unix(),
		"jti": uuid.NewString(),
	})
}

func SignClaims(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	return signed
}
