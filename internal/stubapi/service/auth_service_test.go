package service

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-storefront-session/internal/clock"
	"go-storefront-session/internal/model"
	"go-storefront-session/internal/token"
	"go-storefront-session/pkg/apierror"
)

const testSecret = "stub-service-test-secret"

func newAuthService(t *testing.T) (*AuthService, *clock.Fake) {
	t.Helper()

	fake := clock.NewFake(time.Now().UTC().Truncate(time.Second))
	svc, err := NewAuthService(testSecret, 15*time.Minute, 24*time.Hour, WithHashCost(bcrypt.MinCost), WithClock(fake))
	require.NoError(t, err)
	return svc, fake
}

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	require.True(t, apierror.IsStatus(err, status), "got %v", err)
}

func TestAuthServiceLogin(t *testing.T) {
	t.Parallel()

	svc, fake := newAuthService(t)

	t.Run("seeded admin can log in", func(t *testing.T) {
		payload, err := svc.Login(" Admin@Example.com ", DefaultAdminPassword)
		require.NoError(t, err)
		require.NotNil(t, payload.User)
		require.Equal(t, model.RoleAdmin, payload.User.Role)
		require.NotEmpty(t, payload.RefreshToken)

		exp, ok := token.Expiration(payload.Token)
		require.True(t, ok)
		require.True(t, exp.Equal(fake.Now().Add(15*time.Minute)))

		claims, err := svc.ValidateToken(payload.Token, TokenTypeAccess)
		require.NoError(t, err)
		require.Equal(t, payload.User.ID, claims.UserID)
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		_, err := svc.Login(DefaultAdminEmail, "nope")
		requireStatus(t, err, http.StatusUnauthorized)
	})

	t.Run("unknown email is rejected", func(t *testing.T) {
		_, err := svc.Login("ghost@example.com", "whatever")
		requireStatus(t, err, http.StatusUnauthorized)
	})
}

func TestAuthServiceRegister(t *testing.T) {
	t.Parallel()

	svc, _ := newAuthService(t)
	req := model.RegisterRequest{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: "secret1"}

	payload, err := svc.Register(req)
	require.NoError(t, err)
	require.Equal(t, model.RoleUser, payload.User.Role)
	require.Equal(t, "Ada Lovelace", payload.User.Name())
	require.NotEmpty(t, payload.Token)

	_, err = svc.Register(req)
	requireStatus(t, err, http.StatusConflict)

	_, err = svc.Register(model.RegisterRequest{FirstName: "A", LastName: "B", Email: "short@example.com", Password: "123"})
	requireStatus(t, err, http.StatusBadRequest)

	_, err = svc.Login("ADA@example.com", "secret1")
	require.NoError(t, err)
}

func TestAuthServiceRefreshRotates(t *testing.T) {
	t.Parallel()

	svc, fake := newAuthService(t)
	first, err := svc.Login(DefaultAdminEmail, DefaultAdminPassword)
	require.NoError(t, err)

	fake.Advance(time.Minute)
	second, err := svc.Refresh(first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.NotEqual(t, first.Token, second.Token)
	require.Equal(t, first.User.ID, second.User.ID)

	_, err = svc.Refresh(first.RefreshToken)
	requireStatus(t, err, http.StatusUnauthorized)

	_, err = svc.Refresh(second.Token)
	requireStatus(t, err, http.StatusUnauthorized)

	svc.Logout(second.RefreshToken)
	_, err = svc.Refresh(second.RefreshToken)
	requireStatus(t, err, http.StatusUnauthorized)
}

func TestAuthServiceRejectsExpiredAccessToken(t *testing.T) {
	t.Parallel()

	svc, fake := newAuthService(t)
	payload, err := svc.Login(DefaultAdminEmail, DefaultAdminPassword)
	require.NoError(t, err)

	fake.Advance(16 * time.Minute)
	_, err = svc.ValidateToken(payload.Token, TokenTypeAccess)
	requireStatus(t, err, http.StatusUnauthorized)

	_, err = svc.ValidateToken(payload.RefreshToken, TokenTypeRefresh)
	require.NoError(t, err)
}

func TestAuthServiceProfile(t *testing.T) {
	t.Parallel()

	svc, _ := newAuthService(t)
	payload, err := svc.Login(DefaultAdminEmail, DefaultAdminPassword)
	require.NoError(t, err)

	name := "  Grace "
	city := model.Address{City: "Arlington"}
	user, err := svc.UpdateProfile(payload.User.ID, model.ProfileUpdate{FirstName: &name, Address: &city})
	require.NoError(t, err)
	require.Equal(t, "Grace", user.FirstName)
	require.Equal(t, "Admin", user.LastName)
	require.Equal(t, "Arlington", user.Address.City)

	stored, err := svc.Profile(payload.User.ID)
	require.NoError(t, err)
	require.Equal(t, user, stored)

	empty := " "
	_, err = svc.UpdateProfile(payload.User.ID, model.ProfileUpdate{LastName: &empty})
	requireStatus(t, err, http.StatusBadRequest)

	_, err = svc.Profile("missing")
	requireStatus(t, err, http.StatusNotFound)
}

func TestAuthServiceChangePassword(t *testing.T) {
	t.Parallel()

	svc, _ := newAuthService(t)
	payload, err := svc.Login(DefaultAdminEmail, DefaultAdminPassword)
	require.NoError(t, err)
	userID := payload.User.ID

	err = svc.ChangePassword(userID, model.ChangePasswordRequest{CurrentPassword: "wrong", NewPassword: "longenough"})
	requireStatus(t, err, http.StatusBadRequest)

	require.NoError(t, svc.ChangePassword(userID, model.ChangePasswordRequest{CurrentPassword: DefaultAdminPassword, NewPassword: "longenough"}))

	_, err = svc.Refresh(payload.RefreshToken)
	requireStatus(t, err, http.StatusUnauthorized)

	_, err = svc.Login(DefaultAdminEmail, DefaultAdminPassword)
	requireStatus(t, err, http.StatusUnauthorized)
	_, err = svc.Login(DefaultAdminEmail, "longenough")
	require.NoError(t, err)
}
