package stubapi_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-storefront-session/internal/apiclient"
	"go-storefront-session/internal/config"
	"go-storefront-session/internal/model"
	"go-storefront-session/internal/stubapi"
	"go-storefront-session/pkg/apierror"
)

type staticTokens struct{ token string }

func (s *staticTokens) Token() string              { return s.token }
func (s *staticTokens) IsTokenExpired(string) bool { return false }
func (s *staticTokens) RefreshToken(context.Context) (model.TokenRecord, error) {
	return model.TokenRecord{}, model.ErrNoRefreshToken
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()

	handler, err := stubapi.New(config.StubConfig{
		JWTSecret:        "stubapi-test-secret-value",
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       time.Hour,
		AuthRateLimitRPM: 1000,
		RequestTimeout:   5 * time.Second,
	}, stubapi.WithHashCost(bcrypt.MinCost), stubapi.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv := newBackend(t)
	res, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotEmpty(t, res.Header.Get("X-Request-ID"))
}

func TestAuthAndCartFlow(t *testing.T) {
	t.Parallel()

	srv := newBackend(t)
	ctx := context.Background()
	tokens := &staticTokens{}
	client := apiclient.New(srv.URL + "/api")
	client.SetAuth(tokens, tokens)

	_, err := client.Login(ctx, model.LoginRequest{Email: "admin@example.com", Password: "wrong"})
	require.True(t, apierror.IsStatus(err, http.StatusUnauthorized))

	payload, err := client.Register(ctx, model.RegisterRequest{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.NotEmpty(t, payload.Token)
	require.NotEmpty(t, payload.RefreshToken)
	require.Equal(t, "ada@example.com", payload.User.Email)

	_, err = client.GetCart(ctx)
	require.True(t, apierror.IsStatus(err, http.StatusUnauthorized))

	tokens.token = payload.Token

	user, err := client.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, payload.User.ID, user.ID)

	phone := "555-0100"
	user, err = client.UpdateProfile(ctx, model.ProfileUpdate{Phone: &phone})
	require.NoError(t, err)
	require.Equal(t, phone, user.Phone)

	require.NoError(t, client.PutCart(ctx, []model.CartLine{{ProductID: "prod-mug", Quantity: 2}}))
	cart, err := client.GetCart(ctx)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	require.Equal(t, 12.5, cart.Items[0].CartItem().Product.Price)

	err = client.PutCart(ctx, []model.CartLine{{ProductID: "ghost", Quantity: 1}})
	require.True(t, apierror.IsStatus(err, http.StatusUnprocessableEntity))

	product, err := client.Product(ctx, "prod-lamp")
	require.NoError(t, err)
	require.Equal(t, "Desk Lamp", product.Name)

	refreshed, err := client.Refresh(ctx, payload.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, payload.RefreshToken, refreshed.RefreshToken)
	require.Equal(t, payload.User.ID, refreshed.User.ID)

	_, err = client.Refresh(ctx, payload.RefreshToken)
	require.True(t, apierror.IsStatus(err, http.StatusUnauthorized))

	require.NoError(t, client.ChangePassword(ctx, model.ChangePasswordRequest{CurrentPassword: "secret1", NewPassword: "secret2"}))

	tokens.token = refreshed.Token
	require.NoError(t, client.Logout(ctx, refreshed.RefreshToken))
}

func TestErrorEnvelope(t *testing.T) {
	t.Parallel()

	srv := newBackend(t)
	res, err := http.Post(srv.URL+"/api/auth/login", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.JSONEq(t, `{"success":false,"message":"invalid JSON body","data":null,"error":{"code":"BAD_REQUEST","message":"invalid JSON body"}}`, string(body))
}
