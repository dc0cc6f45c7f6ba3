package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-storefront-session/internal/model"
	"go-storefront-session/pkg/apierror"
)

type staticTokens struct {
	mu      sync.Mutex
	token   string
	expired map[string]bool
}

func (s *staticTokens) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *staticTokens) IsTokenExpired(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired[token]
}

type refresherFunc func(ctx context.Context) (model.TokenRecord, error)

func (f refresherFunc) RefreshToken(ctx context.Context) (model.TokenRecord, error) {
	return f(ctx)
}

type recorded struct {
	method string
	path   string
	auth   string
	reqID  string
	body   string
}

func newServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, func() []recorded) {
	t.Helper()

	var mu sync.Mutex
	var seen []recorded

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, recorded{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			reqID:  r.Header.Get("X-Request-ID"),
			body:   string(body),
		})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), seen...)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestBearerInjection(t *testing.T) {
	t.Parallel()

	srv, requests := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{}})
	})

	client := New(srv.URL + "/api")
	client.SetAuth(&staticTokens{token: "valid"}, nil)

	ctx := context.Background()
	require.NoError(t, client.Get(ctx, "/cart", nil))
	require.NoError(t, client.Post(ctx, "/auth/login", model.LoginRequest{Email: "a@b.c"}, nil))
	require.NoError(t, client.Post(ctx, "/auth/refresh?x=1", model.RefreshRequest{}, nil))
	require.NoError(t, client.Get(ctx, "/products/42", nil))
	require.NoError(t, client.Post(ctx, "/products/42/reviews", nil, nil))

	got := requests()
	require.Len(t, got, 5)
	assert.Equal(t, "Bearer valid", got[0].auth)
	assert.Empty(t, got[1].auth)
	assert.Empty(t, got[2].auth)
	assert.Empty(t, got[3].auth, "public catalog reads are anonymous")
	assert.Equal(t, "Bearer valid", got[4].auth)
	assert.Equal(t, "/api/cart", got[0].path)

	ids := map[string]bool{}
	for _, r := range got {
		require.NotEmpty(t, r.reqID)
		ids[r.reqID] = true
	}
	assert.Len(t, ids, 5)
}

func TestExpiredTokenIsRefreshedFirst(t *testing.T) {
	t.Parallel()

	srv, requests := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})

	tokens := &staticTokens{token: "old", expired: map[string]bool{"old": true}}
	var refreshes atomic.Int32
	client := New(srv.URL)
	client.SetAuth(tokens, refresherFunc(func(context.Context) (model.TokenRecord, error) {
		refreshes.Add(1)
		tokens.mu.Lock()
		tokens.token = "new"
		tokens.mu.Unlock()
		return model.TokenRecord{AccessToken: "new"}, nil
	}))

	require.NoError(t, client.Get(context.Background(), "/auth/profile", nil))

	require.Equal(t, int32(1), refreshes.Load())
	require.Equal(t, "Bearer new", requests()[0].auth)
}

func TestFailedRefreshSendsRequestAnonymously(t *testing.T) {
	t.Parallel()

	srv, requests := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Access denied"})
	})

	client := New(srv.URL)
	client.SetAuth(&staticTokens{token: "old", expired: map[string]bool{"old": true}}, refresherFunc(func(context.Context) (model.TokenRecord, error) {
		return model.TokenRecord{}, model.ErrRefreshRejected
	}))

	err := client.Get(context.Background(), "/cart", nil)

	require.True(t, apierror.IsStatus(err, http.StatusUnauthorized))
	require.Empty(t, requests()[0].auth)
}

func TestErrorResponses(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"success": false,
				"message": "Invalid credentials",
				"error":   map[string]any{"code": "INVALID_CREDENTIALS", "message": "email or password is wrong"},
			})
		case "/auth/register":
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Email already registered"})
		default:
			http.Error(w, "upstream down", http.StatusBadGateway)
		}
	})

	client := New(srv.URL)
	ctx := context.Background()

	_, err := client.Login(ctx, model.LoginRequest{Email: "a@b.c", Password: "nope"})
	var apiErr *apierror.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "INVALID_CREDENTIALS", apiErr.Code)
	require.Equal(t, http.StatusUnauthorized, apiErr.HTTPStatus)

	_, err = client.Register(ctx, model.RegisterRequest{Email: "a@b.c"})
	require.ErrorIs(t, err, model.ErrUnexpectedResult)
	require.Contains(t, err.Error(), "Email already registered")

	_, err = client.GetCart(ctx)
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadGateway, apiErr.HTTPStatus)
	require.Equal(t, "upstream down", apiErr.Details)
}

func TestTransportErrorsAreWrapped(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(url).Logout(context.Background(), "r1")

	require.Error(t, err)
	var apiErr *apierror.APIError
	require.False(t, errors.As(err, &apiErr))
}

func TestTypedEndpoints(t *testing.T) {
	t.Parallel()

	srv, requests := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{
				"token": "t2", "refreshToken": "r2", "user": map[string]any{"_id": "u1", "role": "admin"},
			}})
		case "/auth/profile":
			if r.Method == http.MethodGet {
				// Bare user without an envelope.
				writeJSON(w, http.StatusOK, map[string]any{"_id": "u1", "firstName": "Ada"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{
				"user": map[string]any{"_id": "u1", "firstName": "Grace"},
			}})
		case "/cart":
			if r.Method == http.MethodGet {
				writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{
					"items": []map[string]any{{
						"_id":      "line-1",
						"product":  map[string]any{"_id": "p1", "name": "Mug", "price": 9.5},
						"quantity": 2,
						"price":    9,
					}},
				}})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Cart updated"})
		case "/product/prod mug":
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{
				"_id": "prod mug", "name": "Mug", "price": 12.5, "isActive": true,
			}})
		}
	})

	client := New(srv.URL)
	ctx := context.Background()

	payload, err := client.Refresh(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "t2", payload.Token)
	require.Equal(t, "r2", payload.RefreshToken)
	require.True(t, payload.User.IsAdmin())

	user, err := client.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, "Ada", user.FirstName)

	name := "Grace"
	user, err = client.UpdateProfile(ctx, model.ProfileUpdate{FirstName: &name})
	require.NoError(t, err)
	require.Equal(t, "Grace", user.FirstName)

	cart, err := client.GetCart(ctx)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	item := cart.Items[0].CartItem()
	require.Equal(t, 9.0, item.Product.Price)
	require.Equal(t, "p1", item.Product.ID)

	require.NoError(t, client.PutCart(ctx, nil))

	product, err := client.Product(ctx, "prod mug")
	require.NoError(t, err)
	require.Equal(t, 12.5, product.Price)

	got := requests()
	require.Empty(t, got[5].auth)
	require.JSONEq(t, `{"refreshToken":"r1"}`, got[0].body)
	require.JSONEq(t, `{"firstName":"Grace"}`, got[2].body)
	require.JSONEq(t, `{"items":[]}`, got[4].body)
}

func TestRateLimitHonoursContext(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	client := New(srv.URL, WithRateLimit(1))
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, client.Get(ctx, "/health", nil))
	cancel()
	require.Error(t, client.Get(ctx, "/health", nil))
}
