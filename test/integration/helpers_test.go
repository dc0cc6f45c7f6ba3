//go:build integration

package integration

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-storefront-session/internal/app"
	"go-storefront-session/internal/config"
	"go-storefront-session/internal/event"
	"go-storefront-session/internal/stubapi"
)

type backend struct {
	URL      string
	refreshes atomic.Int32
}

func (b *backend) refreshCalls() int {
	return int(b.refreshes.Load())
}

func newBackend(t *testing.T, accessTTL time.Duration) *backend {
	t.Helper()

	handler, err := stubapi.New(config.StubConfig{
		JWTSecret:        "integration-secret-value",
		AccessTTL:        accessTTL,
		RefreshTTL:       time.Hour,
		CORSOrigins:      []string{"*"},
		RateLimitRPM:     0,
		AuthRateLimitRPM: 1000,
		RequestTimeout:   10 * time.Second,
	}, stubapi.WithHashCost(bcrypt.MinCost), stubapi.WithLogger(quietLogger()))
	require.NoError(t, err)

	b := &backend{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/auth/refresh") {
			b.refreshes.Add(1)
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	b.URL = srv.URL + "/api"
	return b
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newConfig(t *testing.T, baseURL string, stateFile string) *config.Config {
	t.Helper()

	if stateFile == "" {
		stateFile = filepath.Join(t.TempDir(), "state.json")
	}

	return &config.Config{
		APIBaseURL:             baseURL,
		APITimeout:             5 * time.Second,
		StorageDriver:          config.StorageFile,
		StorageFile:            stateFile,
		StorageTimeout:         time.Second,
		TokenKeys:              config.DefaultTokenKeys(),
		TokenRefreshBuffer:     5 * time.Minute,
		CartTTL:                30 * 24 * time.Hour,
		CartSyncBreakerTimeout: 30 * time.Second,
	}
}

func startApp(t *testing.T, cfg *config.Config) *app.App {
	t.Helper()

	a, err := app.New(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Close(ctx)
	})
	return a
}

// waitFor returns the first event of the given type published on bus.
func waitFor(t *testing.T, events <-chan event.Event, kind event.Type, timeout time.Duration) event.Event {
	t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case e := <-events:
			if e.Type == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("no %s event within %s", kind, timeout)
		}
	}
}
