package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"go-storefront-session/internal/database"
)

func TestRedisStorage(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	client, err := NewRedisClient(ctx, RedisConfig{Addr: addr, Password: os.Getenv("REDIS_PASSWORD"), Timeout: 3 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	exerciseStorage(t, NewRedis(client, "storefront-test-"+uuid.NewString()))
}

func TestPostgresStorage(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{URL: url, MaxConns: 2, ConnectTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	namespace := "storefront-test-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(context.Background(), `DELETE FROM client_state WHERE namespace = $1`, namespace)
	})

	exerciseStorage(t, NewPostgres(db.Pool, namespace, 3*time.Second))
}
