// Package database holds the Postgres pool behind the postgres storage
// driver.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"go-storefront-session/internal/config"
)

const (
	maxConnLifetime   = 30 * time.Minute
	maxConnIdleTime   = 5 * time.Minute
	healthCheckPeriod = time.Minute
)

type Config struct {
	URL      string
	MaxConns int32
	MinConns int32
	// ConnectTimeout bounds connecting plus the schema bootstrap. Zero
	// leaves it to ctx.
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

func ConfigFrom(cfg *config.Config, log *slog.Logger) Config {
	return Config{
		URL:            cfg.DatabaseURL,
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		ConnectTimeout: cfg.StorageTimeout,
		Logger:         log,
	}
}

type DB struct {
	Pool *pgxpool.Pool
	log  *slog.Logger
}

// Open connects and makes sure the client_state table exists.
func Open(ctx context.Context, c Config) (*DB, error) {
	poolCfg, err := c.poolConfig()
	if err != nil {
		return nil, err
	}

	if c.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.ConnectTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log := c.Logger
	if log == nil {
		log = slog.Default()
	}
	db := &DB{Pool: pool, log: log.With("component", "database")}
	db.log.Debug("database connected", "max_conns", c.MaxConns, "min_conns", c.MinConns)

	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (c Config) poolConfig() (*pgxpool.Config, error) {
	if c.MaxConns <= 0 || c.MinConns < 0 || c.MinConns > c.MaxConns {
		return nil, fmt.Errorf("invalid pool size: min %d, max %d", c.MinConns, c.MaxConns)
	}

	cfg, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	cfg.MaxConns = c.MaxConns
	cfg.MinConns = c.MinConns
	cfg.MaxConnLifetime = maxConnLifetime
	cfg.MaxConnIdleTime = maxConnIdleTime
	cfg.HealthCheckPeriod = healthCheckPeriod

	return cfg, nil
}

func (db *DB) Close() {
	if db != nil && db.Pool != nil {
		db.Pool.Close()
	}
}
