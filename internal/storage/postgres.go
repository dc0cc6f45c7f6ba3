package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const upsertStateSQL = `
	INSERT INTO client_state (namespace, key, value, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (namespace, key) DO UPDATE
	SET value = EXCLUDED.value, updated_at = NOW()
`

// Postgres keeps keys in the client_state table, one row per key, scoped
// by namespace so several clients can share a database.
type Postgres struct {
	pool      *pgxpool.Pool
	namespace string
	timeout   time.Duration
}

func NewPostgres(pool *pgxpool.Pool, namespace string, timeout time.Duration) *Postgres {
	return &Postgres{pool: pool, namespace: namespace, timeout: timeout}
}

func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var value string
	err := p.pool.QueryRow(ctx, `
		SELECT value FROM client_state
		WHERE namespace = $1 AND key = $2
	`, p.namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select client state %s: %w", key, err)
	}

	return value, true, nil
}

func (p *Postgres) Set(ctx context.Context, key string, value string) error {
	if key == "" {
		return ErrEmptyKey
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	if _, err := p.pool.Exec(ctx, upsertStateSQL, p.namespace, key, value); err != nil {
		return fmt.Errorf("upsert client state %s: %w", key, err)
	}

	return nil
}

func (p *Postgres) SetMany(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	if err := checkKeys(values); err != nil {
		return err
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for key, value := range values {
			batch.Queue(upsertStateSQL, p.namespace, key, value)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("upsert client state batch: %w", err)
	}

	return nil
}

func (p *Postgres) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	_, err := p.pool.Exec(ctx, `
		DELETE FROM client_state
		WHERE namespace = $1 AND key = ANY($2)
	`, p.namespace, keys)
	if err != nil {
		return fmt.Errorf("delete client state: %w", err)
	}

	return nil
}

func (p *Postgres) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, p.timeout)
}
