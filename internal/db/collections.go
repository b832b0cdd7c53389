package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CollectionRepository stores JSON documents by key. It satisfies
// store.Backend.
type CollectionRepository struct {
	pool *pgxpool.Pool
}

// Get returns the document stored under key. ok is false if there is none.
func (r *CollectionRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := `SELECT value FROM collections WHERE key = $1`

	var value []byte
	err := r.pool.QueryRow(ctx, query, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying collection %s: %w", key, err)
	}
	return value, true, nil
}

// Put replaces the document stored under key. value must be valid JSON.
func (r *CollectionRepository) Put(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO collections (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, key, string(value)); err != nil {
		return fmt.Errorf("upserting collection %s: %w", key, err)
	}
	return nil
}
