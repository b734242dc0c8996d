package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/catalog-fetch-service/internal/database"
)

// Pool is a DBTX that can also start transactions. *database.DB, *pgxpool.Pool
// and pgxmock pools satisfy it.
type Pool interface {
	database.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgStore is a PostgreSQL implementation of Store over the preferences table.
type PgStore struct {
	db   database.DBTX
	pool Pool
}

var (
	_ Transactional = (*PgStore)(nil)
	_ KeyLister     = (*PgStore)(nil)
)

// NewPgStore creates a store using pool for queries and transactions.
func NewPgStore(pool Pool) *PgStore {
	return &PgStore{db: pool, pool: pool}
}

// Get returns the value stored under key.
func (s *PgStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}

	var value string
	err := s.db.QueryRow(ctx, `SELECT value FROM preferences WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get preference %q: %w", key, err)
	}
	return value, true, nil
}

// Put upserts the value stored under key.
func (s *PgStore) Put(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	query := `
		INSERT INTO preferences (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()`

	if _, err := s.db.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to put preference %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *PgStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM preferences WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete preference %q: %w", key, err)
	}
	return nil
}

// Keys returns the keys starting with prefix in ascending order.
func (s *PgStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT key FROM preferences WHERE starts_with(key, $1) ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan preference key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Atomically runs fn inside a transaction. The transaction is rolled back
// when fn fails.
func (s *PgStore) Atomically(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return errors.New("store is already inside a transaction")
	}
	return database.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PgStore{db: tx})
	})
}
