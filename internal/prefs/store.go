// Package prefs provides a small key-value preference store with an
// in-memory and a PostgreSQL implementation.
package prefs

import (
	"context"
	"strings"

	"github.com/helixir/catalog-fetch-service/internal/domain"
)

// Store reads and writes string preferences by key.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Put creates or replaces the value for key.
	Put(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Transactional is a Store that can apply several writes atomically.
type Transactional interface {
	Store

	// Atomically runs fn against a view of the store. Writes made through
	// the view become visible only if fn returns nil.
	Atomically(ctx context.Context, fn func(Store) error) error
}

// KeyLister is a Store that can enumerate its keys.
type KeyLister interface {
	// Keys returns the keys starting with prefix in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Atomically runs fn inside a transaction when s supports one, and directly
// against s otherwise.
func Atomically(ctx context.Context, s Store, fn func(Store) error) error {
	if tx, ok := s.(Transactional); ok {
		return tx.Atomically(ctx, fn)
	}
	return fn(s)
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return domain.NewValidationError("key", "preference key is required")
	}
	return nil
}
