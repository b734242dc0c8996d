package prefs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/catalog-fetch-service/internal/domain"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("put get delete", func(t *testing.T) {
		s := NewMemoryStore()

		_, ok, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.Put(ctx, "a", "1"))
		v, ok, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "1", v)

		require.NoError(t, s.Put(ctx, "a", "2"))
		v, _, _ = s.Get(ctx, "a")
		assert.Equal(t, "2", v)

		require.NoError(t, s.Delete(ctx, "a"))
		require.NoError(t, s.Delete(ctx, "a"), "deleting a missing key is fine")
		assert.Equal(t, 0, s.Len())
	})

	t.Run("empty value is stored", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Put(ctx, "k", ""))
		v, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "", v)
	})

	t.Run("rejects blank keys", func(t *testing.T) {
		s := NewMemoryStore()
		assert.ErrorIs(t, s.Put(ctx, " ", "v"), domain.ErrInvalidInput)
		_, _, err := s.Get(ctx, "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.ErrorIs(t, s.Delete(ctx, ""), domain.ErrInvalidInput)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		s := NewMemoryStore()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = s.Put(ctx, "k", "v")
				_, _, _ = s.Get(ctx, "k")
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, s.Len())
	})
}

func TestMemoryStore_Keys(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, k := range []string{"b.2", "a.1", "b.10", "c"} {
		require.NoError(t, s.Put(ctx, k, "x"))
	}

	keys, err := s.Keys(ctx, "b.")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.10", "b.2"}, keys)

	keys, err = s.Keys(ctx, "zz")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryStore_Atomically(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Put(ctx, "old", "x"))

		err := Atomically(ctx, s, func(tx Store) error {
			if err := tx.Put(ctx, "new", "y"); err != nil {
				return err
			}
			return tx.Delete(ctx, "old")
		})
		require.NoError(t, err)

		_, ok, _ := s.Get(ctx, "old")
		assert.False(t, ok)
		v, ok, _ := s.Get(ctx, "new")
		assert.True(t, ok)
		assert.Equal(t, "y", v)
	})

	t.Run("discards writes on failure", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Put(ctx, "keep", "x"))
		boom := errors.New("boom")

		err := s.Atomically(ctx, func(tx Store) error {
			_ = tx.Put(ctx, "new", "y")
			_ = tx.Delete(ctx, "keep")
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, ok, _ := s.Get(ctx, "new")
		assert.False(t, ok)
		v, ok, _ := s.Get(ctx, "keep")
		assert.True(t, ok)
		assert.Equal(t, "x", v)
	})
}

func TestAtomically_WithoutTransactions(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	var s Store = struct{ Store }{inner}

	err := Atomically(ctx, s, func(tx Store) error {
		return tx.Put(ctx, "k", "v")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.Len())
}
