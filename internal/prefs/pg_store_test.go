package prefs

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/catalog-fetch-service/internal/domain"
)

func TestPgStore_Get(t *testing.T) {
	t.Run("returns stored value", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT value FROM preferences WHERE key = \$1`).
			WithArgs("customImportFormat.count").
			WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow("2"))

		v, ok, err := NewPgStore(mock).Get(context.Background(), "customImportFormat.count")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "2", v)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing key", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT value FROM preferences`).
			WithArgs("nope").
			WillReturnError(pgx.ErrNoRows)

		v, ok, err := NewPgStore(mock).Get(context.Background(), "nope")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps database errors", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT value FROM preferences`).
			WithArgs("k").
			WillReturnError(errors.New("connection lost"))

		_, _, err = NewPgStore(mock).Get(context.Background(), "k")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection lost")
	})

	t.Run("rejects blank key without querying", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		_, _, err = NewPgStore(mock).Get(context.Background(), "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgStore_PutDelete(t *testing.T) {
	t.Run("put upserts", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`INSERT INTO preferences \(key, value, updated_at\)`).
			WithArgs("k", "v").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, NewPgStore(mock).Put(context.Background(), "k", "v"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`DELETE FROM preferences WHERE key = \$1`).
			WithArgs("k").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		require.NoError(t, NewPgStore(mock).Delete(context.Background(), "k"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgStore_Keys(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT key FROM preferences WHERE starts_with\(key, \$1\) ORDER BY key`).
		WithArgs("customImportFormat.").
		WillReturnRows(pgxmock.NewRows([]string{"key"}).
			AddRow("customImportFormat.0").
			AddRow("customImportFormat.count"))

	keys, err := NewPgStore(mock).Keys(context.Background(), "customImportFormat.")
	require.NoError(t, err)
	assert.Equal(t, []string{"customImportFormat.0", "customImportFormat.count"}, keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStore_Atomically(t *testing.T) {
	t.Run("commits", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO preferences`).
			WithArgs("a", "1").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`DELETE FROM preferences`).
			WithArgs("b").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectCommit()

		ctx := context.Background()
		err = NewPgStore(mock).Atomically(ctx, func(tx Store) error {
			if err := tx.Put(ctx, "a", "1"); err != nil {
				return err
			}
			return tx.Delete(ctx, "b")
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO preferences`).
			WithArgs("a", "1").
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		ctx := context.Background()
		err = NewPgStore(mock).Atomically(ctx, func(tx Store) error {
			return tx.Put(ctx, "a", "1")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nested transactions are refused", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		ctx := context.Background()
		err = NewPgStore(mock).Atomically(ctx, func(tx Store) error {
			return tx.(Transactional).Atomically(ctx, func(Store) error { return nil })
		})
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
