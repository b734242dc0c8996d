package importers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/catalog-fetch-service/internal/prefs"
)

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := prefs.NewMemoryStore()

	l := NewList(descriptor("RIS"), descriptor("Endnote"), descriptor("MODS"))
	require.NoError(t, Save(ctx, store, l))

	count, ok, err := store.Get(ctx, KeyCount)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3", count)

	first, ok, err := store.Get(ctx, "customImportFormat.0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `["Endnote","EndnoteImporter","/opt/importers/Endnote.so"]`, first)

	loaded, err := Load(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, l.All(), loaded.All())
}

func TestSave_DeletesStaleRecords(t *testing.T) {
	ctx := context.Background()
	store := prefs.NewMemoryStore()

	require.NoError(t, Save(ctx, store, NewList(descriptor("A"), descriptor("B"), descriptor("C"))))
	require.NoError(t, Save(ctx, store, NewList(descriptor("B"))))

	for _, key := range []string{"customImportFormat.1", "customImportFormat.2"} {
		_, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}

	loaded, err := Load(ctx, store)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Len())
	_, err = loaded.Get("B")
	assert.NoError(t, err)
}

func TestSave_EmptyList(t *testing.T) {
	ctx := context.Background()
	store := prefs.NewMemoryStore()

	require.NoError(t, Save(ctx, store, NewList(descriptor("A"))))
	require.NoError(t, Save(ctx, store, NewList()))

	assert.Equal(t, 1, store.Len(), "only the count remains")
	loaded, err := Load(ctx, store)
	require.NoError(t, err)
	assert.Zero(t, loaded.Len())
}

func TestSave_RecoversFromCorruptCount(t *testing.T) {
	ctx := context.Background()
	store := prefs.NewMemoryStore()
	require.NoError(t, store.Put(ctx, KeyCount, "many"))

	require.NoError(t, store.Put(ctx, KeyPrefix+"1", `["orphan"]`))
	require.NoError(t, store.Put(ctx, KeyPrefix+"7", `["orphan"]`))
	require.NoError(t, store.Put(ctx, "unrelated", "kept"))

	require.NoError(t, Save(ctx, store, NewList(descriptor("A"))))
	loaded, err := Load(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())

	keys, err := store.Keys(ctx, KeyPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{KeyPrefix + "0", KeyCount}, keys)
	assert.Equal(t, 3, store.Len())
}

func TestLoad_Empty(t *testing.T) {
	loaded, err := Load(context.Background(), prefs.NewMemoryStore())
	require.NoError(t, err)
	assert.Zero(t, loaded.Len())
}

func TestLoad_Corrupt(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
	}{
		{
			name:   "gap in records",
			values: map[string]string{KeyCount: "2", "customImportFormat.1": `["B","B","/b.so"]`},
		},
		{
			name:   "invalid count",
			values: map[string]string{KeyCount: "-1"},
		},
		{
			name:   "not json",
			values: map[string]string{KeyCount: "1", "customImportFormat.0": "B;B;/b.so"},
		},
		{
			name:   "wrong arity",
			values: map[string]string{KeyCount: "1", "customImportFormat.0": `["B","B"]`},
		},
		{
			name:   "blank field",
			values: map[string]string{KeyCount: "1", "customImportFormat.0": `["B","","/b.so"]`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := prefs.NewMemoryStore()
			for k, v := range tt.values {
				require.NoError(t, store.Put(ctx, k, v))
			}

			_, err := Load(ctx, store)
			assert.ErrorIs(t, err, ErrCorruptImporterList)
		})
	}
}

// failingTxStore fails any write of failKey made inside a transaction.
type failingTxStore struct {
	*prefs.MemoryStore
	failKey string
}

func (s failingTxStore) Atomically(ctx context.Context, fn func(prefs.Store) error) error {
	return s.MemoryStore.Atomically(ctx, func(tx prefs.Store) error {
		return fn(failingStore{Store: tx, failKey: s.failKey})
	})
}

type failingStore struct {
	prefs.Store
	failKey string
}

func (s failingStore) Put(ctx context.Context, key, value string) error {
	if key == s.failKey {
		return errors.New("disk full")
	}
	return s.Store.Put(ctx, key, value)
}

func TestSave_FailureLeavesPreviousList(t *testing.T) {
	ctx := context.Background()
	mem := prefs.NewMemoryStore()
	require.NoError(t, Save(ctx, mem, NewList(descriptor("A"))))

	store := failingTxStore{MemoryStore: mem, failKey: KeyCount}
	err := Save(ctx, store, NewList(descriptor("B"), descriptor("C")))
	require.Error(t, err)

	loaded, err := Load(ctx, mem)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Len())
	_, err = loaded.Get("A")
	assert.NoError(t, err)
}
