package importers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/helixir/catalog-fetch-service/internal/domain"
	"github.com/helixir/catalog-fetch-service/internal/prefs"
)

// Preference keys. Record i lives under KeyPrefix + i.
const (
	KeyPrefix = "customImportFormat."
	KeyCount  = KeyPrefix + "count"
)

// ErrCorruptImporterList is returned by Load when the stored records are
// inconsistent with the stored count or cannot be decoded.
var ErrCorruptImporterList = errors.New("corrupt custom importer list")

func recordKey(i int) string {
	return KeyPrefix + strconv.Itoa(i)
}

// Save writes the list to s, replacing what was stored before. Records are
// written in name order and stale records past the new count are deleted.
func Save(ctx context.Context, s prefs.Store, l *List) error {
	descriptors := l.All()

	return prefs.Atomically(ctx, s, func(tx prefs.Store) error {
		oldCount, err := storedCount(ctx, tx)
		corrupt := errors.Is(err, ErrCorruptImporterList)
		if err != nil && !corrupt {
			return err
		}

		for i, d := range descriptors {
			data, err := json.Marshal(d.Record())
			if err != nil {
				return fmt.Errorf("failed to encode importer %q: %w", d.Name, err)
			}
			if err := tx.Put(ctx, recordKey(i), string(data)); err != nil {
				return err
			}
		}
		stale, err := staleKeys(ctx, tx, len(descriptors), oldCount, corrupt)
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := tx.Delete(ctx, k); err != nil {
				return err
			}
		}
		return tx.Put(ctx, KeyCount, strconv.Itoa(len(descriptors)))
	})
}

// staleKeys returns the record keys at index n and above. When the stored
// count cannot be trusted and s can list keys, every such record is found by
// prefix. Otherwise the count bounds the search.
func staleKeys(ctx context.Context, s prefs.Store, n, oldCount int, corrupt bool) ([]string, error) {
	lister, ok := s.(prefs.KeyLister)
	if !corrupt || !ok {
		var keys []string
		for i := n; i < oldCount; i++ {
			keys = append(keys, recordKey(i))
		}
		return keys, nil
	}

	all, err := lister.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, k := range all {
		i, err := strconv.Atoi(strings.TrimPrefix(k, KeyPrefix))
		if err == nil && i >= n {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Load reads the list from s. A store that never held a list yields an
// empty list.
func Load(ctx context.Context, s prefs.Store) (*List, error) {
	count, err := storedCount(ctx, s)
	if err != nil {
		return nil, err
	}

	l := NewList()
	for i := 0; i < count; i++ {
		raw, ok, err := s.Get(ctx, recordKey(i))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: record %d of %d is missing", ErrCorruptImporterList, i, count)
		}

		var record []string
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorruptImporterList, i, err)
		}
		d, err := domain.ImporterDescriptorFromRecord(record)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorruptImporterList, i, err)
		}
		if _, err := l.Add(d); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorruptImporterList, i, err)
		}
	}
	return l, nil
}

// storedCount returns 0 when no count is stored.
func storedCount(ctx context.Context, s prefs.Store) (int, error) {
	raw, ok, err := s.Get(ctx, KeyCount)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid count %q", ErrCorruptImporterList, raw)
	}
	return n, nil
}
