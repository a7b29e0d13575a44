package db

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// MapStore keeps preferences in memory. Used when no database path is
// configured and in tests.
type MapStore struct {
	m    *sync.Mutex
	data map[PreferenceKind][]string
}

func NewMapStore() *MapStore {
	return &MapStore{
		m:    new(sync.Mutex),
		data: map[PreferenceKind][]string{},
	}
}

func (ms *MapStore) Remember(ctx context.Context, kind PreferenceKind, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if _, err := ParsePreferenceKind(string(kind)); err != nil {
		return err
	}
	ms.m.Lock()
	defer ms.m.Unlock()
	values := slices.DeleteFunc(ms.data[kind], func(v string) bool { return v == value })
	values = append(values, value)
	if len(values) > MaxPreferences {
		values = values[len(values)-MaxPreferences:]
	}
	ms.data[kind] = values
	return nil
}

func (ms *MapStore) Suggestions(ctx context.Context, kind PreferenceKind, limit int) ([]string, error) {
	ms.m.Lock()
	defer ms.m.Unlock()
	values := ms.data[kind]
	limit = clampLimit(limit)
	if len(values) > limit {
		values = values[len(values)-limit:]
	}
	out := slices.Clone(values)
	slices.Reverse(out)
	if out == nil {
		out = []string{}
	}
	return out, nil
}
