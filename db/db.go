package db

import (
	"context"
	"errors"
	"strings"
)

type PreferenceKind string

const (
	PreferenceTitle   PreferenceKind = "title"
	PreferenceStation PreferenceKind = "station"
)

const (
	// MaxPreferences bounds how many values of each kind are kept
	MaxPreferences = 300
	// SuggestionLimit is how many values are offered back for autocomplete
	SuggestionLimit = 200
)

var (
	ErrUnknownKind = errors.New("unknown preference kind")
)

// Store is the local durable store for free text the operator has typed
// before. Values are kept as an ordered set per kind: remembering a value
// again moves it to the newest position.
type Store interface {
	Remember(ctx context.Context, kind PreferenceKind, value string) error
	Suggestions(ctx context.Context, kind PreferenceKind, limit int) ([]string, error)
}

func ParsePreferenceKind(s string) (PreferenceKind, error) {
	switch PreferenceKind(strings.ToLower(strings.TrimSuffix(s, "s"))) {
	case PreferenceTitle:
		return PreferenceTitle, nil
	case PreferenceStation:
		return PreferenceStation, nil
	}
	return "", ErrUnknownKind
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > SuggestionLimit {
		return SuggestionLimit
	}
	return limit
}
