package models

import "time"

const (
	MinSlot = 1
	MaxSlot = 5
)

func ValidSlot(slot int) bool {
	return slot >= MinSlot && slot <= MaxSlot
}

// Assignment binds a hotkey slot to an asset in the assignment store.
// Asset is filled in when the assignment table is hydrated.
type Assignment struct {
	ID      int64            `json:"id"`
	Slot    int              `json:"key_number"`
	AssetID *int64           `json:"asset_id"`
	Asset   *NormalizedAsset `json:"asset,omitempty"`
}

// PlaybackSession is the one asset currently presented on the playback surface
type PlaybackSession struct {
	ID        string          `json:"id"`
	Slot      int             `json:"slot"`
	Asset     NormalizedAsset `json:"asset"`
	StartedAt time.Time       `json:"started_at"`
}
