package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrInvalidLimit = errors.New("limit must be greater than zero")

// History records every presented surface in sqlite
type History struct {
	db *sqlx.DB
}

func NewHistory(db *sqlx.DB) *History {
	return &History{db: db}
}

// Open records a surface as the active entry, closing any entry left
// active by a previous run
func (h *History) Open(ctx context.Context, s Surface, colours []string) error {
	item := MediaItem{
		ID:              GenerateMediaID(s.Asset),
		AssetID:         s.Asset.ID,
		Title:           s.Asset.Title,
		Station:         s.Asset.Station,
		MediaType:       string(s.Asset.MediaType),
		MediaURL:        s.Asset.MediaURL,
		Source:          string(s.Asset.Source),
		DominantColours: colours,
	}

	tx, err := h.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
	  UPDATE playback_entries
	  SET is_active = FALSE, status = ?, updated_at = ?
	  WHERE is_active = TRUE`,
		StatusStopped, now); err != nil {
		return fmt.Errorf("failed to deactivate old entries: %w", err)
	}

	// Presenting the same asset again reuses its media item
	if _, err := tx.NamedExecContext(ctx, `
	  INSERT INTO media_items
	  (id, asset_id, title, station, media_type, media_url, source, dominant_colours)
	  VALUES (:id, :asset_id, :title, :station, :media_type, :media_url, :source, :dominant_colours)
	  ON CONFLICT (id) DO NOTHING`,
		item); err != nil {
		return fmt.Errorf("failed to insert media item: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
	  INSERT INTO playback_entries
	  (media_id, session_id, slot, surface, status, is_active, created_at, updated_at)
	  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, s.ID, s.Slot, s.Kind, s.Status, true, now, now); err != nil {
		return fmt.Errorf("failed to insert playback entry: %w", err)
	}

	return tx.Commit()
}

// Update changes the status of the entry for a session
func (h *History) Update(ctx context.Context, sessionID string, status Status) error {
	_, err := h.db.ExecContext(ctx, `
	  UPDATE playback_entries
	  SET status = ?, is_active = ?, updated_at = ?
	  WHERE session_id = ?`,
		status, status != StatusStopped, time.Now(), sessionID)
	return err
}

func (h *History) Recent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	var results []HistoryEntry
	err := h.db.SelectContext(ctx, &results, `
	  SELECT
	    m.id, m.asset_id, m.title, m.station, m.media_type, m.media_url, m.source, m.dominant_colours,
	    p.id as playback_id, p.session_id, p.slot, p.surface, p.status, p.is_active, p.created_at, p.updated_at
	  FROM media_items m
	  JOIN playback_entries p ON m.id = p.media_id
	  ORDER BY p.id DESC
	  LIMIT ?
	`, limit)
	return results, err
}
