package hotkeys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/marcus-crane/voxpro/db"
	"github.com/marcus-crane/voxpro/events"
	"github.com/marcus-crane/voxpro/metrics"
	"github.com/marcus-crane/voxpro/models"
	"github.com/marcus-crane/voxpro/notify"
	"github.com/marcus-crane/voxpro/playback"
	"github.com/marcus-crane/voxpro/resolver"
	"github.com/marcus-crane/voxpro/thumbnail"
	"github.com/marcus-crane/voxpro/xano"
)

const (
	TriggerPoll = "poll"
	TriggerUser = "user"

	hydrateLimit = 5
)

var (
	ErrInvalidSlot  = errors.New("slot must be between 1 and 5")
	ErrNoAssignment = errors.New("no assignment for slot")
	ErrNoCandidate  = errors.New("no asset selected")
)

// Store is the remote asset and assignment store
type Store interface {
	GetAsset(ctx context.Context, id int64) (models.AssetRecord, error)
	CreateAsset(ctx context.Context, payload xano.AssetPayload) (int64, error)
	UpdateAsset(ctx context.Context, id int64, edits models.AssetEdits) error
	ListAssignments(ctx context.Context) ([]models.Assignment, error)
	CreateAssignment(ctx context.Context, slot int, assetID int64) error
	UpdateAssignment(ctx context.Context, id int64, slot int, assetID int64) error
	DeleteAssignment(ctx context.Context, id int64) error
}

// Presenter shows the asset of an activated slot
type Presenter interface {
	Present(ctx context.Context, slot int, asset models.NormalizedAsset) playback.Surface
	Stop(ctx context.Context)
}

type SlotState string

const (
	StateIdle     SlotState = "idle"
	StateAssigned SlotState = "assigned"
	StatePlaying  SlotState = "playing"
)

// Slot is the view of one hotkey
type Slot struct {
	Number     int                `json:"slot"`
	State      SlotState          `json:"state"`
	Assignment *models.Assignment `json:"assignment,omitempty"`
}

type Snapshot struct {
	Slots   []Slot                  `json:"slots"`
	Session *models.PlaybackSession `json:"session"`
	Loaded  bool                    `json:"loaded"`
}

// BindRequest assigns Candidate to Slot, applying Edits to its metadata first
type BindRequest struct {
	Slot      int                    `json:"slot"`
	Candidate models.NormalizedAsset `json:"candidate"`
	Edits     models.AssetEdits      `json:"edits"`
}

type Options struct {
	Store       Store
	Presenter   Presenter
	Preferences db.Store
	Notifier    notify.Notifier
	Publisher   events.Publisher
	Thumbnails  *thumbnail.Pipeline
}

// Machine holds the hotkey table and the single playback session.
// The table is only ever replaced wholesale from the store, and reloads
// never overlap.
type Machine struct {
	store     Store
	presenter Presenter
	prefs     db.Store
	notifier  notify.Notifier
	publisher events.Publisher
	thumbs    *thumbnail.Pipeline
	board     *thumbnail.Board

	reloadMu sync.Mutex
	// serialises session changes so presenting follows the pointer
	sessionMu sync.Mutex

	m       sync.RWMutex
	table   map[int]models.Assignment
	session *models.PlaybackSession
	loaded  bool
}

func NewMachine(opts Options) *Machine {
	mc := &Machine{
		store:     opts.Store,
		presenter: opts.Presenter,
		prefs:     opts.Preferences,
		notifier:  opts.Notifier,
		publisher: opts.Publisher,
		thumbs:    opts.Thumbnails,
		table:     map[int]models.Assignment{},
	}
	if mc.notifier == nil {
		mc.notifier = notify.Discard{}
	}
	if mc.publisher == nil {
		mc.publisher = events.Discard{}
	}
	mc.board = thumbnail.NewBoard("assignments", func(f thumbnail.Fill) {
		mc.publisher.Publish(events.StreamThumbnails, f)
	})
	return mc
}

// Board is the assignment list's thumbnail board
func (mc *Machine) Board() *thumbnail.Board {
	return mc.board
}

func (mc *Machine) Assignment(slot int) (models.Assignment, bool) {
	mc.m.RLock()
	defer mc.m.RUnlock()
	a, ok := mc.table[slot]
	return a, ok
}

func (mc *Machine) Session() (models.PlaybackSession, bool) {
	mc.m.RLock()
	defer mc.m.RUnlock()
	if mc.session == nil {
		return models.PlaybackSession{}, false
	}
	return *mc.session, true
}

// State reports a slot as playing, assigned or idle. Playing only
// follows the session pointer, so an unbound slot can still be playing.
func (mc *Machine) State(slot int) SlotState {
	mc.m.RLock()
	defer mc.m.RUnlock()
	return mc.stateLocked(slot)
}

func (mc *Machine) stateLocked(slot int) SlotState {
	if mc.session != nil && mc.session.Slot == slot {
		return StatePlaying
	}
	if _, ok := mc.table[slot]; ok {
		return StateAssigned
	}
	return StateIdle
}

func (mc *Machine) Snapshot() Snapshot {
	mc.m.RLock()
	defer mc.m.RUnlock()
	snap := Snapshot{Loaded: mc.loaded}
	for n := models.MinSlot; n <= models.MaxSlot; n++ {
		slot := Slot{Number: n, State: mc.stateLocked(n)}
		if a, ok := mc.table[n]; ok {
			slot.Assignment = &a
		}
		snap.Slots = append(snap.Slots, slot)
	}
	if mc.session != nil {
		session := *mc.session
		snap.Session = &session
	}
	return snap
}

// Assignments returns the current table ordered by slot
func (mc *Machine) Assignments() []models.Assignment {
	mc.m.RLock()
	defer mc.m.RUnlock()
	out := make([]models.Assignment, 0, len(mc.table))
	for _, a := range mc.table {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// Bind makes sure the candidate exists in the store, points the slot at
// it and reloads the table
func (mc *Machine) Bind(ctx context.Context, req BindRequest) (models.Assignment, error) {
	if !models.ValidSlot(req.Slot) {
		return models.Assignment{}, ErrInvalidSlot
	}
	if req.Candidate.ID == "" && req.Candidate.MediaURL == "" && req.Candidate.Title == "" {
		return models.Assignment{}, ErrNoCandidate
	}

	assetID, err := mc.ensureAsset(ctx, req.Candidate, req.Edits)
	if err != nil {
		return models.Assignment{}, mc.failed("bind", fmt.Sprintf("Failed to save asset for key %d", req.Slot), err)
	}

	edited := req.Candidate.WithEdits(req.Edits)
	mc.remember(ctx, db.PreferenceTitle, edited.Title)
	mc.remember(ctx, db.PreferenceStation, edited.Station)

	existing, ok := mc.Assignment(req.Slot)
	if ok {
		err = mc.store.UpdateAssignment(ctx, existing.ID, req.Slot, assetID)
	} else {
		err = mc.store.CreateAssignment(ctx, req.Slot, assetID)
	}
	if err != nil {
		return models.Assignment{}, mc.failed("bind", fmt.Sprintf("Failed to assign key %d", req.Slot), err)
	}

	metrics.HotkeyActionTotal.WithLabelValues("bind", "ok").Inc()
	slog.Info("Bound asset to hotkey",
		slog.Int("slot", req.Slot),
		slog.Int64("asset_id", assetID),
		slog.Bool("updated", ok))
	mc.notifier.Notify(notify.LevelSuccess, fmt.Sprintf("Assigned to key %d", req.Slot))

	if err := mc.Reload(ctx); err != nil {
		return models.Assignment{}, err
	}
	assignment, _ := mc.Assignment(req.Slot)
	return assignment, nil
}

// ensureAsset returns the store id for a candidate, creating the asset
// when it only exists in a search result
func (mc *Machine) ensureAsset(ctx context.Context, candidate models.NormalizedAsset, edits models.AssetEdits) (int64, error) {
	if candidate.Source != models.SourceFallback {
		if id, ok := candidate.StoreID(); ok {
			if !edits.Empty() {
				if err := mc.store.UpdateAsset(ctx, id, edits); err != nil {
					return 0, err
				}
			}
			return id, nil
		}
	}
	id, err := mc.store.CreateAsset(ctx, xano.PayloadFromAsset(candidate.WithEdits(edits)))
	if err != nil {
		return 0, err
	}
	slog.Debug("Created asset for hotkey candidate",
		slog.String("candidate", candidate.ID),
		slog.Int64("asset_id", id))
	return id, nil
}

func (mc *Machine) remember(ctx context.Context, kind db.PreferenceKind, value string) {
	if mc.prefs == nil || strings.TrimSpace(value) == "" {
		return
	}
	if err := mc.prefs.Remember(ctx, kind, value); err != nil {
		slog.Warn("Failed to remember preference", slog.String("kind", string(kind)), slog.Any("error", err))
	}
}

// Unbind removes the slot's assignment. A session playing from the slot
// keeps playing until it is deactivated.
func (mc *Machine) Unbind(ctx context.Context, slot int) error {
	if !models.ValidSlot(slot) {
		return ErrInvalidSlot
	}
	existing, ok := mc.Assignment(slot)
	if !ok {
		metrics.HotkeyActionTotal.WithLabelValues("unbind", "missing").Inc()
		return ErrNoAssignment
	}
	if err := mc.store.DeleteAssignment(ctx, existing.ID); err != nil {
		return mc.failed("unbind", fmt.Sprintf("Failed to remove key %d", slot), err)
	}
	metrics.HotkeyActionTotal.WithLabelValues("unbind", "ok").Inc()
	mc.notifier.Notify(notify.LevelSuccess, "Assignment removed")
	return mc.Reload(ctx)
}

// Activate starts a session for the slot, replacing any current session
func (mc *Machine) Activate(ctx context.Context, slot int) (playback.Surface, error) {
	if !models.ValidSlot(slot) {
		return playback.Surface{}, ErrInvalidSlot
	}
	mc.sessionMu.Lock()
	defer mc.sessionMu.Unlock()

	mc.m.Lock()
	assignment, ok := mc.table[slot]
	if !ok {
		mc.m.Unlock()
		metrics.HotkeyActionTotal.WithLabelValues("activate", "missing").Inc()
		mc.notifier.Notify(notify.LevelError, fmt.Sprintf("No asset assigned to key %d", slot))
		return playback.Surface{}, ErrNoAssignment
	}
	var asset models.NormalizedAsset
	if assignment.Asset != nil {
		asset = *assignment.Asset
	}
	mc.session = &models.PlaybackSession{
		ID:        uuid.NewString(),
		Slot:      slot,
		Asset:     asset,
		StartedAt: time.Now(),
	}
	mc.m.Unlock()

	var surface playback.Surface
	if mc.presenter != nil {
		surface = mc.presenter.Present(ctx, slot, asset)
	}
	metrics.HotkeyActionTotal.WithLabelValues("activate", "ok").Inc()
	mc.publish()
	return surface, nil
}

// Deactivate ends the current session if there is one
func (mc *Machine) Deactivate(ctx context.Context) {
	mc.sessionMu.Lock()
	defer mc.sessionMu.Unlock()

	mc.m.Lock()
	if mc.session == nil {
		mc.m.Unlock()
		return
	}
	mc.session = nil
	mc.m.Unlock()

	if mc.presenter != nil {
		mc.presenter.Stop(ctx)
	}
	metrics.HotkeyActionTotal.WithLabelValues("deactivate", "ok").Inc()
	mc.publish()
}

// Reload fetches the table from the store, waiting for any reload
// already in progress to finish first
func (mc *Machine) Reload(ctx context.Context) error {
	mc.reloadMu.Lock()
	defer mc.reloadMu.Unlock()
	return mc.reload(ctx, TriggerUser)
}

// Poll reloads the table unless a reload is already running, in which
// case the tick is skipped
func (mc *Machine) Poll(ctx context.Context) error {
	if !mc.reloadMu.TryLock() {
		metrics.AssignmentReloadTotal.WithLabelValues(TriggerPoll, "skipped").Inc()
		slog.Debug("Skipping assignment poll, reload already running")
		return nil
	}
	defer mc.reloadMu.Unlock()
	return mc.reload(ctx, TriggerPoll)
}

func (mc *Machine) reload(ctx context.Context, trigger string) error {
	assignments, err := mc.store.ListAssignments(ctx)
	if err != nil {
		metrics.AssignmentReloadTotal.WithLabelValues(trigger, "error").Inc()
		slog.Error("Failed to load assignments", slog.String("trigger", trigger), slog.Any("error", err))
		if trigger == TriggerUser {
			mc.notifier.Notify(notify.LevelError, "Failed to load assignments")
		}
		return fmt.Errorf("load assignments: %w", err)
	}

	table := make(map[int]models.Assignment, len(assignments))
	for _, a := range assignments {
		if !models.ValidSlot(a.Slot) {
			slog.Warn("Ignoring assignment with invalid slot", slog.Int64("id", a.ID), slog.Int("slot", a.Slot))
			continue
		}
		if _, dup := table[a.Slot]; dup {
			slog.Warn("Ignoring duplicate assignment", slog.Int64("id", a.ID), slog.Int("slot", a.Slot))
			continue
		}
		table[a.Slot] = a
	}
	mc.hydrate(ctx, table)

	mc.m.Lock()
	mc.table = table
	mc.loaded = true
	mc.m.Unlock()

	metrics.AssignmentReloadTotal.WithLabelValues(trigger, "ok").Inc()
	metrics.AssignedSlots.Set(float64(len(table)))
	mc.publish()
	mc.renderThumbnails(ctx, table)

	if trigger == TriggerUser {
		have := 0
		for _, a := range table {
			if a.Asset != nil && a.Asset.HasMedia() {
				have++
			}
		}
		notify.Coverage(mc.notifier, have, len(table))
	}
	return nil
}

// hydrate attaches each assignment's asset, with placeholders for
// anything the store can't supply
func (mc *Machine) hydrate(ctx context.Context, table map[int]models.Assignment) {
	var (
		m      sync.Mutex
		g      errgroup.Group
		assets = make(map[int]models.NormalizedAsset, len(table))
	)
	g.SetLimit(hydrateLimit)
	for slot, a := range table {
		g.Go(func() error {
			asset := mc.fetchAsset(ctx, a.AssetID)
			m.Lock()
			assets[slot] = asset
			m.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for slot, asset := range assets {
		a := table[slot]
		a.Asset = &asset
		table[slot] = a
	}
}

func (mc *Machine) fetchAsset(ctx context.Context, assetID *int64) models.NormalizedAsset {
	if assetID == nil {
		return models.NormalizedAsset{Source: models.SourcePrimary, Title: "No Asset ID"}
	}
	id := *assetID
	record, err := mc.store.GetAsset(ctx, id)
	if err != nil {
		if !errors.Is(err, xano.ErrNotFound) {
			slog.Warn("Failed to fetch assigned asset", slog.Int64("asset_id", id), slog.Any("error", err))
		}
		return models.NormalizedAsset{
			ID:     models.StoreAssetID(id),
			Source: models.SourcePrimary,
			Title:  fmt.Sprintf("Missing Asset %d", id),
		}
	}
	return resolver.Normalize(record, models.SourcePrimary).WithID(models.StoreAssetID(id), models.SourcePrimary)
}

func (mc *Machine) renderThumbnails(ctx context.Context, table map[int]models.Assignment) {
	if mc.thumbs == nil {
		return
	}
	rows := make([]thumbnail.Row, 0, len(table))
	for n := models.MinSlot; n <= models.MaxSlot; n++ {
		a, ok := table[n]
		if !ok || a.Asset == nil {
			continue
		}
		rows = append(rows, thumbnail.Row{ID: fmt.Sprintf("slot-%d", n), Asset: *a.Asset})
	}
	mc.thumbs.Render(ctx, mc.board, rows)
}

func (mc *Machine) publish() {
	mc.publisher.Publish(events.StreamAssignments, mc.Snapshot())
}

func (mc *Machine) failed(action, message string, err error) error {
	metrics.HotkeyActionTotal.WithLabelValues(action, "error").Inc()
	slog.Error(message, slog.Any("error", err))
	mc.notifier.Alert("Hotkey "+action+" failed", message)
	return fmt.Errorf("%s: %w", action, err)
}
