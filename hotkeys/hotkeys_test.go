package hotkeys

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus-crane/voxpro/db"
	"github.com/marcus-crane/voxpro/models"
	"github.com/marcus-crane/voxpro/playback"
	"github.com/marcus-crane/voxpro/xano"
)

func newMachine(t *testing.T, store *fakeStore) (*Machine, *playback.Controller, *recordingNotifier) {
	t.Helper()
	controller := playback.NewController(playback.Options{})
	notifier := &recordingNotifier{}
	mc := NewMachine(Options{
		Store:       store,
		Presenter:   controller,
		Preferences: db.NewMapStore(),
		Notifier:    notifier,
	})
	return mc, controller, notifier
}

func int64p(n int64) *int64 {
	return &n
}

func TestBind_FallbackCandidateIsPersistedFirst(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	mc, controller, _ := newMachine(t, store)
	require.NoError(t, mc.Reload(ctx))

	candidate := models.NormalizedAsset{
		ID:        "fallback:9",
		Source:    models.SourceFallback,
		Title:     "Storm Coverage",
		MediaURL:  "https://x/a.mp4",
		MediaType: models.MediaVideo,
	}
	assignment, err := mc.Bind(ctx, BindRequest{Slot: 3, Candidate: candidate})
	require.NoError(t, err)

	assert.Equal(t, []string{"POST /asset", "POST /voxpro_assignments"}, store.log())
	want := []xano.AssetPayload{{Title: "Storm Coverage", DatabaseURL: "https://x/a.mp4", FileType: "video"}}
	if !cmp.Equal(want, store.created) {
		t.Error(cmp.Diff(want, store.created))
	}
	assert.Equal(t, 3, assignment.Slot)
	require.NotNil(t, assignment.AssetID)
	assert.Equal(t, int64(100), *assignment.AssetID)
	require.NotNil(t, assignment.Asset)
	assert.Equal(t, models.StoreAssetID(100), assignment.Asset.ID)
	assert.Equal(t, StateAssigned, mc.State(3))

	surface, err := mc.Activate(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, playback.SurfaceVideo, surface.Kind)
	assert.Equal(t, "https://x/a.mp4#t=0.1", surface.Source)
	assert.Equal(t, StatePlaying, mc.State(3))

	active, ok := controller.Active()
	require.True(t, ok)
	assert.Equal(t, surface.ID, active.ID)
}

func TestBind_RebindUpdatesExistingAssignment(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.seedAsset(12, models.AssetRecord{"id": float64(12), "title": "Old", "media_url": "https://x/old.mp3"})
	store.seedAsset(13, models.AssetRecord{"id": float64(13), "title": "New", "media_url": "https://x/new.mp3"})
	store.seedAssignment(1, int64p(12))
	mc, _, _ := newMachine(t, store)
	require.NoError(t, mc.Reload(ctx))

	candidate := models.NormalizedAsset{ID: "xano:13", Source: models.SourcePrimary, Title: "New"}
	assignment, err := mc.Bind(ctx, BindRequest{Slot: 1, Candidate: candidate})
	require.NoError(t, err)
	assert.Equal(t, []string{"PUT /voxpro_assignments"}, store.log())
	assert.Equal(t, int64(1), assignment.ID)
	assert.Equal(t, "New", assignment.Asset.Title)
	assert.Len(t, mc.Assignments(), 1)
}

func TestBind_EditsExistingStoreAsset(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.seedAsset(12, models.AssetRecord{"id": float64(12), "title": "Draft", "media_url": "https://x/a.mp3"})
	mc, _, _ := newMachine(t, store)

	title, station := "Bulletin", "ZB"
	edits := models.AssetEdits{Title: &title, Station: &station}
	candidate := models.NormalizedAsset{ID: "xano:12", Source: models.SourcePrimary, Title: "Draft"}
	assignment, err := mc.Bind(ctx, BindRequest{Slot: 2, Candidate: candidate, Edits: edits})
	require.NoError(t, err)

	assert.Equal(t, []string{"PUT /asset", "POST /voxpro_assignments"}, store.log())
	assert.Equal(t, edits, store.updated[12])
	assert.Equal(t, "Bulletin", assignment.Asset.Title)

	titles, err := mc.prefs.Suggestions(ctx, db.PreferenceTitle, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bulletin"}, titles)
	stations, err := mc.prefs.Suggestions(ctx, db.PreferenceStation, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ZB"}, stations)
}

func TestBind_PrimaryWithoutStoreIDIsPersisted(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	mc, _, _ := newMachine(t, store)

	candidate := models.NormalizedAsset{ID: "webflow:abc", Source: models.SourcePrimary, Title: "Promo", MediaURL: "https://x/p.mp3"}
	_, err := mc.Bind(ctx, BindRequest{Slot: 5, Candidate: candidate})
	require.NoError(t, err)
	assert.Equal(t, []string{"POST /asset", "POST /voxpro_assignments"}, store.log())
}

func TestBind_FailureAlertsAndLeavesTable(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.createErr = errStoreDown
	mc, _, notifier := newMachine(t, store)

	candidate := models.NormalizedAsset{ID: "fallback:1", Source: models.SourceFallback, Title: "X"}
	_, err := mc.Bind(ctx, BindRequest{Slot: 1, Candidate: candidate})
	require.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, []string{"Hotkey bind failed"}, notifier.alerts)
	assert.Equal(t, StateIdle, mc.State(1))
}

func TestBind_Validation(t *testing.T) {
	ctx := context.Background()
	mc, _, _ := newMachine(t, newFakeStore())
	_, err := mc.Bind(ctx, BindRequest{Slot: 6, Candidate: models.NormalizedAsset{Title: "x"}})
	assert.ErrorIs(t, err, ErrInvalidSlot)
	_, err = mc.Bind(ctx, BindRequest{Slot: 1})
	assert.ErrorIs(t, err, ErrNoCandidate)
}

func TestUnbind_LeavesSessionAlone(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.seedAsset(20, models.AssetRecord{"id": float64(20), "title": "Traffic", "media_url": "https://x/t.mp3"})
	store.seedAssignment(2, int64p(20))
	mc, controller, _ := newMachine(t, store)
	require.NoError(t, mc.Reload(ctx))

	_, err := mc.Activate(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, mc.Unbind(ctx, 2))
	_, ok := mc.Assignment(2)
	assert.False(t, ok)

	session, ok := mc.Session()
	require.True(t, ok)
	assert.Equal(t, 2, session.Slot)
	assert.Equal(t, StatePlaying, mc.State(2))
	_, ok = controller.Active()
	assert.True(t, ok)

	mc.Deactivate(ctx)
	_, ok = mc.Session()
	assert.False(t, ok)
	assert.Equal(t, StateIdle, mc.State(2))

	assert.ErrorIs(t, mc.Unbind(ctx, 2), ErrNoAssignment)
}

func TestActivate_NoAssignment(t *testing.T) {
	ctx := context.Background()
	mc, controller, notifier := newMachine(t, newFakeStore())
	require.NoError(t, mc.Reload(ctx))

	_, err := mc.Activate(ctx, 4)
	assert.ErrorIs(t, err, ErrNoAssignment)
	_, ok := mc.Session()
	assert.False(t, ok)
	_, ok = controller.Active()
	assert.False(t, ok)
	assert.Contains(t, notifier.notices, "error:No asset assigned to key 4")

	_, err = mc.Activate(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidSlot)
}

func TestActivate_AtMostOneSession(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	for slot := 1; slot <= 5; slot++ {
		id := int64(slot * 10)
		store.seedAsset(id, models.AssetRecord{"id": float64(id), "title": "Clip", "media_url": "https://x/clip.mp3"})
		store.seedAssignment(slot, int64p(id))
	}
	mc, controller, _ := newMachine(t, store)
	require.NoError(t, mc.Reload(ctx))

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%7 == 0 {
				mc.Deactivate(ctx)
				return
			}
			_, err := mc.Activate(ctx, i%5+1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	playing := 0
	for _, slot := range mc.Snapshot().Slots {
		if slot.State == StatePlaying {
			playing++
		}
	}
	assert.LessOrEqual(t, playing, 1)

	session, hasSession := mc.Session()
	surface, hasSurface := controller.Active()
	assert.Equal(t, hasSession, hasSurface)
	if hasSession {
		assert.Equal(t, session.Slot, surface.Slot)
	}
}

func TestDeactivate_Idempotent(t *testing.T) {
	ctx := context.Background()
	mc, _, _ := newMachine(t, newFakeStore())
	mc.Deactivate(ctx)
	mc.Deactivate(ctx)
	_, ok := mc.Session()
	assert.False(t, ok)
}

func TestReload_HydratesWithPlaceholders(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.seedAsset(7, models.AssetRecord{"id": float64(7), "title": "Weather", "file_type": "audio", "media_url": "https://x/w"})
	store.seedAssignment(1, int64p(7))
	store.seedAssignment(2, int64p(404))
	store.seedAssignment(3, nil)
	store.seedAssignment(9, int64p(7))
	store.seedAssignment(1, int64p(404))
	mc, _, notifier := newMachine(t, store)
	require.NoError(t, mc.Reload(ctx))

	got := mc.Assignments()
	require.Len(t, got, 3)
	assert.Equal(t, "Weather", got[0].Asset.Title)
	assert.Equal(t, models.MediaAudio, got[0].Asset.MediaType)
	assert.Equal(t, "Missing Asset 404", got[1].Asset.Title)
	assert.Equal(t, "No Asset ID", got[2].Asset.Title)
	assert.Contains(t, notifier.notices, "success:Media URLs found: 1/3")
	assert.True(t, mc.Snapshot().Loaded)
}

func TestReload_FailureKeepsPreviousTable(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.seedAsset(7, models.AssetRecord{"id": float64(7), "title": "Weather", "media_url": "https://x/w.mp3"})
	store.seedAssignment(1, int64p(7))
	mc, _, _ := newMachine(t, store)
	require.NoError(t, mc.Reload(ctx))

	store.m.Lock()
	store.listErr = errStoreDown
	store.m.Unlock()
	assert.ErrorIs(t, mc.Poll(ctx), errStoreDown)
	assert.Equal(t, StateAssigned, mc.State(1))
}

func TestPoll_SkipsWhileReloadRunning(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.gate = make(chan struct{})
	mc, _, _ := newMachine(t, store)

	done := make(chan error)
	go func() {
		done <- mc.Reload(ctx)
	}()
	require.Eventually(t, func() bool { return store.lists.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, mc.Poll(ctx))
	assert.Equal(t, int64(1), store.lists.Load())

	close(store.gate)
	require.NoError(t, <-done)
	require.NoError(t, mc.Poll(ctx))
	assert.Equal(t, int64(2), store.lists.Load())
}

func TestReload_UserTriggersNeverOverlap(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	mc, _, _ := newMachine(t, store)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, mc.Reload(ctx))
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, mc.Poll(ctx))
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), store.maxListing.Load())
	assert.GreaterOrEqual(t, store.lists.Load(), int64(10))
}
