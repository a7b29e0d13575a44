package hotkeys

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/marcus-crane/voxpro/models"
	"github.com/marcus-crane/voxpro/notify"
	"github.com/marcus-crane/voxpro/xano"
)

var errStoreDown = errors.New("store unreachable")

// fakeStore is an in-memory asset and assignment store
type fakeStore struct {
	m           sync.Mutex
	assets      map[int64]models.AssetRecord
	assignments map[int64]models.Assignment
	nextAsset   int64
	nextAssign  int64
	calls       []string
	created     []xano.AssetPayload
	updated     map[int64]models.AssetEdits

	listErr   error
	createErr error
	// gate, when set, blocks ListAssignments until it is closed
	gate       chan struct{}
	listing    atomic.Int64
	maxListing atomic.Int64
	lists      atomic.Int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		assets:      map[int64]models.AssetRecord{},
		assignments: map[int64]models.Assignment{},
		updated:     map[int64]models.AssetEdits{},
		nextAsset:   100,
		nextAssign:  1,
	}
}

func (f *fakeStore) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeStore) log() []string {
	f.m.Lock()
	defer f.m.Unlock()
	return append([]string{}, f.calls...)
}

func (f *fakeStore) seedAsset(id int64, record models.AssetRecord) {
	f.m.Lock()
	defer f.m.Unlock()
	f.assets[id] = record
}

func (f *fakeStore) seedAssignment(slot int, assetID *int64) int64 {
	f.m.Lock()
	defer f.m.Unlock()
	id := f.nextAssign
	f.nextAssign++
	f.assignments[id] = models.Assignment{ID: id, Slot: slot, AssetID: assetID}
	return id
}

func (f *fakeStore) GetAsset(ctx context.Context, id int64) (models.AssetRecord, error) {
	f.m.Lock()
	defer f.m.Unlock()
	record, ok := f.assets[id]
	if !ok {
		return nil, xano.ErrNotFound
	}
	return record, nil
}

func (f *fakeStore) CreateAsset(ctx context.Context, payload xano.AssetPayload) (int64, error) {
	f.m.Lock()
	defer f.m.Unlock()
	f.record("POST /asset")
	if f.createErr != nil {
		return 0, f.createErr
	}
	id := f.nextAsset
	f.nextAsset++
	f.created = append(f.created, payload)
	f.assets[id] = models.AssetRecord{
		"id":           float64(id),
		"title":        payload.Title,
		"station":      payload.Station,
		"database_url": payload.DatabaseURL,
		"file_type":    payload.FileType,
	}
	return id, nil
}

func (f *fakeStore) UpdateAsset(ctx context.Context, id int64, edits models.AssetEdits) error {
	f.m.Lock()
	defer f.m.Unlock()
	f.record("PUT /asset")
	f.updated[id] = edits
	if record, ok := f.assets[id]; ok && edits.Title != nil {
		record["title"] = *edits.Title
	}
	return nil
}

func (f *fakeStore) ListAssignments(ctx context.Context) ([]models.Assignment, error) {
	f.lists.Add(1)
	n := f.listing.Add(1)
	defer f.listing.Add(-1)
	for {
		peak := f.maxListing.Load()
		if n <= peak || f.maxListing.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.gate != nil {
		<-f.gate
	}

	f.m.Lock()
	defer f.m.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.Assignment, 0, len(f.assignments))
	for _, a := range f.assignments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) CreateAssignment(ctx context.Context, slot int, assetID int64) error {
	f.m.Lock()
	defer f.m.Unlock()
	f.record("POST /voxpro_assignments")
	id := f.nextAssign
	f.nextAssign++
	f.assignments[id] = models.Assignment{ID: id, Slot: slot, AssetID: &assetID}
	return nil
}

func (f *fakeStore) UpdateAssignment(ctx context.Context, id int64, slot int, assetID int64) error {
	f.m.Lock()
	defer f.m.Unlock()
	f.record("PUT /voxpro_assignments")
	f.assignments[id] = models.Assignment{ID: id, Slot: slot, AssetID: &assetID}
	return nil
}

func (f *fakeStore) DeleteAssignment(ctx context.Context, id int64) error {
	f.m.Lock()
	defer f.m.Unlock()
	f.record("DELETE /voxpro_assignments")
	delete(f.assignments, id)
	return nil
}

type recordingNotifier struct {
	m       sync.Mutex
	notices []string
	alerts  []string
}

func (r *recordingNotifier) Notify(level notify.Level, message string) {
	r.m.Lock()
	defer r.m.Unlock()
	r.notices = append(r.notices, string(level)+":"+message)
}

func (r *recordingNotifier) Alert(title, message string) {
	r.m.Lock()
	defer r.m.Unlock()
	r.alerts = append(r.alerts, title)
}
