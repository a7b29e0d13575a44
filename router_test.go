package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus-crane/voxpro/db"
	"github.com/marcus-crane/voxpro/events"
	"github.com/marcus-crane/voxpro/hotkeys"
	"github.com/marcus-crane/voxpro/models"
	"github.com/marcus-crane/voxpro/notify"
	"github.com/marcus-crane/voxpro/playback"
	"github.com/marcus-crane/voxpro/search"
	"github.com/marcus-crane/voxpro/thumbnail"
	"github.com/marcus-crane/voxpro/xano"
)

const testSecret = "hunter2"

// storeServer is a minimal in-memory asset and assignment store
type storeServer struct {
	m           sync.Mutex
	assets      map[int64]map[string]any
	assignments map[int64]map[string]any
	nextID      int64
}

func newStoreServer(t *testing.T) *httptest.Server {
	s := &storeServer{assets: map[int64]map[string]any{}, assignments: map[int64]map[string]any{}, nextID: 1}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /asset", func(w http.ResponseWriter, r *http.Request) {
		s.m.Lock()
		defer s.m.Unlock()
		out := []map[string]any{}
		for _, a := range s.assets {
			out = append(out, a)
		}
		json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("GET /asset/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.m.Lock()
		defer s.m.Unlock()
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		a, ok := s.assets[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(a)
	})
	mux.HandleFunc("POST /asset", func(w http.ResponseWriter, r *http.Request) {
		s.m.Lock()
		defer s.m.Unlock()
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		id := s.nextID
		s.nextID++
		body["id"] = id
		s.assets[id] = body
		json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("GET /voxpro_assignments", func(w http.ResponseWriter, r *http.Request) {
		s.m.Lock()
		defer s.m.Unlock()
		out := []map[string]any{}
		for _, a := range s.assignments {
			out = append(out, a)
		}
		json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("POST /voxpro_assignments", func(w http.ResponseWriter, r *http.Request) {
		s.m.Lock()
		defer s.m.Unlock()
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		id := s.nextID
		s.nextID++
		body["id"] = id
		s.assignments[id] = body
		json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("DELETE /voxpro_assignments/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.m.Lock()
		defer s.m.Unlock()
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		delete(s.assignments, id)
	})
	ts := httptest.NewTLSServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func setupApp(t *testing.T) (http.Handler, *App) {
	t.Helper()
	storeTS := newStoreServer(t)
	store := xano.NewClient(storeTS.URL)
	store.HTTPClient = storeTS.Client()

	searchTS := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"id": "webflow:abc", "title": "Result " + q, "media_url": "https://media.example/" + q + ".pdf"},
			},
		})
	}))
	t.Cleanup(searchTS.Close)

	broker := events.NewBroker()
	t.Cleanup(broker.Close)
	notices := notify.NewCenter(broker, "", "")
	pipeline, err := thumbnail.NewPipeline(thumbnail.Options{})
	require.NoError(t, err)
	controller := playback.NewController(playback.Options{Publisher: broker, Palettes: pipeline})
	prefs := db.NewMapStore()
	machine := hotkeys.NewMachine(hotkeys.Options{
		Store:       store,
		Presenter:   controller,
		Preferences: prefs,
		Notifier:    notices,
		Publisher:   broker,
		Thumbnails:  pipeline,
	})
	aggregator := search.NewAggregator(search.Options{
		Endpoints:  []string{searchTS.URL},
		Debounce:   time.Millisecond,
		HTTPClient: searchTS.Client(),
		Store:      store,
		Notifier:   notices,
		Publisher:  broker,
	})
	app := &App{
		Store:          store,
		Search:         aggregator,
		Hotkeys:        machine,
		Playback:       controller,
		Thumbnails:     pipeline,
		Preferences:    prefs,
		Notices:        notices,
		Events:         broker,
		AllowedOrigins: []string{"http://localhost:8080"},
		WebhookSecret:  testSecret,
	}
	return RegisterRoutes(http.NewServeMux(), app), app
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBindActivateStop(t *testing.T) {
	h, app := setupApp(t)

	body := `{"candidate":{"id":"fallback:1","source":"fallback","title":"Storm Coverage","media_url":"https://x/a.mp4","media_type":"video"},"edits":{"station":"ZB"}}`
	rec := do(t, h, http.MethodPut, "/api/v1/hotkeys/3", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var assignment models.Assignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assignment))
	assert.Equal(t, 3, assignment.Slot)
	require.NotNil(t, assignment.Asset)
	assert.Equal(t, "ZB", assignment.Asset.Station)

	rec = do(t, h, http.MethodPost, "/api/v1/keys/3", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var surface playback.Surface
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &surface))
	assert.Equal(t, playback.SurfaceVideo, surface.Kind)
	assert.Equal(t, "https://x/a.mp4#t=0.1", surface.Source)

	rec = do(t, h, http.MethodGet, "/api/v1/playback", "")
	var state playbackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	require.NotNil(t, state.Session)
	assert.Equal(t, 3, state.Session.Slot)
	require.NotNil(t, state.Surface)
	assert.Equal(t, surface.ID, state.Surface.ID)

	rec = do(t, h, http.MethodPost, "/api/v1/playback/"+surface.ID+"/autoplay-blocked", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tap_to_play":true`)

	rec = do(t, h, http.MethodPost, "/api/v1/keys/space", "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, ok := app.Playback.Active()
	assert.False(t, ok)

	rec = do(t, h, http.MethodPost, "/api/v1/playback/"+surface.ID+"/resume", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/suggestions/stations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["ZB"]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/status", "")
	assert.JSONEq(t, `{"store":"Connected","search_endpoint":""}`, rec.Body.String())
}

func TestActivate_Errors(t *testing.T) {
	h, _ := setupApp(t)

	rec := do(t, h, http.MethodPost, "/api/v1/hotkeys/2/activate", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/hotkeys/9/activate", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/keys/q", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/hotkeys/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/v1/hotkeys/1", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/playback/page?dir=next", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/playback/page?dir=sideways", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch_PinsEndpointAndRendersPreviews(t *testing.T) {
	h, app := setupApp(t)

	rec := do(t, h, http.MethodGet, "/api/v1/search?q=storm", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Results.Assets, 1)
	assert.Equal(t, "Result storm", res.Results.Assets[0].Title)
	assert.Equal(t, models.MediaPDF, res.Results.Assets[0].MediaType)
	require.Len(t, res.Previews, 1)
	assert.Equal(t, thumbnail.KindPlaceholder, res.Previews[0].Preview.Kind)
	assert.NotEmpty(t, app.Search.Chosen())

	app.searchBoard.Wait()
	rec = do(t, h, http.MethodGet, "/api/v1/search/results", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Previews, 1)
	// No page renderer is configured so the pdf falls back to its glyph
	assert.Equal(t, thumbnail.KindGlyph, res.Previews[0].Preview.Kind)
}

func TestUnbind_ViaAPI(t *testing.T) {
	h, app := setupApp(t)
	body := `{"candidate":{"id":"fallback:1","source":"fallback","title":"Traffic","media_url":"https://x/t.mp3"}}`
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, "/api/v1/hotkeys/2", body).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/hotkeys/2/activate", "").Code)

	rec := do(t, h, http.MethodDelete, "/api/v1/hotkeys/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, ok := app.Hotkeys.Assignment(2)
	assert.False(t, ok)
	_, ok = app.Hotkeys.Session()
	assert.True(t, ok)
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestAssignmentsWebhook(t *testing.T) {
	h, _ := setupApp(t)
	body := `{"event":"assignment.updated"}`

	rec := do(t, h, http.MethodPost, "/api/v1/webhooks/assignments", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/assignments", strings.NewReader(body))
	req.Header.Set(signatureHeader, sign("something else"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/assignments", strings.NewReader(body))
	req.Header.Set(signatureHeader, sign(body))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestMiscRoutes(t *testing.T) {
	h, _ := setupApp(t)

	assert.Equal(t, http.StatusGone, do(t, h, http.MethodGet, thumbnail.RasterPath+"deadbeef", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/suggestions/colours", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/metrics", "").Code)

	rec := do(t, h, http.MethodGet, "/api/v1/playback/history", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
	rec = do(t, h, http.MethodGet, "/api/v1/playback/history?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/assignments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap assignmentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Len(t, snap.Slots, models.MaxSlot)

	rec = do(t, h, http.MethodGet, "/", "")
	assert.Contains(t, rec.Body.String(), "Voxpro")
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, fmt.Sprintf("/nope/%d", 1), "").Code)
}
