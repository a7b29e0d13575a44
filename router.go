package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	hmacext "github.com/alexellis/hmac/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

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

const (
	signatureHeader     = "X-Voxpro-Signature"
	defaultHistoryLimit = 7
	maxBodyBytes        = 1 << 20
)

// App is everything the HTTP API drives
type App struct {
	Store          *xano.Client
	Search         *search.Aggregator
	Hotkeys        *hotkeys.Machine
	Playback       *playback.Controller
	Thumbnails     *thumbnail.Pipeline
	Preferences    db.Store
	Notices        *notify.Center
	Events         *events.Broker
	AllowedOrigins []string
	WebhookSecret  string

	searchBoard *thumbnail.Board
}

type searchResponse struct {
	Results  search.Results   `json:"results"`
	Previews []thumbnail.Fill `json:"previews"`
}

type assignmentsResponse struct {
	hotkeys.Snapshot
	Previews []thumbnail.Fill `json:"previews"`
}

type playbackResponse struct {
	Session *models.PlaybackSession `json:"session"`
	Surface *playback.Surface       `json:"surface"`
}

type bindBody struct {
	Candidate models.NormalizedAsset `json:"candidate"`
	Edits     models.AssetEdits      `json:"edits"`
}

func renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func renderJSONMessage(w http.ResponseWriter, message string) {
	renderJSON(w, http.StatusOK, map[string]string{"message": message})
}

func renderError(w http.ResponseWriter, err error) {
	renderJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, hotkeys.ErrInvalidSlot),
		errors.Is(err, hotkeys.ErrNoCandidate),
		errors.Is(err, playback.ErrInvalidLimit):
		return http.StatusBadRequest
	case errors.Is(err, hotkeys.ErrNoAssignment),
		errors.Is(err, playback.ErrNoSurface),
		errors.Is(err, db.ErrUnknownKind):
		return http.StatusNotFound
	case errors.Is(err, playback.ErrStaleSurface),
		errors.Is(err, playback.ErrNotPaginated),
		errors.Is(err, search.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, thumbnail.ErrPageMissing):
		return http.StatusGone
	default:
		return http.StatusBadGateway
	}
}

func slotParam(r *http.Request) (int, error) {
	slot, err := strconv.Atoi(r.PathValue("slot"))
	if err != nil || !models.ValidSlot(slot) {
		return 0, hotkeys.ErrInvalidSlot
	}
	return slot, nil
}

func limitParam(r *http.Request, fallback int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return fallback
	}
	return limit
}

func RegisterRoutes(mux *http.ServeMux, app *App) http.Handler {
	app.searchBoard = thumbnail.NewBoard("search", func(f thumbnail.Fill) {
		app.Events.Publish(events.StreamThumbnails, f)
	})

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "Welcome to Voxpro, the hotkey media console.\nYou can find the source code on <a href=\"https://github.com/marcus-crane/voxpro\">Github</a>\n")
	})

	mux.HandleFunc("GET /api", func(w http.ResponseWriter, r *http.Request) {
		renderJSONMessage(w, "This is the base of Voxpro's API")
	})

	mux.HandleFunc("GET /api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		status := "Connected"
		if !app.Store.Connected() {
			status = "Connection Error"
		}
		renderJSON(w, http.StatusOK, map[string]string{
			"store":           status,
			"search_endpoint": app.Search.Chosen(),
		})
	})

	mux.HandleFunc("GET /api/v1/search", func(w http.ResponseWriter, r *http.Request) {
		assets, err := app.Search.Search(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			renderError(w, err)
			return
		}
		rows := make([]thumbnail.Row, 0, len(assets))
		for i, asset := range assets {
			rows = append(rows, thumbnail.Row{ID: fmt.Sprintf("result-%d", i), Asset: asset})
		}
		previews := app.Thumbnails.Render(r.Context(), app.searchBoard, rows)
		renderJSON(w, http.StatusOK, searchResponse{Results: app.Search.Latest(), Previews: previews})
	})

	mux.HandleFunc("GET /api/v1/search/results", func(w http.ResponseWriter, r *http.Request) {
		renderJSON(w, http.StatusOK, searchResponse{Results: app.Search.Latest(), Previews: app.searchBoard.Snapshot()})
	})

	mux.HandleFunc("GET /api/v1/assignments", func(w http.ResponseWriter, r *http.Request) {
		renderJSON(w, http.StatusOK, assignmentsResponse{Snapshot: app.Hotkeys.Snapshot(), Previews: app.Hotkeys.Board().Snapshot()})
	})

	mux.HandleFunc("POST /api/v1/assignments/reload", func(w http.ResponseWriter, r *http.Request) {
		if err := app.Hotkeys.Reload(r.Context()); err != nil {
			renderError(w, err)
			return
		}
		renderJSON(w, http.StatusOK, app.Hotkeys.Snapshot())
	})

	mux.HandleFunc("PUT /api/v1/hotkeys/{slot}", func(w http.ResponseWriter, r *http.Request) {
		slot, err := slotParam(r)
		if err != nil {
			renderError(w, err)
			return
		}
		var body bindBody
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
			renderJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to decode request body"})
			return
		}
		assignment, err := app.Hotkeys.Bind(r.Context(), hotkeys.BindRequest{Slot: slot, Candidate: body.Candidate, Edits: body.Edits})
		if err != nil {
			renderError(w, err)
			return
		}
		renderJSON(w, http.StatusOK, assignment)
	})

	mux.HandleFunc("DELETE /api/v1/hotkeys/{slot}", func(w http.ResponseWriter, r *http.Request) {
		slot, err := slotParam(r)
		if err != nil {
			renderError(w, err)
			return
		}
		if err := app.Hotkeys.Unbind(r.Context(), slot); err != nil {
			renderError(w, err)
			return
		}
		renderJSON(w, http.StatusOK, app.Hotkeys.Snapshot())
	})

	mux.HandleFunc("POST /api/v1/hotkeys/{slot}/activate", func(w http.ResponseWriter, r *http.Request) {
		slot, err := slotParam(r)
		if err != nil {
			renderError(w, err)
			return
		}
		surface, err := app.Hotkeys.Activate(r.Context(), slot)
		if err != nil {
			renderError(w, err)
			return
		}
		renderJSON(w, http.StatusOK, surface)
	})

	// Mirrors the console keyboard: 1 to 5 play a slot and space stops
	mux.HandleFunc("POST /api/v1/keys/{key}", func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		if key == "space" || key == " " {
			app.Hotkeys.Deactivate(r.Context())
			renderJSONMessage(w, "Playback stopped")
			return
		}
		slot, err := strconv.Atoi(key)
		if err != nil || !models.ValidSlot(slot) {
			renderJSON(w, http.StatusBadRequest, map[string]string{"error": "key is not bound to an action"})
			return
		}
		surface, err := app.Hotkeys.Activate(r.Context(), slot)
		if err != nil {
			renderError(w, err)
			return
		}
		renderJSON(w, http.StatusOK, surface)
	})

	mux.HandleFunc("GET /api/v1/playback", func(w http.ResponseWriter, r *http.Request) {
		var res playbackResponse
		if session, ok := app.Hotkeys.Session(); ok {
			res.Session = &session
		}
		if surface, ok := app.Playback.Active(); ok {
			res.Surface = &surface
		}
		renderJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("POST /api/v1/playback/stop", func(w http.ResponseWriter, r *http.Request) {
		app.Hotkeys.Deactivate(r.Context())
		renderJSONMessage(w, "Playback stopped")
	})

	mux.HandleFunc("POST /api/v1/playback/{id}/autoplay-blocked", func(w http.ResponseWriter, r *http.Request) {
		surface, err := app.Playback.AutoplayBlocked(r.Context(), r.PathValue("id"))
		if err != nil {
			renderError(w, err)
			return
		}
		renderJSON(w, http.StatusOK, surface)
	})

	mux.HandleFunc("POST /api/v1/playback/{id}/resume", func(w http.ResponseWriter, r *http.Request) {
		surface, err := app.Playback.Resume(r.Context(), r.PathValue("id"))
		if err != nil {
			renderError(w, err)
			return
		}
		renderJSON(w, http.StatusOK, surface)
	})

	mux.HandleFunc("POST /api/v1/playback/page", func(w http.ResponseWriter, r *http.Request) {
		var dir int
		switch r.URL.Query().Get("dir") {
		case "next":
			dir = 1
		case "prev":
			dir = -1
		default:
			renderJSON(w, http.StatusBadRequest, map[string]string{"error": "dir must be next or prev"})
			return
		}
		surface, err := app.Playback.TurnPage(r.Context(), dir)
		if err != nil {
			renderError(w, err)
			return
		}
		renderJSON(w, http.StatusOK, surface)
	})

	mux.HandleFunc("GET "+playback.PagePath+"{page}", func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.PathValue("page"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		img, err := app.Playback.PageImage(r.Context(), r.URL.Query().Get("surface"), page)
		if err != nil {
			renderError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "private, max-age=300")
		if err := png.Encode(w, img); err != nil {
			slog.Error("Failed to encode page", slog.Int("page", page), slog.Any("error", err))
		}
	})

	mux.HandleFunc("GET /api/v1/playback/history", func(w http.ResponseWriter, r *http.Request) {
		results, err := app.Playback.History(r.Context(), limitParam(r, defaultHistoryLimit))
		if err != nil {
			renderError(w, err)
			return
		}
		if len(results) == 0 {
			renderJSON(w, http.StatusOK, []string{})
			return
		}
		renderJSON(w, http.StatusOK, results)
	})

	mux.HandleFunc("GET "+thumbnail.RasterPath+"{key}", func(w http.ResponseWriter, r *http.Request) {
		preview, ok := app.Thumbnails.Lookup(r.Context(), r.PathValue("key"))
		if !ok || len(preview.PNG) == 0 {
			w.WriteHeader(http.StatusGone)
			return
		}
		// Keys are derived from the media URL so a key's preview never changes
		w.Header().Set("Cache-Control", "public, max-age=31622400")
		w.Header().Set("Content-Type", "image/png")
		w.Write(preview.PNG)
	})

	mux.HandleFunc("GET /api/v1/suggestions/{kind}", func(w http.ResponseWriter, r *http.Request) {
		kind, err := db.ParsePreferenceKind(r.PathValue("kind"))
		if err != nil {
			renderError(w, err)
			return
		}
		values, err := app.Preferences.Suggestions(r.Context(), kind, limitParam(r, db.SuggestionLimit))
		if err != nil {
			renderError(w, err)
			return
		}
		renderJSON(w, http.StatusOK, values)
	})

	mux.HandleFunc("GET /api/v1/notices", func(w http.ResponseWriter, r *http.Request) {
		notice, ok := app.Notices.Current()
		if !ok {
			renderJSON(w, http.StatusOK, map[string]any{})
			return
		}
		renderJSON(w, http.StatusOK, notice)
	})

	mux.HandleFunc("POST /api/v1/webhooks/assignments", func(w http.ResponseWriter, r *http.Request) {
		if app.WebhookSecret == "" {
			renderJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "this endpoint is not properly configured"})
			return
		}
		signature := r.Header.Get(signatureHeader)
		if signature == "" {
			renderJSON(w, http.StatusUnauthorized, map[string]string{"error": "no signature was provided"})
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			renderJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body as part of signature validation"})
			return
		}
		if err := hmacext.Validate(body, fmt.Sprintf("sha256=%s", signature), app.WebhookSecret); err != nil {
			slog.With(slog.Any("error", err)).Error("Failed signature validation")
			renderJSON(w, http.StatusUnauthorized, map[string]string{"error": "signature failed validation"})
			return
		}
		if err := app.Hotkeys.Reload(r.Context()); err != nil {
			renderError(w, err)
			return
		}
		renderJSONMessage(w, "Assignments reloaded")
	})

	mux.Handle("GET /events", app.Events)
	mux.Handle("GET /metrics", promhttp.Handler())

	c := cors.New(cors.Options{
		AllowedOrigins: app.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", signatureHeader},
	})

	return c.Handler(mux)
}
