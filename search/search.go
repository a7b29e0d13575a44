package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/marcus-crane/voxpro/events"
	"github.com/marcus-crane/voxpro/metrics"
	"github.com/marcus-crane/voxpro/models"
	"github.com/marcus-crane/voxpro/notify"
	"github.com/marcus-crane/voxpro/resolver"
	"github.com/marcus-crane/voxpro/utils"
)

const (
	DefaultDebounce = 180 * time.Millisecond
	DefaultLimit    = 100
	DefaultTimeout  = 12 * time.Second

	fallbackPrefix = "fallback:"
)

var (
	// ErrSuperseded is returned to a call whose results were overtaken by a newer call
	ErrSuperseded = errors.New("search superseded by a newer query")
)

// Lister is the backing store's raw listing, used when no search endpoint answers
type Lister interface {
	ListAssets(ctx context.Context) ([]models.AssetRecord, error)
}

type Options struct {
	Endpoints  []string
	Limit      int
	Debounce   time.Duration
	HTTPClient *http.Client
	Store      Lister
	Notifier   notify.Notifier
	Publisher  events.Publisher
}

// Results is what the most recently applied search produced
type Results struct {
	Query    string                   `json:"query"`
	Sequence uint64                   `json:"sequence"`
	Source   string                   `json:"source"`
	Assets   []models.NormalizedAsset `json:"assets"`
}

type pendingCall struct {
	seq        uint64
	timer      *time.Timer
	fire       chan struct{}
	superseded chan struct{}
}

// Aggregator runs debounced searches across the configured endpoints.
// The first endpoint to answer is pinned for the rest of the process and
// only the most recently issued search is allowed to be the last applied.
type Aggregator struct {
	endpoints []string
	limit     int
	debounce  time.Duration
	client    *http.Client
	store     Lister
	notifier  notify.Notifier
	publisher events.Publisher

	m       sync.Mutex
	pending *pendingCall
	issued  uint64
	applied uint64
	chosen  string
	latest  Results
}

func NewAggregator(opts Options) *Aggregator {
	a := &Aggregator{
		endpoints: opts.Endpoints,
		limit:     opts.Limit,
		debounce:  opts.Debounce,
		client:    opts.HTTPClient,
		store:     opts.Store,
		notifier:  opts.Notifier,
		publisher: opts.Publisher,
		latest:    Results{Assets: []models.NormalizedAsset{}},
	}
	if a.limit <= 0 {
		a.limit = DefaultLimit
	}
	if a.debounce <= 0 {
		a.debounce = DefaultDebounce
	}
	if a.client == nil {
		a.client = utils.NewHTTPClient(DefaultTimeout)
	}
	if a.notifier == nil {
		a.notifier = notify.Discard{}
	}
	if a.publisher == nil {
		a.publisher = events.Discard{}
	}
	return a
}

// Chosen is the endpoint pinned by the first successful search, if any
func (a *Aggregator) Chosen() string {
	a.m.Lock()
	defer a.m.Unlock()
	return a.chosen
}

// Latest returns the most recently applied results
func (a *Aggregator) Latest() Results {
	a.m.Lock()
	defer a.m.Unlock()
	return a.latest
}

// Search waits out the debounce window and then queries. A newer call
// made during the window cancels this one before it starts, and a call
// that finishes after a newer one has been applied is discarded. Both
// cases return ErrSuperseded.
func (a *Aggregator) Search(ctx context.Context, query string) ([]models.NormalizedAsset, error) {
	call := a.schedule()

	select {
	case <-call.superseded:
		metrics.SearchSupersededTotal.Inc()
		return nil, ErrSuperseded
	case <-ctx.Done():
		a.m.Lock()
		if a.pending == call && call.timer.Stop() {
			a.pending = nil
		}
		a.m.Unlock()
		return nil, ctx.Err()
	case <-call.fire:
	}

	res := a.execute(ctx, query)
	res.Sequence = call.seq

	a.m.Lock()
	if call.seq < a.applied {
		a.m.Unlock()
		metrics.SearchSupersededTotal.Inc()
		return nil, ErrSuperseded
	}
	a.applied = call.seq
	a.latest = res
	a.m.Unlock()

	a.publisher.Publish(events.StreamSearch, res)
	return res.Assets, nil
}

func (a *Aggregator) schedule() *pendingCall {
	a.m.Lock()
	defer a.m.Unlock()
	if prev := a.pending; prev != nil && prev.timer.Stop() {
		close(prev.superseded)
	}
	a.issued++
	call := &pendingCall{
		seq:        a.issued,
		fire:       make(chan struct{}),
		superseded: make(chan struct{}),
	}
	call.timer = time.AfterFunc(a.debounce, func() {
		a.m.Lock()
		if a.pending == call {
			a.pending = nil
		}
		a.m.Unlock()
		close(call.fire)
	})
	a.pending = call
	return call
}

func (a *Aggregator) candidates() []string {
	a.m.Lock()
	defer a.m.Unlock()
	if a.chosen != "" {
		return []string{a.chosen}
	}
	return a.endpoints
}

func (a *Aggregator) pin(endpoint string) {
	a.m.Lock()
	defer a.m.Unlock()
	if a.chosen == "" {
		a.chosen = endpoint
		slog.Info("Pinned search endpoint", slog.String("endpoint", endpoint))
	}
}

func (a *Aggregator) execute(ctx context.Context, query string) Results {
	q := strings.TrimSpace(query)
	res := Results{Query: q, Assets: []models.NormalizedAsset{}}

	var lastErr error
	for _, endpoint := range a.candidates() {
		records, err := a.queryEndpoint(ctx, endpoint, q)
		if err != nil {
			slog.Warn("Search endpoint failed", slog.String("endpoint", endpoint), slog.Any("error", err))
			metrics.SearchRequestTotal.WithLabelValues("primary", "error").Inc()
			lastErr = err
			continue
		}
		metrics.SearchRequestTotal.WithLabelValues("primary", "ok").Inc()
		a.pin(endpoint)
		res.Source = endpoint
		for _, r := range records {
			res.Assets = append(res.Assets, resolver.Normalize(r, models.SourcePrimary))
		}
		a.reportCoverage(res.Assets)
		return res
	}

	assets, err := a.fallback(ctx, q)
	if err != nil {
		metrics.SearchRequestTotal.WithLabelValues("fallback", "error").Inc()
		slog.Error("Search failed", slog.String("query", q), slog.Any("error", err), slog.Any("last_endpoint_error", lastErr))
		a.notifier.Notify(notify.LevelError, "Search failed")
		return res
	}
	metrics.SearchRequestTotal.WithLabelValues("fallback", "ok").Inc()
	res.Source = string(models.SourceFallback)
	res.Assets = assets
	a.reportCoverage(res.Assets)
	return res
}

type endpointResponse struct {
	Results []models.AssetRecord `json:"results"`
}

func (a *Aggregator) queryEndpoint(ctx context.Context, endpoint, q string) ([]models.AssetRecord, error) {
	params := url.Values{}
	if q != "" {
		params.Set("q", q)
	}
	params.Set("limit", strconv.Itoa(a.limit))
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+sep+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	res, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("search endpoint returned %d", res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	var payload endpointResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return payload.Results, nil
}

func (a *Aggregator) fallback(ctx context.Context, q string) ([]models.NormalizedAsset, error) {
	if a.store == nil {
		return nil, errors.New("no fallback store configured")
	}
	records, err := a.store.ListAssets(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(records, q), nil
}

// Filter matches q case-insensitively against the text fields of each
// record. An empty query matches everything.
func Filter(records []models.AssetRecord, q string) []models.NormalizedAsset {
	needle := strings.ToLower(strings.TrimSpace(q))
	out := []models.NormalizedAsset{}
	for _, r := range records {
		if r == nil {
			continue
		}
		haystack := strings.ToLower(strings.Join([]string{
			r.String("title"),
			r.String("description"),
			r.String("station"),
			r.Tags(),
			r.String("submitted_by"),
		}, " "))
		if needle != "" && !strings.Contains(haystack, needle) {
			continue
		}
		asset := resolver.Normalize(r, models.SourceFallback)
		out = append(out, asset.WithID(fallbackPrefix+r.ID(), models.SourceFallback))
	}
	return out
}

func (a *Aggregator) reportCoverage(assets []models.NormalizedAsset) {
	have := 0
	for _, asset := range assets {
		if asset.HasMedia() {
			have++
		}
	}
	notify.Coverage(a.notifier, have, len(assets))
}
