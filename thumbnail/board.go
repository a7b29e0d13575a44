package thumbnail

import (
	"context"
	"sync"

	"github.com/marcus-crane/voxpro/metrics"
	"github.com/marcus-crane/voxpro/models"
)

// Row is one entry of a rendered list that wants a preview
type Row struct {
	ID    string
	Asset models.NormalizedAsset
}

// Fill is delivered once a row's real preview is ready
type Fill struct {
	Board      string  `json:"board"`
	Generation uint64  `json:"generation"`
	RowID      string  `json:"row_id"`
	Preview    Preview `json:"preview"`
	Markup     string  `json:"markup"`
}

// Board is a list of rows whose previews are filled in asynchronously.
// Every render bumps the generation and fills from an older generation
// are dropped, so a slow decode can never land in a list that has since
// been redrawn.
type Board struct {
	Name   string
	OnFill func(Fill)

	m          sync.Mutex
	generation uint64
	rows       map[string]Preview
	order      []string
	wg         sync.WaitGroup
}

func NewBoard(name string, onFill func(Fill)) *Board {
	return &Board{
		Name:   name,
		OnFill: onFill,
		rows:   map[string]Preview{},
	}
}

// Generation is the current render pass
func (b *Board) Generation() uint64 {
	b.m.Lock()
	defer b.m.Unlock()
	return b.generation
}

// Snapshot returns the current preview of every row, in render order
func (b *Board) Snapshot() []Fill {
	b.m.Lock()
	defer b.m.Unlock()
	fills := make([]Fill, 0, len(b.order))
	for _, id := range b.order {
		p := b.rows[id]
		fills = append(fills, Fill{Board: b.Name, Generation: b.generation, RowID: id, Preview: p, Markup: p.Markup()})
	}
	return fills
}

// Wait blocks until every dispatched fill has finished, kept or not
func (b *Board) Wait() {
	b.wg.Wait()
}

func (b *Board) begin(rows []Row) (uint64, []Fill) {
	b.m.Lock()
	defer b.m.Unlock()
	b.generation++
	b.rows = make(map[string]Preview, len(rows))
	b.order = make([]string, 0, len(rows))
	fills := make([]Fill, 0, len(rows))
	for _, row := range rows {
		p := placeholderPreview(row.Asset.MediaType)
		b.rows[row.ID] = p
		b.order = append(b.order, row.ID)
		fills = append(fills, Fill{Board: b.Name, Generation: b.generation, RowID: row.ID, Preview: p, Markup: p.Markup()})
	}
	return b.generation, fills
}

// fill applies a preview if its generation is still current
func (b *Board) fill(generation uint64, rowID string, p Preview) bool {
	b.m.Lock()
	if generation != b.generation {
		b.m.Unlock()
		metrics.ThumbnailFillsDiscarded.WithLabelValues(b.Name).Inc()
		return false
	}
	b.rows[rowID] = p
	onFill := b.OnFill
	b.m.Unlock()

	if onFill != nil {
		onFill(Fill{Board: b.Name, Generation: generation, RowID: rowID, Preview: p, Markup: p.Markup()})
	}
	return true
}

// Render starts a new pass over rows. Placeholders are returned
// immediately and each row is filled in from its own goroutine.
func (p *Pipeline) Render(ctx context.Context, b *Board, rows []Row) []Fill {
	generation, placeholders := b.begin(rows)
	ctx = context.WithoutCancel(ctx)
	for _, row := range rows {
		b.wg.Add(1)
		go func(row Row) {
			defer b.wg.Done()
			preview := p.Thumbnail(ctx, row.Asset)
			b.fill(generation, row.ID, preview)
		}(row)
	}
	return placeholders
}
