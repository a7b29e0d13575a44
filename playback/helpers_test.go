package playback

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marcus-crane/voxpro/db"
	"github.com/marcus-crane/voxpro/migrations"
)

func setupHistory(t *testing.T) *History {
	t.Helper()
	store, err := db.NewSqliteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	require.NoError(t, store.ApplyMigrations(migrations.GetMigrations()))
	return NewHistory(store.DB)
}

type published struct {
	stream string
	v      any
}

type recordingPublisher struct {
	m      sync.Mutex
	events []published
}

func (r *recordingPublisher) Publish(stream string, v any) {
	r.m.Lock()
	defer r.m.Unlock()
	r.events = append(r.events, published{stream: stream, v: v})
}

func (r *recordingPublisher) surfaces() []Surface {
	r.m.Lock()
	defer r.m.Unlock()
	var out []Surface
	for _, e := range r.events {
		switch s := e.v.(type) {
		case Surface:
			out = append(out, s)
		case *Surface:
			out = append(out, *s)
		}
	}
	return out
}

type fakeFetcher struct {
	data map[string][]byte
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	data, ok := f.data[url]
	if !ok {
		return nil, errors.New("unreachable")
	}
	return data, nil
}

type fakePages struct {
	count    int
	countErr error
	rendered []int
}

func (f *fakePages) RenderPage(_ context.Context, _ []byte, page int, _ int) (image.Image, error) {
	f.rendered = append(f.rendered, page)
	img := image.NewRGBA(image.Rect(0, 0, 10, 14))
	img.Set(0, 0, color.White)
	return img, nil
}

func (f *fakePages) PageCount(context.Context, []byte) (int, error) {
	return f.count, f.countErr
}

type fixedPalette []string

func (p fixedPalette) Palette(context.Context, string) []string {
	return p
}

// buildDocx packs a minimal word document around body
func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body +
		`</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
