package thumbnail

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus-crane/voxpro/models"
)

func TestCache_WriteOnce(t *testing.T) {
	c, err := NewCache(4, nil, 0)
	require.NoError(t, err)
	ctx := context.Background()

	first := Preview{Kind: KindRaster, Key: "k", PNG: []byte{1}}
	second := Preview{Kind: KindGlyph, Glyph: "🎵"}

	assert.Equal(t, first, c.Add(ctx, "k", first))
	assert.Equal(t, first, c.Add(ctx, "k", second))

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, first, got)

	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestCache_RedisSharesEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	ctx := context.Background()

	writer, err := NewCache(4, rdb, 0)
	require.NoError(t, err)
	preview := Preview{Kind: KindRaster, MediaType: models.MediaVideo, Key: Key("https://x/a.mp4"), PNG: []byte{0x89, 'P', 'N', 'G'}, Palette: []string{"#0000ff"}}
	writer.Add(ctx, preview.Key, preview)
	assert.True(t, mr.Exists(redisPrefix+preview.Key))

	reader, err := NewCache(4, rdb, 0)
	require.NoError(t, err)
	got, ok := reader.Get(ctx, preview.Key)
	require.True(t, ok)
	assert.Equal(t, preview, got)
	assert.Equal(t, 1, reader.Len())

	// redis keeps the first value written
	writer2, err := NewCache(4, rdb, 0)
	require.NoError(t, err)
	writer2.Add(ctx, preview.Key, Preview{Kind: KindGlyph})
	got, ok = reader.Get(ctx, preview.Key)
	require.True(t, ok)
	assert.Equal(t, KindRaster, got.Kind)
}

func TestCache_UnreachableRedisIsAMiss(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { rdb.Close() })
	c, err := NewCache(4, rdb, 0)
	require.NoError(t, err)
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}
