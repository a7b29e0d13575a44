package thumbnail

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
	"sync/atomic"
)

// sineWAV builds a mono 16-bit PCM wav of the given length
func sineWAV(sampleRate, samples int, amplitude float64) []byte {
	var pcm bytes.Buffer
	for i := 0; i < samples; i++ {
		v := amplitude * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
		binary.Write(&pcm, binary.LittleEndian, int16(v*math.MaxInt16))
	}
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+pcm.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(pcm.Len()))
	buf.Write(pcm.Bytes())
	return buf.Bytes()
}

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

type fakeFrames struct {
	calls   atomic.Int64
	err     error
	release chan struct{}
	img     image.Image
}

func (f *fakeFrames) GrabFrame(ctx context.Context, mediaURL string) (image.Image, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.img != nil {
		return f.img, nil
	}
	return solidImage(320, 180, color.RGBA{B: 0xff, A: 0xff}), nil
}

type fakePages struct {
	calls atomic.Int64
	err   error
}

func (f *fakePages) RenderPage(ctx context.Context, doc []byte, page int, dpi int) (image.Image, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return solidImage(85, 110, color.White), nil
}

func (f *fakePages) PageCount(ctx context.Context, doc []byte) (int, error) {
	return 1, f.err
}

type fakeFetcher struct {
	m     sync.Mutex
	calls map[string]int
	data  map[string][]byte
}

func newFakeFetcher(data map[string][]byte) *fakeFetcher {
	return &fakeFetcher{calls: map[string]int{}, data: data}
}

func (f *fakeFetcher) Fetch(ctx context.Context, mediaURL string) ([]byte, error) {
	f.m.Lock()
	defer f.m.Unlock()
	f.calls[mediaURL]++
	d, ok := f.data[mediaURL]
	if !ok {
		return nil, errors.New("not found")
	}
	return d, nil
}

func (f *fakeFetcher) total() int {
	f.m.Lock()
	defer f.m.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}
