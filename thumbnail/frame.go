package thumbnail

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/nfnt/resize"

	"github.com/marcus-crane/voxpro/utils"
)

// Size is the edge length of every raster preview
const Size = 128

var (
	backgroundColour = color.RGBA{R: 0x0b, G: 0x0b, B: 0x0b, A: 0xff}
	waveformColour   = color.RGBA{R: 0x00, G: 0xff, B: 0x88, A: 0xff}
)

// Letterbox scales src to fit inside a size×size square, preserving the
// aspect ratio, and centres it on a background filled with the image's
// dominant colour. The palette is returned for reuse by callers.
func Letterbox(src image.Image, size int) (*image.RGBA, []string) {
	palette := utils.DominantColours(src)
	bg := backgroundColour
	if len(palette) > 0 {
		bg = utils.HexToColor(palette[0], backgroundColour)
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)

	scaled := resize.Thumbnail(uint(size), uint(size), src, resize.Lanczos3)
	b := scaled.Bounds()
	offset := image.Pt((size-b.Dx())/2, (size-b.Dy())/2)
	draw.Draw(dst, b.Sub(b.Min).Add(offset), scaled, b.Min, draw.Over)

	return dst, palette
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
