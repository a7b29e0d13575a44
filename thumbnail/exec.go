package thumbnail

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const maxStderr = 4096

var (
	ErrNoFrame     = errors.New("no frame decoded")
	ErrPageMissing = errors.New("page out of range")
)

// FrameGrabber decodes the first available frame of a video
type FrameGrabber interface {
	GrabFrame(ctx context.Context, mediaURL string) (image.Image, error)
}

// PageRenderer rasterises single pages of a PDF document
type PageRenderer interface {
	RenderPage(ctx context.Context, doc []byte, page int, dpi int) (image.Image, error)
	PageCount(ctx context.Context, doc []byte) (int, error)
}

// FFmpeg grabs frames by shelling out to an ffmpeg binary, which reads
// the URL itself so nothing is downloaded in full.
type FFmpeg struct {
	Path string
	// Seek is where the frame is taken from, matching the #t=0.1 hint used for players
	Seek string
}

func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path, Seek: "0.1"}
}

func (f *FFmpeg) GrabFrame(ctx context.Context, mediaURL string) (image.Image, error) {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-ss", f.Seek,
		"-i", mediaURL,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	}
	// #nosec G204 - binary comes from configuration and the URL is passed as a single argument
	cmd := exec.CommandContext(ctx, f.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w (stderr: %s)", err, truncate(stderr.String()))
	}
	if len(out) == 0 {
		return nil, ErrNoFrame
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// Poppler renders PDF pages with pdftoppm and counts them with pdfinfo.
// Both tools want a seekable file so documents are staged in a temp dir.
type Poppler struct {
	PdftoppmPath string
	PdfinfoPath  string
	TempDir      string
}

func NewPoppler(pdftoppm, pdfinfo string) *Poppler {
	if pdftoppm == "" {
		pdftoppm = "pdftoppm"
	}
	if pdfinfo == "" {
		pdfinfo = "pdfinfo"
	}
	return &Poppler{PdftoppmPath: pdftoppm, PdfinfoPath: pdfinfo}
}

func (p *Poppler) RenderPage(ctx context.Context, doc []byte, page int, dpi int) (image.Image, error) {
	if page < 1 {
		return nil, ErrPageMissing
	}
	var img image.Image
	err := p.withDocument(doc, func(dir, docPath string) error {
		root := filepath.Join(dir, "page")
		args := []string{
			"-png",
			"-f", strconv.Itoa(page),
			"-l", strconv.Itoa(page),
			"-r", strconv.Itoa(dpi),
			"-singlefile",
			docPath,
			root,
		}
		// #nosec G204 - binary comes from configuration and paths are generated here
		cmd := exec.CommandContext(ctx, p.PdftoppmPath, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("pdftoppm failed: %w (stderr: %s)", err, truncate(stderr.String()))
		}
		f, err := os.Open(root + ".png")
		if err != nil {
			return ErrPageMissing
		}
		defer f.Close()
		img, err = png.Decode(f)
		return err
	})
	return img, err
}

func (p *Poppler) PageCount(ctx context.Context, doc []byte) (int, error) {
	var pages int
	err := p.withDocument(doc, func(dir, docPath string) error {
		// #nosec G204 - binary comes from configuration and paths are generated here
		cmd := exec.CommandContext(ctx, p.PdfinfoPath, docPath)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		out, err := cmd.Output()
		if err != nil {
			return fmt.Errorf("pdfinfo failed: %w (stderr: %s)", err, truncate(stderr.String()))
		}
		pages, err = parsePageCount(out)
		return err
	})
	return pages, err
}

func parsePageCount(info []byte) (int, error) {
	scanner := bufio.NewScanner(bytes.NewReader(info))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		return strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
	}
	return 0, errors.New("pdfinfo output had no page count")
}

func (p *Poppler) withDocument(doc []byte, fn func(dir, docPath string) error) error {
	dir, err := os.MkdirTemp(p.TempDir, "voxpro-pdf-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	docPath := filepath.Join(dir, "doc.pdf")
	if err := os.WriteFile(docPath, doc, 0o600); err != nil {
		return err
	}
	return fn(dir, docPath)
}

func truncate(s string) string {
	if len(s) > maxStderr {
		return s[:maxStderr] + "..."
	}
	return s
}
