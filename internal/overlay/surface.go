package overlay

import (
	"image"
	"image/color"
	"math"
	"sync"

	"AI_ANNOTATOR/go-client/internal/models"

	"golang.org/x/image/draw"
)

// ImageSurface is an in-memory Surface backed by an RGBA image.
type ImageSurface struct {
	mu  sync.RWMutex
	img *image.RGBA
}

func NewImageSurface() *ImageSurface {
	return &ImageSurface{img: image.NewRGBA(image.Rectangle{})}
}

// Resize reallocates the backing image when the size changes. Negative
// dimensions are treated as zero.
func (s *ImageSurface) Resize(width, height int) {
	width, height = max(width, 0), max(height, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.img.Bounds(); b.Dx() == width && b.Dy() == height {
		return
	}
	s.img = image.NewRGBA(image.Rect(0, 0, width, height))
}

func (s *ImageSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	draw.Draw(s.img, s.img.Bounds(), image.Transparent, image.Point{}, draw.Src)
}

// StrokeRect outlines r. The stroke is drawn inside the rectangle and clipped
// to the surface.
func (s *ImageSurface) StrokeRect(r models.Box, c color.RGBA, lineWidth float64) {
	x0 := int(math.Round(r.X))
	y0 := int(math.Round(r.Y))
	x1 := int(math.Round(r.X + r.W))
	y1 := int(math.Round(r.Y + r.H))
	lw := max(int(math.Round(lineWidth)), 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(x0, y0, x1, y0+lw),
		image.Rect(x0, y1-lw, x1, y1),
		image.Rect(x0, y0, x0+lw, y1),
		image.Rect(x1-lw, y0, x1, y1),
	}
	for _, e := range edges {
		e = e.Canon().Intersect(s.img.Bounds())
		if e.Empty() {
			continue
		}
		draw.Draw(s.img, e, src, image.Point{}, draw.Src)
	}
}

// Size returns the current surface dimensions.
func (s *ImageSurface) Size() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// Snapshot returns a copy of the surface contents.
func (s *ImageSurface) Snapshot() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := image.NewRGBA(s.img.Bounds())
	copy(out.Pix, s.img.Pix)
	return out
}

// SizedDisplay pairs a native size provider with a fixed layout size.
type SizedDisplay struct {
	Native func() (int, int)
	Width  int
	Height int
}

func (d SizedDisplay) NativeSize() (int, int) {
	if d.Native == nil {
		return 0, 0
	}
	return d.Native()
}

func (d SizedDisplay) DisplaySize() (int, int) {
	return d.Width, d.Height
}
