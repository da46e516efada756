package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"time"
)

// ErrAcquisition is returned by an Acquirer when no video source can be
// opened. Capture never starts in that case.
var ErrAcquisition = errors.New("video source unavailable")

// VideoSource exposes the most recent frame of a live stream. Frame returns
// nil or an empty image until the stream is ready.
type VideoSource interface {
	Frame() image.Image
}

// Acquirer opens the live video source.
type Acquirer interface {
	Acquire(ctx context.Context) (VideoSource, error)
}

type AcquirerFunc func(ctx context.Context) (VideoSource, error)

func (f AcquirerFunc) Acquire(ctx context.Context) (VideoSource, error) {
	return f(ctx)
}

// SyntheticSource renders a bright square sweeping over a dark gradient.
// It stands in for a camera in local runs and tests.
type SyntheticSource struct {
	width  int
	height int
	fps    int
	logger *slog.Logger

	mu    sync.RWMutex
	frame *image.RGBA
	seq   uint64
}

func NewSyntheticSource(width, height, fps int, logger *slog.Logger) *SyntheticSource {
	if fps <= 0 {
		fps = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SyntheticSource{
		width:  width,
		height: height,
		fps:    fps,
		logger: logger.With("component", "synthetic_source"),
	}
}

// Acquire starts frame generation bound to ctx and returns the source.
func (s *SyntheticSource) Acquire(ctx context.Context) (VideoSource, error) {
	if s.width <= 0 || s.height <= 0 {
		return nil, ErrAcquisition
	}
	s.logger.Info("synthetic source starting", "width", s.width, "height", s.height, "fps", s.fps)
	go s.generate(ctx)
	return s, nil
}

func (s *SyntheticSource) Frame() image.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return nil
	}
	return s.frame
}

// NativeSize is the resolution frames are produced at, or zero before the
// first frame.
func (s *SyntheticSource) NativeSize() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return 0, 0
	}
	b := s.frame.Bounds()
	return b.Dx(), b.Dy()
}

func (s *SyntheticSource) generate(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(s.fps))
	defer ticker.Stop()

	s.renderNext()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("synthetic source stopped", "frames", s.seq)
			return
		case <-ticker.C:
			s.renderNext()
		}
	}
}

func (s *SyntheticSource) renderNext() {
	img := RenderPattern(s.width, s.height, s.seq)

	s.mu.Lock()
	s.frame = img
	s.seq++
	s.mu.Unlock()
}

// PatternBox is where RenderPattern puts the bright square for frame seq.
func PatternBox(width, height int, seq uint64) image.Rectangle {
	side := height / 4
	if side < 1 {
		side = 1
	}
	span := width - side
	x := 0
	if span > 0 {
		x = int(seq*4) % span
	}
	y := (height - side) / 2
	return image.Rect(x, y, x+side, y+side)
}

func RenderPattern(width, height int, seq uint64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		shade := uint8(20 + 60*y/max(height, 1))
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: shade / 2, G: shade / 2, B: shade, A: 255})
		}
	}
	box := PatternBox(width, height, seq)
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 250, G: 250, B: 250, A: 255})
		}
	}
	return img
}
