// Package overlay draws annotation rectangles on top of the displayed video.
package overlay

import (
	"image/color"
	"log/slog"

	"AI_ANNOTATOR/go-client/internal/models"
)

const lineWidth = 2

// Display reports the resolution the video is produced at and the size it is
// currently laid out at. Either may be zero while the video is not ready.
type Display interface {
	NativeSize() (width, height int)
	DisplaySize() (width, height int)
}

// Surface is the drawing layer placed over the video.
type Surface interface {
	Resize(width, height int)
	Clear()
	StrokeRect(r models.Box, c color.RGBA, lineWidth float64)
}

// Overlay maps annotation rectangles from source frame space into display
// space and strokes them on the surface.
type Overlay struct {
	display Display
	surface Surface
	logger  *slog.Logger
}

func New(display Display, surface Surface, logger *slog.Logger) *Overlay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Overlay{
		display: display,
		surface: surface,
		logger:  logger.With("component", "overlay"),
	}
}

// Render replaces whatever was drawn before with the rectangle of a. It
// returns the rectangle in display space and false when nothing was drawn.
func (o *Overlay) Render(a *models.Annotation) (models.Box, bool) {
	if a == nil {
		return models.Box{}, false
	}

	dispW, dispH := o.display.DisplaySize()
	o.surface.Resize(dispW, dispH)
	o.surface.Clear()

	box, ok := a.Box()
	if !ok {
		o.logger.Debug("annotation without rectangle, overlay cleared")
		return models.Box{}, false
	}

	nativeW, nativeH := o.display.NativeSize()
	if nativeW <= 0 || nativeH <= 0 {
		o.logger.Debug("native video size unknown, skipping overlay")
		return models.Box{}, false
	}

	scaled := Transform(box, nativeW, nativeH, dispW, dispH)
	o.surface.StrokeRect(scaled, a.Color(), lineWidth)
	return scaled, true
}

// Transform scales b from a native frame of nativeW x nativeH into a display
// area of dispW x dispH. x and w follow the width ratio, y and h the height
// ratio.
func Transform(b models.Box, nativeW, nativeH, dispW, dispH int) models.Box {
	sx := float64(dispW) / float64(nativeW)
	sy := float64(dispH) / float64(nativeH)
	return b.Scale(sx, sy)
}
