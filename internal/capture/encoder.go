package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"AI_ANNOTATOR/go-client/internal/models"

	"golang.org/x/image/draw"
)

var ErrEmptyFrame = errors.New("frame has zero dimensions")

// Encoder downsamples frames to a fixed width into an owned off-screen
// surface and serializes them as base64 JPEG.
type Encoder struct {
	targetWidth int
	quality     int

	surface *image.RGBA
	buf     bytes.Buffer
}

func NewEncoder(targetWidth, quality int) *Encoder {
	return &Encoder{targetWidth: targetWidth, quality: quality}
}

// TargetSize keeps the aspect ratio of src at the given width. The height is
// truncated like a canvas dimension.
func TargetSize(srcWidth, srcHeight, targetWidth int) (int, int) {
	h := int(float64(srcHeight) / float64(srcWidth) * float64(targetWidth))
	if h < 1 {
		h = 1
	}
	return targetWidth, h
}

// Encode renders frame into the off-screen surface, resizing the surface when
// the target size changed, and returns the wire message.
func (e *Encoder) Encode(frame image.Image) (models.OutboundFrame, error) {
	if frame == nil {
		return models.OutboundFrame{}, ErrEmptyFrame
	}
	src := frame.Bounds()
	if src.Dx() <= 0 || src.Dy() <= 0 {
		return models.OutboundFrame{}, ErrEmptyFrame
	}

	w, h := TargetSize(src.Dx(), src.Dy(), e.targetWidth)
	if e.surface == nil || e.surface.Bounds().Dx() != w || e.surface.Bounds().Dy() != h {
		e.surface = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	draw.ApproxBiLinear.Scale(e.surface, e.surface.Bounds(), frame, src, draw.Src, nil)

	e.buf.Reset()
	if err := jpeg.Encode(&e.buf, e.surface, &jpeg.Options{Quality: e.quality}); err != nil {
		return models.OutboundFrame{}, fmt.Errorf("encode jpeg: %w", err)
	}

	return models.OutboundFrame{
		Message: models.VideoFrame{Frame: base64.StdEncoding.EncodeToString(e.buf.Bytes())},
		Width:   w,
		Height:  h,
		Bytes:   e.buf.Len(),
	}, nil
}

// SurfaceSize reports the current off-screen surface dimensions.
func (e *Encoder) SurfaceSize() (int, int) {
	if e.surface == nil {
		return 0, 0
	}
	b := e.surface.Bounds()
	return b.Dx(), b.Dy()
}
