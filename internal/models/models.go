package models

import (
	"fmt"
	"image/color"
	"math"
)

// Unavailable is rendered for every optional annotation field that is absent.
const Unavailable = "N/A"

var DefaultBoxColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// Box is an axis aligned rectangle. Units depend on context: source frame
// pixels for received annotations, display pixels after scaling.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func (b Box) Scale(sx, sy float64) Box {
	return Box{X: b.X * sx, Y: b.Y * sy, W: b.W * sx, H: b.H * sy}
}

// Annotation is one inbound message from the annotation service.
type Annotation struct {
	X              *float64  `json:"x,omitempty"`
	Y              *float64  `json:"y,omitempty"`
	W              *float64  `json:"w,omitempty"`
	H              *float64  `json:"h,omitempty"`
	ColorRectangle []float64 `json:"colorRectangle,omitempty"`
	Orientation    string    `json:"orientation,omitempty"`
	Text4User      string    `json:"text4User,omitempty"`
	TextFacDis     string    `json:"textFacDis,omitempty"`
}

func NewAnnotation(b Box, c color.RGBA) *Annotation {
	x, y, w, h := b.X, b.Y, b.W, b.H
	return &Annotation{
		X: &x, Y: &y, W: &w, H: &h,
		ColorRectangle: []float64{float64(c.R), float64(c.G), float64(c.B)},
	}
}

// Box reports the rectangle in source frame pixels, ok is false unless all
// four coordinates are present.
func (a *Annotation) Box() (Box, bool) {
	if a == nil || a.X == nil || a.Y == nil || a.W == nil || a.H == nil {
		return Box{}, false
	}
	return Box{X: *a.X, Y: *a.Y, W: *a.W, H: *a.H}, true
}

// Color converts the color triple, falling back to DefaultBoxColor when the
// triple is missing or short.
func (a *Annotation) Color() color.RGBA {
	if a == nil || len(a.ColorRectangle) < 3 {
		return DefaultBoxColor
	}
	return color.RGBA{
		R: clampChannel(a.ColorRectangle[0]),
		G: clampChannel(a.ColorRectangle[1]),
		B: clampChannel(a.ColorRectangle[2]),
		A: 255,
	}
}

func (a *Annotation) OrientationText() string  { return orUnavailable(a.Orientation) }
func (a *Annotation) UserText() string         { return orUnavailable(a.Text4User) }
func (a *Annotation) FaceDistanceText() string { return orUnavailable(a.TextFacDis) }

// BoxText is the human readable rectangle readout.
func (a *Annotation) BoxText() string {
	return fmt.Sprintf("x: %s, y: %s, width: %s, height: %s",
		coordText(a.X), coordText(a.Y), coordText(a.W), coordText(a.H))
}

func orUnavailable(s string) string {
	if s == "" {
		return Unavailable
	}
	return s
}

func coordText(v *float64) string {
	if v == nil {
		return Unavailable
	}
	return fmt.Sprintf("%g", *v)
}

func clampChannel(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}
