package models

import (
	"encoding/json"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnotationDecodeFullMessage(t *testing.T) {
	raw := `{"x":100,"y":50,"w":40,"h":20,"colorRectangle":[255,0,10],"orientation":"left","text4User":"look ahead","textFacDis":"42 cm"}`

	var a Annotation
	require.NoError(t, json.Unmarshal([]byte(raw), &a))

	box, ok := a.Box()
	require.True(t, ok)
	assert.Equal(t, Box{X: 100, Y: 50, W: 40, H: 20}, box)
	assert.Equal(t, color.RGBA{R: 255, G: 0, B: 10, A: 255}, a.Color())
	assert.Equal(t, "left", a.OrientationText())
	assert.Equal(t, "look ahead", a.UserText())
	assert.Equal(t, "42 cm", a.FaceDistanceText())
	assert.Equal(t, "x: 100, y: 50, width: 40, height: 20", a.BoxText())
}

func TestAnnotationMissingOrientationIsUnavailable(t *testing.T) {
	var a Annotation
	require.NoError(t, json.Unmarshal([]byte(`{"x":1,"y":2,"w":3,"h":4,"text4User":"ok"}`), &a))

	assert.Equal(t, Unavailable, a.OrientationText())
	assert.Equal(t, "ok", a.UserText())
	assert.Equal(t, Unavailable, a.FaceDistanceText())
}

func TestAnnotationMissingRectangle(t *testing.T) {
	var a Annotation
	require.NoError(t, json.Unmarshal([]byte(`{"x":1,"y":2}`), &a))

	_, ok := a.Box()
	assert.False(t, ok)
	assert.Equal(t, "x: 1, y: 2, width: N/A, height: N/A", a.BoxText())
}

func TestAnnotationColorFallbackAndClamp(t *testing.T) {
	var nilAnnotation *Annotation
	assert.Equal(t, DefaultBoxColor, nilAnnotation.Color())
	assert.Equal(t, DefaultBoxColor, (&Annotation{ColorRectangle: []float64{1, 2}}).Color())
	assert.Equal(t, color.RGBA{R: 0, G: 255, B: 128, A: 255},
		(&Annotation{ColorRectangle: []float64{-4, 300, 127.6}}).Color())
}

func TestBoxScale(t *testing.T) {
	got := Box{X: 100, Y: 50, W: 40, H: 20}.Scale(0.5, 0.5)
	assert.Equal(t, Box{X: 50, Y: 25, W: 20, H: 10}, got)
}

func TestVideoFrameWireShape(t *testing.T) {
	raw, err := json.Marshal(VideoFrame{Frame: "aGVsbG8="})
	require.NoError(t, err)
	assert.JSONEq(t, `{"frame":"aGVsbG8="}`, string(raw))
}
