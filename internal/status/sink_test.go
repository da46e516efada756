package status

import (
	"bytes"
	"image/color"
	"log/slog"
	"testing"
	"time"

	"AI_ANNOTATOR/go-client/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestLatencyReadout(t *testing.T) {
	got := LatencyReadout(42*time.Millisecond+500*time.Microsecond, 100*time.Millisecond)
	assert.Equal(t, "Last=42.500 ms, Avg=100.000 ms", got)
}

func TestPublishFullAnnotation(t *testing.T) {
	sink := NewLogSink(nil)
	a := models.NewAnnotation(models.Box{X: 100, Y: 50, W: 40, H: 20}, color.RGBA{G: 255, A: 255})
	a.Orientation = "front"
	a.Text4User = "look at the camera"
	a.TextFacDis = "too close"

	Publish(sink, a)

	cur := sink.Current()
	assert.Equal(t, "front", cur.Orientation)
	assert.Equal(t, "look at the camera", cur.UserText)
	assert.Equal(t, "too close", cur.FaceDistance)
	assert.Equal(t, "x: 100, y: 50, width: 40, height: 20", cur.BoundingBox)
}

func TestPublishMissingFieldsFallBackToUnavailable(t *testing.T) {
	sink := NewLogSink(nil)
	sink.SetOrientation("left")

	Publish(sink, &models.Annotation{})

	cur := sink.Current()
	assert.Equal(t, models.Unavailable, cur.Orientation)
	assert.Equal(t, models.Unavailable, cur.UserText)
	assert.Equal(t, models.Unavailable, cur.FaceDistance)
}

func TestPublishNilAnnotation(t *testing.T) {
	sink := NewLogSink(nil)
	assert.NotPanics(t, func() { Publish(sink, nil) })
	assert.Equal(t, models.Unavailable, sink.Current().Orientation)
}

func TestLogSinkLogsOnlyChanges(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	sink.SetOrientation("right")
	sink.SetOrientation("right")

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("orientation")))
}
