// Package status publishes the human readable readouts derived from each
// annotation.
package status

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"AI_ANNOTATOR/go-client/internal/models"
	"AI_ANNOTATOR/go-client/internal/services"
)

// Sink receives the readouts. Implementations must be safe to call from the
// annotation handler goroutine.
type Sink interface {
	SetOrientation(text string)
	SetAdvisory(userText, faceDistanceText string)
	SetLatencyReadout(text string)
	SetBoundingBoxReadout(text string)
}

// LatencyReadout formats the most recent and the average round trip.
func LatencyReadout(last, avg time.Duration) string {
	return fmt.Sprintf("Last=%.3f ms, Avg=%.3f ms", services.Milliseconds(last), services.Milliseconds(avg))
}

// Publish writes every readout for a to sink.
func Publish(sink Sink, a *models.Annotation) {
	if a == nil {
		return
	}
	sink.SetOrientation(a.OrientationText())
	sink.SetAdvisory(a.UserText(), a.FaceDistanceText())
	sink.SetBoundingBoxReadout(a.BoxText())
}

// Readouts is a snapshot of what a sink currently displays.
type Readouts struct {
	Orientation  string
	UserText     string
	FaceDistance string
	Latency      string
	BoundingBox  string
}

// LogSink logs readout changes and keeps the latest values.
type LogSink struct {
	logger *slog.Logger

	mu  sync.RWMutex
	cur Readouts
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{
		logger: logger.With("component", "status"),
		cur: Readouts{
			Orientation:  models.Unavailable,
			UserText:     models.Unavailable,
			FaceDistance: models.Unavailable,
			Latency:      models.Unavailable,
			BoundingBox:  models.Unavailable,
		},
	}
}

func (s *LogSink) SetOrientation(text string) {
	if s.update(&s.cur.Orientation, text) {
		s.logger.Info("orientation", "value", text)
	}
}

func (s *LogSink) SetAdvisory(userText, faceDistanceText string) {
	changed := s.update(&s.cur.UserText, userText)
	changed = s.update(&s.cur.FaceDistance, faceDistanceText) || changed
	if changed {
		s.logger.Info("advisory", "user", userText, "face_distance", faceDistanceText)
	}
}

// SetLatencyReadout is logged at debug level since it changes on every reply.
func (s *LogSink) SetLatencyReadout(text string) {
	s.update(&s.cur.Latency, text)
	s.logger.Debug("latency", "value", text)
}

func (s *LogSink) SetBoundingBoxReadout(text string) {
	s.update(&s.cur.BoundingBox, text)
	s.logger.Debug("bounding box", "value", text)
}

func (s *LogSink) Current() Readouts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *LogSink) update(field *string, v string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if *field == v {
		return false
	}
	*field = v
	return true
}
