package services

import (
	"sync/atomic"
	"time"
)

// Metrics holds the client counters. All methods are safe for concurrent use.
type Metrics struct {
	framesSent      atomic.Int64
	framesRejected  atomic.Int64
	framesSkipped   atomic.Int64
	annotations     atomic.Int64
	decodeErrors    atomic.Int64
	transportErrors atomic.Int64
	reconnects      atomic.Int64
	lastFrameTime   atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncrementFramesSent() {
	m.framesSent.Add(1)
	m.lastFrameTime.Store(time.Now().UnixMilli())
}

func (m *Metrics) IncrementFramesRejected() {
	m.framesRejected.Add(1)
}

// IncrementFramesSkipped counts capture ticks that had no usable frame.
func (m *Metrics) IncrementFramesSkipped() {
	m.framesSkipped.Add(1)
}

func (m *Metrics) IncrementAnnotations() {
	m.annotations.Add(1)
}

func (m *Metrics) IncrementDecodeErrors() {
	m.decodeErrors.Add(1)
}

func (m *Metrics) IncrementTransportErrors() {
	m.transportErrors.Add(1)
}

func (m *Metrics) IncrementReconnects() {
	m.reconnects.Add(1)
}

func (m *Metrics) GetFramesSent() int64 {
	return m.framesSent.Load()
}

func (m *Metrics) GetFramesRejected() int64 {
	return m.framesRejected.Load()
}

func (m *Metrics) GetAnnotations() int64 {
	return m.annotations.Load()
}

func (m *Metrics) GetReconnects() int64 {
	return m.reconnects.Load()
}

// Snapshot returns every counter keyed by name, used for logging.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"frames_sent":      m.framesSent.Load(),
		"frames_rejected":  m.framesRejected.Load(),
		"frames_skipped":   m.framesSkipped.Load(),
		"annotations":      m.annotations.Load(),
		"decode_errors":    m.decodeErrors.Load(),
		"transport_errors": m.transportErrors.Load(),
		"reconnects":       m.reconnects.Load(),
		"last_frame_ms":    m.lastFrameTime.Load(),
	}
}

// LogAttrs flattens Snapshot for slog.
func (m *Metrics) LogAttrs() []any {
	snap := m.Snapshot()
	attrs := make([]any, 0, len(snap)*2)
	for _, k := range []string{"frames_sent", "frames_rejected", "frames_skipped", "annotations", "decode_errors", "transport_errors", "reconnects"} {
		attrs = append(attrs, k, snap[k])
	}
	return attrs
}
