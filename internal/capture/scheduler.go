package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"AI_ANNOTATOR/go-client/internal/services"
	"AI_ANNOTATOR/go-client/internal/tracer"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// FrameSender transmits one outbound message.
type FrameSender interface {
	Send(ctx context.Context, v any) error
}

// RateSource is consulted on every tick for the current capture rate.
type RateSource interface {
	Current() services.FrameRate
}

// SendRecorder is told the instant each frame is handed to the transport.
type SendRecorder interface {
	MarkSent(at time.Time)
}

// Scheduler captures, encodes and sends a frame on every tick. The tick period
// follows the rate source and is re-read before each wait.
type Scheduler struct {
	logger  *slog.Logger
	encoder *Encoder
	sender  FrameSender
	rates   RateSource
	sends   SendRecorder
	metrics *services.Metrics
	limiter *rate.Limiter
	now     func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(logger *slog.Logger, enc *Encoder, sender FrameSender, rates RateSource, sends SendRecorder, metrics *services.Metrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = services.NewMetrics()
	}
	return &Scheduler{
		logger:  logger.With("component", "capture"),
		encoder: enc,
		sender:  sender,
		rates:   rates,
		sends:   sends,
		metrics: metrics,
		limiter: rate.NewLimiter(rate.Limit(rates.Current()), 1),
		now:     time.Now,
	}
}

// Start acquires the video source and runs the capture loop in the
// background until ctx is cancelled or Stop is called. Acquisition failures
// are reported once and capture never starts.
func (s *Scheduler) Start(ctx context.Context, acq Acquirer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.logger.Debug("capture already started")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		s.run(ctx, acq)
	}(s.done)
}

// Stop cancels the capture loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) run(ctx context.Context, acq Acquirer) {
	src, err := acq.Acquire(ctx)
	if err != nil {
		s.logger.Error("error accessing video stream, capture disabled", "error", err)
		return
	}
	s.logger.Info("capture started", "rate", s.rates.Current())

	for {
		s.limiter.SetLimit(rate.Limit(s.rates.Current()))
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Info("capture stopped")
			return
		}
		s.tick(ctx, src)
	}
}

// tick handles one capture period. Sources that are not ready yet are skipped.
func (s *Scheduler) tick(ctx context.Context, src VideoSource) {
	frame := src.Frame()
	if frame == nil || frame.Bounds().Empty() {
		s.metrics.IncrementFramesSkipped()
		s.logger.Debug("capture skipped: video source not ready")
		return
	}

	traceID := uuid.NewString()
	ctx, span := tracer.StartSpan(ctx, "capture.frame")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("frame.trace_id", traceID))

	out, err := s.encoder.Encode(frame)
	if err != nil {
		tracer.RecordError(span, err)
		s.logger.Warn("frame encode failed", "trace_id", traceID, "error", err)
		return
	}
	out.TraceID = traceID
	out.SentAt = s.now()
	span.SetAttributes(
		tracer.IntAttr("frame.width", out.Width),
		tracer.IntAttr("frame.height", out.Height),
		tracer.IntAttr("frame.bytes", out.Bytes),
	)

	s.sends.MarkSent(out.SentAt)
	if err := s.sender.Send(ctx, out.Message); err != nil {
		tracer.RecordError(span, err)
		if errors.Is(err, services.ErrSendRejected) {
			return
		}
		s.logger.Warn("frame send failed", "trace_id", traceID, "error", err)
		return
	}
	s.logger.Debug("frame sent", "trace_id", traceID, "width", out.Width, "height", out.Height, "bytes", out.Bytes)
}
