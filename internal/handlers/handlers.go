package handlers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"AI_ANNOTATOR/go-client/internal/models"
	"AI_ANNOTATOR/go-client/internal/services"
	"AI_ANNOTATOR/go-client/internal/status"
	"AI_ANNOTATOR/go-client/internal/tracer"
)

// AnnotationSource is the broadcast side of the connection manager.
type AnnotationSource interface {
	Messages() services.Subscription
	Unsubscribe(sub services.Subscription)
}

// Renderer draws an annotation over the displayed video.
type Renderer interface {
	Render(a *models.Annotation) (models.Box, bool)
}

// AnnotationHandler reacts to every received annotation: it records the
// round trip, retunes the capture rate, updates the status readouts and
// renders the overlay, in that order.
type AnnotationHandler struct {
	logger   *slog.Logger
	tracker  *services.LatencyTracker
	rates    *services.RateController
	sink     status.Sink
	renderer Renderer
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewAnnotationHandler(logger *slog.Logger, tracker *services.LatencyTracker, rates *services.RateController, sink status.Sink, renderer Renderer) *AnnotationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnnotationHandler{
		logger:   logger.With("component", "annotations"),
		tracker:  tracker,
		rates:    rates,
		sink:     sink,
		renderer: renderer,
		now:      time.Now,
	}
}

// Start subscribes to src and handles annotations on a dedicated goroutine
// until ctx is cancelled, Stop is called or the subscription is closed.
func (h *AnnotationHandler) Start(ctx context.Context, src AnnotationSource) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}

	sub := src.Messages()
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		h.consume(ctx, src, sub)
	}(h.done)
}

func (h *AnnotationHandler) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (h *AnnotationHandler) consume(ctx context.Context, src AnnotationSource, sub services.Subscription) {
	for {
		select {
		case <-ctx.Done():
			go src.Unsubscribe(sub)
			for range sub {
			}
			return
		case v, ok := <-sub:
			if !ok {
				return
			}
			a, ok := v.(*models.Annotation)
			if !ok {
				continue
			}
			h.Handle(ctx, a)
		}
	}
}

// Handle processes one annotation received now.
func (h *AnnotationHandler) Handle(ctx context.Context, a *models.Annotation) {
	receivedAt := h.now()
	_, span := tracer.StartSpan(ctx, "annotation.receive")
	defer span.End()

	sample, err := h.tracker.Record(receivedAt)
	switch {
	case errors.Is(err, services.ErrNoSend):
		h.logger.Debug("annotation received before any frame was sent")
	case err != nil:
		tracer.RecordError(span, err)
	default:
		avg, err := h.tracker.Average()
		if err == nil {
			prev := h.rates.Current()
			next := h.rates.Recompute(avg)
			if next != prev {
				h.logger.Info("capture rate changed", "from", prev, "to", next, "avg_ms", services.Milliseconds(avg))
			}
			h.sink.SetLatencyReadout(status.LatencyReadout(sample, avg))
			span.SetAttributes(
				tracer.Float64Attr("latency.last_ms", services.Milliseconds(sample)),
				tracer.Float64Attr("latency.avg_ms", services.Milliseconds(avg)),
				tracer.IntAttr("capture.rate", int(next)),
			)
		}
	}

	status.Publish(h.sink, a)

	if box, ok := h.renderer.Render(a); ok {
		h.logger.Debug("overlay rendered", "x", box.X, "y", box.Y, "w", box.W, "h", box.H)
	}
}
