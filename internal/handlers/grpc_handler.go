package handlers

import (
	"context"
	"log/slog"
	"sync"

	"AI_ANNOTATOR/go-client/internal/services"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// AnnotatorService is the name the annotation link is reported under.
const AnnotatorService = "annotator"

// StateSource is the connection status broadcast.
type StateSource interface {
	States() services.Subscription
	Unsubscribe(sub services.Subscription)
	State() services.ConnectionState
}

// HealthHandler exposes the connection state through the standard gRPC
// health service. Both the overall server and AnnotatorService report
// SERVING only while the annotation link is connected.
type HealthHandler struct {
	logger *slog.Logger
	server *health.Server

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &HealthHandler{
		logger: logger.With("component", "health"),
		server: health.NewServer(),
	}
	h.set(services.StateDisconnected)
	return h
}

// Register attaches the health service to s.
func (h *HealthHandler) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Watch follows src until ctx is cancelled or Stop is called.
func (h *HealthHandler) Watch(ctx context.Context, src StateSource) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}

	sub := src.States()
	h.set(src.State())

	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
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
				if st, ok := v.(services.ConnStatus); ok {
					h.set(st.State)
				}
			}
		}
	}(h.done)
}

// Stop stops following the connection and reports NOT_SERVING from then on.
func (h *HealthHandler) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	h.server.Shutdown()
}

// Check is a local shortcut of the gRPC Check call.
func (h *HealthHandler) Check(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := h.server.Check(ctx, &healthpb.HealthCheckRequest{Service: AnnotatorService})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

func (h *HealthHandler) set(state services.ConnectionState) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if state == services.StateConnected {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus("", st)
	h.server.SetServingStatus(AnnotatorService, st)
	h.logger.Debug("health updated", "state", state, "status", st.String())
}
