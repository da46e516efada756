package handlers

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"AI_ANNOTATOR/go-client/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type fakeStates struct {
	mu    sync.Mutex
	state services.ConnectionState
	sub   services.Subscription
}

func newFakeStates(initial services.ConnectionState) *fakeStates {
	return &fakeStates{state: initial, sub: make(services.Subscription, 8)}
}

func (f *fakeStates) States() services.Subscription { return f.sub }

func (f *fakeStates) Unsubscribe(sub services.Subscription) { close(sub) }

func (f *fakeStates) State() services.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeStates) push(state services.ConnectionState) {
	f.mu.Lock()
	f.state = state
	f.mu.Unlock()
	f.sub <- services.ConnStatus{State: state, Timestamp: time.Now()}
}

func servingStatus(t *testing.T, h *HealthHandler) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	st, err := h.Check(context.Background())
	require.NoError(t, err)
	return st
}

func TestHealthHandlerTracksConnectionState(t *testing.T) {
	h := NewHealthHandler(nil)
	src := newFakeStates(services.StateDisconnected)

	h.Watch(context.Background(), src)
	t.Cleanup(h.Stop)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, h))

	src.push(services.StateConnecting)
	src.push(services.StateConnected)
	require.Eventually(t, func() bool {
		return servingStatus(t, h) == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)

	src.push(services.StateFailed)
	require.Eventually(t, func() bool {
		return servingStatus(t, h) == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 5*time.Millisecond)
}

func TestHealthHandlerStartsFromCurrentState(t *testing.T) {
	h := NewHealthHandler(nil)
	h.Watch(context.Background(), newFakeStates(services.StateConnected))
	t.Cleanup(h.Stop)

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, h))
}

func TestHealthHandlerOverGRPC(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	h := NewHealthHandler(nil)
	h.Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	src := newFakeStates(services.StateConnected)
	h.Watch(context.Background(), src)
	t.Cleanup(h.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := healthpb.NewHealthClient(conn)

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: AnnotatorService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
