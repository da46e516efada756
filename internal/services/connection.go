package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"AI_ANNOTATOR/go-client/internal/models"

	"github.com/cskr/pubsub"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const subscriberCapacity = 128

// Subscription delivers published values until it is unsubscribed or the
// manager is closed.
type Subscription chan any

type ConnectionOptions struct {
	Policy           ReconnectPolicy
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// PingInterval enables keepalive pings and read deadlines when positive.
	PingInterval time.Duration
	Dialer       *websocket.Dialer
	Header       http.Header
	Metrics      *Metrics
}

// ConnectionManager owns the single websocket session to the annotation
// service and its reconnect state machine.
type ConnectionManager struct {
	logger  *slog.Logger
	dialer  *websocket.Dialer
	header  http.Header
	metrics *Metrics

	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	pingInterval     time.Duration

	psMu     sync.RWMutex
	ps       *pubsub.PubSub
	psClosed bool

	mu        sync.Mutex
	state     ConnectionState
	endpoint  string
	policy    ReconnectPolicy
	conn      *websocket.Conn
	done      chan struct{}
	session   uint64
	sessionID string
	retry     *time.Timer
	closed    bool

	writeMu sync.Mutex
	// rejectNotice throttles the send rejected warning, capture ticks up to
	// 30 times a second while the link is down.
	rejectNotice rate.Sometimes
}

func NewConnectionManager(logger *slog.Logger, opts ConnectionOptions) *ConnectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	policy := opts.Policy
	if policy.RetryDelay <= 0 {
		policy.RetryDelay = DefaultReconnectPolicy().RetryDelay
	}
	policy.Attempts = 0

	dialer := opts.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		dialer = &d
	}
	handshake := opts.HandshakeTimeout
	if handshake <= 0 {
		handshake = 10 * time.Second
	}
	write := opts.WriteTimeout
	if write <= 0 {
		write = 10 * time.Second
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	return &ConnectionManager{
		logger:           logger.With("component", "connection"),
		dialer:           dialer,
		header:           opts.Header,
		metrics:          metrics,
		handshakeTimeout: handshake,
		writeTimeout:     write,
		pingInterval:     opts.PingInterval,
		rejectNotice:     rate.Sometimes{First: 1, Interval: 5 * time.Second},
		ps:               pubsub.New(subscriberCapacity),
		state:            StateDisconnected,
		policy:           policy,
	}
}

// Connect starts a session to endpoint without blocking. It is a no-op while a
// session is connecting or connected. The reconnect budget is only restored by
// a successful connection, so after exhaustion a new Connect gets one dial.
func (m *ConnectionManager) Connect(endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		m.logger.Warn("connect skipped: manager closed")
		return
	}
	if m.state == StateConnecting || m.state == StateConnected {
		m.logger.Debug("connect skipped: session already active", "state", m.state)
		return
	}
	m.endpoint = endpoint
	m.startSessionLocked()
}

// Disconnect closes the active session, cancels any pending reconnect and
// leaves the manager disconnected. It never triggers a reconnect.
func (m *ConnectionManager) Disconnect() {
	m.mu.Lock()
	m.stopRetryLocked()
	m.session++
	conn := m.conn
	m.conn = nil
	m.closeDoneLocked()
	wasActive := m.state != StateDisconnected
	if wasActive {
		m.setStateLocked(StateDisconnected, nil)
	}
	m.mu.Unlock()

	if conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		m.logger.Debug("close frame failed", "error", err)
	}
	if err := conn.Close(); err != nil {
		m.logger.Debug("close failed", "error", err)
	}
	m.logger.Info("disconnected")
}

// Close disconnects and shuts the broadcast down; every subscription channel
// is closed. The manager cannot be reused.
func (m *ConnectionManager) Close() {
	m.Disconnect()

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.psMu.Lock()
	defer m.psMu.Unlock()
	if !m.psClosed {
		m.psClosed = true
		m.ps.Shutdown()
	}
}

// Send writes v as a JSON text message. While not connected it reports
// ErrSendRejected and writes nothing.
func (m *ConnectionManager) Send(ctx context.Context, v any) error {
	m.mu.Lock()
	conn, gen, state := m.conn, m.session, m.state
	m.mu.Unlock()

	if state != StateConnected || conn == nil {
		m.metrics.IncrementFramesRejected()
		m.rejectNotice.Do(func() {
			m.logger.Warn("cannot send message: websocket is not connected",
				"state", state,
				"rejected_total", m.metrics.GetFramesRejected(),
			)
		})
		return ErrSendRejected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	deadline := time.Now().Add(m.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	m.writeMu.Lock()
	_ = conn.SetWriteDeadline(deadline)
	err = conn.WriteMessage(websocket.TextMessage, data)
	m.writeMu.Unlock()
	if err != nil {
		m.fail(gen, fmt.Errorf("write: %w", err))
		return fmt.Errorf("send message: %w", err)
	}
	m.metrics.IncrementFramesSent()
	return nil
}

// Messages subscribes to annotations received from now on.
func (m *ConnectionManager) Messages() Subscription {
	return m.subscribe(TopicAnnotations)
}

// States subscribes to connection status changes from now on.
func (m *ConnectionManager) States() Subscription {
	return m.subscribe(TopicConnStatus)
}

// Unsubscribe releases sub and closes it. The subscriber must keep draining
// sub until it is closed.
func (m *ConnectionManager) Unsubscribe(sub Subscription) {
	m.psMu.RLock()
	defer m.psMu.RUnlock()
	if m.psClosed {
		return
	}
	m.ps.Unsub(sub)
}

func (m *ConnectionManager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *ConnectionManager) Endpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoint
}

func (m *ConnectionManager) Policy() ReconnectPolicy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policy
}

func (m *ConnectionManager) subscribe(topic string) Subscription {
	m.psMu.RLock()
	defer m.psMu.RUnlock()
	if m.psClosed {
		ch := make(Subscription)
		close(ch)
		return ch
	}
	return m.ps.Sub(topic)
}

func (m *ConnectionManager) publish(topic string, msg any) {
	m.psMu.RLock()
	defer m.psMu.RUnlock()
	if m.psClosed {
		return
	}
	m.ps.Pub(msg, topic)
}

func (m *ConnectionManager) startSessionLocked() {
	m.stopRetryLocked()
	m.session++
	m.sessionID = uuid.NewString()
	m.setStateLocked(StateConnecting, nil)

	go m.dial(m.session, m.endpoint, m.sessionID)
}

func (m *ConnectionManager) dial(gen uint64, endpoint, sessionID string) {
	logger := m.logger.With("endpoint", endpoint, "session", sessionID)
	logger.Info("connecting")

	ctx, cancel := context.WithTimeout(context.Background(), m.handshakeTimeout)
	conn, resp, err := m.dialer.DialContext(ctx, endpoint, m.header)
	cancel()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	m.mu.Lock()
	if gen != m.session || m.state != StateConnecting {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		logger.Debug("dial result discarded: session superseded")
		return
	}
	if err != nil {
		m.failLocked(gen, fmt.Errorf("dial %s: %w", endpoint, err))
		m.mu.Unlock()
		return
	}

	done := make(chan struct{})
	m.conn = conn
	m.done = done
	m.policy.Attempts = 0
	m.setStateLocked(StateConnected, nil)
	m.mu.Unlock()

	logger.Info("connected", "remote", conn.RemoteAddr().String())

	if m.pingInterval > 0 {
		go m.keepAlive(gen, conn, done)
	}
	go m.readLoop(gen, conn, logger)
}

func (m *ConnectionManager) readLoop(gen uint64, conn *websocket.Conn, logger *slog.Logger) {
	pongWait := 2 * m.pingInterval
	if m.pingInterval > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.fail(gen, fmt.Errorf("read: %w", err))
			return
		}
		if m.pingInterval > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		}

		var a models.Annotation
		if err := json.Unmarshal(data, &a); err != nil {
			m.metrics.IncrementDecodeErrors()
			logger.Warn("decode annotation failed", "len", len(data), "error", err)
			continue
		}
		m.metrics.IncrementAnnotations()
		m.publish(TopicAnnotations, &a)
	}
}

func (m *ConnectionManager) keepAlive(gen uint64, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(m.writeTimeout)); err != nil {
				m.fail(gen, fmt.Errorf("ping: %w", err))
				return
			}
		}
	}
}

func (m *ConnectionManager) fail(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failLocked(gen, err)
}

// failLocked handles a transport error or remote close for session gen. Only
// the first failure of the current session is acted on.
func (m *ConnectionManager) failLocked(gen uint64, err error) {
	if gen != m.session {
		return
	}
	if m.state != StateConnecting && m.state != StateConnected {
		return
	}

	m.metrics.IncrementTransportErrors()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.closeDoneLocked()
	m.setStateLocked(StateFailed, err)
	m.logger.Warn("websocket session failed", "session", m.sessionID, "error", err)

	if m.policy.Attempts >= m.policy.MaxAttempts {
		m.logger.Error("max reconnect attempts reached, giving up",
			"endpoint", m.endpoint,
			"max_attempts", m.policy.MaxAttempts,
		)
		m.setStateLocked(StateDisconnected, ErrReconnectExhausted)
		return
	}

	m.policy.Attempts++
	m.metrics.IncrementReconnects()
	m.logger.Info("reconnecting",
		"attempt", m.policy.Attempts,
		"max_attempts", m.policy.MaxAttempts,
		"delay", m.policy.RetryDelay,
	)
	m.retry = time.AfterFunc(m.policy.RetryDelay, func() {
		m.reconnect(gen)
	})
}

func (m *ConnectionManager) reconnect(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || gen != m.session || m.state != StateFailed {
		return
	}
	m.retry = nil
	m.startSessionLocked()
}

func (m *ConnectionManager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

func (m *ConnectionManager) closeDoneLocked() {
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
}

func (m *ConnectionManager) setStateLocked(state ConnectionState, err error) {
	m.state = state
	m.publish(TopicConnStatus, ConnStatus{
		State:     state,
		Endpoint:  m.endpoint,
		SessionID: m.sessionID,
		Attempt:   m.policy.Attempts,
		Err:       err,
		Timestamp: time.Now(),
	})
}
