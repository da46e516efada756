// Package client assembles the annotation client: the websocket link, the
// capture scheduler, the annotation handler and a session level retry loop
// around the connection's own reconnect policy.
package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"AI_ANNOTATOR/go-client/internal/capture"
	"AI_ANNOTATOR/go-client/internal/config"
	"AI_ANNOTATOR/go-client/internal/handlers"
	"AI_ANNOTATOR/go-client/internal/overlay"
	"AI_ANNOTATOR/go-client/internal/services"
	"AI_ANNOTATOR/go-client/internal/status"

	"github.com/gorilla/websocket"
)

var ErrAlreadyStarted = errors.New("client already started")

// Deps are the collaborators the host environment provides.
type Deps struct {
	Acquirer capture.Acquirer
	Display  overlay.Display
	Surface  overlay.Surface
	Sink     status.Sink
	// Dialer overrides the websocket dialer, mainly for tests.
	Dialer *websocket.Dialer
}

type Client struct {
	cfg    *config.Config
	logger *slog.Logger

	metrics   *services.Metrics
	conn      *services.ConnectionManager
	tracker   *services.LatencyTracker
	rates     *services.RateController
	scheduler *capture.Scheduler
	handler   *handlers.AnnotationHandler
	health    *handlers.HealthHandler
	acquirer  capture.Acquirer

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
	retries  int
	retry    *time.Timer
	stopping bool
}

func New(cfg *config.Config, logger *slog.Logger, deps Deps) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := services.NewMetrics()
	conn := services.NewConnectionManager(logger, services.ConnectionOptions{
		Policy: services.ReconnectPolicy{
			MaxAttempts: cfg.MaxReconnectAttempts,
			RetryDelay:  cfg.ReconnectInterval,
		},
		HandshakeTimeout: cfg.HandshakeTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		PingInterval:     cfg.PingInterval,
		Dialer:           deps.Dialer,
		Metrics:          metrics,
	})
	tracker := services.NewLatencyTracker(cfg.LatencyHistoryLimit)
	rates := services.NewRateController()

	sink := deps.Sink
	if sink == nil {
		sink = status.NewLogSink(logger)
	}
	display := deps.Display
	if display == nil {
		display = overlay.SizedDisplay{
			Native: nativeSize(deps.Acquirer),
			Width:  cfg.DisplayWidth,
			Height: cfg.DisplayHeight,
		}
	}
	surface := deps.Surface
	if surface == nil {
		surface = overlay.NewImageSurface()
	}

	return &Client{
		cfg:       cfg,
		logger:    logger.With("component", "client"),
		metrics:   metrics,
		conn:      conn,
		tracker:   tracker,
		rates:     rates,
		scheduler: capture.NewScheduler(logger, capture.NewEncoder(cfg.CaptureTargetWidth, cfg.JPEGQuality), conn, rates, tracker, metrics),
		handler:   handlers.NewAnnotationHandler(logger, tracker, rates, sink, overlay.New(display, surface, logger)),
		health:    handlers.NewHealthHandler(logger),
		acquirer:  deps.Acquirer,
	}
}

// Start connects to the annotation service and starts capturing. It returns
// immediately, the connection is established in the background.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	states := c.conn.States()
	go c.supervise(ctx, states)

	c.handler.Start(ctx, c.conn)
	c.health.Watch(ctx, c.conn)

	c.logger.Info("starting", "endpoint", c.cfg.AnnotatorURL)
	c.conn.Connect(c.cfg.AnnotatorURL)

	if c.acquirer != nil {
		c.scheduler.Start(ctx, c.acquirer)
	} else {
		c.logger.Warn("no video source configured, capture disabled")
	}
	return nil
}

// Stop tears everything down in reverse order and logs the final counters.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.started || c.stopping {
		c.mu.Unlock()
		return
	}
	c.stopping = true
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	c.scheduler.Stop()
	c.conn.Disconnect()
	cancel()
	c.handler.Stop()
	c.health.Stop()
	c.conn.Close()
	<-done

	c.logger.Info("client stopped", c.metrics.LogAttrs()...)
}

func (c *Client) Connection() *services.ConnectionManager { return c.conn }
func (c *Client) Metrics() *services.Metrics              { return c.metrics }
func (c *Client) Latency() *services.LatencyTracker       { return c.tracker }
func (c *Client) Rates() *services.RateController         { return c.rates }
func (c *Client) Health() *handlers.HealthHandler         { return c.health }

// supervise restarts the connection after the service level reconnect budget
// is spent, up to SessionMaxRetries times with SessionRetryDelay in between.
// The budget is restored by every successful connection.
func (c *Client) supervise(ctx context.Context, states services.Subscription) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			go c.conn.Unsubscribe(states)
			for range states {
			}
			return
		case v, ok := <-states:
			if !ok {
				return
			}
			st, ok := v.(services.ConnStatus)
			if !ok {
				continue
			}
			switch {
			case st.State == services.StateConnected:
				c.mu.Lock()
				c.retries = 0
				c.mu.Unlock()
			case st.Terminal():
				c.scheduleSessionRetry(st.Endpoint)
			}
		}
	}
}

func (c *Client) scheduleSessionRetry(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopping {
		return
	}
	if c.retries >= c.cfg.SessionMaxRetries {
		c.logger.Error("annotation service unreachable, giving up",
			"endpoint", endpoint,
			"session_retries", c.retries,
		)
		return
	}
	c.retries++
	c.logger.Warn("connection lost, restarting session",
		"attempt", c.retries,
		"max_attempts", c.cfg.SessionMaxRetries,
		"delay", c.cfg.SessionRetryDelay,
	)
	c.retry = time.AfterFunc(c.cfg.SessionRetryDelay, func() {
		c.mu.Lock()
		stopping := c.stopping
		c.retry = nil
		c.mu.Unlock()
		if !stopping {
			c.conn.Connect(endpoint)
		}
	})
}

// SessionRetries is the number of session restarts since the last successful
// connection.
func (c *Client) SessionRetries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries
}

// nativeSize uses the acquirer's own frame size when it reports one.
func nativeSize(acq capture.Acquirer) func() (int, int) {
	if ns, ok := acq.(interface{ NativeSize() (int, int) }); ok {
		return ns.NativeSize
	}
	return nil
}
