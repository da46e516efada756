package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"AI_ANNOTATOR/go-client/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	brightThreshold = 200
	sendBuffer      = 64
	pongWait        = 60 * time.Second
	writeWait       = 10 * time.Second
)

type AnnotationServerOptions struct {
	// SourceWidth is the native width of the client's video. Replies are
	// scaled from the received frame size up to it. Zero disables scaling.
	SourceWidth int
	// Delay is added before each reply to simulate inference time.
	Delay        time.Duration
	PingInterval time.Duration
}

// AnnotationServer is a stand-in annotation service. For every received frame
// it replies with the bounding box of the bright region of the image.
type AnnotationServer struct {
	logger   *slog.Logger
	opts     AnnotationServerOptions
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*wsClient

	frames   atomic.Int64
	rejected atomic.Int64
}

type wsClient struct {
	conn      *websocket.Conn
	clientID  string
	send      chan any
	closeOnce sync.Once
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

func NewAnnotationServer(logger *slog.Logger, opts AnnotationServerOptions) *AnnotationServer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	return &AnnotationServer{
		logger: logger.With("component", "annotation_server"),
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[string]*wsClient),
	}
}

func (s *AnnotationServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		conn:     conn,
		clientID: uuid.NewString(),
		send:     make(chan any, sendBuffer),
	}

	s.mu.Lock()
	s.clients[client.clientID] = client
	s.mu.Unlock()
	s.logger.Info("client connected", "client", client.clientID, "remote", r.RemoteAddr)

	go s.writePump(client)
	s.readPump(client)
}

// HealthHTTP reports the server counters as JSON.
func (s *AnnotationServer) HealthHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "Method not allowed"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":          "healthy",
		"active_clients":  s.ActiveClients(),
		"total_processed": s.FramesProcessed(),
		"total_errors":    s.rejected.Load(),
		"timestamp":       time.Now().Format(time.RFC3339),
	})
}

func (s *AnnotationServer) ActiveClients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *AnnotationServer) FramesProcessed() int64 {
	return s.frames.Load()
}

// CloseAll sends a close frame to every client and closes its connection.
// Each client's readPump then unregisters it and closes its send queue, so the
// queue is only ever closed by the goroutine that writes to it.
func (s *AnnotationServer) CloseAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutdown")
	for id, c := range s.clients {
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
			s.logger.Debug("close frame failed", "client", id, "error", err)
		}
		_ = c.conn.Close()
		s.logger.Info("closed connection", "client", id)
	}
}

func (s *AnnotationServer) readPump(c *wsClient) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c.clientID)
		s.mu.Unlock()
		c.close()
		s.logger.Info("client disconnected", "client", c.clientID)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg models.VideoFrame
		if err := c.conn.ReadJSON(&msg); err != nil {
			if isDecodeError(err) {
				s.rejected.Add(1)
				s.logger.Warn("malformed message", "client", c.clientID, "error", err)
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket error", "client", c.clientID, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		img, err := DecodeFrame(msg.Frame)
		if err != nil {
			s.rejected.Add(1)
			s.logger.Warn("frame rejected", "client", c.clientID, "error", err)
			continue
		}
		s.frames.Add(1)

		reply := Annotate(img, s.opts.SourceWidth)
		if s.opts.Delay > 0 {
			time.Sleep(s.opts.Delay)
		}

		select {
		case c.send <- reply:
		default:
			s.logger.Warn("reply dropped: client too slow", "client", c.clientID)
		}
	}
}

func (s *AnnotationServer) writePump(c *wsClient) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	// an empty text message surfaces as EOF from the decoder
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// DecodeFrame turns a base64 JPEG payload back into an image.
func DecodeFrame(payload string) (image.Image, error) {
	if payload == "" {
		return nil, errors.New("empty frame")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	return img, nil
}

// Annotate boxes the bright region of img. Coordinates are scaled so that
// img's width maps onto sourceWidth.
func Annotate(img image.Image, sourceWidth int) *models.Annotation {
	b := img.Bounds()
	found := image.Rectangle{}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y < brightThreshold {
				continue
			}
			px := image.Rect(x, y, x+1, y+1)
			if found.Empty() {
				found = px
			} else {
				found = found.Union(px)
			}
		}
	}

	if found.Empty() {
		return &models.Annotation{
			Orientation: models.Unavailable,
			Text4User:   "no face detected",
		}
	}

	scale := 1.0
	if sourceWidth > 0 && b.Dx() > 0 {
		scale = float64(sourceWidth) / float64(b.Dx())
	}
	found = found.Sub(b.Min)
	box := models.Box{
		X: float64(found.Min.X),
		Y: float64(found.Min.Y),
		W: float64(found.Dx()),
		H: float64(found.Dy()),
	}.Scale(scale, scale)

	a := models.NewAnnotation(box, models.DefaultBoxColor)
	a.Orientation = orientation(found, b.Dx())
	a.Text4User = "face detected"
	a.TextFacDis = faceDistance(found, b.Dx())
	return a
}

func orientation(r image.Rectangle, width int) string {
	cx := float64(r.Min.X+r.Max.X) / 2
	switch {
	case cx < float64(width)/3:
		return "left"
	case cx > 2*float64(width)/3:
		return "right"
	default:
		return "front"
	}
}

func faceDistance(r image.Rectangle, width int) string {
	ratio := float64(r.Dx()) / float64(max(width, 1))
	switch {
	case ratio > 0.4:
		return "too close"
	case ratio < 0.1:
		return "too far"
	default:
		return "ok"
	}
}
