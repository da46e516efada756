package handlers

import (
	"bytes"
	"log"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"AI_ANNOTATOR/go-client/internal/capture"
	"AI_ANNOTATOR/go-client/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodedPattern(t *testing.T, w, h int, seq uint64) models.VideoFrame {
	t.Helper()
	out, err := capture.NewEncoder(320, 40).Encode(capture.RenderPattern(w, h, seq))
	require.NoError(t, err)
	return out.Message
}

func TestAnnotateFindsBrightRegionInSourceSpace(t *testing.T) {
	frame := encodedPattern(t, 640, 480, 0)
	img, err := DecodeFrame(frame.Frame)
	require.NoError(t, err)

	a := Annotate(img, 640)

	got, ok := a.Box()
	require.True(t, ok)
	want := capture.PatternBox(640, 480, 0)
	assert.InDelta(t, float64(want.Min.X), got.X, 6)
	assert.InDelta(t, float64(want.Min.Y), got.Y, 6)
	assert.InDelta(t, float64(want.Dx()), got.W, 8)
	assert.InDelta(t, float64(want.Dy()), got.H, 8)
	assert.Equal(t, "left", a.Orientation)
	assert.Equal(t, "ok", a.TextFacDis)
	assert.Equal(t, models.DefaultBoxColor, a.Color())
}

func TestAnnotateDarkFrameHasNoRectangle(t *testing.T) {
	img := capture.RenderPattern(64, 48, 0)
	for i := range img.Pix {
		if i%4 != 3 {
			img.Pix[i] = 0
		}
	}

	a := Annotate(img, 640)

	_, ok := a.Box()
	assert.False(t, ok)
	assert.Equal(t, "no face detected", a.Text4User)
}

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	_, err := DecodeFrame("")
	assert.Error(t, err)
	_, err = DecodeFrame("%%%")
	assert.ErrorContains(t, err, "base64")
	_, err = DecodeFrame("aGVsbG8=")
	assert.ErrorContains(t, err, "jpeg")
}

func TestAnnotationServerRepliesToFrames(t *testing.T) {
	s := NewAnnotationServer(nil, AnnotationServerOptions{SourceWidth: 640})
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return s.ActiveClients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{broken")))
	require.NoError(t, conn.WriteJSON(encodedPattern(t, 640, 480, 0)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var a models.Annotation
	require.NoError(t, conn.ReadJSON(&a))
	_, ok := a.Box()
	assert.True(t, ok)
	assert.Equal(t, int64(1), s.FramesProcessed())

	s.CloseAll()
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestAnnotationServerHealthHTTP(t *testing.T) {
	s := NewAnnotationServer(nil, AnnotationServerOptions{})
	rec := httptest.NewRecorder()

	s.HealthHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.Contains(t, rec.Body.String(), `"active_clients":0`)

	rec = httptest.NewRecorder()
	s.HealthHTTP(rec, httptest.NewRequest("POST", "/health", nil))
	assert.Equal(t, 405, rec.Code)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func dialServer(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestAnnotationServerCloseAllDuringPendingReply(t *testing.T) {
	s := NewAnnotationServer(nil, AnnotationServerOptions{SourceWidth: 640, Delay: 200 * time.Millisecond})
	var serverLog lockedBuffer
	ts := httptest.NewUnstartedServer(s)
	ts.Config.ErrorLog = log.New(&serverLog, "", 0)
	ts.Start()
	t.Cleanup(ts.Close)

	conn := dialServer(t, ts)
	require.Eventually(t, func() bool { return s.ActiveClients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(encodedPattern(t, 640, 480, 0)))
	require.Eventually(t, func() bool { return s.FramesProcessed() == 1 }, time.Second, 5*time.Millisecond)

	// the reply is still delayed when every client is closed
	s.CloseAll()

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	require.Eventually(t, func() bool { return s.ActiveClients() == 0 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	assert.NotContains(t, serverLog.String(), "panic")
}

func TestAnnotationServerSkipsEmptyMessages(t *testing.T) {
	s := NewAnnotationServer(nil, AnnotationServerOptions{SourceWidth: 640})
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	conn := dialServer(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, nil))
	require.NoError(t, conn.WriteJSON(encodedPattern(t, 640, 480, 0)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var a models.Annotation
	require.NoError(t, conn.ReadJSON(&a), "client must stay connected after an empty message")
	_, ok := a.Box()
	assert.True(t, ok)
	assert.Equal(t, 1, s.ActiveClients())
}
