package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	visioncapture "github.com/e7canasta/orion-care-sensor/modules/vision-capture"
)

func testImage(seq uint64) visioncapture.DenseImage {
	return visioncapture.DenseImage{
		Rows:        4,
		Cols:        4,
		Channels:    3,
		Stride:      12,
		Data:        make([]byte, 48),
		CameraIndex: 1,
		Seq:         seq,
		TraceID:     "trace-1",
		Timestamp:   time.Now(),
	}
}

func TestHealthAndStatusEndpoints(t *testing.T) {
	s := New(":0", func() map[string]any {
		return map[string]any{"cameras": 2}
	})
	ts := httptest.NewServer(s.httpServer.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if payload["cameras"] != float64(2) {
		t.Errorf("cameras = %v, want 2", payload["cameras"])
	}
	if _, ok := payload["ws_clients"]; !ok {
		t.Error("status payload missing ws_clients")
	}
	if _, ok := payload["frames_dropped"]; !ok {
		t.Error("status payload missing frames_dropped")
	}
}

// With no websocket client connected, frames are dropped before the queue,
// without counting as queue overflow.
func TestHandleFrameNoClients(t *testing.T) {
	s := New(":0", nil)

	for i := 0; i < 100; i++ {
		s.HandleFrame(testImage(uint64(i)))
	}
	if got := s.Dropped(); got != 0 {
		t.Errorf("Dropped = %d, want 0 when nobody listens", got)
	}
	if len(s.frames) != 0 {
		t.Errorf("queue holds %d envelopes, want 0", len(s.frames))
	}
}

func TestWebsocketReceivesFrameEnvelope(t *testing.T) {
	s := New(":0", nil)
	ts := httptest.NewServer(s.httpServer.Handler)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.broadcast(ctx)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.clientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	img := testImage(42)
	img.Data[0] = 0xAB
	s.HandleFrame(img)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if msgType != websocket.BinaryMessage {
		t.Errorf("message type = %d, want binary", msgType)
	}

	var env FrameEnvelope
	if err := cbor.Unmarshal(payload, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != "image" {
		t.Errorf("type = %q, want image", env.Type)
	}
	if env.Seq != 42 || env.TraceID != "trace-1" || env.CameraIndex != 1 {
		t.Errorf("envelope = %+v", env)
	}
	if env.Rows != 4 || env.Cols != 4 || env.Stride != 12 {
		t.Errorf("geometry = %dx%d stride %d", env.Rows, env.Cols, env.Stride)
	}
	if len(env.Pixels) != 48 || env.Pixels[0] != 0xAB {
		t.Errorf("pixels = %d bytes, first %x", len(env.Pixels), env.Pixels[0])
	}
}
