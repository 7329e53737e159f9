// Package monitor exposes a capture process over HTTP: a health probe, a
// JSON status endpoint, and a websocket feed of CBOR-encoded frame
// envelopes for bench tooling (live preview, latency eyeballing).
//
// The server is also a FrameSink, so it drops straight into the sink chain
// of one or more camera streams. Frame fan-out never blocks the acquisition
// loop: envelopes go through a small buffered channel and are dropped when
// the channel is full or no client is connected.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	visioncapture "github.com/e7canasta/orion-care-sensor/modules/vision-capture"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10

	frameQueueDepth = 8
)

// FrameEnvelope is the wire form of a delivered frame. CBOR keeps the pixel
// payload binary without base64 inflation.
type FrameEnvelope struct {
	Type        string    `cbor:"type"`
	CameraIndex int       `cbor:"camera"`
	Seq         uint64    `cbor:"seq"`
	TraceID     string    `cbor:"trace_id"`
	Timestamp   time.Time `cbor:"ts"`
	Rows        int       `cbor:"rows"`
	Cols        int       `cbor:"cols"`
	Channels    int       `cbor:"channels"`
	Stride      int       `cbor:"stride"`
	Pixels      []byte    `cbor:"pixels"`
}

// Server is the monitor endpoint. StatusFn supplies the /status payload;
// wire it to the per-camera Stats snapshots.
type Server struct {
	upgrader websocket.Upgrader
	statusFn func() map[string]any

	mu      sync.Mutex
	clients map[*websocket.Conn]*sync.Mutex

	frames  chan FrameEnvelope
	dropped uint64

	httpServer *http.Server
}

// New builds a monitor server listening on addr (e.g. ":8089").
func New(addr string, statusFn func() map[string]any) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		statusFn: statusFn,
		clients:  make(map[*websocket.Conn]*sync.Mutex),
		frames:   make(chan FrameEnvelope, frameQueueDepth),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled. Returns http.ErrServerClosed on a
// clean shutdown, as net/http does.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()
	go s.broadcast(ctx)

	slog.Info("monitor: listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// HandleFrame implements visioncapture.FrameSink. The pixel data is copied
// here because the image view dies when the loop releases the device buffer.
func (s *Server) HandleFrame(img visioncapture.DenseImage) {
	if s.clientCount() == 0 {
		return
	}

	pixels := make([]byte, len(img.Data))
	copy(pixels, img.Data)

	env := FrameEnvelope{
		Type:        "image",
		CameraIndex: img.CameraIndex,
		Seq:         img.Seq,
		TraceID:     img.TraceID,
		Timestamp:   img.Timestamp,
		Rows:        img.Rows,
		Cols:        img.Cols,
		Channels:    img.Channels,
		Stride:      img.Stride,
		Pixels:      pixels,
	}

	select {
	case s.frames <- env:
	default:
		atomic.AddUint64(&s.dropped, 1)
		slog.Debug("monitor: dropping frame, queue full",
			"seq", env.Seq,
			"trace_id", env.TraceID,
		)
	}
}

// Dropped reports frames discarded because the broadcast queue was full.
func (s *Server) Dropped() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

func (s *Server) broadcast(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-s.frames:
			payload, err := cbor.Marshal(env)
			if err != nil {
				slog.Warn("monitor: failed to encode frame envelope", "error", err)
				continue
			}
			var stale []*websocket.Conn
			s.mu.Lock()
			for conn, writeMu := range s.clients {
				if err := s.writeMessage(conn, writeMu, websocket.BinaryMessage, payload); err != nil {
					stale = append(stale, conn)
				}
			}
			s.mu.Unlock()
			for _, conn := range stale {
				s.removeClient(conn)
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{}
	if s.statusFn != nil {
		payload = s.statusFn()
	}
	payload["ws_clients"] = s.clientCount()
	payload["frames_dropped"] = s.Dropped()
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	writeMu := &sync.Mutex{}
	s.mu.Lock()
	s.clients[conn] = writeMu
	s.mu.Unlock()

	go func() {
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(pingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if err := s.writeMessage(conn, writeMu, websocket.PingMessage, nil); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()
		defer close(done)
		defer s.removeClient(conn)
		for {
			// Reads keep the pong handler fed; client payloads are ignored.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) writeMessage(conn *websocket.Conn, writeMu *sync.Mutex, messageType int, payload []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload)
}
