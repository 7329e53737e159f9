// Package forward pushes captured frames to downstream inference workers
// over a ZeroMQ PUSH socket as CBOR envelopes. The consumer side is
// language-agnostic; the Python inference pipeline pulls the same shape.
//
// Delivery is best-effort by design: the socket high-water mark plus a
// non-blocking send means a stalled worker costs dropped frames, never a
// stalled acquisition loop.
package forward

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"

	visioncapture "github.com/e7canasta/orion-care-sensor/modules/vision-capture"
)

const sendQueueDepth = 16

// FrameEnvelope is the CBOR wire shape. Field names are part of the
// contract with the pulling side.
type FrameEnvelope struct {
	Type        string    `cbor:"type"` // always "image"
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

// Pusher is a FrameSink that forwards frames over ZeroMQ. ZeroMQ sockets
// are not goroutine-safe, so all socket traffic runs on one sender
// goroutine fed by a bounded channel.
type Pusher struct {
	endpoint string
	queue    chan FrameEnvelope
	cancel   context.CancelFunc
	done     chan struct{}
	dropped  uint64
	sent     uint64
}

// New binds a PUSH socket at endpoint (e.g. "tcp://*:5555") and starts the
// sender. Fail-fast: a bad endpoint surfaces here.
func New(endpoint string) (*Pusher, error) {
	socket, err := zmq4.NewSocket(zmq4.PUSH)
	if err != nil {
		return nil, fmt.Errorf("forward: failed to create socket: %w", err)
	}
	// Small HWM: with a stalled puller we want drops, not memory growth.
	if err := socket.SetSndhwm(4); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("forward: failed to set high-water mark: %w", err)
	}
	if err := socket.Bind(endpoint); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("forward: failed to bind %s: %w", endpoint, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pusher{
		endpoint: endpoint,
		queue:    make(chan FrameEnvelope, sendQueueDepth),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go p.run(ctx, socket)

	slog.Info("forward: push socket bound", "endpoint", endpoint)
	return p, nil
}

// HandleFrame implements visioncapture.FrameSink. Pixels are copied because
// the image view dies when the loop releases the device buffer.
func (p *Pusher) HandleFrame(img visioncapture.DenseImage) {
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
	case p.queue <- env:
	default:
		atomic.AddUint64(&p.dropped, 1)
		slog.Debug("forward: dropping frame, queue full",
			"seq", env.Seq,
			"trace_id", env.TraceID,
		)
	}
}

func (p *Pusher) run(ctx context.Context, socket *zmq4.Socket) {
	defer close(p.done)
	defer socket.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-p.queue:
			payload, err := cbor.Marshal(env)
			if err != nil {
				slog.Warn("forward: failed to encode envelope", "error", err)
				continue
			}
			// DONTWAIT: at the HWM the send fails instead of blocking.
			if _, err := socket.SendBytes(payload, zmq4.DONTWAIT); err != nil {
				atomic.AddUint64(&p.dropped, 1)
				slog.Debug("forward: send failed, frame dropped",
					"seq", env.Seq,
					"error", err,
				)
				continue
			}
			atomic.AddUint64(&p.sent, 1)
		}
	}
}

// Close stops the sender and closes the socket. Queued frames are discarded.
func (p *Pusher) Close() {
	p.cancel()
	<-p.done
	slog.Info("forward: push socket closed",
		"endpoint", p.endpoint,
		"sent", atomic.LoadUint64(&p.sent),
		"dropped", atomic.LoadUint64(&p.dropped),
	)
}

// Sent reports frames successfully handed to ZeroMQ.
func (p *Pusher) Sent() uint64 { return atomic.LoadUint64(&p.sent) }

// Dropped reports frames discarded at the queue or the socket high-water mark.
func (p *Pusher) Dropped() uint64 { return atomic.LoadUint64(&p.dropped) }
