package visioncapture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// framePollTimeout bounds every NextFrame wait. The frame request has no
	// built-in timeout in the driver model, so the loop polls at this
	// granularity; a stop request during a block is observed within one
	// interval.
	framePollTimeout = 500 * time.Millisecond

	// stopTimeout bounds how long Stop waits for the loop goroutine.
	stopTimeout = 3 * time.Second
)

// CameraStream owns one physical camera: its configuration phase, its
// acquisition goroutine, and its operational stats.
//
// Configuration and acquisition are phase-separated, never interleaved:
// Configure runs exactly once and must succeed before Start. Across
// CameraStreams nothing is shared; each device owns its node tree and
// buffer ring, so no cross-device locking exists anywhere in this package.
type CameraStream struct {
	dev Device
	cfg DeviceConfig

	state atomic.Int32

	mu     sync.Mutex // guards report and the configure/warmup/start phase edges
	report *ConfigReport

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	// Statistics (atomic for thread-safety)
	frameCount       uint64
	framesDelivered  uint64
	incompleteFrames uint64
	triggerErrors    uint64
	waitTimeouts     uint64
	lastFrameNano    int64
}

// New creates a CameraStream with fail-fast validation.
//
// Configuration errors are caught at construction time, not at first use:
// a geometry or depth mistake should never reach the device.
func New(dev Device, cfg DeviceConfig) (*CameraStream, error) {
	if dev == nil {
		return nil, fmt.Errorf("vision-capture: device is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("vision-capture: invalid geometry %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.OffsetX < 0 || cfg.OffsetY < 0 {
		return nil, fmt.Errorf("vision-capture: negative sensor offset (%d,%d)", cfg.OffsetX, cfg.OffsetY)
	}
	if cfg.BufferDepth < 1 {
		return nil, fmt.Errorf("vision-capture: buffer depth %d (must be >= 1)", cfg.BufferDepth)
	}
	if cfg.FrameRate < 0.1 || cfg.FrameRate > 120 {
		return nil, fmt.Errorf("vision-capture: invalid frame rate %.2f (must be 0.1-120)", cfg.FrameRate)
	}
	if cfg.ExposureManual && cfg.ExposureMicros <= 0 {
		return nil, fmt.Errorf("vision-capture: manual exposure requires a positive time, got %.0f", cfg.ExposureMicros)
	}

	return &CameraStream{
		dev:    dev,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}, nil
}

// Config returns the configuration this stream was built with.
func (c *CameraStream) Config() DeviceConfig { return c.cfg }

// State returns the current phase.
func (c *CameraStream) State() State {
	return State(c.state.Load())
}

// Report returns the configuration report, nil before Configure.
func (c *CameraStream) Report() *ConfigReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report
}

// Configure runs the device configuration sequence. Must be called exactly
// once, before Start; a fatal step leaves the stream Unconfigured and
// returns the partial report alongside the error.
func (c *CameraStream) Configure() (*ConfigReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if State(c.state.Load()) != StateUnconfigured {
		return c.report, fmt.Errorf("%w: configure in state %s", ErrInvalidState, c.State())
	}

	report, err := configure(c.dev, c.cfg)
	c.report = report
	if err != nil {
		return report, err
	}

	c.state.Store(int32(StateConfigured))
	return report, nil
}

// Start begins the acquisition loop in its own goroutine and returns
// immediately. The sink receives every completed frame; the frame's backing
// memory is released the moment HandleFrame returns.
//
// The loop stops on Stop(), on ctx cancellation, or on a device protocol
// error; transient per-frame errors (incomplete frame, failed software
// trigger) never stop it.
func (c *CameraStream) Start(ctx context.Context, sink FrameSink) error {
	if sink == nil {
		return fmt.Errorf("vision-capture: sink is required")
	}
	if !c.state.CompareAndSwap(int32(StateConfigured), int32(StateAcquiring)) {
		return fmt.Errorf("%w: start in state %s", ErrInvalidState, c.State())
	}

	c.wg.Add(1)
	go c.acquireLoop(ctx, sink)

	slog.Info("camera: acquisition started",
		"camera", c.cfg.Index,
		"trigger", c.cfg.Trigger.String(),
		"geometry", fmt.Sprintf("%dx%d+%d+%d", c.cfg.Width, c.cfg.Height, c.cfg.OffsetX, c.cfg.OffsetY),
	)
	return nil
}

// Stop requests a cooperative shutdown and waits for the loop to exit, up
// to stopTimeout. Idempotent; safe from any goroutine.
func (c *CameraStream) Stop() error {
	c.stopOnce.Do(func() { close(c.stopCh) })

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		return fmt.Errorf("vision-capture: camera %d stop timed out after %s", c.cfg.Index, stopTimeout)
	}

	c.state.Store(int32(StateStopped))
	return nil
}

// Stats returns an operational snapshot. Lock-free reads of atomic counters.
func (c *CameraStream) Stats() CameraStats {
	stats := CameraStats{
		State:            c.State(),
		FrameCount:       atomic.LoadUint64(&c.frameCount),
		FramesDelivered:  atomic.LoadUint64(&c.framesDelivered),
		IncompleteFrames: atomic.LoadUint64(&c.incompleteFrames),
		TriggerErrors:    atomic.LoadUint64(&c.triggerErrors),
		WaitTimeouts:     atomic.LoadUint64(&c.waitTimeouts),
	}
	if nano := atomic.LoadInt64(&c.lastFrameNano); nano != 0 {
		stats.LastFrameAt = time.Unix(0, nano)
	}
	c.mu.Lock()
	if c.report != nil {
		stats.DegradedSteps = c.report.DegradedSteps()
	}
	c.mu.Unlock()
	return stats
}

// acquireLoop is the per-device loop: trigger, pull, validate, convert,
// deliver, release. One instance per device; the only suspension point per
// iteration is the bounded NextFrame wait.
func (c *CameraStream) acquireLoop(ctx context.Context, sink FrameSink) {
	defer c.wg.Done()
	defer c.state.Store(int32(StateStopped))
	defer c.deconfigure()

	var seq uint64

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if c.cfg.Trigger == TriggerSoftware {
			if err := execCommand(c.dev.NodeMap(), nodeTriggerSoftware); err != nil {
				// Trigger failure skips the frame pull for this iteration;
				// pulling an untriggered frame would block for nothing.
				atomic.AddUint64(&c.triggerErrors, 1)
				slog.Warn("camera: software trigger failed",
					"camera", c.cfg.Index, "error", err)
				if !c.waitOnePoll(ctx) {
					return
				}
				continue
			}
		}

		f, err := c.dev.NextFrame(framePollTimeout)
		if errors.Is(err, ErrFrameTimeout) {
			atomic.AddUint64(&c.waitTimeouts, 1)
			continue
		}
		if err != nil {
			// Device protocol error: terminal for this session.
			slog.Error("camera: device error during acquisition",
				"camera", c.cfg.Index, "error", err)
			return
		}

		atomic.AddUint64(&c.frameCount, 1)
		atomic.StoreInt64(&c.lastFrameNano, time.Now().UnixNano())

		// A stop may have arrived while blocked in NextFrame. The frame is
		// still released before exit; leaking it would strand a ring slot.
		select {
		case <-c.stopCh:
			c.release(f)
			return
		case <-ctx.Done():
			c.release(f)
			return
		default:
		}

		if f.Status != FrameComplete {
			atomic.AddUint64(&c.incompleteFrames, 1)
			slog.Warn("camera: incomplete frame",
				"camera", c.cfg.Index, "status", f.Status.String())
			c.release(f)
			continue
		}

		img, err := ToDenseImage(f)
		if err != nil {
			c.release(f)
			continue
		}
		seq++
		img.CameraIndex = c.cfg.Index
		img.Seq = seq
		img.TraceID = uuid.New().String()
		img.Timestamp = time.Now()

		sink.HandleFrame(img)

		// Release immediately after the sink returns. Delayed release
		// exhausts the device ring: a correctness bug, not a tuning knob.
		c.release(f)
		atomic.AddUint64(&c.framesDelivered, 1)
	}
}

func (c *CameraStream) release(f *RawFrame) {
	if err := c.dev.Release(f); err != nil {
		slog.Warn("camera: frame release failed", "camera", c.cfg.Index, "error", err)
	}
}

// waitOnePoll sleeps one poll interval while staying stop-responsive.
// Returns false when shutdown was requested.
func (c *CameraStream) waitOnePoll(ctx context.Context) bool {
	t := time.NewTimer(framePollTimeout)
	defer t.Stop()
	select {
	case <-c.stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// deconfigure returns the camera toward its default state on shutdown:
// trigger off, automatic exposure back on. Best-effort; the device may
// already be gone.
func (c *CameraStream) deconfigure() {
	nm := c.dev.NodeMap()
	if err := setEnum(nm, nodeTriggerMode, entryTriggerOff); err != nil {
		slog.Debug("camera: trigger reset skipped", "camera", c.cfg.Index, "error", err)
	}
	if err := setEnum(nm, nodeExposureAuto, entryContinuous); err != nil {
		slog.Debug("camera: exposure reset skipped", "camera", c.cfg.Index, "error", err)
	}
}
