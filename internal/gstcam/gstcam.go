// Package gstcam is a bench Device backed by a GStreamer test source. It
// exposes the same feature trees a real camera does, so the full
// configuration sequence runs against it, and produces live RGB frames
// through videotestsrc → videoconvert → videorate → capsfilter → appsink.
//
// Useful on machines without camera hardware: the acquisition loop, buffer
// policy and downstream sinks behave as with a real device, minus trigger
// gating (the test source free-runs; software trigger commands are accepted
// and ignored).
package gstcam

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	visioncapture "github.com/e7canasta/orion-care-sensor/modules/vision-capture"
	"github.com/e7canasta/orion-care-sensor/modules/vision-capture/internal/nodetree"
	"github.com/e7canasta/orion-care-sensor/modules/vision-capture/internal/ring"
)

// Options shape the bench device.
type Options struct {
	Serial string
	// Pattern is the videotestsrc pattern number (0 = SMPTE bars).
	Pattern int
	// MaxWidth/MaxHeight bound the geometry nodes. Defaults 1920x1080.
	MaxWidth  int64
	MaxHeight int64
	// MaxBuffers caps StreamBufferCountManual. Default 8.
	MaxBuffers int64
}

// Camera is the bench device. Pipeline construction is deferred to the
// first NextFrame so the configured geometry, frame rate and buffer policy
// are latched exactly once, like a driver starting its stream.
type Camera struct {
	opts Options

	tree   *nodetree.Tree
	stream *nodetree.Tree
	tl     *nodetree.Tree

	mu       sync.Mutex
	pipeline *gst.Pipeline
	ring     *ring.Ring[*visioncapture.RawFrame]
	started  bool
	closed   bool
	stopBus  chan struct{}
	busDone  chan struct{}
}

// New builds the device and its feature trees. GStreamer availability is
// checked fail-fast: a missing installation surfaces here, not mid-stream.
func New(opts Options) (*Camera, error) {
	if opts.Serial == "" {
		opts.Serial = "GST0000001"
	}
	if opts.MaxWidth == 0 {
		opts.MaxWidth = 1920
	}
	if opts.MaxHeight == 0 {
		opts.MaxHeight = 1080
	}
	if opts.MaxBuffers == 0 {
		opts.MaxBuffers = 8
	}

	gst.Init(nil)
	probe, err := gst.NewElement("videotestsrc")
	if err != nil {
		return nil, fmt.Errorf("gstcam: GStreamer not available: %w", err)
	}
	probe.SetState(gst.StateNull)

	c := &Camera{
		opts:   opts,
		tree:   nodetree.New(),
		stream: nodetree.New(),
		tl:     nodetree.New(),
	}
	c.buildTrees()
	return c, nil
}

func (c *Camera) buildTrees() {
	o := c.opts

	c.tree.AddEnum("AcquisitionMode", nodetree.RW,
		"Continuous", "SingleFrame").SetCurrent("Continuous")
	c.tree.AddEnum("PixelFormat", nodetree.RW, "RGB8").SetCurrent("RGB8")
	c.tree.AddBool("AcquisitionFrameRateEnable", nodetree.RW, false)
	c.tree.AddFloat("AcquisitionFrameRate", nodetree.RW, 30, 1, 60)

	width := c.tree.AddInt("Width", nodetree.RW, o.MaxWidth, 16, o.MaxWidth, 2)
	height := c.tree.AddInt("Height", nodetree.RW, o.MaxHeight, 16, o.MaxHeight, 2)
	offsetX := c.tree.AddInt("OffsetX", nodetree.RW, 0, 0, 0, 2)
	offsetY := c.tree.AddInt("OffsetY", nodetree.RW, 0, 0, 0, 2)
	width.OnWrite = func(v int64) error {
		offsetX.SetRange(0, o.MaxWidth-v)
		return nil
	}
	height.OnWrite = func(v int64) error {
		offsetY.SetRange(0, o.MaxHeight-v)
		return nil
	}

	c.tree.AddEnum("TriggerMode", nodetree.RW, "Off", "On").SetCurrent("Off")
	c.tree.AddEnum("TriggerSource", nodetree.RW, "Software", "Line0").SetCurrent("Software")
	// Test source free-runs; the command is accepted so triggered capture
	// plans run unmodified against the bench.
	c.tree.AddCommand("TriggerSoftware", nodetree.WO, func() error { return nil })

	c.tree.AddEnum("ExposureAuto", nodetree.RW, "Off", "Continuous").SetCurrent("Continuous")
	c.tree.AddFloat("ExposureTime", nodetree.RW, 10000, 20, 1000000)

	c.stream.AddEnum("StreamBufferHandlingMode", nodetree.RW,
		"OldestFirst", "NewestOnly").SetCurrent("OldestFirst")
	c.stream.AddEnum("StreamBufferCountMode", nodetree.RW, "Auto", "Manual").SetCurrent("Auto")
	c.stream.AddInt("StreamBufferCountManual", nodetree.RW, 4, 1, o.MaxBuffers, 1)

	c.tl.AddString("DeviceSerialNumber", nodetree.RO, o.Serial)
	c.tl.AddString("DeviceVendorName", nodetree.RO, "GStreamer")
	c.tl.AddString("DeviceModelName", nodetree.RO, "videotestsrc")
	c.tl.AddEnum("DeviceType", nodetree.RO, "U3V", "GEV").SetCurrent("U3V")
	c.tl.AddCategory("DeviceInformation",
		"DeviceSerialNumber", "DeviceVendorName", "DeviceModelName", "DeviceType")
}

func (c *Camera) NodeMap() visioncapture.NodeMap       { return c.tree }
func (c *Camera) StreamNodeMap() visioncapture.NodeMap { return c.stream }
func (c *Camera) TLNodeMap() visioncapture.NodeMap     { return c.tl }

func (c *Camera) ensureStarted() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("gstcam: device closed")
	}
	if c.started {
		return nil
	}

	w, h := c.opts.MaxWidth, c.opts.MaxHeight
	if n := c.tree.Int("Width"); n != nil {
		if v, err := n.Value(); err == nil {
			w = v
		}
	}
	if n := c.tree.Int("Height"); n != nil {
		if v, err := n.Value(); err == nil {
			h = v
		}
	}
	fps := 30.0
	if n := c.tree.Float("AcquisitionFrameRate"); n != nil {
		if v, err := n.Value(); err == nil && v > 0 {
			fps = v
		}
	}
	depth := int64(4)
	if n := c.stream.Int("StreamBufferCountManual"); n != nil {
		if v, err := n.Value(); err == nil {
			depth = v
		}
	}
	policy := ring.QueueAll
	if n := c.stream.Enum("StreamBufferHandlingMode"); n != nil {
		if cur, err := n.Current(); err == nil && cur.Name == "NewestOnly" {
			policy = ring.KeepNewest
		}
	}

	if err := c.startPipeline(int(w), int(h), fps, int(depth), policy); err != nil {
		return err
	}
	c.started = true
	return nil
}

// startPipeline builds videotestsrc → videoconvert → videorate → capsfilter
// → appsink at the latched geometry and rate. Called with c.mu held.
func (c *Camera) startPipeline(w, h int, fps float64, depth int, policy ring.Policy) error {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("gstcam: failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("videotestsrc")
	if err != nil {
		return fmt.Errorf("gstcam: failed to create videotestsrc: %w", err)
	}
	src.SetProperty("is-live", true)
	src.SetProperty("pattern", c.opts.Pattern)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("gstcam: failed to create videoconvert: %w", err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return fmt.Errorf("gstcam: failed to create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)
	videorate.SetProperty("skip-to-first", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("gstcam: failed to create capsfilter: %w", err)
	}
	capsStr := buildCaps(w, h, fps)
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsStr))

	appsink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("gstcam: failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", true) // honour the test source clock
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)
	appsink.SetProperty("qos", true)

	pipeline.AddMany(src, converter, videorate, capsfilter, appsink.Element)
	if err := gst.ElementLinkMany(src, converter, videorate, capsfilter, appsink.Element); err != nil {
		return fmt.Errorf("gstcam: failed to link pipeline elements: %w", err)
	}

	c.ring = ring.New[*visioncapture.RawFrame](depth, policy)
	frameRing := c.ring

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return c.onNewSample(sink, frameRing, w, h)
		},
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("gstcam: failed to start pipeline: %w", err)
	}

	c.pipeline = pipeline
	c.stopBus = make(chan struct{})
	c.busDone = make(chan struct{})
	go c.watchBus(pipeline, c.ring)

	slog.Debug("gstcam: pipeline started", "caps", capsStr, "depth", depth)
	return nil
}

// watchBus polls the pipeline bus. An error or EOS from the test source is
// terminal for the stream: the ring is closed so a blocked NextFrame caller
// sees the failure instead of timing out forever.
func (c *Camera) watchBus(pipeline *gst.Pipeline, r *ring.Ring[*visioncapture.RawFrame]) {
	defer close(c.busDone)
	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-c.stopBus:
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			slog.Warn("gstcam: end of stream from test source")
			r.Close()
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("gstcam: pipeline error", "error", gerr.Error(), "debug", gerr.DebugString())
			r.Close()
			return
		}
	}
}

// onNewSample copies the sample out of GStreamer's buffer and pushes it into
// the ring. Evicted frames need no release here: the copy is Go-owned.
func (c *Camera) onNewSample(sink *app.Sink, r *ring.Ring[*visioncapture.RawFrame], w, h int) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("gstcam: failed to pull sample, skipping frame")
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gstcam: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("gstcam: empty buffer received")
		return gst.FlowOK
	}
	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	f := &visioncapture.RawFrame{
		Width:    w,
		Height:   h,
		Channels: 3,
		Stride:   w * 3,
		Status:   visioncapture.FrameComplete,
		Data:     frameData,
	}
	r.Push(f)
	return gst.FlowOK
}

// NextFrame pulls the oldest undelivered frame, blocking up to timeout.
func (c *Camera) NextFrame(timeout time.Duration) (*visioncapture.RawFrame, error) {
	if err := c.ensureStarted(); err != nil {
		return nil, err
	}
	f, err := c.ring.Pop(timeout)
	if err != nil {
		if errors.Is(err, ring.ErrTimeout) {
			return nil, visioncapture.ErrFrameTimeout
		}
		return nil, fmt.Errorf("gstcam: stream stopped: %w", err)
	}
	return f, nil
}

// Release is a no-op: frame data is copied out of the GStreamer buffer in
// the sample callback, so there is no device slot to return.
func (c *Camera) Release(f *visioncapture.RawFrame) error {
	if f == nil {
		return errors.New("gstcam: release of nil frame")
	}
	return nil
}

// Close tears the pipeline down. Idempotent.
func (c *Camera) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.stopBus != nil {
		close(c.stopBus)
		<-c.busDone
	}
	if c.pipeline != nil {
		if err := c.pipeline.SetState(gst.StateNull); err != nil {
			slog.Warn("gstcam: failed to stop pipeline", "error", err)
		}
		c.pipeline = nil
	}
	if c.ring != nil {
		c.ring.Close()
	}
}

func buildCaps(w, h int, fps float64) string {
	num, den := 1, 1
	if fps < 1.0 {
		den = int(1.0 / fps)
	} else {
		num = int(fps)
	}
	return fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/%d", w, h, num, den)
}
