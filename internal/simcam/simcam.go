// Package simcam is a simulated camera: a full Device implementation backed
// by an in-memory feature tree and a depth-bounded frame ring. It reproduces
// the firmware behaviours the configuration sequencer has to survive in the
// field — offset ranges that track width/height, exposure that is only
// writable with auto-exposure off, trigger source locked while the trigger
// is armed — and adds fault injection for tests and bench runs.
package simcam

import (
	"errors"
	"fmt"
	"sync"
	"time"

	visioncapture "github.com/e7canasta/orion-care-sensor/modules/vision-capture"
	"github.com/e7canasta/orion-care-sensor/modules/vision-capture/internal/nodetree"
	"github.com/e7canasta/orion-care-sensor/modules/vision-capture/internal/ring"
)

// Options shape the simulated device. The zero value gives a GigE camera
// with a 2048x2048 sensor and the exposure range of the sensors we deploy.
type Options struct {
	Serial       string
	DeviceType   string // "GEV" or "U3V"
	SensorWidth  int64
	SensorHeight int64
	MaxBuffers   int64 // device-side cap on StreamBufferCountManual
	ExposureMin  float64
	ExposureMax  float64
	XPadding     int
	YPadding     int

	// MissingNodes are removed from the trees after construction, simulating
	// features the firmware does not expose.
	MissingNodes []string
	// ReadOnlyNodes are forced to read-only access.
	ReadOnlyNodes []string
	// IncompleteEvery marks every Nth produced frame as missing packets
	// (0 disables).
	IncompleteEvery int
}

func (o *Options) applyDefaults() {
	if o.Serial == "" {
		o.Serial = "SIM0000001"
	}
	if o.DeviceType == "" {
		o.DeviceType = "GEV"
	}
	if o.SensorWidth == 0 {
		o.SensorWidth = 2048
	}
	if o.SensorHeight == 0 {
		o.SensorHeight = 2048
	}
	if o.MaxBuffers == 0 {
		o.MaxBuffers = 10
	}
	if o.ExposureMin == 0 {
		o.ExposureMin = 20
	}
	if o.ExposureMax == 0 {
		o.ExposureMax = 30000000
	}
}

// Camera is the simulated device. Start of frame production is lazy: the
// first NextFrame call snapshots the configured geometry, ring depth and
// trigger policy, exactly as a real driver latches them on stream start.
type Camera struct {
	opts Options

	tree   *nodetree.Tree
	stream *nodetree.Tree
	tl     *nodetree.Tree

	exposure *nodetree.Float
	offsetX  *nodetree.Int
	offsetY  *nodetree.Int

	mu          sync.Mutex
	ring        *ring.Ring[*visioncapture.RawFrame]
	started     bool
	softwareTrg bool
	outstanding map[*visioncapture.RawFrame]struct{}
	released    uint64
	seq         uint64
	nextErr     error
	stopTick    chan struct{}
	tickDone    chan struct{}
	closed      bool

	logMu    sync.Mutex
	writeLog []string
}

// New builds the camera and its three feature trees.
func New(opts Options) *Camera {
	opts.applyDefaults()
	c := &Camera{
		opts:        opts,
		tree:        nodetree.New(),
		stream:      nodetree.New(),
		tl:          nodetree.New(),
		outstanding: make(map[*visioncapture.RawFrame]struct{}),
	}
	c.buildTrees()

	observe := func(name string, _ any) {
		c.logMu.Lock()
		c.writeLog = append(c.writeLog, name)
		c.logMu.Unlock()
	}
	c.tree.Observe(observe)
	c.stream.Observe(observe)

	for _, n := range opts.MissingNodes {
		c.tree.Remove(n)
		c.stream.Remove(n)
		c.tl.Remove(n)
	}
	for _, n := range opts.ReadOnlyNodes {
		c.tree.SetAccess(n, nodetree.RO)
		c.stream.SetAccess(n, nodetree.RO)
	}
	return c
}

func (c *Camera) buildTrees() {
	o := c.opts

	c.tree.AddEnum("AcquisitionMode", nodetree.RW,
		"Continuous", "SingleFrame", "MultiFrame").SetCurrent("SingleFrame")
	c.tree.AddEnum("PixelFormat", nodetree.RW,
		"Mono8", "BayerRG8", "RGB8").SetCurrent("BayerRG8")

	c.tree.AddBool("AcquisitionFrameRateEnable", nodetree.RW, false)
	c.tree.AddFloat("AcquisitionFrameRate", nodetree.RW, 30, 1, 120)

	// Sensor geometry. Width/height start at full sensor, so the offset
	// maxima start at zero; an offset write before the matching dimension
	// shrinks is out of range, as on real hardware.
	width := c.tree.AddInt("Width", nodetree.RW, o.SensorWidth, 16, o.SensorWidth, 32)
	height := c.tree.AddInt("Height", nodetree.RW, o.SensorHeight, 16, o.SensorHeight, 2)
	c.offsetX = c.tree.AddInt("OffsetX", nodetree.RW, 0, 0, 0, 2)
	c.offsetY = c.tree.AddInt("OffsetY", nodetree.RW, 0, 0, 0, 2)
	width.OnWrite = func(v int64) error {
		c.offsetX.SetRange(0, o.SensorWidth-v)
		return nil
	}
	height.OnWrite = func(v int64) error {
		c.offsetY.SetRange(0, o.SensorHeight-v)
		return nil
	}

	trgMode := c.tree.AddEnum("TriggerMode", nodetree.RW, "Off", "On").SetCurrent("Off")
	trgSource := c.tree.AddEnum("TriggerSource", nodetree.RW,
		"Software", "Line0", "Line1", "Line2", "Line3").SetCurrent("Line0")
	trgSource.OnWrite = func(string) error {
		cur, err := trgMode.Current()
		if err == nil && cur.Name == "On" {
			return fmt.Errorf("TriggerSource locked while TriggerMode is On")
		}
		return nil
	}
	c.tree.AddCommand("TriggerSoftware", nodetree.WO, c.fireSoftwareTrigger)

	expAuto := c.tree.AddEnum("ExposureAuto", nodetree.RW,
		"Off", "Once", "Continuous").SetCurrent("Continuous")
	c.exposure = c.tree.AddFloat("ExposureTime", nodetree.RO,
		10000, o.ExposureMin, o.ExposureMax)
	expAuto.OnWrite = func(entry string) error {
		if entry == "Off" {
			c.tree.SetAccess("ExposureTime", nodetree.RW)
		} else {
			c.tree.SetAccess("ExposureTime", nodetree.RO)
		}
		return nil
	}

	if o.DeviceType == "GEV" {
		c.tree.AddBool("GevGVCPHeartbeatDisable", nodetree.RW, false)
	}

	c.stream.AddEnum("StreamBufferHandlingMode", nodetree.RW,
		"OldestFirst", "OldestFirstOverwrite", "NewestOnly", "NewestFirst").
		SetCurrent("OldestFirst")
	c.stream.AddEnum("StreamBufferCountMode", nodetree.RW,
		"Auto", "Manual").SetCurrent("Auto")
	c.stream.AddInt("StreamBufferCountManual", nodetree.RW, 10, 1, o.MaxBuffers, 1)

	c.tl.AddString("DeviceSerialNumber", nodetree.RO, o.Serial)
	c.tl.AddString("DeviceVendorName", nodetree.RO, "Orion Sim Works")
	c.tl.AddString("DeviceModelName", nodetree.RO, "OSW-SIM2048")
	c.tl.AddString("DeviceVersion", nodetree.RO, "1.4.2-sim")
	c.tl.AddEnum("DeviceType", nodetree.RO, "GEV", "U3V").SetCurrent(o.DeviceType)
	c.tl.AddCategory("DeviceInformation",
		"DeviceSerialNumber", "DeviceVendorName", "DeviceModelName",
		"DeviceVersion", "DeviceType")
}

func (c *Camera) NodeMap() visioncapture.NodeMap       { return c.tree }
func (c *Camera) StreamNodeMap() visioncapture.NodeMap { return c.stream }
func (c *Camera) TLNodeMap() visioncapture.NodeMap     { return c.tl }

// ensureStarted latches the configured state and begins production. With the
// trigger armed on the Software source, frames appear only on
// TriggerSoftware; otherwise a ticker at the configured frame rate stands in
// for free-run or a pulsing hardware line.
func (c *Camera) ensureStarted() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("simcam: device closed")
	}
	if c.started {
		return nil
	}

	depth := int64(3)
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
	c.ring = ring.New[*visioncapture.RawFrame](int(depth), policy)

	c.softwareTrg = false
	if mode := c.tree.Enum("TriggerMode"); mode != nil {
		if cur, err := mode.Current(); err == nil && cur.Name == "On" {
			if src := c.tree.Enum("TriggerSource"); src != nil {
				if s, err := src.Current(); err == nil && s.Name == "Software" {
					c.softwareTrg = true
				}
			}
		}
	}

	c.started = true
	if !c.softwareTrg {
		interval := time.Second / 30
		if n := c.tree.Float("AcquisitionFrameRate"); n != nil {
			if fps, err := n.Value(); err == nil && fps > 0 {
				interval = time.Duration(float64(time.Second) / fps)
			}
		}
		c.stopTick = make(chan struct{})
		c.tickDone = make(chan struct{})
		go c.run(interval)
	}
	return nil
}

func (c *Camera) run(interval time.Duration) {
	defer close(c.tickDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopTick:
			return
		case <-ticker.C:
			c.produce()
		}
	}
}

func (c *Camera) fireSoftwareTrigger() error {
	c.mu.Lock()
	started, software := c.started, c.softwareTrg
	c.mu.Unlock()
	if started && !software {
		return errors.New("simcam: trigger command rejected, device is free-running")
	}
	// Before the stream starts the command is accepted and latent, as on
	// hardware; the frame materialises once streaming begins.
	if !started {
		return nil
	}
	c.produce()
	return nil
}

// produce synthesises one frame and pushes it into the ring, honouring the
// overflow policy. Evicted frames have their slots reclaimed immediately.
func (c *Camera) produce() {
	c.mu.Lock()
	if !c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.seq++
	seq := c.seq
	r := c.ring
	c.mu.Unlock()

	f := c.makeFrame(seq)

	evicted, wasEvicted, accepted := r.Push(f)
	c.mu.Lock()
	if wasEvicted {
		delete(c.outstanding, evicted)
		c.released++
	}
	if accepted {
		c.outstanding[f] = struct{}{}
	}
	c.mu.Unlock()
}

func (c *Camera) makeFrame(seq uint64) *visioncapture.RawFrame {
	w, h := int(c.opts.SensorWidth), int(c.opts.SensorHeight)
	if n := c.tree.Int("Width"); n != nil {
		if v, err := n.Value(); err == nil {
			w = int(v)
		}
	}
	if n := c.tree.Int("Height"); n != nil {
		if v, err := n.Value(); err == nil {
			h = int(v)
		}
	}

	channels := 1
	if n := c.tree.Enum("PixelFormat"); n != nil {
		if cur, err := n.Current(); err == nil && cur.Name == "RGB8" {
			channels = 3
		}
	}

	stride := (w + c.opts.XPadding) * channels
	data := make([]byte, stride*(h+c.opts.YPadding))
	// Diagonal gradient shifted by sequence number, cheap and distinctive
	// per frame.
	for y := 0; y < h; y++ {
		row := data[y*stride:]
		for x := 0; x < w; x++ {
			v := byte((x + y + int(seq)*7) & 0xff)
			for ch := 0; ch < channels; ch++ {
				row[x*channels+ch] = v
			}
		}
	}

	status := visioncapture.FrameComplete
	if c.opts.IncompleteEvery > 0 && seq%uint64(c.opts.IncompleteEvery) == 0 {
		status = visioncapture.FrameMissingPackets
	}

	return &visioncapture.RawFrame{
		Width:    w,
		Height:   h,
		XPadding: c.opts.XPadding,
		YPadding: c.opts.YPadding,
		Channels: channels,
		Stride:   stride,
		Status:   status,
		Data:     data,
	}
}

// NextFrame pulls the oldest undelivered frame, blocking up to timeout.
func (c *Camera) NextFrame(timeout time.Duration) (*visioncapture.RawFrame, error) {
	c.mu.Lock()
	if err := c.nextErr; err != nil {
		c.nextErr = nil
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	if err := c.ensureStarted(); err != nil {
		return nil, err
	}

	f, err := c.ring.Pop(timeout)
	if err != nil {
		if errors.Is(err, ring.ErrTimeout) {
			return nil, visioncapture.ErrFrameTimeout
		}
		return nil, fmt.Errorf("simcam: stream stopped: %w", err)
	}
	return f, nil
}

// Release returns a frame's slot. Double releases and foreign frames are
// errors so tests can catch ownership bugs.
func (c *Camera) Release(f *visioncapture.RawFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.outstanding[f]; !ok {
		return errors.New("simcam: release of unknown or already released frame")
	}
	delete(c.outstanding, f)
	c.released++
	return nil
}

// Close stops production and reclaims undelivered slots. Idempotent.
func (c *Camera) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	stop, done := c.stopTick, c.tickDone
	r := c.ring
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	if r != nil {
		for _, f := range r.Close() {
			c.mu.Lock()
			delete(c.outstanding, f)
			c.released++
			c.mu.Unlock()
		}
	}
}

// FailNextFrame injects a one-shot device error on the next NextFrame call.
func (c *Camera) FailNextFrame(err error) {
	c.mu.Lock()
	c.nextErr = err
	c.mu.Unlock()
}

// WriteLog returns the node-write order observed so far.
func (c *Camera) WriteLog() []string {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	out := make([]string, len(c.writeLog))
	copy(out, c.writeLog)
	return out
}

// Outstanding reports frames delivered but not yet released.
func (c *Camera) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outstanding)
}

// Released reports the lifetime count of reclaimed slots, evictions included.
func (c *Camera) Released() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// Drops reports ring evictions under the KeepNewest policy.
func (c *Camera) Drops() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ring == nil {
		return 0
	}
	return c.ring.Drops()
}
