package visioncapture

import "time"

// TriggerSource is the signal origin that starts frame capture.
type TriggerSource int

const (
	// TriggerSoftware fires capture via the TriggerSoftware command node.
	TriggerSoftware TriggerSource = iota
	// TriggerHardware gates capture on a physical line (Line0 by default).
	TriggerHardware
)

func (t TriggerSource) String() string {
	switch t {
	case TriggerSoftware:
		return "software"
	case TriggerHardware:
		return "hardware"
	default:
		return "unknown"
	}
}

// OverflowPolicy is the device-side rule for a full buffer ring.
type OverflowPolicy int

const (
	// OverflowKeepNewest discards the oldest undelivered frame in favour of
	// the newest arrival. Throughput over completeness; the default.
	OverflowKeepNewest OverflowPolicy = iota
	// OverflowQueueAll delivers frames in arrival order and stalls
	// acquisition while the ring is full.
	OverflowQueueAll
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowKeepNewest:
		return "keep-newest"
	case OverflowQueueAll:
		return "queue-all"
	default:
		return "unknown"
	}
}

// handlingModeEntry maps the policy to its stream-node enumeration entry.
func (p OverflowPolicy) handlingModeEntry() string {
	if p == OverflowQueueAll {
		return entryOldestFirst
	}
	return entryNewestOnly
}

// State is the per-camera phase. Transitions are strictly forward:
// Unconfigured → Configured → Acquiring → Stopped.
type State int32

const (
	StateUnconfigured State = iota
	StateConfigured
	StateAcquiring
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfigured:
		return "configured"
	case StateAcquiring:
		return "acquiring"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// DeviceConfig is the full per-camera configuration, built once at startup
// from the capture plan and passed explicitly to the sequencer. No ambient
// lookup happens during configuration or acquisition.
type DeviceConfig struct {
	// Index is the camera's position in the device array; it selected the
	// geometry below and tags frames and diagnostics.
	Index int

	// Pixel geometry. Offsets are only meaningful once width/height are
	// committed: the valid offset range is sensor size minus frame size.
	Width   int64
	Height  int64
	OffsetX int64
	OffsetY int64

	// BufferDepth is the manual buffer count requested from the device.
	// The device may clamp it to its own maximum; the clamp is surfaced as
	// a degraded configuration step.
	BufferDepth int64
	Overflow    OverflowPolicy

	Trigger TriggerSource
	// TriggerLine is the hardware line entry name; empty means Line0.
	TriggerLine string

	FrameRate float64

	// ExposureManual selects manual exposure; ExposureMicros is the
	// requested time in microseconds, clamped to the device minimum when
	// out of range on either side (fail safe to shortest exposure).
	ExposureManual bool
	ExposureMicros float64

	// DisableHeartbeat disables the GigE Vision heartbeat on GEV devices so
	// a debugger pause does not time the link out. Debug sessions only;
	// power cycle the camera afterwards.
	DisableHeartbeat bool
}

// DenseImage is the caller-facing view of a completed frame: dense row
// indexing over the same backing memory as the device buffer.
//
// Data is a non-owning reference. It is valid only until the acquisition
// loop releases the underlying frame, which happens as soon as the sink
// returns; copy whatever must survive.
type DenseImage struct {
	// Rows is frame height plus Y padding.
	Rows int
	// Cols is frame width plus X padding.
	Cols     int
	Channels int
	// Stride is bytes per row, taken verbatim from the device frame. Never
	// recomputed: padding may make it unequal to Cols*Channels.
	Stride int
	Data   []byte

	CameraIndex int
	Seq         uint64
	TraceID     string
	Timestamp   time.Time
}

// CameraStats is an operational snapshot of one camera stream. All counters
// are updated atomically by the acquisition loop; transient per-frame errors
// show up here, not as loop failures.
type CameraStats struct {
	State State
	// FrameCount is frames pulled from the device, complete or not.
	FrameCount uint64
	// FramesDelivered is complete frames handed to the sink.
	FramesDelivered uint64
	// IncompleteFrames arrived but failed the integrity check (released,
	// never delivered).
	IncompleteFrames uint64
	// TriggerErrors counts iterations whose software trigger failed.
	TriggerErrors uint64
	// WaitTimeouts counts bounded frame waits that expired with no frame.
	WaitTimeouts uint64
	LastFrameAt  time.Time
	// DegradedSteps lists configuration steps that did not fully succeed.
	DegradedSteps []string
}
