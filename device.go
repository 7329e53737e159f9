package visioncapture

import "time"

// FrameStatus is the integrity classification the device assigns to a frame
// on arrival. Anything other than FrameComplete means the frame must be
// released without reaching the sink.
type FrameStatus int

const (
	FrameComplete FrameStatus = iota
	FrameMissingPackets
	FramePayloadTruncated
	FrameCRCError
	FrameUnknownError
)

func (s FrameStatus) String() string {
	switch s {
	case FrameComplete:
		return "complete"
	case FrameMissingPackets:
		return "missing packets"
	case FramePayloadTruncated:
		return "payload truncated"
	case FrameCRCError:
		return "crc error"
	default:
		return "unknown error"
	}
}

// RawFrame is a handle into a device-owned buffer slot.
//
// Ownership: the device driver owns the backing memory until Release is
// called. Data is valid only until then; anything derived from it (including
// a DenseImage view) must not outlive the release.
type RawFrame struct {
	Width    int
	Height   int
	XPadding int
	YPadding int
	Channels int
	// Stride is bytes per row including padding. Taken verbatim by the
	// converter; padding can make it unequal to Cols*Channels.
	Stride int
	Status FrameStatus
	Data   []byte
}

// Device is the driver contract this module depends on. It deliberately
// matches the shape of a GenICam transport binding without naming any
// vendor: three feature trees, a blocking frame request with a bounded wait,
// and an explicit release.
//
// Implementations must guarantee:
//   - NextFrame blocks at most timeout, returning ErrFrameTimeout when no
//     frame arrived. It must never be called before configuration has
//     succeeded; drivers may hang otherwise.
//   - Release is safe to call exactly once per frame and returns the buffer
//     slot to the device ring.
//   - Node maps answer presence/access queries live on every call.
type Device interface {
	// NodeMap is the main GenICam feature tree (acquisition, geometry,
	// trigger, exposure).
	NodeMap() NodeMap
	// StreamNodeMap is the transport-stream tree (buffer count and
	// handling-mode nodes).
	StreamNodeMap() NodeMap
	// TLNodeMap is the transport-layer device tree (DeviceInformation,
	// serial number, device type).
	TLNodeMap() NodeMap

	// NextFrame returns the next completed frame, blocking up to timeout.
	NextFrame(timeout time.Duration) (*RawFrame, error)
	// Release returns the frame's buffer slot to the device.
	Release(f *RawFrame) error
}

// Feature-node names used by the configuration sequencer and the loop.
// These follow the GenICam SFNC, which every vendor tree in the field maps
// onto, so they live here rather than in any device implementation.
const (
	nodeAcquisitionMode     = "AcquisitionMode"
	nodePixelFormat         = "PixelFormat"
	nodeFrameRateEnable     = "AcquisitionFrameRateEnable"
	nodeFrameRate           = "AcquisitionFrameRate"
	nodeWidth               = "Width"
	nodeHeight              = "Height"
	nodeOffsetX             = "OffsetX"
	nodeOffsetY             = "OffsetY"
	nodeTriggerMode         = "TriggerMode"
	nodeTriggerSource       = "TriggerSource"
	nodeTriggerSoftware     = "TriggerSoftware"
	nodeExposureAuto        = "ExposureAuto"
	nodeExposureTime        = "ExposureTime"
	nodeBufferHandlingMode  = "StreamBufferHandlingMode"
	nodeBufferCountMode     = "StreamBufferCountMode"
	nodeBufferCountManual   = "StreamBufferCountManual"
	nodeDeviceSerialNumber  = "DeviceSerialNumber"
	nodeDeviceType          = "DeviceType"
	nodeHeartbeatDisable    = "GevGVCPHeartbeatDisable"
	nodeDeviceInformation   = "DeviceInformation"
	entryContinuous         = "Continuous"
	entryRGB8               = "RGB8"
	entryManual             = "Manual"
	entryNewestOnly         = "NewestOnly"
	entryOldestFirst        = "OldestFirst"
	entryTriggerOff         = "Off"
	entryTriggerOn          = "On"
	entryTriggerSoftware    = "Software"
	entryExposureAutoOff    = "Off"
	entryDeviceTypeGigE     = "GEV"
)
