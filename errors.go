package visioncapture

import (
	"errors"
	"fmt"
)

// Error taxonomy. Node-level errors are caught at the smallest enclosing
// configuration step and downgraded to a recorded degradation; per-frame
// errors are reported and the acquisition loop continues. Anything else is a
// device protocol error: fatal to configuration, terminal to acquisition.
var (
	// ErrNodeUnavailable: the feature is absent on this device/firmware.
	ErrNodeUnavailable = errors.New("vision-capture: node unavailable")

	// ErrNodeNotWritable: the feature exists but its current access mode
	// forbids writing.
	ErrNodeNotWritable = errors.New("vision-capture: node not writable")

	// ErrNodeNotReadable: the feature exists but its current access mode
	// forbids reading.
	ErrNodeNotReadable = errors.New("vision-capture: node not readable")

	// ErrValueOutOfRange: the requested value is outside the device-reported
	// min/max. Geometry rejects such writes outright; exposure clamps to the
	// minimum instead (see Configure).
	ErrValueOutOfRange = errors.New("vision-capture: value out of range")

	// ErrFrameTimeout: no frame arrived within the bounded wait. Not an
	// error condition for the loop; it re-checks its stop flag and polls
	// again.
	ErrFrameTimeout = errors.New("vision-capture: frame wait timed out")

	// ErrIncompleteFrame: a frame arrived but failed the device integrity
	// check. The frame is released and never reaches the sink.
	ErrIncompleteFrame = errors.New("vision-capture: incomplete frame")

	// ErrTriggerFailed: the software trigger node was unavailable or not
	// executable this iteration.
	ErrTriggerFailed = errors.New("vision-capture: software trigger failed")

	// ErrInvalidState: an operation was attempted in the wrong phase, e.g.
	// Start before Configure.
	ErrInvalidState = errors.New("vision-capture: invalid state")
)

// NodeError wraps a taxonomy error with the node name and operation that
// produced it, so no degradation is reported without naming its node.
type NodeError struct {
	Node string
	Op   string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("vision-capture: node %q: %s: %v", e.Node, e.Op, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

func nodeErr(node, op string, err error) error {
	return &NodeError{Node: node, Op: op, Err: err}
}
