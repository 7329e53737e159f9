package visioncapture

import "log/slog"

// applyBufferPolicy drives the stream-node buffer chain: manual count mode,
// manual count, handling mode. This is the frame-delivery policy; without it
// throughput and latency are unbounded, so every sub-step here is required
// and any failure is fatal to configuration.
//
// The device may clamp the requested depth to its own maximum. The applied
// depth is read back and returned with clamped=true so the caller surfaces
// it; a silent clamp would misreport the ring the loop runs against.
func applyBufferPolicy(dev Device, depth int64, policy OverflowPolicy) (applied int64, clamped bool, err error) {
	snm := dev.StreamNodeMap()

	// Current handling mode, diagnostic only. The node chain being readable
	// is still required: a stream tree without it cannot hold the policy.
	cur, err := currentEnum(snm, nodeBufferHandlingMode)
	if err != nil {
		return 0, false, err
	}
	slog.Debug("buffers: default handling mode", "entry", cur.Name)

	if err := setEnum(snm, nodeBufferCountMode, entryManual); err != nil {
		return 0, false, err
	}

	n := snm.Int(nodeBufferCountManual)
	if n == nil || !n.Present() {
		return 0, false, nodeErr(nodeBufferCountManual, "set value", ErrNodeUnavailable)
	}
	if !n.Writable() {
		return 0, false, nodeErr(nodeBufferCountManual, "set value", ErrNodeNotWritable)
	}

	applied = depth
	if max := n.Max(); max > 0 && applied > max {
		applied = max
		clamped = true
	}
	if min := n.Min(); applied < min {
		applied = min
		clamped = true
	}
	if err := n.SetValue(applied); err != nil {
		return 0, false, nodeErr(nodeBufferCountManual, "set value", err)
	}

	// Read back: the device has the last word on the count it honours.
	got, err := n.Value()
	if err != nil {
		return 0, false, nodeErr(nodeBufferCountManual, "read back", err)
	}
	if got != depth {
		clamped = true
	}
	applied = got

	if err := setEnum(snm, nodeBufferHandlingMode, policy.handlingModeEntry()); err != nil {
		return 0, false, err
	}

	slog.Info("buffers: policy applied",
		"requested_depth", depth,
		"applied_depth", applied,
		"clamped", clamped,
		"handling_mode", policy.handlingModeEntry(),
	)
	return applied, clamped, nil
}
