package visioncapture

import (
	"fmt"
	"io"
)

// PrintDeviceInfo writes this camera's device information table to w.
func (c *CameraStream) PrintDeviceInfo(w io.Writer) bool {
	return PrintDeviceInfo(c.dev, w)
}

// PrintDeviceInfo writes the transport-layer "DeviceInformation" category to
// w, one "Name : value" line per feature. Best-effort and read-only: an
// unreadable feature prints a placeholder, and only a missing category makes
// the whole call return false.
//
// Output is human-readable text with no format guarantee.
func PrintDeviceInfo(dev Device, w io.Writer) bool {
	fmt.Fprintln(w, "*** DEVICE INFORMATION ***")

	cat := dev.TLNodeMap().Category(nodeDeviceInformation)
	if cat == nil || !cat.Present() || !cat.Readable() {
		fmt.Fprintln(w, "Device control information not available.")
		return false
	}

	for _, n := range cat.Features() {
		fmt.Fprintf(w, "%s : ", n.Name())
		vn, ok := n.(ValueNode)
		if !ok || !vn.Readable() {
			fmt.Fprintln(w, "Node not readable")
			continue
		}
		v, err := vn.ValueString()
		if err != nil {
			fmt.Fprintln(w, "Node not readable")
			continue
		}
		fmt.Fprintln(w, v)
	}
	return true
}
