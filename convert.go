package visioncapture

// ToDenseImage maps a vendor-native strided frame into a dense image view.
//
// Pure arithmetic, zero copy: the returned image aliases the frame's backing
// memory and must not outlive its release. The device pads the logical image
// out to Rows=Height+YPadding by Cols=Width+XPadding, and Stride is taken
// verbatim from the frame — never recomputed, since padding can make it
// unequal to Cols*Channels.
//
// Only Complete frames convert; the acquisition loop filters incomplete
// frames before calling, so the status check here is the last line, not a
// validation layer.
func ToDenseImage(f *RawFrame) (DenseImage, error) {
	if f.Status != FrameComplete {
		return DenseImage{}, ErrIncompleteFrame
	}
	return DenseImage{
		Rows:     f.Height + f.YPadding,
		Cols:     f.Width + f.XPadding,
		Channels: f.Channels,
		Stride:   f.Stride,
		Data:     f.Data,
	}, nil
}
