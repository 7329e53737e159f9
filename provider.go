package visioncapture

// FrameSink receives each completed, Complete-status frame from one camera's
// acquisition loop.
//
// Implementations must guarantee:
//   - HandleFrame returns promptly: it runs on the acquisition goroutine and
//     the device frame is not released until it returns. A slow sink starves
//     the device buffer ring.
//   - Anything needed beyond the call copies img.Data first; the backing
//     memory is invalidated by the release that follows immediately.
//   - HandleFrame is never called concurrently by one camera, but sinks
//     shared across cameras must be safe for concurrent use.
type FrameSink interface {
	HandleFrame(img DenseImage)
}

// FrameSinkFunc adapts a function to the FrameSink interface.
type FrameSinkFunc func(img DenseImage)

func (f FrameSinkFunc) HandleFrame(img DenseImage) { f(img) }

// MultiSink fans one frame out to several sinks in order, on the calling
// goroutine. The combined sink is only as fast as the sum of its parts, so
// anything slow belongs behind its own drop boundary (see forward and
// monitor, which never block).
type MultiSink []FrameSink

func (m MultiSink) HandleFrame(img DenseImage) {
	for _, s := range m {
		s.HandleFrame(img)
	}
}
