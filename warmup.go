package visioncapture

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

const (
	// fpsStabilityThreshold is the maximum allowed FPS standard deviation
	// as a fraction of mean FPS. Example: 30 FPS mean → stable if
	// stddev < 4.5 FPS.
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum allowed mean jitter as a
	// fraction of the expected inter-frame interval. Example: 30 FPS
	// (33ms interval) → stable if jitter < 6.6ms.
	jitterStabilityThreshold = 0.20
)

// WarmupStats describes frame-delivery stability measured over a warmup
// window.
type WarmupStats struct {
	FramesReceived int
	Duration       time.Duration
	FPSMean        float64
	FPSStdDev      float64
	FPSMin         float64
	FPSMax         float64
	// IsStable: FPS stddev < 15% of mean AND mean jitter < 20% of the
	// expected interval.
	IsStable     bool
	JitterMean   float64
	JitterStdDev float64
	JitterMax    float64
}

// Warmup pulls and discards frames for the given duration to measure the
// real frame rate and its stability before production use. Frames are
// released immediately; nothing reaches a sink.
//
// Must run after Configure and before Start: it drives the device frame
// queue itself and cannot coexist with the acquisition loop.
func (c *CameraStream) Warmup(ctx context.Context, d time.Duration) (*WarmupStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if State(c.state.Load()) != StateConfigured {
		return nil, fmt.Errorf("%w: warmup in state %s", ErrInvalidState, c.State())
	}

	deadline := time.Now().Add(d)
	var frameTimes []time.Time

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.stopCh:
			return nil, fmt.Errorf("%w: warmup interrupted by stop", ErrInvalidState)
		default:
		}

		if c.cfg.Trigger == TriggerSoftware {
			if err := execCommand(c.dev.NodeMap(), nodeTriggerSoftware); err != nil {
				atomic.AddUint64(&c.triggerErrors, 1)
				continue
			}
		}

		f, err := c.dev.NextFrame(framePollTimeout)
		if err != nil {
			continue
		}
		if f.Status == FrameComplete {
			frameTimes = append(frameTimes, time.Now())
		}
		c.release(f)
	}

	return CalculateFPSStats(frameTimes, d), nil
}

// CalculateFPSStats calculates FPS statistics from frame timestamps.
//
// This function:
//  1. Calculates mean FPS (overall)
//  2. Calculates instantaneous FPS for each frame interval
//  3. Finds min/max instantaneous FPS
//  4. Calculates standard deviation of instantaneous FPS
//  5. Calculates jitter statistics (inter-frame interval variance)
//  6. Determines stability (stddev < 15% of mean AND jitter < 20%)
func CalculateFPSStats(frameTimes []time.Time, totalDuration time.Duration) *WarmupStats {
	n := len(frameTimes)

	if n == 0 {
		return &WarmupStats{Duration: totalDuration}
	}

	fpsMean := float64(n) / totalDuration.Seconds()

	instantaneousFPS := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		interval := frameTimes[i].Sub(frameTimes[i-1]).Seconds()
		if interval > 0 {
			instantaneousFPS = append(instantaneousFPS, 1.0/interval)
		}
	}

	if len(instantaneousFPS) == 0 {
		return &WarmupStats{
			FramesReceived: n,
			Duration:       totalDuration,
			FPSMean:        fpsMean,
		}
	}

	fpsMin := instantaneousFPS[0]
	fpsMax := instantaneousFPS[0]
	for _, fps := range instantaneousFPS {
		if fps < fpsMin {
			fpsMin = fps
		}
		if fps > fpsMax {
			fpsMax = fps
		}
	}

	var sumSquares float64
	for _, fps := range instantaneousFPS {
		diff := fps - fpsMean
		sumSquares += diff * diff
	}
	fpsStdDev := math.Sqrt(sumSquares / float64(len(instantaneousFPS)))

	// Jitter = deviation from the expected inter-frame interval.
	expectedInterval := 1.0 / fpsMean

	jitters := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		actualInterval := frameTimes[i].Sub(frameTimes[i-1]).Seconds()
		jitters = append(jitters, math.Abs(actualInterval-expectedInterval))
	}

	var jitterSum, jitterMax float64
	for _, j := range jitters {
		jitterSum += j
		if j > jitterMax {
			jitterMax = j
		}
	}
	jitterMean := jitterSum / float64(len(jitters))

	var jitterSumSquares float64
	for _, j := range jitters {
		diff := j - jitterMean
		jitterSumSquares += diff * diff
	}
	jitterStdDev := math.Sqrt(jitterSumSquares / float64(len(jitters)))

	fpsStable := fpsStdDev < (fpsMean * fpsStabilityThreshold)
	jitterStable := jitterMean < (expectedInterval * jitterStabilityThreshold)

	return &WarmupStats{
		FramesReceived: n,
		Duration:       totalDuration,
		FPSMean:        fpsMean,
		FPSStdDev:      fpsStdDev,
		FPSMin:         fpsMin,
		FPSMax:         fpsMax,
		IsStable:       fpsStable && jitterStable,
		JitterMean:     jitterMean,
		JitterStdDev:   jitterStdDev,
		JitterMax:      jitterMax,
	}
}
