// Package visioncapture configures GenICam-style machine-vision cameras and
// drives their continuous acquisition loops.
//
// This module is part of Orion 2.0 and implements Bounded Context "Device
// Acquisition". It negotiates feature-node availability before every device
// mutation, sequences interdependent camera settings, manages the device
// buffer ring policy, and converts vendor-native padded frames into dense
// zero-copy images for downstream processing.
//
// # Quick Start
//
// Configure a device and start pulling frames:
//
//	cfg := visioncapture.DeviceConfigAt(visioncapture.DefaultPlan(), 0)
//
//	cam, err := visioncapture.New(dev, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	report, err := cam.Configure()
//	if err != nil {
//	    log.Fatalf("configuration failed: %v", err)
//	}
//	if !report.OK() {
//	    log.Printf("configured with degraded steps: %v", report.DegradedSteps())
//	}
//
//	ctx := context.Background()
//	err = cam.Start(ctx, visioncapture.FrameSinkFunc(func(img visioncapture.DenseImage) {
//	    // img.Data aliases the device buffer: copy anything you need
//	    // before this function returns.
//	    process(img)
//	}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cam.Stop()
//
// # Design Philosophy
//
// This module follows Orion's core principle: "Complejidad por diseño, no
// por accidente".
//
//   - Degrade, don't die: a feature node missing on one firmware revision
//     downgrades the step and continues; only structurally required steps
//     (continuous mode, the buffer-count chain, trigger-mode writability)
//     abort configuration.
//   - Re-check everything: node presence and access mode are dynamic and are
//     queried immediately before every read and write, never cached.
//   - Drop frames, never queue: the default buffer handling policy keeps the
//     newest frame and discards the oldest, favouring latency over
//     completeness (live monitoring, not lossless capture).
//   - Release immediately: a device frame is released as soon as the sink
//     returns; holding it longer exhausts the device buffer ring.
//
// # Phases
//
// Each camera moves through a strict phase sequence:
//
//	Unconfigured → Configured → Acquiring → Stopped
//
// Configuration happens exactly once, strictly before acquisition, and is
// never repeated concurrently with it. Across cameras nothing is shared:
// one acquisition goroutine per device, each owning its device handle.
//
// # Device Implementations
//
// The module depends only on the Device contract, not on a vendor binding.
// Two implementations ship with it:
//
//   - internal/simcam: a pure-Go simulated camera with a full feature-node
//     tree, used by the tests and the CLI demo.
//   - internal/gstcam: a GStreamer test-pattern bench device (requires the
//     gstreamer1.0 runtime), useful for end-to-end soak runs.
//
// # Outer Surfaces
//
//   - monitor: HTTP status plus websocket push of CBOR frame envelopes
//   - telemetry: MQTT stats and device-info publisher
//   - forward: ZMQ PUSH forwarder of completed frames
//   - cmd/vision-capture: operational CLI wiring all of the above
//
// # Thread Safety
//
// All public CameraStream methods are safe for concurrent use. Stats() uses
// atomic operations for lock-free reads. Stop() is idempotent.
//
// # Project Context
//
// Part of Orion, a real-time AI inference system for geriatric patient
// monitoring: "Orión Ve, No Interpreta" (Orion Sees, Doesn't Interpret).
//
// Repository: https://github.com/e7canasta/orion-care-sensor
// License: Proprietary (Visiona Health)
package visioncapture
