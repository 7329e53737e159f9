package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	visioncapture "github.com/e7canasta/orion-care-sensor/modules/vision-capture"
	"github.com/e7canasta/orion-care-sensor/modules/vision-capture/forward"
	"github.com/e7canasta/orion-care-sensor/modules/vision-capture/internal/gstcam"
	"github.com/e7canasta/orion-care-sensor/modules/vision-capture/internal/simcam"
	"github.com/e7canasta/orion-care-sensor/modules/vision-capture/monitor"
	"github.com/e7canasta/orion-care-sensor/modules/vision-capture/telemetry"
)

// Version information
const version = "v0.1.0"

type closer interface{ Close() }

func main() {
	source := flag.String("source", "sim", "Frame source: sim, gst")
	devices := flag.Int("devices", 1, "Number of cameras to run")
	planPath := flag.String("plan", "", "Capture plan YAML (empty = built-in defaults)")
	trigger := flag.String("trigger", "", "Override trigger: software, hardware")
	exposureUS := flag.Float64("exposure-us", 0, "Override manual exposure in microseconds (0 = plan value)")
	listen := flag.String("listen", "", "Monitor listen address, e.g. :8089 (empty = disabled)")
	broker := flag.String("broker", "", "MQTT broker host:port for telemetry (empty = disabled)")
	push := flag.String("push", "", "ZeroMQ PUSH endpoint for frames, e.g. tcp://*:5555 (empty = disabled)")
	instanceID := flag.String("instance", "vision-capture-0", "Instance identifier for telemetry topics")
	statsInterval := flag.Int("stats-interval", 10, "Seconds between stats reports")
	warmupSecs := flag.Int("warmup", 0, "Warmup seconds to measure stream stability before capture (0 = skip)")
	deviceInfo := flag.Bool("device-info", false, "Print device information tables at startup")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("vision-capture %s\n", version)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Load the capture plan
	plan := visioncapture.DefaultPlan()
	if *planPath != "" {
		var err error
		plan, err = visioncapture.PlanFromFile(*planPath)
		if err != nil {
			log.Fatalf("Failed to load capture plan: %v", err)
		}
	}
	switch *trigger {
	case "":
	case "software":
		plan.Trigger = visioncapture.TriggerSoftware
	case "hardware":
		plan.Trigger = visioncapture.TriggerHardware
	default:
		log.Fatalf("Invalid trigger: %s (must be software or hardware)", *trigger)
	}
	if *exposureUS > 0 {
		plan.ExposureManual = true
		plan.ExposureMicros = *exposureUS
	}

	// Print banner
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║         Vision Capture - Orion 2.0 Module                ║\n")
	fmt.Printf("║                      Version %s                        ║\n", version)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Source:        %s\n", *source)
	fmt.Printf("  Devices:       %d\n", *devices)
	fmt.Printf("  Frame Rate:    %.2f fps\n", plan.FrameRate)
	fmt.Printf("  Buffer Depth:  %d (%s)\n", plan.BufferDepth, plan.Overflow)
	fmt.Printf("  Trigger:       %s\n", plan.Trigger)
	if plan.ExposureManual {
		fmt.Printf("  Exposure:      manual, %.0f us\n", plan.ExposureMicros)
	} else {
		fmt.Printf("  Exposure:      automatic\n")
	}
	fmt.Printf("\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Build devices and camera streams
	var streams []*visioncapture.CameraStream
	var closers []closer
	for i := 0; i < *devices; i++ {
		dev, c, err := newDevice(*source, i)
		if err != nil {
			log.Fatalf("Failed to create device %d: %v", i, err)
		}
		closers = append(closers, c)

		cfg := visioncapture.DeviceConfigAt(plan, i)
		stream, err := visioncapture.New(dev, cfg)
		if err != nil {
			log.Fatalf("Failed to create camera stream %d: %v", i, err)
		}
		streams = append(streams, stream)
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	// Configure every camera before any acquisition starts
	for i, stream := range streams {
		report, err := stream.Configure()
		if err != nil {
			log.Fatalf("Failed to configure camera %d: %v", i, err)
		}
		if degraded := report.DegradedSteps(); len(degraded) > 0 {
			slog.Warn("camera configured with degraded steps",
				"camera", i,
				"serial", report.Serial,
				"degraded", degraded,
			)
		} else {
			slog.Info("camera configured", "camera", i, "serial", report.Serial)
		}
	}

	if *deviceInfo {
		for i, stream := range streams {
			fmt.Printf("\nCamera %d:\n", i)
			stream.PrintDeviceInfo(os.Stdout)
		}
		fmt.Printf("\n")
	}

	// Warmup: measure delivery stability before production use
	if *warmupSecs > 0 {
		for i, stream := range streams {
			stats, err := stream.Warmup(ctx, time.Duration(*warmupSecs)*time.Second)
			if err != nil {
				log.Fatalf("Warmup failed for camera %d: %v", i, err)
			}
			fmt.Printf("\n")
			fmt.Printf("╭─────────────────────────────────────────────────────────╮\n")
			fmt.Printf("│ Camera %d Warmup Complete\n", i)
			fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
			fmt.Printf("│ Frames Received:    %6d frames\n", stats.FramesReceived)
			fmt.Printf("│ FPS Mean:           %6.2f fps\n", stats.FPSMean)
			fmt.Printf("│ FPS StdDev:         %6.2f fps\n", stats.FPSStdDev)
			fmt.Printf("│ Jitter Mean:        %6.3f s\n", stats.JitterMean)
			fmt.Printf("│ Stable:             %6v\n", stats.IsStable)
			fmt.Printf("╰─────────────────────────────────────────────────────────╯\n")
			if !stats.IsStable {
				fmt.Printf("\n⚠️  WARNING: camera %d delivery is unstable\n", i)
			}
		}
		fmt.Printf("\n")
	}

	// Assemble the sink chain
	var sinks visioncapture.MultiSink

	if *push != "" {
		pusher, err := forward.New(*push)
		if err != nil {
			log.Fatalf("Failed to start frame forwarder: %v", err)
		}
		defer pusher.Close()
		sinks = append(sinks, pusher)
	}

	statusFn := func() map[string]any {
		cameras := make([]map[string]any, 0, len(streams))
		for i, stream := range streams {
			stats := stream.Stats()
			cameras = append(cameras, map[string]any{
				"camera":            i,
				"state":             stats.State.String(),
				"frame_count":       stats.FrameCount,
				"frames_delivered":  stats.FramesDelivered,
				"incomplete_frames": stats.IncompleteFrames,
				"trigger_errors":    stats.TriggerErrors,
				"wait_timeouts":     stats.WaitTimeouts,
				"degraded_steps":    stats.DegradedSteps,
			})
		}
		return map[string]any{"cameras": cameras}
	}

	if *listen != "" {
		mon := monitor.New(*listen, statusFn)
		sinks = append(sinks, mon)
		go func() {
			if err := mon.Run(ctx); err != nil && err != http.ErrServerClosed {
				slog.Error("monitor server failed", "error", err)
			}
		}()
	}

	var emitter *telemetry.Emitter
	if *broker != "" {
		emitter = telemetry.New(telemetry.Config{
			Broker:     *broker,
			InstanceID: *instanceID,
		})
		if err := emitter.Connect(ctx); err != nil {
			log.Fatalf("Failed to connect telemetry: %v", err)
		}
		defer emitter.Disconnect()

		for i, stream := range streams {
			report := stream.Report()
			if err := emitter.PublishDeviceInfo(i, report.Serial, report.DegradedSteps()); err != nil {
				slog.Warn("failed to publish device info", "camera", i, "error", err)
			}
		}
	}

	// Console sink: compact per-frame line, debug level only
	sinks = append(sinks, visioncapture.FrameSinkFunc(func(img visioncapture.DenseImage) {
		slog.Debug("frame delivered",
			"camera", img.CameraIndex,
			"seq", img.Seq,
			"rows", img.Rows,
			"cols", img.Cols,
			"trace_id", img.TraceID,
		)
	}))

	// Start acquisition on every camera
	for i, stream := range streams {
		if err := stream.Start(ctx, sinks); err != nil {
			log.Fatalf("Failed to start camera %d: %v", i, err)
		}
	}

	slog.Info("acquisition started", "cameras", len(streams))
	fmt.Printf("Press Ctrl+C to stop gracefully\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n\n")

	// Stats reporter
	startTime := time.Now()
	statsTicker := time.NewTicker(time.Duration(*statsInterval) * time.Second)
	defer statsTicker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-statsTicker.C:
				uptime := time.Since(startTime)
				fmt.Printf("\n")
				fmt.Printf("╭─────────────────────────────────────────────────────────╮\n")
				fmt.Printf("│ Capture Statistics (Uptime: %s)\n", uptime.Round(time.Second))
				fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
				for i, stream := range streams {
					stats := stream.Stats()
					fmt.Printf("│ Camera %d [%s]\n", i, stats.State)
					fmt.Printf("│   Frames Pulled:    %6d\n", stats.FrameCount)
					fmt.Printf("│   Delivered:        %6d\n", stats.FramesDelivered)
					if stats.IncompleteFrames > 0 {
						fmt.Printf("│   Incomplete:       %6d\n", stats.IncompleteFrames)
					}
					if stats.TriggerErrors > 0 {
						fmt.Printf("│   Trigger Errors:   %6d\n", stats.TriggerErrors)
					}
					fmt.Printf("│   Wait Timeouts:    %6d\n", stats.WaitTimeouts)

					if emitter != nil {
						if err := emitter.PublishStats(i, stats); err != nil {
							slog.Debug("telemetry publish failed", "camera", i, "error", err)
						}
					}
				}
				fmt.Printf("╰─────────────────────────────────────────────────────────╯\n")
				fmt.Printf("\n")
			}
		}
	}()

	<-sigChan
	fmt.Printf("\n\nReceived interrupt signal, shutting down...\n")
	cancel()

	for i, stream := range streams {
		if err := stream.Stop(); err != nil {
			slog.Error("error stopping camera", "camera", i, "error", err)
		}
	}

	// Final stats
	uptime := time.Since(startTime)
	fmt.Printf("\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("                     Final Statistics                      \n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("  Total Uptime:       %s\n", uptime.Round(time.Second))
	for i, stream := range streams {
		stats := stream.Stats()
		fmt.Printf("  Camera %d: pulled=%d delivered=%d incomplete=%d timeouts=%d\n",
			i, stats.FrameCount, stats.FramesDelivered, stats.IncompleteFrames, stats.WaitTimeouts)
	}
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("\n")

	slog.Info("vision capture stopped")
}

// newDevice builds one frame source. The sim source needs no hardware; the
// gst source needs a working GStreamer installation.
func newDevice(source string, index int) (visioncapture.Device, closer, error) {
	switch source {
	case "sim":
		cam := simcam.New(simcam.Options{
			Serial: fmt.Sprintf("SIM%07d", index+1),
		})
		return cam, cam, nil
	case "gst":
		cam, err := gstcam.New(gstcam.Options{
			Serial:  fmt.Sprintf("GST%07d", index+1),
			Pattern: index,
		})
		if err != nil {
			return nil, nil, err
		}
		return cam, cam, nil
	default:
		return nil, nil, fmt.Errorf("unknown source %q (must be sim or gst)", source)
	}
}
