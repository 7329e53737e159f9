package visioncapture

import (
	"errors"
	"fmt"
	"log/slog"
)

// StepStatus is the typed outcome of one configuration step.
type StepStatus int

const (
	// StepOK: the step fully succeeded.
	StepOK StepStatus = iota
	// StepDegraded: the step failed or only partially succeeded, the
	// sequence continued. Nothing degraded is dropped from diagnostics.
	StepDegraded
	// StepFatal: the step is structurally required and failed; the sequence
	// halted.
	StepFatal
)

func (s StepStatus) String() string {
	switch s {
	case StepOK:
		return "ok"
	case StepDegraded:
		return "degraded"
	case StepFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// StepResult records one step's outcome for the configuration report.
type StepResult struct {
	Name   string
	Status StepStatus
	// Detail is a human-readable note (applied value, clamp, skip reason).
	Detail string
	Err    error
}

// ConfigReport aggregates the outcome of a configuration run. No step's
// failure is silently dropped: every attempted step appears here.
type ConfigReport struct {
	Serial string
	Steps  []StepResult
}

// OK reports whether every step fully succeeded.
func (r *ConfigReport) OK() bool {
	for _, s := range r.Steps {
		if s.Status != StepOK {
			return false
		}
	}
	return true
}

// DegradedSteps lists the names of steps that did not fully succeed.
func (r *ConfigReport) DegradedSteps() []string {
	var names []string
	for _, s := range r.Steps {
		if s.Status != StepOK {
			names = append(names, s.Name)
		}
	}
	return names
}

// ConfigError is returned when a structurally required step fails and
// configuration aborts.
type ConfigError struct {
	Step string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("vision-capture: configuration failed at step %q: %v", e.Step, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// stepOutcome is what a step's run function produces. The step itself
// decides fatality: only acquisition mode, the buffer chain and trigger-mode
// writability are structural preconditions.
type stepOutcome struct {
	status StepStatus
	detail string
	err    error
}

func stepOK(detail string) stepOutcome {
	return stepOutcome{status: StepOK, detail: detail}
}

func stepDegraded(detail string, err error) stepOutcome {
	return stepOutcome{status: StepDegraded, detail: detail, err: err}
}

func stepFatal(err error) stepOutcome {
	return stepOutcome{status: StepFatal, err: err}
}

// degradeOr folds an accessor error into a degraded outcome, or OK when nil.
func degradeOr(err error, detail string) stepOutcome {
	if err != nil {
		return stepDegraded("", err)
	}
	return stepOK(detail)
}

type configStep struct {
	name string
	run  func() stepOutcome
}

// configure applies the full device configuration sequence, in dependency
// order: identity → acquisition mode → pixel format → buffer policy →
// trigger-off/frame rate → geometry (width before height before offsets) →
// trigger policy → exposure. It is a small interpreter over the ordered step
// list that halts only on a fatal outcome; everything else degrades, is
// logged, and the sequence continues.
//
// Run exactly once per device, strictly before that device's acquisition
// loop starts.
func configure(dev Device, cfg DeviceConfig) (*ConfigReport, error) {
	report := &ConfigReport{}

	steps := []configStep{
		{"serial-number", func() stepOutcome { return stepSerial(dev, report) }},
		{"acquisition-mode", func() stepOutcome { return stepAcquisitionMode(dev) }},
		{"pixel-format", func() stepOutcome { return stepPixelFormat(dev) }},
		{"buffer-policy", func() stepOutcome { return stepBufferPolicy(dev, cfg) }},
		{"trigger-disable", func() stepOutcome {
			return degradeOr(setEnum(dev.NodeMap(), nodeTriggerMode, entryTriggerOff), "trigger mode off")
		}},
		{"frame-rate-enable", func() stepOutcome {
			return degradeOr(setBool(dev.NodeMap(), nodeFrameRateEnable, true), "frame rate control enabled")
		}},
		{"frame-rate", func() stepOutcome { return stepFrameRate(dev, cfg) }},
		{"width", func() stepOutcome {
			return degradeOr(setRangedInt(dev.NodeMap(), nodeWidth, cfg.Width),
				fmt.Sprintf("width set to %d", cfg.Width))
		}},
		{"height", func() stepOutcome {
			return degradeOr(setRangedInt(dev.NodeMap(), nodeHeight, cfg.Height),
				fmt.Sprintf("height set to %d", cfg.Height))
		}},
		// Offsets come after width/height: their valid range is sensor size
		// minus frame size, so the live node max is only meaningful once
		// the frame size is committed. Out-of-range offsets are rejected,
		// never clamped.
		{"offset-x", func() stepOutcome {
			return degradeOr(setInt(dev.NodeMap(), nodeOffsetX, cfg.OffsetX),
				fmt.Sprintf("offset X set to %d", cfg.OffsetX))
		}},
		{"offset-y", func() stepOutcome {
			return degradeOr(setInt(dev.NodeMap(), nodeOffsetY, cfg.OffsetY),
				fmt.Sprintf("offset Y set to %d", cfg.OffsetY))
		}},
	}
	if cfg.DisableHeartbeat {
		steps = append(steps, configStep{"heartbeat-disable", func() stepOutcome {
			return stepHeartbeat(dev)
		}})
	}
	steps = append(steps,
		configStep{"trigger-policy", func() stepOutcome { return stepTriggerPolicy(dev, cfg) }},
		configStep{"exposure", func() stepOutcome { return stepExposure(dev, cfg) }},
	)

	for _, st := range steps {
		out := st.run()
		report.Steps = append(report.Steps, StepResult{
			Name:   st.name,
			Status: out.status,
			Detail: out.detail,
			Err:    out.err,
		})

		switch out.status {
		case StepOK:
			slog.Info("configure: step ok", "camera", cfg.Index, "step", st.name, "detail", out.detail)
		case StepDegraded:
			slog.Warn("configure: step degraded", "camera", cfg.Index, "step", st.name,
				"detail", out.detail, "error", out.err)
		case StepFatal:
			slog.Error("configure: aborting", "camera", cfg.Index, "step", st.name, "error", out.err)
			return report, &ConfigError{Step: st.name, Err: out.err}
		}
	}

	return report, nil
}

// stepSerial reads the device serial number from the transport-layer tree.
// Identity only; cameras without a readable serial still configure.
func stepSerial(dev Device, report *ConfigReport) stepOutcome {
	serial, err := readString(dev.TLNodeMap(), nodeDeviceSerialNumber)
	if err != nil {
		return stepDegraded("serial number unavailable", err)
	}
	report.Serial = serial
	return stepOK("device serial number " + serial)
}

// stepAcquisitionMode sets continuous acquisition. Without it no later step
// is meaningful, so failure is fatal.
func stepAcquisitionMode(dev Device) stepOutcome {
	if err := setEnum(dev.NodeMap(), nodeAcquisitionMode, entryContinuous); err != nil {
		return stepFatal(err)
	}
	return stepOK("acquisition mode set to continuous")
}

// stepPixelFormat sets the fixed 3-channel 8-bit format when writable;
// otherwise the device keeps its native format and the step degrades.
func stepPixelFormat(dev Device) stepOutcome {
	if err := setEnum(dev.NodeMap(), nodePixelFormat, entryRGB8); err != nil {
		return stepDegraded("pixel format left at device default", err)
	}
	detail := "pixel format set to " + entryRGB8
	if cur, err := currentEnum(dev.NodeMap(), nodePixelFormat); err == nil {
		detail = "pixel format set to " + cur.Name
	}
	return stepOK(detail)
}

// stepBufferPolicy delegates to the buffer policy manager. The manual
// buffer-count chain is a structural precondition; a device-side clamp of
// the depth is degraded-but-successful, never silent.
func stepBufferPolicy(dev Device, cfg DeviceConfig) stepOutcome {
	applied, clamped, err := applyBufferPolicy(dev, cfg.BufferDepth, cfg.Overflow)
	if err != nil {
		return stepFatal(err)
	}
	detail := fmt.Sprintf("buffer depth %d, handling mode %s", applied, cfg.Overflow.handlingModeEntry())
	if clamped {
		return stepDegraded(
			fmt.Sprintf("buffer depth clamped to %d (requested %d)", applied, cfg.BufferDepth),
			nil)
	}
	return stepOK(detail)
}

func stepFrameRate(dev Device, cfg DeviceConfig) stepOutcome {
	nm := dev.NodeMap()
	if n := nm.Float(nodeFrameRate); n != nil && n.Present() && n.Readable() {
		if cur, err := n.Value(); err == nil {
			slog.Debug("configure: current frame rate", "fps", cur)
		}
	}
	if err := setFloat(nm, nodeFrameRate, cfg.FrameRate); err != nil {
		return stepDegraded("", err)
	}
	return stepOK(fmt.Sprintf("frame rate set to %.1f", cfg.FrameRate))
}

// stepHeartbeat disables the GigE Vision heartbeat on GEV devices. Debug
// aid: a paused process stops answering heartbeats and the link drops.
// No-op on non-GEV transports.
func stepHeartbeat(dev Device) stepOutcome {
	devType, err := currentEnum(dev.TLNodeMap(), nodeDeviceType)
	if err != nil {
		return stepDegraded("device type unreadable, heartbeat untouched", err)
	}
	if devType.Name != entryDeviceTypeGigE {
		return stepOK("not a GigE device, heartbeat untouched")
	}
	if err := setBool(dev.NodeMap(), nodeHeartbeatDisable, true); err != nil {
		return stepDegraded("", err)
	}
	slog.Warn("configure: GigE heartbeat disabled; power cycle the camera after debugging")
	return stepOK("GigE heartbeat disabled")
}

// stepTriggerPolicy applies the mandatory three-phase trigger sequence:
// mode Off, then source selection, then mode On. Source selection is only
// legal while the mode is Off, so the ordering is load-bearing. An
// unwritable trigger mode is fatal; a failed source selection degrades but
// the re-enable is still attempted.
func stepTriggerPolicy(dev Device, cfg DeviceConfig) stepOutcome {
	nm := dev.NodeMap()

	mode := nm.Enum(nodeTriggerMode)
	if mode == nil || !mode.Present() {
		return stepFatal(nodeErr(nodeTriggerMode, "configure trigger", ErrNodeUnavailable))
	}
	if !mode.Readable() || !mode.Writable() {
		return stepFatal(nodeErr(nodeTriggerMode, "configure trigger", ErrNodeNotWritable))
	}

	var errs []error

	if err := setEnum(nm, nodeTriggerMode, entryTriggerOff); err != nil {
		return stepFatal(err)
	}

	source := entryTriggerSoftware
	if cfg.Trigger == TriggerHardware {
		source = cfg.TriggerLine
		if source == "" {
			source = "Line0"
		}
	}
	if err := setEnum(nm, nodeTriggerSource, source); err != nil {
		errs = append(errs, err)
	}

	if err := setEnum(nm, nodeTriggerMode, entryTriggerOn); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return stepDegraded("trigger sequence partially applied", errors.Join(errs...))
	}
	return stepOK(fmt.Sprintf("trigger off → %s → on", source))
}

// stepExposure applies the exposure policy. Manual exposure requires
// ExposureAuto off, then clamps the requested time into the live device
// range. Out-of-range values snap to the minimum on either side: fail safe
// to the shortest exposure rather than the longest.
func stepExposure(dev Device, cfg DeviceConfig) stepOutcome {
	nm := dev.NodeMap()

	if !cfg.ExposureManual {
		if err := setEnum(nm, nodeExposureAuto, entryContinuous); err != nil {
			return stepDegraded("", err)
		}
		return stepOK("automatic exposure enabled")
	}

	if err := setEnum(nm, nodeExposureAuto, entryExposureAutoOff); err != nil {
		return stepDegraded("automatic exposure could not be disabled", err)
	}

	min, max, err := floatRange(nm, nodeExposureTime)
	if err != nil {
		return stepDegraded("exposure range unreadable", err)
	}
	slog.Debug("configure: exposure range", "min_us", min, "max_us", max)

	v := cfg.ExposureMicros
	clamped := v < min || v > max
	if clamped {
		v = min
	}
	if err := setFloat(nm, nodeExposureTime, v); err != nil {
		return stepDegraded("", err)
	}
	if clamped {
		return stepOK(fmt.Sprintf("exposure clamped to minimum %.0fus (requested %.0fus)", v, cfg.ExposureMicros))
	}
	return stepOK(fmt.Sprintf("exposure set to %.0fus", v))
}
