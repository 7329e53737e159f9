package visioncapture

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DeviceGeometry is one per-device entry of the capture plan: resolution
// plus sensor offset, indexed by device position.
type DeviceGeometry struct {
	Width   int64 `yaml:"width"`
	Height  int64 `yaml:"height"`
	OffsetX int64 `yaml:"offset_x"`
	OffsetY int64 `yaml:"offset_y"`
}

// CapturePlan is the startup-loaded configuration: an ordered geometry table
// indexed by device position, and process-wide policy shared by all devices
// (frame rate, buffer depth, trigger, exposure).
type CapturePlan struct {
	FrameRate   float64 `yaml:"frame_rate"`
	BufferDepth int64   `yaml:"buffer_depth"`

	Overflow OverflowPolicy `yaml:"overflow"`

	Trigger     TriggerSource `yaml:"trigger"`
	TriggerLine string        `yaml:"trigger_line"`

	ExposureManual bool    `yaml:"exposure_manual"`
	ExposureMicros float64 `yaml:"exposure_us"`

	Devices []DeviceGeometry `yaml:"devices"`
}

// DefaultPlan returns the built-in four-device plan: 30 fps, ring depth 3,
// keep-newest overflow, software trigger, automatic exposure with a 17000us
// manual value ready to enable.
func DefaultPlan() CapturePlan {
	return CapturePlan{
		FrameRate:      30.0,
		BufferDepth:    3,
		Overflow:       OverflowKeepNewest,
		Trigger:        TriggerSoftware,
		ExposureManual: false,
		ExposureMicros: 17000,
		Devices: []DeviceGeometry{
			{Width: 800, Height: 1280, OffsetX: 500, OffsetY: 500},
			{Width: 800, Height: 1280, OffsetX: 500, OffsetY: 300},
			{Width: 736, Height: 1280, OffsetX: 750, OffsetY: 500},
			{Width: 736, Height: 1280, OffsetX: 800, OffsetY: 300},
		},
	}
}

// PlanFromFile loads a capture plan from a YAML file. Fields missing from
// the file keep their DefaultPlan values, so a plan file can override just
// the geometry table or just the trigger policy.
func PlanFromFile(path string) (CapturePlan, error) {
	plan := DefaultPlan()

	data, err := os.ReadFile(path)
	if err != nil {
		return plan, fmt.Errorf("vision-capture: reading plan: %w", err)
	}
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return plan, fmt.Errorf("vision-capture: parsing plan %s: %w", path, err)
	}
	if len(plan.Devices) == 0 {
		return plan, fmt.Errorf("vision-capture: plan %s has no devices", path)
	}
	return plan, nil
}

// DeviceConfigAt flattens the plan into the full configuration for the
// device at the given array position. The geometry table wraps when more
// devices exist than entries.
func DeviceConfigAt(plan CapturePlan, index int) DeviceConfig {
	geo := plan.Devices[index%len(plan.Devices)]
	return DeviceConfig{
		Index:          index,
		Width:          geo.Width,
		Height:         geo.Height,
		OffsetX:        geo.OffsetX,
		OffsetY:        geo.OffsetY,
		BufferDepth:    plan.BufferDepth,
		Overflow:       plan.Overflow,
		Trigger:        plan.Trigger,
		TriggerLine:    plan.TriggerLine,
		FrameRate:      plan.FrameRate,
		ExposureManual: plan.ExposureManual,
		ExposureMicros: plan.ExposureMicros,
	}
}

// UnmarshalYAML accepts "software" or "hardware".
func (t *TriggerSource) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch s {
	case "software":
		*t = TriggerSoftware
	case "hardware":
		*t = TriggerHardware
	default:
		return fmt.Errorf("vision-capture: unknown trigger source %q", s)
	}
	return nil
}

// UnmarshalYAML accepts "keep-newest" or "queue-all".
func (p *OverflowPolicy) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch s {
	case "keep-newest":
		*p = OverflowKeepNewest
	case "queue-all":
		*p = OverflowQueueAll
	default:
		return fmt.Errorf("vision-capture: unknown overflow policy %q", s)
	}
	return nil
}
