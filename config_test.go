package visioncapture

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPlan(t *testing.T) {
	plan := DefaultPlan()

	if plan.FrameRate != 30 {
		t.Errorf("FrameRate = %v, want 30", plan.FrameRate)
	}
	if plan.BufferDepth != 3 {
		t.Errorf("BufferDepth = %d, want 3", plan.BufferDepth)
	}
	if plan.Overflow != OverflowKeepNewest {
		t.Errorf("Overflow = %s, want keep-newest", plan.Overflow)
	}
	if plan.Trigger != TriggerSoftware {
		t.Errorf("Trigger = %s, want software", plan.Trigger)
	}
	if len(plan.Devices) != 4 {
		t.Fatalf("Devices = %d entries, want 4", len(plan.Devices))
	}
	if got := plan.Devices[2]; got != (DeviceGeometry{Width: 736, Height: 1280, OffsetX: 750, OffsetY: 500}) {
		t.Errorf("Devices[2] = %+v", got)
	}
}

func TestPlanFromFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	doc := `
frame_rate: 15
trigger: hardware
trigger_line: Line1
overflow: queue-all
devices:
  - {width: 640, height: 480, offset_x: 0, offset_y: 0}
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	plan, err := PlanFromFile(path)
	if err != nil {
		t.Fatalf("PlanFromFile: %v", err)
	}
	if plan.FrameRate != 15 {
		t.Errorf("FrameRate = %v, want 15", plan.FrameRate)
	}
	if plan.Trigger != TriggerHardware || plan.TriggerLine != "Line1" {
		t.Errorf("trigger = %s/%s, want hardware/Line1", plan.Trigger, plan.TriggerLine)
	}
	if plan.Overflow != OverflowQueueAll {
		t.Errorf("Overflow = %s, want queue-all", plan.Overflow)
	}
	// Fields absent from the file keep their defaults.
	if plan.BufferDepth != 3 {
		t.Errorf("BufferDepth = %d, want default 3", plan.BufferDepth)
	}
	if plan.ExposureMicros != 17000 {
		t.Errorf("ExposureMicros = %v, want default 17000", plan.ExposureMicros)
	}
	if len(plan.Devices) != 1 {
		t.Errorf("Devices = %d entries, want the file's single entry", len(plan.Devices))
	}
}

func TestPlanFromFileErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := PlanFromFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}

	write := func(name, doc string) string {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	if _, err := PlanFromFile(write("trigger.yaml", "trigger: telepathy\n")); err == nil {
		t.Error("unknown trigger source accepted")
	}
	if _, err := PlanFromFile(write("overflow.yaml", "overflow: drop-all\n")); err == nil {
		t.Error("unknown overflow policy accepted")
	}
	if _, err := PlanFromFile(write("empty.yaml", "devices: []\n")); err == nil {
		t.Error("empty device table accepted")
	}
}

func TestDeviceConfigAtWrapsGeometryTable(t *testing.T) {
	plan := DefaultPlan()

	cfg := DeviceConfigAt(plan, 1)
	if cfg.Index != 1 || cfg.Width != 800 || cfg.OffsetY != 300 {
		t.Errorf("config 1 = %+v", cfg)
	}
	if cfg.FrameRate != plan.FrameRate || cfg.BufferDepth != plan.BufferDepth {
		t.Error("shared policy not carried into device config")
	}

	// A fifth device wraps back onto the first geometry entry.
	wrapped := DeviceConfigAt(plan, 4)
	if wrapped.Index != 4 {
		t.Errorf("Index = %d, want 4", wrapped.Index)
	}
	if wrapped.Width != 800 || wrapped.OffsetX != 500 || wrapped.OffsetY != 500 {
		t.Errorf("wrapped geometry = %dx%d+%d+%d, want first entry",
			wrapped.Width, wrapped.Height, wrapped.OffsetX, wrapped.OffsetY)
	}
}
