package visioncapture_test

import (
	"errors"
	"slices"
	"testing"

	visioncapture "github.com/e7canasta/orion-care-sensor/modules/vision-capture"
	"github.com/e7canasta/orion-care-sensor/modules/vision-capture/internal/simcam"
)

func testConfig() visioncapture.DeviceConfig {
	// Third entry of the default geometry table: the narrow right-hand view.
	return visioncapture.DeviceConfig{
		Index:          2,
		Width:          736,
		Height:         1280,
		OffsetX:        750,
		OffsetY:        500,
		BufferDepth:    3,
		Overflow:       visioncapture.OverflowKeepNewest,
		Trigger:        visioncapture.TriggerSoftware,
		FrameRate:      30,
		ExposureManual: true,
		ExposureMicros: 17000,
	}
}

func mustConfigure(t *testing.T, cam *simcam.Camera, cfg visioncapture.DeviceConfig) (*visioncapture.CameraStream, *visioncapture.ConfigReport) {
	t.Helper()
	stream, err := visioncapture.New(cam, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	report, err := stream.Configure()
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return stream, report
}

func enumCurrent(t *testing.T, nm visioncapture.NodeMap, name string) string {
	t.Helper()
	n := nm.Enum(name)
	if n == nil {
		t.Fatalf("enum %s missing", name)
	}
	cur, err := n.Current()
	if err != nil {
		t.Fatalf("enum %s: %v", name, err)
	}
	return cur.Name
}

func intValue(t *testing.T, nm visioncapture.NodeMap, name string) int64 {
	t.Helper()
	n := nm.Int(name)
	if n == nil {
		t.Fatalf("int %s missing", name)
	}
	v, err := n.Value()
	if err != nil {
		t.Fatalf("int %s: %v", name, err)
	}
	return v
}

func TestConfigureAppliesFullSequence(t *testing.T) {
	cam := simcam.New(simcam.Options{Serial: "TEST7001"})
	stream, report := mustConfigure(t, cam, testConfig())

	if !report.OK() {
		t.Fatalf("degraded steps: %v", report.DegradedSteps())
	}
	if report.Serial != "TEST7001" {
		t.Errorf("Serial = %q, want TEST7001", report.Serial)
	}
	if stream.State() != visioncapture.StateConfigured {
		t.Errorf("State = %s, want configured", stream.State())
	}

	nm := cam.NodeMap()
	if got := enumCurrent(t, nm, "AcquisitionMode"); got != "Continuous" {
		t.Errorf("AcquisitionMode = %s, want Continuous", got)
	}
	if got := enumCurrent(t, nm, "PixelFormat"); got != "RGB8" {
		t.Errorf("PixelFormat = %s, want RGB8", got)
	}
	if got := intValue(t, nm, "Width"); got != 736 {
		t.Errorf("Width = %d, want 736", got)
	}
	if got := intValue(t, nm, "Height"); got != 1280 {
		t.Errorf("Height = %d, want 1280", got)
	}
	if got := intValue(t, nm, "OffsetX"); got != 750 {
		t.Errorf("OffsetX = %d, want 750", got)
	}
	if got := intValue(t, nm, "OffsetY"); got != 500 {
		t.Errorf("OffsetY = %d, want 500", got)
	}
	if got := enumCurrent(t, nm, "TriggerMode"); got != "On" {
		t.Errorf("TriggerMode = %s, want On", got)
	}
	if got := enumCurrent(t, nm, "TriggerSource"); got != "Software" {
		t.Errorf("TriggerSource = %s, want Software", got)
	}
	if got := enumCurrent(t, nm, "ExposureAuto"); got != "Off" {
		t.Errorf("ExposureAuto = %s, want Off", got)
	}

	// 17000us sits inside the device range [20, 30000000]; written unchanged.
	exp := nm.Float("ExposureTime")
	if v, err := exp.Value(); err != nil || v != 17000 {
		t.Errorf("ExposureTime = %v, %v; want 17000", v, err)
	}

	snm := cam.StreamNodeMap()
	if got := intValue(t, snm, "StreamBufferCountManual"); got != 3 {
		t.Errorf("StreamBufferCountManual = %d, want 3", got)
	}
	if got := enumCurrent(t, snm, "StreamBufferCountMode"); got != "Manual" {
		t.Errorf("StreamBufferCountMode = %s, want Manual", got)
	}
	if got := enumCurrent(t, snm, "StreamBufferHandlingMode"); got != "NewestOnly" {
		t.Errorf("handling mode = %s, want NewestOnly for keep-newest", got)
	}
}

// Geometry writes must land width before offset-x and height before
// offset-y; the trigger sequence must go mode-off, source, mode-on.
func TestConfigureWriteOrdering(t *testing.T) {
	cam := simcam.New(simcam.Options{})
	mustConfigure(t, cam, testConfig())

	log := cam.WriteLog()
	idx := func(name string) int { return slices.Index(log, name) }

	if idx("Width") < 0 || idx("OffsetX") < 0 || idx("Width") > idx("OffsetX") {
		t.Errorf("Width must be written before OffsetX, log: %v", log)
	}
	if idx("Height") < 0 || idx("OffsetY") < 0 || idx("Height") > idx("OffsetY") {
		t.Errorf("Height must be written before OffsetY, log: %v", log)
	}

	// TriggerMode appears twice (Off, then On) with the source in between.
	first := slices.Index(log, "TriggerMode")
	src := slices.Index(log, "TriggerSource")
	last := len(log) - 1 - slices.Index(reversed(log), "TriggerMode")
	if first < 0 || src < 0 || last <= first {
		t.Fatalf("trigger sequence incomplete, log: %v", log)
	}
	if !(first < src && src < last) {
		t.Errorf("trigger order = mode@%d source@%d mode@%d, want off < source < on", first, src, last)
	}
}

func reversed(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

// Offsets are range-checked against the live node maximum, which only opens
// once width/height shrink below full sensor. A missing Width node leaves
// the offset range at zero, so the offset write is rejected, not clamped.
func TestConfigureOffsetRejectedWithoutWidth(t *testing.T) {
	cam := simcam.New(simcam.Options{MissingNodes: []string{"Width"}})
	stream, err := visioncapture.New(cam, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	report, err := stream.Configure()
	if err != nil {
		t.Fatalf("Configure should degrade, not fail: %v", err)
	}

	degraded := report.DegradedSteps()
	if !slices.Contains(degraded, "width") {
		t.Errorf("width step should be degraded, got %v", degraded)
	}
	if !slices.Contains(degraded, "offset-x") {
		t.Errorf("offset-x should be degraded when width never shrank, got %v", degraded)
	}
	// Height committed fine, so offset-y went through.
	if slices.Contains(degraded, "offset-y") {
		t.Errorf("offset-y unexpectedly degraded, got %v", degraded)
	}
	if got := intValue(t, cam.NodeMap(), "OffsetX"); got != 0 {
		t.Errorf("OffsetX = %d after rejected write, want 0", got)
	}
}

func TestConfigureExposureClampsToMinimum(t *testing.T) {
	tests := []struct {
		name      string
		requested float64
	}{
		{"below minimum", 5},
		{"above maximum", 5e9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := simcam.New(simcam.Options{ExposureMin: 20, ExposureMax: 30000000})
			cfg := testConfig()
			cfg.ExposureMicros = tt.requested
			_, report := mustConfigure(t, cam, cfg)

			// Out of range on either side snaps to the device minimum:
			// fail safe to the shortest exposure. The step still succeeds.
			if !report.OK() {
				t.Errorf("degraded steps: %v", report.DegradedSteps())
			}
			exp := cam.NodeMap().Float("ExposureTime")
			if v, err := exp.Value(); err != nil || v != 20 {
				t.Errorf("ExposureTime = %v, %v; want device minimum 20", v, err)
			}
		})
	}
}

func TestConfigureBufferDepthClampDegrades(t *testing.T) {
	cam := simcam.New(simcam.Options{MaxBuffers: 2})
	cfg := testConfig() // requests depth 3
	_, report := mustConfigure(t, cam, cfg)

	if !slices.Contains(report.DegradedSteps(), "buffer-policy") {
		t.Fatalf("clamp must surface as degraded, got %v", report.DegradedSteps())
	}
	if got := intValue(t, cam.StreamNodeMap(), "StreamBufferCountManual"); got != 2 {
		t.Errorf("applied depth = %d, want device max 2", got)
	}
}

func TestConfigureFatalOnMissingAcquisitionMode(t *testing.T) {
	cam := simcam.New(simcam.Options{MissingNodes: []string{"AcquisitionMode"}})
	stream, err := visioncapture.New(cam, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	report, err := stream.Configure()
	if err == nil {
		t.Fatal("Configure succeeded without AcquisitionMode")
	}
	var cfgErr *visioncapture.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %T, want *ConfigError", err)
	}
	if cfgErr.Step != "acquisition-mode" {
		t.Errorf("fatal step = %q, want acquisition-mode", cfgErr.Step)
	}
	if stream.State() != visioncapture.StateUnconfigured {
		t.Errorf("State = %s, want unconfigured after fatal", stream.State())
	}
	// The partial report still carries the steps that ran.
	if report == nil || len(report.Steps) == 0 {
		t.Error("partial report missing")
	}
}

// An absent pixel format leaves the device on its native format; the
// sequence continues with a degraded step rather than aborting.
func TestConfigureMissingPixelFormatDegrades(t *testing.T) {
	cam := simcam.New(simcam.Options{MissingNodes: []string{"PixelFormat"}})
	stream, err := visioncapture.New(cam, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	report, err := stream.Configure()
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if !slices.Contains(report.DegradedSteps(), "pixel-format") {
		t.Errorf("pixel-format should degrade, got %v", report.DegradedSteps())
	}
	if stream.State() != visioncapture.StateConfigured {
		t.Errorf("State = %s, want configured", stream.State())
	}
}

func TestConfigureFatalOnBrokenBufferChain(t *testing.T) {
	cam := simcam.New(simcam.Options{MissingNodes: []string{"StreamBufferCountManual"}})
	stream, err := visioncapture.New(cam, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = stream.Configure()
	var cfgErr *visioncapture.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
	if cfgErr.Step != "buffer-policy" {
		t.Errorf("fatal step = %q, want buffer-policy", cfgErr.Step)
	}
}

func TestConfigureFatalOnReadOnlyTriggerMode(t *testing.T) {
	cam := simcam.New(simcam.Options{ReadOnlyNodes: []string{"TriggerMode"}})
	stream, err := visioncapture.New(cam, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = stream.Configure()
	var cfgErr *visioncapture.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
	if cfgErr.Step != "trigger-policy" {
		t.Errorf("fatal step = %q, want trigger-policy", cfgErr.Step)
	}
}

func TestConfigureQueueAllSelectsOldestFirst(t *testing.T) {
	cam := simcam.New(simcam.Options{})
	cfg := testConfig()
	cfg.Overflow = visioncapture.OverflowQueueAll
	mustConfigure(t, cam, cfg)

	if got := enumCurrent(t, cam.StreamNodeMap(), "StreamBufferHandlingMode"); got != "OldestFirst" {
		t.Errorf("handling mode = %s, want OldestFirst for queue-all", got)
	}
}

func TestConfigureHardwareTriggerLine(t *testing.T) {
	cam := simcam.New(simcam.Options{})
	cfg := testConfig()
	cfg.Trigger = visioncapture.TriggerHardware
	cfg.TriggerLine = "Line2"
	_, report := mustConfigure(t, cam, cfg)

	if !report.OK() {
		t.Fatalf("degraded steps: %v", report.DegradedSteps())
	}
	if got := enumCurrent(t, cam.NodeMap(), "TriggerSource"); got != "Line2" {
		t.Errorf("TriggerSource = %s, want Line2", got)
	}
}

func TestConfigureHeartbeatDisableOnGEV(t *testing.T) {
	cam := simcam.New(simcam.Options{DeviceType: "GEV"})
	cfg := testConfig()
	cfg.DisableHeartbeat = true
	_, report := mustConfigure(t, cam, cfg)

	if !report.OK() {
		t.Fatalf("degraded steps: %v", report.DegradedSteps())
	}
	hb := cam.NodeMap().Bool("GevGVCPHeartbeatDisable")
	if v, err := hb.Value(); err != nil || !v {
		t.Errorf("heartbeat disable = %v, %v; want true", v, err)
	}
}

func TestConfigureRunsExactlyOnce(t *testing.T) {
	cam := simcam.New(simcam.Options{})
	stream, _ := mustConfigure(t, cam, testConfig())

	if _, err := stream.Configure(); !errors.Is(err, visioncapture.ErrInvalidState) {
		t.Errorf("second Configure err = %v, want ErrInvalidState", err)
	}
}
