// Package telemetry publishes capture health over MQTT: periodic per-camera
// stats and a one-shot device identity message on startup. Operations
// dashboards subscribe to these topics to watch frame rates, drops and
// degraded configurations across the fleet.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	visioncapture "github.com/e7canasta/orion-care-sensor/modules/vision-capture"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Config identifies this capture instance on the broker.
type Config struct {
	Broker     string // host:port, no scheme
	InstanceID string
	// TopicRoot defaults to "orion/vision".
	TopicRoot string
	QoS       byte
}

// StatsMessage is the JSON stats payload, one per camera per interval.
type StatsMessage struct {
	InstanceID       string    `json:"instance_id"`
	CameraIndex      int       `json:"camera_index"`
	State            string    `json:"state"`
	FrameCount       uint64    `json:"frame_count"`
	FramesDelivered  uint64    `json:"frames_delivered"`
	IncompleteFrames uint64    `json:"incomplete_frames"`
	TriggerErrors    uint64    `json:"trigger_errors"`
	WaitTimeouts     uint64    `json:"wait_timeouts"`
	DegradedSteps    []string  `json:"degraded_steps,omitempty"`
	LastFrameAt      time.Time `json:"last_frame_at,omitempty"`
	SentAt           time.Time `json:"sent_at"`
}

// DeviceInfoMessage announces a configured device on startup.
type DeviceInfoMessage struct {
	InstanceID  string    `json:"instance_id"`
	CameraIndex int       `json:"camera_index"`
	Serial      string    `json:"serial"`
	Degraded    []string  `json:"degraded_steps,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

// Emitter owns the broker connection. Publish failures count and log but
// never propagate into the capture path.
type Emitter struct {
	cfg    Config
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// New creates an emitter. Connect must be called before publishing.
func New(cfg Config) *Emitter {
	if cfg.TopicRoot == "" {
		cfg.TopicRoot = "orion/vision"
	}
	return &Emitter{cfg: cfg}
}

// Connect establishes the broker session with auto-reconnect.
func (e *Emitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.cfg.InstanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("telemetry: mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", e.cfg.InstanceID,
		)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("telemetry: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker,
		)
	}

	e.client = mqtt.NewClient(opts)

	token := e.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("telemetry: mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()
	return nil
}

// PublishStats sends one camera's stats snapshot.
func (e *Emitter) PublishStats(index int, stats visioncapture.CameraStats) error {
	msg := StatsMessage{
		InstanceID:       e.cfg.InstanceID,
		CameraIndex:      index,
		State:            stats.State.String(),
		FrameCount:       stats.FrameCount,
		FramesDelivered:  stats.FramesDelivered,
		IncompleteFrames: stats.IncompleteFrames,
		TriggerErrors:    stats.TriggerErrors,
		WaitTimeouts:     stats.WaitTimeouts,
		DegradedSteps:    stats.DegradedSteps,
		LastFrameAt:      stats.LastFrameAt,
		SentAt:           time.Now(),
	}
	topic := fmt.Sprintf("%s/%s/stats/%d", e.cfg.TopicRoot, e.cfg.InstanceID, index)
	return e.publishJSON(topic, msg)
}

// PublishDeviceInfo announces a device once its configuration succeeded.
func (e *Emitter) PublishDeviceInfo(index int, serial string, degraded []string) error {
	msg := DeviceInfoMessage{
		InstanceID:  e.cfg.InstanceID,
		CameraIndex: index,
		Serial:      serial,
		Degraded:    degraded,
		StartedAt:   time.Now(),
	}
	topic := fmt.Sprintf("%s/%s/device/%d", e.cfg.TopicRoot, e.cfg.InstanceID, index)
	return e.publishJSON(topic, msg)
}

func (e *Emitter) publishJSON(topic string, v any) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("telemetry: mqtt not connected")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		e.countError()
		return fmt.Errorf("telemetry: failed to marshal payload: %w", err)
	}

	token := e.client.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.countError()
		return fmt.Errorf("telemetry: publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("telemetry: publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	slog.Debug("telemetry: published", "topic", topic, "size", len(payload))
	return nil
}

// Disconnect closes the broker session with a short grace period.
func (e *Emitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		slog.Info("telemetry: mqtt disconnected")
	}
	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()
}

// Stats reports emitter counters.
func (e *Emitter) Stats() (published, errors uint64, connected bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.published, e.errors, e.connected
}

func (e *Emitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *Emitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
