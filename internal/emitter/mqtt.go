package emitter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTEmitter publishes events to <topic>/<event type> on an MQTT broker.
type MQTTEmitter struct {
	broker   string
	topic    string
	clientID string
	log      *slog.Logger
	Client   mqtt.Client

	mu        sync.RWMutex
	published map[string]uint64
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates an emitter for broker, given as host:port or URL.
func NewMQTTEmitter(broker, topic, clientID string, log *slog.Logger) *MQTTEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &MQTTEmitter{
		broker:    broker,
		topic:     strings.TrimSuffix(topic, "/"),
		clientID:  clientID,
		log:       log.With("component", "emitter"),
		published: make(map[string]uint64),
	}
}

func (e *MQTTEmitter) brokerURL() string {
	if strings.Contains(e.broker, "://") {
		return e.broker
	}
	return "tcp://" + e.broker
}

// Connect establishes the broker connection. The client reconnects on its
// own afterwards.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(e.brokerURL())
	opts.SetClientID(e.clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		e.log.Info("MQTT connection established", "broker", e.broker, "client_id", e.clientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		e.log.Warn("MQTT connection lost, will auto-reconnect", "broker", e.broker, "error", err)
	}

	e.Client = mqtt.NewClient(opts)
	e.log.Info("Connecting to MQTT broker", "broker", e.broker)

	token := e.Client.Connect()
	timeout := 5 * time.Second
	if d, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(d))
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	e.setConnected(true)
	return nil
}

func (e *MQTTEmitter) setConnected(c bool) {
	e.mu.Lock()
	e.connected = c
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected && e.Client != nil
}

func (e *MQTTEmitter) failed() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

// Emit publishes ev with QoS 1.
func (e *MQTTEmitter) Emit(ev Event) error {
	if !e.isConnected() {
		e.failed()
		return fmt.Errorf("mqtt not connected")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	payload, err := ev.ToJSON()
	if err != nil {
		e.failed()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := e.topic + "/" + ev.Type
	token := e.Client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.failed()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.failed()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()
	e.log.Debug("Event published", "topic", topic, "size", len(payload))
	return nil
}

// Close disconnects from the broker.
func (e *MQTTEmitter) Close() error {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250)
		e.log.Info("MQTT disconnected")
	}
	e.setConnected(false)
	return nil
}

// Stats contains emitter statistics.
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// Stats returns emitter statistics.
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{Connected: e.connected, Published: published, Errors: e.errors}
}
