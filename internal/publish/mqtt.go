package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ble-bearing.klederson.com/internal/live"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// ErrPublishTimeout is returned when the broker does not acknowledge in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// MQTTPublisher sends every live frame as one JSON message.
type MQTTPublisher struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
	logger  zerolog.Logger
}

// MQTTOption configures an MQTTPublisher.
type MQTTOption func(*MQTTPublisher)

// WithQoS sets the publish QoS level.
func WithQoS(qos byte) MQTTOption {
	return func(p *MQTTPublisher) {
		if qos <= 2 {
			p.qos = qos
		}
	}
}

// WithMQTTLogger sets the logger.
func WithMQTTLogger(logger zerolog.Logger) MQTTOption {
	return func(p *MQTTPublisher) {
		p.logger = logger
	}
}

// WithMQTTClient replaces the paho client built from the broker address.
func WithMQTTClient(client mqtt.Client) MQTTOption {
	return func(p *MQTTPublisher) {
		p.client = client
	}
}

// NewMQTTPublisher creates a publisher for broker (e.g. tcp://localhost:1883).
// Call Connect before publishing.
func NewMQTTPublisher(broker, clientID, topic string, opts ...MQTTOption) *MQTTPublisher {
	p := &MQTTPublisher{
		topic:   topic,
		timeout: 2 * time.Second,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		clientOpts := mqtt.NewClientOptions().
			AddBroker(broker).
			SetClientID(clientID).
			SetAutoReconnect(true).
			SetConnectTimeout(p.timeout)
		p.client = mqtt.NewClient(clientOpts)
	}
	return p
}

// Connect connects to the broker.
func (p *MQTTPublisher) Connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("connecting to mqtt broker: %w", ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to mqtt broker: %w", err)
	}
	p.logger.Info().Str("topic", p.topic).Msg("connected to mqtt broker")
	return nil
}

// PublishFrame sends one frame. Empty frames are published too so that
// subscribers see devices disappear.
func (p *MQTTPublisher) PublishFrame(f live.Frame) error {
	payload, err := json.Marshal(NewFrameMessage(f))
	if err != nil {
		return fmt.Errorf("marshaling frame: %w", err)
	}

	token := p.client.Publish(p.topic, p.qos, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

// Sink adapts PublishFrame to a live aggregator sink, logging failures.
func (p *MQTTPublisher) Sink(f live.Frame) {
	if err := p.PublishFrame(f); err != nil {
		p.logger.Warn().Err(err).Str("topic", p.topic).Msg("mqtt publish failed")
	}
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
