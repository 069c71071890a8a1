package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrNotConnected is returned by Publish while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt not connected")

// MQTTConfig configures an MQTTPublisher.
type MQTTConfig struct {
	// Broker is host:port or a full URL (tcp://, ssl://, ws://).
	Broker   string
	ClientID string

	// Topic is the topic template; {serial} expands to the device serial.
	// Default: "gxdemo/{serial}/frames"
	Topic string

	QoS byte

	// ConnectTimeout bounds the initial connection.
	// Default: 5s
	ConnectTimeout time.Duration

	// PublishTimeout bounds each publish acknowledgement.
	// Default: 2s
	PublishTimeout time.Duration
}

func (c *MQTTConfig) defaults() {
	if c.Topic == "" {
		c.Topic = "gxdemo/{serial}/frames"
	}
	if c.ClientID == "" {
		c.ClientID = "gxdemo"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 2 * time.Second
	}
}

func brokerURL(broker string) string {
	for _, scheme := range []string{"tcp://", "ssl://", "ws://", "wss://", "mqtt://", "mqtts://"} {
		if strings.HasPrefix(broker, scheme) {
			return broker
		}
	}
	return "tcp://" + broker
}

// MQTTStats contains publisher statistics.
type MQTTStats struct {
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Errors    uint64 `json:"errors"`
	Codec     string `json:"codec"`
}

// MQTTPublisher publishes frame events to an MQTT broker with automatic
// reconnection.
type MQTTPublisher struct {
	cfg    MQTTConfig
	codec  Codec
	logger *slog.Logger
	client mqtt.Client

	mu        sync.RWMutex
	connected bool

	published atomic.Uint64
	errors    atomic.Uint64
}

// MQTTOption configures an MQTTPublisher.
type MQTTOption func(*MQTTPublisher)

// WithClient uses c instead of a paho client built from the config.
func WithClient(c mqtt.Client) MQTTOption {
	return func(p *MQTTPublisher) { p.client = c }
}

// NewMQTTPublisher creates a publisher. Call Connect before publishing.
func NewMQTTPublisher(cfg MQTTConfig, codec Codec, logger *slog.Logger, opts ...MQTTOption) *MQTTPublisher {
	cfg.defaults()
	if codec == nil {
		codec = JSON
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &MQTTPublisher{cfg: cfg, codec: codec, logger: logger.With("component", "mqtt")}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = mqtt.NewClient(p.clientOptions())
	}
	return p
}

func (p *MQTTPublisher) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(p.cfg.Broker))
	opts.SetClientID(p.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		p.setConnected(true)
		p.logger.Info("mqtt connection established", "broker", p.cfg.Broker, "client_id", p.cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		p.setConnected(false)
		p.logger.Warn("mqtt connection lost, will auto-reconnect", "broker", p.cfg.Broker, "error", err)
	}
	return opts
}

func (p *MQTTPublisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

func (p *MQTTPublisher) isConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Connect establishes the broker connection.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	p.logger.Info("connecting to mqtt broker", "broker", p.cfg.Broker)

	token := p.client.Connect()
	if err := wait(ctx, token, p.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", p.cfg.Broker, err)
	}
	p.setConnected(true)
	return nil
}

// Publish sends ev to the device's topic.
func (p *MQTTPublisher) Publish(ctx context.Context, ev FrameEvent) error {
	if !p.isConnected() {
		p.errors.Add(1)
		return ErrNotConnected
	}

	payload, err := p.codec.Marshal(ev)
	if err != nil {
		p.errors.Add(1)
		return fmt.Errorf("marshal frame event: %w", err)
	}

	topic := Topic(p.cfg.Topic, ev.Serial)
	token := p.client.Publish(topic, p.cfg.QoS, false, payload)
	if err := wait(ctx, token, p.cfg.PublishTimeout); err != nil {
		p.errors.Add(1)
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	p.published.Add(1)
	p.logger.Debug("frame event published", "topic", topic, "frame_id", ev.FrameID, "size", len(payload))
	return nil
}

// Stats returns publisher statistics.
func (p *MQTTPublisher) Stats() MQTTStats {
	return MQTTStats{
		Connected: p.isConnected(),
		Published: p.published.Load(),
		Errors:    p.errors.Load(),
		Codec:     p.codec.Name(),
	}
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
		p.logger.Info("mqtt disconnected")
	}
	p.setConnected(false)
	return nil
}

// wait blocks until token completes, the timeout passes or ctx ends.
func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.New("timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Publisher = (*MQTTPublisher)(nil)
