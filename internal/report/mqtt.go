package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// ErrPublishTimeout is returned when the broker does not acknowledge in time.
var ErrPublishTimeout = errors.New("mqtt operation timed out")

// MQTTConfig contains broker settings.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	Timeout  time.Duration
}

// ClientFactory builds an MQTT client. mqtt.NewClient satisfies it.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// MQTTPublisher connects, publishes one retained QoS 1 message and disconnects.
// A cycle publishes once, so no connection is kept across sleeps.
type MQTTPublisher struct {
	cfg       MQTTConfig
	newClient ClientFactory
}

// NewMQTTPublisher creates a publisher. factory may be nil.
func NewMQTTPublisher(cfg MQTTConfig, factory ClientFactory) *MQTTPublisher {
	if factory == nil {
		factory = mqtt.NewClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &MQTTPublisher{cfg: cfg, newClient: factory}
}

func (p *MQTTPublisher) options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(p.cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(p.cfg.Timeout).
		SetWriteTimeout(p.cfg.Timeout)

	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
	}
	if p.cfg.Password != "" {
		opts.SetPassword(p.cfg.Password)
	}
	return opts
}

// Publish sends r as JSON to the configured topic.
func (p *MQTTPublisher) Publish(ctx context.Context, r *Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	client := p.newClient(p.options())

	if err := wait(ctx, client.Connect(), p.cfg.Timeout); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", p.cfg.Broker, err)
	}
	defer client.Disconnect(250)

	if err := wait(ctx, client.Publish(p.cfg.Topic, 1, true, payload), p.cfg.Timeout); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.cfg.Topic, err)
	}

	log.Debug().
		Str("topic", p.cfg.Topic).
		Int("bytes", len(payload)).
		Msg("Cycle report published")
	return nil
}

// Close is a no-op; each Publish owns its connection.
func (p *MQTTPublisher) Close() error {
	return nil
}

func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
