// Package notify fans committed state changes and fatigue alerts out to
// MQTT, an egress surface the bus-agnostic keyed-store contract leaves
// room for even though the core pipeline never reads it back. Adapted
// from owl-common/mqtt/client.go's broker-connect-publish wrapper.
package notify

import (
	"encoding/json"
	"fmt"

	"fatigue-fusion-engine/internal/config"
	"fatigue-fusion-engine/internal/model"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	TopicAlert = "ffe/alert"
	TopicState = "ffe/state"
)

// Publisher wraps a connected MQTT client for the FFE's two egress
// topics. A *zap.Logger, not a bare fmt.Printf, records handler errors —
// the one deliberate departure from the teacher's client.go, which logs
// via fmt because owl-common/mqtt predates its callers adopting zap
// everywhere.
type Publisher struct {
	client mqtt.Client
	logger *zap.Logger
}

// NewPublisher dials cfg.Broker and returns a connected Publisher.
func NewPublisher(cfg config.MQTTConfig, logger *zap.Logger) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}

	return &Publisher{client: client, logger: logger}, nil
}

// PublishAlert publishes a stage-change alert to ffe/alert, written on
// every SC stage change, mirroring the data:fatigue_alert key's
// semantics.
func (p *Publisher) PublishAlert(stage model.FatigueStage, snap model.StateSnapshot) error {
	payload, err := json.Marshal(struct {
		Stage      string `json:"stage"`
		State      string `json:"state"`
		Message    string `json:"message"`
		TimestampS float64 `json:"timestamp_s"`
	}{
		Stage:      stage.String(),
		State:      string(snap.State),
		Message:    snap.Message,
		TimestampS: snap.TimestampS,
	})
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}
	return p.publish(TopicAlert, payload)
}

// PublishState publishes every committed StateSnapshot to ffe/state,
// mirroring state:current for MQTT-only subscribers.
func (p *Publisher) PublishState(snap model.StateSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal state payload: %w", err)
	}
	return p.publish(TopicState, payload)
}

func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 1, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		if p.logger != nil {
			p.logger.Error("mqtt publish failed", zap.String("topic", topic), zap.Error(err))
		}
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Disconnect closes the MQTT connection, waiting up to 250ms for
// in-flight publishes to drain.
func (p *Publisher) Disconnect() {
	p.client.Disconnect(250)
}
