package bus

import (
	"context"
	"time"

	"fatigue-fusion-engine/internal/model"

	"go.uber.org/zap"
)

// AlertPublisher is the subset of internal/notify.Publisher the Sink
// needs, kept as an interface so bus stays free of a notify import
// cycle and so tests can substitute a no-op.
type AlertPublisher interface {
	PublishAlert(stage model.FatigueStage, snap model.StateSnapshot) error
	PublishState(snap model.StateSnapshot) error
}

// Sink implements evaluation.Sink against the Redis Store and an MQTT
// AlertPublisher, writing the data:fusion/data:fatigue_alert/
// state:current keys plus the supplemented ffe/alert and ffe/state MQTT
// topics from a single commit point.
type Sink struct {
	store   *Store
	mqtt    AlertPublisher
	ttl     time.Duration
	logger  *zap.Logger
}

func NewSink(store *Store, mqtt AlertPublisher, ttl time.Duration, logger *zap.Logger) *Sink {
	return &Sink{store: store, mqtt: mqtt, ttl: ttl, logger: logger}
}

// PublishFusion writes the tick's FusionOutput to data:fusion. A write
// failure is logged, not propagated — the evaluation thread's own
// Metrics and the State Manager's in-memory authority remain correct
// even if the bus mirror falls behind.
func (s *Sink) PublishFusion(ctx context.Context, out model.FusionOutput) {
	if err := s.store.SetJSON(ctx, KeyFusion, out, s.ttl); err != nil {
		s.logFailure("publish fusion", err)
	}
}

// PublishStateChange writes the committed StateSnapshot to
// state:current unconditionally, and — only when the stage actually
// changed — also writes data:fatigue_alert and fans out over MQTT.
func (s *Sink) PublishStateChange(ctx context.Context, snap model.StateSnapshot, fatigueStage model.FatigueStage, changed bool) {
	if err := s.store.SetJSON(ctx, KeyStateCurrent, snap, 0); err != nil {
		s.logFailure("publish state:current", err)
	}
	if s.mqtt != nil {
		if err := s.mqtt.PublishState(snap); err != nil {
			s.logFailure("mqtt publish state", err)
		}
	}

	if !changed {
		return
	}

	if err := s.store.SetJSON(ctx, KeyFatigueAlert, snap, s.ttl); err != nil {
		s.logFailure("publish data:fatigue_alert", err)
	}
	if s.mqtt != nil {
		if err := s.mqtt.PublishAlert(fatigueStage, snap); err != nil {
			s.logFailure("mqtt publish alert", err)
		}
	}
}

func (s *Sink) logFailure(action string, err error) {
	if s.logger != nil {
		s.logger.Error(action+" failed", zap.Error(err))
	}
}
