package ingress

import (
	"context"
	"strings"
	"time"

	"fatigue-fusion-engine/internal/bus"

	"go.uber.org/zap"
)

// blockInterval bounds each ReadNotifications call so the adapter's
// goroutine notices ctx cancellation promptly even with no traffic on
// the stream.
const blockInterval = 1 * time.Second

// Sender is the subset of evaluation.Loop the adapter needs to hand off
// a decoded Message, kept as an interface so ingress never imports
// evaluation (evaluation already imports ingress).
type Sender interface {
	Send(msg Message)
}

// RedisAdapter watches bus.StreamNotifications and, for every key it
// recognizes, re-reads the key's current value and decodes it into a
// Message for the evaluation loop's inbox — the pull side of the
// "keyed hash store with change notifications" contract. Grounded on
// the same notify-then-reread pattern owl-common/redis's stream helpers
// establish for their consumer-group readers, simplified here to a
// single reader with no acknowledgment bookkeeping.
type RedisAdapter struct {
	store  *bus.Store
	sender Sender
	logger *zap.Logger
}

func NewRedisAdapter(store *bus.Store, sender Sender, logger *zap.Logger) *RedisAdapter {
	return &RedisAdapter{store: store, sender: sender, logger: logger}
}

// Run blocks, dispatching decoded messages until ctx is cancelled.
func (a *RedisAdapter) Run(ctx context.Context) {
	const minBackoff, maxBackoff = 100 * time.Millisecond, 30 * time.Second
	lastID := "$"
	backoff := minBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		notifications, err := a.store.ReadNotifications(ctx, lastID, blockInterval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if a.logger != nil {
				a.logger.Error("read notifications failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = minBackoff

		for _, n := range notifications {
			lastID = n.ID
			a.handleKey(ctx, n.Key)
		}
	}
}

func (a *RedisAdapter) handleKey(ctx context.Context, key string) {
	switch {
	case key == bus.KeyVision:
		a.decodeAndSend(ctx, key, DecodeVisionFromStore)
	case key == bus.KeyHR:
		a.decodeAndSend(ctx, key, DecodeBioFromStore)
	case key == bus.KeyAlcoholDetected:
		a.decodeAndSend(ctx, key, DecodeAlcoholFromStore)
	case strings.HasPrefix(key, "data:pilot:"):
		a.decodeAndSend(ctx, key, DecodePilotProfileFromStore)
	default:
		// data:env, data:pilot_id_request, data:fusion, data:fatigue_alert,
		// state:current: not evaluation-loop inputs, nothing to decode.
	}
}

type decodeFunc func(ctx context.Context, store *bus.Store, key string) (Message, error)

func (a *RedisAdapter) decodeAndSend(ctx context.Context, key string, decode decodeFunc) {
	msg, err := decode(ctx, a.store, key)
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("dropping undecodable payload", zap.String("key", key), zap.Error(err))
		}
		return
	}
	a.sender.Send(msg)
}

// DecodeVisionFromStore re-reads key as a JSON VisionSample.
func DecodeVisionFromStore(ctx context.Context, store *bus.Store, key string) (Message, error) {
	raw, err := rawJSON(ctx, store, key)
	if err != nil {
		return nil, err
	}
	return DecodeVision(raw)
}

// DecodeBioFromStore re-reads key as a JSON BioSample.
func DecodeBioFromStore(ctx context.Context, store *bus.Store, key string) (Message, error) {
	raw, err := rawJSON(ctx, store, key)
	if err != nil {
		return nil, err
	}
	return DecodeBio(raw)
}

// DecodeAlcoholFromStore re-reads key as a JSON AlcoholEvent.
func DecodeAlcoholFromStore(ctx context.Context, store *bus.Store, key string) (Message, error) {
	raw, err := rawJSON(ctx, store, key)
	if err != nil {
		return nil, err
	}
	return DecodeAlcohol(raw)
}

// DecodePilotProfileFromStore re-reads key as a JSON pilot profile.
func DecodePilotProfileFromStore(ctx context.Context, store *bus.Store, key string) (Message, error) {
	raw, err := rawJSON(ctx, store, key)
	if err != nil {
		return nil, err
	}
	return DecodePilotProfile(raw)
}

func rawJSON(ctx context.Context, store *bus.Store, key string) ([]byte, error) {
	return store.GetRaw(ctx, key)
}
