// Package bus binds the bus-agnostic "keyed hash store with change
// notifications" contract to Redis: TTL'd JSON keys for
// the latest-value semantics of data:vision/data:hr/data:env/etc., and
// Redis Streams for the change-notification side of data:fusion and
// data:fatigue_alert. Adapted from owl-common/redis's client and streams
// helpers, generalized from ad hoc string-keyed values to a typed
// Store wrapping one *redis.Client.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fatigue-fusion-engine/internal/ffeerrors"

	"github.com/go-redis/redis/v8"
)

// Logical keys.
const (
	KeyVision           = "data:vision"
	KeyHR               = "data:hr"
	KeyEnv              = "data:env"
	KeyAlcoholDetected  = "data:alcohol_detected"
	KeyPilotIDRequest   = "data:pilot_id_request"
	KeyFusion           = "data:fusion"
	KeyFatigueAlert     = "data:fatigue_alert"
	KeyStateCurrent     = "state:current"
)

// KeyPilot builds the per-pilot profile key data:pilot:{id}.
func KeyPilot(id string) string {
	return fmt.Sprintf("data:pilot:%s", id)
}

// StreamNotifications is the Redis Stream every SetJSON write also XADDs
// to, giving subscribers a change-notification channel independent of
// polling the key itself — the "notifications" half of the contract.
const StreamNotifications = "ffe:notifications"

// Store is the Redis binding of the keyed-hash-store contract.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func NewClient(cfg RedisConnConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// RedisConnConfig is the subset of internal/config.RedisConfig the store
// needs to dial, kept separate to avoid an import cycle between config
// and bus.
type RedisConnConfig struct {
	Addr     string
	Password string
	DB       int
}

// Ping verifies connectivity, wrapping failures in ffeerrors.ErrStoreUnavailable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w: %v", ffeerrors.ErrStoreUnavailable, err)
	}
	return nil
}

// SetJSON marshals value, writes it to key with the given TTL (0 means no
// expiry — used for persistent records like pilot profiles and
// state:current), and publishes a change notification carrying the
// key name so subscribers can decide whether to re-read.
func (s *Store) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w: %v", key, ffeerrors.ErrStoreUnavailable, err)
	}
	if _, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamNotifications,
		Values: map[string]interface{}{"key": key, "timestamp": time.Now().Unix()},
	}).Result(); err != nil {
		return fmt.Errorf("notify %s: %w: %v", key, ffeerrors.ErrStoreUnavailable, err)
	}
	return nil
}

// GetRaw reads key's current value without unmarshaling, used by
// ingress adapters that need to pick a decoder based on which key fired
// the change notification rather than a type known at the call site.
func (s *Store) GetRaw(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("get %s: %w: %v", key, ffeerrors.ErrStoreUnavailable, err)
	}
	return []byte(val), nil
}

// GetJSON reads key and unmarshals it into dest. Returns
// ffeerrors.ErrStoreUnavailable (wrapped) if the key is absent or the
// connection failed — the FFE treats "not found" and "unreachable" alike
// for latest-value keys, since both mean "no fresh data to fuse".
func (s *Store) GetJSON(ctx context.Context, key string, dest interface{}) error {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("get %s: %w: %v", key, ffeerrors.ErrStoreUnavailable, err)
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w: %v", key, ffeerrors.ErrStoreUnavailable, err)
	}
	return nil
}

// Notification is one entry read off StreamNotifications.
type Notification struct {
	ID  string
	Key string
}

// ReadNotifications blocks up to block for new entries on
// StreamNotifications after lastID ("$" to start from now), returning
// whatever arrived. Adapted from owl-common/redis's ReadFromStream,
// generalized from a consumer-group read to a lightweight single-reader
// XREAD since the FFE has exactly one evaluation thread consuming change
// notifications.
func (s *Store) ReadNotifications(ctx context.Context, lastID string, block time.Duration) ([]Notification, error) {
	res, err := s.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{StreamNotifications, lastID},
		Count:   50,
		Block:   block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("read notifications: %w: %v", ffeerrors.ErrStoreUnavailable, err)
	}

	var out []Notification
	for _, stream := range res {
		for _, msg := range stream.Messages {
			key, _ := msg.Values["key"].(string)
			out = append(out, Notification{ID: msg.ID, Key: key})
		}
	}
	return out, nil
}
