package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTurnStore keeps session turns in a Redis list per session. RPUSH and
// LTRIM run in one MULTI so concurrent appends never exceed the bound.
type RedisTurnStore struct {
	client   *redis.Client
	maxTurns int
	ttl      time.Duration
	prefix   string
}

// NewRedisTurnStore connects to addr. Sessions expire after ttl of
// inactivity; ttl <= 0 disables expiry.
func NewRedisTurnStore(addr string, maxTurns int, ttl time.Duration) *RedisTurnStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisTurnStore{client: rdb, maxTurns: maxTurns, ttl: ttl, prefix: "nexus:turns:"}
}

// Ping checks connectivity.
func (s *RedisTurnStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *RedisTurnStore) Close() error {
	return s.client.Close()
}

func (s *RedisTurnStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Append implements TurnStore.
func (s *RedisTurnStore) Append(ctx context.Context, sessionID string, t Turn) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding turn: %w", err)
	}
	key := s.key(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		pipe.LTrim(ctx, key, int64(-s.maxTurns), -1)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("appending turn to %s: %w", key, err)
	}
	turnWrites.Add(ctx, 1)
	return nil
}

// Turns implements TurnStore.
func (s *RedisTurnStore) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	raw, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading turns: %w", err)
	}
	turns := make([]Turn, 0, len(raw))
	for _, r := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			return nil, fmt.Errorf("decoding turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Clear implements TurnStore.
func (s *RedisTurnStore) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}
