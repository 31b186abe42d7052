package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/helpdesk/internal/tool"
)

// DefaultMemoryTTL is how long remembered facts survive without writes.
const DefaultMemoryTTL = 30 * 24 * time.Hour

var _ tool.MemoryStore = (*Memory)(nil) //nolint:gochecknoglobals // compile-time check

// Sealer encrypts stored values. *secrets.Vault satisfies this interface.
type Sealer interface {
	Seal(plaintext, label string) (string, error)
	Open(ciphertext, label string) (string, error)
}

// Memory stores per-channel key/value facts in one hash per channel.
type Memory struct {
	c      *Client
	ttl    time.Duration
	sealer Sealer
}

// MemoryOption configures a Memory.
type MemoryOption func(*Memory)

// WithSealer encrypts values at rest. Each value is bound to its channel and key.
func WithSealer(s Sealer) MemoryOption {
	return func(m *Memory) { m.sealer = s }
}

// NewMemory creates a Memory. A non-positive ttl falls back to DefaultMemoryTTL.
func NewMemory(c *Client, ttl time.Duration, opts ...MemoryOption) *Memory {
	if ttl <= 0 {
		ttl = DefaultMemoryTTL
	}
	m := &Memory{c: c, ttl: ttl}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Save sets key to value for the channel and refreshes the hash expiry.
func (m *Memory) Save(ctx context.Context, channelID, key, value string) error {
	hkey := MemoryKey(channelID)

	stored, err := sealValue(m.sealer, channelID, key, value)
	if err != nil {
		return fmt.Errorf("redis.Memory.Save: %w", err)
	}

	pipe := m.c.client.TxPipeline()
	pipe.HSet(ctx, hkey, key, stored)
	pipe.Expire(ctx, hkey, m.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis.Memory.Save: %w", err)
	}
	return nil
}

// Recall returns the remembered facts of the channel. With a key it returns
// at most that entry.
func (m *Memory) Recall(ctx context.Context, channelID, key string) (map[string]string, error) {
	hkey := MemoryKey(channelID)

	if key != "" {
		vals, err := m.c.client.HMGet(ctx, hkey, key).Result()
		if err != nil {
			return nil, fmt.Errorf("redis.Memory.Recall: %w", err)
		}
		raw := make(map[string]string, 1)
		if s, ok := vals[0].(string); ok {
			raw[key] = s
		}
		return openValues(m.sealer, channelID, raw), nil
	}

	all, err := m.c.client.HGetAll(ctx, hkey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis.Memory.Recall: %w", err)
	}
	return openValues(m.sealer, channelID, all), nil
}

func memoryLabel(channelID, key string) string {
	return channelID + "/" + key
}

func sealValue(s Sealer, channelID, key, value string) (string, error) {
	if s == nil {
		return value, nil
	}
	return s.Seal(value, memoryLabel(channelID, key))
}

// openValues decrypts raw in place. Entries that fail to open are dropped.
func openValues(s Sealer, channelID string, raw map[string]string) map[string]string {
	if s == nil {
		return raw
	}
	for k, v := range raw {
		plain, err := s.Open(v, memoryLabel(channelID, k))
		if err != nil {
			log.Warn().Err(err).Str("channel_id", channelID).Str("key", k).Msg("redis.Memory: dropping unreadable entry")
			delete(raw, k)
			continue
		}
		raw[k] = plain
	}
	return raw
}
