package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	SaveMemoryName   = "save_memory"
	RecallMemoryName = "recall_memory"
)

// ErrNoChannel is returned when a channel-scoped tool runs without a channel in context.
var ErrNoChannel = errors.New("tool: no channel in context") //nolint:gochecknoglobals // sentinel error

// MemoryStore persists short notes per channel.
// *redis.Memory satisfies this interface.
type MemoryStore interface {
	Save(ctx context.Context, channelID, key, value string) error
	Recall(ctx context.Context, channelID, key string) (map[string]string, error)
}

// MemoryInput is the input of the save_memory and recall_memory tools.
type MemoryInput struct {
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
}

// RegisterMemoryTools adds save_memory and recall_memory backed by store.
func RegisterMemoryTools(r *Registry, store MemoryStore) {
	r.Register(Tool{
		Name:        SaveMemoryName,
		Description: "Remember a fact about this channel (a known issue, a workaround, who owns a service) for later conversations.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"key": {"type": "string", "description": "Short identifier for the fact"},
				"value": {"type": "string", "description": "The fact to remember"}
			},
			"required": ["key", "value"]
		}`),
		Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
			channelID, ok := ChannelFromContext(ctx)
			if !ok {
				return "", ErrNoChannel
			}
			var in MemoryInput
			if err := decodeInput(raw, &in); err != nil {
				return "", err
			}
			if strings.TrimSpace(in.Key) == "" || in.Value == "" {
				return "", fmt.Errorf("%w: key and value are required", ErrInvalidInput)
			}
			if err := store.Save(ctx, channelID, in.Key, in.Value); err != nil {
				return "", fmt.Errorf("tool.save_memory: %w", err)
			}
			return "saved " + in.Key, nil
		},
	})
	r.Register(Tool{
		Name:        RecallMemoryName,
		Description: "Recall facts previously saved for this channel. Omit key to list everything.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"key": {"type": "string", "description": "Identifier to look up; empty returns all"}
			}
		}`),
		Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
			channelID, ok := ChannelFromContext(ctx)
			if !ok {
				return "", ErrNoChannel
			}
			var in MemoryInput
			if err := decodeInput(raw, &in); err != nil {
				return "", err
			}
			found, err := store.Recall(ctx, channelID, in.Key)
			if err != nil {
				return "", fmt.Errorf("tool.recall_memory: %w", err)
			}
			if len(found) == 0 {
				return "nothing remembered", nil
			}
			b, err := json.Marshal(found)
			if err != nil {
				return "", fmt.Errorf("tool.recall_memory: marshal: %w", err)
			}
			return string(b), nil
		},
	})
}
