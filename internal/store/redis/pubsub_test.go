package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstore "github.com/gosuda/helpdesk/internal/store/redis"
)

func TestKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "channel topic", got: redisstore.ChannelTopic("C123"), want: "channel:C123"},
		{name: "memory key", got: redisstore.MemoryKey("C123"), want: "memory:C123"},
		{name: "event key", got: redisstore.EventKey("C123:1.0"), want: "slack:event:C123:1.0"},
		{name: "empty channel", got: redisstore.ChannelTopic(""), want: "channel:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestKeys_ChannelsDoNotCollide(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, redisstore.ChannelTopic("C1"), redisstore.MemoryKey("C1"))
	assert.NotEqual(t, redisstore.ChannelTopic("C1"), redisstore.ChannelTopic("C2"))
}

func TestNew_Unreachable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()

	c, err := redisstore.New(ctx, "127.0.0.1:1", "", 0)

	require.Error(t, err)
	assert.Nil(t, c)
	assert.Contains(t, err.Error(), "redis.New: ping")
}
