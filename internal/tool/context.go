package tool

import "context"

type contextKey string

const contextKeyChannelID contextKey = "channel_id"

// WithChannel attaches the chat channel a tool call is made for.
func WithChannel(ctx context.Context, channelID string) context.Context {
	return context.WithValue(ctx, contextKeyChannelID, channelID)
}

// ChannelFromContext returns the channel set by WithChannel.
func ChannelFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(contextKeyChannelID).(string)
	return v, ok && v != ""
}
