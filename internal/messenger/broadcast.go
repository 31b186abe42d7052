package messenger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// Event types published to channel watchers.
const (
	EventDelivered = "delivered"
	EventFailed    = "delivery_failed"
)

// Event is published for every chunk delivered to a channel.
type Event struct {
	Type      string    `json:"type"`
	ChannelID string    `json:"channel_id"`
	ThreadTS  string    `json:"thread_ts,omitempty"`
	Text      string    `json:"text"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher abstracts the Redis pub/sub publish operation.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Broadcast wraps a Delivery and mirrors each chunk to a pub/sub topic so
// live watchers can follow a channel's conversation.
type Broadcast struct {
	next  Delivery
	pub   Publisher
	topic func(channelID string) string
}

// NewBroadcast creates a Broadcast. topic maps a chat channel to its pub/sub topic.
func NewBroadcast(next Delivery, pub Publisher, topic func(channelID string) string) *Broadcast {
	return &Broadcast{next: next, pub: pub, topic: topic}
}

// Deliver forwards to the wrapped Delivery, then publishes the outcome.
// Publish failures are logged and never change the delivery result.
func (b *Broadcast) Deliver(ctx context.Context, target Target, text string) error {
	err := b.next.Deliver(ctx, target, text)

	evt := Event{
		Type:      EventDelivered,
		ChannelID: target.ChannelID,
		ThreadTS:  target.ThreadTS,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		evt.Type = EventFailed
		evt.Error = err.Error()
	}

	payload, marshalErr := json.Marshal(evt)
	if marshalErr == nil {
		topic := b.topic(target.ChannelID)
		if pubErr := b.pub.Publish(ctx, topic, payload); pubErr != nil {
			log.Warn().Err(pubErr).Str("topic", topic).Msg("messenger.Broadcast: publish failed")
		}
	}

	return err
}
