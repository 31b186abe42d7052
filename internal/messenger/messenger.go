package messenger

import (
	"context"
	"fmt"
)

// MessageID uniquely identifies a message within a messenger platform.
type MessageID string

// Target says where a reply goes: a channel and, optionally, a thread in it.
type Target struct {
	ChannelID string
	ThreadTS  string
}

// Messenger abstracts communication with a chat platform.
// Implementations handle platform-specific API calls; the interface is platform-agnostic.
type Messenger interface {
	// SendMessage posts a text message to a channel, threaded under threadTS
	// when it is non-empty, and returns its platform message ID.
	SendMessage(ctx context.Context, channelID, threadTS, text string) (MessageID, error)

	// Platform returns the messenger platform identifier (e.g. "slack").
	Platform() string
}

// Delivery pushes a single chunk of bot output to a channel as soon as it is
// produced. A failed delivery never aborts the run that produced the chunk.
type Delivery interface {
	Deliver(ctx context.Context, target Target, text string) error
}

// MessengerDelivery adapts a Messenger to Delivery.
type MessengerDelivery struct {
	m Messenger
}

// NewDelivery wraps m as a Delivery.
func NewDelivery(m Messenger) *MessengerDelivery {
	return &MessengerDelivery{m: m}
}

// Deliver posts text to target.
func (d *MessengerDelivery) Deliver(ctx context.Context, target Target, text string) error {
	if _, err := d.m.SendMessage(ctx, target.ChannelID, target.ThreadTS, text); err != nil {
		return fmt.Errorf("messenger.Deliver(%s): %w", d.m.Platform(), err)
	}
	return nil
}
