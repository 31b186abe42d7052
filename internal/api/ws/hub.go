package ws

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// Subscriber abstracts the pub/sub subscribe operation.
// *redisstore.Client satisfies this interface.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Hub manages WebSocket connections backed by Redis pub/sub.
type Hub struct {
	subs  Subscriber
	topic func(channelID string) string
}

// NewHub creates a new WebSocket hub. topic maps a chat channel to its
// pub/sub channel name.
func NewHub(subs Subscriber, topic func(channelID string) string) *Hub {
	return &Hub{subs: subs, topic: topic}
}

// ServeChannel handles WebSocket connections that watch a chat channel.
// Every message the bot delivers to the channel is forwarded as one JSON
// text frame.
func (h *Hub) ServeChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	if channelID == "" {
		http.Error(w, "missing channel id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	// Watchers only listen; CloseRead handles control frames and cancels
	// ctx when the client goes away.
	ctx := conn.CloseRead(r.Context())

	messages, cleanup, err := h.subs.Subscribe(ctx, h.topic(channelID))
	if err != nil {
		log.Error().Err(err).Str("channel_id", channelID).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, msgOK := <-messages:
			if !msgOK {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}
