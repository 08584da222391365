// Package ws streams newly captured audit events to operator dashboards over
// WebSocket, backed by the Redis live-feed channels.
package ws

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/opencampus/trail/internal/domain"
	redisstore "github.com/opencampus/trail/internal/store/redis"
)

// Hub manages WebSocket connections backed by Redis pub/sub.
type Hub struct {
	pubsub *redisstore.PubSub
}

func NewHub(pubsub *redisstore.PubSub) *Hub {
	return &Hub{pubsub: pubsub}
}

// ServeFeed handles WebSocket connections for the live audit feed.
// Subscribes to the firehose channel, or to one category's channel when the
// "category" query parameter is set. The feed is read-only and best effort;
// the durable trail is always the store, never this stream.
func (h *Hub) ServeFeed(w http.ResponseWriter, r *http.Request) {
	channel := redisstore.FeedChannelAll
	if cat := r.URL.Query().Get("category"); cat != "" {
		if !domain.Category(cat).Valid() {
			http.Error(w, "unknown category", http.StatusBadRequest)
			return
		}
		channel = redisstore.FeedChannel(cat)
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	messages, cleanup, err := h.pubsub.Subscribe(ctx, channel)
	if err != nil {
		log.Error().Err(err).Msg("websocket subscribe")
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
