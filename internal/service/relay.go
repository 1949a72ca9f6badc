package service

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// Subscriber delivers the published updates of one game.
type Subscriber interface {
	Subscribe(ctx context.Context, gameID string) (<-chan []byte, func() error)
}

// Relay forwards the updates a game running in another process publishes to
// the local hub. It returns when ctx ends or the subscription closes.
func Relay(ctx context.Context, sub Subscriber, gameID string, hub Broadcaster) {
	ch, closeSub := sub.Subscribe(ctx, gameID)
	defer func() {
		if err := closeSub(); err != nil {
			log.Debug().Err(err).Str("gameId", gameID).Msg("Closing relay subscription")
		}
	}()

	for payload := range ch {
		typ := gjson.GetBytes(payload, "type").String()
		if typ == "" || !json.Valid(payload) {
			log.Warn().Str("gameId", gameID).Msg("Dropping malformed live update")
			continue
		}
		hub.BroadcastGameEvent(gameID, typ, json.RawMessage(payload))
	}
}
