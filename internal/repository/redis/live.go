package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/parley/internal/model"
	"github.com/freeeve/parley/pkg/diplomacy"
)

// Key patterns for live game data.
func phaseKey(gameID string) string   { return "parley:game:" + gameID + ":phase" }
func channelKey(gameID string) string { return "parley:game:" + gameID + ":events" }

// SetPhase stores the current board and the events that produced it.
func (c *Client) SetPhase(ctx context.Context, gameID string, snap diplomacy.Snapshot, events []diplomacy.Event) error {
	lp := model.LivePhase{
		GameID:    gameID,
		Phase:     snap.Name,
		State:     snap,
		Events:    events,
		UpdatedAt: c.now().UTC(),
	}
	data, err := json.Marshal(lp)
	if err != nil {
		return fmt.Errorf("encode live phase: %w", err)
	}
	return c.rdb.Set(ctx, phaseKey(gameID), data, c.ttl).Err()
}

// GetPhase returns the stored board, or nil when the game is unknown.
func (c *Client) GetPhase(ctx context.Context, gameID string) (*model.LivePhase, error) {
	data, err := c.rdb.Get(ctx, phaseKey(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get live phase: %w", err)
	}
	var lp model.LivePhase
	if err := json.Unmarshal(data, &lp); err != nil {
		return nil, fmt.Errorf("decode live phase: %w", err)
	}
	return &lp, nil
}

// Publish sends a payload to the game's event channel.
func (c *Client) Publish(ctx context.Context, gameID string, payload []byte) error {
	return c.rdb.Publish(ctx, channelKey(gameID), payload).Err()
}

// Subscribe returns the game's event payloads until ctx ends or the returned
// close function is called.
func (c *Client) Subscribe(ctx context.Context, gameID string) (<-chan []byte, func() error) {
	sub := c.rdb.Subscribe(ctx, channelKey(gameID))
	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					log.Warn().Str("game", gameID).Msg("dropping live event for slow subscriber")
				}
			}
		}
	}()
	return out, sub.Close
}

// DeleteGame removes all live data for a game.
func (c *Client) DeleteGame(ctx context.Context, gameID string) error {
	return c.rdb.Del(ctx, phaseKey(gameID)).Err()
}
