package orchestrator

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/parley/pkg/diplomacy"
)

// Update types sent to observers.
const (
	UpdatePhaseChanged  = "phase_changed"
	UpdatePhaseResolved = "phase_resolved"
	UpdateMessage       = "message"
	UpdateGameEnded     = "game_ended"
)

// Update is one notification about a running game.
type Update struct {
	Type    string                       `json:"type"`
	GameID  string                       `json:"game_id"`
	Phase   string                       `json:"phase,omitempty"`
	State   *diplomacy.Snapshot          `json:"state,omitempty"`
	Orders  map[diplomacy.Power][]string `json:"orders,omitempty"`
	Results map[string][]string          `json:"results,omitempty"`
	Events  []diplomacy.Event            `json:"events,omitempty"`
	Message *diplomacy.Message           `json:"message,omitempty"`
	Outcome *Outcome                     `json:"outcome,omitempty"`
}

// Observer receives updates. Errors are logged and never affect the game.
type Observer interface {
	Observe(ctx context.Context, u Update) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, u Update) error

func (f ObserverFunc) Observe(ctx context.Context, u Update) error { return f(ctx, u) }

func (o *Orchestrator) notify(ctx context.Context, u Update) {
	for _, obs := range o.observers {
		if err := obs.Observe(ctx, u); err != nil {
			log.Warn().Err(err).Str("game", u.GameID).Str("type", u.Type).Msg("observer failed")
		}
	}
}
