package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/freeeve/parley/internal/orchestrator"
	"github.com/freeeve/parley/pkg/diplomacy"
)

// LiveStore is the part of the live cache the spectator feed writes to.
type LiveStore interface {
	SetPhase(ctx context.Context, gameID string, snap diplomacy.Snapshot, events []diplomacy.Event) error
	Publish(ctx context.Context, gameID string, payload []byte) error
}

// Spectator forwards orchestrator updates to the live cache and the
// websocket hub. Either may be nil.
type Spectator struct {
	cache LiveStore
	hub   Broadcaster
}

// NewSpectator creates a Spectator.
func NewSpectator(cache LiveStore, hub Broadcaster) *Spectator {
	if hub == nil {
		hub = NoopBroadcaster{}
	}
	return &Spectator{cache: cache, hub: hub}
}

var _ orchestrator.Observer = (*Spectator)(nil)

// Observe implements orchestrator.Observer.
func (s *Spectator) Observe(ctx context.Context, u orchestrator.Update) error {
	s.hub.BroadcastGameEvent(u.GameID, u.Type, u)
	if s.cache == nil {
		return nil
	}

	var errs []error
	if u.State != nil && (u.Type == orchestrator.UpdatePhaseChanged || u.Type == orchestrator.UpdatePhaseResolved) {
		if err := s.cache.SetPhase(ctx, u.GameID, *u.State, u.Events); err != nil {
			errs = append(errs, fmt.Errorf("store live phase: %w", err))
		}
	}
	payload, err := json.Marshal(u)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("encode update: %w", err))...)
	}
	if err := s.cache.Publish(ctx, u.GameID, payload); err != nil {
		errs = append(errs, fmt.Errorf("publish update: %w", err))
	}
	return errors.Join(errs...)
}
