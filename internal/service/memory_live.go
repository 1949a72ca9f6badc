package service

import (
	"context"
	"sync"
	"time"

	"github.com/freeeve/parley/internal/model"
	"github.com/freeeve/parley/pkg/diplomacy"
)

// MemoryLive keeps the current board of in-process games for the spectator
// server when no Redis is configured.
type MemoryLive struct {
	mu     sync.RWMutex
	phases map[string]model.LivePhase
	now    func() time.Time
}

// NewMemoryLive creates an empty MemoryLive.
func NewMemoryLive() *MemoryLive {
	return &MemoryLive{phases: make(map[string]model.LivePhase), now: time.Now}
}

// SetPhase implements LiveStore.
func (m *MemoryLive) SetPhase(_ context.Context, gameID string, snap diplomacy.Snapshot, events []diplomacy.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases[gameID] = model.LivePhase{
		GameID:    gameID,
		Phase:     snap.Name,
		State:     snap,
		Events:    append([]diplomacy.Event(nil), events...),
		UpdatedAt: m.now().UTC(),
	}
	return nil
}

// Publish implements LiveStore. Delivery to viewers goes through the hub,
// so there is nothing to fan out here.
func (m *MemoryLive) Publish(context.Context, string, []byte) error { return nil }

// GetPhase returns the stored board, or nil when the game is unknown.
func (m *MemoryLive) GetPhase(_ context.Context, gameID string) (*model.LivePhase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lp, ok := m.phases[gameID]
	if !ok {
		return nil, nil
	}
	return &lp, nil
}
