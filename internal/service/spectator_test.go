package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/freeeve/parley/internal/orchestrator"
	"github.com/freeeve/parley/pkg/diplomacy"
)

type fakeLive struct {
	phases    []string
	published [][]byte
	failSet   bool
}

func (f *fakeLive) SetPhase(_ context.Context, _ string, snap diplomacy.Snapshot, _ []diplomacy.Event) error {
	if f.failSet {
		return errors.New("redis down")
	}
	f.phases = append(f.phases, snap.Name)
	return nil
}

func (f *fakeLive) Publish(_ context.Context, _ string, payload []byte) error {
	f.published = append(f.published, payload)
	return nil
}

type fakeHub struct {
	events []string
}

func (h *fakeHub) BroadcastGameEvent(gameID, eventType string, _ any) {
	h.events = append(h.events, gameID+":"+eventType)
}

func TestSpectator_ForwardsPhaseUpdates(t *testing.T) {
	live := &fakeLive{}
	hub := &fakeHub{}
	s := NewSpectator(live, hub)

	snap := diplomacy.Snapshot{Name: "F1901M"}
	err := s.Observe(context.Background(), orchestrator.Update{Type: orchestrator.UpdatePhaseResolved, GameID: "g1", Phase: "S1901M", State: &snap})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if len(live.phases) != 1 || live.phases[0] != "F1901M" {
		t.Errorf("expected the new board cached, got %v", live.phases)
	}
	if len(hub.events) != 1 || hub.events[0] != "g1:phase_resolved" {
		t.Errorf("unexpected hub events %v", hub.events)
	}
	var got map[string]any
	if err := json.Unmarshal(live.published[0], &got); err != nil {
		t.Fatalf("decode published: %v", err)
	}
	if got["type"] != "phase_resolved" || got["game_id"] != "g1" {
		t.Errorf("unexpected payload %v", got)
	}
}

func TestSpectator_MessagesAreNotCached(t *testing.T) {
	live := &fakeLive{}
	s := NewSpectator(live, nil)
	m := diplomacy.Message{Sender: diplomacy.France, Recipient: diplomacy.Global, Body: "hello"}
	if err := s.Observe(context.Background(), orchestrator.Update{Type: orchestrator.UpdateMessage, GameID: "g1", Message: &m}); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if len(live.phases) != 0 {
		t.Errorf("messages should not touch the board, got %v", live.phases)
	}
	if len(live.published) != 1 {
		t.Errorf("expected the message published, got %d", len(live.published))
	}
}

func TestSpectator_ReportsCacheErrors(t *testing.T) {
	live := &fakeLive{failSet: true}
	s := NewSpectator(live, nil)
	snap := diplomacy.Snapshot{Name: "S1901M"}
	err := s.Observe(context.Background(), orchestrator.Update{Type: orchestrator.UpdatePhaseChanged, GameID: "g1", State: &snap})
	if err == nil || !strings.Contains(err.Error(), "redis down") {
		t.Fatalf("expected the cache error, got %v", err)
	}
	if len(live.published) != 1 {
		t.Errorf("publish should still happen, got %d", len(live.published))
	}
}

func TestMemoryLive_ServesLatestPhase(t *testing.T) {
	m := NewMemoryLive()
	ctx := context.Background()

	if lp, err := m.GetPhase(ctx, "g1"); err != nil || lp != nil {
		t.Fatalf("expected no phase before the game starts, got %v, %v", lp, err)
	}
	events := []diplomacy.Event{{Kind: diplomacy.EventCapture, Power: diplomacy.France, Province: "mar"}}
	if err := m.SetPhase(ctx, "g1", diplomacy.Snapshot{Name: "S1901M"}, nil); err != nil {
		t.Fatal(err)
	}
	if err := m.SetPhase(ctx, "g1", diplomacy.Snapshot{Name: "F1901M"}, events); err != nil {
		t.Fatal(err)
	}
	events[0].Province = "bur"

	lp, err := m.GetPhase(ctx, "g1")
	if err != nil || lp == nil {
		t.Fatalf("GetPhase: %v, %v", lp, err)
	}
	if lp.Phase != "F1901M" || len(lp.Events) != 1 || lp.Events[0].Province != "mar" {
		t.Errorf("unexpected live phase %+v", lp)
	}
}
