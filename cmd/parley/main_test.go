package main

import (
	"context"
	"testing"

	"github.com/freeeve/parley/internal/agent"
	"github.com/freeeve/parley/internal/config"
	"github.com/freeeve/parley/internal/inference"
	"github.com/freeeve/parley/internal/model"
	"github.com/freeeve/parley/pkg/diplomacy"
)

const testSetup = `
engine: {command: /bin/true}
backends:
  - id: "ollama:llama3"
    base_url: http://localhost:11434/v1
  - id: "openai:gpt-4o-mini"
    api_key_env: PARLEY_TEST_KEY
powers:
  FRANCE: {kind: llm, backend: "openai:gpt-4o-mini", goals: [hold the channel]}
  ITALY: {kind: scripted}
  TURKEY: {kind: scripted}
blocs:
  - {id: central, members: [GERMANY, AUSTRIA], backend: "ollama:llama3"}
`

func TestBuildAgents(t *testing.T) {
	setup, err := config.ParseSetup([]byte(testSetup))
	if err != nil {
		t.Fatalf("ParseSetup: %v", err)
	}
	llm := inference.NewCoordinator(inference.Options{})
	agents, err := buildAgents(setup, llm, "g1")
	if err != nil {
		t.Fatalf("buildAgents: %v", err)
	}
	if len(agents) != 3 {
		t.Fatalf("expected bloc, single and scripted agents, got %d", len(agents))
	}

	byPower := make(map[diplomacy.Power]agent.Agent)
	for _, a := range agents {
		for _, p := range a.Powers() {
			byPower[p] = a
		}
	}
	if _, ok := byPower[diplomacy.France].(*agent.SingleAgent); !ok {
		t.Errorf("expected FRANCE to be a single agent, got %T", byPower[diplomacy.France])
	}
	if got := byPower[diplomacy.Germany]; got == nil || got.ID() != "central" || got != byPower[diplomacy.Austria] {
		t.Errorf("expected GERMANY and AUSTRIA to share the central bloc")
	}
	if got := byPower[diplomacy.Italy]; got == nil || got != byPower[diplomacy.Turkey] {
		t.Errorf("expected ITALY and TURKEY to share one scripted agent")
	}
	if _, ok := byPower[diplomacy.England]; ok {
		t.Error("ENGLAND is unassigned and should be left to the orchestrator")
	}
}

func TestNewCoordinator_RegistersBackends(t *testing.T) {
	setup, err := config.ParseSetup([]byte(testSetup))
	if err != nil {
		t.Fatalf("ParseSetup: %v", err)
	}
	c, err := newCoordinator(context.Background(), &config.Config{}, setup, nil)
	if err != nil {
		t.Fatalf("newCoordinator: %v", err)
	}
	got := c.Backends()
	if len(got) != 2 {
		t.Fatalf("expected 2 backends, got %v", got)
	}
}

func TestDocumentPath(t *testing.T) {
	if got := documentPath("a.json", "b.json", "g1"); got != "a.json" {
		t.Errorf("flag should win, got %s", got)
	}
	if got := documentPath("", "b.json", "g1"); got != "b.json" {
		t.Errorf("setup should win over default, got %s", got)
	}
	if got := documentPath("", "", "g1"); got != "g1.json.zst" {
		t.Errorf("unexpected default %s", got)
	}
}

func TestFilterInteractions(t *testing.T) {
	items := []inference.Interaction{
		{ID: "1", GameID: "g1", Backend: "a:b", Success: true},
		{ID: "2", GameID: "g1", Backend: "a:b", Success: false},
		{ID: "3", GameID: "g2", Backend: "a:b", Success: false},
		{ID: "4", GameID: "g1", Backend: "c:d", Success: false},
	}
	got := filterInteractions(items, model.InteractionFilter{GameID: "g1", Failed: true})
	if len(got) != 2 || got[0].ID != "2" || got[1].ID != "4" {
		t.Errorf("unexpected filter result %+v", got)
	}
	got = filterInteractions(items, model.InteractionFilter{Limit: 1})
	if len(got) != 1 || got[0].ID != "1" {
		t.Errorf("limit not applied: %+v", got)
	}
}
