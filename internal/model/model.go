package model

import (
	"time"

	"github.com/freeeve/parley/pkg/diplomacy"
)

// GameSummary is one archived game.
type GameSummary struct {
	ID         string     `json:"id"`
	Map        string     `json:"map"`
	Status     string     `json:"status"` // running, finished
	Winners    []string   `json:"winners,omitempty"`
	Phases     int        `json:"phases"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// LivePhase is the current board of a running game as kept in the live cache.
type LivePhase struct {
	GameID    string             `json:"game_id"`
	Phase     string             `json:"phase"`
	State     diplomacy.Snapshot `json:"state"`
	Events    []diplomacy.Event  `json:"events,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// BackendStats aggregates logged inference calls for one backend.
type BackendStats struct {
	Backend     string        `json:"backend"`
	Calls       int           `json:"calls"`
	Failures    int           `json:"failures"`
	Attempts    int           `json:"attempts"`
	MeanLatency time.Duration `json:"mean_latency_ns"`
}

// InteractionFilter narrows an interaction listing. Zero fields match all.
type InteractionFilter struct {
	GameID  string
	Backend string
	Power   string
	Failed  bool
	Limit   int
}
