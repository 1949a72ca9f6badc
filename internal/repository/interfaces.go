package repository

import (
	"context"
	"errors"

	"github.com/freeeve/parley/internal/history"
	"github.com/freeeve/parley/internal/inference"
	"github.com/freeeve/parley/internal/model"
	"github.com/freeeve/parley/pkg/diplomacy"
)

// ErrNotFound is returned when a game is not stored.
var ErrNotFound = errors.New("game not found")

// GameArchive stores finished games (Postgres).
type GameArchive interface {
	SaveGame(ctx context.Context, doc history.Document) error
	LoadGame(ctx context.Context, id string) (*history.Document, error)
	ListGames(ctx context.Context) ([]model.GameSummary, error)
	DeleteGame(ctx context.Context, id string) error
}

// LiveCache holds the board of running games and fans out their updates (Redis).
type LiveCache interface {
	SetPhase(ctx context.Context, gameID string, snap diplomacy.Snapshot, events []diplomacy.Event) error
	GetPhase(ctx context.Context, gameID string) (*model.LivePhase, error)
	Publish(ctx context.Context, gameID string, payload []byte) error
	Subscribe(ctx context.Context, gameID string) (<-chan []byte, func() error)
	DeleteGame(ctx context.Context, gameID string) error
}

// InteractionStore keeps every inference call for offline analysis (SQLite).
type InteractionStore interface {
	inference.Recorder
	ListInteractions(ctx context.Context, f model.InteractionFilter) ([]inference.Interaction, error)
	BackendStats(ctx context.Context, gameID string) ([]model.BackendStats, error)
	Close() error
}
