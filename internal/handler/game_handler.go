package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/freeeve/parley/internal/auth"
	"github.com/freeeve/parley/internal/history"
	"github.com/freeeve/parley/internal/model"
	"github.com/freeeve/parley/internal/repository"
)

// LiveSource reads the board of running games.
type LiveSource interface {
	GetPhase(ctx context.Context, gameID string) (*model.LivePhase, error)
}

// ArchiveSource reads finished games.
type ArchiveSource interface {
	LoadGame(ctx context.Context, id string) (*history.Document, error)
	ListGames(ctx context.Context) ([]model.GameSummary, error)
}

// GameView is the response of GET /games/{id}.
type GameView struct {
	GameID  string           `json:"game_id"`
	Status  string           `json:"status"` // running, finished
	Live    *model.LivePhase `json:"live,omitempty"`
	Winners []string         `json:"winners,omitempty"`
	Phases  int              `json:"phases,omitempty"`
}

// GameHandler serves read-only game views. Either source may be nil.
type GameHandler struct {
	live    LiveSource
	archive ArchiveSource
}

// NewGameHandler creates a GameHandler.
func NewGameHandler(live LiveSource, archive ArchiveSource) *GameHandler {
	return &GameHandler{live: live, archive: archive}
}

// ListGames handles GET /games.
func (h *GameHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	games := []model.GameSummary{}
	if h.archive != nil {
		all, err := h.archive.ListGames(r.Context())
		if err != nil {
			fail(w, r, http.StatusInternalServerError, "failed to list games", err)
			return
		}
		for _, g := range all {
			if auth.CanView(r.Context(), g.ID) {
				games = append(games, g)
			}
		}
	}
	respond(w, r, http.StatusOK, games)
}

// GetGame handles GET /games/{id}: the live board when the game is running,
// otherwise the archived summary.
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !auth.CanView(r.Context(), id) {
		fail(w, r, http.StatusForbidden, auth.ErrWrongGame.Error(), nil)
		return
	}

	if h.live != nil {
		lp, err := h.live.GetPhase(r.Context(), id)
		if err != nil {
			fail(w, r, http.StatusInternalServerError, "failed to load game", err)
			return
		}
		if lp != nil {
			respond(w, r, http.StatusOK, GameView{GameID: id, Status: "running", Live: lp})
			return
		}
	}

	doc, ok := h.loadDocument(w, r, id)
	if !ok {
		return
	}
	view := GameView{GameID: id, Status: "finished", Phases: len(doc.Phases)}
	for _, p := range doc.Winners {
		view.Winners = append(view.Winners, string(p))
	}
	respond(w, r, http.StatusOK, view)
}

// GetDocument handles GET /games/{id}/document: the full replay document.
func (h *GameHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !auth.CanView(r.Context(), id) {
		fail(w, r, http.StatusForbidden, auth.ErrWrongGame.Error(), nil)
		return
	}
	doc, ok := h.loadDocument(w, r, id)
	if !ok {
		return
	}
	respond(w, r, http.StatusOK, doc)
}

func (h *GameHandler) loadDocument(w http.ResponseWriter, r *http.Request, id string) (*history.Document, bool) {
	if h.archive == nil {
		fail(w, r, http.StatusNotFound, "game not found", nil)
		return nil, false
	}
	doc, err := h.archive.LoadGame(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		fail(w, r, http.StatusNotFound, "game not found", nil)
		return nil, false
	}
	if err != nil {
		fail(w, r, http.StatusInternalServerError, "failed to load game", err)
		return nil, false
	}
	return doc, true
}
