package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/freeeve/parley/internal/auth"
	"github.com/freeeve/parley/internal/middleware"
)

// RouterConfig wires the spectator server.
type RouterConfig struct {
	Hub     *Hub
	Live    LiveSource
	Archive ArchiveSource

	// JWT enables viewer tokens; nil serves everyone.
	JWT *auth.JWTManager

	AllowedOrigins string
}

// NewRouter builds the spectator HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.AllowedOrigins == "" {
		cfg.AllowedOrigins = "*"
	}
	games := NewGameHandler(cfg.Live, cfg.Archive)

	r := chi.NewRouter()
	r.Use(middleware.Recover)
	r.Use(middleware.Logger)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respond(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.JWT))
		r.Get("/games", games.ListGames)
		r.Get("/games/{id}", games.GetGame)
		r.Get("/games/{id}/document", games.GetDocument)
		if cfg.Hub != nil {
			r.Get("/ws", NewWSHandler(cfg.Hub).ServeWS)
		}
	})
	return r
}
