package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/freeeve/parley/internal/auth"
	"github.com/freeeve/parley/internal/handler"
	"github.com/freeeve/parley/internal/repository/postgres"
	"github.com/freeeve/parley/internal/repository/redis"
	"github.com/freeeve/parley/internal/service"
)

func serveCmd() *cobra.Command {
	var (
		addr    string
		follow  []string
		origins string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the spectator API",
		Long: `Serves archived games from Postgres and running games from the Redis
live cache. Each --follow game id relays the updates its runner publishes to
websocket viewers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.SpectatorAddr
			}
			if addr == "" {
				addr = ":8080"
			}

			hub := handler.NewHub()
			rc := handler.RouterConfig{
				Hub:            hub,
				JWT:            auth.NewJWTManager(cfg.SpectatorSecret),
				AllowedOrigins: origins,
			}

			if cfg.DatabaseURL != "" {
				db, err := postgres.Connect(ctx, cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer db.Close()
				rc.Archive = postgres.NewArchive(db)
			}
			if cfg.RedisURL != "" {
				live, err := redis.NewClient(ctx, cfg.RedisURL)
				if err != nil {
					return err
				}
				defer live.Close()
				live.WithTTL(cfg.LiveTTL)
				rc.Live = live
				for _, id := range follow {
					go service.Relay(ctx, live, id, hub)
				}
			} else if len(follow) > 0 {
				return errors.New("--follow needs REDIS_URL")
			}

			srv := &http.Server{Addr: addr, Handler: handler.NewRouter(rc), ReadHeaderTimeout: 10 * time.Second}
			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Msg("Spectator API listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
				log.Info().Msg("Shutting down spectator API")
				sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				defer cancel()
				return srv.Shutdown(sctx)
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default PARLEY_SPECTATOR_ADDR or :8080)")
	cmd.Flags().StringSliceVar(&follow, "follow", nil, "game ids whose live updates are relayed")
	cmd.Flags().StringVar(&origins, "origins", "*", "allowed CORS origins")
	return cmd
}
