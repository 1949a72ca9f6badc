package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/freeeve/parley/internal/auth"
	"github.com/freeeve/parley/internal/config"
	"github.com/freeeve/parley/internal/handler"
	"github.com/freeeve/parley/internal/inference"
	"github.com/freeeve/parley/internal/logger"
	"github.com/freeeve/parley/internal/orchestrator"
	"github.com/freeeve/parley/internal/repository/postgres"
	"github.com/freeeve/parley/internal/repository/redis"
	"github.com/freeeve/parley/internal/repository/sqlite"
	"github.com/freeeve/parley/internal/service"
	"github.com/freeeve/parley/internal/telemetry"
	"github.com/freeeve/parley/pkg/adjudicator"
)

type runOptions struct {
	setup   string
	out     string
	gameID  string
	serve   string
	archive bool
}

func runCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Play one game from a setup file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGame(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.setup, "setup", "s", "game.yaml", "game setup file")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "replay document path (.zst compresses)")
	cmd.Flags().StringVar(&opts.gameID, "game-id", "", "game id (default from setup, else random)")
	cmd.Flags().StringVar(&opts.serve, "serve", "", "serve the spectator API on this address while playing (default PARLEY_SPECTATOR_ADDR)")
	cmd.Flags().BoolVar(&opts.archive, "archive", false, "store the finished game in Postgres")
	return cmd
}

// liveStore is a live cache the spectator feed writes and the API reads.
type liveStore interface {
	service.LiveStore
	handler.LiveSource
}

func runGame(ctx context.Context, opts runOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setup, err := config.LoadSetup(opts.setup)
	if err != nil {
		return err
	}

	gameID := opts.gameID
	if gameID == "" {
		gameID = setup.GameID
	}
	if gameID == "" {
		gameID = uuid.NewString()
	}
	glog := logger.ForGame(gameID)

	shutdown, err := telemetry.Setup(ctx, "parley", cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			glog.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}()

	rec, closeRec, err := openRecorder(cfg)
	if err != nil {
		return err
	}
	defer closeRec()

	llm, err := newCoordinator(ctx, cfg, setup, rec)
	if err != nil {
		return err
	}
	agents, err := buildAgents(setup, llm, gameID)
	if err != nil {
		return err
	}

	engine := adjudicator.NewProcess(setup.Engine.Command, setup.Engine.Args...)
	if err := engine.Start(ctx, setup.Map); err != nil {
		return fmt.Errorf("start adjudicator: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			glog.Warn().Err(err).Msg("Adjudicator close failed")
		}
	}()

	hub := handler.NewHub()
	live, closeLive, err := openLive(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLive()

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(glog),
		orchestrator.WithObserver(service.NewSpectator(live, hub)),
	}

	var archiveSrc handler.ArchiveSource
	if opts.archive {
		if cfg.DatabaseURL == "" {
			return errors.New("--archive needs DATABASE_URL")
		}
		db, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		archive := postgres.NewArchive(db)
		orchOpts = append(orchOpts, orchestrator.WithArchive(archive))
		archiveSrc = archive
	}

	if addr := serveAddr(opts.serve, cfg); addr != "" {
		srv := &http.Server{
			Addr: addr,
			Handler: handler.NewRouter(handler.RouterConfig{
				Hub:     hub,
				Live:    live,
				Archive: archiveSrc,
				JWT:     auth.NewJWTManager(cfg.SpectatorSecret),
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			glog.Info().Str("addr", addr).Msg("Spectator API listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				glog.Error().Err(err).Msg("Spectator API failed")
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	orch, err := orchestrator.New(orchestrator.Config{
		GameID:            gameID,
		Map:               setup.Map,
		NegotiationRounds: setup.NegotiationRounds,
		MaxYear:           setup.MaxYear,
		MaxPhases:         setup.MaxPhases,
	}, engine, agents, orchOpts...)
	if err != nil {
		return err
	}

	glog.Info().Int("agents", len(agents)).Str("map", setup.Map).Msg("Game starting")
	out, runErr := orch.Run(ctx)

	path := documentPath(opts.out, setup.Out, gameID)
	if err := orch.History().Document().Save(path); err != nil {
		glog.Error().Err(err).Str("path", path).Msg("Saving replay document failed")
		if runErr == nil {
			return err
		}
	} else {
		glog.Info().Str("path", path).Msg("Replay document written")
	}
	if runErr != nil {
		return runErr
	}
	return printOutcome(out)
}

func serveAddr(flag string, cfg *config.Config) string {
	if flag != "" {
		return flag
	}
	return cfg.SpectatorAddr
}

func documentPath(flag, fromSetup, gameID string) string {
	switch {
	case flag != "":
		return flag
	case fromSetup != "":
		return fromSetup
	default:
		return gameID + ".json.zst"
	}
}

// openRecorder logs interactions to the SQLite store and, when a directory
// is configured, to compressed JSONL files as well.
func openRecorder(cfg *config.Config) (inference.Recorder, func(), error) {
	var recs inference.MultiRecorder
	var closers []func() error

	if cfg.InteractionDB != "" {
		store, err := sqlite.Open(cfg.InteractionDB)
		if err != nil {
			return nil, nil, err
		}
		recs = append(recs, store)
		closers = append(closers, store.Close)
	}
	if cfg.InteractionLogDir != "" {
		if err := os.MkdirAll(cfg.InteractionLogDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create interaction log dir: %w", err)
		}
		jl := inference.NewJSONLRecorder(cfg.InteractionLogDir, "interactions")
		recs = append(recs, jl)
		closers = append(closers, jl.Close)
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn().Err(err).Msg("Closing interaction log failed")
			}
		}
	}
	return recs, closeAll, nil
}

// openLive uses Redis when configured and an in-process cache otherwise.
func openLive(ctx context.Context, cfg *config.Config) (liveStore, func(), error) {
	if cfg.RedisURL == "" {
		return service.NewMemoryLive(), func() {}, nil
	}
	rc, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	rc.WithTTL(cfg.LiveTTL)
	return rc, func() { _ = rc.Close() }, nil
}

func printOutcome(out *orchestrator.Outcome) error {
	if viper.GetBool("json") {
		return printJSON(out)
	}
	fmt.Printf("Game %s ended (%s) at %s after %d phases\n", out.GameID, out.Reason, out.FinalPhase, out.Phases)
	if len(out.Winners) > 0 {
		fmt.Printf("Winners: %v\n", out.Winners)
	}

	type row struct {
		power   string
		centers int
	}
	rows := make([]row, 0, len(out.Centers))
	for p, n := range out.Centers {
		rows = append(rows, row{string(p), n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].centers != rows[j].centers {
			return rows[i].centers > rows[j].centers
		}
		return rows[i].power < rows[j].power
	})

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Power", "Centers"})
	for _, r := range rows {
		tw.AppendRow(table.Row{r.power, r.centers})
	}
	tw.Render()
	return nil
}
