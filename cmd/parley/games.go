package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/freeeve/parley/internal/history"
	"github.com/freeeve/parley/internal/logger"
	"github.com/freeeve/parley/internal/repository/postgres"
	"github.com/freeeve/parley/internal/repository/redis"
	"github.com/freeeve/parley/pkg/diplomacy"
)

func gamesCmd() *cobra.Command {
	games := &cobra.Command{Use: "games", Short: "Manage archived games"}
	games.AddCommand(gamesListCmd())
	games.AddCommand(gamesImportCmd())
	games.AddCommand(gamesDeleteCmd())
	games.AddCommand(gamesMessagesCmd())
	return games
}

// withArchive opens the Postgres archive for the duration of fn.
func withArchive(ctx context.Context, fn func(a *postgres.Archive) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	db, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(postgres.NewArchive(db))
}

func gamesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived games",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd.Context(), func(a *postgres.Archive) error {
				items, err := a.ListGames(cmd.Context())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Map", "Status", "Phases", "Winners", "Created"})
				for _, g := range items {
					tw.AppendRow(table.Row{g.ID, g.Map, g.Status, g.Phases, strings.Join(g.Winners, ","), g.CreatedAt.Format(time.DateTime)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func gamesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <document>...",
		Short: "Store replay documents in the archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd.Context(), func(a *postgres.Archive) error {
				for _, path := range args {
					doc, err := history.Load(path)
					if err != nil {
						return err
					}
					if err := a.SaveGame(cmd.Context(), doc); err != nil {
						return fmt.Errorf("import %s: %w", path, err)
					}
					glog := logger.ForGame(doc.ID)
					glog.Info().Str("path", path).Int("phases", len(doc.Phases)).Msg("Imported game")
				}
				return nil
			})
		},
	}
}

func gamesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <game-id>",
		Short: "Remove a game from the archive and the live cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := withArchive(cmd.Context(), func(a *postgres.Archive) error {
				return a.DeleteGame(cmd.Context(), id)
			}); err != nil {
				return err
			}
			return clearLive(cmd.Context(), id)
		},
	}
}

func clearLive(ctx context.Context, id string) error {
	cfg, err := loadConfig()
	if err != nil || cfg.RedisURL == "" {
		return err
	}
	rc, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rc.Close()
	return rc.DeleteGame(ctx, id)
}

func gamesMessagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "messages <game-id> <power> <power>",
		Short: "Print the press exchanged between two powers",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, ok := diplomacy.ParsePower(args[1])
			if !ok {
				return fmt.Errorf("unknown power %q", args[1])
			}
			y, ok := diplomacy.ParsePower(args[2])
			if !ok {
				return fmt.Errorf("unknown power %q", args[2])
			}
			return withArchive(cmd.Context(), func(a *postgres.Archive) error {
				msgs, err := a.MessagesBetween(cmd.Context(), args[0], x, y)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(msgs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Phase", "From", "To", "Message"})
				for _, m := range msgs {
					tw.AppendRow(table.Row{m.Phase, m.Sender, m.Recipient, logger.Truncate(m.Body, 100)})
				}
				tw.Render()
				return nil
			})
		},
	}
}
