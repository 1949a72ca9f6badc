// Command parley runs LLM-played Diplomacy games and inspects their records.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/freeeve/parley/internal/config"
	"github.com/freeeve/parley/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Diplomacy games played by language models",
	Long: `Parley runs full Diplomacy games in which every power is played by a
language model agent (or a bloc of powers by one agent). An external
adjudicator resolves orders; parley drives phases, negotiation, retries and
the game record.

Commands:
- run: play one game from a setup file and write its replay document.
- summary: print the standings of a replay document.
- interactions: inspect the logged model calls.
- games: list, import and delete archived games.
- serve: run the spectator API over the archive and live cache.
- token: mint a spectator token.`,
	SilenceUsage: true,
}

func main() {
	logger.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("parley failed")
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PARLEY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(interactionsCmd())
	rootCmd.AddCommand(gamesCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

// loadConfig reads the environment config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
