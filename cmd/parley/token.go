package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/freeeve/parley/internal/auth"
)

func tokenCmd() *cobra.Command {
	var (
		viewer string
		expiry time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token [game-id]",
		Short: "Mint a spectator token",
		Long:  "Mints a viewer token for one game, or for every game when no id is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			gameID := auth.AllGames
			if len(args) == 1 {
				gameID = args[0]
			}
			tok, err := auth.NewJWTManager(cfg.SpectatorSecret).WithExpiry(expiry).GenerateViewerToken(viewer, gameID)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&viewer, "viewer", "spectator", "viewer name")
	cmd.Flags().DurationVar(&expiry, "expiry", 24*time.Hour, "token lifetime")
	return cmd
}
