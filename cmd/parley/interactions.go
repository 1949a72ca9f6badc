package main

import (
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/freeeve/parley/internal/inference"
	"github.com/freeeve/parley/internal/logger"
	"github.com/freeeve/parley/internal/model"
	"github.com/freeeve/parley/internal/repository/sqlite"
)

func interactionsCmd() *cobra.Command {
	var (
		dbPath string
		file   string
		f      model.InteractionFilter
		list   bool
	)
	cmd := &cobra.Command{
		Use:   "interactions",
		Short: "Inspect logged model calls",
		Long: `Without flags, prints per-backend call statistics from the interaction
store. --list or --failed prints individual calls; --file reads a compressed
JSONL log instead of the store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				items, err := inference.ReadJSONL(file)
				if err != nil {
					return err
				}
				return printInteractions(filterInteractions(items, f))
			}

			if dbPath == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				dbPath = cfg.InteractionDB
			}
			store, err := sqlite.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if list || f.Failed {
				items, err := store.ListInteractions(cmd.Context(), f)
				if err != nil {
					return err
				}
				return printInteractions(items)
			}
			stats, err := store.BackendStats(cmd.Context(), f.GameID)
			if err != nil {
				return err
			}
			return printStats(stats)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "interaction store (default PARLEY_INTERACTION_DB)")
	cmd.Flags().StringVar(&file, "file", "", "read a JSONL log file instead of the store")
	cmd.Flags().StringVar(&f.GameID, "game", "", "game id filter")
	cmd.Flags().StringVar(&f.Backend, "backend", "", "backend id filter")
	cmd.Flags().StringVar(&f.Power, "power", "", "power filter")
	cmd.Flags().BoolVar(&f.Failed, "failed", false, "only failed calls")
	cmd.Flags().BoolVar(&list, "list", false, "list calls instead of statistics")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum calls listed")
	return cmd
}

func filterInteractions(items []inference.Interaction, f model.InteractionFilter) []inference.Interaction {
	var out []inference.Interaction
	for _, in := range items {
		switch {
		case f.GameID != "" && in.GameID != f.GameID:
		case f.Backend != "" && in.Backend != f.Backend:
		case f.Power != "" && in.Power != f.Power:
		case f.Failed && in.Success:
		default:
			out = append(out, in)
		}
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

func printInteractions(items []inference.Interaction) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Time", "Backend", "Power", "Phase", "Purpose", "Attempts", "Latency", "Error"})
	for _, in := range items {
		tw.AppendRow(table.Row{
			in.Time.Format(time.DateTime), in.Backend, in.Power, in.Phase, in.Purpose,
			in.Attempts, in.Latency.Round(time.Millisecond), logger.Truncate(in.Error, 60),
		})
	}
	tw.Render()
	return nil
}

func printStats(stats []model.BackendStats) error {
	if viper.GetBool("json") {
		return printJSON(stats)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Backend", "Calls", "Failures", "Attempts", "Mean latency"})
	for _, s := range stats {
		tw.AppendRow(table.Row{s.Backend, s.Calls, s.Failures, s.Attempts, s.MeanLatency.Round(time.Millisecond)})
	}
	tw.Render()
	return nil
}
