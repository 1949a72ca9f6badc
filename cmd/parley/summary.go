package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/freeeve/parley/internal/history"
)

func summaryCmd() *cobra.Command {
	var phases bool
	cmd := &cobra.Command{
		Use:   "summary <document>",
		Short: "Print the standings of a replay document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := history.Load(args[0])
			if err != nil {
				return err
			}
			h := history.FromDocument(doc)
			if viper.GetBool("json") {
				return printJSON(map[string]any{
					"game_id": doc.ID,
					"winners": doc.Winners,
					"phases":  len(doc.Phases),
					"centers": h.FinalCenters(),
				})
			}

			fmt.Printf("Game %s on %s, %d phases\n", doc.ID, doc.Map, len(doc.Phases))
			if len(doc.Winners) > 0 {
				fmt.Printf("Winners: %v\n", doc.Winners)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Power", "Centers", "Units"})
			for _, c := range h.FinalCenters() {
				tw.AppendRow(table.Row{c.Power, c.Centers, c.Units})
			}
			tw.Render()

			if phases {
				pw := table.NewWriter()
				pw.SetOutputMirror(os.Stdout)
				pw.AppendHeader(table.Row{"Phase", "Messages", "Orders", "Events", "Failures"})
				for _, rec := range doc.Phases {
					orders := 0
					for _, list := range rec.Orders {
						orders += len(list)
					}
					pw.AppendRow(table.Row{rec.Name, len(rec.Messages), orders, len(rec.Events), len(rec.Failures)})
				}
				pw.Render()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&phases, "phases", false, "also list every phase")
	return cmd
}
