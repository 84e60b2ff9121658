package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newStaleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stale",
		Short: "Lists sources whose cached data needs a refresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			stale, err := appInstance.GetTracker().Stale(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(stale) == 0 {
				fmt.Fprintln(out, "All caches are up to date!")
				return nil
			}

			t := newTable(out)
			t.AppendHeader(table.Row{"Source", "Code", "Reason"})
			suggested := ""
			registry := appInstance.GetRegistry()
			for _, s := range stale {
				t.AppendRow(table.Row{s.Name, s.Code, s.Reason})
				if suggested == "" && registry.Has(s.Code) {
					suggested = s.Code
				}
			}
			t.Render()

			fmt.Fprintln(out)
			fmt.Fprintln(out, "To refresh:")
			if suggested != "" {
				fmt.Fprintf(out, "  rankings fetch --source %s\n", suggested)
			}
			fmt.Fprintln(out, "  rankings fetch --all")
			return nil
		},
	}
}
