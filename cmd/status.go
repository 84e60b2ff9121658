package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/university-rankings/internal/cachestate"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Shows the cache state of every ranking source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			statuses, err := appInstance.GetTracker().Status(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(statuses) == 0 {
				fmt.Fprintln(out, "No ranking sources registered. Run: rankings fetch --init-only")
				return nil
			}
			t := newTable(out)
			t.AppendHeader(table.Row{"Source", "Code", "Region", "Status", "Last Fetch", "Rows", "Stale", "Error"})
			for _, st := range statuses {
				if st.State == nil {
					t.AppendRow(table.Row{st.Source.Name, st.Source.Code, st.Source.Region, "No cache data", "", "", "yes", ""})
					continue
				}
				lastFetch := "Never"
				if st.State.LastSuccessfulFetch != nil {
					lastFetch = cachestate.FormatAge(st.Age)
				}
				stale := "no"
				if st.Stale {
					stale = "yes"
				}
				t.AppendRow(table.Row{
					st.Source.Name,
					st.Source.Code,
					st.Source.Region,
					st.State.Status,
					lastFetch,
					st.State.RecordsFetched,
					stale,
					cachestate.Truncate(st.State.ErrorMessage, errorColumnWidth),
				})
			}
			t.Render()
			return nil
		},
	}
}
