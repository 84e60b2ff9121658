package cmd

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/university-rankings/internal/seed"
)

func newSeedCmd() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Loads a demo dataset without scraping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := appInstance.EnsureSources(cmd.Context()); err != nil {
				return fmt.Errorf("register sources: %w", err)
			}
			data, err := seed.Demo()
			if err != nil {
				return err
			}
			res, err := seed.Load(cmd.Context(), appInstance.GetStore(), data, year)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Seeded %d entries (%d new institutions) for %d\n", res.Entries, res.NewInstitutions, year)
			codes := make([]string, 0, len(res.BySource))
			for code := range res.BySource {
				codes = append(codes, code)
			}
			sort.Strings(codes)
			t := newTable(out)
			t.AppendHeader(table.Row{"Source", "Entries"})
			for _, code := range codes {
				t.AppendRow(table.Row{code, res.BySource[code]})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", seed.Year, "ranking year to store the demo entries under")
	return cmd
}
