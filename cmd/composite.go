package cmd

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/university-rankings/internal/aggregate"
	"github.com/JakeFAU/university-rankings/internal/ranking"
)

type compositeOptions struct {
	region      string
	limit       int
	year        int
	institution string
}

func newCompositeCmd() *cobra.Command {
	opts := &compositeOptions{}
	cmd := &cobra.Command{
		Use:   "composite",
		Short: "Shows composite scores across sources in a region",
		Long: `A composite score is the mean of an institution's scored entries across
every source of one region, rounded to two decimals. Unscored entries are
left out.`,
		Example: `  rankings composite --region american --limit 10
  rankings composite --institution "Harvard University"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runComposite(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.region, "region", string(ranking.RegionInternational), "INTERNATIONAL or AMERICAN")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "maximum rows; 0 shows all")
	cmd.Flags().IntVar(&opts.year, "year", 0, "ranking year; 0 covers every year")
	cmd.Flags().StringVar(&opts.institution, "institution", "", "show one institution's composite in every region")
	return cmd
}

func runComposite(cmd *cobra.Command, opts *compositeOptions) error {
	region, err := ranking.ParseRegion(opts.region)
	if err != nil {
		return err
	}
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	store := appInstance.GetStore()

	if opts.institution != "" {
		res, err := aggregate.ForInstitution(cmd.Context(), store, opts.institution)
		var notFound *aggregate.InstitutionNotFoundError
		if errors.As(err, &notFound) {
			fmt.Fprintf(out, "Institution %q not found.\n", notFound.Name)
			for _, s := range notFound.Suggestions {
				fmt.Fprintf(out, "  did you mean: %s\n", s)
			}
			return nil
		}
		if err != nil {
			return err
		}
		t := newTable(out)
		t.SetTitle(res.Institution.Name)
		t.AppendHeader(table.Row{"Region", "Composite"})
		for _, r := range []ranking.Region{ranking.RegionInternational, ranking.RegionAmerican} {
			t.AppendRow(table.Row{r, formatScore(res.Scores[r])})
		}
		t.Render()
		return nil
	}

	standings, err := aggregate.Leaderboard(cmd.Context(), store, region, opts.year, opts.limit)
	if err != nil {
		return err
	}
	if len(standings) == 0 {
		fmt.Fprintf(out, "No scored entries for region %s.\n", region)
		return nil
	}
	t := newTable(out)
	t.SetTitle(fmt.Sprintf("%s composite", region))
	t.AppendHeader(table.Row{"#", "Institution", "Country", "Composite", "Sources"})
	for i, s := range standings {
		t.AppendRow(table.Row{i + 1, s.Institution.Name, s.Institution.Country, fmt.Sprintf("%.2f", s.Composite), s.Sources})
	}
	t.Render()
	return nil
}

func formatScore(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
