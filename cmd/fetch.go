package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/university-rankings/internal/cachestate"
	"github.com/JakeFAU/university-rankings/internal/ingest"
)

const errorColumnWidth = 100

type fetchOptions struct {
	sources  []string
	all      bool
	initOnly bool
}

func newFetchCmd() *cobra.Command {
	opts := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetches ranking data from one or more sources",
		Long: `Registers the default ranking sources, then fetches, normalizes and stores
the selected sources. Each source succeeds or fails on its own; a failure is
recorded in that source's cache state and never aborts the others.`,
		Example: `  rankings fetch --source qs
  rankings fetch --source qs --source arwu
  rankings fetch --all
  rankings fetch --init-only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetch(cmd, opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.sources, "source", nil, "source code to fetch (repeatable)")
	cmd.Flags().BoolVar(&opts.all, "all", false, "fetch every source that has an extractor")
	cmd.Flags().BoolVar(&opts.initOnly, "init-only", false, "only register the default sources")
	cmd.MarkFlagsMutuallyExclusive("source", "all")
	cmd.MarkFlagsMutuallyExclusive("source", "init-only")
	cmd.MarkFlagsMutuallyExclusive("all", "init-only")
	return cmd
}

func runFetch(cmd *cobra.Command, opts *fetchOptions) error {
	if !opts.initOnly && !opts.all && len(opts.sources) == 0 {
		return errors.New("one of --source, --all or --init-only is required")
	}
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	created, err := appInstance.EnsureSources(cmd.Context())
	if err != nil {
		return fmt.Errorf("register sources: %w", err)
	}
	fmt.Fprintf(out, "Registered %d new ranking sources\n", created)
	if opts.initOnly {
		return nil
	}

	codes := opts.sources
	if opts.all {
		codes = appInstance.GetRegistry().Codes()
	}
	report, err := appInstance.GetOrchestrator().Run(cmd.Context(), codes)
	var unknown *ingest.UnknownSourceError
	if errors.As(err, &unknown) {
		return err
	}
	renderReport(cmd, report)
	if err != nil {
		return fmt.Errorf("fetch interrupted: %w", err)
	}
	return nil
}

func renderReport(cmd *cobra.Command, report ingest.Report) {
	t := newTable(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Source", "Outcome", "Rows", "New Institutions", "Created", "Updated", "Skipped", "Duration", "Error"})
	for _, s := range report.Sources {
		t.AppendRow(table.Row{
			s.Code,
			s.Outcome,
			s.Rows,
			s.NewInstitutions,
			s.Created,
			s.Updated,
			s.Skipped,
			s.Duration.Round(time.Millisecond),
			cachestate.Truncate(s.Error, errorColumnWidth),
		})
	}
	t.AppendFooter(table.Row{
		"", fmt.Sprintf("%d ok / %d failed / %d skipped",
			report.Count(ingest.OutcomeSuccess),
			report.Count(ingest.OutcomeFailed),
			report.Count(ingest.OutcomeSkipped)),
	})
	t.Render()
}
