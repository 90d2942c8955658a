package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/clearhealth/pricing-cli/internal/manifest"
	"github.com/clearhealth/pricing-cli/internal/sink"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show fetch and ingest state per source",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sources, dlog, _, err := openPipelineState()
		if err != nil {
			return err
		}

		s, err := sink.Open(ctx, cfg.Sink)
		if err != nil {
			return eris.Wrap(err, "status: open sink")
		}
		defer s.Close() //nolint:errcheck

		// Status must work before the first ingest, so the schema is
		// created here too.
		if err := s.Migrate(ctx); err != nil {
			return eris.Wrap(err, "status: migrate sink")
		}

		latest := dlog.LatestBySource()

		fmt.Printf("%-24s %-20s %-8s %-20s %8s\n", "SOURCE", "OUTCOME", "ATTEMPT", "FETCHED", "PRICES")
		for _, src := range sources.Sources {
			outcome, attempt, fetched := "never fetched", "-", "-"
			if rec, ok := latest[src.ID]; ok {
				outcome = string(rec.Outcome)
				if rec.Reason != "" {
					outcome += " (" + rec.Reason + ")"
				}
				attempt = fmt.Sprintf("%d", rec.Attempt)
				fetched = rec.FetchedAt.Format("2006-01-02 15:04")
			}

			count, err := s.SourcePriceCount(ctx, src.ID)
			if err != nil {
				return eris.Wrapf(err, "status: price count for %s", src.ID)
			}

			fmt.Printf("%-24s %-20s %-8s %-20s %8d\n", src.ID, outcome, attempt, fetched, count)
		}

		retry := dlog.RetryCandidates(sources.Sources, manifest.RetryPolicy{MaxAttempts: cfg.Fetch.MaxAttempts})
		if len(retry) > 0 {
			ids := make([]string, len(retry))
			for i, src := range retry {
				ids[i] = src.ID
			}
			fmt.Printf("\nRetry candidates: %s\n", strings.Join(ids, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
