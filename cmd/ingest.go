package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clearhealth/pricing-cli/internal/extract"
	"github.com/clearhealth/pricing-cli/internal/ingest"
	"github.com/clearhealth/pricing-cli/internal/sink"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Normalize downloaded files into the canonical sink",
	Long: `Ingest every source with a successful fetch and a resolved extraction
config. Each source replaces its own prior price set in one transaction;
a failing source rolls back and is reported without aborting the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "ingest"))

		sources, dlog, blobs, err := openPipelineState()
		if err != nil {
			return err
		}

		sourceID, _ := cmd.Flags().GetString("source")
		targets, err := selectSources(sources, sourceID)
		if err != nil {
			return err
		}

		s, err := sink.Open(ctx, cfg.Sink)
		if err != nil {
			return eris.Wrap(err, "ingest: open sink")
		}
		defer s.Close() //nolint:errcheck

		if err := s.Migrate(ctx); err != nil {
			return eris.Wrap(err, "ingest: migrate sink")
		}

		engine := &ingest.Engine{
			Blobs:   blobs,
			Log:     dlog,
			Configs: extract.NewStore(cfg.Data.Dir),
			Sink:    s,
			Workers: cfg.Ingest.Workers,
		}

		log.Info("starting ingest", zap.Int("sources", len(targets)))

		report, err := engine.Run(ctx, targets)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		fmt.Printf("Run %s: %d documents ingested\n", report.RunID, len(report.Summaries))
		for _, sum := range report.Summaries {
			fmt.Printf("  %s %s: %d rows, %d prices, %d skipped, %d items created, %d updated, %d payers\n",
				sum.SourceID, sum.Path, sum.RowsRead, sum.PricesCreated, sum.RowsSkipped,
				sum.ItemsCreated, sum.ItemsUpdated, sum.DistinctPayers)
		}
		for _, f := range report.Failures {
			fmt.Printf("  FAILED %s (%s): %s\n", f.SourceID, f.Stage, f.Error)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("source", "", "ingest a single source by id")
	rootCmd.AddCommand(ingestCmd)
}
