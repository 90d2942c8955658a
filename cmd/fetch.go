package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clearhealth/pricing-cli/internal/fetcher"
	"github.com/clearhealth/pricing-cli/internal/manifest"
	"github.com/clearhealth/pricing-cli/internal/resilience"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download source files into the blob store",
	Long: `Fetch every source in the manifest and record the outcome in the
download log.

By default, fetches all sources. Use --source for a single source,
--retry to re-fetch only transient failures, or --pending for sources
never attempted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "fetch"))

		sources, dlog, blobs, err := openPipelineState()
		if err != nil {
			return err
		}

		sourceID, _ := cmd.Flags().GetString("source")
		retry, _ := cmd.Flags().GetBool("retry")
		pending, _ := cmd.Flags().GetBool("pending")

		targets, err := selectSources(sources, sourceID)
		if err != nil {
			return err
		}
		switch {
		case retry && pending:
			return eris.New("fetch: --retry and --pending are mutually exclusive")
		case retry:
			targets = dlog.RetryCandidates(targets, manifest.RetryPolicy{MaxAttempts: cfg.Fetch.MaxAttempts})
		case pending:
			targets = dlog.Pending(targets)
		}
		if len(targets) == 0 {
			fmt.Println("Nothing to fetch")
			return nil
		}

		f := fetcher.New(fetcher.Options{
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			Retry: resilience.FromConfig(
				cfg.Fetch.MaxAttempts,
				cfg.Fetch.InitialBackoffMs,
				cfg.Fetch.MaxBackoffMs,
				cfg.Fetch.JitterFraction,
			),
			HostRateLimit: cfg.Fetch.HostRateLimit,
			HostBurst:     cfg.Fetch.HostBurst,
		}, blobs)

		log.Info("starting fetch", zap.Int("sources", len(targets)))

		tally, err := f.FetchAll(ctx, targets, dlog, cfg.Fetch.Workers)
		if err != nil {
			return eris.Wrap(err, "fetch")
		}

		fmt.Printf("Fetched %d sources: %d success, %d transient, %d permanent, %d no file\n",
			len(targets), tally.Success, tally.Transient, tally.Permanent, tally.NoFile)
		return nil
	},
}

func init() {
	fetchCmd.Flags().String("source", "", "fetch a single source by id")
	fetchCmd.Flags().Bool("retry", false, "only re-fetch transient failures under the attempt bound")
	fetchCmd.Flags().Bool("pending", false, "only fetch sources with no attempt on record")
	rootCmd.AddCommand(fetchCmd)
}
