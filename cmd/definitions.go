package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clearhealth/pricing-cli/internal/defs"
	"github.com/clearhealth/pricing-cli/internal/sink"
)

var definitionsCmd = &cobra.Command{
	Use:   "definitions <hcpcs-file>",
	Short: "Load HCPCS/CPT code definitions into the sink",
	Long: `Parse a CMS fixed-width HCPCS record file and upsert its code
definitions. Definitions enrich ingested items with canonical long and
short descriptions; reloading a newer release file updates in place.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "definitions"))

		s, err := sink.Open(ctx, cfg.Sink)
		if err != nil {
			return eris.Wrap(err, "definitions: open sink")
		}
		defer s.Close() //nolint:errcheck

		if err := s.Migrate(ctx); err != nil {
			return eris.Wrap(err, "definitions: migrate sink")
		}

		path := args[0]
		log.Info("loading code definitions", zap.String("path", path))

		n, err := defs.LoadHCPCS(ctx, s, path)
		if err != nil {
			return eris.Wrap(err, "definitions")
		}

		fmt.Printf("Loaded %d code definitions\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(definitionsCmd)
}
