package main

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clearhealth/pricing-cli/internal/extract"
	"github.com/clearhealth/pricing-cli/internal/profile"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve extraction configs from stored profiles",
	Long: `Combine each source's stored schema profile with its operator
overrides (if any) into an extraction config. Sources whose profile is
too ambiguous to bind are reported as incomplete; add an overrides file
under the data tree and re-run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := zap.L().With(zap.String("command", "resolve"))

		sources, err := manifestSources()
		if err != nil {
			return err
		}

		sourceID, _ := cmd.Flags().GetString("source")
		targets, err := selectSources(sources, sourceID)
		if err != nil {
			return err
		}

		profiles := profile.NewStore(cfg.Data.Dir)
		configs := extract.NewStore(cfg.Data.Dir)

		resolved, incomplete, skipped := 0, 0, 0
		for _, src := range targets {
			prof, err := profiles.Load(src.ID)
			if err != nil {
				log.Warn("no stored profile", zap.String("source", src.ID), zap.Error(err))
				skipped++
				continue
			}

			ov, err := configs.LoadOverrides(src.ID)
			if err != nil {
				return eris.Wrapf(err, "resolve: overrides for %s", src.ID)
			}

			ec, err := extract.Resolve(prof, ov)
			if err != nil {
				if errors.Is(err, extract.ErrConfigIncomplete) {
					log.Warn("config incomplete", zap.String("source", src.ID), zap.Error(err))
					incomplete++
					continue
				}
				return eris.Wrapf(err, "resolve: %s", src.ID)
			}

			if err := configs.Save(ec); err != nil {
				return eris.Wrapf(err, "resolve: save %s", src.ID)
			}
			log.Info("resolved config",
				zap.String("source", src.ID),
				zap.String("layout", string(ec.Layout)),
				zap.Int("payer_columns", len(ec.PayerColumns)),
			)
			resolved++
		}

		fmt.Printf("Resolved %d configs, %d incomplete, %d without profiles\n",
			resolved, incomplete, skipped)
		return nil
	},
}

func init() {
	resolveCmd.Flags().String("source", "", "resolve a single source by id")
	rootCmd.AddCommand(resolveCmd)
}
