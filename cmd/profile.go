package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clearhealth/pricing-cli/internal/model"
	"github.com/clearhealth/pricing-cli/internal/profile"
	"github.com/clearhealth/pricing-cli/internal/unpack"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Profile downloaded files and store schema profiles",
	Long: `Unpack the latest successful download of each source and profile its
schema: header row, column roles, layout shape, payer columns, and
placeholder sentinels. Profiles are stored under the data tree for the
resolve step.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := zap.L().With(zap.String("command", "profile"))

		sources, dlog, blobs, err := openPipelineState()
		if err != nil {
			return err
		}

		sourceID, _ := cmd.Flags().GetString("source")
		targets, err := selectSources(sources, sourceID)
		if err != nil {
			return err
		}

		prof := profile.New(cfg.Profile)
		store := profile.NewStore(cfg.Data.Dir)

		profiled, skipped := 0, 0
		for _, src := range targets {
			rec, ok := dlog.LatestSuccess(src.ID)
			if !ok {
				log.Warn("no successful fetch on record", zap.String("source", src.ID))
				skipped++
				continue
			}

			docs, err := unpack.Describe(blobs.Path(rec.ContentHash), src.ID)
			if err != nil {
				log.Warn("unpack failed", zap.String("source", src.ID), zap.Error(err))
				skipped++
				continue
			}

			// One profile per source. Archives sometimes carry a small
			// dictionary or readme sheet next to the charge file, so the
			// largest member is the one profiled.
			doc := largestDocument(docs)
			r, err := unpack.Open(doc)
			if err != nil {
				log.Warn("open document failed", zap.String("source", src.ID), zap.Error(err))
				skipped++
				continue
			}
			p, err := prof.Profile(doc, r)
			_ = r.Close()
			if err != nil {
				log.Warn("profile failed", zap.String("source", src.ID), zap.Error(err))
				skipped++
				continue
			}

			if err := store.Save(p); err != nil {
				return eris.Wrapf(err, "profile: save %s", src.ID)
			}
			log.Info("profiled source",
				zap.String("source", src.ID),
				zap.String("layout", string(p.Layout)),
				zap.Int("columns", len(p.Columns)),
				zap.Int("payer_columns", len(p.PayerColumns)),
			)
			profiled++
		}

		fmt.Printf("Profiled %d sources, %d skipped\n", profiled, skipped)
		return nil
	},
}

// largestDocument picks the biggest tabular member by uncompressed size.
// Ties keep the earlier member so the choice is stable across runs.
func largestDocument(docs []model.RawDocument) model.RawDocument {
	best := docs[0]
	for _, doc := range docs[1:] {
		if doc.ByteSize > best.ByteSize {
			best = doc
		}
	}
	return best
}

func init() {
	profileCmd.Flags().String("source", "", "profile a single source by id")
	rootCmd.AddCommand(profileCmd)
}
