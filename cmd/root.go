package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clearhealth/pricing-cli/internal/config"
	"github.com/clearhealth/pricing-cli/internal/fetcher"
	"github.com/clearhealth/pricing-cli/internal/manifest"
	"github.com/clearhealth/pricing-cli/internal/model"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pricing-cli",
	Short: "Hospital price transparency ingestion pipeline",
	Long:  "Fetches hospital standard-charge files, profiles their schemas, resolves extraction configs, and normalizes prices into the canonical sink.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Data tree layout under cfg.Data.Dir.
func manifestPath() string    { return filepath.Join(cfg.Data.Dir, cfg.Data.ManifestFile) }
func downloadLogPath() string { return filepath.Join(cfg.Data.Dir, "downloads.jsonl") }
func blobDir() string         { return filepath.Join(cfg.Data.Dir, "blobs") }

func manifestSources() (*manifest.SourceManifest, error) {
	return manifest.LoadSources(manifestPath())
}

func openPipelineState() (*manifest.SourceManifest, *manifest.DownloadLog, *fetcher.BlobStore, error) {
	sources, err := manifest.LoadSources(manifestPath())
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := manifest.OpenDownloadLog(downloadLogPath())
	if err != nil {
		return nil, nil, nil, err
	}
	blobs, err := fetcher.NewBlobStore(blobDir())
	if err != nil {
		return nil, nil, nil, err
	}
	return sources, log, blobs, nil
}

// selectSources narrows the manifest to the --source flag when given.
func selectSources(sources *manifest.SourceManifest, sourceID string) ([]model.Source, error) {
	if sourceID == "" {
		return sources.Sources, nil
	}
	src, ok := sources.Get(sourceID)
	if !ok {
		return nil, fmt.Errorf("source %q not in manifest", sourceID)
	}
	return []model.Source{src}, nil
}
