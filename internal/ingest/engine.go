package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clearhealth/pricing-cli/internal/extract"
	"github.com/clearhealth/pricing-cli/internal/fetcher"
	"github.com/clearhealth/pricing-cli/internal/manifest"
	"github.com/clearhealth/pricing-cli/internal/model"
	"github.com/clearhealth/pricing-cli/internal/sink"
	"github.com/clearhealth/pricing-cli/internal/unpack"
)

// Engine runs ingestion across sources. Sources are independent; they
// share nothing but the sink, so they parallelize under a worker bound.
// Per-source failures are recorded in the run report, never fatal to the
// run; only cancellation stops it.
type Engine struct {
	Blobs   *fetcher.BlobStore
	Log     *manifest.DownloadLog
	Configs *extract.Store
	Sink    sink.Sink
	Workers int
}

// Run ingests every source with a successful fetch and a stored extraction
// config.
func (e *Engine) Run(ctx context.Context, sources []model.Source) (model.RunReport, error) {
	report := model.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	workers := e.Workers
	if workers <= 0 {
		workers = 4
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, src := range sources {
		g.Go(func() error {
			summaries, failures := e.runSource(ctx, src, report.RunID)
			mu.Lock()
			report.Summaries = append(report.Summaries, summaries...)
			report.Failures = append(report.Failures, failures...)
			mu.Unlock()
			// Source failures are reported, not propagated; only
			// cancellation aborts the group.
			return ctx.Err()
		})
	}

	err := g.Wait()
	report.CompletedAt = time.Now().UTC()
	return report, err
}

func (e *Engine) runSource(ctx context.Context, src model.Source, runID string) ([]model.IngestSummary, []model.RunFailure) {
	rec, ok := e.Log.LatestSuccess(src.ID)
	if !ok {
		return nil, []model.RunFailure{{
			SourceID: src.ID,
			Stage:    "unpack",
			Error:    "no successful fetch on record",
		}}
	}

	blobPath := e.Blobs.Path(rec.ContentHash)
	docs, err := unpack.Describe(blobPath, src.ID)
	if err != nil {
		return nil, []model.RunFailure{{
			SourceID: src.ID,
			Path:     blobPath,
			Stage:    "unpack",
			Error:    err.Error(),
		}}
	}

	cfg, err := e.Configs.Load(src.ID)
	if err != nil {
		return nil, []model.RunFailure{{
			SourceID: src.ID,
			Stage:    "resolve",
			Error:    err.Error(),
		}}
	}
	if err := extract.Validate(cfg); err != nil {
		return nil, []model.RunFailure{{
			SourceID: src.ID,
			Stage:    "resolve",
			Error:    err.Error(),
		}}
	}

	// All documents of a source share one replace transaction: a failure
	// in any of them rolls the whole source back, leaving the prior price
	// set intact.
	n := &Normalizer{Sink: e.Sink}
	summaries, err := n.IngestSource(ctx, docs, unpack.Open, cfg, runID)
	if err != nil {
		zap.L().Warn("source ingest failed",
			zap.String("source_id", src.ID),
			zap.Error(err))
		return nil, []model.RunFailure{{
			SourceID: src.ID,
			Path:     blobPath,
			Stage:    "ingest",
			Error:    err.Error(),
		}}
	}
	return summaries, nil
}
