package fetcher

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clearhealth/pricing-cli/internal/manifest"
	"github.com/clearhealth/pricing-cli/internal/model"
)

// Tally counts fetch outcomes across one batch.
type Tally struct {
	Success   int
	Transient int
	Permanent int
	NoFile    int
}

// Add counts one record.
func (t *Tally) Add(rec model.FetchRecord) {
	switch rec.Outcome {
	case model.FetchSuccess:
		t.Success++
	case model.FetchTransientFailure:
		t.Transient++
	case model.FetchPermanentFailure:
		t.Permanent++
	case model.FetchNoFileAvailable:
		t.NoFile++
	}
}

// FetchAll fetches the given sources concurrently, bounded by workers.
// Each source is an independent unit of work; the only shared state is the
// append-only download log. Cancellation stops new fetches; in-flight
// fetches finish and their records are still appended.
func (f *Fetcher) FetchAll(ctx context.Context, sources []model.Source, log *manifest.DownloadLog, workers int) (Tally, error) {
	if workers <= 0 {
		workers = 8
	}

	var tally Tally
	recCh := make(chan model.FetchRecord)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	done := make(chan struct{})
	var appendErr error
	go func() {
		defer close(done)
		for rec := range recCh {
			tally.Add(rec)
			if err := log.Append(rec); err != nil && appendErr == nil {
				appendErr = err
			}
		}
	}()

	for _, src := range sources {
		src := src
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rec := f.Fetch(gctx, src, log.NextAttempt(src.ID))
			zap.L().Info("fetched source",
				zap.String("source", src.ID),
				zap.String("outcome", string(rec.Outcome)),
				zap.String("reason", rec.Reason),
				zap.Int64("bytes", rec.ByteSize),
			)
			recCh <- rec
			return nil
		})
	}

	err := g.Wait()
	close(recCh)
	<-done

	if appendErr != nil {
		return tally, appendErr
	}
	return tally, err
}
