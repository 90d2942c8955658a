// Package fetcher downloads hospital price files and classifies every
// attempt into a durable FetchRecord. Errors never cross this boundary:
// every call yields a record, and the caller decides pipeline severity.
package fetcher

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/clearhealth/pricing-cli/internal/model"
	"github.com/clearhealth/pricing-cli/internal/resilience"
)

// Options configures the fetcher.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	Retry     resilience.RetryConfig
	// HostRateLimit caps requests/sec per host. Several hosts serve many
	// of this system's sources (shared health-system domains), so uncapped
	// concurrency risks self-inflicted throttling.
	HostRateLimit float64
	HostBurst     int
}

// Fetcher retrieves source files over HTTP(S) and FTP and persists
// successful payloads in a content-addressed blob store.
type Fetcher struct {
	http  *httpClient
	ftp   *ftpClient
	blobs *BlobStore
	retry resilience.RetryConfig
}

// New creates a Fetcher writing payloads into the given blob store.
func New(opts Options, blobs *BlobStore) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "pricing-cli/1.0"
	}
	if opts.HostRateLimit <= 0 {
		opts.HostRateLimit = 2
	}
	if opts.HostBurst <= 0 {
		opts.HostBurst = 4
	}
	return &Fetcher{
		http:  newHTTPClient(opts),
		ftp:   newFTPClient(opts.Timeout),
		blobs: blobs,
		retry: opts.Retry,
	}
}

// Fetch attempts to download one source. It tries the source's candidate
// URLs in order until one succeeds. The attempt index is supplied by the
// caller (from the download log) so records stay append-only and keyed by
// (source, attempt).
func (f *Fetcher) Fetch(ctx context.Context, src model.Source, attempt int) model.FetchRecord {
	rec := model.FetchRecord{
		SourceID:  src.ID,
		Attempt:   attempt,
		FetchedAt: time.Now().UTC(),
	}

	if !src.HasURL() {
		rec.Outcome = model.FetchNoFileAvailable
		return rec
	}

	log := zap.L().With(zap.String("component", "fetcher"), zap.String("source", src.ID))

	// First candidate that succeeds wins. If none succeeds, a transient
	// classification from any candidate takes precedence over a permanent
	// one so the source stays eligible for retry.
	var firstTransient *model.FetchRecord
	for _, raw := range src.URLs {
		attemptRec := f.fetchURL(ctx, src, raw)
		attemptRec.SourceID = src.ID
		attemptRec.Attempt = attempt
		attemptRec.FetchedAt = rec.FetchedAt

		if attemptRec.Succeeded() {
			return attemptRec
		}
		log.Warn("candidate url failed",
			zap.String("url", raw),
			zap.String("outcome", string(attemptRec.Outcome)),
			zap.String("reason", attemptRec.Reason),
		)
		if attemptRec.Outcome == model.FetchTransientFailure && firstTransient == nil {
			r := attemptRec
			firstTransient = &r
		}
		rec = attemptRec

		if ctx.Err() != nil {
			break
		}
	}

	if firstTransient != nil {
		return *firstTransient
	}
	return rec
}

// fetchURL downloads one candidate URL, retrying transient failures with
// backoff before settling on a classification.
func (f *Fetcher) fetchURL(ctx context.Context, src model.Source, raw string) model.FetchRecord {
	u, err := url.Parse(raw)
	if err != nil {
		return model.FetchRecord{
			URL:     raw,
			Outcome: model.FetchPermanentFailure,
			Reason:  "bad-url",
		}
	}

	var rec model.FetchRecord
	retryErr := resilience.Do(ctx, f.retry, func(ctx context.Context) error {
		switch u.Scheme {
		case "ftp":
			rec = f.ftp.fetch(ctx, raw, f.blobs)
		default:
			rec = f.http.fetch(ctx, raw, src.ContentHint, f.blobs)
		}
		if rec.Outcome == model.FetchTransientFailure {
			return resilience.NewTransientError(errTransientOutcome, 0)
		}
		return nil
	})
	_ = retryErr // classification already captured in rec

	return rec
}

// errTransientOutcome is a marker driving the in-process retry loop; the
// record itself carries the real reason.
var errTransientOutcome = &outcomeError{}

type outcomeError struct{}

func (*outcomeError) Error() string { return "transient fetch outcome" }
