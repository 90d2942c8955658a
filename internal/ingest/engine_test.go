package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearhealth/pricing-cli/internal/extract"
	"github.com/clearhealth/pricing-cli/internal/fetcher"
	"github.com/clearhealth/pricing-cli/internal/manifest"
	"github.com/clearhealth/pricing-cli/internal/model"
	"github.com/clearhealth/pricing-cli/internal/sink"
)

type engineFixture struct {
	engine *Engine
	memory *sink.MemorySink
	blobs  *fetcher.BlobStore
	log    *manifest.DownloadLog
	cfgs   *extract.Store
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	dir := t.TempDir()

	blobs, err := fetcher.NewBlobStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	log, err := manifest.OpenDownloadLog(filepath.Join(dir, "downloads.jsonl"))
	require.NoError(t, err)

	mem := sink.NewMemory()
	return &engineFixture{
		engine: &Engine{
			Blobs:   blobs,
			Log:     log,
			Configs: extract.NewStore(dir),
			Sink:    mem,
			Workers: 2,
		},
		memory: mem,
		blobs:  blobs,
		log:    log,
		cfgs:   extract.NewStore(dir),
	}
}

// seedSource stores a CSV blob, a successful fetch record, and an
// extraction config for the source.
func (f *engineFixture) seedSource(t *testing.T, sourceID, csv string) {
	t.Helper()

	hash, size, err := f.blobs.Put(strings.NewReader(csv))
	require.NoError(t, err)
	require.NoError(t, f.log.Append(model.FetchRecord{
		SourceID:    sourceID,
		Attempt:     1,
		URL:         "https://example.com/" + sourceID + ".csv",
		FetchedAt:   time.Now().UTC(),
		Outcome:     model.FetchSuccess,
		ByteSize:    size,
		ContentHash: hash,
	}))

	cfg := tallConfig()
	cfg.SourceID = sourceID
	require.NoError(t, f.cfgs.Save(cfg))
}

func TestEngine_RunIngestsSources(t *testing.T) {
	f := newEngineFixture(t)
	f.seedSource(t, "src-1", "code,description,payer,plan,price\n99213,Office Visit,Aetna,PPO,150.00\n")
	f.seedSource(t, "src-2", "code,description,payer,plan,price\n99214,Office Visit Ext,Cigna,HMO,175.00\n")

	report, err := f.engine.Run(context.Background(), []model.Source{
		{ID: "src-1", Name: "Hospital One"},
		{ID: "src-2", Name: "Hospital Two"},
	})
	require.NoError(t, err)

	assert.Empty(t, report.Failures)
	require.Len(t, report.Summaries, 2)
	assert.NotEmpty(t, report.RunID)
	assert.Len(t, f.memory.Prices("src-1"), 1)
	assert.Len(t, f.memory.Prices("src-2"), 1)
}

func TestEngine_MissingFetchIsReportedNotFatal(t *testing.T) {
	f := newEngineFixture(t)
	f.seedSource(t, "src-1", "code,description,payer,plan,price\n99213,Office Visit,Aetna,PPO,150.00\n")

	report, err := f.engine.Run(context.Background(), []model.Source{
		{ID: "src-1", Name: "Hospital One"},
		{ID: "src-never-fetched", Name: "Hospital Two"},
	})
	require.NoError(t, err)

	require.Len(t, report.Summaries, 1)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "src-never-fetched", report.Failures[0].SourceID)
	assert.Equal(t, "unpack", report.Failures[0].Stage)
}

func TestEngine_MissingConfigIsReported(t *testing.T) {
	f := newEngineFixture(t)

	hash, size, err := f.blobs.Put(strings.NewReader("code,price\n99213,1.00\n"))
	require.NoError(t, err)
	require.NoError(t, f.log.Append(model.FetchRecord{
		SourceID:    "src-3",
		Attempt:     1,
		FetchedAt:   time.Now().UTC(),
		Outcome:     model.FetchSuccess,
		ByteSize:    size,
		ContentHash: hash,
	}))

	report, err := f.engine.Run(context.Background(), []model.Source{{ID: "src-3"}})
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "resolve", report.Failures[0].Stage)
}
