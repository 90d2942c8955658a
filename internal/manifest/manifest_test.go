package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearhealth/pricing-cli/internal/model"
)

func writeManifest(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadSources(t *testing.T) {
	path := writeManifest(t, `sources:
  - id: mercy-general
    name: Mercy General Hospital
    urls:
      - https://mercy.example/cdm.csv
    content_hint: csv
  - id: st-lukes
    name: St. Luke's
    urls:
      - https://stlukes.example/charges.zip
      - https://stlukes.example/charges-mirror.zip
`)

	m, err := LoadSources(path)
	require.NoError(t, err)
	require.Len(t, m.Sources, 2)
	assert.Equal(t, "csv", m.Sources[0].ContentHint)
	assert.Len(t, m.Sources[1].URLs, 2)

	src, ok := m.Get("st-lukes")
	require.True(t, ok)
	assert.Equal(t, "St. Luke's", src.Name)

	_, ok = m.Get("absent")
	assert.False(t, ok)
}

func TestLoadSources_DuplicateID(t *testing.T) {
	path := writeManifest(t, `sources:
  - id: dup
    name: One
  - id: dup
    name: Two
`)
	_, err := LoadSources(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate source id")
}

func TestLoadSources_MissingID(t *testing.T) {
	path := writeManifest(t, `sources:
  - name: Anonymous Hospital
`)
	_, err := LoadSources(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing id")
}

func openTempLog(t *testing.T) *DownloadLog {
	t.Helper()
	l, err := OpenDownloadLog(filepath.Join(t.TempDir(), "downloads.jsonl"))
	require.NoError(t, err)
	return l
}

func TestDownloadLog_AppendAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "downloads.jsonl")

	l, err := OpenDownloadLog(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(model.FetchRecord{SourceID: "a", Attempt: 1, Outcome: model.FetchTransientFailure, Reason: "http-503"}))
	require.NoError(t, l.Append(model.FetchRecord{SourceID: "a", Attempt: 2, Outcome: model.FetchSuccess, ContentHash: "abc"}))
	require.NoError(t, l.Append(model.FetchRecord{SourceID: "b", Attempt: 1, Outcome: model.FetchPermanentFailure, Reason: "not-found"}))

	reloaded, err := OpenDownloadLog(path)
	require.NoError(t, err)

	latest := reloaded.LatestBySource()
	require.Len(t, latest, 2)
	assert.Equal(t, model.FetchSuccess, latest["a"].Outcome)
	assert.Equal(t, 2, latest["a"].Attempt)

	assert.Equal(t, 3, reloaded.NextAttempt("a"))
	assert.Equal(t, 2, reloaded.NextAttempt("b"))
	assert.Equal(t, 1, reloaded.NextAttempt("never-seen"))
}

func TestDownloadLog_LatestSuccess(t *testing.T) {
	l := openTempLog(t)
	require.NoError(t, l.Append(model.FetchRecord{SourceID: "a", Attempt: 1, Outcome: model.FetchSuccess, ContentHash: "old"}))
	require.NoError(t, l.Append(model.FetchRecord{SourceID: "a", Attempt: 2, Outcome: model.FetchSuccess, ContentHash: "new"}))
	require.NoError(t, l.Append(model.FetchRecord{SourceID: "a", Attempt: 3, Outcome: model.FetchTransientFailure}))

	rec, ok := l.LatestSuccess("a")
	require.True(t, ok)
	assert.Equal(t, "new", rec.ContentHash)

	_, ok = l.LatestSuccess("b")
	assert.False(t, ok)
}

func TestRetryCandidates(t *testing.T) {
	l := openTempLog(t)
	sources := []model.Source{
		{ID: "transient-low"},
		{ID: "transient-capped"},
		{ID: "perm-not-found"},
		{ID: "no-file"},
		{ID: "never-attempted"},
	}
	require.NoError(t, l.Append(model.FetchRecord{SourceID: "transient-low", Attempt: 1, Outcome: model.FetchTransientFailure}))
	require.NoError(t, l.Append(model.FetchRecord{SourceID: "transient-capped", Attempt: 4, Outcome: model.FetchTransientFailure}))
	require.NoError(t, l.Append(model.FetchRecord{SourceID: "perm-not-found", Attempt: 1, Outcome: model.FetchPermanentFailure, Reason: "not-found"}))
	require.NoError(t, l.Append(model.FetchRecord{SourceID: "no-file", Attempt: 1, Outcome: model.FetchNoFileAvailable}))

	got := l.RetryCandidates(sources, RetryPolicy{MaxAttempts: 4})
	require.Len(t, got, 1)
	assert.Equal(t, "transient-low", got[0].ID)
}

func TestPending(t *testing.T) {
	l := openTempLog(t)
	sources := []model.Source{{ID: "done"}, {ID: "fresh"}}
	require.NoError(t, l.Append(model.FetchRecord{SourceID: "done", Attempt: 1, Outcome: model.FetchPermanentFailure}))

	got := l.Pending(sources)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].ID)
}
