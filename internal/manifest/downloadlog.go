package manifest

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/clearhealth/pricing-cli/internal/model"
)

// DownloadLog is the append-only event log of fetch attempts. Records are
// never mutated; retry decisions are derived from history so they stay
// reproducible. The log is safe for concurrent appends from the fetch
// worker pool.
type DownloadLog struct {
	mu      sync.Mutex
	path    string
	records []model.FetchRecord
}

// OpenDownloadLog loads an existing JSONL log, creating an empty one if
// the file does not exist.
func OpenDownloadLog(path string) (*DownloadLog, error) {
	l := &DownloadLog{path: path}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, eris.Wrapf(err, "downloadlog: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec model.FetchRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, eris.Wrapf(err, "downloadlog: parse line in %s", path)
		}
		l.records = append(l.records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "downloadlog: scan %s", path)
	}

	return l, nil
}

// Append writes one record to the log and persists it immediately.
func (l *DownloadLog) Append(rec model.FetchRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "downloadlog: open %s for append", l.path)
	}
	defer f.Close() //nolint:errcheck

	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "downloadlog: marshal record")
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return eris.Wrapf(err, "downloadlog: append to %s", l.path)
	}

	l.records = append(l.records, rec)
	return nil
}

// NextAttempt returns the 1-based attempt index the next fetch of the
// source should carry.
func (l *DownloadLog) NextAttempt(sourceID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, r := range l.records {
		if r.SourceID == sourceID && r.Attempt > n {
			n = r.Attempt
		}
	}
	return n + 1
}

// LatestBySource projects the log onto its most recent record per source.
func (l *DownloadLog) LatestBySource() map[string]model.FetchRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	latest := make(map[string]model.FetchRecord)
	for _, r := range l.records {
		cur, ok := latest[r.SourceID]
		if !ok || r.Attempt > cur.Attempt {
			latest[r.SourceID] = r
		}
	}
	return latest
}

// LatestSuccess returns the most recent successful record for a source.
// The latest successful record per source is authoritative for which blob
// to unpack.
func (l *DownloadLog) LatestSuccess(sourceID string) (model.FetchRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var best model.FetchRecord
	found := false
	for _, r := range l.records {
		if r.SourceID == sourceID && r.Succeeded() && (!found || r.Attempt > best.Attempt) {
			best = r
			found = true
		}
	}
	return best, found
}

// RetryPolicy bounds automatic re-fetching of transient failures.
type RetryPolicy struct {
	MaxAttempts int
}

// RetryCandidates selects, from the given sources, those whose latest
// outcome is a transient failure and whose attempt count is still under
// the bound. Permanent failures and sources with no file are excluded;
// those need an explicit re-classification (e.g., a corrected URL) before
// they are retried.
func (l *DownloadLog) RetryCandidates(sources []model.Source, policy RetryPolicy) []model.Source {
	latest := l.LatestBySource()

	var out []model.Source
	for _, s := range sources {
		rec, ok := latest[s.ID]
		if !ok {
			continue // never attempted, not a retry
		}
		if !rec.Retryable() {
			continue
		}
		if policy.MaxAttempts > 0 && rec.Attempt >= policy.MaxAttempts {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Pending returns the sources with no fetch record at all.
func (l *DownloadLog) Pending(sources []model.Source) []model.Source {
	latest := l.LatestBySource()

	var out []model.Source
	for _, s := range sources {
		if _, ok := latest[s.ID]; !ok {
			out = append(out, s)
		}
	}
	return out
}
