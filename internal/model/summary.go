package model

import "time"

// SkipReason tallies why rows were skipped during ingestion.
type SkipReason string

const (
	SkipMissingCode      SkipReason = "missing_code"
	SkipUnparseablePrice SkipReason = "unparseable_price"
	SkipShortRow         SkipReason = "short_row"
)

// IngestSummary is the per-document ingestion report. The calling tooling
// uses it to decide whether a source's data is trustworthy enough to
// publish; it is never silently partial.
type IngestSummary struct {
	RunID          string               `json:"run_id"`
	SourceID       string               `json:"source_id"`
	Path           string               `json:"path"`
	StartedAt      time.Time            `json:"started_at"`
	CompletedAt    time.Time            `json:"completed_at"`
	RowsRead       int64                `json:"rows_read"`
	RowsSkipped    int64                `json:"rows_skipped"`
	SkipReasons    map[SkipReason]int64 `json:"skip_reasons,omitempty"`
	ItemsCreated   int64                `json:"items_created"`
	ItemsUpdated   int64                `json:"items_updated"`
	PricesCreated  int64                `json:"prices_created"`
	DistinctPayers int                  `json:"distinct_payers"`
	DupesSuppressed int64               `json:"dupes_suppressed"`
	Placeholders   int64                `json:"placeholders"`
}

// Skip records one skipped row under the given reason.
func (s *IngestSummary) Skip(reason SkipReason) {
	if s.SkipReasons == nil {
		s.SkipReasons = make(map[SkipReason]int64)
	}
	s.SkipReasons[reason]++
	s.RowsSkipped++
}

// RunReport aggregates a whole pipeline run across sources. Failures are
// enumerated, never silent.
type RunReport struct {
	RunID       string          `json:"run_id"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Summaries   []IngestSummary `json:"summaries,omitempty"`
	Failures    []RunFailure    `json:"failures,omitempty"`
}

// RunFailure records a document- or source-level failure that did not
// abort the run.
type RunFailure struct {
	SourceID string `json:"source_id"`
	Path     string `json:"path,omitempty"`
	Stage    string `json:"stage"` // "unpack", "profile", "resolve", "ingest"
	Error    string `json:"error"`
}
