package model

import "time"

// FetchOutcome classifies the result of one fetch attempt.
type FetchOutcome string

const (
	FetchSuccess          FetchOutcome = "success"
	FetchTransientFailure FetchOutcome = "transient_failure"
	FetchPermanentFailure FetchOutcome = "permanent_failure"
	FetchNoFileAvailable  FetchOutcome = "no_file_available"
)

// Failure reasons recorded on permanent failures. These drive the retry
// scheduler: permanent reasons are never retried automatically.
const (
	ReasonAuthBlock         = "auth/bot-block"
	ReasonNotFound          = "not-found"
	ReasonTLS               = "tls"
	ReasonUnexpectedContent = "unexpected-content"
)

// FetchRecord is the durable record of one fetch attempt for one source.
// Records are append-only; the latest successful record per source is
// authoritative.
type FetchRecord struct {
	SourceID    string       `json:"source_id"`
	Attempt     int          `json:"attempt"` // 1-based attempt index per source
	URL         string       `json:"url,omitempty"`
	FetchedAt   time.Time    `json:"fetched_at"`
	Outcome     FetchOutcome `json:"outcome"`
	Reason      string       `json:"reason,omitempty"` // HTTP status or transport error class
	ByteSize    int64        `json:"byte_size,omitempty"`
	ContentHash string       `json:"content_hash,omitempty"` // hex SHA-256 of the payload
}

// Succeeded reports whether this attempt produced a usable payload.
func (r FetchRecord) Succeeded() bool {
	return r.Outcome == FetchSuccess
}

// Retryable reports whether this attempt's outcome is eligible for
// automatic retry. Permanent failures and missing URLs require an
// out-of-band correction before they are attempted again.
func (r FetchRecord) Retryable() bool {
	return r.Outcome == FetchTransientFailure
}
