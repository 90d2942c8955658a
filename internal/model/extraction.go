package model

// ExtractionConfig is the machine-applicable contract between profiling and
// ingestion: explicit column-to-role bindings for one source. It may come
// straight from the resolver's heuristics or be hand-edited between the
// profiling and ingestion steps; the normalizer treats both the same.
//
// Column bindings are indices into the document's header row. A value of
// -1 means unbound; the normalizer validates that every role it requires
// is bound before reading any row.
type ExtractionConfig struct {
	SourceID  string `json:"source_id"`
	Layout    Layout `json:"layout"`
	HeaderRow int    `json:"header_row"`
	Encoding  string `json:"encoding,omitempty"`

	CodeColumn     int      `json:"code_column"`
	CodeTypeColumn int      `json:"code_type_column"`
	CodeTypeTag    CodeType `json:"code_type_tag,omitempty"` // fixed tag when no type column exists

	DescriptionColumn int `json:"description_column"`
	SettingColumn     int `json:"setting_column"`
	NotesColumn       int `json:"notes_column"`

	// Tall layout bindings.
	PayerColumn int `json:"payer_column"`
	PlanColumn  int `json:"plan_column"`
	PriceColumn int `json:"price_column"`

	// Wide layout bindings: ordered (column, payer, plan) triples.
	PayerColumns []PayerColumn `json:"payer_columns,omitempty"`

	// Optional standard-charge pseudo-payer bindings.
	GrossColumn int `json:"gross_column"`
	CashColumn  int `json:"cash_column"`

	// Sentinel is the placeholder price value detected for this source;
	// matching amounts are ingested flagged, not dropped.
	Sentinel *float64 `json:"sentinel,omitempty"`
}

// Unbound is the column index meaning "no binding".
const Unbound = -1

// NewExtractionConfig returns a config with every binding unbound.
func NewExtractionConfig(sourceID string, layout Layout) ExtractionConfig {
	return ExtractionConfig{
		SourceID:          sourceID,
		Layout:            layout,
		CodeColumn:        Unbound,
		CodeTypeColumn:    Unbound,
		DescriptionColumn: Unbound,
		SettingColumn:     Unbound,
		NotesColumn:       Unbound,
		PayerColumn:       Unbound,
		PlanColumn:        Unbound,
		PriceColumn:       Unbound,
		GrossColumn:       Unbound,
		CashColumn:        Unbound,
	}
}

// HasPriceBinding reports whether the config binds at least one price
// source: a tall price column, any wide payer column, or a standard-charge
// column.
func (c ExtractionConfig) HasPriceBinding() bool {
	return c.PriceColumn != Unbound || len(c.PayerColumns) > 0 ||
		c.GrossColumn != Unbound || c.CashColumn != Unbound
}
