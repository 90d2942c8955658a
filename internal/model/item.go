package model

// Item is one billable service or product at one hospital.
// Uniqueness key: (HospitalID, Code, CodeType, Setting).
type Item struct {
	ID          int64    `json:"id,omitempty"`
	HospitalID  string   `json:"hospital_id"`
	Code        string   `json:"code"`
	CodeType    CodeType `json:"code_type"`
	Description string   `json:"description"`
	Setting     string   `json:"setting"` // "inpatient", "outpatient", "UNKNOWN"
}

// ItemKey is the Item uniqueness key used for upserts and in-run caching.
type ItemKey struct {
	HospitalID string
	Code       string
	CodeType   CodeType
	Setting    string
}

// Key returns the item's uniqueness key.
func (i Item) Key() ItemKey {
	return ItemKey{HospitalID: i.HospitalID, Code: i.Code, CodeType: i.CodeType, Setting: i.Setting}
}

// Price is one payer's rate for an Item. Multiple prices per item are
// expected and retained; only exact duplicates are suppressed.
type Price struct {
	ItemKey       ItemKey  `json:"-"`
	Payer         string   `json:"payer"`
	Plan          string   `json:"plan,omitempty"`
	Amount        *float64 `json:"amount,omitempty"` // nil when only notes survive parsing
	Notes         string   `json:"notes,omitempty"`
	IsPlaceholder bool     `json:"is_placeholder,omitempty"`
	SourceRow     int64    `json:"source_row"`
}

// DedupKey identifies exact-duplicate prices within one ingest run.
// Near-duplicates (differing notes or amounts) are retained.
type PriceDedupKey struct {
	Item   ItemKey
	Payer  string
	Plan   string
	Amount float64
	HasAmt bool
	Notes  string
}

// DedupKey returns the exact-duplicate suppression key for the price.
func (p Price) DedupKey() PriceDedupKey {
	k := PriceDedupKey{Item: p.ItemKey, Payer: p.Payer, Plan: p.Plan, Notes: p.Notes}
	if p.Amount != nil {
		k.Amount = *p.Amount
		k.HasAmt = true
	}
	return k
}

// CodeDefinition is reference data mapping a (code, code type) pair to its
// canonical definition text. It is sourced from a separate definitions
// feed and read-only to the ingestion pipeline.
type CodeDefinition struct {
	Code      string   `json:"code"`
	CodeType  CodeType `json:"code_type"`
	ShortText string   `json:"short_text,omitempty"`
	LongText  string   `json:"long_text,omitempty"`
}
