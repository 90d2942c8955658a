package model

// ColumnRole names what a column means to the normalizer.
type ColumnRole string

const (
	RoleCode        ColumnRole = "code"
	RoleCodeType    ColumnRole = "code_type"
	RoleDescription ColumnRole = "description"
	RoleSetting     ColumnRole = "setting"
	RolePayer       ColumnRole = "payer"
	RolePlan        ColumnRole = "plan"
	RolePrice       ColumnRole = "price"
	RoleNotes       ColumnRole = "notes"
	RoleUnassigned  ColumnRole = "unassigned"
)

// ColumnProfile holds per-column statistics derived from a row sample.
type ColumnProfile struct {
	Index         int              `json:"index"`
	Header        string           `json:"header"`
	Role          ColumnRole       `json:"role"`
	Confidence    float64          `json:"confidence"`
	FillRate      float64          `json:"fill_rate"`
	NumericRate   float64          `json:"numeric_rate"`    // numeric-parseable fraction of non-empty cells
	CodeMatchRate float64          `json:"code_match_rate"` // code-pattern-matching fraction of non-empty cells
	AvgTokenLen   float64          `json:"avg_token_len"`
	CodeMatches   map[CodeType]int `json:"code_matches,omitempty"`
	SampleValues  []string         `json:"sample_values,omitempty"`
}

// PayerColumn describes one wide-layout price column and the payer/plan it
// carries.
type PayerColumn struct {
	Index int    `json:"index"`
	Payer string `json:"payer"`
	Plan  string `json:"plan,omitempty"`
}

// SchemaProfile is the structural profile of one RawDocument, derived from
// a bounded row sample. It is never a source of truth; it is always
// re-derivable from the document.
type SchemaProfile struct {
	SourceID      string           `json:"source_id"`
	Path          string           `json:"path"`
	Layout        Layout           `json:"layout"`
	HeaderRow     int              `json:"header_row"`
	RowsSampled   int              `json:"rows_sampled"`
	Columns       []ColumnProfile  `json:"columns"`
	Payers        []string         `json:"payers,omitempty"`        // distinct payer-like tokens seen
	PayerColumns  []PayerColumn    `json:"payer_columns,omitempty"` // wide layout only
	CodeTypes     map[CodeType]int `json:"code_types,omitempty"`    // match counts across the sample
	Sentinel      *float64         `json:"sentinel,omitempty"`      // detected placeholder price value
	FormulaCells  int              `json:"formula_cells"`           // non-numeric price cells (formulas, percentages)
	DuplicateRows int              `json:"duplicate_rows"`          // exact-duplicate rows in the sample
}

// ColumnsByRole returns the indices of sampled columns assigned the role.
func (p SchemaProfile) ColumnsByRole(role ColumnRole) []int {
	var idx []int
	for _, c := range p.Columns {
		if c.Role == role {
			idx = append(idx, c.Index)
		}
	}
	return idx
}
