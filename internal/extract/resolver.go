// Package extract turns a SchemaProfile into a validated ExtractionConfig.
// Resolution is a pure function of the profile plus optional operator
// overrides; an unresolved role stays unbound rather than being guessed, so
// gaps are visible to the ingest stage instead of silently wrong.
package extract

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/clearhealth/pricing-cli/internal/model"
)

// ErrConfigIncomplete marks a config missing a binding the normalizer
// cannot run without.
var ErrConfigIncomplete = eris.New("extract: config incomplete")

// Overrides carries hand-reviewed bindings that take precedence over the
// resolver's heuristics. Nil pointer fields leave the heuristic result in
// place; a pointed-to Unbound explicitly clears a binding.
type Overrides struct {
	Layout            model.Layout   `json:"layout,omitempty"`
	CodeColumn        *int           `json:"code_column,omitempty"`
	CodeTypeColumn    *int           `json:"code_type_column,omitempty"`
	CodeTypeTag       model.CodeType `json:"code_type_tag,omitempty"`
	DescriptionColumn *int           `json:"description_column,omitempty"`
	SettingColumn     *int           `json:"setting_column,omitempty"`
	NotesColumn       *int           `json:"notes_column,omitempty"`
	PayerColumn       *int           `json:"payer_column,omitempty"`
	PlanColumn        *int           `json:"plan_column,omitempty"`
	PriceColumn       *int           `json:"price_column,omitempty"`
	GrossColumn       *int           `json:"gross_column,omitempty"`
	CashColumn        *int           `json:"cash_column,omitempty"`

	PayerColumns []model.PayerColumn `json:"payer_columns,omitempty"`
}

// Resolve maps a profile onto a concrete extraction config and validates
// it. Validation failures return ErrConfigIncomplete wrapped with the
// missing binding.
func Resolve(prof model.SchemaProfile, ov *Overrides) (model.ExtractionConfig, error) {
	cfg := model.NewExtractionConfig(prof.SourceID, prof.Layout)
	cfg.HeaderRow = prof.HeaderRow
	cfg.Sentinel = prof.Sentinel

	bindFirst(&cfg.CodeColumn, prof, model.RoleCode)
	bindFirst(&cfg.CodeTypeColumn, prof, model.RoleCodeType)
	bindFirst(&cfg.DescriptionColumn, prof, model.RoleDescription)
	bindFirst(&cfg.SettingColumn, prof, model.RoleSetting)
	bindFirst(&cfg.NotesColumn, prof, model.RoleNotes)
	bindFirst(&cfg.PayerColumn, prof, model.RolePayer)
	bindFirst(&cfg.PlanColumn, prof, model.RolePlan)

	cfg.PayerColumns = prof.PayerColumns
	cfg.GrossColumn = standardChargeColumn(prof, "gross")
	cfg.CashColumn = standardChargeColumn(prof, "cash")

	if prof.Layout == model.LayoutTall {
		cfg.PriceColumn = tallPriceColumn(prof, cfg)
	}

	// With no type column, a dominant code pattern in the sample fixes the
	// tag for the whole source.
	if cfg.CodeTypeColumn == model.Unbound {
		cfg.CodeTypeTag = dominantCodeType(prof.CodeTypes)
	}

	applyOverrides(&cfg, ov)

	if err := Validate(cfg); err != nil {
		return model.ExtractionConfig{}, err
	}
	return cfg, nil
}

// Validate enforces the contract the normalizer depends on: a code binding,
// a price binding, and for wide layout at least one payer column.
func Validate(cfg model.ExtractionConfig) error {
	if cfg.CodeColumn == model.Unbound {
		return eris.Wrapf(ErrConfigIncomplete, "source %s: no code column bound", cfg.SourceID)
	}
	if !cfg.HasPriceBinding() {
		return eris.Wrapf(ErrConfigIncomplete, "source %s: no price binding", cfg.SourceID)
	}
	if cfg.Layout == model.LayoutWide && len(cfg.PayerColumns) == 0 {
		return eris.Wrapf(ErrConfigIncomplete, "source %s: wide layout with no payer columns", cfg.SourceID)
	}
	if cfg.Layout == model.LayoutUnknown {
		return eris.Wrapf(ErrConfigIncomplete, "source %s: layout unresolved", cfg.SourceID)
	}
	return nil
}

func bindFirst(dst *int, prof model.SchemaProfile, role model.ColumnRole) {
	if idx := prof.ColumnsByRole(role); len(idx) > 0 {
		*dst = idx[0]
	}
}

// tallPriceColumn picks the price column for a tall file, skipping columns
// already claimed as gross or cash standard charges.
func tallPriceColumn(prof model.SchemaProfile, cfg model.ExtractionConfig) int {
	for _, idx := range prof.ColumnsByRole(model.RolePrice) {
		if idx != cfg.GrossColumn && idx != cfg.CashColumn {
			return idx
		}
	}
	return model.Unbound
}

// standardChargeColumn finds the column whose header names a standard
// charge class (gross, discounted cash).
func standardChargeColumn(prof model.SchemaProfile, class string) int {
	for _, col := range prof.Columns {
		h := strings.ToLower(col.Header)
		if !strings.Contains(h, class) {
			continue
		}
		if col.Role == model.RolePrice || col.NumericRate > 0 || strings.Contains(h, "|") {
			return col.Index
		}
	}
	return model.Unbound
}

func dominantCodeType(counts map[model.CodeType]int) model.CodeType {
	best := model.CodeUnknown
	bestCount := 0
	for t, n := range counts {
		if n > bestCount || (n == bestCount && model.CodeTypePriority(t) < model.CodeTypePriority(best)) {
			best, bestCount = t, n
		}
	}
	if best == model.CodeUnknown {
		return ""
	}
	return best
}

func applyOverrides(cfg *model.ExtractionConfig, ov *Overrides) {
	if ov == nil {
		return
	}
	if ov.Layout != "" {
		cfg.Layout = ov.Layout
	}
	if ov.CodeTypeTag != "" {
		cfg.CodeTypeTag = ov.CodeTypeTag
	}
	if len(ov.PayerColumns) > 0 {
		cfg.PayerColumns = ov.PayerColumns
	}
	setIf(&cfg.CodeColumn, ov.CodeColumn)
	setIf(&cfg.CodeTypeColumn, ov.CodeTypeColumn)
	setIf(&cfg.DescriptionColumn, ov.DescriptionColumn)
	setIf(&cfg.SettingColumn, ov.SettingColumn)
	setIf(&cfg.NotesColumn, ov.NotesColumn)
	setIf(&cfg.PayerColumn, ov.PayerColumn)
	setIf(&cfg.PlanColumn, ov.PlanColumn)
	setIf(&cfg.PriceColumn, ov.PriceColumn)
	setIf(&cfg.GrossColumn, ov.GrossColumn)
	setIf(&cfg.CashColumn, ov.CashColumn)
}

func setIf(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
