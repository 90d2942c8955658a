// Package ingest streams a raw document through its extraction config and
// writes normalized items and prices to the sink. Row-level problems are
// counted, never fatal; a document either commits whole or not at all.
package ingest

import (
	"strings"

	"github.com/clearhealth/pricing-cli/internal/model"
)

// Pseudo-payers for the standard charge classes every transparency file
// carries alongside negotiated rates.
const (
	PayerGross = "GROSS"
	PayerCash  = "DISCOUNTED_CASH"
)

// cell returns the trimmed value of a bound column, or "" when the binding
// is absent or the row is too short.
func cell(row []string, idx int) string {
	if idx == model.Unbound || idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// itemFromRow builds the Item a row describes. The second return is false
// when the row has no usable code.
func itemFromRow(row []string, cfg model.ExtractionConfig, hospitalID string) (model.Item, bool) {
	code := cell(row, cfg.CodeColumn)
	if code == "" {
		return model.Item{}, false
	}

	item := model.Item{
		HospitalID:  hospitalID,
		Code:        code,
		Description: cell(row, cfg.DescriptionColumn),
		Setting:     normalizeSetting(cell(row, cfg.SettingColumn)),
	}
	item.CodeType = rowCodeType(row, cfg, code)
	return item, true
}

// rowCodeType resolves the code type with falling priority: an explicit
// type column, the source-level tag, then the shape of the code itself.
func rowCodeType(row []string, cfg model.ExtractionConfig, code string) model.CodeType {
	if label := cell(row, cfg.CodeTypeColumn); label != "" {
		return model.NormalizeCodeType(label)
	}
	if cfg.CodeTypeTag != "" {
		return cfg.CodeTypeTag
	}
	if t := model.DetectCodeType(code); t != model.CodeUnknown {
		return t
	}
	return model.CodeLocal
}

func normalizeSetting(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == "":
		return "UNKNOWN"
	case strings.Contains(v, "outpatient") || v == "op" || v == "o":
		return "outpatient"
	case strings.Contains(v, "inpatient") || v == "ip" || v == "i":
		return "inpatient"
	case strings.Contains(v, "both"):
		return "both"
	default:
		return "UNKNOWN"
	}
}

// parsePriceCell turns one price cell into an optional price. Numeric cells
// yield an amount; formula text yields a nil-amount price carrying the text
// as notes; anything else yields nothing.
func parsePriceCell(raw string, sentinel *float64) (model.Price, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return model.Price{}, false
	}
	if amt, ok := model.ParseAmount(v); ok {
		p := model.Price{Amount: &amt}
		if sentinel != nil && amt == *sentinel {
			p.IsPlaceholder = true
		}
		return p, true
	}
	if model.IsFormulaText(v) {
		return model.Price{Notes: v}, true
	}
	return model.Price{}, false
}

// joinNotes merges a row-level notes cell with cell-level notes.
func joinNotes(rowNotes, cellNotes string) string {
	switch {
	case rowNotes == "":
		return cellNotes
	case cellNotes == "":
		return rowNotes
	default:
		return rowNotes + "; " + cellNotes
	}
}
