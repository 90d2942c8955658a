package profile

import (
	"strings"

	"github.com/clearhealth/pricing-cli/internal/model"
)

var headerKeywords = []string{
	"code", "description", "price", "charge", "payer", "plan",
	"type", "name", "amount", "rate", "billing", "standard",
}

// detectHeaderRow scores each of the first maxScan rows for header-likeness:
// keyword hits score up, numeric cells score down, a fully populated wide
// row gets a small bonus. The best-scoring row wins; ties go to the
// earliest.
func detectHeaderRow(rows [][]string, maxScan int) int {
	if maxScan > len(rows) {
		maxScan = len(rows)
	}

	best, bestScore := 0, -1<<30
	for i := 0; i < maxScan; i++ {
		row := rows[i]
		if len(row) == 0 {
			continue
		}

		score := 0
		nonEmpty := 0
		for _, cell := range row {
			lower := strings.ToLower(cell)
			for _, kw := range headerKeywords {
				if strings.Contains(lower, kw) {
					score += 5
				}
			}
			if _, ok := model.ParseAmount(cell); ok {
				score -= 2
			}
			if strings.TrimSpace(cell) != "" {
				nonEmpty++
			}
		}
		if nonEmpty == len(row) && len(row) > 3 {
			score += 3
		}

		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// profileColumn computes per-column statistics over the sampled data rows.
func profileColumn(index int, header string, data [][]string) model.ColumnProfile {
	col := model.ColumnProfile{Index: index, Header: header}

	nonEmpty, numeric := 0, 0
	tokenLen := 0
	matches := map[model.CodeType]int{}

	for _, row := range data {
		if index >= len(row) {
			continue
		}
		cell := strings.TrimSpace(row[index])
		if cell == "" {
			continue
		}
		nonEmpty++
		tokenLen += len(cell)
		if _, ok := model.ParseAmount(cell); ok {
			numeric++
		}
		if t := model.DetectCodeType(cell); t != model.CodeUnknown {
			matches[t]++
		}
		if len(col.SampleValues) < maxSampleValues {
			col.SampleValues = append(col.SampleValues, cell)
		}
	}

	if len(data) > 0 {
		col.FillRate = float64(nonEmpty) / float64(len(data))
	}
	if nonEmpty > 0 {
		col.NumericRate = float64(numeric) / float64(nonEmpty)
		col.AvgTokenLen = float64(tokenLen) / float64(nonEmpty)
		matched := 0
		for _, n := range matches {
			matched += n
		}
		col.CodeMatchRate = float64(matched) / float64(nonEmpty)
	}
	if len(matches) > 0 {
		col.CodeMatches = matches
	}
	return col
}

// inferRole assigns the most confident role to a column, or leaves it
// unassigned when nothing clears the confidence threshold. Header keywords
// outrank value-shape evidence; ordering mirrors the fact that "payer_name"
// must bind to payer, not name.
func (p *Profiler) inferRole(col model.ColumnProfile) (model.ColumnRole, float64) {
	if role, ok := roleFromHeader(col.Header); ok {
		return role, 0.9
	}

	// Shape-only evidence is weaker than a labeled header.
	if conf := col.CodeMatchRate * 0.8; conf >= p.RoleConfidence {
		return model.RoleCode, conf
	}
	if conf := col.NumericRate * col.FillRate * 0.8; conf >= p.RoleConfidence {
		return model.RolePrice, conf
	}
	return model.RoleUnassigned, 0
}

// roleFromHeader maps a header token onto a role. Order matters: payer and
// plan tokens are checked before the generic "name" match, and code tokens
// before "type" so "code_type" binds correctly.
func roleFromHeader(header string) (model.ColumnRole, bool) {
	h := strings.ToLower(strings.TrimSpace(header))
	if h == "" || strings.Contains(h, "|") {
		return model.RoleUnassigned, false
	}

	switch {
	case containsAny(h, "payer", "insurance", "carrier"):
		return model.RolePayer, true
	case containsAny(h, "plan", "product"):
		return model.RolePlan, true
	case strings.Contains(h, "code_type") || strings.Contains(h, "billing_class"):
		return model.RoleCodeType, true
	case containsAny(h, "code", "cpt", "hcpcs", "icd", "drg", "ndc"):
		return model.RoleCode, true
	case containsAny(h, "desc", "procedure", "service") ||
		(strings.Contains(h, "name") && !containsAny(h, "payer", "plan", "hospital")):
		return model.RoleDescription, true
	case containsAny(h, "charge", "price", "amount", "rate", "dollar", "cost", "gross", "cash"):
		return model.RolePrice, true
	case containsAny(h, "setting", "class", "category", "inpatient", "outpatient"):
		return model.RoleSetting, true
	case containsAny(h, "note", "comment", "additional", "modifier", "methodology"):
		return model.RoleNotes, true
	}
	return model.RoleUnassigned, false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
