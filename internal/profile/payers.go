package profile

import (
	"strings"

	"github.com/clearhealth/pricing-cli/internal/model"
)

// Tokens that appear in the payer position of a pipe-delimited header but
// name a charge class, not a payer.
var genericChargeTokens = map[string]struct{}{
	"gross": {}, "cash": {}, "discounted_cash": {}, "discounted cash": {},
	"min": {}, "max": {}, "minimum": {}, "maximum": {}, "list": {},
	"standard": {}, "total": {}, "self_pay": {}, "self-pay": {},
	"average": {}, "estimated": {},
}

// Rate-type suffixes that mark a pipe-delimited column as non-dollar; those
// columns carry formulas or percentages and are not price bindings.
var nonDollarSuffixes = []string{"percentage", "percent", "algorithm", "methodology"}

// detectPayerColumns finds wide-layout price columns that carry a payer in
// the header. Two shapes occur in the wild: the machine-readable-standard
// pipe form `standard_charge|Aetna|PPO|negotiated_dollar`, and the ad hoc
// form `Aetna_PPO` where the whole header is the payer and plan.
func detectPayerColumns(cols []model.ColumnProfile) []model.PayerColumn {
	var out []model.PayerColumn
	for _, col := range cols {
		if strings.Contains(col.Header, "|") {
			if pc, ok := pipePayerColumn(col); ok {
				out = append(out, pc)
			}
			continue
		}
		if pc, ok := bareHeaderPayerColumn(col); ok {
			out = append(out, pc)
		}
	}
	return out
}

func pipePayerColumn(col model.ColumnProfile) (model.PayerColumn, bool) {
	parts := strings.Split(col.Header, "|")
	if len(parts) < 2 {
		return model.PayerColumn{}, false
	}
	head := strings.ToLower(strings.TrimSpace(parts[0]))
	if !containsAny(head, "charge", "price", "amount", "rate", "dollar") {
		return model.PayerColumn{}, false
	}
	for _, suffix := range nonDollarSuffixes {
		if strings.Contains(strings.ToLower(parts[len(parts)-1]), suffix) {
			return model.PayerColumn{}, false
		}
	}

	payer := strings.TrimSpace(parts[1])
	if _, generic := genericChargeTokens[strings.ToLower(payer)]; generic || payer == "" {
		return model.PayerColumn{}, false
	}

	pc := model.PayerColumn{Index: col.Index, Payer: payer}
	if len(parts) >= 3 {
		plan := strings.TrimSpace(parts[2])
		if !strings.Contains(strings.ToLower(plan), "negotiated") && plan != "" {
			pc.Plan = plan
		}
	}
	return pc, true
}

// bareHeaderPayerColumn treats a numeric column whose header carries no
// charge vocabulary as payer-named: `Aetna_PPO` yields payer Aetna, plan
// PPO.
func bareHeaderPayerColumn(col model.ColumnProfile) (model.PayerColumn, bool) {
	if col.Role != model.RolePrice || col.NumericRate == 0 {
		return model.PayerColumn{}, false
	}
	h := strings.TrimSpace(col.Header)
	lower := strings.ToLower(h)
	if h == "" ||
		containsAny(lower, "charge", "price", "amount", "rate", "cost", "dollar", "fee", "gross", "cash", "min", "max") {
		return model.PayerColumn{}, false
	}
	if _, generic := genericChargeTokens[lower]; generic {
		return model.PayerColumn{}, false
	}

	payer, plan := h, ""
	for _, sep := range []string{"_", " - ", "-"} {
		if i := strings.Index(h, sep); i > 0 {
			payer, plan = h[:i], strings.TrimSpace(h[i+len(sep):])
			break
		}
	}
	return model.PayerColumn{Index: col.Index, Payer: strings.TrimSpace(payer), Plan: plan}, true
}
