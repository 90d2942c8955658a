// Package profile derives a structural SchemaProfile from a bounded row
// sample of a raw document. Profiling is deterministic: the same sample
// always yields the same profile, so a stored profile can be regenerated
// and diffed against the stored copy.
package profile

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/clearhealth/pricing-cli/internal/config"
	"github.com/clearhealth/pricing-cli/internal/model"
	"github.com/clearhealth/pricing-cli/internal/unpack"
)

const maxSampleValues = 5

// Profiler samples rows and infers layout, column roles, payer columns and
// data-quality flags. Thresholds come from configuration so operators can
// tune them per deployment.
type Profiler struct {
	SampleRows       int
	RoleConfidence   float64
	SentinelFraction float64
	MinPayerColumns  int
	HeaderScanRows   int
}

// New builds a Profiler from configuration, applying defaults for unset
// values.
func New(cfg config.ProfileConfig) *Profiler {
	p := &Profiler{
		SampleRows:       cfg.SampleRows,
		RoleConfidence:   cfg.RoleConfidence,
		SentinelFraction: cfg.SentinelFraction,
		MinPayerColumns:  cfg.MinPayerColumns,
		HeaderScanRows:   cfg.HeaderScanRows,
	}
	if p.SampleRows <= 0 {
		p.SampleRows = 500
	}
	if p.RoleConfidence <= 0 {
		p.RoleConfidence = 0.6
	}
	if p.SentinelFraction <= 0 {
		p.SentinelFraction = 0.3
	}
	if p.MinPayerColumns <= 0 {
		p.MinPayerColumns = 2
	}
	if p.HeaderScanRows <= 0 {
		p.HeaderScanRows = 10
	}
	return p
}

// Profile reads at most SampleRows rows from the document and produces its
// schema profile. The reader is consumed but not closed.
func (p *Profiler) Profile(doc model.RawDocument, r unpack.RowReader) (model.SchemaProfile, error) {
	rows, err := p.sample(r)
	if err != nil {
		return model.SchemaProfile{}, err
	}
	if len(rows) == 0 {
		return model.SchemaProfile{}, eris.Errorf("profile: %s is empty", doc.Path)
	}

	headerRow := detectHeaderRow(rows, p.HeaderScanRows)
	header := rows[headerRow]
	data := rows[headerRow+1:]

	prof := model.SchemaProfile{
		SourceID:    doc.SourceID,
		Path:        docPath(doc),
		HeaderRow:   headerRow,
		RowsSampled: len(data),
		CodeTypes:   map[model.CodeType]int{},
	}

	for i, name := range header {
		col := profileColumn(i, name, data)
		col.Role, col.Confidence = p.inferRole(col)
		prof.Columns = append(prof.Columns, col)
		for t, n := range col.CodeMatches {
			prof.CodeTypes[t] += n
		}
	}

	prof.PayerColumns = detectPayerColumns(prof.Columns)
	prof.Layout = p.detectLayout(prof)
	prof.Payers = collectPayers(prof, data)

	priceCols := priceColumnIndexes(prof)
	prof.Sentinel = p.detectSentinel(priceCols, data)
	prof.FormulaCells = countFormulaCells(priceCols, data)
	prof.DuplicateRows = countDuplicateRows(data)

	if len(prof.CodeTypes) == 0 {
		prof.CodeTypes = nil
	}
	return prof, nil
}

// sample reads up to SampleRows data rows plus the header scan window.
func (p *Profiler) sample(r unpack.RowReader) ([][]string, error) {
	limit := p.SampleRows + p.HeaderScanRows
	rows := make([][]string, 0, limit)
	for len(rows) < limit {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "profile: sample rows")
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// detectLayout applies the layout rules: enough payer-bearing price columns
// means WIDE; a payer column alongside a price column means TALL; anything
// else is UNKNOWN and needs a manual binding.
func (p *Profiler) detectLayout(prof model.SchemaProfile) model.Layout {
	if len(prof.PayerColumns) >= p.MinPayerColumns {
		return model.LayoutWide
	}
	hasPayer := len(prof.ColumnsByRole(model.RolePayer)) > 0
	hasPrice := len(prof.ColumnsByRole(model.RolePrice)) > 0
	if hasPayer && hasPrice {
		return model.LayoutTall
	}
	return model.LayoutUnknown
}

// detectSentinel flags a recurring placeholder amount: one numeric value
// occupying at least SentinelFraction of the non-empty price cells, at a
// magnitude no plausible charge reaches.
func (p *Profiler) detectSentinel(priceCols []int, data [][]string) *float64 {
	counts := map[float64]int{}
	total := 0
	for _, row := range data {
		for _, c := range priceCols {
			if c >= len(row) {
				continue
			}
			amt, ok := model.ParseAmount(row[c])
			if !ok {
				continue
			}
			total++
			counts[amt]++
		}
	}
	if total == 0 {
		return nil
	}
	var best *float64
	bestCount := 0
	for amt, n := range counts {
		if amt < 9999 || float64(n)/float64(total) < p.SentinelFraction {
			continue
		}
		// Deterministic pick when several values qualify.
		if n > bestCount || (n == bestCount && best != nil && amt < *best) {
			v := amt
			best, bestCount = &v, n
		}
	}
	return best
}

func docPath(doc model.RawDocument) string {
	if doc.Entry != "" {
		return doc.Path + "!" + doc.Entry
	}
	return doc.Path
}

func priceColumnIndexes(prof model.SchemaProfile) []int {
	idx := prof.ColumnsByRole(model.RolePrice)
	seen := map[int]struct{}{}
	for _, i := range idx {
		seen[i] = struct{}{}
	}
	for _, pc := range prof.PayerColumns {
		if _, ok := seen[pc.Index]; !ok {
			idx = append(idx, pc.Index)
			seen[pc.Index] = struct{}{}
		}
	}
	return idx
}

func countFormulaCells(priceCols []int, data [][]string) int {
	n := 0
	for _, row := range data {
		for _, c := range priceCols {
			if c >= len(row) {
				continue
			}
			cell := strings.TrimSpace(row[c])
			if cell == "" {
				continue
			}
			if _, ok := model.ParseAmount(cell); !ok {
				n++
			}
		}
	}
	return n
}

func countDuplicateRows(data [][]string) int {
	seen := map[string]int{}
	dupes := 0
	for _, row := range data {
		key := strings.Join(row, "\x1f")
		seen[key]++
		if seen[key] > 1 {
			dupes++
		}
	}
	return dupes
}

// collectPayers gathers distinct payer names: from the payer column in a
// tall file, from payer-bearing column headers in a wide one.
func collectPayers(prof model.SchemaProfile, data [][]string) []string {
	seen := map[string]struct{}{}
	var payers []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		payers = append(payers, name)
	}

	if prof.Layout == model.LayoutWide {
		for _, pc := range prof.PayerColumns {
			add(pc.Payer)
		}
		return payers
	}

	for _, c := range prof.ColumnsByRole(model.RolePayer) {
		for _, row := range data {
			if c < len(row) {
				add(row[c])
			}
		}
	}
	return payers
}
