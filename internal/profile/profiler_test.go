package profile

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearhealth/pricing-cli/internal/config"
	"github.com/clearhealth/pricing-cli/internal/model"
)

// sliceRows satisfies unpack.RowReader over an in-memory row set.
type sliceRows struct {
	rows [][]string
	next int
}

func (s *sliceRows) Read() ([]string, error) {
	if s.next >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.next]
	s.next++
	return row, nil
}

func (s *sliceRows) Close() error { return nil }

func newProfiler() *Profiler {
	return New(config.ProfileConfig{
		SampleRows:       500,
		RoleConfidence:   0.6,
		SentinelFraction: 0.3,
		MinPayerColumns:  2,
		HeaderScanRows:   10,
	})
}

func tallRows(n int) [][]string {
	rows := [][]string{{"code", "description", "payer_name", "plan_name", "price"}}
	for i := 0; i < n; i++ {
		rows = append(rows, []string{
			fmt.Sprintf("9921%d", i%10), "Office Visit", "Aetna", "PPO", "150.00",
		})
	}
	return rows
}

func TestProfile_TallLayout(t *testing.T) {
	doc := model.RawDocument{SourceID: "src-1", Path: "blob"}

	prof, err := newProfiler().Profile(doc, &sliceRows{rows: tallRows(20)})
	require.NoError(t, err)

	assert.Equal(t, model.LayoutTall, prof.Layout)
	assert.Equal(t, 0, prof.HeaderRow)
	assert.Equal(t, 20, prof.RowsSampled)
	assert.Equal(t, []string{"Aetna"}, prof.Payers)

	roles := map[int]model.ColumnRole{}
	for _, c := range prof.Columns {
		roles[c.Index] = c.Role
	}
	assert.Equal(t, model.RoleCode, roles[0])
	assert.Equal(t, model.RoleDescription, roles[1])
	assert.Equal(t, model.RolePayer, roles[2])
	assert.Equal(t, model.RolePlan, roles[3])
	assert.Equal(t, model.RolePrice, roles[4])
	assert.Positive(t, prof.CodeTypes[model.CodeCPT])
}

func TestProfile_WidePipeHeaders(t *testing.T) {
	rows := [][]string{
		{"code", "description", "standard_charge|gross", "standard_charge|Aetna|PPO|negotiated_dollar", "standard_charge|Cigna|HMO|negotiated_dollar", "standard_charge|Cigna|HMO|negotiated_percentage"},
	}
	for i := 0; i < 10; i++ {
		rows = append(rows, []string{"99213", "Office Visit", "500.00", "150.00", "140.00", "80"})
	}

	doc := model.RawDocument{SourceID: "src-2", Path: "blob"}
	prof, err := newProfiler().Profile(doc, &sliceRows{rows: rows})
	require.NoError(t, err)

	assert.Equal(t, model.LayoutWide, prof.Layout)
	require.Len(t, prof.PayerColumns, 2)
	assert.Equal(t, model.PayerColumn{Index: 3, Payer: "Aetna", Plan: "PPO"}, prof.PayerColumns[0])
	assert.Equal(t, model.PayerColumn{Index: 4, Payer: "Cigna", Plan: "HMO"}, prof.PayerColumns[1])
	assert.ElementsMatch(t, []string{"Aetna", "Cigna"}, prof.Payers)
}

func TestProfile_WideBareHeaders(t *testing.T) {
	rows := [][]string{{"code", "description", "Aetna_PPO", "Cigna_HMO"}}
	for i := 0; i < 10; i++ {
		rows = append(rows, []string{"99213", "Office Visit", "150.00", "140.00"})
	}

	doc := model.RawDocument{SourceID: "src-3", Path: "blob"}
	prof, err := newProfiler().Profile(doc, &sliceRows{rows: rows})
	require.NoError(t, err)

	assert.Equal(t, model.LayoutWide, prof.Layout)
	require.Len(t, prof.PayerColumns, 2)
	assert.Equal(t, "Aetna", prof.PayerColumns[0].Payer)
	assert.Equal(t, "PPO", prof.PayerColumns[0].Plan)
}

func TestProfile_HeaderNotOnFirstRow(t *testing.T) {
	rows := [][]string{
		{"General Hospital Standard Charges"},
		{"Effective 2025-01-01"},
		{"code", "description", "payer_name", "plan_name", "price"},
		{"99213", "Office Visit", "Aetna", "PPO", "150.00"},
	}

	doc := model.RawDocument{SourceID: "src-4", Path: "blob"}
	prof, err := newProfiler().Profile(doc, &sliceRows{rows: rows})
	require.NoError(t, err)

	assert.Equal(t, 2, prof.HeaderRow)
	assert.Equal(t, 1, prof.RowsSampled)
}

func TestProfile_SentinelDetection(t *testing.T) {
	rows := tallRows(0)
	for i := 0; i < 10; i++ {
		price := "150.00"
		if i < 4 { // 40% placeholder
			price = "99999999"
		}
		rows = append(rows, []string{"99213", "Office Visit", "Aetna", "PPO", price})
	}

	doc := model.RawDocument{SourceID: "src-5", Path: "blob"}
	prof, err := newProfiler().Profile(doc, &sliceRows{rows: rows})
	require.NoError(t, err)

	require.NotNil(t, prof.Sentinel)
	assert.Equal(t, float64(99999999), *prof.Sentinel)
}

func TestProfile_NoSentinelBelowFraction(t *testing.T) {
	rows := tallRows(0)
	for i := 0; i < 10; i++ {
		price := fmt.Sprintf("%d.00", 100+i)
		if i == 0 {
			price = "99999999"
		}
		rows = append(rows, []string{"99213", "Office Visit", "Aetna", "PPO", price})
	}

	doc := model.RawDocument{SourceID: "src-6", Path: "blob"}
	prof, err := newProfiler().Profile(doc, &sliceRows{rows: rows})
	require.NoError(t, err)
	assert.Nil(t, prof.Sentinel)
}

func TestProfile_FormulaAndDuplicates(t *testing.T) {
	rows := [][]string{
		{"code", "description", "payer_name", "plan_name", "price"},
		{"99213", "Office Visit", "Aetna", "PPO", "150.00"},
		{"99213", "Office Visit", "Aetna", "PPO", "150.00"},
		{"470", "Knee Replacement", "Cigna", "HMO", "see contract"},
	}

	doc := model.RawDocument{SourceID: "src-7", Path: "blob"}
	prof, err := newProfiler().Profile(doc, &sliceRows{rows: rows})
	require.NoError(t, err)

	assert.Equal(t, 1, prof.DuplicateRows)
	assert.Equal(t, 1, prof.FormulaCells)
}

func TestProfile_SampleBound(t *testing.T) {
	p := New(config.ProfileConfig{SampleRows: 50, HeaderScanRows: 10})

	doc := model.RawDocument{SourceID: "src-8", Path: "blob"}
	prof, err := p.Profile(doc, &sliceRows{rows: tallRows(5000)})
	require.NoError(t, err)
	assert.LessOrEqual(t, prof.RowsSampled, 59)
}

func TestProfile_UnknownLayout(t *testing.T) {
	rows := [][]string{
		{"alpha", "beta"},
		{"x", "y"},
		{"z", "w"},
	}

	doc := model.RawDocument{SourceID: "src-9", Path: "blob"}
	prof, err := newProfiler().Profile(doc, &sliceRows{rows: rows})
	require.NoError(t, err)
	assert.Equal(t, model.LayoutUnknown, prof.Layout)
}

func TestProfile_Deterministic(t *testing.T) {
	doc := model.RawDocument{SourceID: "src-10", Path: "blob"}

	a, err := newProfiler().Profile(doc, &sliceRows{rows: tallRows(50)})
	require.NoError(t, err)
	b, err := newProfiler().Profile(doc, &sliceRows{rows: tallRows(50)})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestStore_RoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	sent := 99999999.0
	prof := model.SchemaProfile{
		SourceID: "src-11",
		Layout:   model.LayoutWide,
		Sentinel: &sent,
		Columns:  []model.ColumnProfile{{Index: 0, Header: "code", Role: model.RoleCode}},
	}

	require.NoError(t, s.Save(prof))
	got, err := s.Load("src-11")
	require.NoError(t, err)
	assert.Equal(t, prof.Layout, got.Layout)
	require.NotNil(t, got.Sentinel)
	assert.Equal(t, sent, *got.Sentinel)
}
