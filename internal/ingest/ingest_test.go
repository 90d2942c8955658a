package ingest

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearhealth/pricing-cli/internal/model"
	"github.com/clearhealth/pricing-cli/internal/sink"
	"github.com/clearhealth/pricing-cli/internal/unpack"
)

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

func tallConfig() model.ExtractionConfig {
	cfg := model.NewExtractionConfig("src-1", model.LayoutTall)
	cfg.CodeColumn = 0
	cfg.DescriptionColumn = 1
	cfg.PayerColumn = 2
	cfg.PlanColumn = 3
	cfg.PriceColumn = 4
	cfg.CodeTypeTag = model.CodeCPT
	return cfg
}

func wideConfig() model.ExtractionConfig {
	cfg := model.NewExtractionConfig("src-1", model.LayoutWide)
	cfg.CodeColumn = 0
	cfg.DescriptionColumn = 1
	cfg.PayerColumns = []model.PayerColumn{
		{Index: 2, Payer: "Aetna", Plan: "PPO"},
		{Index: 3, Payer: "Cigna", Plan: "HMO"},
	}
	cfg.CodeTypeTag = model.CodeCPT
	return cfg
}

func ingestRows(t *testing.T, s sink.Sink, cfg model.ExtractionConfig, rows [][]string) model.IngestSummary {
	t.Helper()
	n := &Normalizer{Sink: s}
	doc := model.RawDocument{SourceID: cfg.SourceID, Path: "blob"}
	summary, err := n.Ingest(context.Background(), doc, &sliceRows{rows: rows}, cfg, "run-1")
	require.NoError(t, err)
	return summary
}

func TestIngest_TallDuplicateSuppressed(t *testing.T) {
	s := sink.NewMemory()
	rows := [][]string{
		{"code", "description", "payer", "plan", "price"},
		{"99213", "Office Visit", "Aetna", "PPO", "150.00"},
		{"99213", "Office Visit", "Aetna", "PPO", "150.00"},
	}

	summary := ingestRows(t, s, tallConfig(), rows)

	assert.Equal(t, int64(2), summary.RowsRead)
	assert.Equal(t, int64(1), summary.ItemsCreated)
	assert.Equal(t, int64(0), summary.ItemsUpdated)
	assert.Equal(t, int64(1), summary.PricesCreated)
	assert.Equal(t, int64(1), summary.DupesSuppressed)
	assert.Equal(t, 1, summary.DistinctPayers)

	require.Len(t, s.Items(), 1)
	require.Len(t, s.Prices("src-1"), 1)
	p := s.Prices("src-1")[0].Price
	assert.Equal(t, "Aetna", p.Payer)
	assert.Equal(t, "PPO", p.Plan)
	require.NotNil(t, p.Amount)
	assert.Equal(t, 150.0, *p.Amount)
}

func TestIngest_WideEmptyCellEmitsNothing(t *testing.T) {
	s := sink.NewMemory()
	rows := [][]string{
		{"code", "description", "Aetna_PPO", "Cigna_HMO"},
		{"99213", "Office Visit", "150.00", ""},
	}

	summary := ingestRows(t, s, wideConfig(), rows)

	assert.Equal(t, int64(1), summary.RowsRead)
	assert.Equal(t, int64(1), summary.PricesCreated)
	assert.Equal(t, int64(0), summary.RowsSkipped)

	prices := s.Prices("src-1")
	require.Len(t, prices, 1)
	assert.Equal(t, "Aetna", prices[0].Price.Payer)
}

func TestIngest_WideEmitsPerParseableCell(t *testing.T) {
	s := sink.NewMemory()
	rows := [][]string{
		{"code", "description", "Aetna_PPO", "Cigna_HMO"},
		{"99213", "Office Visit", "150.00", "140.00"},
		{"99214", "Office Visit Ext", "N/A", "180.00"},
	}

	summary := ingestRows(t, s, wideConfig(), rows)
	assert.Equal(t, int64(3), summary.PricesCreated)
	assert.Equal(t, 2, summary.DistinctPayers)
}

func TestIngest_SkipReasons(t *testing.T) {
	s := sink.NewMemory()
	rows := [][]string{
		{"code", "description", "payer", "plan", "price"},
		{"", "No Code", "Aetna", "PPO", "10.00"},
		{"99213", "Office Visit", "Aetna", "PPO", "N/A"},
		{"99213"},
	}
	summary := ingestRows(t, s, tallConfig(), rows)

	assert.Equal(t, int64(3), summary.RowsRead)
	assert.Equal(t, int64(3), summary.RowsSkipped)
	assert.Equal(t, int64(1), summary.SkipReasons[model.SkipMissingCode])
	// The one-cell row has a code but no price cell at all.
	assert.Equal(t, int64(2), summary.SkipReasons[model.SkipUnparseablePrice])
	assert.Equal(t, int64(0), summary.PricesCreated)
}

func TestIngest_ShortRowBelowCodeBinding(t *testing.T) {
	s := sink.NewMemory()
	cfg := tallConfig()
	cfg.CodeColumn = 4
	cfg.PriceColumn = 0

	rows := [][]string{
		{"price", "description", "payer", "plan", "code"},
		{"150.00", "Office Visit"},
	}

	summary := ingestRows(t, s, cfg, rows)
	assert.Equal(t, int64(1), summary.SkipReasons[model.SkipShortRow])
}

func TestIngest_PlaceholderTaggedNotDropped(t *testing.T) {
	s := sink.NewMemory()
	sent := 99999999.0
	cfg := tallConfig()
	cfg.Sentinel = &sent

	rows := [][]string{
		{"code", "description", "payer", "plan", "price"},
		{"99213", "Office Visit", "Aetna", "PPO", "99999999"},
		{"99214", "Office Visit Ext", "Aetna", "PPO", "175.00"},
	}

	summary := ingestRows(t, s, cfg, rows)

	assert.Equal(t, int64(2), summary.PricesCreated)
	assert.Equal(t, int64(1), summary.Placeholders)

	prices := s.Prices("src-1")
	require.Len(t, prices, 2)
	assert.True(t, prices[0].Price.IsPlaceholder)
	assert.False(t, prices[1].Price.IsPlaceholder)
}

func TestIngest_FormulaTextBecomesNotes(t *testing.T) {
	s := sink.NewMemory()
	rows := [][]string{
		{"code", "description", "payer", "plan", "price"},
		{"470", "Knee Replacement", "Cigna", "HMO", "see contract rate"},
	}
	cfg := tallConfig()
	cfg.CodeTypeTag = model.CodeMSDRG

	summary := ingestRows(t, s, cfg, rows)

	assert.Equal(t, int64(1), summary.PricesCreated)
	assert.Equal(t, int64(0), summary.RowsSkipped)

	p := s.Prices("src-1")[0].Price
	assert.Nil(t, p.Amount)
	assert.Equal(t, "see contract rate", p.Notes)
}

func TestIngest_GrossAndCashPseudoPayers(t *testing.T) {
	s := sink.NewMemory()
	cfg := tallConfig()
	cfg.GrossColumn = 5
	cfg.CashColumn = 6

	rows := [][]string{
		{"code", "description", "payer", "plan", "price", "gross", "cash"},
		{"99213", "Office Visit", "Aetna", "PPO", "150.00", "$500.00", "425.50"},
	}

	summary := ingestRows(t, s, cfg, rows)
	assert.Equal(t, int64(3), summary.PricesCreated)

	byPayer := map[string]float64{}
	for _, sp := range s.Prices("src-1") {
		require.NotNil(t, sp.Price.Amount)
		byPayer[sp.Price.Payer] = *sp.Price.Amount
	}
	assert.Equal(t, 500.0, byPayer[PayerGross])
	assert.Equal(t, 425.5, byPayer[PayerCash])
	assert.Equal(t, 150.0, byPayer["Aetna"])
}

func TestIngest_ReingestReplacesNotAppends(t *testing.T) {
	s := sink.NewMemory()
	rows := [][]string{
		{"code", "description", "payer", "plan", "price"},
		{"99213", "Office Visit", "Aetna", "PPO", "150.00"},
	}

	first := ingestRows(t, s, tallConfig(), rows)
	second := ingestRows(t, s, tallConfig(), rows)

	require.Len(t, s.Prices("src-1"), 1)
	assert.Equal(t, first.PricesCreated, second.PricesCreated)
	assert.Equal(t, first.RowsRead, second.RowsRead)
	// The item already exists on the second pass.
	assert.Equal(t, int64(1), second.ItemsUpdated)
	assert.Equal(t, int64(0), second.ItemsCreated)
}

func TestIngest_HeaderRowOffsetSkipsPreamble(t *testing.T) {
	s := sink.NewMemory()
	cfg := tallConfig()
	cfg.HeaderRow = 2

	rows := [][]string{
		{"General Hospital"},
		{"Effective 2025-01-01"},
		{"code", "description", "payer", "plan", "price"},
		{"99213", "Office Visit", "Aetna", "PPO", "150.00"},
	}

	summary := ingestRows(t, s, cfg, rows)
	assert.Equal(t, int64(1), summary.RowsRead)
	assert.Equal(t, int64(1), summary.PricesCreated)
}

func TestIngest_UnknownLayoutFails(t *testing.T) {
	s := sink.NewMemory()
	cfg := model.NewExtractionConfig("src-1", model.LayoutUnknown)
	cfg.CodeColumn = 0

	n := &Normalizer{Sink: s}
	doc := model.RawDocument{SourceID: "src-1", Path: "blob"}
	_, err := n.Ingest(context.Background(), doc, &sliceRows{rows: [][]string{
		{"code"},
		{"99213"},
	}}, cfg, "run-1")
	require.Error(t, err)
	// Nothing committed.
	assert.Empty(t, s.Prices("src-1"))
}

func TestIngest_CancellationRollsBack(t *testing.T) {
	s := sink.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := &Normalizer{Sink: s}
	doc := model.RawDocument{SourceID: "src-1", Path: "blob"}
	_, err := n.Ingest(ctx, doc, &sliceRows{rows: tallTestRows()}, tallConfig(), "run-1")
	require.Error(t, err)
	assert.Empty(t, s.Prices("src-1"))
}

func tallTestRows() [][]string {
	return [][]string{
		{"code", "description", "payer", "plan", "price"},
		{"99213", "Office Visit", "Aetna", "PPO", "150.00"},
	}
}

func TestIngestSource_MultiDocumentSingleTransaction(t *testing.T) {
	s := sink.NewMemory()
	n := &Normalizer{Sink: s}

	docs := []model.RawDocument{
		{SourceID: "src-1", Path: "blob", Entry: "a.csv"},
		{SourceID: "src-1", Path: "blob", Entry: "b.csv"},
	}
	byEntry := map[string][][]string{
		"a.csv": {
			{"code", "description", "payer", "plan", "price"},
			{"99213", "Office Visit", "Aetna", "PPO", "150.00"},
		},
		"b.csv": {
			{"code", "description", "payer", "plan", "price"},
			{"99214", "Office Visit Ext", "Cigna", "HMO", "175.00"},
			// Exact duplicate of a row in a.csv; dedup spans documents.
			{"99213", "Office Visit", "Aetna", "PPO", "150.00"},
		},
	}
	open := func(doc model.RawDocument) (unpack.RowReader, error) {
		return &sliceRows{rows: byEntry[doc.Entry]}, nil
	}

	summaries, err := n.IngestSource(context.Background(), docs, open, tallConfig(), "run-1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, int64(1), summaries[0].PricesCreated)
	assert.Equal(t, int64(1), summaries[1].PricesCreated)
	assert.Equal(t, int64(1), summaries[1].DupesSuppressed)
	require.Len(t, s.Prices("src-1"), 2)
}
