package ingest

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/clearhealth/pricing-cli/internal/model"
	"github.com/clearhealth/pricing-cli/internal/sink"
	"github.com/clearhealth/pricing-cli/internal/unpack"
)

// Normalizer ingests documents into a sink.
type Normalizer struct {
	Sink sink.Sink
}

// OpenRows opens the row stream for one document.
type OpenRows func(model.RawDocument) (unpack.RowReader, error)

// IngestSource streams every document of one source through the config and
// commits the result as a single replace-by-source transaction: either all
// of the source's new prices land, or none do, so a cancelled or failed
// run never leaves a source half-written. Row-level problems are tallied
// per document; any read or sink failure rolls the whole source back.
func (n *Normalizer) IngestSource(ctx context.Context, docs []model.RawDocument, open OpenRows, cfg model.ExtractionConfig, runID string) ([]model.IngestSummary, error) {
	w, err := n.Sink.Replace(ctx, cfg.SourceID)
	if err != nil {
		return nil, err
	}

	// Item ids and duplicate suppression span all documents in the run.
	ss := &sourceState{
		cfg:     cfg,
		writer:  w,
		itemIDs: map[model.ItemKey]int64{},
		dedup:   map[model.PriceDedupKey]struct{}{},
	}

	var summaries []model.IngestSummary
	for _, doc := range docs {
		summary, err := n.ingestDoc(ctx, doc, open, ss, runID)
		if err != nil {
			w.Rollback(ctx)
			return nil, err
		}
		summaries = append(summaries, summary)
	}

	if err := w.Commit(ctx); err != nil {
		return nil, err
	}
	return summaries, nil
}

// Ingest handles the common single-document case with an already open row
// stream.
func (n *Normalizer) Ingest(ctx context.Context, doc model.RawDocument, rows unpack.RowReader, cfg model.ExtractionConfig, runID string) (model.IngestSummary, error) {
	summaries, err := n.IngestSource(ctx, []model.RawDocument{doc},
		func(model.RawDocument) (unpack.RowReader, error) { return rows, nil },
		cfg, runID)
	if err != nil {
		return model.IngestSummary{}, err
	}
	return summaries[0], nil
}

func (n *Normalizer) ingestDoc(ctx context.Context, doc model.RawDocument, open OpenRows, ss *sourceState, runID string) (model.IngestSummary, error) {
	rows, err := open(doc)
	if err != nil {
		return model.IngestSummary{}, err
	}
	defer rows.Close()

	st := &docState{
		sourceState: ss,
		summary: model.IngestSummary{
			RunID:     runID,
			SourceID:  doc.SourceID,
			Path:      doc.Path,
			StartedAt: time.Now().UTC(),
		},
		payers: map[string]struct{}{},
	}

	if err := n.stream(ctx, rows, st); err != nil {
		return model.IngestSummary{}, err
	}

	st.summary.DistinctPayers = len(st.payers)
	st.summary.CompletedAt = time.Now().UTC()

	zap.L().Info("document ingested",
		zap.String("source_id", doc.SourceID),
		zap.String("entry", doc.Entry),
		zap.Int64("rows_read", st.summary.RowsRead),
		zap.Int64("rows_skipped", st.summary.RowsSkipped),
		zap.Int64("prices_created", st.summary.PricesCreated),
		zap.Int64("dupes_suppressed", st.summary.DupesSuppressed))
	return st.summary, nil
}

// sourceState is shared across every document of one source.
type sourceState struct {
	cfg     model.ExtractionConfig
	writer  sink.SourceWriter
	itemIDs map[model.ItemKey]int64
	dedup   map[model.PriceDedupKey]struct{}
}

// docState adds the per-document tallies.
type docState struct {
	*sourceState
	summary model.IngestSummary
	payers  map[string]struct{}
	rowNum  int64
}

func (n *Normalizer) stream(ctx context.Context, rows unpack.RowReader, st *docState) error {
	for {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "ingest: cancelled")
		}
		row, err := rows.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "ingest: read row")
		}

		// Rows up to and including the header carry no data.
		if st.rowNum <= int64(st.cfg.HeaderRow) {
			st.rowNum++
			continue
		}
		st.rowNum++

		st.summary.RowsRead++
		if err := n.processRow(ctx, row, st); err != nil {
			return err
		}
	}
}

func (n *Normalizer) processRow(ctx context.Context, row []string, st *docState) error {
	cfg := st.cfg

	if cfg.CodeColumn >= len(row) {
		st.summary.Skip(model.SkipShortRow)
		return nil
	}
	item, ok := itemFromRow(row, cfg, cfg.SourceID)
	if !ok {
		st.summary.Skip(model.SkipMissingCode)
		return nil
	}

	itemID, err := n.upsertItem(ctx, item, st)
	if err != nil {
		return err
	}
	key := item.Key()
	rowNotes := cell(row, cfg.NotesColumn)

	emitted := 0
	emit := func(p model.Price, payer, plan string) error {
		p.ItemKey = key
		p.Payer = payer
		p.Plan = plan
		p.Notes = joinNotes(rowNotes, p.Notes)
		p.SourceRow = st.rowNum - 1

		if _, dup := st.dedup[p.DedupKey()]; dup {
			st.summary.DupesSuppressed++
			return nil
		}
		st.dedup[p.DedupKey()] = struct{}{}

		if err := st.writer.AppendPrice(ctx, itemID, p); err != nil {
			return err
		}
		st.summary.PricesCreated++
		if p.IsPlaceholder {
			st.summary.Placeholders++
		}
		st.payers[payer] = struct{}{}
		emitted++
		return nil
	}

	// Standard charge classes apply to both layouts.
	if p, ok := parsePriceCell(cell(row, cfg.GrossColumn), cfg.Sentinel); ok {
		if err := emit(p, PayerGross, ""); err != nil {
			return err
		}
	}
	if p, ok := parsePriceCell(cell(row, cfg.CashColumn), cfg.Sentinel); ok {
		if err := emit(p, PayerCash, ""); err != nil {
			return err
		}
	}

	switch cfg.Layout {
	case model.LayoutTall:
		raw := cell(row, cfg.PriceColumn)
		p, ok := parsePriceCell(raw, cfg.Sentinel)
		if !ok {
			if emitted == 0 {
				st.summary.Skip(model.SkipUnparseablePrice)
			}
			return nil
		}
		payer := cell(row, cfg.PayerColumn)
		if payer == "" {
			payer = "UNKNOWN"
		}
		return emit(p, payer, cell(row, cfg.PlanColumn))

	case model.LayoutWide:
		for _, pc := range cfg.PayerColumns {
			p, ok := parsePriceCell(cell(row, pc.Index), cfg.Sentinel)
			if !ok {
				continue
			}
			if err := emit(p, pc.Payer, pc.Plan); err != nil {
				return err
			}
		}
		return nil

	default:
		return eris.Errorf("ingest: source %s: layout %q not ingestable", cfg.SourceID, cfg.Layout)
	}
}

func (n *Normalizer) upsertItem(ctx context.Context, item model.Item, st *docState) (int64, error) {
	key := item.Key()
	if id, ok := st.itemIDs[key]; ok {
		return id, nil
	}
	id, created, err := st.writer.UpsertItem(ctx, item)
	if err != nil {
		return 0, err
	}
	st.itemIDs[key] = id
	if created {
		st.summary.ItemsCreated++
	} else {
		st.summary.ItemsUpdated++
	}
	return id, nil
}
