package sink

import (
	"context"
	"sync"

	"github.com/clearhealth/pricing-cli/internal/model"
)

// MemorySink is an in-memory Sink for tests and dry runs. It honors the
// same replace-by-source and upsert semantics as the database backends.
type MemorySink struct {
	mu     sync.Mutex
	nextID int64
	items  map[model.ItemKey]int64
	attrs  map[int64]model.Item
	prices map[string][]StoredPrice // keyed by source id
	defs   map[string]model.CodeDefinition
}

// StoredPrice is a price as the memory sink holds it.
type StoredPrice struct {
	ItemID int64
	Price  model.Price
}

func NewMemory() *MemorySink {
	return &MemorySink{
		items:  map[model.ItemKey]int64{},
		attrs:  map[int64]model.Item{},
		prices: map[string][]StoredPrice{},
		defs:   map[string]model.CodeDefinition{},
	}
}

func (s *MemorySink) Migrate(ctx context.Context) error { return nil }

func (s *MemorySink) Replace(ctx context.Context, sourceID string) (SourceWriter, error) {
	return &memWriter{sink: s, sourceID: sourceID}, nil
}

func (s *MemorySink) UpsertDefinitions(ctx context.Context, defs []model.CodeDefinition) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range defs {
		s.defs[d.Code+"|"+string(d.CodeType)] = d
	}
	return int64(len(defs)), nil
}

func (s *MemorySink) SourcePriceCount(ctx context.Context, sourceID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.prices[sourceID])), nil
}

func (s *MemorySink) Close() error { return nil }

// Items returns all stored items, for test assertions.
func (s *MemorySink) Items() []model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Item, 0, len(s.attrs))
	for _, item := range s.attrs {
		out = append(out, item)
	}
	return out
}

// Prices returns the stored prices for a source, for test assertions.
func (s *MemorySink) Prices(sourceID string) []StoredPrice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StoredPrice(nil), s.prices[sourceID]...)
}

type memWriter struct {
	sink     *MemorySink
	sourceID string

	mu      sync.Mutex
	created map[model.ItemKey]model.Item
	updated map[int64]model.Item
	pending []StoredPrice
}

func (w *memWriter) UpsertItem(ctx context.Context, item model.Item) (int64, bool, error) {
	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	key := item.Key()
	if id, ok := w.sink.items[key]; ok {
		if w.updated == nil {
			w.updated = map[int64]model.Item{}
		}
		item.ID = id
		w.updated[id] = item
		return id, false, nil
	}

	// Items created inside this uncommitted writer still need stable ids.
	if w.created == nil {
		w.created = map[model.ItemKey]model.Item{}
	}
	if prior, ok := w.created[key]; ok {
		return prior.ID, false, nil
	}

	w.sink.nextID++
	item.ID = w.sink.nextID
	w.created[key] = item
	return item.ID, true, nil
}

func (w *memWriter) AppendPrice(ctx context.Context, itemID int64, p model.Price) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, StoredPrice{ItemID: itemID, Price: p})
	return nil
}

func (w *memWriter) Commit(ctx context.Context) error {
	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()
	w.mu.Lock()
	defer w.mu.Unlock()

	for key, item := range w.created {
		w.sink.items[key] = item.ID
		w.sink.attrs[item.ID] = item
	}
	for id, item := range w.updated {
		w.sink.attrs[id] = item
	}
	w.sink.prices[w.sourceID] = w.pending
	w.created, w.updated, w.pending = nil, nil, nil
	return nil
}

func (w *memWriter) Rollback(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.created, w.updated, w.pending = nil, nil, nil
	return nil
}
