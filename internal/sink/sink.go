// Package sink is the canonical output boundary of the pipeline. It
// accepts item upserts and price appends with replace-by-source semantics:
// re-ingesting a source atomically swaps that source's prior price set for
// the new one, so ingestion is idempotent and a cancelled run never leaves
// half a source behind.
package sink

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/clearhealth/pricing-cli/internal/config"
	"github.com/clearhealth/pricing-cli/internal/model"
)

// Sink is the canonical store for normalized items and prices. Downstream
// search and API layers read only from here.
type Sink interface {
	Migrate(ctx context.Context) error

	// Replace opens an all-or-nothing writer for one source. Prior prices
	// for the source are removed when the writer commits; nothing changes
	// if it rolls back.
	Replace(ctx context.Context, sourceID string) (SourceWriter, error)

	// UpsertDefinitions loads code reference data, keyed by (code, type).
	UpsertDefinitions(ctx context.Context, defs []model.CodeDefinition) (int64, error)

	// SourcePriceCount reports how many prices a source currently has.
	SourcePriceCount(ctx context.Context, sourceID string) (int64, error)

	Close() error
}

// SourceWriter accumulates one source's normalized output inside a single
// transaction. Item upserts are visible to subsequent AppendPrice calls via
// the returned id even before commit.
type SourceWriter interface {
	// UpsertItem writes or refreshes an item and reports whether it was
	// newly created.
	UpsertItem(ctx context.Context, item model.Item) (id int64, created bool, err error)

	// AppendPrice attaches one price to an item written in this run.
	AppendPrice(ctx context.Context, itemID int64, price model.Price) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Open builds the sink named by configuration.
func Open(ctx context.Context, cfg config.SinkConfig) (Sink, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	case "sqlite", "":
		return NewSQLite(cfg.SQLitePath)
	default:
		return nil, eris.Errorf("sink: unknown driver %q", cfg.Driver)
	}
}
