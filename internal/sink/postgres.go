package sink

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/clearhealth/pricing-cli/internal/db"
	"github.com/clearhealth/pricing-cli/internal/model"
)

// PostgresSink implements Sink on pgxpool.
type PostgresSink struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresSink with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresSink, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresSink{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS items (
	id          BIGSERIAL PRIMARY KEY,
	hospital_id TEXT NOT NULL,
	code        TEXT NOT NULL,
	code_type   TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	setting     TEXT NOT NULL DEFAULT 'UNKNOWN',
	UNIQUE (hospital_id, code, code_type, setting)
);

CREATE TABLE IF NOT EXISTS prices (
	id             BIGSERIAL PRIMARY KEY,
	item_id        BIGINT NOT NULL REFERENCES items(id),
	source_id      TEXT NOT NULL,
	payer          TEXT NOT NULL,
	plan           TEXT NOT NULL DEFAULT '',
	amount         DOUBLE PRECISION,
	notes          TEXT NOT NULL DEFAULT '',
	is_placeholder BOOLEAN NOT NULL DEFAULT FALSE,
	source_row     BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS code_definitions (
	code       TEXT NOT NULL,
	code_type  TEXT NOT NULL,
	short_text TEXT NOT NULL DEFAULT '',
	long_text  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (code, code_type)
);

CREATE INDEX IF NOT EXISTS idx_prices_item_id ON prices(item_id);
CREATE INDEX IF NOT EXISTS idx_prices_source_id ON prices(source_id);
CREATE INDEX IF NOT EXISTS idx_prices_payer ON prices(payer);
CREATE INDEX IF NOT EXISTS idx_items_code ON items(code);
`

func (s *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

func (s *PostgresSink) Replace(ctx context.Context, sourceID string) (SourceWriter, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin replace")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM prices WHERE source_id = $1`, sourceID); err != nil {
		tx.Rollback(ctx)
		return nil, eris.Wrapf(err, "postgres: clear prices for %s", sourceID)
	}
	return &pgSourceWriter{tx: tx, sourceID: sourceID}, nil
}

func (s *PostgresSink) UpsertDefinitions(ctx context.Context, defs []model.CodeDefinition) (int64, error) {
	rows := make([][]any, 0, len(defs))
	for _, d := range defs {
		rows = append(rows, []any{d.Code, string(d.CodeType), d.ShortText, d.LongText})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "code_definitions",
		Columns:      []string{"code", "code_type", "short_text", "long_text"},
		ConflictKeys: []string{"code", "code_type"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert definitions")
	}
	return n, nil
}

func (s *PostgresSink) SourcePriceCount(ctx context.Context, sourceID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM prices WHERE source_id = $1`, sourceID).Scan(&n)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: count prices for %s", sourceID)
	}
	return n, nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}

const pgBatchSize = 1000

type pgSourceWriter struct {
	tx       pgx.Tx
	sourceID string
	pending  [][]any
}

// xmax = 0 distinguishes a fresh insert from a conflict update within the
// same statement.
const upsertItemSQL = `
INSERT INTO items (hospital_id, code, code_type, description, setting)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (hospital_id, code, code_type, setting)
DO UPDATE SET description = EXCLUDED.description
RETURNING id, (xmax = 0)`

func (w *pgSourceWriter) UpsertItem(ctx context.Context, item model.Item) (int64, bool, error) {
	var id int64
	var created bool
	err := w.tx.QueryRow(ctx, upsertItemSQL,
		item.HospitalID, item.Code, string(item.CodeType), item.Description, item.Setting,
	).Scan(&id, &created)
	if err != nil {
		return 0, false, eris.Wrapf(err, "postgres: upsert item %s/%s", item.HospitalID, item.Code)
	}
	return id, created, nil
}

func (w *pgSourceWriter) AppendPrice(ctx context.Context, itemID int64, p model.Price) error {
	var amount any
	if p.Amount != nil {
		amount = *p.Amount
	}
	w.pending = append(w.pending, []any{
		itemID, w.sourceID, p.Payer, p.Plan, amount, p.Notes, p.IsPlaceholder, p.SourceRow,
	})
	if len(w.pending) >= pgBatchSize {
		return w.flush(ctx)
	}
	return nil
}

var priceColumns = []string{
	"item_id", "source_id", "payer", "plan", "amount", "notes", "is_placeholder", "source_row",
}

func (w *pgSourceWriter) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	_, err := w.tx.CopyFrom(ctx, pgx.Identifier{"prices"}, priceColumns, pgx.CopyFromRows(w.pending))
	if err != nil {
		return eris.Wrapf(err, "postgres: COPY prices for %s", w.sourceID)
	}
	w.pending = w.pending[:0]
	return nil
}

func (w *pgSourceWriter) Commit(ctx context.Context) error {
	if err := w.flush(ctx); err != nil {
		w.tx.Rollback(ctx)
		return err
	}
	if err := w.tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "postgres: commit replace for %s", w.sourceID)
	}
	return nil
}

func (w *pgSourceWriter) Rollback(ctx context.Context) error {
	return w.tx.Rollback(ctx)
}
