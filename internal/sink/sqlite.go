package sink

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/clearhealth/pricing-cli/internal/model"
)

// SQLiteSink implements Sink on modernc.org/sqlite for single-machine runs
// without a PostgreSQL instance.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteSink{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS items (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	hospital_id TEXT NOT NULL,
	code        TEXT NOT NULL,
	code_type   TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	setting     TEXT NOT NULL DEFAULT 'UNKNOWN',
	UNIQUE (hospital_id, code, code_type, setting)
);

CREATE TABLE IF NOT EXISTS prices (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	item_id        INTEGER NOT NULL REFERENCES items(id),
	source_id      TEXT NOT NULL,
	payer          TEXT NOT NULL,
	plan           TEXT NOT NULL DEFAULT '',
	amount         REAL,
	notes          TEXT NOT NULL DEFAULT '',
	is_placeholder INTEGER NOT NULL DEFAULT 0,
	source_row     INTEGER NOT NULL DEFAULT 0
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

func (s *SQLiteSink) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteSink) Replace(ctx context.Context, sourceID string) (SourceWriter, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin replace")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM prices WHERE source_id = ?`, sourceID); err != nil {
		tx.Rollback()
		return nil, eris.Wrapf(err, "sqlite: clear prices for %s", sourceID)
	}
	return &sqliteSourceWriter{tx: tx, sourceID: sourceID}, nil
}

func (s *SQLiteSink) UpsertDefinitions(ctx context.Context, defs []model.CodeDefinition) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin definitions")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO code_definitions (code, code_type, short_text, long_text)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (code, code_type)
		DO UPDATE SET short_text = excluded.short_text, long_text = excluded.long_text`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare definitions upsert")
	}
	defer stmt.Close()

	var n int64
	for _, d := range defs {
		if _, err := stmt.ExecContext(ctx, d.Code, string(d.CodeType), d.ShortText, d.LongText); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert definition %s", d.Code)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit definitions")
	}
	return n, nil
}

func (s *SQLiteSink) SourcePriceCount(ctx context.Context, sourceID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM prices WHERE source_id = ?`, sourceID).Scan(&n)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: count prices for %s", sourceID)
	}
	return n, nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

type sqliteSourceWriter struct {
	tx       *sql.Tx
	sourceID string
}

func (w *sqliteSourceWriter) UpsertItem(ctx context.Context, item model.Item) (int64, bool, error) {
	var id int64
	err := w.tx.QueryRowContext(ctx, `
		SELECT id FROM items WHERE hospital_id = ? AND code = ? AND code_type = ? AND setting = ?`,
		item.HospitalID, item.Code, string(item.CodeType), item.Setting).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		res, err := w.tx.ExecContext(ctx, `
			INSERT INTO items (hospital_id, code, code_type, description, setting)
			VALUES (?, ?, ?, ?, ?)`,
			item.HospitalID, item.Code, string(item.CodeType), item.Description, item.Setting)
		if err != nil {
			return 0, false, eris.Wrapf(err, "sqlite: insert item %s/%s", item.HospitalID, item.Code)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, false, eris.Wrap(err, "sqlite: item id")
		}
		return id, true, nil
	case err != nil:
		return 0, false, eris.Wrapf(err, "sqlite: lookup item %s/%s", item.HospitalID, item.Code)
	}

	if _, err := w.tx.ExecContext(ctx, `UPDATE items SET description = ? WHERE id = ?`,
		item.Description, id); err != nil {
		return 0, false, eris.Wrapf(err, "sqlite: update item %d", id)
	}
	return id, false, nil
}

func (w *sqliteSourceWriter) AppendPrice(ctx context.Context, itemID int64, p model.Price) error {
	var amount any
	if p.Amount != nil {
		amount = *p.Amount
	}
	_, err := w.tx.ExecContext(ctx, `
		INSERT INTO prices (item_id, source_id, payer, plan, amount, notes, is_placeholder, source_row)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		itemID, w.sourceID, p.Payer, p.Plan, amount, p.Notes, p.IsPlaceholder, p.SourceRow)
	if err != nil {
		return eris.Wrapf(err, "sqlite: append price for item %d", itemID)
	}
	return nil
}

func (w *sqliteSourceWriter) Commit(ctx context.Context) error {
	if err := w.tx.Commit(); err != nil {
		return eris.Wrapf(err, "sqlite: commit replace for %s", w.sourceID)
	}
	return nil
}

func (w *sqliteSourceWriter) Rollback(ctx context.Context) error {
	return w.tx.Rollback()
}
