package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"invoice_nft_receipt/invoice"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS receipts (
	cid        TEXT PRIMARY KEY,
	token_uri  TEXT NOT NULL,
	record     TEXT NOT NULL,
	pinned_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS receipts_pinned_at ON receipts(pinned_at DESC);
`

// SQLite is a RecordStore on a local database file.
type SQLite struct{ db *sql.DB }

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Save(ctx context.Context, r invoice.Receipt) error {
	rec, err := json.Marshal(r.Record)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO receipts(cid, token_uri, record, pinned_at)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(cid) DO UPDATE SET token_uri=excluded.token_uri, record=excluded.record, pinned_at=excluded.pinned_at
	`, r.CID, r.TokenURI, string(rec), r.PinnedAt.UnixMilli())
	return err
}

func (s *SQLite) Get(ctx context.Context, cid string) (invoice.Receipt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT cid, token_uri, record, pinned_at FROM receipts WHERE cid=?`, cid)
	r, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return invoice.Receipt{}, ErrNotFound
	}
	return r, err
}

func (s *SQLite) List(ctx context.Context, limit int) ([]invoice.Receipt, error) {
	q := `SELECT cid, token_uri, record, pinned_at FROM receipts ORDER BY pinned_at DESC, cid`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []invoice.Receipt
	for rows.Next() {
		r, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row scanner) (invoice.Receipt, error) {
	var (
		r      invoice.Receipt
		rec    string
		millis int64
	)
	if err := row.Scan(&r.CID, &r.TokenURI, &rec, &millis); err != nil {
		return invoice.Receipt{}, err
	}
	if err := json.Unmarshal([]byte(rec), &r.Record); err != nil {
		return invoice.Receipt{}, fmt.Errorf("decode record %s: %w", r.CID, err)
	}
	r.PinnedAt = time.UnixMilli(millis).UTC()
	return r, nil
}
