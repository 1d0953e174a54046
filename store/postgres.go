package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"invoice_nft_receipt/invoice"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS receipts (
	cid        TEXT PRIMARY KEY,
	token_uri  TEXT NOT NULL,
	record     JSONB NOT NULL,
	pinned_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres is a RecordStore backed by a pgx pool.
type Postgres struct{ pool *pgxpool.Pool }

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Save(ctx context.Context, r invoice.Receipt) error {
	rec, err := json.Marshal(r.Record)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO receipts(cid, token_uri, record, pinned_at)
		VALUES($1,$2,$3,$4)
		ON CONFLICT (cid) DO UPDATE SET token_uri=EXCLUDED.token_uri, record=EXCLUDED.record, pinned_at=EXCLUDED.pinned_at
	`, r.CID, r.TokenURI, rec, r.PinnedAt)
	return err
}

func (p *Postgres) Get(ctx context.Context, cid string) (invoice.Receipt, error) {
	var (
		r   invoice.Receipt
		rec []byte
	)
	err := p.pool.QueryRow(ctx, `SELECT cid, token_uri, record, pinned_at FROM receipts WHERE cid=$1`, cid).
		Scan(&r.CID, &r.TokenURI, &rec, &r.PinnedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return invoice.Receipt{}, ErrNotFound
	}
	if err != nil {
		return invoice.Receipt{}, err
	}
	if err := json.Unmarshal(rec, &r.Record); err != nil {
		return invoice.Receipt{}, fmt.Errorf("decode record %s: %w", cid, err)
	}
	return r, nil
}

func (p *Postgres) List(ctx context.Context, limit int) ([]invoice.Receipt, error) {
	q := `SELECT cid, token_uri, record, pinned_at FROM receipts ORDER BY pinned_at DESC, cid`
	var args []any
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []invoice.Receipt
	for rows.Next() {
		var (
			r   invoice.Receipt
			rec []byte
		)
		if err := rows.Scan(&r.CID, &r.TokenURI, &rec, &r.PinnedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(rec, &r.Record); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", r.CID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
