package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ilnaes/linepad/internal/document"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS documents (
	id          text PRIMARY KEY,
	title       text NOT NULL,
	top_line_id bigint NOT NULL,
	lines       jsonb NOT NULL,
	saved_at    timestamptz NOT NULL
)`

// PostgresStore keeps documents in a single table, lines as jsonb.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Save(ctx context.Context, id, title string, snap document.Snapshot) error {
	snap = stripHolders(snap)
	_, err := p.pool.Exec(ctx, `
		INSERT INTO documents (id, title, top_line_id, lines, saved_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			top_line_id = EXCLUDED.top_line_id,
			lines = EXCLUDED.lines,
			saved_at = EXCLUDED.saved_at`,
		id, title, snap.TopLineID, snap.Lines, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save %s: %w", id, err)
	}
	return nil
}

func (p *PostgresStore) Load(ctx context.Context, id string) (Record, error) {
	rec := Record{Meta: Meta{ID: id}}
	err := p.pool.QueryRow(ctx,
		`SELECT title, top_line_id, lines, saved_at FROM documents WHERE id = $1`, id,
	).Scan(&rec.Title, &rec.Snapshot.TopLineID, &rec.Snapshot.Lines, &rec.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load %s: %w", id, err)
	}
	return rec, nil
}

func (p *PostgresStore) List(ctx context.Context) ([]Meta, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, title, saved_at FROM documents ORDER BY title, id`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	res := []Meta{}
	for rows.Next() {
		var m Meta
		if err := rows.Scan(&m.ID, &m.Title, &m.SavedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
