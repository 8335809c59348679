// Package postgres is the journal.Store backed by PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pcristin/zeroland-landing/internal/journal"
)

var ErrInvalidConfig = errors.New("journal/postgres: invalid config")

type Store struct {
	pool *pgxpool.Pool
}

// Open dials dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%w: empty dsn", ErrInvalidConfig)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("journal/postgres: connect: %w", err)
	}
	s, err := New(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", ErrInvalidConfig)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("journal/postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Record(ctx context.Context, e journal.Entry) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	e, err := journal.Prepare(e, time.Now().UTC())
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO landing_journal (
			id,
			tx_hash,
			network,
			chain_id,
			kind,
			status,
			from_address,
			to_address,
			nonce,
			token,
			amount,
			block_number,
			gas_used,
			explorer_url,
			error,
			created_at,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE
		SET
			tx_hash = EXCLUDED.tx_hash,
			status = EXCLUDED.status,
			block_number = EXCLUDED.block_number,
			gas_used = EXCLUDED.gas_used,
			explorer_url = EXCLUDED.explorer_url,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at
	`,
		e.ID,
		nullableString(e.TxHash),
		e.Network,
		int64(e.ChainID),
		e.Kind,
		e.Status,
		e.From,
		e.To,
		int64(e.Nonce),
		nullableString(e.Token),
		nullableString(e.Amount),
		nullableUint(e.Block),
		nullableUint(e.GasUsed),
		nullableString(e.ExplorerURL),
		nullableString(e.Error),
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("journal/postgres: upsert entry: %w", err)
	}
	return nil
}

const selectColumns = `
	id, tx_hash, network, chain_id, kind, status, from_address, to_address,
	nonce, token, amount, block_number, gas_used, explorer_url, error,
	created_at, updated_at`

func (s *Store) Get(ctx context.Context, id string) (journal.Entry, error) {
	if s == nil || s.pool == nil {
		return journal.Entry{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM landing_journal WHERE id = $1 OR tx_hash = $1 LIMIT 1`, id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return journal.Entry{}, journal.ErrNotFound
		}
		return journal.Entry{}, fmt.Errorf("journal/postgres: get entry: %w", err)
	}
	return e, nil
}

func (s *Store) List(ctx context.Context, limit int) ([]journal.Entry, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+` FROM landing_journal ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal/postgres: list entries: %w", err)
	}
	defer rows.Close()

	var out []journal.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("journal/postgres: scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal/postgres: list entries: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func scanEntry(row pgx.Row) (journal.Entry, error) {
	var (
		e                     journal.Entry
		chainID, nonce        int64
		txHash, token, amount *string
		explorer, errText     *string
		block, gasUsed        *int64
	)
	if err := row.Scan(
		&e.ID,
		&txHash,
		&e.Network,
		&chainID,
		&e.Kind,
		&e.Status,
		&e.From,
		&e.To,
		&nonce,
		&token,
		&amount,
		&block,
		&gasUsed,
		&explorer,
		&errText,
		&e.CreatedAt,
		&e.UpdatedAt,
	); err != nil {
		return journal.Entry{}, err
	}
	e.ChainID = uint64(chainID)
	e.Nonce = uint64(nonce)
	e.TxHash = deref(txHash)
	e.Token = deref(token)
	e.Amount = deref(amount)
	e.ExplorerURL = deref(explorer)
	e.Error = deref(errText)
	if block != nil {
		e.Block = uint64(*block)
	}
	if gasUsed != nil {
		e.GasUsed = uint64(*gasUsed)
	}
	return e, nil
}

func nullableString(v string) any {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return v
}

func nullableUint(v uint64) any {
	if v == 0 {
		return nil
	}
	return int64(v)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
