package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lpcustody/internal/model"
)

// Store provides Postgres persistence for custody audit events.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Record upserts a batch of audit events keyed by sequence number.
func (s *Store) Record(ctx context.Context, events ...model.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO custody_events (
				seq, kind, ts, owner, counterparty, position_id, new_position_id,
				amount0, amount1, liquidity, asset, paused, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
			ON CONFLICT (seq) DO UPDATE SET
				kind = EXCLUDED.kind,
				ts = EXCLUDED.ts,
				owner = EXCLUDED.owner,
				counterparty = EXCLUDED.counterparty,
				position_id = EXCLUDED.position_id,
				new_position_id = EXCLUDED.new_position_id,
				amount0 = EXCLUDED.amount0,
				amount1 = EXCLUDED.amount1,
				liquidity = EXCLUDED.liquidity,
				asset = EXCLUDED.asset,
				paused = EXCLUDED.paused
		`,
			int64(e.Seq),
			string(e.Kind),
			int64(e.Timestamp),
			e.Owner,
			e.Counterparty,
			int64(e.PositionID),
			int64(e.NewPositionID),
			e.Amount0,
			e.Amount1,
			e.Liquidity,
			e.Asset,
			e.Paused,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns the replay cursor for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var seq uint64
	row := s.pool.QueryRow(ctx, `SELECT last_seq FROM custody_state WHERE name=$1`, name)
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return seq, true, nil
}

// SaveState upserts the replay cursor for a name.
func (s *Store) SaveState(ctx context.Context, name string, seq uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO custody_state (name, last_seq, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_seq = EXCLUDED.last_seq, updated_at = now()
	`, name, seq)
	return err
}
