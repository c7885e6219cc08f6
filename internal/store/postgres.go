package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kmaox/auctionhouse/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision;
// durations are stored as nanoseconds.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) SaveAuction(ctx context.Context, a *model.Auction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO auctions (unit_id, amount, start_time, end_time, reserve_price, bidder, settled, time_buffer_ns, min_increment_pct)
		 VALUES ($1, $2::NUMERIC, $3, $4, $5::NUMERIC, $6, $7, $8, $9)
		 ON CONFLICT (unit_id) DO UPDATE SET
		   amount = EXCLUDED.amount,
		   end_time = EXCLUDED.end_time,
		   bidder = EXCLUDED.bidder,
		   settled = EXCLUDED.settled`,
		a.UnitID, a.Amount.String(), a.StartTime, a.EndTime,
		a.ReservePrice.String(), a.Bidder, a.Settled,
		a.TimeBuffer.Nanoseconds(), a.MinIncrementPct,
	)
	return err
}

func (s *PostgresStore) LatestAuction(ctx context.Context) (*model.Auction, error) {
	var a model.Auction
	var amount, reserve string
	var bufferNs int64

	err := s.pool.QueryRow(ctx,
		`SELECT unit_id, amount::TEXT, start_time, end_time,
		        reserve_price::TEXT, bidder, settled, time_buffer_ns, min_increment_pct
		 FROM auctions ORDER BY start_time DESC LIMIT 1`).
		Scan(&a.UnitID, &amount, &a.StartTime, &a.EndTime,
			&reserve, &a.Bidder, &a.Settled, &bufferNs, &a.MinIncrementPct)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest auction: %w", err)
	}

	a.Amount, _ = decimal.NewFromString(amount)
	a.ReservePrice, _ = decimal.NewFromString(reserve)
	a.TimeBuffer = time.Duration(bufferNs)

	return &a, nil
}

func (s *PostgresStore) InsertSettlement(ctx context.Context, st *model.Settlement) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settlements (id, unit_id, winner, amount, settled_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5)`,
		st.ID, st.UnitID, st.Winner, st.Amount.String(), st.SettledAt,
	)
	return err
}

func (s *PostgresStore) ListSettlements(ctx context.Context) ([]model.Settlement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, unit_id, winner, amount::TEXT, settled_at
		 FROM settlements ORDER BY settled_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Settlement
	for rows.Next() {
		var st model.Settlement
		var amount string
		if err := rows.Scan(&st.ID, &st.UnitID, &st.Winner, &amount, &st.SettledAt); err != nil {
			return nil, err
		}
		st.Amount, _ = decimal.NewFromString(amount)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveUnit(ctx context.Context, u *model.Unit) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO units (id, owner, bonus, minted_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET owner = EXCLUDED.owner`,
		u.ID, u.Owner, u.Bonus, u.MintedAt,
	)
	return err
}

func (s *PostgresStore) ListUnits(ctx context.Context) ([]model.Unit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner, bonus, minted_at FROM units ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUnits(rows)
}

func (s *PostgresStore) ListUnitsByOwner(ctx context.Context, owner string) ([]model.Unit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner, bonus, minted_at
		 FROM units WHERE owner = $1 ORDER BY id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUnits(rows)
}

func scanUnits(rows pgx.Rows) ([]model.Unit, error) {
	var out []model.Unit
	for rows.Next() {
		var u model.Unit
		if err := rows.Scan(&u.ID, &u.Owner, &u.Bonus, &u.MintedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
