package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koindex/koindex/internal/domain"
)

// execer is the part of *pgxpool.Pool used by Postgres.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const createTradesTable = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id      TEXT PRIMARY KEY,
	pair          TEXT NOT NULL,
	price         NUMERIC NOT NULL,
	volume        NUMERIC NOT NULL,
	total_amount  NUMERIC NOT NULL,
	bid_user_id   TEXT NOT NULL,
	ask_user_id   TEXT NOT NULL,
	bid_order_id  TEXT NOT NULL,
	ask_order_id  TEXT NOT NULL,
	color         TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_pair_created_at_idx ON trades (pair, created_at DESC);`

const insertTrade = `
INSERT INTO trades (trade_id, pair, price, volume, total_amount,
	bid_user_id, ask_user_id, bid_order_id, ask_order_id, color, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (trade_id) DO NOTHING`

// Postgres appends trades to the trades table.
type Postgres struct {
	db execer
}

// NewPostgres creates a Postgres sink on db, typically a *pgxpool.Pool.
func NewPostgres(db execer) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the trades table and its index if missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, createTradesTable); err != nil {
		return fmt.Errorf("create trades table: %w", err)
	}
	return nil
}

// Deliver implements engine.TradeSink. Redelivery of a trade is a no-op.
func (p *Postgres) Deliver(ctx context.Context, t domain.Trade) error {
	_, err := p.db.Exec(ctx, insertTrade,
		t.TradeID, t.Pair, t.Price, t.Volume, t.TotalAmount,
		t.BidUserID, t.AskUserID, t.BidOrderID, t.AskOrderID,
		string(t.Color), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.TradeID, err)
	}
	return nil
}
