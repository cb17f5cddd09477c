package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// BatchSupply is a batch's supply next to what completed orders took from it
type BatchSupply struct {
	BatchID   uuid.UUID       `db:"batch_id"`
	Total     decimal.Decimal `db:"total_amount"`
	Available decimal.Decimal `db:"available_amount"`
	Sold      decimal.Decimal `db:"sold"`
}

// BuyerBalance is a buyer's stored balance
type BuyerBalance struct {
	BuyerID uuid.UUID       `db:"buyer_id"`
	Amount  decimal.Decimal `db:"amount"`
}

// Source reads the ledger tables for reconciliation
type Source interface {
	BatchSupplies(ctx context.Context) ([]BatchSupply, error)
	NegativeBalances(ctx context.Context) ([]BuyerBalance, error)
	BalanceTotal(ctx context.Context) (decimal.Decimal, error)
	RetiredTotal(ctx context.Context) (decimal.Decimal, error)
	Counters(ctx context.Context) (map[string]decimal.Decimal, error)
}

// SQLSource reads the ledger with plain SQL, outside the ORM
type SQLSource struct {
	db *sqlx.DB
}

// Connect opens a read connection through lib/pq
func Connect(ctx context.Context, databaseURL string) (*SQLSource, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &SQLSource{db: db}, nil
}

func NewSQLSource(db *sqlx.DB) *SQLSource {
	return &SQLSource{db: db}
}

func (s *SQLSource) Close() error { return s.db.Close() }

const batchSuppliesQuery = `
	SELECT b.id AS batch_id,
	       b.total_amount,
	       b.available_amount,
	       COALESCE(SUM(o.quantity) FILTER (WHERE o.status = 'completed'), 0) AS sold
	FROM credit_batches b
	LEFT JOIN payment_orders o ON o.batch_id = b.id
	GROUP BY b.id, b.total_amount, b.available_amount
	ORDER BY b.minted_at
`

func (s *SQLSource) BatchSupplies(ctx context.Context) ([]BatchSupply, error) {
	var out []BatchSupply
	if err := s.db.SelectContext(ctx, &out, batchSuppliesQuery); err != nil {
		return nil, fmt.Errorf("failed to read batch supplies: %w", err)
	}
	return out, nil
}

func (s *SQLSource) NegativeBalances(ctx context.Context) ([]BuyerBalance, error) {
	var out []BuyerBalance
	if err := s.db.SelectContext(ctx, &out, `SELECT buyer_id, amount FROM balances WHERE amount < 0`); err != nil {
		return nil, fmt.Errorf("failed to read balances: %w", err)
	}
	return out, nil
}

func (s *SQLSource) BalanceTotal(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := s.db.GetContext(ctx, &total, `SELECT COALESCE(SUM(amount), 0) FROM balances`); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum balances: %w", err)
	}
	return total, nil
}

func (s *SQLSource) RetiredTotal(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := s.db.GetContext(ctx, &total, `SELECT COALESCE(SUM(amount), 0) FROM retirements`); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum retirements: %w", err)
	}
	return total, nil
}

func (s *SQLSource) Counters(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT name, value FROM ledger_counters`)
	if err != nil {
		return nil, fmt.Errorf("failed to read counters: %w", err)
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			name  string
			value decimal.Decimal
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan counter: %w", err)
		}
		out[name] = value
	}
	return out, rows.Err()
}
