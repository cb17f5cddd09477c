// Package postgres implements store.Store on PostgreSQL through gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"carbon-scribe/credit-ledger/internal/config"
	"carbon-scribe/credit-ledger/internal/domain"
	"carbon-scribe/credit-ledger/internal/store"
)

const txAttempts = 3

// Store is the gorm-backed store
type Store struct {
	*repo
	db     *gorm.DB
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects to the database described by cfg and configures the pool
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseURL()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxConnections > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)
	}

	return New(db, log), nil
}

// New wraps an existing gorm handle
func New(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{repo: &repo{db: db}, db: db, logger: log}
}

// DB exposes the underlying handle for health checks
func (s *Store) DB() *gorm.DB { return s.db }

// Migrate creates or updates the ledger tables
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&domain.Project{},
		&domain.Report{},
		&domain.CreditBatch{},
		&domain.Balance{},
		&domain.LedgerCounter{},
		&domain.PaymentOrder{},
		&domain.PaymentEvent{},
		&domain.Retirement{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Atomically runs fn in a database transaction, retrying on deadlock and
// serialization failures. fn may run more than once.
func (s *Store) Atomically(ctx context.Context, fn func(tx store.Tx) error) error {
	var lastErr error
	for i := 0; i < txAttempts; i++ {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(&repo{db: tx})
		})
		if err == nil {
			return nil
		}
		lastErr = err

		if isRetryable(err) && i < txAttempts-1 {
			s.logger.Warn("retrying transaction", zap.Int("attempt", i+1), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(50*(i+1)) * time.Millisecond):
			}
			continue
		}
		return err
	}
	return lastErr
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// repo implements store.Tx over either the pool or a transaction handle
type repo struct {
	db *gorm.DB
}

var _ store.Tx = (*repo)(nil)

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

// exists is used after a conditional update matched no rows to tell a
// failed guard apart from a missing row
func (r *repo) exists(ctx context.Context, model any, where string, args ...any) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(model).Where(where, args...).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
