// Package store defines the persistence boundary of the ledger.
//
// Every mutation that guards a ledger invariant is expressed as a single
// conditional operation (conditional decrement, compare-and-swap on status,
// unique insert) so that implementations can map it onto one atomic
// statement. Multi-step units run inside Store.Atomically.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carbon-scribe/credit-ledger/internal/domain"
)

// ErrNotFound is returned by getters when no row matches
var ErrNotFound = errors.New("store: record not found")

// ProjectFilter narrows ListProjects
type ProjectFilter struct {
	ManagerID      *uuid.UUID
	OrganizationID *string
	Status         *domain.ProjectStatus
	Limit          int
}

// ReportFilter narrows ListReports. Results are ordered by SubmittedAt,
// newest first unless OldestFirst is set.
type ReportFilter struct {
	ProjectID   *uuid.UUID
	Statuses    []domain.ReportStatus
	MaxAttempts int // only reports with fewer scoring attempts, when > 0
	OldestFirst bool
	Limit       int
}

// ProjectRepository persists projects
type ProjectRepository interface {
	CreateProject(ctx context.Context, p *domain.Project) error
	GetProject(ctx context.Context, id uuid.UUID) (*domain.Project, error)
	// LockProject reads the project and holds its row until the transaction ends.
	LockProject(ctx context.Context, id uuid.UUID) (*domain.Project, error)
	ListProjects(ctx context.Context, filter ProjectFilter) ([]domain.Project, error)
	// UpdateProjectStatus moves the project from -> to only if it is still in from.
	UpdateProjectStatus(ctx context.Context, id uuid.UUID, from, to domain.ProjectStatus, at time.Time) (bool, error)
	DeleteProject(ctx context.Context, id uuid.UUID) error
}

// ReportRepository persists MRV reports
type ReportRepository interface {
	CreateReport(ctx context.Context, r *domain.Report) error
	GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]domain.Report, error)
	CountReportsByProject(ctx context.Context, projectID uuid.UUID) (int64, error)
	// UpdateReport saves r only if the stored status still equals expected.
	UpdateReport(ctx context.Context, r *domain.Report, expected domain.ReportStatus) (bool, error)
}

// CreditRepository persists batches, balances and counters
type CreditRepository interface {
	// CreateBatch inserts b unless a batch already exists for b.ReportID.
	CreateBatch(ctx context.Context, b *domain.CreditBatch) (bool, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*domain.CreditBatch, error)
	GetBatchByReport(ctx context.Context, reportID uuid.UUID) (*domain.CreditBatch, error)
	ListAvailableBatches(ctx context.Context) ([]domain.CreditBatch, error)
	// DecrementBatchSupply subtracts qty only if available_amount >= qty.
	DecrementBatchSupply(ctx context.Context, id uuid.UUID, qty decimal.Decimal) (bool, error)
	SetBatchAnchorReceipt(ctx context.Context, id uuid.UUID, receipt string) error

	GetBalance(ctx context.Context, buyerID uuid.UUID) (decimal.Decimal, error)
	IncrementBalance(ctx context.Context, buyerID uuid.UUID, qty decimal.Decimal) error
	// DecrementBalance subtracts qty only if the balance is >= qty.
	DecrementBalance(ctx context.Context, buyerID uuid.UUID, qty decimal.Decimal) (bool, error)

	IncrementCounter(ctx context.Context, name string, delta decimal.Decimal) error
	GetCounters(ctx context.Context) (map[string]decimal.Decimal, error)
}

// OrderRepository persists payment orders and their idempotency records
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *domain.PaymentOrder) error
	GetOrder(ctx context.Context, id string) (*domain.PaymentOrder, error)
	// TransitionOrder moves the order from -> to only if it is still in from.
	TransitionOrder(ctx context.Context, id string, from, to domain.OrderStatus, reason string, at time.Time) (bool, error)
	// RecordPaymentEvent inserts e unless a record exists for e.OrderID.
	RecordPaymentEvent(ctx context.Context, e *domain.PaymentEvent) (bool, error)
	GetPaymentEvent(ctx context.Context, orderID string) (*domain.PaymentEvent, error)
	SetPaymentEventOutcome(ctx context.Context, orderID string, outcome domain.PaymentOutcome) error
}

// RetirementRepository persists retirements
type RetirementRepository interface {
	CreateRetirement(ctx context.Context, r *domain.Retirement) error
	GetRetirement(ctx context.Context, id uuid.UUID) (*domain.Retirement, error)
	ListRetirements(ctx context.Context, buyerID uuid.UUID) ([]domain.Retirement, error)
	SetRetirementAnchorReceipt(ctx context.Context, id uuid.UUID, receipt string) error
}

// Tx is the full repository surface bound to one transaction
type Tx interface {
	ProjectRepository
	ReportRepository
	CreditRepository
	OrderRepository
	RetirementRepository
}

// Store is the repository surface outside a transaction plus the unit-of-work entry point.
// fn must only use the Tx it is given; calling the Store from inside fn is not allowed.
type Store interface {
	Tx
	Atomically(ctx context.Context, fn func(tx Tx) error) error
}
