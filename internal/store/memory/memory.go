// Package memory is an in-process Store used by tests and local development.
//
// Transactions are serialized by a single mutex and run against a copy of the
// state that replaces the live state only when fn succeeds.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carbon-scribe/credit-ledger/internal/domain"
	"carbon-scribe/credit-ledger/internal/store"
)

type state struct {
	projects      map[uuid.UUID]domain.Project
	reports       map[uuid.UUID]domain.Report
	batches       map[uuid.UUID]domain.CreditBatch
	batchByReport map[uuid.UUID]uuid.UUID
	balances      map[uuid.UUID]decimal.Decimal
	counters      map[string]decimal.Decimal
	orders        map[string]domain.PaymentOrder
	receipts      map[string]string
	events        map[string]domain.PaymentEvent
	retirements   map[uuid.UUID]domain.Retirement
	certificates  map[string]uuid.UUID
}

func newState() *state {
	return &state{
		projects:      make(map[uuid.UUID]domain.Project),
		reports:       make(map[uuid.UUID]domain.Report),
		batches:       make(map[uuid.UUID]domain.CreditBatch),
		batchByReport: make(map[uuid.UUID]uuid.UUID),
		balances:      make(map[uuid.UUID]decimal.Decimal),
		counters:      make(map[string]decimal.Decimal),
		orders:        make(map[string]domain.PaymentOrder),
		receipts:      make(map[string]string),
		events:        make(map[string]domain.PaymentEvent),
		retirements:   make(map[uuid.UUID]domain.Retirement),
		certificates:  make(map[string]uuid.UUID),
	}
}

// Values are stored by value and copied out, so maps.Clone is a full snapshot
// as long as nested pointers are never mutated in place (see copyReport).
func (s *state) clone() *state {
	return &state{
		projects:      maps.Clone(s.projects),
		reports:       maps.Clone(s.reports),
		batches:       maps.Clone(s.batches),
		batchByReport: maps.Clone(s.batchByReport),
		balances:      maps.Clone(s.balances),
		counters:      maps.Clone(s.counters),
		orders:        maps.Clone(s.orders),
		receipts:      maps.Clone(s.receipts),
		events:        maps.Clone(s.events),
		retirements:   maps.Clone(s.retirements),
		certificates:  maps.Clone(s.certificates),
	}
}

// Store is a mutex-serialized in-memory Store
type Store struct {
	*view
	mu    sync.Mutex
	state *state
}

var _ store.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	s := &Store{state: newState()}
	s.view = &view{store: s}
	return s
}

// Atomically runs fn against a snapshot and publishes it when fn returns nil
func (s *Store) Atomically(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&view{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// view implements store.Tx either over a transaction snapshot (st set)
// or over the live state of a Store, taking its lock per call.
type view struct {
	store *Store
	st    *state
}

var _ store.Tx = (*view)(nil)

func (v *view) acquire() (*state, func()) {
	if v.st != nil {
		return v.st, func() {}
	}
	v.store.mu.Lock()
	return v.store.state, v.store.mu.Unlock
}
