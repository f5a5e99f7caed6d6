// Package memory is an in-process Store used by tests and by the server when
// database.driver is "memory". Transactions are serialized behind one mutex
// and applied copy-on-write: fn works on a clone that replaces the live state
// only when fn succeeds.
package memory

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/repository"

	"github.com/google/uuid"
)

type state struct {
	assets     map[uuid.UUID]domain.Asset
	rentals    map[uuid.UUID]domain.Rental
	products   map[uuid.UUID]domain.Product
	movements  map[uuid.UUID][]domain.StockMovement
	orders     map[uuid.UUID]domain.Order
	invoices   map[uuid.UUID]domain.Invoice
	payments   map[uuid.UUID]domain.Payment
	invoiceSeq int64
}

func newState() *state {
	return &state{
		assets:    make(map[uuid.UUID]domain.Asset),
		rentals:   make(map[uuid.UUID]domain.Rental),
		products:  make(map[uuid.UUID]domain.Product),
		movements: make(map[uuid.UUID][]domain.StockMovement),
		orders:    make(map[uuid.UUID]domain.Order),
		invoices:  make(map[uuid.UUID]domain.Invoice),
		payments:  make(map[uuid.UUID]domain.Payment),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.assets {
		c.assets[k] = cloneAsset(v)
	}
	for k, v := range s.rentals {
		c.rentals[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.movements {
		c.movements[k] = slices.Clone(v)
	}
	for k, v := range s.orders {
		v.Items = slices.Clone(v.Items)
		c.orders[k] = v
	}
	for k, v := range s.invoices {
		v.Items = slices.Clone(v.Items)
		c.invoices[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	c.invoiceSeq = s.invoiceSeq
	return c
}

// cloneAsset copies the concrete variant so callers never alias stored state.
func cloneAsset(a domain.Asset) domain.Asset {
	switch v := a.(type) {
	case *domain.ColdRoom:
		c := *v
		if v.TemperatureMin != nil {
			m := *v.TemperatureMin
			c.TemperatureMin = &m
		}
		if v.TemperatureMax != nil {
			m := *v.TemperatureMax
			c.TemperatureMax = &m
		}
		return &c
	case *domain.ColdBox:
		c := *v
		return &c
	case *domain.ColdPlate:
		c := *v
		return &c
	case *domain.Tricycle:
		c := *v
		return &c
	}
	return a
}

type Store struct {
	mu    sync.Mutex
	state *state
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{state: newState()}
}

// access hands a repository the state it should work on. Inside a
// transaction that is the private clone and the store lock is already held.
type access struct {
	store *Store
	tx    *state
}

func (a access) with(fn func(st *state) error) error {
	if a.tx != nil {
		return fn(a.tx)
	}
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	return fn(a.store.state)
}

func (s *Store) repos(a access) repository.Repos {
	return repository.Repos{
		Assets:   &assetRepository{a},
		Rentals:  &rentalRepository{a},
		Products: &productRepository{a},
		Orders:   &orderRepository{a},
		Invoices: &invoiceRepository{a},
		Payments: &paymentRepository{a},
	}
}

func (s *Store) Repositories() repository.Repos {
	return s.repos(access{store: s})
}

// WithinTx must not be re-entered from fn, and fn must only use the repos it
// is given.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, s.repos(access{store: s, tx: work})); err != nil {
		return err
	}
	s.state = work
	return nil
}

func compareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

// page slices items for a 1-based page.
func page[T any](items []T, pageNum, limit int32) []T {
	pageNum, limit = domain.NormalizePage(pageNum, limit)
	start := domain.PageOffset(pageNum, limit)
	if start >= int64(len(items)) {
		return nil
	}
	end := min(start+int64(limit), int64(len(items)))
	return items[start:end]
}
