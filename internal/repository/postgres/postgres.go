package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/logger"
	"coldchain-rental-core/internal/repository"

	"github.com/lib/pq"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so every repository can run
// inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
	repository.Repos
}

var _ repository.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:    db,
		Repos: newRepos(db),
	}
}

func newRepos(q dbtx) repository.Repos {
	return repository.Repos{
		Assets:   NewAssetRepository(q),
		Rentals:  NewRentalRepository(q),
		Products: NewProductRepository(q),
		Orders:   NewOrderRepository(q),
		Invoices: NewInvoiceRepository(q),
		Payments: NewPaymentRepository(q),
	}
}

func (s *Store) Repositories() repository.Repos {
	return s.Repos
}

// WithinTx runs fn in a READ COMMITTED transaction. Serialization per entity
// comes from the SELECT ... FOR UPDATE locks taken by the repositories.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repos) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, newRepos(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// uniqueViolation is the Postgres SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// mapError converts driver errors that callers can act on into domain errors.
func mapError(err error, entity string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return domain.ConflictError("%s already exists (%s)", entity, pqErr.Constraint)
	}
	return err
}

// notFound turns sql.ErrNoRows into a domain NotFoundError.
func notFound(err error, entity string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundError(entity, id)
	}
	return err
}

func logExec(operation, query string, res sql.Result, err error) {
	logger.DatabaseCall(operation, query)
	var rows int64
	if res != nil {
		rows, _ = res.RowsAffected()
	}
	logger.DatabaseResult(operation, rows, err)
}
