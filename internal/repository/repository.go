package repository

import (
	"context"
	"time"

	"coldchain-rental-core/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Lookups return a domain NotFoundError when the row does not exist.
// ...ForUpdate variants lock the row until the surrounding transaction ends;
// outside a transaction they behave like the plain lookup.

type AssetRepository interface {
	Create(ctx context.Context, asset domain.Asset) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.Asset, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Asset, error)
	// Update persists every attribute except a cold room's used capacity,
	// which only ReserveCapacity and ReleaseCapacity write.
	Update(ctx context.Context, asset domain.Asset) error
	// List returns up to limit assets with id > after, ordered by id.
	List(ctx context.Context, filter domain.AssetFilter, after uuid.UUID, limit int) ([]domain.Asset, error)

	// ReserveCapacity is a single check-and-increment. It fails with
	// *domain.CapacityExceededError and changes nothing when used+kg > total.
	ReserveCapacity(ctx context.Context, coldRoomID uuid.UUID, kg decimal.Decimal, now time.Time) (*domain.ColdRoom, error)
	// ReleaseCapacity fails with a ValidationError when kg > used.
	ReleaseCapacity(ctx context.Context, coldRoomID uuid.UUID, kg decimal.Decimal, now time.Time) (*domain.ColdRoom, error)
}

type RentalRepository interface {
	Create(ctx context.Context, rental *domain.Rental) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Rental, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Rental, error)
	Update(ctx context.Context, rental *domain.Rental) error
	// ListClaims returns the REQUESTED, APPROVED and ACTIVE rentals of an asset.
	ListClaims(ctx context.Context, assetID uuid.UUID) ([]domain.Rental, error)
	List(ctx context.Context, filter domain.RentalFilter) ([]domain.Rental, int32, error)
	// ListExpired returns not-yet-active rentals whose window ended before cutoff.
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]domain.Rental, error)
}

type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	UpdateQuantity(ctx context.Context, product *domain.Product) error
	AppendMovement(ctx context.Context, movement *domain.StockMovement) error
	ListMovements(ctx context.Context, productID uuid.UUID) ([]domain.StockMovement, error)
}

type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	Update(ctx context.Context, order *domain.Order) error
}

type InvoiceRepository interface {
	NextNumber(ctx context.Context) (int64, error)
	Create(ctx context.Context, invoice *domain.Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)
	Update(ctx context.Context, invoice *domain.Invoice) error
	List(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, int32, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByReferenceForUpdate(ctx context.Context, providerReference string) (*domain.Payment, error)
	Update(ctx context.Context, payment *domain.Payment) error
	SumPending(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Payment, error)
}

// Repos groups repositories bound to the same connection or transaction.
type Repos struct {
	Assets   AssetRepository
	Rentals  RentalRepository
	Products ProductRepository
	Orders   OrderRepository
	Invoices InvoiceRepository
	Payments PaymentRepository
}

// TxManager runs fn inside one transaction. A non-nil return rolls back
// every write made through the supplied repos.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error
}

// Store is what services are built from: plain repos for reads and a
// transaction boundary for writes.
type Store interface {
	TxManager
	Repositories() Repos
}
