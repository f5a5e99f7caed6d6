package service

import (
	"context"
	"iter"
	"time"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/mobilemoney"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Clock returns the current time. Services take one so tests can pin dates.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC()
}

type AssetService interface {
	RegisterAsset(ctx context.Context, actor domain.Actor, asset domain.Asset) (domain.Asset, error)
	UpdateAsset(ctx context.Context, actor domain.Actor, id uuid.UUID, patch domain.AssetPatch) (domain.Asset, error)
	RetireAsset(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Asset, error)
	GetAsset(ctx context.Context, id uuid.UUID) (domain.Asset, error)
	// Discover pages through storage lazily; ranging again re-queries.
	Discover(ctx context.Context, filter domain.AssetFilter) iter.Seq2[domain.Asset, error]
}

type CapacityLedger interface {
	Reserve(ctx context.Context, actor domain.Actor, coldRoomID uuid.UUID, kg decimal.Decimal) (domain.Occupancy, error)
	Release(ctx context.Context, actor domain.Actor, coldRoomID uuid.UUID, kg decimal.Decimal) (domain.Occupancy, error)
	OccupancySnapshot(ctx context.Context, coldRoomID uuid.UUID) (domain.Occupancy, error)
}

type CreateRentalInput struct {
	AssetType        domain.AssetType
	AssetID          uuid.UUID
	ClientID         uuid.UUID // staff may book on behalf of a client
	StartDate        time.Time
	EndDate          time.Time
	EstimatedFee     decimal.Decimal
	CapacityNeededKg *decimal.Decimal
}

type RentalService interface {
	CreateRental(ctx context.Context, actor domain.Actor, in CreateRentalInput) (*domain.Rental, error)
	ApproveRental(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Rental, error)
	ActivateRental(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Rental, error)
	CompleteRental(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Rental, error)
	CancelRental(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Rental, error)
	GetRental(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Rental, error)
	ListRentals(ctx context.Context, actor domain.Actor, filter domain.RentalFilter) ([]domain.Rental, int32, error)
	// ExpireStaleRentals cancels REQUESTED and APPROVED rentals whose window has ended.
	ExpireStaleRentals(ctx context.Context) (int, error)
}

type StockService interface {
	CreateProduct(ctx context.Context, actor domain.Actor, name string, unitPrice, initialKg decimal.Decimal) (*domain.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	AdjustStock(ctx context.Context, actor domain.Actor, productID uuid.UUID, typ domain.MovementType, qty decimal.Decimal, reason string) (*domain.StockMovement, *domain.Product, error)
	ListMovements(ctx context.Context, productID uuid.UUID) ([]domain.StockMovement, error)
}

type OrderLine struct {
	ProductID  uuid.UUID       `json:"product_id"`
	QuantityKg decimal.Decimal `json:"quantity_kg"`
}

type OrderService interface {
	CreateOrder(ctx context.Context, actor domain.Actor, deliveryAddress string, lines []OrderLine) (*domain.Order, error)
	GetOrder(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Order, error)
	ApproveOrder(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Order, error)
	RejectOrder(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Order, error)
	InvoiceOrder(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Invoice, error)
}

type InvoiceService interface {
	GenerateInvoice(ctx context.Context, actor domain.Actor, clientID uuid.UUID, items []domain.InvoiceItem) (*domain.Invoice, error)
	InvoiceRental(ctx context.Context, actor domain.Actor, rentalID uuid.UUID) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, actor domain.Actor, filter domain.InvoiceFilter) ([]domain.Invoice, int32, error)
	VoidInvoice(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Invoice, error)
}

type PaymentService interface {
	InitiatePayment(ctx context.Context, actor domain.Actor, invoiceID uuid.UUID, phoneNumber string, amount decimal.Decimal) (*domain.Payment, error)
	OnProviderCallback(ctx context.Context, providerReference string, outcome domain.PaymentOutcome, reason string) (*domain.Payment, error)
	GetPayment(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Payment, error)
	// ExpireStalePayments fails PENDING payments older than the configured TTL.
	ExpireStalePayments(ctx context.Context) (int, error)
	// Wait blocks until in-flight provider dispatches have finished.
	Wait()
}

// PaymentProvider is the outbound side of the mobile-money integration.
type PaymentProvider interface {
	RequestToPay(ctx context.Context, req mobilemoney.PaymentRequest) error
}

// Notifier sends operational notices. Failures are logged, never surfaced.
type Notifier interface {
	RentalRequested(ctx context.Context, rental *domain.Rental) error
	PaymentFailed(ctx context.Context, payment *domain.Payment) error
}
