package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/metrics"
	"coldchain-rental-core/internal/mobilemoney"
	"coldchain-rental-core/internal/repository/memory"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) RentalRequested(ctx context.Context, r *domain.Rental) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockNotifier) PaymentFailed(ctx context.Context, p *domain.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) RequestToPay(ctx context.Context, req mobilemoney.PaymentRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

// testClock is a settable clock shared by every service in a fixture.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	ctx      context.Context
	store    *memory.Store
	clock    *testClock
	notifier *MockNotifier
	provider *MockProvider

	assets   AssetService
	ledger   CapacityLedger
	rentals  RentalService
	stock    StockService
	orders   OrderService
	invoices InvoiceService
	payments PaymentService

	manager  domain.Actor
	admin    domain.Actor
	buyer    domain.Actor
	supplier domain.Actor
}

var day0 = time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:      context.Background(),
		store:    memory.NewStore(),
		clock:    &testClock{now: day0},
		notifier: new(MockNotifier),
		provider: new(MockProvider),
		manager:  domain.Actor{UserID: uuid.New(), Role: domain.RoleSiteManager},
		admin:    domain.Actor{UserID: uuid.New(), Role: domain.RoleAdmin},
		buyer:    domain.Actor{UserID: uuid.New(), Role: domain.RoleBuyer},
		supplier: domain.Actor{UserID: uuid.New(), Role: domain.RoleSupplier},
	}
	f.notifier.On("RentalRequested", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.notifier.On("PaymentFailed", mock.Anything, mock.Anything).Return(nil).Maybe()

	m := metrics.New(prometheus.NewRegistry())
	now := f.clock.Now
	f.assets = NewAssetService(f.store, m, now)
	f.ledger = NewCapacityLedger(f.store, m, now)
	f.rentals = NewRentalService(f.store, f.notifier, m, now)
	f.stock = NewStockService(f.store, now)
	f.orders = NewOrderService(f.store, m, now)
	f.invoices = NewInvoiceService(f.store, m, now)
	f.payments = NewPaymentService(f.store, f.provider, f.notifier, m, now, PaymentOptions{
		PendingTTL:     time.Hour,
		MaxTries:       3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})
	t.Cleanup(f.payments.Wait)
	return f
}

func kg(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func kgPtr(v int64) *decimal.Decimal {
	d := kg(v)
	return &d
}

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func (f *fixture) coldRoom(t *testing.T, total, used int64) *domain.ColdRoom {
	t.Helper()
	lo, hi := 2.0, 8.0
	a, err := f.assets.RegisterAsset(f.ctx, f.manager, &domain.ColdRoom{
		AssetBase:       domain.AssetBase{SiteID: uuid.New()},
		Name:            "Kariakoo room 1",
		TotalCapacityKg: kg(total),
		TemperatureMin:  &lo,
		TemperatureMax:  &hi,
		PowerType:       domain.PowerTypeSolar,
	})
	require.NoError(t, err)
	room := a.(*domain.ColdRoom)
	if used > 0 {
		_, err := f.ledger.Reserve(f.ctx, f.manager, room.ID, kg(used))
		require.NoError(t, err)
	}
	return room
}

func (f *fixture) coldBox(t *testing.T) *domain.ColdBox {
	t.Helper()
	a, err := f.assets.RegisterAsset(f.ctx, f.manager, domain.NewColdBox(uuid.New(), "CB-1", "40L", "ice packs"))
	require.NoError(t, err)
	return a.(*domain.ColdBox)
}

func (f *fixture) used(t *testing.T, roomID uuid.UUID) decimal.Decimal {
	t.Helper()
	occ, err := f.ledger.OccupancySnapshot(f.ctx, roomID)
	require.NoError(t, err)
	return occ.UsedKg
}

func (f *fixture) boxRental(t *testing.T, boxID uuid.UUID, start, end string) *domain.Rental {
	t.Helper()
	r, err := f.rentals.CreateRental(f.ctx, f.buyer, CreateRentalInput{
		AssetType:    domain.AssetTypeColdBox,
		AssetID:      boxID,
		StartDate:    date(start),
		EndDate:      date(end),
		EstimatedFee: kg(15000),
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) invoice(t *testing.T, client domain.Actor, total int64) *domain.Invoice {
	t.Helper()
	inv, err := f.invoices.GenerateInvoice(f.ctx, f.admin, client.UserID, []domain.InvoiceItem{
		{Description: "Cold room storage", Quantity: kg(1), Unit: "month", UnitPrice: kg(total)},
	})
	require.NoError(t, err)
	return inv
}
