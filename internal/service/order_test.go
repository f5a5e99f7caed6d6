package service

import (
	"bytes"
	"context"
	"testing"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sumMovements(ms []domain.StockMovement) decimal.Decimal {
	total := decimal.Zero
	for _, m := range ms {
		total = total.Add(m.QuantityKg)
	}
	return total
}

func TestStockService_AdjustStock(t *testing.T) {
	f := newFixture(t)
	p, err := f.stock.CreateProduct(f.ctx, f.supplier, "Tilapia", kg(8000), kg(10))
	require.NoError(t, err)

	m, updated, err := f.stock.AdjustStock(f.ctx, f.supplier, p.ID, domain.MovementTypeOut, kg(5), "sale")
	require.NoError(t, err)
	assert.True(t, m.QuantityKg.Equal(kg(-5)))
	assert.True(t, updated.QuantityKg.Equal(kg(5)))

	ledger, err := f.stock.ListMovements(f.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.True(t, sumMovements(ledger).Equal(kg(5)))
}

func TestStockService_Rejections(t *testing.T) {
	f := newFixture(t)
	p, err := f.stock.CreateProduct(f.ctx, f.supplier, "Sardines", kg(3000), kg(4))
	require.NoError(t, err)

	_, _, err = f.stock.AdjustStock(f.ctx, f.supplier, p.ID, domain.MovementTypeOut, kg(5), "sale")
	assert.ErrorIs(t, err, domain.ErrConflict)
	_, _, err = f.stock.AdjustStock(f.ctx, f.supplier, p.ID, domain.MovementTypeIn, decimal.Zero, "count")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, _, err = f.stock.AdjustStock(f.ctx, f.supplier, p.ID, domain.MovementType("LOST"), kg(1), "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, _, err = f.stock.AdjustStock(f.ctx, f.buyer, p.ID, domain.MovementTypeIn, kg(1), "")
	assert.ErrorIs(t, err, domain.ErrPermission)
	_, err = f.stock.CreateProduct(f.ctx, f.supplier, "  ", kg(1), kg(0))
	assert.ErrorIs(t, err, domain.ErrValidation)

	got, err := f.stock.GetProduct(f.ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.QuantityKg.Equal(kg(4)))
}

func TestOrderService_CreateOrder(t *testing.T) {
	f := newFixture(t)
	fish, err := f.stock.CreateProduct(f.ctx, f.supplier, "Tilapia", decimal.RequireFromString("7500.50"), kg(100))
	require.NoError(t, err)
	milk, err := f.stock.CreateProduct(f.ctx, f.supplier, "Milk", kg(1200), kg(50))
	require.NoError(t, err)

	o, err := f.orders.CreateOrder(f.ctx, f.buyer, "Stall 14, Kariakoo", []OrderLine{
		{ProductID: fish.ID, QuantityKg: kg(2)},
		{ProductID: milk.ID, QuantityKg: kg(10)},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRequested, o.Status)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("27001")))

	cases := []struct {
		name    string
		address string
		lines   []OrderLine
	}{
		{name: "empty address", address: " ", lines: []OrderLine{{ProductID: fish.ID, QuantityKg: kg(1)}}},
		{name: "no items", address: "Stall 1"},
		{name: "zero quantity", address: "Stall 1", lines: []OrderLine{{ProductID: fish.ID, QuantityKg: decimal.Zero}}},
		{name: "unknown product", address: "Stall 1", lines: []OrderLine{{ProductID: uuid.New(), QuantityKg: kg(1)}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.orders.CreateOrder(f.ctx, f.buyer, tc.address, tc.lines)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestOrderService_ApproveDeductsStock(t *testing.T) {
	f := newFixture(t)
	fish, err := f.stock.CreateProduct(f.ctx, f.supplier, "Tilapia", kg(7000), kg(10))
	require.NoError(t, err)
	big, err := f.orders.CreateOrder(f.ctx, f.buyer, "Stall 2", []OrderLine{{ProductID: fish.ID, QuantityKg: kg(12)}})
	require.NoError(t, err)
	small, err := f.orders.CreateOrder(f.ctx, f.buyer, "Stall 2", []OrderLine{{ProductID: fish.ID, QuantityKg: kg(6)}})
	require.NoError(t, err)

	_, err = f.orders.ApproveOrder(f.ctx, f.supplier, big.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
	got, err := f.orders.GetOrder(f.ctx, f.buyer, big.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRequested, got.Status)

	approved, err := f.orders.ApproveOrder(f.ctx, f.supplier, small.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusApproved, approved.Status)

	p, err := f.stock.GetProduct(f.ctx, fish.ID)
	require.NoError(t, err)
	assert.True(t, p.QuantityKg.Equal(kg(4)))
	ledger, err := f.stock.ListMovements(f.ctx, fish.ID)
	require.NoError(t, err)
	assert.True(t, sumMovements(ledger).Equal(p.QuantityKg))

	rejected, err := f.orders.RejectOrder(f.ctx, f.supplier, big.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRejected, rejected.Status)
	_, err = f.orders.ApproveOrder(f.ctx, f.supplier, big.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestOrderService_InvoicePaidCompletesOrder(t *testing.T) {
	f := newFixture(t)
	fish, err := f.stock.CreateProduct(f.ctx, f.supplier, "Tilapia", kg(5000), kg(10))
	require.NoError(t, err)
	o, err := f.orders.CreateOrder(f.ctx, f.buyer, "Stall 3", []OrderLine{{ProductID: fish.ID, QuantityKg: kg(4)}})
	require.NoError(t, err)

	_, err = f.orders.InvoiceOrder(f.ctx, f.supplier, o.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.orders.ApproveOrder(f.ctx, f.supplier, o.ID)
	require.NoError(t, err)
	inv, err := f.orders.InvoiceOrder(f.ctx, f.supplier, o.ID)
	require.NoError(t, err)
	require.NotNil(t, inv.OrderID)
	assert.Equal(t, o.ID, *inv.OrderID)
	assert.Equal(t, o.ClientID, inv.ClientID)
	assert.True(t, inv.TotalAmount.Equal(kg(20000)))
	assert.Equal(t, "kg", inv.Items[0].Unit)

	got, err := f.orders.GetOrder(f.ctx, f.buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusInvoiced, got.Status)
	assert.True(t, got.TotalAmount.Equal(kg(20000)))

	err = f.store.WithinTx(f.ctx, func(ctx context.Context, repos repository.Repos) error {
		_, err := recordPayment(ctx, repos, inv.ID, kg(20000), f.clock.Now())
		return err
	})
	require.NoError(t, err)

	got, err = f.orders.GetOrder(f.ctx, f.buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, got.Status)
}

func TestOrderService_VisibleToOwnerAndStaff(t *testing.T) {
	f := newFixture(t)
	fish, err := f.stock.CreateProduct(f.ctx, f.supplier, "Tilapia", kg(5000), kg(10))
	require.NoError(t, err)
	o, err := f.orders.CreateOrder(f.ctx, f.buyer, "Stall 3", []OrderLine{{ProductID: fish.ID, QuantityKg: kg(1)}})
	require.NoError(t, err)

	_, err = f.orders.GetOrder(f.ctx, f.supplier, o.ID)
	assert.NoError(t, err)
	_, err = f.orders.GetOrder(f.ctx, domain.Actor{UserID: uuid.New(), Role: domain.RoleBuyer}, o.ID)
	assert.ErrorIs(t, err, domain.ErrPermission)
}

func TestOrderService_ApproveLocksEachProductOnce(t *testing.T) {
	f := newFixture(t)
	fish, err := f.stock.CreateProduct(f.ctx, f.supplier, "Tilapia", kg(5000), kg(10))
	require.NoError(t, err)
	milk, err := f.stock.CreateProduct(f.ctx, f.supplier, "Milk", kg(1200), kg(20))
	require.NoError(t, err)

	o, err := f.orders.CreateOrder(f.ctx, f.buyer, "Stall 3", []OrderLine{
		{ProductID: milk.ID, QuantityKg: kg(5)},
		{ProductID: fish.ID, QuantityKg: kg(2)},
		{ProductID: milk.ID, QuantityKg: kg(3)},
	})
	require.NoError(t, err)
	_, err = f.orders.ApproveOrder(f.ctx, f.supplier, o.ID)
	require.NoError(t, err)

	got, err := f.stock.GetProduct(f.ctx, milk.ID)
	require.NoError(t, err)
	assert.True(t, got.QuantityKg.Equal(kg(12)))
	movements, err := f.stock.ListMovements(f.ctx, milk.ID)
	require.NoError(t, err)
	assert.Len(t, movements, 3)

	ids := lockOrder(o.Items)
	require.Len(t, ids, 2)
	assert.Negative(t, bytes.Compare(ids[0][:], ids[1][:]))
}

func TestOrderService_RejectsGramFractions(t *testing.T) {
	f := newFixture(t)
	fish, err := f.stock.CreateProduct(f.ctx, f.supplier, "Tilapia", kg(5000), kg(10))
	require.NoError(t, err)
	_, err = f.orders.CreateOrder(f.ctx, f.buyer, "Stall 3", []OrderLine{
		{ProductID: fish.ID, QuantityKg: decimal.RequireFromString("0.0005")},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.stock.CreateProduct(f.ctx, f.supplier, "Sardines", decimal.RequireFromString("99.999"), kg(1))
	assert.ErrorIs(t, err, domain.ErrValidation)
}
