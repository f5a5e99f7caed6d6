package postgres_test

import (
	"context"
	"testing"
	"time"

	"coldchain-rental-core/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paymentCols = []string{"id", "invoice_id", "phone_number", "amount", "provider_reference", "status",
	"failure_reason", "created_at", "updated_at"}

func TestPaymentRepository_GetByReferenceForUpdate(t *testing.T) {
	store, mock := newMock(t)
	repo := store.Repositories().Payments
	ctx := context.Background()

	id, invoiceID := uuid.New(), uuid.New()
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE provider_reference = \\$1 FOR UPDATE").
		WithArgs("ref-1").
		WillReturnRows(sqlmock.NewRows(paymentCols).
			AddRow(id.String(), invoiceID.String(), "+255712345678", "20000", "ref-1", "PENDING", "", now, now))

	p, err := repo.GetByReferenceForUpdate(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, domain.PaymentStatusPending, p.Status)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(20000)))

	mock.ExpectQuery("SELECT (.+) FROM payments WHERE provider_reference = \\$1 FOR UPDATE").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(paymentCols))
	_, err = repo.GetByReferenceForUpdate(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_SumPendingAndUpdate(t *testing.T) {
	store, mock := newMock(t)
	repo := store.Repositories().Payments
	ctx := context.Background()
	invoiceID := uuid.New()

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM payments").
		WithArgs(invoiceID).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("350.50"))
	sum, err := repo.SumPending(ctx, invoiceID)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.RequireFromString("350.5")))

	p := &domain.Payment{ID: uuid.New(), Status: domain.PaymentStatusFailed, FailureReason: "declined", UpdatedAt: time.Now()}
	mock.ExpectExec("UPDATE payments SET status").
		WithArgs(p.Status, p.FailureReason, p.UpdatedAt, p.ID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Update(ctx, p), domain.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_ListPendingBefore(t *testing.T) {
	store, mock := newMock(t)
	repo := store.Repositories().Payments
	cutoff := time.Now().Add(-30 * time.Minute)
	old := cutoff.Add(-time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM payments WHERE status = 'PENDING' AND created_at < \\$1").
		WithArgs(cutoff, 200).
		WillReturnRows(sqlmock.NewRows(paymentCols).
			AddRow(uuid.NewString(), uuid.NewString(), "+255712345678", "100", "a", "PENDING", "", old, old).
			AddRow(uuid.NewString(), uuid.NewString(), "+255712345679", "200", "b", "PENDING", "", old, old))

	list, err := repo.ListPendingBefore(context.Background(), cutoff, 200)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[1].ProviderReference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_MovementLedger(t *testing.T) {
	store, mock := newMock(t)
	repo := store.Repositories().Products
	ctx := context.Background()

	productID := uuid.New()
	now := time.Now()
	mv, err := domain.NewStockMovement(productID, domain.MovementTypeOut, decimal.NewFromInt(5), "order", now)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO stock_movements").
		WithArgs(mv.ID, productID, domain.MovementTypeOut, decimal.NewFromInt(-5), "order", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.AppendMovement(ctx, mv))

	mock.ExpectQuery("SELECT (.+) FROM stock_movements").
		WithArgs(productID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "movement_type", "quantity_kg", "reason", "created_at"}).
			AddRow(uuid.NewString(), productID.String(), "IN", "50", "initial stock", now).
			AddRow(mv.ID.String(), productID.String(), "OUT", "-5", "order", now))
	list, err := repo.ListMovements(ctx, productID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[1].QuantityKg.Equal(decimal.NewFromInt(-5)))

	assert.NoError(t, mock.ExpectationsWereMet())
}
