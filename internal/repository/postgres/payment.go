package postgres

import (
	"context"
	"time"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const paymentColumns = `id, invoice_id, phone_number, amount, provider_reference, status, failure_reason, created_at, updated_at`

type paymentRepository struct {
	db dbtx
}

func NewPaymentRepository(db dbtx) repository.PaymentRepository {
	return &paymentRepository{db: db}
}

func scanPayment(s rowScanner) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := s.Scan(&p.ID, &p.InvoiceID, &p.PhoneNumber, &p.Amount, &p.ProviderReference, &p.Status, &p.FailureReason,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *paymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	query := `INSERT INTO payments (` + paymentColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	res, err := r.db.ExecContext(ctx, query, p.ID, p.InvoiceID, p.PhoneNumber, p.Amount, p.ProviderReference, p.Status,
		p.FailureReason, p.CreatedAt, p.UpdatedAt)
	logExec("payments.create", query, res, err)
	if err != nil {
		return mapError(err, "payment")
	}
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "payment", id)
	}
	return p, nil
}

func (r *paymentRepository) GetByReferenceForUpdate(ctx context.Context, ref string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider_reference = $1 FOR UPDATE`
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, ref))
	if err != nil {
		return nil, notFound(err, "payment with reference", ref)
	}
	return p, nil
}

func (r *paymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	query := `UPDATE payments SET status=$1, failure_reason=$2, updated_at=$3 WHERE id=$4`
	res, err := r.db.ExecContext(ctx, query, p.Status, p.FailureReason, p.UpdatedAt, p.ID)
	logExec("payments.update", query, res, err)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundError("payment", p.ID)
	}
	return nil
}

func (r *paymentRepository) SumPending(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	query := `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id = $1 AND status = 'PENDING'`
	if err := r.db.QueryRowContext(ctx, query, invoiceID).Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

func (r *paymentRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE status = 'PENDING' AND created_at < $1 ORDER BY created_at LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}
