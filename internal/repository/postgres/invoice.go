package postgres

import (
	"context"
	"fmt"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/repository"

	"github.com/google/uuid"
)

const invoiceColumns = `id, invoice_number, client_id, order_id, rental_id, total_amount, paid_amount, status, created_at, updated_at`

type invoiceRepository struct {
	db dbtx
}

func NewInvoiceRepository(db dbtx) repository.InvoiceRepository {
	return &invoiceRepository{db: db}
}

// NextNumber draws from a sequence, so numbers are unique and increasing but
// may have gaps when a transaction rolls back.
func (r *invoiceRepository) NextNumber(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&n); err != nil {
		return 0, fmt.Errorf("drawing invoice number: %w", err)
	}
	return n, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func uuidPtr(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}

func (r *invoiceRepository) Create(ctx context.Context, inv *domain.Invoice) error {
	query := `INSERT INTO invoices (` + invoiceColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	res, err := r.db.ExecContext(ctx, query, inv.ID, inv.InvoiceNumber, inv.ClientID, nullUUID(inv.OrderID), nullUUID(inv.RentalID),
		inv.TotalAmount, inv.PaidAmount, inv.Status, inv.CreatedAt, inv.UpdatedAt)
	logExec("invoices.create", query, res, err)
	if err != nil {
		return mapError(err, "invoice")
	}

	itemQuery := `INSERT INTO invoice_items (invoice_id, line_no, description, quantity, unit, unit_price, subtotal)
	              VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for i, it := range inv.Items {
		if _, err := r.db.ExecContext(ctx, itemQuery, inv.ID, i+1, it.Description, it.Quantity, it.Unit, it.UnitPrice, it.Subtotal); err != nil {
			return err
		}
	}
	return nil
}

func scanInvoice(s rowScanner) (*domain.Invoice, error) {
	inv := &domain.Invoice{}
	var orderID, rentalID uuid.NullUUID
	err := s.Scan(&inv.ID, &inv.InvoiceNumber, &inv.ClientID, &orderID, &rentalID, &inv.TotalAmount, &inv.PaidAmount,
		&inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inv.OrderID = uuidPtr(orderID)
	inv.RentalID = uuidPtr(rentalID)
	return inv, nil
}

func (r *invoiceRepository) loadItems(ctx context.Context, inv *domain.Invoice) error {
	rows, err := r.db.QueryContext(ctx, `SELECT description, quantity, unit, unit_price, subtotal FROM invoice_items
	                                     WHERE invoice_id = $1 ORDER BY line_no`, inv.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.InvoiceItem
		if err := rows.Scan(&it.Description, &it.Quantity, &it.Unit, &it.UnitPrice, &it.Subtotal); err != nil {
			return err
		}
		inv.Items = append(inv.Items, it)
	}
	return rows.Err()
}

func (r *invoiceRepository) get(ctx context.Context, id uuid.UUID, lock bool) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	inv, err := scanInvoice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "invoice", id)
	}
	if err := r.loadItems(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *invoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	return r.get(ctx, id, false)
}

func (r *invoiceRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	return r.get(ctx, id, true)
}

// Update persists status and paid amount. Line items and totals are immutable.
func (r *invoiceRepository) Update(ctx context.Context, inv *domain.Invoice) error {
	query := `UPDATE invoices SET paid_amount=$1, status=$2, updated_at=$3 WHERE id=$4`
	res, err := r.db.ExecContext(ctx, query, inv.PaidAmount, inv.Status, inv.UpdatedAt, inv.ID)
	logExec("invoices.update", query, res, err)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundError("invoice", inv.ID)
	}
	return nil
}

// List returns invoice headers without line items.
func (r *invoiceRepository) List(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, int32, error) {
	page, limit := domain.NormalizePage(filter.Page, filter.Limit)
	where := ` FROM invoices WHERE TRUE`
	var args []any
	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		where += fmt.Sprintf(" AND client_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var count int32
	if err := r.db.QueryRowContext(ctx, `SELECT count(*)`+where, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + invoiceColumns + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, domain.PageOffset(page, limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var invoices []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, count, rows.Err()
}
