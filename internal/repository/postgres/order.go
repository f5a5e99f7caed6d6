package postgres

import (
	"context"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/repository"

	"github.com/google/uuid"
)

type orderRepository struct {
	db dbtx
}

func NewOrderRepository(db dbtx) repository.OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, o *domain.Order) error {
	query := `INSERT INTO orders (id, client_id, delivery_address, status, total_amount, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	res, err := r.db.ExecContext(ctx, query, o.ID, o.ClientID, o.DeliveryAddress, o.Status, o.TotalAmount, o.CreatedAt, o.UpdatedAt)
	logExec("orders.create", query, res, err)
	if err != nil {
		return mapError(err, "order")
	}

	itemQuery := `INSERT INTO order_items (order_id, line_no, product_id, quantity_kg, unit_price) VALUES ($1, $2, $3, $4, $5)`
	for i, it := range o.Items {
		if _, err := r.db.ExecContext(ctx, itemQuery, o.ID, i+1, it.ProductID, it.QuantityKg, it.UnitPrice); err != nil {
			return err
		}
	}
	return nil
}

func (r *orderRepository) get(ctx context.Context, id uuid.UUID, lock bool) (*domain.Order, error) {
	query := `SELECT id, client_id, delivery_address, status, total_amount, invoice_id, created_at, updated_at FROM orders WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	o := &domain.Order{}
	var invoiceID uuid.NullUUID
	err := r.db.QueryRowContext(ctx, query, id).Scan(&o.ID, &o.ClientID, &o.DeliveryAddress, &o.Status, &o.TotalAmount,
		&invoiceID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	if invoiceID.Valid {
		o.InvoiceID = &invoiceID.UUID
	}

	rows, err := r.db.QueryContext(ctx, `SELECT product_id, quantity_kg, unit_price FROM order_items WHERE order_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ProductID, &it.QuantityKg, &it.UnitPrice); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.get(ctx, id, false)
}

func (r *orderRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.get(ctx, id, true)
}

// Update leaves items untouched; they are fixed once the order is created.
func (r *orderRepository) Update(ctx context.Context, o *domain.Order) error {
	query := `UPDATE orders SET status=$1, total_amount=$2, invoice_id=$3, updated_at=$4 WHERE id=$5`
	var invoiceID uuid.NullUUID
	if o.InvoiceID != nil {
		invoiceID = uuid.NullUUID{UUID: *o.InvoiceID, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, query, o.Status, o.TotalAmount, invoiceID, o.UpdatedAt, o.ID)
	logExec("orders.update", query, res, err)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundError("order", o.ID)
	}
	return nil
}
