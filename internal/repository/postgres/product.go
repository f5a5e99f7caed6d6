package postgres

import (
	"context"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/repository"

	"github.com/google/uuid"
)

type productRepository struct {
	db dbtx
}

func NewProductRepository(db dbtx) repository.ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, p *domain.Product) error {
	query := `INSERT INTO products (id, name, unit_price, quantity_kg, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`
	res, err := r.db.ExecContext(ctx, query, p.ID, p.Name, p.UnitPrice, p.QuantityKg, p.CreatedAt, p.UpdatedAt)
	logExec("products.create", query, res, err)
	if err != nil {
		return mapError(err, "product")
	}
	return nil
}

func (r *productRepository) get(ctx context.Context, id uuid.UUID, lock bool) (*domain.Product, error) {
	query := `SELECT id, name, unit_price, quantity_kg, created_at, updated_at FROM products WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	p := &domain.Product{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.UnitPrice, &p.QuantityKg, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return p, nil
}

func (r *productRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return r.get(ctx, id, false)
}

func (r *productRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return r.get(ctx, id, true)
}

func (r *productRepository) UpdateQuantity(ctx context.Context, p *domain.Product) error {
	query := `UPDATE products SET quantity_kg=$1, updated_at=$2 WHERE id=$3`
	res, err := r.db.ExecContext(ctx, query, p.QuantityKg, p.UpdatedAt, p.ID)
	logExec("products.update_quantity", query, res, err)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundError("product", p.ID)
	}
	return nil
}

func (r *productRepository) AppendMovement(ctx context.Context, m *domain.StockMovement) error {
	query := `INSERT INTO stock_movements (id, product_id, movement_type, quantity_kg, reason, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	res, err := r.db.ExecContext(ctx, query, m.ID, m.ProductID, m.Type, m.QuantityKg, m.Reason, m.CreatedAt)
	logExec("stock_movements.create", query, res, err)
	return err
}

func (r *productRepository) ListMovements(ctx context.Context, productID uuid.UUID) ([]domain.StockMovement, error) {
	query := `SELECT id, product_id, movement_type, quantity_kg, reason, created_at FROM stock_movements
	          WHERE product_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []domain.StockMovement
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Type, &m.QuantityKg, &m.Reason, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}
