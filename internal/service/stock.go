package service

import (
	"context"
	"strings"
	"time"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/logger"
	"coldchain-rental-core/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type stockService struct {
	store repository.Store
	now   Clock
}

func NewStockService(store repository.Store, now Clock) StockService {
	return &stockService{store: store, now: now}
}

func (s *stockService) CreateProduct(ctx context.Context, actor domain.Actor, name string, unitPrice, initialKg decimal.Decimal) (*domain.Product, error) {
	if err := actor.Require("create products", domain.RoleSupplier, domain.RoleAdmin); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ValidationError("product name is required")
	}
	if unitPrice.IsNegative() {
		return nil, domain.ValidationError("unit_price cannot be negative")
	}
	if initialKg.IsNegative() {
		return nil, domain.ValidationError("initial quantity cannot be negative")
	}
	if err := domain.CheckMoney("unit_price", unitPrice); err != nil {
		return nil, err
	}
	if err := domain.CheckKg("quantity_kg", initialKg); err != nil {
		return nil, err
	}

	now := s.now()
	product := &domain.Product{
		ID:         uuid.New(),
		Name:       name,
		UnitPrice:  unitPrice,
		QuantityKg: decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		if err := repos.Products.Create(ctx, product); err != nil {
			return err
		}
		if !initialKg.IsPositive() {
			return nil
		}
		_, err := applyMovement(ctx, repos.Products, product, domain.MovementTypeIn, initialKg, "initial stock", now)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Product created", "productID", product.ID, "quantityKg", product.QuantityKg.String())
	return product, nil
}

func (s *stockService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return s.store.Repositories().Products.GetByID(ctx, id)
}

func (s *stockService) AdjustStock(ctx context.Context, actor domain.Actor, productID uuid.UUID, typ domain.MovementType, qty decimal.Decimal, reason string) (*domain.StockMovement, *domain.Product, error) {
	if err := actor.Require("adjust stock", domain.RoleSupplier, domain.RoleAdmin); err != nil {
		return nil, nil, err
	}
	var (
		movement *domain.StockMovement
		product  *domain.Product
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		p, err := repos.Products.GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		m, err := applyMovement(ctx, repos.Products, p, typ, qty, reason, s.now())
		if err != nil {
			return err
		}
		movement, product = m, p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return movement, product, nil
}

func (s *stockService) ListMovements(ctx context.Context, productID uuid.UUID) ([]domain.StockMovement, error) {
	repos := s.store.Repositories()
	if _, err := repos.Products.GetByID(ctx, productID); err != nil {
		return nil, err
	}
	return repos.Products.ListMovements(ctx, productID)
}

// applyMovement appends a movement and moves the product quantity by the same
// signed amount, so the quantity always equals the sum of the ledger. p must
// be locked by the caller's transaction.
func applyMovement(ctx context.Context, products repository.ProductRepository, p *domain.Product, typ domain.MovementType, qty decimal.Decimal, reason string, now time.Time) (*domain.StockMovement, error) {
	m, err := domain.NewStockMovement(p.ID, typ, qty, reason, now)
	if err != nil {
		return nil, err
	}
	next := p.QuantityKg.Add(m.QuantityKg)
	if next.IsNegative() {
		return nil, domain.ConflictError("product %s has %s kg in stock, %s kg requested", p.ID, p.QuantityKg.String(), qty.String())
	}
	if err := products.AppendMovement(ctx, m); err != nil {
		return nil, err
	}
	p.QuantityKg = next
	p.UpdatedAt = now
	if err := products.UpdateQuantity(ctx, p); err != nil {
		return nil, err
	}
	return m, nil
}
