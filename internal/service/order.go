package service

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/logger"
	"coldchain-rental-core/internal/metrics"
	"coldchain-rental-core/internal/repository"

	"github.com/google/uuid"
)

type orderService struct {
	store   repository.Store
	metrics *metrics.Metrics
	now     Clock
}

func NewOrderService(store repository.Store, m *metrics.Metrics, now Clock) OrderService {
	return &orderService{store: store, metrics: m, now: now}
}

func (s *orderService) CreateOrder(ctx context.Context, actor domain.Actor, deliveryAddress string, lines []OrderLine) (*domain.Order, error) {
	logger.EnterMethod("orderService.CreateOrder", "actor", actor.UserID, "lines", len(lines))
	deliveryAddress = strings.TrimSpace(deliveryAddress)
	if deliveryAddress == "" {
		return nil, domain.ValidationError("delivery_address is required")
	}
	if len(lines) == 0 {
		return nil, domain.ValidationError("an order needs at least one item")
	}
	for i, l := range lines {
		if l.ProductID == uuid.Nil {
			return nil, domain.ValidationError("item %d: product_id is required", i+1)
		}
		if !l.QuantityKg.IsPositive() {
			return nil, domain.ValidationError("item %d: quantity_kg must be greater than zero", i+1)
		}
		if err := domain.CheckKg(fmt.Sprintf("item %d: quantity_kg", i+1), l.QuantityKg); err != nil {
			return nil, err
		}
	}

	now := s.now()
	order := &domain.Order{
		ID:              uuid.New(),
		ClientID:        actor.UserID,
		DeliveryAddress: deliveryAddress,
		Status:          domain.OrderStatusRequested,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		for _, l := range lines {
			p, err := repos.Products.GetByID(ctx, l.ProductID)
			if err != nil {
				if domain.KindOf(err) == domain.ErrorKindNotFound {
					return domain.ValidationError("unknown product %s", l.ProductID)
				}
				return err
			}
			order.Items = append(order.Items, domain.OrderItem{
				ProductID:  p.ID,
				QuantityKg: l.QuantityKg,
				UnitPrice:  p.UnitPrice,
			})
		}
		if err := order.RecomputeTotal(); err != nil {
			return err
		}
		return repos.Orders.Create(ctx, order)
	})
	if err != nil {
		s.metrics.DomainError(err)
		logger.ExitMethodWithError("orderService.CreateOrder", err)
		return nil, err
	}
	logger.ExitMethod("orderService.CreateOrder", "orderID", order.ID, "total", order.TotalAmount.String())
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Order, error) {
	o, err := s.store.Repositories().Orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// Suppliers fulfil orders, so they read them like staff.
	if !actor.Is(domain.RoleSupplier) {
		if err := canView(actor, o.ClientID, "order", id); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// ApproveOrder takes the ordered kilograms out of stock. Products are locked
// in ascending id order so concurrent approvals cannot deadlock.
func (s *orderService) ApproveOrder(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Order, error) {
	if err := actor.Require("approve orders", domain.RoleSupplier, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, "orderService.ApproveOrder", func(ctx context.Context, repos repository.Repos, o *domain.Order) error {
		now := s.now()
		if err := o.TransitionTo(domain.OrderStatusApproved, now); err != nil {
			return err
		}
		reason := fmt.Sprintf("order %s", o.ID)
		for _, productID := range lockOrder(o.Items) {
			p, err := repos.Products.GetForUpdate(ctx, productID)
			if err != nil {
				return err
			}
			for _, it := range o.Items {
				if it.ProductID != productID {
					continue
				}
				if _, err := applyMovement(ctx, repos.Products, p, domain.MovementTypeOut, it.QuantityKg, reason, now); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// lockOrder lists the distinct products of items in ascending id order.
func lockOrder(items []domain.OrderItem) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return slices.Compact(ids)
}

func (s *orderService) RejectOrder(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Order, error) {
	if err := actor.Require("reject orders", domain.RoleSupplier, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, "orderService.RejectOrder", func(ctx context.Context, repos repository.Repos, o *domain.Order) error {
		return o.TransitionTo(domain.OrderStatusRejected, s.now())
	})
}

func (s *orderService) InvoiceOrder(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Invoice, error) {
	if err := actor.Require("invoice orders", domain.RoleSupplier, domain.RoleAdmin); err != nil {
		return nil, err
	}
	var inv *domain.Invoice
	_, err := s.transition(ctx, id, "orderService.InvoiceOrder", func(ctx context.Context, repos repository.Repos, o *domain.Order) error {
		now := s.now()
		if err := o.TransitionTo(domain.OrderStatusInvoiced, now); err != nil {
			return err
		}
		items := make([]domain.InvoiceItem, 0, len(o.Items))
		for _, it := range o.Items {
			p, err := repos.Products.GetByID(ctx, it.ProductID)
			if err != nil {
				return err
			}
			items = append(items, domain.InvoiceItem{
				Description: p.Name,
				Quantity:    it.QuantityKg,
				Unit:        "kg",
				UnitPrice:   it.UnitPrice,
			})
		}
		var err error
		inv, err = issueInvoice(ctx, repos, o.ClientID, items, now)
		if err != nil {
			return err
		}
		inv.OrderID = &o.ID
		if err := repos.Invoices.Create(ctx, inv); err != nil {
			return err
		}
		o.InvoiceID = &inv.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

type orderStep func(ctx context.Context, repos repository.Repos, o *domain.Order) error

func (s *orderService) transition(ctx context.Context, id uuid.UUID, method string, step orderStep) (*domain.Order, error) {
	logger.EnterMethod(method, "orderID", id)
	var order *domain.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		o, err := repos.Orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := step(ctx, repos, o); err != nil {
			return err
		}
		if err := repos.Orders.Update(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		s.metrics.DomainError(err)
		logger.ExitMethodWithError(method, err)
		return nil, err
	}
	logger.ExitMethod(method, "orderID", id, "status", order.Status)
	return order, nil
}
