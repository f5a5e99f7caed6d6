package service

import (
	"context"
	"fmt"
	"time"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/logger"
	"coldchain-rental-core/internal/metrics"
	"coldchain-rental-core/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type invoiceService struct {
	store   repository.Store
	metrics *metrics.Metrics
	now     Clock
}

func NewInvoiceService(store repository.Store, m *metrics.Metrics, now Clock) InvoiceService {
	return &invoiceService{store: store, metrics: m, now: now}
}

func (s *invoiceService) GenerateInvoice(ctx context.Context, actor domain.Actor, clientID uuid.UUID, items []domain.InvoiceItem) (*domain.Invoice, error) {
	logger.EnterMethod("invoiceService.GenerateInvoice", "actor", actor.UserID, "clientID", clientID, "items", len(items))
	if err := actor.Require("issue invoices", domain.RoleSupplier, domain.RoleSiteManager, domain.RoleAdmin); err != nil {
		return nil, err
	}
	var inv *domain.Invoice
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		var err error
		inv, err = issueInvoice(ctx, repos, clientID, items, s.now())
		if err != nil {
			return err
		}
		return repos.Invoices.Create(ctx, inv)
	})
	if err != nil {
		s.metrics.DomainError(err)
		logger.ExitMethodWithError("invoiceService.GenerateInvoice", err)
		return nil, err
	}
	logger.ExitMethod("invoiceService.GenerateInvoice", "invoiceNumber", inv.InvoiceNumber, "total", inv.TotalAmount.String())
	return inv, nil
}

// issueInvoice prices items into a new UNPAID invoice numbered from the
// invoice sequence. The caller links and stores it.
func issueInvoice(ctx context.Context, repos repository.Repos, clientID uuid.UUID, items []domain.InvoiceItem, now time.Time) (*domain.Invoice, error) {
	inv, err := domain.NewInvoice(clientID, items, now)
	if err != nil {
		return nil, err
	}
	seq, err := repos.Invoices.NextNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocating invoice number: %w", err)
	}
	inv.InvoiceNumber = domain.FormatInvoiceNumber(seq)
	return inv, nil
}

func (s *invoiceService) InvoiceRental(ctx context.Context, actor domain.Actor, rentalID uuid.UUID) (*domain.Invoice, error) {
	if err := actor.Require("invoice rentals", domain.RoleSiteManager, domain.RoleAdmin); err != nil {
		return nil, err
	}
	var inv *domain.Invoice
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		r, err := repos.Rentals.GetForUpdate(ctx, rentalID)
		if err != nil {
			return err
		}
		if r.Status != domain.RentalStatusCompleted {
			return domain.InvalidStateError("rental %s is %s; only completed rentals are invoiced", r.ID, r.Status)
		}
		if r.InvoiceID != nil {
			return domain.ConflictError("rental %s is already invoiced", r.ID)
		}
		if !r.EstimatedFee.IsPositive() {
			return domain.ValidationError("rental %s has no fee to invoice", r.ID)
		}

		now := s.now()
		item := domain.InvoiceItem{
			Description: fmt.Sprintf("%s rental %s to %s", r.AssetType, r.RentalStartDate.Format(time.DateOnly), r.RentalEndDate.Format(time.DateOnly)),
			Quantity:    decimal.NewFromInt(1),
			Unit:        "rental",
			UnitPrice:   r.EstimatedFee,
		}
		inv, err = issueInvoice(ctx, repos, r.ClientID, []domain.InvoiceItem{item}, now)
		if err != nil {
			return err
		}
		inv.RentalID = &r.ID
		if err := repos.Invoices.Create(ctx, inv); err != nil {
			return err
		}
		r.InvoiceID = &inv.ID
		r.UpdatedAt = now
		return repos.Rentals.Update(ctx, r)
	})
	if err != nil {
		s.metrics.DomainError(err)
		return nil, err
	}
	logger.Info("Rental invoiced", "rentalID", rentalID, "invoiceNumber", inv.InvoiceNumber)
	return inv, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Invoice, error) {
	inv, err := s.store.Repositories().Invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canView(actor, inv.ClientID, "invoice", id); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, actor domain.Actor, filter domain.InvoiceFilter) ([]domain.Invoice, int32, error) {
	if !actor.IsStaff() {
		own := actor.UserID
		filter.ClientID = &own
	}
	if err := domain.ValidatePage(filter.Page); err != nil {
		return nil, 0, err
	}
	filter.Page, filter.Limit = domain.NormalizePage(filter.Page, filter.Limit)
	return s.store.Repositories().Invoices.List(ctx, filter)
}

func (s *invoiceService) VoidInvoice(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Invoice, error) {
	logger.EnterMethod("invoiceService.VoidInvoice", "actor", actor.UserID, "invoiceID", id)
	if err := actor.Require("void invoices", domain.RoleAdmin); err != nil {
		return nil, err
	}
	var inv *domain.Invoice
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		var err error
		inv, err = repos.Invoices.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status == domain.InvoiceStatusVoid {
			return domain.InvalidStateError("invoice %s is already void", inv.InvoiceNumber)
		}
		pending, err := repos.Payments.SumPending(ctx, id)
		if err != nil {
			return err
		}
		if pending.IsPositive() {
			return domain.ConflictError("invoice %s has %s in pending payments", inv.InvoiceNumber, pending.String())
		}
		now := s.now()
		if err := inv.Void(now); err != nil {
			return err
		}
		if err := repos.Invoices.Update(ctx, inv); err != nil {
			return err
		}
		return detachInvoice(ctx, repos, inv, now)
	})
	if err != nil {
		s.metrics.DomainError(err)
		logger.ExitMethodWithError("invoiceService.VoidInvoice", err)
		return nil, err
	}
	logger.ExitMethod("invoiceService.VoidInvoice", "invoiceNumber", inv.InvoiceNumber)
	return inv, nil
}

// detachInvoice frees the order or rental a voided invoice was billing so it
// can be invoiced again.
func detachInvoice(ctx context.Context, repos repository.Repos, inv *domain.Invoice, now time.Time) error {
	if inv.OrderID != nil {
		o, err := repos.Orders.GetForUpdate(ctx, *inv.OrderID)
		if err != nil {
			return err
		}
		if err := o.TransitionTo(domain.OrderStatusApproved, now); err != nil {
			return err
		}
		o.InvoiceID = nil
		if err := repos.Orders.Update(ctx, o); err != nil {
			return err
		}
	}
	if inv.RentalID != nil {
		r, err := repos.Rentals.GetForUpdate(ctx, *inv.RentalID)
		if err != nil {
			return err
		}
		r.InvoiceID = nil
		r.UpdatedAt = now
		if err := repos.Rentals.Update(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// recordPayment is the only code path that moves an invoice's paid amount.
// It runs inside the caller's transaction; the payment adapter is its only
// caller. An invoice that becomes PAID completes the order it bills.
func recordPayment(ctx context.Context, repos repository.Repos, invoiceID uuid.UUID, amount decimal.Decimal, now time.Time) (*domain.Invoice, error) {
	inv, err := repos.Invoices.GetForUpdate(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := inv.ApplyPayment(amount, now); err != nil {
		return nil, err
	}
	if err := repos.Invoices.Update(ctx, inv); err != nil {
		return nil, err
	}
	if inv.Status != domain.InvoiceStatusPaid || inv.OrderID == nil {
		return inv, nil
	}
	o, err := repos.Orders.GetForUpdate(ctx, *inv.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status == domain.OrderStatusInvoiced {
		if err := o.TransitionTo(domain.OrderStatusCompleted, now); err != nil {
			return nil, err
		}
		if err := repos.Orders.Update(ctx, o); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

// canView lets staff see every record and clients only their own.
func canView(actor domain.Actor, ownerID uuid.UUID, entity string, id uuid.UUID) error {
	if ownerID == actor.UserID || actor.IsStaff() {
		return nil
	}
	return domain.PermissionError("%s %s belongs to another client", entity, id)
}
