package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusRequested OrderStatus = "REQUESTED"
	OrderStatusApproved  OrderStatus = "APPROVED"
	OrderStatusInvoiced  OrderStatus = "INVOICED"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusRequested: {OrderStatusApproved, OrderStatusRejected},
	OrderStatusApproved:  {OrderStatusInvoiced},
	// An invoiced order returns to APPROVED when its invoice is voided.
	OrderStatusInvoiced: {OrderStatusCompleted, OrderStatusApproved},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type OrderItem struct {
	ProductID  uuid.UUID       `json:"product_id"`
	QuantityKg decimal.Decimal `json:"quantity_kg"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return LineAmount(i.QuantityKg, i.UnitPrice)
}

type Order struct {
	ID              uuid.UUID       `json:"id"`
	ClientID        uuid.UUID       `json:"client_id"`
	DeliveryAddress string          `json:"delivery_address"`
	Items           []OrderItem     `json:"items"`
	Status          OrderStatus     `json:"status"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	InvoiceID       *uuid.UUID      `json:"invoice_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// RecomputeTotal refuses to touch the total once the order has been invoiced.
func (o *Order) RecomputeTotal() error {
	if o.Status != OrderStatusRequested {
		return InvalidStateError("order %s total is fixed in status %s", o.ID, o.Status)
	}
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Subtotal())
	}
	o.TotalAmount = total
	return nil
}

func (o *Order) TransitionTo(next OrderStatus, now time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return InvalidStateError("order %s cannot move from %s to %s", o.ID, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}
