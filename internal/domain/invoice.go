package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusUnpaid InvoiceStatus = "UNPAID"
	InvoiceStatusPaid   InvoiceStatus = "PAID"
	InvoiceStatusVoid   InvoiceStatus = "VOID"
)

type InvoiceItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

func (it InvoiceItem) Validate() error {
	if strings.TrimSpace(it.Description) == "" {
		return ValidationError("line item description is required")
	}
	if !it.Quantity.IsPositive() {
		return ValidationError("line item %q quantity must be greater than zero", it.Description)
	}
	if it.UnitPrice.IsNegative() {
		return ValidationError("line item %q unit_price cannot be negative", it.Description)
	}
	if err := CheckKg("quantity", it.Quantity); err != nil {
		return err
	}
	return CheckMoney("unit_price", it.UnitPrice)
}

type Invoice struct {
	ID            uuid.UUID       `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      uuid.UUID       `json:"client_id"`
	OrderID       *uuid.UUID      `json:"order_id,omitempty"`
	RentalID      *uuid.UUID      `json:"rental_id,omitempty"`
	Items         []InvoiceItem   `json:"items"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Status        InvoiceStatus   `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// FormatInvoiceNumber renders a sequence value as INV-000042.
func FormatInvoiceNumber(seq int64) string {
	return fmt.Sprintf("INV-%06d", seq)
}

// NewInvoice prices the line items and returns an UNPAID invoice. The number
// is assigned by the caller from the invoice sequence.
func NewInvoice(clientID uuid.UUID, items []InvoiceItem, now time.Time) (*Invoice, error) {
	if clientID == uuid.Nil {
		return nil, ValidationError("client_id is required")
	}
	if len(items) == 0 {
		return nil, ValidationError("an invoice needs at least one line item")
	}
	priced := make([]InvoiceItem, len(items))
	total := decimal.Zero
	for i, it := range items {
		if err := it.Validate(); err != nil {
			return nil, err
		}
		if it.Unit == "" {
			it.Unit = "unit"
		}
		it.Subtotal = LineAmount(it.Quantity, it.UnitPrice)
		total = total.Add(it.Subtotal)
		priced[i] = it
	}
	return &Invoice{
		ID:          uuid.New(),
		ClientID:    clientID,
		Items:       priced,
		TotalAmount: total,
		PaidAmount:  decimal.Zero,
		Status:      InvoiceStatusUnpaid,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (inv *Invoice) Balance() decimal.Decimal {
	return inv.TotalAmount.Sub(inv.PaidAmount)
}

// deriveStatus applies PAID iff paid >= total; VOID is sticky.
func (inv *Invoice) deriveStatus() {
	if inv.Status == InvoiceStatusVoid {
		return
	}
	if inv.PaidAmount.GreaterThanOrEqual(inv.TotalAmount) {
		inv.Status = InvoiceStatusPaid
		return
	}
	inv.Status = InvoiceStatusUnpaid
}

// ApplyPayment credits amount. paidAmount only ever grows and never passes totalAmount.
func (inv *Invoice) ApplyPayment(amount decimal.Decimal, now time.Time) error {
	if inv.Status == InvoiceStatusVoid {
		return InvalidStateError("invoice %s is void", inv.InvoiceNumber)
	}
	if !amount.IsPositive() {
		return ValidationError("payment amount must be positive")
	}
	if err := CheckMoney("amount", amount); err != nil {
		return err
	}
	if inv.PaidAmount.Add(amount).GreaterThan(inv.TotalAmount) {
		return &OverpaymentError{InvoiceID: inv.ID.String(), Attempted: amount, Outstanding: inv.Balance()}
	}
	inv.PaidAmount = inv.PaidAmount.Add(amount)
	inv.UpdatedAt = now
	inv.deriveStatus()
	return nil
}

func (inv *Invoice) Void(now time.Time) error {
	if inv.Status == InvoiceStatusVoid {
		return InvalidStateError("invoice %s is already void", inv.InvoiceNumber)
	}
	if inv.PaidAmount.IsPositive() {
		return ConflictError("invoice %s has %s paid and cannot be voided", inv.InvoiceNumber, inv.PaidAmount.String())
	}
	inv.Status = InvoiceStatusVoid
	inv.UpdatedAt = now
	return nil
}

type InvoiceFilter struct {
	ClientID *uuid.UUID
	Status   InvoiceStatus
	Page     int32
	Limit    int32
}
