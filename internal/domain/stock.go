package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MovementType string

const (
	MovementTypeIn  MovementType = "IN"
	MovementTypeOut MovementType = "OUT"
)

func (m MovementType) Valid() bool {
	return m == MovementTypeIn || m == MovementTypeOut
}

// Product.QuantityKg is always the sum of its stock movements.
type Product struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	QuantityKg decimal.Decimal `json:"quantity_kg"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// StockMovement is immutable once written. QuantityKg is signed: positive for
// IN, negative for OUT.
type StockMovement struct {
	ID         uuid.UUID       `json:"id"`
	ProductID  uuid.UUID       `json:"product_id"`
	Type       MovementType    `json:"type"`
	QuantityKg decimal.Decimal `json:"quantity_kg"`
	Reason     string          `json:"reason"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewStockMovement signs qty by direction. qty must be positive.
func NewStockMovement(productID uuid.UUID, typ MovementType, qty decimal.Decimal, reason string, now time.Time) (*StockMovement, error) {
	if !typ.Valid() {
		return nil, ValidationError("movement type must be IN or OUT")
	}
	if !qty.IsPositive() {
		return nil, ValidationError("quantity_kg must be positive")
	}
	if err := CheckKg("quantity_kg", qty); err != nil {
		return nil, err
	}
	signed := qty
	if typ == MovementTypeOut {
		signed = qty.Neg()
	}
	return &StockMovement{
		ID:         uuid.New(),
		ProductID:  productID,
		Type:       typ,
		QuantityKg: signed,
		Reason:     reason,
		CreatedAt:  now,
	}, nil
}
