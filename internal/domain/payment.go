package domain

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusConfirmed PaymentStatus = "CONFIRMED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	// PaymentStatusExpired is a local timeout: the provider never answered in
	// time. It no longer holds the invoice balance, but the provider's own
	// outcome still settles it.
	PaymentStatusExpired PaymentStatus = "EXPIRED"
)

// Terminal reports whether the provider's outcome has been recorded.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusConfirmed || s == PaymentStatusFailed
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusConfirmed, PaymentStatusFailed, PaymentStatusExpired:
		return true
	}
	return false
}

// PaymentOutcome is what the mobile-money provider reports for a request.
type PaymentOutcome string

const (
	OutcomeConfirmed PaymentOutcome = "CONFIRMED"
	OutcomeFailed    PaymentOutcome = "FAILED"
)

func (o PaymentOutcome) Valid() bool {
	return o == OutcomeConfirmed || o == OutcomeFailed
}

type Payment struct {
	ID                uuid.UUID       `json:"id"`
	InvoiceID         uuid.UUID       `json:"invoice_id"`
	PhoneNumber       string          `json:"phone_number"`
	Amount            decimal.Decimal `json:"amount"`
	ProviderReference string          `json:"provider_reference"`
	Status            PaymentStatus   `json:"status"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Settle moves a PENDING or EXPIRED payment to its terminal state. It reports
// false when the payment was already terminal, which callers treat as a
// duplicate.
func (p *Payment) Settle(outcome PaymentOutcome, reason string, now time.Time) bool {
	if p.Status.Terminal() {
		return false
	}
	if outcome == OutcomeConfirmed {
		p.Status = PaymentStatusConfirmed
		p.FailureReason = ""
	} else {
		p.Status = PaymentStatusFailed
		p.FailureReason = reason
	}
	p.UpdatedAt = now
	return true
}

// Expire marks a PENDING payment EXPIRED. Anything else is left alone.
func (p *Payment) Expire(reason string, now time.Time) bool {
	if p.Status != PaymentStatusPending {
		return false
	}
	p.Status = PaymentStatusExpired
	p.FailureReason = reason
	p.UpdatedAt = now
	return true
}

// MSISDN in international format, with or without the leading plus.
var phonePattern = regexp.MustCompile(`^\+?[1-9][0-9]{7,14}$`)

func ValidPhoneNumber(phone string) bool {
	return phonePattern.MatchString(phone)
}
