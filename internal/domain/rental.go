package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RentalStatus string

const (
	RentalStatusRequested RentalStatus = "REQUESTED"
	RentalStatusApproved  RentalStatus = "APPROVED"
	RentalStatusActive    RentalStatus = "ACTIVE"
	RentalStatusCompleted RentalStatus = "COMPLETED"
	RentalStatusCancelled RentalStatus = "CANCELLED"
)

// rentalTransitions is the complete set of legal moves; anything else is rejected.
var rentalTransitions = map[RentalStatus][]RentalStatus{
	RentalStatusRequested: {RentalStatusApproved, RentalStatusCancelled},
	RentalStatusApproved:  {RentalStatusActive, RentalStatusCancelled},
	RentalStatusActive:    {RentalStatusCompleted},
}

func (s RentalStatus) Valid() bool {
	switch s {
	case RentalStatusRequested, RentalStatusApproved, RentalStatusActive, RentalStatusCompleted, RentalStatusCancelled:
		return true
	}
	return false
}

func (s RentalStatus) Terminal() bool {
	return s == RentalStatusCompleted || s == RentalStatusCancelled
}

// HoldsClaim reports whether a rental in this status still blocks other
// bookings of the same exclusive asset.
func (s RentalStatus) HoldsClaim() bool {
	return s == RentalStatusRequested || s == RentalStatusApproved || s == RentalStatusActive
}

func (s RentalStatus) CanTransitionTo(next RentalStatus) bool {
	for _, allowed := range rentalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ClaimStatuses lists the statuses that hold a claim on an asset.
func ClaimStatuses() []RentalStatus {
	return []RentalStatus{RentalStatusRequested, RentalStatusApproved, RentalStatusActive}
}

type Rental struct {
	ID               uuid.UUID        `json:"id"`
	AssetType        AssetType        `json:"asset_type"`
	AssetID          uuid.UUID        `json:"asset_id"`
	ClientID         uuid.UUID        `json:"client_id"`
	RentalStartDate  time.Time        `json:"rental_start_date"`
	RentalEndDate    time.Time        `json:"rental_end_date"`
	EstimatedFee     decimal.Decimal  `json:"estimated_fee"`
	CapacityNeededKg *decimal.Decimal `json:"capacity_needed_kg,omitempty"`
	Status           RentalStatus     `json:"status"`
	InvoiceID        *uuid.UUID       `json:"invoice_id,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// TransitionTo moves the rental along the transition table.
func (r *Rental) TransitionTo(next RentalStatus, now time.Time) error {
	if !r.Status.CanTransitionTo(next) {
		return InvalidStateError("rental %s cannot move from %s to %s", r.ID, r.Status, next)
	}
	r.Status = next
	r.UpdatedAt = now
	return nil
}

// Overlaps is the half-open interval test [start, end).
func (r *Rental) Overlaps(start, end time.Time) bool {
	return r.RentalStartDate.Before(end) && start.Before(r.RentalEndDate)
}

// ReservedKg is the cold-room capacity this rental holds, zero for exclusive assets.
func (r *Rental) ReservedKg() decimal.Decimal {
	if r.AssetType != AssetTypeColdRoom || r.CapacityNeededKg == nil {
		return decimal.Zero
	}
	return *r.CapacityNeededKg
}

type RentalFilter struct {
	ClientID *uuid.UUID
	Status   RentalStatus
	Page     int32
	Limit    int32
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxPage         = 100_000
)

// Normalize clamps paging to sane bounds.
func (f *RentalFilter) Normalize() {
	f.Page, f.Limit = NormalizePage(f.Page, f.Limit)
}

func NormalizePage(page, limit int32) (int32, int32) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

// ValidatePage rejects page numbers whose offset no listing could reach.
func ValidatePage(page int32) error {
	if page > MaxPage {
		return ValidationError("page must be at most %d", MaxPage)
	}
	return nil
}

// PageOffset is the row offset of a normalized page, computed in 64 bits.
func PageOffset(page, limit int32) int64 {
	if page < 1 {
		return 0
	}
	return int64(page-1) * int64(limit)
}
