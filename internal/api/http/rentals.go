package http

import (
	"net/http"
	"time"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type createRentalRequest struct {
	AssetType        domain.AssetType `json:"asset_type"`
	AssetID          uuid.UUID        `json:"asset_id"`
	ClientID         uuid.UUID        `json:"client_id"`
	RentalStartDate  time.Time        `json:"rental_start_date"`
	RentalEndDate    time.Time        `json:"rental_end_date"`
	EstimatedFee     decimal.Decimal  `json:"estimated_fee"`
	CapacityNeededKg *decimal.Decimal `json:"capacity_needed_kg"`
}

func (h *handler) createRental(w http.ResponseWriter, r *http.Request) {
	var req createRentalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rental, err := h.Rentals.CreateRental(r.Context(), mustActor(r), service.CreateRentalInput{
		AssetType:        req.AssetType,
		AssetID:          req.AssetID,
		ClientID:         req.ClientID,
		StartDate:        req.RentalStartDate,
		EndDate:          req.RentalEndDate,
		EstimatedFee:     req.EstimatedFee,
		CapacityNeededKg: req.CapacityNeededKg,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rental)
}

func (h *handler) getRental(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rental, err := h.Rentals.GetRental(r.Context(), mustActor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rental)
}

func (h *handler) listRentals(w http.ResponseWriter, r *http.Request) {
	clientID, err := queryID(r, "client_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	pageNum, err := queryInt(r, "page")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter := domain.RentalFilter{
		ClientID: clientID,
		Status:   domain.RentalStatus(r.URL.Query().Get("status")),
		Page:     pageNum,
		Limit:    limit,
	}
	rentals, total, err := h.Rentals.ListRentals(r.Context(), mustActor(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(rentals, total, pageNum, limit))
}

func (h *handler) rentalAction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	actor := mustActor(r)
	var rental *domain.Rental
	switch mux.Vars(r)["action"] {
	case "approve":
		rental, err = h.Rentals.ApproveRental(r.Context(), actor, id)
	case "activate":
		rental, err = h.Rentals.ActivateRental(r.Context(), actor, id)
	case "complete":
		rental, err = h.Rentals.CompleteRental(r.Context(), actor, id)
	case "cancel":
		rental, err = h.Rentals.CancelRental(r.Context(), actor, id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rental)
}

func (h *handler) invoiceRental(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.Invoices.InvoiceRental(r.Context(), mustActor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}
