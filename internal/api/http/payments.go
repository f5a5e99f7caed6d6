package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/logger"
	"coldchain-rental-core/internal/mobilemoney"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxCallbackBytes = 64 << 10

type initiatePaymentRequest struct {
	InvoiceID   uuid.UUID       `json:"invoice_id"`
	PhoneNumber string          `json:"phone_number"`
	Amount      decimal.Decimal `json:"amount"`
}

// initiatePayment answers 202: the payment is PENDING until the provider calls back.
func (h *handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	var req initiatePaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Payments.InitiatePayment(r.Context(), mustActor(r), req.InvoiceID, req.PhoneNumber, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, p)
}

func (h *handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Payments.GetPayment(r.Context(), mustActor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type callbackResponse struct {
	PaymentID uuid.UUID            `json:"payment_id"`
	Status    domain.PaymentStatus `json:"status"`
}

// providerCallback settles a payment. Replays and late contradicting
// callbacks get 200 so the provider stops retrying; so does a confirmation
// the invoice refused, which is stored FAILED.
func (h *handler) providerCallback(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("webhook")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBytes))
	if err != nil {
		writeError(w, r, domain.ValidationError("unreadable callback body"))
		return
	}
	if !mobilemoney.VerifySignature(h.CallbackSecret, body, r.Header.Get(mobilemoney.SignatureHeader)) {
		log.Warn("Rejected callback with bad signature", "remote", r.RemoteAddr)
		writeUnauthenticated(w, "invalid callback signature")
		return
	}

	var cb mobilemoney.Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		writeError(w, r, domain.ValidationError("malformed callback: %v", err))
		return
	}
	outcome := domain.PaymentOutcome(strings.ToUpper(cb.Status))
	p, err := h.Payments.OnProviderCallback(r.Context(), cb.Reference, outcome, cb.Reason)
	if err != nil && !(p != nil && domain.IsDomainError(err)) {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("Callback for unknown reference", "reference", cb.Reference)
		}
		writeError(w, r, err)
		return
	}
	if err != nil {
		log.Warn("Confirmation refused by invoice", "reference", cb.Reference, "error", err)
	}
	writeJSON(w, http.StatusOK, callbackResponse{PaymentID: p.ID, Status: p.Status})
}
