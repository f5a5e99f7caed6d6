package http

import (
	"net/http"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type createProductRequest struct {
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	QuantityKg decimal.Decimal `json:"quantity_kg"`
}

func (h *handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Stock.CreateProduct(r.Context(), mustActor(r), req.Name, req.UnitPrice, req.QuantityKg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Stock.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type adjustStockRequest struct {
	Type       domain.MovementType `json:"type"`
	QuantityKg decimal.Decimal     `json:"quantity_kg"`
	Reason     string              `json:"reason"`
}

type adjustStockResponse struct {
	Movement *domain.StockMovement `json:"movement"`
	Product  *domain.Product       `json:"product"`
}

func (h *handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req adjustStockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	mv, p, err := h.Stock.AdjustStock(r.Context(), mustActor(r), id, req.Type, req.QuantityKg, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, adjustStockResponse{Movement: mv, Product: p})
}

func (h *handler) listMovements(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	mvs, err := h.Stock.ListMovements(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if mvs == nil {
		mvs = []domain.StockMovement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mvs})
}

type createOrderRequest struct {
	DeliveryAddress string              `json:"delivery_address"`
	Items           []service.OrderLine `json:"items"`
}

func (h *handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.CreateOrder(r.Context(), mustActor(r), req.DeliveryAddress, req.Items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.GetOrder(r.Context(), mustActor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *handler) orderAction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var o *domain.Order
	if mux.Vars(r)["action"] == "approve" {
		o, err = h.Orders.ApproveOrder(r.Context(), mustActor(r), id)
	} else {
		o, err = h.Orders.RejectOrder(r.Context(), mustActor(r), id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *handler) invoiceOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.Orders.InvoiceOrder(r.Context(), mustActor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

type generateInvoiceRequest struct {
	ClientID uuid.UUID            `json:"client_id"`
	Items    []domain.InvoiceItem `json:"items"`
}

func (h *handler) generateInvoice(w http.ResponseWriter, r *http.Request) {
	var req generateInvoiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.Invoices.GenerateInvoice(r.Context(), mustActor(r), req.ClientID, req.Items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.Invoices.GetInvoice(r.Context(), mustActor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *handler) listInvoices(w http.ResponseWriter, r *http.Request) {
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
	filter := domain.InvoiceFilter{
		ClientID: clientID,
		Status:   domain.InvoiceStatus(r.URL.Query().Get("status")),
		Page:     pageNum,
		Limit:    limit,
	}
	invoices, total, err := h.Invoices.ListInvoices(r.Context(), mustActor(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(invoices, total, pageNum, limit))
}

func (h *handler) voidInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.Invoices.VoidInvoice(r.Context(), mustActor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
