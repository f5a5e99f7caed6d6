package http

import (
	"net/http"

	"coldchain-rental-core/internal/metrics"
	"coldchain-rental-core/internal/security"
	"coldchain-rental-core/internal/service"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the HTTP layer needs. Metrics may be nil.
type Deps struct {
	Assets   service.AssetService
	Capacity service.CapacityLedger
	Rentals  service.RentalService
	Stock    service.StockService
	Orders   service.OrderService
	Invoices service.InvoiceService
	Payments service.PaymentService

	Tokens         security.TokenManager
	CallbackSecret []byte
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
}

type handler struct {
	Deps
}

// NewRouter wires every route under /api/v1 plus the ops endpoints.
func NewRouter(d Deps) *mux.Router {
	h := &handler{Deps: d}
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	root := mux.NewRouter()
	root.Use(recoverPanics, instrument(d.Metrics))
	root.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	root.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := root.PathPrefix("/api/v1").Subrouter()
	// Signed by the provider; no bearer token.
	api.HandleFunc("/webhooks/mobile-money", h.providerCallback).Methods(http.MethodPost)

	sec := api.NewRoute().Subrouter()
	sec.Use(authenticate(d.Tokens))

	sec.HandleFunc("/assets", h.registerAsset).Methods(http.MethodPost)
	sec.HandleFunc("/assets", h.discoverAssets).Methods(http.MethodGet)
	sec.HandleFunc("/assets/{id}", h.getAsset).Methods(http.MethodGet)
	sec.HandleFunc("/assets/{id}", h.updateAsset).Methods(http.MethodPatch)
	sec.HandleFunc("/assets/{id}/retire", h.retireAsset).Methods(http.MethodPost)

	sec.HandleFunc("/cold-rooms/{id}/occupancy", h.occupancy).Methods(http.MethodGet)
	sec.HandleFunc("/cold-rooms/{id}/reserve", h.reserveCapacity).Methods(http.MethodPost)
	sec.HandleFunc("/cold-rooms/{id}/release", h.releaseCapacity).Methods(http.MethodPost)

	sec.HandleFunc("/rentals", h.createRental).Methods(http.MethodPost)
	sec.HandleFunc("/rentals", h.listRentals).Methods(http.MethodGet)
	sec.HandleFunc("/rentals/{id}", h.getRental).Methods(http.MethodGet)
	sec.HandleFunc("/rentals/{id}/{action:approve|activate|complete|cancel}", h.rentalAction).Methods(http.MethodPost)
	sec.HandleFunc("/rentals/{id}/invoice", h.invoiceRental).Methods(http.MethodPost)

	sec.HandleFunc("/products", h.createProduct).Methods(http.MethodPost)
	sec.HandleFunc("/products/{id}", h.getProduct).Methods(http.MethodGet)
	sec.HandleFunc("/products/{id}/stock", h.adjustStock).Methods(http.MethodPost)
	sec.HandleFunc("/products/{id}/movements", h.listMovements).Methods(http.MethodGet)

	sec.HandleFunc("/orders", h.createOrder).Methods(http.MethodPost)
	sec.HandleFunc("/orders/{id}", h.getOrder).Methods(http.MethodGet)
	sec.HandleFunc("/orders/{id}/{action:approve|reject}", h.orderAction).Methods(http.MethodPost)
	sec.HandleFunc("/orders/{id}/invoice", h.invoiceOrder).Methods(http.MethodPost)

	sec.HandleFunc("/invoices", h.generateInvoice).Methods(http.MethodPost)
	sec.HandleFunc("/invoices", h.listInvoices).Methods(http.MethodGet)
	sec.HandleFunc("/invoices/{id}", h.getInvoice).Methods(http.MethodGet)
	sec.HandleFunc("/invoices/{id}/void", h.voidInvoice).Methods(http.MethodPost)

	sec.HandleFunc("/payments", h.initiatePayment).Methods(http.MethodPost)
	sec.HandleFunc("/payments/{id}", h.getPayment).Methods(http.MethodGet)

	return root
}
