package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/metrics"
	"coldchain-rental-core/internal/mobilemoney"
	"coldchain-rental-core/internal/repository/memory"
	"coldchain-rental-core/internal/security"
	"coldchain-rental-core/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)

const callbackSecret = "whsec_test"

type acceptingProvider struct{}

func (acceptingProvider) RequestToPay(context.Context, mobilemoney.PaymentRequest) error { return nil }

type apiFixture struct {
	router   *mux.Router
	tokens   security.TokenManager
	manager  string
	admin    string
	buyer    string
	supplier string
	buyerID  uuid.UUID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := memory.NewStore()
	clock := func() time.Time { return testNow }
	notifier := service.NewLogNotifier()
	payments := service.NewPaymentService(store, acceptingProvider{}, notifier, m, clock, service.PaymentOptions{MaxTries: 1})
	t.Cleanup(payments.Wait)

	tokens := security.NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour)
	f := &apiFixture{tokens: tokens, buyerID: uuid.New()}
	f.manager = f.token(t, uuid.New(), domain.RoleSiteManager)
	f.admin = f.token(t, uuid.New(), domain.RoleAdmin)
	f.buyer = f.token(t, f.buyerID, domain.RoleBuyer)
	f.supplier = f.token(t, uuid.New(), domain.RoleSupplier)

	f.router = NewRouter(Deps{
		Assets:         service.NewAssetService(store, m, clock),
		Capacity:       service.NewCapacityLedger(store, m, clock),
		Rentals:        service.NewRentalService(store, notifier, m, clock),
		Stock:          service.NewStockService(store, clock),
		Orders:         service.NewOrderService(store, m, clock),
		Invoices:       service.NewInvoiceService(store, m, clock),
		Payments:       payments,
		Tokens:         tokens,
		CallbackSecret: []byte(callbackSecret),
		Metrics:        m,
		Gatherer:       reg,
	})
	return f
}

func (f *apiFixture) token(t *testing.T, id uuid.UUID, role domain.Role) string {
	t.Helper()
	tok, err := f.tokens.GenerateAccessToken(id, role)
	require.NoError(t, err)
	return tok
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return e["kind"].(string)
}

func (f *apiFixture) coldRoom(t *testing.T, totalKg string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/assets", f.manager, map[string]any{
		"type":              "COLD_ROOM",
		"site_id":           uuid.NewString(),
		"name":              "Kariakoo Room A",
		"total_capacity_kg": totalKg,
		"temperature_min":   -5,
		"temperature_max":   4,
		"power_type":        "SOLAR",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)["id"].(string)
}

func TestRouter_OpsEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "", nil).Code)

	f.do(t, http.MethodGet, "/api/v1/assets", f.manager, nil)
	rec := f.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/api/v1/assets"`)
}

func TestRouter_Authentication(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/rentals", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHENTICATED", errorKind(t, rec))

	rec = f.do(t, http.MethodGet, "/api/v1/rentals", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/rentals", f.buyer, nil).Code)
}

func TestRouter_AssetRegistry(t *testing.T) {
	f := newAPIFixture(t)
	id := f.coldRoom(t, "1200")

	rec := f.do(t, http.MethodGet, "/api/v1/assets/"+id, f.buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "COLD_ROOM", body["type"])
	assert.Equal(t, "0", body["used_capacity_kg"])

	t.Run("buyers cannot register", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/assets", f.buyer, map[string]any{
			"type": "COLD_BOX", "site_id": uuid.NewString(), "identification_number": "CB-1", "size": "40L",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "PERMISSION", errorKind(t, rec))
	})

	t.Run("unknown type", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/assets", f.manager, map[string]any{"type": "FREEZER"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION", errorKind(t, rec))
	})

	t.Run("foreign field rejected", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/assets", f.manager, map[string]any{
			"type": "COLD_BOX", "site_id": uuid.NewString(), "identification_number": "CB-2", "size": "40L", "plate_number": "T1",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("shrinking below used capacity", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/cold-rooms/"+id+"/reserve", f.manager, map[string]any{"kg": "500"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		rec = f.do(t, http.MethodPatch, "/api/v1/assets/"+id, f.manager, map[string]any{"total_capacity_kg": "400"})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "CAPACITY_CONFLICT", errorKind(t, rec))
	})

	t.Run("discover filters by type", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/assets?type=COLD_ROOM", f.buyer, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode(t, rec)["items"], 1)
		rec = f.do(t, http.MethodGet, "/api/v1/assets?type=BOAT", f.buyer, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/assets/not-a-uuid", f.buyer, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = f.do(t, http.MethodGet, "/api/v1/assets/"+uuid.NewString(), f.buyer, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRouter_ColdRoomRental(t *testing.T) {
	f := newAPIFixture(t)
	room := f.coldRoom(t, "1000")
	rental := func(kg string) *httptest.ResponseRecorder {
		return f.do(t, http.MethodPost, "/api/v1/rentals", f.buyer, map[string]any{
			"asset_type":         "COLD_ROOM",
			"asset_id":           room,
			"rental_start_date":  "2024-06-01T00:00:00Z",
			"rental_end_date":    "2024-06-05T00:00:00Z",
			"estimated_fee":      "40000",
			"capacity_needed_kg": kg,
		})
	}

	rec := rental("700")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	assert.Equal(t, "REQUESTED", created["status"])
	assert.Equal(t, f.buyerID.String(), created["client_id"])

	rec = rental("400")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CAPACITY_EXCEEDED", errorKind(t, rec))

	rec = f.do(t, http.MethodGet, "/api/v1/cold-rooms/"+room+"/occupancy", f.buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "300", decode(t, rec)["available_kg"])

	id := created["id"].(string)
	rec = f.do(t, http.MethodPost, "/api/v1/rentals/"+id+"/approve", f.buyer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/v1/rentals/"+id+"/complete", f.manager, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_STATE", errorKind(t, rec))

	rec = f.do(t, http.MethodPost, "/api/v1/rentals/"+id+"/cancel", f.buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/v1/cold-rooms/"+room+"/occupancy", f.buyer, nil)
	assert.Equal(t, "1000", decode(t, rec)["available_kg"])

	rec = f.do(t, http.MethodGet, "/api/v1/rentals?status=CANCELLED", f.buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode(t, rec)
	assert.Equal(t, float64(1), page["total"])
}

func TestRouter_InvoicePaymentAndWebhook(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/invoices", f.supplier, map[string]any{
		"client_id": f.buyerID,
		"items":     []map[string]any{{"description": "Tilapia", "quantity": "2", "unit": "kg", "unit_price": "25000"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inv := decode(t, rec)
	assert.Equal(t, "INV-000001", inv["invoice_number"])
	invoiceID := inv["id"].(string)

	rec = f.do(t, http.MethodPost, "/api/v1/payments", f.buyer, map[string]any{
		"invoice_id": invoiceID, "phone_number": "+255712345678", "amount": "20000",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	payment := decode(t, rec)
	ref := payment["provider_reference"].(string)

	callback := func(body []byte, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mobile-money", bytes.NewReader(body))
		req.Header.Set(mobilemoney.SignatureHeader, signature)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec
	}
	body, err := json.Marshal(mobilemoney.Callback{Reference: ref, Status: "confirmed"})
	require.NoError(t, err)

	rec = callback(body, mobilemoney.Sign([]byte("wrong"), body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	sig := "sha256=" + mobilemoney.Sign([]byte(callbackSecret), body)
	rec = callback(body, sig)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "CONFIRMED", decode(t, rec)["status"])

	// Replays are acknowledged without paying twice.
	rec = callback(body, sig)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/invoices/"+invoiceID, f.buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "20000", decode(t, rec)["paid_amount"])

	unknown, _ := json.Marshal(mobilemoney.Callback{Reference: "nope", Status: "CONFIRMED"})
	rec = callback(unknown, mobilemoney.Sign([]byte(callbackSecret), unknown))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/invoices/"+invoiceID+"/void", f.admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/payments/"+payment["id"].(string), f.buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CONFIRMED", decode(t, rec)["status"])
}

func TestRouter_OrderFlow(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/products", f.supplier, map[string]any{
		"name": "Sardines", "unit_price": "3000", "quantity_kg": "50",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	productID := decode(t, rec)["id"].(string)

	rec = f.do(t, http.MethodPost, "/api/v1/products/"+productID+"/stock", f.supplier, map[string]any{
		"type": "OUT", "quantity_kg": "80", "reason": "spoilage",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/orders", f.buyer, map[string]any{
		"delivery_address": "Ferry market stall 12",
		"items":            []map[string]any{{"product_id": productID, "quantity_kg": "10"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	orderID := decode(t, rec)["id"].(string)

	rec = f.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/approve", f.supplier, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/invoice", f.supplier, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "30000", decode(t, rec)["total_amount"])

	rec = f.do(t, http.MethodGet, "/api/v1/products/"+productID+"/movements", f.supplier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 2)
}
