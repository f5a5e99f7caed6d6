package mobilemoney

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"coldchain-rental-core/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_RequestToPay(t *testing.T) {
	var got PaymentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/requesttopay", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		assert.Equal(t, "ref-1", r.Header.Get("X-Reference-Id"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "key-1", "https://core.example/api/v1/webhooks/mobile-money", time.Second)
	err := c.RequestToPay(context.Background(), PaymentRequest{
		Reference:   "ref-1",
		PhoneNumber: "+255700000001",
		Amount:      decimal.RequireFromString("20000.50"),
		Currency:    "TZS",
	})
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("20000.50")))
	assert.Equal(t, "https://core.example/api/v1/webhooks/mobile-money", got.CallbackURL)
}

func TestClient_Classification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		wantErr   bool
		permanent bool
	}{
		{name: "accepted", status: http.StatusAccepted},
		{name: "ok", status: http.StatusOK},
		{name: "bad request", status: http.StatusBadRequest, wantErr: true, permanent: true},
		{name: "conflict", status: http.StatusConflict, wantErr: true, permanent: true},
		{name: "too many requests", status: http.StatusTooManyRequests, wantErr: true},
		{name: "server error", status: http.StatusBadGateway, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			}))
			defer srv.Close()

			err := NewClient(srv.URL, "k", "", time.Second).RequestToPay(context.Background(), PaymentRequest{Reference: "r"})
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.permanent, IsPermanent(err))
		})
	}
}

func TestClient_NotConfiguredIsPermanent(t *testing.T) {
	err := NewClient("", "", "", time.Second).RequestToPay(context.Background(), PaymentRequest{})
	assert.True(t, IsPermanent(err))
}

func TestVerifySignature(t *testing.T) {
	secret := []byte("s3cret")
	body := []byte(`{"reference":"ref-1","status":"CONFIRMED"}`)
	sig := Sign(secret, body)

	assert.True(t, VerifySignature(secret, body, sig))
	assert.True(t, VerifySignature(secret, body, "sha256="+sig))
	assert.False(t, VerifySignature(secret, []byte(`{"reference":"ref-1","status":"FAILED"}`), sig))
	assert.False(t, VerifySignature([]byte("other"), body, sig))
	assert.False(t, VerifySignature(secret, body, "not-hex"))
	assert.False(t, VerifySignature(nil, body, sig))
}

func TestMockProvider_SettlesThroughCallback(t *testing.T) {
	m := NewMockProvider(time.Millisecond)
	var confirmed, failed atomic.Int32
	m.Bind(func(ctx context.Context, ref string, outcome domain.PaymentOutcome, reason string) error {
		if outcome == domain.OutcomeConfirmed {
			confirmed.Add(1)
		} else {
			assert.Equal(t, "payer declined", reason)
			failed.Add(1)
		}
		return nil
	})

	require.NoError(t, m.RequestToPay(context.Background(), PaymentRequest{Reference: "a", PhoneNumber: "+255700000001"}))
	require.NoError(t, m.RequestToPay(context.Background(), PaymentRequest{Reference: "b", PhoneNumber: "+255700000099"}))
	m.Wait()

	assert.Equal(t, int32(1), confirmed.Load())
	assert.Equal(t, int32(1), failed.Load())
}
