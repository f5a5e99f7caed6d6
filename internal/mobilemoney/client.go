// Package mobilemoney talks to the mobile-money provider: outbound
// request-to-pay calls and verification of the signed callbacks it sends back.
package mobilemoney

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"coldchain-rental-core/internal/logger"

	"github.com/shopspring/decimal"
)

const serviceName = "mobile_money"

// ErrRejected marks a request the provider refused outright. Retrying it
// cannot succeed.
var ErrRejected = errors.New("mobile money request rejected")

var ErrNotConfigured = errors.New("mobile money client not configured")

// IsPermanent reports whether err should stop the dispatch retry loop.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrRejected) || errors.Is(err, ErrNotConfigured)
}

type PaymentRequest struct {
	Reference   string          `json:"reference"`
	PhoneNumber string          `json:"phone_number"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
	CallbackURL string          `json:"callback_url,omitempty"`
}

type Client struct {
	baseURL     string
	apiKey      string
	callbackURL string
	httpClient  *http.Client
}

func NewClient(baseURL, apiKey, callbackURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		callbackURL: callbackURL,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// RequestToPay asks the provider to push a payment prompt to the payer. A nil
// error only means the request was accepted; the outcome arrives by callback.
func (c *Client) RequestToPay(ctx context.Context, req PaymentRequest) error {
	if c == nil || c.baseURL == "" {
		return ErrNotConfigured
	}
	if req.CallbackURL == "" {
		req.CallbackURL = c.callbackURL
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: encoding request: %v", ErrRejected, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/requesttopay", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: building request: %v", ErrRejected, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Reference-Id", req.Reference)

	logger.ExternalServiceCall(serviceName, "RequestToPay", "reference", req.Reference, "amount", req.Amount.String())
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		err = fmt.Errorf("request to pay: %w", err)
		logger.ExternalServiceResult(serviceName, "RequestToPay", err, "reference", req.Reference)
		return err
	}
	defer resp.Body.Close()

	err = classify(resp)
	logger.ExternalServiceResult(serviceName, "RequestToPay", err, "reference", req.Reference, "status", resp.StatusCode)
	return err
}

// classify maps the provider status: 2xx accepted, 408/429/5xx transient,
// every other 4xx permanent.
func classify(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch {
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("provider busy: status %d", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	default:
		return fmt.Errorf("provider error: status %d", resp.StatusCode)
	}
}
