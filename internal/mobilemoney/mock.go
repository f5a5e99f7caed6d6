package mobilemoney

import (
	"context"
	"strings"
	"sync"
	"time"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/logger"
)

// CallbackFunc delivers a settlement back into the payment adapter.
type CallbackFunc func(ctx context.Context, reference string, outcome domain.PaymentOutcome, reason string) error

// MockProvider accepts every request and settles it after a delay through the
// bound callback. Phone numbers ending in 99 are declined by the payer.
type MockProvider struct {
	delay time.Duration

	mu       sync.Mutex
	callback CallbackFunc
	wg       sync.WaitGroup
}

func NewMockProvider(delay time.Duration) *MockProvider {
	logger.Info("Mobile money mock mode enabled", "delay", delay)
	return &MockProvider{delay: delay}
}

// Bind sets where settlements are delivered. Requests made before Bind are
// accepted but never settled.
func (m *MockProvider) Bind(fn CallbackFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = fn
}

func (m *MockProvider) RequestToPay(ctx context.Context, req PaymentRequest) error {
	logger.ExternalServiceCall(serviceName, "MockRequestToPay", "reference", req.Reference)

	m.mu.Lock()
	cb := m.callback
	m.mu.Unlock()
	if cb == nil {
		return nil
	}

	outcome, reason := domain.OutcomeConfirmed, ""
	if strings.HasSuffix(req.PhoneNumber, "99") {
		outcome, reason = domain.OutcomeFailed, "payer declined"
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		time.Sleep(m.delay)
		err := cb(context.Background(), req.Reference, outcome, reason)
		logger.ExternalServiceResult(serviceName, "MockCallback", err, "reference", req.Reference, "outcome", outcome)
	}()
	return nil
}

// Wait blocks until every scheduled settlement has been delivered.
func (m *MockProvider) Wait() {
	m.wg.Wait()
}
