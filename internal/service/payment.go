package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/logger"
	"coldchain-rental-core/internal/metrics"
	"coldchain-rental-core/internal/mobilemoney"
	"coldchain-rental-core/internal/repository"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const expirePaymentsBatchSize = 200

type PaymentOptions struct {
	Currency        string
	PendingTTL      time.Duration
	DispatchTimeout time.Duration
	MaxTries        uint
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
}

func (o PaymentOptions) withDefaults() PaymentOptions {
	if o.Currency == "" {
		o.Currency = "TZS"
	}
	if o.PendingTTL <= 0 {
		o.PendingTTL = 30 * time.Minute
	}
	if o.DispatchTimeout <= 0 {
		o.DispatchTimeout = 15 * time.Second
	}
	if o.MaxTries == 0 {
		o.MaxTries = 5
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 10 * time.Second
	}
	return o
}

type paymentService struct {
	store    repository.Store
	provider PaymentProvider
	notifier Notifier
	metrics  *metrics.Metrics
	now      Clock
	opts     PaymentOptions

	wg sync.WaitGroup
}

func NewPaymentService(store repository.Store, provider PaymentProvider, notifier Notifier, m *metrics.Metrics, now Clock, opts PaymentOptions) PaymentService {
	return &paymentService{
		store:    store,
		provider: provider,
		notifier: notifier,
		metrics:  m,
		now:      now,
		opts:     opts.withDefaults(),
	}
}

func (s *paymentService) InitiatePayment(ctx context.Context, actor domain.Actor, invoiceID uuid.UUID, phoneNumber string, amount decimal.Decimal) (*domain.Payment, error) {
	logger.EnterMethod("paymentService.InitiatePayment", "actor", actor.UserID, "invoiceID", invoiceID, "amount", amount.String())
	if !amount.IsPositive() {
		return nil, domain.ValidationError("amount must be greater than zero")
	}
	if err := domain.CheckMoney("amount", amount); err != nil {
		return nil, err
	}
	if !domain.ValidPhoneNumber(phoneNumber) {
		return nil, domain.ValidationError("phone_number %q is not a valid MSISDN", phoneNumber)
	}

	var payment *domain.Payment
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		inv, err := repos.Invoices.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.ClientID != actor.UserID && !actor.Is(domain.RoleAdmin) {
			return domain.PermissionError("only the invoiced client may pay invoice %s", inv.InvoiceNumber)
		}
		if inv.Status != domain.InvoiceStatusUnpaid {
			return domain.InvalidStateError("invoice %s is %s", inv.InvoiceNumber, inv.Status)
		}
		pending, err := repos.Payments.SumPending(ctx, invoiceID)
		if err != nil {
			return err
		}
		outstanding := inv.Balance().Sub(pending)
		if amount.GreaterThan(outstanding) {
			return domain.ValidationError("amount %s exceeds outstanding balance %s", amount.String(), outstanding.String())
		}

		now := s.now()
		payment = &domain.Payment{
			ID:                uuid.New(),
			InvoiceID:         invoiceID,
			PhoneNumber:       phoneNumber,
			Amount:            amount,
			ProviderReference: uuid.NewString(),
			Status:            domain.PaymentStatusPending,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		return repos.Payments.Create(ctx, payment)
	})
	if err != nil {
		s.metrics.DomainError(err)
		logger.ExitMethodWithError("paymentService.InitiatePayment", err)
		return nil, err
	}

	req := mobilemoney.PaymentRequest{
		Reference:   payment.ProviderReference,
		PhoneNumber: payment.PhoneNumber,
		Amount:      payment.Amount,
		Currency:    s.opts.Currency,
		Description: fmt.Sprintf("Payment for invoice %s", invoiceID),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatch(context.WithoutCancel(ctx), req)
	}()

	logger.ExitMethod("paymentService.InitiatePayment", "paymentID", payment.ID, "reference", payment.ProviderReference)
	return payment, nil
}

// dispatch sends the request-to-pay, retrying transient provider failures.
// A request that cannot be delivered fails the payment.
func (s *paymentService) dispatch(ctx context.Context, req mobilemoney.PaymentRequest) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialBackoff
	b.MaxInterval = s.opts.MaxBackoff

	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		logger.Debug("Dispatching payment request", "reference", req.Reference, "attempt", attempt)
		callCtx, cancel := context.WithTimeout(ctx, s.opts.DispatchTimeout)
		defer cancel()
		err := s.provider.RequestToPay(callCtx, req)
		if err == nil {
			s.metrics.DispatchAttempt(metrics.OutcomeOK)
			return struct{}{}, nil
		}
		if mobilemoney.IsPermanent(err) {
			s.metrics.DispatchAttempt(metrics.OutcomeRejected)
			return struct{}{}, backoff.Permanent(err)
		}
		s.metrics.DispatchAttempt(metrics.OutcomeError)
		logger.Warn("Payment dispatch attempt failed", "reference", req.Reference, "attempt", attempt, "error", err)
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(s.opts.MaxTries))
	if err == nil {
		return
	}
	logger.Error("Payment dispatch abandoned", "reference", req.Reference, "attempts", attempt, "error", err)
	if _, _, serr := s.settle(ctx, req.Reference, domain.OutcomeFailed, "dispatch failed: "+err.Error()); serr != nil {
		logger.Error("Failed to mark undelivered payment as failed", "reference", req.Reference, "error", serr)
	}
}

func (s *paymentService) OnProviderCallback(ctx context.Context, providerReference string, outcome domain.PaymentOutcome, reason string) (*domain.Payment, error) {
	logger.EnterMethod("paymentService.OnProviderCallback", "reference", providerReference, "outcome", outcome)
	if providerReference == "" {
		return nil, domain.ValidationError("provider reference is required")
	}
	if !outcome.Valid() {
		return nil, domain.ValidationError("unknown payment outcome %q", outcome)
	}
	p, changed, err := s.settle(ctx, providerReference, outcome, reason)
	if err != nil {
		logger.ExitMethodWithError("paymentService.OnProviderCallback", err)
		return p, err
	}
	logger.ExitMethod("paymentService.OnProviderCallback", "paymentID", p.ID, "status", p.Status, "duplicate", !changed)
	return p, nil
}

// settle is the one idempotent transition to a terminal state, shared by
// provider callbacks and dispatch failures. It accepts PENDING and EXPIRED
// payments; changed is false when the payment was already terminal. A
// confirmation the invoice refuses is stored FAILED and the refusal is
// returned alongside the payment.
func (s *paymentService) settle(ctx context.Context, reference string, outcome domain.PaymentOutcome, reason string) (*domain.Payment, bool, error) {
	var (
		payment    *domain.Payment
		changed    bool
		rejection  error
		wasExpired bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		p, err := repos.Payments.GetByReferenceForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		payment = p
		if p.Status.Terminal() {
			return nil
		}
		wasExpired = p.Status == domain.PaymentStatusExpired

		now := s.now()
		if outcome == domain.OutcomeConfirmed {
			if _, err := recordPayment(ctx, repos, p.InvoiceID, p.Amount, now); err != nil {
				if !domain.IsDomainError(err) {
					return err
				}
				rejection = err
				outcome, reason = domain.OutcomeFailed, err.Error()
			}
		}
		changed = p.Settle(outcome, reason, now)
		return repos.Payments.Update(ctx, p)
	})
	if err != nil {
		s.metrics.Callback(metrics.OutcomeError)
		return nil, false, err
	}

	if !changed {
		s.metrics.Callback("duplicate")
		return payment, false, nil
	}
	s.metrics.PaymentSettled(payment.Status)
	s.metrics.Callback(metrics.Outcome(rejection))
	if wasExpired {
		logger.Info("Expired payment settled by provider", "paymentID", payment.ID, "reference", reference, "status", payment.Status)
	}
	// Ops already heard about an expired payment when it timed out.
	if payment.Status == domain.PaymentStatusFailed && (!wasExpired || rejection != nil) {
		logger.Warn("Payment failed", "paymentID", payment.ID, "reference", reference, "reason", payment.FailureReason)
		s.notifyFailure(ctx, payment)
	}
	return payment, true, rejection
}

func (s *paymentService) notifyFailure(ctx context.Context, p *domain.Payment) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PaymentFailed(ctx, p); err != nil {
		logger.Warn("Failed to send payment failure notice", "paymentID", p.ID, "error", err)
	}
}

// expire closes a PENDING payment the provider has not answered in time. The
// amount stops counting against the invoice balance; a late provider outcome
// still goes through settle.
func (s *paymentService) expire(ctx context.Context, reference string) (bool, error) {
	var (
		payment *domain.Payment
		changed bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		p, err := repos.Payments.GetByReferenceForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		payment = p
		changed = p.Expire("no confirmation from provider before timeout", s.now())
		if !changed {
			return nil
		}
		return repos.Payments.Update(ctx, p)
	})
	if err != nil || !changed {
		return false, err
	}
	s.metrics.PaymentSettled(payment.Status)
	logger.Warn("Payment expired", "paymentID", payment.ID, "reference", reference)
	s.notifyFailure(ctx, payment)
	return true, nil
}

func (s *paymentService) GetPayment(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Payment, error) {
	repos := s.store.Repositories()
	p, err := repos.Payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	inv, err := repos.Invoices.GetByID(ctx, p.InvoiceID)
	if err != nil {
		return nil, err
	}
	if err := canView(actor, inv.ClientID, "payment", id); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *paymentService) ExpireStalePayments(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.opts.PendingTTL)
	stale, err := s.store.Repositories().Payments.ListPendingBefore(ctx, cutoff, expirePaymentsBatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing pending payments: %w", err)
	}
	expired := 0
	for _, p := range stale {
		changed, err := s.expire(ctx, p.ProviderReference)
		if err != nil {
			logger.Error("Failed to expire payment", "paymentID", p.ID, "error", err)
			continue
		}
		if changed {
			expired++
		}
	}
	return expired, nil
}

func (s *paymentService) Wait() {
	s.wg.Wait()
}
