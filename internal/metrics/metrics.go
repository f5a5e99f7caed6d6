// Package metrics exposes the Prometheus collectors of the rental core. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"coldchain-rental-core/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "coldchain"

const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

type Metrics struct {
	rentalTransitions *prometheus.CounterVec
	capacityOps       *prometheus.CounterVec
	capacityKg        *prometheus.CounterVec
	paymentsSettled   *prometheus.CounterVec
	dispatchAttempts  *prometheus.CounterVec
	callbacks         *prometheus.CounterVec
	domainErrors      *prometheus.CounterVec
	jobRuns           *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	httpDuration      *prometheus.HistogramVec
}

// New registers every collector on registerer, or on the default registry
// when registerer is nil.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		rentalTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rental_transitions_total",
			Help:      "Rental status transitions by asset type and target status.",
		}, []string{"asset_type", "status"}),
		capacityOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capacity_operations_total",
			Help:      "Cold-room reserve and release calls by outcome.",
		}, []string{"operation", "outcome"}),
		capacityKg: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capacity_kg_total",
			Help:      "Kilograms reserved and released across all cold rooms.",
		}, []string{"operation"}),
		paymentsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_settled_total",
			Help:      "Payments reaching a terminal status.",
		}, []string{"status"}),
		dispatchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_dispatch_attempts_total",
			Help:      "Request-to-pay calls made to the mobile-money provider.",
		}, []string{"outcome"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_callbacks_total",
			Help:      "Provider callbacks by result; duplicate means the payment was already terminal.",
		}, []string{"result"}),
		domainErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_errors_total",
			Help:      "Rejected operations by error kind.",
		}, []string{"kind"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by result.",
		}, []string{"job", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduled job run time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route template.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}
	registerer.MustRegister(
		m.rentalTransitions,
		m.capacityOps,
		m.capacityKg,
		m.paymentsSettled,
		m.dispatchAttempts,
		m.callbacks,
		m.domainErrors,
		m.jobRuns,
		m.jobDuration,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) RentalTransition(assetType domain.AssetType, status domain.RentalStatus) {
	if m == nil {
		return
	}
	m.rentalTransitions.WithLabelValues(string(assetType), string(status)).Inc()
}

// CapacityOp records a reserve or release. kg only counts on success.
func (m *Metrics) CapacityOp(operation string, kg float64, err error) {
	if m == nil {
		return
	}
	m.capacityOps.WithLabelValues(operation, Outcome(err)).Inc()
	if err == nil {
		m.capacityKg.WithLabelValues(operation).Add(kg)
	}
}

func (m *Metrics) PaymentSettled(status domain.PaymentStatus) {
	if m == nil {
		return
	}
	m.paymentsSettled.WithLabelValues(string(status)).Inc()
}

// DispatchAttempt takes one of the Outcome* constants.
func (m *Metrics) DispatchAttempt(outcome string) {
	if m == nil {
		return
	}
	m.dispatchAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Callback(result string) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(result).Inc()
}

// DomainError counts caller-facing rejections; infrastructure errors are ignored.
func (m *Metrics) DomainError(err error) {
	if m == nil {
		return
	}
	if kind := domain.KindOf(err); kind != "" {
		m.domainErrors.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) JobRun(job string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := OutcomeOK
	if err != nil {
		result = OutcomeError
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
	m.jobDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
}

func (m *Metrics) HTTPRequest(method, route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(code)).Observe(elapsed.Seconds())
}

// Outcome buckets an error as ok, rejected (domain error) or error (infrastructure).
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case domain.IsDomainError(err):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}
