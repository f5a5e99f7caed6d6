package jobs

import (
	"context"
	"fmt"
	"time"

	"coldchain-rental-core/internal/logger"
	"coldchain-rental-core/internal/metrics"
)

const (
	JobExpireStaleRentals  = "expire-stale-rentals"
	JobExpireStalePayments = "expire-stale-payments"
	JobAll                 = "all"
)

type RentalExpirer interface {
	ExpireStaleRentals(ctx context.Context) (int, error)
}

type PaymentExpirer interface {
	ExpireStalePayments(ctx context.Context) (int, error)
}

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	rentals  RentalExpirer
	payments PaymentExpirer
	metrics  *metrics.Metrics
	timeout  time.Duration
}

// NewJobRunner creates a job runner. A zero timeout means each run gets ten minutes.
func NewJobRunner(rentals RentalExpirer, payments PaymentExpirer, m *metrics.Metrics, timeout time.Duration) *JobRunner {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &JobRunner{
		rentals:  rentals,
		payments: payments,
		metrics:  m,
		timeout:  timeout,
	}
}

// runWithRecovery wraps job execution with panic recovery, a deadline and
// run metrics. A panic is reported as the job's error.
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context) (int, error)) (err error) {
	log := logger.WithComponent("scheduler").With("job", jobName)
	started := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), jr.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", "panic", r)
			err = fmt.Errorf("job %s panicked: %v", jobName, r)
		}
		jr.metrics.JobRun(jobName, started, err)
	}()

	log.Info("Starting job")
	n, err := jobFunc(ctx)
	if err != nil {
		log.Error("Job failed", "processed", n, "error", err, "elapsed", time.Since(started))
		return err
	}
	log.Info("Job completed", "processed", n, "elapsed", time.Since(started))
	return nil
}

// Run executes one job by name, or every job for JobAll.
func (jr *JobRunner) Run(name string) error {
	switch name {
	case JobExpireStaleRentals:
		return jr.ExpireStaleRentals()
	case JobExpireStalePayments:
		return jr.ExpireStalePayments()
	case JobAll:
		errR := jr.ExpireStaleRentals()
		errP := jr.ExpireStalePayments()
		if errR != nil {
			return errR
		}
		return errP
	default:
		return fmt.Errorf("unknown job %q (available: %s, %s, %s)", name, JobExpireStaleRentals, JobExpireStalePayments, JobAll)
	}
}
