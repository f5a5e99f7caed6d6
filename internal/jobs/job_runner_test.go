package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"coldchain-rental-core/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockExpirer struct {
	mock.Mock
}

func (m *mockExpirer) ExpireStaleRentals(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockExpirer) ExpireStalePayments(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func newRunner(t *testing.T) (*JobRunner, *mockExpirer, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	exp := &mockExpirer{}
	return NewJobRunner(exp, exp, metrics.New(reg), time.Second), exp, reg
}

func TestJobRunner_Run(t *testing.T) {
	jr, exp, reg := newRunner(t)
	exp.On("ExpireStaleRentals", mock.Anything).Return(3, nil).Once()
	exp.On("ExpireStalePayments", mock.Anything).Return(0, errors.New("db down")).Once()

	require.NoError(t, jr.Run(JobExpireStaleRentals))
	assert.EqualError(t, jr.Run(JobExpireStalePayments), "db down")
	exp.AssertExpectations(t)

	n, err := testutil.GatherAndCount(reg, "coldchain_job_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestJobRunner_RunAllContinuesAfterFailure(t *testing.T) {
	jr, exp, _ := newRunner(t)
	exp.On("ExpireStaleRentals", mock.Anything).Return(0, errors.New("timeout")).Once()
	exp.On("ExpireStalePayments", mock.Anything).Return(2, nil).Once()

	assert.EqualError(t, jr.Run(JobAll), "timeout")
	exp.AssertExpectations(t)
}

func TestJobRunner_RecoversFromPanic(t *testing.T) {
	jr, exp, _ := newRunner(t)
	exp.On("ExpireStaleRentals", mock.Anything).Run(func(mock.Arguments) { panic("nil map") }).Return(0, nil)

	err := jr.Run(JobExpireStaleRentals)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestJobRunner_UnknownJob(t *testing.T) {
	jr, _, _ := newRunner(t)
	assert.ErrorContains(t, jr.Run("mark-overdue"), "unknown job")
}

func TestJobRunner_DeadlineIsApplied(t *testing.T) {
	jr, exp, _ := newRunner(t)
	exp.On("ExpireStalePayments", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	})).Return(0, nil).Once()

	require.NoError(t, jr.ExpireStalePayments())
	exp.AssertExpectations(t)
}
