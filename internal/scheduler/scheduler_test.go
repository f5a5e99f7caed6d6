package scheduler

import (
	"context"
	"testing"

	"coldchain-rental-core/internal/config"
	"coldchain-rental-core/internal/jobs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopExpirer struct{}

func (noopExpirer) ExpireStaleRentals(context.Context) (int, error)  { return 0, nil }
func (noopExpirer) ExpireStalePayments(context.Context) (int, error) { return 0, nil }

func TestNewScheduler_RegistersJobs(t *testing.T) {
	runner := jobs.NewJobRunner(noopExpirer{}, noopExpirer{}, nil, 0)
	s, err := NewScheduler(config.SchedulerConfig{
		ExpireStaleRentals:  "0 15 0 * * *",
		ExpireStalePayments: "0 */5 * * * *",
	}, runner)
	require.NoError(t, err)
	assert.Len(t, s.Entries(), 2)

	s.Start()
	s.Stop()
}

func TestNewScheduler_RejectsBadSpec(t *testing.T) {
	runner := jobs.NewJobRunner(noopExpirer{}, noopExpirer{}, nil, 0)
	_, err := NewScheduler(config.SchedulerConfig{
		ExpireStaleRentals:  "every five minutes",
		ExpireStalePayments: "0 */5 * * * *",
	}, runner)
	assert.ErrorContains(t, err, "expire-stale-rentals")
}
