package jobs

// ExpireStaleRentals cancels rentals that were never activated before their
// window ended, giving reserved cold-room capacity back.
func (jr *JobRunner) ExpireStaleRentals() error {
	return jr.runWithRecovery(JobExpireStaleRentals, jr.rentals.ExpireStaleRentals)
}
