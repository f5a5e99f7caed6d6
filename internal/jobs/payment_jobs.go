package jobs

// ExpireStalePayments fails payments the provider never confirmed, so their
// amount stops counting against the invoice balance.
func (jr *JobRunner) ExpireStalePayments() error {
	return jr.runWithRecovery(JobExpireStalePayments, jr.payments.ExpireStalePayments)
}
