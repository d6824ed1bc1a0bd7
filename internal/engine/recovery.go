package engine

import (
	"fmt"

	"github.com/hunght/gograb/internal/domain"
)

// Recover reconciles jobs stranded by an unclean shutdown. Rows left in
// downloading or queued cannot have a live subprocess behind them after a
// restart, so they go back to pending with progress cleared and become
// eligible for dispatch again. Runs before the loop starts; rerunning it is
// a no-op because each reset is CAS-guarded by the stuck status.
func (e *Engine) Recover() error {
	recovered := 0

	for _, stuck := range []domain.JobStatus{domain.StatusDownloading, domain.StatusQueued} {
		jobs, err := e.store.ListJobsByStatus(stuck)
		if err != nil {
			return fmt.Errorf("recovery scan for %s jobs failed: %w", stuck, err)
		}

		for _, job := range jobs {
			ok, err := e.store.Transition(job.ID, stuck, domain.StatusPending, domain.RecoveryFields())
			if err != nil {
				return fmt.Errorf("recovery of job %s failed: %w", job.ID, err)
			}
			if ok {
				recovered++
			}
		}
	}

	if recovered > 0 {
		e.log.Info("[Recovery] reset %d interrupted job(s) to pending", recovered)
	}

	return nil
}
