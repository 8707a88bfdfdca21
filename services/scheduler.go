// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartReconcileScheduler renumbers every institution's queue on a fixed
// interval. Runs never overlap; a slow run pushes the next one back.
func (s *WaitlistService) StartReconcileScheduler(ctx context.Context, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			results, err := s.ReconcileAll(ctx)
			if err != nil {
				log.Printf("[Scheduler] Waitlist reconcile: %v", err)
			}
			var repaired int
			for _, r := range results {
				if r.Renumbered > 0 || r.Cleared > 0 {
					repaired++
				}
			}
			log.Printf("[Scheduler] Waitlist reconcile checked %d institution(s), repaired %d", len(results), repaired)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	return sched, nil
}
