/**
 * @description
 * Cron-driven retention job. Expiry itself is evaluated lazily at verification
 * time; this job only reclaims storage from challenges that expired without
 * ever being verified, once they are past the retention window. Single-use
 * tokens are never deleted: spent and expired rows are the replay-detection
 * audit trail.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/transfa/credential-service/internal/store"
)

// ChallengeCleanup purges stale expired OTP challenges.
type ChallengeCleanup struct {
	repo      store.ChallengeRepository
	retention time.Duration
}

// NewChallengeCleanup creates a cleanup job keeping expired challenges around
// for at least the given retention window.
func NewChallengeCleanup(repo store.ChallengeRepository, retention time.Duration) *ChallengeCleanup {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &ChallengeCleanup{repo: repo, retention: retention}
}

// Run deletes never-verified challenges that expired before the retention cutoff.
func (c *ChallengeCleanup) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	purged, err := c.repo.PurgeExpiredChallenges(ctx, time.Now().Add(-c.retention))
	if err != nil {
		log.Printf("level=warn component=cleanup msg=\"failed to purge expired challenges\" err=%v", err)
		return
	}
	if purged > 0 {
		log.Printf("level=info component=cleanup msg=\"purged expired challenges\" count=%d", purged)
	}
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron    *cron.Cron
	cleanup *ChallengeCleanup
}

// NewScheduler creates a new scheduler instance wrapping the cleanup job.
func NewScheduler(cleanup *ChallengeCleanup) *Scheduler {
	cronLogger := cron.PrintfLogger(log.Default())
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger))),
		cleanup: cleanup,
	}
}

// Start registers the cleanup job and starts the cron scheduler.
func (s *Scheduler) Start(schedule string) {
	if _, err := s.cron.AddFunc(schedule, s.cleanup.Run); err != nil {
		log.Printf("level=warn component=cleanup msg=\"failed to schedule challenge cleanup\" schedule=%q err=%v", schedule, err)
		return
	}
	log.Printf("Scheduled challenge cleanup job with schedule %q", schedule)
	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
