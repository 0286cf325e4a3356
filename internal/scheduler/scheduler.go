// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-ttm-coach/internal/repo"
)

const purgeTimeout = time.Minute

// Scheduler manages the background jobs of the server.
type Scheduler struct {
	scheduler gocron.Scheduler
	db        *gorm.DB
	interval  time.Duration
	now       func() time.Time
}

// New creates a scheduler purging expired idempotency keys every interval.
func New(db *gorm.DB, interval time.Duration) (*Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}
	return &Scheduler{scheduler: s, db: db, interval: interval, now: time.Now}, nil
}

// Start registers the jobs and starts the scheduler. It does not block.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.purgeIdempotency),
		gocron.WithName("purge-idempotency"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	s.scheduler.Start()
	log.Info().Dur("interval", s.interval).Msg("scheduler started")
	return nil
}

// Run starts the scheduler and blocks until ctx is done, then shuts it down.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

// Stop waits for running jobs and stops the scheduler.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

func (s *Scheduler) purgeIdempotency() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	n, err := repo.PurgeExpiredIdempotency(ctx, s.db, s.now().UTC())
	if err != nil {
		log.Error().Err(err).Msg("purge idempotency keys")
		return
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Msg("purged expired idempotency keys")
	}
}
