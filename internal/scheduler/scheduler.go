// Package scheduler drives the Brain's background maintenance jobs: the
// treasury sweep check, high-watermark bookkeeping, admin-override expiry
// and breaker-state persistence, each on its own cron schedule.
package scheduler

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a named, synchronously-run background task.
type Job interface {
	Run() error
	Name() string
}

// Scheduler manages background jobs on cron schedules.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New constructs a Scheduler. Schedules use the 6-field seconds-enabled
// cron format.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins running registered jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop waits for in-flight job runs to finish, then halts the scheduler.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

// AddJob registers job on schedule. Schedule examples:
//   - "0 */10 * * * *" - every 10 minutes
//   - "0 0 0 * * *"    - daily at UTC midnight
//   - "@every 30s"     - every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.log.Debug().Str("job", job.Name()).Msg("running job")
		if err := job.Run(); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("job failed")
			return
		}
		s.log.Debug().Str("job", job.Name()).Msg("job completed")
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("schedule", schedule).Str("job", job.Name()).Msg("job registered")
	return nil
}

// RunNow executes job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("running job immediately")
	return job.Run()
}
