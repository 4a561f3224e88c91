package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler drives the orchestrator from an in-process cron timer. It is
// optional: deployments with an external timer hit the HTTP trigger instead.
type Scheduler struct {
	cron         *cron.Cron
	orchestrator *Orchestrator
	log          zerolog.Logger
}

// New creates a scheduler that dispatches the orchestrator once per minute
func New(orchestrator *Orchestrator, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:         cron.New(),
		orchestrator: orchestrator,
		log:          log.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers the minute tick and starts the cron loop
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc("* * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 55*time.Second)
		defer cancel()

		if err := s.orchestrator.Dispatch(ctx, time.Now()); err != nil {
			s.log.Error().Err(err).Msg("Dispatch cycle finished with errors")
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
	return nil
}

// Stop stops the cron loop and waits for a running dispatch to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}
