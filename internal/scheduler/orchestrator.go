package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Task is one schedulable unit of market work
type Task struct {
	Name   string
	Window Window
	Run    func(ctx context.Context) error
}

// Orchestrator decides which tasks are due at a given instant and runs
// them. It holds no cross-invocation state: every decision derives from
// the clock, the vacation cache, and the task table.
type Orchestrator struct {
	tasks    []Task
	vacation *VacationCache
	loc      *time.Location
	log      zerolog.Logger
}

// NewOrchestrator creates an orchestrator over a fixed task table
func NewOrchestrator(tasks []Task, vacation *VacationCache, loc *time.Location, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		tasks:    tasks,
		vacation: vacation,
		loc:      loc,
		log:      log.With().Str("component", "orchestrator").Logger(),
	}
}

// Dispatch runs every task whose window contains now.
//
// Task failures are isolated: a panicking or erroring task never stops the
// others. All failures are joined into the returned error after the full
// pass.
func (o *Orchestrator) Dispatch(ctx context.Context, now time.Time) error {
	if o.vacation.IsVacation() {
		o.log.Debug().Msg("Vacation mode, skipping cycle")
		return nil
	}

	local := now.In(o.loc)
	var errs []error

	for _, task := range o.tasks {
		if !task.Window.Contains(local) {
			continue
		}
		if err := o.runTask(ctx, task); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", task.Name, err))
		}
	}

	return errors.Join(errs...)
}

func (o *Orchestrator) runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			o.log.Error().Str("task", task.Name).Interface("panic", r).Msg("Task panicked")
		}
	}()

	start := time.Now()
	o.log.Debug().Str("task", task.Name).Msg("Running task")

	if err := task.Run(ctx); err != nil {
		o.log.Error().Err(err).Str("task", task.Name).Msg("Task failed")
		return err
	}

	o.log.Info().
		Str("task", task.Name).
		Dur("elapsed", time.Since(start)).
		Msg("Task completed")
	return nil
}
