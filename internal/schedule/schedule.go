package schedule

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Job runs one scheduled evaluation for a model key.
type Job func(ctx context.Context, model string) error

// TickResult tracks which models finished and which failed on one tick.
type TickResult struct {
	Succeeded []string
	Errors    []string
}

// Parse accepts a standard 5-field cron expression (minute hour
// day-of-month month day-of-week), e.g. "0 2 * * *" for nightly at 2am.
func Parse(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("evaluation_schedule is not set")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid evaluation_schedule '%s': %w", expr, err)
	}
	return sched, nil
}

type Scheduler struct {
	Schedule cron.Schedule
	Models   []string
	Job      Job
	// Notify receives the tick summary; nil disables it.
	Notify func(ctx context.Context, text string)

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Run sleeps until each next activation and runs a tick, until ctx is done.
// Job failures are logged and never end the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.Models) == 0 {
		return fmt.Errorf("schedule_models is empty")
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}
	sleep := s.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for {
		current := now()
		next := s.Schedule.Next(current)
		wait := next.Sub(current)
		log.Printf("Next scheduled evaluation at %s (in %s) models=%s", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute), strings.Join(s.Models, ","))

		if err := sleep(ctx, wait); err != nil {
			return err
		}

		result := s.Tick(ctx)
		summary := FormatTickSummary(result)
		log.Printf("Scheduled evaluation complete: %s", summary)
		if s.Notify != nil {
			s.Notify(ctx, fmt.Sprintf("Scheduled evaluation complete: %s", summary))
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Tick runs the job once per model in order.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	var result TickResult
	for _, model := range s.Models {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", model, ctx.Err()))
			continue
		}
		if err := s.Job(ctx, model); err != nil {
			log.Printf("schedule error model=%s err=%v", model, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", model, err))
			continue
		}
		result.Succeeded = append(result.Succeeded, model)
	}
	return result
}

// FormatTickSummary returns a human-readable summary of a TickResult.
func FormatTickSummary(result TickResult) string {
	if len(result.Succeeded) == 0 && len(result.Errors) > 0 {
		return fmt.Sprintf("all models failed:\n%s", strings.Join(result.Errors, "\n"))
	}
	msg := fmt.Sprintf("%d model(s) evaluated", len(result.Succeeded))
	if len(result.Succeeded) > 0 {
		msg += fmt.Sprintf(" (%s)", strings.Join(result.Succeeded, ", "))
	}
	if len(result.Errors) > 0 {
		msg += fmt.Sprintf("\nWarnings:\n%s", strings.Join(result.Errors, "\n"))
	}
	return msg
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
