package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ewhitter/haven-core/internal/rules"
)

// Engine is what the scheduler drives on the coordinator.
type Engine interface {
	// StartAllRun begins an all-devices sweep and returns its ID.
	StartAllRun() string

	// PruneExpired removes stale entries from the active-execution set.
	PruneExpired() int
}

// RuleSource supplies the enabled rules the due-schedule check reads.
type RuleSource interface {
	ListEnabled(ctx context.Context) ([]rules.Rule, error)
}

// Logger defines the logging interface used by the scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Scheduler runs the engine's periodic work: an all-devices sweep when
// a schedule rule comes due, and the execution-store retention prune.
//
// The sweep only decides WHETHER to start a run; which rules fire, and
// the at-most-once guarantee per schedule timestamp, stay with the
// coordinator and evaluator.
type Scheduler struct {
	engine Engine
	rules  RuleSource
	cron   *cron.Cron
	logger Logger

	// now is injectable for due-check tests.
	now func() time.Time
}

// New creates a scheduler over the given engine and rule source.
func New(engine Engine, ruleSource RuleSource) *Scheduler {
	return &Scheduler{
		engine: engine,
		rules:  ruleSource,
		logger: noopLogger{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Start registers the sweep and prune jobs and starts the cron runner.
// Specs use standard cron syntax or @every durations.
func (s *Scheduler) Start(sweepSpec, pruneSpec string) error {
	c := cron.New()

	if _, err := c.AddFunc(sweepSpec, s.Sweep); err != nil {
		return fmt.Errorf("registering schedule sweep %q: %w", sweepSpec, err)
	}
	if _, err := c.AddFunc(pruneSpec, s.Prune); err != nil {
		return fmt.Errorf("registering retention prune %q: %w", pruneSpec, err)
	}

	c.Start()
	s.cron = c
	s.logger.Info("scheduler started", "sweep", sweepSpec, "prune", pruneSpec)
	return nil
}

// Stop halts the cron runner and waits for in-flight jobs to return.
// Engine runs already started by a job continue on their own
// goroutines.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Sweep starts an all-devices run when at least one schedule rule is
// due. It is exported for manual triggering and tests; cron calls it on
// the configured cadence.
func (s *Scheduler) Sweep() {
	enabled, err := s.rules.ListEnabled(context.Background())
	if err != nil {
		s.logger.Error("schedule sweep: listing rules failed", "error", err)
		return
	}

	if !anyScheduleDue(enabled, s.now()) {
		return
	}

	execID := s.engine.StartAllRun()
	s.logger.Info("schedule sweep started run", "execution_id", execID)
}

// Prune removes stale executions from the active set.
func (s *Scheduler) Prune() {
	if removed := s.engine.PruneExpired(); removed > 0 {
		s.logger.Debug("pruned executions", "count", removed)
	}
}

// anyScheduleDue reports whether any enabled schedule rule has reached
// its timestamp without having fired for it yet.
func anyScheduleDue(enabled []rules.Rule, now time.Time) bool {
	for i := range enabled {
		rule := &enabled[i]
		if rule.Type != rules.RuleTypeSchedule || rule.Schedule == nil {
			continue
		}
		if now.Before(*rule.Schedule) {
			continue
		}
		if rule.LastTriggered != nil && !rule.LastTriggered.Before(*rule.Schedule) {
			continue
		}
		return true
	}
	return false
}
