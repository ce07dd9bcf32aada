// Package scheduler drives automatic collapse sweeps: on an idle timeout,
// on a cron schedule, or when a trigger condition over engine stats holds.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"

	"github.com/nodefold/nodefold/internal/engine"
	"github.com/nodefold/nodefold/internal/trigger"
)

// DefaultTickInterval is how often the scheduler re-evaluates its rules.
const DefaultTickInterval = time.Second

// Folder is the slice of the engine the scheduler drives.
type Folder interface {
	CollapseAll(ctx context.Context) (string, int)
	Snapshot() engine.Stats
}

// Config selects which sweep rules are active. Zero values disable a rule.
type Config struct {
	// IdleTimeout collapses the whole scene once no spawn or collapse
	// activity has happened for this long.
	IdleTimeout time.Duration
	// CronExpression fires a sweep on a standard 5-field cron schedule.
	CronExpression string
	// Condition is an expression over {live, collapsing, archived,
	// idle_seconds}; a sweep fires whenever it evaluates true.
	Condition string
	// TickInterval overrides the rule evaluation period. Defaults to
	// DefaultTickInterval.
	TickInterval time.Duration
}

// Scheduler periodically evaluates its rules and fires collapse sweeps.
type Scheduler struct {
	folder Folder
	cfg    Config
	parser cron.Parser
	clk    clock.Clock
	logger *slog.Logger

	cond    *trigger.Condition
	nextRun time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Scheduler. The condition, if set, is compiled up front so a
// bad expression fails at construction rather than mid-loop. A nil clock
// falls back to the wall clock.
func New(folder Folder, cfg Config, clk clock.Clock, logger *slog.Logger) (*Scheduler, error) {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		folder: folder,
		cfg:    cfg,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		clk:    clk,
		logger: logger,
	}

	if cfg.Condition != "" {
		cond, err := trigger.Compile(cfg.Condition)
		if err != nil {
			return nil, fmt.Errorf("compile trigger condition: %w", err)
		}
		s.cond = cond
	}

	if cfg.CronExpression != "" {
		next, err := s.CalculateNextRun(cfg.CronExpression, clk.Now().UTC())
		if err != nil {
			return nil, err
		}
		s.nextRun = next
	}

	return s, nil
}

// Start launches the background sweep loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(loopCtx)
	s.logger.Info("auto-collapse scheduler started",
		slog.Duration("idle_timeout", s.cfg.IdleTimeout),
		slog.String("cron", s.cfg.CronExpression),
		slog.String("condition", s.cfg.Condition),
	)
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := s.clk.Ticker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates every active rule once and fires at most one sweep.
// Exported so callers can force an evaluation outside the loop.
func (s *Scheduler) Tick(ctx context.Context) {
	stats := s.folder.Snapshot()

	// A sweep already in flight makes firing another pointless: the
	// remaining nodes are claimed until their batch completes.
	if stats.Collapsing > 0 {
		return
	}

	if reason, due := s.due(stats); due {
		if stats.Live == 0 {
			return
		}
		batchID, count := s.folder.CollapseAll(ctx)
		s.logger.Info("auto-collapse fired",
			slog.String("reason", reason),
			slog.String("batch_id", batchID),
			slog.Int("nodes", count),
		)
	}
}

// due reports whether any rule fires at the current instant, and
// advances cron bookkeeping when the schedule comes due.
func (s *Scheduler) due(stats engine.Stats) (string, bool) {
	now := s.clk.Now().UTC()

	if s.cfg.CronExpression != "" && !s.nextRun.IsZero() && !now.Before(s.nextRun) {
		next, err := s.CalculateNextRun(s.cfg.CronExpression, now)
		if err != nil {
			s.logger.Error("cron reschedule failed", slog.String("error", err.Error()))
			s.nextRun = time.Time{}
		} else {
			s.nextRun = next
		}
		return "cron", true
	}

	if s.cfg.IdleTimeout > 0 && stats.IdleSeconds >= s.cfg.IdleTimeout.Seconds() {
		return "idle", true
	}

	if s.cond != nil {
		ok, err := s.cond.Eval(map[string]any{
			"live":         stats.Live,
			"collapsing":   stats.Collapsing,
			"archived":     stats.Archived,
			"idle_seconds": stats.IdleSeconds,
		})
		if err != nil {
			s.logger.Error("trigger condition failed", slog.String("error", err.Error()))
			return "", false
		}
		if ok {
			return "condition", true
		}
	}

	return "", false
}

// CalculateNextRun computes the next fire time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("auto-collapse scheduler stopped")
	return nil
}
