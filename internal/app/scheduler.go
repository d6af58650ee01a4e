/**
 * @description
 * Cron scheduler setup for the settlement cycle.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/ecobloom/settlement-service/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the settlement job and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.SettlementJobSchedule, s.jobs.RunSettlementCycle); err != nil {
		s.logger.Error("failed to schedule settlement cycle job", "error", err)
	} else {
		s.logger.Info("scheduled settlement cycle job", "schedule", s.config.SettlementJobSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
