package usecase

import (
	"context"
	"log/slog"
	"time"

	"CollectiveLedger/internal/ports"
)

// Scheduler wires the cron driver with the weekly report.
type Scheduler struct {
	driver ports.Scheduler
	report *ReportService
	logger *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(driver ports.Scheduler, report *ReportService, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{driver: driver, report: report, logger: logger}
}

// Start registers the report with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.report == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if err := s.report.Publish(ctx, trigger); err != nil {
			s.logger.Error("weekly report failed", "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
