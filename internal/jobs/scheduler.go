package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tickerlab/backend/internal/analyzer"
	"github.com/tickerlab/backend/internal/logger"
	"github.com/tickerlab/backend/internal/models"
)

// InstrumentLister lists the instruments to refresh
type InstrumentLister interface {
	List(ctx context.Context) ([]models.Instrument, error)
}

// Scheduler periodically queues a fresh analysis for every tracked instrument
type Scheduler struct {
	cron         *cron.Cron
	dispatcher   *Dispatcher
	instruments  InstrumentLister
	lookbackDays int
	now          func() time.Time
}

// NewScheduler creates a new Scheduler
func NewScheduler(dispatcher *Dispatcher, instruments InstrumentLister, lookbackDays int) *Scheduler {
	return &Scheduler{
		cron:         cron.New(),
		dispatcher:   dispatcher,
		instruments:  instruments,
		lookbackDays: lookbackDays,
		now:          time.Now,
	}
}

// Start registers the refresh on schedule (standard 5-field cron) and starts the cron
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if n, err := s.RefreshAll(ctx); err != nil {
			logger.Error("Scheduled refresh failed after %d jobs: %v", n, err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	logger.Info("⏰ Scheduled analysis refresh: %s", schedule)
	return nil
}

// Stop halts the cron and waits for a running refresh to return
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RefreshAll queues one analysis per instrument and returns how many were queued
func (s *Scheduler) RefreshAll(ctx context.Context) (int, error) {
	instruments, err := s.instruments.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list instruments: %w", err)
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	startDate := today.AddDate(0, 0, -s.lookbackDays)

	queued := 0
	for _, inst := range instruments {
		_, err := s.dispatcher.enqueue(ctx, analyzer.Params{
			Ticker:    inst.Ticker,
			Trends:    inst.Trends,
			StartDate: startDate,
		}, models.JobModeScheduled)
		if err != nil {
			return queued, fmt.Errorf("failed to queue refresh for %s: %w", inst.Ticker, err)
		}
		queued++
	}

	logger.Info("🔄 Queued %d scheduled refreshes", queued)
	return queued, nil
}
