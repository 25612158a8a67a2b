/**
 * @description
 * Worker Service Entry Point.
 * Responsible for background tasks:
 * 1. Running queued analyses from the Redis queue with a bounded pool.
 * 2. Queueing scheduled refreshes of every tracked ticker (optional cron).
 *
 * @dependencies
 * - backend/internal/config
 * - backend/internal/db
 * - backend/internal/analyzer
 * - backend/internal/jobs
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/tickerlab/backend/internal/analyzer"
	"github.com/tickerlab/backend/internal/config"
	"github.com/tickerlab/backend/internal/db"
	"github.com/tickerlab/backend/internal/jobs"
	"github.com/tickerlab/backend/internal/logger"
	"github.com/tickerlab/backend/internal/models"
	"github.com/tickerlab/backend/internal/store"
)

func main() {
	logger.Info("🔥 Starting Analysis Worker...")

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	// 2. Connect DBs
	gormDB, err := db.Connect(cfg)
	if err != nil {
		logger.Fatal("Database connection failed: %v", err)
	}

	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		logger.Fatal("Redis connection failed: %v", err)
	}
	defer redisClient.Close()

	// 3. Initialize Services
	runAnalyzer, err := analyzer.New(cfg.Analyzer)
	if err != nil {
		logger.Fatal("Failed to initialize analyzer: %v", err)
	}

	jobStore := jobs.NewJobStore(gormDB, redisClient)
	runner := jobs.NewRunner(jobStore, runAnalyzer, cfg.Analyzer.AsyncTimeout)
	worker := jobs.NewWorker(runner, redisClient, jobs.WorkerOptions{
		QueueKey:      cfg.Worker.QueueKey,
		Concurrency:   cfg.Worker.Concurrency,
		Timeout:       cfg.Analyzer.AsyncTimeout,
		RatePerMinute: cfg.Worker.RatePerMinute,
		OnFailure:     logFailure,
	})

	// 4. Context with Cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	// 5. Scheduled refreshes
	var scheduler *jobs.Scheduler
	if cfg.Worker.RefreshCron != "" {
		dispatcher := jobs.NewDispatcher(jobStore, redisClient, cfg.Worker.QueueKey)
		scheduler = jobs.NewScheduler(dispatcher, store.NewInstrumentStore(gormDB), cfg.Worker.RefreshLookbackDays)
		if err := scheduler.Start(ctx, cfg.Worker.RefreshCron); err != nil {
			logger.Fatal("Failed to start scheduler: %v", err)
		}
	}

	// 6. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	if scheduler != nil {
		scheduler.Stop()
	}
	cancel()
	<-done
	logger.Info("Worker exited.")
}

// logFailure is the terminal step for a failed queued analysis: it is logged, never retried
func logFailure(job *models.AnalysisJob, err error) {
	logger.ErrorFields(logrus.Fields{
		"job_id":        job.ID,
		"ticker":        job.Ticker,
		"trends":        job.Trends,
		"start_date":    job.StartDate.Format("2006-01-02"),
		"test_size_pct": job.TestSizePct,
		"forecast_days": job.ForecastDays,
		"timed_out":     job.TimedOut,
	}).WithError(err).Error("Stock analysis job failed")
}
