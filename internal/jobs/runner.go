package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tickerlab/backend/internal/analyzer"
	"github.com/tickerlab/backend/internal/logger"
	"github.com/tickerlab/backend/internal/metrics"
	"github.com/tickerlab/backend/internal/models"
)

// Runner executes analyses and records them as jobs
type Runner struct {
	jobs     *JobStore
	analyzer analyzer.Analyzer
	timeout  time.Duration
}

// NewRunner creates a Runner whose blocking runs are bounded by timeout
func NewRunner(jobs *JobStore, a analyzer.Analyzer, timeout time.Duration) *Runner {
	return &Runner{jobs: jobs, analyzer: a, timeout: timeout}
}

// Timeout is the bound applied to blocking runs
func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// RunSync starts the analyzer and waits for it, at most the runner's timeout.
// The job row is returned even when the run fails.
func (r *Runner) RunSync(ctx context.Context, params analyzer.Params) (*models.AnalysisJob, *analyzer.Result, error) {
	params = params.WithDefaults()
	if params.CorrelationID == "" {
		params.CorrelationID = uuid.NewString()
	}
	if err := params.Validate(); err != nil {
		return nil, nil, err
	}

	job, err := r.jobs.Create(ctx, params, models.JobModeSync, models.JobStatusRunning)
	if err != nil {
		return nil, nil, err
	}

	result, err := r.execute(ctx, job, r.timeout)
	return job, result, err
}

// execute runs the analyzer for job under bound and records the outcome
func (r *Runner) execute(ctx context.Context, job *models.AnalysisJob, bound time.Duration) (*analyzer.Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, bound)
	defer cancel()

	log := logger.WithFields(logrus.Fields{
		"job_id": job.ID,
		"ticker": job.Ticker,
		"mode":   job.Mode,
	})
	log.Info("Analysis started")

	start := time.Now()
	result, runErr := r.analyzer.Analyze(runCtx, ParamsOf(job))
	elapsed := time.Since(start)
	metrics.AnalysisDuration.WithLabelValues(string(job.Mode)).Observe(elapsed.Seconds())

	if errors.Is(runErr, analyzer.ErrTimeout) {
		runErr = fmt.Errorf("%w: exceeded %d seconds", runErr, int(bound.Seconds()))
	}

	if err := r.jobs.Finish(ctx, job, result, runErr); err != nil {
		log.WithError(err).Warn("Failed to record job outcome")
	}

	metrics.AnalysisRuns.WithLabelValues(string(job.Mode), outcome(runErr)).Inc()
	if runErr != nil {
		logger.ErrorFields(logrus.Fields{
			"job_id":        job.ID,
			"ticker":        job.Ticker,
			"mode":          job.Mode,
			"start_date":    job.StartDate.Format("2006-01-02"),
			"test_size_pct": job.TestSizePct,
			"forecast_days": job.ForecastDays,
			"elapsed":       elapsed.Round(time.Millisecond).String(),
		}).WithError(runErr).Error("Analysis failed")
		return result, runErr
	}

	log.WithField("elapsed", elapsed.Round(time.Millisecond).String()).Info("Analysis finished")
	return result, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "succeeded"
	case errors.Is(err, analyzer.ErrTimeout):
		return "timeout"
	default:
		return "failed"
	}
}
