package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tickerlab/backend/internal/analyzer"
	"github.com/tickerlab/backend/internal/logger"
	"github.com/tickerlab/backend/internal/metrics"
	"github.com/tickerlab/backend/internal/models"
)

// Dispatcher queues analyses for the worker pool and answers status lookups
type Dispatcher struct {
	jobs     *JobStore
	redis    *redis.Client
	queueKey string
}

// NewDispatcher creates a new Dispatcher pushing to the Redis list queueKey
func NewDispatcher(jobs *JobStore, redis *redis.Client, queueKey string) *Dispatcher {
	return &Dispatcher{jobs: jobs, redis: redis, queueKey: queueKey}
}

// Enqueue records a queued job and hands it to the workers without waiting for it
func (d *Dispatcher) Enqueue(ctx context.Context, params analyzer.Params) (*models.AnalysisJob, error) {
	return d.enqueue(ctx, params, models.JobModeAsync)
}

func (d *Dispatcher) enqueue(ctx context.Context, params analyzer.Params, mode models.JobMode) (*models.AnalysisJob, error) {
	params = params.WithDefaults()
	if params.CorrelationID == "" {
		params.CorrelationID = uuid.NewString()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	job, err := d.jobs.Create(ctx, params, mode, models.JobStatusQueued)
	if err != nil {
		return nil, err
	}

	if err := d.redis.LPush(ctx, d.queueKey, job.ID).Err(); err != nil {
		pushErr := fmt.Errorf("failed to queue job %s: %w", job.ID, err)
		if finishErr := d.jobs.Finish(ctx, job, nil, pushErr); finishErr != nil {
			logger.Error("Failed to mark unqueued job %s: %v", job.ID, finishErr)
		}
		return nil, pushErr
	}

	metrics.JobsEnqueued.WithLabelValues(string(mode)).Inc()
	logger.Info("📥 Queued %s analysis %s for %s", mode, job.ID, job.Ticker)
	return job, nil
}

// Status returns the current job record
func (d *Dispatcher) Status(ctx context.Context, id string) (*models.AnalysisJob, error) {
	return d.jobs.Get(ctx, id)
}
