package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tickerlab/backend/internal/logger"
	"github.com/tickerlab/backend/internal/metrics"
	"github.com/tickerlab/backend/internal/models"
	"golang.org/x/time/rate"
)

const popTimeout = 5 * time.Second

// FailureHook is called once for every queued job that fails; jobs are never retried
type FailureHook func(job *models.AnalysisJob, err error)

// Worker pops queued jobs and runs them with the async bound
type Worker struct {
	runner      *Runner
	redis       *redis.Client
	queueKey    string
	concurrency int
	timeout     time.Duration
	limiter     *rate.Limiter
	onFailure   FailureHook
}

// WorkerOptions configures a Worker
type WorkerOptions struct {
	QueueKey      string
	Concurrency   int
	Timeout       time.Duration
	RatePerMinute int // 0 disables throttling
	OnFailure     FailureHook
}

// NewWorker creates a new Worker
func NewWorker(runner *Runner, redis *redis.Client, opts WorkerOptions) *Worker {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), 1)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	return &Worker{
		runner:      runner,
		redis:       redis,
		queueKey:    opts.QueueKey,
		concurrency: opts.Concurrency,
		timeout:     opts.Timeout,
		limiter:     limiter,
		onFailure:   opts.OnFailure,
	}
}

// Run consumes the queue until ctx is cancelled; in-flight analyzers are killed on cancel
func (w *Worker) Run(ctx context.Context) {
	logger.Info("👷 Starting %d analysis workers on %s", w.concurrency, w.queueKey)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()
	logger.Info("Analysis workers stopped")
}

func (w *Worker) loop(ctx context.Context, id int) {
	for ctx.Err() == nil {
		jobID, err := w.pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("Worker %d: queue pop failed: %v", id, err)
			sleep(ctx, time.Second)
			continue
		}
		if jobID == "" {
			continue
		}

		if err := w.limiter.Wait(ctx); err != nil {
			// Shutting down with a popped job; it stays queued in the jobs table
			logger.Warn("Worker %d: dropping job %s on shutdown", id, jobID)
			return
		}
		w.Process(ctx, jobID)
	}
}

func (w *Worker) pop(ctx context.Context) (string, error) {
	res, err := w.redis.BRPop(ctx, popTimeout, w.queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	// BRPOP answers [key, value]
	if len(res) != 2 {
		return "", nil
	}
	return res[1], nil
}

// Process runs one queued job by id
func (w *Worker) Process(ctx context.Context, jobID string) {
	job, err := w.runner.jobs.Get(ctx, jobID)
	if err != nil {
		logger.Error("Failed to load job %s: %v", jobID, err)
		return
	}
	if job.Status != models.JobStatusQueued {
		logger.Warn("Skipping job %s in status %s", job.ID, job.Status)
		return
	}

	if err := w.runner.jobs.MarkRunning(ctx, job); err != nil {
		logger.Error("%v", err)
		return
	}

	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	if _, err := w.runner.execute(ctx, job, w.timeout); err != nil && w.onFailure != nil {
		w.onFailure(job, err)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
