/**
 * @description
 * Analysis job records, queue and workers.
 * Every analyzer run, blocking or queued, gets a row in analysis_jobs whose id is the
 * correlation id handed to the analyzer; status changes are published on Redis so API
 * instances can stream them to clients.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/redis/go-redis/v9: queue list + event channel
 * - golang.org/x/time/rate: worker start throttle
 * - github.com/robfig/cron/v3: scheduled refreshes
 */

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tickerlab/backend/internal/analyzer"
	"github.com/tickerlab/backend/internal/logger"
	"github.com/tickerlab/backend/internal/models"
	"gorm.io/gorm"
)

const (
	// EventsChannel carries job status changes
	EventsChannel = "analysis:jobs"

	maxOutputBytes = 1 << 20
)

// ErrJobNotFound is returned for unknown job ids
var ErrJobNotFound = errors.New("job not found")

// Event is published on every job status change
type Event struct {
	JobID    string           `json:"job_id"`
	Ticker   string           `json:"ticker"`
	Mode     models.JobMode   `json:"mode"`
	Status   models.JobStatus `json:"status"`
	TimedOut bool             `json:"timed_out,omitempty"`
	Error    string           `json:"error,omitempty"`
	At       time.Time        `json:"at"`
}

// JobStore persists job rows and announces their transitions
type JobStore struct {
	db    *gorm.DB
	redis *redis.Client
}

// NewJobStore creates a new JobStore
func NewJobStore(db *gorm.DB, redis *redis.Client) *JobStore {
	return &JobStore{db: db, redis: redis}
}

// Create inserts a job for params; the job id becomes the correlation id
func (s *JobStore) Create(ctx context.Context, params analyzer.Params, mode models.JobMode, status models.JobStatus) (*models.AnalysisJob, error) {
	job := &models.AnalysisJob{
		ID:           params.CorrelationID,
		Ticker:       params.Ticker,
		Trends:       params.Trends,
		StartDate:    params.StartDate,
		TestSizePct:  params.TestSizePct,
		ForecastDays: params.ForecastDays,
		Mode:         mode,
		Status:       status,
	}
	if status == models.JobStatusRunning {
		now := time.Now().UTC()
		job.StartedAt = &now
	}

	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job for %s: %w", params.Ticker, err)
	}
	s.publish(ctx, job)
	return job, nil
}

// Get returns the job row or ErrJobNotFound
func (s *JobStore) Get(ctx context.Context, id string) (*models.AnalysisJob, error) {
	var job models.AnalysisJob
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// MarkRunning flags a queued job as picked up by a worker
func (s *JobStore) MarkRunning(ctx context.Context, job *models.AnalysisJob) error {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Model(job).Updates(map[string]interface{}{
		"status":     models.JobStatusRunning,
		"started_at": now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to mark job %s running: %w", job.ID, err)
	}
	job.Status = models.JobStatusRunning
	job.StartedAt = &now
	s.publish(ctx, job)
	return nil
}

// Finish records the outcome of a run. runErr nil means success.
func (s *JobStore) Finish(ctx context.Context, job *models.AnalysisJob, result *analyzer.Result, runErr error) error {
	now := time.Now().UTC()
	job.FinishedAt = &now
	job.Status = models.JobStatusSucceeded
	job.Error = ""

	if result != nil {
		job.Output = truncate(result.Output)
		code := result.ExitCode
		job.ExitCode = &code
	}
	if runErr != nil {
		job.Status = models.JobStatusFailed
		job.Error = truncate(runErr.Error())
		job.TimedOut = errors.Is(runErr, analyzer.ErrTimeout)
	}

	// Status writes must land even when the run's context is gone
	ctx = context.WithoutCancel(ctx)
	err := s.db.WithContext(ctx).Model(job).Updates(map[string]interface{}{
		"status":      job.Status,
		"timed_out":   job.TimedOut,
		"exit_code":   job.ExitCode,
		"output":      job.Output,
		"error":       job.Error,
		"finished_at": now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to finish job %s: %w", job.ID, err)
	}
	s.publish(ctx, job)
	return nil
}

func (s *JobStore) publish(ctx context.Context, job *models.AnalysisJob) {
	if s.redis == nil {
		return
	}

	payload, err := json.Marshal(Event{
		JobID:    job.ID,
		Ticker:   job.Ticker,
		Mode:     job.Mode,
		Status:   job.Status,
		TimedOut: job.TimedOut,
		Error:    job.Error,
		At:       time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := s.redis.Publish(ctx, EventsChannel, payload).Err(); err != nil {
		logger.Warn("Failed to publish job event for %s: %v", job.ID, err)
	}
}

func truncate(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[len(s)-maxOutputBytes:]
}

// ParamsOf rebuilds the analyzer parameters stored on a job
func ParamsOf(job *models.AnalysisJob) analyzer.Params {
	return analyzer.Params{
		CorrelationID: job.ID,
		Ticker:        job.Ticker,
		Trends:        job.Trends,
		StartDate:     job.StartDate,
		TestSizePct:   job.TestSizePct,
		ForecastDays:  job.ForecastDays,
	}
}
