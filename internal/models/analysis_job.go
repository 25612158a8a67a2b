/**
 * @description
 * Analysis job database model.
 * Maps to the 'analysis_jobs' table in PostgreSQL.
 * A job's ID doubles as the correlation id handed to the analyzer, so every artifact the
 * analyzer posts back can be traced to the run that produced it.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/google/uuid
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobStatus defines the state of an analysis job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobMode tracks how a job was started
type JobMode string

const (
	JobModeSync      JobMode = "sync"
	JobModeAsync     JobMode = "async"
	JobModeScheduled JobMode = "scheduled"
)

// AnalysisJob records one invocation of the external analyzer
type AnalysisJob struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Ticker       string    `gorm:"column:ticker;size:20;index;not null" json:"ticker"`
	Trends       string    `gorm:"column:trends;size:30" json:"trends"`
	StartDate    time.Time `gorm:"column:start_date" json:"start_date"`
	TestSizePct  float64   `gorm:"column:test_size_pct" json:"test_size_pct"`
	ForecastDays int       `gorm:"column:forecast_days" json:"forecast_days"`
	Mode         JobMode   `gorm:"column:mode;size:16" json:"mode"`
	Status       JobStatus `gorm:"column:status;size:16;index" json:"status"`
	TimedOut     bool      `gorm:"column:timed_out;default:false" json:"timed_out"`
	ExitCode     *int      `gorm:"column:exit_code" json:"exit_code"`
	Output       string    `gorm:"column:output;type:text" json:"output"`
	Error        string    `gorm:"column:error;type:text" json:"error,omitempty"`

	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	StartedAt  *time.Time `gorm:"column:started_at" json:"started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at"`
}

// TableName overrides the table name used by AnalysisJob to `analysis_jobs`
func (AnalysisJob) TableName() string {
	return "analysis_jobs"
}

// BeforeCreate ensures a correlation id is issued if the caller did not set one
func (j *AnalysisJob) BeforeCreate(tx *gorm.DB) (err error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	return
}

// Terminal reports whether the job will not change state anymore
func (j *AnalysisJob) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}

// All returns every model managed by auto-migration, parents first
func All() []interface{} {
	return []interface{}{
		&Instrument{},
		&PricePoint{},
		&ForecastPoint{},
		&ChartImage{},
		&AnalysisJob{},
	}
}
