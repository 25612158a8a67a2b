package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/tickerlab/backend/internal/analyzer"
	"github.com/tickerlab/backend/internal/jobs"
	"github.com/tickerlab/backend/internal/models"
	"github.com/tickerlab/backend/internal/store"
	"gorm.io/gorm"
)

// AnalysisService starts analyzer runs, blocking or queued
type AnalysisService struct {
	Instruments *store.InstrumentStore
	Runner      *jobs.Runner
	Dispatcher  *jobs.Dispatcher
}

func NewAnalysisService(db *gorm.DB, runner *jobs.Runner, dispatcher *jobs.Dispatcher) *AnalysisService {
	return &AnalysisService{
		Instruments: store.NewInstrumentStore(db),
		Runner:      runner,
		Dispatcher:  dispatcher,
	}
}

// Run executes the analysis and waits for the analyzer, bounded by the runner timeout
func (s *AnalysisService) Run(ctx context.Context, params analyzer.Params) (*models.AnalysisJob, *analyzer.Result, error) {
	params, err := s.track(ctx, params)
	if err != nil {
		return nil, nil, err
	}
	return s.Runner.RunSync(ctx, params)
}

// Enqueue records the analysis and returns without waiting for it
func (s *AnalysisService) Enqueue(ctx context.Context, params analyzer.Params) (*models.AnalysisJob, error) {
	params, err := s.track(ctx, params)
	if err != nil {
		return nil, err
	}
	return s.Dispatcher.Enqueue(ctx, params)
}

// Status returns a job by id
func (s *AnalysisService) Status(ctx context.Context, id string) (*models.AnalysisJob, error) {
	return s.Dispatcher.Status(ctx, id)
}

// track normalizes the ticker and remembers the requested trends on the instrument
func (s *AnalysisService) track(ctx context.Context, params analyzer.Params) (analyzer.Params, error) {
	params.Ticker = store.NormalizeTicker(params.Ticker)
	params = params.WithDefaults()
	if params.CorrelationID == "" {
		params.CorrelationID = uuid.NewString()
	}
	if err := params.Validate(); err != nil {
		return params, err
	}

	instrument, err := s.Instruments.GetOrCreateByTicker(ctx, params.Ticker)
	if err != nil {
		return params, err
	}
	if err := s.Instruments.SetTrends(ctx, instrument, params.Trends); err != nil {
		return params, err
	}
	return params, nil
}
