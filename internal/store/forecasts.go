package store

import (
	"context"
	"fmt"

	"github.com/tickerlab/backend/internal/models"
	"gorm.io/gorm"
)

// ForecastStore persists forecast points keyed by (instrument_id, correlation_id, date)
type ForecastStore struct {
	db      *gorm.DB
	resolve Resolver[*models.ForecastPoint]
}

// NewForecastStore creates a new ForecastStore
func NewForecastStore(db *gorm.DB) *ForecastStore {
	return &ForecastStore{
		db:      db,
		resolve: FirstOf[*models.ForecastPoint](ByID[*models.ForecastPoint], forecastByRunDate),
	}
}

func forecastByRunDate(tx *gorm.DB, row *models.ForecastPoint) (uint64, bool, error) {
	var ids []uint64
	err := tx.Model(&models.ForecastPoint{}).
		Where("instrument_id = ? AND correlation_id = ? AND date = ?", row.InstrumentID, row.CorrelationID, row.Date).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, false, err
	}
	return ids[0], true, nil
}

// Save inserts the forecast point, or overwrites the same run's point for that date
func (s *ForecastStore) Save(ctx context.Context, forecast *models.ForecastPoint) (*models.ForecastPoint, error) {
	saved, err := Upsert(ctx, s.db, forecast, s.resolve)
	if err != nil {
		return nil, fmt.Errorf("failed to save forecast for %s: %w", forecast.Date.Format("2006-01-02"), err)
	}
	return saved, nil
}

// LatestCorrelationID returns the run that most recently inserted forecasts for the instrument.
// Insertion order decides, not the dates the forecast covers.
func (s *ForecastStore) LatestCorrelationID(ctx context.Context, instrumentID uint64) (string, bool, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.ForecastPoint{}).
		Where("instrument_id = ?", instrumentID).
		Order("id DESC").
		Limit(1).
		Pluck("correlation_id", &ids).Error
	if err != nil {
		return "", false, err
	}
	if len(ids) == 0 {
		return "", false, nil
	}
	return ids[0], true, nil
}

// Current returns the forecast of the latest run, newest date first
func (s *ForecastStore) Current(ctx context.Context, instrumentID uint64) ([]models.ForecastPoint, error) {
	correlationID, found, err := s.LatestCorrelationID(ctx, instrumentID)
	if err != nil {
		return nil, err
	}
	if !found {
		return []models.ForecastPoint{}, nil
	}

	var forecasts []models.ForecastPoint
	err = s.db.WithContext(ctx).
		Where("instrument_id = ? AND correlation_id = ?", instrumentID, correlationID).
		Order("date DESC").
		Find(&forecasts).Error
	if err != nil {
		return nil, err
	}
	return forecasts, nil
}

// FindByCorrelationID returns the forecast points written by one analysis run
func (s *ForecastStore) FindByCorrelationID(ctx context.Context, correlationID string) ([]models.ForecastPoint, bool, error) {
	var forecasts []models.ForecastPoint
	err := s.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		Order("date ASC").
		Find(&forecasts).Error
	if err != nil {
		return nil, false, err
	}
	return forecasts, len(forecasts) > 0, nil
}
