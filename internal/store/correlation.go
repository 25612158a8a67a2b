package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tickerlab/backend/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrInvalidCorrelationID is returned for correlation ids that are not UUIDs
	ErrInvalidCorrelationID = errors.New("correlation id must be a UUID")
	// ErrCorrelationConflict is returned when a correlation id already belongs to another instrument
	ErrCorrelationConflict = errors.New("correlation id belongs to another instrument")
)

// CorrelationGuard enforces that a correlation id identifies one run of one instrument.
// Runs dispatched here carry the job id; foreign ids are accepted once and then bound.
type CorrelationGuard struct {
	db *gorm.DB
}

// NewCorrelationGuard creates a new CorrelationGuard
func NewCorrelationGuard(db *gorm.DB) *CorrelationGuard {
	return &CorrelationGuard{db: db}
}

// Check validates correlationID for instrument and returns its canonical form
func (g *CorrelationGuard) Check(ctx context.Context, correlationID string, instrument *models.Instrument) (string, error) {
	parsed, err := uuid.Parse(correlationID)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidCorrelationID, correlationID)
	}
	canonical := parsed.String()

	tx := g.db.WithContext(ctx)

	var jobs []models.AnalysisJob
	if err := tx.Where("id = ?", canonical).Limit(1).Find(&jobs).Error; err != nil {
		return "", fmt.Errorf("failed to look up job %s: %w", canonical, err)
	}
	if len(jobs) > 0 && NormalizeTicker(jobs[0].Ticker) != instrument.Ticker {
		return "", fmt.Errorf("%w: issued for %s, not %s", ErrCorrelationConflict, jobs[0].Ticker, instrument.Ticker)
	}

	for _, model := range []interface{}{&models.PricePoint{}, &models.ForecastPoint{}, &models.ChartImage{}} {
		var count int64
		err := tx.Model(model).
			Where("correlation_id = ? AND instrument_id <> ?", canonical, instrument.ID).
			Count(&count).Error
		if err != nil {
			return "", fmt.Errorf("failed to check correlation id %s: %w", canonical, err)
		}
		if count > 0 {
			return "", fmt.Errorf("%w: %s", ErrCorrelationConflict, canonical)
		}
	}

	return canonical, nil
}
