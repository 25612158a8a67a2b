package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tickerlab/backend/internal/models"
	"gorm.io/gorm"
)

// InstrumentStore persists tracked tickers
type InstrumentStore struct {
	db *gorm.DB
}

// NewInstrumentStore creates a new InstrumentStore
func NewInstrumentStore(db *gorm.DB) *InstrumentStore {
	return &InstrumentStore{db: db}
}

// NormalizeTicker trims and upper-cases a ticker symbol
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// GetOrCreateByTicker returns the instrument for ticker, creating it on first reference
func (s *InstrumentStore) GetOrCreateByTicker(ctx context.Context, ticker string) (*models.Instrument, error) {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}

	var instrument models.Instrument
	err := s.db.WithContext(ctx).
		Where("ticker = ?", ticker).
		Attrs(models.Instrument{Ticker: ticker}).
		FirstOrCreate(&instrument).Error
	if err == nil {
		return &instrument, nil
	}
	if !isPgCode(err, pgUniqueViolation) {
		return nil, fmt.Errorf("failed to get or create instrument %s: %w", ticker, err)
	}

	// Another request created it between our lookup and insert
	return s.FindByTicker(ctx, ticker)
}

// FindByTicker returns ErrNotFound when the ticker was never referenced
func (s *InstrumentStore) FindByTicker(ctx context.Context, ticker string) (*models.Instrument, error) {
	var instrument models.Instrument
	if err := s.db.WithContext(ctx).Where("ticker = ?", NormalizeTicker(ticker)).First(&instrument).Error; err != nil {
		return nil, notFound(err)
	}
	return &instrument, nil
}

// List returns all instruments ordered by ticker
func (s *InstrumentStore) List(ctx context.Context) ([]models.Instrument, error) {
	var instruments []models.Instrument
	if err := s.db.WithContext(ctx).Order("ticker ASC").Find(&instruments).Error; err != nil {
		return nil, err
	}
	return instruments, nil
}

// SetTrends records the trend keywords of the latest analysis request
func (s *InstrumentStore) SetTrends(ctx context.Context, instrument *models.Instrument, trends string) error {
	trends = strings.TrimSpace(trends)
	if trends == "" || trends == instrument.Trends {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(instrument).Update("trends", trends).Error; err != nil {
		return fmt.Errorf("failed to update trends for %s: %w", instrument.Ticker, err)
	}
	return nil
}

// Touch bumps one of the last_*_update timestamps to now
func (s *InstrumentStore) Touch(ctx context.Context, instrument *models.Instrument, column string) error {
	switch column {
	case models.ColumnLastPriceUpdate, models.ColumnLastImageUpdate, models.ColumnLastForecastUpdate:
	default:
		return fmt.Errorf("unknown timestamp column %q", column)
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(instrument).Update(column, now).Error; err != nil {
		return fmt.Errorf("failed to bump %s for %s: %w", column, instrument.Ticker, err)
	}
	return nil
}
