package store

import (
	"context"
	"fmt"

	"github.com/tickerlab/backend/internal/models"
	"gorm.io/gorm"
)

// PriceStore persists daily price history keyed by (instrument_id, date)
type PriceStore struct {
	db      *gorm.DB
	resolve Resolver[*models.PricePoint]
}

// NewPriceStore creates a new PriceStore
func NewPriceStore(db *gorm.DB) *PriceStore {
	return &PriceStore{
		db:      db,
		resolve: FirstOf[*models.PricePoint](ByID[*models.PricePoint], priceByDate),
	}
}

func priceByDate(tx *gorm.DB, row *models.PricePoint) (uint64, bool, error) {
	var ids []uint64
	err := tx.Model(&models.PricePoint{}).
		Where("instrument_id = ? AND date = ?", row.InstrumentID, row.Date).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, false, err
	}
	return ids[0], true, nil
}

// Save inserts the price point or overwrites the one stored for the same day
func (s *PriceStore) Save(ctx context.Context, price *models.PricePoint) (*models.PricePoint, error) {
	saved, err := Upsert(ctx, s.db, price, s.resolve)
	if err != nil {
		return nil, fmt.Errorf("failed to save price for %s: %w", price.Date.Format("2006-01-02"), err)
	}
	return saved, nil
}

// Latest returns the most recent price points of an instrument, newest first
func (s *PriceStore) Latest(ctx context.Context, instrumentID uint64, limit int) ([]models.PricePoint, error) {
	if limit <= 0 {
		limit = 60
	}

	var prices []models.PricePoint
	err := s.db.WithContext(ctx).
		Where("instrument_id = ?", instrumentID).
		Order("date DESC").
		Limit(limit).
		Find(&prices).Error
	if err != nil {
		return nil, err
	}
	return prices, nil
}

// FindByCorrelationID returns the price points written by one analysis run
func (s *PriceStore) FindByCorrelationID(ctx context.Context, correlationID string) ([]models.PricePoint, bool, error) {
	var prices []models.PricePoint
	err := s.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		Order("date ASC").
		Find(&prices).Error
	if err != nil {
		return nil, false, err
	}
	return prices, len(prices) > 0, nil
}
