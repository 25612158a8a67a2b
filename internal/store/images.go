package store

import (
	"context"

	"github.com/tickerlab/backend/internal/models"
	"gorm.io/gorm"
)

// ImageStore keeps the append-only log of rendered charts
type ImageStore struct {
	db *gorm.DB
}

// NewImageStore creates a new ImageStore
func NewImageStore(db *gorm.DB) *ImageStore {
	return &ImageStore{db: db}
}

// Append records a new chart image; existing rows are never touched
func (s *ImageStore) Append(ctx context.Context, image *models.ChartImage) (*models.ChartImage, error) {
	return Append(ctx, s.db, image)
}

// Latest returns the newest image of the given type, or ErrNotFound
func (s *ImageStore) Latest(ctx context.Context, instrumentID uint64, imageType string) (*models.ChartImage, error) {
	var image models.ChartImage
	err := s.db.WithContext(ctx).
		Where("instrument_id = ? AND type = ?", instrumentID, imageType).
		Order("date DESC").
		Order("id DESC").
		First(&image).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &image, nil
}

// FindByCorrelationID returns the image written by one analysis run, if any
func (s *ImageStore) FindByCorrelationID(ctx context.Context, correlationID string) (*models.ChartImage, bool, error) {
	var images []models.ChartImage
	err := s.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		Order("id DESC").
		Limit(1).
		Find(&images).Error
	if err != nil {
		return nil, false, err
	}
	if len(images) == 0 {
		return nil, false, nil
	}
	return &images[0], true, nil
}
