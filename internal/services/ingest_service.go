/**
 * @description
 * Ingestion of analyzer artifacts: price history, chart images and forecasts.
 * Each batch is attached to an instrument (created on first reference) and tagged with the
 * run's correlation id; the instrument's last_*_update timestamp is bumped once the batch
 * committed.
 *
 * @dependencies
 * - backend/internal/store
 * - backend/internal/mapping
 * - backend/internal/blob
 */

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tickerlab/backend/internal/blob"
	"github.com/tickerlab/backend/internal/logger"
	"github.com/tickerlab/backend/internal/mapping"
	"github.com/tickerlab/backend/internal/metrics"
	"github.com/tickerlab/backend/internal/models"
	"github.com/tickerlab/backend/internal/store"
	"gorm.io/gorm"
)

// BatchSummary counts what happened to each row of a batch
type BatchSummary struct {
	Persisted int `json:"persisted"`
	Skipped   int `json:"skipped"`  // recognized but without a close price
	Rejected  int `json:"rejected"` // unrecognized shape or values
}

// PriceBatchResult is the outcome of SavePrices
type PriceBatchResult struct {
	Instrument *models.Instrument
	Prices     []models.PricePoint
	Summary    BatchSummary
}

// ForecastBatchResult is the outcome of SaveForecasts
type ForecastBatchResult struct {
	Instrument *models.Instrument
	Forecasts  []models.ForecastPoint
	Summary    BatchSummary
}

// ImageResult is the outcome of SaveImage
type ImageResult struct {
	Instrument *models.Instrument
	Image      *models.ChartImage
	URL        string
}

// CacheInvalidator drops cached market views after new data lands
type CacheInvalidator interface {
	Invalidate(ctx context.Context)
}

type IngestService struct {
	Instruments *store.InstrumentStore
	Prices      *store.PriceStore
	Forecasts   *store.ForecastStore
	Images      *store.ImageStore
	Guard       *store.CorrelationGuard
	Persister   *blob.ImagePersister
	Cache       CacheInvalidator

	now func() time.Time
}

func NewIngestService(db *gorm.DB, persister *blob.ImagePersister, cache CacheInvalidator) *IngestService {
	return &IngestService{
		Instruments: store.NewInstrumentStore(db),
		Prices:      store.NewPriceStore(db),
		Forecasts:   store.NewForecastStore(db),
		Images:      store.NewImageStore(db),
		Guard:       store.NewCorrelationGuard(db),
		Persister:   persister,
		Cache:       cache,
		now:         time.Now,
	}
}

// prepare resolves the instrument and validates the correlation id against it
func (s *IngestService) prepare(ctx context.Context, ticker, correlationID string) (*models.Instrument, string, error) {
	instrument, err := s.Instruments.GetOrCreateByTicker(ctx, ticker)
	if err != nil {
		return nil, "", err
	}
	canonical, err := s.Guard.Check(ctx, correlationID, instrument)
	if err != nil {
		return nil, "", err
	}
	return instrument, canonical, nil
}

// SavePrices maps and upserts a batch of provider rows.
// The first storage error aborts the batch; rows saved before it stay saved.
func (s *IngestService) SavePrices(ctx context.Context, ticker, correlationID string, rows []map[string]interface{}) (*PriceBatchResult, error) {
	instrument, correlationID, err := s.prepare(ctx, ticker, correlationID)
	if err != nil {
		return nil, err
	}

	result := &PriceBatchResult{Instrument: instrument, Prices: make([]models.PricePoint, 0, len(rows))}
	for i, row := range rows {
		mapped, ok := mapping.MapPriceRow(row)
		if !ok {
			result.Summary.Rejected++
			logger.Debug("Rejected price row %d for %s: unrecognized shape", i, instrument.Ticker)
			continue
		}
		if !mapped.Complete() {
			result.Summary.Skipped++
			continue
		}

		saved, err := s.Prices.Save(ctx, &models.PricePoint{
			InstrumentID:  instrument.ID,
			CorrelationID: correlationID,
			Date:          mapped.Date,
			AdjClose:      mapped.AdjClose,
			Close:         mapped.Close,
			High:          mapped.High,
			Low:           mapped.Low,
			Open:          mapped.Open,
			Volume:        mapped.Volume,
		})
		if err != nil {
			s.count("price", result.Summary)
			return nil, fmt.Errorf("price batch for %s aborted after %d rows: %w", instrument.Ticker, result.Summary.Persisted, err)
		}
		result.Prices = append(result.Prices, *saved)
		result.Summary.Persisted++
	}

	if err := s.Instruments.Touch(ctx, instrument, models.ColumnLastPriceUpdate); err != nil {
		return nil, err
	}
	s.finish(ctx, "price", instrument, correlationID, result.Summary)
	return result, nil
}

// SaveForecasts upserts the forecast of one run
func (s *IngestService) SaveForecasts(ctx context.Context, ticker, correlationID string, inputs []mapping.ForecastInput) (*ForecastBatchResult, error) {
	instrument, correlationID, err := s.prepare(ctx, ticker, correlationID)
	if err != nil {
		return nil, err
	}

	result := &ForecastBatchResult{Instrument: instrument, Forecasts: make([]models.ForecastPoint, 0, len(inputs))}
	for i, in := range inputs {
		row, err := mapping.MapForecastRow(in)
		if err != nil {
			result.Summary.Rejected++
			logger.Debug("Rejected forecast row %d for %s: %v", i, instrument.Ticker, err)
			continue
		}

		saved, err := s.Forecasts.Save(ctx, &models.ForecastPoint{
			InstrumentID:  instrument.ID,
			CorrelationID: correlationID,
			Date:          row.Date,
			Close:         row.Close,
		})
		if err != nil {
			s.count("forecast", result.Summary)
			return nil, fmt.Errorf("forecast batch for %s aborted after %d rows: %w", instrument.Ticker, result.Summary.Persisted, err)
		}
		result.Forecasts = append(result.Forecasts, *saved)
		result.Summary.Persisted++
	}

	if err := s.Instruments.Touch(ctx, instrument, models.ColumnLastForecastUpdate); err != nil {
		return nil, err
	}
	s.finish(ctx, "forecast", instrument, correlationID, result.Summary)
	return result, nil
}

// SaveImage stores a base64 chart and appends its reference
func (s *IngestService) SaveImage(ctx context.Context, ticker, correlationID, payload string) (*ImageResult, error) {
	instrument, correlationID, err := s.prepare(ctx, ticker, correlationID)
	if err != nil {
		return nil, err
	}

	stored, err := s.Persister.Persist(ctx, payload)
	if err != nil {
		return nil, err
	}

	image, err := s.Images.Append(ctx, &models.ChartImage{
		InstrumentID:  instrument.ID,
		CorrelationID: correlationID,
		Date:          s.now().UTC(),
		Type:          models.ImageTypeModel,
		StorageDir:    stored.Dir,
		Filename:      stored.Filename,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record image for %s: %w", instrument.Ticker, err)
	}

	if err := s.Instruments.Touch(ctx, instrument, models.ColumnLastImageUpdate); err != nil {
		return nil, err
	}
	s.finish(ctx, "image", instrument, correlationID, BatchSummary{Persisted: 1})
	return &ImageResult{Instrument: instrument, Image: image, URL: stored.URL}, nil
}

func (s *IngestService) finish(ctx context.Context, kind string, instrument *models.Instrument, correlationID string, summary BatchSummary) {
	s.count(kind, summary)
	if s.Cache != nil {
		s.Cache.Invalidate(ctx)
	}
	logger.WithFields(logrus.Fields{
		"ticker":    instrument.Ticker,
		"uuid":      correlationID,
		"persisted": summary.Persisted,
		"skipped":   summary.Skipped,
		"rejected":  summary.Rejected,
	}).Infof("Ingested %s batch", kind)
}

func (s *IngestService) count(kind string, summary BatchSummary) {
	metrics.IngestedRows.WithLabelValues(kind, "persisted").Add(float64(summary.Persisted))
	metrics.IngestedRows.WithLabelValues(kind, "skipped").Add(float64(summary.Skipped))
	metrics.IngestedRows.WithLabelValues(kind, "rejected").Add(float64(summary.Rejected))
}
