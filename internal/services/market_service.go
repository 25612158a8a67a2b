/**
 * @description
 * Service layer for market views.
 * Reads instruments and their artifacts back for the dashboard, caching the market list
 * in Redis.
 *
 * @dependencies
 * - backend/internal/store
 * - backend/internal/blob
 * - github.com/redis/go-redis/v9
 */

package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tickerlab/backend/internal/blob"
	"github.com/tickerlab/backend/internal/logger"
	"github.com/tickerlab/backend/internal/models"
	"github.com/tickerlab/backend/internal/store"
	"gorm.io/gorm"
)

const (
	CacheKeyMarkets = "markets:list"
	CacheTTL        = 5 * time.Minute

	// DetailPriceLimit is the number of recent trading days shown on a market page
	DetailPriceLimit = 60
)

// MarketDetails is everything shown on a single market page
type MarketDetails struct {
	Stock       *models.Instrument     `json:"stock"`
	StockPrices []models.PricePoint    `json:"stockPrices"`
	StockImage  *string                `json:"stockImage"`
	Forecast    []models.ForecastPoint `json:"forecast"`
}

type MarketService struct {
	Redis       *redis.Client
	Instruments *store.InstrumentStore
	Prices      *store.PriceStore
	Forecasts   *store.ForecastStore
	Images      *store.ImageStore
	Persister   *blob.ImagePersister
}

func NewMarketService(db *gorm.DB, redis *redis.Client, persister *blob.ImagePersister) *MarketService {
	return &MarketService{
		Redis:       redis,
		Instruments: store.NewInstrumentStore(db),
		Prices:      store.NewPriceStore(db),
		Forecasts:   store.NewForecastStore(db),
		Images:      store.NewImageStore(db),
		Persister:   persister,
	}
}

// List returns all tracked instruments, preferring Cache -> DB
func (s *MarketService) List(ctx context.Context) ([]models.Instrument, error) {
	// 1. Try Redis
	val, err := s.Redis.Get(ctx, CacheKeyMarkets).Result()
	if err == nil {
		var instruments []models.Instrument
		if err := json.Unmarshal([]byte(val), &instruments); err == nil {
			return instruments, nil
		}
		// If unmarshal fails, fall through to DB
	}

	// 2. Fallback to DB
	instruments, err := s.Instruments.List(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(instruments)
	if err != nil {
		logger.Warn("Failed to marshal markets for cache: %v", err)
	} else if err := s.Redis.Set(ctx, CacheKeyMarkets, data, CacheTTL).Err(); err != nil {
		logger.Warn("Failed to set markets cache: %v", err)
	}

	return instruments, nil
}

// Invalidate drops the cached market list
func (s *MarketService) Invalidate(ctx context.Context) {
	if err := s.Redis.Del(ctx, CacheKeyMarkets).Err(); err != nil {
		logger.Warn("Failed to invalidate markets cache: %v", err)
	}
}

// Details returns the latest prices, chart and current forecast of a ticker.
// store.ErrNotFound is returned for tickers never ingested or analyzed.
func (s *MarketService) Details(ctx context.Context, ticker string) (*MarketDetails, error) {
	instrument, err := s.Instruments.FindByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}

	prices, err := s.Prices.Latest(ctx, instrument.ID, DetailPriceLimit)
	if err != nil {
		return nil, err
	}

	forecast, err := s.Forecasts.Current(ctx, instrument.ID)
	if err != nil {
		return nil, err
	}

	details := &MarketDetails{
		Stock:       instrument,
		StockPrices: prices,
		Forecast:    forecast,
	}

	image, err := s.Images.Latest(ctx, instrument.ID, models.ImageTypeModel)
	switch {
	case err == nil:
		url := s.Persister.URL(image.Filename)
		details.StockImage = &url
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, err
	}

	return details, nil
}
