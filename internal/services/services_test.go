package services

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tickerlab/backend/internal/analyzer"
	"github.com/tickerlab/backend/internal/blob"
	"github.com/tickerlab/backend/internal/db"
	"github.com/tickerlab/backend/internal/jobs"
	"github.com/tickerlab/backend/internal/mapping"
	"github.com/tickerlab/backend/internal/models"
	"github.com/tickerlab/backend/internal/store"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

type fixture struct {
	db      *gorm.DB
	redis   *redis.Client
	ingest  *IngestService
	markets *MarketService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:", gormLogger.Silent)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	local, err := blob.NewLocalStore(t.TempDir(), "/storage")
	require.NoError(t, err)
	persister := blob.NewImagePersister(local)

	markets := NewMarketService(gdb, rdb, persister)
	return &fixture{
		db:      gdb,
		redis:   rdb,
		ingest:  NewIngestService(gdb, persister, markets),
		markets: markets,
	}
}

func yahooRow(date string, closePrice interface{}) map[string]interface{} {
	return map[string]interface{}{
		"Date":           date + " 00:00:00",
		"Adj Close_AAPL": 184.9,
		"Close_AAPL":     closePrice,
		"High_AAPL":      186.1,
		"Low_AAPL":       183.2,
		"Open_AAPL":      184.0,
		"Volume_AAPL":    float64(82488700),
	}
}

func TestSavePricesSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run := uuid.NewString()

	rows := []map[string]interface{}{
		yahooRow("2024-01-02", 185.64),
		yahooRow("2024-01-03", "184.25"),
		yahooRow("2024-01-04", nil),
		{"date": "2024-01-05", "close": 181.9},
	}

	result, err := f.ingest.SavePrices(ctx, "aapl", run, rows)
	require.NoError(t, err)
	assert.Equal(t, BatchSummary{Persisted: 2, Skipped: 1, Rejected: 1}, result.Summary)
	assert.Equal(t, "AAPL", result.Instrument.Ticker)
	require.Len(t, result.Prices, 2)
	assert.Equal(t, run, result.Prices[0].CorrelationID)
	require.NotNil(t, result.Prices[0].Volume)
	assert.EqualValues(t, 82488700, *result.Prices[0].Volume)

	// Same batch again: overwrites, never duplicates
	_, err = f.ingest.SavePrices(ctx, "AAPL", run, rows)
	require.NoError(t, err)

	var count int64
	require.NoError(t, f.db.Model(&models.PricePoint{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)

	inst, err := f.ingest.Instruments.FindByTicker(ctx, "AAPL")
	require.NoError(t, err)
	assert.NotNil(t, inst.LastPriceUpdate)
}

func TestSavePricesCorrelationChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ingest.SavePrices(ctx, "AAPL", "run-1", []map[string]interface{}{yahooRow("2024-01-02", 1.0)})
	assert.ErrorIs(t, err, store.ErrInvalidCorrelationID)

	run := uuid.NewString()
	_, err = f.ingest.SavePrices(ctx, "AAPL", run, []map[string]interface{}{yahooRow("2024-01-02", 1.0)})
	require.NoError(t, err)

	_, err = f.ingest.SavePrices(ctx, "MSFT", run, []map[string]interface{}{yahooRow("2024-01-02", 1.0)})
	assert.ErrorIs(t, err, store.ErrCorrelationConflict)
}

func TestSaveForecasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.ingest.SaveForecasts(ctx, "AAPL", uuid.NewString(), []mapping.ForecastInput{
		{Index: "2024-02-01 00:00:00", ForecastClose: 190.5},
		{Index: "2024-02-02", ForecastClose: "191.25"},
		{Index: "yesterday", ForecastClose: 1.0},
		{Index: "2024-02-03", ForecastClose: nil},
	})
	require.NoError(t, err)
	assert.Equal(t, BatchSummary{Persisted: 2, Rejected: 2}, result.Summary)

	inst, err := f.ingest.Instruments.FindByTicker(ctx, "AAPL")
	require.NoError(t, err)
	assert.NotNil(t, inst.LastForecastUpdate)
}

func TestSaveImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("chart"))

	result, err := f.ingest.SaveImage(ctx, "AAPL", uuid.NewString(), payload)
	require.NoError(t, err)
	assert.Equal(t, models.ImageTypeModel, result.Image.Type)
	assert.Nil(t, result.Image.StorageDir)
	assert.Equal(t, "/storage/images/"+result.Image.Filename, result.URL)

	_, err = f.ingest.SaveImage(ctx, "AAPL", uuid.NewString(), "%%%")
	assert.ErrorIs(t, err, blob.ErrInvalidImagePayload)

	var count int64
	require.NoError(t, f.db.Model(&models.ChartImage{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestMarketListCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ingest.SavePrices(ctx, "AAPL", uuid.NewString(), []map[string]interface{}{yahooRow("2024-01-02", 1.0)})
	require.NoError(t, err)

	list, err := f.markets.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	// Written behind the service's back: the cached list is served
	require.NoError(t, f.db.Create(&models.Instrument{Ticker: "MSFT"}).Error)
	list, err = f.markets.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// Ingestion invalidates
	_, err = f.ingest.SavePrices(ctx, "NVDA", uuid.NewString(), []map[string]interface{}{yahooRow("2024-01-02", 1.0)})
	require.NoError(t, err)
	list, err = f.markets.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestMarketDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.markets.Details(ctx, "AAPL")
	assert.ErrorIs(t, err, store.ErrNotFound)

	run := uuid.NewString()
	_, err = f.ingest.SavePrices(ctx, "AAPL", run, []map[string]interface{}{
		yahooRow("2024-01-02", 1.0),
		yahooRow("2024-01-03", 2.0),
	})
	require.NoError(t, err)

	details, err := f.markets.Details(ctx, "aapl")
	require.NoError(t, err)
	assert.Nil(t, details.StockImage)
	assert.Empty(t, details.Forecast)
	require.Len(t, details.StockPrices, 2)
	assert.True(t, details.StockPrices[0].Date.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)))

	image, err := f.ingest.SaveImage(ctx, "AAPL", run, base64.StdEncoding.EncodeToString([]byte("chart")))
	require.NoError(t, err)
	_, err = f.ingest.SaveForecasts(ctx, "AAPL", run, []mapping.ForecastInput{{Index: "2024-01-10", ForecastClose: 3.0}})
	require.NoError(t, err)

	details, err = f.markets.Details(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, details.StockImage)
	assert.Equal(t, image.URL, *details.StockImage)
	require.Len(t, details.Forecast, 1)
	assert.Equal(t, run, details.Forecast[0].CorrelationID)
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, p analyzer.Params) (*analyzer.Result, error) {
	return &analyzer.Result{Output: "ok"}, nil
}

func TestAnalysisServiceTracksInstrument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jobStore := jobs.NewJobStore(f.db, f.redis)
	svc := NewAnalysisService(f.db,
		jobs.NewRunner(jobStore, stubAnalyzer{}, time.Second),
		jobs.NewDispatcher(jobStore, f.redis, "analysis:queue"),
	)

	job, err := svc.Enqueue(ctx, analyzer.Params{Ticker: " msft", Trends: "copilot", StartDate: time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, "MSFT", job.Ticker)
	assert.Equal(t, models.JobModeAsync, job.Mode)

	inst, err := f.ingest.Instruments.FindByTicker(ctx, "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "copilot", inst.Trends)

	syncJob, result, err := svc.Run(ctx, analyzer.Params{Ticker: "MSFT", StartDate: time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Output)

	stored, err := svc.Status(ctx, syncJob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSucceeded, stored.Status)
}
