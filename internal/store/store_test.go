package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tickerlab/backend/internal/db"
	"github.com/tickerlab/backend/internal/models"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:", gormLogger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func price(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

func TestGetOrCreateByTicker(t *testing.T) {
	ctx := context.Background()
	instruments := NewInstrumentStore(newTestDB(t))

	first, err := instruments.GetOrCreateByTicker(ctx, " aapl ")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", first.Ticker)
	assert.NotZero(t, first.ID)

	second, err := instruments.GetOrCreateByTicker(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = instruments.GetOrCreateByTicker(ctx, "   ")
	require.Error(t, err)

	_, err = instruments.FindByTicker(ctx, "MSFT")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := instruments.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestTouchAndTrends(t *testing.T) {
	ctx := context.Background()
	instruments := NewInstrumentStore(newTestDB(t))

	inst, err := instruments.GetOrCreateByTicker(ctx, "AAPL")
	require.NoError(t, err)

	require.NoError(t, instruments.Touch(ctx, inst, models.ColumnLastPriceUpdate))
	require.Error(t, instruments.Touch(ctx, inst, "name"))
	require.NoError(t, instruments.SetTrends(ctx, inst, "iphone"))

	reloaded, err := instruments.FindByTicker(ctx, "AAPL")
	require.NoError(t, err)
	assert.NotNil(t, reloaded.LastPriceUpdate)
	assert.Nil(t, reloaded.LastImageUpdate)
	assert.Equal(t, "iphone", reloaded.Trends)
}

func TestPriceSaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	gdb := newTestDB(t)
	inst, err := NewInstrumentStore(gdb).GetOrCreateByTicker(ctx, "AAPL")
	require.NoError(t, err)
	prices := NewPriceStore(gdb)

	first, err := prices.Save(ctx, &models.PricePoint{
		InstrumentID:  inst.ID,
		CorrelationID: uuid.NewString(),
		Date:          day("2024-01-02"),
		Close:         price("185.64"),
	})
	require.NoError(t, err)

	second, err := prices.Save(ctx, &models.PricePoint{
		InstrumentID:  inst.ID,
		CorrelationID: uuid.NewString(),
		Date:          day("2024-01-02"),
		Close:         price("186.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, gdb.Model(&models.PricePoint{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	latest, err := prices.Latest(ctx, inst.ID, 60)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.True(t, latest[0].Close.Decimal.Equal(decimal.RequireFromString("186")))
}

func TestPriceSaveByExplicitID(t *testing.T) {
	ctx := context.Background()
	gdb := newTestDB(t)
	inst, err := NewInstrumentStore(gdb).GetOrCreateByTicker(ctx, "AAPL")
	require.NoError(t, err)
	prices := NewPriceStore(gdb)

	saved, err := prices.Save(ctx, &models.PricePoint{InstrumentID: inst.ID, Date: day("2024-01-02"), Close: price("1")})
	require.NoError(t, err)

	// Same id, different date: the row moves instead of a new one appearing
	moved, err := prices.Save(ctx, &models.PricePoint{ID: saved.ID, InstrumentID: inst.ID, Date: day("2024-01-03"), Close: price("2")})
	require.NoError(t, err)
	assert.Equal(t, saved.ID, moved.ID)
	assert.True(t, moved.Date.Equal(day("2024-01-03")))

	// Unknown id falls back to the natural key and then to insert
	fresh, err := prices.Save(ctx, &models.PricePoint{ID: 9999, InstrumentID: inst.ID, Date: day("2024-01-04"), Close: price("3")})
	require.NoError(t, err)
	assert.NotEqual(t, uint64(9999), fresh.ID)

	latest, err := prices.Latest(ctx, inst.ID, 0)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.True(t, latest[0].Date.Equal(day("2024-01-04")))
}

func TestPriceLatestLimit(t *testing.T) {
	ctx := context.Background()
	gdb := newTestDB(t)
	inst, err := NewInstrumentStore(gdb).GetOrCreateByTicker(ctx, "AAPL")
	require.NoError(t, err)
	prices := NewPriceStore(gdb)

	start := day("2024-01-01")
	for i := 0; i < 70; i++ {
		_, err := prices.Save(ctx, &models.PricePoint{InstrumentID: inst.ID, Date: start.AddDate(0, 0, i), Close: price("10")})
		require.NoError(t, err)
	}

	latest, err := prices.Latest(ctx, inst.ID, 60)
	require.NoError(t, err)
	assert.Len(t, latest, 60)
	assert.True(t, latest[0].Date.Equal(start.AddDate(0, 0, 69)))
}

func TestForecastCurrentFollowsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	gdb := newTestDB(t)
	inst, err := NewInstrumentStore(gdb).GetOrCreateByTicker(ctx, "AAPL")
	require.NoError(t, err)
	forecasts := NewForecastStore(gdb)

	runA, runB := uuid.NewString(), uuid.NewString()
	for _, d := range []string{"2024-03-01", "2024-03-02"} {
		_, err := forecasts.Save(ctx, &models.ForecastPoint{InstrumentID: inst.ID, CorrelationID: runA, Date: day(d), Close: decimal.NewFromInt(1)})
		require.NoError(t, err)
	}
	// Run B is newer but forecasts earlier dates
	for _, d := range []string{"2024-02-01", "2024-02-02", "2024-02-03"} {
		_, err := forecasts.Save(ctx, &models.ForecastPoint{InstrumentID: inst.ID, CorrelationID: runB, Date: day(d), Close: decimal.NewFromInt(2)})
		require.NoError(t, err)
	}

	latest, found, err := forecasts.LatestCorrelationID(ctx, inst.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, runB, latest)

	current, err := forecasts.Current(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, current, 3)
	assert.True(t, current[0].Date.Equal(day("2024-02-03")))
	for _, f := range current {
		assert.Equal(t, runB, f.CorrelationID)
	}

	rowsA, found, err := forecasts.FindByCorrelationID(ctx, runA)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, rowsA, 2)
}

func TestForecastSaveScopedToRun(t *testing.T) {
	ctx := context.Background()
	gdb := newTestDB(t)
	inst, err := NewInstrumentStore(gdb).GetOrCreateByTicker(ctx, "AAPL")
	require.NoError(t, err)
	forecasts := NewForecastStore(gdb)

	run := uuid.NewString()
	first, err := forecasts.Save(ctx, &models.ForecastPoint{InstrumentID: inst.ID, CorrelationID: run, Date: day("2024-03-01"), Close: decimal.NewFromInt(1)})
	require.NoError(t, err)
	again, err := forecasts.Save(ctx, &models.ForecastPoint{InstrumentID: inst.ID, CorrelationID: run, Date: day("2024-03-01"), Close: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	other, err := forecasts.Save(ctx, &models.ForecastPoint{InstrumentID: inst.ID, CorrelationID: uuid.NewString(), Date: day("2024-03-01"), Close: decimal.NewFromInt(7)})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestForecastCurrentEmpty(t *testing.T) {
	ctx := context.Background()
	gdb := newTestDB(t)
	inst, err := NewInstrumentStore(gdb).GetOrCreateByTicker(ctx, "AAPL")
	require.NoError(t, err)

	current, err := NewForecastStore(gdb).Current(ctx, inst.ID)
	require.NoError(t, err)
	assert.Empty(t, current)
}

func TestImagesAppendOnly(t *testing.T) {
	ctx := context.Background()
	gdb := newTestDB(t)
	inst, err := NewInstrumentStore(gdb).GetOrCreateByTicker(ctx, "AAPL")
	require.NoError(t, err)
	images := NewImageStore(gdb)

	_, err = images.Latest(ctx, inst.ID, models.ImageTypeModel)
	assert.ErrorIs(t, err, ErrNotFound)

	older, err := images.Append(ctx, &models.ChartImage{InstrumentID: inst.ID, Date: day("2024-01-02"), Type: models.ImageTypeModel, Filename: "a.png"})
	require.NoError(t, err)
	newer, err := images.Append(ctx, &models.ChartImage{ID: older.ID, InstrumentID: inst.ID, Date: day("2024-01-03"), Type: models.ImageTypeModel, Filename: "b.png"})
	require.NoError(t, err)
	assert.NotEqual(t, older.ID, newer.ID)

	latest, err := images.Latest(ctx, inst.ID, models.ImageTypeModel)
	require.NoError(t, err)
	assert.Equal(t, "b.png", latest.Filename)

	var count int64
	require.NoError(t, gdb.Model(&models.ChartImage{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestCorrelationGuard(t *testing.T) {
	ctx := context.Background()
	gdb := newTestDB(t)
	instruments := NewInstrumentStore(gdb)
	aapl, err := instruments.GetOrCreateByTicker(ctx, "AAPL")
	require.NoError(t, err)
	msft, err := instruments.GetOrCreateByTicker(ctx, "MSFT")
	require.NoError(t, err)
	guard := NewCorrelationGuard(gdb)

	t.Run("malformed", func(t *testing.T) {
		_, err := guard.Check(ctx, "not-a-uuid", aapl)
		assert.ErrorIs(t, err, ErrInvalidCorrelationID)
	})

	t.Run("canonicalized", func(t *testing.T) {
		id := uuid.New()
		got, err := guard.Check(ctx, "{"+id.String()+"}", aapl)
		require.NoError(t, err)
		assert.Equal(t, id.String(), got)
	})

	t.Run("bound by stored rows", func(t *testing.T) {
		run := uuid.NewString()
		_, err := NewPriceStore(gdb).Save(ctx, &models.PricePoint{InstrumentID: aapl.ID, CorrelationID: run, Date: day("2024-01-02"), Close: price("1")})
		require.NoError(t, err)

		_, err = guard.Check(ctx, run, aapl)
		require.NoError(t, err)
		_, err = guard.Check(ctx, run, msft)
		assert.ErrorIs(t, err, ErrCorrelationConflict)
	})

	t.Run("bound by issued job", func(t *testing.T) {
		job := &models.AnalysisJob{Ticker: "AAPL", Status: models.JobStatusQueued}
		require.NoError(t, gdb.Create(job).Error)

		_, err := guard.Check(ctx, job.ID, aapl)
		require.NoError(t, err)
		_, err = guard.Check(ctx, job.ID, msft)
		assert.ErrorIs(t, err, ErrCorrelationConflict)
	})
}
