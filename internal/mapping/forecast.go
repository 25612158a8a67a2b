package mapping

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ForecastInput is one forecast record as posted by the analyzer:
// {"index": "2025-06-02 00:00:00", "forecast_close": 187.4}
type ForecastInput struct {
	Index         interface{} `json:"index"`
	ForecastClose interface{} `json:"forecast_close"`
}

// ForecastRow is a forecast record in canonical shape
type ForecastRow struct {
	Date  time.Time
	Close decimal.Decimal
}

// MapForecastRow converts a posted forecast record.
// A record without a usable date or close is rejected.
func MapForecastRow(in ForecastInput) (ForecastRow, error) {
	date, err := ParseDate(in.Index)
	if err != nil {
		return ForecastRow{}, fmt.Errorf("index: %w", err)
	}

	closePrice, err := ParseNullDecimal(in.ForecastClose)
	if err != nil {
		return ForecastRow{}, fmt.Errorf("forecast_close: %w", err)
	}
	if !closePrice.Valid {
		return ForecastRow{}, fmt.Errorf("forecast_close: %w", ErrEmptyValue)
	}

	return ForecastRow{Date: date, Close: closePrice.Decimal}, nil
}
