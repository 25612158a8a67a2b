package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ForecastPoint is one predicted close produced by an analysis run.
// Rows of a run share a correlation id; the current forecast of an instrument is the
// run that inserted last, regardless of the dates it covers.
type ForecastPoint struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	InstrumentID  uint64          `gorm:"column:instrument_id;not null;index:idx_forecast_points_run" json:"stock_id"`
	CorrelationID string          `gorm:"column:correlation_id;size:36;index:idx_forecast_points_run" json:"uuid"`
	Date          time.Time       `gorm:"column:date;not null" json:"date"`
	Close         decimal.Decimal `gorm:"column:close;type:decimal(15,6)" json:"close"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName overrides the table name used by ForecastPoint to `forecast_points`
func (ForecastPoint) TableName() string {
	return "forecast_points"
}

func (f *ForecastPoint) RecordID() uint64      { return f.ID }
func (f *ForecastPoint) SetRecordID(id uint64) { f.ID = id }
