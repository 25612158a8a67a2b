/**
 * @description
 * Instrument database model.
 * Maps to the 'instruments' table in PostgreSQL.
 * An instrument is a tracked ticker; prices, forecasts and chart images hang off it.
 *
 * @dependencies
 * - gorm.io/gorm
 */

package models

import (
	"time"
)

// Timestamp columns bumped whenever a batch is committed for an instrument
const (
	ColumnLastPriceUpdate    = "last_price_update"
	ColumnLastImageUpdate    = "last_image_update"
	ColumnLastForecastUpdate = "last_forecast_update"
)

// Instrument represents a tracked ticker symbol and its metadata
type Instrument struct {
	ID                 uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Ticker             string     `gorm:"column:ticker;size:20;uniqueIndex;not null" json:"ticker"`
	Trends             string     `gorm:"column:trends" json:"trends"`
	Name               string     `gorm:"column:name" json:"name"`
	LastPriceUpdate    *time.Time `gorm:"column:last_price_update" json:"last_price_update"`
	LastImageUpdate    *time.Time `gorm:"column:last_image_update" json:"last_image_update"`
	LastForecastUpdate *time.Time `gorm:"column:last_forecast_update" json:"last_forecast_update"`

	// Owned children, removed with the instrument
	Prices    []PricePoint    `gorm:"foreignKey:InstrumentID;constraint:OnDelete:CASCADE" json:"-"`
	Forecasts []ForecastPoint `gorm:"foreignKey:InstrumentID;constraint:OnDelete:CASCADE" json:"-"`
	Images    []ChartImage    `gorm:"foreignKey:InstrumentID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName overrides the table name used by Instrument to `instruments`
func (Instrument) TableName() string {
	return "instruments"
}

func (i *Instrument) RecordID() uint64      { return i.ID }
func (i *Instrument) SetRecordID(id uint64) { i.ID = id }
