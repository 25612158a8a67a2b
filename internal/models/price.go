/**
 * @description
 * Price history database model.
 * Maps to the 'price_points' table in PostgreSQL.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/shopspring/decimal
 */

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices are rendered as JSON numbers, as the analyzer sends them
	decimal.MarshalJSONWithoutQuotes = true
}

// PricePoint is one trading day of an instrument.
// (instrument_id, date) is the natural key used for upserts.
type PricePoint struct {
	ID            uint64              `gorm:"primaryKey;autoIncrement" json:"id"`
	InstrumentID  uint64              `gorm:"column:instrument_id;not null;uniqueIndex:idx_price_points_instrument_date" json:"stock_id"`
	CorrelationID string              `gorm:"column:correlation_id;size:36;index" json:"uuid"`
	Date          time.Time           `gorm:"column:date;not null;uniqueIndex:idx_price_points_instrument_date" json:"date"`
	AdjClose      decimal.NullDecimal `gorm:"column:adj_close;type:decimal(15,6)" json:"adj_close"`
	Close         decimal.NullDecimal `gorm:"column:close;type:decimal(15,6)" json:"close"`
	High          decimal.NullDecimal `gorm:"column:high;type:decimal(15,6)" json:"high"`
	Low           decimal.NullDecimal `gorm:"column:low;type:decimal(15,6)" json:"low"`
	Open          decimal.NullDecimal `gorm:"column:open;type:decimal(15,6)" json:"open"`
	Volume        *int64              `gorm:"column:volume" json:"volume"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName overrides the table name used by PricePoint to `price_points`
func (PricePoint) TableName() string {
	return "price_points"
}

func (p *PricePoint) RecordID() uint64      { return p.ID }
func (p *PricePoint) SetRecordID(id uint64) { p.ID = id }
