package models

import (
	"time"
)

// ImageTypeModel is the chart rendered by the forecasting model
const ImageTypeModel = "model"

// ChartImage references a rendered chart kept in blob storage.
// Rows are append-only; the latest image of a type is a query, not an update.
type ChartImage struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	InstrumentID  uint64    `gorm:"column:instrument_id;not null;index" json:"stock_id"`
	CorrelationID string    `gorm:"column:correlation_id;size:36;index" json:"uuid"`
	Date          time.Time `gorm:"column:date;index" json:"date"`
	Type          string    `gorm:"column:type;size:32" json:"type"`
	StorageDir    *string   `gorm:"column:storage_dir" json:"dir"`
	Filename      string    `gorm:"column:filename;not null" json:"image"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName overrides the table name used by ChartImage to `chart_images`
func (ChartImage) TableName() string {
	return "chart_images"
}

func (c *ChartImage) RecordID() uint64      { return c.ID }
func (c *ChartImage) SetRecordID(id uint64) { c.ID = id }
